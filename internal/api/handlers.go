package api

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"chatintent/domain/core"
	"chatintent/domain/intent"
	"chatintent/internal/errors"
	"chatintent/internal/inference"

	"github.com/go-chi/chi/v5"
)

const (
	// MaxBatchSize bounds the texts accepted by one batch request
	MaxBatchSize = 256

	// MaxBodyBytes bounds the size of a request body
	MaxBodyBytes = 1 << 20
)

type classifyRequest struct {
	Text     string `json:"text"`
	UserType string `json:"user_type"`
}

type classifyResponse struct {
	inference.Decision
	Cached bool `json:"cached"`
}

type batchRequest struct {
	Texts    []string `json:"texts"`
	UserType string   `json:"user_type"`
}

type batchResponse struct {
	Decisions []inference.Decision `json:"decisions"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"fingerprint": s.classify.Model().Fingerprint,
		"uptime":      time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	userType, err := intent.ParseUserType(req.UserType)
	if err != nil {
		s.writeError(w, errors.WithCode(errors.CodeInvalidInput, err))
		return
	}

	d, cached, err := s.classify.Classify(r.Context(), req.Text, userType)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, classifyResponse{Decision: d, Cached: cached})
}

func (s *Server) handleClassifyBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Texts) == 0 || len(req.Texts) > MaxBatchSize {
		s.writeError(w, errors.InvalidInput("texts must hold 1..%d entries, got %d", MaxBatchSize, len(req.Texts)))
		return
	}
	userType, err := intent.ParseUserType(req.UserType)
	if err != nil {
		s.writeError(w, errors.WithCode(errors.CodeInvalidInput, err))
		return
	}

	decisions, err := s.classify.ClassifyBatch(r.Context(), req.Texts, userType)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batchResponse{Decisions: decisions})
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.classify.Model())
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "run registry is disabled", Code: errors.CodeConfiguration})
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, errors.InvalidInput("limit must be a positive integer, got %q", v))
			return
		}
		limit = n
	}

	records, err := s.runs.ListRecent(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": records})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "run registry is disabled", Code: errors.CodeConfiguration})
		return
	}
	runID, err := core.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, errors.WithCode(errors.CodeInvalidInput, err))
		return
	}

	record, err := s.runs.Get(r.Context(), runID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// decode reads a JSON body of at most MaxBodyBytes into v. On failure the
// response is already written.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if stderrors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
			Error: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			Code:  errors.CodeInvalidInput,
		})
		return false
	}
	s.writeError(w, errors.InvalidInput("request body is not valid JSON: %v", err))
	return false
}

// writeError maps an error kind to a status code. Internal failures are
// logged and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.CodeInvalidInput:
		status = http.StatusBadRequest
	case errors.CodeNotFound:
		status = http.StatusNotFound
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed: %v", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

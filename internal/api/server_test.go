package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chatintent/adapters/cache"
	"chatintent/app"
	"chatintent/domain/core"
	"chatintent/domain/intent"
	"chatintent/domain/run"
	"chatintent/internal/artifact"
	"chatintent/internal/backbone"
	"chatintent/internal/classifier"
	"chatintent/internal/config"
	"chatintent/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) Create(ctx context.Context, manifest *run.Manifest) error {
	return m.Called(ctx, manifest).Error(0)
}

func (m *MockRunRepository) AddEpochs(ctx context.Context, runID core.RunID, epochs []run.Epoch) error {
	return m.Called(ctx, runID, epochs).Error(0)
}

func (m *MockRunRepository) Finish(ctx context.Context, runID core.RunID, outcome run.Outcome) error {
	return m.Called(ctx, runID, outcome).Error(0)
}

func (m *MockRunRepository) Get(ctx context.Context, runID core.RunID) (*run.Record, error) {
	args := m.Called(ctx, runID)
	rec, _ := args.Get(0).(*run.Record)
	return rec, args.Error(1)
}

func (m *MockRunRepository) ListRecent(ctx context.Context, limit int) ([]*run.Record, error) {
	args := m.Called(ctx, limit)
	recs, _ := args.Get(0).([]*run.Record)
	return recs, args.Error(1)
}

// testBundle packages weights whose bias makes admin_list_restaurants win
// for any text.
func testBundle(t *testing.T) *artifact.Bundle {
	t.Helper()
	bc := config.Default().Backbone
	bc.VocabBuckets = 256
	bc.EmbeddingDim = 8
	bb, err := backbone.Load(bc)
	require.NoError(t, err)

	labels, err := intent.NewLabelSpace([]string{"admin_list_restaurants", "customer_track_order", "customer_view_cart"})
	require.NoError(t, err)
	w, err := classifier.New(bb.PretrainedEmbeddings(), labels.NumClasses(), 1)
	require.NoError(t, err)
	w.Bias.SetVec(0, 10)

	tc := bb.TokenizerConfig()
	tc.MaxLength = 32
	dir := t.TempDir()
	require.NoError(t, artifact.NewPackager(nil).Package(dir, artifact.Input{Weights: w, Labels: labels, Tokenizer: tc}))

	bundle, err := artifact.Load(dir)
	require.NoError(t, err)
	return bundle
}

func newTestServer(t *testing.T, runs *MockRunRepository) *Server {
	t.Helper()
	svc, err := app.NewClassificationService(testBundle(t), config.Default().Inference, cache.NewMemoryCache(100), time.Minute, nil)
	require.NoError(t, err)
	if runs == nil {
		return NewServer(svc, nil, nil)
	}
	return NewServer(svc, runs, nil)
}

func do(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestClassify_AcceptedAndCached(t *testing.T) {
	s := newTestServer(t, nil)
	body := classifyRequest{Text: "Show all restaurants", UserType: "admin"}

	rec := do(t, s, http.MethodPost, "/api/v1/classify", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var first classifyResponse
	decode(t, rec, &first)
	assert.True(t, first.Accepted)
	assert.Equal(t, "admin_list_restaurants", first.Intent)
	assert.Greater(t, first.Prediction.Confidence, 0.6)
	assert.False(t, first.Cached)

	rec = do(t, s, http.MethodPost, "/api/v1/classify", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var second classifyResponse
	decode(t, rec, &second)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Decision, second.Decision)
}

func TestClassify_RoleFilterFallsBack(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, http.MethodPost, "/api/v1/classify", classifyRequest{Text: "Show all restaurants", UserType: "customer"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp classifyResponse
	decode(t, rec, &resp)
	assert.False(t, resp.Accepted)
	assert.Equal(t, "fallback", resp.Intent)
	assert.Equal(t, "admin_list_restaurants", resp.Prediction.Intent)
}

func TestClassify_BadRequests(t *testing.T) {
	s := newTestServer(t, nil)
	testCases := []struct {
		name string
		body interface{}
	}{
		{"blank text", classifyRequest{Text: "   ", UserType: "admin"}},
		{"unknown user type", classifyRequest{Text: "hi", UserType: "guest"}},
		{"missing user type", classifyRequest{Text: "hi"}},
		{"malformed json", "{not json"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/v1/classify", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var resp errorResponse
			decode(t, rec, &resp)
			assert.Equal(t, errors.CodeInvalidInput, resp.Code)
		})
	}
}

func TestClassify_BodyTooLarge(t *testing.T) {
	s := newTestServer(t, nil)
	body := `{"text":"` + strings.Repeat("a", MaxBodyBytes) + `","user_type":"admin"}`

	for _, path := range []string{"/api/v1/classify", "/api/v1/classify/batch"} {
		rec := do(t, s, http.MethodPost, path, body)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, path)
		var resp errorResponse
		decode(t, rec, &resp)
		assert.Equal(t, errors.CodeInvalidInput, resp.Code)
	}
}

func TestClassifyBatch_KeepsOrder(t *testing.T) {
	s := newTestServer(t, nil)
	texts := []string{"Show all restaurants", "Where is my order?", "What's in my cart?"}
	rec := do(t, s, http.MethodPost, "/api/v1/classify/batch", batchRequest{Texts: texts, UserType: "admin"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp batchResponse
	decode(t, rec, &resp)
	require.Len(t, resp.Decisions, 3)
	for i, d := range resp.Decisions {
		assert.Equal(t, texts[i], d.Prediction.Text)
	}

	rec = do(t, s, http.MethodPost, "/api/v1/classify/batch", batchRequest{UserType: "admin"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/classify/batch", batchRequest{Texts: []string{"ok", ""}, UserType: "admin"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestModelAndHealth(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/api/v1/model", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var info app.ModelInfo
	decode(t, rec, &info)
	assert.Equal(t, 3, info.NumClasses)
	assert.Len(t, info.Fingerprint, 64)
	assert.Equal(t, config.DefaultPolicy, info.Policy)
	assert.Nil(t, info.F1)

	rec = do(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestRuns(t *testing.T) {
	repo := new(MockRunRepository)
	s := newTestServer(t, repo)

	known := &run.Record{
		Manifest: *run.NewManifest(core.NewRunID(), run.NewFingerprint("c", "l", "k", 42, "test")),
		Status:   run.StatusSucceeded,
		F1:       0.93,
	}
	missing := core.NewRunID()
	repo.On("ListRecent", mock.Anything, 5).Return([]*run.Record{known}, nil)
	repo.On("Get", mock.Anything, known.ID()).Return(known, nil)
	repo.On("Get", mock.Anything, missing).Return(nil, errors.NotFound("run "+missing.String()))

	rec := do(t, s, http.MethodGet, "/api/v1/runs?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Runs []run.Record `json:"runs"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Runs, 1)
	assert.Equal(t, known.ID(), list.Runs[0].ID())

	rec = do(t, s, http.MethodGet, "/api/v1/runs/"+known.ID().String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got run.Record
	decode(t, rec, &got)
	assert.Equal(t, run.StatusSucceeded, got.Status)

	rec = do(t, s, http.MethodGet, "/api/v1/runs/"+missing.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/runs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/runs?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	repo.AssertExpectations(t)
}

func TestRuns_RegistryDisabled(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/api/v1/runs", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

package app

import (
	"context"
	"encoding/json"
	"time"

	"chatintent/adapters/cache"
	"chatintent/domain/intent"
	"chatintent/internal"
	"chatintent/internal/artifact"
	"chatintent/internal/config"
	"chatintent/internal/inference"
	"chatintent/ports"
)

// ClassificationService answers classification requests from one loaded
// bundle. It is safe for concurrent use.
type ClassificationService struct {
	bundle *artifact.Bundle
	scorer *inference.Scorer
	policy *inference.Policy
	cache  ports.PredictionCache // optional
	ttl    time.Duration
	logger *internal.Logger
}

// ModelInfo describes the served bundle
type ModelInfo struct {
	Fingerprint string   `json:"fingerprint"`
	RunID       string   `json:"run_id,omitempty"`
	NumClasses  int      `json:"num_classes"`
	Intents     []string `json:"intents"`
	Accuracy    *float64 `json:"accuracy,omitempty"`
	F1          *float64 `json:"f1,omitempty"`
	Policy      string   `json:"policy"`
	Threshold   float64  `json:"threshold"`
}

// NewClassificationService builds the scorer and compiles the policy.
// cache may be nil.
func NewClassificationService(bundle *artifact.Bundle, cfg config.InferenceConfig, predictionCache ports.PredictionCache, ttl time.Duration, logger *internal.Logger) (*ClassificationService, error) {
	scorer, err := bundle.Scorer(inference.WithConcurrency(cfg.BatchConcurrency))
	if err != nil {
		return nil, err
	}
	policy, err := inference.NewPolicy(cfg.Policy, cfg.ConfidenceThreshold)
	if err != nil {
		return nil, err
	}
	return &ClassificationService{
		bundle: bundle,
		scorer: scorer,
		policy: policy,
		cache:  predictionCache,
		ttl:    ttl,
		logger: logger.Named("ClassificationService"),
	}, nil
}

// Classify scores text and applies the policy for userType. The second
// result reports a cache hit.
func (s *ClassificationService) Classify(ctx context.Context, text string, userType intent.UserType) (inference.Decision, bool, error) {
	key := cache.Key(s.bundle.Fingerprint(), s.policy.Hash().Short(), string(userType), text)
	if d, ok := s.cached(ctx, key); ok {
		return d, true, nil
	}

	pred, err := s.scorer.Score(text)
	if err != nil {
		return inference.Decision{}, false, err
	}
	d, err := s.policy.Apply(pred, userType)
	if err != nil {
		return inference.Decision{}, false, err
	}
	s.store(ctx, key, d)
	return d, false, nil
}

// ClassifyBatch scores texts concurrently and keeps input order. The cache
// is bypassed.
func (s *ClassificationService) ClassifyBatch(ctx context.Context, texts []string, userType intent.UserType) ([]inference.Decision, error) {
	preds, err := s.scorer.ScoreBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([]inference.Decision, len(preds))
	for i, p := range preds {
		if out[i], err = s.policy.Apply(p, userType); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Model describes the served bundle
func (s *ClassificationService) Model() ModelInfo {
	info := ModelInfo{
		Fingerprint: s.bundle.Fingerprint(),
		NumClasses:  s.bundle.Labels.NumClasses(),
		Intents:     s.bundle.Labels.Intents(),
		Policy:      s.policy.Expression(),
		Threshold:   s.policy.Threshold(),
	}
	if s.bundle.Manifest != nil {
		info.RunID = s.bundle.Manifest.RunID.String()
	}
	if s.bundle.Report != nil {
		acc, f1 := s.bundle.Report.Accuracy, s.bundle.Report.F1
		info.Accuracy, info.F1 = &acc, &f1
	}
	return info
}

// Cache failures never fail a request; they are logged and scoring proceeds.
func (s *ClassificationService) cached(ctx context.Context, key string) (inference.Decision, bool) {
	if s.cache == nil {
		return inference.Decision{}, false
	}
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache lookup failed: %v", err)
		return inference.Decision{}, false
	}
	if !ok {
		return inference.Decision{}, false
	}
	var d inference.Decision
	if err := json.Unmarshal(data, &d); err != nil {
		s.logger.Warn("discarding corrupt cache entry: %v", err)
		return inference.Decision{}, false
	}
	return d, true
}

func (s *ClassificationService) store(ctx context.Context, key string, d inference.Decision) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(d)
	if err != nil {
		s.logger.Warn("failed to encode decision for cache: %v", err)
		return
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		s.logger.Warn("cache store failed: %v", err)
	}
}

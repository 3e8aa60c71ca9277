package inference

import (
	"context"
	"strings"

	"chatintent/domain/intent"
	"chatintent/internal/classifier"
	"chatintent/internal/errors"
	"chatintent/ports"

	"golang.org/x/sync/errgroup"
)

// Prediction is the scored intent of one utterance
type Prediction struct {
	Text          string             `json:"text"`
	Intent        string             `json:"intent"`
	IntentID      int                `json:"intent_id"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// Scorer maps raw text to an intent with a confidence. It holds only
// read-only state and is safe for concurrent use.
type Scorer struct {
	weights     *classifier.Weights
	labels      *intent.LabelSpace
	backbone    ports.Backbone
	maxLen      int
	concurrency int
}

// ScorerOption configures a Scorer
type ScorerOption func(*Scorer)

// WithConcurrency bounds the number of goroutines ScoreBatch uses.
func WithConcurrency(n int) ScorerOption {
	return func(s *Scorer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewScorer checks that the weights, label space and backbone agree on shapes.
// maxLen must be the training max_sequence_length so truncation matches.
func NewScorer(weights *classifier.Weights, labels *intent.LabelSpace, backbone ports.Backbone, maxLen int, opts ...ScorerOption) (*Scorer, error) {
	if weights == nil || labels == nil || backbone == nil {
		return nil, errors.Configuration("scorer needs weights, labels and a backbone")
	}
	if weights.NumClasses() != labels.NumClasses() {
		return nil, errors.Configuration("weights have %d classes but the label space has %d", weights.NumClasses(), labels.NumClasses())
	}
	if weights.VocabSize() != backbone.VocabSize() || weights.Dim() != backbone.EmbeddingDim() {
		return nil, errors.Configuration("weights are %dx%d but backbone %s is %dx%d",
			weights.VocabSize(), weights.Dim(), backbone.Name(), backbone.VocabSize(), backbone.EmbeddingDim())
	}
	if maxLen < 1 || maxLen > backbone.MaxPositions() {
		return nil, errors.BackboneLoad(nil, "max length %d is outside 1..%d", maxLen, backbone.MaxPositions())
	}

	s := &Scorer{weights: weights, labels: labels, backbone: backbone, maxLen: maxLen, concurrency: 8}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Labels returns the label space the scorer predicts over.
func (s *Scorer) Labels() *intent.LabelSpace { return s.labels }

// Score classifies one utterance. Empty or whitespace-only text is rejected.
func (s *Scorer) Score(text string) (Prediction, error) {
	if strings.TrimSpace(text) == "" {
		return Prediction{}, errors.InvalidInput("text is empty")
	}
	tokens, err := s.backbone.Encode(text, s.maxLen)
	if err != nil {
		return Prediction{}, err
	}

	id, confidence, probs := s.weights.Predict(tokens)
	name, _ := s.labels.Intent(id)
	byIntent := make(map[string]float64, len(probs))
	for i, p := range probs {
		n, _ := s.labels.Intent(i)
		byIntent[n] = p
	}
	return Prediction{
		Text:          text,
		Intent:        name,
		IntentID:      id,
		Confidence:    confidence,
		Probabilities: byIntent,
	}, nil
}

// PredictID returns only the label id; it lets a Scorer drive evaluation.
func (s *Scorer) PredictID(text string) (int, error) {
	p, err := s.Score(text)
	if err != nil {
		return 0, err
	}
	return p.IntentID, nil
}

// ScoreBatch scores texts concurrently and returns predictions in input
// order. The first failure cancels the rest.
func (s *Scorer) ScoreBatch(ctx context.Context, texts []string) ([]Prediction, error) {
	out := make([]Prediction, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, text := range texts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := s.Score(text)
			if err != nil {
				return errors.Wrapf(err, "text %d", i)
			}
			out[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

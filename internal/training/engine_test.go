package training

import (
	"context"
	stderrors "errors"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chatintent/domain/intent"
	"chatintent/internal/classifier"
	"chatintent/internal/config"
	"chatintent/internal/errors"
	"chatintent/internal/split"
	"chatintent/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// wordBackbone hashes whitespace-separated words; it keeps these tests free
// of tokenizer downloads and lets a test poison the embedding table.
type wordBackbone struct {
	vocab, dim, maxPos int
	poison             bool
	lrScale            float64
}

func (b *wordBackbone) Name() string      { return "word-test" }
func (b *wordBackbone) VocabSize() int    { return b.vocab }
func (b *wordBackbone) EmbeddingDim() int { return b.dim }
func (b *wordBackbone) MaxPositions() int { return b.maxPos }

func (b *wordBackbone) Encode(text string, maxLen int) ([]int, error) {
	words := strings.Fields(strings.ToLower(text))
	if maxLen > 0 && len(words) > maxLen {
		words = words[:maxLen]
	}
	ids := make([]int, len(words))
	for i, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		ids[i] = int(h.Sum32() % uint32(b.vocab))
	}
	return ids, nil
}

func (b *wordBackbone) PretrainedEmbeddings() *mat.Dense {
	data := make([]float64, b.vocab*b.dim)
	for i := range data {
		data[i] = math.Sin(float64(i)) * 0.1
		if b.poison {
			data[i] = math.NaN()
		}
	}
	return mat.NewDense(b.vocab, b.dim, data)
}

func (b *wordBackbone) TokenizerConfig() ports.TokenizerConfig {
	return ports.TokenizerConfig{BackboneName: b.Name(), VocabBuckets: b.vocab, EmbeddingDim: b.dim, MaxPositions: b.maxPos, LearningRateScale: b.lrScale}
}

func newBackbone() *wordBackbone { return &wordBackbone{vocab: 256, dim: 8, maxPos: 64} }

func toyData(t *testing.T) (*intent.Corpus, *intent.LabelSpace, *split.Split) {
	t.Helper()
	phrases := map[string][]string{
		"customer_view_cart":   {"show cart", "view cart", "display my cart", "what is in my cart", "open basket"},
		"customer_place_order": {"checkout", "place order", "order now", "submit order", "confirm order"},
		"admin_view_stats":     {"show statistics", "view dashboard", "display stats", "show report", "view metrics"},
	}
	c := &intent.Corpus{}
	for _, name := range []string{"admin_view_stats", "customer_place_order", "customer_view_cart"} {
		ut := intent.UserTypeCustomer
		if strings.HasPrefix(name, "admin") {
			ut = intent.UserTypeAdmin
		}
		for r := 0; r < 4; r++ {
			for _, p := range phrases[name] {
				require.NoError(t, c.Append(intent.Sample{Text: p, Intent: name, UserType: ut}))
			}
		}
	}
	labels, err := intent.BuildLabelSpace(c)
	require.NoError(t, err)
	s, err := split.Stratify(c, labels, 0.25, 42)
	require.NoError(t, err)
	return c, labels, s
}

func toyConfig() config.TrainingConfig {
	cfg := config.Default().Training
	cfg.Epochs = 5
	cfg.BatchSize = 8
	cfg.LearningRate = 0.05
	cfg.WarmupSteps = 2
	cfg.MaxSequenceLength = 16
	return cfg
}

func TestNewEngine_BackboneErrors(t *testing.T) {
	_, labels, _ := toyData(t)

	_, err := NewEngine(toyConfig(), nil, labels)
	assert.True(t, stderrors.Is(err, errors.ErrBackboneLoad))

	cfg := toyConfig()
	cfg.MaxSequenceLength = 65
	_, err = NewEngine(cfg, newBackbone(), labels)
	assert.True(t, stderrors.Is(err, errors.ErrBackboneLoad))

	cfg = toyConfig()
	cfg.Epochs = 0
	_, err = NewEngine(cfg, newBackbone(), labels)
	assert.True(t, stderrors.Is(err, errors.ErrConfiguration))
}

func TestEngine_TrainsAndFinalizes(t *testing.T) {
	corpus, labels, s := toyData(t)

	var observed []string
	var engine *Engine
	engine, err := NewEngine(toyConfig(), newBackbone(), labels,
		WithSeed(42),
		WithEpochCallback(func(EpochMetrics) { observed = append(observed, engine.State().String()) }),
	)
	require.NoError(t, err)
	assert.Equal(t, "Initialized", engine.State().String())

	res, err := engine.Run(context.Background(), corpus, s)
	require.NoError(t, err)

	assert.Equal(t, []string{"Evaluating(1)", "Evaluating(2)", "Evaluating(3)", "Evaluating(4)", "Evaluating(5)"}, observed)
	assert.Equal(t, PhaseFinalized, engine.State().Phase)
	require.Len(t, res.History, 5)

	stepsPerEpoch := (len(s.Train) + 7) / 8
	assert.Equal(t, 5*stepsPerEpoch, res.Steps)
	assert.Equal(t, stepsPerEpoch, res.History[0].Step)

	bestF1, bestEpoch := -1.0, 0
	for _, h := range res.History {
		if h.F1 > bestF1 {
			bestF1, bestEpoch = h.F1, h.Epoch
		}
	}
	assert.Equal(t, bestEpoch, res.Best.Epoch)
	assert.Equal(t, bestF1, res.Best.Metric)
	assert.LessOrEqual(t, len(res.Retained), 2)
	assert.Contains(t, res.Retained, res.Best)

	// the toy problem is separable by vocabulary
	assert.Greater(t, res.Best.Metric, 0.9)
	assert.Less(t, res.History[4].TrainLoss, res.History[0].TrainLoss)

	_, err = engine.Run(context.Background(), corpus, s)
	assert.Error(t, err)
}

func TestEngine_Reproducible(t *testing.T) {
	corpus, labels, s := toyData(t)

	run := func() *Result {
		engine, err := NewEngine(toyConfig(), newBackbone(), labels, WithSeed(7))
		require.NoError(t, err)
		res, err := engine.Run(context.Background(), corpus, s)
		require.NoError(t, err)
		return res
	}
	a, b := run(), run()
	assert.Equal(t, a.History, b.History)
	assert.True(t, mat.Equal(a.Best.Weights.Head, b.Best.Weights.Head))
}

func TestEngine_ScalesLearningRateByBackbone(t *testing.T) {
	c, labels, s := toyData(t)
	cfg := toyConfig()
	cfg.Epochs = 1
	cfg.LearningRate = 2e-5
	cfg.WarmupSteps = 0

	bb := newBackbone()
	bb.lrScale = 2500
	e, err := NewEngine(cfg, bb, labels)
	require.NoError(t, err)
	res, err := e.Run(context.Background(), c, s)
	require.NoError(t, err)

	// the last update of a decay-only schedule runs at peak/steps
	assert.InDelta(t, 0.05/float64(res.Steps), res.History[0].LearningRate, 1e-12)
}

func TestEngine_LongWarmupIsCapped(t *testing.T) {
	c, labels, s := toyData(t)
	cfg := toyConfig()
	cfg.WarmupSteps = 500

	e, err := NewEngine(cfg, newBackbone(), labels)
	require.NoError(t, err)
	res, err := e.Run(context.Background(), c, s)
	require.NoError(t, err)

	// past the capped warmup the rate decays to near zero by the end
	last := res.History[len(res.History)-1]
	first := res.History[0]
	assert.Less(t, last.LearningRate, first.LearningRate)
}

func TestEngine_DivergenceFails(t *testing.T) {
	corpus, labels, s := toyData(t)
	bb := newBackbone()
	bb.poison = true

	engine, err := NewEngine(toyConfig(), bb, labels)
	require.NoError(t, err)

	_, err = engine.Run(context.Background(), corpus, s)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrTrainingDiverged))
	assert.Equal(t, PhaseFailed, engine.State().Phase)
	assert.Nil(t, engine.Best())
}

func TestEngine_CancelIsCheckedBetweenEpochs(t *testing.T) {
	corpus, labels, s := toyData(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, err := NewEngine(toyConfig(), newBackbone(), labels, WithEpochCallback(func(m EpochMetrics) {
		if m.Epoch == 2 {
			cancel()
		}
	}))
	require.NoError(t, err)

	_, err = engine.Run(ctx, corpus, s)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, context.Canceled))
	assert.Equal(t, PhaseFailed, engine.State().Phase)
	// epoch 2 completed in full before cancellation was observed
	assert.Len(t, engine.History(), 2)
	assert.NotNil(t, engine.Best())
}

func checkpoint(t *testing.T, epoch int, f1 float64) *Checkpoint {
	t.Helper()
	w, err := classifier.New(mat.NewDense(4, 2, nil), 2, int64(epoch))
	require.NoError(t, err)
	return &Checkpoint{Epoch: epoch, Step: epoch * 10, Metric: f1, Weights: w}
}

func TestRetention_BestPlusRecent(t *testing.T) {
	dir := t.TempDir()
	r := retention{limit: 2, dir: dir}

	cps := []*Checkpoint{checkpoint(t, 1, 0.5), checkpoint(t, 2, 0.7), checkpoint(t, 3, 0.7), checkpoint(t, 4, 0.6)}
	for _, c := range cps {
		require.NoError(t, r.add(c))
	}

	// tie at 0.7 keeps the earliest
	assert.Equal(t, 2, r.best.Epoch)
	assert.Equal(t, []*Checkpoint{cps[1], cps[3]}, r.kept)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"checkpoint-20", "checkpoint-40"}, names)
	assert.FileExists(t, filepath.Join(dir, "checkpoint-20", "model.bin"))
	assert.FileExists(t, filepath.Join(dir, "checkpoint-40", "trainer_state.json"))
}

func TestRetention_LimitOneKeepsOnlyBest(t *testing.T) {
	r := retention{limit: 1}
	for i, f1 := range []float64{0.2, 0.9, 0.4} {
		require.NoError(t, r.add(checkpoint(t, i+1, f1)))
	}
	require.Len(t, r.kept, 1)
	assert.Equal(t, 2, r.kept[0].Epoch)
}

func TestLinearSchedule(t *testing.T) {
	s := linearSchedule{peak: 1, warmup: 4, total: 12}
	assert.Equal(t, 0.0, s.at(0))
	assert.Equal(t, 0.5, s.at(2))
	assert.Equal(t, 1.0, s.at(4))
	assert.Equal(t, 0.5, s.at(8))
	assert.Equal(t, 0.0, s.at(12))

	noWarmup := linearSchedule{peak: 2, total: 4}
	assert.Equal(t, 2.0, noWarmup.at(0))
	assert.Equal(t, 1.0, noWarmup.at(2))

	// a bare schedule with warmup longer than the run never leaves warmup
	long := linearSchedule{peak: 1, warmup: 100, total: 10}
	assert.InDelta(t, 0.09, long.at(9), 1e-12)
}

func TestNewLinearSchedule_CapsWarmup(t *testing.T) {
	s, capped := newLinearSchedule(0.05, 500, 284)
	assert.True(t, capped)
	assert.Equal(t, 28, s.warmup)
	assert.Equal(t, 284, s.total)
	assert.Greater(t, s.at(283), 0.0)
	assert.InDelta(t, 0.05, s.at(28), 1e-12)

	s, capped = newLinearSchedule(0.05, 10, 568)
	assert.False(t, capped)
	assert.Equal(t, 10, s.warmup)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Training(3)", State{Phase: PhaseTraining, Epoch: 3}.String())
	assert.Equal(t, "Finalized", State{Phase: PhaseFinalized}.String())
	assert.True(t, State{Phase: PhaseFailed}.Terminal())
}

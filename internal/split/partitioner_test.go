package split

import (
	stderrors "errors"
	"testing"

	"chatintent/domain/intent"
	"chatintent/internal/corpus"
	"chatintent/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultCorpus(t *testing.T) (*intent.Corpus, *intent.LabelSpace) {
	t.Helper()
	gen, err := corpus.NewGenerator(corpus.DefaultGeneratorConfig(), nil)
	require.NoError(t, err)
	c, err := gen.Generate()
	require.NoError(t, err)
	labels, err := intent.BuildLabelSpace(c)
	require.NoError(t, err)
	return c, labels
}

func tinyCorpus(t *testing.T, counts map[string]int) (*intent.Corpus, *intent.LabelSpace) {
	t.Helper()
	c := &intent.Corpus{}
	for name, n := range counts {
		for i := 0; i < n; i++ {
			require.NoError(t, c.Append(intent.Sample{Text: name + " text", Intent: name, UserType: intent.UserTypeCustomer}))
		}
	}
	labels, err := intent.BuildLabelSpace(c)
	require.NoError(t, err)
	return c, labels
}

func TestStratify_SizesAndCoverage(t *testing.T) {
	c, labels := defaultCorpus(t)

	s, err := Stratify(c, labels, 0.2, 42)
	require.NoError(t, err)

	assert.Equal(t, c.Len(), len(s.Train)+len(s.Eval))
	assert.InDelta(t, 0.2*float64(c.Len()), float64(len(s.Eval)), float64(labels.NumClasses()))

	seen := make(map[int]bool)
	for _, i := range append(append([]int{}, s.Train...), s.Eval...) {
		assert.False(t, seen[i], "index %d appears twice", i)
		seen[i] = true
	}
	assert.IsIncreasing(t, s.Train)
	assert.IsIncreasing(t, s.Eval)

	trainIntents := make(map[string]bool)
	for _, smp := range c.Subset(s.Train) {
		trainIntents[smp.Intent] = true
	}
	evalIntents := make(map[string]bool)
	for _, smp := range c.Subset(s.Eval) {
		evalIntents[smp.Intent] = true
	}
	for _, name := range labels.Intents() {
		assert.True(t, trainIntents[name], "%s missing from train", name)
		assert.True(t, evalIntents[name], "%s missing from eval", name)
	}

	// 130 list_restaurants samples -> 26 eval
	assert.Equal(t, ClassCut{Train: 104, Eval: 26}, s.Stats.PerClass["admin_list_restaurants"])
}

func TestStratify_Deterministic(t *testing.T) {
	c, labels := defaultCorpus(t)

	a, err := Stratify(c, labels, 0.2, 42)
	require.NoError(t, err)
	b, err := Stratify(c, labels, 0.2, 42)
	require.NoError(t, err)
	other, err := Stratify(c, labels, 0.2, 43)
	require.NoError(t, err)

	assert.Equal(t, a.Eval, b.Eval)
	assert.Equal(t, a.Train, b.Train)
	assert.NotEqual(t, a.Eval, other.Eval)
}

func TestStratify_ClampsTinyClasses(t *testing.T) {
	c, labels := tinyCorpus(t, map[string]int{"customer_a": 2, "customer_b": 3, "customer_c": 40})

	s, err := Stratify(c, labels, 0.1, 1)
	require.NoError(t, err)

	assert.Equal(t, ClassCut{Train: 1, Eval: 1}, s.Stats.PerClass["customer_a"])
	assert.Equal(t, ClassCut{Train: 2, Eval: 1}, s.Stats.PerClass["customer_b"])
	assert.Equal(t, ClassCut{Train: 36, Eval: 4}, s.Stats.PerClass["customer_c"])

	s, err = Stratify(c, labels, 0.9, 1)
	require.NoError(t, err)
	assert.Equal(t, ClassCut{Train: 1, Eval: 1}, s.Stats.PerClass["customer_a"])
	assert.Equal(t, ClassCut{Train: 1, Eval: 2}, s.Stats.PerClass["customer_b"])
}

func TestStratify_InsufficientDataNamesIntent(t *testing.T) {
	c, labels := tinyCorpus(t, map[string]int{"customer_lonely": 1, "customer_b": 5})

	_, err := Stratify(c, labels, 0.2, 42)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrInsufficientData))
	assert.Contains(t, err.Error(), "customer_lonely")
}

func TestStratify_RejectsFraction(t *testing.T) {
	c, labels := tinyCorpus(t, map[string]int{"customer_a": 5, "customer_b": 5})

	for _, f := range []float64{0, 1, -0.1, 1.5} {
		_, err := Stratify(c, labels, f, 42)
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrConfiguration))
	}
}

package classifier

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func randomWeights(t *testing.T, vocab, dim, classes int) *Weights {
	t.Helper()
	r := rand.New(rand.NewSource(3))
	data := make([]float64, vocab*dim)
	for i := range data {
		data[i] = r.NormFloat64() * 0.1
	}
	w, err := New(mat.NewDense(vocab, dim, data), classes, 9)
	require.NoError(t, err)
	return w
}

func TestSoftmax(t *testing.T) {
	p := Softmax([]float64{1000, 1000, 1000})
	assert.InDeltaSlice(t, []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}, p, 1e-12)

	p = Softmax([]float64{0, math.Log(3)})
	assert.InDelta(t, 0.25, p[0], 1e-12)
	assert.InDelta(t, 1.0, floats.Sum(p), 1e-12)
}

func TestCrossEntropyMatchesSoftmax(t *testing.T) {
	z := []float64{0.3, -1.2, 2.5}
	assert.InDelta(t, -math.Log(Softmax(z)[2]), CrossEntropy(z, 2), 1e-12)
}

func TestPredictTieGoesToLowestID(t *testing.T) {
	w := randomWeights(t, 10, 4, 3)
	w.Head.Zero()
	id, conf, _ := w.Predict([]int{1, 2})
	assert.Equal(t, 0, id)
	assert.InDelta(t, 1.0/3, conf, 1e-12)
}

func TestPoolEmptyIsZero(t *testing.T) {
	w := randomWeights(t, 10, 4, 3)
	assert.Equal(t, []float64{0, 0, 0, 0}, w.Pool(nil))
}

// Analytic gradients must agree with central finite differences.
func TestAccumulateMatchesFiniteDifferences(t *testing.T) {
	w := randomWeights(t, 12, 5, 4)
	tokens := []int{3, 7, 3, 11}
	label := 2

	g := NewGradients(w)
	w.Accumulate(g, tokens, label)

	const eps = 1e-6
	loss := func() float64 { return CrossEntropy(w.Logits(tokens), label) }

	for _, ij := range [][2]int{{0, 0}, {2, 4}, {3, 1}} {
		orig := w.Head.At(ij[0], ij[1])
		w.Head.Set(ij[0], ij[1], orig+eps)
		up := loss()
		w.Head.Set(ij[0], ij[1], orig-eps)
		down := loss()
		w.Head.Set(ij[0], ij[1], orig)
		assert.InDelta(t, (up-down)/(2*eps), g.Head.At(ij[0], ij[1]), 1e-6)
	}

	for c := 0; c < 4; c++ {
		orig := w.Bias.AtVec(c)
		w.Bias.SetVec(c, orig+eps)
		up := loss()
		w.Bias.SetVec(c, orig-eps)
		down := loss()
		w.Bias.SetVec(c, orig)
		assert.InDelta(t, (up-down)/(2*eps), g.Bias[c], 1e-6)
	}

	for _, tok := range []int{3, 7} {
		for d := 0; d < 5; d++ {
			orig := w.Embeddings.At(tok, d)
			w.Embeddings.Set(tok, d, orig+eps)
			up := loss()
			w.Embeddings.Set(tok, d, orig-eps)
			down := loss()
			w.Embeddings.Set(tok, d, orig)
			assert.InDelta(t, (up-down)/(2*eps), g.Embeddings[tok][d], 1e-6)
		}
	}
	_, untouched := g.Embeddings[5]
	assert.False(t, untouched)
}

func TestGradientsMean(t *testing.T) {
	w := randomWeights(t, 12, 5, 4)
	g := NewGradients(w)
	l1 := w.Accumulate(g, []int{1}, 0)
	l2 := w.Accumulate(g, []int{2}, 1)
	assert.InDelta(t, (l1+l2)/2, g.MeanLoss(), 1e-12)

	before := g.Bias[0]
	g.Mean()
	assert.InDelta(t, before/2, g.Bias[0], 1e-12)
}

func TestBinaryRoundTrip(t *testing.T) {
	w := randomWeights(t, 20, 6, 5)
	w.Bias.SetVec(2, 0.75)

	data, err := w.MarshalBinary()
	require.NoError(t, err)

	var got Weights
	require.NoError(t, got.UnmarshalBinary(data))
	assert.True(t, mat.Equal(w.Embeddings, got.Embeddings))
	assert.True(t, mat.Equal(w.Head, got.Head))
	assert.True(t, mat.Equal(w.Bias, got.Bias))

	assert.Error(t, got.UnmarshalBinary([]byte("nope")))
	assert.Error(t, got.UnmarshalBinary(data[:len(data)-3]))
}

func TestCloneIsDeep(t *testing.T) {
	w := randomWeights(t, 8, 3, 2)
	c := w.Clone()
	c.Head.Set(0, 0, 42)
	c.Embeddings.Set(0, 0, 42)
	assert.NotEqual(t, 42.0, w.Head.At(0, 0))
	assert.NotEqual(t, 42.0, w.Embeddings.At(0, 0))
}

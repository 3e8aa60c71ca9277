package classifier

import (
	"math"

	"chatintent/internal/errors"
	"chatintent/internal/rng"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Weights is a sequence classifier: mean-pooled token embeddings followed by
// a linear head and softmax.
type Weights struct {
	Embeddings *mat.Dense // vocab x dim
	Head       *mat.Dense // classes x dim
	Bias       *mat.VecDense
}

// headScale is the standard deviation of the freshly initialized head
const headScale = 0.02

// New starts from pretrained embeddings and a seeded random head. The
// embeddings matrix is owned by the returned weights.
func New(embeddings *mat.Dense, numClasses int, seed int64) (*Weights, error) {
	if embeddings == nil {
		return nil, errors.BackboneLoad(nil, "pretrained embeddings are missing")
	}
	if numClasses < 2 {
		return nil, errors.Configuration("classifier needs at least 2 classes, got %d", numClasses)
	}
	_, dim := embeddings.Dims()

	r := rng.Stream(seed, "head")
	head := make([]float64, numClasses*dim)
	for i := range head {
		head[i] = r.NormFloat64() * headScale
	}

	return &Weights{
		Embeddings: embeddings,
		Head:       mat.NewDense(numClasses, dim, head),
		Bias:       mat.NewVecDense(numClasses, nil),
	}, nil
}

func (w *Weights) NumClasses() int { return w.Bias.Len() }

func (w *Weights) Dim() int {
	_, c := w.Embeddings.Dims()
	return c
}

func (w *Weights) VocabSize() int {
	r, _ := w.Embeddings.Dims()
	return r
}

// Clone returns a deep copy.
func (w *Weights) Clone() *Weights {
	return &Weights{
		Embeddings: mat.DenseCopyOf(w.Embeddings),
		Head:       mat.DenseCopyOf(w.Head),
		Bias:       mat.VecDenseCopyOf(w.Bias),
	}
}

// Pool averages the embedding rows of tokens. No tokens pools to zero.
func (w *Weights) Pool(tokens []int) []float64 {
	h := make([]float64, w.Dim())
	if len(tokens) == 0 {
		return h
	}
	for _, t := range tokens {
		floats.Add(h, w.Embeddings.RawRowView(t))
	}
	floats.Scale(1/float64(len(tokens)), h)
	return h
}

// Logits returns the unnormalized class scores.
func (w *Weights) Logits(tokens []int) []float64 {
	h := mat.NewVecDense(w.Dim(), w.Pool(tokens))
	z := mat.NewVecDense(w.NumClasses(), nil)
	z.MulVec(w.Head, h)
	z.AddVec(z, w.Bias)
	return z.RawVector().Data
}

// Probabilities returns softmax(Logits(tokens)).
func (w *Weights) Probabilities(tokens []int) []float64 {
	return Softmax(w.Logits(tokens))
}

// Predict returns the most probable class and its probability. Ties go to
// the lowest class id.
func (w *Weights) Predict(tokens []int) (int, float64, []float64) {
	p := w.Probabilities(tokens)
	best := 0
	for i := 1; i < len(p); i++ {
		if p[i] > p[best] {
			best = i
		}
	}
	return best, p[best], p
}

// Softmax is numerically stable: the max logit is subtracted first.
func Softmax(z []float64) []float64 {
	p := make([]float64, len(z))
	if len(z) == 0 {
		return p
	}
	m := floats.Max(z)
	var sum float64
	for i, v := range z {
		p[i] = math.Exp(v - m)
		sum += p[i]
	}
	floats.Scale(1/sum, p)
	return p
}

// CrossEntropy is -log softmax(z)[label], computed with log-sum-exp.
func CrossEntropy(z []float64, label int) float64 {
	m := floats.Max(z)
	var sum float64
	for _, v := range z {
		sum += math.Exp(v - m)
	}
	return m + math.Log(sum) - z[label]
}

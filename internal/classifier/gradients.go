package classifier

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Gradients accumulates dLoss/dWeights over a mini-batch. Embedding
// gradients are sparse: only rows of tokens seen in the batch are present.
type Gradients struct {
	Embeddings map[int][]float64
	Head       *mat.Dense
	Bias       []float64
	Count      int
	Loss       float64
}

// NewGradients allocates zero gradients shaped like w.
func NewGradients(w *Weights) *Gradients {
	return &Gradients{
		Embeddings: make(map[int][]float64),
		Head:       mat.NewDense(w.NumClasses(), w.Dim(), nil),
		Bias:       make([]float64, w.NumClasses()),
	}
}

// Accumulate adds the cross-entropy gradient of one example and returns its loss.
//
//	dz = softmax(z) - onehot(label)
//	dHead += dz ⊗ h, dBias += dz
//	dE[t] += (Headᵀ dz) / T for every token position t
func (w *Weights) Accumulate(g *Gradients, tokens []int, label int) float64 {
	h := w.Pool(tokens)
	z := w.Logits(tokens)
	loss := CrossEntropy(z, label)

	dz := Softmax(z)
	dz[label]--

	dzVec := mat.NewVecDense(len(dz), dz)
	hVec := mat.NewVecDense(len(h), h)
	var outer mat.Dense
	outer.Outer(1, dzVec, hVec)
	g.Head.Add(g.Head, &outer)
	floats.Add(g.Bias, dz)

	if len(tokens) > 0 {
		dh := mat.NewVecDense(w.Dim(), nil)
		dh.MulVec(w.Head.T(), dzVec)
		dh.ScaleVec(1/float64(len(tokens)), dh)
		for _, t := range tokens {
			row, ok := g.Embeddings[t]
			if !ok {
				row = make([]float64, w.Dim())
				g.Embeddings[t] = row
			}
			floats.Add(row, dh.RawVector().Data)
		}
	}

	g.Count++
	g.Loss += loss
	return loss
}

// Mean divides accumulated gradients by the number of examples.
func (g *Gradients) Mean() {
	if g.Count == 0 {
		return
	}
	s := 1 / float64(g.Count)
	g.Head.Scale(s, g.Head)
	floats.Scale(s, g.Bias)
	for _, row := range g.Embeddings {
		floats.Scale(s, row)
	}
}

// MeanLoss is the average loss of the accumulated examples.
func (g *Gradients) MeanLoss() float64 {
	if g.Count == 0 {
		return 0
	}
	return g.Loss / float64(g.Count)
}

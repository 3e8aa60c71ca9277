package training

import (
	"math"

	"chatintent/internal/classifier"
)

// AdamW hyperparameters
const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

// adamW keeps first and second moment estimates for every parameter of a
// classifier. Weight decay is decoupled and skips the bias.
type adamW struct {
	weightDecay float64
	step        int

	mEmb, vEmb   []float64
	mHead, vHead []float64
	mBias, vBias []float64
}

func newAdamW(w *classifier.Weights, weightDecay float64) *adamW {
	emb := w.VocabSize() * w.Dim()
	head := w.NumClasses() * w.Dim()
	return &adamW{
		weightDecay: weightDecay,
		mEmb:        make([]float64, emb),
		vEmb:        make([]float64, emb),
		mHead:       make([]float64, head),
		vHead:       make([]float64, head),
		mBias:       make([]float64, w.NumClasses()),
		vBias:       make([]float64, w.NumClasses()),
	}
}

// apply performs one update of w with learning rate lr using mean gradients g.
func (o *adamW) apply(w *classifier.Weights, g *classifier.Gradients, lr float64) {
	o.step++
	c1 := 1 - math.Pow(adamBeta1, float64(o.step))
	c2 := 1 - math.Pow(adamBeta2, float64(o.step))

	dim := w.Dim()
	emb := w.Embeddings.RawMatrix()
	zero := make([]float64, dim)
	for row := 0; row < w.VocabSize(); row++ {
		grad, ok := g.Embeddings[row]
		if !ok {
			grad = zero
		}
		o.update(rowSlice(emb.Data, emb.Stride, row, dim), grad, o.mEmb[row*dim:(row+1)*dim], o.vEmb[row*dim:(row+1)*dim], lr, c1, c2, true)
	}

	head := w.Head.RawMatrix()
	gHead := g.Head.RawMatrix()
	for row := 0; row < w.NumClasses(); row++ {
		o.update(rowSlice(head.Data, head.Stride, row, dim), rowSlice(gHead.Data, gHead.Stride, row, dim),
			o.mHead[row*dim:(row+1)*dim], o.vHead[row*dim:(row+1)*dim], lr, c1, c2, true)
	}

	bias := w.Bias.RawVector()
	if bias.Inc == 1 {
		o.update(bias.Data[:w.NumClasses()], g.Bias, o.mBias, o.vBias, lr, c1, c2, false)
	} else {
		for i := 0; i < w.NumClasses(); i++ {
			p := []float64{w.Bias.AtVec(i)}
			o.update(p, g.Bias[i:i+1], o.mBias[i:i+1], o.vBias[i:i+1], lr, c1, c2, false)
			w.Bias.SetVec(i, p[0])
		}
	}
}

func (o *adamW) update(p, grad, m, v []float64, lr, c1, c2 float64, decay bool) {
	for i := range p {
		if decay && o.weightDecay != 0 {
			p[i] -= lr * o.weightDecay * p[i]
		}
		m[i] = adamBeta1*m[i] + (1-adamBeta1)*grad[i]
		v[i] = adamBeta2*v[i] + (1-adamBeta2)*grad[i]*grad[i]
		p[i] -= lr * (m[i] / c1) / (math.Sqrt(v[i]/c2) + adamEpsilon)
	}
}

func rowSlice(data []float64, stride, row, cols int) []float64 {
	return data[row*stride : row*stride+cols]
}

// warmupCapFraction is the share of a run used for warmup when the
// configured warmup would not end before the run does
const warmupCapFraction = 0.1

// newLinearSchedule reports capped when warmup had to be shortened.
func newLinearSchedule(peak float64, warmup, total int) (linearSchedule, bool) {
	if total > 0 && warmup >= total {
		return linearSchedule{peak: peak, warmup: int(float64(total) * warmupCapFraction), total: total}, true
	}
	return linearSchedule{peak: peak, warmup: warmup, total: total}, false
}

// linearSchedule is warmup from 0 to peak over warmup steps, then linear
// decay to 0 at total.
type linearSchedule struct {
	peak   float64
	warmup int
	total  int
}

// at returns the learning rate for the update with zero-based index step.
func (s linearSchedule) at(step int) float64 {
	if step < s.warmup {
		return s.peak * float64(step) / float64(s.warmup)
	}
	remaining := s.total - step
	span := s.total - s.warmup
	if remaining <= 0 || span <= 0 {
		return 0
	}
	return s.peak * float64(remaining) / float64(span)
}

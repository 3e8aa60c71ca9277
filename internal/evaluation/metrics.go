package evaluation

import (
	"chatintent/internal/errors"
)

// ClassMetrics holds one row of the per-class table
type ClassMetrics struct {
	Intent    string  `json:"intent"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Metrics is the outcome of comparing true and predicted class ids.
// Precision, Recall and F1 are support-weighted averages.
type Metrics struct {
	Accuracy       float64        `json:"accuracy"`
	Precision      float64        `json:"precision"`
	Recall         float64        `json:"recall"`
	F1             float64        `json:"f1"`
	MacroPrecision float64        `json:"macro_precision"`
	MacroRecall    float64        `json:"macro_recall"`
	MacroF1        float64        `json:"macro_f1"`
	Classes        []ClassMetrics `json:"classes"`
	Confusion      [][]int        `json:"confusion_matrix"` // [true][predicted]
	Support        int            `json:"support"`
}

// ComputeMetrics builds the confusion matrix and derived scores. Any ratio
// with a zero denominator is 0.
func ComputeMetrics(yTrue, yPred []int, numClasses int) (Metrics, error) {
	if len(yTrue) != len(yPred) {
		return Metrics{}, errors.InvalidInput("label count mismatch: %d true vs %d predicted", len(yTrue), len(yPred))
	}
	if numClasses < 1 {
		return Metrics{}, errors.InvalidInput("numClasses must be >= 1, got %d", numClasses)
	}

	confusion := make([][]int, numClasses)
	for i := range confusion {
		confusion[i] = make([]int, numClasses)
	}
	correct := 0
	for i := range yTrue {
		t, p := yTrue[i], yPred[i]
		if t < 0 || t >= numClasses || p < 0 || p >= numClasses {
			return Metrics{}, errors.InvalidInput("class id out of range at %d: true=%d predicted=%d", i, t, p)
		}
		confusion[t][p]++
		if t == p {
			correct++
		}
	}

	m := Metrics{
		Classes:   make([]ClassMetrics, numClasses),
		Confusion: confusion,
		Support:   len(yTrue),
	}
	m.Accuracy = ratio(correct, len(yTrue))

	for c := 0; c < numClasses; c++ {
		tp := confusion[c][c]
		support, predicted := 0, 0
		for k := 0; k < numClasses; k++ {
			support += confusion[c][k]
			predicted += confusion[k][c]
		}

		cm := ClassMetrics{
			Precision: ratio(tp, predicted),
			Recall:    ratio(tp, support),
			Support:   support,
		}
		if cm.Precision+cm.Recall > 0 {
			cm.F1 = 2 * cm.Precision * cm.Recall / (cm.Precision + cm.Recall)
		}
		m.Classes[c] = cm

		m.MacroPrecision += cm.Precision / float64(numClasses)
		m.MacroRecall += cm.Recall / float64(numClasses)
		m.MacroF1 += cm.F1 / float64(numClasses)

		if m.Support > 0 {
			w := float64(support) / float64(m.Support)
			m.Precision += w * cm.Precision
			m.Recall += w * cm.Recall
			m.F1 += w * cm.F1
		}
	}
	return m, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

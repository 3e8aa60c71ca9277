package evaluation

import (
	"fmt"
	"strings"

	"chatintent/domain/intent"
	"chatintent/internal/errors"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Predictor maps an utterance to a label id
type Predictor interface {
	PredictID(text string) (int, error)
}

// Report is the evaluation of one model on one sample set, with classes in
// label id order.
type Report struct {
	Metrics
	Intents []string `json:"intents"`
}

// Evaluate runs predictor over samples and scores it against their labels.
func Evaluate(predictor Predictor, samples []intent.Sample, labels *intent.LabelSpace) (*Report, error) {
	yTrue := make([]int, len(samples))
	yPred := make([]int, len(samples))
	for i, s := range samples {
		id, ok := labels.ID(s.Intent)
		if !ok {
			return nil, errors.InvalidInput("sample %d has intent %q outside the label space", i, s.Intent)
		}
		pred, err := predictor.PredictID(s.Text)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to predict sample %d", i)
		}
		yTrue[i], yPred[i] = id, pred
	}
	return NewReport(yTrue, yPred, labels)
}

// NewReport scores precomputed predictions.
func NewReport(yTrue, yPred []int, labels *intent.LabelSpace) (*Report, error) {
	m, err := ComputeMetrics(yTrue, yPred, labels.NumClasses())
	if err != nil {
		return nil, err
	}
	names := labels.Intents()
	for i := range m.Classes {
		m.Classes[i].Intent = names[i]
	}
	return &Report{Metrics: m, Intents: names}, nil
}

func (r *Report) nameWidth() int {
	width := len("weighted avg")
	for _, name := range r.Intents {
		if len(name) > width {
			width = len(name)
		}
	}
	return width
}

// Text renders the per-class table followed by accuracy, macro and weighted
// average rows.
func (r *Report) Text() string {
	var b strings.Builder
	w := r.nameWidth()

	fmt.Fprintf(&b, "%*s  %9s %9s %9s %9s\n\n", w, "", "precision", "recall", "f1-score", "support")
	for _, c := range r.Classes {
		fmt.Fprintf(&b, "%*s  %9.2f %9.2f %9.2f %9d\n", w, c.Intent, c.Precision, c.Recall, c.F1, c.Support)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s  %9s %9s %9.2f %9d\n", w, "accuracy", "", "", r.Accuracy, r.Support)
	fmt.Fprintf(&b, "%*s  %9.2f %9.2f %9.2f %9d\n", w, "macro avg", r.MacroPrecision, r.MacroRecall, r.MacroF1, r.Support)
	fmt.Fprintf(&b, "%*s  %9.2f %9.2f %9.2f %9d\n", w, "weighted avg", r.Precision, r.Recall, r.F1, r.Support)
	return b.String()
}

// Markdown renders the per-class table and the confusion matrix.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("# Classification report\n\n")
	fmt.Fprintf(&b, "Accuracy **%.4f**, weighted F1 **%.4f** over %d samples.\n\n", r.Accuracy, r.F1, r.Support)

	b.WriteString("| intent | precision | recall | f1-score | support |\n")
	b.WriteString("|---|---:|---:|---:|---:|\n")
	for _, c := range r.Classes {
		fmt.Fprintf(&b, "| %s | %.4f | %.4f | %.4f | %d |\n", c.Intent, c.Precision, c.Recall, c.F1, c.Support)
	}
	fmt.Fprintf(&b, "| macro avg | %.4f | %.4f | %.4f | %d |\n", r.MacroPrecision, r.MacroRecall, r.MacroF1, r.Support)
	fmt.Fprintf(&b, "| weighted avg | %.4f | %.4f | %.4f | %d |\n", r.Precision, r.Recall, r.F1, r.Support)

	b.WriteString("\n## Confusion matrix\n\nRows are true intents, columns predicted, in the same order.\n\n")
	b.WriteString("| |")
	for i := range r.Intents {
		fmt.Fprintf(&b, " %d |", i)
	}
	b.WriteString("\n|---|")
	for range r.Intents {
		b.WriteString("---:|")
	}
	b.WriteString("\n")
	for i, row := range r.Confusion {
		fmt.Fprintf(&b, "| %d %s |", i, r.Intents[i])
		for _, n := range row {
			fmt.Fprintf(&b, " %d |", n)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// HTML renders Markdown() as a standalone page.
func (r *Report) HTML() []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	doc := p.Parse([]byte(r.Markdown()))
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: "Classification report",
	})
	return markdown.Render(doc, renderer)
}

package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"chatintent/domain/intent"
	"chatintent/domain/run"
	"chatintent/internal"
	"chatintent/internal/classifier"
	"chatintent/internal/errors"
	"chatintent/internal/evaluation"
	"chatintent/internal/training"
	"chatintent/ports"
)

// Bundle file names
const (
	FileWeights      = "model.bin"
	FileModelConfig  = "model_config.json"
	FileConfig       = "config.json"
	FileTokenizer    = "tokenizer_config.json"
	FileReportText   = "classification_report.txt"
	FileReportHTML   = "classification_report.html"
	FileEvaluation   = "evaluation.json"
	FileManifest     = "run_manifest.json"
	FileHistory      = "history.json"
	FileTestResults  = "test_results.txt"
	architectureName = "MeanPoolSequenceClassifier"
)

// SmokePhrases are scored after packaging and written to test_results.txt.
var SmokePhrases = []string{
	"Show me all restaurants",
	"I want to order pizza",
	"What's in my cart?",
	"Add burger to cart",
	"Update order status",
	"Find Italian food",
	"Show my past orders",
	"Where is my order?",
	"Go to home page",
	"Delete restaurant Pizza Palace",
}

// Input is everything a finalized run hands to the packager
type Input struct {
	Weights   *classifier.Weights
	Labels    *intent.LabelSpace
	Tokenizer ports.TokenizerConfig // MaxLength must be the training max_sequence_length
	Report    *evaluation.Report
	History   []training.EpochMetrics
	Manifest  *run.Manifest
	BestEpoch int
}

// modelConfig is config.json: architecture and label maps
type modelConfig struct {
	Architectures         []string          `json:"architectures"`
	Backbone              string            `json:"backbone"`
	HiddenSize            int               `json:"hidden_size"`
	VocabSize             int               `json:"vocab_size"`
	MaxPositionEmbeddings int               `json:"max_position_embeddings"`
	NumLabels             int               `json:"num_labels"`
	ID2Label              map[string]string `json:"id2label"`
	Label2ID              map[string]int    `json:"label2id"`
	ProblemType           string            `json:"problem_type"`
	BestEpoch             int               `json:"best_epoch,omitempty"`
}

// Packager writes model bundles
type Packager struct {
	logger *internal.Logger
}

// NewPackager creates a packager
func NewPackager(logger *internal.Logger) *Packager {
	return &Packager{logger: logger.Named("ArtifactPackager")}
}

// Package writes a self-contained bundle into dir. The bundle alone is
// enough to rebuild a scorer.
func (p *Packager) Package(dir string, in Input) error {
	if in.Weights == nil || in.Labels == nil {
		return errors.Configuration("bundle needs weights and a label space")
	}
	if in.Tokenizer.MaxLength < 1 {
		return errors.Configuration("tokenizer max length must be set, got %d", in.Tokenizer.MaxLength)
	}
	if in.Weights.NumClasses() != in.Labels.NumClasses() {
		return errors.Configuration("weights have %d classes but the label space has %d", in.Weights.NumClasses(), in.Labels.NumClasses())
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create bundle directory %s", dir)
	}

	blob, err := in.Weights.MarshalBinary()
	if err != nil {
		return err
	}
	if err := writeFile(dir, FileWeights, blob); err != nil {
		return err
	}

	cfg := modelConfig{
		Architectures:         []string{architectureName},
		Backbone:              in.Tokenizer.BackboneName,
		HiddenSize:            in.Weights.Dim(),
		VocabSize:             in.Weights.VocabSize(),
		MaxPositionEmbeddings: in.Tokenizer.MaxPositions,
		NumLabels:             in.Labels.NumClasses(),
		ID2Label:              in.Labels.IDToIntent(),
		Label2ID:              in.Labels.IntentToID(),
		ProblemType:           "single_label_classification",
		BestEpoch:             in.BestEpoch,
	}
	files := []namedValue{
		{FileConfig, cfg},
		{FileModelConfig, in.Labels},
		{FileTokenizer, in.Tokenizer},
	}
	if in.Report != nil {
		files = append(files, namedValue{FileEvaluation, in.Report})
	}
	if in.Manifest != nil {
		files = append(files, namedValue{FileManifest, in.Manifest})
	}
	if in.History != nil {
		files = append(files, namedValue{FileHistory, in.History})
	}
	for _, f := range files {
		if err := writeJSON(dir, f.name, f.value); err != nil {
			return err
		}
	}

	if in.Report != nil {
		if err := writeFile(dir, FileReportText, []byte(in.Report.Text())); err != nil {
			return err
		}
		if err := writeFile(dir, FileReportHTML, in.Report.HTML()); err != nil {
			return err
		}
	}

	if err := p.writeSmokeResults(dir); err != nil {
		return err
	}

	p.logger.Info("bundle written to %s (%d classes)", dir, in.Labels.NumClasses())
	return nil
}

// writeSmokeResults reloads the bundle just written and scores SmokePhrases
// with it, so the file also proves the bundle is loadable.
func (p *Packager) writeSmokeResults(dir string) error {
	bundle, err := Load(dir)
	if err != nil {
		return errors.Wrap(err, "bundle failed to reload")
	}
	scorer, err := bundle.Scorer()
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("Model Test Results:\n")
	b.WriteString(strings.Repeat("=", 50) + "\n")
	for _, phrase := range SmokePhrases {
		pred, err := scorer.Score(phrase)
		if err != nil {
			fmt.Fprintf(&b, "Error predicting for '%s': %v\n", phrase, err)
			continue
		}
		fmt.Fprintf(&b, "Text: '%s' -> Intent: %s (Confidence: %.4f)\n", phrase, pred.Intent, pred.Confidence)
	}
	return writeFile(dir, FileTestResults, []byte(b.String()))
}

type namedValue struct {
	name  string
	value interface{}
}

func writeJSON(dir, name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", name)
	}
	return writeFile(dir, name, data)
}

func writeFile(dir, name string, data []byte) error {
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", name)
	}
	return nil
}

package artifact

import (
	"archive/zip"
	"encoding/json"
	stderrors "errors"
	"io/fs"
	"os"

	"chatintent/domain/core"
	"chatintent/domain/intent"
	"chatintent/domain/run"
	"chatintent/internal/backbone"
	"chatintent/internal/classifier"
	"chatintent/internal/errors"
	"chatintent/internal/evaluation"
	"chatintent/internal/inference"
	"chatintent/internal/training"
	"chatintent/ports"
)

// Bundle is a loaded model package
type Bundle struct {
	Weights   *classifier.Weights
	Labels    *intent.LabelSpace
	Tokenizer ports.TokenizerConfig
	Backbone  ports.Backbone

	// Present when the bundle was written by a full training run
	Report   *evaluation.Report
	Manifest *run.Manifest
	History  []training.EpochMetrics

	weightsHash core.Hash
}

// Load reads a bundle directory. There is no fallback: a missing or
// corrupt required file is an error.
func Load(dir string) (*Bundle, error) {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, errors.Configuration("bundle directory %s does not exist", dir)
	}
	return LoadFS(os.DirFS(dir))
}

// LoadArchive reads a bundle zip written by Archive.
func LoadArchive(path string) (*Bundle, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.Wrapf(errors.WithCode(errors.CodeConfiguration, err), "failed to open bundle archive %s", path)
	}
	defer zr.Close()
	return LoadFS(zr)
}

// LoadFS reads a bundle from any file system rooted at the bundle.
func LoadFS(fsys fs.FS) (*Bundle, error) {
	b := &Bundle{Labels: &intent.LabelSpace{}}

	if err := readJSON(fsys, FileModelConfig, b.Labels, true); err != nil {
		return nil, err
	}
	if err := readJSON(fsys, FileTokenizer, &b.Tokenizer, true); err != nil {
		return nil, err
	}

	blob, err := fs.ReadFile(fsys, FileWeights)
	if err != nil {
		return nil, errors.Wrapf(errors.WithCode(errors.CodeConfiguration, err), "bundle is missing %s", FileWeights)
	}
	b.weightsHash = core.NewHash(blob)
	b.Weights = &classifier.Weights{}
	if err := b.Weights.UnmarshalBinary(blob); err != nil {
		return nil, err
	}

	b.Backbone, err = backbone.FromTokenizerConfig(b.Tokenizer)
	if err != nil {
		return nil, err
	}
	if b.Weights.NumClasses() != b.Labels.NumClasses() {
		return nil, errors.Configuration("bundle weights have %d classes but model_config lists %d intents",
			b.Weights.NumClasses(), b.Labels.NumClasses())
	}

	var report evaluation.Report
	if err := readJSON(fsys, FileEvaluation, &report, false); err != nil {
		return nil, err
	}
	if report.Intents != nil {
		b.Report = &report
	}
	var manifest run.Manifest
	if err := readJSON(fsys, FileManifest, &manifest, false); err != nil {
		return nil, err
	}
	if manifest.RunID != "" {
		b.Manifest = &manifest
	}
	if err := readJSON(fsys, FileHistory, &b.History, false); err != nil {
		return nil, err
	}
	return b, nil
}

// Scorer rebuilds an inference scorer from the bundle alone.
func (b *Bundle) Scorer(opts ...inference.ScorerOption) (*inference.Scorer, error) {
	return inference.NewScorer(b.Weights, b.Labels, b.Backbone, b.Tokenizer.MaxLength, opts...)
}

// Fingerprint returns the run fingerprint, or the weights hash for bundles
// without a manifest.
func (b *Bundle) Fingerprint() string {
	if b.Manifest != nil {
		return b.Manifest.Fingerprint.Fingerprint.String()
	}
	return b.weightsHash.String()
}

func readJSON(fsys fs.FS, name string, v interface{}, required bool) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		if !required && stderrors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return errors.Wrapf(errors.WithCode(errors.CodeConfiguration, err), "bundle is missing %s", name)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(errors.WithCode(errors.CodeConfiguration, err), "bundle file %s is corrupt", name)
	}
	return nil
}

package app

import (
	"context"
	"encoding/json"
	"path/filepath"
	"time"

	"chatintent/adapters/tabular"
	"chatintent/domain/core"
	"chatintent/domain/intent"
	"chatintent/domain/run"
	"chatintent/internal"
	"chatintent/internal/artifact"
	"chatintent/internal/backbone"
	"chatintent/internal/config"
	"chatintent/internal/corpus"
	"chatintent/internal/errors"
	"chatintent/internal/evaluation"
	"chatintent/internal/inference"
	"chatintent/internal/split"
	"chatintent/internal/telemetry"
	"chatintent/internal/training"
	"chatintent/ports"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// TrainingService runs the full pipeline: corpus, label space, split,
// training, evaluation, packaging and run registration.
type TrainingService struct {
	cfg    *config.Config
	runs   ports.RunRepository // optional
	logger *internal.Logger
}

// NewTrainingService creates a training service. runs may be nil when no
// registry is configured.
func NewTrainingService(cfg *config.Config, runs ports.RunRepository, logger *internal.Logger) *TrainingService {
	return &TrainingService{cfg: cfg, runs: runs, logger: logger.Named("TrainingService")}
}

// TrainingOutcome is everything a finished pipeline produced
type TrainingOutcome struct {
	Manifest    *run.Manifest
	Corpus      corpus.Summary
	Labels      *intent.LabelSpace
	Split       split.Stats
	Result      *training.Result
	Report      *evaluation.Report
	BundleDir   string
	ArchivePath string
	Duration    time.Duration
}

// BuildCorpus returns the input corpus: the configured file when set,
// otherwise the synthetic corpus from the taxonomy.
func (s *TrainingService) BuildCorpus() (*intent.Corpus, error) {
	cc := s.cfg.Corpus
	if cc.InputFile != "" {
		reader, err := tabular.NewCorpusReader(cc.InputFile, s.logger)
		if err != nil {
			return nil, err
		}
		return reader.Read()
	}

	var taxonomy intent.Taxonomy
	if cc.TaxonomyFile != "" {
		t, err := corpus.LoadTaxonomy(cc.TaxonomyFile)
		if err != nil {
			return nil, err
		}
		taxonomy = t
	} else {
		// Repeat factors from config only apply to the built-in taxonomy;
		// taxonomy files carry their own.
		taxonomy = corpus.DefaultTaxonomy().
			WithRepeat(intent.UserTypeAdmin, cc.AdminRepeat).
			WithRepeat(intent.UserTypeCustomer, cc.CustomerRepeat)
	}

	gen, err := corpus.NewGenerator(corpus.GeneratorConfig{
		Taxonomy:         taxonomy,
		SamplesPerIntent: cc.SamplesPerIntent,
		Augment: corpus.AugmentConfig{
			Enabled:           cc.Augment.Enabled,
			Seed:              s.cfg.RandomSeed,
			VariantsPerIntent: cc.Augment.VariantsPerIntent,
		},
	}, s.logger)
	if err != nil {
		return nil, err
	}
	return gen.Generate()
}

// ConfigHash hashes every option that influences the trained weights.
func ConfigHash(cfg *config.Config) (core.Hash, error) {
	data, err := json.Marshal(struct {
		Corpus   config.CorpusConfig   `json:"corpus"`
		Split    config.SplitConfig    `json:"split"`
		Training config.TrainingConfig `json:"training"`
		Backbone config.BackboneConfig `json:"backbone"`
	}{cfg.Corpus, cfg.Split, cfg.Training, cfg.Backbone})
	if err != nil {
		return "", errors.Wrap(err, "failed to encode configuration")
	}
	return core.NewHash(data), nil
}

// stage runs fn inside a span named after the pipeline stage.
func stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := telemetry.Tracer().Start(ctx, name)
	defer span.End()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// Run executes the pipeline once. The run is registered before training and
// its outcome recorded whether or not training succeeds.
func (s *TrainingService) Run(ctx context.Context) (*TrainingOutcome, error) {
	started := time.Now()
	out := &TrainingOutcome{BundleDir: s.cfg.Output.Dir}

	ctx, root := telemetry.Tracer().Start(ctx, "pipeline")
	defer root.End()

	var samples *intent.Corpus
	err := stage(ctx, "generate", func(ctx context.Context) error {
		c, err := s.BuildCorpus()
		if err != nil {
			return err
		}
		samples = c
		out.Corpus, err = corpus.Summarize(c)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("corpus: %d samples, %d intents (min %.0f, max %.0f per intent)",
		out.Corpus.Total, out.Corpus.Intents, out.Corpus.Min, out.Corpus.Max)

	err = stage(ctx, "label_space", func(ctx context.Context) error {
		var err error
		out.Labels, err = intent.BuildLabelSpace(samples)
		return err
	})
	if err != nil {
		return nil, err
	}

	var parts *split.Split
	err = stage(ctx, "split", func(ctx context.Context) error {
		var err error
		parts, err = split.Stratify(samples, out.Labels, s.cfg.Split.Fraction, s.cfg.RandomSeed)
		return err
	})
	if err != nil {
		return nil, err
	}
	out.Split = parts.Stats
	s.logger.Info("split: %d train / %d eval", parts.Stats.TrainSize, parts.Stats.EvalSize)

	configHash, err := ConfigHash(s.cfg)
	if err != nil {
		return nil, err
	}
	fp := run.NewFingerprint(samples.Hash(), out.Labels.Hash(), configHash, s.cfg.RandomSeed, run.CodeVersion)
	out.Manifest = run.NewManifest(core.NewRunID(), fp)
	root.SetAttributes(
		attribute.String("run.id", out.Manifest.RunID.String()),
		attribute.String("run.fingerprint", fp.Fingerprint.Short()),
	)
	if s.runs != nil {
		if err := s.runs.Create(ctx, out.Manifest); err != nil {
			return nil, errors.Wrap(err, "failed to register run")
		}
	}

	if err := s.train(ctx, samples, parts, out); err != nil {
		s.finish(ctx, out, err)
		return nil, err
	}

	if err := stage(ctx, "record", func(ctx context.Context) error { return s.finish(ctx, out, nil) }); err != nil {
		return nil, err
	}
	out.Duration = time.Since(started)
	s.logger.Info("run %s finished in %s: accuracy %.4f, weighted F1 %.4f",
		out.Manifest.RunID, out.Duration.Round(time.Millisecond), out.Report.Accuracy, out.Report.F1)
	return out, nil
}

func (s *TrainingService) train(ctx context.Context, samples *intent.Corpus, parts *split.Split, out *TrainingOutcome) error {
	bb, err := backbone.Load(s.cfg.Backbone)
	if err != nil {
		return err
	}

	err = stage(ctx, "train", func(ctx context.Context) error {
		engine, err := training.NewEngine(s.cfg.Training, bb, out.Labels,
			training.WithSeed(s.cfg.RandomSeed),
			training.WithLogger(s.logger),
			training.WithEpochCallback(func(m training.EpochMetrics) {
				s.logger.Info("epoch %d: train_loss=%.4f eval_loss=%.4f accuracy=%.4f f1=%.4f",
					m.Epoch, m.TrainLoss, m.EvalLoss, m.Accuracy, m.F1)
			}))
		if err != nil {
			return err
		}
		out.Result, err = engine.Run(ctx, samples, parts)
		return err
	})
	if err != nil {
		return err
	}

	var scorer *inference.Scorer
	err = stage(ctx, "evaluate", func(ctx context.Context) error {
		var err error
		scorer, err = inference.NewScorer(out.Result.Best.Weights, out.Labels, bb, s.cfg.Training.MaxSequenceLength)
		if err != nil {
			return err
		}
		out.Report, err = evaluation.Evaluate(scorer, samples.Subset(parts.Eval), out.Labels)
		return err
	})
	if err != nil {
		return err
	}

	err = stage(ctx, "package", func(ctx context.Context) error {
		tc := bb.TokenizerConfig()
		tc.MaxLength = s.cfg.Training.MaxSequenceLength
		return artifact.NewPackager(s.logger).Package(out.BundleDir, artifact.Input{
			Weights:   out.Result.Best.Weights,
			Labels:    out.Labels,
			Tokenizer: tc,
			Report:    out.Report,
			History:   out.Result.History,
			Manifest:  out.Manifest,
			BestEpoch: out.Result.Best.Epoch,
		})
	})
	if err != nil {
		return err
	}

	if !s.cfg.Output.Archive {
		return nil
	}
	return stage(ctx, "archive", func(ctx context.Context) error {
		out.ArchivePath = filepath.Clean(out.BundleDir) + "_complete.zip"
		return artifact.Archive(out.BundleDir, out.ArchivePath)
	})
}

// finish records the outcome in the registry. A failed run is recorded on a
// best-effort basis so the original error is the one returned.
func (s *TrainingService) finish(ctx context.Context, out *TrainingOutcome, runErr error) error {
	if s.runs == nil {
		return nil
	}
	runID := out.Manifest.RunID

	if runErr != nil {
		if err := s.runs.Finish(context.WithoutCancel(ctx), runID, run.Outcome{Status: run.StatusFailed, Error: runErr.Error()}); err != nil {
			s.logger.Warn("failed to record failure of run %s: %v", runID, err)
		}
		return nil
	}

	epochs := make([]run.Epoch, len(out.Result.History))
	for i, m := range out.Result.History {
		epochs[i] = run.Epoch{
			Epoch: m.Epoch, Step: m.Step, TrainLoss: m.TrainLoss, EvalLoss: m.EvalLoss,
			Accuracy: m.Accuracy, F1: m.F1, LearningRate: m.LearningRate,
		}
	}
	if err := s.runs.AddEpochs(ctx, runID, epochs); err != nil {
		return err
	}
	return s.runs.Finish(ctx, runID, run.Outcome{
		Status:    run.StatusSucceeded,
		BestEpoch: out.Result.Best.Epoch,
		Accuracy:  out.Report.Accuracy,
		F1:        out.Report.F1,
		BundleDir: out.BundleDir,
	})
}

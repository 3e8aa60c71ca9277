package training

import (
	"context"
	"math"
	"sync"

	"chatintent/domain/intent"
	"chatintent/internal"
	"chatintent/internal/classifier"
	"chatintent/internal/config"
	"chatintent/internal/errors"
	"chatintent/internal/evaluation"
	"chatintent/internal/rng"
	"chatintent/internal/split"
	"chatintent/ports"
)

// EpochMetrics is one row of the training history
type EpochMetrics struct {
	Epoch        int     `json:"epoch"`
	Step         int     `json:"step"`
	TrainLoss    float64 `json:"train_loss"`
	EvalLoss     float64 `json:"eval_loss"`
	Accuracy     float64 `json:"eval_accuracy"`
	Precision    float64 `json:"eval_precision"`
	Recall       float64 `json:"eval_recall"`
	F1           float64 `json:"eval_f1"`
	LearningRate float64 `json:"learning_rate"`
}

// Result is what a finalized engine hands to evaluation and packaging
type Result struct {
	Best     *Checkpoint    `json:"best"`
	Retained []*Checkpoint  `json:"retained"`
	History  []EpochMetrics `json:"history"`
	Steps    int            `json:"steps"`
}

// Engine fine-tunes a classifier on top of a backbone. It owns its training
// history and best-checkpoint pointer; nothing else mutates them.
type Engine struct {
	cfg      config.TrainingConfig
	backbone ports.Backbone
	labels   *intent.LabelSpace
	seed     int64
	lrScale  float64
	logger   *internal.Logger
	onEpoch  func(EpochMetrics)

	mu        sync.RWMutex
	state     State
	history   []EpochMetrics
	retention retention
}

// Option configures an Engine
type Option func(*Engine)

// WithSeed sets the seed for head initialization and batch shuffling.
func WithSeed(seed int64) Option {
	return func(e *Engine) { e.seed = seed }
}

// WithLogger sets the engine logger.
func WithLogger(logger *internal.Logger) Option {
	return func(e *Engine) { e.logger = logger.Named("TrainingEngine") }
}

// WithEpochCallback is invoked after every evaluated epoch.
func WithEpochCallback(fn func(EpochMetrics)) Option {
	return func(e *Engine) { e.onEpoch = fn }
}

// NewEngine validates the configuration and the backbone before any work starts.
func NewEngine(cfg config.TrainingConfig, backbone ports.Backbone, labels *intent.LabelSpace, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if backbone == nil {
		return nil, errors.BackboneLoad(nil, "no backbone configured")
	}
	if cfg.MaxSequenceLength > backbone.MaxPositions() {
		return nil, errors.BackboneLoad(nil, "max_sequence_length %d exceeds what backbone %s supports (%d positions)",
			cfg.MaxSequenceLength, backbone.Name(), backbone.MaxPositions())
	}
	if labels == nil || labels.NumClasses() < 2 {
		return nil, errors.Configuration("label space must have at least 2 intents")
	}

	lrScale := backbone.TokenizerConfig().LearningRateScale
	if lrScale <= 0 {
		lrScale = 1
	}

	e := &Engine{
		cfg:       cfg,
		backbone:  backbone,
		labels:    labels,
		lrScale:   lrScale,
		logger:    internal.DefaultLogger.Named("TrainingEngine"),
		state:     State{Phase: PhaseInitialized},
		retention: retention{limit: cfg.CheckpointLimit, dir: cfg.CheckpointDir},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// History returns a copy of the per-epoch metrics so far.
func (e *Engine) History() []EpochMetrics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]EpochMetrics, len(e.history))
	copy(out, e.history)
	return out
}

// Best returns the best checkpoint so far, or nil before the first epoch ends.
func (e *Engine) Best() *Checkpoint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.retention.best
}

func (e *Engine) setState(phase Phase, epoch int) {
	e.mu.Lock()
	e.state = State{Phase: phase, Epoch: epoch}
	e.mu.Unlock()
}

func (e *Engine) fail(err error) error {
	e.setState(PhaseFailed, 0)
	e.logger.Error("training failed: %v", err)
	return err
}

type encoded struct {
	tokens [][]int
	labels []int
}

func (e *Engine) encode(samples []intent.Sample) (encoded, error) {
	out := encoded{tokens: make([][]int, len(samples)), labels: make([]int, len(samples))}
	for i, s := range samples {
		id, ok := e.labels.ID(s.Intent)
		if !ok {
			return out, errors.Configuration("intent %q is not in the label space", s.Intent)
		}
		tokens, err := e.backbone.Encode(s.Text, e.cfg.MaxSequenceLength)
		if err != nil {
			return out, errors.BackboneLoad(err, "failed to tokenize %q", s.Text)
		}
		out.tokens[i], out.labels[i] = tokens, id
	}
	return out, nil
}

// Run trains for the configured number of epochs. Each epoch is atomic: ctx
// is checked only between epochs, and the best pointer only moves after an
// epoch's evaluation. The engine can run once.
func (e *Engine) Run(ctx context.Context, corpus *intent.Corpus, s *split.Split) (*Result, error) {
	if st := e.State(); st.Phase != PhaseInitialized {
		return nil, errors.InternalError("engine already ran (state " + st.String() + ")")
	}
	if len(s.Train) == 0 || len(s.Eval) == 0 {
		return nil, e.fail(errors.InsufficientData("train and eval sets must both be non-empty (train=%d, eval=%d)", len(s.Train), len(s.Eval)))
	}

	train, err := e.encode(corpus.Subset(s.Train))
	if err != nil {
		return nil, e.fail(err)
	}
	eval, err := e.encode(corpus.Subset(s.Eval))
	if err != nil {
		return nil, e.fail(err)
	}

	weights, err := classifier.New(e.backbone.PretrainedEmbeddings(), e.labels.NumClasses(), e.seed)
	if err != nil {
		return nil, e.fail(err)
	}
	optimizer := newAdamW(weights, e.cfg.WeightDecay)

	stepsPerEpoch := (len(train.labels) + e.cfg.BatchSize - 1) / e.cfg.BatchSize
	schedule, capped := newLinearSchedule(e.cfg.LearningRate*e.lrScale, e.cfg.WarmupSteps, stepsPerEpoch*e.cfg.Epochs)
	if capped {
		e.logger.Warn("warmup_steps %d covers all %d steps; warming up over the first %d instead",
			e.cfg.WarmupSteps, schedule.total, schedule.warmup)
	}
	shuffle := rng.Stream(e.seed, "shuffle")
	order := make([]int, len(train.labels))
	for i := range order {
		order[i] = i
	}

	e.logger.Info("training %d epochs, %d steps/epoch, %d train / %d eval samples, %d classes, peak lr %.2e",
		e.cfg.Epochs, stepsPerEpoch, len(train.labels), len(eval.labels), e.labels.NumClasses(), schedule.peak)

	step := 0
	for epoch := 1; epoch <= e.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, e.fail(errors.Wrapf(err, "training cancelled before epoch %d", epoch))
		}

		e.setState(PhaseTraining, epoch)
		shuffle.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var epochLoss float64
		var lr float64
		for start := 0; start < len(order); start += e.cfg.BatchSize {
			end := start + e.cfg.BatchSize
			if end > len(order) {
				end = len(order)
			}

			grads := classifier.NewGradients(weights)
			for _, idx := range order[start:end] {
				weights.Accumulate(grads, train.tokens[idx], train.labels[idx])
			}
			loss := grads.MeanLoss()
			if math.IsNaN(loss) || math.IsInf(loss, 0) {
				return nil, e.fail(errors.TrainingDiverged("loss became %v at epoch %d step %d", loss, epoch, step+1))
			}
			grads.Mean()

			lr = schedule.at(step)
			optimizer.apply(weights, grads, lr)
			step++
			epochLoss += loss * float64(end-start)
		}

		e.setState(PhaseEvaluating, epoch)
		metrics, evalLoss, err := e.evaluate(weights, eval)
		if err != nil {
			return nil, e.fail(err)
		}
		if math.IsNaN(evalLoss) || math.IsInf(evalLoss, 0) {
			return nil, e.fail(errors.TrainingDiverged("eval loss became %v at epoch %d", evalLoss, epoch))
		}

		row := EpochMetrics{
			Epoch:        epoch,
			Step:         step,
			TrainLoss:    epochLoss / float64(len(order)),
			EvalLoss:     evalLoss,
			Accuracy:     metrics.Accuracy,
			Precision:    metrics.Precision,
			Recall:       metrics.Recall,
			F1:           metrics.F1,
			LearningRate: lr,
		}

		e.mu.Lock()
		e.history = append(e.history, row)
		err = e.retention.add(&Checkpoint{Epoch: epoch, Step: step, Metric: metrics.F1, Weights: weights.Clone()})
		e.mu.Unlock()
		if err != nil {
			return nil, e.fail(err)
		}

		e.logger.Info("epoch %d/%d: train_loss=%.4f eval_loss=%.4f accuracy=%.4f f1=%.4f lr=%.2e",
			epoch, e.cfg.Epochs, row.TrainLoss, row.EvalLoss, row.Accuracy, row.F1, lr)
		if e.onEpoch != nil {
			e.onEpoch(row)
		}
	}

	e.setState(PhaseFinalized, 0)
	best := e.Best()
	e.logger.Info("finalized: best checkpoint epoch %d (f1=%.4f)", best.Epoch, best.Metric)

	e.mu.RLock()
	retained := append([]*Checkpoint(nil), e.retention.kept...)
	e.mu.RUnlock()
	return &Result{Best: best, Retained: retained, History: e.History(), Steps: step}, nil
}

func (e *Engine) evaluate(w *classifier.Weights, eval encoded) (evaluation.Metrics, float64, error) {
	preds := make([]int, len(eval.labels))
	var loss float64
	for i, tokens := range eval.tokens {
		z := w.Logits(tokens)
		loss += classifier.CrossEntropy(z, eval.labels[i])
		preds[i], _, _ = w.Predict(tokens)
	}
	m, err := evaluation.ComputeMetrics(eval.labels, preds, e.labels.NumClasses())
	if err != nil {
		return m, 0, err
	}
	return m, loss / float64(len(eval.labels)), nil
}

package config

import (
	"math"
	"strings"
	"time"

	"chatintent/internal/errors"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment overrides. Sections are separated
// by a double underscore: INTENT_TRAINING__LEARNING_RATE=5e-5.
const EnvPrefix = "INTENT_"

// Config represents the complete pipeline configuration
type Config struct {
	RandomSeed int64           `koanf:"random_seed"`
	LogLevel   string          `koanf:"log_level"`
	Corpus     CorpusConfig    `koanf:"corpus"`
	Split      SplitConfig     `koanf:"split"`
	Training   TrainingConfig  `koanf:"training"`
	Backbone   BackboneConfig  `koanf:"backbone"`
	Inference  InferenceConfig `koanf:"inference"`
	Output     OutputConfig    `koanf:"output"`
	Storage    StorageConfig   `koanf:"storage"`
	Cache      CacheConfig     `koanf:"cache"`
	Server     ServerConfig    `koanf:"server"`
	Telemetry  TelemetryConfig `koanf:"telemetry"`
}

// CorpusConfig controls synthetic corpus generation
type CorpusConfig struct {
	TaxonomyFile     string        `koanf:"taxonomy_file"`
	InputFile        string        `koanf:"input_file"`
	AdminRepeat      int           `koanf:"admin_repeat"`
	CustomerRepeat   int           `koanf:"customer_repeat"`
	SamplesPerIntent int           `koanf:"samples_per_intent"`
	Augment          AugmentConfig `koanf:"augment"`
}

// AugmentConfig controls seeded lexical augmentation
type AugmentConfig struct {
	Enabled           bool `koanf:"enabled"`
	VariantsPerIntent int  `koanf:"variants_per_intent"`
}

// SplitConfig holds train/eval split settings
type SplitConfig struct {
	Fraction float64 `koanf:"split_fraction"`
}

// TrainingConfig holds fine-tuning hyperparameters
type TrainingConfig struct {
	Epochs            int     `koanf:"epochs"`
	BatchSize         int     `koanf:"batch_size"`
	LearningRate      float64 `koanf:"learning_rate"`
	WarmupSteps       int     `koanf:"warmup_steps"`
	WeightDecay       float64 `koanf:"weight_decay"`
	MaxSequenceLength int     `koanf:"max_sequence_length"`
	CheckpointLimit   int     `koanf:"checkpoint_limit"`
	CheckpointDir     string  `koanf:"checkpoint_dir"`
}

// BackboneConfig selects the pretrained text encoder
type BackboneConfig struct {
	Name         string `koanf:"name"`
	Encoding     string `koanf:"encoding"`
	VocabBuckets int    `koanf:"vocab_buckets"`
	EmbeddingDim int    `koanf:"embedding_dim"`
	MaxPositions int    `koanf:"max_positions"`

	// LearningRateScale multiplies training.learning_rate. The hashed
	// backbone starts from an untrained table and needs far larger steps
	// than a transformer fine-tune.
	LearningRateScale float64 `koanf:"learning_rate_scale"`
}

// InferenceConfig holds scoring settings
type InferenceConfig struct {
	ConfidenceThreshold float64 `koanf:"confidence_threshold"`
	Policy              string  `koanf:"policy"`
	BatchConcurrency    int     `koanf:"batch_concurrency"`
	BundleDir           string  `koanf:"bundle_dir"`
}

// OutputConfig holds artifact locations
type OutputConfig struct {
	Dir     string `koanf:"dir"`
	Archive bool   `koanf:"archive"`
}

// StorageConfig holds the run registry connection
type StorageConfig struct {
	Driver string `koanf:"driver"` // sqlite, postgres, none
	DSN    string `koanf:"dsn"`
}

// CacheConfig holds prediction cache settings
type CacheConfig struct {
	RedisAddr string        `koanf:"redis_addr"`
	RedisDB   int           `koanf:"redis_db"`
	TTL       time.Duration `koanf:"ttl"`
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port string `koanf:"port"`
}

// TelemetryConfig toggles OpenTelemetry tracing
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

// DefaultPolicy accepts a prediction when it belongs to the caller's role and
// clears the confidence threshold.
const DefaultPolicy = `intent.startsWith(user_type + "_") && confidence > threshold`

// Default returns every recognized option at its default value.
func Default() Config {
	return Config{
		RandomSeed: 42,
		LogLevel:   "INFO",
		Corpus: CorpusConfig{
			AdminRepeat:    5,
			CustomerRepeat: 8,
		},
		Split: SplitConfig{Fraction: 0.2},
		Training: TrainingConfig{
			Epochs:            4,
			BatchSize:         16,
			LearningRate:      2e-5,
			WarmupSteps:       500,
			WeightDecay:       0.01,
			MaxSequenceLength: 128,
			CheckpointLimit:   2,
		},
		Backbone: BackboneConfig{
			Name:         "hashed-cl100k",
			Encoding:     "cl100k_base",
			VocabBuckets: 4096,
			EmbeddingDim: 64,
			MaxPositions: 512,

			LearningRateScale: 2500,
		},
		Inference: InferenceConfig{
			ConfidenceThreshold: 0.6,
			Policy:              DefaultPolicy,
			BatchConcurrency:    8,
			BundleDir:           "./chatbot_model",
		},
		Output: OutputConfig{
			Dir:     "./chatbot_model",
			Archive: true,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			DSN:    "file:runs.db",
		},
		Cache:     CacheConfig{TTL: 10 * time.Minute},
		Server:    ServerConfig{Port: "8080"},
		Telemetry: TelemetryConfig{ServiceName: "chatintent"},
	}
}

// Load reads defaults, then the optional YAML file, then INTENT_ environment
// overrides, and validates the result before returning it.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(errors.WithCode(errors.CodeConfiguration, err), "failed to read config file %s", path)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.Wrap(errors.WithCode(errors.CodeConfiguration, err), "failed to read environment")
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(errors.WithCode(errors.CodeConfiguration, err), "failed to decode configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate checks every option eagerly so no expensive work starts on a bad config.
func (c *Config) Validate() error {
	if err := c.Split.Validate(); err != nil {
		return err
	}
	if err := c.Training.Validate(); err != nil {
		return err
	}
	if err := c.Backbone.Validate(); err != nil {
		return err
	}
	if c.Corpus.AdminRepeat < 1 || c.Corpus.CustomerRepeat < 1 {
		return errors.Configuration("corpus repeat factors must be >= 1 (admin=%d, customer=%d)", c.Corpus.AdminRepeat, c.Corpus.CustomerRepeat)
	}
	if c.Corpus.SamplesPerIntent < 0 {
		return errors.Configuration("corpus.samples_per_intent must be >= 0, got %d", c.Corpus.SamplesPerIntent)
	}
	if c.Corpus.Augment.Enabled && c.Corpus.Augment.VariantsPerIntent < 1 {
		return errors.Configuration("corpus.augment.variants_per_intent must be >= 1 when augmentation is enabled")
	}
	if c.Inference.ConfidenceThreshold < 0 || c.Inference.ConfidenceThreshold > 1 {
		return errors.Configuration("inference.confidence_threshold must be in [0,1], got %v", c.Inference.ConfidenceThreshold)
	}
	if strings.TrimSpace(c.Inference.Policy) == "" {
		return errors.Configuration("inference.policy is required")
	}
	if c.Inference.BatchConcurrency < 1 {
		return errors.Configuration("inference.batch_concurrency must be >= 1")
	}
	if c.Output.Dir == "" {
		return errors.Configuration("output.dir is required")
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres", "none":
	default:
		return errors.Configuration("storage.driver must be sqlite, postgres or none, got %q", c.Storage.Driver)
	}
	if c.Storage.Driver != "none" && c.Storage.DSN == "" {
		return errors.Configuration("storage.dsn is required for driver %s", c.Storage.Driver)
	}
	return nil
}

// Validate checks the split fraction is strictly between 0 and 1.
func (s SplitConfig) Validate() error {
	if !(s.Fraction > 0 && s.Fraction < 1) {
		return errors.Configuration("split_fraction must be in (0,1), got %v", s.Fraction)
	}
	return nil
}

// Validate checks training hyperparameters.
func (t TrainingConfig) Validate() error {
	if t.Epochs < 1 {
		return errors.Configuration("epochs must be >= 1, got %d", t.Epochs)
	}
	if t.BatchSize < 1 {
		return errors.Configuration("batch_size must be >= 1, got %d", t.BatchSize)
	}
	if !(t.LearningRate > 0) || math.IsInf(t.LearningRate, 0) {
		return errors.Configuration("learning_rate must be a positive finite number, got %v", t.LearningRate)
	}
	if t.WarmupSteps < 0 {
		return errors.Configuration("warmup_steps must be >= 0, got %d", t.WarmupSteps)
	}
	if t.WeightDecay < 0 || math.IsNaN(t.WeightDecay) || math.IsInf(t.WeightDecay, 0) {
		return errors.Configuration("weight_decay must be a non-negative finite number, got %v", t.WeightDecay)
	}
	if t.MaxSequenceLength < 1 {
		return errors.Configuration("max_sequence_length must be >= 1, got %d", t.MaxSequenceLength)
	}
	if t.CheckpointLimit < 1 {
		return errors.Configuration("checkpoint_limit must be >= 1, got %d", t.CheckpointLimit)
	}
	return nil
}

// Validate checks backbone dimensions.
func (b BackboneConfig) Validate() error {
	if b.Name == "" || b.Encoding == "" {
		return errors.Configuration("backbone name and encoding are required")
	}
	if b.VocabBuckets < 2 || b.EmbeddingDim < 1 || b.MaxPositions < 1 {
		return errors.Configuration("backbone dimensions must be positive (vocab_buckets=%d, embedding_dim=%d, max_positions=%d)",
			b.VocabBuckets, b.EmbeddingDim, b.MaxPositions)
	}
	if b.LearningRateScale <= 0 {
		return errors.Configuration("backbone.learning_rate_scale must be > 0, got %g", b.LearningRateScale)
	}
	return nil
}

package corpus

import (
	"math/rand"
	"strings"

	"chatintent/domain/intent"
	"chatintent/internal"
	"chatintent/internal/errors"
	"chatintent/internal/rng"
)

// GeneratorConfig configures the synthetic corpus generator
type GeneratorConfig struct {
	Taxonomy intent.Taxonomy `json:"-"`
	// SamplesPerIntent, when > 0, replaces the per-group repeat factor: each
	// intent's templates are cycled until exactly this many samples exist.
	SamplesPerIntent int `json:"samples_per_intent"`
	// Augment appends seeded lexical variants after the replicated templates.
	Augment AugmentConfig `json:"augment"`
}

// AugmentConfig configures seeded augmentation
type AugmentConfig struct {
	Enabled           bool  `json:"enabled"`
	Seed              int64 `json:"seed"`
	VariantsPerIntent int   `json:"variants_per_intent"`
}

// DefaultGeneratorConfig returns the restaurant taxonomy with its default
// replication factors and no augmentation.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{Taxonomy: DefaultTaxonomy()}
}

// Generator produces labeled samples from a template taxonomy
type Generator struct {
	config GeneratorConfig
	logger *internal.Logger
}

// NewGenerator validates the taxonomy and creates a generator
func NewGenerator(config GeneratorConfig, logger *internal.Logger) (*Generator, error) {
	if err := config.Taxonomy.Validate(); err != nil {
		return nil, err
	}
	if config.SamplesPerIntent < 0 {
		return nil, errors.Configuration("samples_per_intent must be >= 0, got %d", config.SamplesPerIntent)
	}
	if config.Augment.Enabled && config.Augment.VariantsPerIntent < 1 {
		return nil, errors.Configuration("augmentation enabled with %d variants per intent", config.Augment.VariantsPerIntent)
	}

	return &Generator{config: config, logger: logger.Named("CorpusGenerator")}, nil
}

// Generate enumerates the taxonomy in order and returns the corpus. Without
// augmentation the output depends only on the taxonomy; with it, on the
// taxonomy and the augment seed. Every call starts a fresh stream.
func (g *Generator) Generate() (*intent.Corpus, error) {
	corpus := &intent.Corpus{}
	var r *rand.Rand
	if g.config.Augment.Enabled {
		r = rng.Stream(g.config.Augment.Seed, "augment")
	}

	for _, group := range g.config.Taxonomy.Groups {
		for _, it := range group.Intents {
			name := intent.QualifiedName(group.UserType, it.Key)
			if len(it.Templates) == 0 {
				g.logger.Warn("intent %s has no templates, skipping", name)
				continue
			}

			for _, text := range g.replicate(it.Templates, group.Repeat) {
				if err := corpus.Append(intent.Sample{Text: text, Intent: name, UserType: group.UserType}); err != nil {
					return nil, errors.Wrapf(err, "intent %s", name)
				}
			}

			if g.config.Augment.Enabled {
				for _, text := range g.augment(r, it.Templates) {
					if err := corpus.Append(intent.Sample{Text: text, Intent: name, UserType: group.UserType}); err != nil {
						return nil, errors.Wrapf(err, "intent %s", name)
					}
				}
			}
		}
	}

	g.logger.Info("generated %d samples across %d intents", corpus.Len(), len(g.config.Taxonomy.IntentNames()))
	return corpus, nil
}

// replicate repeats the template list repeat times, or cycles it to exactly
// SamplesPerIntent entries when that override is set.
func (g *Generator) replicate(templates []string, repeat int) []string {
	if g.config.SamplesPerIntent > 0 {
		out := make([]string, g.config.SamplesPerIntent)
		for i := range out {
			out[i] = templates[i%len(templates)]
		}
		return out
	}

	out := make([]string, 0, len(templates)*repeat)
	for r := 0; r < repeat; r++ {
		out = append(out, templates...)
	}
	return out
}

var (
	politePrefixes = []string{"Please ", "Can you ", "Could you ", "Hey, ", "I need to "}
	politeSuffixes = []string{" please", " now", " for me", "?", "!"}
)

// augment draws VariantsPerIntent surface variants of random templates.
func (g *Generator) augment(r *rand.Rand, templates []string) []string {
	out := make([]string, 0, g.config.Augment.VariantsPerIntent)
	for i := 0; i < g.config.Augment.VariantsPerIntent; i++ {
		base := templates[r.Intn(len(templates))]
		out = append(out, variant(r, base))
	}
	return out
}

func variant(r *rand.Rand, text string) string {
	switch r.Intn(4) {
	case 0:
		return strings.ToLower(text)
	case 1:
		prefix := politePrefixes[r.Intn(len(politePrefixes))]
		return prefix + lowerFirst(text)
	case 2:
		suffix := politeSuffixes[r.Intn(len(politeSuffixes))]
		return strings.TrimRight(text, "?!.") + suffix
	default:
		prefix := politePrefixes[r.Intn(len(politePrefixes))]
		suffix := politeSuffixes[r.Intn(len(politeSuffixes))]
		return prefix + lowerFirst(strings.TrimRight(text, "?!.")) + suffix
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	// keep "I" capitalized
	if strings.HasPrefix(s, "I ") || strings.HasPrefix(s, "I'") {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

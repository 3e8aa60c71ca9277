package backbone

import (
	"strings"
	"sync"

	"chatintent/internal/config"
	"chatintent/internal/errors"
	"chatintent/internal/rng"
	"chatintent/ports"

	"github.com/tiktoken-go/tokenizer"
	"gonum.org/v1/gonum/mat"
)

// initScale is the standard deviation of the pretrained embedding table
const initScale = 0.1

var (
	// codecCache caches tokenizer codecs by encoding name
	codecCache = make(map[tokenizer.Encoding]tokenizer.Codec)
	cacheMu    sync.RWMutex
)

func getCodec(encoding tokenizer.Encoding) (tokenizer.Codec, error) {
	cacheMu.RLock()
	if cached, ok := codecCache[encoding]; ok {
		cacheMu.RUnlock()
		return cached, nil
	}
	cacheMu.RUnlock()

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if cached, ok := codecCache[encoding]; ok {
		return cached, nil
	}
	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, err
	}
	codecCache[encoding] = codec
	return codec, nil
}

// Hashed is an uncased BPE backbone: tiktoken token ids are folded into a
// fixed number of embedding rows. The initial table is a pure function of
// the backbone name, so every load of the same name yields the same weights.
type Hashed struct {
	name         string
	encoding     string
	codec        tokenizer.Codec
	buckets      int
	dim          int
	maxPositions int
	lrScale      float64
	table        *mat.Dense
}

var _ ports.Backbone = (*Hashed)(nil)

// Load builds the backbone described by cfg.
func Load(cfg config.BackboneConfig) (*Hashed, error) {
	return FromTokenizerConfig(ports.TokenizerConfig{
		BackboneName: cfg.Name,
		Encoding:     cfg.Encoding,
		VocabBuckets: cfg.VocabBuckets,
		EmbeddingDim: cfg.EmbeddingDim,
		MaxPositions: cfg.MaxPositions,
		Lowercase:    true,

		LearningRateScale: cfg.LearningRateScale,
	})
}

// FromTokenizerConfig rebuilds a backbone from bundle tokenizer state.
func FromTokenizerConfig(tc ports.TokenizerConfig) (*Hashed, error) {
	if tc.BackboneName == "" {
		return nil, errors.BackboneLoad(nil, "backbone name is empty")
	}
	if tc.VocabBuckets < 2 || tc.EmbeddingDim < 1 || tc.MaxPositions < 1 {
		return nil, errors.BackboneLoad(nil, "backbone %s has invalid dimensions (vocab_buckets=%d, embedding_dim=%d, max_positions=%d)",
			tc.BackboneName, tc.VocabBuckets, tc.EmbeddingDim, tc.MaxPositions)
	}

	codec, err := getCodec(tokenizer.Encoding(tc.Encoding))
	if err != nil {
		return nil, errors.BackboneLoad(err, "failed to load tokenizer %q for backbone %s", tc.Encoding, tc.BackboneName)
	}
	if tc.LearningRateScale < 0 {
		return nil, errors.BackboneLoad(nil, "backbone %s has negative learning_rate_scale %g", tc.BackboneName, tc.LearningRateScale)
	}
	if ids, _, err := codec.Encode("hello"); err != nil || len(ids) == 0 {
		return nil, errors.BackboneLoad(err, "tokenizer %q cannot encode text", tc.Encoding)
	}

	return &Hashed{
		name:         tc.BackboneName,
		encoding:     tc.Encoding,
		codec:        codec,
		buckets:      tc.VocabBuckets,
		dim:          tc.EmbeddingDim,
		maxPositions: tc.MaxPositions,
		lrScale:      tc.LearningRateScale,
		table:        pretrainedTable(tc.BackboneName, tc.VocabBuckets, tc.EmbeddingDim),
	}, nil
}

func pretrainedTable(name string, rows, cols int) *mat.Dense {
	r := rng.Stream(0, "backbone:"+name)
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = r.NormFloat64() * initScale
	}
	return mat.NewDense(rows, cols, data)
}

func (h *Hashed) Name() string      { return h.name }
func (h *Hashed) VocabSize() int    { return h.buckets }
func (h *Hashed) EmbeddingDim() int { return h.dim }
func (h *Hashed) MaxPositions() int { return h.maxPositions }

// Encode lower-cases text, tokenizes it and keeps the first maxLen tokens.
// maxLen <= 0 means MaxPositions.
func (h *Hashed) Encode(text string, maxLen int) ([]int, error) {
	if maxLen <= 0 || maxLen > h.maxPositions {
		maxLen = h.maxPositions
	}
	ids, _, err := h.codec.Encode(strings.ToLower(text))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to tokenize %q", text)
	}
	if len(ids) > maxLen {
		ids = ids[:maxLen]
	}
	rows := make([]int, len(ids))
	for i, id := range ids {
		rows[i] = int(id % uint(h.buckets))
	}
	return rows, nil
}

// PretrainedEmbeddings returns a copy the caller may mutate.
func (h *Hashed) PretrainedEmbeddings() *mat.Dense {
	return mat.DenseCopyOf(h.table)
}

func (h *Hashed) TokenizerConfig() ports.TokenizerConfig {
	return ports.TokenizerConfig{
		BackboneName: h.name,
		Encoding:     h.encoding,
		VocabBuckets: h.buckets,
		EmbeddingDim: h.dim,
		MaxPositions: h.maxPositions,
		Lowercase:    true,

		LearningRateScale: h.lrScale,
	}
}

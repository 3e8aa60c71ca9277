package ports

import (
	"gonum.org/v1/gonum/mat"
)

// TokenizerConfig is the serializable tokenizer state stored in model bundles.
// It is enough to rebuild an identical encoder without the training config.
type TokenizerConfig struct {
	BackboneName string `json:"backbone_name"`
	Encoding     string `json:"encoding"`
	VocabBuckets int    `json:"vocab_buckets"`
	EmbeddingDim int    `json:"embedding_dim"`
	MaxPositions int    `json:"max_positions"`
	Lowercase    bool   `json:"do_lower_case"`
	MaxLength    int    `json:"model_max_length"`

	// LearningRateScale is the factor the backbone applies to the configured
	// learning rate. Zero means 1.
	LearningRateScale float64 `json:"learning_rate_scale,omitempty"`
}

// Backbone is a pretrained text encoder: a tokenizer plus an initial token
// embedding table that fine-tuning starts from.
type Backbone interface {
	// Name identifies the pretrained weights
	Name() string

	// Encode tokenizes text and returns at most maxLen embedding row ids
	Encode(text string, maxLen int) ([]int, error)

	VocabSize() int
	EmbeddingDim() int

	// MaxPositions is the longest input the backbone accepts
	MaxPositions() int

	// PretrainedEmbeddings returns a fresh VocabSize x EmbeddingDim copy
	PretrainedEmbeddings() *mat.Dense

	TokenizerConfig() TokenizerConfig
}

package app

import (
	"context"
	"testing"
	"time"

	"chatintent/adapters/cache"
	"chatintent/domain/intent"
	"chatintent/internal/artifact"
	"chatintent/internal/backbone"
	"chatintent/internal/classifier"
	"chatintent/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// confidentBundle packages weights that put nearly all probability on
// admin_list_restaurants for any text.
func confidentBundle(t *testing.T) *artifact.Bundle {
	t.Helper()
	bc := config.Default().Backbone
	bc.VocabBuckets = 256
	bc.EmbeddingDim = 8
	bb, err := backbone.Load(bc)
	require.NoError(t, err)

	labels, err := intent.NewLabelSpace([]string{"admin_list_restaurants", "customer_track_order", "customer_view_cart"})
	require.NoError(t, err)
	w, err := classifier.New(bb.PretrainedEmbeddings(), labels.NumClasses(), 1)
	require.NoError(t, err)
	w.Bias.SetVec(0, 10)

	tc := bb.TokenizerConfig()
	tc.MaxLength = 32
	dir := t.TempDir()
	require.NoError(t, artifact.NewPackager(nil).Package(dir, artifact.Input{Weights: w, Labels: labels, Tokenizer: tc}))
	bundle, err := artifact.Load(dir)
	require.NoError(t, err)
	return bundle
}

func TestClassificationService_CacheIsScopedToPolicy(t *testing.T) {
	bundle := confidentBundle(t)
	shared := cache.NewMemoryCache(100)
	ctx := context.Background()

	lenient := config.Default().Inference
	svc, err := NewClassificationService(bundle, lenient, shared, time.Minute, nil)
	require.NoError(t, err)
	d, cached, err := svc.Classify(ctx, "Show all restaurants", intent.UserTypeAdmin)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.True(t, d.Accepted)

	_, cached, err = svc.Classify(ctx, "Show all restaurants", intent.UserTypeAdmin)
	require.NoError(t, err)
	assert.True(t, cached)

	strict := lenient
	strict.ConfidenceThreshold = 0.99999
	restarted, err := NewClassificationService(bundle, strict, shared, time.Minute, nil)
	require.NoError(t, err)
	d, cached, err = restarted.Classify(ctx, "Show all restaurants", intent.UserTypeAdmin)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.False(t, d.Accepted)
	assert.Equal(t, 2, shared.Len())
}

func TestClassificationService_BatchBypassesCache(t *testing.T) {
	shared := cache.NewMemoryCache(100)
	svc, err := NewClassificationService(confidentBundle(t), config.Default().Inference, shared, time.Minute, nil)
	require.NoError(t, err)

	decisions, err := svc.ClassifyBatch(context.Background(), []string{"Show all restaurants", "Where is my order?"}, intent.UserTypeCustomer)
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.False(t, decisions[0].Accepted)
	assert.Equal(t, 0, shared.Len())
}

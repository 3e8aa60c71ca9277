package ports

import (
	"context"
	"time"
)

// PredictionCache stores encoded policy decisions keyed by
// fingerprint:user_type:text. A miss is (nil, false, nil).
type PredictionCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

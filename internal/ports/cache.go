package ports

import (
	"context"
	"time"
)

// Cache is the optional resolve-cache collaborator. A nil Cache is equivalent
// to always-miss.
type Cache interface {
	Get(ctx context.Context, key string) (map[string]any, bool)
	Set(ctx context.Context, key string, payload map[string]any, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

// Package ratelimit gates engine calls with a token bucket. Requesting more
// tokens than the bucket can ever hold is a configuration error, not a wait
// condition.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/SakenW/transhub/internal/domain"
)

// Config holds token-bucket parameters.
type Config struct {
	// RefillPerSecond is the sustained token refill rate.
	RefillPerSecond float64
	// Capacity is the bucket size (maximum burst).
	Capacity int
}

// Limiter wraps a token bucket shared across worker goroutines. The wait for
// n tokens is bounded by (n - available) / refill rate.
type Limiter struct {
	limiter  *rate.Limiter
	capacity int
}

// New validates the configuration and builds the limiter.
func New(cfg Config) (*Limiter, error) {
	if cfg.RefillPerSecond <= 0 {
		return nil, &domain.ConfigurationError{Reason: fmt.Sprintf("refill rate must be positive, got %v", cfg.RefillPerSecond)}
	}
	if cfg.Capacity <= 0 {
		return nil, &domain.ConfigurationError{Reason: fmt.Sprintf("capacity must be positive, got %d", cfg.Capacity)}
	}
	return &Limiter{
		limiter:  rate.NewLimiter(rate.Limit(cfg.RefillPerSecond), cfg.Capacity),
		capacity: cfg.Capacity,
	}, nil
}

// Acquire blocks until n tokens are available. It fails immediately when n
// exceeds the bucket capacity.
func (l *Limiter) Acquire(ctx context.Context, n int) error {
	if n <= 0 {
		return &domain.ConfigurationError{Reason: fmt.Sprintf("token count must be positive, got %d", n)}
	}
	if n > l.capacity {
		return &domain.ConfigurationError{Reason: fmt.Sprintf("requested %d tokens exceeds bucket capacity %d", n, l.capacity)}
	}
	return l.limiter.WaitN(ctx, n)
}

// Allow reports whether n tokens are available right now without waiting.
func (l *Limiter) Allow(n int) bool {
	if n <= 0 || n > l.capacity {
		return false
	}
	return l.limiter.AllowN(time.Now(), n)
}

// Capacity returns the configured bucket size.
func (l *Limiter) Capacity() int { return l.capacity }

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SakenW/transhub/internal/domain"
)

func TestNew_RejectsBadConfig(t *testing.T) {
	var cfgErr *domain.ConfigurationError

	_, err := New(Config{RefillPerSecond: 0, Capacity: 5})
	require.ErrorAs(t, err, &cfgErr)

	_, err = New(Config{RefillPerSecond: 10, Capacity: 0})
	require.ErrorAs(t, err, &cfgErr)
}

func TestAcquire_OverCapacityFailsImmediately(t *testing.T) {
	l, err := New(Config{RefillPerSecond: 1, Capacity: 3})
	require.NoError(t, err)

	start := time.Now()
	err = l.Acquire(context.Background(), 4)
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestAcquire_WithinBurstIsImmediate(t *testing.T) {
	l, err := New(Config{RefillPerSecond: 1, Capacity: 5})
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, l.Acquire(context.Background(), 5))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestAcquire_EmptyBucketWaitsForRefill(t *testing.T) {
	l, err := New(Config{RefillPerSecond: 100, Capacity: 10})
	require.NoError(t, err)

	// Drain the bucket.
	require.NoError(t, l.Acquire(context.Background(), 10))

	// 5 tokens at 100/s should take roughly 50ms.
	start := time.Now()
	require.NoError(t, l.Acquire(context.Background(), 5))
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestAcquire_ContextCancellation(t *testing.T) {
	l, err := New(Config{RefillPerSecond: 0.1, Capacity: 1})
	require.NoError(t, err)
	require.NoError(t, l.Acquire(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = l.Acquire(ctx, 1)
	require.Error(t, err)
}

func TestAllow(t *testing.T) {
	l, err := New(Config{RefillPerSecond: 1, Capacity: 2})
	require.NoError(t, err)

	assert.True(t, l.Allow(2))
	assert.False(t, l.Allow(1))
	assert.False(t, l.Allow(3)) // over capacity is never allowed
}

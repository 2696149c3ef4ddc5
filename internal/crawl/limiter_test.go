package crawl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiter_PermitsUpToLimit(t *testing.T) {
	t.Parallel()

	limiter, stop := NewRateLimiter(3, time.Minute)
	defer stop()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Wait(ctx))
	}
}

func TestRateLimiter_BlocksPastLimit(t *testing.T) {
	t.Parallel()

	limiter, stop := NewRateLimiter(1, time.Minute)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, limiter.Wait(context.Background()))
	err := limiter.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

package crawl

import (
	"context"
	"time"

	"github.com/RussellLuo/slidingwindow"
)

// RateLimiter is a thin wrapper around a sliding-window token bucket, shared
// across the enumeration loop and every worker. Unlike the Rust original's
// governor::RateLimiter (a blocking until_ready), slidingwindow.Limiter.Allow
// is non-blocking, so Wait polls it on a short interval.
type RateLimiter struct {
	lim *slidingwindow.Limiter
}

// NewRateLimiter permits limit requests per window.
func NewRateLimiter(limit int64, window time.Duration) (*RateLimiter, func()) {
	lim, stop := slidingwindow.NewLimiter(window, limit, func() (slidingwindow.Window, slidingwindow.StopFunc) {
		return slidingwindow.NewLocalWindow()
	})
	return &RateLimiter{lim: lim}, stop
}

// Wait blocks until a token is available or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	const pollInterval = 10 * time.Millisecond

	for {
		if r.lim.Allow() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

package plcingest

import (
	"context"
	"time"

	"github.com/RussellLuo/slidingwindow"
)

// RateLimiter bounds the rate of export requests against the directory host.
// slidingwindow's Allow is non-blocking, so Wait polls it until a token is
// free or ctx is cancelled, standing in for governor::RateLimiter::until_ready
// in the original.
type RateLimiter struct {
	lim *slidingwindow.Limiter
}

// NewRateLimiter permits limit requests per window. The returned func stops
// the limiter's background window-rotation goroutine.
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

package clients

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces outgoing requests.
type RateLimiter interface {
	// Wait blocks until a request may proceed or ctx is done
	Wait(ctx context.Context) error

	// GetStats returns rate limiter statistics
	GetStats() RateLimiterStats
}

// RateLimiterStats reports limiter settings and how long requests waited.
type RateLimiterStats struct {
	Rate            float64       `json:"rate"`
	Burst           int           `json:"burst"`
	AllowedRequests int64         `json:"allowed_requests"`
	BlockedRequests int64         `json:"blocked_requests"`
	Waited          time.Duration `json:"waited"`
}

// TokenBucketRateLimiter is a RateLimiter backed by golang.org/x/time/rate.
type TokenBucketRateLimiter struct {
	limiter *rate.Limiter

	allowed int64
	blocked int64
	waited  int64
}

// NewRateLimiter creates a limiter allowing perSecond requests with the given
// burst. A burst below one is raised to one.
func NewRateLimiter(perSecond float64, burst int) *TokenBucketRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucketRateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until a request may proceed or ctx is done
func (l *TokenBucketRateLimiter) Wait(ctx context.Context) error {
	start := time.Now()
	defer func() { atomic.AddInt64(&l.waited, int64(time.Since(start))) }()
	if err := l.limiter.Wait(ctx); err != nil {
		atomic.AddInt64(&l.blocked, 1)
		return err
	}
	atomic.AddInt64(&l.allowed, 1)
	return nil
}

// GetStats returns rate limiter statistics
func (l *TokenBucketRateLimiter) GetStats() RateLimiterStats {
	return RateLimiterStats{
		Rate:            float64(l.limiter.Limit()),
		Burst:           l.limiter.Burst(),
		AllowedRequests: atomic.LoadInt64(&l.allowed),
		BlockedRequests: atomic.LoadInt64(&l.blocked),
		Waited:          time.Duration(atomic.LoadInt64(&l.waited)),
	}
}

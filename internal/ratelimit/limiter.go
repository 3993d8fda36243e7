package ratelimit

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Limiter paces probe requests across all workers. A nil *Limiter never
// blocks, which is how an unlimited configuration is represented.
type Limiter struct {
	limiter *rate.Limiter
	waits   atomic.Int64
}

// Config contains rate limiting configuration
type Config struct {
	// RequestsPerSecond of zero disables limiting
	RequestsPerSecond float64

	// BurstSize allows brief bursts above the rate limit
	BurstSize int
}

// NewLimiter returns nil when cfg does not limit anything.
func NewLimiter(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.BurstSize
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
	}
}

// Wait blocks until the rate limiter allows the request
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	l.waits.Add(1)
	return l.limiter.Wait(ctx)
}

// GetStats returns current rate limiter statistics
func (l *Limiter) GetStats() Stats {
	if l == nil {
		return Stats{}
	}
	return Stats{
		Limit:     float64(l.limiter.Limit()),
		BurstSize: l.limiter.Burst(),
		Waits:     l.waits.Load(),
	}
}

// Stats contains rate limiter statistics
type Stats struct {
	Limit     float64
	BurstSize int
	Waits     int64
}

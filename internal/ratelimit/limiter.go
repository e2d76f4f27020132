// Package ratelimit implements a token bucket admission controller for
// per-job crawl/LLM request rates.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/qa-docgen/internal/metrics"
	"github.com/JakeFAU/qa-docgen/internal/qadoc"
)

// Limiter manages per-job rate limits. Admission is a blocking wait on the
// job's token bucket, bounded by MaxWait; exceeding the bound surfaces a
// rate_limit_timeout error instead of blocking forever.
type Limiter struct {
	mu               sync.Mutex
	limiters         map[string]*rate.Limiter
	defaultPerMinute int
	burst            int
	maxWait          time.Duration
}

// Config holds rate limiter configuration.
type Config struct {
	DefaultPerMinute int
	Burst            int
	MaxWait          time.Duration
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	if cfg.DefaultPerMinute <= 0 {
		cfg.DefaultPerMinute = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 2 * time.Minute
	}
	return &Limiter{
		limiters:         make(map[string]*rate.Limiter),
		defaultPerMinute: cfg.DefaultPerMinute,
		burst:            cfg.Burst,
		maxWait:          cfg.MaxWait,
	}
}

// Acquire blocks until a permit is available for the job, the context ends,
// or the bounded wait elapses. rpm overrides the global default when > 0.
// rate.Limiter reserves the token atomically, so no slot is ever granted
// twice under concurrent callers.
func (l *Limiter) Acquire(ctx context.Context, jobID string, rpm int) error {
	limiter := l.limiterFor(jobID, rpm)

	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	start := time.Now()
	err := limiter.Wait(waitCtx)
	if err == nil {
		if delay := time.Since(start); delay > time.Millisecond {
			metrics.ObserveRateLimitDelay(delay)
		}
		return nil
	}
	// limiter.Wait also fails fast when the deadline cannot possibly be met.
	if ctx.Err() != nil {
		return fmt.Errorf("rate limit wait: %w", ctx.Err())
	}
	if errors.Is(waitCtx.Err(), context.DeadlineExceeded) || waitCtx.Err() == nil {
		return qadoc.Errorf(qadoc.KindRateLimitTimeout, "no permit for job %s within %s", jobID, l.maxWait)
	}
	return fmt.Errorf("rate limit wait: %w", err)
}

// Forget drops the job's bucket once the job is terminal.
func (l *Limiter) Forget(jobID string) {
	l.mu.Lock()
	delete(l.limiters, jobID)
	l.mu.Unlock()
}

func (l *Limiter) limiterFor(jobID string, rpm int) *rate.Limiter {
	if rpm <= 0 {
		rpm = l.defaultPerMinute
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, exists := l.limiters[jobID]
	if !exists {
		limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), l.burst)
		l.limiters[jobID] = limiter
	}
	return limiter
}

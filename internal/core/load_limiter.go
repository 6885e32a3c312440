package core

// load_limiter.go bounds how many datasets are being read and indexed at
// once.
//
// Loading holds a whole file in memory plus its row index, so parallel loads
// are capped with a semaphore. When every slot is taken a caller waits up to
// maxWait and then gets ErrTooManyLoads. WaitForDrain lets shutdown wait for
// in-flight loads.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrTooManyLoads is returned when no load slot frees up within the wait
// time. Clients should retry after a short delay.
var ErrTooManyLoads = errors.New("too many concurrent loads, please try again later")

const (
	DefaultMaxConcurrentLoads = 4
	DefaultMaxLoadWait        = 30 * time.Second

	drainPollInterval = 50 * time.Millisecond
)

// LoadLimiter is a counting semaphore for dataset loads.
type LoadLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64
	total   atomic.Int64
	refused atomic.Int64
}

// NewLoadLimiter allows at most maxConcurrent loads. Non-positive arguments
// take the defaults.
func NewLoadLimiter(maxConcurrent int, maxWait time.Duration) *LoadLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentLoads
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxLoadWait
	}
	return &LoadLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire waits for a slot. It returns ErrTooManyLoads when maxWait passes
// first, or the context error if ctx ends. Every successful Acquire must be
// paired with Release.
func (l *LoadLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		l.total.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		l.refused.Add(1)
		return ErrTooManyLoads
	}
}

// TryAcquire takes a slot only if one is free right now.
func (l *LoadLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		l.total.Add(1)
		return true
	default:
		l.refused.Add(1)
		return false
	}
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *LoadLimiter) Release() {
	l.active.Add(-1)
	<-l.slots
}

// WaitForDrain blocks until no load is active or ctx ends.
func (l *LoadLimiter) WaitForDrain(ctx context.Context) error {
	if l.active.Load() == 0 {
		return nil
	}

	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.active.Load() == 0 {
				return nil
			}
		}
	}
}

// LoadLimiterStatus is a point-in-time view of the limiter.
type LoadLimiterStatus struct {
	Active        int   `json:"active"`
	Available     int   `json:"available"`
	MaxConcurrent int   `json:"maxConcurrent"`
	Total         int64 `json:"total"`
	Refused       int64 `json:"refused"`
}

// Status reports the limiter's counters.
func (l *LoadLimiter) Status() LoadLimiterStatus {
	return LoadLimiterStatus{
		Active:        int(l.active.Load()),
		Available:     cap(l.slots) - len(l.slots),
		MaxConcurrent: cap(l.slots),
		Total:         l.total.Load(),
		Refused:       l.refused.Load(),
	}
}

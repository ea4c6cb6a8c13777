package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultWindow is the length of one counting window.
const DefaultWindow = time.Minute

// ErrRateLimited is returned when a client exceeded its ceiling for the window.
var ErrRateLimited = errors.New("rate limit exceeded")

type Limiter struct {
	max    int
	mutex  sync.Mutex
	counts map[string]int
}

// New creates a Limiter allowing max requests per client and window.
// A max of zero or less disables limiting.
func New(max int) *Limiter {
	return &Limiter{
		max:    max,
		counts: make(map[string]int),
	}
}

// Enabled reports whether the limiter rejects anything at all.
func (l *Limiter) Enabled() bool {
	return l != nil && l.max > 0
}

func (l *Limiter) Max() int {
	return l.max
}

// CheckAndCount records one request from ip and returns ErrRateLimited if the
// count now exceeds the ceiling. Rejected requests still count.
func (l *Limiter) CheckAndCount(ip string) error {
	if !l.Enabled() {
		return nil
	}

	l.mutex.Lock()
	l.counts[ip]++
	count := l.counts[ip]
	l.mutex.Unlock()

	if count > l.max {
		return ErrRateLimited
	}
	return nil
}

// Count returns the number of requests seen from ip in the current window.
func (l *Limiter) Count(ip string) int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.counts[ip]
}

// Reset starts a new window for every client.
func (l *Limiter) Reset() {
	l.mutex.Lock()
	l.counts = make(map[string]int)
	l.mutex.Unlock()
}

// Run resets the table every window until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, window time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(window)
	defer ticker.Stop()

	logger.Info("Rate limiter started",
		slog.Int("max_requests", l.max),
		slog.Duration("window", window))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Rate limiter stopped")
			return
		case <-ticker.C:
			l.Reset()
			logger.Debug("Rate limit window reset")
		}
	}
}

// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package connector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrLimiterClosed is returned by Wait after Close.
var ErrLimiterClosed = errors.New("rate limiter stopped")

// RateLimiterConfig configures a sliding-window rate limiter.
type RateLimiterConfig struct {
	// MaxCallsPerSecond is the maximum number of starts admitted in any
	// sliding Window. Must be >= 1.
	MaxCallsPerSecond int

	// Window is the sliding window length. Default: 1s
	Window time.Duration

	// Logger for rate limiter events
	Logger *zap.Logger
}

// RateLimiterMetrics tracks rate limiter activity.
type RateLimiterMetrics struct {
	Admitted      int64
	Throttled     int64
	TotalWaitTime time.Duration
}

// RateLimiter admits at most MaxCallsPerSecond starts in any sliding window.
// It remembers the last MaxCallsPerSecond start times in a ring; a new start
// is admitted only once the oldest of them has left the window.
type RateLimiter struct {
	config RateLimiterConfig

	mu     sync.Mutex
	starts []time.Time
	next   int

	metrics   RateLimiterMetrics
	metricsMu sync.Mutex

	now    func() time.Time
	stopCh chan struct{}
	closed atomic.Bool
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.MaxCallsPerSecond < 1 {
		config.MaxCallsPerSecond = 1
	}
	if config.Window <= 0 {
		config.Window = time.Second
	}
	return &RateLimiter{
		config: config,
		starts: make([]time.Time, config.MaxCallsPerSecond),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
}

// Wait blocks until a start is admitted, ctx is done or the limiter closes.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	var waited time.Duration
	throttled := false
	for {
		if rl.closed.Load() {
			return ErrLimiterClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		delay := rl.tryAcquire()
		if delay == 0 {
			rl.metricsMu.Lock()
			rl.metrics.Admitted++
			rl.metrics.TotalWaitTime += waited
			if throttled {
				rl.metrics.Throttled++
			}
			rl.metricsMu.Unlock()
			return nil
		}

		if !throttled {
			rl.config.Logger.Debug("Rate limit reached, waiting",
				zap.Int("max_calls_per_second", rl.config.MaxCallsPerSecond),
				zap.Duration("delay", delay))
		}
		throttled = true

		timer := time.NewTimer(delay)
		start := time.Now()
		select {
		case <-timer.C:
			waited += time.Since(start)
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-rl.stopCh:
			timer.Stop()
			return ErrLimiterClosed
		}
	}
}

// tryAcquire records a start and returns 0, or returns how long to wait
// before the oldest remembered start leaves the window.
func (rl *RateLimiter) tryAcquire() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	oldest := rl.starts[rl.next]
	if !oldest.IsZero() {
		if elapsed := now.Sub(oldest); elapsed < rl.config.Window {
			return rl.config.Window - elapsed
		}
	}
	rl.starts[rl.next] = now
	rl.next = (rl.next + 1) % len(rl.starts)
	return 0
}

// GetMetrics returns a copy of the limiter metrics.
func (rl *RateLimiter) GetMetrics() RateLimiterMetrics {
	rl.metricsMu.Lock()
	defer rl.metricsMu.Unlock()
	return rl.metrics
}

// Close wakes all waiters with ErrLimiterClosed. Safe to call more than once.
func (rl *RateLimiter) Close() {
	if rl.closed.Swap(true) {
		return
	}
	close(rl.stopCh)
}

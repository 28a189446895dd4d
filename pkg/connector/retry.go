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
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

type retryPolicy struct {
	// maxTries counts the first attempt.
	maxTries uint
	base     time.Duration
}

// newBackOff returns the deterministic schedule base, 2*base, 4*base, ...
func newBackOff(base time.Duration) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         time.Duration(math.MaxInt64),
	}
	b.Reset()
	return b
}

// retry runs op until it succeeds, fails permanently, exhausts the policy
// or ctx is done.
func retry(ctx context.Context, policy retryPolicy, logger *zap.Logger, op func() (string, error)) (string, error) {
	attempt := 0
	return backoff.Retry(ctx, func() (string, error) {
		attempt++
		out, err := op()
		if err == nil {
			if attempt > 1 {
				logger.Info("Request succeeded after retry", zap.Int("attempt", attempt))
			}
			return out, nil
		}
		if errors.Is(err, ErrLimiterClosed) || !IsTransient(err) || ctx.Err() != nil {
			return "", backoff.Permanent(err)
		}
		return "", err
	},
		backoff.WithBackOff(newBackOff(policy.base)),
		backoff.WithMaxTries(policy.maxTries),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Info("Retrying request",
				zap.Int("attempt", attempt+1),
				zap.Uint("max_attempts", policy.maxTries),
				zap.Duration("backoff", next),
				zap.Error(err))
		}),
	)
}

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

// Package connector wraps a provider (one remote LLM protocol) with the
// per-endpoint policies every call goes through: a sliding-window rate
// limit, a concurrency cap, per-attempt timeouts, pre/post prompts and
// exponential-backoff retries.
//
// Connector state is per instance. Two runners talking to the same endpoint
// build two connectors with independent limits.
package connector

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/teradata-labs/crucible/pkg/catalog"
	"github.com/teradata-labs/crucible/pkg/types"
)

// Request is one prompt sent to a provider.
type Request struct {
	Prompt       string
	SystemPrompt string
}

// Provider speaks one remote protocol. Complete performs exactly one
// attempt; retries, limits and timeouts are applied by the Connector.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ConnectionChecker is implemented by providers that have a cheaper
// liveness probe than a completion.
type ConnectionChecker interface {
	CheckConnection(ctx context.Context) error
}

// Response is the outcome of GetResponse.
type Response struct {
	Text string
	// ConnectionPrompt is the prompt as sent, pre/post prompts included.
	ConnectionPrompt string
	// Duration is wall-clock time across all attempts.
	Duration time.Duration
	Attempts int
}

// Config configures a Connector.
type Config struct {
	EndpointID        string
	MaxCallsPerSecond int
	MaxConcurrency    int

	// NumOfRetries is the number of retries after the first attempt.
	// Default: 3
	NumOfRetries int
	AllowRetries bool
	// RetryBase is the first backoff delay; attempt n waits RetryBase*2^n.
	// Default: 1s
	RetryBase time.Duration
	// Timeout bounds each attempt. Default: 600s
	Timeout time.Duration

	PrePrompt  string
	PostPrompt string

	Logger *zap.Logger
}

// DefaultConfig returns the default retry and timeout policy.
func DefaultConfig() Config {
	return Config{
		MaxCallsPerSecond: 10,
		MaxConcurrency:    1,
		NumOfRetries:      3,
		AllowRetries:      true,
		RetryBase:         time.Second,
		Timeout:           600 * time.Second,
	}
}

// ConfigFromEndpoint derives a Config from an endpoint. Endpoint params
// override the retry and timeout values of defaults.
func ConfigFromEndpoint(e *catalog.Endpoint, defaults Config) Config {
	cfg := defaults
	cfg.EndpointID = e.ID
	cfg.MaxCallsPerSecond = e.MaxCallsPerSecond
	cfg.MaxConcurrency = e.MaxConcurrency
	cfg.NumOfRetries = ParamInt(e.Params, ParamNumRetries, defaults.NumOfRetries)
	cfg.AllowRetries = ParamBool(e.Params, ParamAllowRetries, defaults.AllowRetries)
	cfg.RetryBase = ParamSeconds(e.Params, ParamRetryBase, defaults.RetryBase)
	cfg.Timeout = ParamSeconds(e.Params, ParamTimeout, defaults.Timeout)
	cfg.PrePrompt = ParamString(e.Params, ParamPrePrompt, "")
	cfg.PostPrompt = ParamString(e.Params, ParamPostPrompt, "")
	return cfg
}

// Connector is the runtime object bound to one endpoint.
type Connector struct {
	config   Config
	provider Provider
	logger   *zap.Logger

	limiter *RateLimiter
	sem     *semaphore.Weighted

	calls    atomic.Int64
	inFlight atomic.Int64
	closed   atomic.Bool
}

// New creates a Connector around provider.
func New(provider Provider, config Config) (*Connector, error) {
	if provider == nil {
		return nil, types.Validation("connector for %q has no provider", config.EndpointID)
	}
	if config.MaxCallsPerSecond < 1 {
		return nil, types.Validation("endpoint %q: max_calls_per_second must be >= 1", config.EndpointID)
	}
	if config.MaxConcurrency < 1 {
		return nil, types.Validation("endpoint %q: max_concurrency must be >= 1", config.EndpointID)
	}
	if config.NumOfRetries < 0 {
		config.NumOfRetries = 0
	}
	if config.RetryBase <= 0 {
		config.RetryBase = time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 600 * time.Second
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	logger := config.Logger.With(zap.String("endpoint", config.EndpointID))

	return &Connector{
		config:   config,
		provider: provider,
		logger:   logger,
		limiter: NewRateLimiter(RateLimiterConfig{
			MaxCallsPerSecond: config.MaxCallsPerSecond,
			Logger:            logger,
		}),
		sem: semaphore.NewWeighted(int64(config.MaxConcurrency)),
	}, nil
}

// ID returns the endpoint id.
func (c *Connector) ID() string { return c.config.EndpointID }

// Config returns the effective configuration.
func (c *Connector) Config() Config { return c.config }

// Calls returns the number of remote attempts made so far.
func (c *Connector) Calls() int64 { return c.calls.Load() }

// InFlight returns the number of attempts currently running.
func (c *Connector) InFlight() int64 { return c.inFlight.Load() }

// GetResponse sends prompt to the endpoint. Transient failures are retried
// with exponential backoff; the returned error is a connector error of kind
// transient (retries exhausted) or permanent.
//
// Cancelling ctx ends waits for a concurrency slot, for the rate limiter and
// for the next retry with a cancelled error. An attempt already sent runs to
// completion.
func (c *Connector) GetResponse(ctx context.Context, prompt, systemPrompt string) (*Response, error) {
	if c.closed.Load() {
		return nil, Permanent(fmt.Errorf("connector %q is closed", c.config.EndpointID))
	}

	req := Request{
		Prompt:       c.config.PrePrompt + prompt + c.config.PostPrompt,
		SystemPrompt: systemPrompt,
	}

	start := time.Now()
	attempts := 0
	text, err := retry(ctx, c.retryPolicy(), c.logger, func() (string, error) {
		attempts++
		return c.attempt(ctx, req)
	})
	resp := &Response{
		Text:             text,
		ConnectionPrompt: req.Prompt,
		Duration:         time.Since(start),
		Attempts:         attempts,
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return resp, types.Cancelled(fmt.Sprintf("request to %q cancelled: %v", c.config.EndpointID, ctxErr))
		}
		c.logger.Warn("Connector request failed",
			zap.Int("attempts", attempts),
			zap.Error(err))
		if IsPermanent(err) {
			return resp, err
		}
		return resp, &types.Error{
			Kind:    types.KindConnectorTransient,
			Message: fmt.Sprintf("endpoint %q failed after %d attempts", c.config.EndpointID, attempts),
			Cause:   err,
		}
	}
	return resp, nil
}

func (c *Connector) retryPolicy() retryPolicy {
	tries := uint(1)
	if c.config.AllowRetries {
		tries += uint(c.config.NumOfRetries)
	}
	return retryPolicy{maxTries: tries, base: c.config.RetryBase}
}

// attempt runs one provider call inside the concurrency and rate limits.
func (c *Connector) attempt(ctx context.Context, req Request) (string, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.sem.Release(1)

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.calls.Add(1)
	c.inFlight.Add(1)
	defer c.inFlight.Add(-1)

	// A request that has started is not aborted by cancellation; only the
	// per-attempt timeout bounds it.
	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.Timeout)
	defer cancel()

	text, err := c.provider.Complete(attemptCtx, req)
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return "", Transient(fmt.Errorf("attempt timed out after %s: %w", c.config.Timeout, err))
		}
		return "", err
	}
	return text, nil
}

// CheckConnection reports whether the endpoint answers. It makes a single
// attempt without retries.
func (c *Connector) CheckConnection(ctx context.Context) bool {
	if checker, ok := c.provider.(ConnectionChecker); ok {
		ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
		if err := checker.CheckConnection(ctx); err != nil {
			c.logger.Info("Connection check failed", zap.Error(err))
			return false
		}
		return true
	}
	if _, err := c.attempt(ctx, Request{Prompt: "Hello"}); err != nil {
		c.logger.Info("Connection check failed", zap.Error(err))
		return false
	}
	return true
}

// Close stops the rate limiter. Pending waiters fail. Safe to call more than
// once.
func (c *Connector) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.limiter.Close()
	return nil
}

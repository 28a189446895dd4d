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
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/crucible/pkg/catalog"
	"github.com/teradata-labs/crucible/pkg/types"
)

// fakeProvider records concurrency and fails the first failFirst attempts
// of every prompt.
type fakeProvider struct {
	delay     time.Duration
	failFirst int
	failWith  func(attempt int) error

	mu          sync.Mutex
	attempts    map[string]int
	inFlight    int
	maxInFlight int
	prompts     []string
}

func (f *fakeProvider) Complete(ctx context.Context, req Request) (string, error) {
	f.mu.Lock()
	if f.attempts == nil {
		f.attempts = make(map[string]int)
	}
	f.attempts[req.Prompt]++
	n := f.attempts[req.Prompt]
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.prompts = append(f.prompts, req.Prompt)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if n <= f.failFirst {
		if f.failWith != nil {
			return "", f.failWith(n)
		}
		return "", Transient(fmt.Errorf("flaky attempt %d", n))
	}
	return "echo:" + req.Prompt, nil
}

func newTestConnector(t *testing.T, p Provider, mutate func(*Config)) *Connector {
	t.Helper()
	cfg := DefaultConfig()
	cfg.EndpointID = "e1"
	cfg.RetryBase = 10 * time.Millisecond
	cfg.Logger = zaptest.NewLogger(t)
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(p, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestGetResponse_PrePostPrompt(t *testing.T) {
	p := &fakeProvider{}
	c := newTestConnector(t, p, func(cfg *Config) {
		cfg.PrePrompt = "<<"
		cfg.PostPrompt = ">>"
	})

	resp, err := c.GetResponse(context.Background(), "hi", "")
	require.NoError(t, err)
	assert.Equal(t, "echo:<<hi>>", resp.Text)
	assert.Equal(t, "<<hi>>", resp.ConnectionPrompt)
	assert.Equal(t, 1, resp.Attempts)
	assert.Equal(t, int64(1), c.Calls())
}

func TestGetResponse_TransientRetry(t *testing.T) {
	p := &fakeProvider{failFirst: 2}
	c := newTestConnector(t, p, func(cfg *Config) { cfg.NumOfRetries = 3 })

	start := time.Now()
	resp, err := c.GetResponse(context.Background(), "q", "")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "echo:q", resp.Text)
	assert.Equal(t, 3, resp.Attempts)
	assert.Equal(t, int64(3), c.Calls())
	// two backoffs: base + 2*base
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
}

func TestGetResponse_RetriesExhausted(t *testing.T) {
	p := &fakeProvider{failFirst: 10}
	c := newTestConnector(t, p, func(cfg *Config) { cfg.NumOfRetries = 2 })

	_, err := c.GetResponse(context.Background(), "q", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConnectorTransient))
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int64(3), c.Calls())
}

func TestGetResponse_PermanentNotRetried(t *testing.T) {
	p := &fakeProvider{failFirst: 10, failWith: func(int) error { return StatusError(401, "bad key") }}
	c := newTestConnector(t, p, nil)

	_, err := c.GetResponse(context.Background(), "q", "")
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, int64(1), c.Calls())
}

func TestGetResponse_RetriesDisabled(t *testing.T) {
	p := &fakeProvider{failFirst: 1}
	c := newTestConnector(t, p, func(cfg *Config) { cfg.AllowRetries = false })

	_, err := c.GetResponse(context.Background(), "q", "")
	require.Error(t, err)
	assert.Equal(t, int64(1), c.Calls())
}

func TestGetResponse_TimeoutIsTransient(t *testing.T) {
	p := &fakeProvider{delay: 200 * time.Millisecond}
	c := newTestConnector(t, p, func(cfg *Config) {
		cfg.Timeout = 20 * time.Millisecond
		cfg.NumOfRetries = 1
	})

	_, err := c.GetResponse(context.Background(), "slow", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConnectorTransient))
	assert.Contains(t, err.Error(), "timed out")
	assert.Equal(t, int64(2), c.Calls())
}

func TestGetResponse_Cancelled(t *testing.T) {
	p := &fakeProvider{failFirst: 10}
	c := newTestConnector(t, p, func(cfg *Config) { cfg.RetryBase = time.Hour })

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := c.GetResponse(ctx, "q", "")
	require.Error(t, err)
	assert.True(t, types.IsCancelled(err))
}

func TestGetResponse_CancelWhileRateLimited(t *testing.T) {
	p := &fakeProvider{}
	c := newTestConnector(t, p, func(cfg *Config) {
		cfg.MaxConcurrency = 4
		cfg.MaxCallsPerSecond = 1
	})

	_, err := c.GetResponse(context.Background(), "first", "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	start := time.Now()
	_, err = c.GetResponse(ctx, "second", "")
	require.Error(t, err)
	assert.True(t, types.IsCancelled(err), "got %v", err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, int64(1), c.Calls(), "no attempt after cancel")
}

func TestGetResponse_InFlightAttemptCompletes(t *testing.T) {
	p := &fakeProvider{delay: 100 * time.Millisecond}
	c := newTestConnector(t, p, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	resp, err := c.GetResponse(ctx, "q", "")
	require.NoError(t, err)
	assert.Equal(t, "echo:q", resp.Text)
	assert.Equal(t, int64(1), c.Calls())
}

func TestConnector_ConcurrencyCap(t *testing.T) {
	p := &fakeProvider{delay: 15 * time.Millisecond}
	c := newTestConnector(t, p, func(cfg *Config) {
		cfg.MaxConcurrency = 3
		cfg.MaxCallsPerSecond = 1000
	})

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.GetResponse(context.Background(), fmt.Sprintf("p%d", i), "")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, p.maxInFlight, 3)
	assert.Equal(t, int64(30), c.Calls())
	assert.Equal(t, int64(0), c.InFlight())
}

func TestConnector_RateLimitAcrossCalls(t *testing.T) {
	p := &fakeProvider{}
	c := newTestConnector(t, p, func(cfg *Config) {
		cfg.MaxConcurrency = 20
		cfg.MaxCallsPerSecond = 10
	})

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.GetResponse(context.Background(), fmt.Sprintf("p%d", i), "")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// the 11th start has to wait for the first to leave the window
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
	assert.Equal(t, int64(15), c.Calls())
}

func TestConfigFromEndpoint(t *testing.T) {
	e := &catalog.Endpoint{
		ID:                "e1",
		MaxCallsPerSecond: 4,
		MaxConcurrency:    2,
		Params: map[string]any{
			"pre_prompt":     "SYS: ",
			"num_of_retries": float64(5),
			"allow_retries":  false,
			"timeout":        float64(30),
			"retry_base":     0.5,
		},
	}
	cfg := ConfigFromEndpoint(e, DefaultConfig())

	assert.Equal(t, "e1", cfg.EndpointID)
	assert.Equal(t, 4, cfg.MaxCallsPerSecond)
	assert.Equal(t, 2, cfg.MaxConcurrency)
	assert.Equal(t, 5, cfg.NumOfRetries)
	assert.False(t, cfg.AllowRetries)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBase)
	assert.Equal(t, "SYS: ", cfg.PrePrompt)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(&fakeProvider{}, Config{EndpointID: "e", MaxCallsPerSecond: 0, MaxConcurrency: 1})
	assert.True(t, types.IsValidation(err))
	_, err = New(nil, DefaultConfig())
	assert.True(t, types.IsValidation(err))
}

func TestStatusError(t *testing.T) {
	assert.True(t, IsPermanent(StatusError(401, "")))
	assert.True(t, IsPermanent(StatusError(400, "")))
	assert.True(t, IsTransient(StatusError(429, "")))
	assert.True(t, IsTransient(StatusError(503, "")))
	assert.True(t, IsTransient(errors.New("connection reset")))
	assert.False(t, IsTransient(context.Canceled))
}

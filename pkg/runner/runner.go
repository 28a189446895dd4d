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
// Package runner executes recipes and cookbooks against a fixed set of
// endpoints, persisting every response to the runner's own store.
//
// A run enumerates a deterministic work set, dispatches it through one
// worker pool per endpoint, replays cached responses instead of calling the
// endpoint again, scores each (recipe, endpoint) bucket once it is complete
// and writes the aggregated result tree to the store and the results
// directory.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/teradata-labs/crucible/pkg/catalog"
	"github.com/teradata-labs/crucible/pkg/connector"
	"github.com/teradata-labs/crucible/pkg/connector/factory"
	"github.com/teradata-labs/crucible/pkg/metrics"
	"github.com/teradata-labs/crucible/pkg/progress"
	"github.com/teradata-labs/crucible/pkg/prompts"
	"github.com/teradata-labs/crucible/pkg/storage"
	"github.com/teradata-labs/crucible/pkg/types"
)

// Config holds the shared services a runner is built from.
type Config struct {
	Catalog    *catalog.Catalog
	Connectors *factory.Factory
	Metrics    *metrics.Engine
	// EncryptionKey opens the runner database with SQLCipher when set.
	EncryptionKey string
	Logger        *zap.Logger
}

func (c *Config) validate() error {
	if c.Catalog == nil {
		return types.Validation("runner config: catalog is required")
	}
	if c.Connectors == nil {
		return types.Validation("runner config: connector factory is required")
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NewEngine(metrics.Config{Logger: c.Logger})
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return nil
}

// Runner owns one database file and runs one benchmark at a time.
type Runner struct {
	info      catalog.RunnerInfo
	cfg       Config
	store     *storage.Store
	emitter   *progress.Emitter
	templates *prompts.Engine
	logger    *zap.Logger

	runMu sync.Mutex

	mu         sync.Mutex
	connectors map[string]*connector.Connector
	active     *execution
	closed     bool
}

// Create registers a new runner in the catalog and opens its database. The
// runner id is the slug of name; a taken id is a validation error.
func Create(ctx context.Context, cfg Config, name string, endpoints []string, description string, handler progress.Handler) (*Runner, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	id := types.Slugify(name)
	if id == "" {
		return nil, types.Validation("runner name %q does not produce a valid id", name)
	}
	dbFile := DatabaseFile(cfg.Catalog.Paths().Databases, id)
	if _, err := os.Stat(dbFile); err == nil {
		return nil, types.Validation("runner %q: database file %s is already in use", id, dbFile)
	}
	info, err := cfg.Catalog.AddRunner(catalog.RunnerInfo{
		Name:         name,
		Endpoints:    endpoints,
		DatabaseFile: dbFile,
		Description:  description,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}

	r, err := open(ctx, cfg, *info, handler)
	if err != nil {
		if delErr := cfg.Catalog.DeleteRunner(info.ID); delErr != nil {
			cfg.Logger.Warn("Failed to roll back runner metadata",
				zap.String("runner_id", info.ID),
				zap.Error(delErr))
		}
		return nil, err
	}
	r.logger.Info("Runner created", zap.Strings("endpoints", info.Endpoints))
	return r, nil
}

// DatabaseFile returns the database path of runner id under dir.
func DatabaseFile(dir, id string) string {
	return filepath.Join(dir, id+".db")
}

// Load opens an existing runner by id.
func Load(ctx context.Context, cfg Config, id string, handler progress.Handler) (*Runner, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	info, err := cfg.Catalog.Runner(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load runner: %w", err)
	}
	if info.DatabaseFile == "" {
		info.DatabaseFile = DatabaseFile(cfg.Catalog.Paths().Databases, info.ID)
	}
	return open(ctx, cfg, *info, handler)
}

func open(ctx context.Context, cfg Config, info catalog.RunnerInfo, handler progress.Handler) (*Runner, error) {
	logger := cfg.Logger.With(zap.String("runner_id", info.ID))
	store, err := storage.Open(ctx, storage.Config{
		Path:          info.DatabaseFile,
		EncryptionKey: cfg.EncryptionKey,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open runner database: %w", err)
	}
	return &Runner{
		info:       info,
		cfg:        cfg,
		store:      store,
		emitter:    progress.NewEmitter(handler, logger),
		templates:  prompts.NewEngine(cfg.Catalog),
		logger:     logger,
		connectors: make(map[string]*connector.Connector),
	}, nil
}

// ID returns the runner id.
func (r *Runner) ID() string { return r.info.ID }

// Info returns the runner's catalog entry.
func (r *Runner) Info() catalog.RunnerInfo { return r.info }

// Store returns the runner's database.
func (r *Runner) Store() *storage.Store { return r.store }

// Connector returns the runner's connector for endpointID, creating it on
// first use. Connectors are private to the runner.
func (r *Runner) Connector(endpointID string) (*connector.Connector, error) {
	e, err := r.cfg.Catalog.Endpoint(endpointID)
	if err != nil {
		return nil, err
	}
	return r.connector(e)
}

func (r *Runner) connector(e *catalog.Endpoint) (*connector.Connector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.connectors[e.ID]; ok {
		return c, nil
	}
	c, err := r.cfg.Connectors.NewConnector(e)
	if err != nil {
		return nil, err
	}
	r.connectors[e.ID] = c
	return c, nil
}

// Runs returns every run recorded by this runner, oldest first.
func (r *Runner) Runs(ctx context.Context) ([]*storage.RunRecord, error) {
	return r.store.ListRuns(ctx)
}

// Cancel asks the active run to stop. Prompts not yet dispatched are
// cancelled; requests already sent are allowed to finish and their
// responses are recorded. Cancel does not wait; use Wait for that. It is a
// no-op when no run is active or the run has already committed its final
// status.
func (r *Runner) Cancel() {
	r.mu.Lock()
	x := r.active
	r.mu.Unlock()
	if x != nil {
		x.cancel()
	}
}

// Wait blocks until the active run, if any, has settled.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	x := r.active
	r.mu.Unlock()
	if x == nil {
		return nil
	}
	select {
	case <-x.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels and waits for an active run, then releases connectors,
// the progress emitter and the database. Close is idempotent.
func (r *Runner) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	x := r.active
	r.mu.Unlock()

	if x != nil {
		x.cancel()
		<-x.done
	}

	var errs []error
	r.mu.Lock()
	for id, c := range r.connectors {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connector %q: %w", id, err))
		}
	}
	r.connectors = nil
	r.mu.Unlock()

	r.emitter.Close()
	if err := r.store.Close(); err != nil {
		errs = append(errs, err)
	}
	r.logger.Debug("Runner closed")
	return errors.Join(errs...)
}

// begin registers x as the active run. Only one run executes at a time.
func (r *Runner) begin(x *execution) error {
	if !r.runMu.TryLock() {
		return types.Validation("runner %q is already running", r.info.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.runMu.Unlock()
		return types.Validation("runner %q is closed", r.info.ID)
	}
	r.active = x
	return nil
}

func (r *Runner) end(x *execution) {
	r.mu.Lock()
	if r.active == x {
		r.active = nil
	}
	r.mu.Unlock()
	close(x.done)
	r.runMu.Unlock()
}

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
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/crucible/internal/log"
	"github.com/teradata-labs/crucible/pkg/attack"
	"github.com/teradata-labs/crucible/pkg/catalog"
	"github.com/teradata-labs/crucible/pkg/config"
	"github.com/teradata-labs/crucible/pkg/connector/factory"
	"github.com/teradata-labs/crucible/pkg/contextstrategy"
	"github.com/teradata-labs/crucible/pkg/manager"
	"github.com/teradata-labs/crucible/pkg/metrics"
	"github.com/teradata-labs/crucible/pkg/progress"
	"github.com/teradata-labs/crucible/pkg/runner"
	"github.com/teradata-labs/crucible/pkg/session"
	"github.com/teradata-labs/crucible/pkg/types"
)

// cancelTimeout bounds how long an interrupted command waits for in-flight
// prompts to be recorded.
const cancelTimeout = 2 * time.Minute

// app wires the shared services every command runs on.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	catalog    *catalog.Catalog
	connectors *factory.Factory
	metrics    *metrics.Engine
	strategies *contextstrategy.Engine
	attacks    *attack.Registry
	manager    *manager.Manager

	progress progress.Handler
	sse      *progress.SSEHandler
	server   *http.Server
}

func newApp() (*app, error) {
	cfg := appConfig
	if cfg == nil {
		return nil, withCode(exitInvalid, errors.New("configuration not loaded"))
	}
	if err := cfg.Paths.EnsureDirs(); err != nil {
		return nil, withCode(exitInvalid, fmt.Errorf("failed to create catalog directories: %w", err))
	}

	logger := log.Named("crucible")
	a := &app{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics.NewEngine(metrics.Config{Logger: logger.Named("metrics")}),
		strategies: contextstrategy.NewEngine(),
		attacks:    attack.NewRegistry(),
		manager:    manager.NewManager(logger.Named("manager")),
	}
	a.connectors = factory.New(factory.Config{
		Defaults: factory.DefaultsFromConfig(cfg),
		Logger:   logger.Named("connector"),
	})

	cat, err := catalog.Open(catalog.Options{
		Paths:              cfg.Paths,
		Logger:             logger.Named("catalog"),
		MetricExists:       a.metrics.Has,
		AttackModuleExists: a.attacks.Has,
	})
	if err != nil {
		return nil, withCode(exitInvalid, fmt.Errorf("failed to open catalog: %w", err))
	}
	a.catalog = cat

	handlers := []progress.Handler{a.manager, progress.LogHandler(logger.Named("progress"))}
	if cfg.Progress.SSEAddr != "" {
		if err := a.serveProgress(cfg.Progress.SSEAddr); err != nil {
			return nil, withCode(exitInvalid, err)
		}
		handlers = append(handlers, a.sse)
	}
	a.progress = progress.MultiHandler(handlers...)
	return a, nil
}

// serveProgress streams snapshots at http://addr/progress?stream=progress.
func (a *app) serveProgress(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	a.sse = progress.NewSSEHandler(a.logger.Named("sse"))
	mux := http.NewServeMux()
	mux.Handle("/progress", a.sse.Server())
	a.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Progress server failed", zap.Error(err))
		}
	}()
	a.logger.Info("Serving progress stream", zap.String("addr", ln.Addr().String()))
	return nil
}

func (a *app) runnerConfig() runner.Config {
	return runner.Config{
		Catalog:       a.catalog,
		Connectors:    a.connectors,
		Metrics:       a.metrics,
		EncryptionKey: a.cfg.Database.EncryptionKey,
		Logger:        a.logger.Named("runner"),
	}
}

func (a *app) sessionConfig() session.Config {
	return session.Config{
		Catalog:       a.catalog,
		Connectors:    a.connectors,
		Strategies:    a.strategies,
		Metrics:       a.metrics,
		Attacks:       a.attacks,
		ChatBatchSize: a.cfg.Session.ChatBatchSize,
		EncryptionKey: a.cfg.Database.EncryptionKey,
		Logger:        a.logger.Named("session"),
	}
}

// openRunner loads the runner named name, creating it when it does not
// exist yet.
func (a *app) openRunner(ctx context.Context, name string, endpoints []string, description string) (*runner.Runner, error) {
	id := types.Slugify(name)
	if a.catalog.HasRunner(id) {
		if len(endpoints) > 0 {
			a.logger.Warn("Runner exists, ignoring --endpoints", zap.String("runner_id", id))
		}
		return runner.Load(ctx, a.runnerConfig(), id, a.progress)
	}
	return runner.Create(ctx, a.runnerConfig(), name, endpoints, description, a.progress)
}

// await waits for a task. When ctx is interrupted first the task is
// cancelled through the manager and awaited again.
func (a *app) await(ctx context.Context, taskID string) (manager.Task, error) {
	task, err := a.manager.Wait(ctx, taskID)
	if err == nil {
		return task, nil
	}
	fmt.Fprintln(os.Stderr, "Cancelling, waiting for in-flight prompts...")
	cctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
	defer cancel()
	if err := a.manager.Cancel(cctx, taskID); err != nil {
		a.logger.Warn("Failed to cancel task", zap.String("task_id", taskID), zap.Error(err))
	}
	return a.manager.Wait(cctx, taskID)
}

func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
	defer cancel()
	if err := a.manager.Shutdown(ctx); err != nil {
		a.logger.Warn("Failed to shut down tasks", zap.Error(err))
	}
	if a.sse != nil {
		a.sse.Close()
	}
	if a.server != nil {
		_ = a.server.Shutdown(ctx)
	}
}

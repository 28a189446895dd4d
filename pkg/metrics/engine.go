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
// Package metrics scores response sets. A metric receives the ordered
// prompts, predictions and dataset targets of one (recipe, endpoint) bucket
// and returns a result map. The engine runs every requested metric on a
// bounded worker pool and merges the maps under the metric id.
package metrics

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/sahilm/fuzzy"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teradata-labs/crucible/pkg/types"
)

// Result keys shared by metrics.
const (
	// KeyGradingCriteria holds map[string]float64 values on a 0..100 scale
	// used for recipe grading.
	KeyGradingCriteria = "grading_criteria"
	// KeyError replaces the result of a failed metric.
	KeyError = "error"
	// KeyNonDeterministic flags results that may differ between runs.
	KeyNonDeterministic = "non_deterministic"
)

// Input is one ordered response set.
type Input struct {
	Prompts   []string
	Predicted []string
	Targets   []any
}

// Metric is a scoring plug-in.
type Metric interface {
	ID() string
	GetResults(ctx context.Context, in Input) (map[string]any, error)
	// Deterministic reports whether identical input always yields identical
	// results.
	Deterministic() bool
}

// Results maps metric id to that metric's result map.
type Results map[string]map[string]any

// Config holds configuration for the engine.
type Config struct {
	// Workers bounds concurrently running metrics. Default: GOMAXPROCS.
	Workers int
	Logger  *zap.Logger
}

// Engine is the registry and executor of metrics.
type Engine struct {
	mu      sync.RWMutex
	metrics map[string]Metric

	workers int
	logger  *zap.Logger
}

// NewEngine creates an engine with the built-in metrics registered.
func NewEngine(cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	e := &Engine{
		metrics: make(map[string]Metric),
		workers: cfg.Workers,
		logger:  cfg.Logger,
	}
	for _, m := range []Metric{
		ExactStrMatch{},
		RelaxStrMatch{},
		Similarity{},
		NewTokenCount(),
		RefusalRate{},
	} {
		e.Register(m)
	}
	return e
}

// Register adds or replaces a metric.
func (e *Engine) Register(m Metric) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics[m.ID()] = m
}

// Get returns the metric registered under id.
func (e *Engine) Get(id string) (Metric, error) {
	e.mu.RLock()
	m, ok := e.metrics[id]
	e.mu.RUnlock()
	if !ok {
		return nil, types.NotFound("metric", id, e.suggest(id)...)
	}
	return m, nil
}

// Has reports whether id is registered. It matches the catalog's
// MetricExists hook.
func (e *Engine) Has(id string) bool {
	_, err := e.Get(id)
	return err == nil
}

// IDs returns the registered metric ids, sorted.
func (e *Engine) IDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.metrics))
	for id := range e.metrics {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NonDeterministic returns the ids among ids whose metric is not
// deterministic. Unknown ids are ignored.
func (e *Engine) NonDeterministic(ids []string) []string {
	var out []string
	for _, id := range ids {
		if m, err := e.Get(id); err == nil && !m.Deterministic() {
			out = append(out, id)
		}
	}
	return out
}

// Evaluate runs every metric in ids over in. A metric that fails, panics
// or is unknown contributes {"error": msg} and does not affect the others.
// Evaluate returns early with ctx's error when ctx is cancelled.
func (e *Engine) Evaluate(ctx context.Context, ids []string, in Input) (Results, error) {
	results := make(Results, len(ids))
	var mu sync.Mutex
	set := func(id string, r map[string]any) {
		mu.Lock()
		results[id] = r
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			r, err := e.evaluateOne(gctx, id, in)
			if err != nil {
				e.logger.Warn("Metric failed",
					zap.String("metric", id),
					zap.Error(err))
				set(id, map[string]any{KeyError: err.Error()})
				return nil
			}
			set(id, r)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Engine) evaluateOne(ctx context.Context, id string, in Input) (r map[string]any, err error) {
	m, err := e.Get(id)
	if err != nil {
		return nil, err
	}
	defer func() {
		if p := recover(); p != nil {
			r, err = nil, fmt.Errorf("metric %q panicked: %v", id, p)
		}
	}()
	r, err = m.GetResults(ctx, in)
	if err != nil {
		return nil, err
	}
	if r == nil {
		r = map[string]any{}
	}
	if !m.Deterministic() {
		r[KeyNonDeterministic] = true
	}
	return r, nil
}

func (e *Engine) suggest(id string) []string {
	var out []string
	for i, m := range fuzzy.Find(id, e.IDs()) {
		if i == 3 {
			break
		}
		out = append(out, m.Str)
	}
	return out
}

// Score returns the canonical grading score of a result set: the
// lexically first grading criterion of the first metric in ids that
// reports one.
func Score(results Results, ids []string) (float64, bool) {
	for _, id := range ids {
		r, ok := results[id]
		if !ok {
			continue
		}
		criteria := gradingCriteria(r[KeyGradingCriteria])
		if len(criteria) == 0 {
			continue
		}
		keys := make([]string, 0, len(criteria))
		for k := range criteria {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return criteria[keys[0]], true
	}
	return 0, false
}

// gradingCriteria accepts the in-memory form and the JSON-decoded form.
func gradingCriteria(v any) map[string]float64 {
	switch c := v.(type) {
	case map[string]float64:
		return c
	case map[string]any:
		out := make(map[string]float64, len(c))
		for k, val := range c {
			if f, ok := val.(float64); ok {
				out[k] = f
			}
		}
		return out
	}
	return nil
}

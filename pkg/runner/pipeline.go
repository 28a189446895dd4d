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
package runner

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/teradata-labs/crucible/pkg/connector"
	"github.com/teradata-labs/crucible/pkg/metrics"
	"github.com/teradata-labs/crucible/pkg/progress"
	"github.com/teradata-labs/crucible/pkg/results"
	"github.com/teradata-labs/crucible/pkg/storage"
	"github.com/teradata-labs/crucible/pkg/types"
)

// runEndpoint drains one endpoint's queue with a fixed pool of workers.
// Workers take items in queue order, so dispatch within an endpoint is
// FIFO.
func (x *execution) runEndpoint(ctx context.Context, conn *connector.Connector, items []*workItem, workers int) {
	queue := make(chan *workItem, len(items))
	for _, it := range items {
		queue <- it
	}
	close(queue)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range queue {
				x.process(ctx, conn, it)
			}
		}()
	}
	wg.Wait()
}

// process runs the per-prompt pipeline: template, cache, dispatch,
// persist. Metrics run when the item's bucket has settled.
func (x *execution) process(ctx context.Context, conn *connector.Connector, it *workItem) {
	defer x.settleItem(ctx, it)

	if x.stopped(ctx) {
		x.cancelItem(it)
		return
	}

	prepared, err := x.r.templates.Apply(it.template, it.prompt)
	if err != nil {
		x.failItem(it, err)
		return
	}
	it.prepared = prepared

	storeCtx := context.WithoutCancel(ctx)
	key := cacheKey{template: it.template, prompt: it.prompt}
	ln := it.bucket.lane
	row, hit, err := ln.lookup(storeCtx, x.r.store, it.bucket, key)
	if err != nil {
		x.abort(err)
		x.cancelItem(it)
		return
	}
	if hit {
		x.replay(it, row)
		return
	}

	if err := x.tracker.Transition(it.index, progress.StatusRunningQuery); err != nil {
		x.logger.Debug("Skipping prompt", zap.Int("index", it.index), zap.Error(err))
		return
	}
	if x.stopped(ctx) {
		x.cancelItem(it)
		return
	}

	// Duplicates of a key already being dispatched wait for that response
	// instead of sending their own.
	dispatched := false
	v, err, _ := ln.flight.Do(key.String(), func() (any, error) {
		if row, ok := ln.get(key); ok {
			return row, nil
		}
		dispatched = true
		return x.dispatch(storeCtx, conn, it, prepared)
	})
	if err != nil {
		switch {
		case types.IsCancelled(err):
			x.cancelItem(it)
		case types.IsStore(err):
			if dispatched {
				x.abort(err)
			}
			x.cancelItem(it)
		default:
			x.failItem(it, err)
		}
		return
	}
	if x.stopped(ctx) {
		x.cancelItem(it)
		return
	}
	row = v.(*storage.CacheRow)
	if !dispatched {
		x.replay(it, row)
		return
	}
	it.predicted = row.PredictedResult
	it.connectionPrompt = row.ConnectionPrompt
	it.duration = row.Duration
	it.source = results.SourceQuery
	x.markScored(it)
}

// dispatch sends prepared to the endpoint and stores the response in the
// cache and in the item's lane.
func (x *execution) dispatch(storeCtx context.Context, conn *connector.Connector, it *workItem, prepared string) (*storage.CacheRow, error) {
	resp, err := conn.GetResponse(x.dispatchCtx, prepared, x.args.SystemPrompt)
	if err != nil {
		return nil, err
	}
	target, _ := json.Marshal(it.target)
	row := &storage.CacheRow{
		EndpointID:       it.bucket.endpoint.ID,
		RecipeID:         it.bucket.recipe.ID,
		PromptTemplate:   it.template,
		ConnectionPrompt: resp.ConnectionPrompt,
		Prompt:           it.prompt,
		Target:           string(target),
		PredictedResult:  resp.Text,
		Duration:         resp.Duration,
	}
	if _, err := x.r.store.PutCache(storeCtx, row); err != nil {
		return nil, err
	}
	it.bucket.lane.put(cacheKey{template: it.template, prompt: it.prompt}, row)
	return row, nil
}

// replay completes it from a cached response.
func (x *execution) replay(it *workItem, row *storage.CacheRow) {
	it.predicted = row.PredictedResult
	it.connectionPrompt = row.ConnectionPrompt
	it.duration = row.Duration
	it.source = results.SourceReadCache
	x.markScored(it)
}

func (x *execution) markScored(it *workItem) {
	if err := x.tracker.Transition(it.index, progress.StatusRunningMetricsCalculation); err != nil {
		x.logger.Debug("Skipping prompt", zap.Int("index", it.index), zap.Error(err))
		return
	}
	it.scored = true
}

func (x *execution) failItem(it *workItem, err error) {
	it.errMsg = err.Error()
	x.tracker.Fail(it.index, err.Error())
	x.logger.Warn("Prompt failed",
		zap.Int("index", it.index),
		zap.String("recipe", it.bucket.recipe.ID),
		zap.String("endpoint", it.bucket.endpoint.ID),
		zap.Error(err))
}

func (x *execution) cancelItem(it *workItem) {
	_ = x.tracker.Transition(it.index, progress.StatusCancelled)
}

// settleItem counts it out of its bucket and scores the bucket when it
// was the last one.
func (x *execution) settleItem(ctx context.Context, it *workItem) {
	if it.bucket.remaining.Add(-1) != 0 {
		return
	}
	if x.stopped(ctx) {
		return
	}
	x.evaluate(ctx, it.bucket)
}

// evaluate applies the recipe metrics to the bucket's responded items and
// completes them. It runs at most once per bucket.
func (x *execution) evaluate(ctx context.Context, b *bucket) {
	b.evalOnce.Do(func() {
		var (
			idx []int
			in  metrics.Input
		)
		for _, it := range b.items {
			if !it.scored {
				continue
			}
			idx = append(idx, it.index)
			in.Prompts = append(in.Prompts, it.prompt)
			in.Predicted = append(in.Predicted, it.predicted)
			in.Targets = append(in.Targets, it.target)
		}
		if len(idx) == 0 {
			return
		}
		res, err := x.r.cfg.Metrics.Evaluate(ctx, b.recipe.Metrics, in)
		if err != nil {
			x.logger.Info("Metric calculation interrupted",
				zap.String("recipe", b.recipe.ID),
				zap.String("endpoint", b.endpoint.ID),
				zap.Error(err))
			return
		}
		b.results = res
		b.evaluated = true
		if skipped := x.tracker.TransitionAll(idx, progress.StatusCompleted); len(skipped) > 0 {
			x.logger.Debug("Prompts not completed", zap.Ints("indices", skipped))
		}
	})
}

// lookup matches key against the lane's rows. Stored rows are loaded on
// first use.
func (l *lane) lookup(ctx context.Context, store *storage.Store, b *bucket, key cacheKey) (*storage.CacheRow, bool, error) {
	l.loadOnce.Do(func() {
		rows, err := store.CacheRows(ctx, b.recipe.ID, b.endpoint.ID)
		if err != nil {
			l.loadErr = err
			return
		}
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.rows == nil {
			l.rows = make(map[cacheKey]*storage.CacheRow, len(rows))
		}
		for _, row := range rows {
			l.rows[cacheKey{template: row.PromptTemplate, prompt: row.Prompt}] = row
		}
	})
	if l.loadErr != nil {
		return nil, false, l.loadErr
	}
	row, ok := l.get(key)
	return row, ok, nil
}

func (l *lane) get(key cacheKey) (*storage.CacheRow, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	row, ok := l.rows[key]
	return row, ok
}

func (l *lane) put(key cacheKey, row *storage.CacheRow) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rows == nil {
		l.rows = make(map[cacheKey]*storage.CacheRow)
	}
	if _, ok := l.rows[key]; !ok {
		l.rows[key] = row
	}
}

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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teradata-labs/crucible/pkg/progress"
	"github.com/teradata-labs/crucible/pkg/results"
	"github.com/teradata-labs/crucible/pkg/storage"
	"github.com/teradata-labs/crucible/pkg/types"
)

// RunArgs selects what a run executes and how prompts are sampled.
type RunArgs struct {
	// Recipes is read by RunRecipes.
	Recipes []string `json:"recipes,omitempty"`
	// Cookbooks is read by RunCookbooks.
	Cookbooks []string `json:"cookbooks,omitempty"`
	// PromptSelectionPercentage is the share of each dataset to run, 1..100.
	PromptSelectionPercentage int    `json:"prompt_selection_percentage"`
	RandomSeed                int64  `json:"random_seed"`
	SystemPrompt              string `json:"system_prompt"`
}

func (a RunArgs) validate() error {
	if a.PromptSelectionPercentage < 1 || a.PromptSelectionPercentage > 100 {
		return types.Validation("prompt_selection_percentage must be in [1, 100], got %d", a.PromptSelectionPercentage)
	}
	return nil
}

// RunResult is the outcome of a run.
type RunResult struct {
	RunID    int64
	Status   progress.RunStatus
	Document *results.Document
	// Progress is the terminal snapshot.
	Progress progress.Snapshot
}

// RunRecipes runs args.Recipes against every endpoint of the runner. The
// returned error is set only for invalid input, missing catalog entries and
// store failures; cancelled runs and prompt failures are reported through
// RunResult.Status.
func (r *Runner) RunRecipes(ctx context.Context, args RunArgs) (*RunResult, error) {
	if len(args.Recipes) == 0 {
		return nil, types.Validation("no recipes to run")
	}
	if err := unique("recipe", args.Recipes); err != nil {
		return nil, err
	}
	return r.run(ctx, storage.RunTypeRecipe, args, nil, [][]string{args.Recipes})
}

// RunCookbooks runs the recipes of args.Cookbooks, cookbook by cookbook in
// declaration order.
func (r *Runner) RunCookbooks(ctx context.Context, args RunArgs) (*RunResult, error) {
	if len(args.Cookbooks) == 0 {
		return nil, types.Validation("no cookbooks to run")
	}
	if err := unique("cookbook", args.Cookbooks); err != nil {
		return nil, err
	}
	recipes := make([][]string, 0, len(args.Cookbooks))
	for _, id := range args.Cookbooks {
		cb, err := r.cfg.Catalog.Cookbook(id)
		if err != nil {
			return nil, err
		}
		recipes = append(recipes, cb.Recipes)
	}
	return r.run(ctx, storage.RunTypeCookbook, args, args.Cookbooks, recipes)
}

func unique(kind string, ids []string) error {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return types.Validation("duplicate %s %q", kind, id)
		}
		seen[id] = true
	}
	return nil
}

// execution is the state of one run.
type execution struct {
	r       *Runner
	args    RunArgs
	plan    *plan
	tracker *progress.Tracker
	logger  *zap.Logger

	// stop is set by Cancel and by fatal store errors. dispatchCtx is
	// cancelled at the same time and bounds every wait inside a connector.
	stop         atomic.Bool
	dispatchCtx  context.Context
	stopDispatch context.CancelFunc
	mu           sync.Mutex
	cancelled    bool
	final        bool
	fatal        error

	done chan struct{}
}

// cancel records a cancellation unless the final status is committed.
func (x *execution) cancel() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.final {
		return
	}
	x.cancelled = true
	x.stop.Store(true)
	x.stopDispatch()
}

// abort stops the run because of an unrecoverable store error.
func (x *execution) abort(err error) {
	x.mu.Lock()
	if x.fatal == nil {
		x.fatal = err
		x.logger.Error("Run aborted", zap.Error(err))
	}
	x.mu.Unlock()
	x.stop.Store(true)
	x.stopDispatch()
	x.tracker.AddError(err.Error())
}

func (x *execution) stopped(ctx context.Context) bool {
	return x.stop.Load() || ctx.Err() != nil
}

func (r *Runner) run(ctx context.Context, runType storage.RunType, args RunArgs, cookbooks []string, recipes [][]string) (*RunResult, error) {
	if err := args.validate(); err != nil {
		return nil, err
	}
	pl, err := (&planner{
		catalog:   r.cfg.Catalog,
		metrics:   r.cfg.Metrics,
		templates: r.templates,
		args:      args,
	}).build(runType, cookbooks, recipes, r.info.Endpoints)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare run: %w", err)
	}

	x := &execution{
		r:       r,
		args:    args,
		plan:    pl,
		tracker: progress.NewTracker(r.info.ID, len(pl.items), r.emitter.Publish),
		logger:  r.logger,
		done:    make(chan struct{}),
	}
	x.dispatchCtx, x.stopDispatch = context.WithCancel(ctx)
	defer x.stopDispatch()
	if err := r.begin(x); err != nil {
		return nil, err
	}
	defer r.end(x)

	// Store writes outlive cancellation so partial state is flushed.
	storeCtx := context.WithoutCancel(ctx)

	argsJSON, _ := json.Marshal(args)
	rec := &storage.RunRecord{
		RunnerID:     r.info.ID,
		Type:         runType,
		RunArgs:      argsJSON,
		StartTime:    time.Now(),
		DBFile:       r.store.Path(),
		FilePath:     results.Path(r.cfg.Catalog.Paths().Results, r.info.ID),
		Recipes:      pl.recipes,
		Cookbooks:    cookbooks,
		Endpoints:    r.info.Endpoints,
		NumOfPrompts: len(pl.items),
		Status:       string(progress.RunRunning),
	}
	if err := r.store.CreateRun(storeCtx, rec); err != nil {
		x.tracker.AddError(err.Error())
		snap := x.tracker.Finish(progress.RunError)
		return &RunResult{Status: progress.RunError, Progress: snap}, err
	}
	x.tracker.SetRun(rec.RunID, progress.RunRunning)
	x.logger.Info("Run started",
		zap.Int64("run_id", rec.RunID),
		zap.String("type", string(runType)),
		zap.Int("num_of_prompts", len(pl.items)))

	var g errgroup.Group
	for _, e := range pl.endpoints {
		items := pl.queues[e.ID]
		if len(items) == 0 {
			continue
		}
		conn, err := r.connector(e)
		if err != nil {
			x.abort(fmt.Errorf("failed to create connector for %q: %w", e.ID, err))
			break
		}
		workers := min(e.MaxConcurrency, len(items))
		g.Go(func() error {
			x.runEndpoint(ctx, conn, items, workers)
			return nil
		})
	}
	_ = g.Wait()

	status := x.settle(ctx)

	rec.EndTime = time.Now()
	rec.Status = string(status)
	doc := x.document(rec)
	rec.Results, _ = json.Marshal(doc.Results)
	rec.RawResults, _ = json.Marshal(x.rawResults())

	var runErr error
	if err := r.store.UpdateRun(storeCtx, rec); err != nil {
		runErr = err
	} else if err := results.Write(rec.FilePath, doc); err != nil {
		runErr = err
	}
	if runErr != nil {
		x.tracker.AddError(runErr.Error())
		status = progress.RunError
		doc.Metadata.Status = string(status)
	}
	if runErr == nil {
		x.mu.Lock()
		runErr = x.fatal
		x.mu.Unlock()
	}

	snap := x.tracker.Finish(status)
	x.logger.Info("Run finished",
		zap.Int64("run_id", rec.RunID),
		zap.String("status", string(status)),
		zap.Int("completed", snap.Completed),
		zap.Int("error", snap.Error),
		zap.Int("cancelled", snap.Cancelled),
		zap.Duration("duration", rec.Duration()))

	return &RunResult{RunID: rec.RunID, Status: status, Document: doc, Progress: snap}, runErr
}

// settle commits the final run status. A cancel that arrives after this
// point is ignored. Buckets left incomplete by a cancellation are scored
// over the prompts that already have a response; everything else still
// open becomes cancelled.
func (x *execution) settle(ctx context.Context) progress.RunStatus {
	x.mu.Lock()
	x.final = true
	cancelled, fatal := x.cancelled, x.fatal
	x.mu.Unlock()

	if cancelled && fatal == nil && ctx.Err() == nil {
		for _, g := range x.plan.groups {
			for _, b := range g.buckets {
				x.evaluate(ctx, b)
			}
		}
	}
	x.tracker.CancelRemaining()

	snap := x.tracker.Snapshot()
	switch {
	case fatal != nil:
		return progress.RunError
	case cancelled || ctx.Err() != nil:
		return progress.RunCancelled
	case snap.Error > 0:
		return progress.RunCompletedWithErrors
	default:
		return progress.RunCompleted
	}
}

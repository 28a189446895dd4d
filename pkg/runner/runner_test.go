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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/crucible/pkg/catalog"
	"github.com/teradata-labs/crucible/pkg/config"
	"github.com/teradata-labs/crucible/pkg/connector"
	"github.com/teradata-labs/crucible/pkg/connector/factory"
	"github.com/teradata-labs/crucible/pkg/metrics"
	"github.com/teradata-labs/crucible/pkg/progress"
	"github.com/teradata-labs/crucible/pkg/results"
	"github.com/teradata-labs/crucible/pkg/types"
)

// scriptedProvider answers "prompt N" with "answer N" unless told to fail
// or answer wrongly.
type scriptedProvider struct {
	delay  time.Duration
	fail   map[string]error
	wrong  map[string]bool
	onCall func(n int64)

	calls       atomic.Int64
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
}

func (p *scriptedProvider) Complete(ctx context.Context, req connector.Request) (string, error) {
	n := p.calls.Add(1)
	if p.onCall != nil {
		p.onCall(n)
	}
	p.mu.Lock()
	p.inFlight++
	p.maxInFlight = max(p.maxInFlight, p.inFlight)
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.inFlight--
		p.mu.Unlock()
	}()

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err, ok := p.fail[req.Prompt]; ok {
		return "", err
	}
	if p.wrong[req.Prompt] {
		return "no idea", nil
	}
	return strings.Replace(req.Prompt, "prompt", "answer", 1), nil
}

type testEnv struct {
	cfg      Config
	provider *scriptedProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	paths := config.Paths{
		Recipes:             filepath.Join(root, "recipes"),
		Cookbooks:           filepath.Join(root, "cookbooks"),
		Datasets:            filepath.Join(root, "datasets"),
		PromptTemplates:     filepath.Join(root, "prompt_templates"),
		ConnectorsEndpoints: filepath.Join(root, "connectors_endpoints"),
		Metrics:             filepath.Join(root, "metrics"),
		ContextStrategy:     filepath.Join(root, "context_strategy"),
		AttackModules:       filepath.Join(root, "attack_modules"),
		Results:             filepath.Join(root, "results"),
		Databases:           filepath.Join(root, "databases"),
		Runners:             filepath.Join(root, "runners"),
	}
	require.NoError(t, paths.EnsureDirs())

	logger := zaptest.NewLogger(t)
	engine := metrics.NewEngine(metrics.Config{Logger: logger})
	cat, err := catalog.Open(catalog.Options{Paths: paths, Logger: logger, MetricExists: engine.Has})
	require.NoError(t, err)

	provider := &scriptedProvider{}
	f := factory.New(factory.Config{
		Logger:      logger,
		TokenLookup: func(string) (string, error) { return "", keyring.ErrNotFound },
	})
	f.Register("scripted", func(*catalog.Endpoint) (connector.Provider, error) { return provider, nil })

	return &testEnv{
		cfg:      Config{Catalog: cat, Connectors: f, Metrics: engine, Logger: logger},
		provider: provider,
	}
}

func (e *testEnv) endpoint(t *testing.T, name string, concurrency, qps int) string {
	t.Helper()
	ep, err := e.cfg.Catalog.AddEndpoint(catalog.Endpoint{
		Name:              name,
		ConnectorType:     "scripted",
		MaxConcurrency:    concurrency,
		MaxCallsPerSecond: qps,
	})
	require.NoError(t, err)
	return ep.ID
}

func (e *testEnv) dataset(t *testing.T, name string, n int) string {
	t.Helper()
	examples := make([]catalog.Example, n)
	for i := range examples {
		examples[i] = catalog.Example{Input: fmt.Sprintf("prompt %d", i), Target: fmt.Sprintf("answer %d", i)}
	}
	ds, err := e.cfg.Catalog.AddDataset(catalog.Dataset{Name: name, Examples: examples})
	require.NoError(t, err)
	return ds.ID
}

var fiveGrades = catalog.GradingScale{"A": {0, 19}, "B": {20, 39}, "C": {40, 59}, "D": {60, 79}, "E": {80, 100}}

func (e *testEnv) recipe(t *testing.T, name string, datasets []string, templates ...string) string {
	t.Helper()
	r, err := e.cfg.Catalog.AddRecipe(catalog.Recipe{
		Name:            name,
		Datasets:        datasets,
		PromptTemplates: templates,
		Metrics:         []string{"exact_str_match"},
		GradingScale:    fiveGrades,
	})
	require.NoError(t, err)
	return r.ID
}

type snapshotLog struct {
	mu    sync.Mutex
	snaps []progress.Snapshot
}

func (l *snapshotLog) OnProgress(s progress.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snaps = append(l.snaps, s)
}

func (l *snapshotLog) all() []progress.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]progress.Snapshot(nil), l.snaps...)
}

func fullRun(recipes ...string) RunArgs {
	return RunArgs{Recipes: recipes, PromptSelectionPercentage: 100}
}

func TestRunRecipes_HappyPath(t *testing.T) {
	env := newTestEnv(t)
	e1 := env.endpoint(t, "E1", 2, 10)
	r1 := env.recipe(t, "R1", []string{env.dataset(t, "DS", 10)})
	env.provider.delay = 5 * time.Millisecond

	log := &snapshotLog{}
	ctx := context.Background()
	r, err := Create(ctx, env.cfg, "Bench", []string{e1}, "happy path", log)
	require.NoError(t, err)

	res, err := r.RunRecipes(ctx, fullRun(r1))
	require.NoError(t, err)
	require.NoError(t, r.Close())

	assert.Equal(t, progress.RunCompleted, res.Status)
	assert.Equal(t, int64(1), res.RunID)

	rr, ok := res.Document.Results.Recipe(r1)
	require.True(t, ok)
	detail, ok := rr.Detail(e1)
	require.True(t, ok)
	assert.Equal(t, 1.0, detail.Metrics["exact_str_match"]["accuracy"])
	summary, ok := rr.Summary(e1)
	require.True(t, ok)
	assert.Equal(t, "E", summary.Grade)

	assert.Equal(t, 10, res.Progress.Completed)
	assert.Equal(t, 0, res.Progress.Error)
	assert.Equal(t, 100, res.Progress.CurrentProgress)
	assert.LessOrEqual(t, env.provider.maxInFlight, 2)

	snaps := log.all()
	require.NotEmpty(t, snaps)
	for i := 1; i < len(snaps); i++ {
		assert.Less(t, snaps[i-1].Seq, snaps[i].Seq)
		assert.LessOrEqual(t, snaps[i-1].CurrentProgress, snaps[i].CurrentProgress)
		assert.Equal(t, snaps[i].Total, snaps[i].Sum())
	}
	last := snaps[len(snaps)-1]
	assert.True(t, last.Terminal())
	assert.Equal(t, 10, last.Completed)

	onDisk, err := results.Read(results.Path(env.cfg.Catalog.Paths().Results, r.ID()))
	require.NoError(t, err)
	assert.Equal(t, res.RunID, onDisk.Metadata.RunID)
}

func TestRunRecipes_CacheReplay(t *testing.T) {
	env := newTestEnv(t)
	e1 := env.endpoint(t, "E1", 2, 100)
	r1 := env.recipe(t, "R1", []string{env.dataset(t, "DS", 10)})
	ctx := context.Background()

	r, err := Create(ctx, env.cfg, "Replay", []string{e1}, "", nil)
	require.NoError(t, err)
	first, err := r.RunRecipes(ctx, fullRun(r1))
	require.NoError(t, err)
	n, err := r.Store().CountCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	require.NoError(t, r.Close())
	require.Equal(t, int64(10), env.provider.calls.Load())

	r, err = Load(ctx, env.cfg, r.ID(), nil)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	second, err := r.RunRecipes(ctx, fullRun(r1))
	require.NoError(t, err)

	assert.Equal(t, int64(10), env.provider.calls.Load(), "replay must not call the endpoint")
	conn, err := r.Connector(e1)
	require.NoError(t, err)
	assert.Zero(t, conn.Calls())
	assert.Equal(t, int64(2), second.RunID)
	assert.Equal(t, first.Document.Results, second.Document.Results)
	assert.Equal(t, 10, second.Progress.Completed)

	rec, err := r.Store().LatestRun(ctx)
	require.NoError(t, err)
	var raw []results.PromptResult
	require.NoError(t, json.Unmarshal(rec.RawResults, &raw))
	require.Len(t, raw, 10)
	for _, pr := range raw {
		assert.Equal(t, results.SourceReadCache, pr.Source)
		assert.Equal(t, string(progress.StatusCompleted), pr.Status)
	}
}

func TestRunRecipes_CancelBeforeDispatch(t *testing.T) {
	env := newTestEnv(t)
	e1 := env.endpoint(t, "E1", 2, 100)
	r1 := env.recipe(t, "R1", []string{env.dataset(t, "DS", 10)})

	r, err := Create(context.Background(), env.cfg, "Early", []string{e1}, "", nil)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := r.RunRecipes(ctx, fullRun(r1))
	require.NoError(t, err)

	assert.Equal(t, progress.RunCancelled, res.Status)
	assert.Zero(t, res.Progress.Completed)
	assert.Equal(t, 10, res.Progress.Cancelled)
	assert.Zero(t, env.provider.calls.Load())
}

func TestRunRecipes_CancelMidRun(t *testing.T) {
	env := newTestEnv(t)
	e1 := env.endpoint(t, "E1", 1, 1000)
	r1 := env.recipe(t, "R1", []string{env.dataset(t, "DS", 100)})
	ctx := context.Background()

	r, err := Create(ctx, env.cfg, "Cancelled", []string{e1}, "", nil)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	env.provider.onCall = func(n int64) {
		if n == 11 {
			r.Cancel()
		}
	}
	res, err := r.RunRecipes(ctx, fullRun(r1))
	require.NoError(t, err)
	require.NoError(t, r.Wait(ctx))

	assert.Equal(t, progress.RunCancelled, res.Status)
	assert.Equal(t, 10, res.Progress.Completed)
	assert.Equal(t, 90, res.Progress.Cancelled)
	assert.Equal(t, 100, res.Progress.Sum())

	// The request in flight at cancel time is still recorded.
	n, err := r.Store().CountCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.Equal(t, int64(11), env.provider.calls.Load())

	rr, ok := res.Document.Results.Recipe(r1)
	require.True(t, ok)
	detail, ok := rr.Detail(e1)
	require.True(t, ok)
	assert.Equal(t, 10, detail.Metrics["exact_str_match"]["total"])
}

func TestRunRecipes_CancelWhileRateLimited(t *testing.T) {
	env := newTestEnv(t)
	e1 := env.endpoint(t, "E1", 4, 1)
	r1 := env.recipe(t, "R1", []string{env.dataset(t, "DS", 8)})
	ctx := context.Background()

	r, err := Create(ctx, env.cfg, "Throttled", []string{e1}, "", nil)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	var cancelledAt atomic.Int64
	var callsAfterCancel atomic.Int64
	env.provider.onCall = func(int64) {
		if cancelledAt.Load() != 0 {
			callsAfterCancel.Add(1)
		}
	}
	time.AfterFunc(200*time.Millisecond, func() {
		cancelledAt.Store(time.Now().UnixNano())
		r.Cancel()
	})

	start := time.Now()
	res, err := r.RunRecipes(ctx, fullRun(r1))
	require.NoError(t, err)

	assert.Equal(t, progress.RunCancelled, res.Status)
	assert.Less(t, time.Since(start), 900*time.Millisecond, "waiters must not sit out the rate limit")
	assert.Zero(t, callsAfterCancel.Load())
	assert.Equal(t, int64(1), env.provider.calls.Load())
	assert.Equal(t, 1, res.Progress.Completed)
	assert.Equal(t, 7, res.Progress.Cancelled)

	n, err := r.Store().CountCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "no cache rows past the cutoff")
}

func TestRunRecipes_PartialFailure(t *testing.T) {
	env := newTestEnv(t)
	e1 := env.endpoint(t, "E1", 3, 100)
	r1 := env.recipe(t, "R1", []string{env.dataset(t, "DS", 10)})
	env.provider.fail = map[string]error{
		"prompt 3": connector.Permanent(errors.New("malformed request")),
	}
	ctx := context.Background()

	r, err := Create(ctx, env.cfg, "Partial", []string{e1}, "", nil)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	res, err := r.RunRecipes(ctx, fullRun(r1))
	require.NoError(t, err)

	assert.Equal(t, progress.RunCompletedWithErrors, res.Status)
	assert.Equal(t, 9, res.Progress.Completed)
	assert.Equal(t, 1, res.Progress.Error)
	assert.Equal(t, []int{3}, res.Progress.ErrorPrompts)
	require.Len(t, res.Progress.CurrentErrorMessages, 1)
	assert.Contains(t, res.Progress.CurrentErrorMessages[0], "malformed request")

	rr, _ := res.Document.Results.Recipe(r1)
	detail, _ := rr.Detail(e1)
	assert.Equal(t, 1, detail.NumOfErrors)
	assert.Equal(t, 1.0, detail.Metrics["exact_str_match"]["accuracy"])

	n, err := r.Store().CountCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, n)
}

func TestRunRecipes_Grading(t *testing.T) {
	env := newTestEnv(t)
	e1 := env.endpoint(t, "E1", 2, 100)
	r1 := env.recipe(t, "R1", []string{env.dataset(t, "DS", 10)})
	env.provider.wrong = map[string]bool{}
	for i := 5; i < 10; i++ {
		env.provider.wrong[fmt.Sprintf("prompt %d", i)] = true
	}
	ctx := context.Background()

	r, err := Create(ctx, env.cfg, "Graded", []string{e1}, "", nil)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	res, err := r.RunRecipes(ctx, fullRun(r1))
	require.NoError(t, err)

	rr, _ := res.Document.Results.Recipe(r1)
	s, ok := rr.Summary(e1)
	require.True(t, ok)
	assert.True(t, s.Scored)
	assert.InDelta(t, 50.0, s.AvgGradeValue, 1e-9)
	assert.Equal(t, "C", s.Grade)
}

func TestRunCookbooks(t *testing.T) {
	env := newTestEnv(t)
	e1 := env.endpoint(t, "E1", 2, 100)
	e2 := env.endpoint(t, "E2", 1, 100)
	ds := env.dataset(t, "DS", 4)
	_, err := env.cfg.Catalog.AddPromptTemplate(catalog.PromptTemplate{Name: "Quiz", Template: "Q: {{prompt}}"})
	require.NoError(t, err)
	r1 := env.recipe(t, "R1", []string{ds})
	r2 := env.recipe(t, "R2", []string{ds}, "quiz")
	cb, err := env.cfg.Catalog.AddCookbook(catalog.Cookbook{Name: "Suite", Recipes: []string{r2, r1}})
	require.NoError(t, err)
	ctx := context.Background()

	r, err := Create(ctx, env.cfg, "Cookbook Runner", []string{e1, e2}, "", nil)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	res, err := r.RunCookbooks(ctx, RunArgs{Cookbooks: []string{cb.ID}, PromptSelectionPercentage: 100})
	require.NoError(t, err)
	assert.Equal(t, progress.RunCompleted, res.Status)
	assert.Equal(t, 16, res.Progress.Total)

	tree := res.Document.Results
	require.Len(t, tree.Cookbooks, 1)
	require.Len(t, tree.Cookbooks[0].Recipes, 2)
	assert.Equal(t, r2, tree.Cookbooks[0].Recipes[0].ID)
	assert.Equal(t, r1, tree.Cookbooks[0].Recipes[1].ID)
	assert.Len(t, tree.Cookbooks[0].Recipes[0].Details, 2)

	quiz, _ := tree.Recipe(r2)
	d, _ := quiz.Detail(e2)
	assert.Equal(t, 0.0, d.Metrics["exact_str_match"]["accuracy"], "templated prompts get templated answers")

	rec, err := r.Store().LatestRun(ctx)
	require.NoError(t, err)
	var raw []results.PromptResult
	require.NoError(t, json.Unmarshal(rec.RawResults, &raw))
	assert.Equal(t, "Q: prompt 0", raw[0].PreparedPrompt)
	assert.Equal(t, cb.ID, raw[0].Cookbook)
}

func TestRunCookbooks_DuplicatePromptsSentOnce(t *testing.T) {
	env := newTestEnv(t)
	e1 := env.endpoint(t, "E1", 3, 1000)
	ds, err := env.cfg.Catalog.AddDataset(catalog.Dataset{Name: "Repeats", Examples: []catalog.Example{
		{Input: "prompt 0", Target: "answer 0"},
		{Input: "prompt 0", Target: "answer 0"},
		{Input: "prompt 1", Target: "answer 1"},
	}})
	require.NoError(t, err)
	r1 := env.recipe(t, "R1", []string{ds.ID})
	cb1, err := env.cfg.Catalog.AddCookbook(catalog.Cookbook{Name: "First", Recipes: []string{r1}})
	require.NoError(t, err)
	cb2, err := env.cfg.Catalog.AddCookbook(catalog.Cookbook{Name: "Second", Recipes: []string{r1}})
	require.NoError(t, err)
	env.provider.delay = 20 * time.Millisecond
	ctx := context.Background()

	r, err := Create(ctx, env.cfg, "Dedup", []string{e1}, "", nil)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	res, err := r.RunCookbooks(ctx, RunArgs{Cookbooks: []string{cb1.ID, cb2.ID}, PromptSelectionPercentage: 100})
	require.NoError(t, err)
	assert.Equal(t, progress.RunCompleted, res.Status)
	assert.Equal(t, 6, res.Progress.Completed)
	assert.Equal(t, int64(2), env.provider.calls.Load())

	n, err := r.Store().CountCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec, err := r.Store().LatestRun(ctx)
	require.NoError(t, err)
	var raw []results.PromptResult
	require.NoError(t, json.Unmarshal(rec.RawResults, &raw))
	sources := map[string]int{}
	for _, pr := range raw {
		sources[pr.Source]++
		assert.Equal(t, strings.Replace(pr.Prompt, "prompt", "answer", 1), pr.PredictedResult)
	}
	assert.Equal(t, map[string]int{results.SourceQuery: 2, results.SourceReadCache: 4}, sources)
}

func TestSampleIndices(t *testing.T) {
	a := sampleIndices(10, 25, 7)
	assert.Len(t, a, 3)
	assert.Equal(t, a, sampleIndices(10, 25, 7))
	assert.IsIncreasing(t, a)
	for _, i := range a {
		assert.True(t, i >= 0 && i < 10)
	}
	assert.Equal(t, []int{0, 1, 2, 3}, sampleIndices(4, 100, 1))
	assert.Len(t, sampleIndices(3, 1, 0), 1)
	assert.Empty(t, sampleIndices(0, 50, 0))
}

func TestRunRecipes_SamplingIsDeterministic(t *testing.T) {
	env := newTestEnv(t)
	e1 := env.endpoint(t, "E1", 2, 100)
	r1 := env.recipe(t, "R1", []string{env.dataset(t, "DS", 20)})
	ctx := context.Background()
	args := RunArgs{Recipes: []string{r1}, PromptSelectionPercentage: 30, RandomSeed: 42}

	prompts := func(name string) []string {
		r, err := Create(ctx, env.cfg, name, []string{e1}, "", nil)
		require.NoError(t, err)
		defer func() { _ = r.Close() }()
		_, err = r.RunRecipes(ctx, args)
		require.NoError(t, err)
		rec, err := r.Store().LatestRun(ctx)
		require.NoError(t, err)
		var raw []results.PromptResult
		require.NoError(t, json.Unmarshal(rec.RawResults, &raw))
		out := make([]string, len(raw))
		for i, pr := range raw {
			out[i] = pr.Prompt
		}
		return out
	}

	first := prompts("Seeded A")
	assert.Len(t, first, 6)
	assert.Equal(t, first, prompts("Seeded B"))
}

func TestRunRecipes_InvalidInput(t *testing.T) {
	env := newTestEnv(t)
	e1 := env.endpoint(t, "E1", 1, 10)
	r1 := env.recipe(t, "R1", []string{env.dataset(t, "DS", 2)})
	ctx := context.Background()

	r, err := Create(ctx, env.cfg, "Strict", []string{e1}, "", nil)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	_, err = r.RunRecipes(ctx, RunArgs{Recipes: []string{r1}, PromptSelectionPercentage: 0})
	assert.True(t, types.IsValidation(err))
	_, err = r.RunRecipes(ctx, RunArgs{Recipes: []string{r1, r1}, PromptSelectionPercentage: 10})
	assert.True(t, types.IsValidation(err))
	_, err = r.RunRecipes(ctx, fullRun("r2"))
	assert.True(t, types.IsNotFound(err))
	_, err = r.RunCookbooks(ctx, RunArgs{Cookbooks: []string{"nope"}, PromptSelectionPercentage: 100})
	assert.True(t, types.IsNotFound(err))
}

func TestCreateAndLoad(t *testing.T) {
	env := newTestEnv(t)
	e1 := env.endpoint(t, "E1", 1, 10)
	ctx := context.Background()

	r, err := Create(ctx, env.cfg, "My Runner", []string{e1}, "desc", nil)
	require.NoError(t, err)
	assert.Equal(t, "my-runner", r.ID())
	assert.FileExists(t, r.Info().DatabaseFile)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err = Create(ctx, env.cfg, "my runner", []string{e1}, "", nil)
	assert.True(t, types.IsValidation(err), "slug collision")

	_, err = Create(ctx, env.cfg, "Other", []string{"missing"}, "", nil)
	assert.True(t, types.IsNotFound(err))
	assert.False(t, env.cfg.Catalog.HasRunner("other"))

	loaded, err := Load(ctx, env.cfg, "my-runner", nil)
	require.NoError(t, err)
	assert.Equal(t, "desc", loaded.Info().Description)
	require.NoError(t, loaded.Close())

	_, err = Load(ctx, env.cfg, "my-runer", nil)
	assert.True(t, types.IsNotFound(err))
}

func TestCreate_RejectsDatabaseInUse(t *testing.T) {
	env := newTestEnv(t)
	e1 := env.endpoint(t, "E1", 1, 10)
	ctx := context.Background()

	path := DatabaseFile(env.cfg.Catalog.Paths().Databases, "orphan")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	_, err := Create(ctx, env.cfg, "Orphan", []string{e1}, "", nil)
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))
	assert.False(t, env.cfg.Catalog.HasRunner("orphan"))
}

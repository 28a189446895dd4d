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

// Package catalog loads and mutates the shared read-only entities
// (endpoints, recipes, cookbooks, datasets, prompt templates, runners and
// plug-in metadata) stored as flat directories of JSON or YAML files.
//
// A Catalog is loaded once. Later disk changes are only picked up through
// Reload, which Watch calls on file events. Add, Update and Delete rewrite
// files with write-then-rename.
package catalog

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/crucible/pkg/config"
	"github.com/teradata-labs/crucible/pkg/types"
)

// Kind names a catalog entity type.
type Kind string

const (
	KindEndpoint        Kind = "endpoint"
	KindRecipe          Kind = "recipe"
	KindCookbook        Kind = "cookbook"
	KindDataset         Kind = "dataset"
	KindPromptTemplate  Kind = "prompt_template"
	KindRunner          Kind = "runner"
	KindMetric          Kind = "metric"
	KindContextStrategy Kind = "context_strategy"
	KindAttackModule    Kind = "attack_module"
)

const (
	defaultMaxCallsPerSecond = 10
	defaultMaxConcurrency    = 1
)

// Options configures a Catalog.
type Options struct {
	Paths  config.Paths
	Logger *zap.Logger

	// MetricExists reports whether a metric id is registered. Nil skips
	// the check.
	MetricExists func(id string) bool
	// AttackModuleExists reports whether an attack module id is registered.
	// Nil skips the check.
	AttackModuleExists func(id string) bool
}

// Catalog is the filesystem-backed entity store.
type Catalog struct {
	opts   Options
	logger *zap.Logger

	endpoints       *collection[*Endpoint]
	recipes         *collection[*Recipe]
	cookbooks       *collection[*Cookbook]
	datasets        *collection[*Dataset]
	promptTemplates *collection[*PromptTemplate]
	runners         *collection[*RunnerInfo]
	metrics         *collection[*PluginInfo]
	contextStrategy *collection[*PluginInfo]
	attackModules   *collection[*PluginInfo]

	mu       sync.Mutex
	problems []error
}

// Open creates a Catalog and loads every directory. Files that fail to load
// are skipped, logged and available through Problems.
func Open(opts Options) (*Catalog, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	p := opts.Paths
	c := &Catalog{
		opts:            opts,
		logger:          opts.Logger,
		endpoints:       newCollection(KindEndpoint, p.ConnectorsEndpoints, func() *Endpoint { return &Endpoint{} }),
		recipes:         newCollection(KindRecipe, p.Recipes, func() *Recipe { return &Recipe{} }),
		cookbooks:       newCollection(KindCookbook, p.Cookbooks, func() *Cookbook { return &Cookbook{} }),
		datasets:        newCollection(KindDataset, p.Datasets, func() *Dataset { return &Dataset{} }),
		promptTemplates: newCollection(KindPromptTemplate, p.PromptTemplates, func() *PromptTemplate { return &PromptTemplate{} }),
		runners:         newCollection(KindRunner, p.Runners, func() *RunnerInfo { return &RunnerInfo{} }),
		metrics:         newCollection(KindMetric, p.Metrics, func() *PluginInfo { return &PluginInfo{} }),
		contextStrategy: newCollection(KindContextStrategy, p.ContextStrategy, func() *PluginInfo { return &PluginInfo{} }),
		attackModules:   newCollection(KindAttackModule, p.AttackModules, func() *PluginInfo { return &PluginInfo{} }),
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Paths returns the directories the catalog reads from.
func (c *Catalog) Paths() config.Paths { return c.opts.Paths }

// Reload re-reads every directory and swaps the loaded entities. Only
// directory read failures are returned; per-file problems are logged.
func (c *Catalog) Reload() error {
	var problems []error
	problems = append(problems, c.endpoints.reload()...)
	problems = append(problems, c.recipes.reload()...)
	problems = append(problems, c.cookbooks.reload()...)
	problems = append(problems, c.datasets.reload()...)
	problems = append(problems, c.promptTemplates.reload()...)
	problems = append(problems, c.runners.reload()...)
	problems = append(problems, c.metrics.reload()...)
	problems = append(problems, c.contextStrategy.reload()...)
	problems = append(problems, c.attackModules.reload()...)

	var fatal []error
	for _, p := range problems {
		if !isFileProblem(p) {
			fatal = append(fatal, p)
			continue
		}
		c.logger.Warn("Skipping invalid catalog file", zap.Error(p))
	}

	c.mu.Lock()
	c.problems = problems
	c.mu.Unlock()

	c.logger.Debug("Catalog loaded",
		zap.Int("endpoints", len(c.endpoints.ids())),
		zap.Int("recipes", len(c.recipes.ids())),
		zap.Int("cookbooks", len(c.cookbooks.ids())),
		zap.Int("datasets", len(c.datasets.ids())))

	return errors.Join(fatal...)
}

func isFileProblem(err error) bool {
	var fe *fileError
	return errors.As(err, &fe)
}

// Problems returns the load problems of the last Reload.
func (c *Catalog) Problems() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.problems...)
}

// Validate returns load problems plus every broken cross reference.
func (c *Catalog) Validate() []error {
	errs := c.Problems()
	for _, r := range c.recipes.list() {
		if err := c.checkRecipeRefs(r); err != nil {
			errs = append(errs, fmt.Errorf("recipe %q: %w", r.ID, err))
		}
	}
	for _, cb := range c.cookbooks.list() {
		if err := c.checkCookbookRefs(cb); err != nil {
			errs = append(errs, fmt.Errorf("cookbook %q: %w", cb.ID, err))
		}
	}
	for _, r := range c.runners.list() {
		if err := c.checkRunnerRefs(r); err != nil {
			errs = append(errs, fmt.Errorf("runner %q: %w", r.ID, err))
		}
	}
	return errs
}

func (c *Catalog) checkRecipeRefs(r *Recipe) error {
	for _, id := range r.Datasets {
		if _, err := c.datasets.get(id); err != nil {
			return err
		}
	}
	for _, id := range r.PromptTemplates {
		if _, err := c.promptTemplates.get(id); err != nil {
			return err
		}
	}
	if c.opts.MetricExists != nil {
		for _, id := range r.Metrics {
			if !c.opts.MetricExists(id) {
				return types.NotFound(string(KindMetric), id)
			}
		}
	}
	if c.opts.AttackModuleExists != nil {
		for _, id := range r.AttackModules {
			if !c.opts.AttackModuleExists(id) {
				return types.NotFound(string(KindAttackModule), id)
			}
		}
	}
	return nil
}

func (c *Catalog) checkCookbookRefs(cb *Cookbook) error {
	for _, id := range cb.Recipes {
		if _, err := c.recipes.get(id); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) checkRunnerRefs(r *RunnerInfo) error {
	seen := make(map[string]bool, len(r.Endpoints))
	for _, id := range r.Endpoints {
		if seen[id] {
			return types.Validation("duplicate endpoint %q", id)
		}
		seen[id] = true
		if _, err := c.endpoints.get(id); err != nil {
			return err
		}
	}
	return nil
}

// Endpoint returns an endpoint by id.
func (c *Catalog) Endpoint(id string) (*Endpoint, error) { return c.endpoints.get(id) }

// Endpoints returns all endpoints sorted by id.
func (c *Catalog) Endpoints() []*Endpoint { return c.endpoints.list() }

// AddEndpoint creates an endpoint. Its id is the slug of its name. Zero
// limits default to 10 calls per second and a concurrency of 1.
func (c *Catalog) AddEndpoint(e Endpoint) (*Endpoint, error) {
	if e.MaxCallsPerSecond == 0 {
		e.MaxCallsPerSecond = defaultMaxCallsPerSecond
	}
	if e.MaxConcurrency == 0 {
		e.MaxConcurrency = defaultMaxConcurrency
	}
	if e.CreatedDate == "" {
		e.CreatedDate = time.Now().UTC().Format(time.RFC3339)
	}
	return c.endpoints.create(&e)
}

// UpdateEndpoint replaces an existing endpoint.
func (c *Catalog) UpdateEndpoint(e Endpoint) error { return c.endpoints.update(&e) }

// DeleteEndpoint removes an endpoint.
func (c *Catalog) DeleteEndpoint(id string) error { return c.endpoints.delete(id) }

// Recipe returns a recipe by id.
func (c *Catalog) Recipe(id string) (*Recipe, error) { return c.recipes.get(id) }

// Recipes returns all recipes sorted by id.
func (c *Catalog) Recipes() []*Recipe { return c.recipes.list() }

// AddRecipe creates a recipe after checking its references.
func (c *Catalog) AddRecipe(r Recipe) (*Recipe, error) {
	if err := c.checkRecipeRefs(&r); err != nil {
		return nil, err
	}
	return c.recipes.create(&r)
}

// UpdateRecipe replaces an existing recipe after checking its references.
func (c *Catalog) UpdateRecipe(r Recipe) error {
	if err := c.checkRecipeRefs(&r); err != nil {
		return err
	}
	return c.recipes.update(&r)
}

// DeleteRecipe removes a recipe.
func (c *Catalog) DeleteRecipe(id string) error { return c.recipes.delete(id) }

// ResolveRecipe returns a recipe whose references all resolve.
func (c *Catalog) ResolveRecipe(id string) (*Recipe, error) {
	r, err := c.recipes.get(id)
	if err != nil {
		return nil, err
	}
	if err := c.checkRecipeRefs(r); err != nil {
		return nil, fmt.Errorf("recipe %q: %w", id, err)
	}
	return r, nil
}

// Cookbook returns a cookbook by id.
func (c *Catalog) Cookbook(id string) (*Cookbook, error) { return c.cookbooks.get(id) }

// Cookbooks returns all cookbooks sorted by id.
func (c *Catalog) Cookbooks() []*Cookbook { return c.cookbooks.list() }

// AddCookbook creates a cookbook after checking its recipes resolve.
func (c *Catalog) AddCookbook(cb Cookbook) (*Cookbook, error) {
	if err := c.checkCookbookRefs(&cb); err != nil {
		return nil, err
	}
	return c.cookbooks.create(&cb)
}

// UpdateCookbook replaces an existing cookbook.
func (c *Catalog) UpdateCookbook(cb Cookbook) error {
	if err := c.checkCookbookRefs(&cb); err != nil {
		return err
	}
	return c.cookbooks.update(&cb)
}

// DeleteCookbook removes a cookbook.
func (c *Catalog) DeleteCookbook(id string) error { return c.cookbooks.delete(id) }

// Dataset returns a dataset by id.
func (c *Catalog) Dataset(id string) (*Dataset, error) { return c.datasets.get(id) }

// Datasets returns all datasets sorted by id.
func (c *Catalog) Datasets() []*Dataset { return c.datasets.list() }

// AddDataset creates a dataset.
func (c *Catalog) AddDataset(d Dataset) (*Dataset, error) { return c.datasets.create(&d) }

// AppendExamples appends examples to an existing dataset. Datasets are
// append-only: existing examples are never rewritten.
func (c *Catalog) AppendExamples(id string, examples ...Example) (*Dataset, error) {
	cur, err := c.datasets.get(id)
	if err != nil {
		return nil, err
	}
	next := *cur
	next.Examples = make([]Example, 0, len(cur.Examples)+len(examples))
	next.Examples = append(next.Examples, cur.Examples...)
	next.Examples = append(next.Examples, examples...)
	if err := c.datasets.update(&next); err != nil {
		return nil, err
	}
	return &next, nil
}

// DeleteDataset removes a dataset.
func (c *Catalog) DeleteDataset(id string) error { return c.datasets.delete(id) }

// PromptTemplate returns a prompt template by id.
func (c *Catalog) PromptTemplate(id string) (*PromptTemplate, error) {
	return c.promptTemplates.get(id)
}

// PromptTemplates returns all prompt templates sorted by id.
func (c *Catalog) PromptTemplates() []*PromptTemplate { return c.promptTemplates.list() }

// AddPromptTemplate creates a prompt template.
func (c *Catalog) AddPromptTemplate(p PromptTemplate) (*PromptTemplate, error) {
	return c.promptTemplates.create(&p)
}

// UpdatePromptTemplate replaces an existing prompt template.
func (c *Catalog) UpdatePromptTemplate(p PromptTemplate) error { return c.promptTemplates.update(&p) }

// DeletePromptTemplate removes a prompt template.
func (c *Catalog) DeletePromptTemplate(id string) error { return c.promptTemplates.delete(id) }

// Runner returns runner metadata by id.
func (c *Catalog) Runner(id string) (*RunnerInfo, error) { return c.runners.get(id) }

// Runners returns all runner metadata sorted by id.
func (c *Catalog) Runners() []*RunnerInfo { return c.runners.list() }

// HasRunner reports whether a runner id is taken.
func (c *Catalog) HasRunner(id string) bool { return c.runners.has(id) }

// AddRunner persists a new runner. Creation fails with a validation error
// when the slug of the name is already taken.
func (c *Catalog) AddRunner(r RunnerInfo) (*RunnerInfo, error) {
	if err := c.checkRunnerRefs(&r); err != nil {
		return nil, err
	}
	return c.runners.create(&r)
}

// UpdateRunner replaces existing runner metadata.
func (c *Catalog) UpdateRunner(r RunnerInfo) error { return c.runners.update(&r) }

// DeleteRunner removes runner metadata. The database file is left alone.
func (c *Catalog) DeleteRunner(id string) error { return c.runners.delete(id) }

// MetricInfo returns metric metadata by id.
func (c *Catalog) MetricInfo(id string) (*PluginInfo, error) { return c.metrics.get(id) }

// MetricInfos returns all metric metadata.
func (c *Catalog) MetricInfos() []*PluginInfo { return c.metrics.list() }

// ContextStrategyInfo returns context strategy metadata by id.
func (c *Catalog) ContextStrategyInfo(id string) (*PluginInfo, error) {
	return c.contextStrategy.get(id)
}

// ContextStrategyInfos returns all context strategy metadata.
func (c *Catalog) ContextStrategyInfos() []*PluginInfo { return c.contextStrategy.list() }

// AttackModuleInfo returns attack module metadata by id.
func (c *Catalog) AttackModuleInfo(id string) (*PluginInfo, error) {
	return c.attackModules.get(id)
}

// AttackModuleInfos returns all attack module metadata.
func (c *Catalog) AttackModuleInfos() []*PluginInfo { return c.attackModules.list() }

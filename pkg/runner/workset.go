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
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/teradata-labs/crucible/pkg/catalog"
	"github.com/teradata-labs/crucible/pkg/metrics"
	"github.com/teradata-labs/crucible/pkg/storage"
	"github.com/teradata-labs/crucible/pkg/types"
)

// workItem is one prompt sent to one endpoint. Outcome fields are written
// by the single worker that processes the item.
type workItem struct {
	index    int
	bucket   *bucket
	dataset  string
	template string
	prompt   string
	target   any

	prepared         string
	connectionPrompt string
	predicted        string
	duration         time.Duration
	source           string
	errMsg           string
	// scored is set once the item reached running_metrics_calculation.
	scored bool
}

// bucket collects the items of one (cookbook, recipe, endpoint) triple.
// Its metrics run once every item has settled.
type bucket struct {
	cookbook string
	recipe   *catalog.Recipe
	endpoint *catalog.Endpoint
	items    []*workItem
	// lane is shared by every bucket of the run with the same recipe and
	// endpoint.
	lane *lane

	remaining atomic.Int64

	evalOnce  sync.Once
	evaluated bool
	results   metrics.Results
}

type cacheKey struct {
	template string
	prompt   string
}

func (k cacheKey) String() string { return k.template + "\x00" + k.prompt }

// lane holds the cached responses of one (recipe, endpoint) pair for the
// duration of a run: the rows stored before the run, loaded once, and the
// responses received since. flight collapses concurrent dispatches of the
// same key into one remote call.
type lane struct {
	loadOnce sync.Once
	loadErr  error

	mu   sync.RWMutex
	rows map[cacheKey]*storage.CacheRow

	flight singleflight.Group
}

type laneKey struct {
	recipe   string
	endpoint string
}

// recipeGroup is one recipe of the work set with one bucket per endpoint.
type recipeGroup struct {
	cookbook string
	recipe   *catalog.Recipe
	buckets  []*bucket
}

// plan is the enumerated work set of a run.
type plan struct {
	runType   storage.RunType
	cookbooks []string
	recipes   []string
	endpoints []*catalog.Endpoint
	groups    []*recipeGroup
	items     []*workItem
	// queues holds each endpoint's items in submission order.
	queues map[string][]*workItem
	lanes  map[laneKey]*lane
}

func (pl *plan) lane(recipeID, endpointID string) *lane {
	k := laneKey{recipe: recipeID, endpoint: endpointID}
	l, ok := pl.lanes[k]
	if !ok {
		l = &lane{}
		pl.lanes[k] = l
	}
	return l
}

// sampleIndices picks ceil(n*pct/100) of [0, n) uniformly without
// replacement using a PCG generator seeded with seed, in ascending order.
func sampleIndices(n, pct int, seed int64) []int {
	k := int(math.Ceil(float64(n) * float64(pct) / 100))
	if k >= n {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	picked := rng.Perm(n)[:k]
	sort.Ints(picked)
	return picked
}

// planner resolves catalog references and enumerates the work set.
type planner struct {
	catalog   *catalog.Catalog
	metrics   *metrics.Engine
	templates interface{ Exists(string) bool }
	args      RunArgs

	datasets map[string]*catalog.Dataset
	samples  map[string][]int
}

func (p *planner) endpoints(ids []string) ([]*catalog.Endpoint, error) {
	if len(ids) == 0 {
		return nil, types.Validation("runner has no endpoints")
	}
	out := make([]*catalog.Endpoint, 0, len(ids))
	for _, id := range ids {
		e, err := p.catalog.Endpoint(id)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (p *planner) recipe(id string) (*catalog.Recipe, error) {
	r, err := p.catalog.ResolveRecipe(id)
	if err != nil {
		return nil, err
	}
	for _, m := range r.Metrics {
		if _, err := p.metrics.Get(m); err != nil {
			return nil, err
		}
	}
	for _, t := range r.PromptTemplates {
		if !p.templates.Exists(t) {
			return nil, types.NotFound("prompt_template", t)
		}
	}
	return r, nil
}

func (p *planner) dataset(id string) (*catalog.Dataset, []int, error) {
	if d, ok := p.datasets[id]; ok {
		return d, p.samples[id], nil
	}
	d, err := p.catalog.Dataset(id)
	if err != nil {
		return nil, nil, err
	}
	idx := sampleIndices(len(d.Examples), p.args.PromptSelectionPercentage, p.args.RandomSeed)
	p.datasets[id] = d
	p.samples[id] = idx
	return d, idx, nil
}

// build enumerates recipe by recipe (cookbook order first), endpoint by
// endpoint; within a bucket dataset, then template, then sampled example.
func (p *planner) build(runType storage.RunType, cookbooks []string, recipesByCookbook [][]string, endpointIDs []string) (*plan, error) {
	p.datasets = make(map[string]*catalog.Dataset)
	p.samples = make(map[string][]int)

	eps, err := p.endpoints(endpointIDs)
	if err != nil {
		return nil, err
	}
	pl := &plan{
		runType:   runType,
		cookbooks: cookbooks,
		endpoints: eps,
		queues:    make(map[string][]*workItem, len(eps)),
		lanes:     make(map[laneKey]*lane),
	}
	seenRecipe := make(map[string]bool)

	for ci, recipeIDs := range recipesByCookbook {
		cookbook := ""
		if runType == storage.RunTypeCookbook {
			cookbook = cookbooks[ci]
		}
		for _, rid := range recipeIDs {
			rec, err := p.recipe(rid)
			if err != nil {
				return nil, err
			}
			if !seenRecipe[rec.ID] {
				seenRecipe[rec.ID] = true
				pl.recipes = append(pl.recipes, rec.ID)
			}
			g := &recipeGroup{cookbook: cookbook, recipe: rec}
			for _, e := range eps {
				b := &bucket{cookbook: cookbook, recipe: rec, endpoint: e, lane: pl.lane(rec.ID, e.ID)}
				if err := p.fill(pl, b); err != nil {
					return nil, err
				}
				b.remaining.Store(int64(len(b.items)))
				g.buckets = append(g.buckets, b)
			}
			pl.groups = append(pl.groups, g)
		}
	}
	return pl, nil
}

func (p *planner) fill(pl *plan, b *bucket) error {
	templates := b.recipe.PromptTemplates
	if len(templates) == 0 {
		templates = []string{""}
	}
	for _, dsID := range b.recipe.Datasets {
		ds, idx, err := p.dataset(dsID)
		if err != nil {
			return err
		}
		for _, tpl := range templates {
			for _, i := range idx {
				ex := ds.Examples[i]
				it := &workItem{
					index:    len(pl.items),
					bucket:   b,
					dataset:  ds.ID,
					template: tpl,
					prompt:   ex.Input,
					target:   ex.Target,
				}
				b.items = append(b.items, it)
				pl.items = append(pl.items, it)
				pl.queues[b.endpoint.ID] = append(pl.queues[b.endpoint.ID], it)
			}
		}
	}
	return nil
}

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
package catalog

import (
	"fmt"
	"math"
	"regexp"
	"sort"

	"github.com/teradata-labs/crucible/pkg/types"
)

// PromptPlaceholder matches the {{prompt}} hole of a prompt template.
// Whitespace inside the braces is tolerated.
var PromptPlaceholder = regexp.MustCompile(`\{\{\s*prompt\s*\}\}`)

// GradeUnknown is returned when a score falls outside every grading range.
const GradeUnknown = "unknown"

// Entity is implemented by every catalog entity.
type Entity interface {
	EntityID() string
	EntityName() string
	setEntityID(id string)
}

// Endpoint describes a bound LLM service.
type Endpoint struct {
	ID                string         `json:"id" yaml:"id"`
	Name              string         `json:"name" yaml:"name"`
	ConnectorType     string         `json:"connector_type" yaml:"connector_type"`
	URI               string         `json:"uri" yaml:"uri"`
	Token             string         `json:"token" yaml:"token"`
	MaxCallsPerSecond int            `json:"max_calls_per_second" yaml:"max_calls_per_second"`
	MaxConcurrency    int            `json:"max_concurrency" yaml:"max_concurrency"`
	Params            map[string]any `json:"params" yaml:"params"`
	CreatedDate       string         `json:"created_date" yaml:"created_date"`
}

func (e *Endpoint) EntityID() string { return e.ID }
func (e *Endpoint) EntityName() string { return e.Name }
func (e *Endpoint) setEntityID(id string) { e.ID = id }

// Validate checks the endpoint's own fields.
func (e *Endpoint) Validate() error {
	if e.Name == "" {
		return types.Validation("endpoint name is required")
	}
	if e.ConnectorType == "" {
		return types.Validation("endpoint %q: connector_type is required", e.ID)
	}
	if e.MaxCallsPerSecond < 1 {
		return types.Validation("endpoint %q: max_calls_per_second must be >= 1, got %d", e.ID, e.MaxCallsPerSecond)
	}
	if e.MaxConcurrency < 1 {
		return types.Validation("endpoint %q: max_concurrency must be >= 1, got %d", e.ID, e.MaxConcurrency)
	}
	return nil
}

// GradingScale maps a grade label to an inclusive integer range.
type GradingScale map[string][2]int

// Validate checks that the ranges partition [0,100]: no overlap and no gap.
// An empty scale is valid and grades everything as unknown.
func (g GradingScale) Validate() error {
	if len(g) == 0 {
		return nil
	}
	type span struct {
		label  string
		lo, hi int
	}
	spans := make([]span, 0, len(g))
	for label, r := range g {
		if r[0] > r[1] {
			return types.Validation("grading range %q is inverted: [%d, %d]", label, r[0], r[1])
		}
		if r[0] < 0 || r[1] > 100 {
			return types.Validation("grading range %q is outside [0, 100]: [%d, %d]", label, r[0], r[1])
		}
		spans = append(spans, span{label, r[0], r[1]})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].lo < spans[j].lo })

	next := 0
	for _, s := range spans {
		switch {
		case s.lo < next:
			return types.Validation("grading range %q overlaps a previous range at %d", s.label, s.lo)
		case s.lo > next:
			return types.Validation("grading ranges leave a gap at [%d, %d]", next, s.lo-1)
		}
		next = s.hi + 1
	}
	if next != 101 {
		return types.Validation("grading ranges leave a gap at [%d, 100]", next)
	}
	return nil
}

// Grade maps a score onto the scale. Fractional scores are floored before
// matching; a score outside every range grades as unknown.
func (g GradingScale) Grade(score float64) string {
	if math.IsNaN(score) {
		return GradeUnknown
	}
	s := int(math.Floor(score))
	for label, r := range g {
		if s >= r[0] && s <= r[1] {
			return label
		}
	}
	return GradeUnknown
}

// Recipe binds datasets, prompt templates and metrics into a test unit.
type Recipe struct {
	ID              string       `json:"id" yaml:"id"`
	Name            string       `json:"name" yaml:"name"`
	Description     string       `json:"description" yaml:"description"`
	Tags            []string     `json:"tags" yaml:"tags"`
	Categories      []string     `json:"categories" yaml:"categories"`
	Datasets        []string     `json:"datasets" yaml:"datasets"`
	PromptTemplates []string     `json:"prompt_templates" yaml:"prompt_templates"`
	Metrics         []string     `json:"metrics" yaml:"metrics"`
	AttackModules   []string     `json:"attack_modules" yaml:"attack_modules"`
	GradingScale    GradingScale `json:"grading_scale" yaml:"grading_scale"`
}

func (r *Recipe) EntityID() string { return r.ID }
func (r *Recipe) EntityName() string { return r.Name }
func (r *Recipe) setEntityID(id string) { r.ID = id }

// Validate checks the recipe's own fields. References are checked by the
// catalog.
func (r *Recipe) Validate() error {
	if r.Name == "" {
		return types.Validation("recipe name is required")
	}
	if len(r.Datasets) == 0 {
		return types.Validation("recipe %q must reference at least one dataset", r.ID)
	}
	if err := r.GradingScale.Validate(); err != nil {
		return fmt.Errorf("recipe %q: %w", r.ID, err)
	}
	return nil
}

// Cookbook is an ordered collection of recipes.
type Cookbook struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Recipes     []string `json:"recipes" yaml:"recipes"`
}

func (c *Cookbook) EntityID() string { return c.ID }
func (c *Cookbook) EntityName() string { return c.Name }
func (c *Cookbook) setEntityID(id string) { c.ID = id }

// Validate checks the cookbook's own fields.
func (c *Cookbook) Validate() error {
	if c.Name == "" {
		return types.Validation("cookbook name is required")
	}
	if len(c.Recipes) == 0 {
		return types.Validation("cookbook %q must reference at least one recipe", c.ID)
	}
	return nil
}

// Example is one (prompt, target) pair. Target is a string, a list of
// strings (any may match) or a number.
type Example struct {
	Input  string `json:"input" yaml:"input"`
	Target any    `json:"target" yaml:"target"`
}

// Dataset is an ordered, append-only list of examples.
type Dataset struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	License     string    `json:"license,omitempty" yaml:"license,omitempty"`
	Reference   string    `json:"reference,omitempty" yaml:"reference,omitempty"`
	Examples    []Example `json:"examples" yaml:"examples"`
}

func (d *Dataset) EntityID() string { return d.ID }
func (d *Dataset) EntityName() string { return d.Name }
func (d *Dataset) setEntityID(id string) { d.ID = id }

// Validate checks the dataset's own fields.
func (d *Dataset) Validate() error {
	if d.Name == "" {
		return types.Validation("dataset name is required")
	}
	for i, ex := range d.Examples {
		if err := validateTarget(ex.Target); err != nil {
			return types.Validation("dataset %q example %d: %v", d.ID, i, err)
		}
	}
	return nil
}

func validateTarget(t any) error {
	switch v := t.(type) {
	case nil, string, float64, int, int64:
		return nil
	case []string:
		return nil
	case []any:
		for _, item := range v {
			if _, ok := item.(string); !ok {
				return fmt.Errorf("list targets must contain strings, got %T", item)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported target type %T", t)
	}
}

// TargetStrings returns the accepted answers of a target: one element for a
// scalar, every element for a list.
func TargetStrings(t any) []string {
	switch v := t.(type) {
	case nil:
		return nil
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case float64:
		if v == math.Trunc(v) {
			return []string{fmt.Sprintf("%d", int64(v))}
		}
		return []string{fmt.Sprint(v)}
	default:
		return []string{fmt.Sprint(v)}
	}
}

// PromptTemplate wraps a user prompt. Template holds at most one {{prompt}}
// hole; without one the raw prompt is appended.
type PromptTemplate struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Template    string `json:"template" yaml:"template"`
}

func (p *PromptTemplate) EntityID() string { return p.ID }
func (p *PromptTemplate) EntityName() string { return p.Name }
func (p *PromptTemplate) setEntityID(id string) { p.ID = id }

// Validate checks the placeholder count.
func (p *PromptTemplate) Validate() error {
	if p.Name == "" {
		return types.Validation("prompt template name is required")
	}
	if n := len(PromptPlaceholder.FindAllStringIndex(p.Template, -1)); n > 1 {
		return types.Validation("prompt template %q has %d {{prompt}} placeholders, want at most 1", p.ID, n)
	}
	return nil
}

// RunnerInfo is the persisted descriptor of a runner.
type RunnerInfo struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Endpoints    []string `json:"endpoints" yaml:"endpoints"`
	DatabaseFile string   `json:"database_file" yaml:"database_file"`
	Description  string   `json:"description" yaml:"description"`
}

func (r *RunnerInfo) EntityID() string { return r.ID }
func (r *RunnerInfo) EntityName() string { return r.Name }
func (r *RunnerInfo) setEntityID(id string) { r.ID = id }

// Validate checks the runner's own fields.
func (r *RunnerInfo) Validate() error {
	if r.Name == "" {
		return types.Validation("runner name is required")
	}
	if len(r.Endpoints) == 0 {
		return types.Validation("runner %q must reference at least one endpoint", r.ID)
	}
	return nil
}

// PluginInfo is descriptive metadata for a compiled-in plug-in (metric,
// context strategy or attack module). Params are passed to the plug-in
// constructor when present.
type PluginInfo struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Params      map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

func (p *PluginInfo) EntityID() string { return p.ID }
func (p *PluginInfo) EntityName() string { return p.Name }
func (p *PluginInfo) setEntityID(id string) { p.ID = id }

// Validate is a no-op; plug-in metadata is free-form.
func (p *PluginInfo) Validate() error { return nil }

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
// Package results holds the result tree of a benchmark run and its
// on-disk forms: the per-runner JSON file, XLSX and CSV exports and a
// terminal summary.
package results

import (
	"time"

	"github.com/teradata-labs/crucible/pkg/catalog"
	"github.com/teradata-labs/crucible/pkg/metrics"
)

// Document is the results file of one run.
type Document struct {
	Metadata Metadata `json:"metadata"`
	Results  Tree     `json:"results"`
}

// Metadata identifies the run a document belongs to.
type Metadata struct {
	ID                        string    `json:"id"`
	RunID                     int64     `json:"run_id"`
	Type                      string    `json:"type"`
	StartTime                 time.Time `json:"start_time"`
	EndTime                   time.Time `json:"end_time"`
	Duration                  float64   `json:"duration"`
	Status                    string    `json:"status"`
	Recipes                   []string  `json:"recipes,omitempty"`
	Cookbooks                 []string  `json:"cookbooks,omitempty"`
	Endpoints                 []string  `json:"endpoints"`
	NumOfPrompts              int       `json:"num_of_prompts"`
	PromptSelectionPercentage int       `json:"prompt_selection_percentage"`
	RandomSeed                int64     `json:"random_seed"`
	SystemPrompt              string    `json:"system_prompt,omitempty"`
}

// Tree is the aggregated result of a run. Recipe runs fill Recipes,
// cookbook runs fill Cookbooks.
type Tree struct {
	Cookbooks []CookbookResult `json:"cookbooks,omitempty"`
	Recipes   []RecipeResult   `json:"recipes,omitempty"`
}

// CookbookResult groups the recipes of one cookbook in declaration order.
type CookbookResult struct {
	ID      string         `json:"id"`
	Recipes []RecipeResult `json:"recipes"`
}

// RecipeResult holds one recipe's metrics for every endpoint.
type RecipeResult struct {
	ID                string               `json:"id"`
	Details           []EndpointDetail     `json:"details"`
	EvaluationSummary []EvaluationSummary  `json:"evaluation_summary"`
	GradingScale      catalog.GradingScale `json:"grading_scale,omitempty"`
	TotalNumOfPrompts int                  `json:"total_num_of_prompts"`
}

// EndpointDetail is the metric output of one (recipe, endpoint) bucket.
type EndpointDetail struct {
	ModelID          string          `json:"model_id"`
	Datasets         []string        `json:"dataset_ids"`
	PromptTemplates  []string        `json:"prompt_template_ids"`
	NumOfPrompts     int             `json:"num_of_prompts"`
	NumOfErrors      int             `json:"num_of_errors"`
	Metrics          metrics.Results `json:"metrics"`
	NonDeterministic []string        `json:"non_deterministic_metrics,omitempty"`
}

// EvaluationSummary is the graded canonical score of one endpoint.
type EvaluationSummary struct {
	ModelID       string  `json:"model_id"`
	NumOfPrompts  int     `json:"num_of_prompts"`
	AvgGradeValue float64 `json:"avg_grade_value"`
	Scored        bool    `json:"scored"`
	Grade         string  `json:"grade"`
}

// PromptResult is the raw outcome of one work item.
type PromptResult struct {
	Index            int     `json:"index"`
	Cookbook         string  `json:"cookbook,omitempty"`
	RecipeID         string  `json:"recipe_id"`
	EndpointID       string  `json:"endpoint_id"`
	DatasetID        string  `json:"dataset_id"`
	PromptTemplate   string  `json:"prompt_template"`
	Prompt           string  `json:"prompt"`
	PreparedPrompt   string  `json:"prepared_prompt"`
	ConnectionPrompt string  `json:"connection_prompt,omitempty"`
	Target           any     `json:"target"`
	PredictedResult  string  `json:"predicted_result"`
	Duration         float64 `json:"duration"`
	Status           string  `json:"status"`
	Source           string  `json:"source,omitempty"`
	Error            string  `json:"error,omitempty"`
}

// Response sources.
const (
	SourceQuery     = "query"
	SourceReadCache = "read_cache"
)

// Recipe returns the first recipe result with id, searching cookbooks
// after top-level recipes.
func (t *Tree) Recipe(id string) (*RecipeResult, bool) {
	for i := range t.Recipes {
		if t.Recipes[i].ID == id {
			return &t.Recipes[i], true
		}
	}
	for c := range t.Cookbooks {
		for i := range t.Cookbooks[c].Recipes {
			if t.Cookbooks[c].Recipes[i].ID == id {
				return &t.Cookbooks[c].Recipes[i], true
			}
		}
	}
	return nil, false
}

// Detail returns the bucket of endpointID.
func (r *RecipeResult) Detail(endpointID string) (*EndpointDetail, bool) {
	for i := range r.Details {
		if r.Details[i].ModelID == endpointID {
			return &r.Details[i], true
		}
	}
	return nil, false
}

// Summary returns the graded score of endpointID.
func (r *RecipeResult) Summary(endpointID string) (*EvaluationSummary, bool) {
	for i := range r.EvaluationSummary {
		if r.EvaluationSummary[i].ModelID == endpointID {
			return &r.EvaluationSummary[i], true
		}
	}
	return nil, false
}

// Row is a flattened (cookbook, recipe, endpoint) line used by exports.
type Row struct {
	Cookbook     string
	Recipe       string
	Endpoint     string
	NumOfPrompts int
	NumOfErrors  int
	Score        float64
	Scored       bool
	Grade        string
}

// Rows flattens the tree in presentation order.
func (t *Tree) Rows() []Row {
	var rows []Row
	add := func(cookbook string, r RecipeResult) {
		for _, d := range r.Details {
			row := Row{
				Cookbook:     cookbook,
				Recipe:       r.ID,
				Endpoint:     d.ModelID,
				NumOfPrompts: d.NumOfPrompts,
				NumOfErrors:  d.NumOfErrors,
				Grade:        catalog.GradeUnknown,
			}
			if s, ok := r.Summary(d.ModelID); ok {
				row.Score, row.Scored, row.Grade = s.AvgGradeValue, s.Scored, s.Grade
			}
			rows = append(rows, row)
		}
	}
	for _, cb := range t.Cookbooks {
		for _, r := range cb.Recipes {
			add(cb.ID, r)
		}
	}
	for _, r := range t.Recipes {
		add("", r)
	}
	return rows
}

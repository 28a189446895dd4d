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
	"github.com/teradata-labs/crucible/pkg/catalog"
	"github.com/teradata-labs/crucible/pkg/metrics"
	"github.com/teradata-labs/crucible/pkg/results"
	"github.com/teradata-labs/crucible/pkg/storage"
)

// document aggregates the buckets into the results tree of rec.
func (x *execution) document(rec *storage.RunRecord) *results.Document {
	doc := &results.Document{
		Metadata: results.Metadata{
			ID:                        rec.RunnerID,
			RunID:                     rec.RunID,
			Type:                      string(rec.Type),
			StartTime:                 rec.StartTime,
			EndTime:                   rec.EndTime,
			Duration:                  rec.Duration().Seconds(),
			Status:                    rec.Status,
			Recipes:                   rec.Recipes,
			Cookbooks:                 rec.Cookbooks,
			Endpoints:                 rec.Endpoints,
			NumOfPrompts:              rec.NumOfPrompts,
			PromptSelectionPercentage: x.args.PromptSelectionPercentage,
			RandomSeed:                x.args.RandomSeed,
			SystemPrompt:              x.args.SystemPrompt,
		},
	}

	if x.plan.runType == storage.RunTypeCookbook {
		byCookbook := make(map[string]*results.CookbookResult)
		for _, id := range x.plan.cookbooks {
			doc.Results.Cookbooks = append(doc.Results.Cookbooks, results.CookbookResult{ID: id})
		}
		for i := range doc.Results.Cookbooks {
			byCookbook[doc.Results.Cookbooks[i].ID] = &doc.Results.Cookbooks[i]
		}
		for _, g := range x.plan.groups {
			cb := byCookbook[g.cookbook]
			cb.Recipes = append(cb.Recipes, x.recipeResult(g))
		}
		return doc
	}
	for _, g := range x.plan.groups {
		doc.Results.Recipes = append(doc.Results.Recipes, x.recipeResult(g))
	}
	return doc
}

func (x *execution) recipeResult(g *recipeGroup) results.RecipeResult {
	rr := results.RecipeResult{
		ID:           g.recipe.ID,
		GradingScale: g.recipe.GradingScale,
	}
	for _, b := range g.buckets {
		detail := results.EndpointDetail{
			ModelID:         b.endpoint.ID,
			Datasets:        g.recipe.Datasets,
			PromptTemplates: g.recipe.PromptTemplates,
			NumOfPrompts:    len(b.items),
			Metrics:         metrics.Results{},
		}
		for _, it := range b.items {
			if it.errMsg != "" {
				detail.NumOfErrors++
			}
		}
		summary := results.EvaluationSummary{
			ModelID:      b.endpoint.ID,
			NumOfPrompts: len(b.items),
			Grade:        catalog.GradeUnknown,
		}
		if b.evaluated {
			detail.Metrics = b.results
			detail.NonDeterministic = x.r.cfg.Metrics.NonDeterministic(g.recipe.Metrics)
			if score, ok := metrics.Score(b.results, g.recipe.Metrics); ok {
				summary.AvgGradeValue = score
				summary.Scored = true
				summary.Grade = g.recipe.GradingScale.Grade(score)
			}
		}
		rr.Details = append(rr.Details, detail)
		rr.EvaluationSummary = append(rr.EvaluationSummary, summary)
		rr.TotalNumOfPrompts += len(b.items)
	}
	return rr
}

// rawResults lists every work item in index order.
func (x *execution) rawResults() []results.PromptResult {
	out := make([]results.PromptResult, 0, len(x.plan.items))
	for _, it := range x.plan.items {
		out = append(out, results.PromptResult{
			Index:            it.index,
			Cookbook:         it.bucket.cookbook,
			RecipeID:         it.bucket.recipe.ID,
			EndpointID:       it.bucket.endpoint.ID,
			DatasetID:        it.dataset,
			PromptTemplate:   it.template,
			Prompt:           it.prompt,
			PreparedPrompt:   it.prepared,
			ConnectionPrompt: it.connectionPrompt,
			Target:           it.target,
			PredictedResult:  it.predicted,
			Duration:         it.duration.Seconds(),
			Status:           string(x.tracker.Status(it.index)),
			Source:           it.source,
			Error:            it.errMsg,
		})
	}
	return out
}

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
package results

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	sheetSummary = "Summary"
	sheetMetrics = "Metrics"
	sheetRun     = "Run"
)

var summaryHeader = []string{"cookbook", "recipe", "endpoint", "num_of_prompts", "num_of_errors", "score", "grade"}

// WriteXLSX writes doc as a workbook with a summary sheet, a sheet of
// flattened metric values and a sheet of run metadata.
func WriteXLSX(w io.Writer, doc *Document) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}
	if _, err := f.NewSheet(sheetMetrics); err != nil {
		return fmt.Errorf("failed to create metrics sheet: %w", err)
	}
	if _, err := f.NewSheet(sheetRun); err != nil {
		return fmt.Errorf("failed to create run sheet: %w", err)
	}

	sheetRows := [][]any{toAny(summaryHeader)}
	for _, r := range doc.Results.Rows() {
		var score any
		if r.Scored {
			score = r.Score
		}
		sheetRows = append(sheetRows, []any{r.Cookbook, r.Recipe, r.Endpoint, r.NumOfPrompts, r.NumOfErrors, score, r.Grade})
	}
	if err := setRows(f, sheetSummary, sheetRows); err != nil {
		return err
	}

	metricRows := [][]any{{"cookbook", "recipe", "endpoint", "metric", "key", "value"}}
	for _, m := range MetricValues(&doc.Results) {
		metricRows = append(metricRows, []any{m.Cookbook, m.Recipe, m.Endpoint, m.Metric, m.Key, m.Value})
	}
	if err := setRows(f, sheetMetrics, metricRows); err != nil {
		return err
	}

	md := doc.Metadata
	runRows := [][]any{
		{"runner_id", md.ID},
		{"run_id", md.RunID},
		{"type", md.Type},
		{"status", md.Status},
		{"start_time", md.StartTime.Format(time.RFC3339)},
		{"end_time", md.EndTime.Format(time.RFC3339)},
		{"duration_seconds", md.Duration},
		{"num_of_prompts", md.NumOfPrompts},
		{"prompt_selection_percentage", md.PromptSelectionPercentage},
		{"random_seed", md.RandomSeed},
	}
	if err := setRows(f, sheetRun, runRows); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func setRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// WriteCSV writes the summary rows of doc as CSV with a header line.
func WriteCSV(w io.Writer, doc *Document) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(summaryHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, r := range doc.Results.Rows() {
		score := ""
		if r.Scored {
			score = strconv.FormatFloat(r.Score, 'f', -1, 64)
		}
		record := []string{
			r.Cookbook, r.Recipe, r.Endpoint,
			strconv.Itoa(r.NumOfPrompts), strconv.Itoa(r.NumOfErrors),
			score, r.Grade,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MetricValue is one scalar leaf of a metric result.
type MetricValue struct {
	Cookbook string
	Recipe   string
	Endpoint string
	Metric   string
	Key      string
	Value    any
}

// MetricValues flattens every metric result into scalar leaves. Nested
// maps produce dotted keys. Output is sorted by metric and key within each
// bucket.
func MetricValues(t *Tree) []MetricValue {
	var out []MetricValue
	add := func(cookbook string, r RecipeResult) {
		for _, d := range r.Details {
			ids := make([]string, 0, len(d.Metrics))
			for id := range d.Metrics {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				leaves := map[string]any{}
				flatten("", d.Metrics[id], leaves)
				keys := make([]string, 0, len(leaves))
				for k := range leaves {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					out = append(out, MetricValue{
						Cookbook: cookbook,
						Recipe:   r.ID,
						Endpoint: d.ModelID,
						Metric:   id,
						Key:      k,
						Value:    leaves[k],
					})
				}
			}
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
	return out
}

func flatten(prefix string, v any, out map[string]any) {
	join := func(k string) string {
		if prefix == "" {
			return k
		}
		return prefix + "." + k
	}
	switch m := v.(type) {
	case map[string]any:
		for k, val := range m {
			flatten(join(k), val, out)
		}
	case map[string]float64:
		for k, val := range m {
			out[join(k)] = val
		}
	case []any, []string, []float64, []int:
		out[prefix] = fmt.Sprint(m)
	default:
		out[prefix] = m
	}
}

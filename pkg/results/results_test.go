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
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/teradata-labs/crucible/pkg/metrics"
	"github.com/teradata-labs/crucible/pkg/types"
)

func sampleDocument() *Document {
	recipe := func(id string, score float64, grade string) RecipeResult {
		return RecipeResult{
			ID: id,
			Details: []EndpointDetail{{
				ModelID:      "echo-a",
				Datasets:     []string{"ds"},
				NumOfPrompts: 10,
				NumOfErrors:  1,
				Metrics: metrics.Results{
					"exact_str_match": {
						"accuracy":                 score / 100,
						metrics.KeyGradingCriteria: map[string]float64{"accuracy": score},
					},
				},
			}},
			EvaluationSummary: []EvaluationSummary{{ModelID: "echo-a", NumOfPrompts: 10, AvgGradeValue: score, Scored: true, Grade: grade}},
		}
	}
	return &Document{
		Metadata: Metadata{
			ID:        "nightly",
			RunID:     3,
			Type:      "cookbook",
			StartTime: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			EndTime:   time.Date(2026, 1, 2, 3, 5, 5, 0, time.UTC),
			Duration:  60,
			Status:    "completed",
			Endpoints: []string{"echo-a"},
		},
		Results: Tree{
			Cookbooks: []CookbookResult{{ID: "cb", Recipes: []RecipeResult{recipe("r1", 47, "C")}}},
			Recipes:   []RecipeResult{recipe("r2", 100, "E")},
		},
	}
}

func TestWriteRead(t *testing.T) {
	path := Path(t.TempDir(), "nightly")
	doc := sampleDocument()
	require.NoError(t, Write(path, doc))
	require.NoError(t, Write(path, doc), "rewrite replaces the file")

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, doc.Metadata, got.Metadata)

	r, ok := got.Results.Recipe("r1")
	require.True(t, ok)
	s, ok := r.Summary("echo-a")
	require.True(t, ok)
	assert.Equal(t, "C", s.Grade)

	_, err = Read(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, types.IsNotFound(err))
}

func TestTree_RowsOrder(t *testing.T) {
	rows := sampleDocument().Results.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "cb", rows[0].Cookbook)
	assert.Equal(t, "r1", rows[0].Recipe)
	assert.Equal(t, "", rows[1].Cookbook)
	assert.Equal(t, "E", rows[1].Grade)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleDocument()))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "cookbook,recipe,endpoint,num_of_prompts,num_of_errors,score,grade", lines[0])
	assert.Equal(t, "cb,r1,echo-a,10,1,47,C", lines[1])
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleDocument()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{sheetSummary, sheetMetrics, sheetRun}, f.GetSheetList())
	v, err := f.GetCellValue(sheetSummary, "B2")
	require.NoError(t, err)
	assert.Equal(t, "r1", v)

	rows, err := f.GetRows(sheetMetrics)
	require.NoError(t, err)
	// header + (accuracy, grading_criteria.accuracy) per recipe
	assert.Len(t, rows, 5)
}

func TestMetricValues_Flatten(t *testing.T) {
	values := MetricValues(&sampleDocument().Results)
	require.Len(t, values, 4)
	assert.Equal(t, "accuracy", values[0].Key)
	assert.Equal(t, "grading_criteria.accuracy", values[1].Key)
	assert.Equal(t, 47.0, values[1].Value)
}

func TestRenderSummary(t *testing.T) {
	out := RenderSummary(sampleDocument())
	assert.Contains(t, out, "Run 3 of nightly")
	assert.Contains(t, out, "r1")
	assert.Contains(t, out, "47.00")

	empty := RenderSummary(&Document{Metadata: Metadata{ID: "x"}})
	assert.Contains(t, empty, "no results")
}

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
package metrics

import (
	"context"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/teradata-labs/crucible/pkg/catalog"
)

// Similarity is the mean character-level similarity (0..1) between each
// prediction and its closest target.
type Similarity struct{}

func (Similarity) ID() string          { return "similarity" }
func (Similarity) Deterministic() bool { return true }

func (Similarity) GetResults(ctx context.Context, in Input) (map[string]any, error) {
	dmp := diffmatchpatch.New()
	sum := 0.0
	for i, p := range in.Predicted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var target any
		if i < len(in.Targets) {
			target = in.Targets[i]
		}
		best := 0.0
		for _, t := range catalog.TargetStrings(target) {
			if s := similarity(dmp, normalizeWhitespace(p), normalizeWhitespace(t)); s > best {
				best = s
			}
		}
		sum += best
	}
	mean := 0.0
	if len(in.Predicted) > 0 {
		mean = sum / float64(len(in.Predicted))
	}
	return map[string]any{
		"similarity":       mean,
		KeyGradingCriteria: map[string]float64{"similarity": mean * 100},
	}, nil
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// similarity is the share of equal text across a character diff.
func similarity(dmp *diffmatchpatch.DiffMatchPatch, a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	common, total := 0, 0
	for _, d := range dmp.DiffMain(a, b, false) {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			common += len(d.Text)
			total += len(d.Text)
		case diffmatchpatch.DiffInsert, diffmatchpatch.DiffDelete:
			total += len(d.Text)
		}
	}
	if total == 0 {
		return 0.0
	}
	return float64(common) / float64(total)
}

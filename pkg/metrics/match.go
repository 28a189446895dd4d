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
	"unicode"

	"github.com/teradata-labs/crucible/pkg/catalog"
)

// ExactStrMatch is the fraction of predictions equal to one of their
// targets.
type ExactStrMatch struct{}

func (ExactStrMatch) ID() string          { return "exact_str_match" }
func (ExactStrMatch) Deterministic() bool { return true }

func (m ExactStrMatch) GetResults(_ context.Context, in Input) (map[string]any, error) {
	return accuracy(in, func(a, b string) bool { return a == b }), nil
}

// RelaxStrMatch compares predictions and targets case-insensitively,
// ignoring punctuation and whitespace.
type RelaxStrMatch struct{}

func (RelaxStrMatch) ID() string          { return "relax_str_match" }
func (RelaxStrMatch) Deterministic() bool { return true }

func (m RelaxStrMatch) GetResults(_ context.Context, in Input) (map[string]any, error) {
	return accuracy(in, func(a, b string) bool { return relax(a) == relax(b) }), nil
}

func relax(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func accuracy(in Input, match func(predicted, target string) bool) map[string]any {
	correct := 0
	for i, p := range in.Predicted {
		var target any
		if i < len(in.Targets) {
			target = in.Targets[i]
		}
		for _, t := range catalog.TargetStrings(target) {
			if match(p, t) {
				correct++
				break
			}
		}
	}
	total := len(in.Predicted)
	acc := 0.0
	if total > 0 {
		acc = float64(correct) / float64(total)
	}
	return map[string]any{
		"accuracy":         acc,
		"correct":          correct,
		"total":            total,
		KeyGradingCriteria: map[string]float64{"accuracy": acc * 100},
	}
}

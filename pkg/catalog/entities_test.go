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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/crucible/pkg/types"
)

var fiveBands = GradingScale{
	"A": {0, 19},
	"B": {20, 39},
	"C": {40, 59},
	"D": {60, 79},
	"E": {80, 100},
}

func TestGradingScale_Grade(t *testing.T) {
	require.NoError(t, fiveBands.Validate())

	tests := []struct {
		score float64
		want  string
	}{
		{47, "C"},
		{100, "E"},
		{-1, GradeUnknown},
		{0, "A"},
		{19.9, "A"},
		{80, "E"},
		{101, GradeUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, fiveBands.Grade(tt.score), "score %v", tt.score)
	}
	assert.Equal(t, GradeUnknown, GradingScale{}.Grade(50))
}

func TestGradingScale_Validate(t *testing.T) {
	tests := []struct {
		name  string
		scale GradingScale
		msg   string
	}{
		{"overlap", GradingScale{"A": {0, 50}, "B": {50, 100}}, "overlaps"},
		{"gap", GradingScale{"A": {0, 40}, "B": {50, 100}}, "gap at [41, 49]"},
		{"short", GradingScale{"A": {0, 90}}, "gap at [91, 100]"},
		{"starts late", GradingScale{"A": {10, 100}}, "gap at [0, 9]"},
		{"inverted", GradingScale{"A": {50, 0}}, "inverted"},
		{"out of range", GradingScale{"A": {0, 120}}, "outside"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scale.Validate()
			require.Error(t, err)
			assert.True(t, types.IsValidation(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
	assert.NoError(t, GradingScale(nil).Validate())
}

func TestPromptTemplate_Validate(t *testing.T) {
	ok := PromptTemplate{Name: "t", Template: "Answer: {{ prompt }}"}
	assert.NoError(t, ok.Validate())

	none := PromptTemplate{Name: "t", Template: "no hole"}
	assert.NoError(t, none.Validate())

	two := PromptTemplate{Name: "t", Template: "{{prompt}} and {{prompt}}"}
	assert.True(t, types.IsValidation(two.Validate()))
}

func TestEndpoint_Validate(t *testing.T) {
	e := Endpoint{Name: "e", ConnectorType: "echo", MaxCallsPerSecond: 0, MaxConcurrency: 1}
	assert.True(t, types.IsValidation(e.Validate()))
	e.MaxCallsPerSecond = 1
	assert.NoError(t, e.Validate())
}

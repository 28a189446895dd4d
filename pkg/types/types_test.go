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

package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My Runner", "my-runner"},
		{"Café  Réponses_v2", "cafe-reponses-v2"},
		{"  --Hello--  ", "hello"},
		{"OpenAI GPT-4o", "openai-gpt-4o"},
		{"already-a-slug", "already-a-slug"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func TestError_IsByKind(t *testing.T) {
	err := fmt.Errorf("loading recipe: %w", NotFound("recipe", "r1"))

	assert.True(t, IsNotFound(err))
	assert.False(t, IsValidation(err))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Contains(t, err.Error(), `recipe "r1" not found`)
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Store("failed to insert cache row", cause)

	assert.True(t, errors.Is(err, cause))
	assert.True(t, IsStore(err))
	assert.Equal(t, "[store_error] failed to insert cache row: disk full", err.Error())
}

func TestError_Suggestions(t *testing.T) {
	err := NotFound("metric", "exact_match", "exact_str_match")
	assert.Contains(t, err.Error(), "did you mean: exact_str_match?")
}

func TestKindOf_ForeignError(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
	assert.False(t, IsCancelled(nil))
}

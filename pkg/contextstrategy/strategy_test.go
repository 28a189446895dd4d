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
package contextstrategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/crucible/pkg/storage"
	"github.com/teradata-labs/crucible/pkg/types"
)

func records(prepared ...string) []storage.ChatRecord {
	out := make([]storage.ChatRecord, len(prepared))
	for i, p := range prepared {
		out[i] = storage.ChatRecord{Prompt: "raw-" + p, PreparedPrompt: p, PredictedResult: "ans-" + p}
	}
	return out
}

func TestAddPreviousPrompt(t *testing.T) {
	e := NewEngine()
	prev := records("B|", "A|") // newest first

	got, err := e.Apply("add_previous_prompt", "C", prev, 2)
	require.NoError(t, err)
	assert.Equal(t, "B|A|C", got)

	got, err = e.Apply("add_previous_prompt", "C", prev, 1)
	require.NoError(t, err)
	assert.Equal(t, "B|C", got)

	// window larger than history
	got, err = e.Apply("add_previous_prompt", "C", prev, 10)
	require.NoError(t, err)
	assert.Equal(t, "B|A|C", got)
}

func TestAddPreviousConversation(t *testing.T) {
	e := NewEngine()
	got, err := e.Apply("add_previous_conversation", "third", records("2", "1"), 5)
	require.NoError(t, err)
	assert.Equal(t, "Previous conversation:\nUser: raw-1\nAssistant: ans-1\nUser: raw-2\nAssistant: ans-2\n\nUser: third", got)

	got, err = e.Apply("add_previous_conversation", "first", nil, 5)
	require.NoError(t, err)
	assert.Equal(t, "first", got)
}

type mutating struct{}

func (mutating) AddInContext(prompt string, prev []storage.ChatRecord) string {
	for i := range prev {
		prev[i].PreparedPrompt = "clobbered"
	}
	return prompt
}

func (mutating) NumberOfPrevPrompts() int { return 3 }

func TestApply_DoesNotExposeCallerSlice(t *testing.T) {
	e := NewEngine()
	e.Register("mutating", mutating{})

	prev := records("x", "y")
	_, err := e.Apply("mutating", "p", prev, 0)
	require.NoError(t, err)
	assert.Equal(t, "x", prev[0].PreparedPrompt)
	assert.Equal(t, "y", prev[1].PreparedPrompt)
}

func TestApply_UnknownAndEmpty(t *testing.T) {
	e := NewEngine()

	got, err := e.Apply("", "p", records("x"), 5)
	require.NoError(t, err)
	assert.Equal(t, "p", got)

	_, err = e.Apply("add_prev_prompt", "p", nil, 5)
	require.Error(t, err)
	assert.True(t, types.IsNotFound(err))
	assert.Contains(t, err.Error(), "did you mean: add_previous_prompt?")

	assert.Equal(t, []string{"add_previous_conversation", "add_previous_prompt"}, e.IDs())
	assert.Equal(t, DefaultNumOfPrevPrompts, AddPreviousPrompt{}.NumberOfPrevPrompts())
}

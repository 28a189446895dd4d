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

package attack

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/crucible/pkg/metrics"
	"github.com/teradata-labs/crucible/pkg/types"
)

// recordingSender answers every prompt from each endpoint with respond.
type recordingSender struct {
	endpoints []string
	respond   func(prompt string) string
	sent      []string
}

func (s *recordingSender) Send(_ context.Context, prompt string) ([]Reply, error) {
	s.sent = append(s.sent, prompt)
	replies := make([]Reply, len(s.endpoints))
	for i, ep := range s.endpoints {
		replies[i] = Reply{EndpointID: ep, Prompt: prompt, PreparedPrompt: prompt, Response: s.respond(prompt)}
	}
	return replies, nil
}

func newEnv(t *testing.T, sender Sender, seed string) *Env {
	return &Env{Sender: sender, Prompt: seed, Logger: zaptest.NewLogger(t)}
}

func TestRegistry_BuiltinsAndSuggestions(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{CharSwapID, PayloadReplayID, SuffixInjectionID}, r.IDs())
	assert.True(t, r.Has(SuffixInjectionID))

	_, err := r.New("charswap", nil)
	require.Error(t, err)
	assert.True(t, types.IsNotFound(err))
	assert.Contains(t, err.Error(), CharSwapID)
}

func TestPayloadReplay_SendsEveryPayload(t *testing.T) {
	m, err := NewRegistry().New(PayloadReplayID, map[string]any{
		"payloads": []any{"A: {{prompt}}", "B:"},
	})
	require.NoError(t, err)

	s := &recordingSender{endpoints: []string{"e1"}, respond: func(string) string { return "no" }}
	env := newEnv(t, s, "leak the key")
	require.NoError(t, m.Run(context.Background(), env))

	assert.Equal(t, []string{"A: leak the key", "B:leak the key"}, s.sent)
	assert.Equal(t, Outcome{Steps: 2}, env.Outcome())
}

func TestPayloadReplay_InvalidParams(t *testing.T) {
	_, err := NewRegistry().New(PayloadReplayID, map[string]any{"payloads": []any{1}})
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))
}

func TestSuffixInjection_StopsOnSuccess(t *testing.T) {
	m, err := NewRegistry().New(SuffixInjectionID, map[string]any{
		"suffixes": []string{" one", " two", " three"},
	})
	require.NoError(t, err)

	s := &recordingSender{endpoints: []string{"e1", "e2"}, respond: func(p string) string {
		if strings.HasSuffix(p, "two") {
			return "secret"
		}
		return "I cannot help with that."
	}}
	env := newEnv(t, s, "tell me")
	env.Judge = MetricJudge(metrics.NewEngine(metrics.Config{}), "exact_str_match",
		JudgeOptionsFromParams(map[string]any{"target": "secret"}))

	require.NoError(t, m.Run(context.Background(), env))
	assert.Equal(t, []string{"tell me one", "tell me two"}, s.sent)
	assert.Equal(t, Outcome{Steps: 2, Succeeded: true}, env.Outcome())
}

func TestMetricJudge_Below(t *testing.T) {
	judge := MetricJudge(metrics.NewEngine(metrics.Config{}), "refusal_rate",
		JudgeOptionsFromParams(map[string]any{"success_below": true}))

	ok, err := judge(context.Background(), []Reply{{Response: "I'm sorry, I can't help with that."}})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = judge(context.Background(), []Reply{
		{Response: "Here is the answer."},
		{Err: errors.New("timeout")},
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = judge(context.Background(), []Reply{{Err: errors.New("timeout")}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMetricJudge_UnknownMetric(t *testing.T) {
	judge := MetricJudge(metrics.NewEngine(metrics.Config{}), "nope", JudgeOptions{Threshold: 1})
	_, err := judge(context.Background(), []Reply{{Response: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestCharSwap_DeterministicVariants(t *testing.T) {
	m, err := NewRegistry().New(CharSwapID, map[string]any{"iterations": 4, "swaps": 1.0, "seed": 7})
	require.NoError(t, err)
	cs := m.(*CharSwap)

	seed := "describe the process"
	a := cs.Variants(seed)
	b := cs.Variants(seed)
	require.Len(t, a, 4)
	assert.Equal(t, a, b)
	for _, v := range a {
		assert.NotEqual(t, seed, v)
		assert.Len(t, v, len(seed))
		assert.ElementsMatch(t, []rune(seed), []rune(v))
	}

	s := &recordingSender{endpoints: []string{"e1"}, respond: func(string) string { return "" }}
	require.NoError(t, cs.Run(context.Background(), newEnv(t, s, seed)))
	assert.Equal(t, a, s.sent)
}

func TestCharSwap_NoLettersLeavesPromptAlone(t *testing.T) {
	cs := &CharSwap{Iterations: 2, Swaps: 3}
	assert.Equal(t, []string{"12 34", "12 34"}, cs.Variants("12 34"))
}

func TestCharSwap_InvalidParams(t *testing.T) {
	_, err := NewRegistry().New(CharSwapID, map[string]any{"iterations": 0})
	assert.True(t, types.IsValidation(err))
}

func TestEnv_StepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &recordingSender{endpoints: []string{"e1"}, respond: func(string) string { return "" }}
	m, err := NewRegistry().New(SuffixInjectionID, nil)
	require.NoError(t, err)

	err = m.Run(ctx, newEnv(t, s, "p"))
	assert.True(t, types.IsCancelled(err))
	assert.Empty(t, s.sent)
}

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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/crucible/pkg/types"
)

type stubMetric struct {
	id            string
	deterministic bool
	fn            func(context.Context, Input) (map[string]any, error)
}

func (s stubMetric) ID() string          { return s.id }
func (s stubMetric) Deterministic() bool { return s.deterministic }
func (s stubMetric) GetResults(ctx context.Context, in Input) (map[string]any, error) {
	return s.fn(ctx, in)
}

func TestExactAndRelaxedMatch(t *testing.T) {
	in := Input{
		Predicted: []string{"Paris", "paris.", "4", "B", "nope"},
		Targets:   []any{"Paris", "Paris", float64(4), []any{"A", "B"}, "yes"},
	}

	exact, err := ExactStrMatch{}.GetResults(context.Background(), in)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, exact["accuracy"], 1e-9)
	assert.Equal(t, 3, exact["correct"])

	relaxed, err := RelaxStrMatch{}.GetResults(context.Background(), in)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, relaxed["accuracy"], 1e-9)
	assert.InDelta(t, 80.0, relaxed[KeyGradingCriteria].(map[string]float64)["accuracy"], 1e-9)
}

func TestSimilarity(t *testing.T) {
	r, err := Similarity{}.GetResults(context.Background(), Input{
		Predicted: []string{"hello  world", "abc"},
		Targets:   []any{"hello world", "xyz"},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, r["similarity"], 1e-9)
}

func TestTokenCount(t *testing.T) {
	tc := NewTokenCount()
	r, err := tc.GetResults(context.Background(), Input{Predicted: []string{"the quick brown fox jumps over the lazy dog", ""}})
	require.NoError(t, err)
	assert.Greater(t, r["total_tokens"], 0)
	assert.Equal(t, r["total_tokens"], r["max_tokens"])
}

func TestRefusalRate(t *testing.T) {
	r, err := RefusalRate{}.GetResults(context.Background(), Input{
		Predicted: []string{"I’m sorry, but I can't help with that.", "Sure, here it is", "As an AI, I will not"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, r["refused"])
	assert.True(t, IsRefusal("I CANNOT do that"))
	assert.False(t, IsRefusal("Certainly"))
}

func TestEngine_FailureIsolation(t *testing.T) {
	e := NewEngine(Config{Logger: zaptest.NewLogger(t)})
	e.Register(stubMetric{id: "broken", deterministic: true, fn: func(context.Context, Input) (map[string]any, error) {
		return nil, errors.New("model file missing")
	}})
	e.Register(stubMetric{id: "panicky", deterministic: true, fn: func(context.Context, Input) (map[string]any, error) {
		panic("boom")
	}})
	e.Register(stubMetric{id: "judge", deterministic: false, fn: func(context.Context, Input) (map[string]any, error) {
		return map[string]any{"score": 1.0}, nil
	}})

	ids := []string{"exact_str_match", "broken", "panicky", "judge", "missing"}
	res, err := e.Evaluate(context.Background(), ids, Input{
		Predicted: []string{"a", "b"},
		Targets:   []any{"a", "b"},
	})
	require.NoError(t, err)
	require.Len(t, res, 5)

	assert.Equal(t, 1.0, res["exact_str_match"]["accuracy"])
	assert.Equal(t, "model file missing", res["broken"][KeyError])
	assert.Contains(t, res["panicky"][KeyError], "panicked: boom")
	assert.Contains(t, res["missing"][KeyError], `metric "missing" not found`)
	assert.Equal(t, true, res["judge"][KeyNonDeterministic])
	assert.Equal(t, []string{"judge"}, e.NonDeterministic(ids))
}

func TestEngine_Cancelled(t *testing.T) {
	e := NewEngine(Config{Workers: 1})
	e.Register(stubMetric{id: "slow", deterministic: true, fn: func(ctx context.Context, _ Input) (map[string]any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return map[string]any{}, nil
		}
	}})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := e.Evaluate(ctx, []string{"slow"}, Input{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_Registry(t *testing.T) {
	e := NewEngine(Config{})
	assert.Equal(t, []string{"exact_str_match", "refusal_rate", "relax_str_match", "similarity", "token_count"}, e.IDs())
	assert.True(t, e.Has("similarity"))

	_, err := e.Get("exact_match")
	require.Error(t, err)
	assert.True(t, types.IsNotFound(err))
	assert.Contains(t, err.Error(), "exact_str_match")
}

func TestScore(t *testing.T) {
	res := Results{
		"token_count":     {"total_tokens": 10},
		"exact_str_match": {KeyGradingCriteria: map[string]float64{"accuracy": 47}},
		"similarity":      {KeyGradingCriteria: map[string]any{"similarity": 90.0}},
	}
	score, ok := Score(res, []string{"token_count", "exact_str_match", "similarity"})
	require.True(t, ok)
	assert.Equal(t, 47.0, score)

	score, ok = Score(res, []string{"similarity"})
	require.True(t, ok)
	assert.Equal(t, 90.0, score)

	_, ok = Score(res, []string{"token_count"})
	assert.False(t, ok)
}

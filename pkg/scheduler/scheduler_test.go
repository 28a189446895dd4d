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
package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/crucible/pkg/manager"
	"github.com/teradata-labs/crucible/pkg/types"
)

type stubSubject struct{ id string }

func (s stubSubject) ID() string               { return s.id }
func (stubSubject) Cancel()                    {}
func (stubSubject) Wait(context.Context) error { return nil }

type runFunc func(ctx context.Context, schedule *Schedule) error

func setupTestScheduler(t *testing.T, scheduleDir string, run runFunc) *Scheduler {
	t.Helper()
	logger := zaptest.NewLogger(t)
	m := manager.NewManager(logger)

	launch := func(ctx context.Context, schedule *Schedule) (string, error) {
		return m.Submit(ctx, stubSubject{id: schedule.RunnerID}, func(ctx context.Context) error {
			return run(ctx, schedule)
		}), nil
	}
	s, err := NewScheduler(context.Background(), Config{
		DBPath:      filepath.Join(t.TempDir(), "scheduler.db"),
		ScheduleDir: scheduleDir,
		Manager:     m,
		Launch:      launch,
		Logger:      logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func newSchedule(id string) *Schedule {
	return &Schedule{
		ID:       id,
		Name:     "Nightly " + id,
		RunnerID: "runner-" + id,
		Recipes:  []string{"bbq-lite"},
		Cron:     "0 2 * * *",
		Enabled:  true,
	}
}

func succeed(context.Context, *Schedule) error { return nil }

func waitForHistory(t *testing.T, s *Scheduler, id string, n int) []*Execution {
	t.Helper()
	var history []*Execution
	require.Eventually(t, func() bool {
		h, err := s.GetHistory(context.Background(), id, 10)
		if err != nil {
			return false
		}
		history = h
		return len(h) >= n
	}, 5*time.Second, 10*time.Millisecond)
	return history
}

func TestScheduler_AddSchedule(t *testing.T) {
	ctx := context.Background()
	s := setupTestScheduler(t, "", succeed)

	require.NoError(t, s.AddSchedule(ctx, newSchedule("s1")))

	got, err := s.GetSchedule(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "runner-s1", got.RunnerID)
	assert.Equal(t, []string{"bbq-lite"}, got.Recipes)
	assert.Equal(t, "UTC", got.Timezone)
	assert.Equal(t, 100, got.PromptSelectionPercentage)
	assert.Equal(t, 3600, got.MaxExecutionSeconds)
	assert.Greater(t, got.NextExecutionAt, time.Now().Unix())
	assert.NotZero(t, got.CreatedAt)
}

func TestScheduler_AddSchedule_Validation(t *testing.T) {
	ctx := context.Background()
	s := setupTestScheduler(t, "", succeed)

	tests := []struct {
		name   string
		modify func(*Schedule)
	}{
		{"invalid cron", func(sc *Schedule) { sc.Cron = "every day" }},
		{"missing runner", func(sc *Schedule) { sc.RunnerID = "" }},
		{"recipes and cookbooks", func(sc *Schedule) { sc.Cookbooks = []string{"common-risk"} }},
		{"neither recipes nor cookbooks", func(sc *Schedule) { sc.Recipes = nil }},
		{"percentage out of range", func(sc *Schedule) { sc.PromptSelectionPercentage = 150 }},
		{"unknown timezone", func(sc *Schedule) { sc.Timezone = "Mars/Olympus" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := newSchedule("bad")
			tt.modify(sc)
			err := s.AddSchedule(ctx, sc)
			require.Error(t, err)
			assert.True(t, types.IsValidation(err), err.Error())
		})
	}

	schedules, err := s.ListSchedules(ctx)
	require.NoError(t, err)
	assert.Empty(t, schedules)
}

func TestScheduler_GetSchedule_NotFound(t *testing.T) {
	s := setupTestScheduler(t, "", succeed)
	_, err := s.GetSchedule(context.Background(), "missing")
	assert.True(t, types.IsNotFound(err))
}

func TestScheduler_ListAndRemove(t *testing.T) {
	ctx := context.Background()
	s := setupTestScheduler(t, "", succeed)

	for _, id := range []string{"b", "a", "c"} {
		require.NoError(t, s.AddSchedule(ctx, newSchedule(id)))
	}
	schedules, err := s.ListSchedules(ctx)
	require.NoError(t, err)
	require.Len(t, schedules, 3)
	assert.Equal(t, "a", schedules[0].ID)

	require.NoError(t, s.RemoveSchedule(ctx, "b"))
	_, err = s.GetSchedule(ctx, "b")
	assert.True(t, types.IsNotFound(err))

	s.mu.RLock()
	_, scheduled := s.cronEntries["b"]
	s.mu.RUnlock()
	assert.False(t, scheduled)
}

func TestScheduler_UpdateSchedule(t *testing.T) {
	ctx := context.Background()
	s := setupTestScheduler(t, "", succeed)
	require.NoError(t, s.AddSchedule(ctx, newSchedule("s1")))

	updated := newSchedule("s1")
	updated.Cron = "*/5 * * * *"
	updated.Recipes = nil
	updated.Cookbooks = []string{"common-risk-easy"}
	require.NoError(t, s.UpdateSchedule(ctx, updated))

	got, err := s.GetSchedule(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "*/5 * * * *", got.Cron)
	assert.Equal(t, []string{"common-risk-easy"}, got.Cookbooks)
	assert.Empty(t, got.Recipes)

	err = s.UpdateSchedule(ctx, newSchedule("missing"))
	assert.True(t, types.IsNotFound(err))
}

func TestScheduler_PauseAndResume(t *testing.T) {
	ctx := context.Background()
	s := setupTestScheduler(t, "", succeed)
	require.NoError(t, s.AddSchedule(ctx, newSchedule("s1")))

	require.NoError(t, s.PauseSchedule(ctx, "s1"))
	got, err := s.GetSchedule(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	s.mu.RLock()
	_, scheduled := s.cronEntries["s1"]
	s.mu.RUnlock()
	assert.False(t, scheduled)

	require.NoError(t, s.ResumeSchedule(ctx, "s1"))
	got, err = s.GetSchedule(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	s.mu.RLock()
	_, scheduled = s.cronEntries["s1"]
	s.mu.RUnlock()
	assert.True(t, scheduled)

	assert.True(t, types.IsNotFound(s.PauseSchedule(ctx, "missing")))
	assert.True(t, types.IsNotFound(s.ResumeSchedule(ctx, "missing")))
}

func TestScheduler_TriggerNow_Success(t *testing.T) {
	ctx := context.Background()
	ran := make(chan *Schedule, 1)
	s := setupTestScheduler(t, "", func(_ context.Context, schedule *Schedule) error {
		ran <- schedule
		return nil
	})
	require.NoError(t, s.AddSchedule(ctx, newSchedule("s1")))

	executionID, err := s.TriggerNow(ctx, "s1", false)
	require.NoError(t, err)
	assert.NotEmpty(t, executionID)

	select {
	case schedule := <-ran:
		assert.Equal(t, "runner-s1", schedule.RunnerID)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled run was not launched")
	}

	history := waitForHistory(t, s, "s1", 1)
	assert.Equal(t, executionID, history[0].ExecutionID)
	assert.Equal(t, StatusSuccess, history[0].Status)
	assert.Contains(t, history[0].TaskID, "runner-s1")

	got, err := s.GetSchedule(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Stats.Total)
	assert.Equal(t, 1, got.Stats.Successful)
	assert.Equal(t, StatusSuccess, got.Stats.LastStatus)
}

func TestScheduler_TriggerNow_Failure(t *testing.T) {
	ctx := context.Background()
	s := setupTestScheduler(t, "", func(context.Context, *Schedule) error {
		return errors.New("endpoint down")
	})
	require.NoError(t, s.AddSchedule(ctx, newSchedule("s1")))

	_, err := s.TriggerNow(ctx, "s1", false)
	require.NoError(t, err)

	history := waitForHistory(t, s, "s1", 1)
	assert.Equal(t, StatusFailed, history[0].Status)
	assert.Equal(t, "endpoint down", history[0].Error)

	got, err := s.GetSchedule(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Stats.Failed)
	assert.Equal(t, "endpoint down", got.Stats.LastError)
}

func TestScheduler_TriggerNow_LaunchError(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	s, err := NewScheduler(ctx, Config{
		DBPath:  filepath.Join(t.TempDir(), "scheduler.db"),
		Manager: manager.NewManager(logger),
		Launch: func(context.Context, *Schedule) (string, error) {
			return "", types.NotFound("runner", "runner-s1")
		},
		Logger: logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	require.NoError(t, s.AddSchedule(ctx, newSchedule("s1")))

	_, err = s.TriggerNow(ctx, "s1", false)
	require.NoError(t, err)

	history := waitForHistory(t, s, "s1", 1)
	assert.Equal(t, StatusFailed, history[0].Status)
	assert.Empty(t, history[0].TaskID)
	assert.Contains(t, history[0].Error, `runner "runner-s1" not found`)
}

func TestScheduler_TriggerNow_NotFound(t *testing.T) {
	s := setupTestScheduler(t, "", succeed)
	_, err := s.TriggerNow(context.Background(), "missing", false)
	assert.True(t, types.IsNotFound(err))
}

func TestScheduler_MaxExecutionCancelsRun(t *testing.T) {
	ctx := context.Background()
	s := setupTestScheduler(t, "", func(ctx context.Context, _ *Schedule) error {
		<-ctx.Done()
		return types.Cancelled("run cancelled")
	})
	sc := newSchedule("slow")
	sc.MaxExecutionSeconds = 1
	require.NoError(t, s.AddSchedule(ctx, sc))

	_, err := s.TriggerNow(ctx, "slow", false)
	require.NoError(t, err)

	history := waitForHistory(t, s, "slow", 1)
	assert.Equal(t, StatusCancelled, history[0].Status)
	assert.Contains(t, history[0].Error, "run exceeded 1s")
}

func TestScheduler_SkipIfRunning(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	s := setupTestScheduler(t, "", func(context.Context, *Schedule) error {
		started <- struct{}{}
		<-release
		return nil
	})
	sc := newSchedule("s1")
	sc.SkipIfRunning = true
	require.NoError(t, s.AddSchedule(ctx, sc))

	_, err := s.TriggerNow(ctx, "s1", false)
	require.NoError(t, err)
	<-started

	_, err = s.TriggerNow(ctx, "s1", true)
	assert.True(t, types.IsValidation(err))

	// The trigger is accepted but the execution itself is skipped.
	_, err = s.TriggerNow(ctx, "s1", false)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		got, err := s.GetSchedule(ctx, "s1")
		return err == nil && got.Stats.Skipped == 1
	}, 5*time.Second, 10*time.Millisecond)

	close(release)
	history := waitForHistory(t, s, "s1", 1)
	assert.Len(t, history, 1)
	assert.Equal(t, StatusSuccess, history[0].Status)
}

func TestScheduler_StartLoadsStoredSchedules(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "scheduler.db")
	logger := zaptest.NewLogger(t)
	launch := func(context.Context, *Schedule) (string, error) { return "", errors.New("unused") }

	first, err := NewScheduler(ctx, Config{DBPath: dbPath, Manager: manager.NewManager(logger), Launch: launch, Logger: logger})
	require.NoError(t, err)
	require.NoError(t, first.AddSchedule(ctx, newSchedule("s1")))
	paused := newSchedule("s2")
	paused.Enabled = false
	require.NoError(t, first.AddSchedule(ctx, paused))
	require.NoError(t, first.Stop(ctx))

	second, err := NewScheduler(ctx, Config{DBPath: dbPath, Manager: manager.NewManager(logger), Launch: launch, Logger: logger})
	require.NoError(t, err)
	require.NoError(t, second.Start(ctx))
	t.Cleanup(func() { _ = second.Stop(context.Background()) })

	second.mu.RLock()
	defer second.mu.RUnlock()
	assert.Len(t, second.schedules, 2)
	assert.Contains(t, second.cronEntries, "s1")
	assert.NotContains(t, second.cronEntries, "s2")
}

func TestNewScheduler_RequiresDependencies(t *testing.T) {
	_, err := NewScheduler(context.Background(), Config{DBPath: filepath.Join(t.TempDir(), "s.db")})
	assert.True(t, types.IsValidation(err))
}

func TestSchedule_NextExecutionUsesTimezone(t *testing.T) {
	sc := newSchedule("tz")
	sc.Timezone = "America/New_York"
	require.NoError(t, sc.Validate())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	next, err := sc.nextExecution(now)
	require.NoError(t, err)

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 2, 0, 0, 0, loc).Unix(), next)
}

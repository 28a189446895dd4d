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

package manager

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/crucible/pkg/progress"
	"github.com/teradata-labs/crucible/pkg/types"
)

// fakeSubject stops its work when cancelled and records the call order.
type fakeSubject struct {
	id   string
	stop chan struct{}
	once sync.Once

	mu    sync.Mutex
	calls []string
}

func newFakeSubject(id string) *fakeSubject {
	return &fakeSubject{id: id, stop: make(chan struct{})}
}

func (f *fakeSubject) ID() string { return f.id }

func (f *fakeSubject) Cancel() {
	f.record("cancel")
	f.once.Do(func() { close(f.stop) })
}

func (f *fakeSubject) Wait(context.Context) error {
	f.record("wait")
	return nil
}

func (f *fakeSubject) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeSubject) work(ctx context.Context) error {
	select {
	case <-f.stop:
		return types.Cancelled("stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestSubmit_TaskIDAndCompletion(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))
	s := newFakeSubject("nightly")

	id := m.Submit(context.Background(), s, func(context.Context) error { return nil })
	require.True(t, strings.HasSuffix(id, "-nightly"))
	_, err := uuid.Parse(strings.TrimSuffix(id, "-nightly"))
	require.NoError(t, err)

	task, err := m.Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, TaskCompleted, task.Status)
	assert.Equal(t, "nightly", task.SubjectID)
	assert.False(t, task.Finished.IsZero())
}

func TestCancel_SubjectFirstThenContext(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))
	s := newFakeSubject("r1")
	ctxCancelledAfterWait := make(chan bool, 1)

	id := m.Submit(context.Background(), s, func(ctx context.Context) error {
		err := s.work(ctx)
		<-ctx.Done()
		s.mu.Lock()
		ctxCancelledAfterWait <- len(s.calls) == 2
		s.mu.Unlock()
		return err
	})

	require.NoError(t, m.Cancel(context.Background(), id))
	task, err := m.Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, TaskCancelled, task.Status)
	assert.Equal(t, []string{"cancel", "wait"}, s.calls)
	assert.True(t, <-ctxCancelledAfterWait)

	require.NoError(t, m.Cancel(context.Background(), id), "cancelling a finished task is a no-op")
}

func TestFailureIsIsolated(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))
	bad := m.Submit(context.Background(), newFakeSubject("bad"), func(context.Context) error {
		return errors.New("connector exploded")
	})
	boom := m.Submit(context.Background(), newFakeSubject("boom"), func(context.Context) error {
		panic("unexpected")
	})
	good := m.Submit(context.Background(), newFakeSubject("good"), func(context.Context) error { return nil })

	ctx := context.Background()
	tb, err := m.Wait(ctx, bad)
	require.NoError(t, err)
	assert.Equal(t, TaskFailed, tb.Status)
	assert.Equal(t, "connector exploded", tb.Error)

	tp, err := m.Wait(ctx, boom)
	require.NoError(t, err)
	assert.Equal(t, TaskFailed, tp.Status)
	assert.Contains(t, tp.Error, "panicked")

	tg, err := m.Wait(ctx, good)
	require.NoError(t, err)
	assert.Equal(t, TaskCompleted, tg.Status)
	assert.Len(t, m.List(), 3)
}

func TestUpdateProgressAndList(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))
	s := newFakeSubject("r1")
	id := m.Submit(context.Background(), s, s.work)

	var h progress.Handler = m
	h.OnProgress(progress.Snapshot{RunnerID: "r1", Seq: 3, CurrentProgress: 40})
	h.OnProgress(progress.Snapshot{RunnerID: "other", Seq: 1})

	tasks := m.List()
	require.Len(t, tasks, 1)
	require.NotNil(t, tasks[0].Progress)
	assert.Equal(t, 40, tasks[0].Progress.CurrentProgress)
	assert.Equal(t, TaskRunning, tasks[0].Status)

	require.NoError(t, m.Remove(id))
	assert.Empty(t, m.List())
	assert.True(t, types.IsNotFound(m.Remove(id)))

	select {
	case <-s.stop:
		t.Fatal("remove must not cancel the subject")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestShutdown(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))
	a, b := newFakeSubject("a"), newFakeSubject("b")
	ia := m.Submit(context.Background(), a, a.work)
	ib := m.Submit(context.Background(), b, b.work)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	for _, id := range []string{ia, ib} {
		task, err := m.Get(id)
		require.NoError(t, err)
		assert.Equal(t, TaskCancelled, task.Status)
	}
}

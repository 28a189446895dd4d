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
// Package manager tracks long-running benchmark and red-team tasks so they
// can be listed, followed and cancelled from one place.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/crucible/pkg/progress"
	"github.com/teradata-labs/crucible/pkg/types"
)

// Subject is the cancellable owner of a task: a runner or a session.
type Subject interface {
	ID() string
	// Cancel asks the subject to stop without waiting.
	Cancel()
	// Wait blocks until the subject's active work has settled.
	Wait(ctx context.Context) error
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Task describes a tracked task.
type Task struct {
	ID        string     `json:"id"`
	SubjectID string     `json:"subject_id"`
	Status    TaskStatus `json:"status"`
	Started   time.Time  `json:"started"`
	Finished  time.Time  `json:"finished,omitzero"`
	Error     string     `json:"error,omitempty"`
	// Progress is the last snapshot reported for the subject.
	Progress *progress.Snapshot `json:"progress,omitempty"`
}

type task struct {
	info    Task
	subject Subject
	cancel  context.CancelFunc
	done    chan struct{}
}

// Manager owns the task table.
type Manager struct {
	logger *zap.Logger

	mu    sync.Mutex
	tasks map[string]*task
	// latest holds the last snapshot per subject, including snapshots that
	// arrive before the subject's task is submitted.
	latest map[string]progress.Snapshot
}

// NewManager creates an empty manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger: logger,
		tasks:  make(map[string]*task),
		latest: make(map[string]progress.Snapshot),
	}
}

// Submit runs fn for subject on its own goroutine and returns the task id,
// "<uuid>-<subject id>". fn receives a context that Cancel and Remove
// cancel. Failures are logged and recorded on the task; they never reach
// other tasks.
func (m *Manager) Submit(ctx context.Context, subject Subject, fn func(ctx context.Context) error) string {
	ctx, cancel := context.WithCancel(ctx)
	t := &task{
		info: Task{
			ID:        uuid.NewString() + "-" + subject.ID(),
			SubjectID: subject.ID(),
			Status:    TaskRunning,
			Started:   time.Now(),
		},
		subject: subject,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	m.mu.Lock()
	m.tasks[t.info.ID] = t
	m.mu.Unlock()

	logger := m.logger.With(zap.String("task_id", t.info.ID))
	logger.Info("Task started")

	go func() {
		defer close(t.done)
		defer cancel()
		err := m.invoke(ctx, fn)

		m.mu.Lock()
		t.info.Finished = time.Now()
		switch {
		case err == nil:
			t.info.Status = TaskCompleted
		case types.IsCancelled(err) || errors.Is(err, context.Canceled):
			t.info.Status = TaskCancelled
		default:
			t.info.Status = TaskFailed
			t.info.Error = err.Error()
		}
		status := t.info.Status
		m.mu.Unlock()

		if status == TaskFailed {
			logger.Error("Task failed", zap.Error(err))
			return
		}
		logger.Info("Task finished", zap.String("status", string(status)))
	}()
	return t.info.ID
}

func (m *Manager) invoke(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return fn(ctx)
}

// Cancel stops a running task: the subject is cancelled and awaited first,
// then the task context is cancelled. Cancelling a finished task is a
// no-op.
func (m *Manager) Cancel(ctx context.Context, taskID string) error {
	t, err := m.get(taskID)
	if err != nil {
		return err
	}
	select {
	case <-t.done:
		return nil
	default:
	}
	t.subject.Cancel()
	werr := t.subject.Wait(ctx)
	t.cancel()
	if werr != nil {
		return fmt.Errorf("failed to wait for task %q: %w", taskID, werr)
	}
	m.logger.Info("Task cancelled", zap.String("task_id", taskID))
	return nil
}

// Remove drops a task from the table, cancelling its context first if it
// is still running.
func (m *Manager) Remove(taskID string) error {
	m.mu.Lock()
	t, ok := m.tasks[taskID]
	if ok {
		delete(m.tasks, taskID)
	}
	m.mu.Unlock()
	if !ok {
		return types.NotFound("task", taskID)
	}
	t.cancel()
	return nil
}

// UpdateProgress records s against the task of its subject.
func (m *Manager) UpdateProgress(s progress.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[s.RunnerID] = s
}

// OnProgress makes the manager a progress.Handler.
func (m *Manager) OnProgress(s progress.Snapshot) { m.UpdateProgress(s) }

// Get returns a task by id.
func (m *Manager) Get(taskID string) (Task, error) {
	t, err := m.get(taskID)
	if err != nil {
		return Task{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view(t), nil
}

// Wait blocks until a task finishes and returns its final state.
func (m *Manager) Wait(ctx context.Context, taskID string) (Task, error) {
	t, err := m.get(taskID)
	if err != nil {
		return Task{}, err
	}
	select {
	case <-t.done:
	case <-ctx.Done():
		return Task{}, ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view(t), nil
}

// List returns all tasks, oldest first.
func (m *Manager) List() []Task {
	m.mu.Lock()
	out := make([]Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, m.view(t))
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Started.Equal(out[j].Started) {
			return out[i].ID < out[j].ID
		}
		return out[i].Started.Before(out[j].Started)
	})
	return out
}

// Shutdown cancels every running task and waits for all of them.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.tasks))
	for id := range m.tasks {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := m.Cancel(ctx, id); err != nil && !types.IsNotFound(err) {
			errs = append(errs, err)
		}
		if _, err := m.Wait(ctx, id); err != nil && !types.IsNotFound(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) get(taskID string) (*task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return nil, types.NotFound("task", taskID)
	}
	return t, nil
}

// view must be called with m.mu held.
func (m *Manager) view(t *task) Task {
	info := t.info
	if s, ok := m.latest[t.info.SubjectID]; ok {
		info.Progress = &s
	}
	return info
}

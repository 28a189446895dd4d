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
package progress

import (
	"fmt"
	"sync"
	"time"
)

// validTransitions lists the non-terminal moves. Any non-terminal state may
// also move to error or cancelled.
var validTransitions = map[PromptStatus][]PromptStatus{
	StatusPending:                   {StatusRunningQuery, StatusRunningMetricsCalculation},
	StatusRunningQuery:              {StatusRunningMetricsCalculation},
	StatusRunningMetricsCalculation: {StatusCompleted},
}

// Tracker owns the per-prompt states of one run. Every committed change is
// published to the emitter while the tracker lock is held, so snapshots
// reach the emitter in commit order.
type Tracker struct {
	mu       sync.Mutex
	runnerID string
	runID    int64
	status   RunStatus
	seq      uint64
	states   []PromptStatus
	counts   map[PromptStatus]int
	errors   []string
	publish  func(Snapshot)
	now      func() time.Time
}

// NewTracker creates a tracker with total prompts in pending. publish may be
// nil.
func NewTracker(runnerID string, total int, publish func(Snapshot)) *Tracker {
	if publish == nil {
		publish = func(Snapshot) {}
	}
	t := &Tracker{
		runnerID: runnerID,
		status:   RunPending,
		states:   make([]PromptStatus, total),
		counts:   map[PromptStatus]int{StatusPending: total},
		publish:  publish,
		now:      time.Now,
	}
	for i := range t.states {
		t.states[i] = StatusPending
	}
	return t
}

// SetRun sets the run id and status and commits.
func (t *Tracker) SetRun(runID int64, status RunStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runID = runID
	t.status = status
	t.commit()
}

// SetStatus sets the run status and commits.
func (t *Tracker) SetStatus(status RunStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
	t.commit()
}

// Status returns the prompt's current state.
func (t *Tracker) Status(idx int) PromptStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[idx]
}

// Transition moves prompt idx to state to. Moves out of a terminal state and
// moves not on the state machine are rejected.
func (t *Tracker) Transition(idx int, to PromptStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.move(idx, to); err != nil {
		return err
	}
	t.commit()
	return nil
}

// TransitionAll moves every prompt in idxs to state to in one commit.
// Prompts that cannot make the move are skipped and reported.
func (t *Tracker) TransitionAll(idxs []int, to PromptStatus) []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var skipped []int
	moved := false
	for _, idx := range idxs {
		if err := t.move(idx, to); err != nil {
			skipped = append(skipped, idx)
			continue
		}
		moved = true
	}
	if moved {
		t.commit()
	}
	return skipped
}

// Fail moves prompt idx to error and records msg. A prompt already in a
// terminal state is left alone.
func (t *Tracker) Fail(idx int, msg string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.move(idx, StatusError) != nil {
		return false
	}
	t.errors = append(t.errors, msg)
	t.commit()
	return true
}

// AddError records a run-level error message and commits.
func (t *Tracker) AddError(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errors = append(t.errors, msg)
	t.commit()
}

// CancelRemaining moves every non-terminal prompt to cancelled in one
// commit and returns how many moved.
func (t *Tracker) CancelRemaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for i, s := range t.states {
		if !s.Terminal() {
			_ = t.move(i, StatusCancelled)
			n++
		}
	}
	if n > 0 {
		t.commit()
	}
	return n
}

// Finish sets a terminal run status and commits the final snapshot.
func (t *Tracker) Finish(status RunStatus) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
	return t.commit()
}

// Snapshot returns the current state without committing.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.build()
}

func (t *Tracker) move(idx int, to PromptStatus) error {
	if idx < 0 || idx >= len(t.states) {
		return fmt.Errorf("prompt index %d out of range [0, %d)", idx, len(t.states))
	}
	from := t.states[idx]
	if from.Terminal() {
		return fmt.Errorf("prompt %d is already %s", idx, from)
	}
	if to != StatusError && to != StatusCancelled && !allowed(from, to) {
		return fmt.Errorf("invalid transition %s -> %s for prompt %d", from, to, idx)
	}
	t.states[idx] = to
	t.counts[from]--
	t.counts[to]++
	return nil
}

func allowed(from, to PromptStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (t *Tracker) commit() Snapshot {
	t.seq++
	s := t.build()
	t.publish(s)
	return s
}

func (t *Tracker) build() Snapshot {
	total := len(t.states)
	s := Snapshot{
		RunnerID:  t.runnerID,
		RunID:     t.runID,
		Status:    t.status,
		Seq:       t.seq,
		Timestamp: t.now(),
		Counters: Counters{
			Total:                     total,
			Completed:                 t.counts[StatusCompleted],
			Error:                     t.counts[StatusError],
			Cancelled:                 t.counts[StatusCancelled],
			Pending:                   t.counts[StatusPending],
			RunningQuery:              t.counts[StatusRunningQuery],
			RunningMetricsCalculation: t.counts[StatusRunningMetricsCalculation],
		},
		CurrentErrorMessages: append([]string(nil), t.errors...),
	}
	done := s.Completed + s.Error + s.Cancelled
	if total > 0 {
		s.CurrentProgress = 100 * done / total
	} else if t.status.Terminal() {
		s.CurrentProgress = 100
	}

	s.CompletedPrompts = []int{}
	s.ErrorPrompts = []int{}
	s.RunningPrompts = []int{}
	s.CancelledPrompts = []int{}
	s.PendingPrompts = []int{}
	for i, st := range t.states {
		switch st {
		case StatusCompleted:
			s.CompletedPrompts = append(s.CompletedPrompts, i)
		case StatusError:
			s.ErrorPrompts = append(s.ErrorPrompts, i)
		case StatusCancelled:
			s.CancelledPrompts = append(s.CancelledPrompts, i)
		case StatusPending:
			s.PendingPrompts = append(s.PendingPrompts, i)
		default:
			s.RunningPrompts = append(s.RunningPrompts, i)
		}
	}
	return s
}

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
// Package progress aggregates per-prompt state transitions into progress
// snapshots and delivers them to a handler in commit order, coalescing
// superseded snapshots when the handler is slow.
package progress

import "time"

// PromptStatus is the state of one prompt.
type PromptStatus string

const (
	StatusPending                   PromptStatus = "pending"
	StatusRunningQuery              PromptStatus = "running_query"
	StatusRunningMetricsCalculation PromptStatus = "running_metrics_calculation"
	StatusCompleted                 PromptStatus = "completed"
	StatusError                     PromptStatus = "error"
	StatusCancelled                 PromptStatus = "cancelled"
)

// Terminal reports whether s is completed, error or cancelled.
func (s PromptStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusCancelled
}

// RunStatus is the state of a whole run.
type RunStatus string

const (
	RunPending             RunStatus = "pending"
	RunRunning             RunStatus = "running"
	RunCompleted           RunStatus = "completed"
	RunCompletedWithErrors RunStatus = "completed_with_errors"
	RunCancelled           RunStatus = "cancelled"
	RunError               RunStatus = "error"
)

// Terminal reports whether s ends a run.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunCompletedWithErrors, RunCancelled, RunError:
		return true
	}
	return false
}

// Counters holds the number of prompts in each state. The six state
// counters always sum to Total.
type Counters struct {
	Total                     int `json:"num_of_prompts_total"`
	Completed                 int `json:"num_of_prompts_completed"`
	Error                     int `json:"num_of_prompts_error"`
	Cancelled                 int `json:"num_of_prompts_cancelled"`
	Pending                   int `json:"num_of_prompts_pending"`
	RunningQuery              int `json:"num_of_prompts_running_query"`
	RunningMetricsCalculation int `json:"num_of_prompts_running_metrics_calculation"`
}

// Sum returns the sum of the six state counters.
func (c Counters) Sum() int {
	return c.Completed + c.Error + c.Cancelled + c.Pending + c.RunningQuery + c.RunningMetricsCalculation
}

// Snapshot is one committed progress state of a run. Prompt lists hold
// prompt indices in ascending order.
type Snapshot struct {
	RunnerID string    `json:"runner_id"`
	RunID    int64     `json:"run_id"`
	Status   RunStatus `json:"status"`
	// Seq increases by one per commit.
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`

	CurrentProgress      int      `json:"current_progress"`
	CurrentErrorMessages []string `json:"current_error_messages"`
	Counters

	CompletedPrompts []int `json:"completed_prompts"`
	ErrorPrompts     []int `json:"error_prompts"`
	RunningPrompts   []int `json:"running_prompts"`
	CancelledPrompts []int `json:"cancelled_prompts"`
	PendingPrompts   []int `json:"pending_prompts"`
}

// Terminal reports whether the snapshot ends its run.
func (s Snapshot) Terminal() bool { return s.Status.Terminal() }

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
	"time"

	"github.com/robfig/cron/v3"

	"github.com/teradata-labs/crucible/pkg/types"
)

// Execution statuses.
const (
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusSkipped   = "skipped"
)

// Schedule runs a runner's recipes or cookbooks on a cron expression.
type Schedule struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RunnerID string `json:"runner_id"`
	// Exactly one of Recipes and Cookbooks is set.
	Recipes                   []string `json:"recipes,omitempty"`
	Cookbooks                 []string `json:"cookbooks,omitempty"`
	PromptSelectionPercentage int      `json:"prompt_selection_percentage"`
	RandomSeed                int64    `json:"random_seed"`
	SystemPrompt              string   `json:"system_prompt,omitempty"`

	// Cron is a standard five-field expression.
	Cron     string `json:"cron"`
	Timezone string `json:"timezone"`
	Enabled  bool   `json:"enabled"`
	// SkipIfRunning drops a trigger while the previous run is still going.
	SkipIfRunning bool `json:"skip_if_running"`
	// MaxExecutionSeconds cancels runs that take longer. Default: 3600.
	MaxExecutionSeconds int    `json:"max_execution_seconds"`
	YAMLPath            string `json:"yaml_path,omitempty"`

	NextExecutionAt    int64  `json:"next_execution_at"`
	LastExecutionAt    int64  `json:"last_execution_at"`
	CurrentExecutionID string `json:"current_execution_id,omitempty"`
	Stats              Stats  `json:"stats"`
	CreatedAt          int64  `json:"created_at"`
	UpdatedAt          int64  `json:"updated_at"`
}

// Stats counts the executions of a schedule.
type Stats struct {
	Total      int    `json:"total"`
	Successful int    `json:"successful"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
	LastStatus string `json:"last_status,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

// Execution is one triggered run of a schedule.
type Execution struct {
	ExecutionID string `json:"execution_id"`
	TaskID      string `json:"task_id,omitempty"`
	StartedAt   int64  `json:"started_at"`
	CompletedAt int64  `json:"completed_at"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
}

// Validate checks the definition and fills defaults.
func (s *Schedule) Validate() error {
	if s.ID == "" {
		return types.Validation("schedule id is required")
	}
	if s.RunnerID == "" {
		return types.Validation("schedule %q: runner_id is required", s.ID)
	}
	if (len(s.Recipes) == 0) == (len(s.Cookbooks) == 0) {
		return types.Validation("schedule %q: exactly one of recipes and cookbooks must be set", s.ID)
	}
	if s.Cron == "" {
		return types.Validation("schedule %q: cron expression is required", s.ID)
	}
	if _, err := cron.ParseStandard(s.Cron); err != nil {
		return types.Validation("schedule %q: invalid cron expression: %v", s.ID, err)
	}
	if s.Timezone == "" {
		s.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return types.Validation("schedule %q: invalid timezone: %v", s.ID, err)
	}
	if s.PromptSelectionPercentage == 0 {
		s.PromptSelectionPercentage = 100
	}
	if s.PromptSelectionPercentage < 1 || s.PromptSelectionPercentage > 100 {
		return types.Validation("schedule %q: prompt_selection_percentage must be in 1..100, got %d",
			s.ID, s.PromptSelectionPercentage)
	}
	if s.MaxExecutionSeconds <= 0 {
		s.MaxExecutionSeconds = 3600
	}
	return nil
}

// nextExecution returns the next trigger time after now in the schedule's
// timezone.
func (s *Schedule) nextExecution(now time.Time) (int64, error) {
	sched, err := cron.ParseStandard(s.Cron)
	if err != nil {
		return 0, types.Validation("schedule %q: invalid cron expression: %v", s.ID, err)
	}
	location, err := time.LoadLocation(s.Timezone)
	if err != nil {
		location = time.UTC
	}
	return sched.Next(now.In(location)).Unix(), nil
}

// definition is the part of a schedule that is stored as JSON; the rest
// lives in columns.
type definition struct {
	Name                      string   `json:"name"`
	RunnerID                  string   `json:"runner_id"`
	Recipes                   []string `json:"recipes,omitempty"`
	Cookbooks                 []string `json:"cookbooks,omitempty"`
	PromptSelectionPercentage int      `json:"prompt_selection_percentage"`
	RandomSeed                int64    `json:"random_seed"`
	SystemPrompt              string   `json:"system_prompt,omitempty"`
	Cron                      string   `json:"cron"`
	Timezone                  string   `json:"timezone"`
	Enabled                   bool     `json:"enabled"`
	SkipIfRunning             bool     `json:"skip_if_running"`
	MaxExecutionSeconds       int      `json:"max_execution_seconds"`
}

func (s *Schedule) definition() definition {
	return definition{
		Name:                      s.Name,
		RunnerID:                  s.RunnerID,
		Recipes:                   s.Recipes,
		Cookbooks:                 s.Cookbooks,
		PromptSelectionPercentage: s.PromptSelectionPercentage,
		RandomSeed:                s.RandomSeed,
		SystemPrompt:              s.SystemPrompt,
		Cron:                      s.Cron,
		Timezone:                  s.Timezone,
		Enabled:                   s.Enabled,
		SkipIfRunning:             s.SkipIfRunning,
		MaxExecutionSeconds:       s.MaxExecutionSeconds,
	}
}

func (s *Schedule) apply(d definition) {
	s.Name = d.Name
	s.RunnerID = d.RunnerID
	s.Recipes = d.Recipes
	s.Cookbooks = d.Cookbooks
	s.PromptSelectionPercentage = d.PromptSelectionPercentage
	s.RandomSeed = d.RandomSeed
	s.SystemPrompt = d.SystemPrompt
	s.Cron = d.Cron
	s.Timezone = d.Timezone
	s.Enabled = d.Enabled
	s.SkipIfRunning = d.SkipIfRunning
	s.MaxExecutionSeconds = d.MaxExecutionSeconds
}

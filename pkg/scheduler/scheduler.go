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

// Package scheduler triggers benchmark runs on cron expressions. Every
// trigger is launched as a manager task so scheduled runs can be listed and
// cancelled like interactive ones.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/teradata-labs/crucible/pkg/manager"
	"github.com/teradata-labs/crucible/pkg/types"
)

// Launcher starts the run of a schedule as a manager task and returns the
// task id.
type Launcher func(ctx context.Context, schedule *Schedule) (taskID string, err error)

// Config contains scheduler configuration.
type Config struct {
	DBPath string
	// ScheduleDir holds schedule YAML files. HotReload rescans it.
	ScheduleDir string
	HotReload   bool
	Manager     *manager.Manager
	Launch      Launcher
	Logger      *zap.Logger
}

// Scheduler manages cron-based benchmark runs.
type Scheduler struct {
	mu          sync.RWMutex
	schedules   map[string]*Schedule
	running     map[string]string // schedule_id -> execution_id
	cronEngine  *cron.Cron
	cronEntries map[string]cron.EntryID
	store       *Store
	manager     *manager.Manager
	launch      Launcher
	logger      *zap.Logger
	loader      *Loader
	stopCh      chan struct{}
	stopOnce    sync.Once
	stopErr     error
	wg          sync.WaitGroup
	execWG      sync.WaitGroup
	config      Config
}

// NewScheduler creates a scheduler backed by the database at config.DBPath.
func NewScheduler(ctx context.Context, config Config) (*Scheduler, error) {
	if config.Manager == nil {
		return nil, types.Validation("scheduler: manager is required")
	}
	if config.Launch == nil {
		return nil, types.Validation("scheduler: launcher is required")
	}
	if config.DBPath == "" {
		return nil, types.Validation("scheduler: db path is required")
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	store, err := NewStore(ctx, config.DBPath, config.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	s := &Scheduler{
		schedules:   make(map[string]*Schedule),
		running:     make(map[string]string),
		cronEngine:  cron.New(),
		cronEntries: make(map[string]cron.EntryID),
		store:       store,
		manager:     config.Manager,
		launch:      config.Launch,
		logger:      config.Logger,
		stopCh:      make(chan struct{}),
		config:      config,
	}
	if config.ScheduleDir != "" {
		s.loader = &Loader{
			scheduleDir: config.ScheduleDir,
			scheduler:   s,
			logger:      config.Logger,
			fileHashes:  make(map[string]string),
			fileIDs:     make(map[string]string),
		}
	}
	return s, nil
}

// Start loads stored schedules, scans the schedule directory and starts
// the cron engine.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting scheduler")

	schedules, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}
	s.logger.Info("Loaded schedules from database", zap.Int("count", len(schedules)))

	s.mu.Lock()
	for _, schedule := range schedules {
		if err := s.addScheduleToCron(schedule); err != nil {
			s.logger.Error("Failed to add schedule to cron",
				zap.String("schedule_id", schedule.ID),
				zap.Error(err))
		}
	}
	s.mu.Unlock()

	if s.loader != nil {
		if err := s.loader.ScanDirectory(ctx); err != nil {
			s.logger.Error("Failed to scan schedule directory", zap.Error(err))
		}
	}

	s.cronEngine.Start()
	s.logger.Info("Cron engine started")

	if s.loader != nil && s.config.HotReload {
		s.wg.Add(1)
		go s.watchYAMLFiles(ctx)
		s.logger.Info("Hot-reload watcher started", zap.String("schedule_dir", s.config.ScheduleDir))
	}
	return nil
}

// Stop stops triggering, waits for running executions or ctx, and closes
// the store. Calls after the first return the first result.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { s.stopErr = s.stop(ctx) })
	return s.stopErr
}

func (s *Scheduler) stop(ctx context.Context) error {
	s.logger.Info("Stopping scheduler")
	close(s.stopCh)
	cronCtx := s.cronEngine.Stop()
	s.wg.Wait()

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		s.execWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("All scheduled runs completed")
	case <-ctx.Done():
		s.logger.Warn("Scheduler shutdown timeout, some runs may still be going")
	}

	if err := s.store.Close(); err != nil {
		s.logger.Error("Failed to close store", zap.Error(err))
		return err
	}
	s.logger.Info("Scheduler stopped")
	return nil
}

// AddSchedule validates, persists and activates a new schedule.
func (s *Scheduler) AddSchedule(ctx context.Context, schedule *Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := schedule.Validate(); err != nil {
		return err
	}
	next, err := schedule.nextExecution(time.Now())
	if err != nil {
		return err
	}
	schedule.NextExecutionAt = next

	now := time.Now().Unix()
	if schedule.CreatedAt == 0 {
		schedule.CreatedAt = now
	}
	if schedule.UpdatedAt == 0 {
		schedule.UpdatedAt = now
	}

	if err := s.store.Create(ctx, schedule); err != nil {
		return fmt.Errorf("failed to store schedule: %w", err)
	}
	if err := s.addScheduleToCron(schedule); err != nil {
		return fmt.Errorf("failed to add to cron: %w", err)
	}

	s.logger.Info("Added schedule",
		zap.String("schedule_id", schedule.ID),
		zap.String("runner_id", schedule.RunnerID),
		zap.String("cron", schedule.Cron))
	return nil
}

// UpdateSchedule replaces the definition of an existing schedule.
func (s *Scheduler) UpdateSchedule(ctx context.Context, schedule *Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := schedule.Validate(); err != nil {
		return err
	}
	s.removeFromCron(schedule.ID)

	next, err := schedule.nextExecution(time.Now())
	if err != nil {
		return err
	}
	schedule.NextExecutionAt = next

	if err := s.store.Update(ctx, schedule); err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	if err := s.addScheduleToCron(schedule); err != nil {
		return fmt.Errorf("failed to add to cron: %w", err)
	}

	s.logger.Info("Updated schedule", zap.String("schedule_id", schedule.ID))
	return nil
}

// RemoveSchedule deactivates and deletes a schedule.
func (s *Scheduler) RemoveSchedule(ctx context.Context, scheduleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeFromCron(scheduleID)
	delete(s.schedules, scheduleID)
	if err := s.store.Delete(ctx, scheduleID); err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}

	s.logger.Info("Removed schedule", zap.String("schedule_id", scheduleID))
	return nil
}

// PauseSchedule disables a schedule without removing it.
func (s *Scheduler) PauseSchedule(ctx context.Context, scheduleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule, err := s.lookup(ctx, scheduleID)
	if err != nil {
		return err
	}
	s.removeFromCron(scheduleID)

	paused := *schedule
	paused.Enabled = false
	if err := s.store.Update(ctx, &paused); err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	s.schedules[scheduleID] = &paused

	s.logger.Info("Paused schedule", zap.String("schedule_id", scheduleID))
	return nil
}

// ResumeSchedule re-enables a paused schedule.
func (s *Scheduler) ResumeSchedule(ctx context.Context, scheduleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule, err := s.lookup(ctx, scheduleID)
	if err != nil {
		return err
	}
	resumed := *schedule
	resumed.Enabled = true
	next, err := resumed.nextExecution(time.Now())
	if err != nil {
		return err
	}
	resumed.NextExecutionAt = next

	if err := s.store.Update(ctx, &resumed); err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	s.removeFromCron(scheduleID)
	if err := s.addScheduleToCron(&resumed); err != nil {
		return fmt.Errorf("failed to add to cron: %w", err)
	}

	s.logger.Info("Resumed schedule", zap.String("schedule_id", scheduleID))
	return nil
}

// TriggerNow runs a schedule immediately and returns the execution id.
func (s *Scheduler) TriggerNow(ctx context.Context, scheduleID string, skipIfRunning bool) (string, error) {
	s.mu.Lock()
	schedule, err := s.lookup(ctx, scheduleID)
	current := s.running[scheduleID]
	s.mu.Unlock()

	if err != nil {
		return "", err
	}
	if skipIfRunning && current != "" {
		return "", types.Validation("previous execution still running: %s", current)
	}

	executionID := uuid.NewString()
	s.execWG.Add(1)
	go func() {
		defer s.execWG.Done()
		s.execute(context.WithoutCancel(ctx), schedule, executionID)
	}()
	return executionID, nil
}

// GetSchedule retrieves a schedule by id.
func (s *Scheduler) GetSchedule(ctx context.Context, scheduleID string) (*Schedule, error) {
	return s.store.Get(ctx, scheduleID)
}

// ListSchedules returns all schedules.
func (s *Scheduler) ListSchedules(ctx context.Context) ([]*Schedule, error) {
	return s.store.List(ctx)
}

// GetHistory returns up to limit executions of a schedule, newest first.
func (s *Scheduler) GetHistory(ctx context.Context, scheduleID string, limit int) ([]*Execution, error) {
	return s.store.GetExecutionHistory(ctx, scheduleID, limit)
}

// lookup returns a known schedule, reading it from the store when this
// scheduler has not seen it yet. It must be called with s.mu held.
func (s *Scheduler) lookup(ctx context.Context, scheduleID string) (*Schedule, error) {
	if schedule, ok := s.schedules[scheduleID]; ok {
		return schedule, nil
	}
	schedule, err := s.store.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	s.schedules[scheduleID] = schedule
	return schedule, nil
}

// addScheduleToCron must be called with s.mu held.
func (s *Scheduler) addScheduleToCron(schedule *Schedule) error {
	s.schedules[schedule.ID] = schedule
	if !schedule.Enabled {
		return nil
	}
	id := schedule.ID
	spec := schedule.Cron
	if schedule.Timezone != "" {
		spec = fmt.Sprintf("CRON_TZ=%s %s", schedule.Timezone, schedule.Cron)
	}
	entryID, err := s.cronEngine.AddFunc(spec, func() {
		s.mu.RLock()
		current, ok := s.schedules[id]
		s.mu.RUnlock()
		if !ok {
			return
		}
		s.execWG.Add(1)
		defer s.execWG.Done()
		s.execute(context.Background(), current, uuid.NewString())
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	s.cronEntries[id] = entryID
	return nil
}

// removeFromCron must be called with s.mu held.
func (s *Scheduler) removeFromCron(scheduleID string) {
	if entryID, ok := s.cronEntries[scheduleID]; ok {
		s.cronEngine.Remove(entryID)
		delete(s.cronEntries, scheduleID)
	}
}

// execute launches one run of schedule through the manager and records
// its outcome.
func (s *Scheduler) execute(ctx context.Context, schedule *Schedule, executionID string) {
	start := time.Now()
	logger := s.logger.With(
		zap.String("schedule_id", schedule.ID),
		zap.String("execution_id", executionID))

	s.mu.Lock()
	current := s.running[schedule.ID]
	if schedule.SkipIfRunning && current != "" {
		s.mu.Unlock()
		logger.Info("Skipping execution, previous still running", zap.String("current_execution_id", current))
		if err := s.store.IncrementSkipped(ctx, schedule.ID); err != nil {
			logger.Error("Failed to increment skipped count", zap.Error(err))
		}
		return
	}
	s.running[schedule.ID] = executionID
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.running[schedule.ID] == executionID {
			delete(s.running, schedule.ID)
		}
		s.mu.Unlock()
		if err := s.store.UpdateCurrentExecution(ctx, schedule.ID, ""); err != nil {
			logger.Error("Failed to clear current execution", zap.Error(err))
		}
	}()
	if err := s.store.UpdateCurrentExecution(ctx, schedule.ID, executionID); err != nil {
		logger.Error("Failed to update current execution", zap.Error(err))
	}

	logger.Info("Executing scheduled run", zap.String("runner_id", schedule.RunnerID))
	execution := &Execution{ExecutionID: executionID, StartedAt: start.Unix()}
	execution.TaskID, execution.Status, execution.Error = s.run(ctx, schedule)
	execution.CompletedAt = time.Now().Unix()
	execution.DurationMs = time.Since(start).Milliseconds()

	var err error
	if execution.Status == StatusSuccess {
		logger.Info("Scheduled run succeeded", zap.Int64("duration_ms", execution.DurationMs))
		err = s.store.RecordSuccess(ctx, schedule.ID)
	} else {
		logger.Error("Scheduled run did not succeed",
			zap.String("status", execution.Status),
			zap.String("error", execution.Error))
		err = s.store.RecordFailure(ctx, schedule.ID, execution.Status, execution.Error)
	}
	if err != nil {
		logger.Error("Failed to record outcome", zap.Error(err))
	}
	if err := s.store.RecordExecution(ctx, schedule.ID, execution); err != nil {
		logger.Error("Failed to record execution", zap.Error(err))
	}

	next, err := schedule.nextExecution(time.Now())
	if err != nil {
		logger.Error("Failed to calculate next execution", zap.Error(err))
		return
	}
	if err := s.store.UpdateNextExecution(ctx, schedule.ID, next); err != nil {
		logger.Error("Failed to update next execution", zap.Error(err))
	}
}

// run launches the task and waits for it, cancelling it after
// MaxExecutionSeconds.
func (s *Scheduler) run(ctx context.Context, schedule *Schedule) (taskID, status, errMsg string) {
	timeout := time.Duration(schedule.MaxExecutionSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Hour
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	taskID, err := s.launch(execCtx, schedule)
	if err != nil {
		return "", StatusFailed, err.Error()
	}
	task, err := s.manager.Wait(execCtx, taskID)
	if err != nil {
		cancelCtx, cancelWait := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
		defer cancelWait()
		if cerr := s.manager.Cancel(cancelCtx, taskID); cerr != nil {
			s.logger.Warn("Failed to cancel timed out run", zap.String("task_id", taskID), zap.Error(cerr))
		}
		return taskID, StatusCancelled, fmt.Sprintf("run exceeded %s", timeout)
	}
	if task.Status != manager.TaskCompleted && errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		return taskID, StatusCancelled, fmt.Sprintf("run exceeded %s", timeout)
	}
	switch task.Status {
	case manager.TaskCompleted:
		return taskID, StatusSuccess, ""
	case manager.TaskCancelled:
		return taskID, StatusCancelled, "run cancelled"
	default:
		return taskID, StatusFailed, task.Error
	}
}

// watchYAMLFiles rescans the schedule directory until Stop.
func (s *Scheduler) watchYAMLFiles(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.loader.ScanDirectory(ctx); err != nil {
				s.logger.Error("Failed to scan schedule directory", zap.Error(err))
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

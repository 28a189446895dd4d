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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	_ "github.com/teradata-labs/crucible/internal/sqlitedriver"
	"github.com/teradata-labs/crucible/pkg/types"
)

// Store persists schedules and their execution history to SQLite.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewStore opens or creates the scheduler database at dbPath, normally
// $CRUCIBLE_DATA_DIR/scheduler.db.
func NewStore(ctx context.Context, dbPath string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, types.Store("failed to create scheduler directory", err)
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, types.Store("failed to open scheduler database", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, logger: logger}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, types.Store("failed to initialize scheduler schema", err)
	}
	return store, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		definition_json TEXT NOT NULL,
		yaml_path TEXT,
		last_execution_at INTEGER DEFAULT 0,
		next_execution_at INTEGER DEFAULT 0,
		current_execution_id TEXT,
		total_executions INTEGER DEFAULT 0,
		successful_executions INTEGER DEFAULT 0,
		failed_executions INTEGER DEFAULT 0,
		skipped_executions INTEGER DEFAULT 0,
		last_status TEXT,
		last_error TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_next_execution ON schedules(next_execution_at);

	CREATE TABLE IF NOT EXISTS schedule_executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		schedule_id TEXT NOT NULL,
		execution_id TEXT NOT NULL,
		task_id TEXT,
		started_at INTEGER NOT NULL,
		completed_at INTEGER DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT,
		duration_ms INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_schedule_id ON schedule_executions(schedule_id);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Create persists a new schedule.
func (s *Store) Create(ctx context.Context, schedule *Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, err := json.Marshal(schedule.definition())
	if err != nil {
		return fmt.Errorf("failed to marshal schedule: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO schedules (id, definition_json, yaml_path, next_execution_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		schedule.ID, string(def), schedule.YAMLPath, schedule.NextExecutionAt,
		schedule.CreatedAt, schedule.UpdatedAt)
	if err != nil {
		return types.Store("failed to insert schedule", err)
	}
	return nil
}

const scheduleColumns = `id, definition_json, yaml_path, last_execution_at, next_execution_at,
	current_execution_id, total_executions, successful_executions, failed_executions,
	skipped_executions, last_status, last_error, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*Schedule, error) {
	var (
		schedule                                   Schedule
		def                                        string
		yamlPath, currentExec, lastStatus, lastErr sql.NullString
	)
	err := row.Scan(
		&schedule.ID,
		&def,
		&yamlPath,
		&schedule.LastExecutionAt,
		&schedule.NextExecutionAt,
		&currentExec,
		&schedule.Stats.Total,
		&schedule.Stats.Successful,
		&schedule.Stats.Failed,
		&schedule.Stats.Skipped,
		&lastStatus,
		&lastErr,
		&schedule.CreatedAt,
		&schedule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	var d definition
	if err := json.Unmarshal([]byte(def), &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schedule %q: %w", schedule.ID, err)
	}
	schedule.apply(d)
	schedule.YAMLPath = yamlPath.String
	schedule.CurrentExecutionID = currentExec.String
	schedule.Stats.LastStatus = lastStatus.String
	schedule.Stats.LastError = lastErr.String
	return &schedule, nil
}

// Get retrieves a schedule by id.
func (s *Store) Get(ctx context.Context, id string) (*Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	schedule, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NotFound("schedule", id)
	}
	if err != nil {
		return nil, types.Store("failed to query schedule", err)
	}
	return schedule, nil
}

// Update replaces the definition of an existing schedule. Stats are kept.
func (s *Store) Update(ctx context.Context, schedule *Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, err := json.Marshal(schedule.definition())
	if err != nil {
		return fmt.Errorf("failed to marshal schedule: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE schedules
		SET definition_json = ?, yaml_path = ?, next_execution_at = ?, updated_at = ?
		WHERE id = ?`,
		string(def), schedule.YAMLPath, schedule.NextExecutionAt, time.Now().Unix(), schedule.ID)
	if err != nil {
		return types.Store("failed to update schedule", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.NotFound("schedule", schedule.ID)
	}
	return nil
}

// Delete removes a schedule and its history.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM schedule_executions WHERE schedule_id = ?`, id); err != nil {
		return types.Store("failed to delete schedule history", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id); err != nil {
		return types.Store("failed to delete schedule", err)
	}
	return nil
}

// List returns all schedules ordered by id.
func (s *Store) List(ctx context.Context) ([]*Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+scheduleColumns+` FROM schedules ORDER BY id`)
	if err != nil {
		return nil, types.Store("failed to list schedules", err)
	}
	defer rows.Close()

	schedules := make([]*Schedule, 0)
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, types.Store("failed to scan schedule", err)
		}
		schedules = append(schedules, schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, types.Store("failed to list schedules", err)
	}
	return schedules, nil
}

// UpdateCurrentExecution sets or clears the running execution of a schedule.
func (s *Store) UpdateCurrentExecution(ctx context.Context, scheduleID, executionID string) error {
	return s.exec(ctx, "failed to update current execution",
		`UPDATE schedules SET current_execution_id = ?, updated_at = ? WHERE id = ?`,
		executionID, time.Now().Unix(), scheduleID)
}

// UpdateNextExecution sets the next trigger time.
func (s *Store) UpdateNextExecution(ctx context.Context, scheduleID string, nextExecution int64) error {
	return s.exec(ctx, "failed to update next execution",
		`UPDATE schedules SET next_execution_at = ?, updated_at = ? WHERE id = ?`,
		nextExecution, time.Now().Unix(), scheduleID)
}

// RecordSuccess counts a successful execution.
func (s *Store) RecordSuccess(ctx context.Context, scheduleID string) error {
	now := time.Now().Unix()
	return s.exec(ctx, "failed to record success", `
		UPDATE schedules
		SET total_executions = total_executions + 1,
		    successful_executions = successful_executions + 1,
		    last_execution_at = ?,
		    last_status = 'success',
		    last_error = '',
		    updated_at = ?
		WHERE id = ?`, now, now, scheduleID)
}

// RecordFailure counts a failed or cancelled execution and keeps its error.
func (s *Store) RecordFailure(ctx context.Context, scheduleID, status, errorMsg string) error {
	now := time.Now().Unix()
	return s.exec(ctx, "failed to record failure", `
		UPDATE schedules
		SET total_executions = total_executions + 1,
		    failed_executions = failed_executions + 1,
		    last_execution_at = ?,
		    last_status = ?,
		    last_error = ?,
		    updated_at = ?
		WHERE id = ?`, now, status, errorMsg, now, scheduleID)
}

// IncrementSkipped counts a skipped trigger.
func (s *Store) IncrementSkipped(ctx context.Context, scheduleID string) error {
	return s.exec(ctx, "failed to increment skipped", `
		UPDATE schedules
		SET skipped_executions = skipped_executions + 1,
		    last_status = 'skipped',
		    updated_at = ?
		WHERE id = ?`, time.Now().Unix(), scheduleID)
}

// RecordExecution appends an execution to the history.
func (s *Store) RecordExecution(ctx context.Context, scheduleID string, exec *Execution) error {
	return s.exec(ctx, "failed to record execution", `
		INSERT INTO schedule_executions
			(schedule_id, execution_id, task_id, started_at, completed_at, status, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		scheduleID, exec.ExecutionID, exec.TaskID, exec.StartedAt, exec.CompletedAt,
		exec.Status, exec.Error, exec.DurationMs)
}

// GetExecutionHistory returns up to limit executions, newest first.
func (s *Store) GetExecutionHistory(ctx context.Context, scheduleID string, limit int) ([]*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT execution_id, task_id, started_at, completed_at, status, error, duration_ms
		FROM schedule_executions
		WHERE schedule_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, scheduleID, limit)
	if err != nil {
		return nil, types.Store("failed to query execution history", err)
	}
	defer rows.Close()

	executions := make([]*Execution, 0)
	for rows.Next() {
		var (
			exec           Execution
			taskID, errMsg sql.NullString
		)
		if err := rows.Scan(&exec.ExecutionID, &taskID, &exec.StartedAt, &exec.CompletedAt,
			&exec.Status, &errMsg, &exec.DurationMs); err != nil {
			return nil, types.Store("failed to scan execution", err)
		}
		exec.TaskID = taskID.String
		exec.Error = errMsg.String
		executions = append(executions, &exec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.Store("failed to query execution history", err)
	}
	return executions, nil
}

func (s *Store) exec(ctx context.Context, msg, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return types.Store(msg, err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

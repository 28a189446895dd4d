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
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/teradata-labs/crucible/pkg/types"
)

// RunType tells whether a run executed recipes or cookbooks.
type RunType string

const (
	RunTypeRecipe   RunType = "recipe"
	RunTypeCookbook RunType = "cookbook"
)

// RunRecord is one run() invocation of a runner. RunID increases strictly
// within a store.
type RunRecord struct {
	RunID        int64
	RunnerID     string
	Type         RunType
	RunArgs      json.RawMessage
	StartTime    time.Time
	EndTime      time.Time
	DBFile       string
	FilePath     string
	Recipes      []string
	Cookbooks    []string
	Endpoints    []string
	NumOfPrompts int
	Status       string
	RawResults   json.RawMessage
	Results      json.RawMessage
}

// Duration is EndTime - StartTime, or zero while running.
func (r *RunRecord) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// CreateRun inserts r and assigns r.RunID.
func (s *Store) CreateRun(ctx context.Context, r *RunRecord) error {
	return s.write(ctx, "failed to create run", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO run_metadata_table
				(runner_id, type, arguments, start_time, end_time, duration, db_file, filepath,
				 recipes, cookbooks, endpoints, num_of_prompts, status, raw_results, results)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunnerID, string(r.Type), nullJSON(r.RunArgs), unixOrZero(r.StartTime), unixOrZero(r.EndTime),
			int64(r.Duration().Seconds()), r.DBFile, r.FilePath,
			mustJSON(r.Recipes), mustJSON(r.Cookbooks), mustJSON(r.Endpoints),
			r.NumOfPrompts, r.Status, nullJSON(r.RawResults), nullJSON(r.Results))
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		r.RunID = id
		return nil
	})
}

// UpdateRun rewrites the mutable columns of an existing run.
func (s *Store) UpdateRun(ctx context.Context, r *RunRecord) error {
	return s.write(ctx, "failed to update run", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE run_metadata_table
			SET end_time = ?, duration = ?, filepath = ?, num_of_prompts = ?, status = ?,
			    raw_results = ?, results = ?
			WHERE id = ?`,
			unixOrZero(r.EndTime), int64(r.Duration().Seconds()), r.FilePath, r.NumOfPrompts, r.Status,
			nullJSON(r.RawResults), nullJSON(r.Results), r.RunID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return types.NotFound("run", strconv.FormatInt(r.RunID, 10))
		}
		return nil
	})
}

const runColumns = `id, runner_id, type, arguments, start_time, end_time, db_file, filepath,
	recipes, cookbooks, endpoints, num_of_prompts, status, raw_results, results`

// GetRun returns the run with the given id.
func (s *Store) GetRun(ctx context.Context, runID int64) (*RunRecord, error) {
	if err := s.readable("failed to get run"); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM run_metadata_table WHERE id = ?", runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NotFound("run", strconv.FormatInt(runID, 10))
	}
	if err != nil {
		return nil, types.Store("failed to get run", err)
	}
	return r, nil
}

// LatestRun returns the run with the highest id.
func (s *Store) LatestRun(ctx context.Context) (*RunRecord, error) {
	if err := s.readable("failed to get latest run"); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM run_metadata_table ORDER BY id DESC LIMIT 1")
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NotFound("run", "latest")
	}
	if err != nil {
		return nil, types.Store("failed to get latest run", err)
	}
	return r, nil
}

// ListRuns returns every run in ascending id order.
func (s *Store) ListRuns(ctx context.Context) ([]*RunRecord, error) {
	if err := s.readable("failed to list runs"); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT "+runColumns+" FROM run_metadata_table ORDER BY id")
	if err != nil {
		return nil, types.Store("failed to list runs", err)
	}
	defer rows.Close()

	var out []*RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, types.Store("failed to scan run", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, types.Store("failed to list runs", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*RunRecord, error) {
	var (
		r                             RunRecord
		typ                           string
		args, raw, results            sql.NullString
		start, end                    int64
		dbFile, filePath              sql.NullString
		recipes, cookbooks, endpoints sql.NullString
	)
	if err := sc.Scan(&r.RunID, &r.RunnerID, &typ, &args, &start, &end, &dbFile, &filePath,
		&recipes, &cookbooks, &endpoints, &r.NumOfPrompts, &r.Status, &raw, &results); err != nil {
		return nil, err
	}
	r.Type = RunType(typ)
	r.DBFile = dbFile.String
	r.FilePath = filePath.String
	r.StartTime = fromUnix(start)
	r.EndTime = fromUnix(end)
	if args.Valid {
		r.RunArgs = json.RawMessage(args.String)
	}
	if raw.Valid {
		r.RawResults = json.RawMessage(raw.String)
	}
	if results.Valid {
		r.Results = json.RawMessage(results.String)
	}
	for _, f := range []struct {
		src sql.NullString
		dst *[]string
	}{{recipes, &r.Recipes}, {cookbooks, &r.Cookbooks}, {endpoints, &r.Endpoints}} {
		if f.src.Valid && f.src.String != "" {
			if err := json.Unmarshal([]byte(f.src.String), f.dst); err != nil {
				return nil, fmt.Errorf("failed to decode run %d list column: %w", r.RunID, err)
			}
		}
	}
	return &r, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnix(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func nullJSON(b json.RawMessage) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

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
	"errors"
	"time"

	"github.com/teradata-labs/crucible/pkg/types"
)

// CacheKey identifies a cached response. The system prompt is not part of
// the key.
type CacheKey struct {
	RecipeID       string
	EndpointID     string
	PromptTemplate string
	Prompt         string
}

// CacheRow is an authoritative past response reused instead of a remote call.
type CacheRow struct {
	ID               int64
	EndpointID       string
	RecipeID         string
	PromptTemplate   string
	ConnectionPrompt string
	Prompt           string
	// Target is the JSON encoding of the dataset target.
	Target          string
	PredictedResult string
	Duration        time.Duration
}

// Key returns the lookup key of the row.
func (c *CacheRow) Key() CacheKey {
	return CacheKey{
		RecipeID:       c.RecipeID,
		EndpointID:     c.EndpointID,
		PromptTemplate: c.PromptTemplate,
		Prompt:         c.Prompt,
	}
}

// PutCache inserts row unless a row with the same key exists. It reports
// whether a row was written.
func (s *Store) PutCache(ctx context.Context, row *CacheRow) (bool, error) {
	var inserted bool
	err := s.write(ctx, "failed to insert cache row", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO cache_table
				(endpoint, recipe, prompt_template, connection_prompt, prompt, target, predicted_result, duration)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(recipe, endpoint, prompt_template, prompt) DO NOTHING`,
			row.EndpointID, row.RecipeID, row.PromptTemplate, row.ConnectionPrompt, row.Prompt,
			row.Target, row.PredictedResult, row.Duration.Seconds())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = n > 0
		if inserted {
			row.ID, _ = res.LastInsertId()
		}
		return nil
	})
	return inserted, err
}

// LookupCache returns the row stored under key.
func (s *Store) LookupCache(ctx context.Context, key CacheKey) (*CacheRow, bool, error) {
	if err := s.readable("failed to read cache"); err != nil {
		return nil, false, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+cacheColumns+` FROM cache_table
		WHERE recipe = ? AND endpoint = ? AND prompt_template = ? AND prompt = ?`,
		key.RecipeID, key.EndpointID, key.PromptTemplate, key.Prompt)
	c, err := scanCache(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, types.Store("failed to read cache", err)
	}
	return c, true, nil
}

// CacheRows returns every row for a (recipe, endpoint) pair in insertion
// order.
func (s *Store) CacheRows(ctx context.Context, recipeID, endpointID string) ([]*CacheRow, error) {
	if err := s.readable("failed to read cache"); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+cacheColumns+` FROM cache_table
		WHERE recipe = ? AND endpoint = ? ORDER BY id`, recipeID, endpointID)
	if err != nil {
		return nil, types.Store("failed to read cache", err)
	}
	defer rows.Close()

	var out []*CacheRow
	for rows.Next() {
		c, err := scanCache(rows)
		if err != nil {
			return nil, types.Store("failed to scan cache row", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.Store("failed to read cache", err)
	}
	return out, nil
}

// CountCache returns the number of cache rows.
func (s *Store) CountCache(ctx context.Context) (int, error) {
	if err := s.readable("failed to count cache"); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cache_table").Scan(&n); err != nil {
		return 0, types.Store("failed to count cache", err)
	}
	return n, nil
}

const cacheColumns = `id, endpoint, recipe, prompt_template, connection_prompt, prompt, target, predicted_result, duration`

func scanCache(sc scanner) (*CacheRow, error) {
	var (
		c                  CacheRow
		connPrompt, target sql.NullString
		predicted          sql.NullString
		seconds            float64
	)
	if err := sc.Scan(&c.ID, &c.EndpointID, &c.RecipeID, &c.PromptTemplate, &connPrompt, &c.Prompt,
		&target, &predicted, &seconds); err != nil {
		return nil, err
	}
	c.ConnectionPrompt = connPrompt.String
	c.Target = target.String
	c.PredictedResult = predicted.String
	c.Duration = time.Duration(seconds * float64(time.Second))
	return &c, nil
}

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

	"github.com/teradata-labs/crucible/pkg/types"
)

// DefaultNumOfPrevPrompts is the context-strategy window of a new session.
const DefaultNumOfPrevPrompts = 5

// SessionMetadata is the single metadata row of a session store. Empty
// strings mean the setting is cleared.
type SessionMetadata struct {
	SessionID          string   `json:"session_id"`
	Description        string   `json:"description"`
	Endpoints          []string `json:"endpoints"`
	CreatedEpoch       int64    `json:"created_epoch"`
	CreatedDatetime    string   `json:"created_datetime"`
	PromptTemplate     string   `json:"prompt_template"`
	ContextStrategy    string   `json:"context_strategy"`
	CSNumOfPrevPrompts int      `json:"cs_num_of_prev_prompts"`
	AttackModule       string   `json:"attack_module"`
	Metric             string   `json:"metric"`
	SystemPrompt       string   `json:"system_prompt"`
}

// SaveSessionMetadata inserts or replaces the metadata row atomically.
func (s *Store) SaveSessionMetadata(ctx context.Context, m *SessionMetadata) error {
	endpoints, err := json.Marshal(m.Endpoints)
	if err != nil {
		return types.Store("failed to encode session endpoints", err)
	}
	return s.write(ctx, "failed to save session metadata", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO session_metadata_table
				(session_id, description, endpoints, created_epoch, created_datetime, prompt_template,
				 context_strategy, cs_num_of_prev_prompts, attack_module, metric, system_prompt)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id) DO UPDATE SET
				description = excluded.description,
				endpoints = excluded.endpoints,
				prompt_template = excluded.prompt_template,
				context_strategy = excluded.context_strategy,
				cs_num_of_prev_prompts = excluded.cs_num_of_prev_prompts,
				attack_module = excluded.attack_module,
				metric = excluded.metric,
				system_prompt = excluded.system_prompt`,
			m.SessionID, m.Description, string(endpoints), m.CreatedEpoch, m.CreatedDatetime, m.PromptTemplate,
			m.ContextStrategy, m.CSNumOfPrevPrompts, m.AttackModule, m.Metric, m.SystemPrompt)
		return err
	})
}

// LoadSessionMetadata returns the metadata row, or NotFound when the store
// holds no session.
func (s *Store) LoadSessionMetadata(ctx context.Context) (*SessionMetadata, error) {
	if err := s.readable("failed to load session metadata"); err != nil {
		return nil, err
	}
	var (
		m                                         SessionMetadata
		endpoints                                 string
		desc, tmpl, cs, attack, metric, sysPrompt sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, description, endpoints, created_epoch, created_datetime, prompt_template,
		       context_strategy, cs_num_of_prev_prompts, attack_module, metric, system_prompt
		FROM session_metadata_table LIMIT 1`).Scan(
		&m.SessionID, &desc, &endpoints, &m.CreatedEpoch, &m.CreatedDatetime, &tmpl,
		&cs, &m.CSNumOfPrevPrompts, &attack, &metric, &sysPrompt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NotFound("session", s.path)
	}
	if err != nil {
		return nil, types.Store("failed to load session metadata", err)
	}
	if err := json.Unmarshal([]byte(endpoints), &m.Endpoints); err != nil {
		return nil, types.Store("failed to decode session endpoints", err)
	}
	m.Description = desc.String
	m.PromptTemplate = tmpl.String
	m.ContextStrategy = cs.String
	m.AttackModule = attack.String
	m.Metric = metric.String
	m.SystemPrompt = sysPrompt.String
	return &m, nil
}

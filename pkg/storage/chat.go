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
	"time"

	"github.com/teradata-labs/crucible/pkg/types"
)

// ChatMetadata describes one endpoint chat of a session.
type ChatMetadata struct {
	ID              string
	EndpointID      string
	CreatedEpoch    int64
	CreatedDatetime string
	// ContextStrategy is the number of previous prompts the chat was
	// created with.
	ContextStrategy int
	PromptTemplate  string
}

// ChatRecord is one prompt exchange in a chat. ChatRecordID increases
// strictly within a chat.
type ChatRecord struct {
	ChatRecordID    int64
	ConnectionID    string
	ContextStrategy string
	PromptTemplate  string
	AttackModule    string
	Metric          string
	Prompt          string
	PreparedPrompt  string
	SystemPrompt    string
	PredictedResult string
	Duration        time.Duration
	PromptTime      time.Time
}

// CreateChat inserts chat metadata. An existing chat with the same id is
// left untouched.
func (s *Store) CreateChat(ctx context.Context, m ChatMetadata) error {
	return s.write(ctx, "failed to create chat", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chat_metadata_table
				(id, endpoint, created_epoch, created_datetime, context_strategy, prompt_template)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			m.ID, m.EndpointID, m.CreatedEpoch, m.CreatedDatetime, m.ContextStrategy, m.PromptTemplate)
		return err
	})
}

// Chats returns all chats ordered by creation.
func (s *Store) Chats(ctx context.Context) ([]ChatMetadata, error) {
	if err := s.readable("failed to list chats"); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, endpoint, created_epoch, created_datetime, context_strategy, prompt_template
		FROM chat_metadata_table ORDER BY created_epoch, id`)
	if err != nil {
		return nil, types.Store("failed to list chats", err)
	}
	defer rows.Close()

	var out []ChatMetadata
	for rows.Next() {
		var m ChatMetadata
		var tmpl sql.NullString
		if err := rows.Scan(&m.ID, &m.EndpointID, &m.CreatedEpoch, &m.CreatedDatetime, &m.ContextStrategy, &tmpl); err != nil {
			return nil, types.Store("failed to scan chat", err)
		}
		m.PromptTemplate = tmpl.String
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, types.Store("failed to list chats", err)
	}
	return out, nil
}

// AppendChatRecord inserts r and assigns r.ChatRecordID.
func (s *Store) AppendChatRecord(ctx context.Context, r *ChatRecord) error {
	if r.PromptTime.IsZero() {
		r.PromptTime = time.Now()
	}
	return s.write(ctx, "failed to append chat record", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO chat_history_table
				(connection_id, context_strategy, prompt_template, attack_module, metric, prompt,
				 prepared_prompt, system_prompt, predicted_result, duration, prompt_time)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ConnectionID, r.ContextStrategy, r.PromptTemplate, r.AttackModule, r.Metric, r.Prompt,
			r.PreparedPrompt, r.SystemPrompt, r.PredictedResult, r.Duration.Seconds(),
			r.PromptTime.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return err
		}
		r.ChatRecordID, err = res.LastInsertId()
		return err
	})
}

// ChatHistory returns the records of a chat, oldest first.
func (s *Store) ChatHistory(ctx context.Context, connectionID string) ([]ChatRecord, error) {
	return s.queryChat(ctx, `
		SELECT `+chatColumns+` FROM chat_history_table
		WHERE connection_id = ? ORDER BY id`, connectionID)
}

// RecentChatRecords returns up to n records of a chat, newest first. n <= 0
// returns none.
func (s *Store) RecentChatRecords(ctx context.Context, connectionID string, n int) ([]ChatRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	return s.queryChat(ctx, `
		SELECT `+chatColumns+` FROM chat_history_table
		WHERE connection_id = ? ORDER BY id DESC LIMIT ?`, connectionID, n)
}

const chatColumns = `id, connection_id, context_strategy, prompt_template, attack_module, metric, prompt,
	prepared_prompt, system_prompt, predicted_result, duration, prompt_time`

func (s *Store) queryChat(ctx context.Context, query string, args ...any) ([]ChatRecord, error) {
	if err := s.readable("failed to read chat history"); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.Store("failed to read chat history", err)
	}
	defer rows.Close()

	var out []ChatRecord
	for rows.Next() {
		var (
			r                                 ChatRecord
			cs, tmpl, attack, metric          sql.NullString
			prepared, system, predicted, when sql.NullString
			seconds                           float64
		)
		if err := rows.Scan(&r.ChatRecordID, &r.ConnectionID, &cs, &tmpl, &attack, &metric, &r.Prompt,
			&prepared, &system, &predicted, &seconds, &when); err != nil {
			return nil, types.Store("failed to scan chat record", err)
		}
		r.ContextStrategy = cs.String
		r.PromptTemplate = tmpl.String
		r.AttackModule = attack.String
		r.Metric = metric.String
		r.PreparedPrompt = prepared.String
		r.SystemPrompt = system.String
		r.PredictedResult = predicted.String
		r.Duration = time.Duration(seconds * float64(time.Second))
		if t, err := time.Parse(time.RFC3339Nano, when.String); err == nil {
			r.PromptTime = t
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, types.Store("failed to read chat history", err)
	}
	return out, nil
}

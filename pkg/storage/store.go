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
// Package storage is the per-runner and per-session embedded SQLite store:
// run metadata, the response cache, chat metadata and chat history.
//
// A Store exclusively owns its database file. All writes go through a single
// writer lock; reads run without it.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/teradata-labs/crucible/internal/sqlitedriver"
	"github.com/teradata-labs/crucible/pkg/types"
)

// Config configures a Store.
type Config struct {
	// Path to the SQLite database file. Parent directories are created.
	Path string

	// EncryptionKey enables SQLCipher encryption at rest. Requires a cgo
	// build; see internal/sqlitedriver.
	EncryptionKey string

	Logger *zap.Logger
}

// Store is one embedded database file.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger

	writeMu sync.Mutex
	closed  atomic.Bool
}

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Open opens or creates the database at cfg.Path and creates any missing
// tables.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, types.Validation("store path is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.EncryptionKey != "" && !sqlitedriver.EncryptionSupported {
		return nil, types.Validation("database encryption requires a cgo build with SQLCipher")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0750); err != nil {
		return nil, types.Store("failed to create database directory", err)
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := &Store{
		db:     db,
		path:   cfg.Path,
		logger: cfg.Logger.With(zap.String("db_file", cfg.Path)),
	}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, types.Store("failed to initialize schema", err)
	}
	return s, nil
}

func openDB(ctx context.Context, cfg Config) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, types.Store("failed to open database", err)
	}
	// Connection-scoped pragmas (key, busy_timeout) must hold for every
	// statement, so the pool is pinned to one connection.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if cfg.EncryptionKey != "" {
		// Must be the first statement on the connection.
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA key = '%s'", escapeSQLString(cfg.EncryptionKey))); err != nil {
			db.Close()
			return nil, types.Store("failed to set encryption key", err)
		}
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			if cfg.EncryptionKey != "" {
				return nil, types.Store("failed to verify encryption key (wrong key or corrupted database)", err)
			}
			return nil, types.Store(fmt.Sprintf("failed to apply %q", pragma), err)
		}
	}
	return db, nil
}

func escapeSQLString(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'')
		}
		out = append(out, s[i])
	}
	return string(out)
}

const schema = `
CREATE TABLE IF NOT EXISTS run_metadata_table (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	runner_id TEXT NOT NULL,
	type TEXT NOT NULL,
	arguments TEXT,
	start_time INTEGER NOT NULL,
	end_time INTEGER NOT NULL DEFAULT 0,
	duration INTEGER NOT NULL DEFAULT 0,
	db_file TEXT,
	filepath TEXT,
	recipes TEXT,
	cookbooks TEXT,
	endpoints TEXT,
	num_of_prompts INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	raw_results TEXT,
	results TEXT
);

CREATE TABLE IF NOT EXISTS cache_table (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	endpoint TEXT NOT NULL,
	recipe TEXT NOT NULL,
	prompt_template TEXT NOT NULL,
	connection_prompt TEXT,
	prompt TEXT NOT NULL,
	target TEXT,
	predicted_result TEXT,
	duration REAL NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_cache_key
	ON cache_table(recipe, endpoint, prompt_template, prompt);

CREATE TABLE IF NOT EXISTS chat_metadata_table (
	id TEXT PRIMARY KEY,
	endpoint TEXT NOT NULL,
	created_epoch INTEGER NOT NULL,
	created_datetime TEXT NOT NULL,
	context_strategy INTEGER NOT NULL DEFAULT 0,
	prompt_template TEXT
);

CREATE TABLE IF NOT EXISTS chat_history_table (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	connection_id TEXT NOT NULL,
	context_strategy TEXT,
	prompt_template TEXT,
	attack_module TEXT,
	metric TEXT,
	prompt TEXT NOT NULL,
	prepared_prompt TEXT,
	system_prompt TEXT,
	predicted_result TEXT,
	duration REAL NOT NULL DEFAULT 0,
	prompt_time TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_history_connection
	ON chat_history_table(connection_id, id);

CREATE TABLE IF NOT EXISTS session_metadata_table (
	session_id TEXT PRIMARY KEY,
	description TEXT,
	endpoints TEXT NOT NULL,
	created_epoch INTEGER NOT NULL,
	created_datetime TEXT NOT NULL,
	prompt_template TEXT,
	context_strategy TEXT,
	cs_num_of_prev_prompts INTEGER NOT NULL DEFAULT 5,
	attack_module TEXT,
	metric TEXT,
	system_prompt TEXT
);
`

func (s *Store) initSchema(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close checkpoints the WAL and closes the database. Safe to call twice.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Warn("WAL checkpoint failed", zap.Error(err))
	}
	if err := s.db.Close(); err != nil {
		return types.Store("failed to close database", err)
	}
	return nil
}

// write runs fn under the writer lock inside a transaction.
func (s *Store) write(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	if s.closed.Load() {
		return types.Store(op, ErrClosed)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Store(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		var te *types.Error
		if errors.As(err, &te) {
			return err
		}
		return types.Store(op, err)
	}
	if err := tx.Commit(); err != nil {
		return types.Store(op, err)
	}
	return nil
}

func (s *Store) readable(op string) error {
	if s.closed.Load() {
		return types.Store(op, ErrClosed)
	}
	return nil
}

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

// Package session implements interactive red-team sessions. A session owns
// one database file and one chat per endpoint. Every prompt goes through the
// session's context strategy and prompt template before it is sent, and
// each exchange is appended to the chat history of its endpoint.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/crucible/pkg/attack"
	"github.com/teradata-labs/crucible/pkg/catalog"
	"github.com/teradata-labs/crucible/pkg/connector"
	"github.com/teradata-labs/crucible/pkg/connector/factory"
	"github.com/teradata-labs/crucible/pkg/contextstrategy"
	"github.com/teradata-labs/crucible/pkg/metrics"
	"github.com/teradata-labs/crucible/pkg/prompts"
	"github.com/teradata-labs/crucible/pkg/storage"
	"github.com/teradata-labs/crucible/pkg/types"
)

// DefaultChatBatchSize bounds concurrent endpoint prompts when the config
// leaves it unset.
const DefaultChatBatchSize = 5

// State is the lifecycle state of a session.
type State string

const (
	StateIdle       State = "idle"
	StateConfigured State = "configured"
	StatePrompting  State = "prompting"
	StateResponding State = "responding"
)

// Config holds the shared services sessions are built from.
type Config struct {
	Catalog    *catalog.Catalog
	Connectors *factory.Factory
	Strategies *contextstrategy.Engine
	Metrics    *metrics.Engine
	Attacks    *attack.Registry
	// ChatBatchSize bounds concurrent endpoint prompts per step.
	// Default: DefaultChatBatchSize.
	ChatBatchSize int
	// EncryptionKey opens session databases with SQLCipher when set.
	EncryptionKey string
	Logger        *zap.Logger
}

func (c *Config) validate() error {
	if c.Catalog == nil {
		return types.Validation("session config: catalog is required")
	}
	if c.Connectors == nil {
		return types.Validation("session config: connector factory is required")
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Strategies == nil {
		c.Strategies = contextstrategy.NewEngine()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NewEngine(metrics.Config{Logger: c.Logger})
	}
	if c.Attacks == nil {
		c.Attacks = attack.NewRegistry()
	}
	if c.ChatBatchSize <= 0 {
		c.ChatBatchSize = DefaultChatBatchSize
	}
	return nil
}

// Options describe a new session. Empty settings are left unset.
type Options struct {
	Name        string
	Description string
	Endpoints   []string

	PromptTemplate  string
	ContextStrategy string
	// NumOfPrevPrompts is the context-strategy window.
	// Default: storage.DefaultNumOfPrevPrompts.
	NumOfPrevPrompts int
	AttackModule     string
	Metric           string
	SystemPrompt     string
}

// Session is a long-lived red-team conversation with a set of endpoints.
type Session struct {
	cfg       Config
	store     *storage.Store
	templates *prompts.Engine
	logger    *zap.Logger

	// busy admits one prompt or attack at a time.
	busy sync.Mutex
	// saveMu serialises metadata updates.
	saveMu sync.Mutex

	mu         sync.Mutex
	meta       storage.SessionMetadata
	state      State
	connectors map[string]*connector.Connector
	attack     *attackRun
	closed     bool
}

// sessionsDir keeps session databases apart from runner databases, which
// live directly under DATABASES.
const sessionsDir = "sessions"

// Path returns the database file of session id.
func Path(cfg Config, id string) string {
	return filepath.Join(cfg.Catalog.Paths().Databases, sessionsDir, id+".db")
}

// New creates a session and its database. The session id is the slug of
// opts.Name; an existing database with that id is a validation error.
func New(ctx context.Context, cfg Config, opts Options) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	id := types.Slugify(opts.Name)
	if id == "" {
		return nil, types.Validation("session name %q does not produce a valid id", opts.Name)
	}
	if len(opts.Endpoints) == 0 {
		return nil, types.Validation("session %q: at least one endpoint is required", id)
	}
	seen := make(map[string]bool, len(opts.Endpoints))
	for _, ep := range opts.Endpoints {
		if seen[ep] {
			return nil, types.Validation("session %q: endpoint %q listed twice", id, ep)
		}
		seen[ep] = true
		if _, err := cfg.Catalog.Endpoint(ep); err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
	}

	path := Path(cfg, id)
	if _, err := os.Stat(path); err == nil {
		return nil, types.Validation("session %q already exists", id)
	}

	now := time.Now()
	meta := storage.SessionMetadata{
		SessionID:          id,
		Description:        opts.Description,
		Endpoints:          slices.Clone(opts.Endpoints),
		CreatedEpoch:       now.Unix(),
		CreatedDatetime:    now.Format("20060102-150405"),
		CSNumOfPrevPrompts: opts.NumOfPrevPrompts,
		SystemPrompt:       opts.SystemPrompt,
	}
	if meta.CSNumOfPrevPrompts <= 0 {
		meta.CSNumOfPrevPrompts = storage.DefaultNumOfPrevPrompts
	}

	s, err := open(ctx, cfg, path, meta)
	if err != nil {
		return nil, err
	}
	if err := s.applyOptions(ctx, opts); err != nil {
		s.discard(path)
		return nil, err
	}
	if err := s.store.SaveSessionMetadata(ctx, &s.meta); err != nil {
		s.discard(path)
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	for _, ep := range meta.Endpoints {
		err := s.store.CreateChat(ctx, storage.ChatMetadata{
			ID:              ep,
			EndpointID:      ep,
			CreatedEpoch:    meta.CreatedEpoch,
			CreatedDatetime: meta.CreatedDatetime,
			ContextStrategy: meta.CSNumOfPrevPrompts,
			PromptTemplate:  s.meta.PromptTemplate,
		})
		if err != nil {
			s.discard(path)
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
	}
	s.logger.Info("Session created", zap.Strings("endpoints", meta.Endpoints))
	return s, nil
}

// Load opens an existing session by id.
func Load(ctx context.Context, cfg Config, id string) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	path := Path(cfg, id)
	if _, err := os.Stat(path); err != nil {
		return nil, types.NotFound("session", id)
	}
	s, err := open(ctx, cfg, path, storage.SessionMetadata{SessionID: id})
	if err != nil {
		return nil, err
	}
	meta, err := s.store.LoadSessionMetadata(ctx)
	if err != nil {
		_ = s.store.Close()
		return nil, fmt.Errorf("failed to load session %q: %w", id, err)
	}
	s.meta = *meta
	s.state = resting(s.meta)
	return s, nil
}

func open(ctx context.Context, cfg Config, path string, meta storage.SessionMetadata) (*Session, error) {
	logger := cfg.Logger.With(zap.String("session_id", meta.SessionID))
	store, err := storage.Open(ctx, storage.Config{
		Path:          path,
		EncryptionKey: cfg.EncryptionKey,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	return &Session{
		cfg:        cfg,
		store:      store,
		templates:  prompts.NewEngine(cfg.Catalog),
		logger:     logger,
		meta:       meta,
		state:      resting(meta),
		connectors: make(map[string]*connector.Connector),
	}, nil
}

func (s *Session) applyOptions(ctx context.Context, opts Options) error {
	checks := []struct {
		value string
		check func(string) error
	}{
		{opts.PromptTemplate, s.checkPromptTemplate},
		{opts.ContextStrategy, s.checkContextStrategy},
		{opts.AttackModule, s.checkAttackModule},
		{opts.Metric, s.checkMetric},
	}
	for _, c := range checks {
		if c.value == "" {
			continue
		}
		if err := c.check(c.value); err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
	}
	s.meta.PromptTemplate = opts.PromptTemplate
	s.meta.ContextStrategy = opts.ContextStrategy
	s.meta.AttackModule = opts.AttackModule
	s.meta.Metric = opts.Metric
	s.state = resting(s.meta)
	return nil
}

// discard removes a half-created session.
func (s *Session) discard(path string) {
	if err := s.store.Close(); err != nil {
		s.logger.Warn("Failed to close session database", zap.Error(err))
	}
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Failed to remove session database", zap.String("path", p), zap.Error(err))
		}
	}
}

// resting is the state of a session with no prompt in flight.
func resting(m storage.SessionMetadata) State {
	if m.PromptTemplate != "" || m.ContextStrategy != "" || m.AttackModule != "" ||
		m.Metric != "" || m.SystemPrompt != "" {
		return StateConfigured
	}
	return StateIdle
}

// ID returns the session id.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.SessionID
}

// Metadata returns a copy of the session settings.
func (s *Session) Metadata() storage.SessionMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.meta
	m.Endpoints = slices.Clone(m.Endpoints)
	return m
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) settle() {
	s.mu.Lock()
	s.state = resting(s.meta)
	s.mu.Unlock()
}

// Store returns the session database.
func (s *Session) Store() *storage.Store { return s.store }

// History returns the chat history of endpointID, oldest first.
func (s *Session) History(ctx context.Context, endpointID string) ([]storage.ChatRecord, error) {
	if !slices.Contains(s.Metadata().Endpoints, endpointID) {
		return nil, types.NotFound("session endpoint", endpointID, s.Metadata().Endpoints...)
	}
	return s.store.ChatHistory(ctx, endpointID)
}

func (s *Session) connector(endpointID string) (*connector.Connector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, types.Validation("session %q is closed", s.meta.SessionID)
	}
	if c, ok := s.connectors[endpointID]; ok {
		return c, nil
	}
	e, err := s.cfg.Catalog.Endpoint(endpointID)
	if err != nil {
		return nil, err
	}
	c, err := s.cfg.Connectors.NewConnector(e)
	if err != nil {
		return nil, err
	}
	s.connectors[endpointID] = c
	return c, nil
}

// Close stops an active attack, waits for its in-flight prompts and
// releases connectors and the database. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	a := s.attack
	s.mu.Unlock()

	if a != nil {
		a.cancel()
		<-a.done
	}
	// Wait for a prompt that is still being recorded.
	s.busy.Lock()
	defer s.busy.Unlock()

	var errs []error
	s.mu.Lock()
	for id, c := range s.connectors {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connector %q: %w", id, err))
		}
	}
	s.connectors = nil
	s.mu.Unlock()

	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}
	s.logger.Debug("Session closed")
	return errors.Join(errs...)
}

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

package session

import (
	"context"
	"fmt"

	"github.com/teradata-labs/crucible/pkg/storage"
	"github.com/teradata-labs/crucible/pkg/types"
)

// SetPromptTemplate sets the template prompts are wrapped in. An empty
// name clears it.
func (s *Session) SetPromptTemplate(ctx context.Context, name string) error {
	return s.set(ctx, name, s.checkPromptTemplate, func(m *storage.SessionMetadata) { m.PromptTemplate = name })
}

// SetContextStrategy sets the strategy prompts are rewritten with. An
// empty name clears it.
func (s *Session) SetContextStrategy(ctx context.Context, name string) error {
	return s.set(ctx, name, s.checkContextStrategy, func(m *storage.SessionMetadata) { m.ContextStrategy = name })
}

// SetAttackModule sets the module Attack runs. An empty name clears it.
func (s *Session) SetAttackModule(ctx context.Context, name string) error {
	return s.set(ctx, name, s.checkAttackModule, func(m *storage.SessionMetadata) { m.AttackModule = name })
}

// SetMetric sets the metric that judges attack steps. An empty name clears
// it.
func (s *Session) SetMetric(ctx context.Context, name string) error {
	return s.set(ctx, name, s.checkMetric, func(m *storage.SessionMetadata) { m.Metric = name })
}

// SetSystemPrompt sets the system prompt sent with every prompt. An empty
// string clears it.
func (s *Session) SetSystemPrompt(ctx context.Context, prompt string) error {
	return s.set(ctx, "", nil, func(m *storage.SessionMetadata) { m.SystemPrompt = prompt })
}

// SetNumOfPrevPrompts sets how many previous records the context strategy
// sees.
func (s *Session) SetNumOfPrevPrompts(ctx context.Context, n int) error {
	if n < 0 {
		return types.Validation("cs_num_of_prev_prompts must be >= 0, got %d", n)
	}
	return s.set(ctx, "", nil, func(m *storage.SessionMetadata) { m.CSNumOfPrevPrompts = n })
}

// set validates name with check, then persists the updated metadata before
// it becomes visible. A failed save leaves the session unchanged.
func (s *Session) set(ctx context.Context, name string, check func(string) error, apply func(*storage.SessionMetadata)) error {
	if name != "" && check != nil {
		if err := check(name); err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	next := s.Metadata()
	apply(&next)
	if err := s.store.SaveSessionMetadata(ctx, &next); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	s.mu.Lock()
	s.meta = next
	if s.state == StateIdle || s.state == StateConfigured {
		s.state = resting(next)
	}
	s.mu.Unlock()
	return nil
}

func (s *Session) checkPromptTemplate(name string) error {
	_, err := s.cfg.Catalog.PromptTemplate(name)
	return err
}

func (s *Session) checkContextStrategy(name string) error {
	_, err := s.cfg.Strategies.Get(name)
	return err
}

func (s *Session) checkAttackModule(name string) error {
	_, err := s.cfg.Attacks.New(name, s.attackParams(name))
	return err
}

func (s *Session) checkMetric(name string) error {
	_, err := s.cfg.Metrics.Get(name)
	return err
}

// attackParams returns the catalog params of an attack module, if it has
// a catalog entry.
func (s *Session) attackParams(name string) map[string]any {
	info, err := s.cfg.Catalog.AttackModuleInfo(name)
	if err != nil {
		return nil
	}
	return info.Params
}

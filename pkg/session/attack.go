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

	"go.uber.org/zap"

	"github.com/teradata-labs/crucible/pkg/attack"
	"github.com/teradata-labs/crucible/pkg/types"
)

type attackRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Attack runs the session's attack module from seed. It returns once the
// module has sent all of its prompts, the session metric reports success,
// or the attack is cancelled through ctx or Cancel. Prompts in flight at
// cancellation complete and are recorded.
func (s *Session) Attack(ctx context.Context, seed string) (attack.Outcome, error) {
	meta := s.Metadata()
	if meta.AttackModule == "" {
		return attack.Outcome{}, types.Validation("session %q has no attack module", meta.SessionID)
	}
	params := s.attackParams(meta.AttackModule)
	module, err := s.cfg.Attacks.New(meta.AttackModule, params)
	if err != nil {
		return attack.Outcome{}, fmt.Errorf("failed to start attack: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	run := &attackRun{cancel: cancel, done: make(chan struct{})}
	if err := s.acquire(run); err != nil {
		cancel()
		return attack.Outcome{}, err
	}
	defer s.busy.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		s.attack = nil
		s.mu.Unlock()
		close(run.done)
	}()

	logger := s.logger.With(zap.String("attack_module", module.ID()))
	env := &attack.Env{
		Sender:    sender{s: s, meta: meta, module: module.ID()},
		Endpoints: meta.Endpoints,
		Store:     s.store,
		Settings: attack.Settings{
			PromptTemplate:   meta.PromptTemplate,
			ContextStrategy:  meta.ContextStrategy,
			SystemPrompt:     meta.SystemPrompt,
			NumOfPrevPrompts: meta.CSNumOfPrevPrompts,
		},
		Prompt: seed,
		Params: params,
		Logger: logger,
	}
	if meta.Metric != "" {
		env.Judge = attack.MetricJudge(s.cfg.Metrics, meta.Metric, attack.JudgeOptionsFromParams(params))
	}

	logger.Info("Attack started", zap.Int("chat_batch_size", s.cfg.ChatBatchSize))
	err = module.Run(ctx, env)
	out := env.Outcome()
	if err != nil && ctx.Err() != nil && !types.IsCancelled(err) {
		err = types.Cancelled("attack cancelled")
	}
	switch {
	case types.IsCancelled(err):
		logger.Info("Attack cancelled", zap.Int("steps", out.Steps))
	case err != nil:
		logger.Error("Attack failed", zap.Int("steps", out.Steps), zap.Error(err))
	default:
		logger.Info("Attack finished",
			zap.Int("steps", out.Steps),
			zap.Bool("succeeded", out.Succeeded))
	}
	return out, err
}

// Cancel stops the active attack, if any. It does not wait; use Wait.
func (s *Session) Cancel() {
	s.mu.Lock()
	a := s.attack
	s.mu.Unlock()
	if a != nil {
		a.cancel()
	}
}

// Wait blocks until the active attack, if any, has returned.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	a := s.attack
	s.mu.Unlock()
	if a == nil {
		return nil
	}
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

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
	"golang.org/x/sync/errgroup"

	"github.com/teradata-labs/crucible/pkg/attack"
	"github.com/teradata-labs/crucible/pkg/storage"
	"github.com/teradata-labs/crucible/pkg/types"
)

// ChatResult is the outcome of one prompt on one endpoint chat.
type ChatResult struct {
	EndpointID string
	// Record is the appended exchange; nil when Err is set.
	Record *storage.ChatRecord
	// History is the chat history after the exchange, oldest first.
	History []storage.ChatRecord
	// Err is a per-endpoint failure. Cancelled when the prompt was never
	// dispatched.
	Err error
}

// Prompt sends prompt to every endpoint chat and returns each chat's fresh
// history. Endpoint failures are reported per chat; the returned error is
// reserved for store failures, cancellation and a busy or closed session.
func (s *Session) Prompt(ctx context.Context, prompt string) ([]ChatResult, error) {
	if err := s.acquire(nil); err != nil {
		return nil, err
	}
	defer s.busy.Unlock()

	meta := s.Metadata()
	records, err := s.send(ctx, meta, prompt, "")
	results := make([]ChatResult, len(meta.Endpoints))
	for i, ep := range meta.Endpoints {
		results[i] = ChatResult{EndpointID: ep, Record: records[i].record, Err: records[i].err}
		if err != nil {
			continue
		}
		hist, herr := s.store.ChatHistory(context.WithoutCancel(ctx), ep)
		if herr != nil {
			return results, fmt.Errorf("failed to read chat history: %w", herr)
		}
		results[i].History = hist
	}
	return results, err
}

// acquire takes the busy lock for a prompt, or for an attack when run is
// set.
func (s *Session) acquire(run *attackRun) error {
	if !s.busy.TryLock() {
		return types.Validation("session %q is busy", s.ID())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.busy.Unlock()
		return types.Validation("session %q is closed", s.meta.SessionID)
	}
	if run != nil {
		s.attack = run
	}
	return nil
}

type exchange struct {
	record   *storage.ChatRecord
	prepared string
	err      error
}

// send runs one prompt through every chat, at most ChatBatchSize at a time.
// Requests already sent when ctx is cancelled complete and are recorded;
// the rest are marked cancelled.
func (s *Session) send(ctx context.Context, meta storage.SessionMetadata, prompt, module string) ([]exchange, error) {
	s.setState(StatePrompting)
	defer s.settle()

	out := make([]exchange, len(meta.Endpoints))
	var g errgroup.Group
	g.SetLimit(s.cfg.ChatBatchSize)
	for i, ep := range meta.Endpoints {
		g.Go(func() error {
			return s.exchange(ctx, meta, ep, prompt, module, &out[i])
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	if ctx.Err() != nil {
		return out, types.Cancelled("session prompt cancelled")
	}
	return out, nil
}

// exchange is the single-prompt pipeline of one chat. Only store failures
// are returned; everything else is recorded in x.err.
func (s *Session) exchange(ctx context.Context, meta storage.SessionMetadata, endpointID, raw, module string, x *exchange) error {
	if ctx.Err() != nil {
		x.err = types.Cancelled("prompt cancelled before dispatch")
		return nil
	}
	logger := s.logger.With(zap.String("endpoint", endpointID))
	storeCtx := context.WithoutCancel(ctx)

	n := meta.CSNumOfPrevPrompts
	prev, err := s.store.RecentChatRecords(storeCtx, endpointID, n)
	if err != nil {
		return err
	}
	prepared := raw
	if meta.ContextStrategy != "" {
		prepared, err = s.cfg.Strategies.Apply(meta.ContextStrategy, prepared, prev, n)
		if err != nil {
			x.err = err
			return nil
		}
	}
	prepared, err = s.templates.Apply(meta.PromptTemplate, prepared)
	if err != nil {
		x.err = err
		return nil
	}
	x.prepared = prepared

	conn, err := s.connector(endpointID)
	if err != nil {
		x.err = err
		return nil
	}
	if ctx.Err() != nil {
		x.err = types.Cancelled("prompt cancelled before dispatch")
		return nil
	}
	resp, err := conn.GetResponse(storeCtx, prepared, meta.SystemPrompt)
	if err != nil {
		logger.Warn("Endpoint failed", zap.Error(err))
		x.err = err
		return nil
	}
	s.setState(StateResponding)

	rec := &storage.ChatRecord{
		ConnectionID:    endpointID,
		ContextStrategy: meta.ContextStrategy,
		PromptTemplate:  meta.PromptTemplate,
		AttackModule:    module,
		Metric:          meta.Metric,
		Prompt:          raw,
		PreparedPrompt:  prepared,
		SystemPrompt:    meta.SystemPrompt,
		PredictedResult: resp.Text,
		Duration:        resp.Duration,
	}
	if err := s.store.AppendChatRecord(storeCtx, rec); err != nil {
		return err
	}
	x.record = rec
	logger.Debug("Chat record appended", zap.Int64("chat_record_id", rec.ChatRecordID))
	return nil
}

// sender adapts the session pipeline to attack modules.
type sender struct {
	s      *Session
	meta   storage.SessionMetadata
	module string
}

func (a sender) Send(ctx context.Context, prompt string) ([]attack.Reply, error) {
	exchanges, err := a.s.send(ctx, a.meta, prompt, a.module)
	replies := make([]attack.Reply, len(exchanges))
	for i, x := range exchanges {
		replies[i] = attack.Reply{
			EndpointID:     a.meta.Endpoints[i],
			Prompt:         prompt,
			PreparedPrompt: x.prepared,
			Err:            x.err,
		}
		if x.record != nil {
			replies[i].Response = x.record.PredictedResult
		}
	}
	return replies, err
}

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

// Package attack holds the automated red-teaming plug-ins. A module derives
// a sequence of prompts from a seed prompt and sends each one through the
// owning session, which applies the session's template and context strategy
// and records every exchange.
package attack

import (
	"context"
	"sort"
	"sync"

	"github.com/sahilm/fuzzy"
	"go.uber.org/zap"

	"github.com/teradata-labs/crucible/pkg/storage"
	"github.com/teradata-labs/crucible/pkg/types"
)

// Reply is one endpoint's answer to an attack prompt. Err is set when the
// endpoint failed; the exchange is then not recorded.
type Reply struct {
	EndpointID     string
	Prompt         string
	PreparedPrompt string
	Response       string
	Err            error
}

// Sender sends a prompt to every endpoint of a session and records the
// exchanges. A non-nil error means the step could not complete at all.
type Sender interface {
	Send(ctx context.Context, prompt string) ([]Reply, error)
}

// Judge reports whether the replies of one step show a successful attack.
type Judge func(ctx context.Context, replies []Reply) (bool, error)

// Settings mirrors the session settings an attack runs under.
type Settings struct {
	PromptTemplate   string
	ContextStrategy  string
	SystemPrompt     string
	NumOfPrevPrompts int
}

// Env is what a module sees while it runs.
type Env struct {
	Sender    Sender
	Endpoints []string
	Store     *storage.Store
	Settings  Settings
	// Prompt is the seed the module perturbs.
	Prompt string
	Params map[string]any
	// Judge enables early stop. Nil runs every step.
	Judge  Judge
	Logger *zap.Logger

	steps     int
	succeeded bool
}

// Outcome summarises a finished attack.
type Outcome struct {
	Steps     int  `json:"steps"`
	Succeeded bool `json:"succeeded"`
}

// Step sends prompt and judges the replies. It reports done once the judge
// signals success; modules stop issuing prompts at that point.
func (e *Env) Step(ctx context.Context, prompt string) (bool, error) {
	if ctx.Err() != nil {
		return false, types.Cancelled("attack cancelled")
	}
	logger := e.logger()
	replies, err := e.Sender.Send(ctx, prompt)
	e.steps++
	if err != nil {
		return false, err
	}
	for _, r := range replies {
		if r.Err != nil {
			logger.Warn("Attack prompt failed",
				zap.String("endpoint", r.EndpointID),
				zap.Int("step", e.steps),
				zap.Error(r.Err))
		}
	}
	if e.Judge == nil {
		return false, nil
	}
	ok, err := e.Judge(ctx, replies)
	if err != nil {
		logger.Warn("Attack judge failed", zap.Int("step", e.steps), zap.Error(err))
		return false, nil
	}
	if ok {
		e.succeeded = true
		logger.Info("Attack succeeded", zap.Int("step", e.steps))
	}
	return ok, nil
}

// Outcome returns the steps taken so far and whether the judge fired.
func (e *Env) Outcome() Outcome {
	return Outcome{Steps: e.steps, Succeeded: e.succeeded}
}

func (e *Env) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// Module is an attack-module plug-in.
type Module interface {
	ID() string
	Description() string
	// Run issues the module's prompts through env until they are exhausted,
	// the judge fires or ctx is cancelled.
	Run(ctx context.Context, env *Env) error
}

// Factory builds a module from its catalog params.
type Factory func(params map[string]any) (Module, error)

// Registry resolves attack modules by id.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a registry with the built-in modules registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(PayloadReplayID, newPayloadReplay)
	r.Register(CharSwapID, newCharSwap)
	r.Register(SuffixInjectionID, newSuffixInjection)
	return r
}

// Register adds or replaces a module factory.
func (r *Registry) Register(id string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = f
}

// New builds the module registered under id.
func (r *Registry) New(id string, params map[string]any) (Module, error) {
	r.mu.RLock()
	f, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, types.NotFound("attack module", id, r.suggest(id)...)
	}
	return f(params)
}

// Has reports whether id is registered. It matches the catalog's
// AttackModuleExists hook.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[id]
	return ok
}

// IDs returns the registered module ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) suggest(id string) []string {
	var out []string
	for i, m := range fuzzy.Find(id, r.IDs()) {
		if i == 3 {
			break
		}
		out = append(out, m.Str)
	}
	return out
}

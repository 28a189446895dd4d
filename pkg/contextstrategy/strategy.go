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
// Package contextstrategy rewrites a prompt using the previous records of a
// chat. Strategies are pure: they receive records newest first and must not
// modify them.
package contextstrategy

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"

	"github.com/teradata-labs/crucible/pkg/storage"
	"github.com/teradata-labs/crucible/pkg/types"
)

// DefaultNumOfPrevPrompts is used when a strategy does not state a window.
const DefaultNumOfPrevPrompts = 5

// Strategy is a context-strategy plug-in.
type Strategy interface {
	// AddInContext returns prompt rewritten with prev (newest first).
	AddInContext(prompt string, prev []storage.ChatRecord) string

	// NumberOfPrevPrompts is the window the strategy asks for.
	NumberOfPrevPrompts() int
}

// Engine resolves strategies by id.
type Engine struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewEngine creates an engine with the built-in strategies registered.
func NewEngine() *Engine {
	e := &Engine{strategies: make(map[string]Strategy)}
	e.Register("add_previous_prompt", AddPreviousPrompt{N: DefaultNumOfPrevPrompts})
	e.Register("add_previous_conversation", AddPreviousConversation{N: DefaultNumOfPrevPrompts})
	return e
}

// Register adds or replaces a strategy.
func (e *Engine) Register(id string, s Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies[id] = s
}

// Get returns the strategy registered under id.
func (e *Engine) Get(id string) (Strategy, error) {
	e.mu.RLock()
	s, ok := e.strategies[id]
	e.mu.RUnlock()
	if !ok {
		return nil, types.NotFound("context strategy", id, e.suggest(id)...)
	}
	return s, nil
}

// Has reports whether id is registered.
func (e *Engine) Has(id string) bool {
	_, err := e.Get(id)
	return err == nil
}

// IDs returns the registered strategy ids, sorted.
func (e *Engine) IDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.strategies))
	for id := range e.strategies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Apply rewrites raw with strategy id using at most min(n, len(prev))
// records. An empty id returns raw unchanged. n <= 0 uses the strategy's own
// window.
func (e *Engine) Apply(id, raw string, prev []storage.ChatRecord, n int) (string, error) {
	if id == "" {
		return raw, nil
	}
	s, err := e.Get(id)
	if err != nil {
		return "", fmt.Errorf("failed to apply context strategy: %w", err)
	}
	if n <= 0 {
		n = s.NumberOfPrevPrompts()
	}
	if n > len(prev) {
		n = len(prev)
	}
	window := make([]storage.ChatRecord, n)
	copy(window, prev[:n])
	return s.AddInContext(raw, window), nil
}

func (e *Engine) suggest(id string) []string {
	var out []string
	for i, m := range fuzzy.Find(id, e.IDs()) {
		if i == 3 {
			break
		}
		out = append(out, m.Str)
	}
	return out
}

// AddPreviousPrompt prepends the prepared prompts of previous records,
// newest first, to the prompt.
type AddPreviousPrompt struct {
	N int
}

func (s AddPreviousPrompt) AddInContext(prompt string, prev []storage.ChatRecord) string {
	var sb strings.Builder
	for _, r := range prev {
		sb.WriteString(r.PreparedPrompt)
	}
	sb.WriteString(prompt)
	return sb.String()
}

func (s AddPreviousPrompt) NumberOfPrevPrompts() int { return windowOrDefault(s.N) }

// AddPreviousConversation prepends previous exchanges, oldest first, as a
// transcript.
type AddPreviousConversation struct {
	N int
}

func (s AddPreviousConversation) AddInContext(prompt string, prev []storage.ChatRecord) string {
	if len(prev) == 0 {
		return prompt
	}
	var sb strings.Builder
	sb.WriteString("Previous conversation:\n")
	for i := len(prev) - 1; i >= 0; i-- {
		fmt.Fprintf(&sb, "User: %s\nAssistant: %s\n", prev[i].Prompt, prev[i].PredictedResult)
	}
	sb.WriteString("\nUser: ")
	sb.WriteString(prompt)
	return sb.String()
}

func (s AddPreviousConversation) NumberOfPrevPrompts() int { return windowOrDefault(s.N) }

func windowOrDefault(n int) int {
	if n <= 0 {
		return DefaultNumOfPrevPrompts
	}
	return n
}

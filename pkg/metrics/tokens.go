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
package metrics

import (
	"context"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCount reports prediction lengths in cl100k_base tokens. When the
// encoding cannot be loaded it falls back to len/4.
type TokenCount struct {
	once    sync.Once
	mu      sync.Mutex
	encoder *tiktoken.Tiktoken
}

// NewTokenCount creates a token counter that loads its encoding lazily.
func NewTokenCount() *TokenCount {
	return &TokenCount{}
}

func (*TokenCount) ID() string          { return "token_count" }
func (*TokenCount) Deterministic() bool { return true }

func (t *TokenCount) GetResults(ctx context.Context, in Input) (map[string]any, error) {
	total, maxTokens := 0, 0
	for _, p := range in.Predicted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := t.Count(p)
		total += n
		if n > maxTokens {
			maxTokens = n
		}
	}
	mean := 0.0
	if len(in.Predicted) > 0 {
		mean = float64(total) / float64(len(in.Predicted))
	}
	return map[string]any{
		"total_tokens": total,
		"mean_tokens":  mean,
		"max_tokens":   maxTokens,
	}, nil
}

// Count returns the token count of text.
func (t *TokenCount) Count(text string) int {
	t.once.Do(func() {
		if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
			t.encoder = enc
		}
	})
	if t.encoder == nil {
		return len(text) / 4
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.encoder.Encode(text, nil, nil))
}

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
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/teradata-labs/crucible/pkg/catalog"
	"github.com/teradata-labs/crucible/pkg/connector"
)

const (
	DefaultModel     = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens = 1024
)

// Config holds configuration for the Anthropic client.
type Config struct {
	APIKey      string
	BaseURL     string // optional; the SDK default is used when empty
	Model       string // Default: claude-sonnet-4-5-20250929
	MaxTokens   int    // Default: 1024
	Temperature *float64
}

// Client implements connector.Provider with the Anthropic SDK.
type Client struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	temp      *float64
}

// NewClient creates a new Anthropic client. SDK retries are disabled; the
// connector owns the retry policy.
func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxTokens),
		temp:      cfg.Temperature,
	}
}

// FromEndpoint builds a client from endpoint uri, token and params.
func FromEndpoint(e *catalog.Endpoint) (connector.Provider, error) {
	cfg := Config{
		APIKey:    e.Token,
		BaseURL:   e.URI,
		Model:     connector.ParamString(e.Params, connector.ParamModel, ""),
		MaxTokens: connector.ParamInt(e.Params, connector.ParamMaxTokens, 0),
	}
	if _, ok := e.Params[connector.ParamTemperature]; ok {
		t := connector.ParamFloat(e.Params, connector.ParamTemperature, 0)
		cfg.Temperature = &t
	}
	return NewClient(cfg), nil
}

// Complete sends one Messages API request.
func (c *Client) Complete(ctx context.Context, req connector.Request) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if c.temp != nil {
		params.Temperature = anthropic.Float(*c.temp)
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", connector.StatusError(apiErr.StatusCode, apiErr.Error())
		}
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

var _ connector.Provider = (*Client)(nil)

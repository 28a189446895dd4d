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

// Package openai is a connector provider for OpenAI-compatible chat
// completion APIs (OpenAI, Azure OpenAI deployments, vLLM, LM Studio, ...).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/teradata-labs/crucible/pkg/catalog"
	"github.com/teradata-labs/crucible/pkg/connector"
)

// Default configuration values.
const (
	DefaultModel    = "gpt-4.1"
	DefaultEndpoint = "https://api.openai.com/v1/chat/completions"
)

// Config holds configuration for the OpenAI client.
type Config struct {
	APIKey      string
	Model       string   // Default: gpt-4.1
	Endpoint    string   // Default: https://api.openai.com/v1/chat/completions
	MaxTokens   int      // 0 leaves the server default
	Temperature *float64 // nil leaves the server default
	Seed        *int64
	HTTPClient  *http.Client
}

// Client implements connector.Provider for chat completions.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new OpenAI client.
func NewClient(config Config) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	} else if !strings.HasSuffix(config.Endpoint, "/chat/completions") {
		config.Endpoint = strings.TrimRight(config.Endpoint, "/") + "/chat/completions"
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		// per-attempt timeouts come from the connector context
		httpClient = &http.Client{}
	}
	return &Client{config: config, httpClient: httpClient}
}

// FromEndpoint builds a client from endpoint uri, token and params
// (model, max_tokens, temperature, seed).
func FromEndpoint(e *catalog.Endpoint) (connector.Provider, error) {
	cfg := Config{
		APIKey:    e.Token,
		Endpoint:  e.URI,
		Model:     connector.ParamString(e.Params, connector.ParamModel, ""),
		MaxTokens: connector.ParamInt(e.Params, connector.ParamMaxTokens, 0),
	}
	if _, ok := e.Params[connector.ParamTemperature]; ok {
		t := connector.ParamFloat(e.Params, connector.ParamTemperature, 0)
		cfg.Temperature = &t
	}
	if _, ok := e.Params["seed"]; ok {
		s := int64(connector.ParamInt(e.Params, "seed", 0))
		cfg.Seed = &s
	}
	return NewClient(cfg), nil
}

// Complete sends one chat completion request.
func (c *Client) Complete(ctx context.Context, req connector.Request) (string, error) {
	messages := make([]ChatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: req.Prompt})

	resp, err := c.callAPI(ctx, &ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
		Seed:        c.config.Seed,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", connector.Transient(fmt.Errorf("OpenAI API returned no choices"))
	}
	return resp.Choices[0].Message.Content, nil
}

// callAPI makes the HTTP request to the chat completions API.
func (c *Client) callAPI(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, connector.Permanent(fmt.Errorf("failed to marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, connector.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, connector.StatusError(httpResp.StatusCode, string(respBody))
	}

	var resp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("OpenAI API error: %s (type: %s)", resp.Error.Message, resp.Error.Type)
	}
	return &resp, nil
}

var _ connector.Provider = (*Client)(nil)

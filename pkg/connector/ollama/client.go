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
package ollama

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

const (
	DefaultEndpoint = "http://localhost:11434"
	DefaultModel    = "llama3.1:8b"
)

// Config holds configuration for the Ollama client.
type Config struct {
	Endpoint    string // Default: http://localhost:11434
	Model       string // Default: llama3.1:8b
	MaxTokens   int    // num_predict; 0 leaves the model default
	Temperature *float64
	HTTPClient  *http.Client
}

// Client implements connector.Provider for Ollama's /api/chat.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new Ollama client.
func NewClient(config Config) *Client {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	config.Endpoint = strings.TrimRight(config.Endpoint, "/")
	if config.Model == "" {
		config.Model = DefaultModel
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{config: config, httpClient: httpClient}
}

// FromEndpoint builds a client from endpoint uri and params.
func FromEndpoint(e *catalog.Endpoint) (connector.Provider, error) {
	cfg := Config{
		Endpoint:  e.URI,
		Model:     connector.ParamString(e.Params, connector.ParamModel, ""),
		MaxTokens: connector.ParamInt(e.Params, connector.ParamMaxTokens, 0),
	}
	if _, ok := e.Params[connector.ParamTemperature]; ok {
		t := connector.ParamFloat(e.Params, connector.ParamTemperature, 0)
		cfg.Temperature = &t
	}
	return NewClient(cfg), nil
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model           string      `json:"model"`
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
	Error           string      `json:"error,omitempty"`
}

// Complete sends one non-streaming chat request.
func (c *Client) Complete(ctx context.Context, req connector.Request) (string, error) {
	chat := chatRequest{Model: c.config.Model, Stream: false}
	if req.SystemPrompt != "" {
		chat.Messages = append(chat.Messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	chat.Messages = append(chat.Messages, chatMessage{Role: "user", Content: req.Prompt})

	options := map[string]any{}
	if c.config.MaxTokens > 0 {
		options["num_predict"] = c.config.MaxTokens
	}
	if c.config.Temperature != nil {
		options["temperature"] = *c.config.Temperature
	}
	if len(options) > 0 {
		chat.Options = options
	}

	body, err := json.Marshal(chat)
	if err != nil {
		return "", connector.Permanent(fmt.Errorf("failed to marshal request: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", connector.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return "", connector.StatusError(httpResp.StatusCode, string(respBody))
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("ollama error: %s", resp.Error)
	}
	return resp.Message.Content, nil
}

// CheckConnection lists local models, which does not load one.
func (c *Client) CheckConnection(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.Endpoint+"/api/tags", nil)
	if err != nil {
		return err
	}
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ollama not reachable at %s: %w", c.config.Endpoint, err)
	}
	defer func() { _ = httpResp.Body.Close() }()
	if httpResp.StatusCode != http.StatusOK {
		return connector.StatusError(httpResp.StatusCode, "")
	}
	return nil
}

var (
	_ connector.Provider          = (*Client)(nil)
	_ connector.ConnectionChecker = (*Client)(nil)
)

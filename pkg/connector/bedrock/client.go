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
// Package bedrock provides a connector.Provider backed by the AWS Bedrock
// Converse API.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/teradata-labs/crucible/pkg/catalog"
	"github.com/teradata-labs/crucible/pkg/connector"
)

const (
	DefaultRegion    = "us-west-2"
	DefaultModelID   = "us.anthropic.claude-sonnet-4-5-20250929-v1:0"
	DefaultMaxTokens = 1024

	ParamRegion  = "region"
	ParamProfile = "profile"
)

// Config holds configuration for the Bedrock client.
//
// Credentials resolve in order: static keys, named profile, default chain.
type Config struct {
	Region          string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// BaseEndpoint overrides the regional endpoint (VPC endpoints, tests).
	BaseEndpoint string

	ModelID     string
	MaxTokens   int
	Temperature *float64
}

type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Client implements connector.Provider for Bedrock models.
type Client struct {
	api       converseAPI
	modelID   string
	maxTokens int32
	temp      *float64
}

// NewClient loads AWS configuration and creates a Bedrock runtime client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	switch {
	case cfg.AccessKeyID != "" && cfg.SecretAccessKey != "":
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			cfg.SessionToken,
		)))
	case cfg.Profile != "":
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	api := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		// the connector owns retries
		o.RetryMaxAttempts = 1
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
	})
	return newWithAPI(api, cfg), nil
}

func newWithAPI(api converseAPI, cfg Config) *Client {
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModelID
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &Client{
		api:       api,
		modelID:   cfg.ModelID,
		maxTokens: int32(cfg.MaxTokens),
		temp:      cfg.Temperature,
	}
}

// FromEndpoint builds a client from an endpoint. The token, when set, holds
// "ACCESS_KEY_ID:SECRET_ACCESS_KEY[:SESSION_TOKEN]".
func FromEndpoint(e *catalog.Endpoint) (connector.Provider, error) {
	cfg := Config{
		Region:       connector.ParamString(e.Params, ParamRegion, ""),
		Profile:      connector.ParamString(e.Params, ParamProfile, ""),
		BaseEndpoint: e.URI,
		ModelID:      connector.ParamString(e.Params, connector.ParamModel, ""),
		MaxTokens:    connector.ParamInt(e.Params, connector.ParamMaxTokens, 0),
	}
	if _, ok := e.Params[connector.ParamTemperature]; ok {
		t := connector.ParamFloat(e.Params, connector.ParamTemperature, 0)
		cfg.Temperature = &t
	}
	if e.Token != "" {
		parts := strings.SplitN(e.Token, ":", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("bedrock endpoint %q: token must be ACCESS_KEY_ID:SECRET_ACCESS_KEY", e.ID)
		}
		cfg.AccessKeyID, cfg.SecretAccessKey = parts[0], parts[1]
		if len(parts) == 3 {
			cfg.SessionToken = parts[2]
		}
	}
	return NewClient(context.Background(), cfg)
}

// Complete sends one Converse request.
func (c *Client) Complete(ctx context.Context, req connector.Request) (string, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(c.modelID),
		Messages: []bedrocktypes.Message{{
			Role: bedrocktypes.ConversationRoleUser,
			Content: []bedrocktypes.ContentBlock{
				&bedrocktypes.ContentBlockMemberText{Value: req.Prompt},
			},
		}},
		InferenceConfig: &bedrocktypes.InferenceConfiguration{
			MaxTokens: aws.Int32(c.maxTokens),
		},
	}
	if c.temp != nil {
		input.InferenceConfig.Temperature = aws.Float32(float32(*c.temp))
	}
	if req.SystemPrompt != "" {
		input.System = []bedrocktypes.SystemContentBlock{
			&bedrocktypes.SystemContentBlockMemberText{Value: req.SystemPrompt},
		}
	}

	out, err := c.api.Converse(ctx, input)
	if err != nil {
		return "", classify(err)
	}

	msg, ok := out.Output.(*bedrocktypes.ConverseOutputMemberMessage)
	if !ok {
		return "", connector.Permanent(fmt.Errorf("unexpected converse output type %T", out.Output))
	}
	var sb strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*bedrocktypes.ContentBlockMemberText); ok {
			sb.WriteString(text.Value)
		}
	}
	return sb.String(), nil
}

// permanentCodes are Bedrock error codes that a retry cannot fix.
var permanentCodes = map[string]bool{
	"ValidationException":         true,
	"AccessDeniedException":       true,
	"ResourceNotFoundException":   true,
	"UnrecognizedClientException": true,
}

func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if permanentCodes[apiErr.ErrorCode()] {
			return connector.Permanent(err)
		}
		return connector.Transient(err)
	}
	return fmt.Errorf("bedrock converse failed: %w", err)
}

var _ connector.Provider = (*Client)(nil)

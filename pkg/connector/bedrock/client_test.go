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
package bedrock

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/crucible/pkg/catalog"
	"github.com/teradata-labs/crucible/pkg/connector"
)

type fakeConverse struct {
	input *bedrockruntime.ConverseInput
	out   *bedrockruntime.ConverseOutput
	err   error
}

func (f *fakeConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = in
	return f.out, f.err
}

func TestClient_Complete(t *testing.T) {
	api := &fakeConverse{out: &bedrockruntime.ConverseOutput{
		Output: &bedrocktypes.ConverseOutputMemberMessage{Value: bedrocktypes.Message{
			Role: bedrocktypes.ConversationRoleAssistant,
			Content: []bedrocktypes.ContentBlock{
				&bedrocktypes.ContentBlockMemberText{Value: "Paris"},
			},
		}},
	}}
	temp := 0.2
	c := newWithAPI(api, Config{ModelID: "model-x", Temperature: &temp})

	text, err := c.Complete(context.Background(), connector.Request{Prompt: "Capital of France?", SystemPrompt: "be brief"})
	require.NoError(t, err)
	assert.Equal(t, "Paris", text)

	require.NotNil(t, api.input)
	assert.Equal(t, "model-x", *api.input.ModelId)
	assert.Equal(t, int32(DefaultMaxTokens), *api.input.InferenceConfig.MaxTokens)
	assert.InDelta(t, 0.2, *api.input.InferenceConfig.Temperature, 1e-6)
	require.Len(t, api.input.System, 1)
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		code      string
		permanent bool
	}{
		{"ValidationException", true},
		{"AccessDeniedException", true},
		{"ThrottlingException", false},
		{"ModelNotReadyException", false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			api := &fakeConverse{err: &smithy.GenericAPIError{Code: tt.code, Message: "boom"}}
			c := newWithAPI(api, Config{})
			_, err := c.Complete(context.Background(), connector.Request{Prompt: "x"})
			require.Error(t, err)
			assert.Equal(t, tt.permanent, connector.IsPermanent(err))
		})
	}
}

func TestFromEndpoint_BadToken(t *testing.T) {
	_, err := FromEndpoint(&catalog.Endpoint{ID: "br", Token: "no-secret"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ACCESS_KEY_ID:SECRET_ACCESS_KEY")
}

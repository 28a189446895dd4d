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
package factory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/crucible/pkg/catalog"
	"github.com/teradata-labs/crucible/pkg/config"
	"github.com/teradata-labs/crucible/pkg/connector"
	"github.com/teradata-labs/crucible/pkg/types"
)

func noToken(string) (string, error) { return "", keyring.ErrNotFound }

func TestFactory_BuiltInTypes(t *testing.T) {
	f := New(Config{TokenLookup: noToken})
	assert.Equal(t, []string{"anthropic", "bedrock", "echo", "ollama", "openai"}, f.Types())
	assert.True(t, f.Has("echo"))
	assert.False(t, f.Has("huggingface"))
}

func TestFactory_NewConnector(t *testing.T) {
	f := New(Config{TokenLookup: noToken, Logger: zaptest.NewLogger(t)})

	c, err := f.NewConnector(&catalog.Endpoint{
		ID:                "echo-1",
		ConnectorType:     "echo",
		MaxCallsPerSecond: 5,
		MaxConcurrency:    2,
		Params:            map[string]any{"pre_prompt": "Q: ", "timeout": 2},
	})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, "echo-1", c.ID())
	assert.Equal(t, 2*time.Second, c.Config().Timeout)

	resp, err := c.GetResponse(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "Q: hello", resp.Text)
	assert.Equal(t, int64(1), c.Calls())
}

func TestFactory_UnknownType(t *testing.T) {
	f := New(Config{TokenLookup: noToken})
	_, err := f.NewProvider(&catalog.Endpoint{ID: "x", ConnectorType: "opena"})
	require.Error(t, err)
	assert.True(t, types.IsNotFound(err))
	assert.Contains(t, err.Error(), "openai")
}

func TestFactory_TokenFromKeyring(t *testing.T) {
	var seen string
	f := New(Config{TokenLookup: func(id string) (string, error) {
		if id == "secure" {
			return "sk-from-keyring", nil
		}
		return "", errors.New("locked")
	}})
	f.Register("capture", func(e *catalog.Endpoint) (connector.Provider, error) {
		seen = e.Token
		return nil, errors.New("stop")
	})

	ep := &catalog.Endpoint{ID: "secure", ConnectorType: "capture"}
	_, err := f.NewProvider(ep)
	require.Error(t, err)
	assert.Equal(t, "sk-from-keyring", seen)
	assert.Empty(t, ep.Token, "catalog endpoint must not be mutated")

	_, _ = f.NewProvider(&catalog.Endpoint{ID: "other", ConnectorType: "capture", Token: "inline"})
	assert.Equal(t, "inline", seen)
}

func TestDefaultsFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Connector.NumOfRetries = 5
	cfg.Connector.AllowRetries = false
	cfg.Connector.RetryBase = 250 * time.Millisecond

	d := DefaultsFromConfig(cfg)
	assert.Equal(t, 5, d.NumOfRetries)
	assert.False(t, d.AllowRetries)
	assert.Equal(t, 250*time.Millisecond, d.RetryBase)
	assert.Equal(t, 600*time.Second, d.Timeout)
}

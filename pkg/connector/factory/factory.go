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
// Package factory maps an endpoint's connector_type to the provider that
// speaks its protocol and builds rate-limited connectors from endpoints.
package factory

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sahilm/fuzzy"
	"github.com/zalando/go-keyring"
	"go.uber.org/zap"

	"github.com/teradata-labs/crucible/pkg/catalog"
	"github.com/teradata-labs/crucible/pkg/config"
	"github.com/teradata-labs/crucible/pkg/connector"
	"github.com/teradata-labs/crucible/pkg/connector/anthropic"
	"github.com/teradata-labs/crucible/pkg/connector/bedrock"
	"github.com/teradata-labs/crucible/pkg/connector/echo"
	"github.com/teradata-labs/crucible/pkg/connector/ollama"
	"github.com/teradata-labs/crucible/pkg/connector/openai"
	"github.com/teradata-labs/crucible/pkg/types"
)

// Builder creates a provider for one endpoint.
type Builder func(e *catalog.Endpoint) (connector.Provider, error)

// Config holds configuration for the factory.
type Config struct {
	// Defaults seed every connector before endpoint params are applied.
	Defaults connector.Config

	// TokenLookup resolves tokens for endpoints whose file carries none.
	// Default: config.EndpointToken (OS keyring).
	TokenLookup func(endpointID string) (string, error)

	Logger *zap.Logger
}

// Factory creates connectors dynamically based on connector_type.
type Factory struct {
	mu       sync.RWMutex
	builders map[string]Builder

	defaults    connector.Config
	tokenLookup func(string) (string, error)
	logger      *zap.Logger
}

// New creates a factory with the built-in connector types registered.
func New(cfg Config) *Factory {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.TokenLookup == nil {
		cfg.TokenLookup = config.EndpointToken
	}
	if cfg.Defaults.MaxCallsPerSecond == 0 && cfg.Defaults.RetryBase == 0 {
		cfg.Defaults = connector.DefaultConfig()
	}
	f := &Factory{
		builders:    make(map[string]Builder),
		defaults:    cfg.Defaults,
		tokenLookup: cfg.TokenLookup,
		logger:      cfg.Logger,
	}
	f.Register("openai", openai.FromEndpoint)
	f.Register("anthropic", anthropic.FromEndpoint)
	f.Register("bedrock", bedrock.FromEndpoint)
	f.Register("ollama", ollama.FromEndpoint)
	f.Register("echo", echo.FromEndpoint)
	return f
}

// DefaultsFromConfig converts the connector section of the loaded
// configuration into connector defaults.
func DefaultsFromConfig(cfg *config.Config) connector.Config {
	d := connector.DefaultConfig()
	d.NumOfRetries = cfg.Connector.NumOfRetries
	d.AllowRetries = cfg.Connector.AllowRetries
	if cfg.Connector.RetryBase > 0 {
		d.RetryBase = cfg.Connector.RetryBase
	}
	if cfg.Connector.Timeout > 0 {
		d.Timeout = cfg.Connector.Timeout
	}
	return d
}

// Register adds or replaces the builder for a connector type.
func (f *Factory) Register(connectorType string, b Builder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[connectorType] = b
}

// Types returns the registered connector types, sorted.
func (f *Factory) Types() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.builders))
	for t := range f.builders {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Has reports whether connectorType is registered.
func (f *Factory) Has(connectorType string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.builders[connectorType]
	return ok
}

// NewProvider builds the provider for e. Unknown connector types return
// NotFound.
func (f *Factory) NewProvider(e *catalog.Endpoint) (connector.Provider, error) {
	f.mu.RLock()
	b, ok := f.builders[e.ConnectorType]
	f.mu.RUnlock()
	if !ok {
		return nil, types.NotFound("connector type", e.ConnectorType, f.suggest(e.ConnectorType)...)
	}

	ep := f.withToken(e)
	p, err := b(ep)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider for endpoint %q: %w", e.ConnectorType, e.ID, err)
	}
	return p, nil
}

// NewConnector builds a rate-limited, retrying connector for e. Each call
// returns a distinct instance with its own limiter and semaphore.
func (f *Factory) NewConnector(e *catalog.Endpoint) (*connector.Connector, error) {
	p, err := f.NewProvider(e)
	if err != nil {
		return nil, err
	}
	cfg := connector.ConfigFromEndpoint(e, f.defaults)
	cfg.Logger = f.logger
	return connector.New(p, cfg)
}

// withToken returns e, or a copy carrying the keyring token when e has none.
func (f *Factory) withToken(e *catalog.Endpoint) *catalog.Endpoint {
	if e.Token != "" {
		return e
	}
	tok, err := f.tokenLookup(e.ID)
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			f.logger.Debug("Keyring lookup failed",
				zap.String("endpoint", e.ID),
				zap.Error(err))
		}
		return e
	}
	ep := *e
	ep.Token = tok
	return &ep
}

func (f *Factory) suggest(name string) []string {
	known := f.Types()
	matches := fuzzy.Find(name, known)
	var out []string
	for i, m := range matches {
		if i == 3 {
			break
		}
		out = append(out, m.Str)
	}
	return out
}

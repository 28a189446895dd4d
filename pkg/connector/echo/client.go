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
// Package echo provides a connector.Provider that answers with the prompt it
// receives. It needs no network and backs dry runs and smoke tests.
package echo

import (
	"context"

	"github.com/teradata-labs/crucible/pkg/catalog"
	"github.com/teradata-labs/crucible/pkg/connector"
)

// ParamPrefix is prepended to every echoed response.
const ParamPrefix = "prefix"

type Client struct {
	prefix string
}

func NewClient(prefix string) *Client {
	return &Client{prefix: prefix}
}

func FromEndpoint(e *catalog.Endpoint) (connector.Provider, error) {
	return NewClient(connector.ParamString(e.Params, ParamPrefix, "")), nil
}

func (c *Client) Complete(ctx context.Context, req connector.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.prefix + req.Prompt, nil
}

func (c *Client) CheckConnection(ctx context.Context) error {
	return ctx.Err()
}

var (
	_ connector.Provider          = (*Client)(nil)
	_ connector.ConnectionChecker = (*Client)(nil)
)

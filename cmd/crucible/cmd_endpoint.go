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
package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teradata-labs/crucible/pkg/catalog"
)

var endpointCmd = &cobra.Command{
	Use:   "endpoint",
	Short: "Work with connector endpoints",
}

var endpointCheckCmd = &cobra.Command{
	Use:   "check [endpoint-id]...",
	Short: "Check that endpoints answer",
	Long:  "Check that endpoints answer. Every endpoint in the catalog is checked when no id is given.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var endpoints []*catalog.Endpoint
		if len(args) == 0 {
			endpoints = a.catalog.Endpoints()
		}
		for _, id := range args {
			e, err := a.catalog.Endpoint(id)
			if err != nil {
				return withCode(exitInvalid, err)
			}
			endpoints = append(endpoints, e)
		}

		ok := a.checkEndpoints(cmd.Context(), endpoints)
		failed := 0
		for i, e := range endpoints {
			if ok[i] {
				fmt.Printf("✅ %s (%s)\n", e.ID, e.ConnectorType)
				continue
			}
			failed++
			fmt.Printf("❌ %s (%s)\n", e.ID, e.ConnectorType)
		}
		if failed > 0 {
			return withCode(exitPartial, fmt.Errorf("%d of %d endpoints did not answer", failed, len(endpoints)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(endpointCmd)
	endpointCmd.AddCommand(endpointCheckCmd)
}

// checkEndpoints checks all endpoints concurrently; ok[i] reports
// endpoints[i].
func (a *app) checkEndpoints(ctx context.Context, endpoints []*catalog.Endpoint) []bool {
	ok := make([]bool, len(endpoints))
	var g errgroup.Group
	g.SetLimit(a.cfg.Session.ChatBatchSize)
	for i, e := range endpoints {
		g.Go(func() error {
			c, err := a.connectors.NewConnector(e)
			if err != nil {
				fmt.Printf("   %s: %v\n", e.ID, err)
				return nil
			}
			defer c.Close()
			ok[i] = c.CheckConnection(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return ok
}

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
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teradata-labs/crucible/pkg/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect and validate the catalog",
}

var catalogListCmd = &cobra.Command{
	Use:   "list <kind>",
	Short: "List catalog entries of one kind",
	Long: heredoc.Doc(`
		List catalog entries. Kinds: endpoints, recipes, cookbooks, datasets,
		prompt-templates, runners, metrics, context-strategies, attack-modules.
	`),
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"endpoints", "recipes", "cookbooks", "datasets", "prompt-templates", "runners", "metrics", "context-strategies", "attack-modules"},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		header, rows, err := a.listKind(args[0])
		if err != nil {
			return withCode(exitInvalid, err)
		}
		fmt.Println(renderTable(header, rows))
		return nil
	},
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate every catalog file and cross reference",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		problems := a.catalog.Validate()
		if len(problems) == 0 {
			fmt.Println("✅ Catalog is valid")
			return nil
		}
		for _, p := range problems {
			fmt.Printf("❌ %v\n", p)
		}
		return withCode(exitInvalid, fmt.Errorf("%d catalog problems", len(problems)))
	},
}

var catalogWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reload and validate the catalog whenever a file changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.watchCatalog(ctx, func(u catalog.Update, problems []error) {
			fmt.Printf("%s %s (%d problems)\n", u.Action, u.Path, len(problems))
			for _, p := range problems {
				fmt.Printf("  ❌ %v\n", p)
			}
		})
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogListCmd, catalogValidateCmd, catalogWatchCmd)
}

// watchCatalog calls report after every reload until ctx is done.
func (a *app) watchCatalog(ctx context.Context, report func(catalog.Update, []error)) error {
	updates, err := a.catalog.Watch(ctx)
	if err != nil {
		return err
	}
	for u := range updates {
		if u.Error != nil {
			a.logger.Warn("Catalog reload failed", zap.String("path", u.Path), zap.Error(u.Error))
		}
		report(u, a.catalog.Validate())
	}
	return nil
}

func (a *app) listKind(kind string) ([]string, [][]string, error) {
	var rows [][]string
	switch kind {
	case "endpoints":
		for _, e := range a.catalog.Endpoints() {
			rows = append(rows, []string{e.ID, e.Name, e.ConnectorType, e.URI,
				fmt.Sprint(e.MaxCallsPerSecond), fmt.Sprint(e.MaxConcurrency)})
		}
		return []string{"ID", "NAME", "TYPE", "URI", "QPS", "CONCURRENCY"}, rows, nil
	case "recipes":
		for _, r := range a.catalog.Recipes() {
			rows = append(rows, []string{r.ID, r.Name, strings.Join(r.Datasets, ","),
				strings.Join(r.PromptTemplates, ","), strings.Join(r.Metrics, ",")})
		}
		return []string{"ID", "NAME", "DATASETS", "TEMPLATES", "METRICS"}, rows, nil
	case "cookbooks":
		for _, c := range a.catalog.Cookbooks() {
			rows = append(rows, []string{c.ID, c.Name, strings.Join(c.Recipes, ",")})
		}
		return []string{"ID", "NAME", "RECIPES"}, rows, nil
	case "datasets":
		for _, d := range a.catalog.Datasets() {
			rows = append(rows, []string{d.ID, d.Name, fmt.Sprint(len(d.Examples)), d.License})
		}
		return []string{"ID", "NAME", "EXAMPLES", "LICENSE"}, rows, nil
	case "prompt-templates":
		for _, p := range a.catalog.PromptTemplates() {
			rows = append(rows, []string{p.ID, p.Name, oneLine(p.Template)})
		}
		return []string{"ID", "NAME", "TEMPLATE"}, rows, nil
	case "runners":
		for _, r := range a.catalog.Runners() {
			rows = append(rows, []string{r.ID, r.Name, strings.Join(r.Endpoints, ",")})
		}
		return []string{"ID", "NAME", "ENDPOINTS"}, rows, nil
	case "metrics":
		return pluginHeader, pluginRows(a.metrics.IDs(), a.catalog.MetricInfo), nil
	case "context-strategies":
		return pluginHeader, pluginRows(a.strategies.IDs(), a.catalog.ContextStrategyInfo), nil
	case "attack-modules":
		return pluginHeader, pluginRows(a.attacks.IDs(), a.catalog.AttackModuleInfo), nil
	}
	return nil, nil, fmt.Errorf("unknown catalog kind %q", kind)
}

var pluginHeader = []string{"ID", "NAME", "DESCRIPTION"}

// pluginRows lists registered plug-ins, described by their catalog entry
// when one exists.
func pluginRows(registered []string, info func(string) (*catalog.PluginInfo, error)) [][]string {
	rows := make([][]string, 0, len(registered))
	for _, id := range registered {
		row := []string{id, "", ""}
		if p, err := info(id); err == nil {
			row[1], row[2] = p.Name, oneLine(p.Description)
		}
		rows = append(rows, row)
	}
	return rows
}

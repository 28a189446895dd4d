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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/crucible/pkg/results"
)

var (
	exportFormat string
	exportOutput string
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Show and export run results",
}

var resultsShowCmd = &cobra.Command{
	Use:   "show <runner-id>",
	Short: "Show the latest results of a runner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		doc, err := results.Read(results.Path(a.catalog.Paths().Results, args[0]))
		if err != nil {
			return withCode(exitInvalid, err)
		}
		fmt.Println(results.RenderSummary(doc))
		return nil
	},
}

var resultsExportCmd = &cobra.Command{
	Use:   "export <runner-id>",
	Short: "Export the latest results of a runner as xlsx or csv",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		doc, err := results.Read(results.Path(a.catalog.Paths().Results, args[0]))
		if err != nil {
			return withCode(exitInvalid, err)
		}

		format := strings.ToLower(exportFormat)
		write := results.WriteXLSX
		switch format {
		case "xlsx":
		case "csv":
			write = results.WriteCSV
		default:
			return withCode(exitInvalid, fmt.Errorf("unknown export format %q (want xlsx or csv)", exportFormat))
		}

		out := exportOutput
		if out == "" {
			out = filepath.Join(a.catalog.Paths().Results, args[0]+"."+format)
		}
		f, err := os.Create(filepath.Clean(out))
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", out, err)
		}
		if err := write(f, doc); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to write %s: %w", out, err)
		}
		fmt.Printf("✅ Exported %s\n", out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resultsCmd)
	resultsCmd.AddCommand(resultsShowCmd, resultsExportCmd)

	resultsExportCmd.Flags().StringVar(&exportFormat, "format", "xlsx", "Export format (xlsx, csv)")
	resultsExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: $RESULTS/<runner-id>.<format>)")
}

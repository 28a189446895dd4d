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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/crucible/pkg/runner"
)

var runnerCmd = &cobra.Command{
	Use:   "runner",
	Short: "Manage benchmark runners",
}

var runnerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runners",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var rows [][]string
		for _, r := range a.catalog.Runners() {
			rows = append(rows, []string{r.ID, r.Name, strings.Join(r.Endpoints, ","), r.Description})
		}
		fmt.Println(renderTable([]string{"ID", "NAME", "ENDPOINTS", "DESCRIPTION"}, rows))
		return nil
	},
}

var runnerRunsCmd = &cobra.Command{
	Use:   "runs <runner-id>",
	Short: "List the runs recorded by a runner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := runner.Load(cmd.Context(), a.runnerConfig(), args[0], nil)
		if err != nil {
			return withCode(exitInvalid, err)
		}
		defer r.Close()

		runs, err := r.Runs(cmd.Context())
		if err != nil {
			return err
		}
		var rows [][]string
		for _, run := range runs {
			targets := run.Recipes
			if len(run.Cookbooks) > 0 {
				targets = run.Cookbooks
			}
			rows = append(rows, []string{
				fmt.Sprint(run.RunID),
				string(run.Type),
				strings.Join(targets, ","),
				fmt.Sprint(run.NumOfPrompts),
				run.Status,
				run.StartTime.Format("2006-01-02 15:04:05"),
			})
		}
		fmt.Println(renderTable([]string{"RUN", "TYPE", "TARGETS", "PROMPTS", "STATUS", "STARTED"}, rows))
		return nil
	},
}

var runnerDeleteCmd = &cobra.Command{
	Use:   "delete <runner-id>",
	Short: "Delete a runner and its database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		info, err := a.catalog.Runner(args[0])
		if err != nil {
			return withCode(exitInvalid, err)
		}
		if err := a.catalog.DeleteRunner(info.ID); err != nil {
			return err
		}
		db := info.DatabaseFile
		if db == "" {
			db = runner.DatabaseFile(a.catalog.Paths().Databases, info.ID)
		}
		for _, path := range []string{db, db + "-wal", db + "-shm"} {
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to remove %s: %w", path, err)
			}
		}
		fmt.Printf("✅ Deleted runner %s\n", info.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runnerCmd)
	runnerCmd.AddCommand(runnerListCmd)
	runnerCmd.AddCommand(runnerRunsCmd)
	runnerCmd.AddCommand(runnerDeleteCmd)
}

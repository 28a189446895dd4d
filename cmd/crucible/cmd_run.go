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
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teradata-labs/crucible/pkg/manager"
	"github.com/teradata-labs/crucible/pkg/progress"
	"github.com/teradata-labs/crucible/pkg/results"
	"github.com/teradata-labs/crucible/pkg/runner"
	"github.com/teradata-labs/crucible/pkg/types"
)

var (
	runEndpoints   []string
	runDescription string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run recipes or cookbooks against endpoints",
	Long: heredoc.Doc(`
		Run benchmark recipes or cookbooks with a runner. The runner is
		created on first use with --endpoints and reused afterwards; its
		results are written to $RESULTS/<runner-id>.json.

		Ctrl-C cancels the run. Prompts already sent are still recorded.
	`),
}

var runRecipesCmd = &cobra.Command{
	Use:   "recipes <runner-name> <recipe>...",
	Short: "Run one or more recipes",
	Example: heredoc.Doc(`
		crucible run recipes "GPT nightly" bbq-lite mmlu --endpoints openai-gpt4o
		crucible run recipes gpt-nightly bbq-lite --percentage 10 --seed 7
	`),
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBenchmark(cmd, args[0], runner.RunArgs{Recipes: args[1:]})
	},
}

var runCookbooksCmd = &cobra.Command{
	Use:   "cookbooks <runner-name> <cookbook>...",
	Short: "Run one or more cookbooks",
	Example: heredoc.Doc(`
		crucible run cookbooks "GPT nightly" common-risk-easy --endpoints openai-gpt4o,claude
	`),
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBenchmark(cmd, args[0], runner.RunArgs{Cookbooks: args[1:]})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.AddCommand(runRecipesCmd)
	runCmd.AddCommand(runCookbooksCmd)

	runCmd.PersistentFlags().StringSliceVar(&runEndpoints, "endpoints", nil, "Endpoint ids of a new runner")
	runCmd.PersistentFlags().StringVar(&runDescription, "description", "", "Description of a new runner")
	runCmd.PersistentFlags().Int("percentage", 100, "Share of each dataset to run (1-100)")
	runCmd.PersistentFlags().Int64("seed", 0, "Random seed for prompt selection")
	runCmd.PersistentFlags().String("system-prompt", "", "System prompt sent with every prompt")

	_ = viper.BindPFlag("runner.prompt_selection_percentage", runCmd.PersistentFlags().Lookup("percentage"))
	_ = viper.BindPFlag("runner.random_seed", runCmd.PersistentFlags().Lookup("seed"))
	_ = viper.BindPFlag("runner.system_prompt", runCmd.PersistentFlags().Lookup("system-prompt"))
}

func runBenchmark(cmd *cobra.Command, name string, args runner.RunArgs) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := a.openRunner(ctx, name, runEndpoints, runDescription)
	if err != nil {
		return withCode(exitInvalid, err)
	}
	defer r.Close()

	args.PromptSelectionPercentage = a.cfg.Runner.PromptSelectionPercentage
	args.RandomSeed = a.cfg.Runner.RandomSeed
	args.SystemPrompt = a.cfg.Runner.SystemPrompt

	result, err := a.runTask(ctx, r, args)
	if err != nil {
		return err
	}
	if result.Document != nil {
		fmt.Println(results.RenderSummary(result.Document))
		fmt.Printf("\nResults: %s\n", results.Path(a.catalog.Paths().Results, r.ID()))
	}
	return statusError(result.Status)
}

// runTask runs args on r as a manager task and waits for it.
func (a *app) runTask(ctx context.Context, r *runner.Runner, args runner.RunArgs) (*runner.RunResult, error) {
	run := r.RunRecipes
	if len(args.Cookbooks) > 0 {
		run = r.RunCookbooks
	}

	var result *runner.RunResult
	taskID := a.manager.Submit(context.WithoutCancel(ctx), r, func(ctx context.Context) error {
		res, err := run(ctx, args)
		result = res
		if err != nil {
			return err
		}
		return runOutcome(res)
	})
	task, err := a.await(ctx, taskID)
	if err != nil {
		return nil, withCode(exitCancelled, fmt.Errorf("run did not stop in time: %w", err))
	}
	if result == nil {
		if task.Status == manager.TaskCancelled {
			return nil, withCode(exitCancelled, errors.New("run cancelled"))
		}
		return nil, withCode(exitInvalid, errors.New(task.Error))
	}
	return result, nil
}

// runOutcome maps the status of a finished run to the error its manager
// task ends with, so the task table shows how the run ended.
func runOutcome(res *runner.RunResult) error {
	switch res.Status {
	case progress.RunCompleted:
		return nil
	case progress.RunCancelled:
		return types.Cancelled(fmt.Sprintf("run %d cancelled", res.RunID))
	case progress.RunCompletedWithErrors:
		return fmt.Errorf("run %d completed with errors", res.RunID)
	default:
		if len(res.Progress.CurrentErrorMessages) == 0 {
			return fmt.Errorf("run %d failed", res.RunID)
		}
		return errors.New(strings.Join(res.Progress.CurrentErrorMessages, "; "))
	}
}

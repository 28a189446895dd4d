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
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teradata-labs/crucible/pkg/catalog"
	"github.com/teradata-labs/crucible/pkg/runner"
	"github.com/teradata-labs/crucible/pkg/scheduler"
)

var (
	newSchedule   scheduler.Schedule
	scheduleOff   bool
	historyLimit  int
	serveNoReload bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run recipes and cookbooks on a cron schedule",
	Long: heredoc.Doc(`
		Schedules run a runner's recipes or cookbooks on a cron expression.
		They are stored in $CRUCIBLE_DATA_DIR/scheduler.db; YAML files in
		$CRUCIBLE_DATA_DIR/schedules are loaded too and hot-reloaded while
		"crucible schedule serve" runs.
	`),
}

var scheduleServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := a.newScheduler(ctx, !serveNoReload)
		if err != nil {
			return withCode(exitInvalid, err)
		}
		if err := s.Start(ctx); err != nil {
			return err
		}
		go func() {
			if err := a.watchCatalog(ctx, func(u catalog.Update, problems []error) {
				a.logger.Info("Catalog reloaded", zap.String("path", u.Path), zap.Int("problems", len(problems)))
			}); err != nil {
				a.logger.Warn("Catalog watch stopped", zap.Error(err))
			}
		}()

		fmt.Println("Scheduler running, press Ctrl-C to stop")
		<-ctx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
		defer cancel()
		if err := a.manager.Shutdown(stopCtx); err != nil {
			a.logger.Warn("Failed to cancel scheduled runs", zap.Error(err))
		}
		return s.Stop(stopCtx)
	},
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a schedule",
	Example: heredoc.Doc(`
		crucible schedule add --id nightly --runner gpt-nightly \
		  --cookbooks common-risk-easy --cron "0 2 * * *" --timezone Europe/Amsterdam
	`),
	Args: cobra.NoArgs,
	RunE: withScheduler(func(ctx context.Context, s *scheduler.Scheduler, _ []string) error {
		sc := newSchedule
		sc.Enabled = !scheduleOff
		if sc.Name == "" {
			sc.Name = sc.ID
		}
		if err := s.AddSchedule(ctx, &sc); err != nil {
			return withCode(exitInvalid, err)
		}
		fmt.Printf("✅ Added schedule %s, next run %s\n", sc.ID, formatEpoch(sc.NextExecutionAt))
		return nil
	}),
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List schedules",
	Args:  cobra.NoArgs,
	RunE: withScheduler(func(ctx context.Context, s *scheduler.Scheduler, _ []string) error {
		schedules, err := s.ListSchedules(ctx)
		if err != nil {
			return err
		}
		var rows [][]string
		for _, sc := range schedules {
			targets := sc.Recipes
			if len(sc.Cookbooks) > 0 {
				targets = sc.Cookbooks
			}
			rows = append(rows, []string{
				sc.ID, sc.RunnerID, strings.Join(targets, ","), sc.Cron, sc.Timezone,
				fmt.Sprint(sc.Enabled), formatEpoch(sc.NextExecutionAt),
				fmt.Sprintf("%d/%d/%d", sc.Stats.Successful, sc.Stats.Failed, sc.Stats.Skipped),
			})
		}
		fmt.Println(renderTable([]string{"ID", "RUNNER", "TARGETS", "CRON", "TZ", "ENABLED", "NEXT", "OK/FAIL/SKIP"}, rows))
		return nil
	}),
}

var scheduleRemoveCmd = &cobra.Command{
	Use:   "remove <schedule-id>",
	Short: "Remove a schedule and its history",
	Args:  cobra.ExactArgs(1),
	RunE: withScheduler(func(ctx context.Context, s *scheduler.Scheduler, args []string) error {
		if _, err := s.GetSchedule(ctx, args[0]); err != nil {
			return withCode(exitInvalid, err)
		}
		if err := s.RemoveSchedule(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("✅ Removed schedule %s\n", args[0])
		return nil
	}),
}

var schedulePauseCmd = &cobra.Command{
	Use:   "pause <schedule-id>",
	Short: "Disable a schedule",
	Args:  cobra.ExactArgs(1),
	RunE: withScheduler(func(ctx context.Context, s *scheduler.Scheduler, args []string) error {
		if err := s.PauseSchedule(ctx, args[0]); err != nil {
			return withCode(exitInvalid, err)
		}
		fmt.Printf("Paused schedule %s\n", args[0])
		return nil
	}),
}

var scheduleResumeCmd = &cobra.Command{
	Use:   "resume <schedule-id>",
	Short: "Enable a paused schedule",
	Args:  cobra.ExactArgs(1),
	RunE: withScheduler(func(ctx context.Context, s *scheduler.Scheduler, args []string) error {
		if err := s.ResumeSchedule(ctx, args[0]); err != nil {
			return withCode(exitInvalid, err)
		}
		fmt.Printf("Resumed schedule %s\n", args[0])
		return nil
	}),
}

var scheduleHistoryCmd = &cobra.Command{
	Use:   "history <schedule-id>",
	Short: "Show recent executions of a schedule",
	Args:  cobra.ExactArgs(1),
	RunE: withScheduler(func(ctx context.Context, s *scheduler.Scheduler, args []string) error {
		history, err := s.GetHistory(ctx, args[0], historyLimit)
		if err != nil {
			return err
		}
		var rows [][]string
		for _, e := range history {
			rows = append(rows, []string{
				e.ExecutionID, formatEpoch(e.StartedAt), e.Status,
				(time.Duration(e.DurationMs) * time.Millisecond).String(), oneLine(e.Error),
			})
		}
		fmt.Println(renderTable([]string{"EXECUTION", "STARTED", "STATUS", "DURATION", "ERROR"}, rows))
		return nil
	}),
}

var scheduleTriggerCmd = &cobra.Command{
	Use:   "trigger <schedule-id>",
	Short: "Run a schedule now and wait for it",
	Args:  cobra.ExactArgs(1),
	RunE: withScheduler(func(ctx context.Context, s *scheduler.Scheduler, args []string) error {
		executionID, err := s.TriggerNow(ctx, args[0], false)
		if err != nil {
			return withCode(exitInvalid, err)
		}
		fmt.Printf("Triggered execution %s\n", executionID)

		execution, err := awaitExecution(ctx, s, args[0], executionID)
		if err != nil {
			return withCode(exitCancelled, err)
		}
		fmt.Printf("Execution %s: %s %s\n", executionID, execution.Status, execution.Error)
		switch execution.Status {
		case scheduler.StatusSuccess:
			return nil
		case scheduler.StatusCancelled:
			return withCode(exitCancelled, errors.New("execution cancelled"))
		}
		return withCode(exitPartial, errors.New("execution failed"))
	}),
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleServeCmd, scheduleAddCmd, scheduleListCmd, scheduleRemoveCmd,
		schedulePauseCmd, scheduleResumeCmd, scheduleHistoryCmd, scheduleTriggerCmd)

	scheduleServeCmd.Flags().BoolVar(&serveNoReload, "no-reload", false, "Do not watch the schedules directory for changes")

	f := scheduleAddCmd.Flags()
	f.StringVar(&newSchedule.ID, "id", "", "Schedule id")
	f.StringVar(&newSchedule.Name, "name", "", "Schedule name (default: id)")
	f.StringVar(&newSchedule.RunnerID, "runner", "", "Runner id")
	f.StringSliceVar(&newSchedule.Recipes, "recipes", nil, "Recipes to run")
	f.StringSliceVar(&newSchedule.Cookbooks, "cookbooks", nil, "Cookbooks to run")
	f.StringVar(&newSchedule.Cron, "cron", "", "Five-field cron expression")
	f.StringVar(&newSchedule.Timezone, "timezone", "UTC", "IANA timezone of the cron expression")
	f.IntVar(&newSchedule.PromptSelectionPercentage, "percentage", 100, "Share of each dataset to run (1-100)")
	f.Int64Var(&newSchedule.RandomSeed, "seed", 0, "Random seed for prompt selection")
	f.StringVar(&newSchedule.SystemPrompt, "system-prompt", "", "System prompt sent with every prompt")
	f.BoolVar(&newSchedule.SkipIfRunning, "skip-if-running", true, "Skip a trigger while the previous run is going")
	f.IntVar(&newSchedule.MaxExecutionSeconds, "max-seconds", 3600, "Cancel runs that take longer")
	f.BoolVar(&scheduleOff, "disabled", false, "Add the schedule paused")
	_ = scheduleAddCmd.MarkFlagRequired("id")
	_ = scheduleAddCmd.MarkFlagRequired("runner")
	_ = scheduleAddCmd.MarkFlagRequired("cron")

	scheduleHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of executions to show")
}

// withScheduler adapts fn into a RunE with a scheduler that is not started;
// it is stopped when fn returns.
func withScheduler(fn func(ctx context.Context, s *scheduler.Scheduler, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := a.newScheduler(ctx, false)
		if err != nil {
			return withCode(exitInvalid, err)
		}
		defer func() { _ = s.Stop(context.Background()) }()
		return fn(ctx, s, args)
	}
}

func (a *app) newScheduler(ctx context.Context, hotReload bool) (*scheduler.Scheduler, error) {
	return scheduler.NewScheduler(ctx, scheduler.Config{
		DBPath:      filepath.Join(a.cfg.DataDir, "scheduler.db"),
		ScheduleDir: filepath.Join(a.cfg.DataDir, "schedules"),
		HotReload:   hotReload,
		Manager:     a.manager,
		Launch:      a.launchSchedule,
		Logger:      a.logger.Named("scheduler"),
	})
}

// launchSchedule starts a scheduled run as a manager task. The runner is
// loaded per execution and closed when the run ends.
func (a *app) launchSchedule(ctx context.Context, sc *scheduler.Schedule) (string, error) {
	r, err := runner.Load(ctx, a.runnerConfig(), sc.RunnerID, a.progress)
	if err != nil {
		return "", err
	}
	args := runner.RunArgs{
		Recipes:                   sc.Recipes,
		Cookbooks:                 sc.Cookbooks,
		PromptSelectionPercentage: sc.PromptSelectionPercentage,
		RandomSeed:                sc.RandomSeed,
		SystemPrompt:              sc.SystemPrompt,
	}
	run := r.RunRecipes
	if len(sc.Cookbooks) > 0 {
		run = r.RunCookbooks
	}
	return a.manager.Submit(ctx, r, func(ctx context.Context) error {
		defer r.Close()
		res, err := run(ctx, args)
		if err != nil {
			return err
		}
		return runOutcome(res)
	}), nil
}

// awaitExecution polls the history of a schedule until executionID is
// recorded.
func awaitExecution(ctx context.Context, s *scheduler.Scheduler, scheduleID, executionID string) (*scheduler.Execution, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		history, err := s.GetHistory(ctx, scheduleID, 5)
		if err != nil {
			return nil, err
		}
		for _, e := range history {
			if e.ExecutionID == executionID {
				return e, nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("execution %s did not finish: %w", executionID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func formatEpoch(sec int64) string {
	if sec == 0 {
		return "-"
	}
	return time.Unix(sec, 0).Format("2006-01-02 15:04")
}

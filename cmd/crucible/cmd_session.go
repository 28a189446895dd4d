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

	"github.com/teradata-labs/crucible/pkg/attack"
	"github.com/teradata-labs/crucible/pkg/manager"
	"github.com/teradata-labs/crucible/pkg/session"
	"github.com/teradata-labs/crucible/pkg/storage"
)

// sessionFlags are the settings accepted by session new and session set.
type sessionFlags struct {
	promptTemplate   string
	contextStrategy  string
	numOfPrevPrompts int
	attackModule     string
	metric           string
	systemPrompt     string
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.promptTemplate, "prompt-template", "", "Prompt template applied to every prompt")
	cmd.Flags().StringVar(&f.contextStrategy, "context-strategy", "", "Context strategy applied before the template")
	cmd.Flags().IntVar(&f.numOfPrevPrompts, "num-prev-prompts", 0, "Context strategy window (default: session.cs_num_of_prev_prompts)")
	cmd.Flags().StringVar(&f.attackModule, "attack-module", "", "Attack module used by session attack")
	cmd.Flags().StringVar(&f.metric, "metric", "", "Metric that ends an attack once it reports success")
	cmd.Flags().StringVar(&f.systemPrompt, "system-prompt", "", "System prompt sent with every prompt")
}

var (
	sessionEndpoints   []string
	sessionDescription string
	newSessionFlags    sessionFlags
	setSessionFlags    sessionFlags
	historyEndpoint    string
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Red-team sessions with one or more endpoints",
	Long: heredoc.Doc(`
		A session keeps one chat per endpoint. Every prompt is sent to all
		chats; the context strategy and prompt template of the session are
		applied before sending, and each exchange is recorded.
	`),
}

var sessionNewCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Create a session",
	Example: heredoc.Doc(`
		crucible session new "Jailbreak probe" --endpoints openai-gpt4o,claude \
		  --context-strategy add_previous_prompt --prompt-template mmlu
	`),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		n := newSessionFlags.numOfPrevPrompts
		if !cmd.Flags().Changed("num-prev-prompts") {
			n = a.cfg.Session.CSNumOfPrevPrompts
		}
		s, err := session.New(cmd.Context(), a.sessionConfig(), session.Options{
			Name:             args[0],
			Description:      sessionDescription,
			Endpoints:        sessionEndpoints,
			PromptTemplate:   newSessionFlags.promptTemplate,
			ContextStrategy:  newSessionFlags.contextStrategy,
			NumOfPrevPrompts: n,
			AttackModule:     newSessionFlags.attackModule,
			Metric:           newSessionFlags.metric,
			SystemPrompt:     newSessionFlags.systemPrompt,
		})
		if err != nil {
			return withCode(exitInvalid, err)
		}
		defer s.Close()

		fmt.Printf("✅ Created session %s\n", s.ID())
		printSessionMetadata(s.Metadata())
		return nil
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show session settings",
	Args:  cobra.ExactArgs(1),
	RunE: withSession(func(_ context.Context, _ *cobra.Command, s *session.Session, _ []string) error {
		printSessionMetadata(s.Metadata())
		return nil
	}),
}

var sessionSetCmd = &cobra.Command{
	Use:   "set <session-id>",
	Short: "Change session settings",
	Long: heredoc.Doc(`
		Change the settings of a session. Only the flags given are changed;
		an empty value clears a setting.
	`),
	Example: heredoc.Doc(`
		crucible session set jailbreak-probe --attack-module charswap_attack --metric refusal_rate
		crucible session set jailbreak-probe --prompt-template ""
	`),
	Args: cobra.ExactArgs(1),
	RunE: withSession(func(ctx context.Context, cmd *cobra.Command, s *session.Session, _ []string) error {
		flags := cmd.Flags()
		setters := []struct {
			flag  string
			apply func() error
		}{
			{"prompt-template", func() error { return s.SetPromptTemplate(ctx, setSessionFlags.promptTemplate) }},
			{"context-strategy", func() error { return s.SetContextStrategy(ctx, setSessionFlags.contextStrategy) }},
			{"num-prev-prompts", func() error { return s.SetNumOfPrevPrompts(ctx, setSessionFlags.numOfPrevPrompts) }},
			{"attack-module", func() error { return s.SetAttackModule(ctx, setSessionFlags.attackModule) }},
			{"metric", func() error { return s.SetMetric(ctx, setSessionFlags.metric) }},
			{"system-prompt", func() error { return s.SetSystemPrompt(ctx, setSessionFlags.systemPrompt) }},
		}
		changed := 0
		for _, set := range setters {
			if !flags.Changed(set.flag) {
				continue
			}
			if err := set.apply(); err != nil {
				return withCode(exitInvalid, err)
			}
			changed++
		}
		if changed == 0 {
			return withCode(exitInvalid, errors.New("no settings given"))
		}
		printSessionMetadata(s.Metadata())
		return nil
	}),
}

var sessionPromptCmd = &cobra.Command{
	Use:   "prompt <session-id> <prompt>",
	Short: "Send a prompt to every endpoint of a session",
	Args:  cobra.ExactArgs(2),
	RunE: withSession(func(ctx context.Context, _ *cobra.Command, s *session.Session, args []string) error {
		chats, err := s.Prompt(ctx, args[1])
		failed := 0
		for _, c := range chats {
			fmt.Println(headerStyle.Render("[" + c.EndpointID + "]"))
			switch {
			case c.Err != nil:
				failed++
				fmt.Printf("❌ %v\n\n", c.Err)
			case c.Record != nil:
				fmt.Printf("%s\n%s\n\n", c.Record.PredictedResult,
					mutedStyle.Render(fmt.Sprintf("%.2fs", c.Record.Duration.Seconds())))
			}
		}
		if err != nil {
			return err
		}
		if failed > 0 {
			return withCode(exitPartial, fmt.Errorf("%d of %d endpoints failed", failed, len(chats)))
		}
		return nil
	}),
}

var sessionHistoryCmd = &cobra.Command{
	Use:   "history <session-id>",
	Short: "Show the chat history of a session",
	Args:  cobra.ExactArgs(1),
	RunE: withSession(func(ctx context.Context, _ *cobra.Command, s *session.Session, _ []string) error {
		endpoints := s.Metadata().Endpoints
		if historyEndpoint != "" {
			endpoints = []string{historyEndpoint}
		}
		for _, ep := range endpoints {
			records, err := s.History(ctx, ep)
			if err != nil {
				return withCode(exitInvalid, err)
			}
			fmt.Println(headerStyle.Render("[" + ep + "]"))
			for _, r := range records {
				fmt.Printf("%s %s\n", mutedStyle.Render(r.PromptTime.Format("15:04:05")+" >"), r.Prompt)
				if r.PreparedPrompt != r.Prompt {
					fmt.Println(mutedStyle.Render("  sent: " + oneLine(r.PreparedPrompt)))
				}
				if r.AttackModule != "" {
					fmt.Println(mutedStyle.Render("  attack: " + r.AttackModule))
				}
				fmt.Printf("%s %s\n", mutedStyle.Render("         <"), r.PredictedResult)
			}
			fmt.Println()
		}
		return nil
	}),
}

var sessionAttackCmd = &cobra.Command{
	Use:   "attack <session-id> <seed-prompt>",
	Short: "Run the session's attack module",
	Long: heredoc.Doc(`
		Run the attack module of a session, starting from a seed prompt.
		The attack stops early when the session metric reports success.
		Ctrl-C stops the attack; prompts already sent are still recorded.
	`),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := session.Load(ctx, a.sessionConfig(), args[0])
		if err != nil {
			return withCode(exitInvalid, err)
		}
		defer s.Close()

		var (
			outcome   attack.Outcome
			attackErr error
		)
		taskID := a.manager.Submit(context.WithoutCancel(ctx), s, func(ctx context.Context) error {
			outcome, attackErr = s.Attack(ctx, args[1])
			return attackErr
		})
		task, err := a.await(ctx, taskID)
		if err != nil {
			return withCode(exitCancelled, fmt.Errorf("attack did not stop in time: %w", err))
		}

		fmt.Printf("Attack %s: %d steps, succeeded=%t\n", s.Metadata().AttackModule, outcome.Steps, outcome.Succeeded)
		switch {
		case task.Status == manager.TaskCancelled:
			return withCode(exitCancelled, errors.New("attack cancelled"))
		case attackErr != nil:
			return attackErr
		case task.Status == manager.TaskFailed:
			return errors.New(task.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionNewCmd, sessionShowCmd, sessionSetCmd, sessionPromptCmd, sessionHistoryCmd, sessionAttackCmd)

	sessionNewCmd.Flags().StringSliceVar(&sessionEndpoints, "endpoints", nil, "Endpoint ids to chat with")
	sessionNewCmd.Flags().StringVar(&sessionDescription, "description", "", "Session description")
	_ = sessionNewCmd.MarkFlagRequired("endpoints")
	newSessionFlags.register(sessionNewCmd)
	setSessionFlags.register(sessionSetCmd)

	sessionHistoryCmd.Flags().StringVar(&historyEndpoint, "endpoint", "", "Only show the chat with this endpoint")
}

// withSession adapts fn into a RunE that loads the session named by the
// first argument.
func withSession(fn func(ctx context.Context, cmd *cobra.Command, s *session.Session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := session.Load(ctx, a.sessionConfig(), args[0])
		if err != nil {
			return withCode(exitInvalid, err)
		}
		defer s.Close()
		return fn(ctx, cmd, s, args)
	}
}

func printSessionMetadata(m storage.SessionMetadata) {
	rows := [][]string{
		{"id", m.SessionID},
		{"description", m.Description},
		{"endpoints", strings.Join(m.Endpoints, ", ")},
		{"created", m.CreatedDatetime},
		{"prompt template", m.PromptTemplate},
		{"context strategy", m.ContextStrategy},
		{"previous prompts", fmt.Sprint(m.CSNumOfPrevPrompts)},
		{"attack module", m.AttackModule},
		{"metric", m.Metric},
		{"system prompt", oneLine(m.SystemPrompt)},
	}
	fmt.Println(renderTable([]string{"SETTING", "VALUE"}, rows))
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\n", `\n`)
	if len(s) > 80 {
		return s[:77] + "..."
	}
	return s
}

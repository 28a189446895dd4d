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

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teradata-labs/crucible/internal/log"
	"github.com/teradata-labs/crucible/internal/version"
	"github.com/teradata-labs/crucible/pkg/config"
)

var (
	cfgFile   string
	appConfig *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "crucible",
	Short: "Crucible - LLM benchmark and red-team engine",
	Long: heredoc.Doc(`
		Crucible runs benchmark recipes and cookbooks against LLM endpoints,
		scores the responses with metrics and keeps interactive red-team
		sessions with one or more endpoints.

		Catalog directories default to $CRUCIBLE_DATA_DIR/<kind> and can be
		moved with the RECIPES, COOKBOOKS, DATASETS, PROMPT_TEMPLATES,
		CONNECTORS_ENDPOINTS, METRICS, CONTEXT_STRATEGY, ATTACK_MODULES,
		RESULTS, DATABASES and RUNNERS environment variables.

		Exit codes: 0 success, 1 invalid input, 2 cancelled,
		3 completed with errors.
	`),
	Version:       version.Get(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	_ = log.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return exitCode(err)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $CRUCIBLE_DATA_DIR/crucible.yaml)")

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().String("log-file", "", "Write logs to this file instead of stderr")
	rootCmd.PersistentFlags().String("sse-addr", "", "Serve progress snapshots as server-sent events on this address")

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("logging.file", rootCmd.PersistentFlags().Lookup("log-file"))
	_ = viper.BindPFlag("progress.sse_addr", rootCmd.PersistentFlags().Lookup("sse-addr"))
}

// initConfig reads in config file and ENV variables and configures logging.
func initConfig() error {
	cfg, err := config.LoadConfig(viper.GetViper(), cfgFile)
	if err != nil {
		return withCode(exitInvalid, fmt.Errorf("error loading config: %w", err))
	}
	if _, err := log.Configure(log.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	}); err != nil {
		return withCode(exitInvalid, err)
	}
	appConfig = cfg
	return nil
}

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
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"
)

const (
	// ServiceName for keyring storage
	ServiceName = "crucible"
	// DefaultConfigFileName is the name of the config file
	DefaultConfigFileName = "crucible"
	// EnvPrefix prefixes every environment override (CRUCIBLE_LOGGING_LEVEL, ...).
	EnvPrefix = "CRUCIBLE"

	keyringEncryptionKey = "database_encryption_key"
)

// Config holds all configuration for crucible.
// Priority: CLI flags > env vars > config file > defaults
type Config struct {
	// DataDir is computed from CRUCIBLE_DATA_DIR or ~/.crucible and is not
	// loaded from the config file.
	DataDir string `mapstructure:"-"`

	// Paths are the catalog directories, resolved from their env vars.
	Paths Paths `mapstructure:"-"`

	Logging   LoggingConfig   `mapstructure:"logging"`
	Connector ConnectorConfig `mapstructure:"connector"`
	Runner    RunnerConfig    `mapstructure:"runner"`
	Session   SessionConfig   `mapstructure:"session"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Progress  ProgressConfig  `mapstructure:"progress"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
	File   string `mapstructure:"file"`   // optional log file
}

// ConnectorConfig holds defaults applied to every connector unless the
// endpoint params override them.
type ConnectorConfig struct {
	NumOfRetries int           `mapstructure:"num_of_retries"`
	AllowRetries bool          `mapstructure:"allow_retries"`
	RetryBase    time.Duration `mapstructure:"retry_base"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// RunnerConfig holds default run arguments.
type RunnerConfig struct {
	PromptSelectionPercentage int    `mapstructure:"prompt_selection_percentage"`
	RandomSeed                int64  `mapstructure:"random_seed"`
	SystemPrompt              string `mapstructure:"system_prompt"`
}

// SessionConfig holds red-team session defaults.
type SessionConfig struct {
	CSNumOfPrevPrompts int `mapstructure:"cs_num_of_prev_prompts"`
	ChatBatchSize      int `mapstructure:"chat_batch_size"`
}

// DatabaseConfig holds store configuration.
type DatabaseConfig struct {
	// EncryptionKey enables SQLCipher encryption (cgo builds only).
	EncryptionKey string `mapstructure:"encryption_key"`
}

// ProgressConfig holds progress streaming configuration.
type ProgressConfig struct {
	// SSEAddr enables the SSE progress stream when non-empty (e.g. ":8090").
	SSEAddr string `mapstructure:"sse_addr"`
}

// SetDefaults registers default configuration values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")

	v.SetDefault("connector.num_of_retries", 3)
	v.SetDefault("connector.allow_retries", true)
	v.SetDefault("connector.retry_base", "1s")
	v.SetDefault("connector.timeout", "600s")

	v.SetDefault("runner.prompt_selection_percentage", 100)
	v.SetDefault("runner.random_seed", 0)
	v.SetDefault("runner.system_prompt", "")

	v.SetDefault("session.cs_num_of_prev_prompts", 5)
	v.SetDefault("session.chat_batch_size", 5)

	v.SetDefault("database.encryption_key", "")
	v.SetDefault("progress.sse_addr", "")
}

// LoadConfig loads configuration into v from multiple sources.
// Priority order (highest to lowest):
// 1. CLI flags (bound by the caller with v.BindPFlag)
// 2. Environment variables (CRUCIBLE_ prefix, .env files included)
// 3. Config file (crucible.yaml)
// 4. Defaults
func LoadConfig(v *viper.Viper, cfgFile string) (*Config, error) {
	if err := LoadDotEnv(".env", filepath.Join(GetDataDir(), ".env")); err != nil {
		return nil, err
	}

	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(GetDataDir())
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/crucible/")
		v.SetConfigName(DefaultConfigFileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.DataDir = GetDataDir()
	cfg.Paths = ResolvePaths(cfg.DataDir)

	if cfg.Database.EncryptionKey == "" {
		if key, err := GetSecretFromKeyring(keyringEncryptionKey); err == nil {
			cfg.Database.EncryptionKey = key
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges that viper cannot express.
func (c *Config) Validate() error {
	if c.Runner.PromptSelectionPercentage < 1 || c.Runner.PromptSelectionPercentage > 100 {
		return fmt.Errorf("runner.prompt_selection_percentage must be in [1, 100], got %d", c.Runner.PromptSelectionPercentage)
	}
	if c.Connector.NumOfRetries < 0 {
		return fmt.Errorf("connector.num_of_retries must be >= 0, got %d", c.Connector.NumOfRetries)
	}
	if c.Connector.RetryBase < 0 || c.Connector.Timeout < 0 {
		return fmt.Errorf("connector durations must not be negative")
	}
	if c.Session.CSNumOfPrevPrompts < 0 {
		return fmt.Errorf("session.cs_num_of_prev_prompts must be >= 0, got %d", c.Session.CSNumOfPrevPrompts)
	}
	if c.Session.ChatBatchSize < 1 {
		return fmt.Errorf("session.chat_batch_size must be >= 1, got %d", c.Session.ChatBatchSize)
	}
	return nil
}

// LoadDotEnv loads every listed .env file that exists. Variables already set
// in the process environment are not overridden.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// EndpointToken returns the token stored in the keyring for an endpoint id.
func EndpointToken(endpointID string) (string, error) {
	return GetSecretFromKeyring("endpoint:" + endpointID)
}

// SaveEndpointToken stores an endpoint token in the keyring.
func SaveEndpointToken(endpointID, token string) error {
	return SaveSecretToKeyring("endpoint:"+endpointID, token)
}

// GetSecretFromKeyring retrieves a secret from the system keyring.
func GetSecretFromKeyring(key string) (string, error) {
	return keyring.Get(ServiceName, key)
}

// SaveSecretToKeyring saves a secret to the system keyring.
func SaveSecretToKeyring(key, value string) error {
	return keyring.Set(ServiceName, key, value)
}

// DeleteSecretFromKeyring removes a secret from the system keyring.
func DeleteSecretFromKeyring(key string) error {
	return keyring.Delete(ServiceName, key)
}

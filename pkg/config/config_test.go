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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestLoadConfig_Defaults(t *testing.T) {
	keyring.MockInit()
	t.Setenv(EnvDataDir, t.TempDir())
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 3, cfg.Connector.NumOfRetries)
	assert.True(t, cfg.Connector.AllowRetries)
	assert.Equal(t, time.Second, cfg.Connector.RetryBase)
	assert.Equal(t, 600*time.Second, cfg.Connector.Timeout)
	assert.Equal(t, 100, cfg.Runner.PromptSelectionPercentage)
	assert.Equal(t, 5, cfg.Session.CSNumOfPrevPrompts)
	assert.Equal(t, filepath.Join(cfg.DataDir, "recipes"), cfg.Paths.Recipes)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	keyring.MockInit()
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)
	t.Chdir(dir)

	cfgFile := filepath.Join(dir, "crucible.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
logging:
  level: debug
connector:
  num_of_retries: 5
  retry_base: 250ms
runner:
  random_seed: 42
`), 0600))
	t.Setenv("CRUCIBLE_RUNNER_RANDOM_SEED", "7")

	cfg, err := LoadConfig(viper.New(), cfgFile)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 5, cfg.Connector.NumOfRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Connector.RetryBase)
	// env beats file
	assert.Equal(t, int64(7), cfg.Runner.RandomSeed)
}

func TestLoadConfig_DotEnvAndKeyring(t *testing.T) {
	keyring.MockInit()
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)
	t.Chdir(dir)
	t.Setenv("CRUCIBLE_LOGGING_FORMAT", "")
	require.NoError(t, os.Unsetenv("CRUCIBLE_LOGGING_FORMAT"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CRUCIBLE_LOGGING_FORMAT=json\n"), 0600))
	require.NoError(t, SaveSecretToKeyring(keyringEncryptionKey, "s3cret"))
	t.Cleanup(func() { _ = os.Unsetenv("CRUCIBLE_LOGGING_FORMAT") })

	cfg, err := LoadConfig(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "s3cret", cfg.Database.EncryptionKey)
}

func TestLoadConfig_InvalidPercentage(t *testing.T) {
	keyring.MockInit()
	t.Setenv(EnvDataDir, t.TempDir())
	t.Chdir(t.TempDir())
	t.Setenv("CRUCIBLE_RUNNER_PROMPT_SELECTION_PERCENTAGE", "0")

	_, err := LoadConfig(viper.New(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt_selection_percentage")
}

func TestEndpointToken(t *testing.T) {
	keyring.MockInit()

	_, err := EndpointToken("openai-gpt4o")
	require.Error(t, err)

	require.NoError(t, SaveEndpointToken("openai-gpt4o", "sk-test"))
	tok, err := EndpointToken("openai-gpt4o")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", tok)
}

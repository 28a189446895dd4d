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
package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nightlyYAML = `id: nightly
name: Nightly cookbook
runner_id: gpt-runner
cookbooks: [common-risk-easy]
prompt_selection_percentage: 10
random_seed: 7
schedule:
  cron: "0 2 * * *"
  timezone: Europe/Amsterdam
  skip_if_running: true
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestLoader_ScanDirectory_NoDirectory(t *testing.T) {
	s := setupTestScheduler(t, "/nonexistent/directory", succeed)
	assert.NoError(t, s.loader.ScanDirectory(context.Background()))
}

func TestLoader_ScanDirectory_LoadSchedule(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "nightly.yaml"), nightlyYAML)

	s := setupTestScheduler(t, dir, succeed)
	require.NoError(t, s.Start(ctx))

	got, err := s.GetSchedule(ctx, "nightly")
	require.NoError(t, err)
	assert.Equal(t, "Nightly cookbook", got.Name)
	assert.Equal(t, "gpt-runner", got.RunnerID)
	assert.Equal(t, []string{"common-risk-easy"}, got.Cookbooks)
	assert.Equal(t, 10, got.PromptSelectionPercentage)
	assert.Equal(t, int64(7), got.RandomSeed)
	assert.Equal(t, "Europe/Amsterdam", got.Timezone)
	assert.True(t, got.Enabled)
	assert.True(t, got.SkipIfRunning)
	assert.Equal(t, 3600, got.MaxExecutionSeconds)
	assert.Equal(t, filepath.Join(dir, "nightly.yaml"), got.YAMLPath)
}

func TestLoader_ScanDirectory_IgnoresBadFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "no-schedule.yaml"), "runner_id: r\nrecipes: [a]\n")
	writeFile(t, filepath.Join(dir, "broken.yml"), "schedule: [unclosed\n")
	writeFile(t, filepath.Join(dir, "bad-cron.yaml"), "runner_id: r\nrecipes: [a]\nschedule:\n  cron: nope\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), nightlyYAML)

	s := setupTestScheduler(t, dir, succeed)
	require.NoError(t, s.loader.ScanDirectory(ctx))

	schedules, err := s.ListSchedules(ctx)
	require.NoError(t, err)
	assert.Empty(t, schedules)
}

func TestLoader_FileChangeAndDeletion(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "nightly.yaml")
	writeFile(t, path, nightlyYAML)

	s := setupTestScheduler(t, dir, succeed)
	require.NoError(t, s.loader.ScanDirectory(ctx))
	firstHash := s.loader.fileHashes[path]

	// Unchanged files are not reloaded.
	require.NoError(t, s.loader.ScanDirectory(ctx))
	assert.Equal(t, firstHash, s.loader.fileHashes[path])

	writeFile(t, path, strings.Replace(nightlyYAML, "0 2 * * *", "30 3 * * *", 1))
	require.NoError(t, s.loader.ScanDirectory(ctx))
	assert.NotEqual(t, firstHash, s.loader.fileHashes[path])

	got, err := s.GetSchedule(ctx, "nightly")
	require.NoError(t, err)
	assert.Equal(t, "30 3 * * *", got.Cron)

	require.NoError(t, os.Remove(path))
	require.NoError(t, s.loader.ScanDirectory(ctx))
	_, err = s.GetSchedule(ctx, "nightly")
	assert.Error(t, err)
	assert.Empty(t, s.loader.fileHashes)
}

func TestLoader_IDFromFileNameAndDisabled(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "weekly.yml")
	writeFile(t, path, "runner_id: r\nrecipes: [a]\nschedule:\n  cron: \"0 0 * * 0\"\n  enabled: false\n")

	s := setupTestScheduler(t, dir, succeed)
	require.NoError(t, s.loader.ScanDirectory(ctx))

	id := generateScheduleIDFromPath(path)
	got, err := s.GetSchedule(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.Name)
	assert.False(t, got.Enabled)
}

func TestLoader_GenerateScheduleID(t *testing.T) {
	id := generateScheduleIDFromPath("/schedules/nightly.yaml")
	assert.True(t, strings.HasPrefix(id, "nightly-"))
	assert.Len(t, id, len("nightly-")+8)
	assert.Equal(t, id, generateScheduleIDFromPath("/schedules/nightly.yaml"))
	assert.NotEqual(t, id, generateScheduleIDFromPath("/other/nightly.yaml"))
}

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
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// scheduleFile is the YAML layout of a schedule file:
//
//	runner_id: nightly-gpt
//	cookbooks: [common-risk-easy]
//	prompt_selection_percentage: 10
//	schedule:
//	  cron: "0 2 * * *"
//	  timezone: Europe/Amsterdam
//	  skip_if_running: true
type scheduleFile struct {
	ID                        string   `yaml:"id"`
	Name                      string   `yaml:"name"`
	RunnerID                  string   `yaml:"runner_id"`
	Recipes                   []string `yaml:"recipes"`
	Cookbooks                 []string `yaml:"cookbooks"`
	PromptSelectionPercentage int      `yaml:"prompt_selection_percentage"`
	RandomSeed                int64    `yaml:"random_seed"`
	SystemPrompt              string   `yaml:"system_prompt"`
	Schedule                  *struct {
		Cron                string `yaml:"cron"`
		Timezone            string `yaml:"timezone"`
		Enabled             *bool  `yaml:"enabled"`
		SkipIfRunning       bool   `yaml:"skip_if_running"`
		MaxExecutionSeconds int    `yaml:"max_execution_seconds"`
	} `yaml:"schedule"`
}

// Loader loads schedule YAML files and keeps the scheduler in sync with the
// directory.
type Loader struct {
	scheduleDir string
	scheduler   *Scheduler
	logger      *zap.Logger
	fileHashes  map[string]string // path -> SHA256 hash for change detection
	fileIDs     map[string]string // path -> schedule id
}

// ScanDirectory loads new and changed schedule files and removes the
// schedules of deleted ones.
func (l *Loader) ScanDirectory(ctx context.Context) error {
	if l.scheduleDir == "" {
		return nil
	}
	if _, err := os.Stat(l.scheduleDir); os.IsNotExist(err) {
		l.logger.Debug("Schedule directory does not exist", zap.String("dir", l.scheduleDir))
		return nil
	}

	files, err := filepath.Glob(filepath.Join(l.scheduleDir, "*.yaml"))
	if err != nil {
		return fmt.Errorf("failed to glob yaml files: %w", err)
	}
	ymlFiles, err := filepath.Glob(filepath.Join(l.scheduleDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to glob yml files: %w", err)
	}
	files = append(files, ymlFiles...)

	seen := make(map[string]bool)
	for _, path := range files {
		seen[path] = true

		hash, err := l.fileHash(path)
		if err != nil {
			l.logger.Error("Failed to hash file", zap.String("path", path), zap.Error(err))
			continue
		}
		oldHash, exists := l.fileHashes[path]
		if exists && oldHash == hash {
			continue
		}

		l.logger.Info("Loading schedule file", zap.String("path", path), zap.Bool("new", !exists))
		if err := l.loadScheduleFile(ctx, path); err != nil {
			l.logger.Error("Failed to load schedule file", zap.String("path", path), zap.Error(err))
			continue
		}
		l.fileHashes[path] = hash
	}

	for path := range l.fileHashes {
		if seen[path] {
			continue
		}
		if scheduleID, ok := l.fileIDs[path]; ok {
			l.logger.Info("Schedule file deleted, removing schedule",
				zap.String("path", path),
				zap.String("schedule_id", scheduleID))
			if err := l.scheduler.RemoveSchedule(ctx, scheduleID); err != nil {
				l.logger.Error("Failed to remove schedule for deleted file",
					zap.String("schedule_id", scheduleID),
					zap.Error(err))
			}
		}
		delete(l.fileHashes, path)
		delete(l.fileIDs, path)
	}
	return nil
}

// loadScheduleFile creates or updates the schedule defined in path. Files
// without a schedule section are ignored.
func (l *Loader) loadScheduleFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to read schedule file: %w", err)
	}
	var file scheduleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse schedule YAML: %w", err)
	}
	if file.Schedule == nil {
		l.logger.Debug("File has no schedule section", zap.String("path", path))
		return nil
	}

	schedule := &Schedule{
		ID:                        file.ID,
		Name:                      file.Name,
		RunnerID:                  file.RunnerID,
		Recipes:                   file.Recipes,
		Cookbooks:                 file.Cookbooks,
		PromptSelectionPercentage: file.PromptSelectionPercentage,
		RandomSeed:                file.RandomSeed,
		SystemPrompt:              file.SystemPrompt,
		Cron:                      file.Schedule.Cron,
		Timezone:                  file.Schedule.Timezone,
		Enabled:                   file.Schedule.Enabled == nil || *file.Schedule.Enabled,
		SkipIfRunning:             file.Schedule.SkipIfRunning,
		MaxExecutionSeconds:       file.Schedule.MaxExecutionSeconds,
		YAMLPath:                  path,
	}
	if schedule.ID == "" {
		schedule.ID = generateScheduleIDFromPath(path)
	}
	if schedule.Name == "" {
		schedule.Name = schedule.ID
	}

	if previous, ok := l.fileIDs[path]; ok && previous != schedule.ID {
		if err := l.scheduler.RemoveSchedule(ctx, previous); err != nil {
			return fmt.Errorf("failed to remove renamed schedule: %w", err)
		}
	}

	if _, err := l.scheduler.store.Get(ctx, schedule.ID); err == nil {
		if err := l.scheduler.UpdateSchedule(ctx, schedule); err != nil {
			return fmt.Errorf("failed to update schedule: %w", err)
		}
		l.logger.Info("Updated schedule from YAML",
			zap.String("schedule_id", schedule.ID),
			zap.String("path", path))
	} else {
		if err := l.scheduler.AddSchedule(ctx, schedule); err != nil {
			return fmt.Errorf("failed to add schedule: %w", err)
		}
		l.logger.Info("Created schedule from YAML",
			zap.String("schedule_id", schedule.ID),
			zap.String("path", path))
	}
	l.fileIDs[path] = schedule.ID
	return nil
}

// fileHash computes SHA256 hash of a file for change detection.
func (l *Loader) fileHash(path string) (string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// generateScheduleIDFromPath generates a stable schedule ID from a file path.
func generateScheduleIDFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	h := sha256.New()
	h.Write([]byte(path))
	hash := fmt.Sprintf("%x", h.Sum(nil))[:8]

	return fmt.Sprintf("%s-%s", base, hash)
}

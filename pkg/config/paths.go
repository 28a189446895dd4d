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
	"strings"
)

// Catalog directory environment variables. Each names a flat directory of
// {id}.json files.
const (
	EnvRecipes             = "RECIPES"
	EnvCookbooks           = "COOKBOOKS"
	EnvDatasets            = "DATASETS"
	EnvPromptTemplates     = "PROMPT_TEMPLATES"
	EnvConnectorsEndpoints = "CONNECTORS_ENDPOINTS"
	EnvMetrics             = "METRICS"
	EnvContextStrategy     = "CONTEXT_STRATEGY"
	EnvAttackModules       = "ATTACK_MODULES"
	EnvResults             = "RESULTS"
	EnvDatabases           = "DATABASES"
	EnvRunners             = "RUNNERS"

	// EnvDataDir overrides the root under which unset catalog dirs live.
	EnvDataDir = "CRUCIBLE_DATA_DIR"
)

// Paths holds the resolved catalog directories.
type Paths struct {
	Recipes             string
	Cookbooks           string
	Datasets            string
	PromptTemplates     string
	ConnectorsEndpoints string
	Metrics             string
	ContextStrategy     string
	AttackModules       string
	Results             string
	Databases           string
	Runners             string
}

// GetDataDir returns the crucible data directory.
//
// Priority:
// 1. CRUCIBLE_DATA_DIR environment variable (if set and non-empty)
// 2. ~/.crucible (default)
//
// The returned path is always absolute. Tilde (~) is expanded.
func GetDataDir() string {
	if dataDir := os.Getenv(EnvDataDir); dataDir != "" {
		return expandPath(dataDir)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".crucible"
	}
	return filepath.Join(homeDir, ".crucible")
}

// ResolvePaths resolves every catalog directory. An env var wins; otherwise
// the directory is <dataDir>/<lowercase env name>.
func ResolvePaths(dataDir string) Paths {
	if dataDir == "" {
		dataDir = GetDataDir()
	}
	dir := func(env string) string {
		if v := os.Getenv(env); v != "" {
			return expandPath(v)
		}
		return filepath.Join(dataDir, strings.ToLower(env))
	}
	return Paths{
		Recipes:             dir(EnvRecipes),
		Cookbooks:           dir(EnvCookbooks),
		Datasets:            dir(EnvDatasets),
		PromptTemplates:     dir(EnvPromptTemplates),
		ConnectorsEndpoints: dir(EnvConnectorsEndpoints),
		Metrics:             dir(EnvMetrics),
		ContextStrategy:     dir(EnvContextStrategy),
		AttackModules:       dir(EnvAttackModules),
		Results:             dir(EnvResults),
		Databases:           dir(EnvDatabases),
		Runners:             dir(EnvRunners),
	}
}

// All returns every directory, for bulk creation.
func (p Paths) All() []string {
	return []string{
		p.Recipes, p.Cookbooks, p.Datasets, p.PromptTemplates,
		p.ConnectorsEndpoints, p.Metrics, p.ContextStrategy, p.AttackModules,
		p.Results, p.Databases, p.Runners,
	}
}

// EnsureDirs creates all directories that do not exist yet.
func (p Paths) EnsureDirs() error {
	for _, d := range p.All() {
		if err := os.MkdirAll(d, 0750); err != nil {
			return err
		}
	}
	return nil
}

// expandPath expands ~ and resolves to absolute path
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}

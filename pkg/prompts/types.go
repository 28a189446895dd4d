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
// Package prompts applies named prompt templates to raw user prompts.
//
// A template holds at most one {{prompt}} hole (whitespace inside the braces
// is tolerated). A template without a hole gets the raw prompt appended.
//
// Example usage:
//
//	engine := prompts.NewEngine(cat)
//	prepared, err := engine.Apply("mcq-template", "What is 2+2?")
package prompts

import "github.com/teradata-labs/crucible/pkg/catalog"

// Source resolves prompt templates by id. *catalog.Catalog implements it.
type Source interface {
	PromptTemplate(id string) (*catalog.PromptTemplate, error)
}

var _ Source = (*catalog.Catalog)(nil)

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
package prompts

import (
	"fmt"
)

// Engine applies catalog templates by name.
type Engine struct {
	source Source
}

// NewEngine creates an engine that looks templates up in source.
func NewEngine(source Source) *Engine {
	return &Engine{source: source}
}

// Apply renders raw through the template named name. An empty name returns
// raw unchanged; an unknown name fails with NotFound.
func (e *Engine) Apply(name, raw string) (string, error) {
	if name == "" {
		return raw, nil
	}
	tmpl, err := e.source.PromptTemplate(name)
	if err != nil {
		return "", fmt.Errorf("failed to apply prompt template: %w", err)
	}
	return Render(tmpl.Template, raw), nil
}

// Exists reports whether a template named name can be resolved.
func (e *Engine) Exists(name string) bool {
	_, err := e.source.PromptTemplate(name)
	return err == nil
}

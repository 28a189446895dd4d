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
	"strings"

	"github.com/teradata-labs/crucible/pkg/catalog"
)

// Render substitutes raw into the template's {{prompt}} hole.
//
// Example:
//
//	Render("Answer briefly: {{prompt}}", "Why is the sky blue?")
//	// Returns: "Answer briefly: Why is the sky blue?"
//
//	Render("{{ prompt }}\n###", "hi")
//	// Returns: "hi\n###"
//
//	Render("You are a helpful assistant.\n", "hi")
//	// Returns: "You are a helpful assistant.\nhi"
func Render(template, raw string) string {
	loc := catalog.PromptPlaceholder.FindStringIndex(template)
	if loc == nil {
		return template + raw
	}
	// Only the first hole is filled. Raw is inserted literally so "$1" or
	// "{{prompt}}" inside user input survive untouched.
	var sb strings.Builder
	sb.Grow(len(template) - (loc[1] - loc[0]) + len(raw))
	sb.WriteString(template[:loc[0]])
	sb.WriteString(raw)
	sb.WriteString(template[loc[1]:])
	return sb.String()
}

// HasPlaceholder reports whether template contains a {{prompt}} hole.
func HasPlaceholder(template string) bool {
	return catalog.PromptPlaceholder.MatchString(template)
}

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
package results

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/teradata-labs/crucible/pkg/catalog"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	gradeStyles = map[string]lipgloss.Style{
		"A": lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")),
		"B": lipgloss.NewStyle().Foreground(lipgloss.Color("#84CC16")),
		"C": lipgloss.NewStyle().Foreground(lipgloss.Color("#EAB308")),
		"D": lipgloss.NewStyle().Foreground(lipgloss.Color("#F97316")),
		"E": lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")),
	}
)

// RenderSummary renders a terminal table of doc: one line per
// (cookbook, recipe, endpoint) with its score and grade.
func RenderSummary(doc *Document) string {
	md := doc.Metadata
	title := titleStyle.Render(fmt.Sprintf("Run %d of %s", md.RunID, md.ID))
	sub := mutedStyle.Render(fmt.Sprintf("status %s, %d prompts, %.1fs", md.Status, md.NumOfPrompts, md.Duration))

	rows := doc.Results.Rows()
	if len(rows) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, title, sub, mutedStyle.Render("no results"))
	}

	cells := [][]string{{"cookbook", "recipe", "endpoint", "prompts", "errors", "score", "grade"}}
	for _, r := range rows {
		score := "-"
		if r.Scored {
			score = fmt.Sprintf("%.2f", r.Score)
		}
		cells = append(cells, []string{
			r.Cookbook, r.Recipe, r.Endpoint,
			fmt.Sprint(r.NumOfPrompts), fmt.Sprint(r.NumOfErrors),
			score, r.Grade,
		})
	}

	widths := make([]int, len(cells[0]))
	for _, row := range cells {
		for i, c := range row {
			widths[i] = max(widths[i], lipgloss.Width(c))
		}
	}

	lines := []string{title, sub, ""}
	for n, row := range cells {
		parts := make([]string, len(row))
		for i, c := range row {
			style := lipgloss.NewStyle().Width(widths[i] + 2)
			switch {
			case n == 0:
				style = style.Inherit(headerStyle)
			case i == len(row)-1:
				if gs, ok := gradeStyles[c]; ok {
					style = style.Inherit(gs)
				} else if c == catalog.GradeUnknown {
					style = style.Inherit(mutedStyle)
				}
			}
			parts[i] = style.Render(c)
		}
		lines = append(lines, strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, parts...), " "))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

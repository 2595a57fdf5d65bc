package prompt

import (
	"fmt"
	"strings"

	domain "github.com/bryanwahyu/automaton-a11y/internal/domain/audits"
)

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are a senior digital accessibility consultant who explains WCAG audit results to business owners. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- Classify the website from its URL only; say "unknown" when it cannot be inferred.
- businessImpact must mention legal exposure and lost customers in plain language.
- quickWins are fixes a developer can ship in under a day, most valuable first, at most 3 items.
- recommendations are longer-term actions, at most 5 items.
- Never invent violations that are not listed in the prompt.

Schema (example with empty values):
{
  "websiteType": "<string>",
  "businessImpact": "<string>",
  "industryContext": "<string>",
  "quickWins": ["<string>"],
  "recommendations": ["<string>"],
  "overallAssessment": "<string>"
}`
}

// GetUserPrompt builds a compact user message from the audit numbers and its worst violations.
func GetUserPrompt(in domain.SummaryInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Website: %s\n", in.URL)
	fmt.Fprintf(&b, "Accessibility score: %d/100\n", in.Score)
	fmt.Fprintf(&b, "Violations: %d total (%d critical, %d serious, %d moderate, %d minor)\n",
		in.Counts.Total, in.Counts.Critical, in.Counts.Serious, in.Counts.Moderate, in.Counts.Minor)

	if len(in.TopViolations) == 0 {
		b.WriteString("\nNo violations were found.\n")
	} else {
		b.WriteString("\nTop issues:\n")
		for i, v := range in.TopViolations {
			fmt.Fprintf(&b, "%d. [%s] %s: %s", i+1, v.Impact, v.ViolationID, v.Description)
			if len(v.WCAGCriteria) > 0 {
				fmt.Fprintf(&b, " (WCAG %s %s)", v.WCAGLevel, strings.Join(v.WCAGCriteria, ", "))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\nRespond with the JSON per schema.")
	return b.String()
}

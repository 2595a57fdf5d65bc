package audits

import (
	"strings"

	"github.com/google/uuid"
)

// RawNode is one element the scanner flagged for a rule.
type RawNode struct {
	Target         []string `json:"target"`
	HTML           string   `json:"html"`
	FailureSummary string   `json:"failureSummary"`
}

// RawFinding is a rule violation exactly as the scanner reported it.
type RawFinding struct {
	ID          string    `json:"id"`
	Impact      string    `json:"impact"`
	Tags        []string  `json:"tags"`
	Description string    `json:"description"`
	Help        string    `json:"help"`
	HelpURL     string    `json:"helpUrl"`
	Nodes       []RawNode `json:"nodes"`
}

// Penalty weights per impact.
const (
	penaltyCritical = 10
	penaltySerious  = 5
	penaltyModerate = 2
	penaltyMinor    = 1
)

// Score turns severity counts into a 0..100 score, deducting a fixed penalty per finding.
func Score(c SeverityCounts) int {
	penalty := penaltyCritical*c.Critical +
		penaltySerious*c.Serious +
		penaltyModerate*c.Moderate +
		penaltyMinor*c.Minor
	if penalty >= 100 {
		return 0
	}
	return 100 - penalty
}

// Transform maps raw findings to violations and tallies them.
func Transform(findings []RawFinding) ([]Violation, SeverityCounts) {
	out := make([]Violation, 0, len(findings))
	var counts SeverityCounts
	for _, f := range findings {
		v := toViolation(f)
		counts.Add(v.Impact)
		out = append(out, v)
	}
	return out, counts
}

func toViolation(f RawFinding) Violation {
	v := Violation{
		ID:            uuid.New().String(),
		ViolationID:   f.ID,
		Description:   f.Description,
		Impact:        ParseImpact(f.Impact),
		HelpURL:       f.HelpURL,
		WCAGCriteria:  wcagTags(f.Tags),
		WCAGLevel:     levelFromTags(f.Tags),
		Target:        []string{},
		FixSuggestion: f.Help,
	}
	if len(f.Nodes) > 0 {
		first := f.Nodes[0]
		v.Selector = strings.Join(first.Target, ", ")
		v.HTML = first.HTML
		if first.Target != nil {
			v.Target = append([]string(nil), first.Target...)
		}
	}
	return v
}

func wcagTags(tags []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, t := range tags {
		if strings.Contains(t, "wcag") && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func levelFromTags(tags []string) WCAGLevel {
	for _, t := range tags {
		if strings.Contains(t, "wcag2aa") || strings.Contains(t, "wcag21aa") {
			return LevelAA
		}
	}
	return LevelA
}

// TopViolations returns at most n violations, most severe first, keeping scanner order within a bucket.
func TopViolations(vs []Violation, n int) []Violation {
	rank := map[Impact]int{ImpactCritical: 0, ImpactSerious: 1, ImpactModerate: 2, ImpactMinor: 3}
	out := make([]Violation, 0, n)
	for r := 0; r <= 3 && len(out) < n; r++ {
		for _, v := range vs {
			if rank[v.Impact] == r {
				out = append(out, v)
				if len(out) == n {
					break
				}
			}
		}
	}
	return out
}

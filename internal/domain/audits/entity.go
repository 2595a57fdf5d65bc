package audits

import (
	"time"
)

// Status enum
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Impact is the severity bucket reported by the scanner.
type Impact string

const (
	ImpactCritical Impact = "critical"
	ImpactSerious  Impact = "serious"
	ImpactModerate Impact = "moderate"
	ImpactMinor    Impact = "minor"
)

// ParseImpact maps scanner output to an Impact; anything unknown or empty is minor.
func ParseImpact(s string) Impact {
	switch Impact(s) {
	case ImpactCritical, ImpactSerious, ImpactModerate, ImpactMinor:
		return Impact(s)
	default:
		return ImpactMinor
	}
}

// WCAGLevel conformance level
type WCAGLevel string

const (
	LevelA  WCAGLevel = "A"
	LevelAA WCAGLevel = "AA"
)

// SeverityCounts value object
type SeverityCounts struct {
	Total    int `json:"totalViolations"`
	Critical int `json:"criticalCount"`
	Serious  int `json:"seriousCount"`
	Moderate int `json:"moderateCount"`
	Minor    int `json:"minorCount"`
}

// Add counts one violation of the given impact.
func (c *SeverityCounts) Add(impact Impact) {
	switch impact {
	case ImpactCritical:
		c.Critical++
	case ImpactSerious:
		c.Serious++
	case ImpactModerate:
		c.Moderate++
	default:
		c.Minor++
	}
	c.Total = c.Critical + c.Serious + c.Moderate + c.Minor
}

// Violation is one finding of a scan. Immutable once created.
type Violation struct {
	ID            string    `json:"id"`
	ViolationID   string    `json:"violationId"`
	Description   string    `json:"description"`
	Impact        Impact    `json:"impact"`
	HelpURL       string    `json:"helpUrl"`
	WCAGCriteria  []string  `json:"wcagCriteria"`
	WCAGLevel     WCAGLevel `json:"wcagLevel"`
	Selector      string    `json:"selector"`
	HTML          string    `json:"html"`
	Target        []string  `json:"target"`
	FixSuggestion string    `json:"fixSuggestion"`
	AIExplanation string    `json:"aiExplanation"`
}

// Report holds everything a completed audit carries. Absent on failed audits.
type Report struct {
	Title                 string    `json:"title"`
	Domain                string    `json:"domain,omitempty"`
	ProcessingStartedAt   time.Time `json:"processingStartedAt"`
	ProcessingCompletedAt time.Time `json:"processingCompletedAt"`
	SeverityCounts
	OverallScore int         `json:"overallScore"`
	AISummary    *string     `json:"aiSummary,omitempty"`
	ArtifactURL  string      `json:"artifactUrl,omitempty"`
	Violations   []Violation `json:"violations"`
}

// Aggregate Root: AuditResult
type AuditResult struct {
	ID           Identity  `json:"auditId"`
	UserID       string    `json:"-"`
	Status       Status    `json:"status"`
	URL          string    `json:"url"`
	CreatedAt    time.Time `json:"createdAt"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	*Report
}

// WithIdentity returns a copy of the result carrying id.
func (a AuditResult) WithIdentity(id Identity) AuditResult {
	a.ID = id
	return a
}

// Failed builds the failed variant: only identity, url, createdAt and the message survive.
func Failed(id Identity, url string, createdAt time.Time, err error) AuditResult {
	msg := "Unknown system error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return AuditResult{
		ID:           id,
		Status:       StatusFailed,
		URL:          url,
		CreatedAt:    createdAt,
		ErrorMessage: msg,
	}
}

// Summary rekap audit N hari terakhir
type Summary struct {
	Days   int            `json:"days"`
	Audits int            `json:"totalAudits"`
	Counts SeverityCounts `json:"counts"`
}

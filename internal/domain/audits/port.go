package audits

import (
	"context"
	"net/netip"
	"time"

	"github.com/bryanwahyu/automaton-a11y/internal/domain/billing"
)

// ScanOutput is what a single browser scan produces.
type ScanOutput struct {
	Title    string
	LoadedAt time.Time // page load finished, scan about to start
	Findings []RawFinding
	// Raw is the scanner's full JSON result, archived as an artifact.
	Raw []byte
	// FinalURL is the document location after redirects. Empty when unknown.
	FinalURL string
}

// Resolver looks up the addresses of a target host. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Scanner port (interface untuk eksekusi browser + axe)
type Scanner interface {
	Scan(ctx context.Context, url string) (ScanOutput, error)
}

// SummaryInput is everything the AI summary is allowed to see.
type SummaryInput struct {
	URL           string
	Score         int
	Counts        SeverityCounts
	TopViolations []Violation
}

// Summarizer port for the AI business summary.
type Summarizer interface {
	Summarize(ctx context.Context, in SummaryInput) (string, error)
}

// Repository port (interface untuk persistence)
type Repository interface {
	// SaveCharged debits charge from the owner's balance, appends the ledger entry and stores
	// the audit with its violations, all in one transaction. It returns the stored row id.
	SaveCharged(ctx context.Context, charge billing.Charge, a *AuditResult) (string, billing.Receipt, error)
	Get(ctx context.Context, userID, id string) (*AuditResult, error)
	Latest(ctx context.Context, userID string, limit int) ([]*AuditResult, error)
	Delete(ctx context.Context, userID, id string) error
	Summary(ctx context.Context, userID string, sinceDays int) (Summary, error)
}

// TrialStatus is the anonymous caller's position in the current window.
type TrialStatus struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// TrialLimiter counts free audits per tool and caller fingerprint.
type TrialLimiter interface {
	Check(ctx context.Context, tool, fingerprint string) (TrialStatus, error)
	Record(ctx context.Context, tool, fingerprint string) error
}

// ArtifactStore port (interface untuk penyimpanan artefak)
type ArtifactStore interface {
	UploadJSON(ctx context.Context, key string, data []byte) (string, error)
	Remove(ctx context.Context, key string) error
}

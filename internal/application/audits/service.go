package audits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	neturl "net/url"
	"time"

	"github.com/bryanwahyu/automaton-a11y/internal/application"
	domain "github.com/bryanwahyu/automaton-a11y/internal/domain/audits"
	"github.com/bryanwahyu/automaton-a11y/internal/domain/billing"
	"github.com/bryanwahyu/automaton-a11y/internal/domain/scanerrors"
)

// ToolName identifies this pipeline in the ledger and the trial counter.
const ToolName = "url-audit"

// DefaultCost is the credit price of one completed audit.
const DefaultCost = 5

// HistoryLimit caps the audit list.
const HistoryLimit = 20

// Metrics receives pipeline events. Optional.
type Metrics interface {
	AuditFinished(status domain.Status, d time.Duration)
	AIEnrichmentFailed()
	CreditsConsumed(n int)
}

// Service implements use-cases untuk Audit.
// Service is designed to be used concurrently; each Run owns its own browser.
type Service struct {
	Repo       domain.Repository
	Accounts   billing.Accounts
	Scanner    domain.Scanner
	Summarizer domain.Summarizer // nil kalau AI belum dikonfigurasi
	Trials     domain.TrialLimiter
	Artifacts  domain.ArtifactStore  // optional
	Failures   scanerrors.Repository // optional
	Metrics    Metrics               // optional
	Resolver   domain.Resolver       // default net.DefaultResolver
	Clock      application.Clock
	Log        *slog.Logger

	Cost                int
	AllowPrivateTargets bool
}

//
// ==== USE CASES ====
//

// Caller is who is asking. An empty UserID means anonymous.
type Caller struct {
	UserID      string
	Fingerprint string
}

func (c Caller) Authenticated() bool { return c.UserID != "" }

// RunAuditCommand untuk trigger audit
type RunAuditCommand struct {
	URL             string
	UnlimitedAccess bool
	Caller          Caller
	RequestID       string
}

type RunAuditResult struct {
	Audit domain.AuditResult
	// CreditsRemaining is set when the caller's balance is known.
	CreditsRemaining *int
}

type entitlement struct {
	account *billing.Account
}

// Run validates, checks entitlement, scans, synthesizes the report and persists or records usage.
// Errors are returned only before the scan starts and when the final debit is refused;
// scan failures come back as a failed AuditResult.
func (s *Service) Run(ctx context.Context, cmd RunAuditCommand) (RunAuditResult, error) {
	log := s.logger().With("request_id", cmd.RequestID, "user_id", cmd.Caller.UserID)

	target, err := domain.ParseTargetURL(cmd.URL)
	if err != nil {
		return RunAuditResult{}, err
	}
	if err := s.guardTarget(ctx, target); err != nil {
		return RunAuditResult{}, err
	}
	url := target.String()

	ent, err := s.checkEntitlement(ctx, cmd)
	if err != nil {
		return RunAuditResult{}, err
	}

	createdAt := s.now()
	id := domain.NewEphemeral()

	// jalankan scanner sekali, tanpa retry
	out, err := s.Scanner.Scan(ctx, url)
	if err == nil {
		err = s.checkRedirect(ctx, url, out.FinalURL)
	}
	if err != nil {
		log.Warn("audit scan failed", "url", url, "error", err)
		s.recordFailure(ctx, cmd.Caller, id, url, "scan", err)
		s.observe(domain.StatusFailed, createdAt)
		return RunAuditResult{Audit: domain.Failed(id, url, createdAt, err)}, nil
	}
	startedAt := out.LoadedAt
	if startedAt.IsZero() {
		startedAt = s.now()
	}

	violations, counts := domain.Transform(out.Findings)
	score := domain.Score(counts)
	summary := s.summarize(ctx, log, domain.SummaryInput{
		URL:           url,
		Score:         score,
		Counts:        counts,
		TopViolations: domain.TopViolations(violations, 3),
	})

	title := out.Title
	if title == "" {
		title = url
	}
	audit := domain.AuditResult{
		ID:        id,
		UserID:    cmd.Caller.UserID,
		Status:    domain.StatusCompleted,
		URL:       url,
		CreatedAt: createdAt,
		Report: &domain.Report{
			Title:                 title,
			Domain:                domain.RegistrableDomain(target),
			ProcessingStartedAt:   startedAt,
			ProcessingCompletedAt: s.now(),
			SeverityCounts:        counts,
			OverallScore:          score,
			AISummary:             &summary,
			Violations:            violations,
		},
	}

	res := RunAuditResult{Audit: audit}
	switch {
	case cmd.UnlimitedAccess:
		if ent.account != nil {
			res.CreditsRemaining = intPtr(ent.account.Credits)
		}
	case cmd.Caller.Authenticated():
		res, err = s.persist(ctx, log, cmd.Caller, audit, out.Raw)
		if err != nil {
			return RunAuditResult{}, err
		}
	default:
		if err := s.Trials.Record(ctx, ToolName, cmd.Caller.Fingerprint); err != nil {
			log.Warn("trial usage not recorded", "error", err)
		}
	}

	s.observe(domain.StatusCompleted, createdAt)
	log.Info("audit completed",
		"audit_id", res.Audit.ID.String(),
		"persisted", res.Audit.ID.IsPersisted(),
		"score", score,
		"violations", counts.Total,
	)
	return res, nil
}

// guardTarget applies CheckNavigable and, for hostnames, checks every resolved address.
// A lookup failure is left to the scanner to report.
func (s *Service) guardTarget(ctx context.Context, u *neturl.URL) error {
	if err := domain.CheckNavigable(u, s.AllowPrivateTargets); err != nil {
		return err
	}
	if s.AllowPrivateTargets {
		return nil
	}
	host := u.Hostname()
	if _, err := netip.ParseAddr(host); err == nil {
		return nil
	}
	addrs, err := s.resolver().LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil
	}
	return domain.CheckResolved(addrs)
}

// checkRedirect fails the scan when the page ended up on a target guardTarget would refuse.
func (s *Service) checkRedirect(ctx context.Context, requested, final string) error {
	if final == "" || final == requested {
		return nil
	}
	u, err := neturl.Parse(final)
	if err != nil || u.Host == "" {
		return nil
	}
	if err := s.guardTarget(ctx, u); err != nil {
		return fmt.Errorf("redirected to disallowed target %s", u.Host)
	}
	return nil
}

func (s *Service) resolver() domain.Resolver {
	if s.Resolver != nil {
		return s.Resolver
	}
	return net.DefaultResolver
}

func (s *Service) checkEntitlement(ctx context.Context, cmd RunAuditCommand) (entitlement, error) {
	caller := cmd.Caller
	if cmd.UnlimitedAccess {
		if !caller.Authenticated() {
			return entitlement{}, nil
		}
		acc, err := s.Accounts.GetAccount(ctx, caller.UserID)
		if err != nil && !errors.Is(err, domain.ErrAccountNotFound) {
			return entitlement{}, err
		}
		return entitlement{account: acc}, nil
	}

	if caller.Authenticated() {
		acc, err := s.Accounts.GetAccount(ctx, caller.UserID)
		if err != nil {
			return entitlement{}, err
		}
		if acc.Credits < s.cost() {
			return entitlement{}, &domain.InsufficientCreditsError{Required: s.cost(), Available: acc.Credits}
		}
		return entitlement{account: acc}, nil
	}

	st, err := s.Trials.Check(ctx, ToolName, caller.Fingerprint)
	if err != nil {
		return entitlement{}, fmt.Errorf("trial check: %w", err)
	}
	if !st.Allowed {
		return entitlement{}, &domain.TrialLimitError{Remaining: st.Remaining, ResetAt: st.ResetAt}
	}
	return entitlement{}, nil
}

// persist debits and stores in one transaction. Only a refused debit is returned as an error;
// other storage failures leave the caller with the ephemeral report.
func (s *Service) persist(ctx context.Context, log *slog.Logger, caller Caller, audit domain.AuditResult, raw []byte) (RunAuditResult, error) {
	var uploaded string
	if s.Artifacts != nil && len(raw) > 0 {
		key := fmt.Sprintf("%s/%s/%s.json", caller.UserID, ToolName, audit.ID)
		url, err := s.Artifacts.UploadJSON(ctx, key, raw)
		if err != nil {
			log.Warn("artifact upload failed", "key", key, "error", err)
		} else {
			audit.ArtifactURL = url
			uploaded = key
		}
	}

	charge := billing.Charge{
		UserID:      caller.UserID,
		Cost:        s.cost(),
		Description: fmt.Sprintf("URL accessibility audit: %s", audit.URL),
		Tool:        ToolName,
	}
	rowID, receipt, err := s.Repo.SaveCharged(ctx, charge, &audit)
	if err != nil {
		// tidak ada row audit, jadi artifact-nya juga dibuang
		if uploaded != "" {
			if rmErr := s.Artifacts.Remove(ctx, uploaded); rmErr != nil {
				log.Warn("orphan artifact not removed", "key", uploaded, "error", rmErr)
			}
			audit.ArtifactURL = ""
		}
		if errors.Is(err, domain.ErrInsufficientCredits) || errors.Is(err, domain.ErrAccountNotFound) {
			return RunAuditResult{}, err
		}
		log.Error("audit not persisted", "audit_id", audit.ID.String(), "error", err)
		s.recordFailure(ctx, caller, audit.ID, audit.URL, "persist", err)
		return RunAuditResult{Audit: audit}, nil
	}

	if s.Metrics != nil {
		s.Metrics.CreditsConsumed(charge.Cost)
	}
	return RunAuditResult{
		Audit:            audit.WithIdentity(domain.Persisted(rowID)),
		CreditsRemaining: intPtr(receipt.BalanceAfter),
	}, nil
}

// summarize never fails: problems become an {"error": ...} summary.
func (s *Service) summarize(ctx context.Context, log *slog.Logger, in domain.SummaryInput) string {
	if s.Summarizer == nil {
		return errorSummary(domain.ErrSummarizerUnavailable.Error())
	}
	out, err := s.Summarizer.Summarize(ctx, in)
	if err != nil {
		log.Warn("ai enrichment failed", "error", err)
		if s.Metrics != nil {
			s.Metrics.AIEnrichmentFailed()
		}
		if errors.Is(err, domain.ErrSummarizerUnavailable) {
			return errorSummary(err.Error())
		}
		return errorSummary(fmt.Sprintf("Failed to generate AI summary: %v", err))
	}
	return out
}

func errorSummary(msg string) string {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return string(b)
}

func (s *Service) recordFailure(ctx context.Context, caller Caller, id domain.Identity, url, phase string, cause error) {
	if s.Failures == nil || !caller.Authenticated() {
		return
	}
	e := &scanerrors.ScanError{
		UserID:    caller.UserID,
		AuditID:   id.String(),
		URL:       url,
		Phase:     phase,
		Message:   cause.Error(),
		CreatedAt: s.now(),
	}
	if err := s.Failures.Save(ctx, e); err != nil {
		s.logger().Warn("scan error not recorded", "audit_id", id.String(), "error", err)
	}
}

// Get ambil 1 audit by id, hanya milik caller
func (s *Service) Get(ctx context.Context, caller Caller, id string) (*domain.AuditResult, error) {
	if !caller.Authenticated() {
		return nil, domain.ErrNotFound
	}
	return s.Repo.Get(ctx, caller.UserID, id)
}

// History ambil audit terakhir milik caller
func (s *Service) History(ctx context.Context, caller Caller) ([]*domain.AuditResult, error) {
	if !caller.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	list, err := s.Repo.Latest(ctx, caller.UserID, HistoryLimit)
	if err != nil {
		return nil, err
	}
	for _, a := range list {
		if a.Report != nil && a.Title == "" {
			a.Title = a.URL
		}
	}
	return list, nil
}

// Delete hapus audit milik caller (violations ikut terhapus)
func (s *Service) Delete(ctx context.Context, caller Caller, id string) error {
	if !caller.Authenticated() {
		return domain.ErrUnauthenticated
	}
	return s.Repo.Delete(ctx, caller.UserID, id)
}

// Summary rekap hasil audit N hari terakhir
func (s *Service) Summary(ctx context.Context, caller Caller, sinceDays int) (domain.Summary, error) {
	if !caller.Authenticated() {
		return domain.Summary{}, domain.ErrUnauthenticated
	}
	if sinceDays <= 0 {
		sinceDays = 7
	}
	if sinceDays > 365 {
		sinceDays = 365
	}
	return s.Repo.Summary(ctx, caller.UserID, sinceDays)
}

// Ledger lists the caller's credit movements, newest first.
func (s *Service) Ledger(ctx context.Context, caller Caller, page, pageSize int) ([]*billing.LedgerEntry, error) {
	if !caller.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	return s.Accounts.Ledger(ctx, caller.UserID, page, pageSize)
}

// FailedAudits lists the caller's recent failed audits.
func (s *Service) FailedAudits(ctx context.Context, caller Caller, limit int) ([]*scanerrors.ScanError, error) {
	if !caller.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	if s.Failures == nil {
		return []*scanerrors.ScanError{}, nil
	}
	return s.Failures.ListByUser(ctx, caller.UserID, limit)
}

// helper
func (s *Service) cost() int {
	if s.Cost <= 0 {
		return DefaultCost
	}
	return s.Cost
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func (s *Service) logger() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}

func (s *Service) observe(status domain.Status, start time.Time) {
	if s.Metrics != nil {
		s.Metrics.AuditFinished(status, s.now().Sub(start))
	}
}

func intPtr(v int) *int { return &v }

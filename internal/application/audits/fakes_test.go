package audits

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"sync"
	"time"

	domain "github.com/bryanwahyu/automaton-a11y/internal/domain/audits"
	"github.com/bryanwahyu/automaton-a11y/internal/domain/billing"
	"github.com/bryanwahyu/automaton-a11y/internal/domain/scanerrors"
)

// ---------------------------------------------------------------------------
// store: in-memory users + ledger + audits sharing one lock, like a single DB
// ---------------------------------------------------------------------------

type memStore struct {
	mu       sync.Mutex
	credits  map[string]int
	ledger   []*billing.LedgerEntry
	audits   map[string]*domain.AuditResult
	order    []string
	nextID   int
	saveErr  error
	getCalls int
}

func newMemStore() *memStore {
	return &memStore{credits: map[string]int{}, audits: map[string]*domain.AuditResult{}}
}

func (m *memStore) GetAccount(ctx context.Context, userID string) (*billing.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credits[userID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return &billing.Account{UserID: userID, Credits: c}, nil
}

func (m *memStore) Ledger(ctx context.Context, userID string, page, pageSize int) ([]*billing.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*billing.LedgerEntry
	for i := len(m.ledger) - 1; i >= 0; i-- {
		if m.ledger[i].UserID == userID {
			out = append(out, m.ledger[i])
		}
	}
	return out, nil
}

func (m *memStore) SaveCharged(ctx context.Context, ch billing.Charge, a *domain.AuditResult) (string, billing.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return "", billing.Receipt{}, m.saveErr
	}
	before, ok := m.credits[ch.UserID]
	if !ok {
		return "", billing.Receipt{}, domain.ErrAccountNotFound
	}
	if before < ch.Cost {
		return "", billing.Receipt{}, &domain.InsufficientCreditsError{Required: ch.Cost, Available: before}
	}
	after := before - ch.Cost
	m.credits[ch.UserID] = after
	m.ledger = append(m.ledger, &billing.LedgerEntry{
		ID: int64(len(m.ledger) + 1), UserID: ch.UserID, Type: billing.EntryUsage,
		Amount: -ch.Cost, BalanceBefore: before, BalanceAfter: after,
		Description: ch.Description, ToolUsed: ch.Tool,
	})
	m.nextID++
	id := fmt.Sprintf("row-%d", m.nextID)
	stored := a.WithIdentity(domain.Persisted(id))
	report := *a.Report
	stored.Report = &report
	m.audits[id] = &stored
	m.order = append(m.order, id)
	return id, billing.Receipt{LedgerID: int64(len(m.ledger)), BalanceBefore: before, BalanceAfter: after}, nil
}

func (m *memStore) Get(ctx context.Context, userID, id string) (*domain.AuditResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	a, ok := m.audits[id]
	if !ok || a.UserID != userID {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) Latest(ctx context.Context, userID string, limit int) ([]*domain.AuditResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.AuditResult
	for _, id := range m.order {
		if a, ok := m.audits[id]; ok && a.UserID == userID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Delete(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.audits[id]; ok && a.UserID == userID {
		delete(m.audits, id)
	}
	return nil
}

func (m *memStore) Summary(ctx context.Context, userID string, sinceDays int) (domain.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := domain.Summary{Days: sinceDays}
	for _, a := range m.audits {
		if a.UserID != userID {
			continue
		}
		s.Audits++
		s.Counts.Critical += a.Critical
		s.Counts.Serious += a.Serious
		s.Counts.Moderate += a.Moderate
		s.Counts.Minor += a.Minor
		s.Counts.Total += a.Total
	}
	return s, nil
}

// ---------------------------------------------------------------------------
// scanner / summarizer / trials / clock
// ---------------------------------------------------------------------------

type fakeScanner struct {
	mu    sync.Mutex
	out   domain.ScanOutput
	err   error
	calls int
}

func (f *fakeScanner) Scan(ctx context.Context, url string) (domain.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.out, f.err
}

func (f *fakeScanner) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSummarizer struct {
	mu  sync.Mutex
	out string
	err error
	in  domain.SummaryInput
}

func (f *fakeSummarizer) Summarize(ctx context.Context, in domain.SummaryInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.in = in
	return f.out, f.err
}

type fakeTrials struct {
	mu      sync.Mutex
	status  domain.TrialStatus
	checks  int
	records int
}

func (f *fakeTrials) Check(ctx context.Context, tool, fingerprint string) (domain.TrialStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	return f.status, nil
}

func (f *fakeTrials) Record(ctx context.Context, tool, fingerprint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records++
	return nil
}

type fakeFailures struct {
	mu    sync.Mutex
	saved []*scanerrors.ScanError
}

func (f *fakeFailures) Save(ctx context.Context, e *scanerrors.ScanError) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, e)
	return nil
}

func (f *fakeFailures) ListByUser(ctx context.Context, userID string, limit int) ([]*scanerrors.ScanError, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*scanerrors.ScanError
	for _, e := range f.saved {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeArtifacts struct {
	mu      sync.Mutex
	keys    []string
	removed []string
}

func (f *fakeArtifacts) UploadJSON(ctx context.Context, key string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return "http://minio.local/audits/" + key, nil
}

func (f *fakeArtifacts) Remove(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, key)
	return nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// fakeResolver answers from hosts, and with a public address for anything else.
type fakeResolver struct {
	hosts map[string][]netip.Addr
}

func (f fakeResolver) LookupNetIP(_ context.Context, _, host string) ([]netip.Addr, error) {
	if addrs, ok := f.hosts[host]; ok {
		return addrs, nil
	}
	return []netip.Addr{netip.MustParseAddr("93.184.216.34")}, nil
}

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appaudits "github.com/bryanwahyu/automaton-a11y/internal/application/audits"
	domain "github.com/bryanwahyu/automaton-a11y/internal/domain/audits"
	"github.com/bryanwahyu/automaton-a11y/internal/domain/billing"
	"github.com/bryanwahyu/automaton-a11y/internal/domain/scanerrors"
	"github.com/bryanwahyu/automaton-a11y/internal/middleware"
)

const (
	jwtSecret  = "router-test-secret"
	serviceKey = "svc-key"
)

// fakeAudits records the last command and returns canned values.
type fakeAudits struct {
	lastRun    appaudits.RunAuditCommand
	lastCaller appaudits.Caller
	lastDays   int
	lastLimit  int
	lastPage   [2]int

	runResult appaudits.RunAuditResult
	runErr    error
	audit     *domain.AuditResult
	history   []*domain.AuditResult
	err       error
}

func (f *fakeAudits) Run(_ context.Context, cmd appaudits.RunAuditCommand) (appaudits.RunAuditResult, error) {
	f.lastRun = cmd
	return f.runResult, f.runErr
}

func (f *fakeAudits) Get(_ context.Context, c appaudits.Caller, _ string) (*domain.AuditResult, error) {
	f.lastCaller = c
	if f.err != nil {
		return nil, f.err
	}
	return f.audit, nil
}

func (f *fakeAudits) History(_ context.Context, c appaudits.Caller) ([]*domain.AuditResult, error) {
	f.lastCaller = c
	if !c.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	return f.history, f.err
}

func (f *fakeAudits) Delete(_ context.Context, c appaudits.Caller, _ string) error {
	f.lastCaller = c
	if !c.Authenticated() {
		return domain.ErrUnauthenticated
	}
	return f.err
}

func (f *fakeAudits) Summary(_ context.Context, c appaudits.Caller, days int) (domain.Summary, error) {
	f.lastCaller = c
	f.lastDays = days
	return domain.Summary{Days: days, Audits: 2}, f.err
}

func (f *fakeAudits) Ledger(_ context.Context, c appaudits.Caller, page, size int) ([]*billing.LedgerEntry, error) {
	f.lastCaller = c
	f.lastPage = [2]int{page, size}
	return []*billing.LedgerEntry{{ID: 1, UserID: c.UserID, Type: billing.EntryUsage, Amount: -5}}, f.err
}

func (f *fakeAudits) FailedAudits(_ context.Context, c appaudits.Caller, limit int) ([]*scanerrors.ScanError, error) {
	f.lastCaller = c
	f.lastLimit = limit
	return []*scanerrors.ScanError{{ID: 1, URL: "https://down.example", Phase: "scan"}}, f.err
}

func newTestServer(t *testing.T, svc *fakeAudits) http.Handler {
	t.Helper()
	auth, err := middleware.NewAuthenticator(middleware.AuthConfig{
		HMACSecret:  jwtSecret,
		ServiceKeys: []string{serviceKey},
	})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := middleware.NewMetrics()
	require.NoError(t, m.Register(reg))

	return NewRouter(Options{
		Audits:   svc,
		Auth:     auth,
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:  m,
		Gatherer: reg,
	})
}

func bearer(t *testing.T, sub string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return "Bearer " + tok
}

func do(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) middleware.ErrorDetail {
	t.Helper()
	var body middleware.ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func completedAudit() domain.AuditResult {
	return domain.AuditResult{
		ID:        domain.Persisted("17"),
		Status:    domain.StatusCompleted,
		URL:       "https://example.com",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Report: &domain.Report{
			Title:          "Example Domain",
			SeverityCounts: domain.SeverityCounts{Total: 1, Serious: 1},
			OverallScore:   95,
			Violations:     []domain.Violation{{ID: "v1", ViolationID: "color-contrast", Impact: domain.ImpactSerious}},
		},
	}
}

func TestRunAudit_Authenticated(t *testing.T) {
	svc := &fakeAudits{runResult: appaudits.RunAuditResult{Audit: completedAudit(), CreditsRemaining: intPtr(15)}}
	h := newTestServer(t, svc)

	rec := do(h, http.MethodPost, "/audits", `{"url":"https://example.com"}`, map[string]string{
		"Authorization": bearer(t, "user_1"),
		"User-Agent":    "test-agent",
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "15", rec.Header().Get(CreditsRemainingHeader))
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	var got map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "17", got["auditId"])
	assert.Equal(t, "completed", got["status"])
	assert.Equal(t, float64(95), got["overallScore"])
	assert.Equal(t, float64(1), got["seriousCount"])
	assert.Len(t, got["violations"], 1)

	assert.Equal(t, "https://example.com", svc.lastRun.URL)
	assert.Equal(t, "user_1", svc.lastRun.Caller.UserID)
	assert.NotEmpty(t, svc.lastRun.Caller.Fingerprint)
	assert.NotEmpty(t, svc.lastRun.RequestID)
	assert.False(t, svc.lastRun.UnlimitedAccess)
}

func TestRunAudit_UnlimitedRequiresServiceKey(t *testing.T) {
	svc := &fakeAudits{runResult: appaudits.RunAuditResult{Audit: completedAudit()}}
	h := newTestServer(t, svc)

	rec := do(h, http.MethodPost, "/audits", `{"url":"https://example.com","unlimitedAccess":true}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, svc.lastRun.UnlimitedAccess)
	assert.Empty(t, rec.Header().Get(CreditsRemainingHeader))

	rec = do(h, http.MethodPost, "/audits", `{"url":"https://example.com","unlimitedAccess":true}`, map[string]string{
		middleware.ServiceKeyHeader: serviceKey,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.lastRun.UnlimitedAccess)
}

func TestRunAudit_FailedAuditIsStill200(t *testing.T) {
	failed := domain.Failed(domain.NewEphemeral(), "https://down.example", time.Now(), errors.New("net::ERR_NAME_NOT_RESOLVED"))
	h := newTestServer(t, &fakeAudits{runResult: appaudits.RunAuditResult{Audit: failed}})

	rec := do(h, http.MethodPost, "/audits", `{"url":"https://down.example"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "failed", got["status"])
	assert.Equal(t, "net::ERR_NAME_NOT_RESOLVED", got["errorMessage"])
	assert.NotContains(t, got, "overallScore")
	assert.NotContains(t, got, "violations")
}

func TestRunAudit_ErrorMapping(t *testing.T) {
	resetAt := time.Now().Add(2 * time.Hour).UTC()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		check      func(t *testing.T, rec *httptest.ResponseRecorder, d middleware.ErrorDetail)
	}{
		{
			name:       "invalid url",
			err:        &domain.InputError{Message: domain.InvalidURLMessage},
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_input",
			check: func(t *testing.T, _ *httptest.ResponseRecorder, d middleware.ErrorDetail) {
				assert.Equal(t, domain.InvalidURLMessage, d.Message)
			},
		},
		{
			name:       "insufficient credits",
			err:        &domain.InsufficientCreditsError{Required: 5, Available: 2},
			wantStatus: http.StatusPaymentRequired,
			wantCode:   "insufficient_credits",
			check: func(t *testing.T, _ *httptest.ResponseRecorder, d middleware.ErrorDetail) {
				require.NotNil(t, d.Required)
				require.NotNil(t, d.Available)
				assert.Equal(t, 5, *d.Required)
				assert.Equal(t, 2, *d.Available)
			},
		},
		{
			name:       "trial exceeded",
			err:        &domain.TrialLimitError{Remaining: 0, ResetAt: resetAt},
			wantStatus: http.StatusForbidden,
			wantCode:   "trial_exceeded",
			check: func(t *testing.T, rec *httptest.ResponseRecorder, d middleware.ErrorDetail) {
				require.NotNil(t, d.ResetAt)
				assert.Equal(t, resetAt.Format(time.RFC3339), *d.ResetAt)
				require.NotNil(t, d.Remaining)
				assert.Equal(t, 0, *d.Remaining)
				secs, err := strconv.Atoi(rec.Header().Get("Retry-After"))
				require.NoError(t, err)
				assert.InDelta(t, 7200, secs, 5)
			},
		},
		{
			name:       "account not found",
			err:        domain.ErrAccountNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   "account_not_found",
		},
		{
			name:       "wrapped unexpected error",
			err:        errors.New("connection reset"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal_error",
			check: func(t *testing.T, _ *httptest.ResponseRecorder, d middleware.ErrorDetail) {
				assert.NotContains(t, d.Message, "connection reset")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, &fakeAudits{runErr: tt.err})
			rec := do(h, http.MethodPost, "/audits", `{"url":"https://example.com"}`, nil)

			require.Equal(t, tt.wantStatus, rec.Code)
			d := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, d.Code)
			if tt.check != nil {
				tt.check(t, rec, d)
			}
		})
	}
}

func TestRunAudit_BadBody(t *testing.T) {
	svc := &fakeAudits{}
	h := newTestServer(t, svc)

	for _, body := range []string{"", "{not json"} {
		rec := do(h, http.MethodPost, "/audits", body, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "bad_request", decodeError(t, rec).Code)
	}
	assert.Empty(t, svc.lastRun.URL)
}

func TestHistory(t *testing.T) {
	a := completedAudit()
	svc := &fakeAudits{history: []*domain.AuditResult{&a}}
	h := newTestServer(t, svc)

	rec := do(h, http.MethodGet, "/audits", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", decodeError(t, rec).Code)

	rec = do(h, http.MethodGet, "/audits", "", map[string]string{"Authorization": bearer(t, "user_1")})
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Audits []map[string]any `json:"audits"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Len(t, got.Audits, 1)
	assert.Equal(t, "Example Domain", got.Audits[0]["title"])

	svc.history = nil
	rec = do(h, http.MethodGet, "/audits", "", map[string]string{"Authorization": bearer(t, "user_1")})
	assert.JSONEq(t, `{"audits":[]}`, rec.Body.String())
}

func TestGetAudit(t *testing.T) {
	a := completedAudit()
	svc := &fakeAudits{audit: &a}
	h := newTestServer(t, svc)

	rec := do(h, http.MethodGet, "/audits/17", "", map[string]string{"Authorization": bearer(t, "user_1")})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user_1", svc.lastCaller.UserID)

	svc.err = domain.ErrNotFound
	rec = do(h, http.MethodGet, "/audits/18", "", map[string]string{"Authorization": bearer(t, "user_1")})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Code)

	rec = do(h, http.MethodGet, "/audits/bad;id", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteAudit(t *testing.T) {
	h := newTestServer(t, &fakeAudits{})

	rec := do(h, http.MethodDelete, "/audits/17", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(h, http.MethodDelete, "/audits/17", "", map[string]string{"Authorization": bearer(t, "user_1")})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
}

func TestQueryParamsAreClamped(t *testing.T) {
	svc := &fakeAudits{}
	h := newTestServer(t, svc)
	auth := map[string]string{"Authorization": bearer(t, "user_1")}

	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/audits/summary?days=9999", "", auth).Code)
	assert.Equal(t, 365, svc.lastDays)

	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/audits/failures?limit=abc", "", auth).Code)
	assert.Equal(t, 20, svc.lastLimit)

	rec := do(h, http.MethodGet, "/credits/ledger?page=0&page_size=500", "", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [2]int{1, 100}, svc.lastPage)
	assert.Contains(t, rec.Body.String(), `"entries"`)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t, &fakeAudits{})

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, "ok", do(h, http.MethodGet, "/healthz/live", "", nil).Body.String())
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/healthz/ready", "", nil).Code)

	do(h, http.MethodGet, "/audits", "", nil)
	rec := do(h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",route="/audits",status="401"} 1`)
}

func TestInvalidTokenRejectedBeforeHandler(t *testing.T) {
	svc := &fakeAudits{}
	h := newTestServer(t, svc)

	rec := do(h, http.MethodPost, "/audits", `{"url":"https://example.com"}`, map[string]string{"Authorization": "Bearer nope"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, svc.lastRun.URL)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t, &fakeAudits{})

	rec := do(h, http.MethodOptions, "/audits", "", map[string]string{
		"Origin":                         "https://app.example.com",
		"Access-Control-Request-Method":  http.MethodPost,
		"Access-Control-Request-Headers": "Authorization, Content-Type",
	})
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRunAudit_AnonymousFingerprintIgnoresSpoofedProxyHeaders(t *testing.T) {
	svc := &fakeAudits{runResult: appaudits.RunAuditResult{Audit: completedAudit()}}
	h := newTestServer(t, svc)

	seen := map[string]bool{}
	for _, ip := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		rec := do(h, http.MethodPost, "/audits", `{"url":"https://example.com"}`, map[string]string{
			"User-Agent":      "curl/8.0",
			"X-Forwarded-For": ip,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		seen[svc.lastRun.Caller.Fingerprint] = true
	}
	assert.Len(t, seen, 1)
}

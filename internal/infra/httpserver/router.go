package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appaudits "github.com/bryanwahyu/automaton-a11y/internal/application/audits"
	domain "github.com/bryanwahyu/automaton-a11y/internal/domain/audits"
	"github.com/bryanwahyu/automaton-a11y/internal/domain/billing"
	"github.com/bryanwahyu/automaton-a11y/internal/domain/scanerrors"
	"github.com/bryanwahyu/automaton-a11y/internal/middleware"
)

// CreditsRemainingHeader reports the caller's balance after a POST /audits.
const CreditsRemainingHeader = "X-Credits-Remaining"

// AuditService is what the handlers need from the audit use cases.
type AuditService interface {
	Run(ctx context.Context, cmd appaudits.RunAuditCommand) (appaudits.RunAuditResult, error)
	Get(ctx context.Context, caller appaudits.Caller, id string) (*domain.AuditResult, error)
	History(ctx context.Context, caller appaudits.Caller) ([]*domain.AuditResult, error)
	Delete(ctx context.Context, caller appaudits.Caller, id string) error
	Summary(ctx context.Context, caller appaudits.Caller, sinceDays int) (domain.Summary, error)
	Ledger(ctx context.Context, caller appaudits.Caller, page, pageSize int) ([]*billing.LedgerEntry, error)
	FailedAudits(ctx context.Context, caller appaudits.Caller, limit int) ([]*scanerrors.ScanError, error)
}

type Options struct {
	Audits AuditService
	Auth   *middleware.Authenticator
	Log    *slog.Logger

	// optional
	Metrics        *middleware.Metrics
	Gatherer       prometheus.Gatherer
	RateLimiter    *middleware.RateLimiter
	HealthCheckers middleware.HealthChecks
	AllowedOrigins []string
	TrustedProxies middleware.TrustedProxies
}

type Router struct {
	audits AuditService
	log    *slog.Logger
}

func NewRouter(opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	r := &Router{audits: opts.Audits, log: log.With("component", "httpserver")}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RealIP(opts.TrustedProxies))
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Logging(log))
	if opts.Metrics != nil {
		mux.Use(opts.Metrics.HTTP)
	}
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", middleware.ServiceKeyHeader, middleware.RequestIDHeader},
		ExposedHeaders: []string{CreditsRemainingHeader, middleware.RequestIDHeader, "Retry-After"},
		MaxAge:         300,
	}))

	mux.Get("/health", middleware.HealthHandler(opts.HealthCheckers))
	mux.Get("/healthz/live", middleware.LivenessHandler)
	mux.Get("/healthz/ready", middleware.ReadinessHandler(opts.HealthCheckers))
	if opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	mux.Group(func(api chi.Router) {
		if opts.Auth != nil {
			api.Use(opts.Auth.Middleware)
		}
		if opts.RateLimiter != nil {
			api.Use(middleware.RateLimit(opts.RateLimiter, opts.Metrics))
		}

		api.Post("/audits", r.wrap(r.handleRunAudit))
		api.Get("/audits", r.wrap(r.handleHistory))
		api.Get("/audits/summary", r.wrap(r.handleSummary))
		api.Get("/audits/failures", r.wrap(r.handleFailures))
		api.Get("/audits/{id}", r.wrap(r.handleGet))
		api.Delete("/audits/{id}", r.wrap(r.handleDelete))
		api.Get("/credits/ledger", r.wrap(r.handleLedger))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequest is returned by handlers for malformed requests.
type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			r.writeError(w, req, err)
		}
	}
}

func (r *Router) writeError(w http.ResponseWriter, req *http.Request, err error) {
	var (
		bad    *badRequest
		input  *domain.InputError
		credit *domain.InsufficientCreditsError
		trial  *domain.TrialLimitError
	)

	switch {
	case errors.As(err, &bad):
		middleware.WriteError(w, req, http.StatusBadRequest, middleware.ErrorDetail{Code: "bad_request", Message: bad.msg})
	case errors.As(err, &input):
		middleware.WriteError(w, req, http.StatusBadRequest, middleware.ErrorDetail{Code: "invalid_input", Message: input.Message})
	case errors.Is(err, domain.ErrInvalidInput):
		middleware.WriteError(w, req, http.StatusBadRequest, middleware.ErrorDetail{Code: "invalid_input", Message: domain.InvalidURLMessage})
	case errors.Is(err, domain.ErrUnauthenticated):
		middleware.WriteError(w, req, http.StatusUnauthorized, middleware.ErrorDetail{Code: "unauthenticated", Message: "authentication required"})
	case errors.As(err, &credit):
		middleware.WriteError(w, req, http.StatusPaymentRequired, middleware.ErrorDetail{
			Code:      "insufficient_credits",
			Message:   credit.Error(),
			Required:  intPtr(credit.Required),
			Available: intPtr(credit.Available),
		})
	case errors.As(err, &trial):
		resetAt := trial.ResetAt.UTC().Format(time.RFC3339)
		if wait := time.Until(trial.ResetAt); wait > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
		}
		middleware.WriteError(w, req, http.StatusForbidden, middleware.ErrorDetail{
			Code:      "trial_exceeded",
			Message:   "Free trial limit reached. Sign in to continue auditing.",
			Remaining: intPtr(trial.Remaining),
			ResetAt:   &resetAt,
		})
	case errors.Is(err, domain.ErrAccountNotFound):
		middleware.WriteError(w, req, http.StatusNotFound, middleware.ErrorDetail{Code: "account_not_found", Message: "account not found"})
	case errors.Is(err, domain.ErrNotFound):
		middleware.WriteError(w, req, http.StatusNotFound, middleware.ErrorDetail{Code: "not_found", Message: "audit not found"})
	default:
		r.log.Error("request failed",
			"request_id", middleware.GetRequestID(req.Context()),
			"path", req.URL.Path,
			"error", err,
		)
		middleware.WriteError(w, req, http.StatusInternalServerError, middleware.ErrorDetail{Code: "internal_error", Message: "internal server error"})
	}
}

func intPtr(v int) *int { return &v }

package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appaudits "github.com/bryanwahyu/automaton-a11y/internal/application/audits"
	domain "github.com/bryanwahyu/automaton-a11y/internal/domain/audits"
	"github.com/bryanwahyu/automaton-a11y/internal/middleware"
)

const maxBodyBytes = 64 << 10

func callerFrom(req *http.Request) appaudits.Caller {
	return appaudits.Caller{
		UserID:      middleware.GetUserID(req.Context()),
		Fingerprint: middleware.Fingerprint(req),
	}
}

func writeJSON(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}

// POST /audits
// Body: {"url": "https://example.com", "unlimitedAccess": false}
func (r *Router) handleRunAudit(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		URL             string `json:"url"`
		UnlimitedAccess bool   `json:"unlimitedAccess"`
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return &badRequest{msg: "request body is required"}
		}
		return &badRequest{msg: "invalid JSON body"}
	}

	cmd := appaudits.RunAuditCommand{
		URL: middleware.SanitizeString(body.URL),
		// unlimited hanya untuk service internal
		UnlimitedAccess: body.UnlimitedAccess && middleware.IsServiceCaller(req.Context()),
		Caller:          callerFrom(req),
		RequestID:       middleware.GetRequestID(req.Context()),
	}

	res, err := r.audits.Run(req.Context(), cmd)
	if err != nil {
		return err
	}
	if res.CreditsRemaining != nil {
		w.Header().Set(CreditsRemainingHeader, strconv.Itoa(*res.CreditsRemaining))
	}
	return writeJSON(w, res.Audit)
}

// GET /audits
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	list, err := r.audits.History(req.Context(), callerFrom(req))
	if err != nil {
		return err
	}
	if list == nil {
		list = []*domain.AuditResult{}
	}
	return writeJSON(w, map[string]any{"audits": list})
}

// GET /audits/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateAuditID(id); err != nil {
		return domain.ErrNotFound
	}

	audit, err := r.audits.Get(req.Context(), callerFrom(req), id)
	if err != nil {
		return err
	}
	return writeJSON(w, audit)
}

// DELETE /audits/{id}
func (r *Router) handleDelete(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateAuditID(id); err != nil {
		return &badRequest{msg: err.Error()}
	}

	if err := r.audits.Delete(req.Context(), callerFrom(req), id); err != nil {
		return err
	}
	return writeJSON(w, map[string]bool{"success": true})
}

// GET /audits/summary?days=7
func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) error {
	days := middleware.ValidateDays(middleware.QueryInt(req, "days"))

	summary, err := r.audits.Summary(req.Context(), callerFrom(req), days)
	if err != nil {
		return err
	}
	return writeJSON(w, summary)
}

// GET /audits/failures?limit=20
func (r *Router) handleFailures(w http.ResponseWriter, req *http.Request) error {
	limit := middleware.ValidateLimit(middleware.QueryInt(req, "limit"))

	list, err := r.audits.FailedAudits(req.Context(), callerFrom(req), limit)
	if err != nil {
		return err
	}
	return writeJSON(w, map[string]any{"failures": list})
}

// GET /credits/ledger?page=&page_size=
func (r *Router) handleLedger(w http.ResponseWriter, req *http.Request) error {
	page := middleware.ValidatePage(middleware.QueryInt(req, "page"))
	size := middleware.ValidateLimit(middleware.QueryInt(req, "page_size"))

	entries, err := r.audits.Ledger(req.Context(), callerFrom(req), page, size)
	if err != nil {
		return err
	}
	return writeJSON(w, map[string]any{
		"entries":  entries,
		"page":     page,
		"pageSize": size,
	})
}

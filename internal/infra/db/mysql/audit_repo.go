package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	domain "github.com/bryanwahyu/automaton-a11y/internal/domain/audits"
	"github.com/bryanwahyu/automaton-a11y/internal/domain/billing"
)

type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const auditColumns = `
id, client_id, user_id, url, COALESCE(title, url), COALESCE(domain, ''), status,
total_violations, critical_count, serious_count, moderate_count, minor_count,
overall_score, ai_summary, COALESCE(artifact_url, ''), COALESCE(error_message, ''),
processing_started_at, processing_completed_at, created_at`

// SaveCharged debit credits + ledger + audit + violations dalam 1 transaksi
func (r *AuditRepository) SaveCharged(ctx context.Context, ch billing.Charge, a *domain.AuditResult) (string, billing.Receipt, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", billing.Receipt{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// conditional debit; row tetap terkunci sampai commit
	res, err := tx.ExecContext(ctx,
		`UPDATE users SET credits = credits - ? WHERE id = ? AND credits >= ?`,
		ch.Cost, ch.UserID, ch.Cost,
	)
	if err != nil {
		return "", billing.Receipt{}, fmt.Errorf("debit credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", billing.Receipt{}, fmt.Errorf("debit credits: %w", err)
	}

	var balance int
	err = tx.QueryRowContext(ctx, `SELECT credits FROM users WHERE id = ? FOR UPDATE`, ch.UserID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return "", billing.Receipt{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return "", billing.Receipt{}, fmt.Errorf("read balance: %w", err)
	}
	if affected == 0 {
		return "", billing.Receipt{}, &domain.InsufficientCreditsError{Required: ch.Cost, Available: balance}
	}
	after := balance
	before := after + ch.Cost

	res, err = tx.ExecContext(ctx, `
INSERT INTO credit_ledger (user_id, type, amount, balance_before, balance_after, description, tool_used, created_at)
VALUES (?,?,?,?,?,?,?,?)`,
		ch.UserID, string(billing.EntryUsage), -ch.Cost, before, after, ch.Description, nullString(ch.Tool), a.CreatedAt,
	)
	if err != nil {
		return "", billing.Receipt{}, fmt.Errorf("insert ledger: %w", err)
	}
	ledgerID, err := res.LastInsertId()
	if err != nil {
		return "", billing.Receipt{}, fmt.Errorf("insert ledger: %w", err)
	}

	rep := a.Report
	if rep == nil {
		rep = &domain.Report{}
	}
	var aiSummary sql.NullString
	if rep.AISummary != nil {
		aiSummary = sql.NullString{String: *rep.AISummary, Valid: true}
	}

	res, err = tx.ExecContext(ctx, `
INSERT INTO audit_results
(client_id, user_id, url, title, domain, status,
 total_violations, critical_count, serious_count, moderate_count, minor_count,
 overall_score, ai_summary, artifact_url, error_message,
 processing_started_at, processing_completed_at, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID.String(), ch.UserID, a.URL, nullString(rep.Title), nullString(rep.Domain), stringOrDash(string(a.Status)),
		rep.Total, rep.Critical, rep.Serious, rep.Moderate, rep.Minor,
		rep.OverallScore, aiSummary, nullString(rep.ArtifactURL), nullString(a.ErrorMessage),
		nullTime(rep.ProcessingStartedAt), nullTime(rep.ProcessingCompletedAt), a.CreatedAt,
	)
	if err != nil {
		return "", billing.Receipt{}, fmt.Errorf("insert audit: %w", err)
	}
	auditID, err := res.LastInsertId()
	if err != nil {
		return "", billing.Receipt{}, fmt.Errorf("insert audit: %w", err)
	}

	if len(rep.Violations) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
INSERT INTO audit_violations
(id, audit_id, position, violation_id, description, impact, help_url,
 wcag_criteria, wcag_level, selector, html, target, fix_suggestion, ai_explanation)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
		if err != nil {
			return "", billing.Receipt{}, fmt.Errorf("prepare violations: %w", err)
		}
		defer stmt.Close()

		for i, v := range rep.Violations {
			vid := v.ID
			if vid == "" {
				vid = uuid.NewString()
			}
			if _, err := stmt.ExecContext(ctx,
				vid, auditID, i, v.ViolationID, v.Description, string(v.Impact), v.HelpURL,
				encodeList(v.WCAGCriteria), string(v.WCAGLevel), v.Selector, v.HTML, encodeList(v.Target),
				v.FixSuggestion, nullString(v.AIExplanation),
			); err != nil {
				return "", billing.Receipt{}, fmt.Errorf("insert violation %s: %w", v.ViolationID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", billing.Receipt{}, fmt.Errorf("commit: %w", err)
	}
	return strconv.FormatInt(auditID, 10), billing.Receipt{LedgerID: ledgerID, BalanceBefore: before, BalanceAfter: after}, nil
}

// Get by ID + owner, lengkap dengan violations
func (r *AuditRepository) Get(ctx context.Context, userID, id string) (*domain.AuditResult, error) {
	rowID, ok := parseRowID(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	q := `SELECT ` + auditColumns + `
FROM audit_results
WHERE id=? AND user_id=? LIMIT 1;
`
	a, err := scanAudit(r.db.QueryRowContext(ctx, q, rowID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if a.Report != nil {
		vs, err := r.violations(ctx, rowID)
		if err != nil {
			return nil, err
		}
		a.Violations = vs
	}
	return a, nil
}

func (r *AuditRepository) violations(ctx context.Context, auditID int64) ([]domain.Violation, error) {
	const q = `
SELECT id, violation_id, description, impact, help_url, wcag_criteria, wcag_level,
       selector, html, target, fix_suggestion, COALESCE(ai_explanation, '')
FROM audit_violations
WHERE audit_id=?
ORDER BY position ASC;
`
	rows, err := r.db.QueryContext(ctx, q, auditID)
	if err != nil {
		return nil, fmt.Errorf("query violations: %w", err)
	}
	defer rows.Close()

	out := []domain.Violation{}
	for rows.Next() {
		var v domain.Violation
		var impact, level, criteria, target string
		if err := rows.Scan(
			&v.ID, &v.ViolationID, &v.Description, &impact, &v.HelpURL, &criteria, &level,
			&v.Selector, &v.HTML, &target, &v.FixSuggestion, &v.AIExplanation,
		); err != nil {
			return nil, err
		}
		v.Impact = domain.ParseImpact(impact)
		v.WCAGLevel = domain.WCAGLevel(level)
		v.WCAGCriteria = decodeList(criteria)
		v.Target = decodeList(target)
		out = append(out, v)
	}
	return out, rows.Err()
}

// Latest audits per user, tanpa violations
func (r *AuditRepository) Latest(ctx context.Context, userID string, limit int) ([]*domain.AuditResult, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT ` + auditColumns + `
FROM audit_results
WHERE user_id=? ORDER BY created_at DESC, id DESC LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*domain.AuditResult{}
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Delete hapus audit milik user; violations ikut lewat ON DELETE CASCADE
func (r *AuditRepository) Delete(ctx context.Context, userID, id string) error {
	rowID, ok := parseRowID(id)
	if !ok {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM audit_results WHERE id=? AND user_id=?`, rowID, userID)
	return err
}

// Summary counts audit results since N days
func (r *AuditRepository) Summary(ctx context.Context, userID string, sinceDays int) (domain.Summary, error) {
	if sinceDays <= 0 {
		sinceDays = 7
	}
	cut := time.Now().AddDate(0, 0, -sinceDays)
	const q = `
SELECT COUNT(*)                          AS total_audits,
       COALESCE(SUM(total_violations),0) AS total,
       COALESCE(SUM(critical_count),0)   AS critical,
       COALESCE(SUM(serious_count),0)    AS serious,
       COALESCE(SUM(moderate_count),0)   AS moderate,
       COALESCE(SUM(minor_count),0)      AS minor
FROM audit_results
WHERE user_id=? AND created_at >= ?;
`
	s := domain.Summary{Days: sinceDays}
	err := r.db.QueryRowContext(ctx, q, userID, cut).Scan(
		&s.Audits, &s.Counts.Total, &s.Counts.Critical, &s.Counts.Serious, &s.Counts.Moderate, &s.Counts.Minor,
	)
	if err != nil {
		return domain.Summary{}, err
	}
	return s, nil
}

func scanAudit(row rowScanner) (*domain.AuditResult, error) {
	var (
		rowID              int64
		clientID, status   string
		rep                domain.Report
		aiSummary          sql.NullString
		started, completed sql.NullTime
		a                  domain.AuditResult
	)
	if err := row.Scan(
		&rowID, &clientID, &a.UserID, &a.URL, &rep.Title, &rep.Domain, &status,
		&rep.Total, &rep.Critical, &rep.Serious, &rep.Moderate, &rep.Minor,
		&rep.OverallScore, &aiSummary, &rep.ArtifactURL, &a.ErrorMessage,
		&started, &completed, &a.CreatedAt,
	); err != nil {
		return nil, err
	}
	a.ID = domain.Persisted(strconv.FormatInt(rowID, 10))
	a.Status = domain.Status(status)
	if a.Status != domain.StatusCompleted {
		return &a, nil
	}
	if aiSummary.Valid {
		rep.AISummary = &aiSummary.String
	}
	rep.ProcessingStartedAt = started.Time
	rep.ProcessingCompletedAt = completed.Time
	a.Report = &rep
	return &a, nil
}

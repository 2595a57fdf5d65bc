package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domain "github.com/bryanwahyu/automaton-a11y/internal/domain/audits"
	"github.com/bryanwahyu/automaton-a11y/internal/domain/billing"
)

type AccountRepository struct{ db *sql.DB }

func NewAccountRepository(db *sql.DB) *AccountRepository { return &AccountRepository{db: db} }

func (r *AccountRepository) GetAccount(ctx context.Context, userID string) (*billing.Account, error) {
	const q = `SELECT id, email, credits, created_at FROM users WHERE id = $1 LIMIT 1;`
	var a billing.Account
	err := r.db.QueryRowContext(ctx, q, userID).Scan(&a.UserID, &a.Email, &a.Credits, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Ledger newest first (classic offset pagination)
func (r *AccountRepository) Ledger(ctx context.Context, userID string, page, pageSize int) ([]*billing.LedgerEntry, error) {
	limit, offset := pageBounds(page, pageSize)
	const q = `
SELECT id, user_id, type, amount, balance_before, balance_after, description, COALESCE(tool_used, ''), created_at
FROM credit_ledger
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3;`
	rows, err := r.db.QueryContext(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	out := []*billing.LedgerEntry{}
	for rows.Next() {
		var e billing.LedgerEntry
		var typ string
		if err := rows.Scan(&e.ID, &e.UserID, &typ, &e.Amount, &e.BalanceBefore, &e.BalanceAfter, &e.Description, &e.ToolUsed, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		e.Type = billing.EntryType(typ)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Grant adds credits, creating the account when needed, and records a purchase entry.
func (r *AccountRepository) Grant(ctx context.Context, userID, email string, amount int, description string) (billing.Receipt, error) {
	if amount <= 0 {
		return billing.Receipt{}, fmt.Errorf("grant amount must be positive, got %d", amount)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return billing.Receipt{}, err
	}
	defer tx.Rollback() //nolint:errcheck

	var after int
	err = tx.QueryRowContext(ctx, `
INSERT INTO users (id, email, credits) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET
 credits = users.credits + EXCLUDED.credits,
 email = CASE WHEN EXCLUDED.email = '' THEN users.email ELSE EXCLUDED.email END
RETURNING credits;`, userID, email, amount).Scan(&after)
	if err != nil {
		return billing.Receipt{}, fmt.Errorf("credit account: %w", err)
	}
	before := after - amount

	var ledgerID int64
	err = tx.QueryRowContext(ctx, `
INSERT INTO credit_ledger (user_id, type, amount, balance_before, balance_after, description)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id;`, userID, billing.EntryPurchase, amount, before, after, description).Scan(&ledgerID)
	if err != nil {
		return billing.Receipt{}, fmt.Errorf("insert ledger: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return billing.Receipt{}, err
	}
	return billing.Receipt{LedgerID: ledgerID, BalanceBefore: before, BalanceAfter: after}, nil
}

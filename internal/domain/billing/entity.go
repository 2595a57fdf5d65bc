package billing

import (
	"context"
	"time"
)

// EntryType of a ledger movement
type EntryType string

const (
	EntryUsage    EntryType = "usage"
	EntryPurchase EntryType = "purchase"
	EntryRefund   EntryType = "refund"
)

// Account is the caller's row in the users table.
type Account struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email,omitempty"`
	Credits   int       `json:"credits"`
	CreatedAt time.Time `json:"createdAt"`
}

// LedgerEntry is an append-only record of a balance change.
type LedgerEntry struct {
	ID            int64     `json:"id"`
	UserID        string    `json:"userId"`
	Type          EntryType `json:"type"`
	Amount        int       `json:"amount"` // negative = debit
	BalanceBefore int       `json:"balanceBefore"`
	BalanceAfter  int       `json:"balanceAfter"`
	Description   string    `json:"description"`
	ToolUsed      string    `json:"toolUsed,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Charge describes a usage debit.
type Charge struct {
	UserID      string
	Cost        int
	Description string
	Tool        string
}

// Receipt is the outcome of a successful debit.
type Receipt struct {
	LedgerID      int64
	BalanceBefore int
	BalanceAfter  int
}

// Accounts port
type Accounts interface {
	GetAccount(ctx context.Context, userID string) (*Account, error)
	Ledger(ctx context.Context, userID string, page, pageSize int) ([]*LedgerEntry, error)
}

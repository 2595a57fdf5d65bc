package scanerrors

import (
	"context"
)

// Repository defines persistence for audit failures
type Repository interface {
	Save(ctx context.Context, e *ScanError) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*ScanError, error)
}

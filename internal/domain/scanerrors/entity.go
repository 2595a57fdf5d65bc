package scanerrors

import "time"

// ScanError represents a persisted audit failure entry
type ScanError struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"userId"`
	AuditID     string    `json:"auditId"`
	URL         string    `json:"url"`
	Phase       string    `json:"phase,omitempty"` // scan | persist
	Message     string    `json:"message"`
	DetailsJSON string    `json:"detailsJson,omitempty"` // raw JSON string
	CreatedAt   time.Time `json:"createdAt"`
}

package audits

import (
	"errors"
	"fmt"
	"time"
)

// InvalidURLMessage is shown to users when the target cannot be audited.
const InvalidURLMessage = "Invalid URL. Please enter a full URL, e.g. https://example.com"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrAccountNotFound       = errors.New("account not found")
	ErrInsufficientCredits   = errors.New("insufficient credits")
	ErrTrialLimitExceeded    = errors.New("trial limit exceeded")
	ErrNotFound              = errors.New("audit not found")
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrSummarizerUnavailable = errors.New("AI analysis unavailable: no API key configured")
)

// InputError carries a user-facing validation message.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

func (e *InputError) Unwrap() error { return ErrInvalidInput }

// InsufficientCreditsError reports the cost of an audit and what the caller has.
type InsufficientCreditsError struct {
	Required  int
	Available int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: %d required, %d available", e.Required, e.Available)
}

func (e *InsufficientCreditsError) Unwrap() error { return ErrInsufficientCredits }

// TrialLimitError is returned to anonymous callers whose free audits are used up.
type TrialLimitError struct {
	Remaining int
	ResetAt   time.Time
}

func (e *TrialLimitError) Error() string {
	return fmt.Sprintf("free trial limit reached, resets at %s", e.ResetAt.UTC().Format(time.RFC3339))
}

func (e *TrialLimitError) Unwrap() error { return ErrTrialLimitExceeded }

package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// Input validation and sanitization utilities

var auditIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

// ValidateAuditID checks the path id before it reaches a repository.
func ValidateAuditID(id string) error {
	if id == "" {
		return fmt.Errorf("audit ID cannot be empty")
	}
	if !auditIDPattern.MatchString(id) {
		return fmt.Errorf("invalid audit ID format")
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}

// ValidateDays validates days parameter
func ValidateDays(days int) int {
	if days <= 0 {
		return 7 // default
	}
	if days > 365 {
		return 365 // max 1 year
	}
	return days
}

// ValidatePage: halaman mulai dari 1
func ValidatePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

// QueryInt reads an integer query parameter, returning 0 when absent or malformed.
func QueryInt(r *http.Request, name string) int {
	v, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(name)))
	if err != nil {
		return 0
	}
	return v
}

// Fingerprint identifies an anonymous caller for trial counting.
func Fingerprint(r *http.Request) string {
	sum := sha256.Sum256([]byte(ClientIP(r) + "|" + r.UserAgent()))
	return hex.EncodeToString(sum[:16])
}

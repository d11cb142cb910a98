// Package validator checks user-supplied download parameters before any
// network activity takes place.
package validator

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the only accepted date format (YYYY-MM-DD).
const DateLayout = "2006-01-02"

// ParseDate parses a calendar date in YYYY-MM-DD form. Out-of-range parts such
// as month 13 or day 45 are rejected.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format '%s', use YYYY-MM-DD", s)
	}
	return t, nil
}

// ValidateTicker rejects empty symbols and symbols that would change the
// request path.
func ValidateTicker(ticker string) error {
	if strings.TrimSpace(ticker) == "" {
		return fmt.Errorf("ticker is required")
	}
	if strings.ContainsAny(ticker, "/?#") {
		return fmt.Errorf("invalid ticker '%s': must not contain '/', '?' or '#'", ticker)
	}
	return nil
}

// ValidatePageSize requires a positive page size.
func ValidatePageSize(limit int) error {
	if limit <= 0 {
		return fmt.Errorf("limit must be greater than 0, got %d", limit)
	}
	return nil
}

// ValidateMaxPages accepts zero (fetch nothing) and positive ceilings.
func ValidateMaxPages(maxPages int) error {
	if maxPages < 0 {
		return fmt.Errorf("max pages must not be negative, got %d", maxPages)
	}
	return nil
}

// DefaultOutputPath returns {ticker}_{date}.csv.
func DefaultOutputPath(ticker, date string) string {
	return fmt.Sprintf("%s_%s.csv", ticker, date)
}

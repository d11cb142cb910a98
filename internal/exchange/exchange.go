// Package exchange defines the trade fetching interface and its REST provider implementation.
//
// A fetcher turns one TradesRequest into the full list of trades the provider has for
// that instrument and date, following the provider's pagination links page by page.
// Fetching is strictly sequential; there is no retry and no fan-out.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/johnayoung/go-futures-trades/internal/errors"
	"github.com/johnayoung/go-futures-trades/internal/models"
	"github.com/johnayoung/go-futures-trades/internal/validator"
)

// DefaultPageSize is the number of results requested per page when the caller
// does not choose one.
const DefaultPageSize = 50000

// SortOrder is the timestamp ordering requested from the provider.
type SortOrder string

const (
	SortAscending  SortOrder = "timestamp.asc"
	SortDescending SortOrder = "timestamp.desc"
)

// ParseSortOrder validates s against the supported orders.
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(s) {
	case SortAscending, SortDescending:
		return SortOrder(s), nil
	default:
		return "", fmt.Errorf("invalid sort order %q, must be one of: %s, %s", s, SortAscending, SortDescending)
	}
}

// Termination explains why pagination stopped without a fatal error.
type Termination string

const (
	// TerminationExhausted means the last page had no next link.
	TerminationExhausted Termination = "exhausted"
	// TerminationCapped means the page ceiling was reached.
	TerminationCapped Termination = "capped"
	// TerminationStatus means the provider returned a non-OK status.
	TerminationStatus Termination = "status"
)

// TradeFetcher retrieves every trade for one instrument and date.
//
// Implementations return a FetchResult on all non-fatal terminations (exhausted,
// capped, non-OK status), possibly with zero trades. Transport and decoding
// failures are returned as classified errors and no partial result is returned.
type TradeFetcher interface {
	FetchTrades(ctx context.Context, req TradesRequest) (*FetchResult, error)
}

// TradesRequest holds the per-run inputs of a download.
type TradesRequest struct {
	Ticker   string
	Date     string // YYYY-MM-DD
	Limit    int    // results per page
	Sort     SortOrder
	MaxPages *int // nil means no ceiling; 0 means no request is made
}

// NewTradesRequest returns a request with the default page size and sort order.
func NewTradesRequest(ticker, date string) TradesRequest {
	return TradesRequest{
		Ticker: ticker,
		Date:   date,
		Limit:  DefaultPageSize,
		Sort:   SortDescending,
	}
}

// WithMaxPages returns a copy of r with a page ceiling.
func (r TradesRequest) WithMaxPages(n int) TradesRequest {
	r.MaxPages = &n
	return r
}

// Validate checks every field and reports all problems as one ValidationError.
func (r *TradesRequest) Validate() error {
	var problems []error

	if err := validator.ValidateTicker(r.Ticker); err != nil {
		problems = append(problems, err)
	}
	if _, err := validator.ParseDate(r.Date); err != nil {
		problems = append(problems, err)
	}
	if err := validator.ValidatePageSize(r.Limit); err != nil {
		problems = append(problems, err)
	}
	if _, err := ParseSortOrder(string(r.Sort)); err != nil {
		problems = append(problems, err)
	}
	if r.MaxPages != nil {
		if err := validator.ValidateMaxPages(*r.MaxPages); err != nil {
			problems = append(problems, err)
		}
	}

	if len(problems) == 0 {
		return nil
	}
	msgs := make([]string, len(problems))
	for i, p := range problems {
		msgs[i] = p.Error()
	}
	return apperrors.NewValidationError("exchange", "validate_request",
		errors.New(strings.Join(msgs, "; ")))
}

// reachedCeiling reports whether pages fetched so far meets the ceiling.
func (r *TradesRequest) reachedCeiling(pages int) bool {
	return r.MaxPages != nil && pages >= *r.MaxPages
}

// FetchResult is the outcome of a non-fatal pagination run.
type FetchResult struct {
	Trades      []models.Trade
	Pages       int         // requests issued
	Termination Termination // why pagination stopped
	LastStatus  string      // status field of the last page received
}

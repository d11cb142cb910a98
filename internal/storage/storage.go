// Package storage defines how accumulated trades are persisted.
// The production backend writes a CSV file; an in-memory backend captures the
// same tables for dry runs and tests.
package storage

import (
	"context"
	"fmt"

	apperrors "github.com/johnayoung/go-futures-trades/internal/errors"
	"github.com/johnayoung/go-futures-trades/internal/models"
)

const component = "storage"

// TradeWriter persists a run's trades to path and reports the number of data
// rows written. An empty trade list is a successful no-op that writes nothing.
type TradeWriter interface {
	WriteTrades(ctx context.Context, trades []models.Trade, path string) (int, error)
}

// SchemaPolicy selects how the column header is derived from the records.
type SchemaPolicy string

const (
	// SchemaFirst uses the keys of the first record, in their original order.
	// Keys that only appear in later records are dropped from the output.
	SchemaFirst SchemaPolicy = "first"

	// SchemaUnion uses every key seen across all records, in order of first
	// appearance. Nothing is dropped.
	SchemaUnion SchemaPolicy = "union"
)

// ParseSchemaPolicy validates s against the supported policies.
func ParseSchemaPolicy(s string) (SchemaPolicy, error) {
	switch SchemaPolicy(s) {
	case SchemaFirst, SchemaUnion:
		return SchemaPolicy(s), nil
	default:
		return "", fmt.Errorf("invalid schema policy %q, must be one of: %s, %s", s, SchemaFirst, SchemaUnion)
	}
}

// Header returns the column names for trades under policy. It returns nil for
// an empty list.
func Header(trades []models.Trade, policy SchemaPolicy) []string {
	if len(trades) == 0 {
		return nil
	}
	if policy != SchemaUnion {
		return trades[0].Keys()
	}

	seen := make(map[string]struct{})
	var header []string
	for _, trade := range trades {
		for _, key := range trade.Keys() {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			header = append(header, key)
		}
	}
	return header
}

// Row renders trade's values in header order. Columns the trade lacks are
// empty cells and keys outside the header are ignored.
func Row(trade models.Trade, header []string) []string {
	row := make([]string, len(header))
	for i, key := range header {
		row[i] = trade.String(key)
	}
	return row
}

// StorageError describes a failed operation on an output file.
type StorageError struct {
	// Operation is the file operation that failed (e.g., "create", "write")
	Operation string

	// Path is the output file involved
	Path string

	// Err is the underlying error that caused the failure
	Err error
}

func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("storage operation %s on %s failed: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("storage operation %s failed: %v", e.Operation, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// newIOError wraps a StorageError in the IO classification used for exit codes.
func newIOError(operation, path string, err error) *apperrors.ClassifiedError {
	return apperrors.NewIOError(component, operation, &StorageError{
		Operation: operation,
		Path:      path,
		Err:       err,
	}).WithContext("path", path)
}

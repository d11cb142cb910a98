package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/johnayoung/go-futures-trades/internal/logger"
	"github.com/johnayoung/go-futures-trades/internal/models"
)

// CSVWriter writes trades as a comma-delimited UTF-8 file with one header row.
type CSVWriter struct {
	policy SchemaPolicy
	create func(path string) (io.WriteCloser, error)
	logger *slog.Logger
}

// NewCSVWriter creates a CSV writer. An empty policy means SchemaFirst.
func NewCSVWriter(policy SchemaPolicy, log *slog.Logger) *CSVWriter {
	if policy == "" {
		policy = SchemaFirst
	}
	if log == nil {
		log = slog.Default()
	}
	return &CSVWriter{policy: policy, create: createFile, logger: log}
}

func createFile(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

// Policy returns the header policy in use.
func (w *CSVWriter) Policy() SchemaPolicy {
	return w.policy
}

// WriteTrades implements TradeWriter. The file at path is created or truncated.
// With no trades, no file is touched. A failed write removes the file.
func (w *CSVWriter) WriteTrades(ctx context.Context, trades []models.Trade, path string) (int, error) {
	log := logger.FromContext(ctx, w.logger)

	if len(trades) == 0 {
		log.WarnContext(ctx, "no data to write", "path", path)
		return 0, nil
	}

	if w.policy == SchemaFirst {
		if dropped := droppedKeys(trades, trades[0].Keys()); len(dropped) > 0 {
			log.DebugContext(ctx, "columns absent from the first record were dropped", "columns", dropped)
		}
	}

	f, err := w.create(path)
	if err != nil {
		return 0, newIOError("create", path, err)
	}

	rows, err := w.Encode(f, trades)
	if err != nil {
		f.Close()
		w.discard(ctx, path)
		return 0, newIOError("write", path, err)
	}
	if err := f.Close(); err != nil {
		w.discard(ctx, path)
		return 0, newIOError("close", path, err)
	}

	log.InfoContext(ctx, "saved trades",
		"rows", rows,
		"path", path,
		"schema", string(w.policy))
	return rows, nil
}

// Encode writes the header and one row per trade to out and returns the
// number of data rows.
func (w *CSVWriter) Encode(out io.Writer, trades []models.Trade) (int, error) {
	header := Header(trades, w.policy)

	cw := csv.NewWriter(out)
	if err := cw.Write(header); err != nil {
		return 0, fmt.Errorf("failed to write header: %w", err)
	}
	for i, trade := range trades {
		if err := cw.Write(Row(trade, header)); err != nil {
			return i, fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("failed to flush csv: %w", err)
	}
	return len(trades), nil
}

// discard removes a partially written output file.
func (w *CSVWriter) discard(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.FromContext(ctx, w.logger).WarnContext(ctx, "failed to remove partial output",
			"path", path,
			"error", err)
	}
}

// droppedKeys lists keys that appear in some record but not in header.
func droppedKeys(trades []models.Trade, header []string) []string {
	inHeader := make(map[string]struct{}, len(header))
	for _, h := range header {
		inHeader[h] = struct{}{}
	}

	var dropped []string
	for _, trade := range trades {
		for _, key := range trade.Keys() {
			if _, ok := inHeader[key]; ok {
				continue
			}
			inHeader[key] = struct{}{}
			dropped = append(dropped, key)
		}
	}
	return dropped
}

package storage

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/johnayoung/go-futures-trades/internal/logger"
	"github.com/johnayoung/go-futures-trades/internal/models"
)

var (
	_ TradeWriter = (*MemoryWriter)(nil)
	_ TradeWriter = (*CSVWriter)(nil)
)

// Table is a rendered header plus its data rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// MemoryWriter renders trades exactly as CSVWriter would but keeps the tables
// in memory, keyed by path. It is safe for concurrent use.
type MemoryWriter struct {
	mu     sync.RWMutex
	policy SchemaPolicy
	tables map[string]Table
	closed bool
	logger *slog.Logger
}

// NewMemoryWriter creates an empty in-memory writer.
func NewMemoryWriter(policy SchemaPolicy, log *slog.Logger) *MemoryWriter {
	if policy == "" {
		policy = SchemaFirst
	}
	if log == nil {
		log = slog.Default()
	}
	return &MemoryWriter{
		policy: policy,
		tables: make(map[string]Table),
		logger: log,
	}
}

// WriteTrades implements TradeWriter.
func (m *MemoryWriter) WriteTrades(ctx context.Context, trades []models.Trade, path string) (int, error) {
	if ctx.Err() != nil {
		return 0, newIOError("write", path, ctx.Err())
	}

	log := logger.FromContext(ctx, m.logger)
	if len(trades) == 0 {
		log.WarnContext(ctx, "no data to write", "path", path)
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, newIOError("write", path, errors.New("writer is closed"))
	}

	header := Header(trades, m.policy)
	table := Table{Header: header, Rows: make([][]string, len(trades))}
	for i, trade := range trades {
		table.Rows[i] = Row(trade, header)
	}
	m.tables[path] = table

	log.InfoContext(ctx, "captured trades in memory", "rows", len(trades), "path", path)
	return len(trades), nil
}

// Table returns the table last written to path.
func (m *MemoryWriter) Table(path string) (Table, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[path]
	return t, ok
}

// Paths lists every path written so far, sorted.
func (m *MemoryWriter) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, 0, len(m.tables))
	for p := range m.tables {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Close drops all captured tables. Further writes fail.
func (m *MemoryWriter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.tables = nil
	return nil
}

package collector

import (
	"sync/atomic"
	"time"

	"github.com/johnayoung/go-futures-trades/internal/exchange"
)

// Metrics is a point-in-time view of a collector's counters.
type Metrics struct {
	JobsCompleted   int64
	JobsFailed      int64
	PagesFetched    int64
	TradesCollected int64
	RowsWritten     int64
	FetchDuration   time.Duration
	WriteDuration   time.Duration
	Uptime          time.Duration
}

// metricsCollector tracks download statistics
type metricsCollector struct {
	// Atomic counters for thread-safe updates
	jobsCompleted   int64
	jobsFailed      int64
	pagesFetched    int64
	tradesCollected int64
	rowsWritten     int64

	// nanoseconds
	fetchNanos int64
	writeNanos int64

	startTime time.Time
}

func newMetricsCollector() *metricsCollector {
	return &metricsCollector{
		startTime: time.Now(),
	}
}

// recordFetch adds one fetch outcome. result is nil when the fetch failed.
func (m *metricsCollector) recordFetch(duration time.Duration, result *exchange.FetchResult) {
	atomic.AddInt64(&m.fetchNanos, duration.Nanoseconds())
	if result == nil {
		return
	}
	atomic.AddInt64(&m.pagesFetched, int64(result.Pages))
	atomic.AddInt64(&m.tradesCollected, int64(len(result.Trades)))
}

func (m *metricsCollector) recordWrite(duration time.Duration, rows int) {
	atomic.AddInt64(&m.writeNanos, duration.Nanoseconds())
	atomic.AddInt64(&m.rowsWritten, int64(rows))
}

func (m *metricsCollector) recordJob(success bool) {
	if success {
		atomic.AddInt64(&m.jobsCompleted, 1)
		return
	}
	atomic.AddInt64(&m.jobsFailed, 1)
}

func (m *metricsCollector) snapshot() Metrics {
	return Metrics{
		JobsCompleted:   atomic.LoadInt64(&m.jobsCompleted),
		JobsFailed:      atomic.LoadInt64(&m.jobsFailed),
		PagesFetched:    atomic.LoadInt64(&m.pagesFetched),
		TradesCollected: atomic.LoadInt64(&m.tradesCollected),
		RowsWritten:     atomic.LoadInt64(&m.rowsWritten),
		FetchDuration:   time.Duration(atomic.LoadInt64(&m.fetchNanos)),
		WriteDuration:   time.Duration(atomic.LoadInt64(&m.writeNanos)),
		Uptime:          time.Since(m.startTime),
	}
}

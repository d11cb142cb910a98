// Package collector orchestrates one trade download: fetch every page for a
// ticker and date, summarize what came back, and hand the records to a writer.
//
// The flow is strictly sequential. A fetch or write failure marks the job as
// failed and is returned unchanged so callers can classify it.
package collector

import (
	"context"
	"errors"
	"log/slog"
	"time"

	apperrors "github.com/johnayoung/go-futures-trades/internal/errors"
	"github.com/johnayoung/go-futures-trades/internal/exchange"
	"github.com/johnayoung/go-futures-trades/internal/logger"
	"github.com/johnayoung/go-futures-trades/internal/models"
	"github.com/johnayoung/go-futures-trades/internal/storage"
)

// Collector runs download jobs against a fetcher and a writer.
type Collector struct {
	fetcher exchange.TradeFetcher
	writer  storage.TradeWriter
	metrics *metricsCollector
	logger  *slog.Logger
}

// Result is the outcome of a successful run.
type Result struct {
	Job     *models.DownloadJob
	Fetch   *exchange.FetchResult
	Summary models.TradeSummary
}

// New creates a collector. A nil logger falls back to slog.Default.
func New(fetcher exchange.TradeFetcher, writer storage.TradeWriter, log *slog.Logger) *Collector {
	if log == nil {
		log = slog.Default()
	}
	return &Collector{
		fetcher: fetcher,
		writer:  writer,
		metrics: newMetricsCollector(),
		logger:  log,
	}
}

// Run downloads all trades described by req and writes them to outputPath.
// The run ID already on ctx, if any, becomes the job ID.
func (c *Collector) Run(ctx context.Context, req exchange.TradesRequest, outputPath string) (*Result, error) {
	runID := logger.GetRunID(ctx)
	if runID == "" {
		ctx, runID = logger.NewRunContext(ctx)
	}
	ctx = logger.WithTicker(ctx, req.Ticker)
	ctx = logger.WithDate(ctx, req.Date)
	log := logger.FromContext(ctx, c.logger)

	job := models.NewDownloadJob(runID, req.Ticker, req.Date, outputPath)
	if err := job.Start(); err != nil {
		return nil, err
	}
	log.InfoContext(ctx, "starting trade download",
		"output", outputPath,
		"limit", req.Limit,
		"sort", string(req.Sort))

	var fetched *exchange.FetchResult
	fetchStart := time.Now()
	err := logger.TimedOperation(ctx, log, "fetch_trades", func() error {
		var err error
		fetched, err = c.fetcher.FetchTrades(logger.WithOperation(ctx, "fetch_trades"), req)
		return err
	})
	c.metrics.recordFetch(time.Since(fetchStart), fetched)
	if err != nil {
		return nil, c.fail(ctx, job, err)
	}
	job.RecordFetch(fetched.Pages, len(fetched.Trades), string(fetched.Termination))

	summary := models.Summarize(fetched.Trades)
	log.InfoContext(ctx, "download summary",
		append([]interface{}{
			"pages", fetched.Pages,
			"termination", string(fetched.Termination),
		}, summary.LogAttrs()...)...)

	var rows int
	writeStart := time.Now()
	err = logger.TimedOperation(ctx, log, "write_trades", func() error {
		var err error
		rows, err = c.writer.WriteTrades(logger.WithOperation(ctx, "write_trades"), fetched.Trades, outputPath)
		return err
	})
	c.metrics.recordWrite(time.Since(writeStart), rows)
	if err != nil {
		return nil, c.fail(ctx, job, err)
	}

	if err := job.Complete(rows); err != nil {
		return nil, c.fail(ctx, job, err)
	}
	c.metrics.recordJob(true)

	log.InfoContext(ctx, "trade download completed",
		"job_id", job.ID,
		"rows", rows,
		"duration", job.Duration())

	return &Result{Job: job, Fetch: fetched, Summary: summary}, nil
}

// Metrics returns a snapshot of the collector's counters.
func (c *Collector) Metrics() Metrics {
	return c.metrics.snapshot()
}

// fail marks the job failed and returns err unchanged. The error itself is
// reported once by the caller; this only leaves a debug trail with its context.
func (c *Collector) fail(ctx context.Context, job *models.DownloadJob, err error) error {
	job.Fail(err)
	c.metrics.recordJob(false)

	attrs := []interface{}{"job_id", job.ID}
	var ce *apperrors.ClassifiedError
	if errors.As(err, &ce) {
		attrs = append(attrs, ce.LogAttrs()...)
	} else {
		attrs = append(attrs, "error_type", string(apperrors.GetErrorType(err)))
	}
	logger.FromContext(ctx, c.logger).DebugContext(ctx, "trade download failed", attrs...)
	return err
}

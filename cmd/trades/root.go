package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/johnayoung/go-futures-trades/internal/collector"
	"github.com/johnayoung/go-futures-trades/internal/config"
	apperrors "github.com/johnayoung/go-futures-trades/internal/errors"
	"github.com/johnayoung/go-futures-trades/internal/exchange"
	"github.com/johnayoung/go-futures-trades/internal/logger"
	"github.com/johnayoung/go-futures-trades/internal/storage"
	"github.com/johnayoung/go-futures-trades/internal/validator"
)

// downloadOptions holds the parsed command line.
type downloadOptions struct {
	apiKey     string
	limit      int
	sort       string
	output     string
	maxPages   int
	configPath string
	schema     string
	dryRun     bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts downloadOptions

	cmd := &cobra.Command{
		Use:   AppName + " TICKER DATE",
		Short: "Download futures trades for one contract and date",
		Long: `Download every trade for a futures contract on a trading date (YYYY-MM-DD)
from the Polygon REST API and save the records as a CSV file.`,
		Example: `  trades ESZ5 2025-08-22 --api-key KEY
  trades ESZ5 2025-08-22 --api-key KEY --max-pages 2 --output es.csv`,
		Version:       Version,
		Args:          cobra.ExactArgs(2),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, args[0], args[1], stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.Flags()
	flags.StringVar(&opts.apiKey, "api-key", "", "Polygon API key (required)")
	flags.IntVar(&opts.limit, "limit", exchange.DefaultPageSize, "results per page")
	flags.StringVar(&opts.sort, "sort", string(exchange.SortDescending), "sort order: timestamp.asc or timestamp.desc")
	flags.StringVar(&opts.output, "output", "", "output CSV path (default {ticker}_{date}.csv)")
	flags.IntVar(&opts.maxPages, "max-pages", 0, "maximum pages to fetch (default unbounded)")
	flags.StringVar(&opts.configPath, "config", ConfigFile, "YAML configuration file")
	flags.StringVar(&opts.schema, "schema", string(storage.SchemaFirst), "CSV header policy: first or union")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "fetch and summarize without writing a file")
	_ = cmd.MarkFlagRequired("api-key")

	return cmd
}

func (o *downloadOptions) run(cmd *cobra.Command, ticker, date string, stdout, stderr io.Writer) error {
	// The date is checked before anything touches the network.
	if _, err := validator.ParseDate(date); err != nil {
		return apperrors.NewValidationError("cli", "parse_date", err)
	}
	if err := validator.ValidateTicker(ticker); err != nil {
		return apperrors.NewValidationError("cli", "validate_ticker", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	bootstrap := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg, err := config.NewConfigManager(o.configPath, EnvFile, bootstrap).LoadConfig(ctx)
	if err != nil {
		return apperrors.NewConfigurationError("cli", "load_config", err)
	}

	logManager, err := newLoggerManager(cfg.Logging, stdout, stderr)
	if err != nil {
		return apperrors.NewConfigurationError("cli", "init_logging", err)
	}
	defer logManager.Close()

	req, err := o.tradesRequest(cmd, cfg, ticker, date)
	if err != nil {
		return err
	}

	schema := cfg.Output.SchemaPolicy
	if cmd.Flags().Changed("schema") {
		schema = o.schema
	}
	policy, err := storage.ParseSchemaPolicy(schema)
	if err != nil {
		return apperrors.NewValidationError("cli", "parse_schema", err)
	}

	output := o.output
	if output == "" {
		output = validator.DefaultOutputPath(ticker, date)
	}

	adapter := exchange.NewPolygonAdapterWithLogger(o.apiKey, cfg.Provider, logManager.GetComponentLogger("exchange"))
	defer adapter.Close()

	var writer storage.TradeWriter
	if o.dryRun {
		writer = storage.NewMemoryWriter(policy, logManager.GetComponentLogger("storage"))
	} else {
		writer = storage.NewCSVWriter(policy, logManager.GetComponentLogger("storage"))
	}

	ctx, runID := logger.NewRunContext(ctx)
	cliLog := logManager.GetComponentLogger("cli")
	cliLog.DebugContext(ctx, "starting run",
		"run_id", runID,
		"version", Version,
		"dry_run", o.dryRun)

	c := collector.New(adapter, writer, logManager.GetComponentLogger("collector"))
	result, err := c.Run(ctx, req, output)
	if err != nil {
		return err
	}

	m := c.Metrics()
	cliLog.DebugContext(ctx, "run finished",
		"pages_fetched", m.PagesFetched,
		"trades_collected", m.TradesCollected,
		"rows_written", m.RowsWritten,
		"fetch_duration", m.FetchDuration,
		"write_duration", m.WriteDuration)

	switch {
	case o.dryRun:
		fmt.Fprintf(stdout, "Fetched %d trades in %d pages (dry run, nothing written)\n",
			result.Job.RecordsCollected, result.Job.Pages)
	case result.Job.RowsWritten > 0:
		fmt.Fprintf(stdout, "Saved %d trades to %s\n", result.Job.RowsWritten, output)
	default:
		fmt.Fprintln(stdout, "No data to write")
	}
	return nil
}

// tradesRequest merges flags over configuration. Flags win only when set
// explicitly on the command line.
func (o *downloadOptions) tradesRequest(cmd *cobra.Command, cfg *config.AppConfig, ticker, date string) (exchange.TradesRequest, error) {
	req := exchange.NewTradesRequest(ticker, date)

	req.Limit = cfg.Download.Limit
	if cmd.Flags().Changed("limit") {
		req.Limit = o.limit
	}

	sort := cfg.Download.Sort
	if cmd.Flags().Changed("sort") {
		sort = o.sort
	}
	order, err := exchange.ParseSortOrder(sort)
	if err != nil {
		return req, apperrors.NewValidationError("cli", "parse_sort", err)
	}
	req.Sort = order

	// Absence of the flag means unbounded; an explicit 0 means fetch nothing.
	if cmd.Flags().Changed("max-pages") {
		req = req.WithMaxPages(o.maxPages)
	}

	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

// newLoggerManager routes console logging to the command's own streams.
func newLoggerManager(cfg config.LoggingConfig, stdout, stderr io.Writer) (*logger.LoggerManager, error) {
	switch cfg.Output {
	case "file":
		return logger.NewLoggerManager(cfg)
	case "stdout":
		return logger.NewLoggerManagerWithWriter(cfg, stdout), nil
	default:
		return logger.NewLoggerManagerWithWriter(cfg, stderr), nil
	}
}

// Futures Trades Downloader CLI
// Downloads every trade for one futures contract and trading date from the
// Polygon REST API, following pagination links, and saves them as CSV.
//
// Usage:
//
//	trades ESZ5 2025-08-22 --api-key KEY
//	trades ESZ5 2025-08-22 --api-key KEY --limit 1000 --sort timestamp.asc --max-pages 3
//	trades ESZ5 2025-08-22 --api-key KEY --output es.csv --schema union
//
// Settings not given as flags come from trades.yaml, .env and TRADES_*
// environment variables.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	apperrors "github.com/johnayoung/go-futures-trades/internal/errors"
)

// CLI version information
const (
	Version    = "1.0.0"
	AppName    = "trades"
	ConfigFile = "trades.yaml"
	EnvFile    = ".env"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI with args and returns the process exit code. Every
// failure is reported as a single "Error: ..." line on stderr.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return apperrors.ExitCode(err)
	}
	return apperrors.ExitSuccess
}

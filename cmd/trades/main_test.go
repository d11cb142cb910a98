package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// providerStub serves the given bodies in order, one per request.
func providerStub(t *testing.T, bodies ...string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&hits, 1))
		if n > len(bodies) {
			http.Error(w, "unexpected request", http.StatusTeapot)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, expandServerURL(bodies[n-1], "http://"+r.Host))
	}))
	t.Cleanup(srv.Close)

	t.Setenv("TRADES_BASE_URL", srv.URL)
	t.Setenv("TRADES_LOG_LEVEL", "error")
	return srv, &hits
}

// expandServerURL replaces the {server} placeholder so next_url points back at the stub.
func expandServerURL(body, serverURL string) string {
	return strings.ReplaceAll(body, "{server}", serverURL)
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_DownloadsAllPages(t *testing.T) {
	_, hits := providerStub(t,
		`{"status":"OK","results":[{"a":1,"b":2}],"next_url":"{server}/futures/vX/trades/ESZ5?cursor=p2"}`,
		`{"status":"OK","results":[{"a":3,"c":4}]}`,
	)
	output := filepath.Join(t.TempDir(), "out.csv")

	code, stdout, stderr := runCLI(t, "ESZ5", "2025-08-22", "--api-key", "k", "--output", output)
	require.Equal(t, 0, code, stderr)

	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
	assert.Contains(t, stdout, "Saved 2 trades to "+output)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n3,\n", string(data))
}

func TestRun_UnionSchema(t *testing.T) {
	providerStub(t, `{"status":"OK","results":[{"a":1,"b":2},{"a":3,"c":4}]}`)
	output := filepath.Join(t.TempDir(), "out.csv")

	code, _, stderr := runCLI(t, "ESZ5", "2025-08-22", "--api-key", "k", "--output", output, "--schema", "union")
	require.Equal(t, 0, code, stderr)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "a,b,c\n1,2,\n3,,4\n", string(data))
}

func TestRun_InvalidDateMakesNoRequest(t *testing.T) {
	_, hits := providerStub(t)

	for _, date := range []string{"2025-13-45", "08/22/2025", "tomorrow"} {
		t.Run(date, func(t *testing.T) {
			code, _, stderr := runCLI(t, "ESZ5", date, "--api-key", "k")
			assert.Equal(t, 1, code)
			assert.Contains(t, stderr, "Error: ")
			assert.Contains(t, stderr, "use YYYY-MM-DD")
		})
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(hits))
}

func TestRun_UsageErrors(t *testing.T) {
	_, hits := providerStub(t)

	tests := []struct {
		name    string
		args    []string
		message string
	}{
		{"missing api key", []string{"ESZ5", "2025-08-22"}, "api-key"},
		{"missing date", []string{"ESZ5", "--api-key", "k"}, "accepts 2 arg(s)"},
		{"bad sort", []string{"ESZ5", "2025-08-22", "--api-key", "k", "--sort", "price"}, "invalid sort order"},
		{"bad limit", []string{"ESZ5", "2025-08-22", "--api-key", "k", "--limit", "0"}, "limit must be greater than 0"},
		{"negative max pages", []string{"ESZ5", "2025-08-22", "--api-key", "k", "--max-pages", "-2"}, "max pages must not be negative"},
		{"bad schema", []string{"ESZ5", "2025-08-22", "--api-key", "k", "--schema", "strict"}, "invalid schema policy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			assert.Equal(t, 1, code)
			assert.Contains(t, stderr, tt.message)
		})
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(hits))
}

func TestRun_MaxPages(t *testing.T) {
	t.Run("stops at the ceiling", func(t *testing.T) {
		_, hits := providerStub(t,
			`{"status":"OK","results":[{"n":1}],"next_url":"{server}/next?cursor=2"}`,
			`{"status":"OK","results":[{"n":2}],"next_url":"{server}/next?cursor=3"}`,
		)
		output := filepath.Join(t.TempDir(), "out.csv")

		code, _, stderr := runCLI(t, "ESZ5", "2025-08-22", "--api-key", "k", "--output", output, "--max-pages", "2")
		require.Equal(t, 0, code, stderr)
		assert.Equal(t, int32(2), atomic.LoadInt32(hits))

		data, err := os.ReadFile(output)
		require.NoError(t, err)
		assert.Equal(t, "n\n1\n2\n", string(data))
	})

	t.Run("zero fetches nothing", func(t *testing.T) {
		_, hits := providerStub(t)
		output := filepath.Join(t.TempDir(), "out.csv")

		code, stdout, stderr := runCLI(t, "ESZ5", "2025-08-22", "--api-key", "k", "--output", output, "--max-pages", "0")
		require.Equal(t, 0, code, stderr)
		assert.Equal(t, int32(0), atomic.LoadInt32(hits))
		assert.Contains(t, stdout, "No data to write")

		_, err := os.Stat(output)
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})
}

func TestRun_NoDataIsSuccess(t *testing.T) {
	providerStub(t, `{"status":"OK","results":[]}`)
	output := filepath.Join(t.TempDir(), "out.csv")

	code, stdout, stderr := runCLI(t, "ESZ5", "2025-08-22", "--api-key", "k", "--output", output)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "No data to write")

	_, err := os.Stat(output)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRun_DebugLogsRunMetrics(t *testing.T) {
	providerStub(t,
		`{"status":"OK","results":[{"n":1}],"next_url":"{server}/next?cursor=2"}`,
		`{"status":"OK","results":[{"n":2},{"n":3}]}`,
	)
	t.Setenv("TRADES_LOG_LEVEL", "debug")
	output := filepath.Join(t.TempDir(), "out.csv")

	code, _, stderr := runCLI(t, "ESZ5", "2025-08-22", "--api-key", "k", "--output", output)
	require.Equal(t, 0, code, stderr)

	var finished string
	for _, line := range strings.Split(stderr, "\n") {
		if strings.Contains(line, "run finished") {
			finished = line
		}
	}
	require.NotEmpty(t, finished, stderr)
	assert.Contains(t, finished, "pages_fetched=2")
	assert.Contains(t, finished, "trades_collected=3")
	assert.Contains(t, finished, "rows_written=3")
}

func TestRun_NonOKStatusKeepsEarlierPages(t *testing.T) {
	_, hits := providerStub(t,
		`{"status":"OK","results":[{"n":1}],"next_url":"{server}/next?cursor=2"}`,
		`{"status":"ERROR","error":"plan limit","results":[{"n":2}]}`,
	)
	output := filepath.Join(t.TempDir(), "out.csv")

	code, _, stderr := runCLI(t, "ESZ5", "2025-08-22", "--api-key", "k", "--output", output)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "n\n1\n", string(data))
}

func TestRun_TransportFailureWritesNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == "" {
			_, _ = fmt.Fprintf(w, `{"status":"OK","results":[{"n":1}],"next_url":"http://%s/next?cursor=2"}`, r.Host)
			return
		}
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()
	t.Setenv("TRADES_BASE_URL", srv.URL)
	t.Setenv("TRADES_LOG_LEVEL", "info")

	output := filepath.Join(t.TempDir(), "out.csv")
	code, _, stderr := runCLI(t, "ESZ5", "2025-08-22", "--api-key", "secret-key", "--output", output)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "502")
	assert.NotContains(t, stderr, "secret-key")

	// At the default level the failure is reported exactly once.
	var reports []string
	for _, line := range strings.Split(stderr, "\n") {
		if strings.Contains(line, "upstream unavailable") {
			reports = append(reports, line)
		}
	}
	require.Len(t, reports, 1, stderr)
	assert.True(t, strings.HasPrefix(reports[0], "Error: "), reports[0])

	_, err := os.Stat(output)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRun_MalformedResponse(t *testing.T) {
	providerStub(t, `not json`)

	code, _, stderr := runCLI(t, "ESZ5", "2025-08-22", "--api-key", "k", "--output", filepath.Join(t.TempDir(), "out.csv"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "malformed_response")
}

func TestRun_UnwritableOutput(t *testing.T) {
	providerStub(t, `{"status":"OK","results":[{"n":1}]}`)
	output := filepath.Join(t.TempDir(), "no-such-dir", "out.csv")

	code, _, stderr := runCLI(t, "ESZ5", "2025-08-22", "--api-key", "k", "--output", output)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "io error")
}

func TestRun_DryRun(t *testing.T) {
	providerStub(t, `{"status":"OK","results":[{"n":1},{"n":2}]}`)
	output := filepath.Join(t.TempDir(), "out.csv")

	code, stdout, stderr := runCLI(t, "ESZ5", "2025-08-22", "--api-key", "k", "--output", output, "--dry-run")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Fetched 2 trades in 1 pages")

	_, err := os.Stat(output)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRun_ConfigFile(t *testing.T) {
	var gotLimit, gotSort string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		gotSort = r.URL.Query().Get("sort")
		_, _ = io.WriteString(w, `{"status":"OK","results":[]}`)
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "trades.yaml")
	cfg := fmt.Sprintf("provider:\n  base_url: %s\ndownload:\n  limit: 250\n  sort: timestamp.asc\nlogging:\n  level: error\n", srv.URL)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	code, _, stderr := runCLI(t, "ESZ5", "2025-08-22", "--api-key", "k", "--config", cfgPath,
		"--output", filepath.Join(dir, "out.csv"))
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "250", gotLimit)
	assert.Equal(t, "timestamp.asc", gotSort)

	// Explicit flags override the file.
	code, _, stderr = runCLI(t, "ESZ5", "2025-08-22", "--api-key", "k", "--config", cfgPath,
		"--limit", "10", "--output", filepath.Join(dir, "out.csv"))
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "10", gotLimit)
}

func TestRun_Version(t *testing.T) {
	code, stdout, _ := runCLI(t, "--version")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, Version)
}

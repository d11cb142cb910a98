package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/johnayoung/go-futures-trades/internal/config"
	apperrors "github.com/johnayoung/go-futures-trades/internal/errors"
	"github.com/johnayoung/go-futures-trades/internal/logger"
	"github.com/johnayoung/go-futures-trades/internal/models"
	"golang.org/x/time/rate"
)

const (
	// Polygon REST API base URL
	polygonBaseURL = "https://api.polygon.io"

	// Futures trades listing, parameterized by ticker
	tradesEndpoint = "/futures/vX/trades/%s"

	// Credential query parameter. The provider leaves it out of next_url links.
	apiKeyParam = "apiKey"

	// How much of an error response body is kept for the diagnostic
	maxErrorBodyBytes = 512

	component = "exchange"
)

var _ TradeFetcher = (*PolygonAdapter)(nil)

// PolygonAdapter fetches futures trades from the Polygon REST API.
//
// The adapter owns its HTTP client for its whole lifetime; call Close when done
// to release pooled connections.
type PolygonAdapter struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	baseURL     string
	apiKey      string
	userAgent   string
	logger      *slog.Logger
}

// NewPolygonAdapter creates an adapter from provider configuration.
func NewPolygonAdapter(apiKey string, cfg config.ProviderConfig) *PolygonAdapter {
	return NewPolygonAdapterWithLogger(apiKey, cfg, slog.Default())
}

// NewPolygonAdapterWithLogger creates an adapter with a custom logger.
func NewPolygonAdapterWithLogger(apiKey string, cfg config.ProviderConfig, log *slog.Logger) *PolygonAdapter {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = polygonBaseURL
	}

	// Pacing only applies when the provider plan publishes a request quota.
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	if log == nil {
		log = slog.Default()
	}

	return &PolygonAdapter{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout(),
		},
		rateLimiter: limiter,
		baseURL:     baseURL,
		apiKey:      apiKey,
		userAgent:   cfg.UserAgent,
		logger:      log,
	}
}

// Close releases idle connections held by the adapter's client.
func (c *PolygonAdapter) Close() {
	c.httpClient.CloseIdleConnections()
}

// FetchTrades implements the TradeFetcher interface.
//
// The first request carries apiKey, timestamp, limit and sort. Every later
// request goes to the provider's next_url exactly as given, with only apiKey
// added. A page whose status is not OK ends pagination before its results are
// looked at, so none of that page's records are kept.
func (c *PolygonAdapter) FetchTrades(ctx context.Context, req TradesRequest) (*FetchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if c.apiKey == "" {
		return nil, apperrors.NewValidationError(component, "validate_request", fmt.Errorf("api key is required"))
	}

	log := logger.FromContext(ctx, c.logger)
	result := &FetchResult{Trades: make([]models.Trade, 0)}

	if req.reachedCeiling(0) {
		log.InfoContext(ctx, "max pages is zero, no request issued")
		result.Termination = TerminationCapped
		return result, nil
	}

	pageURL := c.firstPageURL(req)
	for {
		result.Pages++
		page, err := c.fetchPage(ctx, pageURL, result.Pages)
		if err != nil {
			return nil, err
		}
		result.LastStatus = page.Status

		if !page.IsOK() {
			log.WarnContext(ctx, "API returned non-OK status, stopping pagination",
				"status", page.Status,
				"page", result.Pages,
				"request_id", page.RequestID,
				"provider_message", page.ProviderMessage(),
				"total", len(result.Trades))
			result.Termination = TerminationStatus
			return result, nil
		}

		result.Trades = append(result.Trades, page.Results...)
		log.InfoContext(ctx, "page retrieved",
			"page", result.Pages,
			"page_size", len(page.Results),
			"total", len(result.Trades))

		if !page.HasNext() {
			log.InfoContext(ctx, "no more pages available", "pages", result.Pages)
			result.Termination = TerminationExhausted
			return result, nil
		}

		if req.reachedCeiling(result.Pages) {
			log.InfoContext(ctx, "reached max pages limit", "max_pages", *req.MaxPages)
			result.Termination = TerminationCapped
			return result, nil
		}

		pageURL, err = c.nextPageURL(page.NextURL)
		if err != nil {
			return nil, err
		}
		log.DebugContext(ctx, "next page URL found, continuing pagination",
			"next_url", apperrors.RedactQueryParam(pageURL, apiKeyParam))
	}
}

// firstPageURL builds {base}/futures/vX/trades/{ticker} with the full parameter set.
func (c *PolygonAdapter) firstPageURL(req TradesRequest) string {
	params := url.Values{}
	params.Set(apiKeyParam, c.apiKey)
	params.Set("timestamp", req.Date)
	params.Set("limit", strconv.Itoa(req.Limit))
	params.Set("sort", string(req.Sort))

	return c.baseURL + fmt.Sprintf(tradesEndpoint, url.PathEscape(req.Ticker)) + "?" + params.Encode()
}

// nextPageURL appends the credential to the provider's link without touching
// the existing query text, which holds the opaque cursor.
func (c *PolygonAdapter) nextPageURL(next string) (string, error) {
	u, err := url.Parse(next)
	if err != nil {
		return "", apperrors.NewMalformedResponseError(component, "next_page_url",
			fmt.Errorf("invalid next_url: %w", err))
	}

	if !u.IsAbs() {
		base, err := url.Parse(c.baseURL)
		if err != nil {
			return "", apperrors.NewMalformedResponseError(component, "next_page_url", err)
		}
		u = base.ResolveReference(u)
	}

	if u.Query().Has(apiKeyParam) {
		return u.String(), nil
	}

	credential := apiKeyParam + "=" + url.QueryEscape(c.apiKey)
	if u.RawQuery == "" {
		u.RawQuery = credential
	} else {
		u.RawQuery += "&" + credential
	}
	return u.String(), nil
}

// fetchPage issues one GET and decodes the page. Any failure is fatal for the run.
func (c *PolygonAdapter) fetchPage(ctx context.Context, pageURL string, page int) (*models.PageResponse, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, apperrors.NewTransportError(component, "fetch_page", fmt.Errorf("rate limit wait failed: %w", err)).
			WithContext("page", page)
	}

	c.logger.DebugContext(ctx, "requesting page",
		"page", page,
		"url", apperrors.RedactQueryParam(pageURL, apiKeyParam))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, apperrors.NewMalformedResponseError(component, "fetch_page",
			fmt.Errorf("failed to create request: %w", apperrors.RedactURLError(err, apiKeyParam))).
			WithContext("page", page)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewTransportError(component, "fetch_page",
			apperrors.RedactURLError(err, apiKeyParam)).
			WithContext("page", page)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, apperrors.NewHTTPStatusError(component, "fetch_page", resp.StatusCode, string(body)).
			WithContext("page", page)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewTransportError(component, "fetch_page",
			fmt.Errorf("failed to read response body: %w", err)).
			WithContext("page", page)
	}

	var pageResp models.PageResponse
	if err := json.Unmarshal(body, &pageResp); err != nil {
		return nil, apperrors.NewMalformedResponseError(component, "decode_page", err).
			WithContext("page", page)
	}

	return &pageResp, nil
}

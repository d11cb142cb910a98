// Package errors provides the classified error taxonomy used across the trade downloader.
// Every failure that reaches the CLI is a ClassifiedError, so the top level can pick an
// exit code and print a single-line diagnostic without inspecting error strings.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
	"time"
)

// ErrorType represents the classification of an error
type ErrorType string

const (
	ErrorTypeValidation        ErrorType = "validation"         // Malformed user input, caught before any network activity
	ErrorTypeTransport         ErrorType = "transport"          // Connection failures, timeouts, non-2xx responses
	ErrorTypeMalformedResponse ErrorType = "malformed_response" // Body not parseable as the expected page shape
	ErrorTypeIO                ErrorType = "io"                 // Output file cannot be created or written
	ErrorTypeConfiguration     ErrorType = "configuration"      // Invalid configuration file or environment
	ErrorTypeUnknown           ErrorType = "unknown"            // Unclassified errors
)

// Exit codes returned by the CLI.
const (
	ExitSuccess = 0
	ExitFailure = 1
)

// Sentinels for errors.Is comparisons. Matching is by Type only.
var (
	ErrValidation        = &ClassifiedError{Type: ErrorTypeValidation}
	ErrTransport         = &ClassifiedError{Type: ErrorTypeTransport}
	ErrMalformedResponse = &ClassifiedError{Type: ErrorTypeMalformedResponse}
	ErrIO                = &ClassifiedError{Type: ErrorTypeIO}
	ErrConfiguration     = &ClassifiedError{Type: ErrorTypeConfiguration}
)

// ClassifiedError represents an error with metadata for handling decisions
type ClassifiedError struct {
	Err       error                  `json:"error"`
	Type      ErrorType              `json:"type"`
	Component string                 `json:"component"`
	Operation string                 `json:"operation"`
	Context   map[string]interface{} `json:"context"`
	Timestamp time.Time              `json:"timestamp"`
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Err == nil {
		return string(ce.Type)
	}
	if ce.Operation == "" {
		return fmt.Sprintf("%s error: %v", ce.Type, ce.Err)
	}
	return fmt.Sprintf("%s error in %s: %v", ce.Type, ce.Operation, ce.Err)
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Is checks if the error is of the specified type
func (ce *ClassifiedError) Is(target error) bool {
	if t, ok := target.(*ClassifiedError); ok {
		return ce.Type == t.Type
	}
	return errors.Is(ce.Err, target)
}

// WithContext attaches a key/value pair to the error and returns it for chaining.
func (ce *ClassifiedError) WithContext(key string, value interface{}) *ClassifiedError {
	if ce.Context == nil {
		ce.Context = make(map[string]interface{})
	}
	ce.Context[key] = value
	return ce
}

// LogAttrs flattens the error into slog-style key/value pairs. Keys are
// prefixed so they never shadow the logger's own component and operation.
func (ce *ClassifiedError) LogAttrs() []interface{} {
	attrs := []interface{}{
		"error_type", string(ce.Type),
		"error_component", ce.Component,
		"error_operation", ce.Operation,
	}
	keys := make([]string, 0, len(ce.Context))
	for k := range ce.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, k, ce.Context[k])
	}
	return attrs
}

func newClassified(errorType ErrorType, component, operation string, err error) *ClassifiedError {
	return &ClassifiedError{
		Err:       err,
		Type:      errorType,
		Component: component,
		Operation: operation,
		Context:   make(map[string]interface{}),
		Timestamp: time.Now(),
	}
}

// NewValidationError classifies err as a user input problem.
func NewValidationError(component, operation string, err error) *ClassifiedError {
	return newClassified(ErrorTypeValidation, component, operation, err)
}

// NewTransportError classifies err as a network or HTTP failure. Timeouts and
// cancellations are recorded in the error context.
func NewTransportError(component, operation string, err error) *ClassifiedError {
	ce := newClassified(ErrorTypeTransport, component, operation, err)
	if isTimeoutError(err) {
		ce.WithContext("timeout", true)
	}
	if errors.Is(err, context.Canceled) {
		ce.WithContext("canceled", true)
	}
	return ce
}

// NewHTTPStatusError builds a TransportError for a non-2xx response.
func NewHTTPStatusError(component, operation string, statusCode int, body string) *ClassifiedError {
	body = strings.TrimSpace(body)
	err := fmt.Errorf("unexpected HTTP status %d", statusCode)
	if body != "" {
		err = fmt.Errorf("unexpected HTTP status %d: %s", statusCode, collapseWhitespace(body))
	}
	return newClassified(ErrorTypeTransport, component, operation, err).
		WithContext("status_code", statusCode)
}

// NewMalformedResponseError classifies err as an unparseable provider response.
func NewMalformedResponseError(component, operation string, err error) *ClassifiedError {
	return newClassified(ErrorTypeMalformedResponse, component, operation, err)
}

// NewIOError classifies err as an output file failure.
func NewIOError(component, operation string, err error) *ClassifiedError {
	return newClassified(ErrorTypeIO, component, operation, err)
}

// NewConfigurationError classifies err as a configuration problem.
func NewConfigurationError(component, operation string, err error) *ClassifiedError {
	return newClassified(ErrorTypeConfiguration, component, operation, err)
}

// isTimeoutError checks if the error is timeout-related
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// RedactURLError rewrites the URL carried by a *url.Error so the given query
// parameter value never reaches a log line or the terminal.
func RedactURLError(err error, param string) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = RedactQueryParam(urlErr.URL, param)
	}
	return err
}

// RedactQueryParam replaces the value of param in rawURL with "REDACTED".
func RedactQueryParam(rawURL, param string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" {
		return rawURL
	}
	parts := strings.Split(u.RawQuery, "&")
	for i, part := range parts {
		key, _, _ := strings.Cut(part, "=")
		if key == param {
			parts[i] = param + "=REDACTED"
		}
	}
	u.RawQuery = strings.Join(parts, "&")
	return u.String()
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// GetErrorType extracts the error type from a classified error anywhere in the chain
func GetErrorType(err error) ErrorType {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Type
	}
	return ErrorTypeUnknown
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	return ExitFailure
}

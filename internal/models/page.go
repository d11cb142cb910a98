package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StatusOK is the only page status that allows pagination to continue.
const StatusOK = "OK"

// PageResponse is one page of the provider's trades listing.
//
// Status is required; Results and NextURL are optional. Decoding fails when a
// field is present with the wrong JSON type, so a truncated or foreign payload
// never reads as an empty, final page.
type PageResponse struct {
	Status  string  `json:"status"`
	Results []Trade `json:"results"`
	NextURL string  `json:"next_url,omitempty"`

	// Diagnostic fields, reported but never acted on.
	RequestID string `json:"request_id,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
}

// IsOK reports whether the provider accepted the request.
func (p *PageResponse) IsOK() bool {
	return p.Status == StatusOK
}

// HasNext reports whether the provider supplied a follow-up link.
func (p *PageResponse) HasNext() bool {
	return p.NextURL != ""
}

// ProviderMessage returns the provider's explanation for a non-OK status, if any.
func (p *PageResponse) ProviderMessage() string {
	if p.Error != "" {
		return p.Error
	}
	return p.Message
}

// UnmarshalJSON implements the tagged decoding described on PageResponse.
func (p *PageResponse) UnmarshalJSON(data []byte) error {
	var wire map[string]json.RawMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("page response: %w", err)
	}
	if wire == nil {
		return fmt.Errorf("page response: expected JSON object, got null")
	}

	var out PageResponse

	rawStatus, ok := wire["status"]
	if !ok || isNull(rawStatus) {
		return fmt.Errorf("page response: missing required field \"status\"")
	}
	if err := json.Unmarshal(rawStatus, &out.Status); err != nil {
		return fmt.Errorf("page response: field \"status\" must be a string")
	}

	if raw, ok := wire["results"]; ok && !isNull(raw) {
		if bytes.TrimSpace(raw)[0] != '[' {
			return fmt.Errorf("page response: field \"results\" must be an array")
		}
		if err := json.Unmarshal(raw, &out.Results); err != nil {
			return fmt.Errorf("page response: field \"results\": %w", err)
		}
	}
	if out.Results == nil {
		out.Results = []Trade{}
	}

	if err := optionalString(wire, "next_url", &out.NextURL); err != nil {
		return err
	}
	// Diagnostic fields are best effort; a wrong type there is ignored.
	_ = optionalString(wire, "request_id", &out.RequestID)
	_ = optionalString(wire, "error", &out.Error)
	_ = optionalString(wire, "message", &out.Message)

	*p = out
	return nil
}

func optionalString(wire map[string]json.RawMessage, field string, dst *string) error {
	raw, ok := wire[field]
	if !ok || isNull(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("page response: field %q must be a string", field)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

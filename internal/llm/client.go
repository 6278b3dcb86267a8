// Package llm provides the chat and vision capability surface consumed by the
// planner, verifier, reflector and issue aggregator. Providers are selected by
// the `api` field of the LLM config; all of them normalize responses the same
// way (fence stripping, JSON repair).
package llm

import (
	"context"
	"fmt"
)

// Temperature defaults. Verification wants deterministic output; planning and
// reflection tolerate a little sampling.
const (
	TemperatureVerify = 0.0
	TemperaturePlan   = 0.1
)

// Client is the capability surface: text in, text out, with optional images
// attached to the user message.
type Client interface {
	// GetResponse sends one chat request and returns the raw assistant text
	// with code fences stripped.
	GetResponse(ctx context.Context, systemPrompt, userPrompt string, opts ...RequestOption) (string, error)
	// Model returns the configured model name.
	Model() string
}

// RequestOption tunes one request.
type RequestOption func(*requestOptions)

type requestOptions struct {
	temperature *float64
	topP        *float64
	images      []string // data:image/png;base64,... URLs
	maxTokens   int
}

// WithTemperature overrides the sampling temperature for this request.
func WithTemperature(t float64) RequestOption {
	return func(o *requestOptions) { o.temperature = &t }
}

// WithTopP sets nucleus sampling for this request.
func WithTopP(p float64) RequestOption {
	return func(o *requestOptions) { o.topP = &p }
}

// WithImages attaches screenshots to the user message. Each entry is a
// data:image/png;base64 URL.
func WithImages(images ...string) RequestOption {
	return func(o *requestOptions) {
		for _, img := range images {
			if img != "" {
				o.images = append(o.images, img)
			}
		}
	}
}

// WithMaxTokens caps the response length.
func WithMaxTokens(n int) RequestOption {
	return func(o *requestOptions) { o.maxTokens = n }
}

func applyOptions(opts []RequestOption) requestOptions {
	o := requestOptions{maxTokens: 4096}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// APIError is a failed provider call. Callers either retry (planner) or
// degrade to a heuristic path (issue aggregator).
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s API error: %s", e.Provider, e.Message)
}

// ErrEmptyResponse is returned when the provider produced no usable text.
var ErrEmptyResponse = fmt.Errorf("llm returned empty response")

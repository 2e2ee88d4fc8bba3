package llm

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"strings"
)

// ErrIncompleteStream is returned when a stream ends without a terminal delta.
var ErrIncompleteStream = errors.New("stream ended without completion")

// Provider defines the interface for interacting with LLM backends.
// Implementations handle protocol-specific details such as request formatting,
// authentication, and response parsing.
type Provider interface {
	// Complete sends a chat completion request and returns the full response.
	Complete(ctx context.Context, messages []Message, tools []Tool, opts ...CallOption) (*Response, error)

	// Stream sends a chat completion request and yields incremental deltas,
	// ending with exactly one delta whose Done is set.
	Stream(ctx context.Context, messages []Message, tools []Tool, opts ...CallOption) iter.Seq2[Delta, error]
}

// Config holds common configuration for LLM providers.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	MaxRetries  int
}

// ResponseFormat constrains the shape of the model output.
type ResponseFormat struct {
	// Type is "json_object" or "json_schema".
	Type   string
	Name   string
	Schema json.RawMessage
}

// CallOptions is the resolved set of per-call options.
type CallOptions struct {
	Format *ResponseFormat
}

// CallOption customizes a single request.
type CallOption func(*CallOptions)

// WithJSONSchema asks for output conforming to schema.
func WithJSONSchema(name string, schema json.RawMessage) CallOption {
	return func(o *CallOptions) {
		o.Format = &ResponseFormat{Type: "json_schema", Name: name, Schema: schema}
	}
}

// WithJSONObject asks for any syntactically valid JSON object.
func WithJSONObject() CallOption {
	return func(o *CallOptions) {
		o.Format = &ResponseFormat{Type: "json_object"}
	}
}

// ApplyOptions folds opts into a CallOptions value.
func ApplyOptions(opts []CallOption) CallOptions {
	var o CallOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Collect drains a stream into a Response. It fails with ErrIncompleteStream
// if the stream stops before its terminal delta.
func Collect(seq iter.Seq2[Delta, error]) (*Response, error) {
	var (
		resp    Response
		content strings.Builder
		done    bool
	)
	for d, err := range seq {
		if err != nil {
			return nil, err
		}
		content.WriteString(d.Content)
		if d.Done {
			resp.ToolCalls = d.ToolCalls
			resp.Usage = d.Usage
			done = true
			break
		}
	}
	if !done {
		return nil, ErrIncompleteStream
	}
	resp.Content = content.String()
	return &resp, nil
}

// Package openai implements llm.Provider for OpenAI-compatible chat completion APIs.
package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/geek-intake/internal/domain"
	"github.com/ashureev/geek-intake/internal/llm"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
)

const completionsPath = "/chat/completions"

// Client implements the llm.Provider interface for OpenAI-compatible APIs.
type Client struct {
	config *llm.Config
	http   *resty.Client
	logger *slog.Logger
}

var _ llm.Provider = (*Client)(nil)

// New creates a new OpenAI-compatible client with the given configuration.
func New(config *llm.Config, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(config.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	if config.APIKey != "" {
		c.SetAuthToken(config.APIKey)
	}
	return &Client{config: config, http: c, logger: logger}
}

// chatRequest is the OpenAI chat completions request body.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []llm.Message   `json:"messages"`
	Tools          []llm.Tool      `json:"tools,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    *float32        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
	StreamOptions  *streamOptions  `json:"stream_options,omitempty"`
}

type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *jsonSchema `json:"json_schema,omitempty"`
}

type jsonSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
	Strict bool            `json:"strict"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// chatResponse is the OpenAI chat completions response body.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string         `json:"content"`
			ToolCalls []llm.ToolCall `json:"tool_calls,omitempty"`
		} `json:"message"`
	} `json:"choices"`
	Usage *responseUsage `json:"usage"`
}

// responseUsage is the OpenAI token usage format.
type responseUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u *responseUsage) toUsage() llm.Usage {
	if u == nil {
		return llm.Usage{}
	}
	return llm.Usage{InputTokens: u.PromptTokens, OutputTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id,omitempty"`
				Type     string `json:"type,omitempty"`
				Function struct {
					Name      string `json:"name,omitempty"`
					Arguments string `json:"arguments,omitempty"`
				} `json:"function"`
			} `json:"tool_calls,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *responseUsage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// statusError is a non-2xx answer from the API.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.status, e.body)
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func (c *Client) buildRequest(messages []llm.Message, tools []llm.Tool, opts []llm.CallOption, stream bool) chatRequest {
	req := chatRequest{
		Model:    c.config.Model,
		Messages: messages,
		Tools:    tools,
	}
	if c.config.MaxTokens > 0 {
		req.MaxTokens = c.config.MaxTokens
	}
	if c.config.Temperature != 0 {
		temp := c.config.Temperature
		req.Temperature = &temp
	}
	if f := llm.ApplyOptions(opts).Format; f != nil {
		req.ResponseFormat = &responseFormat{Type: f.Type}
		if f.Type == "json_schema" {
			req.ResponseFormat.JSONSchema = &jsonSchema{Name: f.Name, Schema: f.Schema, Strict: true}
		}
	}
	if stream {
		req.Stream = true
		req.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	return req
}

// post sends body and retries transport failures, 429 and 5xx with exponential backoff.
func (c *Client) post(ctx context.Context, body chatRequest, raw bool) (*resty.Response, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 500 * time.Millisecond
	exp.MaxInterval = 5 * time.Second
	retries := c.config.MaxRetries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)

	var resp *resty.Response
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		r, err := c.http.R().
			SetContext(ctx).
			SetBody(&body).
			SetDoNotParseResponse(raw).
			Post(completionsPath)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.Warn("llm request failed", "attempt", attempt, "error", err)
			return err
		}
		if r.StatusCode() < 200 || r.StatusCode() > 299 {
			serr := &statusError{status: r.StatusCode(), body: responseText(r, raw)}
			if retryable(r.StatusCode()) {
				c.logger.Warn("llm request rejected", "attempt", attempt, "status", r.StatusCode())
				return serr
			}
			return backoff.Permanent(serr)
		}
		resp = r
		return nil
	}, policy)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func responseText(r *resty.Response, raw bool) string {
	if !raw {
		return r.String()
	}
	body := r.RawBody()
	if body == nil {
		return ""
	}
	defer func() { _ = body.Close() }()
	data, _ := io.ReadAll(io.LimitReader(body, 4096))
	return string(data)
}

// Complete sends a chat completion request and returns the full response.
func (c *Client) Complete(ctx context.Context, messages []llm.Message, tools []llm.Tool, opts ...llm.CallOption) (*llm.Response, error) {
	resp, err := c.post(ctx, c.buildRequest(messages, tools, opts, false), false)
	if err != nil {
		return nil, domain.ReasoningFault{Op: "complete", Err: err}
	}

	var chatResp chatResponse
	if err := json.Unmarshal(resp.Body(), &chatResp); err != nil {
		return nil, domain.ReasoningFault{Op: "complete", Err: fmt.Errorf("parsing response: %w", err)}
	}
	if len(chatResp.Choices) == 0 {
		return nil, domain.ReasoningFault{Op: "complete", Err: errors.New("no choices in response")}
	}

	choice := chatResp.Choices[0]
	return &llm.Response{
		Content:   choice.Message.Content,
		ToolCalls: choice.Message.ToolCalls,
		Usage:     chatResp.Usage.toUsage(),
	}, nil
}

// Stream sends a streaming chat completion request. Text arrives as it is
// generated; tool calls are assembled and delivered with the terminal delta.
func (c *Client) Stream(ctx context.Context, messages []llm.Message, tools []llm.Tool, opts ...llm.CallOption) iter.Seq2[llm.Delta, error] {
	return func(yield func(llm.Delta, error) bool) {
		resp, err := c.post(ctx, c.buildRequest(messages, tools, opts, true), true)
		if err != nil {
			yield(llm.Delta{}, domain.ReasoningFault{Op: "stream", Err: err})
			return
		}
		body := resp.RawBody()
		defer func() {
			if err := body.Close(); err != nil {
				c.logger.Debug("failed to close stream body", "error", err)
			}
		}()

		for d, err := range readStream(body) {
			if err != nil {
				yield(llm.Delta{}, domain.ReasoningFault{Op: "stream", Err: err})
				return
			}
			if !yield(d, nil) {
				return
			}
			if d.Done {
				return
			}
		}
	}
}

type partialToolCall struct {
	id, name string
	args     strings.Builder
}

// maxToolCalls bounds the tool-call index a stream may address.
const maxToolCalls = 128

// readStream parses "data:" lines until [DONE].
func readStream(r io.Reader) iter.Seq2[llm.Delta, error] {
	return func(yield func(llm.Delta, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		var (
			partials []*partialToolCall
			usage    llm.Usage
		)
		finish := func() llm.Delta {
			d := llm.Delta{Done: true, Usage: usage}
			for _, p := range partials {
				if p == nil {
					continue
				}
				d.ToolCalls = append(d.ToolCalls, llm.ToolCall{
					ID:       p.id,
					Type:     "function",
					Function: llm.FunctionCall{Name: p.name, Arguments: p.args.String()},
				})
			}
			return d
		}

		for scanner.Scan() {
			line := strings.TrimRight(scanner.Text(), "\r")
			data, ok := strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}
			data = strings.TrimPrefix(data, " ")
			if data == "[DONE]" {
				yield(finish(), nil)
				return
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				yield(llm.Delta{}, fmt.Errorf("parsing stream chunk: %w", err))
				return
			}
			if chunk.Error != nil {
				yield(llm.Delta{}, fmt.Errorf("stream error: %s: %s", chunk.Error.Type, chunk.Error.Message))
				return
			}
			if chunk.Usage != nil {
				usage = chunk.Usage.toUsage()
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			delta := chunk.Choices[0].Delta
			for _, tc := range delta.ToolCalls {
				if tc.Index < 0 || tc.Index >= maxToolCalls {
					yield(llm.Delta{}, fmt.Errorf("parsing stream chunk: tool call index %d out of range", tc.Index))
					return
				}
				for len(partials) <= tc.Index {
					partials = append(partials, nil)
				}
				if partials[tc.Index] == nil {
					partials[tc.Index] = &partialToolCall{}
				}
				p := partials[tc.Index]
				if tc.ID != "" {
					p.id = tc.ID
				}
				if tc.Function.Name != "" {
					p.name = tc.Function.Name
				}
				p.args.WriteString(tc.Function.Arguments)
			}
			if delta.Content != "" {
				if !yield(llm.Delta{Content: delta.Content}, nil) {
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			yield(llm.Delta{}, fmt.Errorf("reading stream: %w", err))
			return
		}
		yield(llm.Delta{}, llm.ErrIncompleteStream)
	}
}

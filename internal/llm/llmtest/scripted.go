// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"

	"github.com/ashureev/geek-intake/internal/llm"
)

// ErrScriptExhausted is returned when more calls arrive than steps were scripted.
var ErrScriptExhausted = errors.New("llmtest: script exhausted")

// Step is the scripted outcome of one provider call.
type Step struct {
	Response *llm.Response
	Err      error
}

// Call records one request made to the provider.
type Call struct {
	Messages []llm.Message
	Tools    []llm.Tool
	Options  llm.CallOptions
}

// Provider replays Steps in order, for Complete and Stream alike.
type Provider struct {
	mu    sync.Mutex
	steps []Step
	calls []Call
}

// New creates a provider that answers with steps in order.
func New(steps ...Step) *Provider {
	return &Provider{steps: steps}
}

// Text is a Step that answers with plain content.
func Text(content string) Step {
	return Step{Response: &llm.Response{Content: content}}
}

// ToolCall is a Step that answers with a single tool call.
func ToolCall(id, name, args string) Step {
	return Step{Response: &llm.Response{ToolCalls: []llm.ToolCall{{
		ID:       id,
		Type:     "function",
		Function: llm.FunctionCall{Name: name, Arguments: args},
	}}}}
}

// Fail is a Step that answers with err.
func Fail(err error) Step {
	return Step{Err: err}
}

// Push appends more steps.
func (p *Provider) Push(steps ...Step) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = append(p.steps, steps...)
}

// Calls returns the recorded requests.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

func (p *Provider) next(messages []llm.Message, tools []llm.Tool, opts []llm.CallOption) Step {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, Call{
		Messages: append([]llm.Message(nil), messages...),
		Tools:    tools,
		Options:  llm.ApplyOptions(opts),
	})
	if len(p.steps) == 0 {
		return Step{Err: ErrScriptExhausted}
	}
	step := p.steps[0]
	p.steps = p.steps[1:]
	return step
}

// Complete returns the next scripted step.
func (p *Provider) Complete(ctx context.Context, messages []llm.Message, tools []llm.Tool, opts ...llm.CallOption) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	step := p.next(messages, tools, opts)
	if step.Err != nil {
		return nil, step.Err
	}
	return step.Response, nil
}

// Stream yields the next scripted step word by word, then a terminal delta.
func (p *Provider) Stream(ctx context.Context, messages []llm.Message, tools []llm.Tool, opts ...llm.CallOption) iter.Seq2[llm.Delta, error] {
	step := p.next(messages, tools, opts)
	return func(yield func(llm.Delta, error) bool) {
		if step.Err != nil {
			yield(llm.Delta{}, step.Err)
			return
		}
		for _, chunk := range splitKeep(step.Response.Content) {
			if err := ctx.Err(); err != nil {
				yield(llm.Delta{}, err)
				return
			}
			if !yield(llm.Delta{Content: chunk}, nil) {
				return
			}
		}
		yield(llm.Delta{Done: true, ToolCalls: step.Response.ToolCalls, Usage: step.Response.Usage}, nil)
	}
}

// splitKeep splits s after each space so that the chunks concatenate back to s.
func splitKeep(s string) []string {
	if s == "" {
		return nil
	}
	return strings.SplitAfter(s, " ")
}

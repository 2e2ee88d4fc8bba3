package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/geek-intake/internal/domain"
	"github.com/ashureev/geek-intake/internal/llm"
	"github.com/ashureev/geek-intake/internal/metrics"
	"golang.org/x/sync/semaphore"
)

// ErrMaxToolRounds is returned when the model keeps calling tools past the round limit.
var ErrMaxToolRounds = errors.New("max tool rounds exceeded")

// Assistant drives the language model through tool rounds for each session.
type Assistant struct {
	provider llm.Provider
	registry *Registry
	memory   *Memory
	sem      *semaphore.Weighted
	cfg      Config
	logger   *slog.Logger
}

// NewAssistant creates an assistant. A nil registry means no tools and a nil
// memory keeps every turn.
func NewAssistant(provider llm.Provider, registry *Registry, memory *Memory, cfg Config, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if memory == nil {
		memory = NewMemory(0, nil)
	}
	def := DefaultConfig()
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = def.MaxToolRounds
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = def.MaxConcurrency
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	return &Assistant{
		provider: provider,
		registry: registry,
		memory:   memory,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrency),
		cfg:      cfg,
		logger:   logger,
	}
}

// Forget drops the conversation memory of a session.
func (a *Assistant) Forget(sessionID string) {
	a.memory.Forget(sessionID)
}

// Converse runs one user turn: it calls tools as the model requests them and
// streams the text of every round. A round that ends in tool calls is closed
// by EventRoundEnd when it streamed anything. The sequence ends with
// EventDone, or with a ReasoningFault.
func (a *Assistant) Converse(ctx context.Context, sessionID, input string) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		messages := make([]llm.Message, 0, 8)
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: SystemPrompt(a.cfg.Now())})
		messages = append(messages, a.memory.History(sessionID)...)
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: input})
		tools := a.registry.AsLLMTools()

		for round := 0; round < a.cfg.MaxToolRounds; round++ {
			var (
				content strings.Builder
				final   *llm.Delta
				stopped bool
			)
			err := a.withSlot(ctx, "converse", func() error {
				for d, err := range a.provider.Stream(ctx, messages, tools) {
					if err != nil {
						return err
					}
					if d.Done {
						final = &d
						break
					}
					if d.Content == "" {
						continue
					}
					content.WriteString(d.Content)
					if !yield(Event{Kind: EventToken, Token: d.Content}, nil) {
						stopped = true
						return nil
					}
				}
				if final == nil {
					return llm.ErrIncompleteStream
				}
				return nil
			})
			if stopped {
				return
			}
			if err != nil {
				yield(Event{}, asReasoningFault("converse", err))
				return
			}

			if len(final.ToolCalls) > 0 {
				if content.Len() > 0 && !yield(Event{Kind: EventRoundEnd}, nil) {
					return
				}
				messages = append(messages, llm.Message{
					Role:      llm.RoleAssistant,
					Content:   content.String(),
					ToolCalls: final.ToolCalls,
				})
				for _, tc := range final.ToolCalls {
					messages = append(messages, llm.Message{
						Role:       llm.RoleTool,
						Content:    a.runTool(ctx, sessionID, tc),
						ToolCallID: tc.ID,
					})
				}
				continue
			}

			raw := content.String()
			a.memory.Append(sessionID,
				llm.Message{Role: llm.RoleUser, Content: input},
				llm.Message{Role: llm.RoleAssistant, Content: raw},
			)
			yield(Event{Kind: EventDone, Reply: ParseReply(raw), Raw: raw}, nil)
			return
		}

		yield(Event{}, domain.ReasoningFault{
			Op:  "converse",
			Err: fmt.Errorf("%w (%d)", ErrMaxToolRounds, a.cfg.MaxToolRounds),
		})
	}
}

// runTool executes one tool call. Failures are returned to the model as an
// "error: ..." result.
func (a *Assistant) runTool(ctx context.Context, sessionID string, tc llm.ToolCall) string {
	tool, ok := a.registry.Get(tc.Function.Name)
	if !ok {
		a.logger.Warn("model requested unknown tool", "session_id", sessionID, "tool", tc.Function.Name)
		return fmt.Sprintf("error: unknown tool %q", tc.Function.Name)
	}
	args := json.RawMessage(tc.Function.Arguments)
	if len(strings.TrimSpace(tc.Function.Arguments)) == 0 {
		args = json.RawMessage("{}")
	}
	result, err := tool.Execute(ctx, args)
	if err != nil {
		a.logger.Warn("tool failed", "session_id", sessionID, "tool", tc.Function.Name, "error", err)
		return fmt.Sprintf("error: %v", err)
	}
	a.logger.Debug("tool executed", "session_id", sessionID, "tool", tc.Function.Name)
	return result
}

// Extract issues one schema-constrained completion and decodes it into out.
func (a *Assistant) Extract(ctx context.Context, prompt, schemaName string, schema json.RawMessage, out any) error {
	var resp *llm.Response
	err := a.withSlot(ctx, "extract", func() error {
		var err error
		resp, err = a.provider.Complete(ctx,
			[]llm.Message{{Role: llm.RoleUser, Content: prompt}}, nil,
			llm.WithJSONSchema(schemaName, schema))
		return err
	})
	if err != nil {
		return asReasoningFault("extract", err)
	}

	obj, ok := FirstJSONObject(resp.Content)
	if !ok {
		return domain.ExtractionError{Reason: "model output is not a JSON object"}
	}
	if err := json.Unmarshal(obj, out); err != nil {
		return domain.ExtractionError{Reason: "decode model output", Err: err}
	}
	return nil
}

// withSlot runs fn while holding one unit of the process-wide LLM concurrency bound.
func (a *Assistant) withSlot(ctx context.Context, op string, fn func() error) error {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer a.sem.Release(1)
	start := time.Now()
	defer metrics.ObserveLLM(op, start)
	return fn()
}

func asReasoningFault(op string, err error) error {
	if domain.IsReasoningFault(err) {
		return err
	}
	return domain.ReasoningFault{Op: op, Err: err}
}

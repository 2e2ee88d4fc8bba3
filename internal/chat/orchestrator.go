package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/geek-intake/internal/agent"
	"github.com/ashureev/geek-intake/internal/channel"
	"github.com/ashureev/geek-intake/internal/domain"
	"github.com/ashureev/geek-intake/internal/metrics"
)

// Messages sent to the client outside of the assistant's own replies.
const (
	NoticeRetry        = "Sorry, something went wrong. Please try again."
	NoticeProcessing   = "Your issue is being processed and we'll find a suitable geek for you shortly."
	NoticeNotProcessed = "We could not process your issue. Please try again later."
	NoticeSelectGeek   = "Please select a Geek to proceed"
	NoticeNoGeeks      = "No suitable geeks found. Please try later."
	NoticeIdle         = "Session timed out due to inactivity."

	// EndOfStream follows the last streamed token of a reply.
	EndOfStream = "[END]"
)

// Assistant produces conversational replies.
type Assistant interface {
	Converse(ctx context.Context, sessionID, input string) iter.Seq2[agent.Event, error]
	Forget(sessionID string)
}

// Store is the persistence a session needs.
type Store interface {
	AppendMessage(ctx context.Context, userID, conversationID string, msg domain.ChatMessage) error
	GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error)
	CreateIssue(ctx context.Context, issue *domain.IssueRecord) (*domain.IssueRecord, error)
}

// Extractor turns a transcript into an IssueRecord.
type Extractor interface {
	Extract(ctx context.Context, transcript, userID, conversationID string) (*domain.IssueRecord, error)
}

// Matcher finds providers for an issue.
type Matcher interface {
	Match(ctx context.Context, issue *domain.IssueRecord, page, pageSize int) (*domain.MatchResult, error)
}

// Config tunes the orchestrator.
type Config struct {
	// StreamTokens sends each reply token as its own frame before the reply.
	StreamTokens bool
	// MatchPageSize is the number of providers offered at the end of a session.
	MatchPageSize int
	// LLMTimeout bounds reasoning work, which is detached from the client's lifetime.
	LLMTimeout time.Duration
}

// Orchestrator drives chat sessions.
type Orchestrator struct {
	assistant Assistant
	store     Store
	extractor Extractor
	matcher   Matcher
	cfg       Config
	logger    *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(a Assistant, s Store, e Extractor, m Matcher, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MatchPageSize <= 0 {
		cfg.MatchPageSize = 5
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 2 * time.Minute
	}
	return &Orchestrator{assistant: a, store: s, extractor: e, matcher: m, cfg: cfg, logger: logger}
}

// Run processes frames from ch until the session finalizes, the client goes
// away, or the channel idles out. Only unexpected faults are returned.
func (o *Orchestrator) Run(ctx context.Context, ch channel.Channel, userID, conversationID string) error {
	metrics.SessionsActive.Inc()
	defer metrics.SessionsActive.Dec()
	s := newSession(userID, conversationID)
	defer o.assistant.Forget(s.ID)

	log := o.logger.With("user_id", userID, "conversation_id", conversationID, "session_id", s.ID)
	log.Info("chat session started")

	for {
		raw, err := ch.Receive(ctx)
		switch {
		case err == nil:
		case errors.Is(err, channel.ErrIdle):
			log.Info("chat session idle")
			_ = ch.Send(ctx, NoticeIdle)
			_ = ch.Close(websocket.StatusNormalClosure, "idle timeout")
			s.end(StateClosed)
			return nil
		case errors.Is(err, channel.ErrClosed), ctx.Err() != nil:
			log.Info("chat client disconnected")
			s.end(StateClosed)
			return nil
		default:
			return o.fail(ch, s, log, fmt.Errorf("receive: %w", err))
		}

		finished, err := o.turn(ctx, ch, s, log, raw)
		if err != nil {
			if errors.Is(err, channel.ErrClosed) || ctx.Err() != nil {
				log.Info("chat client disconnected mid-turn")
				s.end(StateClosed)
				return nil
			}
			return o.fail(ch, s, log, err)
		}
		if finished {
			log.Info("chat session finished")
			return nil
		}
	}
}

func (o *Orchestrator) turn(ctx context.Context, ch channel.Channel, s *Session, log *slog.Logger, raw string) (bool, error) {
	in := parseFrame(raw)
	if in.continuation {
		metrics.TurnsTotal.WithLabelValues("continuation").Inc()
		return false, o.gather(ctx, ch, s, log, in.text)
	}

	metrics.TurnsTotal.WithLabelValues("text").Inc()
	if err := o.store.AppendMessage(ctx, s.UserID, s.ConversationID, domain.NewChatMessage(domain.SenderUser, in.text)); err != nil {
		return false, fmt.Errorf("persist user turn: %w", err)
	}
	if Triggered(s.lastAgentQuestion, in.text) {
		return true, o.finalize(ctx, ch, s, log)
	}
	return false, o.gather(ctx, ch, s, log, in.text)
}

// reasoningContext outlives a client disconnect but not LLMTimeout.
func (o *Orchestrator) reasoningContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.cfg.LLMTimeout)
}

func (o *Orchestrator) gather(ctx context.Context, ch channel.Channel, s *Session, log *slog.Logger, input string) error {
	rctx, cancel := o.reasoningContext(ctx)
	defer cancel()

	var (
		reply    *agent.Reply
		streamed bool
		convErr  error
	)
	for ev, err := range o.assistant.Converse(rctx, s.ID, input) {
		if err != nil {
			convErr = err
			break
		}
		switch ev.Kind {
		case agent.EventToken:
			if !o.cfg.StreamTokens || ev.Token == "" {
				continue
			}
			if err := ch.Send(ctx, ev.Token); err != nil {
				return err
			}
			streamed = true
		case agent.EventRoundEnd:
			// Text before a tool call is its own stream.
			if streamed {
				if err := ch.Send(ctx, EndOfStream); err != nil {
					return err
				}
				streamed = false
			}
		case agent.EventDone:
			r := ev.Reply
			reply = &r
		}
	}
	if streamed {
		if err := ch.Send(ctx, EndOfStream); err != nil {
			return err
		}
	}

	if convErr != nil || reply == nil {
		if convErr == nil {
			convErr = errors.New("assistant produced no reply")
		}
		log.Error("assistant turn failed", "error", convErr)
		return ch.SendJSON(ctx, agent.Reply{Response: NoticeRetry})
	}

	if err := ch.SendJSON(ctx, reply); err != nil {
		return err
	}
	if err := o.store.AppendMessage(ctx, s.UserID, s.ConversationID, domain.NewChatMessage(domain.SenderBot, reply.Response)); err != nil {
		return fmt.Errorf("persist bot turn: %w", err)
	}
	s.lastAgentQuestion = reply.Response
	return nil
}

func (o *Orchestrator) finalize(ctx context.Context, ch channel.Channel, s *Session, log *slog.Logger) error {
	s.state = StateFinalizing
	log.Info("finalizing conversation")
	if err := ch.SendJSON(ctx, agent.Reply{Response: NoticeProcessing}); err != nil {
		return err
	}

	wctx, cancel := o.reasoningContext(ctx)
	defer cancel()

	conv, err := o.store.GetConversation(wctx, s.ConversationID)
	if err != nil {
		return o.abandon(ctx, ch, s, log, "storage_failed", fmt.Errorf("load conversation: %w", err))
	}

	rec, err := o.extractor.Extract(wctx, conv.Transcript(), s.UserID, s.ConversationID)
	if err != nil {
		return o.abandon(ctx, ch, s, log, "extraction_failed", err)
	}

	saved, err := o.store.CreateIssue(wctx, rec)
	if err != nil {
		return o.abandon(ctx, ch, s, log, "storage_failed", fmt.Errorf("create issue: %w", err))
	}
	log.Info("issue created", "issue_id", saved.ID)

	result, err := o.matcher.Match(wctx, saved, 1, o.cfg.MatchPageSize)
	if err != nil {
		log.Error("matching failed", "issue_id", saved.ID, "error", err)
		result = nil
	}

	outcome := "no_match"
	if result != nil && len(result.Geeks) > 0 {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode match result: %w", err)
		}
		err = ch.SendJSON(ctx, agent.Reply{Response: NoticeSelectGeek, Options: []any{string(data)}})
		if err != nil {
			return err
		}
		outcome = "matched"
	} else if err := ch.SendJSON(ctx, agent.Reply{Response: NoticeNoGeeks}); err != nil {
		return err
	}

	metrics.FinalizationsTotal.WithLabelValues(outcome).Inc()
	s.end(StateClosed)
	return nil
}

// abandon tells the client the issue was not processed and ends the session.
func (o *Orchestrator) abandon(ctx context.Context, ch channel.Channel, s *Session, log *slog.Logger, outcome string, cause error) error {
	log.Error("finalization failed", "outcome", outcome, "error", cause)
	metrics.FinalizationsTotal.WithLabelValues(outcome).Inc()

	status := websocket.StatusNormalClosure
	if domain.IsStorageFault(cause) {
		status = websocket.StatusInternalError
	}
	_ = ch.SendJSON(ctx, agent.Reply{Response: NoticeNotProcessed})
	_ = ch.Close(status, "issue not processed")
	s.end(StateClosed)
	return nil
}

func (o *Orchestrator) fail(ch channel.Channel, s *Session, log *slog.Logger, err error) error {
	log.Error("chat session failed", "state", s.state.String(), "error", err)
	s.end(StateError)
	_ = ch.Close(websocket.StatusInternalError, "internal error")
	return err
}

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/geek-intake/internal/agent"
	"github.com/ashureev/geek-intake/internal/channel"
	"github.com/ashureev/geek-intake/internal/domain"
	"github.com/ashureev/geek-intake/internal/llm"
	"github.com/ashureev/geek-intake/internal/llm/llmtest"
	"github.com/ashureev/geek-intake/internal/store"
)

// fakeChannel replays scripted inbound frames, then reports end.
type fakeChannel struct {
	in  chan string
	end error

	mu     sync.Mutex
	sent   []string
	closed []websocket.StatusCode
}

func newFakeChannel(end error, frames ...string) *fakeChannel {
	in := make(chan string, len(frames))
	for _, f := range frames {
		in <- f
	}
	close(in)
	return &fakeChannel{in: in, end: end}
}

func (f *fakeChannel) Receive(ctx context.Context) (string, error) {
	select {
	case s, ok := <-f.in:
		if !ok {
			return "", f.end
		}
		return s, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *fakeChannel) Send(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeChannel) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return f.Send(ctx, string(data))
}

func (f *fakeChannel) Close(status websocket.StatusCode, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, status)
	return nil
}

func (f *fakeChannel) frames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func replies(t *testing.T, frames []string) []agent.Reply {
	t.Helper()
	var out []agent.Reply
	for _, fr := range frames {
		var r agent.Reply
		if err := json.Unmarshal([]byte(fr), &r); err == nil && r.Response != "" {
			out = append(out, r)
		}
	}
	return out
}

type stubExtractor struct {
	rec *domain.IssueRecord
	err error
}

func (s *stubExtractor) Extract(_ context.Context, transcript, userID, conversationID string) (*domain.IssueRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	rec := *s.rec
	rec.UserID, rec.ConversationID = userID, conversationID
	rec.Summary = transcript
	return &rec, nil
}

type stubMatcher struct {
	result *domain.MatchResult
	err    error
	calls  int
}

func (s *stubMatcher) Match(_ context.Context, issue *domain.IssueRecord, page, pageSize int) (*domain.MatchResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	r := *s.result
	r.Issue, r.Page, r.Limit = *issue, page, pageSize
	return &r, nil
}

type fixture struct {
	store     *store.SQLiteStore
	llm       *llmtest.Provider
	extractor *stubExtractor
	matcher   *stubMatcher
	orch      *Orchestrator
}

func newFixture(t *testing.T, cfg Config, steps ...llmtest.Step) *fixture {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	f := &fixture{
		store:     s,
		llm:       llmtest.New(steps...),
		extractor: &stubExtractor{rec: &domain.IssueRecord{ModeOfService: domain.ModeOnline}},
		matcher: &stubMatcher{result: &domain.MatchResult{
			Geeks: []domain.MatchedProvider{{Provider: domain.Provider{
				ProviderBase: domain.ProviderBase{ID: "g1", PrimarySkill: "cat-1", Type: domain.ProviderIndividual},
				Individual:   &domain.IndividualProfile{},
			}}},
			Total: 1,
			Pages: 1,
		}},
	}
	a := agent.NewAssistant(f.llm, nil, nil, agent.Config{MaxToolRounds: 3}, nil)
	f.orch = NewOrchestrator(a, s, f.extractor, f.matcher, cfg, nil)
	return f
}

const summaryReply = `{"response":"You have a flickering Dell screen. Is this summary correct?","options":["Yes","No"]}`

func TestTriggered(t *testing.T) {
	tests := []struct {
		last, text string
		want       bool
	}{
		{"Summary... Is this summary correct?", "Yes", true},
		{"Summary... Is this summary correct?", "yes, that's right", true},
		{"Summary... Is this summary correct?", "Eyes are fine", true},
		{"Summary... Is this summary correct?", "No", false},
		{"Which brand is it?", "yes", false},
		{"", "yes", false},
		{"is this summary correct?", "yes", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Triggered(tt.last, tt.text), "Triggered(%q, %q)", tt.last, tt.text)
	}
}

func TestParseFrame(t *testing.T) {
	in := parseFrame("my laptop is broken")
	assert.Equal(t, inbound{text: "my laptop is broken"}, in)

	in = parseFrame(`{"action":"something_else","x":1}`)
	assert.Equal(t, inbound{text: `{"action":"something_else","x":1}`}, in)

	in = parseFrame(`"just a string"`)
	assert.False(t, in.continuation)

	in = parseFrame(`{"action":"continue_conversation","chat_history":[{"sender":"user", "message":"hi"}]}`)
	assert.True(t, in.continuation)
	assert.JSONEq(t, `[{"sender":"user","message":"hi"}]`, in.text)

	in = parseFrame(`{"action":"continue_conversation"}`)
	assert.Equal(t, inbound{text: "null", continuation: true}, in)
}

func TestGatheringPersistsAndReplies(t *testing.T) {
	f := newFixture(t, Config{}, llmtest.Text(`{"response":"Which brand is it?","options":["Dell","HP"]}`))
	ch := newFakeChannel(channel.ErrClosed, "My laptop screen flickers")

	require.NoError(t, f.orch.Run(context.Background(), ch, "u1", "c1"))

	got := replies(t, ch.frames())
	require.Len(t, got, 1)
	assert.Equal(t, "Which brand is it?", got[0].Response)
	assert.Equal(t, []any{"Dell", "HP"}, got[0].Options)

	conv, err := f.store.GetConversation(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, conv.ChatMessages, 2)
	assert.Equal(t, domain.SenderUser, conv.ChatMessages[0].Sender)
	assert.Equal(t, "My laptop screen flickers", conv.ChatMessages[0].Message)
	assert.Equal(t, domain.SenderBot, conv.ChatMessages[1].Sender)
	assert.Equal(t, "Which brand is it?", conv.ChatMessages[1].Message)
	assert.Zero(t, f.matcher.calls)
}

func TestGatheringStreamsTokens(t *testing.T) {
	raw := `{"response":"Which brand is it?","options":null}`
	f := newFixture(t, Config{StreamTokens: true}, llmtest.Text(raw))
	ch := newFakeChannel(channel.ErrClosed, "hello")

	require.NoError(t, f.orch.Run(context.Background(), ch, "u1", "c1"))

	frames := ch.frames()
	require.GreaterOrEqual(t, len(frames), 3)
	end := len(frames) - 2
	assert.Equal(t, EndOfStream, frames[end])

	var joined string
	for _, tok := range frames[:end] {
		joined += tok
	}
	assert.Equal(t, raw, joined)
	assert.JSONEq(t, raw, frames[len(frames)-1])
}

func TestContinuationIsNotStoredAndNeverTriggers(t *testing.T) {
	f := newFixture(t, Config{},
		llmtest.Text(summaryReply),
		llmtest.Text(`{"response":"Anything else?","options":null}`),
	)
	history := `{"action":"continue_conversation","chat_history":[{"sender":"user","message":"yes"}]}`
	ch := newFakeChannel(channel.ErrClosed, "Dell XPS flickers", history)

	require.NoError(t, f.orch.Run(context.Background(), ch, "u1", "c1"))

	calls := f.llm.Calls()
	require.Len(t, calls, 2)
	last := calls[1].Messages[len(calls[1].Messages)-1]
	assert.JSONEq(t, `[{"sender":"user","message":"yes"}]`, last.Content)

	conv, err := f.store.GetConversation(context.Background(), "c1")
	require.NoError(t, err)
	senders := make([]domain.Sender, 0, len(conv.ChatMessages))
	for _, m := range conv.ChatMessages {
		senders = append(senders, m.Sender)
	}
	assert.Equal(t, []domain.Sender{domain.SenderUser, domain.SenderBot, domain.SenderBot}, senders)
	assert.Zero(t, f.matcher.calls)
}

func TestFinalizationOffersGeeks(t *testing.T) {
	f := newFixture(t, Config{}, llmtest.Text(summaryReply))
	ch := newFakeChannel(channel.ErrClosed, "Dell XPS flickers", "Yes", "this frame is never read")

	require.NoError(t, f.orch.Run(context.Background(), ch, "u1", "c1"))

	got := replies(t, ch.frames())
	require.Len(t, got, 3)
	assert.Equal(t, NoticeProcessing, got[1].Response)
	assert.Nil(t, got[1].Options)
	assert.Equal(t, NoticeSelectGeek, got[2].Response)
	require.Len(t, got[2].Options, 1)

	var result domain.MatchResult
	require.NoError(t, json.Unmarshal([]byte(got[2].Options[0].(string)), &result))
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Page)
	assert.Equal(t, 5, result.Limit)
	assert.Equal(t, "g1", result.Geeks[0].ID)
	assert.Equal(t, "c1", result.Issue.ConversationID)

	issues, err := f.store.ListIssuesByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Summary, "user: Yes")
	assert.Len(t, ch.in, 1, "session must stop reading after finalizing")
}

func TestFinalizationWithoutGeeks(t *testing.T) {
	f := newFixture(t, Config{}, llmtest.Text(summaryReply))
	f.matcher.err = errors.New("query providers: boom")
	ch := newFakeChannel(channel.ErrClosed, "Dell XPS flickers", "yes")

	require.NoError(t, f.orch.Run(context.Background(), ch, "u1", "c1"))

	got := replies(t, ch.frames())
	require.Len(t, got, 3)
	assert.Equal(t, NoticeNoGeeks, got[2].Response)

	issues, err := f.store.ListIssuesByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, issues, 1)
}

func TestFinalizationExtractionFailure(t *testing.T) {
	f := newFixture(t, Config{}, llmtest.Text(summaryReply))
	f.extractor.err = domain.ExtractionError{Reason: "invalid record"}
	ch := newFakeChannel(channel.ErrClosed, "Dell XPS flickers", "yes")

	require.NoError(t, f.orch.Run(context.Background(), ch, "u1", "c1"))

	got := replies(t, ch.frames())
	require.Len(t, got, 3)
	assert.Equal(t, NoticeNotProcessed, got[2].Response)
	assert.Contains(t, ch.closed, websocket.StatusNormalClosure)

	issues, err := f.store.ListIssuesByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.Zero(t, f.matcher.calls)
}

func TestReasoningFaultKeepsGathering(t *testing.T) {
	f := newFixture(t, Config{},
		llmtest.Fail(errors.New("upstream 503")),
		llmtest.Text(`{"response":"Which brand is it?","options":null}`),
	)
	ch := newFakeChannel(channel.ErrClosed, "hello", "my laptop")

	require.NoError(t, f.orch.Run(context.Background(), ch, "u1", "c1"))

	got := replies(t, ch.frames())
	require.Len(t, got, 2)
	assert.Equal(t, NoticeRetry, got[0].Response)
	assert.Equal(t, "Which brand is it?", got[1].Response)
}

func TestIdleTimeoutNotifiesAndCloses(t *testing.T) {
	f := newFixture(t, Config{})
	ch := newFakeChannel(channel.ErrIdle)

	require.NoError(t, f.orch.Run(context.Background(), ch, "u1", "c1"))

	assert.Equal(t, []string{NoticeIdle}, ch.frames())
	assert.Equal(t, []websocket.StatusCode{websocket.StatusNormalClosure}, ch.closed)
}

type brokenStore struct {
	*store.SQLiteStore
}

func (brokenStore) AppendMessage(context.Context, string, string, domain.ChatMessage) error {
	return domain.StorageFault{Op: "insert chat message", Err: errors.New("disk I/O error")}
}

func TestStorageFaultEndsSession(t *testing.T) {
	f := newFixture(t, Config{})
	orch := NewOrchestrator(agent.NewAssistant(f.llm, nil, nil, agent.Config{}, nil), brokenStore{f.store}, f.extractor, f.matcher, Config{}, nil)
	ch := newFakeChannel(channel.ErrClosed, "hello")

	err := orch.Run(context.Background(), ch, "u1", "c1")
	require.Error(t, err)
	assert.True(t, domain.IsStorageFault(err))
	assert.Equal(t, []websocket.StatusCode{websocket.StatusInternalError}, ch.closed)
}

func TestRunReturnsOnCancel(t *testing.T) {
	f := newFixture(t, Config{})
	ch := &fakeChannel{in: make(chan string)}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, f.orch.Run(ctx, ch, "u1", "c1"))
}

func TestReplacedSessionKeepsSuccessorMemory(t *testing.T) {
	f := newFixture(t, Config{},
		llmtest.Text(`{"response":"Which brand is it?","options":null}`),
		llmtest.Text(`{"response":"Which model is it?","options":null}`),
	)
	memory := agent.NewMemory(0, nil)
	orch := NewOrchestrator(agent.NewAssistant(f.llm, nil, memory, agent.Config{}, nil), f.store, f.extractor, f.matcher, Config{}, nil)

	// The successor stays connected after its first turn.
	in := make(chan string, 1)
	in <- "my laptop is broken"
	successor := &fakeChannel{in: in}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- orch.Run(ctx, successor, "u1", "c1") }()
	require.Eventually(t, func() bool { return memory.Len() == 1 }, time.Second, 5*time.Millisecond)

	// The replaced session on the same conversation finishes and leaves.
	require.NoError(t, orch.Run(context.Background(), newFakeChannel(channel.ErrClosed, "hello"), "u1", "c1"))
	assert.Equal(t, 1, memory.Len())

	cancel()
	require.NoError(t, <-done)
	assert.Zero(t, memory.Len())
}

func TestGatheringEndsEachStreamedRound(t *testing.T) {
	final := `{"response":"Which brand is it?","options":null}`
	f := newFixture(t, Config{StreamTokens: true},
		llmtest.Step{Response: &llm.Response{
			Content:   "Checking.",
			ToolCalls: []llm.ToolCall{{ID: "call_1", Type: "function", Function: llm.FunctionCall{Name: "get_brands", Arguments: `{}`}}},
		}},
		llmtest.Text(final),
	)
	ch := newFakeChannel(channel.ErrClosed, "hello")

	require.NoError(t, f.orch.Run(context.Background(), ch, "u1", "c1"))

	frames := ch.frames()
	require.GreaterOrEqual(t, len(frames), 5)
	assert.Equal(t, []string{"Checking.", EndOfStream}, frames[:2])

	end := len(frames) - 2
	assert.Equal(t, EndOfStream, frames[end])
	assert.Equal(t, final, strings.Join(frames[2:end], ""))
	assert.JSONEq(t, final, frames[len(frames)-1])
}

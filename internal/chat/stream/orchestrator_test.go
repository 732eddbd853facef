package stream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/pentestgpt-backend/internal/chat/biz"
	"github.com/lk2023060901/pentestgpt-backend/internal/chat/tools"
	"github.com/lk2023060901/pentestgpt-backend/internal/llm"
	"github.com/lk2023060901/pentestgpt-backend/internal/pkg/logger"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingEmitter struct {
	mu      sync.Mutex
	packets []Packet
	onEmit  func(Packet)
}

func (e *recordingEmitter) Emit(p Packet) error {
	e.mu.Lock()
	e.packets = append(e.packets, p)
	e.mu.Unlock()
	if e.onEmit != nil {
		e.onEmit(p)
	}
	return nil
}

func (e *recordingEmitter) byType(t string) []Packet {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Packet
	for _, p := range e.packets {
		if p.Type == t {
			out = append(out, p)
		}
	}
	return out
}

type fakeStore struct {
	mu     sync.Mutex
	saved  []*biz.Message
	titles map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{titles: make(map[string]string)}
}

func (s *fakeStore) SaveAssistantMessage(ctx context.Context, msg *biz.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, msg)
	return nil
}

func (s *fakeStore) SetChatTitle(ctx context.Context, chatID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles[chatID] = title
	return nil
}

// fakeProvider replays one scripted event sequence per Stream call.
// Events are sent on an unbuffered channel so each one is fully
// processed before the next is delivered.
type fakeProvider struct {
	mu      sync.Mutex
	streams []func(ctx context.Context, ch chan<- llm.StreamEvent)
	calls   int
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Stream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	p.mu.Lock()
	if p.calls >= len(p.streams) {
		p.mu.Unlock()
		return nil, errors.New("no more scripted streams")
	}
	script := p.streams[p.calls]
	p.calls++
	p.mu.Unlock()

	ch := make(chan llm.StreamEvent)
	go func() {
		defer close(ch)
		script(ctx, ch)
	}()
	return ch, nil
}

func (p *fakeProvider) Complete(ctx context.Context, req llm.ChatRequest) (string, error) {
	return "", errors.New("not implemented")
}

type fakeTool struct {
	name      string
	result    *tools.Result
	err       error
	callCount int
}

func (t *fakeTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{Name: t.name, Parameters: json.RawMessage(`{"type":"object"}`)}
}

func (t *fakeTool) Execute(ctx context.Context, args json.RawMessage) (*tools.Result, error) {
	t.callCount++
	return t.result, t.err
}

type fixedTitle struct{ title string }

func (g fixedTitle) GenerateTitle(ctx context.Context, userMessage string) (string, error) {
	return g.title, nil
}

func newTestOrchestrator(t *testing.T, registry *tools.Registry, store Store, titles TitleGenerator, clock *fakeClock) *Orchestrator {
	t.Helper()
	log, err := logger.New(nil)
	require.NoError(t, err)
	if registry == nil {
		registry = tools.NewRegistry()
	}
	o := NewOrchestrator(registry, store, titles, nil, log)
	o.now = clock.Now
	return o
}

func TestRun_FinishPersistsExactlyOnce(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(t, nil, store, nil, newFakeClock())
	provider := &fakeProvider{streams: []func(context.Context, chan<- llm.StreamEvent){
		func(ctx context.Context, ch chan<- llm.StreamEvent) {
			ch <- llm.TextDelta{Text: "Hello, "}
			ch <- llm.TextDelta{Text: "world."}
			ch <- llm.Finish{Reason: llm.FinishStop}
		},
	}}
	emitter := &recordingEmitter{}

	msg, err := o.Run(context.Background(), provider, &Request{
		UserID:             "u1",
		ChatID:             "c1",
		ChatTitle:          "existing",
		Model:              "test-model",
		History:            []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		AssistantMessageID: "m1",
	}, emitter)
	require.NoError(t, err)
	require.NotNil(t, msg)

	require.Len(t, store.saved, 1)
	assert.Equal(t, "m1", store.saved[0].ID)
	assert.Equal(t, "Hello, world.", store.saved[0].Content)
	assert.Equal(t, "stop", store.saved[0].FinishReason)
	assert.Nil(t, store.saved[0].ThinkingText)

	deltas := emitter.byType("text-delta")
	require.Len(t, deltas, 2)
	assert.Equal(t, "Hello, ", deltas[0].Content)
	require.Len(t, emitter.byType("finish"), 1)
}

func TestRun_AbortPersistsViaAbortPath(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(t, nil, store, nil, newFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	provider := &fakeProvider{streams: []func(context.Context, chan<- llm.StreamEvent){
		func(ctx context.Context, ch chan<- llm.StreamEvent) {
			ch <- llm.TextDelta{Text: "partial answer"}
			<-ctx.Done()
			ch <- llm.StreamError{Err: ctx.Err()}
		},
	}}
	emitter := &recordingEmitter{onEmit: func(p Packet) {
		if p.Type == "text-delta" {
			cancel()
		}
	}}

	msg, err := o.Run(ctx, provider, &Request{
		UserID:             "u1",
		ChatID:             "c1",
		ChatTitle:          "existing",
		Model:              "test-model",
		AssistantMessageID: "m1",
	}, emitter)
	require.NoError(t, err)
	assert.Nil(t, msg)

	require.Len(t, store.saved, 1)
	assert.Equal(t, "m1", store.saved[0].ID)
	assert.Equal(t, "partial answer", store.saved[0].Content)
	assert.Equal(t, "stop", store.saved[0].FinishReason)

	// The normal-finish path never fires after an abort.
	assert.Empty(t, emitter.byType("finish"))
}

func TestRun_AbortWithoutContentPersistsNothing(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(t, nil, store, nil, newFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	provider := &fakeProvider{streams: []func(context.Context, chan<- llm.StreamEvent){
		func(ctx context.Context, ch chan<- llm.StreamEvent) {
			ch <- llm.StreamError{Err: ctx.Err()}
		},
	}}

	msg, err := o.Run(ctx, provider, &Request{
		UserID: "u1", ChatID: "c1", ChatTitle: "t", AssistantMessageID: "m1",
	}, &recordingEmitter{})
	require.NoError(t, err)
	assert.Nil(t, msg)
	assert.Empty(t, store.saved)
}

func TestRun_ThinkingTime(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	o := newTestOrchestrator(t, nil, store, nil, clock)
	provider := &fakeProvider{streams: []func(context.Context, chan<- llm.StreamEvent){
		func(ctx context.Context, ch chan<- llm.StreamEvent) {
			ch <- llm.ReasoningDelta{Text: "thinking hard"}
			ch <- llm.Finish{Reason: llm.FinishStop}
		},
	}}
	// The window opens when the delta is processed; the clock moves
	// 75s before the stream finishes.
	emitter := &recordingEmitter{onEmit: func(p Packet) {
		if p.Type == "reasoning" {
			clock.Advance(75 * time.Second)
		}
	}}

	_, err := o.Run(context.Background(), provider, &Request{
		UserID: "u1", ChatID: "c1", ChatTitle: "t", AssistantMessageID: "m1",
	}, emitter)
	require.NoError(t, err)

	thinkingPackets := emitter.byType("thinking-time")
	require.Len(t, thinkingPackets, 1)
	require.NotNil(t, thinkingPackets[0].ElapsedSecs)
	assert.Equal(t, 75, *thinkingPackets[0].ElapsedSecs)

	require.Len(t, store.saved, 1)
	require.NotNil(t, store.saved[0].ThinkingSeconds)
	assert.Equal(t, 75, *store.saved[0].ThinkingSeconds)
	require.NotNil(t, store.saved[0].ThinkingText)
	assert.Equal(t, "thinking hard", *store.saved[0].ThinkingText)
}

func TestRun_ThinkingTimeAccumulatesAcrossToolCalls(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	tool := &fakeTool{name: "webSearch", result: &tools.Result{Content: "[]"}}
	o := newTestOrchestrator(t, tools.NewRegistry(tool), store, nil, clock)

	provider := &fakeProvider{streams: []func(context.Context, chan<- llm.StreamEvent){
		func(ctx context.Context, ch chan<- llm.StreamEvent) {
			ch <- llm.ReasoningDelta{Text: "first burst"}
			ch <- llm.ToolCall{ID: "t1", Name: "webSearch", Arguments: json.RawMessage(`{}`)}
			ch <- llm.Finish{Reason: llm.FinishToolCalls}
		},
		func(ctx context.Context, ch chan<- llm.StreamEvent) {
			ch <- llm.ReasoningDelta{Text: "second burst"}
			ch <- llm.TextDelta{Text: "done"}
			ch <- llm.Finish{Reason: llm.FinishStop}
		},
	}}
	emitter := &recordingEmitter{onEmit: func(p Packet) {
		switch p.Content {
		case "first burst":
			clock.Advance(30 * time.Second)
		case "second burst":
			clock.Advance(45 * time.Second)
		}
	}}

	_, err := o.Run(context.Background(), provider, &Request{
		UserID: "u1", ChatID: "c1", ChatTitle: "t", AssistantMessageID: "m1",
	}, emitter)
	require.NoError(t, err)

	assert.Equal(t, 1, tool.callCount)
	require.Len(t, store.saved, 1)
	require.NotNil(t, store.saved[0].ThinkingSeconds)
	assert.Equal(t, 75, *store.saved[0].ThinkingSeconds)
	require.Len(t, emitter.byType("agent-status"), 1)
}

func TestRun_CitationsDeduplicated(t *testing.T) {
	store := newFakeStore()
	tool := &fakeTool{name: "webSearch", result: &tools.Result{
		Content:   "results",
		Citations: []string{"http://a", "http://a", "http://b"},
	}}
	o := newTestOrchestrator(t, tools.NewRegistry(tool), store, nil, newFakeClock())

	provider := &fakeProvider{streams: []func(context.Context, chan<- llm.StreamEvent){
		func(ctx context.Context, ch chan<- llm.StreamEvent) {
			ch <- llm.ToolCall{ID: "t1", Name: "webSearch", Arguments: json.RawMessage(`{}`)}
			ch <- llm.Finish{Reason: llm.FinishToolCalls}
		},
		func(ctx context.Context, ch chan<- llm.StreamEvent) {
			ch <- llm.TextDelta{Text: "see [1] and [2]"}
			ch <- llm.Finish{Reason: llm.FinishStop}
		},
	}}

	_, err := o.Run(context.Background(), provider, &Request{
		UserID: "u1", ChatID: "c1", ChatTitle: "t", AssistantMessageID: "m1",
	}, &recordingEmitter{})
	require.NoError(t, err)

	require.Len(t, store.saved, 1)
	assert.Equal(t, []string{"http://a", "http://b"}, store.saved[0].Citations)
}

func TestRun_EmptyCitationsPersistAsNil(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(t, nil, store, nil, newFakeClock())
	provider := &fakeProvider{streams: []func(context.Context, chan<- llm.StreamEvent){
		func(ctx context.Context, ch chan<- llm.StreamEvent) {
			ch <- llm.TextDelta{Text: "no sources"}
			ch <- llm.Finish{Reason: llm.FinishStop}
		},
	}}

	_, err := o.Run(context.Background(), provider, &Request{
		UserID: "u1", ChatID: "c1", ChatTitle: "t", AssistantMessageID: "m1",
	}, &recordingEmitter{})
	require.NoError(t, err)

	require.Len(t, store.saved, 1)
	assert.Nil(t, store.saved[0].Citations)
}

func TestRun_StreamErrorReturnedWithoutPersistence(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(t, nil, store, nil, newFakeClock())
	provider := &fakeProvider{streams: []func(context.Context, chan<- llm.StreamEvent){
		func(ctx context.Context, ch chan<- llm.StreamEvent) {
			ch <- llm.TextDelta{Text: "part"}
			ch <- llm.StreamError{Err: errors.New("upstream exploded")}
		},
	}}

	_, err := o.Run(context.Background(), provider, &Request{
		UserID: "u1", ChatID: "c1", ChatTitle: "t", AssistantMessageID: "m1",
	}, &recordingEmitter{})
	require.Error(t, err)
	assert.Empty(t, store.saved)
}

func TestRun_TerminatedErrorSwallowed(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(t, nil, store, nil, newFakeClock())
	provider := &fakeProvider{streams: []func(context.Context, chan<- llm.StreamEvent){
		func(ctx context.Context, ch chan<- llm.StreamEvent) {
			ch <- llm.TextDelta{Text: "partial"}
			ch <- llm.StreamError{Err: errors.New("stream terminated")}
		},
	}}

	msg, err := o.Run(context.Background(), provider, &Request{
		UserID: "u1", ChatID: "c1", ChatTitle: "t", AssistantMessageID: "m1",
	}, &recordingEmitter{})
	require.NoError(t, err)
	assert.Nil(t, msg)
	// Aborted with content, so the abort path persisted it.
	require.Len(t, store.saved, 1)
}

func TestRun_TitleGeneratedForNewChat(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(t, nil, store, fixedTitle{title: "Port scanning basics"}, newFakeClock())
	provider := &fakeProvider{streams: []func(context.Context, chan<- llm.StreamEvent){
		func(ctx context.Context, ch chan<- llm.StreamEvent) {
			ch <- llm.TextDelta{Text: "answer"}
			ch <- llm.Finish{Reason: llm.FinishStop}
		},
	}}
	emitter := &recordingEmitter{}

	chatReady := make(chan struct{})
	close(chatReady)

	_, err := o.Run(context.Background(), provider, &Request{
		UserID:             "u1",
		ChatID:             "c1",
		FirstUserMessage:   "how do I scan ports with nmap",
		AssistantMessageID: "m1",
		ChatReady:          chatReady,
	}, emitter)
	require.NoError(t, err)

	assert.Equal(t, "Port scanning basics", store.titles["c1"])

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	found := false
	for _, p := range emitter.packets {
		if p.ChatTitle == "Port scanning basics" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRun_RateLimitForwardedFirst(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(t, nil, store, nil, newFakeClock())
	provider := &fakeProvider{streams: []func(context.Context, chan<- llm.StreamEvent){
		func(ctx context.Context, ch chan<- llm.StreamEvent) {
			ch <- llm.TextDelta{Text: "hi"}
			ch <- llm.Finish{Reason: llm.FinishStop}
		},
	}}
	emitter := &recordingEmitter{}

	_, err := o.Run(context.Background(), provider, &Request{
		UserID: "u1", ChatID: "c1", ChatTitle: "t", AssistantMessageID: "m1",
		RateLimit: &RateLimitInfo{Remaining: 29, ResetAt: 1700000000},
	}, emitter)
	require.NoError(t, err)

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	require.NotEmpty(t, emitter.packets)
	assert.Equal(t, "ratelimit", emitter.packets[0].Type)
}

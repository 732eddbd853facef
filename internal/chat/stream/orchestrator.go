package stream

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lk2023060901/pentestgpt-backend/internal/chat/biz"
	"github.com/lk2023060901/pentestgpt-backend/internal/chat/tools"
	"github.com/lk2023060901/pentestgpt-backend/internal/llm"
	"github.com/lk2023060901/pentestgpt-backend/internal/pkg/logger"
	"github.com/lk2023060901/pentestgpt-backend/internal/pkg/tokenizer"
)

// DefaultMaxSteps bounds the tool loop: one initial generation plus
// tool-triggered continuations.
const DefaultMaxSteps = 3

// Store is the persistence surface the orchestrator writes through.
// SaveAssistantMessage must be idempotent on the message ID.
type Store interface {
	SaveAssistantMessage(ctx context.Context, message *biz.Message) error
	SetChatTitle(ctx context.Context, chatID, title string) error
}

// Request describes one streaming generation.
type Request struct {
	UserID string

	// ChatID is the chat the final message belongs to. It may point at
	// a row that does not exist yet; ChatReady gates persistence.
	ChatID string

	// ChatTitle is the existing title. Empty means this is a brand-new
	// chat and a title side task runs.
	ChatTitle string

	// FirstUserMessage feeds the title side task.
	FirstUserMessage string

	Model        string
	SystemPrompt string
	History      []llm.Message

	// Tools selects a subset of registered tools by name. Nil offers
	// all of them.
	Tools []string

	// RateLimit, when set, is forwarded to the UI as the first packet.
	RateLimit *RateLimitInfo

	// AssistantMessageID is the stable ID of the message being
	// generated. Generated here when empty. Both finalization paths
	// persist under this ID.
	AssistantMessageID string

	// ChatReady is closed once the chat row exists. No persistence
	// happens before that. Nil means the chat already exists.
	ChatReady <-chan struct{}
}

// Orchestrator runs one model generation end to end: event handling,
// the tool loop, and exactly-once finalization on finish or abort.
type Orchestrator struct {
	registry *tools.Registry
	store    Store
	titles   TitleGenerator
	counter  *tokenizer.Counter
	log      *logger.Logger
	maxSteps int

	// now is swappable for tests.
	now func() time.Time
}

func NewOrchestrator(registry *tools.Registry, store Store, titles TitleGenerator, counter *tokenizer.Counter, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		store:    store,
		titles:   titles,
		counter:  counter,
		log:      log,
		maxSteps: DefaultMaxSteps,
		now:      time.Now,
	}
}

// Run drives the stream to one of its two terminal states and returns
// the persisted message, or nil when nothing was persisted. Context
// cancellation is the abort trigger; it is not returned as an error.
func (o *Orchestrator) Run(ctx context.Context, provider llm.Provider, req *Request, emit Emitter) (*biz.Message, error) {
	if req.AssistantMessageID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, err
		}
		req.AssistantMessageID = id.String()
	}

	state := NewState()

	// Title side task. Best-effort: the finish path waits for it, the
	// abort path takes it only if already done.
	var titleCh chan string
	if req.ChatTitle == "" && req.ChatID != "" && o.titles != nil {
		titleCh = make(chan string, 1)
		go func() {
			title, err := o.titles.GenerateTitle(context.WithoutCancel(ctx), req.FirstUserMessage)
			if err != nil {
				o.log.Warn("title generation failed", zap.Error(err))
				titleCh <- ""
				return
			}
			if title != "" {
				_ = emit.Emit(chatTitlePacket(title))
			}
			titleCh <- title
		}()
	}

	if req.RateLimit != nil {
		_ = emit.Emit(rateLimitPacket(req.RateLimit))
	}

	streamErr := o.consume(ctx, provider, req, state, emit)

	switch {
	case streamErr == nil:
		return o.finalizeFinish(ctx, req, state, titleCh, emit)
	case isTerminated(ctx, streamErr):
		o.finalizeAbort(ctx, req, state, titleCh, emit)
		return nil, nil
	default:
		o.log.Error("stream failed",
			zap.String("model", req.Model),
			zap.Error(streamErr))
		return nil, streamErr
	}
}

// consume runs the multi-step stream loop, mutating state as events
// arrive. Returns the first stream error, or nil on normal completion.
func (o *Orchestrator) consume(ctx context.Context, provider llm.Provider, req *Request, state *State, emit Emitter) error {
	history := append([]llm.Message(nil), req.History...)
	defs := o.toolDefinitions(req.Tools)

	for step := 0; step < o.maxSteps; step++ {
		events, err := provider.Stream(ctx, llm.ChatRequest{
			Model:    req.Model,
			System:   req.SystemPrompt,
			Messages: history,
			Tools:    defs,
		})
		if err != nil {
			return err
		}

		// FinishReason carries across steps; the last step's reason is
		// what gets persisted.
		state.FinishReason = llm.FinishStop
		var calls []llm.ToolCall
		var streamErr error

		for ev := range events {
			switch ev := ev.(type) {
			case llm.TextDelta:
				state.AppendText(ev.Text)
				_ = emit.Emit(textDeltaPacket(ev.Text))
			case llm.ReasoningDelta:
				state.AppendReasoning(ev.Text, o.now())
				_ = emit.Emit(reasoningPacket(ev.Text))
			case llm.ToolCall:
				o.onToolCall(state, emit)
				calls = append(calls, ev)
			case llm.Finish:
				state.FinishReason = ev.Reason
				if ev.Usage != nil {
					state.Usage = ev.Usage
				}
			case llm.StreamError:
				streamErr = ev.Err
			}
		}

		if streamErr != nil {
			return streamErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if state.FinishReason != llm.FinishToolCalls || len(calls) == 0 {
			return nil
		}

		history = append(history, llm.Message{Role: llm.RoleAssistant, ToolCalls: calls})
		for _, call := range calls {
			history = append(history, o.runTool(ctx, state, call))
		}
	}
	return nil
}

// onToolCall marks the pause in generation: thinking stops, the UI is
// told agent activity ended, and blank-line separators keep pre-tool
// and post-tool content visually apart.
func (o *Orchestrator) onToolCall(state *State, emit Emitter) {
	state.CloseThinkingWindow(o.now())
	_ = emit.Emit(agentStatusPacket("none"))
	if state.ReasoningText.Len() > 0 {
		state.ReasoningText.WriteString("\n\n")
		_ = emit.Emit(reasoningPacket("\n\n"))
	}
	if state.AssistantMessage.Len() > 0 {
		state.AssistantMessage.WriteString("\n\n")
		_ = emit.Emit(textDeltaPacket("\n\n"))
	}
}

// runTool executes one tool call and returns the tool turn to append
// to history. Tool failures are fed back to the model as result text
// rather than killing the stream.
func (o *Orchestrator) runTool(ctx context.Context, state *State, call llm.ToolCall) llm.Message {
	res, err := o.registry.Execute(ctx, call.Name, call.Arguments)
	if err != nil {
		o.log.Warn("tool execution failed",
			zap.String("tool", call.Name),
			zap.Error(err))
		return llm.Message{Role: llm.RoleTool, Content: "tool error: " + err.Error(), ToolCallID: call.ID}
	}
	state.Citations = append(state.Citations, res.Citations...)
	return llm.Message{Role: llm.RoleTool, Content: res.Content, ToolCallID: call.ID}
}

// finalizeFinish is the normal-completion terminal state.
func (o *Orchestrator) finalizeFinish(ctx context.Context, req *Request, state *State, titleCh chan string, emit Emitter) (*biz.Message, error) {
	state.CloseThinkingWindow(o.now())
	if state.HasThinking() {
		_ = emit.Emit(thinkingTimePacket(state.ThinkingSeconds()))
	}

	title := ""
	if titleCh != nil {
		title = <-titleCh
	}
	if req.ChatReady != nil {
		select {
		case <-req.ChatReady:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	msg := o.buildMessage(req, state, string(state.FinishReason))
	if err := o.store.SaveAssistantMessage(ctx, msg); err != nil {
		return nil, err
	}
	if title != "" {
		if err := o.store.SetChatTitle(ctx, req.ChatID, title); err != nil {
			o.log.Warn("failed to set chat title", zap.String("chat_id", req.ChatID), zap.Error(err))
		}
		state.GeneratedTitle = title
	}

	_ = emit.Emit(finishPacket())
	return msg, nil
}

// finalizeAbort is the cancellation terminal state. It persists what
// accumulated, if anything, and never returns an error: a failure here
// must not crash the cancellation path.
func (o *Orchestrator) finalizeAbort(ctx context.Context, req *Request, state *State, titleCh chan string, emit Emitter) {
	if !state.HasContent() || req.ChatID == "" {
		return
	}

	state.CloseThinkingWindow(o.now())
	if state.HasThinking() {
		_ = emit.Emit(thinkingTimePacket(state.ThinkingSeconds()))
	}

	// The request context is canceled; persistence needs its own.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if req.ChatReady != nil {
		select {
		case <-req.ChatReady:
		case <-saveCtx.Done():
			o.log.Error("abort persistence skipped: chat setup never completed",
				zap.String("chat_id", req.ChatID))
			return
		}
	}

	// The title task may not be done; take its result only if it is.
	title := ""
	if titleCh != nil {
		select {
		case title = <-titleCh:
		default:
		}
	}

	msg := o.buildMessage(req, state, string(llm.FinishStop))
	if err := o.store.SaveAssistantMessage(saveCtx, msg); err != nil {
		o.log.Error("abort persistence failed",
			zap.String("chat_id", req.ChatID),
			zap.String("message_id", msg.ID),
			zap.Error(err))
		return
	}
	if title != "" {
		if err := o.store.SetChatTitle(saveCtx, req.ChatID, title); err != nil {
			o.log.Warn("failed to set chat title", zap.String("chat_id", req.ChatID), zap.Error(err))
		}
		state.GeneratedTitle = title
	}
}

func (o *Orchestrator) buildMessage(req *Request, state *State, finishReason string) *biz.Message {
	msg := &biz.Message{
		ID:           req.AssistantMessageID,
		ChatID:       req.ChatID,
		Role:         llm.RoleAssistant,
		Content:      state.AssistantMessage.String(),
		Citations:    state.FinalCitations(),
		FinishReason: finishReason,
		Model:        req.Model,
	}
	if state.HasThinking() {
		thinking := state.ReasoningText.String()
		secs := state.ThinkingSeconds()
		msg.ThinkingText = &thinking
		msg.ThinkingSeconds = &secs
	}
	if o.counter != nil {
		count := o.counter.Count(msg.Content)
		msg.TokenCount = &count
	}
	return msg
}

func (o *Orchestrator) toolDefinitions(names []string) []llm.ToolDefinition {
	all := o.registry.Definitions()
	if names == nil {
		return all
	}
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}
	defs := make([]llm.ToolDefinition, 0, len(all))
	for _, d := range all {
		if _, ok := want[d.Name]; ok {
			defs = append(defs, d)
		}
	}
	return defs
}

// isTerminated reports whether a stream error is a cancellation
// artifact rather than a real failure. Providers racing an aborted
// connection surface either the context error or a "terminated"
// message; both are expected and swallowed.
func isTerminated(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "terminated")
}

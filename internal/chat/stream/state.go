package stream

import (
	"math"
	"strings"
	"time"

	"github.com/lk2023060901/pentestgpt-backend/internal/llm"
)

// State holds everything one in-flight response accumulates. It is
// owned exclusively by the goroutine running the stream; nothing else
// mutates it.
type State struct {
	AssistantMessage strings.Builder
	ReasoningText    strings.Builder

	// Citations is a raw append log during streaming. Dedup happens
	// once, at finalization, via FinalCitations.
	Citations []string

	// Thinking windows. A window opens on the first reasoning delta
	// after a non-thinking period and closes on a tool call, finish,
	// or abort. Elapsed time accumulates across windows.
	IsThinking      bool
	ThinkingStart   time.Time
	thinkingElapsed time.Duration

	GeneratedTitle string
	FinishReason   llm.FinishReason
	Usage          *llm.Usage
}

func NewState() *State {
	return &State{FinishReason: llm.FinishStop}
}

// AppendText records a text delta.
func (s *State) AppendText(text string) {
	s.AssistantMessage.WriteString(text)
}

// AppendReasoning records a reasoning delta, opening a thinking window
// if none is open.
func (s *State) AppendReasoning(text string, now time.Time) {
	s.ReasoningText.WriteString(text)
	if !s.IsThinking {
		s.IsThinking = true
		s.ThinkingStart = now
	}
}

// CloseThinkingWindow folds an open window into the accumulated
// elapsed time. Safe to call when no window is open.
func (s *State) CloseThinkingWindow(now time.Time) {
	if !s.IsThinking {
		return
	}
	s.thinkingElapsed += now.Sub(s.ThinkingStart)
	s.IsThinking = false
}

// ThinkingSeconds returns the total thinking time across all windows,
// rounded to whole seconds. Call after CloseThinkingWindow.
func (s *State) ThinkingSeconds() int {
	return int(math.Round(float64(s.thinkingElapsed.Milliseconds()) / 1000))
}

// HasThinking reports whether any reasoning was emitted.
func (s *State) HasThinking() bool {
	return s.ReasoningText.Len() > 0
}

// HasContent reports whether the stream produced anything worth
// persisting.
func (s *State) HasContent() bool {
	return strings.TrimSpace(s.AssistantMessage.String()) != "" ||
		strings.TrimSpace(s.ReasoningText.String()) != ""
}

// FinalCitations deduplicates the citation log keeping first-seen
// order. An empty log yields nil, not an empty slice, so the persisted
// field is absent rather than [].
func (s *State) FinalCitations() []string {
	if len(s.Citations) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(s.Citations))
	out := make([]string, 0, len(s.Citations))
	for _, c := range s.Citations {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

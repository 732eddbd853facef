package llm

import "encoding/json"

// StreamEvent is the closed set of events a provider stream can emit.
// The unexported marker method keeps the union sealed so consumers can
// switch over every case.
type StreamEvent interface {
	isStreamEvent()
}

// TextDelta carries a fragment of the assistant's visible answer.
type TextDelta struct {
	Text string
}

// ReasoningDelta carries a fragment of the model's thinking output.
type ReasoningDelta struct {
	Text string
}

// ToolCall is emitted once a tool invocation is fully assembled.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Finish terminates a successful stream.
type Finish struct {
	Reason FinishReason
	Usage  *Usage
}

// StreamError terminates a failed stream.
type StreamError struct {
	Err error
}

func (TextDelta) isStreamEvent()      {}
func (ReasoningDelta) isStreamEvent() {}
func (ToolCall) isStreamEvent()       {}
func (Finish) isStreamEvent()         {}
func (StreamError) isStreamEvent()    {}

func (e StreamError) Error() string { return e.Err.Error() }

// FinishReason says why the model stopped.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishMaxTokens FinishReason = "max_tokens"
	FinishToolCalls FinishReason = "tool_calls"
	FinishFilter    FinishReason = "content_filter"
)

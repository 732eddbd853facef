package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestState_ThinkingSecondsRounds(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	s := NewState()
	s.AppendReasoning("a", base)
	s.CloseThinkingWindow(base.Add(74400 * time.Millisecond))
	assert.Equal(t, 74, s.ThinkingSeconds())

	s = NewState()
	s.AppendReasoning("a", base)
	s.CloseThinkingWindow(base.Add(74500 * time.Millisecond))
	assert.Equal(t, 75, s.ThinkingSeconds())
}

func TestState_CloseWithoutWindowIsNoop(t *testing.T) {
	s := NewState()
	s.CloseThinkingWindow(time.Now())
	assert.Equal(t, 0, s.ThinkingSeconds())
	assert.False(t, s.HasThinking())
}

func TestState_HasContent(t *testing.T) {
	s := NewState()
	assert.False(t, s.HasContent())

	s.AppendText("   \n")
	assert.False(t, s.HasContent())

	s.AppendText("x")
	assert.True(t, s.HasContent())

	s = NewState()
	s.AppendReasoning("thought", time.Now())
	assert.True(t, s.HasContent())
}

func TestState_FinalCitationsKeepFirstSeenOrder(t *testing.T) {
	s := NewState()
	s.Citations = []string{"http://b", "http://a", "http://b", "http://a"}
	assert.Equal(t, []string{"http://b", "http://a"}, s.FinalCitations())

	s = NewState()
	assert.Nil(t, s.FinalCitations())
}

// Package sse writes server-sent-event streams over a gin response.
package sse

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
)

// DataStream writes one JSON object per SSE data frame. Send is safe
// for concurrent use; side tasks may push packets while the main loop
// is streaming.
type DataStream struct {
	c  *gin.Context
	mu sync.Mutex
}

// NewDataStream sets the SSE response headers and returns a writer.
func NewDataStream(c *gin.Context) *DataStream {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	return &DataStream{c: c}
}

// Send marshals v and writes it as one data frame, flushing
// immediately.
func (s *DataStream) Send(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal sse packet: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.c.Writer, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.c.Writer.Flush()
	return nil
}

// Comment writes an SSE comment line, useful as a heartbeat.
func (s *DataStream) Comment(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.c.Writer, ": %s\n\n", text); err != nil {
		return err
	}
	s.c.Writer.Flush()
	return nil
}

package stream

// Packet is one UI data-channel event. Exactly one shape per type:
//
//	{"type":"ratelimit","content":{...}}
//	{"type":"agent-status","content":"none"}
//	{"type":"reasoning","content":"..."}
//	{"type":"text-delta","content":"..."}
//	{"type":"thinking-time","elapsed_secs":N}
//	{"chatTitle":"..."}
//	{"type":"finish"}
type Packet struct {
	Type        string      `json:"type,omitempty"`
	Content     interface{} `json:"content,omitempty"`
	ElapsedSecs *int        `json:"elapsed_secs,omitempty"`
	ChatTitle   string      `json:"chatTitle,omitempty"`
}

// RateLimitInfo is forwarded to the UI as the first packet so the
// client can show remaining quota before any tokens arrive.
type RateLimitInfo struct {
	Remaining int   `json:"remaining"`
	ResetAt   int64 `json:"reset_at"`
}

// Emitter delivers packets to the client. Emit must be safe for
// concurrent use; the title side task emits from its own goroutine.
type Emitter interface {
	Emit(p Packet) error
}

func rateLimitPacket(info *RateLimitInfo) Packet {
	return Packet{Type: "ratelimit", Content: info}
}

func agentStatusPacket(status string) Packet {
	return Packet{Type: "agent-status", Content: status}
}

func reasoningPacket(text string) Packet {
	return Packet{Type: "reasoning", Content: text}
}

func textDeltaPacket(text string) Packet {
	return Packet{Type: "text-delta", Content: text}
}

func thinkingTimePacket(secs int) Packet {
	return Packet{Type: "thinking-time", ElapsedSecs: &secs}
}

func chatTitlePacket(title string) Packet {
	return Packet{ChatTitle: title}
}

func finishPacket() Packet {
	return Packet{Type: "finish"}
}

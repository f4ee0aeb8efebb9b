package messagequeue

import "encoding/json"

// CallCompletedPayload is the schema for tools.call.completed messages.
// Arguments and output are stored verbatim, so they stay raw here.
type CallCompletedPayload struct {
	ToolName   string          `json:"tool_name"`
	Category   string          `json:"category,omitempty"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	Succeeded  bool            `json:"succeeded"`
	Error      string          `json:"error,omitempty"`
	DurationMS int64           `json:"duration_ms,omitempty"`
	Timestamp  string          `json:"timestamp,omitempty"` // RFC 3339
	SessionID  string          `json:"session_id,omitempty"`
}

// CallCommittedPayload is the schema for tools.call.committed messages.
type CallCommittedPayload struct {
	SequenceID int64  `json:"sequence_id"`
	ToolName   string `json:"tool_name"`
	Category   string `json:"category,omitempty"`
	Succeeded  bool   `json:"succeeded"`
	SessionID  string `json:"session_id,omitempty"`
}

package linker

import (
	"encoding/json"
)

// Role constants for upstream messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one entry of the message array sent to the upstream API.
// Content is always a block slice after decoding; the upstream wire format
// allows a bare string, which decodes to a single text block so both
// representations are indistinguishable downstream.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// wireMessage tolerates both content representations.
type wireMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// UnmarshalJSON decodes an upstream message, canonicalizing a string content
// field into a single text block.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.Role = w.Role
	m.Content = nil

	if len(w.Content) == 0 {
		return nil
	}

	var s string
	if err := json.Unmarshal(w.Content, &s); err == nil {
		m.Content = []ContentBlock{TextBlock(s)}
		return nil
	}

	return json.Unmarshal(w.Content, &m.Content)
}

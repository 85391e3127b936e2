package linker

import (
	"encoding/json"
	"time"
)

// DefaultBranch is the branch every new conversation root starts on.
const DefaultBranch = "main"

// LinkingRequest is the ephemeral input to the correlation engine, built once
// per incoming proxied API call.
type LinkingRequest struct {
	Domain       string          `json:"domain"`
	RequestID    string          `json:"request_id"`
	SystemPrompt *string         `json:"system,omitempty"`
	Messages     []Message       `json:"messages"`
	Timestamp    time.Time       `json:"timestamp,omitempty"`
	ResponseBody json.RawMessage `json:"response,omitempty"` // consumed by the write path, never by the engine
}

// LinkingResult is the engine's verdict for one request. The hash fields ride
// along so the write path can persist the StoredRequestRecord without
// re-running normalization.
type LinkingResult struct {
	ConversationID      string  `json:"conversation_id"`
	ParentRequestID     *string `json:"parent_request_id,omitempty"`
	BranchID            string  `json:"branch_id"`
	IsSubtask           bool    `json:"is_subtask"`
	ParentTaskRequestID *string `json:"parent_task_request_id,omitempty"`

	CurrentMessageHash string  `json:"current_message_hash"`
	ParentMessageHash  *string `json:"parent_message_hash,omitempty"`
	SystemHash         string  `json:"system_hash"`
	MessageCount       int     `json:"message_count"`
}

package linker

import (
	"time"
)

// StoredRequestRecord is the persisted form of a correlated request, written
// by the storage path after linking and read back by the engine's query
// executors. Records are immutable once written, except for late-arriving
// task-invocation backfill.
type StoredRequestRecord struct {
	RequestID           string          `json:"request_id" db:"request_id"`
	Domain              string          `json:"domain" db:"domain"`
	Timestamp           time.Time       `json:"timestamp" db:"timestamp"`
	ConversationID      string          `json:"conversation_id" db:"conversation_id"`
	BranchID            string          `json:"branch_id" db:"branch_id"`
	CurrentMessageHash  string          `json:"current_message_hash" db:"current_message_hash"`
	ParentMessageHash   *string         `json:"parent_message_hash,omitempty" db:"parent_message_hash"`
	SystemHash          string          `json:"system_hash" db:"system_hash"`
	ParentRequestID     *string         `json:"parent_request_id,omitempty" db:"parent_request_id"`
	IsSubtask           bool            `json:"is_subtask" db:"is_subtask"`
	ParentTaskRequestID *string         `json:"parent_task_request_id,omitempty" db:"parent_task_request_id"`
	TaskToolInvocation  *TaskInvocation `json:"task_tool_invocation,omitempty" db:"task_tool_invocation"`
	MessageCount        int             `json:"message_count" db:"message_count"`

	// ResponseText is the flattened text of the assistant response, when the
	// write path captured one. IsSummarization marks requests made under the
	// summarization system prompt; the compact-continuation detector matches
	// incoming summaries against exactly these responses.
	ResponseText    *string `json:"response_text,omitempty" db:"response_text"`
	IsSummarization bool    `json:"is_summarization" db:"is_summarization"`
}

// TaskInvocation is the structured record of a task-launching tool call found
// in the response to a stored request.
type TaskInvocation struct {
	RequestID      string    `json:"request_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	BranchID       string    `json:"branch_id,omitempty"`
	Timestamp      time.Time `json:"timestamp,omitempty"`
	ToolUseID      string    `json:"tool_use_id"`
	ToolName       string    `json:"tool_name"`
	Prompt         string    `json:"prompt"`
}

// ParentCandidate is a parent-query row: the matching record enriched with
// the accumulated message count of its containing conversation, which drives
// the smallest-conversation tie-break.
type ParentCandidate struct {
	Record               StoredRequestRecord `json:"record"`
	ConversationMessages int                 `json:"conversation_messages"`
}

// SummaryCandidate is a prior summarization response considered as the source
// of a compact continuation.
type SummaryCandidate struct {
	RequestID      string    `json:"request_id"`
	ConversationID string    `json:"conversation_id"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
}

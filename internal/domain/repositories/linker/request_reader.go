package linker

import (
	"context"

	"stitch/internal/domain/models/linker"
)

// RequestReader defines the remaining read operations the engine needs over
// stored requests: by-id fetches for conversation inheritance, child listing
// for fork detection, subtask counting for branch numbering, and
// summarization-response lookup for compact matching.
type RequestReader interface {
	// GetByID retrieves a stored request record.
	// Returns domain.ErrNotFound if no record exists.
	GetByID(ctx context.Context, requestID string) (*linker.StoredRequestRecord, error)

	// ListChildren retrieves all records whose parent_request_id equals
	// requestID, ordered by timestamp. Returns an empty slice for a leaf.
	ListChildren(ctx context.Context, requestID string) ([]linker.StoredRequestRecord, error)

	// ListConversation retrieves every record sharing a conversation id,
	// ordered by timestamp. Returns an empty slice for an unknown id.
	ListConversation(ctx context.Context, conversationID string) ([]linker.StoredRequestRecord, error)

	// CountSubtasks returns how many stored requests were already linked as
	// sub-tasks of the given launching request.
	CountSubtasks(ctx context.Context, parentTaskRequestID string) (int, error)

	// FindSummaryResponses retrieves prior assistant responses produced under
	// a summarization system prompt for the domain, newest first. Candidates
	// carry the response text used for compact-continuation matching.
	FindSummaryResponses(ctx context.Context, domain string) ([]linker.SummaryCandidate, error)
}

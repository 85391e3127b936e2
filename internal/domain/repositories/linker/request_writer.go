package linker

import (
	"context"

	"stitch/internal/domain/models/linker"
)

// RequestWriter persists correlated requests. The engine itself never writes;
// this interface belongs to the storage path that calls it.
type RequestWriter interface {
	// Insert writes a new stored request record.
	// Returns domain.ErrConflict if the request id already exists.
	Insert(ctx context.Context, record *linker.StoredRequestRecord) error

	// AttachTaskInvocation backfills the task_tool_invocation column of an
	// already-written record. The upstream response (and therefore any task
	// launch inside it) can arrive after the record itself was persisted.
	// Returns domain.ErrNotFound if the record does not exist.
	AttachTaskInvocation(ctx context.Context, requestID string, invocation *linker.TaskInvocation) error
}

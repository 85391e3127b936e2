package linker

import (
	"context"
	"time"

	"stitch/internal/domain/models/linker"
)

// SubtaskQueryExecutor finds prior requests whose stored response contains an
// invocation of the task-launching tool.
type SubtaskQueryExecutor interface {
	// FindTaskInvocations returns task-launch candidates for the domain
	// recorded at or after since.
	//
	// A non-nil prompt restricts the query to invocations whose prompt
	// argument equals it exactly, which the store can answer with an
	// index-backed containment lookup instead of a scan. Returns an empty
	// slice when nothing matches.
	FindTaskInvocations(ctx context.Context, domain string, prompt *string, since time.Time) ([]linker.TaskInvocation, error)
}

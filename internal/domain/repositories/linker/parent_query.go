package linker

import (
	"context"

	"stitch/internal/domain/models/linker"
)

// ParentQueryExecutor finds stored requests whose full-conversation hash
// equals a new request's parent hash. Backed by the relational store; the
// engine treats it as a blocking, read-only call.
type ParentQueryExecutor interface {
	// FindParents returns candidate parent records for the given domain whose
	// current_message_hash equals parentHash.
	//
	// systemHash nil relaxes the match to content continuity only (system
	// prompt drift and summarization overrides). excludeRequestID removes the
	// request being linked from its own candidate set so repeated linking of
	// the same request stays idempotent.
	//
	// Each candidate carries the accumulated message count of its containing
	// conversation for tie-breaking. Returns an empty slice when nothing
	// matches; an error only on executor failure.
	FindParents(ctx context.Context, domain, parentHash string, systemHash *string, excludeRequestID string) ([]linker.ParentCandidate, error)
}

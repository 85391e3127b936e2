package linker

import (
	"context"
	"fmt"
	"time"

	"stitch/internal/domain"
	linkerModels "stitch/internal/domain/models/linker"
)

// resolveBranch decides which branch the new request lands on, given its
// matched parent.
//
// A parent with no other children passes its own branch through unchanged;
// branches never silently reset to "main" mid-thread. A parent that already
// has a child is a fork point: the existing child keeps its branch, and the
// new request gets a freshly minted one.
func (s *Service) resolveBranch(ctx context.Context, parent *linkerModels.StoredRequestRecord, timestamp time.Time, excludeRequestID string) (string, error) {
	children, err := s.reader.ListChildren(ctx, parent.RequestID)
	if err != nil {
		if s.metrics != nil {
			s.metrics.QueryFailuresTotal.WithLabelValues("request_reader").Inc()
		}
		return "", &domain.QueryFailureError{Executor: "request_reader", Err: err}
	}

	siblings := make([]linkerModels.StoredRequestRecord, 0, len(children))
	for _, child := range children {
		if child.RequestID != excludeRequestID {
			siblings = append(siblings, child)
		}
	}

	if len(siblings) == 0 {
		return parent.BranchID, nil
	}

	return mintBranchID(timestamp, siblings, parent.BranchID), nil
}

// mintBranchID names a fork branch after the request's wall-clock time,
// suffixing a counter when the same second already produced a sibling.
func mintBranchID(timestamp time.Time, siblings []linkerModels.StoredRequestRecord, parentBranch string) string {
	taken := map[string]bool{
		linkerModels.DefaultBranch: true,
		parentBranch:               true,
	}
	for _, sibling := range siblings {
		taken[sibling.BranchID] = true
	}

	base := "branch_" + timestamp.Format("150405")
	if !taken[base] {
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s_%d", base, n)
		if !taken[candidate] {
			return candidate
		}
	}
}

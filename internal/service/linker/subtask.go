package linker

import (
	"context"
	"fmt"

	"stitch/internal/domain"
	linkerModels "stitch/internal/domain/models/linker"
)

// detectSubtask recognizes a new single-message conversation as the spawned
// target of a task-tool invocation recorded shortly before it. The sole
// message must equal the invocation's prompt argument, and the launching
// response must fall inside the subtask window (task launches are followed
// almost immediately by the spawned task's first call).
//
// Like compact detection this is best-effort; nil/nil means "not a subtask".
func (s *Service) detectSubtask(ctx context.Context, req *linkerModels.LinkingRequest) (*linkerModels.LinkingResult, error) {
	raw := messageText(&req.Messages[0])
	prompt := collapseWhitespace(raw)
	if prompt == "" {
		return nil, nil
	}

	// Fast path: the store restricts the scan to responses structurally
	// containing the message text as their invocation prompt. The containment
	// match is exact, so it only fires when the spawned request reproduced
	// the prompt byte-for-byte; whitespace drift falls through to the
	// bounded scan below, where pickLaunch compares normalized forms.
	since := req.Timestamp.Add(-s.cfg.TaskLookback)
	invocations, err := s.subtasks.FindTaskInvocations(ctx, req.Domain, &raw, since)
	if err != nil {
		if s.metrics != nil {
			s.metrics.QueryFailuresTotal.WithLabelValues("subtask_query").Inc()
		}
		return nil, &domain.QueryFailureError{Executor: "subtask_query", Err: err}
	}

	if len(invocations) == 0 {
		invocations, err = s.subtasks.FindTaskInvocations(ctx, req.Domain, nil, since)
		if err != nil {
			if s.metrics != nil {
				s.metrics.QueryFailuresTotal.WithLabelValues("subtask_query").Inc()
			}
			return nil, &domain.QueryFailureError{Executor: "subtask_query", Err: err}
		}
	}

	launch := s.pickLaunch(invocations, req, prompt)
	if launch == nil {
		return nil, nil
	}

	parentRecord, err := s.reader.GetByID(ctx, launch.RequestID)
	if err != nil {
		if s.metrics != nil {
			s.metrics.QueryFailuresTotal.WithLabelValues("request_reader").Inc()
		}
		return nil, &domain.QueryFailureError{Executor: "request_reader", Err: err}
	}

	priorSubtasks, err := s.reader.CountSubtasks(ctx, launch.RequestID)
	if err != nil {
		if s.metrics != nil {
			s.metrics.QueryFailuresTotal.WithLabelValues("request_reader").Inc()
		}
		return nil, &domain.QueryFailureError{Executor: "request_reader", Err: err}
	}

	parentTaskID := launch.RequestID
	return &linkerModels.LinkingResult{
		ConversationID:      parentRecord.ConversationID,
		BranchID:            fmt.Sprintf("subtask_%d", priorSubtasks+1),
		IsSubtask:           true,
		ParentTaskRequestID: &parentTaskID,
	}, nil
}

// pickLaunch selects the qualifying invocation: prompt equal after
// normalization, recorded inside the subtask window before the request.
// When several qualify (concurrent launches of identical prompts), the most
// recent wins, with request id as the final deterministic tie-break.
func (s *Service) pickLaunch(invocations []linkerModels.TaskInvocation, req *linkerModels.LinkingRequest, prompt string) *linkerModels.TaskInvocation {
	var best *linkerModels.TaskInvocation
	for i := range invocations {
		inv := &invocations[i]
		if inv.RequestID == req.RequestID {
			continue
		}
		if collapseWhitespace(inv.Prompt) != prompt {
			continue
		}
		age := req.Timestamp.Sub(inv.Timestamp)
		if age < 0 || age > s.cfg.SubtaskWindow {
			continue
		}
		if best == nil ||
			inv.Timestamp.After(best.Timestamp) ||
			(inv.Timestamp.Equal(best.Timestamp) && inv.RequestID < best.RequestID) {
			best = inv
		}
	}
	return best
}

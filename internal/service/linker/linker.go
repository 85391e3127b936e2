// Package linker implements the conversation correlation engine: it
// reconstructs conversation identity, branch topology and sub-task
// relationships from the content of otherwise-unrelated stateless API
// requests.
package linker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"stitch/internal/domain"
	linkerModels "stitch/internal/domain/models/linker"
	linkerRepo "stitch/internal/domain/repositories/linker"
	"stitch/internal/markers"
	"stitch/internal/metrics"
)

// Config carries the engine's tunable windows. The zero value is usable;
// missing fields fall back to the defaults below.
type Config struct {
	// SubtaskWindow is how long after a task-tool launch the spawned task's
	// first call may arrive and still be linked.
	SubtaskWindow time.Duration

	// TaskLookback bounds how far back the subtask query scans for
	// task-tool invocations.
	TaskLookback time.Duration

	// SummaryPrefixRunes is how many leading runes of a normalized summary
	// must agree for compact-continuation matching.
	SummaryPrefixRunes int
}

const (
	defaultSubtaskWindow      = 30 * time.Second
	defaultTaskLookback       = 24 * time.Hour
	defaultSummaryPrefixRunes = 200
)

func (c Config) withDefaults() Config {
	if c.SubtaskWindow <= 0 {
		c.SubtaskWindow = defaultSubtaskWindow
	}
	if c.TaskLookback <= 0 {
		c.TaskLookback = defaultTaskLookback
	}
	if c.SummaryPrefixRunes <= 0 {
		c.SummaryPrefixRunes = defaultSummaryPrefixRunes
	}
	return c
}

// Service is the correlation engine. It holds no shared mutable state beyond
// the optional lookup cache and performs all store access through the
// injected executors, so concurrent Link calls from multiple instances are
// safe as long as previously written records are visible to later reads.
type Service struct {
	parents  linkerRepo.ParentQueryExecutor
	subtasks linkerRepo.SubtaskQueryExecutor
	reader   linkerRepo.RequestReader
	markers  *markers.Set
	cfg      Config
	cache    *LookupCache
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewService creates the correlation engine. cache and m may be nil.
func NewService(
	parents linkerRepo.ParentQueryExecutor,
	subtasks linkerRepo.SubtaskQueryExecutor,
	reader linkerRepo.RequestReader,
	markerSet *markers.Set,
	cfg Config,
	cache *LookupCache,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		parents:  parents,
		subtasks: subtasks,
		reader:   reader,
		markers:  markerSet,
		cfg:      cfg.withDefaults(),
		cache:    cache,
		metrics:  m,
		logger:   logger,
	}
}

// Link correlates one request: it computes the content hashes, finds the
// best-fit parent, resolves the branch, and recognizes compact continuations
// and spawned sub-tasks. It is terminal in one call and performs no retries;
// executor failures surface as ErrQueryFailed rather than degrading into a
// spurious new root.
func (s *Service) Link(ctx context.Context, req *linkerModels.LinkingRequest) (*linkerModels.LinkingResult, error) {
	started := time.Now()

	if err := validateLinkingRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	// Work on a copy so defaulting never mutates the caller's request.
	linkReq := *req
	if linkReq.RequestID == "" {
		linkReq.RequestID = uuid.New().String()
	}
	if linkReq.Timestamp.IsZero() {
		linkReq.Timestamp = time.Now().UTC()
	}

	hashes := computeHashes(linkReq.Messages, linkReq.SystemPrompt, s.markers.SystemReminderPrefix)

	result, outcome, err := s.link(ctx, &linkReq, hashes)
	if err != nil {
		return nil, err
	}

	result.CurrentMessageHash = hashes.full
	result.ParentMessageHash = hashes.parent
	result.SystemHash = hashes.system
	result.MessageCount = len(linkReq.Messages)

	if s.metrics != nil {
		s.metrics.LinkOutcomesTotal.WithLabelValues(outcome).Inc()
		s.metrics.LinkDuration.Observe(time.Since(started).Seconds())
	}

	s.logger.Debug("request linked",
		"domain", linkReq.Domain,
		"request_id", linkReq.RequestID,
		"conversation_id", result.ConversationID,
		"branch_id", result.BranchID,
		"outcome", outcome,
	)

	return result, nil
}

func (s *Service) link(ctx context.Context, req *linkerModels.LinkingRequest, hashes requestHashes) (*linkerModels.LinkingResult, string, error) {
	if len(req.Messages) == 1 {
		if result, err := s.detectCompact(ctx, req); err != nil {
			return nil, "", err
		} else if result != nil {
			return result, "compact", nil
		}

		if result, err := s.detectSubtask(ctx, req); err != nil {
			return nil, "", err
		} else if result != nil {
			return result, "subtask", nil
		}

		return newRootResult(req), "new_root", nil
	}

	parent, err := s.matchParent(ctx, req, hashes)
	if err != nil {
		return nil, "", err
	}
	if parent == nil {
		return newRootResult(req), "new_root", nil
	}

	branch, err := s.resolveBranch(ctx, parent, req.Timestamp, req.RequestID)
	if err != nil {
		return nil, "", err
	}

	outcome := "continued"
	if branch != parent.BranchID {
		outcome = "forked"
	}

	parentID := parent.RequestID
	return &linkerModels.LinkingResult{
		ConversationID:  parent.ConversationID,
		ParentRequestID: &parentID,
		BranchID:        branch,
	}, outcome, nil
}

// conversationNamespace salts root conversation ids. Roots derive their id
// from (domain, request id) so linking the same request twice against an
// unchanged store stays idempotent.
var conversationNamespace = uuid.MustParse("b24f3a16-8a7d-4f5e-9c61-2f0dd1a4c7b9")

func newRootResult(req *linkerModels.LinkingRequest) *linkerModels.LinkingResult {
	seed := req.Domain + "/" + req.RequestID
	return &linkerModels.LinkingResult{
		ConversationID: uuid.NewSHA1(conversationNamespace, []byte(seed)).String(),
		BranchID:       linkerModels.DefaultBranch,
	}
}

func validateLinkingRequest(req *linkerModels.LinkingRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Domain, validation.Required),
		validation.Field(&req.Messages, validation.Required, validation.Length(1, 0)),
	)
}

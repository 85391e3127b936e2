// Package requests implements the storage-write path: it runs the
// correlation engine over an incoming request, extracts response metadata,
// and persists the resulting record.
package requests

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"stitch/internal/domain"
	linkerModels "stitch/internal/domain/models/linker"
	"stitch/internal/domain/repositories"
	linkerRepo "stitch/internal/domain/repositories/linker"
	"stitch/internal/markers"
	linkerSvc "stitch/internal/service/linker"
)

// Service correlates and persists incoming requests.
type Service struct {
	linker  *linkerSvc.Service
	reader  linkerRepo.RequestReader
	writer  linkerRepo.RequestWriter
	tx      repositories.TransactionManager
	markers *markers.Set
	logger  *slog.Logger
}

// NewService creates a new request ingestion service
func NewService(
	linker *linkerSvc.Service,
	reader linkerRepo.RequestReader,
	writer linkerRepo.RequestWriter,
	tx repositories.TransactionManager,
	markerSet *markers.Set,
	logger *slog.Logger,
) *Service {
	return &Service{
		linker:  linker,
		reader:  reader,
		writer:  writer,
		tx:      tx,
		markers: markerSet,
		logger:  logger,
	}
}

// Ingest links one request and writes its record in a single transaction.
// The record must be durably visible before any request that could be its
// child is correlated, which is why linking and writing happen synchronously
// on the request path rather than in a background worker.
func (s *Service) Ingest(ctx context.Context, req *linkerModels.LinkingRequest) (*linkerModels.LinkingResult, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}

	result, err := s.linker.Link(ctx, req)
	if err != nil {
		return nil, err
	}

	record := s.buildRecord(req, result)

	if err := s.tx.ExecTx(ctx, func(txCtx context.Context) error {
		return s.writer.Insert(txCtx, record)
	}); err != nil {
		return nil, fmt.Errorf("persist request %s: %w", req.RequestID, err)
	}

	s.logger.Info("request stored",
		"domain", req.Domain,
		"request_id", req.RequestID,
		"conversation_id", result.ConversationID,
		"branch_id", result.BranchID,
		"is_subtask", result.IsSubtask,
	)

	return result, nil
}

// AttachResponse backfills response metadata onto an already-stored record,
// for deployments where the upstream response arrives after the request was
// persisted. Only the task invocation is updated; records are otherwise
// immutable once written.
func (s *Service) AttachResponse(ctx context.Context, requestID string, responseBody []byte) error {
	invocation, _ := s.extractResponse(responseBody)
	if invocation == nil {
		return nil
	}
	return s.writer.AttachTaskInvocation(ctx, requestID, invocation)
}

// GetRequest retrieves a stored request record
func (s *Service) GetRequest(ctx context.Context, requestID string) (*linkerModels.StoredRequestRecord, error) {
	if requestID == "" {
		return nil, fmt.Errorf("%w: request id is required", domain.ErrValidation)
	}
	return s.reader.GetByID(ctx, requestID)
}

// GetConversation retrieves every record of a conversation
func (s *Service) GetConversation(ctx context.Context, conversationID string) ([]linkerModels.StoredRequestRecord, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("%w: conversation id is required", domain.ErrValidation)
	}
	return s.reader.ListConversation(ctx, conversationID)
}

// buildRecord assembles the stored record from the request and its linking
// result, folding in whatever the response body reveals (task launches,
// summarization output).
func (s *Service) buildRecord(req *linkerModels.LinkingRequest, result *linkerModels.LinkingResult) *linkerModels.StoredRequestRecord {
	record := &linkerModels.StoredRequestRecord{
		RequestID:           req.RequestID,
		Domain:              req.Domain,
		Timestamp:           req.Timestamp,
		ConversationID:      result.ConversationID,
		BranchID:            result.BranchID,
		CurrentMessageHash:  result.CurrentMessageHash,
		ParentMessageHash:   result.ParentMessageHash,
		SystemHash:          result.SystemHash,
		ParentRequestID:     result.ParentRequestID,
		IsSubtask:           result.IsSubtask,
		ParentTaskRequestID: result.ParentTaskRequestID,
		MessageCount:        result.MessageCount,
		IsSummarization:     s.isSummarizationPrompt(req.SystemPrompt),
	}

	if len(req.ResponseBody) > 0 {
		invocation, text := s.extractResponse(req.ResponseBody)
		record.TaskToolInvocation = invocation
		if text != "" {
			record.ResponseText = &text
		}
	}

	return record
}

func (s *Service) isSummarizationPrompt(prompt *string) bool {
	return prompt != nil && strings.Contains(*prompt, s.markers.SummarizationPromptMarker)
}

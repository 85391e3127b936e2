package linker

import (
	"context"
	"sort"
	"strings"

	"stitch/internal/domain"
	linkerModels "stitch/internal/domain/models/linker"
)

// matchParent runs the priority-ordered parent matching chain:
//
//  1. exact match: content continuity plus identical system hash
//  2. summarization override: content continuity only, when the current
//     system prompt is the recognized summarization prompt
//  3. fallback: content continuity only, covering benign system prompt drift
//
// The first non-empty step wins; ties inside a step resolve deterministically.
func (s *Service) matchParent(ctx context.Context, req *linkerModels.LinkingRequest, hashes requestHashes) (*linkerModels.StoredRequestRecord, error) {
	if hashes.parent == nil {
		return nil, nil
	}
	parentHash := *hashes.parent

	candidates, err := s.findParents(ctx, req.Domain, parentHash, &hashes.system, req.RequestID)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 && s.isSummarizationPrompt(req.SystemPrompt) {
		candidates, err = s.findParents(ctx, req.Domain, parentHash, nil, req.RequestID)
		if err != nil {
			return nil, err
		}
	}

	if len(candidates) == 0 {
		candidates, err = s.findParents(ctx, req.Domain, parentHash, nil, req.RequestID)
		if err != nil {
			return nil, err
		}
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	best := pickBestCandidate(candidates)
	return &best.Record, nil
}

// findParents queries the parent executor, consulting the lookup cache when
// one was supplied. Cache keys omit the excluded request id; the exclusion is
// applied after retrieval so a request never matches itself.
func (s *Service) findParents(ctx context.Context, domainID, parentHash string, systemHash *string, excludeRequestID string) ([]linkerModels.ParentCandidate, error) {
	key := cacheKey(domainID, parentHash, systemHash)

	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			if s.metrics != nil {
				s.metrics.CacheHitsTotal.Inc()
			}
			return excludeSelf(cached, excludeRequestID), nil
		}
		if s.metrics != nil {
			s.metrics.CacheMissesTotal.Inc()
		}
	}

	candidates, err := s.parents.FindParents(ctx, domainID, parentHash, systemHash, "")
	if err != nil {
		if s.metrics != nil {
			s.metrics.QueryFailuresTotal.WithLabelValues("parent_query").Inc()
		}
		return nil, &domain.QueryFailureError{Executor: "parent_query", Err: err}
	}

	if s.cache != nil {
		s.cache.Put(key, candidates)
	}
	return excludeSelf(candidates, excludeRequestID), nil
}

// pickBestCandidate applies the tie-break order: smallest containing
// conversation first, then earliest timestamp, then request id. The final
// comparison makes the ordering total, so linking is reproducible.
func pickBestCandidate(candidates []linkerModels.ParentCandidate) linkerModels.ParentCandidate {
	sorted := make([]linkerModels.ParentCandidate, len(candidates))
	copy(sorted, candidates)

	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.ConversationMessages != b.ConversationMessages {
			return a.ConversationMessages < b.ConversationMessages
		}
		if !a.Record.Timestamp.Equal(b.Record.Timestamp) {
			return a.Record.Timestamp.Before(b.Record.Timestamp)
		}
		return a.Record.RequestID < b.Record.RequestID
	})

	return sorted[0]
}

// isSummarizationPrompt reports whether the system prompt is the upstream's
// conversation-summarization prompt, which legitimately replaces the normal
// system prompt mid-conversation.
func (s *Service) isSummarizationPrompt(prompt *string) bool {
	return prompt != nil && strings.Contains(*prompt, s.markers.SummarizationPromptMarker)
}

func excludeSelf(candidates []linkerModels.ParentCandidate, requestID string) []linkerModels.ParentCandidate {
	if requestID == "" {
		return candidates
	}
	out := make([]linkerModels.ParentCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Record.RequestID != requestID {
			out = append(out, c)
		}
	}
	return out
}

func cacheKey(domainID, parentHash string, systemHash *string) string {
	if systemHash == nil {
		return domainID + "|" + parentHash + "|*"
	}
	return domainID + "|" + parentHash + "|" + *systemHash
}

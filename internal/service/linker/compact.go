package linker

import (
	"context"
	"strings"
	"time"

	"stitch/internal/domain"
	linkerModels "stitch/internal/domain/models/linker"
)

// detectCompact recognizes the upstream's "context overflow, resuming from
// summary" continuation. The sole message of such a request opens with a
// fixed boilerplate prefix, a delimiter, and then the summary the upstream
// generated when it compacted the earlier conversation. If that summary
// matches a prior summarization response, the request joins the source
// conversation on a compact_HHMMSS branch instead of becoming a fresh root.
//
// Recognition is best-effort: a nil result with nil error means "not a
// compact continuation", and the caller falls through to ordinary handling.
func (s *Service) detectCompact(ctx context.Context, req *linkerModels.LinkingRequest) (*linkerModels.LinkingResult, error) {
	summary, ok := s.extractCompactSummary(&req.Messages[0])
	if !ok {
		return nil, nil
	}

	candidates, err := s.reader.FindSummaryResponses(ctx, req.Domain)
	if err != nil {
		if s.metrics != nil {
			s.metrics.QueryFailuresTotal.WithLabelValues("request_reader").Inc()
		}
		return nil, &domain.QueryFailureError{Executor: "request_reader", Err: err}
	}

	normalized := s.normalizeSummary(summary)
	if normalized == "" {
		return nil, nil
	}

	for _, candidate := range candidates {
		if candidate.RequestID == req.RequestID {
			continue
		}
		if summariesMatch(normalized, s.normalizeSummary(candidate.Text), s.cfg.SummaryPrefixRunes) {
			parentID := candidate.RequestID
			return &linkerModels.LinkingResult{
				ConversationID:  candidate.ConversationID,
				ParentRequestID: &parentID,
				BranchID:        compactBranchID(req.Timestamp),
			}, nil
		}
	}

	return nil, nil
}

// extractCompactSummary returns the summary text of a compact continuation
// message, or false when the message does not carry the boilerplate.
func (s *Service) extractCompactSummary(msg *linkerModels.Message) (string, bool) {
	for _, block := range msg.Content {
		text := strings.TrimSpace(block.Text)
		if text == "" {
			continue
		}
		for _, prefix := range s.markers.Compact.Prefixes {
			if !strings.HasPrefix(text, prefix) {
				continue
			}
			idx := strings.Index(text, s.markers.Compact.Delimiter)
			if idx < 0 {
				continue
			}
			return text[idx+len(s.markers.Compact.Delimiter):], true
		}
	}
	return "", false
}

// normalizeSummary strips the known section headers and trailing
// continuation instructions around a summary, then collapses whitespace.
// The upstream wording shifts over time, so this stays lenient.
func (s *Service) normalizeSummary(text string) string {
	text = strings.TrimSpace(text)

	for changed := true; changed; {
		changed = false
		for _, leading := range s.markers.Compact.StripLeading {
			if strings.HasPrefix(text, leading) {
				text = strings.TrimSpace(strings.TrimPrefix(text, leading))
				changed = true
			}
		}
	}

	for changed := true; changed; {
		changed = false
		for _, trailing := range s.markers.Compact.StripTrailing {
			if strings.HasSuffix(text, trailing) {
				text = strings.TrimSpace(strings.TrimSuffix(text, trailing))
				changed = true
			}
		}
	}

	return collapseWhitespace(text)
}

// minSummaryMatchRunes is the shortest normalized summary the detector will
// match on. Below it the shared prefix carries too little content to tell
// conversations apart, so the detector declines instead of guessing.
const minSummaryMatchRunes = 32

// summariesMatch compares two normalized summaries over their leading
// prefixRunes runes. Byte-for-byte equality over the whole text is not
// achievable because the upstream truncates and reflows summaries.
func summariesMatch(a, b string, prefixRunes int) bool {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < minSummaryMatchRunes || len(rb) < minSummaryMatchRunes {
		return false
	}
	n := prefixRunes
	if len(ra) < n {
		n = len(ra)
	}
	if len(rb) < n {
		n = len(rb)
	}
	return string(ra[:n]) == string(rb[:n])
}

func compactBranchID(timestamp time.Time) string {
	return "compact_" + timestamp.Format("150405")
}

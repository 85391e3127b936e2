package requests

import (
	"encoding/json"
	"strings"

	linkerModels "stitch/internal/domain/models/linker"
)

// upstreamResponse is the slice of the upstream response body the write path
// cares about: the assistant content blocks.
type upstreamResponse struct {
	Content []linkerModels.ContentBlock `json:"content"`
}

// extractResponse pulls the task-tool invocation (if the assistant launched
// one) and the flattened response text out of a raw upstream response body.
// A malformed body yields nothing; response parsing must never fail an
// ingest.
func (s *Service) extractResponse(body []byte) (*linkerModels.TaskInvocation, string) {
	var resp upstreamResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		s.logger.Warn("unparseable response body, skipping response metadata", "error", err)
		return nil, ""
	}

	var invocation *linkerModels.TaskInvocation
	var textParts []string

	for _, block := range resp.Content {
		switch block.Type {
		case linkerModels.BlockTypeText:
			if block.Text != "" {
				textParts = append(textParts, block.Text)
			}
		case linkerModels.BlockTypeToolUse:
			if invocation != nil || block.ToolName != s.markers.TaskToolName {
				continue
			}
			var input struct {
				Prompt string `json:"prompt"`
			}
			if err := json.Unmarshal(block.Input, &input); err != nil || input.Prompt == "" {
				continue
			}
			invocation = &linkerModels.TaskInvocation{
				ToolUseID: block.ToolUseID,
				ToolName:  block.ToolName,
				Prompt:    input.Prompt,
			}
		}
	}

	return invocation, strings.Join(textParts, "\n")
}

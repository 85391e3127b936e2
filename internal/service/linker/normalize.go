package linker

import (
	"strings"

	linkerModels "stitch/internal/domain/models/linker"
)

// normalizeMessages converts a message array into its canonical form for
// hashing: reminder blocks injected by the upstream are dropped, and
// duplicated tool blocks (same tool_use id repeated within one message) keep
// only their first occurrence. The input is never mutated; callers that need
// the raw messages for storage keep their copy.
func normalizeMessages(messages []linkerModels.Message, reminderPrefix string) []linkerModels.Message {
	out := make([]linkerModels.Message, len(messages))
	for i, msg := range messages {
		out[i] = linkerModels.Message{
			Role:    msg.Role,
			Content: normalizeBlocks(msg.Content, reminderPrefix),
		}
	}
	return out
}

func normalizeBlocks(blocks []linkerModels.ContentBlock, reminderPrefix string) []linkerModels.ContentBlock {
	seenTools := make(map[string]bool)
	out := make([]linkerModels.ContentBlock, 0, len(blocks))

	for _, block := range blocks {
		if isReminderBlock(&block, reminderPrefix) {
			continue
		}
		if block.IsTool() && block.ToolUseID != "" {
			// The upstream API sometimes duplicates tool_use / tool_result
			// blocks; only the first occurrence of an id counts.
			key := block.Type + ":" + block.ToolUseID
			if seenTools[key] {
				continue
			}
			seenTools[key] = true
		}
		out = append(out, block)
	}
	return out
}

// isReminderBlock reports whether a block is upstream-injected noise that
// must not influence conversation identity.
func isReminderBlock(block *linkerModels.ContentBlock, reminderPrefix string) bool {
	return strings.HasPrefix(strings.TrimSpace(block.Text), reminderPrefix)
}

// messageText flattens a message's text blocks into one string, used when a
// single-message request is compared against a stored prompt or summary.
func messageText(msg *linkerModels.Message) string {
	parts := make([]string, 0, len(msg.Content))
	for _, block := range msg.Content {
		if block.Type == linkerModels.BlockTypeText && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// collapseWhitespace reduces any run of whitespace to a single space and
// trims the ends. Fuzzy comparisons (subtask prompts, compact summaries)
// operate on this form so formatting drift does not break matching.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

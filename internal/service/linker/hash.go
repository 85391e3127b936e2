package linker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"

	linkerModels "stitch/internal/domain/models/linker"
)

// requestHashes carries the three digests derived from one request.
type requestHashes struct {
	full   string
	parent *string // nil when the request has fewer than two messages
	system string
}

// hashMessages digests a normalized message array. Every field is written
// length-prefixed so distinct structures can never serialize to the same
// byte stream.
func hashMessages(messages []linkerModels.Message) string {
	h := sha256.New()
	for _, msg := range messages {
		writeField(h, msg.Role)
		for _, block := range msg.Content {
			writeField(h, block.Type)
			switch block.Type {
			case linkerModels.BlockTypeToolUse:
				writeField(h, block.ToolUseID)
				writeField(h, block.ToolName)
				writeField(h, string(block.Input))
			case linkerModels.BlockTypeToolResult:
				writeField(h, block.ToolUseID)
				writeField(h, block.Text)
			case linkerModels.BlockTypeOther:
				writeField(h, block.WireType)
				writeField(h, block.Text)
			default:
				writeField(h, block.Text)
			}
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// hashSystemPrompt digests the system prompt. A nil prompt hashes to the
// digest of the empty normalization, which acts as the "no system prompt"
// sentinel.
func hashSystemPrompt(prompt *string) string {
	h := sha256.New()
	if prompt != nil {
		writeField(h, *prompt)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// computeHashes normalizes the message array and derives the full, parent
// and system digests. The parent hash covers every message except the final
// user/assistant exchange and is absent for requests shorter than two
// messages.
func computeHashes(messages []linkerModels.Message, systemPrompt *string, reminderPrefix string) requestHashes {
	normalized := normalizeMessages(messages, reminderPrefix)

	hashes := requestHashes{
		full:   hashMessages(normalized),
		system: hashSystemPrompt(systemPrompt),
	}

	if len(normalized) >= 2 {
		parent := hashMessages(normalized[:len(normalized)-2])
		hashes.parent = &parent
	}

	return hashes
}

func writeField(h hash.Hash, s string) {
	fmt.Fprintf(h, "%d:", len(s))
	h.Write([]byte(s))
}

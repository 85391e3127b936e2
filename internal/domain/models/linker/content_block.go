package linker

import (
	"encoding/json"
	"strings"
)

// Block type constants. The upstream API is free to invent new block types;
// anything we do not recognize is folded into BlockTypeOther with its text
// preserved so hashing stays deterministic.
const (
	BlockTypeText       = "text"
	BlockTypeToolUse    = "tool_use"
	BlockTypeToolResult = "tool_result"
	BlockTypeOther      = "other"
)

// ContentBlock is the closed variant over upstream message content.
// Exactly one shape is populated per type:
//   - text: Text
//   - tool_use: ToolUseID, ToolName, Input
//   - tool_result: ToolUseID, Text (flattened textual content)
//   - other: Text (best-effort), with the original wire type in WireType
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	WireType  string          `json:"wire_type,omitempty"`
}

// IsTool reports whether the block carries a tool identifier
// (tool_use or tool_result). Used by duplicate suppression.
func (b *ContentBlock) IsTool() bool {
	return b.Type == BlockTypeToolUse || b.Type == BlockTypeToolResult
}

// wireBlock mirrors the upstream JSON shape of a content block.
// tool_result content may itself be a plain string or a nested block array.
type wireBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	Thinking  string          `json:"thinking"`
}

// UnmarshalJSON decodes an upstream content block into the closed variant.
func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	var w wireBlock
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	switch w.Type {
	case BlockTypeText:
		b.Type = BlockTypeText
		b.Text = w.Text
	case BlockTypeToolUse:
		b.Type = BlockTypeToolUse
		b.ToolUseID = w.ID
		b.ToolName = w.Name
		b.Input = w.Input
	case BlockTypeToolResult:
		b.Type = BlockTypeToolResult
		b.ToolUseID = w.ToolUseID
		b.Text = flattenContent(w.Content)
	default:
		b.Type = BlockTypeOther
		b.WireType = w.Type
		// Thinking blocks and friends still carry text worth hashing.
		switch {
		case w.Text != "":
			b.Text = w.Text
		case w.Thinking != "":
			b.Text = w.Thinking
		default:
			b.Text = flattenContent(w.Content)
		}
	}

	return nil
}

// flattenContent extracts the textual payload of a tool_result "content"
// field, which upstream sends either as a string or as a nested block array.
func flattenContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var nested []wireBlock
	if err := json.Unmarshal(raw, &nested); err != nil {
		return ""
	}

	parts := make([]string, 0, len(nested))
	for _, n := range nested {
		if n.Text != "" {
			parts = append(parts, n.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// TextBlock builds a plain text block. Test and normalization helper.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeText, Text: text}
}

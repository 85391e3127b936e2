package linker

import (
	"encoding/json"
	"testing"
)

func TestMessage_UnmarshalStringContent(t *testing.T) {
	var msg Message
	if err := json.Unmarshal([]byte(`{"role":"user","content":"just text"}`), &msg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if msg.Role != RoleUser {
		t.Errorf("Expected role user, got %s", msg.Role)
	}
	if len(msg.Content) != 1 {
		t.Fatalf("Expected 1 block, got %d", len(msg.Content))
	}
	if msg.Content[0].Type != BlockTypeText || msg.Content[0].Text != "just text" {
		t.Errorf("Unexpected block: %+v", msg.Content[0])
	}
}

func TestContentBlock_UnmarshalToolUse(t *testing.T) {
	raw := `{"type":"tool_use","id":"toolu_01","name":"Task","input":{"prompt":"find the bug"}}`
	var block ContentBlock
	if err := json.Unmarshal([]byte(raw), &block); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if block.Type != BlockTypeToolUse {
		t.Errorf("Expected tool_use, got %s", block.Type)
	}
	if block.ToolUseID != "toolu_01" || block.ToolName != "Task" {
		t.Errorf("Unexpected identifiers: %+v", block)
	}
	if !block.IsTool() {
		t.Error("Expected IsTool for tool_use")
	}
}

func TestContentBlock_UnmarshalToolResultShapes(t *testing.T) {
	var fromString ContentBlock
	if err := json.Unmarshal([]byte(`{"type":"tool_result","tool_use_id":"toolu_01","content":"plain output"}`), &fromString); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if fromString.Text != "plain output" {
		t.Errorf("Expected flattened string content, got %q", fromString.Text)
	}

	var fromBlocks ContentBlock
	raw := `{"type":"tool_result","tool_use_id":"toolu_01","content":[{"type":"text","text":"line one"},{"type":"text","text":"line two"}]}`
	if err := json.Unmarshal([]byte(raw), &fromBlocks); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if fromBlocks.Text != "line one\nline two" {
		t.Errorf("Expected flattened nested content, got %q", fromBlocks.Text)
	}
}

func TestContentBlock_UnknownTypePreservesText(t *testing.T) {
	var block ContentBlock
	raw := `{"type":"thinking","thinking":"considering the options"}`
	if err := json.Unmarshal([]byte(raw), &block); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if block.Type != BlockTypeOther {
		t.Errorf("Expected other, got %s", block.Type)
	}
	if block.WireType != "thinking" {
		t.Errorf("Expected wire type preserved, got %s", block.WireType)
	}
	if block.Text != "considering the options" {
		t.Errorf("Expected thinking text preserved, got %q", block.Text)
	}
}

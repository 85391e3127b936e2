package markers

import (
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	set, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if set.SystemReminderPrefix == "" {
		t.Error("Expected a system reminder prefix")
	}
	if len(set.Compact.Prefixes) == 0 {
		t.Error("Expected at least one compact prefix")
	}
	if set.Compact.Delimiter == "" {
		t.Error("Expected a compact delimiter")
	}
	if set.TaskToolName == "" {
		t.Error("Expected a task tool name")
	}
	if set.SummarizationPromptMarker == "" {
		t.Error("Expected a summarization prompt marker")
	}
}

func TestValidate_MissingFields(t *testing.T) {
	set := Set{
		SystemReminderPrefix:      "<system-reminder>",
		SummarizationPromptMarker: "summarizing",
		TaskToolName:              "Task",
	}
	set.Compact.Delimiter = "summarized below:"

	err := set.validate()
	if err == nil {
		t.Fatal("Expected validation to fail without compact prefixes")
	}
	if !strings.Contains(err.Error(), "compact.prefixes") {
		t.Errorf("Unexpected validation error: %v", err)
	}
}

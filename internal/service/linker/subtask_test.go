package linker

import (
	"context"
	"testing"
	"time"

	linkerModels "stitch/internal/domain/models/linker"
)

func launchRecord(requestID, domainID, conversationID, prompt string, ts time.Time) linkerModels.StoredRequestRecord {
	return linkerModels.StoredRequestRecord{
		RequestID:      requestID,
		Domain:         domainID,
		ConversationID: conversationID,
		BranchID:       "main",
		Timestamp:      ts,
		MessageCount:   6,
		TaskToolInvocation: &linkerModels.TaskInvocation{
			ToolUseID: "toolu_01",
			ToolName:  "Task",
			Prompt:    prompt,
		},
	}
}

func TestLink_SubtaskLinksToLaunchingRequest(t *testing.T) {
	store := &fakeStore{}
	service := newTestService(t, store)

	launchAt := time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC)
	prompt := "Search the repository for usages of the legacy config loader and list the call sites."
	store.add(launchRecord("req-launch", "tenant-a", "conv-1", prompt, launchAt))

	result, err := service.Link(context.Background(), &linkerModels.LinkingRequest{
		Domain:    "tenant-a",
		RequestID: "req-sub",
		Messages:  []linkerModels.Message{userMsg(prompt)},
		Timestamp: launchAt.Add(5 * time.Second),
	})
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}

	if !result.IsSubtask {
		t.Fatal("Expected the request to be recognized as a subtask")
	}
	if result.ConversationID != "conv-1" {
		t.Errorf("Expected conversation conv-1, got %s", result.ConversationID)
	}
	if result.ParentTaskRequestID == nil || *result.ParentTaskRequestID != "req-launch" {
		t.Errorf("Expected parent task req-launch, got %v", result.ParentTaskRequestID)
	}
	if result.BranchID != "subtask_1" {
		t.Errorf("Expected branch subtask_1, got %s", result.BranchID)
	}
	if result.ParentRequestID != nil {
		t.Errorf("Subtask must not set a content parent, got %s", *result.ParentRequestID)
	}
}

func TestLink_SubtaskBranchNumbersIncrement(t *testing.T) {
	store := &fakeStore{}
	service := newTestService(t, store)

	launchAt := time.Now().Add(-10 * time.Second)
	prompt := "Review the diff for concurrency bugs."
	store.add(launchRecord("req-launch", "tenant-a", "conv-1", prompt, launchAt))

	launchID := "req-launch"
	store.add(linkerModels.StoredRequestRecord{
		RequestID: "req-sub-1", Domain: "tenant-a", ConversationID: "conv-1",
		BranchID: "subtask_1", Timestamp: launchAt.Add(2 * time.Second),
		MessageCount: 1, IsSubtask: true, ParentTaskRequestID: &launchID,
	})

	result, err := service.Link(context.Background(), &linkerModels.LinkingRequest{
		Domain:    "tenant-a",
		RequestID: "req-sub-2",
		Messages:  []linkerModels.Message{userMsg(prompt)},
		Timestamp: launchAt.Add(4 * time.Second),
	})
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}

	if result.BranchID != "subtask_2" {
		t.Errorf("Expected branch subtask_2, got %s", result.BranchID)
	}
}

func TestLink_SubtaskRequiresExactPrompt(t *testing.T) {
	store := &fakeStore{}
	service := newTestService(t, store)

	launchAt := time.Now().Add(-2 * time.Second)
	store.add(launchRecord("req-launch", "tenant-a", "conv-1", "Summarize the open issues.", launchAt))

	// Two seconds after a launch, but the content differs: not a subtask.
	result, err := service.Link(context.Background(), &linkerModels.LinkingRequest{
		Domain:    "tenant-a",
		RequestID: "req-other",
		Messages:  []linkerModels.Message{userMsg("Summarize the closed issues.")},
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}

	if result.IsSubtask {
		t.Error("Mismatched prompt was linked as a subtask")
	}
	if result.ConversationID == "conv-1" {
		t.Error("Mismatched prompt joined the launcher's conversation")
	}
}

func TestLink_SubtaskWindowExpires(t *testing.T) {
	store := &fakeStore{}
	service := newTestService(t, store)

	prompt := "Audit the retry logic."
	launchAt := time.Now().Add(-5 * time.Minute)
	store.add(launchRecord("req-launch", "tenant-a", "conv-1", prompt, launchAt))

	result, err := service.Link(context.Background(), &linkerModels.LinkingRequest{
		Domain:    "tenant-a",
		RequestID: "req-late",
		Messages:  []linkerModels.Message{userMsg(prompt)},
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}

	if result.IsSubtask {
		t.Error("Launch outside the subtask window was still linked")
	}
}

func TestLink_SubtaskPrefersMostRecentLaunch(t *testing.T) {
	store := &fakeStore{}
	service := newTestService(t, store)

	prompt := "Check the logs for panics."
	early := time.Now().Add(-20 * time.Second)
	late := time.Now().Add(-3 * time.Second)
	store.add(launchRecord("req-early", "tenant-a", "conv-1", prompt, early))
	store.add(launchRecord("req-late", "tenant-a", "conv-2", prompt, late))

	result, err := service.Link(context.Background(), &linkerModels.LinkingRequest{
		Domain:    "tenant-a",
		RequestID: "req-sub",
		Messages:  []linkerModels.Message{userMsg(prompt)},
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}

	if result.ParentTaskRequestID == nil || *result.ParentTaskRequestID != "req-late" {
		t.Errorf("Expected the most recent launch to win, got %v", result.ParentTaskRequestID)
	}
	if result.ConversationID != "conv-2" {
		t.Errorf("Expected conversation conv-2, got %s", result.ConversationID)
	}
}

func TestLink_SubtaskMultilinePromptMatches(t *testing.T) {
	store := &fakeStore{}
	service := newTestService(t, store)

	// Task prompts are normally multi-line; the spawned request carries the
	// text byte-for-byte, so the containment fast path must find it.
	prompt := "Check the logs\nfor panics."
	launchAt := time.Now().Add(-5 * time.Second)
	store.add(launchRecord("req-launch", "tenant-a", "conv-1", prompt, launchAt))

	result, err := service.Link(context.Background(), &linkerModels.LinkingRequest{
		Domain:    "tenant-a",
		RequestID: "req-sub",
		Messages:  []linkerModels.Message{userMsg(prompt)},
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}

	if !result.IsSubtask {
		t.Fatal("Request text byte-identical to a multi-line prompt was not linked as a subtask")
	}
	if result.ParentTaskRequestID == nil || *result.ParentTaskRequestID != "req-launch" {
		t.Errorf("Expected parent task req-launch, got %v", result.ParentTaskRequestID)
	}
	if result.BranchID != "subtask_1" {
		t.Errorf("Expected branch subtask_1, got %s", result.BranchID)
	}
}

func TestLink_SubtaskStoredPromptWhitespaceDrift(t *testing.T) {
	store := &fakeStore{}
	service := newTestService(t, store)

	// Neither side reproduces the other byte-for-byte; the bounded scan plus
	// normalized comparison still links them.
	launchAt := time.Now().Add(-5 * time.Second)
	store.add(launchRecord("req-launch", "tenant-a", "conv-1", "Audit the  retry\nlogic.", launchAt))

	result, err := service.Link(context.Background(), &linkerModels.LinkingRequest{
		Domain:    "tenant-a",
		RequestID: "req-sub",
		Messages:  []linkerModels.Message{userMsg("Audit the retry logic.")},
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}

	if !result.IsSubtask {
		t.Error("Whitespace drift between stored prompt and request broke subtask matching")
	}
}

func TestLink_SubtaskPromptWhitespaceNormalized(t *testing.T) {
	store := &fakeStore{}
	service := newTestService(t, store)

	launchAt := time.Now().Add(-5 * time.Second)
	store.add(launchRecord("req-launch", "tenant-a", "conv-1", "Check the logs for panics.", launchAt))

	result, err := service.Link(context.Background(), &linkerModels.LinkingRequest{
		Domain:    "tenant-a",
		RequestID: "req-sub",
		Messages:  []linkerModels.Message{userMsg("Check   the logs\nfor panics.")},
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}

	if !result.IsSubtask {
		t.Error("Whitespace variation in the request prompt broke subtask matching")
	}
}

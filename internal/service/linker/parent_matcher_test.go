package linker

import (
	"context"
	"testing"
	"time"

	linkerModels "stitch/internal/domain/models/linker"
)

func TestLink_ContinuesExistingConversation(t *testing.T) {
	set := testMarkers(t)
	store := &fakeStore{}
	service := newTestService(t, store)

	system := "You are a coding agent."
	parentMsgs := []linkerModels.Message{userMsg("hello"), assistantMsg("hi")}
	parent := storeThread(t, store, set, "req-parent", "tenant-a", "conv-1", "main", parentMsgs, &system, nil, time.Now().Add(-time.Minute))

	childMsgs := append(append([]linkerModels.Message{}, parentMsgs...), userMsg("next"), assistantMsg("sure"))
	result, err := service.Link(context.Background(), &linkerModels.LinkingRequest{
		Domain:       "tenant-a",
		RequestID:    "req-child",
		SystemPrompt: &system,
		Messages:     childMsgs,
		Timestamp:    time.Now(),
	})
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}

	if result.ConversationID != parent.ConversationID {
		t.Errorf("Expected conversation %s, got %s", parent.ConversationID, result.ConversationID)
	}
	if result.ParentRequestID == nil || *result.ParentRequestID != parent.RequestID {
		t.Errorf("Expected parent req-parent, got %v", result.ParentRequestID)
	}
	if result.BranchID != "main" {
		t.Errorf("Expected branch main, got %s", result.BranchID)
	}
}

func TestLink_ExactSystemMatchBeatsTieBreak(t *testing.T) {
	set := testMarkers(t)
	store := &fakeStore{}
	service := newTestService(t, store)

	system := "You are a coding agent."
	otherSystem := "You are a different agent."
	parentMsgs := []linkerModels.Message{userMsg("hello"), assistantMsg("hi")}

	// The system-drifted copy sits in a smaller conversation. Tie-break order
	// would prefer it, but the strategy chain must not reach that far: the
	// exact step already yields the same-system parent.
	storeThread(t, store, set, "req-drifted", "tenant-a", "conv-small", "main", parentMsgs, &otherSystem, nil, time.Now().Add(-2*time.Hour))
	exact := storeThread(t, store, set, "req-exact", "tenant-a", "conv-big", "main", parentMsgs, &system, nil, time.Now().Add(-time.Minute))
	store.add(linkerModels.StoredRequestRecord{
		RequestID: "req-filler", Domain: "tenant-a", ConversationID: "conv-big",
		BranchID: "main", MessageCount: 10, Timestamp: time.Now().Add(-time.Hour),
	})

	childMsgs := append(append([]linkerModels.Message{}, parentMsgs...), userMsg("next"), assistantMsg("sure"))
	result, err := service.Link(context.Background(), &linkerModels.LinkingRequest{
		Domain:       "tenant-a",
		RequestID:    "req-child",
		SystemPrompt: &system,
		Messages:     childMsgs,
		Timestamp:    time.Now(),
	})
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}

	if result.ParentRequestID == nil || *result.ParentRequestID != exact.RequestID {
		t.Errorf("Expected the same-system parent, got %v", result.ParentRequestID)
	}
	if result.ConversationID != "conv-big" {
		t.Errorf("Expected conversation conv-big, got %s", result.ConversationID)
	}
}

func TestLink_SystemDriftStillLinks(t *testing.T) {
	set := testMarkers(t)
	store := &fakeStore{}
	service := newTestService(t, store)

	oldSystem := "You are a coding agent. Tools: v1"
	newSystem := "You are a coding agent. Tools: v2"
	parentMsgs := []linkerModels.Message{userMsg("hello"), assistantMsg("hi")}
	parent := storeThread(t, store, set, "req-parent", "tenant-a", "conv-1", "main", parentMsgs, &oldSystem, nil, time.Now().Add(-time.Minute))

	childMsgs := append(append([]linkerModels.Message{}, parentMsgs...), userMsg("next"), assistantMsg("sure"))
	result, err := service.Link(context.Background(), &linkerModels.LinkingRequest{
		Domain:       "tenant-a",
		RequestID:    "req-child",
		SystemPrompt: &newSystem,
		Messages:     childMsgs,
		Timestamp:    time.Now(),
	})
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}

	if result.ParentRequestID == nil || *result.ParentRequestID != parent.RequestID {
		t.Errorf("Expected drifted parent to match, got %v", result.ParentRequestID)
	}
}

func TestLink_DomainsAreIsolated(t *testing.T) {
	set := testMarkers(t)
	store := &fakeStore{}
	service := newTestService(t, store)

	parentMsgs := []linkerModels.Message{userMsg("hello"), assistantMsg("hi")}
	storeThread(t, store, set, "req-parent", "tenant-a", "conv-1", "main", parentMsgs, nil, nil, time.Now().Add(-time.Minute))

	childMsgs := append(append([]linkerModels.Message{}, parentMsgs...), userMsg("next"), assistantMsg("sure"))
	result, err := service.Link(context.Background(), &linkerModels.LinkingRequest{
		Domain:    "tenant-b",
		RequestID: "req-child",
		Messages:  childMsgs,
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}

	if result.ParentRequestID != nil {
		t.Errorf("Cross-domain parent matched: %s", *result.ParentRequestID)
	}
	if result.ConversationID == "conv-1" {
		t.Error("Request joined a conversation from another domain")
	}
}

func TestPickBestCandidate_TieBreakOrder(t *testing.T) {
	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	candidates := []linkerModels.ParentCandidate{
		{Record: linkerModels.StoredRequestRecord{RequestID: "req-b", Timestamp: ts}, ConversationMessages: 7},
		{Record: linkerModels.StoredRequestRecord{RequestID: "req-a", Timestamp: ts}, ConversationMessages: 3},
		{Record: linkerModels.StoredRequestRecord{RequestID: "req-c", Timestamp: ts.Add(-time.Hour)}, ConversationMessages: 3},
	}

	best := pickBestCandidate(candidates)
	if best.Record.RequestID != "req-c" {
		t.Errorf("Expected req-c (smallest conversation, earliest timestamp), got %s", best.Record.RequestID)
	}

	// Identical size and timestamp: request id makes the order total.
	tied := []linkerModels.ParentCandidate{
		{Record: linkerModels.StoredRequestRecord{RequestID: "req-z", Timestamp: ts}, ConversationMessages: 3},
		{Record: linkerModels.StoredRequestRecord{RequestID: "req-a", Timestamp: ts}, ConversationMessages: 3},
	}
	if got := pickBestCandidate(tied); got.Record.RequestID != "req-a" {
		t.Errorf("Expected req-a on the final tie-break, got %s", got.Record.RequestID)
	}
}

func TestLink_SmallerConversationWinsTie(t *testing.T) {
	set := testMarkers(t)
	store := &fakeStore{}
	service := newTestService(t, store)

	parentMsgs := []linkerModels.Message{userMsg("hello"), assistantMsg("hi")}
	storeThread(t, store, set, "req-small", "tenant-a", "conv-small", "main", parentMsgs, nil, nil, time.Now().Add(-time.Minute))
	storeThread(t, store, set, "req-big", "tenant-a", "conv-big", "main", parentMsgs, nil, nil, time.Now().Add(-time.Minute))
	store.add(linkerModels.StoredRequestRecord{
		RequestID: "req-filler", Domain: "tenant-a", ConversationID: "conv-big",
		BranchID: "main", MessageCount: 5, Timestamp: time.Now().Add(-time.Hour),
	})

	childMsgs := append(append([]linkerModels.Message{}, parentMsgs...), userMsg("next"), assistantMsg("sure"))
	result, err := service.Link(context.Background(), &linkerModels.LinkingRequest{
		Domain:    "tenant-a",
		RequestID: "req-child",
		Messages:  childMsgs,
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}

	if result.ConversationID != "conv-small" {
		t.Errorf("Expected the smaller conversation to win, got %s", result.ConversationID)
	}
	if result.ParentRequestID == nil || *result.ParentRequestID != "req-small" {
		t.Errorf("Expected parent req-small, got %v", result.ParentRequestID)
	}
}

package linker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	linkerModels "stitch/internal/domain/models/linker"
)

func TestLookupCache_ExpiryAndEviction(t *testing.T) {
	cache := NewLookupCache(2, time.Minute)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	candidates := []linkerModels.ParentCandidate{{ConversationMessages: 3}}
	cache.Put("a", candidates)

	got, ok := cache.Get("a")
	if !ok || len(got) != 1 {
		t.Fatal("Expected cached candidates back")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := cache.Get("a"); ok {
		t.Error("Expected the entry to expire after the TTL")
	}

	now = now.Add(time.Second)
	cache.Put("b", nil)
	now = now.Add(time.Second)
	cache.Put("c", nil)
	now = now.Add(time.Second)
	cache.Put("d", nil)

	if cache.Len() != 2 {
		t.Errorf("Expected the cache to stay bounded at 2 entries, got %d", cache.Len())
	}
	if _, ok := cache.Get("b"); ok {
		t.Error("Expected the oldest entry to be evicted first")
	}
	if _, ok := cache.Get("d"); !ok {
		t.Error("Expected the newest entry to survive eviction")
	}
}

func TestCacheKey_DistinguishesWildcardSystemHash(t *testing.T) {
	system := "abc"
	exact := cacheKey("tenant-a", "hash1", &system)
	wildcard := cacheKey("tenant-a", "hash1", nil)

	if exact == wildcard {
		t.Error("Exact and wildcard system-hash lookups share a cache key")
	}
}

// Replaying a request after its record was persisted must resolve to the
// same parent, whether the lookup is served from the cache or the store.
func TestLink_ReplayWithCacheIsStable(t *testing.T) {
	set := testMarkers(t)
	store := &fakeStore{}
	cache := NewLookupCache(16, time.Minute)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := NewService(store, store, store, set, Config{}, cache, nil, logger)

	msgs := []linkerModels.Message{userMsg("a"), assistantMsg("b"), userMsg("c"), assistantMsg("d")}
	parentMsgs := msgs[:2]
	parent := storeThread(t, store, set, "req-parent", "tenant-a", "conv-1", "main", parentMsgs, nil, nil, time.Now().Add(-time.Minute))

	req := &linkerModels.LinkingRequest{
		Domain:    "tenant-a",
		RequestID: "req-child",
		Messages:  msgs,
		Timestamp: time.Now(),
	}
	first, err := service.Link(context.Background(), req)
	if err != nil {
		t.Fatalf("First link failed: %v", err)
	}

	// Persist the linked record, then replay the same request against the
	// now-warm cache.
	parentID := parent.RequestID
	storeThread(t, store, set, "req-child", "tenant-a", first.ConversationID, first.BranchID, msgs, nil, &parentID, req.Timestamp)

	second, err := service.Link(context.Background(), req)
	if err != nil {
		t.Fatalf("Replay link failed: %v", err)
	}
	if second.ParentRequestID == nil || *second.ParentRequestID != "req-parent" {
		t.Errorf("Replay resolved parent %v, want req-parent", second.ParentRequestID)
	}
	if second.ConversationID != first.ConversationID {
		t.Errorf("Replay moved conversations: %s vs %s", second.ConversationID, first.ConversationID)
	}
}

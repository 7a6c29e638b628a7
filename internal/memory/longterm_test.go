package memory

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestLongTerm(client *stubClient) *LongTerm {
	var lt *LongTerm
	if client != nil {
		lt = NewLongTerm(client, "smart-model", 5, 1)
	} else {
		lt = NewLongTerm(nil, "", 5, 1)
	}
	lt.now = func() time.Time { return time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC) }
	return lt
}

func TestConsolidateMergesViaModel(t *testing.T) {
	lt := newTestLongTerm(replyWith(`[
		{"time": "2025-11-03", "content": "Works as a programmer."},
		{"time": "", "content": "  Loves spicy food.  "},
		{"time": "2026-01-02", "content": ""}
	]`))

	existing := []LongTermEntry{{Time: "2025-11-03", Content: "Works as a programmer."}}
	got := lt.Consolidate(context.Background(), existing, "Loves spicy food")

	if len(got) != 2 {
		t.Fatalf("len(entries) = %d, want 2 (empty entry dropped)", len(got))
	}
	if got[1].Content != "Loves spicy food." {
		t.Fatalf("Content = %q, want trimmed %q", got[1].Content, "Loves spicy food.")
	}
	if got[1].Time != "2026-01-02" {
		t.Fatalf("Time = %q, want backfilled %q", got[1].Time, "2026-01-02")
	}
}

func TestConsolidateFallsBackToAppendOnError(t *testing.T) {
	lt := newTestLongTerm(failWith(errors.New("model offline")))

	existing := []LongTermEntry{{Time: "2025-11-03", Content: "Works as a programmer."}}
	got := lt.Consolidate(context.Background(), existing, "Loves spicy food")

	if len(got) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(got))
	}
	if got[1].Content != "Loves spicy food" || got[1].Time != "2026-01-02" {
		t.Fatalf("appended entry = %+v, want dated new fact", got[1])
	}
}

func TestConsolidateWithoutModelAppendsAndCaps(t *testing.T) {
	lt := newTestLongTerm(nil)

	existing := make([]LongTermEntry, 5)
	for i := range existing {
		existing[i] = LongTermEntry{Time: "2025-12-01", Content: string(rune('a' + i))}
	}
	got := lt.Consolidate(context.Background(), existing, "newest fact")

	if len(got) != 5 {
		t.Fatalf("len(entries) = %d, want capped 5", len(got))
	}
	if got[0].Content != "b" {
		t.Fatalf("entries[0].Content = %q, want oldest entry dropped", got[0].Content)
	}
	if got[4].Content != "newest fact" {
		t.Fatalf("entries[4].Content = %q, want %q", got[4].Content, "newest fact")
	}
}

func TestConsolidateCapsOversizedReply(t *testing.T) {
	lt := newTestLongTerm(replyWith(`[
		{"time": "2026-01-02", "content": "one"},
		{"time": "2026-01-02", "content": "two"},
		{"time": "2026-01-02", "content": "three"},
		{"time": "2026-01-02", "content": "four"},
		{"time": "2026-01-02", "content": "five"},
		{"time": "2026-01-02", "content": "six"},
		{"time": "2026-01-02", "content": "seven"}
	]`))

	got := lt.Consolidate(context.Background(), nil, "anything")
	if len(got) != 5 {
		t.Fatalf("len(entries) = %d, want 5", len(got))
	}
	if got[0].Content != "three" || got[4].Content != "seven" {
		t.Fatalf("entries = %v, want most recent five kept", got)
	}
}

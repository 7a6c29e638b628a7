package dialogue

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func ts(sec int) time.Time {
	return time.Date(2026, 8, 1, 12, 0, sec, 0, time.UTC)
}

func TestAggregateMergesSameTimestampRows(t *testing.T) {
	// Rows arrive newest first, as the store query returns them.
	rows := []Row{
		{User: "", Assistant: "hello", Timestamp: ts(0)},
		{User: "hi", Assistant: "", Timestamp: ts(0)},
	}

	turns := Aggregate(rows, 7)
	if len(turns) != 1 {
		t.Fatalf("len(turns) = %d, want 1", len(turns))
	}
	if turns[0].User != "hi" {
		t.Fatalf("User = %q, want %q", turns[0].User, "hi")
	}
	if turns[0].Assistant != "hello" {
		t.Fatalf("Assistant = %q, want %q", turns[0].Assistant, "hello")
	}
}

func TestAggregateConcatenatesAssistantFragments(t *testing.T) {
	rows := []Row{
		{Assistant: "there", Timestamp: ts(0)},
		{Assistant: "hello", Timestamp: ts(0)},
		{User: "hi", Timestamp: ts(0)},
	}

	turns := Aggregate(rows, 7)
	if len(turns) != 1 {
		t.Fatalf("len(turns) = %d, want 1", len(turns))
	}
	if turns[0].Assistant != "hello there" {
		t.Fatalf("Assistant = %q, want %q", turns[0].Assistant, "hello there")
	}
}

func TestAggregateKeepsMostRecentTurnsChronologically(t *testing.T) {
	var rows []Row
	for i := 9; i >= 0; i-- {
		rows = append(rows, Row{User: "u", Assistant: "a", Timestamp: ts(9 - i)})
	}

	turns := Aggregate(rows, 7)
	if len(turns) != 7 {
		t.Fatalf("len(turns) = %d, want 7", len(turns))
	}
	if !turns[0].Timestamp.Equal(ts(3)) {
		t.Fatalf("first turn at %v, want %v", turns[0].Timestamp, ts(3))
	}
	if !turns[6].Timestamp.Equal(ts(9)) {
		t.Fatalf("last turn at %v, want %v", turns[6].Timestamp, ts(9))
	}
	for i := 1; i < len(turns); i++ {
		if !turns[i].Timestamp.After(turns[i-1].Timestamp) {
			t.Fatalf("turns not in chronological order at index %d", i)
		}
	}
}

func TestAggregateEmptyInput(t *testing.T) {
	if turns := Aggregate(nil, 7); len(turns) != 0 {
		t.Fatalf("len(turns) = %d, want 0", len(turns))
	}
}

func TestRecentWithoutPoolDegrades(t *testing.T) {
	r := NewReader(nil, ReaderConfig{DefaultNickname: "friend"})

	turns, nickname := r.Recent(context.Background(), "u1", "p1", false, 7)
	if turns != nil {
		t.Fatalf("turns = %v, want nil", turns)
	}
	if nickname != "friend" {
		t.Fatalf("nickname = %q, want %q", nickname, "friend")
	}
}

func TestRecentQueryFailureDegradesToDefaults(t *testing.T) {
	// The pool connects lazily, so construction succeeds and the first
	// query is the first thing to fail.
	pool, err := pgxpool.New(context.Background(), "postgres://nobody@127.0.0.1:1/none")
	if err != nil {
		t.Fatalf("pgxpool.New error = %v", err)
	}
	defer pool.Close()

	r := NewReader(pool, ReaderConfig{DefaultNickname: "friend"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	turns, nickname := r.Recent(ctx, "u1", "p1", false, 7)
	if turns != nil {
		t.Fatalf("turns = %v, want nil on query failure", turns)
	}
	if nickname != "friend" {
		t.Fatalf("nickname = %q, want default %q without a second lookup", nickname, "friend")
	}
}

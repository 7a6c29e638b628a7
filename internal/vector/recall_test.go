package vector

import (
	"context"
	"math"
	"testing"
)

// fakeEmbedder returns scripted unit vectors per text, so similarity scores
// in tests are exact cosines.
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if vec, ok := f.vectors[text]; ok {
		return vec, nil
	}
	return []float32{1, 0}, nil
}

func unitVec(angle float64) []float32 {
	return []float32{float32(math.Cos(angle)), float32(math.Sin(angle))}
}

func angleForCosine(c float64) float64 {
	return math.Acos(c)
}

func newTestRecall(t *testing.T, embedder Embedder, threshold float64) *Recall {
	t.Helper()
	r, err := New(embedder, Config{Enabled: true, DedupThreshold: threshold})
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	return r
}

func TestStoreAndRecallScopedToUser(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		combineExchange("I love ramen", "Noted!"): unitVec(0),
		"ramen": unitVec(0.1),
	}}
	r := newTestRecall(t, embedder, 0.96)
	ctx := context.Background()

	if ok := r.Store(ctx, "u1", "I love ramen", "Noted!", nil); !ok {
		t.Fatalf("Store = false, want true")
	}

	matches := r.Recall(ctx, "u1", "ramen", 3)
	if len(matches) != 1 {
		t.Fatalf("len(matches) = %d, want 1", len(matches))
	}
	if matches[0].UserMessage != "I love ramen" {
		t.Fatalf("UserMessage = %q, want %q", matches[0].UserMessage, "I love ramen")
	}

	if other := r.Recall(ctx, "u2", "ramen", 3); len(other) != 0 {
		t.Fatalf("cross-user recall returned %d matches, want 0", len(other))
	}
}

func TestStoreSkipsNearDuplicates(t *testing.T) {
	first := combineExchange("I love ramen", "Noted!")
	almostSame := combineExchange("I really love ramen", "Got it!")
	distinct := combineExchange("I started judo", "Nice!")

	embedder := &fakeEmbedder{vectors: map[string][]float32{
		first:      unitVec(0),
		almostSame: unitVec(angleForCosine(0.97)),
		distinct:   unitVec(angleForCosine(0.95)),
	}}
	r := newTestRecall(t, embedder, 0.96)
	ctx := context.Background()

	if ok := r.Store(ctx, "u1", "I love ramen", "Noted!", nil); !ok {
		t.Fatalf("initial Store = false, want true")
	}
	if ok := r.Store(ctx, "u1", "I really love ramen", "Got it!", nil); ok {
		t.Fatalf("Store at similarity 0.97 = true, want false (dedup)")
	}
	if ok := r.Store(ctx, "u1", "I started judo", "Nice!", nil); !ok {
		t.Fatalf("Store at similarity 0.95 = false, want true")
	}
}

func TestStoreIsIdempotentPerCombinedText(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{}}
	// Threshold above any attainable score so the upsert path itself is
	// exercised rather than the dedup check.
	r := newTestRecall(t, embedder, 1.5)
	ctx := context.Background()

	if ok := r.Store(ctx, "u1", "hello", "hi", nil); !ok {
		t.Fatalf("first Store = false, want true")
	}
	if ok := r.Store(ctx, "u1", "hello", "hi", nil); !ok {
		t.Fatalf("second Store = false, want true")
	}

	col, err := r.collection("u1")
	if err != nil {
		t.Fatalf("collection error = %v", err)
	}
	if got := col.Count(); got != 1 {
		t.Fatalf("point count = %d, want 1 (deterministic id upsert)", got)
	}
}

func TestDisabledRecallDegrades(t *testing.T) {
	r, err := New(nil, Config{Enabled: false})
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	if r.Enabled() {
		t.Fatalf("Enabled = true, want false")
	}
	if matches := r.Recall(context.Background(), "u1", "anything", 3); matches != nil {
		t.Fatalf("Recall on disabled backend = %v, want nil", matches)
	}
	if ok := r.Store(context.Background(), "u1", "a", "b", nil); ok {
		t.Fatalf("Store on disabled backend = true, want false")
	}
	if err := r.Clear(context.Background(), "u1"); err != nil {
		t.Fatalf("Clear on disabled backend error = %v", err)
	}
}

func TestClearDropsUserCollection(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{}}
	r := newTestRecall(t, embedder, 0.96)
	ctx := context.Background()

	r.Store(ctx, "u1", "hello", "hi", nil)
	if err := r.Clear(ctx, "u1"); err != nil {
		t.Fatalf("Clear error = %v", err)
	}
	if matches := r.Recall(ctx, "u1", "hello", 3); len(matches) != 0 {
		t.Fatalf("Recall after Clear returned %d matches, want 0", len(matches))
	}
}

package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestPoolRunsSubmittedJobs(t *testing.T) {
	var ran atomic.Int32
	p := NewPool(2, 8, nil)

	for i := 0; i < 5; i++ {
		if ok := p.Submit("count", func(context.Context) error {
			ran.Add(1)
			return nil
		}); !ok {
			t.Fatalf("Submit returned false, want true")
		}
	}
	p.Close()

	if got := ran.Load(); got != 5 {
		t.Fatalf("ran = %d, want 5", got)
	}
}

func TestPoolReportsOutcomes(t *testing.T) {
	var mu sync.Mutex
	outcomes := map[string]error{}
	p := NewPool(1, 8, func(name string, err error) {
		mu.Lock()
		outcomes[name] = err
		mu.Unlock()
	})

	p.Submit("ok", func(context.Context) error { return nil })
	p.Submit("boom", func(context.Context) error { return errors.New("nope") })
	p.Close()

	if outcomes["ok"] != nil {
		t.Fatalf("outcomes[ok] = %v, want nil", outcomes["ok"])
	}
	if outcomes["boom"] == nil {
		t.Fatalf("outcomes[boom] = nil, want error")
	}
}

func TestPoolSubmitAfterCloseIsSafe(t *testing.T) {
	p := NewPool(1, 1, nil)
	p.Close()
	if ok := p.Submit("late", func(context.Context) error { return nil }); ok {
		t.Fatalf("Submit after Close = true, want false")
	}
}

package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lantern-ai/keepsake/internal/llm"
)

const consolidatorPrompt = `You maintain a compact list of durable facts about a user. Merge the new fact into the existing list: combine entries that describe the same trait, drop duplicates, keep the most recent date for merged entries, and keep the list at no more than %d entries (discard the oldest when over).

Reply with exactly one JSON array of objects shaped like {"time": "YYYY-MM-DD", "content": "fact"}. No prose, no markdown.`

// LongTerm merges newly classified durable facts into the capped entry
// list. Consolidate is total: when the LLM misbehaves it falls back to a
// deterministic append-and-truncate, so callers always get a valid list.
type LongTerm struct {
	pool       *llm.Pool
	maxEntries int
	now        func() time.Time
}

func NewLongTerm(client llm.Client, model string, maxEntries, maxAttempts int) *LongTerm {
	if maxEntries <= 0 {
		maxEntries = 5
	}
	var pool *llm.Pool
	if client != nil {
		pool = llm.NewPool(client, []string{model}, maxAttempts)
	}
	return &LongTerm{pool: pool, maxEntries: maxEntries, now: time.Now}
}

// Consolidate returns the updated entry list for existing entries plus one
// new fact. The result always has at most maxEntries valid entries.
func (l *LongTerm) Consolidate(ctx context.Context, existing []LongTermEntry, fact string) []LongTermEntry {
	stamp := l.now().Format("2006-01-02")
	newEntry := LongTermEntry{Time: stamp, Content: strings.TrimSpace(fact)}

	if l.pool != nil {
		if merged, err := l.merge(ctx, existing, newEntry); err == nil {
			return merged
		} else {
			log.Printf("long-term consolidation fell back to append: %v", err)
		}
	}

	return capEntries(append(append([]LongTermEntry(nil), existing...), newEntry), l.maxEntries)
}

func (l *LongTerm) merge(ctx context.Context, existing []LongTermEntry, newEntry LongTermEntry) ([]LongTermEntry, error) {
	payload, err := json.Marshal(existing)
	if err != nil {
		return nil, fmt.Errorf("encode existing entries: %w", err)
	}

	var reply []LongTermEntry
	err = l.pool.CompleteJSON(ctx, llm.Request{
		System:      fmt.Sprintf(consolidatorPrompt, l.maxEntries),
		User:        fmt.Sprintf("Existing facts:\n%s\n\nNew fact (%s): %s", payload, newEntry.Time, newEntry.Content),
		Temperature: 0.2,
		MaxTokens:   400,
	}, &reply)
	if err != nil {
		return nil, err
	}

	valid := make([]LongTermEntry, 0, len(reply))
	for _, entry := range reply {
		entry.Content = strings.TrimSpace(entry.Content)
		if entry.Content == "" {
			continue
		}
		if strings.TrimSpace(entry.Time) == "" {
			entry.Time = newEntry.Time
		}
		valid = append(valid, entry)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("consolidation reply contained no valid entries")
	}
	return capEntries(valid, l.maxEntries), nil
}

// capEntries keeps the most recent maxEntries entries.
func capEntries(entries []LongTermEntry, maxEntries int) []LongTermEntry {
	if len(entries) > maxEntries {
		entries = entries[len(entries)-maxEntries:]
	}
	return entries
}

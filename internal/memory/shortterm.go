package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lantern-ai/keepsake/internal/llm"
)

const summarizerPrompt = `You summarize fragments of a conversation between a user and their companion. Reduce the exchanges below to ONE short sentence capturing what happened or what the user shared. Reply with the sentence only, no preamble.`

// ShortTerm accumulates classified snippets (and raw exchanges awaiting
// batch summarization) per key, and flushes them into the persistent
// short-term text once the round threshold is reached.
type ShortTerm struct {
	store      Store
	acc        *Accumulator
	summarizer llm.Client
	model      string
	threshold  int
	maxChars   int
	now        func() time.Time
}

type ShortTermConfig struct {
	Threshold int
	MaxChars  int
	Model     string
}

func NewShortTerm(store Store, acc *Accumulator, summarizer llm.Client, cfg ShortTermConfig) *ShortTerm {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 7
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 5000
	}
	return &ShortTerm{
		store:      store,
		acc:        acc,
		summarizer: summarizer,
		model:      cfg.Model,
		threshold:  cfg.Threshold,
		maxChars:   cfg.MaxChars,
		now:        time.Now,
	}
}

// AcceptStatus reports what happened to one accepted item.
type AcceptStatus struct {
	Flushed         bool `json:"flushed"`
	FlushedCount    int  `json:"flushed_count,omitempty"`
	PendingCount    int  `json:"pending_count"`
	RemainingRounds int  `json:"remaining_rounds"`
}

// AcceptSnippet queues a classified short-term snippet.
func (s *ShortTerm) AcceptSnippet(ctx context.Context, userID, personaID, snippet string) AcceptStatus {
	rounds := s.acc.AddSnippet(userID, personaID, snippet)
	return s.maybeFlush(ctx, userID, personaID, rounds)
}

// AcceptExchange queues a raw exchange for batch summarization at flush time.
func (s *ShortTerm) AcceptExchange(ctx context.Context, userID, personaID string, ex Exchange) AcceptStatus {
	rounds := s.acc.AddExchange(userID, personaID, ex)
	return s.maybeFlush(ctx, userID, personaID, rounds)
}

func (s *ShortTerm) maybeFlush(ctx context.Context, userID, personaID string, rounds int) AcceptStatus {
	if rounds < s.threshold {
		return AcceptStatus{
			PendingCount:    s.acc.PendingCount(userID, personaID),
			RemainingRounds: s.threshold - rounds,
		}
	}

	flushed, err := s.Flush(ctx, userID, personaID)
	if err != nil {
		log.Printf("short-term flush failed for user=%s persona=%s, pending preserved: %v", userID, personaID, err)
		return AcceptStatus{
			PendingCount:    s.acc.PendingCount(userID, personaID),
			RemainingRounds: 0,
		}
	}
	return AcceptStatus{
		Flushed:         true,
		FlushedCount:    flushed,
		PendingCount:    s.acc.PendingCount(userID, personaID),
		RemainingRounds: s.threshold,
	}
}

// Flush writes all pending state for the key to the store and resets the
// round counter. The take-and-reset and the write form one logical step: on
// a failed write the taken state is handed back to the accumulator.
func (s *ShortTerm) Flush(ctx context.Context, userID, personaID string) (int, error) {
	snippets, exchanges, rounds := s.acc.BeginFlush(userID, personaID)
	if len(snippets) == 0 && len(exchanges) == 0 {
		return 0, nil
	}

	stamp := s.now().Format("2006-01-02")
	lines := make([]string, 0, len(snippets)+1)
	for _, snippet := range snippets {
		lines = append(lines, fmt.Sprintf("[%s] %s", stamp, snippet))
	}
	if len(exchanges) > 0 {
		lines = append(lines, fmt.Sprintf("[%s] %s", stamp, s.summarize(ctx, exchanges)))
	}

	rec, err := s.store.Ensure(ctx, userID, personaID)
	if err != nil {
		s.acc.Restore(userID, personaID, snippets, exchanges, rounds)
		return 0, err
	}

	combined := strings.Join(lines, "\n")
	if rec.ShortTerm != "" {
		combined = rec.ShortTerm + "\n" + combined
	}
	combined = trimToTail(combined, s.maxChars)

	if err := s.store.SetShortTerm(ctx, userID, personaID, combined); err != nil {
		s.acc.Restore(userID, personaID, snippets, exchanges, rounds)
		return 0, err
	}
	return len(snippets) + len(exchanges), nil
}

// summarize reduces raw exchanges to one sentence. When the LLM is
// unavailable or misbehaves it degrades to a plain digest of the user side
// of the exchanges, so the flush stays total.
func (s *ShortTerm) summarize(ctx context.Context, exchanges []Exchange) string {
	if s.summarizer != nil {
		var b strings.Builder
		for _, ex := range exchanges {
			fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", ex.User, ex.Assistant)
		}
		summary, err := s.summarizer.Complete(ctx, llm.Request{
			Model:       s.model,
			System:      summarizerPrompt,
			User:        b.String(),
			Temperature: 0.5,
			MaxTokens:   120,
		})
		if err == nil {
			if summary = strings.TrimSpace(summary); summary != "" {
				return summary
			}
		} else {
			log.Printf("batch summarization failed, using plain digest: %v", err)
		}
	}

	parts := make([]string, 0, len(exchanges))
	for _, ex := range exchanges {
		if ex.User != "" {
			parts = append(parts, ex.User)
		}
	}
	return strings.Join(parts, " / ")
}

// trimToTail keeps the most recent text within the cap, dropping the oldest
// content at a line boundary where possible.
func trimToTail(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	tail := string(runes[len(runes)-maxChars:])
	if i := strings.IndexByte(tail, '\n'); i >= 0 && i+1 < len(tail) {
		return tail[i+1:]
	}
	return tail
}

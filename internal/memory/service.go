package memory

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lantern-ai/keepsake/internal/dialogue"
	"github.com/lantern-ai/keepsake/internal/observability"
	"github.com/lantern-ai/keepsake/internal/vector"
)

// HistoryReader reads the raw-dialogue tier. Implementations degrade
// internally and never fail the caller.
type HistoryReader interface {
	Recent(ctx context.Context, userID, personaID string, voiceMode bool, limit int) ([]dialogue.Turn, string)
}

// Recaller is the semantic recall tier.
type Recaller interface {
	Enabled() bool
	Recall(ctx context.Context, userID, query string, limit int) []vector.Match
	Store(ctx context.Context, userID, userMessage, aiResponse string, metadata map[string]string) bool
	DedupThreshold() float64
	Clear(ctx context.Context, userID string) error
}

// ExchangeClassifier decides what an exchange is worth remembering.
type ExchangeClassifier interface {
	Classify(ctx context.Context, userMessage, aiResponse string) Classification
}

// JobRunner accepts fire-and-forget background work.
type JobRunner interface {
	Submit(name string, run func(ctx context.Context) error) bool
}

// Service is the memory façade consumed by the chat pipeline. It merges
// the three memory tiers on reads and fans writes out to them. No failure
// inside the service ever fails a conversational turn: each slice degrades
// to "less memory" and logs.
type Service struct {
	store      Store
	reader     HistoryReader
	classifier ExchangeClassifier
	shortTerm  *ShortTerm
	longTerm   *LongTerm
	recall     Recaller
	acc        *Accumulator
	jobs       JobRunner
	metrics    *observability.Metrics

	guestID         string
	defaultNickname string
	turnLimit       int
	recallLimit     int
	flushThreshold  int
	personaEnabled  func(string) bool
}

type ServiceDeps struct {
	Store      Store
	Reader     HistoryReader
	Classifier ExchangeClassifier
	ShortTerm  *ShortTerm
	LongTerm   *LongTerm
	Recall     Recaller
	Acc        *Accumulator
	Jobs       JobRunner
	Metrics    *observability.Metrics

	GuestID         string
	DefaultNickname string
	TurnLimit       int
	RecallLimit     int
	FlushThreshold  int
	PersonaEnabled  func(string) bool
}

func NewService(deps ServiceDeps) *Service {
	if deps.TurnLimit <= 0 {
		deps.TurnLimit = 7
	}
	if deps.RecallLimit <= 0 {
		deps.RecallLimit = 3
	}
	if deps.FlushThreshold <= 0 {
		deps.FlushThreshold = 7
	}
	if deps.DefaultNickname == "" {
		deps.DefaultNickname = "stranger"
	}
	if deps.PersonaEnabled == nil {
		deps.PersonaEnabled = func(string) bool { return true }
	}
	return &Service{
		store:           deps.Store,
		reader:          deps.Reader,
		classifier:      deps.Classifier,
		shortTerm:       deps.ShortTerm,
		longTerm:        deps.LongTerm,
		recall:          deps.Recall,
		acc:             deps.Acc,
		jobs:            deps.Jobs,
		metrics:         deps.Metrics,
		guestID:         deps.GuestID,
		defaultNickname: deps.DefaultNickname,
		turnLimit:       deps.TurnLimit,
		recallLimit:     deps.RecallLimit,
		flushThreshold:  deps.FlushThreshold,
		personaEnabled:  deps.PersonaEnabled,
	}
}

// ContextBundle is everything the chat pipeline feeds the model for one
// turn. Recalled exchanges come first as weakly-ordered supplementary
// context, followed by chronological history.
type ContextBundle struct {
	Recalled        []vector.Match  `json:"recalled"`
	History         []dialogue.Turn `json:"history"`
	Nickname        string          `json:"nickname"`
	ShortTerm       string          `json:"short_term"`
	LongTerm        []LongTermEntry `json:"long_term"`
	SkipVectorStore bool            `json:"skip_vector_store"`
}

// CombinedContext assembles the three memory tiers for one upcoming turn.
// The sub-fetches run concurrently and degrade independently.
func (s *Service) CombinedContext(ctx context.Context, userID, personaID, currentMessage string, voiceMode bool) ContextBundle {
	bundle := ContextBundle{Nickname: s.defaultNickname}
	if userID == s.guestID {
		return bundle
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		start := time.Now()
		bundle.History, bundle.Nickname = s.reader.Recent(gctx, userID, personaID, voiceMode, s.turnLimit)
		s.metrics.ObserveContextSlice("history", time.Since(start))
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		rec, err := s.store.Get(gctx, userID, personaID)
		if err != nil {
			if err != ErrNotFound {
				log.Printf("persistent memory lookup failed for user=%s persona=%s: %v", userID, personaID, err)
				s.metrics.ObserveDegradation("persistent_memory")
			}
		} else {
			bundle.ShortTerm = rec.ShortTerm
			bundle.LongTerm = rec.LongTerm
		}
		s.metrics.ObserveContextSlice("persistent", time.Since(start))
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		if s.recall != nil && s.recall.Enabled() {
			bundle.Recalled = s.recall.Recall(gctx, userID, currentMessage, s.recallLimit)
			if len(bundle.Recalled) > 0 && bundle.Recalled[0].Score >= s.recall.DedupThreshold() {
				bundle.SkipVectorStore = true
			}
			outcome := "hit"
			if len(bundle.Recalled) == 0 {
				outcome = "miss"
			}
			s.metrics.ObserveVectorOp("recall", outcome)
		}
		s.metrics.ObserveContextSlice("vector", time.Since(start))
		return nil
	})

	// Every goroutine degrades internally; Wait only propagates context
	// cancellation, which we also swallow into a partial bundle.
	_ = g.Wait()
	return bundle
}

// TurnReceipt reports what the save path did with one completed turn.
type TurnReceipt struct {
	Saved             bool          `json:"saved"`
	MemoryEnabled     bool          `json:"memory_enabled"`
	Tag               Tag           `json:"tag,omitempty"`
	ShortTerm         *AcceptStatus `json:"short_term,omitempty"`
	LongTermScheduled bool          `json:"long_term_scheduled,omitempty"`
	VectorStored      bool          `json:"vector_stored"`
}

// RecordTurn classifies one completed exchange, routes it to the matching
// tier and attempts vector storage. skipVector short-circuits the store
// when a prior CombinedContext already flagged a near-duplicate.
func (s *Service) RecordTurn(ctx context.Context, userID, personaID, userMessage, aiResponse string, metadata map[string]string, skipVector bool) TurnReceipt {
	receipt := TurnReceipt{}
	if userID == s.guestID {
		return receipt
	}

	if s.personaEnabled(personaID) {
		receipt.MemoryEnabled = true
		s.processPersistent(ctx, userID, personaID, userMessage, aiResponse, &receipt)
	}

	if s.recall != nil && s.recall.Enabled() {
		if skipVector {
			s.metrics.ObserveVectorOp("store", "skipped")
		} else {
			meta := map[string]string{
				"persona_id": personaID,
				"timestamp":  time.Now().UTC().Format(time.RFC3339),
			}
			for k, v := range metadata {
				meta[k] = v
			}
			receipt.VectorStored = s.recall.Store(ctx, userID, userMessage, aiResponse, meta)
			outcome := "stored"
			if !receipt.VectorStored {
				outcome = "rejected"
			}
			s.metrics.ObserveVectorOp("store", outcome)
		}
	}

	receipt.Saved = receipt.MemoryEnabled || receipt.VectorStored
	return receipt
}

func (s *Service) processPersistent(ctx context.Context, userID, personaID, userMessage, aiResponse string, receipt *TurnReceipt) {
	if _, err := s.store.Ensure(ctx, userID, personaID); err != nil {
		log.Printf("memory record unavailable for user=%s persona=%s: %v", userID, personaID, err)
		s.metrics.ObserveDegradation("persistent_memory")
		receipt.MemoryEnabled = false
		return
	}

	// The durable counter moves exactly once per recorded turn, whatever
	// the classification outcome. Rounds-until-flush live in the
	// accumulator only.
	if err := s.store.IncrementCount(ctx, userID, personaID); err != nil {
		log.Printf("conversation count increment failed for user=%s persona=%s: %v", userID, personaID, err)
	}

	cls := s.classifier.Classify(ctx, userMessage, aiResponse)
	receipt.Tag = cls.Tag
	s.metrics.ObserveClassification(string(cls.Tag))

	switch cls.Tag {
	case TagShortTerm:
		status := s.shortTerm.AcceptSnippet(ctx, userID, personaID, cls.Content)
		receipt.ShortTerm = &status
		s.observeFlush(status)
	case TagLongTerm:
		receipt.LongTermScheduled = s.scheduleConsolidation(userID, personaID, cls.Content)
	default:
		status := s.shortTerm.AcceptExchange(ctx, userID, personaID, Exchange{User: userMessage, Assistant: aiResponse})
		receipt.ShortTerm = &status
		s.observeFlush(status)
	}
}

// scheduleConsolidation hands the merge to the worker pool and returns
// immediately; the caller is told "scheduled", not "durable".
func (s *Service) scheduleConsolidation(userID, personaID, fact string) bool {
	run := func(ctx context.Context) error {
		rec, err := s.store.Ensure(ctx, userID, personaID)
		if err != nil {
			return fmt.Errorf("load record: %w", err)
		}
		entries := s.longTerm.Consolidate(ctx, rec.LongTerm, fact)
		if err := s.store.SetLongTerm(ctx, userID, personaID, entries); err != nil {
			return fmt.Errorf("write entries: %w", err)
		}
		return nil
	}

	if s.jobs == nil {
		// No pool wired (tests): consolidate inline.
		if err := run(context.Background()); err != nil {
			log.Printf("long-term consolidation failed for user=%s persona=%s: %v", userID, personaID, err)
			return false
		}
		return true
	}
	return s.jobs.Submit("longterm_consolidate", run)
}

func (s *Service) observeFlush(status AcceptStatus) {
	if status.Flushed {
		s.metrics.ObserveFlush("ok")
	} else if status.RemainingRounds == 0 {
		s.metrics.ObserveFlush("failed")
	}
}

// Profile is the user portrait derived from persistent memory.
type Profile struct {
	UserID    string          `json:"user_id"`
	PersonaID string          `json:"persona_id"`
	ShortTerm string          `json:"short_term"`
	LongTerm  []LongTermEntry `json:"long_term"`
	Stats     Stats           `json:"stats"`
}

// Stats summarizes the state of one memory record.
type Stats struct {
	Exists            bool       `json:"exists"`
	ConversationCount int        `json:"conversation_count"`
	ShortTermChars    int        `json:"short_term_chars"`
	LongTermEntries   int        `json:"long_term_entries"`
	PendingCount      int        `json:"pending_count"`
	RemainingRounds   int        `json:"remaining_rounds"`
	LastUpdate        *time.Time `json:"last_update,omitempty"`
}

func (s *Service) Profile(ctx context.Context, userID, personaID string) (Profile, error) {
	p := Profile{UserID: userID, PersonaID: personaID}
	rec, err := s.store.Get(ctx, userID, personaID)
	if err != nil && err != ErrNotFound {
		return p, err
	}
	if err == nil {
		p.ShortTerm = rec.ShortTerm
		p.LongTerm = rec.LongTerm
	}
	p.Stats = s.stats(rec, err == nil, userID, personaID)
	return p, nil
}

func (s *Service) Stats(ctx context.Context, userID, personaID string) (Stats, error) {
	rec, err := s.store.Get(ctx, userID, personaID)
	if err != nil && err != ErrNotFound {
		return Stats{}, err
	}
	return s.stats(rec, err == nil, userID, personaID), nil
}

func (s *Service) stats(rec Record, exists bool, userID, personaID string) Stats {
	rounds := s.acc.Rounds(userID, personaID)
	st := Stats{
		Exists:          exists,
		PendingCount:    s.acc.PendingCount(userID, personaID),
		RemainingRounds: s.flushThreshold - rounds,
	}
	if st.RemainingRounds < 0 {
		st.RemainingRounds = 0
	}
	if exists {
		st.ConversationCount = rec.ConversationCount
		st.ShortTermChars = len([]rune(rec.ShortTerm))
		st.LongTermEntries = len(rec.LongTerm)
		if !rec.UpdatedAt.IsZero() {
			updated := rec.UpdatedAt
			st.LastUpdate = &updated
		}
	}
	return st
}

// Flush forces the pending short-term state to storage before the round
// threshold is reached.
func (s *Service) Flush(ctx context.Context, userID, personaID string) (int, error) {
	return s.shortTerm.Flush(ctx, userID, personaID)
}

// Clear deletes the memory record and pending accumulator state for the
// key. Vector-index deletion is best effort.
func (s *Service) Clear(ctx context.Context, userID, personaID string) error {
	if err := s.store.Delete(ctx, userID, personaID); err != nil {
		return err
	}
	s.acc.Clear(userID, personaID)
	if s.recall != nil && s.recall.Enabled() {
		if err := s.recall.Clear(ctx, userID); err != nil {
			log.Printf("vector clear failed for user=%s: %v", userID, err)
		}
	}
	return nil
}

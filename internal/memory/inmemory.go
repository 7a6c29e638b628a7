package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process record store for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]Record)}
}

func storeKey(userID, personaID string) string {
	return userID + ":" + personaID
}

func (s *InMemoryStore) Get(_ context.Context, userID, personaID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[storeKey(userID, personaID)]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *InMemoryStore) Ensure(_ context.Context, userID, personaID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := storeKey(userID, personaID)
	if rec, ok := s.records[key]; ok {
		return rec, nil
	}
	now := time.Now().UTC()
	rec := Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		PersonaID: personaID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.records[key] = rec
	return rec, nil
}

func (s *InMemoryStore) SetShortTerm(_ context.Context, userID, personaID, text string) error {
	return s.update(userID, personaID, func(rec *Record) {
		rec.ShortTerm = text
	})
}

func (s *InMemoryStore) SetLongTerm(_ context.Context, userID, personaID string, entries []LongTermEntry) error {
	return s.update(userID, personaID, func(rec *Record) {
		rec.LongTerm = append([]LongTermEntry(nil), entries...)
	})
}

func (s *InMemoryStore) IncrementCount(_ context.Context, userID, personaID string) error {
	return s.update(userID, personaID, func(rec *Record) {
		rec.ConversationCount++
	})
}

func (s *InMemoryStore) Delete(_ context.Context, userID, personaID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, storeKey(userID, personaID))
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) update(userID, personaID string, fn func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := storeKey(userID, personaID)
	rec, ok := s.records[key]
	if !ok {
		return ErrNotFound
	}
	fn(&rec)
	rec.UpdatedAt = time.Now().UTC()
	s.records[key] = rec
	return nil
}

package memory

import "sync"

// Accumulator holds not-yet-flushed short-term state per (user, persona)
// key. It is process-local and deliberately not durable: pending snippets
// are lost on restart. The mutex guards every read-modify-write so
// concurrent turns for the same key cannot interleave.
type Accumulator struct {
	mu    sync.Mutex
	byKey map[string]*pending
}

type pending struct {
	snippets  []string
	exchanges []Exchange
	rounds    int
}

func NewAccumulator() *Accumulator {
	return &Accumulator{byKey: make(map[string]*pending)}
}

func accKey(userID, personaID string) string {
	return userID + ":" + personaID
}

// AddSnippet queues a classified snippet and returns the updated round count.
func (a *Accumulator) AddSnippet(userID, personaID, snippet string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := a.get(userID, personaID)
	p.snippets = append(p.snippets, snippet)
	p.rounds++
	return p.rounds
}

// AddExchange queues a raw exchange for batch summarization and returns the
// updated round count.
func (a *Accumulator) AddExchange(userID, personaID string, ex Exchange) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := a.get(userID, personaID)
	p.exchanges = append(p.exchanges, ex)
	p.rounds++
	return p.rounds
}

// Rounds returns the rounds accumulated since the last flush.
func (a *Accumulator) Rounds(userID, personaID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.byKey[accKey(userID, personaID)]; ok {
		return p.rounds
	}
	return 0
}

// PendingCount returns the number of queued snippets and exchanges.
func (a *Accumulator) PendingCount(userID, personaID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.byKey[accKey(userID, personaID)]; ok {
		return len(p.snippets) + len(p.exchanges)
	}
	return 0
}

// BeginFlush atomically takes the pending state and resets the key, so
// snippets arriving during the flush queue for the next cycle. If the flush
// write later fails the caller must hand the state back via Restore.
func (a *Accumulator) BeginFlush(userID, personaID string) (snippets []string, exchanges []Exchange, rounds int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := accKey(userID, personaID)
	p, ok := a.byKey[key]
	if !ok || (len(p.snippets) == 0 && len(p.exchanges) == 0) {
		return nil, nil, 0
	}
	snippets, exchanges, rounds = p.snippets, p.exchanges, p.rounds
	delete(a.byKey, key)
	return snippets, exchanges, rounds
}

// Restore re-queues state taken by BeginFlush after a failed write, ahead
// of anything that accumulated in the meantime.
func (a *Accumulator) Restore(userID, personaID string, snippets []string, exchanges []Exchange, rounds int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := a.get(userID, personaID)
	p.snippets = append(append([]string(nil), snippets...), p.snippets...)
	p.exchanges = append(append([]Exchange(nil), exchanges...), p.exchanges...)
	p.rounds += rounds
}

// Clear drops all pending state for the key.
func (a *Accumulator) Clear(userID, personaID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.byKey, accKey(userID, personaID))
}

func (a *Accumulator) get(userID, personaID string) *pending {
	key := accKey(userID, personaID)
	p, ok := a.byKey[key]
	if !ok {
		p = &pending{}
		a.byKey[key] = p
	}
	return p
}

package memory

import "context"

// Store persists memory records. Mutations go through here only; nothing
// else writes the record directly.
type Store interface {
	// Get returns the record for the key, or ErrNotFound.
	Get(ctx context.Context, userID, personaID string) (Record, error)
	// Ensure returns the record for the key, creating an empty one first
	// if none exists.
	Ensure(ctx context.Context, userID, personaID string) (Record, error)
	// SetShortTerm replaces the short-term text.
	SetShortTerm(ctx context.Context, userID, personaID, text string) error
	// SetLongTerm replaces the long-term entry list.
	SetLongTerm(ctx context.Context, userID, personaID string, entries []LongTermEntry) error
	// IncrementCount bumps the monotonic conversation counter by one.
	IncrementCount(ctx context.Context, userID, personaID string) error
	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, userID, personaID string) error
	Close() error
}

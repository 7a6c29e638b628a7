package memory

import (
	"errors"
	"time"
)

// Tag is the classification outcome for one exchange.
type Tag string

const (
	// TagNone marks small talk with no lasting signal.
	TagNone Tag = "none"
	// TagShortTerm marks transient, dated information.
	TagShortTerm Tag = "short_term"
	// TagLongTerm marks a durable trait or preference.
	TagLongTerm Tag = "long_term"
)

// ValidTag reports whether t is in the closed tag set.
func ValidTag(t Tag) bool {
	switch t {
	case TagNone, TagShortTerm, TagLongTerm:
		return true
	default:
		return false
	}
}

// Classification is the result of one classifier call. Content is only set
// for short_term and long_term tags.
type Classification struct {
	Tag     Tag    `json:"tag"`
	Content string `json:"content,omitempty"`
}

// LongTermEntry is one durable fact with the date it was learned.
type LongTermEntry struct {
	Time    string `json:"time"`
	Content string `json:"content"`
}

// Record is the persistent memory row for one (user, persona) pair.
// Exactly one record exists per key; it is created lazily on first write
// and never implicitly deleted.
type Record struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	PersonaID         string          `json:"persona_id"`
	ShortTerm         string          `json:"short_term"`
	LongTerm          []LongTermEntry `json:"long_term"`
	ConversationCount int             `json:"conversation_count"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Exchange is one raw user/assistant pair held for batch summarization.
type Exchange struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// ErrNotFound is returned when no memory record exists for a key.
var ErrNotFound = errors.New("memory record not found")

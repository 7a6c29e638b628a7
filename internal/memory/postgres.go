package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lantern-ai/keepsake/internal/reliability"
)

// PostgresStore persists memory records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if err := initSchema(ctx, pool); err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_memory (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			persona_id TEXT NOT NULL,
			short_term TEXT NOT NULL DEFAULT '',
			long_term JSONB NOT NULL DEFAULT '[]',
			conversation_count INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (user_id, persona_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_memory_key ON chat_memory (user_id, persona_id);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init memory schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, userID, personaID string) (Record, error) {
	var (
		rec      Record
		longTerm []byte
	)
	err := reliability.Retry(ctx, 3, 200*time.Millisecond, 2*time.Second, func(ctx context.Context) error {
		return s.pool.QueryRow(ctx,
			`SELECT id, user_id, persona_id, short_term, long_term, conversation_count, created_at, updated_at
			 FROM chat_memory WHERE user_id = $1 AND persona_id = $2`,
			userID, personaID,
		).Scan(&rec.ID, &rec.UserID, &rec.PersonaID, &rec.ShortTerm, &longTerm,
			&rec.ConversationCount, &rec.CreatedAt, &rec.UpdatedAt)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get memory record: %w", err)
	}
	if len(longTerm) > 0 {
		if err := json.Unmarshal(longTerm, &rec.LongTerm); err != nil {
			return Record{}, fmt.Errorf("decode long-term entries: %w", err)
		}
	}
	return rec, nil
}

func (s *PostgresStore) Ensure(ctx context.Context, userID, personaID string) (Record, error) {
	rec, err := s.Get(ctx, userID, personaID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Record{}, err
	}

	err = reliability.Retry(ctx, 3, 200*time.Millisecond, 2*time.Second, func(ctx context.Context) error {
		_, execErr := s.pool.Exec(ctx,
			`INSERT INTO chat_memory (id, user_id, persona_id)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (user_id, persona_id) DO NOTHING`,
			uuid.NewString(), userID, personaID,
		)
		return execErr
	})
	if err != nil {
		return Record{}, fmt.Errorf("create memory record: %w", err)
	}
	return s.Get(ctx, userID, personaID)
}

func (s *PostgresStore) SetShortTerm(ctx context.Context, userID, personaID, text string) error {
	return s.exec(ctx, "update short-term memory",
		`UPDATE chat_memory
		 SET short_term = $3, updated_at = now()
		 WHERE user_id = $1 AND persona_id = $2`,
		userID, personaID, text,
	)
}

func (s *PostgresStore) SetLongTerm(ctx context.Context, userID, personaID string, entries []LongTermEntry) error {
	if entries == nil {
		entries = []LongTermEntry{}
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode long-term entries: %w", err)
	}
	return s.exec(ctx, "update long-term memory",
		`UPDATE chat_memory
		 SET long_term = $3::jsonb, updated_at = now()
		 WHERE user_id = $1 AND persona_id = $2`,
		userID, personaID, string(payload),
	)
}

func (s *PostgresStore) IncrementCount(ctx context.Context, userID, personaID string) error {
	return s.exec(ctx, "increment conversation count",
		`UPDATE chat_memory
		 SET conversation_count = conversation_count + 1, updated_at = now()
		 WHERE user_id = $1 AND persona_id = $2`,
		userID, personaID,
	)
}

func (s *PostgresStore) Delete(ctx context.Context, userID, personaID string) error {
	return s.exec(ctx, "delete memory record",
		`DELETE FROM chat_memory WHERE user_id = $1 AND persona_id = $2`,
		userID, personaID,
	)
}

func (s *PostgresStore) Close() error { return nil }

func (s *PostgresStore) exec(ctx context.Context, op, sql string, args ...any) error {
	err := reliability.Retry(ctx, 3, 200*time.Millisecond, 2*time.Second, func(ctx context.Context) error {
		_, execErr := s.pool.Exec(ctx, sql, args...)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

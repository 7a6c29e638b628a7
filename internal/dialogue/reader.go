package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lantern-ai/keepsake/internal/reliability"
)

// Turn is one logical user/assistant exchange keyed by timestamp.
type Turn struct {
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
}

// Row kinds in the dialogue table. Typed and spoken exchanges carry
// distinct codes so voice sessions only see voice history.
var (
	textKinds  = []int32{1, 2}
	voiceKinds = []int32{3, 4}
)

// Reader projects recent raw dialogue rows into aggregated turns.
type Reader struct {
	pool            *pgxpool.Pool
	windowDays      int
	fetchLimit      int
	defaultNickname string
}

type ReaderConfig struct {
	WindowDays      int
	FetchLimit      int
	DefaultNickname string
}

func NewReader(pool *pgxpool.Pool, cfg ReaderConfig) *Reader {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 30
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = 20
	}
	if cfg.DefaultNickname == "" {
		cfg.DefaultNickname = "stranger"
	}
	return &Reader{
		pool:            pool,
		windowDays:      cfg.WindowDays,
		fetchLimit:      cfg.FetchLimit,
		defaultNickname: cfg.DefaultNickname,
	}
}

// Recent returns up to limit aggregated turns for the key, oldest first,
// plus the user's display name. Store failures degrade to an empty history
// and the default nickname; they are never surfaced to the caller.
func (r *Reader) Recent(ctx context.Context, userID, personaID string, voiceMode bool, limit int) ([]Turn, string) {
	if r.pool == nil {
		return nil, r.defaultNickname
	}
	if limit <= 0 {
		limit = 7
	}

	rows, err := r.queryRows(ctx, userID, personaID, voiceMode)
	if err != nil {
		// The store is already misbehaving; skip the nickname lookup too.
		log.Printf("dialogue history query failed for user=%s persona=%s: %v", userID, personaID, err)
		return nil, r.defaultNickname
	}

	return Aggregate(rows, limit), r.nickname(ctx, userID)
}

type Row struct {
	User      string
	Assistant string
	Timestamp time.Time
}

func (r *Reader) queryRows(ctx context.Context, userID, personaID string, voiceMode bool) ([]Row, error) {
	kinds := textKinds
	if voiceMode {
		kinds = voiceKinds
	}

	var out []Row
	err := reliability.Retry(ctx, 3, 200*time.Millisecond, 2*time.Second, func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx,
			`SELECT COALESCE(user_text, ''), COALESCE(assistant_text, ''), create_time
			 FROM dialogue
			 WHERE account_id = $1 AND persona_id = $2
			   AND create_time >= now() - make_interval(days => $3)
			   AND kind = ANY($4)
			 ORDER BY create_time DESC
			 LIMIT $5`,
			userID, personaID, r.windowDays, kinds, r.fetchLimit,
		)
		if err != nil {
			return fmt.Errorf("query dialogue: %w", err)
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var row Row
			if err := rows.Scan(&row.User, &row.Assistant, &row.Timestamp); err != nil {
				return fmt.Errorf("scan dialogue row: %w", err)
			}
			out = append(out, row)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate dialogue rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Reader) nickname(ctx context.Context, userID string) string {
	var name string
	err := r.pool.QueryRow(ctx,
		`SELECT display_name FROM account WHERE id = $1`, userID,
	).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.defaultNickname
	}
	if err != nil {
		log.Printf("nickname lookup failed for user=%s: %v", userID, err)
		return r.defaultNickname
	}
	if name == "" {
		return r.defaultNickname
	}
	return name
}

// Aggregate merges raw rows sharing a timestamp into single turns and keeps
// the limit most-recent turns, returned oldest first. Within one timestamp
// the last non-empty user text wins and assistant texts concatenate with a
// space.
func Aggregate(rows []Row, limit int) []Turn {
	// Rows arrive newest first; walk them oldest first so assistant
	// fragments concatenate in utterance order.
	byTime := make(map[time.Time]*Turn)
	var order []time.Time
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		turn, ok := byTime[row.Timestamp]
		if !ok {
			turn = &Turn{Timestamp: row.Timestamp}
			byTime[row.Timestamp] = turn
			order = append(order, row.Timestamp)
		}
		if row.User != "" {
			turn.User = row.User
		}
		if row.Assistant != "" {
			if turn.Assistant != "" {
				turn.Assistant += " " + row.Assistant
			} else {
				turn.Assistant = row.Assistant
			}
		}
	}

	if len(order) > limit {
		order = order[len(order)-limit:]
	}
	turns := make([]Turn, 0, len(order))
	for _, ts := range order {
		turns = append(turns, *byTime[ts])
	}
	return turns
}

// InitSchema creates the dialogue and account tables if they do not exist.
// Production deployments share these tables with the chat pipeline; this
// keeps local development self-contained.
func InitSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS dialogue (
			id BIGSERIAL PRIMARY KEY,
			account_id TEXT NOT NULL,
			persona_id TEXT NOT NULL,
			user_text TEXT,
			assistant_text TEXT,
			kind SMALLINT NOT NULL DEFAULT 1,
			create_time TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_dialogue_key_time ON dialogue (account_id, persona_id, create_time);`,
		`CREATE TABLE IF NOT EXISTS account (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT ''
		);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init dialogue schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

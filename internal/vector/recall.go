package vector

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
)

// Match is one recalled exchange with its similarity score.
type Match struct {
	Score       float64           `json:"score"`
	UserMessage string            `json:"user_message"`
	AIResponse  string            `json:"ai_response"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Embedder converts text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Recall is the semantic recall tier backed by an embedded vector store.
// Each user gets their own collection, so no query can cross user
// boundaries. The whole feature is optional: a disabled or failing backend
// makes Recall return nothing and Store return false, never an error.
type Recall struct {
	db             *chromem.DB
	embedder       Embedder
	enabled        bool
	dedupThreshold float64

	mu          sync.Mutex
	collections map[string]*chromem.Collection
}

type Config struct {
	Enabled        bool
	PersistPath    string
	DedupThreshold float64
}

// pointNamespace makes point ids deterministic per combined text, so
// re-storing identical content upserts instead of duplicating.
var pointNamespace = uuid.MustParse("3f2d7c1a-9b64-4e0f-8a27-5cde1f60b9aa")

func New(embedder Embedder, cfg Config) (*Recall, error) {
	if !cfg.Enabled || embedder == nil {
		log.Printf("vector recall disabled")
		return &Recall{}, nil
	}
	if cfg.DedupThreshold <= 0 {
		cfg.DedupThreshold = 0.96
	}

	var (
		db  *chromem.DB
		err error
	)
	if cfg.PersistPath != "" {
		db, err = chromem.NewPersistentDB(cfg.PersistPath, true)
		if err != nil {
			return nil, fmt.Errorf("open vector store: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	return &Recall{
		db:             db,
		embedder:       embedder,
		enabled:        true,
		dedupThreshold: cfg.DedupThreshold,
		collections:    make(map[string]*chromem.Collection),
	}, nil
}

// Enabled reports whether the backend is configured.
func (r *Recall) Enabled() bool { return r != nil && r.enabled }

// DedupThreshold is the cosine score at or above which a new exchange is
// treated as a duplicate of an existing point.
func (r *Recall) DedupThreshold() float64 { return r.dedupThreshold }

// Recall returns up to limit stored exchanges for the user ranked by
// similarity to the query text. Failures degrade to an empty result.
func (r *Recall) Recall(ctx context.Context, userID, query string, limit int) []Match {
	if !r.Enabled() || strings.TrimSpace(query) == "" {
		return nil
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("recall embedding failed for user=%s: %v", userID, err)
		return nil
	}
	return r.search(ctx, userID, vec, limit)
}

// Store embeds the exchange and upserts it unless a near-duplicate already
// exists for the user. The skipped duplicate is a policy outcome, not an
// error, and reports false like any other non-store.
func (r *Recall) Store(ctx context.Context, userID, userMessage, aiResponse string, metadata map[string]string) bool {
	if !r.Enabled() {
		return false
	}

	combined := combineExchange(userMessage, aiResponse)
	vec, err := r.embedder.Embed(ctx, combined)
	if err != nil {
		log.Printf("store embedding failed for user=%s: %v", userID, err)
		return false
	}

	if nearest := r.search(ctx, userID, vec, 1); len(nearest) > 0 && nearest[0].Score >= r.dedupThreshold {
		log.Printf("near-duplicate exchange for user=%s (score %.3f), not stored", userID, nearest[0].Score)
		return false
	}

	col, err := r.collection(userID)
	if err != nil {
		log.Printf("vector collection unavailable for user=%s: %v", userID, err)
		return false
	}

	meta := map[string]string{
		"user_id":      userID,
		"user_message": userMessage,
		"ai_response":  aiResponse,
	}
	for k, v := range metadata {
		if _, reserved := meta[k]; !reserved {
			meta[k] = v
		}
	}

	doc := chromem.Document{
		ID:        uuid.NewSHA1(pointNamespace, []byte(combined)).String(),
		Content:   combined,
		Embedding: vec,
		Metadata:  meta,
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		log.Printf("vector store failed for user=%s: %v", userID, err)
		return false
	}
	return true
}

// Clear drops the user's collection. Best effort.
func (r *Recall) Clear(_ context.Context, userID string) error {
	if !r.Enabled() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.collections, userID)
	if err := r.db.DeleteCollection(collectionName(userID)); err != nil {
		return fmt.Errorf("delete vector collection: %w", err)
	}
	return nil
}

func (r *Recall) search(ctx context.Context, userID string, vec []float32, limit int) []Match {
	col, err := r.collection(userID)
	if err != nil {
		log.Printf("vector collection unavailable for user=%s: %v", userID, err)
		return nil
	}
	if limit <= 0 {
		limit = 3
	}
	if count := col.Count(); count < limit {
		if count == 0 {
			return nil
		}
		limit = count
	}

	results, err := col.QueryEmbedding(ctx, vec, limit, nil, nil)
	if err != nil {
		log.Printf("vector query failed for user=%s: %v", userID, err)
		return nil
	}

	matches := make([]Match, 0, len(results))
	for _, res := range results {
		meta := make(map[string]string, len(res.Metadata))
		for k, v := range res.Metadata {
			switch k {
			case "user_id", "user_message", "ai_response":
			default:
				meta[k] = v
			}
		}
		matches = append(matches, Match{
			Score:       float64(res.Similarity),
			UserMessage: res.Metadata["user_message"],
			AIResponse:  res.Metadata["ai_response"],
			Metadata:    meta,
		})
	}
	return matches
}

func (r *Recall) collection(userID string) (*chromem.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if col, ok := r.collections[userID]; ok {
		return col, nil
	}
	col, err := r.db.GetOrCreateCollection(collectionName(userID), nil, nil)
	if err != nil {
		return nil, err
	}
	r.collections[userID] = col
	return col, nil
}

func collectionName(userID string) string {
	if userID == "" {
		return "global"
	}
	return "user_" + userID
}

func combineExchange(userMessage, aiResponse string) string {
	return fmt.Sprintf("User: %s\nAssistant: %s", userMessage, aiResponse)
}

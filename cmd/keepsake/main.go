package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lantern-ai/keepsake/internal/config"
	"github.com/lantern-ai/keepsake/internal/dialogue"
	"github.com/lantern-ai/keepsake/internal/httpapi"
	"github.com/lantern-ai/keepsake/internal/llm"
	"github.com/lantern-ai/keepsake/internal/memory"
	"github.com/lantern-ai/keepsake/internal/observability"
	"github.com/lantern-ai/keepsake/internal/vector"
	"github.com/lantern-ai/keepsake/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	ctx := context.Background()

	// Every backend below is optional: a missing database, LLM key or
	// vector path narrows what the service remembers, never whether it runs.
	pool := connectDatabase(ctx, cfg.DatabaseURL)
	if pool != nil {
		defer pool.Close()
	}

	store, err := memory.NewStore(ctx, pool)
	if err != nil {
		log.Printf("postgres memory store unavailable, using in-memory: %v", err)
		store = memory.NewInMemoryStore()
	}
	defer store.Close()

	storeMode := "in-memory"
	if pool != nil && err == nil {
		storeMode = "postgres"
	}

	var llmClient *llm.OpenAIClient
	if cfg.LLMAPIKey != "" {
		llmClient, err = llm.NewOpenAIClient(llm.OpenAIConfig{
			BaseURL:        cfg.LLMBaseURL,
			APIKey:         cfg.LLMAPIKey,
			DefaultModel:   cfg.SummarizerModel,
			EmbeddingModel: cfg.EmbeddingModel,
		})
		if err != nil {
			log.Printf("llm backend unavailable, memory extraction disabled: %v", err)
			llmClient = nil
		}
	} else {
		log.Printf("no LLM API key configured, memory extraction disabled")
	}

	var (
		classifierPool *llm.Pool
		summarizer     llm.Client
		consolidator   llm.Client
		embedder       vector.Embedder
	)
	if llmClient != nil {
		classifierPool = llm.NewPool(llmClient, cfg.ClassifierPool, cfg.LLMMaxAttempts)
		summarizer = llmClient
		consolidator = llmClient
		embedder = llmClient
	}

	recall, err := vector.New(embedder, vector.Config{
		Enabled:        cfg.VectorEnabled,
		PersistPath:    cfg.VectorPersistPath,
		DedupThreshold: cfg.VectorDedupThreshold,
	})
	if err != nil {
		log.Printf("vector recall unavailable: %v", err)
		recall, _ = vector.New(nil, vector.Config{})
	}

	jobs := worker.NewPool(cfg.WorkerCount, cfg.WorkerQueueSize, func(name string, err error) {
		outcome := "ok"
		if err != nil {
			outcome = "failed"
		}
		metrics.ObserveJob(name, outcome)
	})
	defer jobs.Close()

	acc := memory.NewAccumulator()
	svc := memory.NewService(memory.ServiceDeps{
		Store:      store,
		Reader:     dialogue.NewReader(pool, dialogue.ReaderConfig{
			WindowDays:      cfg.DialogueWindowDays,
			FetchLimit:      cfg.DialogueFetchLimit,
			DefaultNickname: cfg.DefaultNickname,
		}),
		Classifier: memory.NewClassifier(classifierPool),
		ShortTerm: memory.NewShortTerm(store, acc, summarizer, memory.ShortTermConfig{
			Threshold: cfg.FlushThreshold,
			MaxChars:  cfg.ShortTermMaxChars,
			Model:     cfg.SummarizerModel,
		}),
		LongTerm: memory.NewLongTerm(consolidator, cfg.ConsolidatorModel, cfg.LongTermMaxEntries, cfg.LLMMaxAttempts),
		Recall:   recall,
		Acc:      acc,
		Jobs:     jobs,
		Metrics:  metrics,

		GuestID:         cfg.GuestUserID,
		DefaultNickname: cfg.DefaultNickname,
		TurnLimit:       cfg.DialogueTurnLimit,
		RecallLimit:     cfg.VectorRecallLimit,
		FlushThreshold:  cfg.FlushThreshold,
		PersonaEnabled: func(personaID string) bool {
			return cfg.MemoryEnabled && cfg.PersonaEnabled(personaID)
		},
	})

	api := httpapi.New(cfg, svc, metrics, storeMode)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s (store=%s, vector=%v)", cfg.BindAddr, storeMode, recall.Enabled())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}

// connectDatabase opens the pool and verifies connectivity. Failures are
// logged and the caller falls back to in-memory storage.
func connectDatabase(ctx context.Context, databaseURL string) *pgxpool.Pool {
	if databaseURL == "" {
		log.Printf("no DATABASE_URL configured, using in-memory storage")
		return nil
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		log.Printf("database config invalid, using in-memory storage: %v", err)
		return nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		log.Printf("database unreachable, using in-memory storage: %v", err)
		pool.Close()
		return nil
	}

	if err := dialogue.InitSchema(ctx, pool); err != nil {
		log.Printf("dialogue schema init failed: %v", err)
	}
	return pool
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the memory service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	DatabaseURL string

	// GuestUserID marks the anonymous user: reads return empty context and
	// writes are skipped for it.
	GuestUserID     string
	DefaultNickname string

	// LLM endpoint (OpenAI-compatible chat + embeddings).
	LLMBaseURL        string
	LLMAPIKey         string
	LLMMaxAttempts    int
	ClassifierPool    []string
	SummarizerModel   string
	ConsolidatorModel string

	// Dialogue history window.
	DialogueWindowDays int
	DialogueFetchLimit int
	DialogueTurnLimit  int

	// Persistent memory.
	MemoryEnabled      bool
	EnabledPersonas    []string
	FlushThreshold     int
	ShortTermMaxChars  int
	LongTermMaxEntries int

	// Vector recall (optional feature).
	VectorEnabled        bool
	VectorPersistPath    string
	EmbeddingModel       string
	VectorDedupThreshold float64
	VectorRecallLimit    int

	// Background consolidation writes.
	WorkerCount     int
	WorkerQueueSize int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:          envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:  envOrDefault("APP_METRICS_NAMESPACE", "keepsake"),
		DatabaseURL:       stringsTrimSpace("DATABASE_URL"),
		GuestUserID:       envOrDefault("MEMORY_GUEST_USER_ID", "guest"),
		DefaultNickname:   envOrDefault("MEMORY_DEFAULT_NICKNAME", "stranger"),
		LLMBaseURL:        stringsTrimSpace("LLM_BASE_URL"),
		LLMAPIKey:         stringsTrimSpace("LLM_API_KEY"),
		SummarizerModel:   envOrDefault("LLM_SUMMARIZER_MODEL", "qwen-turbo"),
		ConsolidatorModel: envOrDefault("LLM_CONSOLIDATOR_MODEL", "qwen-turbo"),
		EmbeddingModel:    envOrDefault("LLM_EMBEDDING_MODEL", "text-embedding-v3"),
		VectorPersistPath: stringsTrimSpace("VECTOR_PERSIST_PATH"),

		ShutdownTimeout:      15 * time.Second,
		LLMMaxAttempts:       3,
		DialogueWindowDays:   30,
		DialogueFetchLimit:   20,
		DialogueTurnLimit:    7,
		MemoryEnabled:        true,
		FlushThreshold:       7,
		ShortTermMaxChars:    5000,
		LongTermMaxEntries:   5,
		VectorEnabled:        false,
		VectorDedupThreshold: 0.96,
		VectorRecallLimit:    3,
		WorkerCount:          4,
		WorkerQueueSize:      64,
	}

	cfg.ClassifierPool = listFromEnv("LLM_CLASSIFIER_MODELS", []string{"qwen-turbo"})
	cfg.EnabledPersonas = listFromEnv("MEMORY_ENABLED_PERSONAS", nil)

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMMaxAttempts, err = intFromEnv("LLM_MAX_ATTEMPTS", cfg.LLMMaxAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.DialogueWindowDays, err = intFromEnv("DIALOGUE_WINDOW_DAYS", cfg.DialogueWindowDays)
	if err != nil {
		return Config{}, err
	}
	cfg.DialogueFetchLimit, err = intFromEnv("DIALOGUE_FETCH_LIMIT", cfg.DialogueFetchLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.DialogueTurnLimit, err = intFromEnv("DIALOGUE_TURN_LIMIT", cfg.DialogueTurnLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryEnabled, err = boolFromEnv("MEMORY_ENABLED", cfg.MemoryEnabled)
	if err != nil {
		return Config{}, err
	}
	cfg.FlushThreshold, err = intFromEnv("MEMORY_FLUSH_THRESHOLD", cfg.FlushThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.ShortTermMaxChars, err = intFromEnv("MEMORY_SHORT_TERM_MAX_CHARS", cfg.ShortTermMaxChars)
	if err != nil {
		return Config{}, err
	}
	cfg.LongTermMaxEntries, err = intFromEnv("MEMORY_LONG_TERM_MAX_ENTRIES", cfg.LongTermMaxEntries)
	if err != nil {
		return Config{}, err
	}
	cfg.VectorEnabled, err = boolFromEnv("VECTOR_ENABLED", cfg.VectorEnabled)
	if err != nil {
		return Config{}, err
	}
	cfg.VectorDedupThreshold, err = floatFromEnv("VECTOR_DEDUP_THRESHOLD", cfg.VectorDedupThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.VectorRecallLimit, err = intFromEnv("VECTOR_RECALL_LIMIT", cfg.VectorRecallLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.WorkerCount, err = intFromEnv("WORKER_COUNT", cfg.WorkerCount)
	if err != nil {
		return Config{}, err
	}
	cfg.WorkerQueueSize, err = intFromEnv("WORKER_QUEUE_SIZE", cfg.WorkerQueueSize)
	if err != nil {
		return Config{}, err
	}

	if cfg.LLMMaxAttempts <= 0 {
		return Config{}, fmt.Errorf("LLM_MAX_ATTEMPTS must be positive")
	}
	if len(cfg.ClassifierPool) == 0 {
		return Config{}, fmt.Errorf("LLM_CLASSIFIER_MODELS must name at least one model")
	}
	if cfg.DialogueWindowDays <= 0 {
		return Config{}, fmt.Errorf("DIALOGUE_WINDOW_DAYS must be positive")
	}
	if cfg.DialogueFetchLimit <= 0 || cfg.DialogueTurnLimit <= 0 {
		return Config{}, fmt.Errorf("dialogue limits must be positive")
	}
	if cfg.FlushThreshold <= 0 {
		return Config{}, fmt.Errorf("MEMORY_FLUSH_THRESHOLD must be positive")
	}
	if cfg.ShortTermMaxChars <= 0 {
		return Config{}, fmt.Errorf("MEMORY_SHORT_TERM_MAX_CHARS must be positive")
	}
	if cfg.LongTermMaxEntries <= 0 {
		return Config{}, fmt.Errorf("MEMORY_LONG_TERM_MAX_ENTRIES must be positive")
	}
	if cfg.VectorDedupThreshold <= 0 || cfg.VectorDedupThreshold > 1 {
		return Config{}, fmt.Errorf("VECTOR_DEDUP_THRESHOLD must be in (0, 1]")
	}
	if cfg.WorkerCount <= 0 || cfg.WorkerQueueSize <= 0 {
		return Config{}, fmt.Errorf("worker pool settings must be positive")
	}

	return cfg, nil
}

// PersonaEnabled reports whether persistent memory runs for the persona.
// An empty allow-list means every persona is enabled.
func (c Config) PersonaEnabled(personaID string) bool {
	if !c.MemoryEnabled {
		return false
	}
	if len(c.EnabledPersonas) == 0 {
		return true
	}
	for _, id := range c.EnabledPersonas {
		if id == personaID {
			return true
		}
	}
	return false
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func listFromEnv(key string, fallback []string) []string {
	raw := stringsTrimSpace(key)
	if raw == "" {
		return fallback
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

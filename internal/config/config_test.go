package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.FlushThreshold != 7 {
		t.Fatalf("FlushThreshold = %d, want 7", cfg.FlushThreshold)
	}
	if cfg.ShortTermMaxChars != 5000 {
		t.Fatalf("ShortTermMaxChars = %d, want 5000", cfg.ShortTermMaxChars)
	}
	if cfg.LongTermMaxEntries != 5 {
		t.Fatalf("LongTermMaxEntries = %d, want 5", cfg.LongTermMaxEntries)
	}
	if cfg.VectorDedupThreshold != 0.96 {
		t.Fatalf("VectorDedupThreshold = %v, want 0.96", cfg.VectorDedupThreshold)
	}
	if cfg.VectorEnabled {
		t.Fatalf("VectorEnabled = true, want false by default")
	}
	if len(cfg.ClassifierPool) != 1 || cfg.ClassifierPool[0] != "qwen-turbo" {
		t.Fatalf("ClassifierPool = %v, want default pool", cfg.ClassifierPool)
	}
}

func TestLoadParsesModelPoolList(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("LLM_CLASSIFIER_MODELS", "qwen-turbo, qwen-plus ,glm-4-flash")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []string{"qwen-turbo", "qwen-plus", "glm-4-flash"}
	if len(cfg.ClassifierPool) != len(want) {
		t.Fatalf("ClassifierPool = %v, want %v", cfg.ClassifierPool, want)
	}
	for i := range want {
		if cfg.ClassifierPool[i] != want[i] {
			t.Fatalf("ClassifierPool[%d] = %q, want %q", i, cfg.ClassifierPool[i], want[i])
		}
	}
}

func TestLoadRejectsBadDedupThreshold(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("VECTOR_DEDUP_THRESHOLD", "1.5")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want threshold validation error")
	}
}

func TestPersonaEnabled(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		persona string
		want    bool
	}{
		{"global off", Config{MemoryEnabled: false}, "luna", false},
		{"empty allow-list", Config{MemoryEnabled: true}, "luna", true},
		{"listed", Config{MemoryEnabled: true, EnabledPersonas: []string{"luna"}}, "luna", true},
		{"unlisted", Config{MemoryEnabled: true, EnabledPersonas: []string{"luna"}}, "nova", false},
	}
	for _, tc := range cases {
		if got := tc.cfg.PersonaEnabled(tc.persona); got != tc.want {
			t.Fatalf("%s: PersonaEnabled(%q) = %v, want %v", tc.name, tc.persona, got, tc.want)
		}
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"DATABASE_URL",
		"MEMORY_GUEST_USER_ID",
		"MEMORY_DEFAULT_NICKNAME",
		"LLM_BASE_URL",
		"LLM_API_KEY",
		"LLM_MAX_ATTEMPTS",
		"LLM_CLASSIFIER_MODELS",
		"LLM_SUMMARIZER_MODEL",
		"LLM_CONSOLIDATOR_MODEL",
		"LLM_EMBEDDING_MODEL",
		"DIALOGUE_WINDOW_DAYS",
		"DIALOGUE_FETCH_LIMIT",
		"DIALOGUE_TURN_LIMIT",
		"MEMORY_ENABLED",
		"MEMORY_ENABLED_PERSONAS",
		"MEMORY_FLUSH_THRESHOLD",
		"MEMORY_SHORT_TERM_MAX_CHARS",
		"MEMORY_LONG_TERM_MAX_ENTRIES",
		"VECTOR_ENABLED",
		"VECTOR_PERSIST_PATH",
		"VECTOR_DEDUP_THRESHOLD",
		"VECTOR_RECALL_LIMIT",
		"WORKER_COUNT",
		"WORKER_QUEUE_SIZE",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

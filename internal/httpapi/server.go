package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lantern-ai/keepsake/internal/config"
	"github.com/lantern-ai/keepsake/internal/memory"
	"github.com/lantern-ai/keepsake/internal/observability"
)

// Server exposes the memory service over HTTP for the chat pipeline and
// for operators.
type Server struct {
	cfg       config.Config
	svc       *memory.Service
	metrics   *observability.Metrics
	storeMode string
}

func New(cfg config.Config, svc *memory.Service, metrics *observability.Metrics, storeMode string) *Server {
	if strings.TrimSpace(storeMode) == "" {
		storeMode = "in-memory"
	}
	return &Server{cfg: cfg, svc: svc, metrics: metrics, storeMode: storeMode}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/memory/context", s.handleContext)
	r.Post("/v1/memory/turn", s.handleTurn)
	r.Get("/v1/memory/{user}/{persona}/profile", s.handleProfile)
	r.Get("/v1/memory/{user}/{persona}/stats", s.handleStats)
	r.Post("/v1/memory/{user}/{persona}/flush", s.handleFlush)
	r.Delete("/v1/memory/{user}/{persona}", s.handleClear)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"store_mode": s.storeMode,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ready",
		"store_mode":     s.storeMode,
		"vector_enabled": s.cfg.VectorEnabled,
		"llm_configured": s.cfg.LLMAPIKey != "",
	})
}

type contextRequest struct {
	UserID    string `json:"user_id"`
	PersonaID string `json:"persona_id"`
	Message   string `json:"message"`
	VoiceMode bool   `json:"voice_mode"`
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	userID, personaID, ok := normalizeKey(w, req.UserID, req.PersonaID)
	if !ok {
		return
	}

	bundle := s.svc.CombinedContext(r.Context(), userID, personaID, req.Message, req.VoiceMode)
	respondJSON(w, http.StatusOK, bundle)
}

type turnRequest struct {
	UserID          string            `json:"user_id"`
	PersonaID       string            `json:"persona_id"`
	UserMessage     string            `json:"user_message"`
	AIResponse      string            `json:"ai_response"`
	Metadata        map[string]string `json:"metadata"`
	SkipVectorStore bool              `json:"skip_vector_store"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	userID, personaID, ok := normalizeKey(w, req.UserID, req.PersonaID)
	if !ok {
		return
	}
	if strings.TrimSpace(req.UserMessage) == "" && strings.TrimSpace(req.AIResponse) == "" {
		respondError(w, http.StatusBadRequest, "empty_turn", "user_message or ai_response is required")
		return
	}

	receipt := s.svc.RecordTurn(r.Context(), userID, personaID, req.UserMessage, req.AIResponse, req.Metadata, req.SkipVectorStore)
	respondJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	userID, personaID, ok := keyParams(w, r)
	if !ok {
		return
	}
	profile, err := s.svc.Profile(r.Context(), userID, personaID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	userID, personaID, ok := keyParams(w, r)
	if !ok {
		return
	}
	stats, err := s.svc.Stats(r.Context(), userID, personaID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	userID, personaID, ok := keyParams(w, r)
	if !ok {
		return
	}
	flushed, err := s.svc.Flush(r.Context(), userID, personaID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "flush_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"flushed": flushed})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	userID, personaID, ok := keyParams(w, r)
	if !ok {
		return
	}
	if err := s.svc.Clear(r.Context(), userID, personaID); err != nil {
		respondError(w, http.StatusInternalServerError, "clear_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "cleared"})
}

func normalizeKey(w http.ResponseWriter, userID, personaID string) (string, string, bool) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		respondError(w, http.StatusBadRequest, "missing_user_id", "user_id is required")
		return "", "", false
	}
	personaID = strings.TrimSpace(personaID)
	if personaID == "" {
		personaID = "default"
	}
	return userID, personaID, true
}

func keyParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	return normalizeKey(w, chi.URLParam(r, "user"), chi.URLParam(r, "persona"))
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

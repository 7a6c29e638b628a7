package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/lantern-ai/keepsake/internal/reliability"
)

// Request is one chat completion call.
type Request struct {
	Model       string
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	// JSONOnly asks the backend for structured JSON output. Backends that
	// ignore it still work: replies go through ExtractJSON before parsing.
	JSONOnly bool
}

// Client is the chat completion interface consumed by the memory subsystem.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// OpenAIClient talks to an OpenAI-compatible endpoint for both chat
// completions and embeddings.
type OpenAIClient struct {
	llm      *openai.LLM
	embedder *embeddings.EmbedderImpl
}

type OpenAIConfig struct {
	BaseURL        string
	APIKey         string
	DefaultModel   string
	EmbeddingModel string
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.DefaultModel),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	backend, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init llm backend: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(backend)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	return &OpenAIClient{llm: backend, embedder: embedder}, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]llms.MessageContent, 0, 2)
	if req.System != "" {
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, req.User))

	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.Model != "" {
		opts = append(opts, llms.WithModel(req.Model))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.JSONOnly {
		opts = append(opts, llms.WithJSONMode())
	}

	// Throttled and 5xx responses classify as transient via the status in
	// the error, so the call heals here before the pool rotates models.
	var resp *llms.ContentResponse
	err := reliability.Retry(ctx, 3, 300*time.Millisecond, 2*time.Second, func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.llm.GenerateContent(ctx, messages, opts...)
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: empty response")
	}
	return resp.Choices[0].Content, nil
}

// Embed converts text to a vector via the configured embedding model.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := reliability.Retry(ctx, 3, 300*time.Millisecond, 2*time.Second, func(ctx context.Context) error {
		var callErr error
		vec, callErr = c.embedder.EmbedQuery(ctx, text)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return vec, nil
}

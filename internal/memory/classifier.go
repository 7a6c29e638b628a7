package memory

import (
	"context"
	"fmt"
	"log"

	"github.com/lantern-ai/keepsake/internal/llm"
)

const classifierPrompt = `You are a memory classification expert. Decide whether a conversational exchange contains information worth remembering about the user, and extract a short summary when it does.

Rules:
- "long_term": the exchange reveals a durable trait, preference or important personal fact.
  Examples: "I love spicy food", "I hate exercising", "I'm a programmer", "I live in Shanghai"
- "short_term": the exchange contains transient, dated information that matters for the coming days.
  Examples: "I have an exam on Friday", "I'm travelling next week", "I caught a cold"
- "none": small talk, simple acknowledgements, requests with no lasting signal.
  Examples: "ok", "haha", "get me a glass of water", "nice weather today"

Reply with exactly one JSON object:
{"memory_type": "long_term", "content": "short summary of the fact"}
or
{"memory_type": "short_term", "content": "short summary of the event"}
or
{"memory_type": "none", "content": ""}

The content must be one concise sentence. Follow the JSON format strictly.`

type classifierReply struct {
	MemoryType string `json:"memory_type"`
	Content    string `json:"content"`
}

// Classifier decides what, if anything, an exchange is worth remembering.
// It is a pure function of the exchange and never fails the caller: every
// error path degrades to TagNone.
type Classifier struct {
	pool *llm.Pool
}

func NewClassifier(pool *llm.Pool) *Classifier {
	return &Classifier{pool: pool}
}

// Classify runs one LLM call against the fast-model pool and validates the
// reply against the closed tag set.
func (c *Classifier) Classify(ctx context.Context, userMessage, aiResponse string) Classification {
	if c == nil || c.pool == nil {
		return Classification{Tag: TagNone}
	}

	var reply classifierReply
	err := c.pool.CompleteJSON(ctx, llm.Request{
		System:      classifierPrompt,
		User:        fmt.Sprintf("User message: %s\nAssistant reply: %s", userMessage, aiResponse),
		Temperature: 0.3,
		MaxTokens:   150,
	}, &reply)
	if err != nil {
		log.Printf("memory classification failed, defaulting to none: %v", err)
		return Classification{Tag: TagNone}
	}

	tag := Tag(reply.MemoryType)
	if !ValidTag(tag) {
		log.Printf("memory classification returned invalid tag %q, defaulting to none", reply.MemoryType)
		return Classification{Tag: TagNone}
	}
	if tag == TagNone {
		return Classification{Tag: TagNone}
	}
	return Classification{Tag: tag, Content: reply.Content}
}

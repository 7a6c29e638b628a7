package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
)

// Pool issues JSON completions against a set of interchangeable models.
// A failed call moves on to the next model in the pool; the loop carries an
// explicit attempt counter so the total number of calls is always bounded.
type Pool struct {
	client      Client
	models      []string
	maxAttempts int
}

func NewPool(client Client, models []string, maxAttempts int) *Pool {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Pool{client: client, models: models, maxAttempts: maxAttempts}
}

// CompleteJSON runs the request against pool models until one returns a
// reply that parses into out, or the attempt budget is spent.
func (p *Pool) CompleteJSON(ctx context.Context, req Request, out any) error {
	if len(p.models) == 0 {
		return fmt.Errorf("model pool is empty")
	}
	req.JSONOnly = true

	// Random start spreads load across the pool; subsequent attempts walk
	// the remaining models in order.
	start := 0
	if len(p.models) > 1 {
		start = rand.Intn(len(p.models))
	}

	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		req.Model = p.models[(start+attempt)%len(p.models)]

		raw, err := p.client.Complete(ctx, req)
		if err != nil {
			lastErr = err
			continue
		}
		payload, err := ExtractJSON(raw)
		if err != nil {
			lastErr = fmt.Errorf("model %s: %w", req.Model, err)
			continue
		}
		if err := json.Unmarshal([]byte(payload), out); err != nil {
			lastErr = fmt.Errorf("model %s: decode reply: %w", req.Model, err)
			continue
		}
		return nil
	}
	return lastErr
}

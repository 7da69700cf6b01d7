package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/qdrant/go-client/qdrant"
)

// probeFunc is a named readiness check.
type probeFunc struct {
	name string
	ping func(ctx context.Context) error
}

func (p probeFunc) Name() string                   { return p.name }
func (p probeFunc) Ping(ctx context.Context) error { return p.ping(ctx) }

// NewPinger labels anything with a context-aware Ping, such as the history
// stores and the Redis session store.
func NewPinger(name string, p interface{ Ping(context.Context) error }) Pinger {
	return probeFunc{name: name, ping: p.Ping}
}

// NewLLMPinger probes a chat model with a one-word prompt. Every probe spends
// tokens on the backend.
func NewLLMPinger(m model.BaseChatModel, backend string) Pinger {
	return probeFunc{name: backend, ping: func(ctx context.Context) error {
		resp, err := m.Generate(ctx, []*schema.Message{schema.UserMessage("ping")})
		switch {
		case err != nil:
			return fmt.Errorf("generate failed: %w", err)
		case resp == nil:
			return errors.New("generate returned nil response")
		}
		return nil
	}}
}

// NewQdrantPinger calls the Qdrant HealthCheck RPC.
func NewQdrantPinger(c *qdrant.Client) Pinger {
	return probeFunc{name: "qdrant", ping: func(ctx context.Context) error {
		if _, err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		return nil
	}}
}

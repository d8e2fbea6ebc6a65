// Package llm adapts hosted text-completion APIs to a single Complete call.
package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/fmuoria/talent-admin/internal/config"
)

// Client turns a prompt into free-form text
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Close() error
}

// Options are the generation parameters shared by every backend
type Options struct {
	Model           string
	Temperature     float32
	MaxOutputTokens int32
}

func (o Options) withDefaults() Options {
	if o.Model == "" {
		o.Model = "gemini-1.5-flash"
	}
	if o.MaxOutputTokens <= 0 {
		o.MaxOutputTokens = 1024
	}
	return o
}

// New builds the client selected by cfg.Provider, wrapped in a rate
// limiter. It returns nil when no provider is configured.
func New(ctx context.Context, cfg config.AIConfig) (Client, error) {
	var (
		c   Client
		err error
	)
	switch cfg.Provider {
	case config.ProviderNone, "":
		return nil, nil
	case config.ProviderVertex:
		c, err = NewVertexAIClient(ctx, cfg.Project, cfg.Location, Options{
			Model:           cfg.Model,
			Temperature:     cfg.Temperature,
			MaxOutputTokens: cfg.MaxOutputTokens,
		})
	case config.ProviderAnthropic:
		c, err = NewAnthropicClient(cfg.AnthropicKey, Options{
			Model:           cfg.AnthropicModel,
			Temperature:     cfg.Temperature,
			MaxOutputTokens: cfg.MaxOutputTokens,
		})
	default:
		return nil, eris.Errorf("llm: unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return WithRateLimit(c, cfg.RequestsPerMinute), nil
}

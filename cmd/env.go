package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/fmuoria/talent-admin/internal/agent"
	"github.com/fmuoria/talent-admin/internal/ingestion"
	"github.com/fmuoria/talent-admin/internal/llm"
	"github.com/fmuoria/talent-admin/internal/store"
	"github.com/fmuoria/talent-admin/internal/suggest"
)

// env holds the collaborators shared by the subcommands
type env struct {
	Store store.Store
	Agent *agent.Agent
	llm   llm.Client
}

// initEnv opens the store and wires the intake agent. The store is migrated
// on open so a fresh database works without a separate migrate run.
func initEnv(ctx context.Context) (*env, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	client, err := llm.New(ctx, cfg.AI)
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	opts := agent.Options{
		Store:       st,
		FileHandler: ingestion.NewFileHandler(cfg.Upload.Dir),
		Reader:      ingestion.NewReader(cfg.Upload.SampleRows),
	}
	if client != nil {
		opts.Suggester = suggest.NewSuggester(client,
			suggest.WithMaxRetries(cfg.AI.MaxRetries),
			suggest.WithBackoff(cfg.AI.RetryBackoff),
		)
		zap.L().Info("AI mapping suggestions enabled", zap.String("provider", cfg.AI.Provider))
	}

	return &env{Store: st, Agent: agent.New(opts), llm: client}, nil
}

// Close releases the store and the AI client
func (e *env) Close() {
	if e.llm != nil {
		if err := e.llm.Close(); err != nil {
			zap.L().Warn("close ai client", zap.Error(err))
		}
	}
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}

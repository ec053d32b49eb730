package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sqlpilot/internal/agent"
	"github.com/sells-group/sqlpilot/internal/catalog"
	"github.com/sells-group/sqlpilot/internal/db"
	"github.com/sells-group/sqlpilot/internal/executor"
	"github.com/sells-group/sqlpilot/internal/store"
	anthropicpkg "github.com/sells-group/sqlpilot/pkg/anthropic"
)

// agentEnv holds everything the ask/repl/serve commands need: the
// database pool, the schema catalog, the interaction log, and the
// orchestrator itself.
type agentEnv struct {
	Pool    *pgxpool.Pool
	Catalog *catalog.Catalog
	Store   store.Store
	Agent   *agent.Orchestrator
}

// Close releases resources held by the agent environment.
func (e *agentEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
}

// initAgent connects to the target database, discovers the schema, opens
// the interaction log, and assembles the orchestrator. Callers should
// defer env.Close().
func initAgent(ctx context.Context) (*agentEnv, error) {
	if cfg.Database.URL == "" {
		return nil, eris.New("database.url is required (SQLPILOT_DATABASE_URL)")
	}
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic.key is required (SQLPILOT_ANTHROPIC_KEY)")
	}

	pool, err := db.New(ctx, cfg.Database.URL, &cfg.Database.Pool)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		pool.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	keywords := agent.DefaultKeywords()
	if cfg.Agent.KeywordsFile != "" {
		keywords, err = agent.LoadKeywords(cfg.Agent.KeywordsFile)
		if err != nil {
			_ = st.Close()
			pool.Close()
			return nil, err
		}
		zap.L().Info("keyword table loaded", zap.String("path", cfg.Agent.KeywordsFile))
	}

	rules := agent.DefaultRules()
	if cfg.Agent.RulesFile != "" {
		rules, err = agent.LoadRules(cfg.Agent.RulesFile)
		if err != nil {
			_ = st.Close()
			pool.Close()
			return nil, err
		}
		zap.L().Info("sanitize rules loaded",
			zap.String("path", cfg.Agent.RulesFile),
			zap.Int("rules", rules.Len()),
		)
	}

	router, err := agent.NewRouter(
		cfg.Anthropic.SimpleModel,
		cfg.Anthropic.MediumModel,
		cfg.Anthropic.HardModel,
	)
	if err != nil {
		_ = st.Close()
		pool.Close()
		return nil, err
	}

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	completer := agent.NewCompleter(anthropicClient, cfg.Anthropic.MaxTokens, cfg.Anthropic.RequestsPerSecond)

	cat := catalog.New(pool)
	orch := agent.New(agent.Config{
		Catalog:      cat,
		Classifier:   agent.NewClassifier(keywords),
		Router:       router,
		Completer:    completer,
		Executor:     executor.New(pool),
		Recorder:     st,
		Rules:        rules,
		MaxAttempts:  cfg.Agent.MaxAttempts,
		RetryBackoff: time.Duration(cfg.Agent.RetryBackoffMs) * time.Millisecond,
	})

	return &agentEnv{
		Pool:    pool,
		Catalog: cat,
		Store:   st,
		Agent:   orch,
	}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "sqlpilot.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = cfg.Database.URL
		}
		return store.NewPostgres(ctx, dsn, cfg.Database.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

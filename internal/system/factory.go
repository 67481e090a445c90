// Package system assembles the engine: one Boot call wires configuration,
// logging, the vector store, the indexing pipeline, the brain registry, and
// the scheduler into a running process.
package system

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cortex/internal/brains"
	"cortex/internal/config"
	"cortex/internal/core"
	"cortex/internal/embedding"
	"cortex/internal/logging"
	"cortex/internal/memory"
	"cortex/internal/perception"
	"cortex/internal/plan"
	"cortex/internal/quality"
	"cortex/internal/retrieval"
	"cortex/internal/store"
	"cortex/internal/supervisor"
	"cortex/internal/tools"
	"cortex/internal/transparency"
	"cortex/internal/usage"
	"cortex/internal/world"
)

// sweepInterval is how often idle conversation sessions are swept.
const sweepInterval = time.Hour

// System is the assembled engine. Fields are exported so commands can reach
// individual services; Close tears everything down in reverse order.
type System struct {
	Config        *config.Config
	Store         *store.VectorStore
	Cache         *world.EmbeddingCache
	Indexer       *world.Indexer
	Planner       *plan.Planner
	Retriever     *retrieval.Retriever
	Catalog       *tools.Catalog
	Gate          *tools.Gate
	Registry      *brains.Registry
	Supervisor    *supervisor.Supervisor
	Working       *memory.WorkingSet
	Conversations *memory.ConversationMemory
	Usage         *usage.Service
	Recorder      *transparency.Recorder
	Scheduler     *core.Scheduler

	watcher     *world.Watcher
	stopSweeper func()
}

// Boot loads the workspace configuration and assembles the engine.
func Boot(ctx context.Context, workspace string) (*System, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg)
}

// New assembles the engine from an explicit configuration.
func New(ctx context.Context, cfg *config.Config) (*System, error) {
	if err := logging.Initialize(cfg.Workspace, logging.Options{
		DebugMode:  cfg.Logging.DebugMode,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	engine, err := embedding.NewEngine(embedding.Config{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		APIKey:   cfg.Embedding.APIKey,
		Endpoint: cfg.Embedding.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build embedding engine: %w", err)
	}

	stateDir := filepath.Join(cfg.Workspace, ".cortex")
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, err
	}
	vs, err := store.Open(filepath.Join(stateDir, "index.db"), engine)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	// The configured provider falls back to the default client here; per-request
	// provider validation stays strict in the scheduler.
	provider, _ := perception.Normalize(cfg.LLM.Provider)
	client, err := perception.NewClient(provider, cfg.LLM)
	if err != nil {
		vs.Close()
		return nil, err
	}

	cache := world.NewEmbeddingCache(cfg.CacheDir(), cfg.Cache.Enabled)
	indexer := world.NewIndexer(cfg.Workspace, vs, cache, client)
	indexer.SetPacing(cfg.Indexer.WorkerThreads, time.Duration(cfg.Indexer.PerFileDelayMs)*time.Millisecond)

	planner := plan.New(cfg.Context.MaxTokens, cfg.Context.ReservedTokens, indexer.KnownFiles)
	retriever := retrieval.New(planner, vs, indexer.DependencyGraph, nil)

	catalog := tools.NewCatalog(vs)
	if err := registerBuiltinTools(ctx, catalog); err != nil {
		vs.Close()
		return nil, err
	}

	sup := supervisor.New(cfg.Quality.Threshold, cfg.Supervisor.MaxReevaluations)
	deps := brains.Deps{
		Planner:       planner,
		Retriever:     retriever,
		Catalog:       catalog,
		Gate:          tools.NewGate(catalog),
		Supervisor:    sup,
		Consistency:   quality.NewConsistencyChecker(),
		Hallucination: quality.NewHallucinationDetector(),
	}

	registry := brains.NewRegistry(vs)
	registry.RegisterCore(
		brains.NewConductor(deps),
		brains.NewContextFetcher(deps),
		brains.NewToolGate(deps),
		brains.NewJudge(deps),
		brains.NewVoice(),
	)
	profile, err := brains.LoadProfile(filepath.Join(stateDir, "brains.yaml"))
	if err != nil {
		vs.Close()
		return nil, err
	}
	if err := registry.RegisterSpecialists(ctx, brains.DefaultSpecialists(profile)...); err != nil {
		vs.Close()
		return nil, err
	}

	conversations := memory.NewConversationMemory()
	usageSvc := usage.NewService(filepath.Join(stateDir, "usage.json"),
		cfg.Token.DefaultMonthlyQuota, cfg.Token.WarnPct)

	s := &System{
		Config:        cfg,
		Store:         vs,
		Cache:         cache,
		Indexer:       indexer,
		Planner:       planner,
		Retriever:     retriever,
		Catalog:       catalog,
		Gate:          deps.Gate,
		Registry:      registry,
		Supervisor:    sup,
		Working:       memory.NewWorkingSet(),
		Conversations: conversations,
		Usage:         usageSvc,
		Recorder:      transparency.NewRecorder(),
		stopSweeper:   conversations.StartSweeper(sweepInterval),
	}
	s.Scheduler = core.New(core.Services{
		Registry:      registry,
		Brains:        deps,
		LLM:           cfg.LLM,
		Working:       s.Working,
		Conversations: conversations,
		Usage:         usageSvc,
		Recorder:      s.Recorder,
	}, core.Options{
		MaxIterations:    cfg.Scheduler.MaxIterations,
		SpecialistTopN:   cfg.Scheduler.SpecialistTopN,
		QualityThreshold: cfg.Quality.Threshold,
	})
	return s, nil
}

// EnsureIndexed brings the workspace index up to date, reusing the on-disk
// index when the cache markers still match the corpus.
func (s *System) EnsureIndexed(ctx context.Context) error {
	return s.Indexer.EnsureIndexed(ctx)
}

// StartWatcher begins live incremental reindexing of the workspace.
func (s *System) StartWatcher(ctx context.Context) error {
	if s.watcher != nil {
		return nil
	}
	w, err := world.NewWatcher(s.Config.Workspace, s.Indexer, s.Cache)
	if err != nil {
		return err
	}
	w.SetWindows(
		time.Duration(s.Config.Watcher.DebounceMs)*time.Millisecond,
		time.Duration(s.Config.Watcher.SettleMs)*time.Millisecond,
	)
	if err := w.Start(ctx); err != nil {
		return err
	}
	s.watcher = w
	return nil
}

// Watcher returns the running watcher, or nil before StartWatcher.
func (s *System) Watcher() *world.Watcher {
	return s.watcher
}

// Close tears the engine down in reverse dependency order.
func (s *System) Close() error {
	if s.watcher != nil {
		s.watcher.Stop()
		s.watcher = nil
	}
	if s.stopSweeper != nil {
		s.stopSweeper()
	}
	var firstErr error
	if err := s.Usage.Close(); err != nil {
		firstErr = err
	}
	s.Indexer.Close()
	if err := s.Store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	logging.Sync()
	return firstErr
}

// registerBuiltinTools installs the stock tool set. Only datetime carries an
// executor; the others are discovery-and-approval surfaces whose execution
// lives with the caller.
func registerBuiltinTools(ctx context.Context, catalog *tools.Catalog) error {
	return catalog.Register(ctx,
		tools.Tool{
			Name:        "get_datetime",
			Description: "returns the current date and time, or resolves phrases like today and tomorrow",
			Family:      "datetime",
			Defaults:    map[string]string{"date": "today"},
			Run: func(_ context.Context, args map[string]string) (string, error) {
				now := time.Now()
				switch args["date"] {
				case "tomorrow":
					now = now.AddDate(0, 0, 1)
				case "yesterday":
					now = now.AddDate(0, 0, -1)
				}
				return now.Format("Monday, 2 January 2006 15:04"), nil
			},
		},
		tools.Tool{
			Name:        "get_weather",
			Description: "looks up current weather conditions for a city",
			Family:      "weather",
			Required:    []string{"city"},
		},
		tools.Tool{
			Name:        "create_event",
			Description: "creates a calendar event with a title and date",
			Family:      "calendar",
			Required:    []string{"title"},
		},
	)
}

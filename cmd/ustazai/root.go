package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erkebulan/ustazai/internal/adapters/conversation"
	"github.com/erkebulan/ustazai/internal/adapters/embedding"
	"github.com/erkebulan/ustazai/internal/adapters/llm"
	"github.com/erkebulan/ustazai/internal/adapters/loader"
	"github.com/erkebulan/ustazai/internal/adapters/vectordb"
	"github.com/erkebulan/ustazai/internal/domain/ports"
	"github.com/erkebulan/ustazai/internal/domain/usecases"
	"github.com/erkebulan/ustazai/internal/infrastructure/config"
	"github.com/erkebulan/ustazai/internal/infrastructure/metrics"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ustazai",
		Short:        "Retrieval-grounded Islamic Q&A assistant",
		SilenceUsage: true,
	}
	root.AddCommand(
		newServeCmd(),
		newLoadCmd(),
		newResetKnowledgeCmd(),
		newClearCacheCmd(),
		newStatsCmd(),
	)
	return root
}

// app holds everything the commands share.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	index    ports.VectorIndex
	engine   *usecases.Engine
	ingestor *usecases.Ingestor
	cache    *usecases.CacheGate
	loader   *loader.JSONLoader
	convs    *conversation.Store
}

// newApp wires the adapters and use cases from configuration. withStore
// controls whether the SQLite conversation store is opened; one-shot
// commands skip it.
func newApp(withStore, withMetrics bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	var index ports.VectorIndex
	if cfg.ChromaURL != "" {
		index = vectordb.NewChromaIndex(cfg.ChromaURL)
	} else {
		index = vectordb.NewMemoryIndex()
	}

	embedder := embedding.NewOpenAIAdapter(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel)
	model := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, log)

	var convs *conversation.Store
	if withStore {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		convs, err = conversation.Open(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening conversation store: %w", err)
		}
	}

	var recorder usecases.Recorder
	if withMetrics {
		recorder = metrics.NewRecorder(prometheus.DefaultRegisterer)
	}

	retriever := usecases.NewRetriever(embedder, index, 0, log)
	cache := usecases.NewCacheGate(embedder, index, cfg.CacheThreshold, log)
	ingestor := usecases.NewIngestor(embedder, index, recorder, log)

	var (
		convPort ports.ConversationStore
		logPort  ports.QueryLog
	)
	if convs != nil {
		convPort = convs
		logPort = convs
	}
	engine := usecases.NewEngine(retriever, cache, model, convPort, logPort, recorder, log)

	return &app{
		cfg:      cfg,
		log:      log,
		index:    index,
		engine:   engine,
		ingestor: ingestor,
		cache:    cache,
		loader:   loader.NewJSONLoader(log),
		convs:    convs,
	}, nil
}

func (a *app) close() {
	if a.convs != nil {
		if err := a.convs.Close(); err != nil {
			a.log.Warn("closing conversation store", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}

// loadKnowledge reads the knowledge directory and writes missing documents to
// the index. Returns how many documents were written.
func (a *app) loadKnowledge(ctx context.Context) (int, error) {
	entries, err := a.loader.LoadDir(a.cfg.KnowledgeDir)
	if err != nil {
		return 0, err
	}
	return a.ingestor.Ingest(ctx, entries)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return cfg.Build()
}

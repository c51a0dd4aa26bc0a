package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bisq-network/support-agent/internal/config"
	"github.com/bisq-network/support-agent/internal/core/ports"
	"github.com/bisq-network/support-agent/internal/core/usecase"
	"github.com/bisq-network/support-agent/internal/infrastructure/chunking"
	"github.com/bisq-network/support-agent/internal/infrastructure/llm/ollama"
	"github.com/bisq-network/support-agent/internal/infrastructure/queue/nats"
	"github.com/bisq-network/support-agent/internal/infrastructure/repository/postgres"
	"github.com/bisq-network/support-agent/internal/infrastructure/resilience"
	"github.com/bisq-network/support-agent/internal/infrastructure/sparse/bm25"
	"github.com/bisq-network/support-agent/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config

	Queue  ports.MessageQueue
	Repo   ports.KnowledgeRepository
	Points ports.PointStore
	Index  *bm25.Index

	// VocabularyRestored reports whether a snapshot was loaded at startup.
	// The worker rebuilds from ready entries when it is false.
	VocabularyRestored bool

	IngestUC   ports.KnowledgeIngestor
	ProcessUC  ports.EntryProcessor
	AnswerUC   ports.SupportQueryService
	RetrieveUC ports.HybridRetriever

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewKnowledgeRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)

	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)
	semanticStore := qdrant.NewSemanticStore(embedder, vectorDB)

	vocabulary := bm25.NewVocabulary(cfg.VocabularyMaxSize)
	tokenizer := bm25.NewTokenizer(vocabulary)
	snapshots := bm25.NewSnapshotManager(cfg.VocabularyPath, cfg.VocabularyBackup)
	index := bm25.NewIndex(tokenizer, snapshots)

	var restored bool
	if cfg.VocabularyWarmStart {
		restored, err = index.WarmStart()
		if err != nil {
			return nil, fmt.Errorf("warm start vocabulary: %w", err)
		}
		logger.Info("vocabulary_warm_start",
			"restored", restored,
			"terms", vocabulary.Size(),
			"path", cfg.VocabularyPath,
		)
	}

	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)

	ingestUC := usecase.NewIngestKnowledgeUseCase(repo, queue)
	processUC := usecase.NewProcessEntryUseCase(repo, chunker, embedder, index, index, vectorDB)
	retrieveUC := usecase.NewHybridRetrieveUseCase(
		embedder, index, vectorDB,
		cfg.SemanticWeight, cfg.KeywordWeight,
		logger,
	)
	answerUC := usecase.NewAnswerUseCase(
		usecase.NewVersionRetriever(semanticStore, logger),
		generator,
	)

	return &App{
		Config: cfg,
		Queue:  queue,
		Repo:   repo,
		Points: vectorDB,
		Index:  index,

		VocabularyRestored: restored,

		IngestUC:   ingestUC,
		ProcessUC:  processUC,
		AnswerUC:   answerUC,
		RetrieveUC: retrieveUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

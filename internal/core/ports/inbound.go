package ports

import (
	"context"

	"github.com/bisq-network/support-agent/internal/core/domain"
)

// KnowledgeIngestor is the inbound contract for knowledge entry intake.
type KnowledgeIngestor interface {
	Ingest(ctx context.Context, entry domain.KnowledgeEntry) (*domain.KnowledgeEntry, error)
	IngestBatch(ctx context.Context, entries []domain.KnowledgeEntry) ([]domain.KnowledgeEntry, error)
}

// SupportQueryService is the inbound contract for answering support questions.
type SupportQueryService interface {
	Answer(ctx context.Context, question string, limit int) (*domain.Answer, error)
}

// HybridRetriever is the inbound contract for raw hybrid retrieval, without
// answer generation. Failures degrade to an empty result list.
type HybridRetriever interface {
	RetrieveWithScores(ctx context.Context, query string, k int, filter domain.SearchFilter) []domain.RetrievedDocument
}

// EntryProcessor is the inbound contract for asynchronous entry indexing.
type EntryProcessor interface {
	ProcessByID(ctx context.Context, entryID string) error
	RebuildVocabulary(ctx context.Context) (int, error)
}

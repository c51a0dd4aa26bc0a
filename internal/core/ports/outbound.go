package ports

import (
	"context"

	"github.com/bisq-network/support-agent/internal/core/domain"
)

// KnowledgeRepository persists and reads knowledge entry state.
type KnowledgeRepository interface {
	Create(ctx context.Context, entry *domain.KnowledgeEntry) error
	GetByID(ctx context.Context, id string) (*domain.KnowledgeEntry, error)
	UpdateStatus(ctx context.Context, id string, status domain.EntryStatus, errMessage string) error
	ListByStatus(ctx context.Context, status domain.EntryStatus) ([]domain.KnowledgeEntry, error)
}

// MessageQueue publishes/consumes knowledge ingestion events.
type MessageQueue interface {
	PublishEntryIngested(ctx context.Context, entryID string) error
	SubscribeEntryIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// Embedder builds dense vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// SparseEncoder converts text into BM25 sparse vectors. TokenizeDocument is
// stateful (indexing one more document mutates the vocabulary);
// TokenizeQuery only expands the vocabulary with unseen terms, never corpus
// statistics.
type SparseEncoder interface {
	TokenizeDocument(text string) (domain.SparseVector, error)
	TokenizeQuery(text string) (domain.SparseVector, error)
}

// VocabularyPersistence saves the sparse vocabulary snapshot and rebuilds it
// from a document batch.
type VocabularyPersistence interface {
	SaveVocabulary() error
	RebuildVocabulary(documents []string) (int, error)
}

// Chunker splits text into indexable chunks.
type Chunker interface {
	Split(text string) []string
}

// PointStore indexes dense+sparse points and performs nearest-neighbor
// search in either modality.
type PointStore interface {
	UpsertChunks(ctx context.Context, entry *domain.KnowledgeEntry, chunks []string, dense [][]float32, sparse []domain.SparseVector) error
	SearchDense(ctx context.Context, vector []float32, limit int, filter domain.SearchFilter) ([]domain.ScoredPoint, error)
	SearchSparse(ctx context.Context, vector domain.SparseVector, limit int, filter domain.SearchFilter) ([]domain.ScoredPoint, error)
	CollectionExists(ctx context.Context) (bool, error)
}

// SemanticStore is the similarity-search view the version-priority retriever
// consumes: query text in, documents out, with a metadata-equality filter.
// SearchWithScores additionally returns a distance per document (lower is
// closer).
type SemanticStore interface {
	Search(ctx context.Context, query string, k int, filter domain.SearchFilter) ([]domain.Document, error)
	SearchWithScores(ctx context.Context, query string, k int, filter domain.SearchFilter) ([]domain.Document, []float64, error)
}

// AnswerGenerator creates the final user-facing answer.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question, context string) (string, error)
}

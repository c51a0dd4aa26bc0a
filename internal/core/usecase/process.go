package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/bisq-network/support-agent/internal/core/domain"
	"github.com/bisq-network/support-agent/internal/core/ports"
)

// ProcessEntryUseCase runs the indexing pipeline for one knowledge entry:
// chunk, embed, sparse-encode, upsert into the point store, persist the
// vocabulary snapshot.
type ProcessEntryUseCase struct {
	repo     ports.KnowledgeRepository
	chunker  ports.Chunker
	embedder ports.Embedder
	encoder  ports.SparseEncoder
	vocab    ports.VocabularyPersistence
	points   ports.PointStore
}

func NewProcessEntryUseCase(
	repo ports.KnowledgeRepository,
	chunker ports.Chunker,
	embedder ports.Embedder,
	encoder ports.SparseEncoder,
	vocab ports.VocabularyPersistence,
	points ports.PointStore,
) *ProcessEntryUseCase {
	return &ProcessEntryUseCase{
		repo:     repo,
		chunker:  chunker,
		embedder: embedder,
		encoder:  encoder,
		vocab:    vocab,
		points:   points,
	}
}

func (uc *ProcessEntryUseCase) ProcessByID(ctx context.Context, entryID string) error {
	if err := uc.markStatus(ctx, entryID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	if err := uc.processPipeline(ctx, entryID); err != nil {
		if failErr := uc.markFailed(ctx, entryID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.markStatus(ctx, entryID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	return nil
}

// RebuildVocabulary re-indexes every ready entry into the sparse vocabulary
// and persists it with one disk write. Used on operator request when the
// snapshot is lost or stale.
func (uc *ProcessEntryUseCase) RebuildVocabulary(ctx context.Context) (int, error) {
	entries, err := uc.repo.ListByStatus(ctx, domain.StatusReady)
	if err != nil {
		return 0, fmt.Errorf("list ready entries: %w", err)
	}

	docs := make([]string, 0, len(entries))
	for _, entry := range entries {
		docs = append(docs, entry.Body)
	}

	indexed, err := uc.vocab.RebuildVocabulary(docs)
	if err != nil {
		return indexed, fmt.Errorf("rebuild vocabulary: %w", err)
	}
	return indexed, nil
}

func (uc *ProcessEntryUseCase) processPipeline(ctx context.Context, entryID string) error {
	entry, err := uc.repo.GetByID(ctx, entryID)
	if err != nil {
		return fmt.Errorf("fetch entry by id: %w", err)
	}

	chunks, err := uc.chunk(entry.Body)
	if err != nil {
		return err
	}

	dense, err := uc.embed(ctx, chunks)
	if err != nil {
		return err
	}

	sparse := make([]domain.SparseVector, len(chunks))
	for i, chunk := range chunks {
		vec, err := uc.encoder.TokenizeDocument(chunk)
		if err != nil {
			return fmt.Errorf("sparse-encode chunk %d: %w", i, err)
		}
		sparse[i] = vec
	}

	if err := uc.points.UpsertChunks(ctx, entry, chunks, dense, sparse); err != nil {
		return fmt.Errorf("upsert chunks in point store: %w", err)
	}

	// The vocabulary mutated while encoding; snapshot it so a restart keeps
	// the same term indices the stored sparse vectors use.
	if err := uc.vocab.SaveVocabulary(); err != nil {
		return fmt.Errorf("save vocabulary snapshot: %w", err)
	}
	return nil
}

func (uc *ProcessEntryUseCase) chunk(text string) ([]string, error) {
	chunks := uc.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk entry", errors.New("chunking produced zero chunks"))
	}
	return chunks, nil
}

func (uc *ProcessEntryUseCase) embed(ctx context.Context, chunks []string) ([][]float32, error) {
	vectors, err := uc.embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)),
		)
	}
	return vectors, nil
}

func (uc *ProcessEntryUseCase) markStatus(ctx context.Context, entryID string, status domain.EntryStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, entryID, status, errMessage)
}

func (uc *ProcessEntryUseCase) markFailed(ctx context.Context, entryID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, entryID, domain.StatusFailed, processErr.Error())
}

package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/bisq-network/support-agent/internal/core/domain"
	"github.com/bisq-network/support-agent/internal/core/ports"
)

const defaultRetrieveLimit = 5

// HybridRetrieveUseCase blends dense embedding search and sparse BM25 search
// into one ranked list. Retrieval never surfaces an error to the answering
// pipeline: any failure degrades to an empty result list with a warning.
type HybridRetrieveUseCase struct {
	embedder ports.Embedder
	encoder  ports.SparseEncoder
	store    ports.PointStore
	logger   *slog.Logger

	semanticWeight float64
	keywordWeight  float64
}

func NewHybridRetrieveUseCase(
	embedder ports.Embedder,
	encoder ports.SparseEncoder,
	store ports.PointStore,
	semanticWeight, keywordWeight float64,
	logger *slog.Logger,
) *HybridRetrieveUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridRetrieveUseCase{
		embedder:       embedder,
		encoder:        encoder,
		store:          store,
		logger:         logger,
		semanticWeight: semanticWeight,
		keywordWeight:  keywordWeight,
	}
}

// Retrieve is the semantic-only entry point.
func (uc *HybridRetrieveUseCase) Retrieve(
	ctx context.Context,
	query string,
	k int,
	filter domain.SearchFilter,
) []domain.RetrievedDocument {
	return uc.RetrieveHybrid(ctx, query, k, 1.0, 0.0, filter)
}

// RetrieveWithScores runs a hybrid search with the configured default blend.
func (uc *HybridRetrieveUseCase) RetrieveWithScores(
	ctx context.Context,
	query string,
	k int,
	filter domain.SearchFilter,
) []domain.RetrievedDocument {
	return uc.RetrieveHybrid(ctx, query, k, uc.semanticWeight, uc.keywordWeight, filter)
}

// RetrieveHybrid runs dense and sparse searches and fuses them with the given
// weights. A zero weight skips that modality entirely.
func (uc *HybridRetrieveUseCase) RetrieveHybrid(
	ctx context.Context,
	query string,
	k int,
	semanticWeight, keywordWeight float64,
	filter domain.SearchFilter,
) []domain.RetrievedDocument {
	docs, err := uc.retrieveHybrid(ctx, query, k, semanticWeight, keywordWeight, filter)
	if err != nil {
		uc.logger.Warn("hybrid_retrieval_failed",
			"error", err,
			"semantic_weight", semanticWeight,
			"keyword_weight", keywordWeight,
		)
		return []domain.RetrievedDocument{}
	}
	return docs
}

func (uc *HybridRetrieveUseCase) retrieveHybrid(
	ctx context.Context,
	query string,
	k int,
	semanticWeight, keywordWeight float64,
	filter domain.SearchFilter,
) ([]domain.RetrievedDocument, error) {
	if k <= 0 {
		k = defaultRetrieveLimit
	}

	switch {
	case keywordWeight == 0:
		points, err := uc.searchDense(ctx, query, k, filter)
		if err != nil {
			return nil, err
		}
		return pointsToDocuments(points), nil
	case semanticWeight == 0:
		points, err := uc.searchSparse(ctx, query, k, filter)
		if err != nil {
			return nil, err
		}
		return pointsToDocuments(points), nil
	}

	// Over-fetch each modality so the fused top-k is not starved when one
	// raw ranking dominates the other.
	fetch := 3 * k

	var dense, sparse []domain.ScoredPoint
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		points, err := uc.searchDense(gctx, query, fetch, filter)
		if err != nil {
			return err
		}
		dense = points
		return nil
	})
	g.Go(func() error {
		points, err := uc.searchSparse(gctx, query, fetch, filter)
		if err != nil {
			return err
		}
		sparse = points
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := fuseWeighted(dense, sparse, semanticWeight, keywordWeight)
	if len(fused) > k {
		fused = fused[:k]
	}
	return fused, nil
}

func (uc *HybridRetrieveUseCase) searchDense(
	ctx context.Context,
	query string,
	limit int,
	filter domain.SearchFilter,
) ([]domain.ScoredPoint, error) {
	vector, err := uc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	points, err := uc.store.SearchDense(ctx, vector, limit, filter)
	if err != nil {
		return nil, fmt.Errorf("dense search: %w", err)
	}
	return points, nil
}

func (uc *HybridRetrieveUseCase) searchSparse(
	ctx context.Context,
	query string,
	limit int,
	filter domain.SearchFilter,
) ([]domain.ScoredPoint, error) {
	vector, err := uc.encoder.TokenizeQuery(query)
	if err != nil {
		return nil, fmt.Errorf("tokenize query: %w", err)
	}
	// A query of nothing but stopwords and noise has no sparse
	// representation; the dense modality still covers it.
	if vector.IsEmpty() {
		return nil, nil
	}
	points, err := uc.store.SearchSparse(ctx, vector, limit, filter)
	if err != nil {
		return nil, fmt.Errorf("sparse search: %w", err)
	}
	return points, nil
}

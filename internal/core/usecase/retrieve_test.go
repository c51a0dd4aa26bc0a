package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/bisq-network/support-agent/internal/core/domain"
)

type retrieveEmbedderFake struct {
	calls int
	err   error
}

func (f *retrieveEmbedderFake) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}
func (f *retrieveEmbedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

type retrieveEncoderFake struct {
	calls int
	empty bool
}

func (f *retrieveEncoderFake) TokenizeDocument(string) (domain.SparseVector, error) {
	return domain.SparseVector{}, errors.New("not implemented")
}
func (f *retrieveEncoderFake) TokenizeQuery(string) (domain.SparseVector, error) {
	f.calls++
	if f.empty {
		return domain.SparseVector{}, nil
	}
	return domain.SparseVector{Indices: []uint32{1}, Weights: []float32{1}}, nil
}

type retrieveStoreFake struct {
	densePoints  []domain.ScoredPoint
	sparsePoints []domain.ScoredPoint
	denseLimit   int
	sparseLimit  int
	denseCalls   int
	sparseCalls  int
	denseErr     error
	sparseErr    error
}

func (f *retrieveStoreFake) UpsertChunks(context.Context, *domain.KnowledgeEntry, []string, [][]float32, []domain.SparseVector) error {
	return errors.New("not implemented")
}
func (f *retrieveStoreFake) SearchDense(_ context.Context, _ []float32, limit int, _ domain.SearchFilter) ([]domain.ScoredPoint, error) {
	f.denseCalls++
	f.denseLimit = limit
	return f.densePoints, f.denseErr
}
func (f *retrieveStoreFake) SearchSparse(_ context.Context, _ domain.SparseVector, limit int, _ domain.SearchFilter) ([]domain.ScoredPoint, error) {
	f.sparseCalls++
	f.sparseLimit = limit
	return f.sparsePoints, f.sparseErr
}
func (f *retrieveStoreFake) CollectionExists(context.Context) (bool, error) {
	return true, nil
}

func newRetrieveUseCase(store *retrieveStoreFake) (*HybridRetrieveUseCase, *retrieveEmbedderFake, *retrieveEncoderFake) {
	embedder := &retrieveEmbedderFake{}
	encoder := &retrieveEncoderFake{}
	return NewHybridRetrieveUseCase(embedder, encoder, store, 0.7, 0.3, nil), embedder, encoder
}

func TestRetrieveHybridDenseOnlyWhenKeywordWeightZero(t *testing.T) {
	store := &retrieveStoreFake{
		densePoints: []domain.ScoredPoint{{ID: "p1", Score: 0.9, Payload: map[string]any{"content": "c1"}}},
	}
	uc, _, encoder := newRetrieveUseCase(store)

	docs := uc.RetrieveHybrid(context.Background(), "q", 5, 1.0, 0.0, domain.SearchFilter{})
	if len(docs) != 1 || docs[0].ID != "p1" {
		t.Fatalf("unexpected result: %+v", docs)
	}
	if store.denseLimit != 5 {
		t.Fatalf("dense limit = %d, want 5 (no over-fetch on single modality)", store.denseLimit)
	}
	if store.sparseCalls != 0 || encoder.calls != 0 {
		t.Fatalf("sparse path ran for keyword_weight=0")
	}
}

func TestRetrieveHybridSparseOnlyWhenSemanticWeightZero(t *testing.T) {
	store := &retrieveStoreFake{
		sparsePoints: []domain.ScoredPoint{{ID: "p2", Score: 4.2, Payload: map[string]any{"content": "c2"}}},
	}
	uc, embedder, _ := newRetrieveUseCase(store)

	docs := uc.RetrieveHybrid(context.Background(), "q", 5, 0.0, 1.0, domain.SearchFilter{})
	if len(docs) != 1 || docs[0].ID != "p2" {
		t.Fatalf("unexpected result: %+v", docs)
	}
	if store.denseCalls != 0 || embedder.calls != 0 {
		t.Fatalf("dense path ran for semantic_weight=0")
	}
}

func TestRetrieveHybridOverFetchesAndTrims(t *testing.T) {
	var densePoints, sparsePoints []domain.ScoredPoint
	for i := 0; i < 6; i++ {
		densePoints = append(densePoints, domain.ScoredPoint{ID: string(rune('a' + i)), Score: float64(6 - i)})
	}
	sparsePoints = append(sparsePoints, domain.ScoredPoint{ID: "z", Score: 1.0})
	store := &retrieveStoreFake{densePoints: densePoints, sparsePoints: sparsePoints}
	uc, _, _ := newRetrieveUseCase(store)

	docs := uc.RetrieveHybrid(context.Background(), "q", 2, 0.5, 0.5, domain.SearchFilter{})
	if store.denseLimit != 6 || store.sparseLimit != 6 {
		t.Fatalf("expected 3*k over-fetch, got dense=%d sparse=%d", store.denseLimit, store.sparseLimit)
	}
	if len(docs) != 2 {
		t.Fatalf("expected top-2 trim, got %d results", len(docs))
	}
}

func TestRetrieveHybridCombinedScoresWithinBounds(t *testing.T) {
	store := &retrieveStoreFake{
		densePoints: []domain.ScoredPoint{
			{ID: "a", Score: 0.9},
			{ID: "b", Score: 0.5},
		},
		sparsePoints: []domain.ScoredPoint{
			{ID: "b", Score: 7.0},
			{ID: "c", Score: 3.0},
		},
	}
	uc, _, _ := newRetrieveUseCase(store)

	docs := uc.RetrieveHybrid(context.Background(), "q", 5, 0.6, 0.4, domain.SearchFilter{})
	if len(docs) != 3 {
		t.Fatalf("expected 3 fused candidates, got %d", len(docs))
	}
	for _, doc := range docs {
		if doc.Score < 0 || doc.Score > 1 {
			t.Fatalf("combined score %f out of [0,1]", doc.Score)
		}
	}
	// b: dense_norm=0 sparse_norm=1 -> 0.4; a: dense_norm=1 -> 0.6; c: sparse_norm=0 -> 0.
	if docs[0].ID != "a" || docs[1].ID != "b" || docs[2].ID != "c" {
		t.Fatalf("unexpected fused order: %s %s %s", docs[0].ID, docs[1].ID, docs[2].ID)
	}
}

func TestRetrieveHybridErrorDegradesToEmpty(t *testing.T) {
	store := &retrieveStoreFake{denseErr: errors.New("store down")}
	uc, _, _ := newRetrieveUseCase(store)

	docs := uc.RetrieveHybrid(context.Background(), "q", 5, 0.5, 0.5, domain.SearchFilter{})
	if docs == nil || len(docs) != 0 {
		t.Fatalf("expected empty non-nil result, got %v", docs)
	}
}

func TestRetrieveHybridEmptySparseQuerySkipsSparseSearch(t *testing.T) {
	store := &retrieveStoreFake{
		densePoints: []domain.ScoredPoint{{ID: "a", Score: 0.5}},
	}
	uc, _, encoder := newRetrieveUseCase(store)
	encoder.empty = true

	docs := uc.RetrieveHybrid(context.Background(), "the of and", 5, 0.5, 0.5, domain.SearchFilter{})
	if store.sparseCalls != 0 {
		t.Fatalf("sparse search ran with empty query vector")
	}
	if len(docs) != 1 {
		t.Fatalf("expected dense-only fusion, got %d docs", len(docs))
	}
}

func TestRetrieveUsesConfiguredDefaults(t *testing.T) {
	store := &retrieveStoreFake{
		densePoints:  []domain.ScoredPoint{{ID: "a", Score: 0.5}},
		sparsePoints: []domain.ScoredPoint{{ID: "a", Score: 2.0}},
	}
	uc, _, _ := newRetrieveUseCase(store)

	docs := uc.RetrieveWithScores(context.Background(), "q", 0, domain.SearchFilter{})
	if store.denseCalls != 1 || store.sparseCalls != 1 {
		t.Fatalf("expected both modalities with configured defaults")
	}
	if store.denseLimit != 3*defaultRetrieveLimit {
		t.Fatalf("expected default limit over-fetch, got %d", store.denseLimit)
	}
	if len(docs) != 1 {
		t.Fatalf("expected single fused doc, got %d", len(docs))
	}
}

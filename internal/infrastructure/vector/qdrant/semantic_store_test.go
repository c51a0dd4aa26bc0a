package qdrant

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bisq-network/support-agent/internal/core/domain"
)

type embedderStub struct {
	err error
}

func (s *embedderStub) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}
func (s *embedderStub) EmbedQuery(context.Context, string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{0.1, 0.2}, nil
}

func TestSemanticStoreSearchWithScores(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/collections/kb/points/query" {
			_, _ = w.Write([]byte(`{"result":{"points":[
				{"id":"p1","score":0.8,"payload":{"content":"body text","title":"T","version":"bisq2"}}
			]}}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	store := NewSemanticStore(&embedderStub{}, New(server.URL, "kb"))
	docs, distances, err := store.SearchWithScores(context.Background(), "q", 5, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("SearchWithScores() error = %v", err)
	}
	if len(docs) != 1 || len(distances) != 1 {
		t.Fatalf("expected 1 doc+distance, got %d/%d", len(docs), len(distances))
	}
	if docs[0].Content != "body text" {
		t.Fatalf("content = %q", docs[0].Content)
	}
	if docs[0].MetaString("title") != "T" {
		t.Fatalf("metadata title missing: %v", docs[0].Metadata)
	}
	if _, leaked := docs[0].Metadata["content"]; leaked {
		t.Fatalf("content duplicated into metadata")
	}
	// similarity 0.8 -> distance 0.2
	if diff := distances[0] - 0.2; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("distance = %f, want 0.2", distances[0])
	}
}

func TestSemanticStoreEmbedError(t *testing.T) {
	store := NewSemanticStore(&embedderStub{err: errors.New("embed down")}, New("http://unused", "kb"))
	if _, err := store.Search(context.Background(), "q", 5, domain.SearchFilter{}); err == nil {
		t.Fatalf("expected error")
	}
}

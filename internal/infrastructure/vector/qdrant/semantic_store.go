package qdrant

import (
	"context"
	"fmt"

	"github.com/bisq-network/support-agent/internal/core/domain"
	"github.com/bisq-network/support-agent/internal/core/ports"
)

// SemanticStore is the text-in, documents-out view over the dense side of
// the collection. It embeds the query itself, so the version-priority
// retriever stays free of vector plumbing.
type SemanticStore struct {
	embedder ports.Embedder
	client   *Client
}

func NewSemanticStore(embedder ports.Embedder, client *Client) *SemanticStore {
	return &SemanticStore{
		embedder: embedder,
		client:   client,
	}
}

func (s *SemanticStore) Search(
	ctx context.Context,
	query string,
	k int,
	filter domain.SearchFilter,
) ([]domain.Document, error) {
	docs, _, err := s.SearchWithScores(ctx, query, k, filter)
	return docs, err
}

// SearchWithScores also returns a distance per document. Qdrant reports
// cosine similarity in [-1,1]; distance = 1 - similarity keeps lower-is-closer
// semantics for the caller.
func (s *SemanticStore) SearchWithScores(
	ctx context.Context,
	query string,
	k int,
	filter domain.SearchFilter,
) ([]domain.Document, []float64, error) {
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("embed query: %w", err)
	}

	points, err := s.client.SearchDense(ctx, vector, k, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("dense search: %w", err)
	}

	docs := make([]domain.Document, 0, len(points))
	distances := make([]float64, 0, len(points))
	for _, p := range points {
		content, _ := p.Payload["content"].(string)
		metadata := make(map[string]any, len(p.Payload))
		for key, value := range p.Payload {
			if key == "content" {
				continue
			}
			metadata[key] = value
		}
		docs = append(docs, domain.Document{Content: content, Metadata: metadata})
		distances = append(distances, 1-p.Score)
	}
	return docs, distances, nil
}

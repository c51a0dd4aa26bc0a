package usecase

import (
	"sort"

	"github.com/bisq-network/support-agent/internal/core/domain"
)

// fuseWeighted unions dense and sparse candidate sets and combines their
// min-max normalized scores linearly. A point returned by only one modality
// scores 0 for the other, it is never excluded. Payloads come from whichever
// list mentioned the point first, dense processed first.
func fuseWeighted(dense, sparse []domain.ScoredPoint, semanticWeight, keywordWeight float64) []domain.RetrievedDocument {
	denseNorm := normalizeScores(dense)
	sparseNorm := normalizeScores(sparse)

	order := make([]string, 0, len(dense)+len(sparse))
	payloads := make(map[string]domain.ScoredPoint, len(dense)+len(sparse))
	for _, p := range dense {
		if _, seen := payloads[p.ID]; !seen {
			payloads[p.ID] = p
			order = append(order, p.ID)
		}
	}
	for _, p := range sparse {
		if _, seen := payloads[p.ID]; !seen {
			payloads[p.ID] = p
			order = append(order, p.ID)
		}
	}

	out := make([]domain.RetrievedDocument, 0, len(order))
	for _, id := range order {
		combined := semanticWeight*denseNorm[id] + keywordWeight*sparseNorm[id]
		out = append(out, pointToDocument(payloads[id], combined))
	}

	// Equal combined scores keep their first-seen order; repeated calls with
	// identical inputs give identical output.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// normalizeScores min-max normalizes one result set to [0,1]. A set where
// every raw score is equal normalizes to all 1.0 rather than dividing by
// zero or zeroing a uniform set.
func normalizeScores(points []domain.ScoredPoint) map[string]float64 {
	out := make(map[string]float64, len(points))
	if len(points) == 0 {
		return out
	}

	minScore, maxScore := points[0].Score, points[0].Score
	for _, p := range points[1:] {
		if p.Score < minScore {
			minScore = p.Score
		}
		if p.Score > maxScore {
			maxScore = p.Score
		}
	}

	for _, p := range points {
		if maxScore == minScore {
			out[p.ID] = 1.0
			continue
		}
		out[p.ID] = (p.Score - minScore) / (maxScore - minScore)
	}
	return out
}

func pointsToDocuments(points []domain.ScoredPoint) []domain.RetrievedDocument {
	out := make([]domain.RetrievedDocument, 0, len(points))
	for _, p := range points {
		out = append(out, pointToDocument(p, p.Score))
	}
	return out
}

func pointToDocument(p domain.ScoredPoint, score float64) domain.RetrievedDocument {
	content, _ := p.Payload["content"].(string)
	metadata := make(map[string]any, len(p.Payload))
	for k, v := range p.Payload {
		if k == "content" {
			continue
		}
		metadata[k] = v
	}
	return domain.RetrievedDocument{
		ID:       p.ID,
		Content:  content,
		Metadata: metadata,
		Score:    score,
	}
}

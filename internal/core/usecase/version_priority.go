package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"

	"github.com/bisq-network/support-agent/internal/core/domain"
	"github.com/bisq-network/support-agent/internal/core/ports"
)

// Query classification patterns. Word boundaries keep "bisq2021" or
// "improvised" from matching a version or comparison word.
var (
	bisq1Pattern   = regexp.MustCompile(`(?i)\bbisq\s?1(\.\d+)?\b`)
	bisq2Pattern   = regexp.MustCompile(`(?i)\bbisq\s?2(\.\d+)?\b`)
	comparePattern = regexp.MustCompile(
		`(?i)\b(compare|compared|comparison|difference|differences|differ|versus|vs|migrate|migration)\b`)
)

// versionMetaKey is the metadata field carrying the corpus version tag.
const versionMetaKey = "version"

const unfilteredFetchLimit = 12

// retrievalStage is one step of the staged plan: fetch up to `fetch`
// documents with the stage's version filter, but only when fewer than
// `trigger` results have accumulated. trigger 0 means the stage always runs.
type retrievalStage struct {
	version string
	fetch   int
	trigger int
}

func stagePlan(detected string) []retrievalStage {
	if detected == domain.VersionBisq1 {
		return []retrievalStage{
			{version: domain.VersionBisq1, fetch: 4},
			{version: domain.VersionGeneral, fetch: 2, trigger: 3},
		}
	}
	return []retrievalStage{
		{version: domain.VersionBisq2, fetch: 6},
		{version: domain.VersionGeneral, fetch: 4, trigger: 4},
		{version: domain.VersionBisq1, fetch: 2, trigger: 3},
	}
}

// DetectQueryVersion classifies a support question. Mentioning only Bisq 1
// targets the legacy corpus; mentioning both versions or comparison wording
// keeps the default Bisq 2 priority so both sides of the comparison surface.
func DetectQueryVersion(query string) string {
	mentionsBisq1 := bisq1Pattern.MatchString(query)
	mentionsBisq2 := bisq2Pattern.MatchString(query)

	if mentionsBisq1 && !mentionsBisq2 && !comparePattern.MatchString(query) {
		return domain.VersionBisq1
	}
	return domain.VersionBisq2
}

// VersionRetriever layers the staged version-priority policy on top of a
// semantic store. Like the fusion retriever it never surfaces an error: a
// failed filtered search degrades to one unfiltered search, and a failure
// there degrades to no documents.
type VersionRetriever struct {
	store  ports.SemanticStore
	logger *slog.Logger
}

func NewVersionRetriever(store ports.SemanticStore, logger *slog.Logger) *VersionRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &VersionRetriever{store: store, logger: logger}
}

// RetrieveWithVersionPriority classifies the query and runs the staged,
// version-filtered retrieval plan.
func (r *VersionRetriever) RetrieveWithVersionPriority(ctx context.Context, query string) []domain.Document {
	detected := DetectQueryVersion(query)

	docs, err := r.staged(ctx, query, detected)
	if err != nil {
		r.logger.Warn("filtered_retrieval_failed", "error", err, "detected_version", detected)
		return r.unfiltered(ctx, query, detected)
	}
	return docs
}

// RetrieveWithScores is the score-carrying variant of the staged flow. The
// returned similarity per document is max(0, 1 - distance/2).
func (r *VersionRetriever) RetrieveWithScores(
	ctx context.Context,
	query, detected string,
) ([]domain.Document, []float64) {
	docs, scores, err := r.stagedWithScores(ctx, query, detected)
	if err != nil {
		r.logger.Warn("filtered_retrieval_failed", "error", err, "detected_version", detected)
		return r.unfilteredWithScores(ctx, query, detected)
	}
	return docs, scores
}

// ConfidenceFromScores aggregates ranked similarity scores into one
// confidence value: a weighted average with weight 1/(rank+1), so earlier
// results count more.
func ConfidenceFromScores(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var weighted, total float64
	for rank, score := range scores {
		w := 1.0 / float64(rank+1)
		weighted += w * score
		total += w
	}
	return weighted / total
}

func (r *VersionRetriever) staged(ctx context.Context, query, detected string) ([]domain.Document, error) {
	var out []domain.Document
	seen := make(map[dedupKey]struct{})

	for _, stage := range stagePlan(detected) {
		if stage.trigger > 0 && len(out) >= stage.trigger {
			continue
		}
		docs, err := r.store.Search(ctx, query, stage.fetch, versionFilter(stage.version))
		if err != nil {
			return nil, fmt.Errorf("search version=%s: %w", stage.version, err)
		}
		for _, doc := range docs {
			key := dedupKeyFor(doc)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, doc)
		}
	}
	return out, nil
}

func (r *VersionRetriever) stagedWithScores(
	ctx context.Context,
	query, detected string,
) ([]domain.Document, []float64, error) {
	var out []domain.Document
	var scores []float64
	seen := make(map[dedupKey]struct{})

	for _, stage := range stagePlan(detected) {
		if stage.trigger > 0 && len(out) >= stage.trigger {
			continue
		}
		docs, distances, err := r.store.SearchWithScores(ctx, query, stage.fetch, versionFilter(stage.version))
		if err != nil {
			return nil, nil, fmt.Errorf("scored search version=%s: %w", stage.version, err)
		}
		for i, doc := range docs {
			key := dedupKeyFor(doc)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, doc)
			scores = append(scores, distanceToSimilarity(distances[i]))
		}
	}
	return out, scores, nil
}

// unfiltered is the degraded path for stores that reject metadata filters:
// one filter-free search, post-sorted by static version weights with
// relative order kept inside each version tier.
func (r *VersionRetriever) unfiltered(ctx context.Context, query, detected string) []domain.Document {
	docs, err := r.store.Search(ctx, query, unfilteredFetchLimit, domain.SearchFilter{})
	if err != nil {
		r.logger.Warn("unfiltered_retrieval_failed", "error", err)
		return []domain.Document{}
	}
	docs = dedupDocuments(docs)
	sortByVersionWeight(docs, detected)
	return docs
}

func (r *VersionRetriever) unfilteredWithScores(
	ctx context.Context,
	query, detected string,
) ([]domain.Document, []float64) {
	docs, distances, err := r.store.SearchWithScores(ctx, query, unfilteredFetchLimit, domain.SearchFilter{})
	if err != nil {
		r.logger.Warn("unfiltered_retrieval_failed", "error", err)
		return []domain.Document{}, []float64{}
	}

	type scoredDoc struct {
		doc   domain.Document
		score float64
	}
	seen := make(map[dedupKey]struct{}, len(docs))
	pairs := make([]scoredDoc, 0, len(docs))
	for i, doc := range docs {
		key := dedupKeyFor(doc)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		pairs = append(pairs, scoredDoc{doc: doc, score: distanceToSimilarity(distances[i])})
	}

	weights := versionWeights(detected)
	sort.SliceStable(pairs, func(i, j int) bool {
		return weights[docVersion(pairs[i].doc)] > weights[docVersion(pairs[j].doc)]
	})

	outDocs := make([]domain.Document, len(pairs))
	outScores := make([]float64, len(pairs))
	for i, p := range pairs {
		outDocs[i] = p.doc
		outScores[i] = p.score
	}
	return outDocs, outScores
}

type dedupKey struct {
	title   string
	section string
}

func dedupKeyFor(doc domain.Document) dedupKey {
	return dedupKey{
		title:   doc.MetaString("title"),
		section: doc.MetaString("section"),
	}
}

func dedupDocuments(docs []domain.Document) []domain.Document {
	seen := make(map[dedupKey]struct{}, len(docs))
	out := make([]domain.Document, 0, len(docs))
	for _, doc := range docs {
		key := dedupKeyFor(doc)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, doc)
	}
	return out
}

func versionFilter(version string) domain.SearchFilter {
	return domain.SearchFilter{Must: map[string]string{versionMetaKey: version}}
}

func docVersion(doc domain.Document) string {
	return doc.MetaString(versionMetaKey)
}

func versionWeights(detected string) map[string]int {
	if detected == domain.VersionBisq1 {
		return map[string]int{
			domain.VersionBisq1:   3,
			domain.VersionGeneral: 2,
			domain.VersionBisq2:   1,
		}
	}
	return map[string]int{
		domain.VersionBisq2:   3,
		domain.VersionGeneral: 2,
		domain.VersionBisq1:   1,
	}
}

func sortByVersionWeight(docs []domain.Document, detected string) {
	weights := versionWeights(detected)
	sort.SliceStable(docs, func(i, j int) bool {
		return weights[docVersion(docs[i])] > weights[docVersion(docs[j])]
	})
}

func distanceToSimilarity(distance float64) float64 {
	sim := 1 - distance/2
	if sim < 0 {
		return 0
	}
	return sim
}

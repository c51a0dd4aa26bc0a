package bm25

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bisq-network/support-agent/internal/core/domain"
)

const (
	// BM25 document weighting parameters. 1.5/0.75 are the standard
	// Robertson defaults.
	bm25K1 = 1.5
	bm25B  = 0.75

	// MaxInputLength bounds tokenizer input so pathological payloads cannot
	// exhaust memory or CPU.
	MaxInputLength = 1_000_000
)

// tokenPattern matches alphabetic-led alphanumeric words, so version-style
// tokens like "bisq2" survive as one token. Pure numbers are extracted as
// candidates and dropped by the numeric filter afterwards.
var tokenPattern = regexp.MustCompile(`[a-z][a-z0-9]*|[0-9]+`)

// addressPattern matches Bitcoin address shapes (legacy base58 and bech32
// after lowercasing). High-entropy one-off addresses would otherwise flood
// the vocabulary with unmatchable terms.
var addressPattern = regexp.MustCompile(`^(bc1[a-z0-9]{23,59}|[13][a-z0-9]{25,39})$`)

var numericPattern = regexp.MustCompile(`^[0-9]+$`)

// Tokenizer converts text into BM25 sparse vectors against its Vocabulary.
// Document mode indexes one more document into the corpus statistics; query
// mode only resolves (and possibly adds) term indices.
type Tokenizer struct {
	vocab   *Vocabulary
	capWarn *rate.Limiter
}

// UpdateStats summarizes an incremental vocabulary update.
type UpdateStats struct {
	Documents      int `json:"documents"`
	NewTerms       int `json:"new_terms"`
	VocabularySize int `json:"vocabulary_size"`
}

func NewTokenizer(vocab *Vocabulary) *Tokenizer {
	if vocab == nil {
		vocab = NewVocabulary(0)
	}
	return &Tokenizer{
		vocab:   vocab,
		capWarn: rate.NewLimiter(rate.Every(30*time.Second), 1),
	}
}

// Vocabulary exposes the owned store for diagnostics; all mutation still
// goes through its lock.
func (t *Tokenizer) Vocabulary() *Vocabulary {
	return t.vocab
}

// TokenizeDocument encodes text as a BM25 sparse vector and permanently
// indexes it into the vocabulary: new terms get indices, document
// frequencies and corpus counters are updated. Document-length
// normalization uses the average length from before this document.
func (t *Tokenizer) TokenizeDocument(text string) (domain.SparseVector, error) {
	vec, _, err := t.tokenizeDocument(text)
	return vec, err
}

func (t *Tokenizer) tokenizeDocument(text string) (domain.SparseVector, []string, error) {
	tokens, err := t.normalize(text)
	if err != nil {
		return domain.SparseVector{}, nil, err
	}
	if len(tokens) == 0 {
		return domain.SparseVector{}, nil, nil
	}

	ordered, counts := countTerms(tokens)
	stats, avgLen, rejected := t.vocab.indexDocument(ordered, counts, len(tokens))
	t.warnRejected(rejected)

	docLen := float64(len(tokens))
	var newTerms []string
	pairs := make([]indexWeight, 0, len(stats))
	for _, s := range stats {
		tf := float64(s.tf)
		weight := s.idf * (tf * (bm25K1 + 1)) / (tf + bm25K1*(1-bm25B+bm25B*docLen/avgLen))
		pairs = append(pairs, indexWeight{index: s.index, weight: weight})
		if s.isNew {
			newTerms = append(newTerms, s.term)
		}
	}
	return toSparseVector(pairs), newTerms, nil
}

// TokenizeQuery encodes query text without counting it as a document.
// Unseen terms are still added to the vocabulary so future documents
// containing them become matchable; weighting is (1+ln tf)·idf with no
// document-length normalization.
func (t *Tokenizer) TokenizeQuery(text string) (domain.SparseVector, error) {
	tokens, err := t.normalize(text)
	if err != nil {
		return domain.SparseVector{}, err
	}
	if len(tokens) == 0 {
		return domain.SparseVector{}, nil
	}

	ordered, counts := countTerms(tokens)
	rejected := 0
	pairs := make([]indexWeight, 0, len(ordered))
	for _, term := range ordered {
		idx, ok := t.vocab.GetOrAdd(term)
		if !ok {
			rejected++
			continue
		}
		weight := 1.0
		if tf := counts[term]; tf > 1 {
			weight = 1 + math.Log(float64(tf))
		}
		weight *= t.vocab.IDF(term)
		pairs = append(pairs, indexWeight{index: idx, weight: weight})
	}
	t.warnRejected(rejected)
	return toSparseVector(pairs), nil
}

// Tokenize is the document-indexing path, kept for call sites that do not
// distinguish modes.
func (t *Tokenizer) Tokenize(text string) (domain.SparseVector, error) {
	return t.TokenizeDocument(text)
}

// UpdateVocabulary indexes a batch of documents and reports how many new
// vocabulary terms they introduced. An empty batch mutates nothing.
func (t *Tokenizer) UpdateVocabulary(documents []string) (UpdateStats, error) {
	var stats UpdateStats
	for _, doc := range documents {
		newTerms, err := t.UpdateSingleDocument(doc)
		if err != nil {
			return stats, err
		}
		if strings.TrimSpace(doc) == "" {
			continue
		}
		stats.Documents++
		stats.NewTerms += len(newTerms)
	}
	stats.VocabularySize = t.vocab.Size()
	return stats, nil
}

// UpdateSingleDocument indexes one document and returns the terms it
// introduced. An empty or all-noise document mutates nothing.
func (t *Tokenizer) UpdateSingleDocument(text string) ([]string, error) {
	_, newTerms, err := t.tokenizeDocument(text)
	return newTerms, err
}

// ExportVocabulary serializes the full vocabulary snapshot as JSON.
func (t *Tokenizer) ExportVocabulary() (string, error) {
	data, err := json.Marshal(t.vocab.Export())
	if err != nil {
		return "", fmt.Errorf("marshal vocabulary snapshot: %w", err)
	}
	return string(data), nil
}

// LoadVocabulary replaces all in-memory vocabulary state from a JSON
// snapshot produced by ExportVocabulary.
func (t *Tokenizer) LoadVocabulary(serialized string) error {
	var snapshot Snapshot
	if err := json.Unmarshal([]byte(serialized), &snapshot); err != nil {
		return fmt.Errorf("unmarshal vocabulary snapshot: %w", err)
	}
	if err := t.vocab.Load(snapshot); err != nil {
		return fmt.Errorf("restore vocabulary snapshot: %w", err)
	}
	return nil
}

// normalize runs the shared pipeline: lowercase, token extraction, length
// and stopword filters, address and numeric drops. Oversized input is a
// caller-correctable validation failure, not something to swallow.
func (t *Tokenizer) normalize(text string) ([]string, error) {
	if len(text) > MaxInputLength {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"tokenize",
			fmt.Errorf("input length %d exceeds limit %d", len(text), MaxInputLength),
		)
	}

	lowered := strings.ToLower(text)
	candidates := tokenPattern.FindAllString(lowered, -1)
	tokens := make([]string, 0, len(candidates))
	for _, tok := range candidates {
		if len(tok) < 2 {
			continue
		}
		if _, ok := stopwords[tok]; ok {
			continue
		}
		if addressPattern.MatchString(tok) {
			continue
		}
		if numericPattern.MatchString(tok) {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens, nil
}

func (t *Tokenizer) warnRejected(rejected int) {
	if rejected == 0 {
		return
	}
	if t.capWarn.Allow() {
		slog.Warn("vocabulary_at_capacity",
			"rejected_terms", rejected,
			"vocabulary_size", t.vocab.Size(),
		)
	}
}

// countTerms returns distinct tokens in first-appearance order with their
// in-document frequencies. First-appearance order keeps index assignment
// deterministic for a given text.
func countTerms(tokens []string) ([]string, map[string]int) {
	ordered := make([]string, 0, len(tokens))
	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		if _, seen := counts[tok]; !seen {
			ordered = append(ordered, tok)
		}
		counts[tok]++
	}
	return ordered, counts
}

type indexWeight struct {
	index  uint32
	weight float64
}

func toSparseVector(pairs []indexWeight) domain.SparseVector {
	if len(pairs) == 0 {
		return domain.SparseVector{}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].index < pairs[j].index })

	out := domain.SparseVector{
		Indices: make([]uint32, 0, len(pairs)),
		Weights: make([]float32, 0, len(pairs)),
	}
	for _, p := range pairs {
		if math.IsNaN(p.weight) || math.IsInf(p.weight, 0) {
			continue
		}
		out.Indices = append(out.Indices, p.index)
		out.Weights = append(out.Weights, float32(p.weight))
	}
	return out
}

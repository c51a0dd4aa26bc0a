package bm25

import (
	"fmt"
	"math"
	"sync"
)

const (
	// DefaultMaxVocabularySize bounds the term->index mapping. Kept well
	// below 2^31 so indices stay valid as 32-bit point-store keys.
	DefaultMaxVocabularySize = 100_000

	// defaultAvgDocLength is used before any document has been indexed.
	defaultAvgDocLength = 100.0

	// minIDF floors IDF so every retained term contributes positive weight;
	// a zero weight would be indistinguishable from an absent term.
	minIDF = 0.1
)

// Vocabulary is the single source of truth for term<->index mapping and
// corpus statistics. All mutation goes through its lock; it is owned by
// exactly one Tokenizer and must never be shared across tokenizers.
type Vocabulary struct {
	mu sync.RWMutex

	maxSize     int
	termToIndex map[string]uint32
	indexToTerm []string
	docFreq     map[string]int
	numDocs     int
	totalTokens int64
}

func NewVocabulary(maxSize int) *Vocabulary {
	if maxSize <= 0 {
		maxSize = DefaultMaxVocabularySize
	}
	return &Vocabulary{
		maxSize:     maxSize,
		termToIndex: make(map[string]uint32),
		docFreq:     make(map[string]int),
	}
}

// GetOrAdd returns the stable index for term, assigning the next sequential
// index if the term is new. The second return is false when the vocabulary
// is at capacity and the term could not be added; callers must treat that as
// "term dropped from this representation", not as an error.
func (v *Vocabulary) GetOrAdd(term string) (uint32, bool) {
	v.mu.RLock()
	idx, ok := v.termToIndex[term]
	v.mu.RUnlock()
	if ok {
		return idx, true
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	return v.getOrAddLocked(term)
}

// getOrAddLocked re-checks presence under the write lock so two concurrent
// callers can never both assign an index to the same term.
func (v *Vocabulary) getOrAddLocked(term string) (uint32, bool) {
	if idx, ok := v.termToIndex[term]; ok {
		return idx, true
	}
	if len(v.termToIndex) >= v.maxSize {
		return 0, false
	}
	idx := uint32(len(v.indexToTerm))
	v.termToIndex[term] = idx
	v.indexToTerm = append(v.indexToTerm, term)
	return idx, true
}

// Lookup returns the index for term without adding it.
func (v *Vocabulary) Lookup(term string) (uint32, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	idx, ok := v.termToIndex[term]
	return idx, ok
}

// RecordDocument counts one indexed document: document frequency for every
// unique term, plus corpus counters.
func (v *Vocabulary) RecordDocument(uniqueTerms []string, tokenCount int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, term := range uniqueTerms {
		v.docFreq[term]++
	}
	v.numDocs++
	v.totalTokens += int64(tokenCount)
}

// IDF returns the BM25 inverse document frequency for term, floored at a
// small positive constant. A term never seen in any document gets a
// rare-term default.
func (v *Vocabulary) IDF(term string) float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.idfLocked(term)
}

func (v *Vocabulary) idfLocked(term string) float64 {
	n := float64(v.numDocs)
	df := float64(v.docFreq[term])
	var idf float64
	if df == 0 {
		idf = math.Log(n+1) + 1
	} else {
		idf = math.Log((n-df+0.5)/(df+0.5) + 1)
	}
	if idf < minIDF {
		return minIDF
	}
	return idf
}

// AvgDocLength returns the mean token count across indexed documents.
func (v *Vocabulary) AvgDocLength() float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.avgDocLengthLocked()
}

func (v *Vocabulary) avgDocLengthLocked() float64 {
	if v.numDocs == 0 {
		return defaultAvgDocLength
	}
	return float64(v.totalTokens) / float64(v.numDocs)
}

func (v *Vocabulary) Size() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.termToIndex)
}

func (v *Vocabulary) NumDocuments() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.numDocs
}

// termStat carries per-term data out of the atomic document-indexing block.
type termStat struct {
	term  string
	index uint32
	tf    int
	idf   float64
	isNew bool
}

// indexDocument performs the whole document-indexing mutation atomically:
// term additions, document-frequency increments, IDF reads and the final
// corpus counter updates all happen under one lock, so a concurrent reader
// never observes a partially updated document frequency for a term whose
// index was just assigned. The returned average document length is the
// pre-update value; the document's own length is added afterwards.
func (v *Vocabulary) indexDocument(orderedTerms []string, counts map[string]int, tokenCount int) (stats []termStat, avgLen float64, rejected int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	avgLen = v.avgDocLengthLocked()
	stats = make([]termStat, 0, len(orderedTerms))
	for _, term := range orderedTerms {
		_, existed := v.termToIndex[term]
		idx, ok := v.getOrAddLocked(term)
		if !ok {
			rejected++
			continue
		}
		v.docFreq[term]++
		stats = append(stats, termStat{
			term:  term,
			index: idx,
			tf:    counts[term],
			idf:   v.idfLocked(term),
			isNew: !existed,
		})
	}

	v.numDocs++
	v.totalTokens += int64(tokenCount)
	return stats, avgLen, rejected
}

// Snapshot is the serialized form of a Vocabulary. IDF scores are exported
// for inspection; only the mapping, frequencies and counters are load-bearing
// on restore.
type Snapshot struct {
	TokenToIndex        map[string]uint32  `json:"token_to_index"`
	IDFScores           map[string]float64 `json:"idf_scores"`
	DocumentFrequencies map[string]int     `json:"document_frequencies"`
	NumDocuments        int                `json:"num_documents"`
	TotalDocLength      int64              `json:"total_doc_length"`
	NextIndex           uint32             `json:"next_index"`
}

// Export captures the full vocabulary state, including freshly computed IDF
// values per term.
func (v *Vocabulary) Export() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()

	tokenToIndex := make(map[string]uint32, len(v.termToIndex))
	idfScores := make(map[string]float64, len(v.termToIndex))
	docFreq := make(map[string]int, len(v.docFreq))
	for term, idx := range v.termToIndex {
		tokenToIndex[term] = idx
		idfScores[term] = v.idfLocked(term)
	}
	for term, df := range v.docFreq {
		docFreq[term] = df
	}

	return Snapshot{
		TokenToIndex:        tokenToIndex,
		IDFScores:           idfScores,
		DocumentFrequencies: docFreq,
		NumDocuments:        v.numDocs,
		TotalDocLength:      v.totalTokens,
		NextIndex:           uint32(len(v.indexToTerm)),
	}
}

// Load replaces the in-memory state with the snapshot, not a merge. Indices
// must be contiguous from zero with no duplicates.
func (v *Vocabulary) Load(s Snapshot) error {
	indexToTerm := make([]string, len(s.TokenToIndex))
	for term, idx := range s.TokenToIndex {
		if int(idx) >= len(indexToTerm) {
			return fmt.Errorf("vocabulary snapshot: index %d out of range for %d terms", idx, len(indexToTerm))
		}
		if indexToTerm[idx] != "" {
			return fmt.Errorf("vocabulary snapshot: duplicate index %d (%q, %q)", idx, indexToTerm[idx], term)
		}
		indexToTerm[idx] = term
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.termToIndex = make(map[string]uint32, len(s.TokenToIndex))
	for term, idx := range s.TokenToIndex {
		v.termToIndex[term] = idx
	}
	v.indexToTerm = indexToTerm
	v.docFreq = make(map[string]int, len(s.DocumentFrequencies))
	for term, df := range s.DocumentFrequencies {
		v.docFreq[term] = df
	}
	v.numDocs = s.NumDocuments
	v.totalTokens = s.TotalDocLength
	return nil
}

package domain

// Document is a retrieved unit of knowledge-base content. Metadata is an
// open map because the payload vocabulary (title, section, version tags,
// source type) is store-specific and open-ended.
type Document struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// MetaString reads a metadata value as a string, tolerating absent keys and
// non-string values.
func (d Document) MetaString(key string) string {
	v, ok := d.Metadata[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// RetrievedDocument is a Document plus retriever-specific scoring. Scores
// from different retrievers are not comparable unless normalized.
type RetrievedDocument struct {
	ID       string         `json:"id,omitempty"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	Score    float64        `json:"score"`
}

// SparseVector is a BM25 term-weight vector: equal-length index/weight
// sequences with no duplicate indices. Indices stay below 2^31 so the point
// store can hold them as 32-bit integers.
type SparseVector struct {
	Indices []uint32  `json:"indices"`
	Weights []float32 `json:"weights"`
}

// IsEmpty reports whether the vector carries no terms.
func (v SparseVector) IsEmpty() bool {
	return len(v.Indices) == 0
}

// SearchFilter expresses metadata constraints for point-store searches.
// Must entries require equality; MustAny entries require one of the listed
// values.
type SearchFilter struct {
	Must    map[string]string
	MustAny map[string][]string
}

// IsZero reports whether the filter constrains nothing.
func (f SearchFilter) IsZero() bool {
	return len(f.Must) == 0 && len(f.MustAny) == 0
}

// ScoredPoint is one raw nearest-neighbor hit from the point store.
type ScoredPoint struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// Answer is the final user-facing response with its supporting sources.
type Answer struct {
	Text       string              `json:"text"`
	Sources    []RetrievedDocument `json:"sources"`
	Confidence float64             `json:"confidence"`
}

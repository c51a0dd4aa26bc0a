package bm25

// Index binds a tokenizer to its snapshot manager so callers get encoding
// and persistence through one handle.
type Index struct {
	*Tokenizer
	manager *SnapshotManager
}

func NewIndex(t *Tokenizer, m *SnapshotManager) *Index {
	return &Index{Tokenizer: t, manager: m}
}

// WarmStart restores the vocabulary from the last snapshot. A missing
// snapshot is a cold start, not an error.
func (ix *Index) WarmStart() (bool, error) {
	return ix.manager.Load(ix.Tokenizer)
}

// SaveVocabulary persists the current vocabulary snapshot.
func (ix *Index) SaveVocabulary() error {
	return ix.manager.Save(ix.Tokenizer)
}

// RebuildVocabulary indexes a document batch and persists the vocabulary
// with a single disk write. Returns the number of documents indexed.
func (ix *Index) RebuildVocabulary(documents []string) (int, error) {
	stats, err := ix.manager.UpdateAndSave(ix.Tokenizer, documents)
	if err != nil {
		return stats.Documents, err
	}
	return stats.Documents, nil
}

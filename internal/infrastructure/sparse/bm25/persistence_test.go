package bm25

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingSnapshotIsColdStart(t *testing.T) {
	m := NewSnapshotManager(filepath.Join(t.TempDir(), "vocab.json"), false)
	tok := NewTokenizer(NewVocabulary(0))

	loaded, err := m.Load(tok)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded {
		t.Fatalf("Load() reported success for missing file")
	}
	if tok.Vocabulary().Size() != 0 {
		t.Fatalf("cold start left vocabulary non-empty")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.json")
	m := NewSnapshotManager(path, false)

	orig := NewTokenizer(NewVocabulary(0))
	if _, err := orig.TokenizeDocument("bisq2 security deposit dispute"); err != nil {
		t.Fatalf("TokenizeDocument() error = %v", err)
	}
	if err := m.Save(orig); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	restored := NewTokenizer(NewVocabulary(0))
	loaded, err := m.Load(restored)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !loaded {
		t.Fatalf("Load() did not find saved snapshot")
	}
	if restored.Vocabulary().NumDocuments() != 1 {
		t.Fatalf("restored document count = %d, want 1", restored.Vocabulary().NumDocuments())
	}
	for _, term := range []string{"bisq2", "security", "deposit", "dispute"} {
		origIdx, _ := orig.Vocabulary().Lookup(term)
		gotIdx, ok := restored.Vocabulary().Lookup(term)
		if !ok || gotIdx != origIdx {
			t.Fatalf("restored index for %q = (%d, %v), want (%d, true)", term, gotIdx, ok, origIdx)
		}
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	m := NewSnapshotManager(filepath.Join(dir, "vocab.json"), false)
	tok := NewTokenizer(NewVocabulary(0))
	if _, err := tok.TokenizeDocument("wallet restore"); err != nil {
		t.Fatalf("TokenizeDocument() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := m.Save(tok); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
	if len(entries) != 1 {
		t.Fatalf("expected single snapshot file, found %d entries", len(entries))
	}
}

func TestSaveWithBackupKeepsPreviousSnapshot(t *testing.T) {
	dir := t.TempDir()
	m := NewSnapshotManager(filepath.Join(dir, "vocab.json"), true)
	tok := NewTokenizer(NewVocabulary(0))
	if _, err := tok.TokenizeDocument("first snapshot content"); err != nil {
		t.Fatalf("TokenizeDocument() error = %v", err)
	}

	// First save has nothing to back up.
	if err := m.Save(tok); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := tok.TokenizeDocument("second snapshot content"); err != nil {
		t.Fatalf("TokenizeDocument() error = %v", err)
	}
	if err := m.Save(tok); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	backups := 0
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".bak") {
			backups++
		}
	}
	if backups != 1 {
		t.Fatalf("expected 1 backup file, found %d", backups)
	}
}

func TestUpdateAndSaveWritesOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vocab.json")
	m := NewSnapshotManager(path, true)
	tok := NewTokenizer(NewVocabulary(0))

	stats, err := m.UpdateAndSave(tok, []string{
		"bisq2 trade protocol",
		"bisq1 arbitration",
		"wallet seed restore",
	})
	if err != nil {
		t.Fatalf("UpdateAndSave() error = %v", err)
	}
	if stats.Documents != 3 {
		t.Fatalf("stats.Documents = %d, want 3", stats.Documents)
	}

	// One batch write means no backups appear for a fresh snapshot and the
	// file reflects all three documents.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected single write, found %d files", len(entries))
	}

	restored := NewTokenizer(NewVocabulary(0))
	if _, err := m.Load(restored); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if restored.Vocabulary().NumDocuments() != 3 {
		t.Fatalf("restored document count = %d, want 3", restored.Vocabulary().NumDocuments())
	}
}

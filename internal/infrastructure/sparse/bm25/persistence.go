package bm25

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// SnapshotManager stores a tokenizer's vocabulary snapshot as one JSON file.
// Writes go to a temp file in the target directory and are renamed into
// place, so a crash mid-write never leaves a truncated snapshot and
// concurrent savers from separate processes cannot corrupt the file (last
// writer wins).
type SnapshotManager struct {
	path         string
	backupOnSave bool
}

func NewSnapshotManager(path string, backupOnSave bool) *SnapshotManager {
	return &SnapshotManager{
		path:         path,
		backupOnSave: backupOnSave,
	}
}

func (m *SnapshotManager) Path() string {
	return m.path
}

// Save serializes the tokenizer's vocabulary and atomically replaces the
// snapshot file. When backups are enabled the previous snapshot is copied to
// a timestamped .bak sibling first.
func (m *SnapshotManager) Save(t *Tokenizer) error {
	serialized, err := t.ExportVocabulary()
	if err != nil {
		return err
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	if m.backupOnSave {
		if err := m.backupExisting(); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(m.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(serialized); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Load restores the tokenizer's vocabulary from disk. A missing snapshot is
// a normal cold start: the tokenizer is left empty and Load reports false.
func (m *SnapshotManager) Load(t *Tokenizer) (bool, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read snapshot: %w", err)
	}
	if err := t.LoadVocabulary(string(data)); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateAndSave indexes a batch of documents and persists the vocabulary
// once. Batch imports must trigger exactly one disk write, not one per
// document.
func (m *SnapshotManager) UpdateAndSave(t *Tokenizer, documents []string) (UpdateStats, error) {
	stats, err := t.UpdateVocabulary(documents)
	if err != nil {
		return stats, err
	}
	if err := m.Save(t); err != nil {
		return stats, err
	}
	return stats, nil
}

func (m *SnapshotManager) backupExisting() error {
	src, err := os.Open(m.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open snapshot for backup: %w", err)
	}
	defer src.Close()

	backupPath := fmt.Sprintf("%s.%s.bak", m.path, time.Now().UTC().Format("20060102T150405"))
	dst, err := os.Create(backupPath)
	if err != nil {
		return fmt.Errorf("create snapshot backup: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy snapshot backup: %w", err)
	}
	return nil
}

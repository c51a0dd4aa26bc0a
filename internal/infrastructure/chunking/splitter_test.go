package chunking

import (
	"strings"
	"testing"
)

func TestSplitEmptyText(t *testing.T) {
	s := NewSplitter(900, 150)
	if chunks := s.Split(""); chunks != nil {
		t.Fatalf("expected nil for empty text, got %v", chunks)
	}
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	s := NewSplitter(900, 150)
	chunks := s.Split("open a dispute from the trade screen")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
}

func TestSplitOverlapsConsecutiveChunks(t *testing.T) {
	s := NewSplitter(10, 4)
	text := "abcdefghijklmnopqrstuvwxyz"
	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		tail := chunks[i-1][len(chunks[i-1])-4:]
		if !strings.HasPrefix(chunks[i], tail) {
			t.Fatalf("chunk %d does not overlap previous: %q then %q", i, chunks[i-1], chunks[i])
		}
	}
}

func TestSplitHandlesMultibyteRunes(t *testing.T) {
	s := NewSplitter(5, 0)
	chunks := s.Split("привет мир биткоин")
	for i, c := range chunks {
		if strings.ContainsRune(c, '�') {
			t.Fatalf("chunk %d contains a broken rune: %q", i, c)
		}
	}
}

func TestNewSplitterClampsOverlap(t *testing.T) {
	s := NewSplitter(100, 100)
	if s.Overlap >= s.ChunkSize {
		t.Fatalf("overlap %d not clamped below chunk size %d", s.Overlap, s.ChunkSize)
	}
}

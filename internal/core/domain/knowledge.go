package domain

import "time"

type EntryStatus string

const (
	StatusReceived   EntryStatus = "received"
	StatusProcessing EntryStatus = "processing"
	StatusReady      EntryStatus = "ready"
	StatusFailed     EntryStatus = "failed"
)

// Source version tags carried in document metadata. The knowledge base mixes
// content about two application generations plus version-agnostic material.
const (
	VersionBisq2   = "bisq2"
	VersionBisq1   = "bisq1"
	VersionGeneral = "general"
)

// Source types for knowledge entries.
const (
	SourceFAQ  = "faq"
	SourceWiki = "wiki"
)

// KnowledgeEntry is one ingested FAQ answer or wiki section.
type KnowledgeEntry struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Section   string      `json:"section,omitempty"`
	Body      string      `json:"body"`
	Version   string      `json:"version"`
	Source    string      `json:"source"`
	Status    EntryStatus `json:"status"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

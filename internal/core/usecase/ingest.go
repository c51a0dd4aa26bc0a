package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bisq-network/support-agent/internal/core/domain"
	"github.com/bisq-network/support-agent/internal/core/ports"
)

// IngestKnowledgeUseCase accepts new knowledge entries, persists them and
// publishes an event per entry for asynchronous indexing.
type IngestKnowledgeUseCase struct {
	repo  ports.KnowledgeRepository
	queue ports.MessageQueue
}

func NewIngestKnowledgeUseCase(
	repo ports.KnowledgeRepository,
	queue ports.MessageQueue,
) *IngestKnowledgeUseCase {
	return &IngestKnowledgeUseCase{
		repo:  repo,
		queue: queue,
	}
}

func (uc *IngestKnowledgeUseCase) Ingest(ctx context.Context, entry domain.KnowledgeEntry) (*domain.KnowledgeEntry, error) {
	if err := validateEntry(entry); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry.ID = uuid.NewString()
	entry.Version = normalizeVersion(entry.Version)
	entry.Source = normalizeSource(entry.Source)
	entry.Status = domain.StatusReceived
	entry.CreatedAt = now
	entry.UpdatedAt = now

	if err := uc.repo.Create(ctx, &entry); err != nil {
		return nil, fmt.Errorf("create knowledge entry: %w", err)
	}
	if err := uc.queue.PublishEntryIngested(ctx, entry.ID); err != nil {
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}
	return &entry, nil
}

// IngestBatch ingests entries one by one and stops at the first failure,
// returning the entries accepted so far alongside the error.
func (uc *IngestKnowledgeUseCase) IngestBatch(ctx context.Context, entries []domain.KnowledgeEntry) ([]domain.KnowledgeEntry, error) {
	accepted := make([]domain.KnowledgeEntry, 0, len(entries))
	for i, entry := range entries {
		created, err := uc.Ingest(ctx, entry)
		if err != nil {
			return accepted, fmt.Errorf("entry %d: %w", i, err)
		}
		accepted = append(accepted, *created)
	}
	return accepted, nil
}

func validateEntry(entry domain.KnowledgeEntry) error {
	if strings.TrimSpace(entry.Title) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "ingest entry", errors.New("empty title"))
	}
	if strings.TrimSpace(entry.Body) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "ingest entry", errors.New("empty body"))
	}
	return nil
}

func normalizeVersion(version string) string {
	switch strings.ToLower(strings.TrimSpace(version)) {
	case domain.VersionBisq1:
		return domain.VersionBisq1
	case domain.VersionBisq2:
		return domain.VersionBisq2
	default:
		return domain.VersionGeneral
	}
}

func normalizeSource(source string) string {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case domain.SourceWiki:
		return domain.SourceWiki
	default:
		return domain.SourceFAQ
	}
}

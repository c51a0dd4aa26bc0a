package usecase

import (
	"context"
	"fmt"

	"github.com/bisq-network/support-agent/internal/core/domain"
	"github.com/bisq-network/support-agent/internal/core/ports"
)

// AnswerUseCase turns a support question into an answer: version-priority
// retrieval, prompt-context formatting, generation. Retrieval failures
// degrade to an answer with no sources; generation failures are real errors.
type AnswerUseCase struct {
	retriever *VersionRetriever
	generator ports.AnswerGenerator
}

func NewAnswerUseCase(retriever *VersionRetriever, generator ports.AnswerGenerator) *AnswerUseCase {
	return &AnswerUseCase{
		retriever: retriever,
		generator: generator,
	}
}

func (uc *AnswerUseCase) Answer(ctx context.Context, question string, limit int) (*domain.Answer, error) {
	if limit <= 0 {
		limit = defaultRetrieveLimit
	}

	detected := DetectQueryVersion(question)
	docs, scores := uc.retriever.RetrieveWithScores(ctx, question, detected)
	if len(docs) > limit {
		docs = docs[:limit]
		scores = scores[:limit]
	}

	answerText, err := uc.generator.GenerateAnswer(ctx, question, FormatDocuments(docs))
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	sources := make([]domain.RetrievedDocument, 0, len(docs))
	for i, doc := range docs {
		sources = append(sources, domain.RetrievedDocument{
			Content:  doc.Content,
			Metadata: doc.Metadata,
			Score:    scores[i],
		})
	}

	return &domain.Answer{
		Text:       answerText,
		Sources:    sources,
		Confidence: ConfidenceFromScores(scores),
	}, nil
}

package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bisq-network/support-agent/internal/core/domain"
)

type ingestorFake struct {
	entries  []domain.KnowledgeEntry
	err      error
	batchErr error
}

func (f *ingestorFake) Ingest(_ context.Context, entry domain.KnowledgeEntry) (*domain.KnowledgeEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	entry.ID = "generated-id"
	entry.Status = domain.StatusReceived
	f.entries = append(f.entries, entry)
	return &entry, nil
}

func (f *ingestorFake) IngestBatch(ctx context.Context, entries []domain.KnowledgeEntry) ([]domain.KnowledgeEntry, error) {
	var accepted []domain.KnowledgeEntry
	for _, e := range entries {
		created, err := f.Ingest(ctx, e)
		if err != nil {
			return accepted, err
		}
		if f.batchErr != nil && len(accepted) == 1 {
			return accepted, f.batchErr
		}
		accepted = append(accepted, *created)
	}
	return accepted, nil
}

type answererFake struct {
	answer *domain.Answer
	err    error

	lastQuestion string
	lastLimit    int
}

func (f *answererFake) Answer(_ context.Context, question string, limit int) (*domain.Answer, error) {
	f.lastQuestion = question
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

type repoFake struct {
	entry *domain.KnowledgeEntry
	err   error
}

func (f *repoFake) Create(context.Context, *domain.KnowledgeEntry) error { return nil }

func (f *repoFake) GetByID(_ context.Context, id string) (*domain.KnowledgeEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entry, nil
}

func (f *repoFake) UpdateStatus(context.Context, string, domain.EntryStatus, string) error {
	return nil
}

func (f *repoFake) ListByStatus(context.Context, domain.EntryStatus) ([]domain.KnowledgeEntry, error) {
	return nil, nil
}

type pointStoreFake struct {
	exists bool
	err    error
}

func (f *pointStoreFake) UpsertChunks(context.Context, *domain.KnowledgeEntry, []string, [][]float32, []domain.SparseVector) error {
	return nil
}

func (f *pointStoreFake) SearchDense(context.Context, []float32, int, domain.SearchFilter) ([]domain.ScoredPoint, error) {
	return nil, nil
}

func (f *pointStoreFake) SearchSparse(context.Context, domain.SparseVector, int, domain.SearchFilter) ([]domain.ScoredPoint, error) {
	return nil, nil
}

func (f *pointStoreFake) CollectionExists(context.Context) (bool, error) {
	return f.exists, f.err
}

type retrieverFake struct {
	docs []domain.RetrievedDocument

	lastQuery  string
	lastK      int
	lastFilter domain.SearchFilter
}

func (f *retrieverFake) RetrieveWithScores(_ context.Context, query string, k int, filter domain.SearchFilter) []domain.RetrievedDocument {
	f.lastQuery = query
	f.lastK = k
	f.lastFilter = filter
	return f.docs
}

func newTestRouter(ingestor *ingestorFake, answerer *answererFake, repo *repoFake, points *pointStoreFake) http.Handler {
	return NewRouter(ingestor, answerer, &retrieverFake{}, repo, points, nil).Handler()
}

func TestCreateEntryAccepted(t *testing.T) {
	ingestor := &ingestorFake{}
	handler := newTestRouter(ingestor, &answererFake{}, &repoFake{}, &pointStoreFake{exists: true})

	body := `{"title":"Deposit stuck","body":"Check the wallet.","version":"bisq2","source":"faq"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/knowledge", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created domain.KnowledgeEntry
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ID != "generated-id" || created.Status != domain.StatusReceived {
		t.Fatalf("unexpected created entry: %+v", created)
	}
	if len(ingestor.entries) != 1 {
		t.Fatalf("expected 1 ingested entry, got %d", len(ingestor.entries))
	}
}

func TestCreateEntryInvalidInputMapsTo400(t *testing.T) {
	ingestor := &ingestorFake{
		err: domain.WrapError(domain.ErrInvalidInput, "ingest entry", errors.New("empty body")),
	}
	handler := newTestRouter(ingestor, &answererFake{}, &repoFake{}, &pointStoreFake{exists: true})

	req := httptest.NewRequest(http.MethodPost, "/v1/knowledge", strings.NewReader(`{"title":"x"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateEntryRejectsInvalidJSON(t *testing.T) {
	handler := newTestRouter(&ingestorFake{}, &answererFake{}, &repoFake{}, &pointStoreFake{exists: true})

	req := httptest.NewRequest(http.MethodPost, "/v1/knowledge", strings.NewReader(`not json`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestImportEntriesPartialFailureReportsAccepted(t *testing.T) {
	ingestor := &ingestorFake{
		batchErr: domain.WrapError(domain.ErrInvalidInput, "ingest entry", errors.New("entry 1")),
	}
	handler := newTestRouter(ingestor, &answererFake{}, &repoFake{}, &pointStoreFake{exists: true})

	body := `{"entries":[{"title":"a","body":"b"},{"title":"","body":""}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/knowledge/import", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp struct {
		Error    string                  `json:"error"`
		Accepted []domain.KnowledgeEntry `json:"accepted"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Accepted) != 1 || resp.Error == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestImportEntriesRequiresEntries(t *testing.T) {
	handler := newTestRouter(&ingestorFake{}, &answererFake{}, &repoFake{}, &pointStoreFake{exists: true})

	req := httptest.NewRequest(http.MethodPost, "/v1/knowledge/import", strings.NewReader(`{"entries":[]}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetEntryByIDNotFoundMapsTo404(t *testing.T) {
	repo := &repoFake{
		err: domain.WrapError(domain.ErrEntryNotFound, "get entry", errors.New("id=missing")),
	}
	handler := newTestRouter(&ingestorFake{}, &answererFake{}, repo, &pointStoreFake{exists: true})

	req := httptest.NewRequest(http.MethodGet, "/v1/knowledge/missing", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetEntryByIDReturnsEntry(t *testing.T) {
	repo := &repoFake{
		entry: &domain.KnowledgeEntry{ID: "e1", Title: "Disputes", Status: domain.StatusReady},
	}
	handler := newTestRouter(&ingestorFake{}, &answererFake{}, repo, &pointStoreFake{exists: true})

	req := httptest.NewRequest(http.MethodGet, "/v1/knowledge/e1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var entry domain.KnowledgeEntry
	if err := json.NewDecoder(rec.Body).Decode(&entry); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if entry.ID != "e1" || entry.Title != "Disputes" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestAnswerQuestionReturnsAnswerWithSources(t *testing.T) {
	answerer := &answererFake{
		answer: &domain.Answer{
			Text: "Open the trade and click open dispute.",
			Sources: []domain.RetrievedDocument{
				{Content: "dispute doc", Score: 0.9},
			},
			Confidence: 0.9,
		},
	}
	handler := newTestRouter(&ingestorFake{}, answerer, &repoFake{}, &pointStoreFake{exists: true})

	body := `{"question":"how do I open a dispute in bisq 2?","limit":3}`
	req := httptest.NewRequest(http.MethodPost, "/v1/support/query", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if answerer.lastLimit != 3 {
		t.Fatalf("limit = %d, want 3", answerer.lastLimit)
	}
	var answer domain.Answer
	if err := json.NewDecoder(rec.Body).Decode(&answer); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(answer.Sources) != 1 || answer.Confidence != 0.9 {
		t.Fatalf("unexpected answer: %+v", answer)
	}
}

func TestRetrieveDocumentsPassesVersionFilter(t *testing.T) {
	retriever := &retrieverFake{
		docs: []domain.RetrievedDocument{{Content: "doc", Score: 0.7}},
	}
	handler := NewRouter(&ingestorFake{}, &answererFake{}, retriever, &repoFake{}, &pointStoreFake{exists: true}, nil).Handler()

	body := `{"query":"trade stuck","limit":4,"version":"Bisq2"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/support/retrieve", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if retriever.lastK != 4 || retriever.lastQuery != "trade stuck" {
		t.Fatalf("unexpected retrieval call: k=%d query=%q", retriever.lastK, retriever.lastQuery)
	}
	if retriever.lastFilter.Must["version"] != "bisq2" {
		t.Fatalf("expected lowercased version filter, got %+v", retriever.lastFilter)
	}
	var resp struct {
		Documents []domain.RetrievedDocument `json:"documents"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Documents) != 1 {
		t.Fatalf("expected 1 document, got %d", len(resp.Documents))
	}
}

func TestRetrieveDocumentsRequiresQuery(t *testing.T) {
	handler := newTestRouter(&ingestorFake{}, &answererFake{}, &repoFake{}, &pointStoreFake{exists: true})

	req := httptest.NewRequest(http.MethodPost, "/v1/support/retrieve", strings.NewReader(`{"query":""}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAnswerQuestionRequiresQuestion(t *testing.T) {
	handler := newTestRouter(&ingestorFake{}, &answererFake{}, &repoFake{}, &pointStoreFake{exists: true})

	req := httptest.NewRequest(http.MethodPost, "/v1/support/query", strings.NewReader(`{"question":"  "}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAnswerQuestionTemporaryFailureMapsTo503(t *testing.T) {
	answerer := &answererFake{
		err: domain.WrapError(domain.ErrTemporary, "generate answer", errors.New("model overloaded")),
	}
	handler := newTestRouter(&ingestorFake{}, answerer, &repoFake{}, &pointStoreFake{exists: true})

	body := `{"question":"how do I withdraw?"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/support/query", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHealthzReportsVectorStoreOutage(t *testing.T) {
	handler := newTestRouter(&ingestorFake{}, &answererFake{}, &repoFake{}, &pointStoreFake{exists: false})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHealthzOK(t *testing.T) {
	handler := newTestRouter(&ingestorFake{}, &answererFake{}, &repoFake{}, &pointStoreFake{exists: true})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRequestIDHeaderEchoed(t *testing.T) {
	handler := newTestRouter(&ingestorFake{}, &answererFake{}, &repoFake{}, &pointStoreFake{exists: true})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "req-42" {
		t.Fatalf("X-Request-Id = %q, want req-42", got)
	}
}

package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/bisq-network/support-agent/internal/core/domain"
	"github.com/bisq-network/support-agent/internal/core/ports"
	"github.com/bisq-network/support-agent/internal/core/usecase"
	"github.com/bisq-network/support-agent/internal/observability/metrics"
)

const serviceName = "support-api"

type Router struct {
	ingestor  ports.KnowledgeIngestor
	answerer  ports.SupportQueryService
	retriever ports.HybridRetriever
	repo      ports.KnowledgeRepository
	points    ports.PointStore
	metrics   *metrics.HTTPServerMetrics
}

func NewRouter(
	ingestor ports.KnowledgeIngestor,
	answerer ports.SupportQueryService,
	retriever ports.HybridRetriever,
	repo ports.KnowledgeRepository,
	points ports.PointStore,
	m *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		ingestor:  ingestor,
		answerer:  answerer,
		retriever: retriever,
		repo:      repo,
		points:    points,
		metrics:   m,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/knowledge", rt.createEntry)
	mux.HandleFunc("/v1/knowledge/import", rt.importEntries)
	mux.HandleFunc("/v1/knowledge/", rt.getEntryByID)
	mux.HandleFunc("/v1/support/query", rt.answerQuestion)
	mux.HandleFunc("/v1/support/retrieve", rt.retrieveDocuments)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if rt.points != nil {
		ok, err := rt.points.CollectionExists(r.Context())
		if err != nil || !ok {
			status["vector_store"] = "unavailable"
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		status["vector_store"] = "ok"
	}
	writeJSON(w, http.StatusOK, status)
}

func (rt *Router) createEntry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var entry domain.KnowledgeEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	created, err := rt.ingestor.Ingest(r.Context(), entry)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, created)
}

func (rt *Router) importEntries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Entries []domain.KnowledgeEntry `json:"entries"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.Entries) == 0 {
		writeError(w, http.StatusBadRequest, "entries are required")
		return
	}

	accepted, err := rt.ingestor.IngestBatch(r.Context(), req.Entries)
	if err != nil {
		// A partial import still reports what was accepted.
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]any{
			"error":    err.Error(),
			"accepted": accepted,
		})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": accepted})
}

func (rt *Router) getEntryByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/knowledge/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "entry id is required")
		return
	}

	entry, err := rt.repo.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (rt *Router) answerQuestion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Question string `json:"question"`
		Limit    int    `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	start := time.Now()
	answer, err := rt.answerer.Answer(r.Context(), req.Question, req.Limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordAnswer(
			serviceName,
			usecase.DetectQueryVersion(req.Question),
			len(answer.Sources),
			answer.Confidence,
			time.Since(start),
		)
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) retrieveDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Query   string `json:"query"`
		Limit   int    `json:"limit"`
		Version string `json:"version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	var filter domain.SearchFilter
	if req.Version != "" {
		filter.Must = map[string]string{"version": strings.ToLower(req.Version)}
	}

	docs := rt.retriever.RetrieveWithScores(r.Context(), req.Query, req.Limit, filter)
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, mapErrorToHTTPStatus(err), err.Error())
}

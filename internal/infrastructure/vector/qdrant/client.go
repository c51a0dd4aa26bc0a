package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bisq-network/support-agent/internal/core/domain"
)

// Named vectors carried by every point: one dense embedding and one BM25
// sparse vector.
const (
	denseVectorName  = "dense"
	sparseVectorName = "bm25"
)

// Client talks to Qdrant's HTTP API. Newer servers expose the universal
// /points/query endpoint; older ones only /points/search. The client probes
// once on first search and sticks with what worked.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int

	apiMu        sync.Mutex
	legacySearch bool
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// UpsertChunks writes one point per chunk, each carrying both named vectors
// and the payload the retrievers filter and render on.
func (c *Client) UpsertChunks(
	ctx context.Context,
	entry *domain.KnowledgeEntry,
	chunks []string,
	dense [][]float32,
	sparse []domain.SparseVector,
) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(dense) || len(chunks) != len(sparse) {
		return fmt.Errorf("chunks/vectors mismatch: %d/%d/%d", len(chunks), len(dense), len(sparse))
	}

	if err := c.ensureCollection(ctx, len(dense[0])); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  map[string]any `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(chunks))
	for i := range chunks {
		points = append(points, point{
			ID: uuid.NewString(),
			Vector: map[string]any{
				denseVectorName: dense[i],
				sparseVectorName: map[string]any{
					"indices": sparse[i].Indices,
					"values":  sparse[i].Weights,
				},
			},
			Payload: map[string]any{
				"entry_id":    entry.ID,
				"title":       entry.Title,
				"section":     entry.Section,
				"version":     entry.Version,
				"source":      entry.Source,
				"chunk_index": i,
				"content":     chunks[i],
			},
		})
	}

	body, err := json.Marshal(map[string]any{"points": points})
	if err != nil {
		return fmt.Errorf("marshal upsert body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	resp, err := c.do(ctx, http.MethodPut, url, body)
	if err != nil {
		return fmt.Errorf("qdrant upsert request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant upsert status: %s: %s", resp.Status, readErrorBody(resp.Body))
	}
	return nil
}

// SearchDense runs nearest-neighbor search over the dense named vector.
func (c *Client) SearchDense(
	ctx context.Context,
	vector []float32,
	limit int,
	filter domain.SearchFilter,
) ([]domain.ScoredPoint, error) {
	return c.search(ctx, denseVectorName, vector, limit, filter)
}

// SearchSparse runs nearest-neighbor search over the BM25 named vector.
func (c *Client) SearchSparse(
	ctx context.Context,
	vector domain.SparseVector,
	limit int,
	filter domain.SearchFilter,
) ([]domain.ScoredPoint, error) {
	query := map[string]any{
		"indices": vector.Indices,
		"values":  vector.Weights,
	}
	return c.search(ctx, sparseVectorName, query, limit, filter)
}

// CollectionExists checks that the backing collection is reachable.
func (c *Client) CollectionExists(ctx context.Context) (bool, error) {
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("qdrant collection check: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("qdrant collection check status: %s", resp.Status)
	}
}

func (c *Client) search(
	ctx context.Context,
	using string,
	query any,
	limit int,
	filter domain.SearchFilter,
) ([]domain.ScoredPoint, error) {
	if !c.useLegacySearch() {
		points, retryLegacy, err := c.searchQueryAPI(ctx, using, query, limit, filter)
		if err == nil {
			return points, nil
		}
		if !retryLegacy {
			return nil, err
		}
		c.markLegacySearch()
	}
	return c.searchLegacyAPI(ctx, using, query, limit, filter)
}

func (c *Client) searchQueryAPI(
	ctx context.Context,
	using string,
	query any,
	limit int,
	filter domain.SearchFilter,
) (points []domain.ScoredPoint, retryLegacy bool, err error) {
	reqBody := map[string]any{
		"query":        query,
		"using":        using,
		"limit":        limit,
		"with_payload": true,
	}
	if f := buildFilter(filter); f != nil {
		reqBody["filter"] = f
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, false, fmt.Errorf("marshal query body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/query", c.baseURL, c.collection)
	resp, err := c.do(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, false, fmt.Errorf("qdrant query request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusMethodNotAllowed {
		return nil, true, fmt.Errorf("qdrant query api unavailable: %s", resp.Status)
	}
	if resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("qdrant query status: %s: %s", resp.Status, readErrorBody(resp.Body))
	}

	var queryResp struct {
		Result struct {
			Points []rawPoint `json:"points"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&queryResp); err != nil {
		return nil, false, fmt.Errorf("decode query response: %w", err)
	}
	return toScoredPoints(queryResp.Result.Points), false, nil
}

func (c *Client) searchLegacyAPI(
	ctx context.Context,
	using string,
	query any,
	limit int,
	filter domain.SearchFilter,
) ([]domain.ScoredPoint, error) {
	reqBody := map[string]any{
		"vector": map[string]any{
			"name":   using,
			"vector": query,
		},
		"limit":        limit,
		"with_payload": true,
	}
	if f := buildFilter(filter); f != nil {
		reqBody["filter"] = f
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	resp, err := c.do(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("qdrant search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("qdrant search status: %s: %s", resp.Status, readErrorBody(resp.Body))
	}

	var searchResp struct {
		Result []rawPoint `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return toScoredPoints(searchResp.Result), nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	body, err := json.Marshal(map[string]any{
		"vectors": map[string]any{
			denseVectorName: map[string]any{
				"size":     vectorSize,
				"distance": "Cosine",
			},
		},
		"sparse_vectors": map[string]any{
			sparseVectorName: map[string]any{},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal create collection body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	resp, err := c.do(ctx, http.MethodPut, url, body)
	if err != nil {
		return fmt.Errorf("qdrant ensure collection request: %w", err)
	}
	defer resp.Body.Close()

	// 200/201 for create, 409 if already exists (depends on version/config).
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusConflict {
		return fmt.Errorf("qdrant ensure collection status: %s: %s", resp.Status, readErrorBody(resp.Body))
	}

	c.ensureMu.Lock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	c.ensureMu.Unlock()
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

func (c *Client) useLegacySearch() bool {
	c.apiMu.Lock()
	defer c.apiMu.Unlock()
	return c.legacySearch
}

func (c *Client) markLegacySearch() {
	c.apiMu.Lock()
	defer c.apiMu.Unlock()
	c.legacySearch = true
}

func buildFilter(filter domain.SearchFilter) map[string]any {
	if filter.IsZero() {
		return nil
	}
	must := make([]map[string]any, 0, len(filter.Must)+len(filter.MustAny))
	for key, value := range filter.Must {
		must = append(must, map[string]any{
			"key":   key,
			"match": map[string]any{"value": value},
		})
	}
	for key, values := range filter.MustAny {
		must = append(must, map[string]any{
			"key":   key,
			"match": map[string]any{"any": values},
		})
	}
	return map[string]any{"must": must}
}

type rawPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func toScoredPoints(raw []rawPoint) []domain.ScoredPoint {
	out := make([]domain.ScoredPoint, 0, len(raw))
	for _, p := range raw {
		out = append(out, domain.ScoredPoint{
			ID:      fmt.Sprintf("%v", p.ID),
			Score:   p.Score,
			Payload: p.Payload,
		})
	}
	return out
}

func readErrorBody(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 2048))
	return strings.TrimSpace(string(body))
}

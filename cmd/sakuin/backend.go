package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hyperjump/sakuin/internal/models"
	"github.com/hyperjump/sakuin/internal/store"
	"github.com/hyperjump/sakuin/internal/vector"
)

// backend is what the query and admin commands need. httpBackend talks to a running server
// (avoids the SQLite and Bleve lock conflict); localBackend opens storage directly.
type backend interface {
	Search(ctx context.Context, req models.SemanticSearchRequest) (*models.SemanticSearchResponse, error)
	Context(ctx context.Context, query, projectID string, maxTokens int) (*models.RAGContext, error)
	Stats(ctx context.Context) (*store.StorageStats, store.SearchPerformance, error)
	BuildKnowledgeBase(ctx context.Context, projectID string, transcriptions, documents bool) (*models.KnowledgeBase, error)
	GetKnowledgeBase(ctx context.Context, projectID string) (*models.KnowledgeBase, error)
	DeleteKnowledgeBase(ctx context.Context, projectID string) error
	ListIndices(ctx context.Context) ([]vector.IndexInfo, error)
	CreateIndex(ctx context.Context, name string, dimension int, metric string) (vector.IndexInfo, error)
	GetIndexInfo(ctx context.Context, name string) (vector.IndexInfo, error)
	DeleteIndex(ctx context.Context, name string) error
	OptimizeIndex(ctx context.Context, name string) (vector.IndexInfo, error)
}

type httpBackend struct {
	baseURL string
	client  *http.Client
}

func newHTTPBackend(baseURL string) *httpBackend {
	return &httpBackend{
		baseURL: strings.TrimRight(baseURL, "/") + "/api/v1",
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

// do sends body (when non-nil) as JSON and decodes the response into out (when non-nil).
// Non-2xx responses become errors carrying the server's error message.
func (b *httpBackend) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (b *httpBackend) Search(ctx context.Context, req models.SemanticSearchRequest) (*models.SemanticSearchResponse, error) {
	var out models.SemanticSearchResponse
	if err := b.do(ctx, http.MethodPost, "/search", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *httpBackend) Context(ctx context.Context, query, projectID string, maxTokens int) (*models.RAGContext, error) {
	body := map[string]any{"query": query, "project_id": projectID, "max_tokens": maxTokens}
	var out models.RAGContext
	if err := b.do(ctx, http.MethodPost, "/context", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *httpBackend) Stats(ctx context.Context) (*store.StorageStats, store.SearchPerformance, error) {
	var out struct {
		Storage *store.StorageStats     `json:"storage"`
		Search  store.SearchPerformance `json:"search"`
	}
	if err := b.do(ctx, http.MethodGet, "/stats", nil, &out); err != nil {
		return nil, store.SearchPerformance{}, err
	}
	return out.Storage, out.Search, nil
}

func kbPath(projectID string) string {
	return "/projects/" + url.PathEscape(projectID) + "/knowledge-base"
}

func (b *httpBackend) BuildKnowledgeBase(ctx context.Context, projectID string, transcriptions, documents bool) (*models.KnowledgeBase, error) {
	body := map[string]bool{"include_transcriptions": transcriptions, "include_documents": documents}
	var out models.KnowledgeBase
	if err := b.do(ctx, http.MethodPost, kbPath(projectID), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *httpBackend) GetKnowledgeBase(ctx context.Context, projectID string) (*models.KnowledgeBase, error) {
	var out models.KnowledgeBase
	if err := b.do(ctx, http.MethodGet, kbPath(projectID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *httpBackend) DeleteKnowledgeBase(ctx context.Context, projectID string) error {
	return b.do(ctx, http.MethodDelete, kbPath(projectID), nil, nil)
}

func (b *httpBackend) ListIndices(ctx context.Context) ([]vector.IndexInfo, error) {
	var out struct {
		Indices []vector.IndexInfo `json:"indices"`
	}
	if err := b.do(ctx, http.MethodGet, "/indices", nil, &out); err != nil {
		return nil, err
	}
	return out.Indices, nil
}

func (b *httpBackend) CreateIndex(ctx context.Context, name string, dimension int, metric string) (vector.IndexInfo, error) {
	body := map[string]any{"dimension": dimension, "metric": metric}
	var out vector.IndexInfo
	err := b.do(ctx, http.MethodPost, "/indices/"+url.PathEscape(name), body, &out)
	return out, err
}

func (b *httpBackend) GetIndexInfo(ctx context.Context, name string) (vector.IndexInfo, error) {
	var out vector.IndexInfo
	err := b.do(ctx, http.MethodGet, "/indices/"+url.PathEscape(name), nil, &out)
	return out, err
}

func (b *httpBackend) DeleteIndex(ctx context.Context, name string) error {
	return b.do(ctx, http.MethodDelete, "/indices/"+url.PathEscape(name), nil, nil)
}

func (b *httpBackend) OptimizeIndex(ctx context.Context, name string) (vector.IndexInfo, error) {
	var out vector.IndexInfo
	err := b.do(ctx, http.MethodPost, "/indices/"+url.PathEscape(name)+"/optimize", nil, &out)
	return out, err
}

// localBackend serves commands from in-process components.
type localBackend struct {
	c *Components
}

func (b localBackend) Search(ctx context.Context, req models.SemanticSearchRequest) (*models.SemanticSearchResponse, error) {
	return b.c.RAG.SemanticSearch(ctx, req.Query, req.Filters, req.Options)
}

func (b localBackend) Context(ctx context.Context, query, projectID string, maxTokens int) (*models.RAGContext, error) {
	return b.c.RAG.GetRelevantContext(ctx, query, projectID, maxTokens)
}

func (b localBackend) Stats(ctx context.Context) (*store.StorageStats, store.SearchPerformance, error) {
	st, err := b.c.Store.GetStorageStats(ctx)
	if err != nil {
		return nil, store.SearchPerformance{}, err
	}
	return st, b.c.Store.GetSearchPerformance(), nil
}

func (b localBackend) BuildKnowledgeBase(ctx context.Context, projectID string, transcriptions, documents bool) (*models.KnowledgeBase, error) {
	return b.c.Knowledge.BuildKnowledgeBase(ctx, projectID, transcriptions, documents)
}

func (b localBackend) GetKnowledgeBase(ctx context.Context, projectID string) (*models.KnowledgeBase, error) {
	return b.c.Knowledge.GetKnowledgeBase(ctx, projectID)
}

func (b localBackend) DeleteKnowledgeBase(ctx context.Context, projectID string) error {
	return b.c.Knowledge.DeleteKnowledgeBase(ctx, projectID)
}

func (b localBackend) ListIndices(ctx context.Context) ([]vector.IndexInfo, error) {
	return b.c.Store.ListIndices(ctx)
}

func (b localBackend) CreateIndex(ctx context.Context, name string, dimension int, metric string) (vector.IndexInfo, error) {
	m, err := vector.ParseMetric(metric)
	if err != nil {
		return vector.IndexInfo{}, models.InvalidInputf("%v", err)
	}
	return b.c.Store.CreateIndex(ctx, name, dimension, m, nil)
}

func (b localBackend) GetIndexInfo(ctx context.Context, name string) (vector.IndexInfo, error) {
	return b.c.Store.GetIndexInfo(ctx, name)
}

func (b localBackend) DeleteIndex(ctx context.Context, name string) error {
	return b.c.Store.DeleteIndex(ctx, name)
}

func (b localBackend) OptimizeIndex(ctx context.Context, name string) (vector.IndexInfo, error) {
	return b.c.Store.OptimizeIndex(ctx, name)
}

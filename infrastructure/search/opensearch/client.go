// Package opensearch is a typed JSON client for the artist search index.
package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tattoo-datasync/application/ports"
	"tattoo-datasync/domain/records"
	apperrors "tattoo-datasync/pkg/errors"
)

// Config configures a Client.
type Config struct {
	Endpoint string
	Index    string
	// Timeout bounds every request, including reading the response.
	Timeout time.Duration
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64
	RateBurst int
	Tracing   bool
}

// Client implements ports.SearchIndex over the OpenSearch REST API.
type Client struct {
	baseURL string
	index   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ ports.SearchIndex = (*Client)(nil)

// NewClient creates a search index client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	if cfg.Tracing {
		httpClient = xray.Client(httpClient)
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.Endpoint, "/"),
		index:   cfg.Index,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "opensearch",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Search circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c
}

type getResponse struct {
	ID     string           `json:"_id"`
	Found  bool             `json:"found"`
	Source records.Document `json:"_source"`
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string           `json:"_id"`
			Source records.Document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type countResponse struct {
	Count int64 `json:"count"`
}

// GetDocument fetches one document by id.
func (c *Client) GetDocument(ctx context.Context, id string) (*records.Document, error) {
	var resp getResponse
	err := c.doJSON(ctx, "get_document", http.MethodGet, c.docPath(id), nil, &resp)
	if err != nil {
		return nil, toAppError("get_document", fmt.Sprintf("document %s", id), err)
	}
	doc := resp.Source
	if doc.ID == "" {
		doc.ID = resp.ID
	}
	return &doc, nil
}

// PutDocument creates or replaces the document stored under id.
func (c *Client) PutDocument(ctx context.Context, id string, doc *records.Document) error {
	err := c.doJSON(ctx, "put_document", http.MethodPut, c.docPath(id), doc, nil)
	return toAppError("put_document", fmt.Sprintf("index %s", c.index), err)
}

// DeleteDocument removes a document; a missing document is a not-found
// error.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	err := c.doJSON(ctx, "delete_document", http.MethodDelete, c.docPath(id), nil, nil)
	return toAppError("delete_document", fmt.Sprintf("document %s", id), err)
}

// Search runs query and returns up to size documents. A missing index
// yields no documents. Callers decide whether a full page means truncation.
func (c *Client) Search(ctx context.Context, query map[string]interface{}, size int) ([]*records.Document, error) {
	body := map[string]interface{}{
		"query": queryOrMatchAll(query),
		"size":  size,
	}

	var resp searchResponse
	err := c.doJSON(ctx, "search", http.MethodPost, c.indexPath("/_search"), body, &resp)
	if IsNotFound(err) {
		c.logger.Warn("Search index missing; treating as empty", zap.String("index", c.index))
		return nil, nil
	}
	if err != nil {
		return nil, toAppError("search", fmt.Sprintf("index %s", c.index), err)
	}

	docs := make([]*records.Document, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		doc := hit.Source
		if doc.ID == "" {
			doc.ID = hit.ID
		}
		docs = append(docs, &doc)
	}
	return docs, nil
}

// Count returns the number of documents matching query.
func (c *Client) Count(ctx context.Context, query map[string]interface{}) (int64, error) {
	body := map[string]interface{}{"query": queryOrMatchAll(query)}

	var resp countResponse
	err := c.doJSON(ctx, "count", http.MethodPost, c.indexPath("/_count"), body, &resp)
	if IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, toAppError("count", fmt.Sprintf("index %s", c.index), err)
	}
	return resp.Count, nil
}

// Refresh makes pending writes searchable.
func (c *Client) Refresh(ctx context.Context) error {
	err := c.doJSON(ctx, "refresh", http.MethodPost, c.indexPath("/_refresh"), nil, nil)
	return toAppError("refresh", fmt.Sprintf("index %s", c.index), err)
}

// EnsureIndex creates the index with its geo mapping when it is missing.
func (c *Client) EnsureIndex(ctx context.Context) error {
	err := c.doJSON(ctx, "index_exists", http.MethodHead, c.indexPath(""), nil, nil)
	if err == nil {
		return nil
	}
	if !IsNotFound(err) {
		return toAppError("index_exists", fmt.Sprintf("index %s", c.index), err)
	}

	c.logger.Info("Creating search index", zap.String("index", c.index))
	err = c.doJSON(ctx, "create_index", http.MethodPut, c.indexPath(""), indexMapping(), nil)
	return toAppError("create_index", fmt.Sprintf("index %s", c.index), err)
}

func indexMapping() map[string]interface{} {
	keyword := map[string]interface{}{"type": "keyword"}
	date := map[string]interface{}{"type": "date"}
	return map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"id":               keyword,
				"entityType":       keyword,
				"name":             map[string]interface{}{"type": "text", "fields": map[string]interface{}{"raw": keyword}},
				"styles":           keyword,
				"studioId":         keyword,
				"location":         map[string]interface{}{"type": "geo_point"},
				"geohash":          keyword,
				"description":      map[string]interface{}{"type": "text"},
				"migrationVersion": keyword,
				"syncFingerprint":  keyword,
				"lastSynced":       date,
				"createdAt":        date,
				"updatedAt":        date,
			},
		},
	}
}

func queryOrMatchAll(query map[string]interface{}) map[string]interface{} {
	if len(query) == 0 {
		return map[string]interface{}{"match_all": map[string]interface{}{}}
	}
	return query
}

func (c *Client) indexPath(suffix string) string {
	return "/" + url.PathEscape(c.index) + suffix
}

func (c *Client) docPath(id string) string {
	return c.indexPath("/_doc/" + url.PathEscape(id))
}

// doJSON sends one request through the rate limiter and circuit breaker and
// decodes a 2xx body into out.
func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, op, method, path, in, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.NewUnavailableError("opensearch").WithCause(err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return apperrors.NewInternalError("encode " + op + " request").WithCause(err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apperrors.NewInternalError("build " + op + " request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.NewNetworkError("read "+op+" response", err)
	}

	c.logger.Debug("Search request",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Operation: op, StatusCode: resp.StatusCode, Body: truncateBody(raw)}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.NewExternalError("opensearch", fmt.Errorf("decode %s response: %w", op, err))
	}
	return nil
}

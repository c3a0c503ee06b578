package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mnemora/mnemora/engine/knowledge"
	"github.com/mnemora/mnemora/pkg/logger"
)

const (
	qdrantDefaultTimeout = 10 * time.Second
	qdrantDefaultLimit   = 10
	// tagIndexField is the payload field that gets a keyword index on every
	// newly created collection, so tag filters stay cheap.
	tagIndexField = "tags"
)

// QdrantConfig holds connection details for a qdrant deployment.
type QdrantConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

type qdrantStore struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewQdrant builds a Store backed by the qdrant HTTP API.
func NewQdrant(cfg *QdrantConfig) (Store, error) {
	if cfg == nil {
		return nil, errors.New("vectordb: qdrant config is required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if base == "" {
		return nil, errors.New("vectordb: qdrant endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = qdrantDefaultTimeout
	}
	return &qdrantStore{
		client:  &http.Client{Timeout: timeout},
		baseURL: base,
		apiKey:  cfg.APIKey,
	}, nil
}

func (q *qdrantStore) EnsureCollection(ctx context.Context, spec CollectionSpec) (bool, error) {
	if spec.Dimension <= 0 {
		return false, storeErr("ensure_collection", spec.Name, errors.New("dimension must be greater than zero"))
	}
	exists, err := q.collectionExists(ctx, spec.Name)
	if err != nil {
		return false, storeErr("ensure_collection", spec.Name, err)
	}
	if exists {
		return false, nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     spec.Dimension,
			"distance": string(chooseDistance(spec.Distance)),
			"on_disk":  spec.OnDisk,
		},
	}
	if spec.Shards > 0 {
		body["shard_number"] = spec.Shards
	}
	if err := q.doRequest(ctx, http.MethodPut, "/collections/"+spec.Name, body, nil); err != nil {
		return false, storeErr("ensure_collection", spec.Name, err)
	}
	if err := q.ensureTagIndex(ctx, spec.Name); err != nil {
		return true, storeErr("ensure_collection", spec.Name, err)
	}
	logger.FromContext(ctx).Info("created vector collection",
		"collection", spec.Name, "dimension", spec.Dimension, "distance", spec.Distance)
	return true, nil
}

func (q *qdrantStore) collectionExists(ctx context.Context, name string) (bool, error) {
	err := q.doRequest(ctx, http.MethodGet, "/collections/"+name, nil, nil)
	if err == nil {
		return true, nil
	}
	var apiErr *qdrantAPIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, err
}

func (q *qdrantStore) ensureTagIndex(ctx context.Context, collection string) error {
	body := map[string]any{
		"field_name":   tagIndexField,
		"field_schema": "keyword",
	}
	return q.doRequest(ctx, http.MethodPut, "/collections/"+collection+"/index", body, nil)
}

func chooseDistance(d knowledge.Distance) knowledge.Distance {
	switch d {
	case knowledge.DistanceDot, knowledge.DistanceEuclidean:
		return d
	default:
		return knowledge.DistanceCosine
	}
}

func (q *qdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	converted := make([]any, 0, len(points))
	for i := range points {
		converted = append(converted, map[string]any{
			"id":      points[i].ID,
			"vector":  points[i].Vector,
			"payload": points[i].Payload,
		})
	}
	body := map[string]any{"points": converted}
	err := q.doRequest(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", body, nil)
	return storeErr("upsert", collection, err)
}

func (q *qdrantStore) Search(
	ctx context.Context,
	collection string,
	vector []float32,
	filter *Filter,
	limit int,
) ([]ScoredPoint, error) {
	if limit <= 0 {
		limit = qdrantDefaultLimit
	}
	request := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if compiled := compileFilter(filter); compiled != nil {
		request["filter"] = compiled
	}
	var response struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	err := q.doRequest(ctx, http.MethodPost, "/collections/"+collection+"/points/search", request, &response)
	if err != nil {
		return nil, storeErr("search", collection, err)
	}
	points := make([]ScoredPoint, 0, len(response.Result))
	for _, res := range response.Result {
		points = append(points, ScoredPoint{
			ID:      fmt.Sprint(res.ID),
			Score:   res.Score,
			Payload: res.Payload,
		})
	}
	return points, nil
}

func (q *qdrantStore) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string]any{"points": ids}
	err := q.doRequest(ctx, http.MethodPost, "/collections/"+collection+"/points/delete?wait=true", body, nil)
	return storeErr("delete", collection, err)
}

func (q *qdrantStore) Close(context.Context) error {
	q.client.CloseIdleConnections()
	return nil
}

// compileFilter lowers the filter AST into qdrant's JSON filter syntax.
func compileFilter(filter *Filter) map[string]any {
	if filter == nil || len(filter.Must) == 0 {
		return nil
	}
	must := make([]any, 0, len(filter.Must))
	for _, cond := range filter.Must {
		switch c := cond.(type) {
		case MatchValue:
			must = append(must, map[string]any{
				"key":   c.Key,
				"match": map[string]any{"value": c.Value},
			})
		case MatchAny:
			must = append(must, map[string]any{
				"key":   c.Key,
				"match": map[string]any{"any": c.Values},
			})
		case Range:
			bounds := map[string]any{}
			if c.GTE != nil {
				bounds["gte"] = *c.GTE
			}
			if c.LTE != nil {
				bounds["lte"] = *c.LTE
			}
			must = append(must, map[string]any{
				"key":   c.Key,
				"range": bounds,
			})
		}
	}
	return map[string]any{"must": must}
}

type qdrantAPIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *qdrantAPIError) Error() string {
	return fmt.Sprintf("qdrant: %s (%d): %s", e.Message, e.StatusCode, e.Status)
}

func (q *qdrantStore) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var buf *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("qdrant: marshal request: %w", err)
		}
		buf = bytes.NewReader(payload)
	} else {
		buf = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, buf)
	if err != nil {
		return fmt.Errorf("qdrant: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant: request failed: %w", err)
	}
	defer resp.Body.Close()
	payload, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("qdrant: read response: %w", readErr)
	}
	if resp.StatusCode >= 400 {
		apiErr := &qdrantAPIError{StatusCode: resp.StatusCode}
		var decoded struct {
			Status struct {
				Error string `json:"error"`
			} `json:"status"`
		}
		if err := json.Unmarshal(payload, &decoded); err == nil {
			apiErr.Message = decoded.Status.Error
		}
		return apiErr
	}
	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("qdrant: decode response: %w", err)
		}
	}
	return nil
}

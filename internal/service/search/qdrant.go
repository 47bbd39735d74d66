package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
)

const payloadContent = "content"

// QdrantIndex stores passages in a Qdrant collection through its REST API.
type QdrantIndex struct {
	baseURL    string
	collection string
	embedder   embedding.Embedder
	httpClient *http.Client
}

func NewQdrantIndex(baseURL, collection string, embedder embedding.Embedder) *QdrantIndex {
	return &QdrantIndex{
		baseURL:    baseURL,
		collection: collection,
		embedder:   embedder,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float64      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

// EnsureCollection creates the collection with the given vector size if it
// doesn't exist.
func (q *QdrantIndex) EnsureCollection(ctx context.Context, dimension int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.baseURL+"/collections/"+q.collection, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := q.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	_, err = q.do(ctx, http.MethodPut, "/collections/"+q.collection, body)
	return err
}

// Store implements indexer.Indexer: embeds and upserts the documents.
func (q *QdrantIndex) Store(ctx context.Context, docs []*schema.Document, _ ...indexer.Option) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}
	vectors, err := q.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) == 0 {
		return nil, errors.New("embedder returned no vectors")
	}

	if err := q.EnsureCollection(ctx, len(vectors[0])); err != nil {
		return nil, err
	}

	points := make([]qdrantPoint, len(docs))
	ids := make([]string, len(docs))
	for i, doc := range docs {
		id := doc.ID
		if id == "" {
			id = chunkID(doc.Content, i)
		}
		payload := map[string]any{payloadContent: doc.Content}
		for k, v := range doc.MetaData {
			payload[k] = v
		}
		points[i] = qdrantPoint{ID: id, Vector: vectors[i], Payload: payload}
		ids[i] = id
	}

	if _, err := q.do(ctx, http.MethodPut, "/collections/"+q.collection+"/points?wait=true", map[string]any{"points": points}); err != nil {
		return nil, err
	}
	return ids, nil
}

// Retrieve implements retriever.Retriever.
func (q *QdrantIndex) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	vectors, err := q.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, errors.New("embedder returned no vectors")
	}

	body := map[string]any{
		"vector":       vectors[0],
		"limit":        topK(opts),
		"with_payload": true,
	}
	respBody, err := q.do(ctx, http.MethodPost, "/collections/"+q.collection+"/points/search", body)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	docs := make([]*schema.Document, 0, len(resp.Result))
	for _, r := range resp.Result {
		content, _ := r.Payload[payloadContent].(string)
		if content == "" {
			continue
		}
		meta := make(map[string]any, len(r.Payload))
		for k, v := range r.Payload {
			if k != payloadContent {
				meta[k] = v
			}
		}
		doc := &schema.Document{ID: fmt.Sprint(r.ID), Content: content, MetaData: meta}
		docs = append(docs, doc.WithScore(r.Score))
	}
	return docs, nil
}

func (q *QdrantIndex) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("qdrant %s %s: status %d: %s", method, path, resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
)

var ErrNoResults = errors.New("no matching passages")

// MetaSource is the document metadata key holding the corpus name.
const MetaSource = "source"

// Index stores passages and retrieves the closest ones for a query.
type Index interface {
	retriever.Retriever
	indexer.Indexer
}

// Service answers passage lookups for retrieval-backed prompts.
type Service struct {
	index    Index
	splitter *Splitter
}

// NewService wraps an index. A nil splitter uses 1000/200 chunking.
func NewService(index Index, splitter *Splitter) *Service {
	if splitter == nil {
		splitter = NewSplitter(1000, 200)
	}
	return &Service{index: index, splitter: splitter}
}

// Retrieve returns the text of the top k passages for query.
func (s *Service) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", ErrNoResults)
	}

	docs, err := s.index.Retrieve(ctx, query, retriever.WithTopK(k))
	if err != nil {
		return nil, fmt.Errorf("search passages: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrNoResults
	}

	passages := make([]string, 0, len(docs))
	for _, doc := range docs {
		passages = append(passages, doc.Content)
	}
	return passages, nil
}

// Ingest splits a corpus document and stores its chunks. It returns the
// stored chunk ids.
func (s *Service) Ingest(ctx context.Context, doc Document) ([]string, error) {
	chunks := s.splitter.Split(doc.Text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document %s has no text", doc.Name)
	}

	docs := make([]*schema.Document, 0, len(chunks))
	for i, chunk := range chunks {
		docs = append(docs, &schema.Document{
			ID:       chunkID(doc.Name, i),
			Content:  chunk,
			MetaData: map[string]any{MetaSource: doc.Name},
		})
	}

	ids, err := s.index.Store(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}
	return ids, nil
}

func topK(opts []retriever.Option) int {
	k := 4
	common := retriever.GetCommonOptions(&retriever.Options{TopK: &k}, opts...)
	if common.TopK == nil || *common.TopK <= 0 {
		return 4
	}
	return *common.TopK
}

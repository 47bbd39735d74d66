package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
)

// MemoryIndex ranks stored passages by query term overlap. It backs the
// candidate search when no vector database is configured. Like a vector
// search it always returns the nearest passages, even with no overlap.
type MemoryIndex struct {
	mu   sync.RWMutex
	docs []*schema.Document
	// terms[i] holds the distinct terms of docs[i]
	terms []map[string]struct{}
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

// Store implements indexer.Indexer. Documents with an existing id are replaced.
func (m *MemoryIndex) Store(_ context.Context, docs []*schema.Document, _ ...indexer.Option) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}

		replaced := false
		for i, existing := range m.docs {
			if existing.ID == doc.ID {
				m.docs[i] = doc
				m.terms[i] = termSet(doc.Content)
				replaced = true
				break
			}
		}
		if !replaced {
			m.docs = append(m.docs, doc)
			m.terms = append(m.terms, termSet(doc.Content))
		}
		ids = append(ids, doc.ID)
	}
	return ids, nil
}

// Retrieve implements retriever.Retriever.
func (m *MemoryIndex) Retrieve(_ context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	queryTerms := termSet(query)
	if len(queryTerms) == 0 {
		return nil, fmt.Errorf("%w: query has no terms", ErrNoResults)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		doc   *schema.Document
		score float64
	}
	var hits []scored
	for i, doc := range m.docs {
		matched := 0
		for term := range queryTerms {
			if _, ok := m.terms[i][term]; ok {
				matched++
			}
		}
		// unmatched passages still rank, after every match
		hits = append(hits, scored{doc: doc, score: float64(matched) / float64(len(queryTerms))})
	}

	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })

	k := topK(opts)
	if len(hits) > k {
		hits = hits[:k]
	}

	out := make([]*schema.Document, 0, len(hits))
	for _, hit := range hits {
		out = append(out, cloneDocument(hit.doc).WithScore(hit.score))
	}
	return out, nil
}

// Len returns the number of stored passages.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func termSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#'
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		set[f] = struct{}{}
	}
	return set
}

func chunkID(source string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s#%d", source, index))).String()
}

func cloneDocument(doc *schema.Document) *schema.Document {
	meta := make(map[string]any, len(doc.MetaData)+1)
	for k, v := range doc.MetaData {
		meta[k] = v
	}
	return &schema.Document{ID: doc.ID, Content: doc.Content, MetaData: meta}
}

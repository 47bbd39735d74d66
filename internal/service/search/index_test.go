package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceIngestAndRetrieve(t *testing.T) {
	idx := NewMemoryIndex()
	svc := NewService(idx, NewSplitter(40, 0))
	ctx := context.Background()

	ids, err := svc.Ingest(ctx, Document{
		Name: "candidates.txt",
		Text: "Alice: senior Go engineer\n\nBob: junior React developer",
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, 2, idx.Len())

	passages, err := svc.Retrieve(ctx, "Go engineer", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice: senior Go engineer"}, passages)
}

func TestServiceIngestIsIdempotent(t *testing.T) {
	idx := NewMemoryIndex()
	svc := NewService(idx, nil)
	ctx := context.Background()

	doc := Document{Name: "candidates.txt", Text: "Alice: Go"}
	_, err := svc.Ingest(ctx, doc)
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, doc)
	require.NoError(t, err)

	assert.Equal(t, 1, idx.Len())
}

func TestServiceRetrieveNoResults(t *testing.T) {
	svc := NewService(NewMemoryIndex(), nil)

	_, err := svc.Retrieve(context.Background(), "Go engineer", 3)
	assert.True(t, errors.Is(err, ErrNoResults))

	_, err = svc.Retrieve(context.Background(), "", 3)
	assert.True(t, errors.Is(err, ErrNoResults))
}

func TestServiceIngestEmptyDocument(t *testing.T) {
	svc := NewService(NewMemoryIndex(), nil)

	_, err := svc.Ingest(context.Background(), Document{Name: "empty.txt", Text: "   "})
	assert.Error(t, err)
}

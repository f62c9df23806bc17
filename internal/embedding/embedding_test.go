package embedding_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragforge/rag-mcp/internal/embedding"
)

func TestStaticEmbedder_DeterministicForSameInput(t *testing.T) {
	e := embedding.NewStaticEmbedder(32)
	v1, err := e.Embed(context.Background(), "tenant-a", "hello world")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "tenant-a", "hello world")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestStaticEmbedder_DiffersForDifferentInput(t *testing.T) {
	e := embedding.NewStaticEmbedder(32)
	v1, err := e.Embed(context.Background(), "tenant-a", "hello world")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "tenant-a", "goodbye world")
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)
}

func TestStaticEmbedder_RejectsEmptyText(t *testing.T) {
	e := embedding.NewStaticEmbedder(32)
	_, err := e.Embed(context.Background(), "tenant-a", "")
	assert.Error(t, err)
}

func TestStaticEmbedder_DefaultsDimension(t *testing.T) {
	e := embedding.NewStaticEmbedder(0)
	v, err := e.Embed(context.Background(), "tenant-a", "x")
	require.NoError(t, err)
	assert.Len(t, v, 256)
}

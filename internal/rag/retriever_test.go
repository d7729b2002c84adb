package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revisely-go/internal/model"
	"revisely-go/internal/vectorstore"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func (f *fakeEmbedder) Dimensions() int { return len(f.vector) }

type fakeStore struct {
	hits []vectorstore.ScoredChunk
	err  error
}

func (f *fakeStore) CreateOrReplace(ctx context.Context, docID string, vectors [][]float32, chunks []model.Chunk) error {
	return nil
}

func (f *fakeStore) Search(ctx context.Context, docID string, queryVector []float32, k int) ([]vectorstore.ScoredChunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	if k < len(f.hits) {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

func (f *fakeStore) Delete(ctx context.Context, docID string) error { return nil }

func TestRetrieveMapsFields(t *testing.T) {
	store := &fakeStore{hits: []vectorstore.ScoredChunk{
		{Chunk: model.Chunk{Text: "first chunk", Pages: []int{3}}, Score: 0.9},
		{Chunk: model.Chunk{Text: "second chunk", Pages: []int{7}}, Score: 0.5},
	}}
	r := NewRetriever(&fakeEmbedder{vector: []float32{1, 0}}, store, 0)

	results := r.Retrieve(context.Background(), "doc1", "query", 4)
	require.Len(t, results, 2)
	assert.Equal(t, "first chunk", results[0].Text)
	assert.Equal(t, []int{3}, results[0].Pages)
	assert.Equal(t, "first chunk", results[0].Preview)
	assert.Equal(t, 0.9, results[0].Score)
	assert.Equal(t, 0.5, results[1].Score)
}

func TestRetrieveEmptyOnEmbedFailure(t *testing.T) {
	store := &fakeStore{hits: []vectorstore.ScoredChunk{
		{Chunk: model.Chunk{Text: "chunk", Pages: []int{1}}, Score: 1},
	}}
	r := NewRetriever(&fakeEmbedder{err: errors.New("backend down")}, store, 0)

	results := r.Retrieve(context.Background(), "doc1", "query", 4)
	assert.Empty(t, results)
}

func TestRetrieveEmptyOnStoreFailure(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{vector: []float32{1}}, &fakeStore{err: errors.New("search failed")}, 0)

	results := r.Retrieve(context.Background(), "doc1", "query", 4)
	assert.Empty(t, results)
}

func TestRetrieveEmptyOnMissingIndex(t *testing.T) {
	// 索引缺失时存储返回空序列而非错误
	r := NewRetriever(&fakeEmbedder{vector: []float32{1}}, &fakeStore{}, 0)

	results := r.Retrieve(context.Background(), "never-indexed", "query", 4)
	assert.Empty(t, results)
}

func TestRetrieveMinScoreFilter(t *testing.T) {
	store := &fakeStore{hits: []vectorstore.ScoredChunk{
		{Chunk: model.Chunk{Text: "relevant", Pages: []int{1}}, Score: 0.8},
		{Chunk: model.Chunk{Text: "marginal", Pages: []int{2}}, Score: 0.3},
	}}
	r := NewRetriever(&fakeEmbedder{vector: []float32{1, 0}}, store, 0.5)

	results := r.Retrieve(context.Background(), "doc1", "query", 4)
	require.Len(t, results, 1)
	assert.Equal(t, "relevant", results[0].Text)
}

func TestRetrieveRejectsDegenerateInput(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{vector: []float32{1}}, &fakeStore{}, 0)

	assert.Empty(t, r.Retrieve(context.Background(), "", "query", 4))
	assert.Empty(t, r.Retrieve(context.Background(), "doc1", "", 4))
	assert.Empty(t, r.Retrieve(context.Background(), "doc1", "query", 0))
}

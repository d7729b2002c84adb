package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revisely-go/internal/model"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(filepath.Join(t.TempDir(), "indexes"))
	require.NoError(t, err)
	return store
}

func testChunks() ([][]float32, []model.Chunk) {
	vectors := [][]float32{
		{1, 0},
		{0.6, 0.8},
		{0, 1},
	}
	chunks := []model.Chunk{
		{Text: "aligned with query", Pages: []int{1}},
		{Text: "partially related", Pages: []int{2}},
		{Text: "orthogonal content", Pages: []int{3}},
	}
	return vectors, chunks
}

func TestLocalStoreSearchOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	vectors, chunks := testChunks()
	require.NoError(t, store.CreateOrReplace(ctx, "doc1", vectors, chunks))

	results, err := store.Search(ctx, "doc1", []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "aligned with query", results[0].Chunk.Text)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score, "得分必须非递增")
	}
}

func TestLocalStoreSearchTopK(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	vectors, chunks := testChunks()
	require.NoError(t, store.CreateOrReplace(ctx, "doc1", vectors, chunks))

	results, err := store.Search(ctx, "doc1", []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	// k 大于分块数时返回全部
	results, err = store.Search(ctx, "doc1", []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestLocalStoreMissingIndexIsEmptyNotError(t *testing.T) {
	store := newTestStore(t)

	results, err := store.Search(context.Background(), "never-indexed", []float32{1, 0}, 4)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestLocalStoreReplaceIsAtomicSwap(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	vectors, chunks := testChunks()
	require.NoError(t, store.CreateOrReplace(ctx, "doc1", vectors, chunks))

	// 重建为完全不同的内容
	newVectors := [][]float32{{0, 1}}
	newChunks := []model.Chunk{{Text: "rebuilt content", Pages: []int{9}}}
	require.NoError(t, store.CreateOrReplace(ctx, "doc1", newVectors, newChunks))

	results, err := store.Search(ctx, "doc1", []float32{0, 1}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "rebuilt content", results[0].Chunk.Text)
	assert.Equal(t, []int{9}, results[0].Chunk.Pages)
}

func TestLocalStoreRebuildDeterministic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	vectors, chunks := testChunks()

	require.NoError(t, store.CreateOrReplace(ctx, "doc1", vectors, chunks))
	first, err := store.Search(ctx, "doc1", []float32{1, 0}, 3)
	require.NoError(t, err)

	require.NoError(t, store.CreateOrReplace(ctx, "doc1", vectors, chunks))
	second, err := store.Search(ctx, "doc1", []float32{1, 0}, 3)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestLocalStorePersistsAcrossInstances(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "indexes")
	ctx := context.Background()

	store, err := NewLocalStore(dir)
	require.NoError(t, err)
	vectors, chunks := testChunks()
	require.NoError(t, store.CreateOrReplace(ctx, "doc1", vectors, chunks))

	// 新实例从磁盘加载同一索引
	reopened, err := NewLocalStore(dir)
	require.NoError(t, err)
	results, err := reopened.Search(ctx, "doc1", []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "aligned with query", results[0].Chunk.Text)
}

func TestLocalStoreDeleteIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	vectors, chunks := testChunks()
	require.NoError(t, store.CreateOrReplace(ctx, "doc1", vectors, chunks))

	require.NoError(t, store.Delete(ctx, "doc1"))
	results, err := store.Search(ctx, "doc1", []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, results)

	// 再次删除同样成功
	require.NoError(t, store.Delete(ctx, "doc1"))
	// 从未存在的文档也是成功的空操作
	require.NoError(t, store.Delete(ctx, "never-indexed"))
}

func TestLocalStoreRejectsInvalidShapes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// 向量与分块数量不一致
	err := store.CreateOrReplace(ctx, "doc1",
		[][]float32{{1, 0}},
		[]model.Chunk{{Text: "a", Pages: []int{1}}, {Text: "b", Pages: []int{2}}})
	assert.ErrorIs(t, err, ErrPersistFailure)

	// 空索引拒绝发布
	err = store.CreateOrReplace(ctx, "doc1", nil, nil)
	assert.ErrorIs(t, err, ErrPersistFailure)

	// 维度不一致
	err = store.CreateOrReplace(ctx, "doc1",
		[][]float32{{1, 0}, {1, 0, 0}},
		[]model.Chunk{{Text: "a", Pages: []int{1}}, {Text: "b", Pages: []int{2}}})
	assert.ErrorIs(t, err, ErrPersistFailure)

	// 缺少页码溯源
	err = store.CreateOrReplace(ctx, "doc1",
		[][]float32{{1, 0}},
		[]model.Chunk{{Text: "a"}})
	assert.ErrorIs(t, err, ErrPersistFailure)

	// 失败的发布不产生可检索的索引
	results, serr := store.Search(ctx, "doc1", []float32{1, 0}, 3)
	require.NoError(t, serr)
	assert.Empty(t, results)
}

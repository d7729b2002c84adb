// Package vectorstore 提供按文档隔离的向量索引存储，支持构建、持久化与 top-k 相似度检索。
package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"revisely-go/internal/model"
)

// ErrPersistFailure 表示索引写入失败。构建中止，先前索引（若有）保持可查。
var ErrPersistFailure = errors.New("vector index persist failed")

// ScoredChunk 是一次检索命中的分块及其余弦相似度得分（区间 [-1, 1]）。
type ScoredChunk struct {
	Chunk model.Chunk
	Score float64
}

// Store 是向量索引的统一契约。两种后端（本地文件索引与 Elasticsearch）
// 行为一致，区别仅在部署属性（持久性、多实例共享）。
//
// 同一 docID 任一时刻至多存在一份有效索引：CreateOrReplace 对读者原子生效，
// 发布前旧索引保持可查，发布后整体切换，并发读绝不会看到半写状态。
type Store interface {
	// CreateOrReplace 为 docID 发布一份全新索引，向量与分块按位置一一对应。
	CreateOrReplace(ctx context.Context, docID string, vectors [][]float32, chunks []model.Chunk) error
	// Search 返回至多 k 个最近邻，按得分降序排列，同分保持插入顺序。
	// docID 没有索引时返回空序列而非错误：首次上传完成索引前这是预期状态。
	Search(ctx context.Context, docID string, queryVector []float32, k int) ([]ScoredChunk, error)
	// Delete 删除 docID 的全部向量与元数据。删除不存在的索引是成功的空操作。
	Delete(ctx context.Context, docID string) error
}

// validate 在存储边界校验向量与分块的形状，而不是假设上游自觉遵守。
func validate(docID string, vectors [][]float32, chunks []model.Chunk) error {
	if docID == "" {
		return fmt.Errorf("empty document id")
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("vectors(%d) and chunks(%d) length mismatch", len(vectors), len(chunks))
	}
	if len(vectors) == 0 {
		return fmt.Errorf("refusing to publish an empty index for document %s", docID)
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("vector %d dimension %d differs from %d", i, len(v), dim)
		}
	}
	for i, c := range chunks {
		if len(c.Pages) == 0 {
			return fmt.Errorf("chunk %d has no page provenance", i)
		}
	}
	return nil
}

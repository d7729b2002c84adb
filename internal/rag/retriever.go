package rag

import (
	"context"

	"revisely-go/internal/model"
	"revisely-go/internal/vectorstore"
	"revisely-go/pkg/embedding"
	"revisely-go/pkg/log"
)

// Retriever 对单个文档的向量索引执行查询时检索。
// 检索是只读路径：任何内部失败都降级为空结果，由上层走无依据兜底，
// 绝不把错误冒泡成对话失败。
type Retriever struct {
	embedder embedding.Client
	store    vectorstore.Store
	minScore float64
}

// NewRetriever 创建检索器。minScore 为 0 时不做相似度过滤。
func NewRetriever(embedder embedding.Client, store vectorstore.Store, minScore float64) *Retriever {
	return &Retriever{
		embedder: embedder,
		store:    store,
		minScore: minScore,
	}
}

// Retrieve 返回与 query 最相似的至多 k 个分块，按相似度降序。
// 文档没有索引、嵌入服务不可用或检索失败时返回空序列。
func (r *Retriever) Retrieve(ctx context.Context, docID string, query string, k int) []model.RetrievalResult {
	if docID == "" || query == "" || k <= 0 {
		return nil
	}

	queryVector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		// 查询向量不可得时宁可空手而归，也不用零向量做无意义检索
		log.Warnf("[Retriever] 查询向量化失败, 降级为空结果: docID=%s, err=%v", docID, err)
		return nil
	}

	hits, err := r.store.Search(ctx, docID, queryVector, k)
	if err != nil {
		log.Warnf("[Retriever] 向量检索失败, 降级为空结果: docID=%s, err=%v", docID, err)
		return nil
	}

	results := make([]model.RetrievalResult, 0, len(hits))
	for _, hit := range hits {
		if r.minScore > 0 && hit.Score < r.minScore {
			continue
		}
		results = append(results, model.RetrievalResult{
			Text:    hit.Chunk.Text,
			Pages:   hit.Chunk.Pages,
			Preview: hit.Chunk.Preview(),
			Score:   hit.Score,
		})
	}
	return results
}

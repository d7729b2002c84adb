package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"revisely-go/internal/model"
	"revisely-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// EsStore 是基于 Elasticsearch 的向量索引后端，适合本地磁盘不共享的多实例部署。
// 每个文档对应一个代次索引（rag_doc_<id>_<gen>）与一个稳定别名（rag_doc_<id>）；
// 发布即原子切换别名，读者只会命中旧代次或新代次，绝无混合。
type EsStore struct {
	client *elasticsearch.Client
	prefix string
}

// NewEsStore 创建 Elasticsearch 向量索引存储。
func NewEsStore(client *elasticsearch.Client, indexPrefix string) *EsStore {
	if indexPrefix == "" {
		indexPrefix = "rag_doc"
	}
	return &EsStore{client: client, prefix: indexPrefix}
}

// esChunkDoc 是写入 Elasticsearch 的分块文档结构。
type esChunkDoc struct {
	ChunkID     int       `json:"chunk_id"`
	TextContent string    `json:"text_content"`
	Pages       []int     `json:"pages"`
	Vector      []float32 `json:"vector"`
}

func (s *EsStore) alias(docID string) string {
	return fmt.Sprintf("%s_%s", s.prefix, strings.ToLower(docID))
}

// CreateOrReplace 建立新代次索引、写入全部分块后原子切换别名，最后清理旧代次。
func (s *EsStore) CreateOrReplace(ctx context.Context, docID string, vectors [][]float32, chunks []model.Chunk) error {
	if err := validate(docID, vectors, chunks); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistFailure, err)
	}

	alias := s.alias(docID)
	generation := fmt.Sprintf("%s_%d", alias, time.Now().UnixNano())

	if err := s.createIndex(ctx, generation, len(vectors[0])); err != nil {
		return fmt.Errorf("%w: create index: %v", ErrPersistFailure, err)
	}

	for i := range chunks {
		doc := esChunkDoc{
			ChunkID:     i,
			TextContent: chunks[i].Text,
			Pages:       chunks[i].Pages,
			Vector:      vectors[i],
		}
		docBytes, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("%w: marshal chunk %d: %v", ErrPersistFailure, i, err)
		}
		req := esapi.IndexRequest{
			Index:      generation,
			DocumentID: fmt.Sprintf("%s_%d", docID, i),
			Body:       bytes.NewReader(docBytes),
		}
		res, err := req.Do(ctx, s.client)
		if err != nil {
			return fmt.Errorf("%w: index chunk %d: %v", ErrPersistFailure, i, err)
		}
		res.Body.Close()
		if res.IsError() {
			return fmt.Errorf("%w: index chunk %d: %s", ErrPersistFailure, i, res.String())
		}
	}

	if res, err := s.client.Indices.Refresh(s.client.Indices.Refresh.WithContext(ctx), s.client.Indices.Refresh.WithIndex(generation)); err == nil {
		res.Body.Close()
	}

	previous, err := s.backingIndices(ctx, alias)
	if err != nil {
		return fmt.Errorf("%w: resolve alias: %v", ErrPersistFailure, err)
	}

	// 别名切换是单次原子请求：移除旧代次、指向新代次同时生效
	if err := s.swapAlias(ctx, alias, previous, generation); err != nil {
		return fmt.Errorf("%w: publish alias: %v", ErrPersistFailure, err)
	}

	for _, old := range previous {
		if res, derr := s.client.Indices.Delete([]string{old}, s.client.Indices.Delete.WithContext(ctx)); derr == nil {
			res.Body.Close()
		} else {
			// 旧代次删除失败只影响磁盘占用，不影响正确性
			log.Warnf("[EsStore] 清理旧索引 %s 失败: %v", old, derr)
		}
	}

	log.Infof("[EsStore] 文档 %s 的索引已发布, 代次: %s, 分块数: %d", docID, generation, len(chunks))
	return nil
}

// Search 对 docID 的别名执行 kNN 余弦检索。别名不存在返回空序列。
func (s *EsStore) Search(ctx context.Context, docID string, queryVector []float32, k int) ([]ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}

	query := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   queryVector,
			"k":              k,
			"num_candidates": k * 10,
		},
		"size": k,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.alias(docID)),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	// 索引尚未建立是预期状态，不是错误
	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("elasticsearch returned an error: %s", string(bodyBytes))
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source esChunkDoc `json:"_source"`
				Score  float64    `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	results := make([]ScoredChunk, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		results = append(results, ScoredChunk{
			Chunk: model.Chunk{Text: hit.Source.TextContent, Pages: hit.Source.Pages},
			// ES 对 cosine 的 _score 为 (1+cos)/2，换算回 [-1,1] 保持契约一致
			Score: 2*hit.Score - 1,
		})
	}
	return results, nil
}

// Delete 删除 docID 别名背后的全部代次索引。幂等。
func (s *EsStore) Delete(ctx context.Context, docID string) error {
	indices, err := s.backingIndices(ctx, s.alias(docID))
	if err != nil {
		return fmt.Errorf("解析文档索引别名失败: %w", err)
	}
	if len(indices) == 0 {
		return nil
	}
	res, err := s.client.Indices.Delete(indices, s.client.Indices.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("删除文档索引失败: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("删除文档索引失败: %s", res.String())
	}
	return nil
}

// createIndex 按向量维度创建代次索引。
func (s *EsStore) createIndex(ctx context.Context, name string, dims int) error {
	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"chunk_id": { "type": "integer" },
				"text_content": { "type": "text" },
				"pages": { "type": "integer" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				}
			}
		}
	}`, dims)

	res, err := s.client.Indices.Create(
		name,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch returned an error: %s", res.String())
	}
	return nil
}

// backingIndices 返回别名当前指向的全部索引名，别名不存在时返回空。
func (s *EsStore) backingIndices(ctx context.Context, alias string) ([]string, error) {
	res, err := s.client.Indices.GetAlias(
		s.client.Indices.GetAlias.WithContext(ctx),
		s.client.Indices.GetAlias.WithName(alias),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.String())
	}

	var payload map[string]json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, err
	}
	indices := make([]string, 0, len(payload))
	for name := range payload {
		indices = append(indices, name)
	}
	return indices, nil
}

// swapAlias 以单次 update-aliases 请求完成旧代次摘除与新代次挂载。
func (s *EsStore) swapAlias(ctx context.Context, alias string, previous []string, next string) error {
	actions := make([]map[string]interface{}, 0, len(previous)+1)
	for _, old := range previous {
		actions = append(actions, map[string]interface{}{
			"remove": map[string]interface{}{"index": old, "alias": alias},
		})
	}
	actions = append(actions, map[string]interface{}{
		"add": map[string]interface{}{"index": next, "alias": alias},
	})

	body, err := json.Marshal(map[string]interface{}{"actions": actions})
	if err != nil {
		return err
	}
	res, err := s.client.Indices.UpdateAliases(
		bytes.NewReader(body),
		s.client.Indices.UpdateAliases.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch returned an error: %s", res.String())
	}
	return nil
}

package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"revisely-go/internal/model"
	"revisely-go/pkg/log"
)

// localIndex 是单个文档的索引制品：分块元数据与向量按相同顺序持久化。
type localIndex struct {
	Chunks  []model.Chunk `json:"chunks"`
	Vectors [][]float32   `json:"vectors"`
}

// LocalStore 是进程内置的文件持久化平铺索引，适合单实例部署。
// 每个文档对应数据目录下的一个 JSON 制品；检索对归一化向量做暴力内积。
// 发布采用"写临时文件再原子改名"，并发读者只会看到旧版或新版，绝无混合。
type LocalStore struct {
	dataDir string

	mu    sync.RWMutex
	cache map[string]*localIndex
}

// NewLocalStore 创建本地索引存储并确保数据目录存在。
func NewLocalStore(dataDir string) (*LocalStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建向量索引目录失败: %w", err)
	}
	return &LocalStore{
		dataDir: dataDir,
		cache:   make(map[string]*localIndex),
	}, nil
}

func (s *LocalStore) indexPath(docID string) string {
	// docID 来自受信的内部标识，仍以 Base 防御路径穿越
	return filepath.Join(s.dataDir, filepath.Base(docID)+".index.json")
}

// CreateOrReplace 为 docID 发布一份全新索引。
func (s *LocalStore) CreateOrReplace(ctx context.Context, docID string, vectors [][]float32, chunks []model.Chunk) error {
	if err := validate(docID, vectors, chunks); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistFailure, err)
	}

	idx := &localIndex{Chunks: chunks, Vectors: vectors}
	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("%w: marshal index: %v", ErrPersistFailure, err)
	}

	// 先写临时文件，成功后原子改名发布；失败时旧索引保持有效
	tmp, err := os.CreateTemp(s.dataDir, filepath.Base(docID)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ErrPersistFailure, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write temp file: %v", ErrPersistFailure, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close temp file: %v", ErrPersistFailure, err)
	}
	if err := os.Rename(tmpName, s.indexPath(docID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: publish index: %v", ErrPersistFailure, err)
	}

	s.mu.Lock()
	s.cache[docID] = idx
	s.mu.Unlock()

	log.Infof("[LocalStore] 文档 %s 的索引已发布, 分块数: %d", docID, len(chunks))
	return nil
}

// Search 返回至多 k 个最近邻。索引缺失返回空序列。
func (s *LocalStore) Search(ctx context.Context, docID string, queryVector []float32, k int) ([]ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}

	idx, err := s.load(docID)
	if err != nil {
		return nil, err
	}
	if idx == nil {
		return nil, nil
	}

	scores := make([]float64, len(idx.Vectors))
	for i, v := range idx.Vectors {
		scores[i] = dot(v, queryVector)
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	// 稳定排序：同分保持插入顺序
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if k > len(order) {
		k = len(order)
	}
	results := make([]ScoredChunk, 0, k)
	for _, i := range order[:k] {
		results = append(results, ScoredChunk{Chunk: idx.Chunks[i], Score: scores[i]})
	}
	return results, nil
}

// Delete 删除 docID 的索引。幂等：不存在时视为成功。
func (s *LocalStore) Delete(ctx context.Context, docID string) error {
	s.mu.Lock()
	delete(s.cache, docID)
	s.mu.Unlock()

	if err := os.Remove(s.indexPath(docID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("删除索引文件失败: %w", err)
	}
	return nil
}

// load 返回 docID 的索引，优先走缓存，未命中时从磁盘加载。
// 索引不存在返回 (nil, nil)。
func (s *LocalStore) load(docID string) (*localIndex, error) {
	s.mu.RLock()
	idx, ok := s.cache[docID]
	s.mu.RUnlock()
	if ok {
		return idx, nil
	}

	data, err := os.ReadFile(s.indexPath(docID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取索引文件失败: %w", err)
	}

	idx = &localIndex{}
	if err := json.Unmarshal(data, idx); err != nil {
		return nil, fmt.Errorf("解析索引文件失败: %w", err)
	}

	s.mu.Lock()
	s.cache[docID] = idx
	s.mu.Unlock()
	return idx, nil
}

// dot 计算内积。向量已归一化到单位 L2 范数，内积即余弦相似度。
func dot(a []float32, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Package rag 实现了检索增强生成的核心流程：文本分块、查询检索与错误分类。
package rag

import (
	"errors"
	"fmt"

	"revisely-go/internal/vectorstore"
	"revisely-go/pkg/embedding"
	"revisely-go/pkg/llm"
)

// 核心子系统的错误分类。内部失败在各自拥有兜底逻辑的组件边界上恢复，
// 不会向上冒泡导致进程退出。后端客户端自带的哨兵错误在此统一露出，
// 便于调用方只依赖本包做 errors.Is 判定。
var (
	// ErrInvalidConfiguration 表示分块参数非法（overlap >= chunk_size），在任何工作开始前拒绝。
	ErrInvalidConfiguration = errors.New("invalid segmenter configuration")
	// ErrExtractionFailure 表示上游文本抽取失败，构建中止，不发布任何部分索引。
	ErrExtractionFailure = errors.New("text extraction failed")
	// ErrEmbeddingUnavailable 表示 Embedding 后端不可达或配置错误。
	// 构建侧中止；查询侧降级为空结果，绝不以零向量顶替。
	ErrEmbeddingUnavailable = embedding.ErrUnavailable
	// ErrIndexPersistFailure 表示向量索引写入失败，先前索引（若有）保持可查。
	ErrIndexPersistFailure = vectorstore.ErrPersistFailure
	// ErrGenerationUnavailable 表示文本生成服务暂时不可用。
	ErrGenerationUnavailable = llm.ErrUnavailable
)

// BuildError 是索引构建管道的汇总错误，记录失败发生在哪个阶段，便于日志定位。
type BuildError struct {
	Stage string // "fetch" / "extract" / "segment" / "embed" / "persist"
	Err   error
}

// Error 实现 error 接口。
func (e *BuildError) Error() string {
	return fmt.Sprintf("index build failed at stage %q: %v", e.Stage, e.Err)
}

// Unwrap 暴露底层错误以支持 errors.Is/As 判定。
func (e *BuildError) Unwrap() error {
	return e.Err
}

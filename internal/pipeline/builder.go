// Package pipeline 定义了文档索引构建的核心流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"revisely-go/internal/config"
	"revisely-go/internal/model"
	"revisely-go/internal/rag"
	"revisely-go/internal/repository"
	"revisely-go/internal/vectorstore"
	"revisely-go/pkg/embedding"
	"revisely-go/pkg/log"
	"revisely-go/pkg/pdf"
	"revisely-go/pkg/storage"
	"revisely-go/pkg/tasks"

	"github.com/minio/minio-go/v7"
)

// Builder 封装了索引构建的所有依赖和逻辑。
// 构建严格按 抓取→抽取→分块→向量化→持久化 顺序执行，任一阶段失败即整体中止，
// 绝不发布部分索引；该文档既有索引（若有）保持可查。
type Builder struct {
	pdfClient       *pdf.Client
	embeddingClient embedding.Client
	store           vectorstore.Store
	minioCfg        config.MinIOConfig
	retrievalCfg    config.RetrievalConfig
	docRepo         repository.DocumentRepository
}

// NewBuilder 创建一个新的 Builder 实例。
func NewBuilder(
	pdfClient *pdf.Client,
	embeddingClient embedding.Client,
	store vectorstore.Store,
	minioCfg config.MinIOConfig,
	retrievalCfg config.RetrievalConfig,
	docRepo repository.DocumentRepository,
) *Builder {
	return &Builder{
		pdfClient:       pdfClient,
		embeddingClient: embeddingClient,
		store:           store,
		minioCfg:        minioCfg,
		retrievalCfg:    retrievalCfg,
		docRepo:         docRepo,
	}
}

// Process 是索引构建的主函数，实现 kafka.TaskProcessor。
func (b *Builder) Process(ctx context.Context, task tasks.IndexTask) error {
	log.Infof("[Builder] 开始构建索引, DocID: %s, FileName: %s, UserID: %d", task.DocID, task.FileName, task.UserID)

	err := b.build(ctx, task)
	if err != nil {
		var buildErr *rag.BuildError
		if errors.As(err, &buildErr) {
			log.Errorf("[Builder] 索引构建失败, DocID: %s, 阶段: %s, Error: %v", task.DocID, buildErr.Stage, buildErr.Err)
		} else {
			log.Errorf("[Builder] 索引构建失败, DocID: %s, Error: %v", task.DocID, err)
		}
		if dbErr := b.docRepo.UpdateStatus(task.DocID, model.IndexStatusFailed); dbErr != nil {
			log.Errorf("[Builder] 更新文档失败状态失败, DocID: %s, Error: %v", task.DocID, dbErr)
		}
		return err
	}

	if dbErr := b.docRepo.MarkIndexed(task.DocID); dbErr != nil {
		log.Errorf("[Builder] 标记文档索引完成失败, DocID: %s, Error: %v", task.DocID, dbErr)
	}
	log.Infof("[Builder] 索引构建成功完成, DocID: %s", task.DocID)
	return nil
}

func (b *Builder) build(ctx context.Context, task tasks.IndexTask) error {
	// 1. 从 MinIO 下载文件到本地临时文件
	log.Infof("[Builder] 步骤1: 从MinIO下载文件, Bucket: %s, Object: %s", b.minioCfg.BucketName, task.ObjectName)
	scratchPath, size, err := b.fetchToScratch(ctx, task.ObjectName)
	if err != nil {
		return &rag.BuildError{Stage: "fetch", Err: err}
	}
	// 无论成败，临时文件在构建结束后清理
	defer os.Remove(scratchPath)
	log.Infof("[Builder] 步骤1: 文件下载成功, 大小: %d字节", size)
	if size == 0 {
		return &rag.BuildError{Stage: "fetch", Err: errors.New("文件内容为空")}
	}

	// 2. 使用 Tika 逐页提取文本
	log.Info("[Builder] 步骤2: 使用Tika逐页提取文本内容")
	scratch, err := os.Open(scratchPath)
	if err != nil {
		return &rag.BuildError{Stage: "extract", Err: err}
	}
	pages, err := b.pdfClient.ExtractPages(scratch)
	scratch.Close()
	if err != nil {
		return &rag.BuildError{Stage: "extract", Err: fmt.Errorf("%w: %v", rag.ErrExtractionFailure, err)}
	}
	if len(pages) == 0 {
		return &rag.BuildError{Stage: "extract", Err: fmt.Errorf("%w: 提取的文本内容为空", rag.ErrExtractionFailure)}
	}
	log.Infof("[Builder] 步骤2: 文本提取成功, 共 %d 页", len(pages))

	// 3. 逐页文本分块
	log.Infof("[Builder] 步骤3: 进行文本分块, chunkSize: %d, chunkOverlap: %d", b.retrievalCfg.ChunkSize, b.retrievalCfg.ChunkOverlap)
	chunks, err := rag.Segment(pages, b.retrievalCfg.ChunkSize, b.retrievalCfg.ChunkOverlap)
	if err != nil {
		return &rag.BuildError{Stage: "segment", Err: err}
	}
	if len(chunks) == 0 {
		return &rag.BuildError{Stage: "segment", Err: errors.New("未生成任何文本分块")}
	}
	log.Infof("[Builder] 步骤3: 文本分块完成, 共生成 %d 个分块", len(chunks))

	// 4. 批量向量化
	log.Infof("[Builder] 步骤4: 开始批量向量化 %d 个分块", len(chunks))
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}
	vectors, err := b.embeddingClient.Embed(ctx, texts)
	if err != nil {
		return &rag.BuildError{Stage: "embed", Err: err}
	}
	log.Info("[Builder] 步骤4: 向量化完成")

	// 5. 持久化并原子发布索引
	log.Info("[Builder] 步骤5: 持久化向量索引")
	if err := b.store.CreateOrReplace(ctx, task.DocID, vectors, chunks); err != nil {
		return &rag.BuildError{Stage: "persist", Err: err}
	}
	log.Info("[Builder] 步骤5: 索引发布完成")
	return nil
}

// fetchToScratch 将 MinIO 对象落到本地临时文件，返回路径与字节数。
// 大文件不适合整段驻留内存，后续抽取直接以文件流交给 Tika。
func (b *Builder) fetchToScratch(ctx context.Context, objectName string) (string, int64, error) {
	object, err := storage.MinioClient.GetObject(ctx, b.minioCfg.BucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return "", 0, fmt.Errorf("从 MinIO 下载文件失败: %w", err)
	}
	defer object.Close()

	tmp, err := os.CreateTemp("", "revisely-build-*")
	if err != nil {
		return "", 0, fmt.Errorf("创建临时文件失败: %w", err)
	}
	size, err := io.Copy(tmp, object)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("读取MinIO对象流失败: %w", err)
	}
	return tmp.Name(), size, nil
}

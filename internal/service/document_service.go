package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"time"

	"github.com/minio/minio-go/v7"

	"revisely-go/internal/config"
	"revisely-go/internal/model"
	"revisely-go/internal/repository"
	"revisely-go/internal/vectorstore"
	"revisely-go/pkg/kafka"
	"revisely-go/pkg/log"
	"revisely-go/pkg/storage"
	"revisely-go/pkg/tasks"
)

// ErrDocumentNotFound 表示文档不存在或不属于当前用户。
var ErrDocumentNotFound = errors.New("document not found")

// DocumentService 定义了文档上传与生命周期管理的接口。
type DocumentService interface {
	// Upload 接收 PDF 文件，存入对象存储并触发异步索引构建。
	Upload(ctx context.Context, fileHeader *multipart.FileHeader, userID uint) (*model.Document, error)
	// List 返回用户的全部文档及其索引状态。
	List(userID uint) ([]model.Document, error)
	// Get 返回用户的单个文档。
	Get(docID string, userID uint) (*model.Document, error)
	// Delete 删除文档：向量索引、对象存储文件与元数据记录。
	Delete(ctx context.Context, docID string, userID uint) error
	// GetDownloadURL 返回文档原始文件的预签名下载地址。
	GetDownloadURL(docID string, userID uint) (string, error)
}

type documentService struct {
	docRepo  repository.DocumentRepository
	store    vectorstore.Store
	minioCfg config.MinIOConfig
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(docRepo repository.DocumentRepository, store vectorstore.Store, minioCfg config.MinIOConfig) DocumentService {
	return &documentService{
		docRepo:  docRepo,
		store:    store,
		minioCfg: minioCfg,
	}
}

// Upload 处理文档上传：以内容 MD5 作为文档标识，上传到 MinIO 后
// 发送 Kafka 索引任务。索引构建是发后即忘的异步流程，上传立即返回。
func (s *documentService) Upload(ctx context.Context, fileHeader *multipart.FileHeader, userID uint) (*model.Document, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("打开上传文件失败: %w", err)
	}
	defer file.Close()

	// 1. 计算内容 MD5 作为 docID，同一文件重复上传会覆盖重建索引
	hasher := md5.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return nil, fmt.Errorf("计算文件MD5失败: %w", err)
	}
	docID := hex.EncodeToString(hasher.Sum(nil))
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("重置文件读取位置失败: %w", err)
	}

	// 2. 上传到 MinIO
	objectName := fmt.Sprintf("documents/%s/%s", docID, fileHeader.Filename)
	log.Infof("[DocumentService] 步骤1: 上传文件到MinIO, Bucket: %s, Object: %s", s.minioCfg.BucketName, objectName)
	_, err = storage.MinioClient.PutObject(ctx, s.minioCfg.BucketName, objectName, file, fileHeader.Size,
		minio.PutObjectOptions{ContentType: "application/pdf"})
	if err != nil {
		return nil, fmt.Errorf("上传文件到 MinIO 失败: %w", err)
	}

	// 3. 写入文档元数据。重复上传时复用既有记录并重置状态
	doc, err := s.docRepo.FindByDocID(docID)
	if err == nil {
		if doc.UserID != userID {
			return nil, errors.New("该文件已被其他用户上传")
		}
		if err := s.docRepo.UpdateStatus(docID, model.IndexStatusPending); err != nil {
			return nil, fmt.Errorf("重置文档状态失败: %w", err)
		}
		doc.Status = model.IndexStatusPending
	} else {
		doc = &model.Document{
			DocID:      docID,
			FileName:   fileHeader.Filename,
			ObjectName: objectName,
			TotalSize:  fileHeader.Size,
			UserID:     userID,
			Status:     model.IndexStatusPending,
		}
		if err := s.docRepo.Create(doc); err != nil {
			return nil, fmt.Errorf("保存文档元数据失败: %w", err)
		}
	}

	// 4. 发送索引构建任务
	log.Infof("[DocumentService] 步骤2: 发送索引构建任务, DocID: %s", docID)
	task := tasks.IndexTask{
		DocID:      docID,
		ObjectName: objectName,
		FileName:   fileHeader.Filename,
		UserID:     userID,
	}
	if err := kafka.ProduceIndexTask(task); err != nil {
		// 任务发送失败时标记文档失败，让用户可以重试上传
		log.Errorf("[DocumentService] 发送索引任务失败, DocID: %s, Error: %v", docID, err)
		if dbErr := s.docRepo.UpdateStatus(docID, model.IndexStatusFailed); dbErr != nil {
			log.Errorf("[DocumentService] 更新文档失败状态失败, DocID: %s, Error: %v", docID, dbErr)
		}
		return nil, fmt.Errorf("发送索引构建任务失败: %w", err)
	}

	return doc, nil
}

// List 返回用户的全部文档。
func (s *documentService) List(userID uint) ([]model.Document, error) {
	return s.docRepo.FindByUser(userID)
}

// Get 返回用户的单个文档，不存在或归属不符返回 ErrDocumentNotFound。
func (s *documentService) Get(docID string, userID uint) (*model.Document, error) {
	doc, err := s.docRepo.FindByDocID(docID)
	if err != nil || doc.UserID != userID {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// Delete 依次删除向量索引、对象存储文件与元数据记录。
// 索引删除是幂等的，失败时中止，避免留下"元数据没了但索引还在"的不一致。
func (s *documentService) Delete(ctx context.Context, docID string, userID uint) error {
	doc, err := s.Get(docID, userID)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, docID); err != nil {
		return fmt.Errorf("删除向量索引失败: %w", err)
	}
	if err := storage.MinioClient.RemoveObject(ctx, s.minioCfg.BucketName, doc.ObjectName, minio.RemoveObjectOptions{}); err != nil {
		// 对象删除失败只留下孤儿文件，不影响检索正确性
		log.Warnf("[DocumentService] 删除MinIO对象失败, Object: %s, Error: %v", doc.ObjectName, err)
	}
	return s.docRepo.Delete(docID)
}

// GetDownloadURL 返回有效期 1 小时的预签名下载地址。
func (s *documentService) GetDownloadURL(docID string, userID uint) (string, error) {
	doc, err := s.Get(docID, userID)
	if err != nil {
		return "", err
	}
	return storage.GetPresignedURL(s.minioCfg.BucketName, doc.ObjectName, time.Hour)
}

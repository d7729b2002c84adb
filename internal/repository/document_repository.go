package repository

import (
	"time"

	"gorm.io/gorm"

	"revisely-go/internal/model"
)

// DocumentRepository 接口定义了文档元数据的持久化操作。
type DocumentRepository interface {
	Create(doc *model.Document) error
	FindByDocID(docID string) (*model.Document, error)
	FindByUser(userID uint) ([]model.Document, error)
	UpdateStatus(docID string, status int) error
	MarkIndexed(docID string) error
	Delete(docID string) error
}

// documentRepository 是 DocumentRepository 接口的 GORM 实现。
type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Create 在数据库中创建一条新的文档记录。
func (r *documentRepository) Create(doc *model.Document) error {
	return r.db.Create(doc).Error
}

// FindByDocID 根据文档标识查找一条文档记录。
func (r *documentRepository) FindByDocID(docID string) (*model.Document, error) {
	var doc model.Document
	err := r.db.Where("doc_id = ?", docID).First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindByUser 返回某用户的全部文档，按创建时间倒序。
func (r *documentRepository) FindByUser(userID uint) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&docs).Error
	return docs, err
}

// UpdateStatus 更新文档的索引状态。
func (r *documentRepository) UpdateStatus(docID string, status int) error {
	return r.db.Model(&model.Document{}).Where("doc_id = ?", docID).
		Update("status", status).Error
}

// MarkIndexed 将文档标记为索引完成并记录完成时间。
func (r *documentRepository) MarkIndexed(docID string) error {
	now := time.Now()
	return r.db.Model(&model.Document{}).Where("doc_id = ?", docID).
		Updates(map[string]interface{}{
			"status":     model.IndexStatusReady,
			"indexed_at": &now,
		}).Error
}

// Delete 删除一条文档记录。
func (r *documentRepository) Delete(docID string) error {
	return r.db.Where("doc_id = ?", docID).Delete(&model.Document{}).Error
}

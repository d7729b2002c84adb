// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 文档索引状态。
const (
	IndexStatusPending = 0 // 已上传，索引构建中或尚未开始
	IndexStatusReady   = 1 // 索引构建成功，可进行引用问答
	IndexStatusFailed  = 2 // 最近一次索引构建失败
)

// Document 对应于数据库中的 'documents' 表。
// 它记录了每个上传的 PDF 教材的元数据和索引状态。
type Document struct {
	ID         uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	DocID      string     `gorm:"type:varchar(64);uniqueIndex;not null;column:doc_id" json:"docId"`
	FileName   string     `gorm:"type:varchar(255);not null" json:"fileName"`
	ObjectName string     `gorm:"type:varchar(255);not null" json:"-"`
	TotalSize  int64      `gorm:"not null" json:"totalSize"`
	UserID     uint       `gorm:"index;not null" json:"userId"`
	Status     int        `gorm:"type:tinyint;not null;default:0" json:"status"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	IndexedAt  *time.Time `gorm:"default:null" json:"indexedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

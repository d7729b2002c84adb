package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"revisely-go/internal/model"
	"revisely-go/internal/service"
	"revisely-go/pkg/log"
)

// DocumentHandler 负责处理文档上传与管理相关的 API 请求。
type DocumentHandler struct {
	documentService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(documentService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

// currentUser 从上下文中取出 AuthMiddleware 注入的用户对象。
func currentUser(c *gin.Context) (*model.User, bool) {
	userValue, exists := c.Get("user")
	if !exists {
		return nil, false
	}
	user, ok := userValue.(*model.User)
	return user, ok && user != nil
}

// Upload 处理 PDF 文档上传请求。索引构建异步进行，本接口立即返回。
func (h *DocumentHandler) Upload(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求：缺少 file 字段"})
		return
	}

	doc, err := h.documentService.Upload(c.Request.Context(), fileHeader, user.ID)
	if err != nil {
		log.Errorf("Upload: 文档上传失败, FileName: %s, Error: %v", fileHeader.Filename, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	log.Infof("Document '%s' uploaded by user '%s', DocID: %s", doc.FileName, user.Username, doc.DocID)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "文档上传成功，索引构建中",
		"data":    doc,
	})
}

// List 返回当前用户的全部文档及索引状态。
func (h *DocumentHandler) List(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	docs, err := h.documentService.List(user.ID)
	if err != nil {
		log.Errorf("List: 查询文档列表失败, UserID: %d, Error: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询文档列表失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": docs, "message": "success"})
}

// Get 返回单个文档的详细信息。
func (h *DocumentHandler) Get(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	doc, err := h.documentService.Get(c.Param("docId"), user.ID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "文档不存在"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": doc, "message": "success"})
}

// Delete 删除文档及其向量索引。
func (h *DocumentHandler) Delete(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	docID := c.Param("docId")
	if err := h.documentService.Delete(c.Request.Context(), docID, user.ID); err != nil {
		if errors.Is(err, service.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "文档不存在"})
			return
		}
		log.Errorf("Delete: 删除文档失败, DocID: %s, Error: %v", docID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除文档失败"})
		return
	}

	log.Infof("Document %s deleted by user '%s'", docID, user.Username)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "文档删除成功"})
}

// GetDownloadURL 返回文档原始文件的预签名下载地址。
func (h *DocumentHandler) GetDownloadURL(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	url, err := h.documentService.GetDownloadURL(c.Param("docId"), user.ID)
	if err != nil {
		if errors.Is(err, service.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "文档不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "生成下载地址失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": gin.H{"url": url}, "message": "success"})
}

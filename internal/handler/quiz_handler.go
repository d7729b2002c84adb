package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"revisely-go/internal/service"
	"revisely-go/pkg/log"
)

// QuizHandler 负责处理测验生成、答题与学习进度相关的 API 请求。
type QuizHandler struct {
	quizService service.QuizService
}

// NewQuizHandler 创建一个新的 QuizHandler 实例。
func NewQuizHandler(quizService service.QuizService) *QuizHandler {
	return &QuizHandler{quizService: quizService}
}

// GenerateRequest 定义了生成测验 API 的请求体结构。
type GenerateRequest struct {
	DocID string `json:"docId" binding:"required"`
}

// Generate 基于文档内容生成一套测验题。
func (h *QuizHandler) Generate(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载：docId 不能为空"})
		return
	}

	quiz, questions, err := h.quizService.Generate(c.Request.Context(), req.DocID, user.ID)
	if err != nil {
		if errors.Is(err, service.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "文档不存在"})
			return
		}
		log.Errorf("Generate: 生成测验失败, DocID: %s, Error: %v", req.DocID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"quizId":    quiz.ID,
			"docId":     quiz.DocID,
			"questions": questions,
			"createdAt": quiz.CreatedAt,
		},
	})
}

// List 返回当前用户的全部测验。
func (h *QuizHandler) List(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	quizzes, err := h.quizService.List(user.ID)
	if err != nil {
		log.Errorf("List: 查询测验列表失败, UserID: %d, Error: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询测验列表失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": quizzes, "message": "success"})
}

// SubmitRequest 定义了提交答题 API 的请求体结构。
type SubmitRequest struct {
	QuizID  uint  `json:"quizId" binding:"required"`
	Answers []int `json:"answers" binding:"required"`
}

// Submit 提交一次单选题作答并返回评分。
func (h *QuizHandler) Submit(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载：quizId 与 answers 不能为空"})
		return
	}

	attempt, err := h.quizService.SubmitAttempt(c.Request.Context(), req.QuizID, user.ID, req.Answers)
	if err != nil {
		if errors.Is(err, service.ErrQuizNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "测验不存在"})
			return
		}
		log.Errorf("Submit: 提交答题失败, QuizID: %d, Error: %v", req.QuizID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": attempt, "message": "success"})
}

// GetProgress 返回当前用户的学习进度记录。
func (h *QuizHandler) GetProgress(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	records, err := h.quizService.GetProgress(user.ID)
	if err != nil {
		log.Errorf("GetProgress: 查询学习进度失败, UserID: %d, Error: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询学习进度失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": records, "message": "success"})
}

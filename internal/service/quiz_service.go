package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"revisely-go/internal/model"
	"revisely-go/internal/rag"
	"revisely-go/internal/repository"
	"revisely-go/pkg/llm"
	"revisely-go/pkg/log"
)

const (
	quizContextTopK = 3
	quizMaxTokens   = 800
)

// ErrQuizNotFound 表示测验不存在或不属于当前用户。
var ErrQuizNotFound = errors.New("quiz not found")

// QuizService 定义了测验生成、答题与学习进度的接口。
type QuizService interface {
	// Generate 基于文档内容生成一套结构化测验题并持久化。
	Generate(ctx context.Context, docID string, userID uint) (*model.Quiz, *model.QuizQuestions, error)
	// List 返回用户的全部测验。
	List(userID uint) ([]model.Quiz, error)
	// SubmitAttempt 提交一次单选题作答并更新学习进度。
	SubmitAttempt(ctx context.Context, quizID uint, userID uint, answers []int) (*model.QuizAttempt, error)
	// GetProgress 返回用户的学习进度记录。
	GetProgress(userID uint) ([]model.Progress, error)
}

type quizService struct {
	retriever *rag.Retriever
	llmClient llm.Client
	quizRepo  repository.QuizRepository
	docRepo   repository.DocumentRepository
}

// NewQuizService 创建一个新的 QuizService 实例。
func NewQuizService(retriever *rag.Retriever, llmClient llm.Client, quizRepo repository.QuizRepository, docRepo repository.DocumentRepository) QuizService {
	return &quizService{
		retriever: retriever,
		llmClient: llmClient,
		quizRepo:  quizRepo,
		docRepo:   docRepo,
	}
}

// Generate 基于文档的概要内容生成测验题。
// 模型输出优先按 JSON 解析为结构化题目，解析失败时以原文兜底返回。
func (s *quizService) Generate(ctx context.Context, docID string, userID uint) (*model.Quiz, *model.QuizQuestions, error) {
	doc, err := s.docRepo.FindByDocID(docID)
	if err != nil || doc.UserID != userID {
		return nil, nil, ErrDocumentNotFound
	}

	// 以概要查询取文档代表性分块作为出题素材
	results := s.retriever.Retrieve(ctx, docID, "summary", quizContextTopK)
	if len(results) == 0 {
		return nil, nil, errors.New("文档索引尚未就绪，无法生成测验")
	}

	prompt := buildQuizPrompt(results)
	raw, err := s.llmClient.Generate(ctx, prompt, quizMaxTokens)
	if err != nil {
		return nil, nil, fmt.Errorf("生成测验题失败: %w", err)
	}

	questions := parseQuizOutput(raw)
	questionsJSON, err := json.Marshal(questions)
	if err != nil {
		return nil, nil, fmt.Errorf("序列化测验题失败: %w", err)
	}

	quiz := &model.Quiz{
		DocID:     docID,
		UserID:    userID,
		Questions: string(questionsJSON),
	}
	if err := s.quizRepo.CreateQuiz(quiz); err != nil {
		return nil, nil, fmt.Errorf("保存测验失败: %w", err)
	}

	log.Infof("[QuizService] 测验生成成功, DocID: %s, QuizID: %d, MCQ: %d, SAQ: %d, LAQ: %d",
		docID, quiz.ID, len(questions.MCQs), len(questions.SAQs), len(questions.LAQs))
	return quiz, questions, nil
}

// List 返回用户的全部测验。
func (s *quizService) List(userID uint) ([]model.Quiz, error) {
	return s.quizRepo.FindQuizzesByUser(userID)
}

// SubmitAttempt 按单选题答案索引评分，保存答题记录并更新该文档的学习进度。
// answers 按题序给出所选选项下标，缺答按 -1 处理。
func (s *quizService) SubmitAttempt(ctx context.Context, quizID uint, userID uint, answers []int) (*model.QuizAttempt, error) {
	quiz, err := s.quizRepo.FindQuizByID(quizID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrQuizNotFound
	}
	if err != nil {
		return nil, err
	}
	if quiz.UserID != userID {
		return nil, ErrQuizNotFound
	}

	var questions model.QuizQuestions
	if err := json.Unmarshal([]byte(quiz.Questions), &questions); err != nil {
		return nil, fmt.Errorf("解析测验题失败: %w", err)
	}
	if len(questions.MCQs) == 0 {
		return nil, errors.New("该测验没有可评分的单选题")
	}

	score := 0
	for i, mcq := range questions.MCQs {
		if i < len(answers) && answers[i] == mcq.AnswerIndex {
			score++
		}
	}

	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("序列化答题记录失败: %w", err)
	}
	attempt := &model.QuizAttempt{
		QuizID:  quizID,
		UserID:  userID,
		Score:   score,
		Total:   len(questions.MCQs),
		Answers: string(answersJSON),
	}
	if err := s.quizRepo.CreateAttempt(attempt); err != nil {
		return nil, fmt.Errorf("保存答题记录失败: %w", err)
	}

	accuracy := float64(score) / float64(len(questions.MCQs))
	if err := s.quizRepo.UpsertProgress(userID, quiz.DocID, accuracy); err != nil {
		// 进度更新失败不影响本次评分结果
		log.Errorf("[QuizService] 更新学习进度失败, UserID: %d, DocID: %s, Error: %v", userID, quiz.DocID, err)
	}

	return attempt, nil
}

// GetProgress 返回用户的学习进度记录。
func (s *quizService) GetProgress(userID uint) ([]model.Progress, error) {
	return s.quizRepo.FindProgressByUser(userID)
}

// buildQuizPrompt 将检索分块拼装成出题 prompt，要求模型输出固定结构的 JSON。
func buildQuizPrompt(results []model.RetrievalResult) string {
	var b strings.Builder
	b.WriteString("You are a teacher preparing a quiz. Based only on the following textbook content, ")
	b.WriteString("generate quiz questions as a single JSON object with this exact shape:\n")
	b.WriteString(`{"mcqs":[{"question":"...","options":["...","...","...","..."],"answer_index":0,"explanation":"..."}],`)
	b.WriteString(`"saqs":[{"question":"...","answer":"..."}],`)
	b.WriteString(`"laqs":[{"question":"...","outline":"..."}]}`)
	b.WriteString("\nGenerate 3 mcqs, 2 saqs and 1 laq. Output only the JSON, no other text.\n\nContent:\n")
	for _, r := range results {
		b.WriteString(r.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// parseQuizOutput 解析模型输出。模型常把 JSON 包在 markdown 代码块里，
// 先剥掉代码块再解析；仍失败时把原文放进 Raw 兜底。
func parseQuizOutput(raw string) *model.QuizQuestions {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var questions model.QuizQuestions
	if err := json.Unmarshal([]byte(cleaned), &questions); err != nil {
		log.Warnf("[QuizService] 模型输出无法解析为JSON, 以原文兜底: %v", err)
		return &model.QuizQuestions{Raw: raw}
	}
	return &questions
}

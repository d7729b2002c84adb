package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"revisely-go/internal/config"
	"revisely-go/internal/model"
	"revisely-go/internal/rag"
	"revisely-go/internal/repository"
	"revisely-go/pkg/llm"
	"revisely-go/pkg/log"
)

// 生成被拦截或为空时返回的固定文案。引用列表不受影响，仍来自检索元数据。
const blockedAnswerText = "Sorry, I couldn't generate an answer this time. Please try again."

// 上下文不足时模型应回复的固定文案，写进指令便于前端识别。
const notInTextbookText = "Not in provided textbook"

const (
	defaultTopK            = 4
	defaultMaxContextChars = 8000
	answerMaxTokens        = 600
)

// ChatService 定义了引用问答操作的接口。
type ChatService interface {
	// Answer 对指定文档执行一次完整的引用问答。
	Answer(ctx context.Context, docID, question string) (*model.AnswerResult, error)
	// StreamResponse 通过 WebSocket 流式返回答案并维护对话历史。
	StreamResponse(ctx context.Context, docID, query string, user *model.User, ws *websocket.Conn, shouldStop func() bool) error
}

type chatService struct {
	retriever        *rag.Retriever
	llmClient        llm.Client
	conversationRepo repository.ConversationRepository
	retrievalCfg     config.RetrievalConfig
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(retriever *rag.Retriever, llmClient llm.Client, conversationRepo repository.ConversationRepository, retrievalCfg config.RetrievalConfig) ChatService {
	return &chatService{
		retriever:        retriever,
		llmClient:        llmClient,
		conversationRepo: conversationRepo,
		retrievalCfg:     retrievalCfg,
	}
}

// Answer 实现引用问答：检索命中时以文档上下文作答并附带页码引用；
// 检索为空（索引缺失、嵌入不可用等）时退化为无依据直答，引用列表为空。
func (s *chatService) Answer(ctx context.Context, docID, question string) (*model.AnswerResult, error) {
	results := s.retriever.Retrieve(ctx, docID, question, s.topK())

	if len(results) == 0 {
		return s.answerUngrounded(ctx, question)
	}

	// 按相似度降序保留分块，超出上下文预算时丢弃得分最低的
	kept := s.fitContextBudget(results)
	prompt := s.buildGroundedPrompt(question, kept)
	// 引用由检索元数据确定性生成，模型漏写引用也不影响引用列表
	sources := buildSources(kept)

	answer, err := s.llmClient.Generate(ctx, prompt, answerMaxTokens)
	if errors.Is(err, llm.ErrBlockedCompletion) {
		return &model.AnswerResult{Answer: blockedAnswerText, Sources: sources}, nil
	}
	if err != nil {
		return nil, err
	}
	return &model.AnswerResult{Answer: answer, Sources: sources}, nil
}

// answerUngrounded 在没有任何检索依据时直接向模型提问，不产生引用。
func (s *chatService) answerUngrounded(ctx context.Context, question string) (*model.AnswerResult, error) {
	prompt := fmt.Sprintf("Answer this question:\n%s", question)
	answer, err := s.llmClient.Generate(ctx, prompt, answerMaxTokens)
	if errors.Is(err, llm.ErrBlockedCompletion) {
		return &model.AnswerResult{Answer: blockedAnswerText, Sources: []string{}}, nil
	}
	if err != nil {
		return nil, err
	}
	return &model.AnswerResult{Answer: answer, Sources: []string{}}, nil
}

// StreamResponse 协调 RAG 流程并流式传输 LLM 响应。
func (s *chatService) StreamResponse(ctx context.Context, docID, query string, user *model.User, ws *websocket.Conn, shouldStop func() bool) error {
	// 1. 检索上下文。检索失败已在 Retriever 内降级为空结果
	results := s.retriever.Retrieve(ctx, docID, query, s.topK())
	kept := s.fitContextBudget(results)

	// 2. 构建 system 消息与历史
	systemMsg := s.buildSystemMessage(kept)
	history, err := s.loadHistory(ctx, user.ID)
	if err != nil {
		log.Errorf("Failed to load conversation history: %v", err)
		history = []model.ChatMessage{}
	}
	messages := composeMessages(systemMsg, history, query)

	// 拦截 websocket writer 以捕获完整答案，并包装为 JSON 分块
	answerBuilder := &strings.Builder{}
	interceptor := &wsWriterInterceptor{conn: ws, writer: answerBuilder, shouldStop: shouldStop}

	// 3. 调用 LLM 客户端以流式传输响应
	llmMsgs := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		llmMsgs = append(llmMsgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	if err := s.llmClient.StreamChatMessages(ctx, llmMsgs, nil, interceptor); err != nil {
		return err
	}

	// 4. 发送引用与完成通知，并将对话保存到 Redis
	sendSources(ws, buildSources(kept))
	sendCompletion(ws)
	fullAnswer := answerBuilder.String()
	if len(fullAnswer) > 0 {
		// 使用后台上下文，因为即使原始请求被取消，我们也希望保存成功生成的答案
		if err := s.addMessageToConversation(context.Background(), user.ID, query, fullAnswer); err != nil {
			// 只记录错误，不返回给客户端，因为流式响应已经成功
			log.Errorf("Failed to save conversation history: %v", err)
		}
	}

	return nil
}

func (s *chatService) topK() int {
	if s.retrievalCfg.TopK > 0 {
		return s.retrievalCfg.TopK
	}
	return defaultTopK
}

// fitContextBudget 在上下文字符预算内保留得分最高的分块。
// 入参已按得分降序排列，从预算超限处截断即等价于优先丢弃最低分分块。
func (s *chatService) fitContextBudget(results []model.RetrievalResult) []model.RetrievalResult {
	budget := s.retrievalCfg.MaxContextChars
	if budget <= 0 {
		budget = defaultMaxContextChars
	}

	kept := make([]model.RetrievalResult, 0, len(results))
	used := 0
	for _, r := range results {
		n := len([]rune(r.Text))
		if used+n > budget && len(kept) > 0 {
			break
		}
		kept = append(kept, r)
		used += n
	}
	return kept
}

// buildGroundedPrompt 将检索分块拼装成带页码标注的问答 prompt。
func (s *chatService) buildGroundedPrompt(question string, results []model.RetrievalResult) string {
	var b strings.Builder
	b.WriteString("You are a helpful teacher. Answer the question using only the provided context. ")
	b.WriteString("Cite the pages you rely on like [p3]. ")
	b.WriteString(fmt.Sprintf("If the answer cannot be found in the context, reply exactly: %s\n\n", notInTextbookText))
	b.WriteString("Context:\n")
	for _, r := range results {
		b.WriteString(fmt.Sprintf("[%s] %s\n", pageLabel(r.Pages), r.Text))
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	return b.String()
}

// buildSystemMessage 为流式对话构建 system 消息，无检索结果时明确告知模型。
func (s *chatService) buildSystemMessage(results []model.RetrievalResult) string {
	var b strings.Builder
	b.WriteString("You are a helpful teacher. Answer based on the provided context and cite pages like [p3].\n\n")
	if len(results) == 0 {
		b.WriteString("(no retrieval results for this turn)\n")
		return b.String()
	}
	b.WriteString("Context:\n")
	for _, r := range results {
		b.WriteString(fmt.Sprintf("[%s] %s\n", pageLabel(r.Pages), r.Text))
	}
	return b.String()
}

// buildSources 从检索元数据确定性生成引用列表："p12 — <前300字符>"。
func buildSources(results []model.RetrievalResult) []string {
	sources := make([]string, 0, len(results))
	for _, r := range results {
		sources = append(sources, fmt.Sprintf("%s — %s", pageLabel(r.Pages), r.Preview))
	}
	return sources
}

// pageLabel 将升序页码序列格式化为 "p3" 或 "p3,p4"。
func pageLabel(pages []int) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		parts = append(parts, fmt.Sprintf("p%d", p))
	}
	return strings.Join(parts, ",")
}

func (s *chatService) loadHistory(ctx context.Context, userID uint) ([]model.ChatMessage, error) {
	convID, err := s.conversationRepo.GetOrCreateConversationID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.conversationRepo.GetConversationHistory(ctx, convID)
}

func composeMessages(systemMsg string, history []model.ChatMessage, userInput string) []model.ChatMessage {
	msgs := make([]model.ChatMessage, 0, len(history)+2)
	msgs = append(msgs, model.ChatMessage{Role: "system", Content: systemMsg})
	msgs = append(msgs, history...)
	msgs = append(msgs, model.ChatMessage{Role: "user", Content: userInput})
	return msgs
}

// addMessageToConversation 是一个用于管理 Redis 中对话历史的辅助函数。
func (s *chatService) addMessageToConversation(ctx context.Context, userID uint, question, answer string) error {
	conversationID, err := s.conversationRepo.GetOrCreateConversationID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get or create conversation ID: %w", err)
	}

	history, err := s.conversationRepo.GetConversationHistory(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to get conversation history: %w", err)
	}

	history = append(history, model.ChatMessage{
		Role:      "user",
		Content:   question,
		Timestamp: time.Now(),
	})
	history = append(history, model.ChatMessage{
		Role:      "assistant",
		Content:   answer,
		Timestamp: time.Now(),
	})

	return s.conversationRepo.UpdateConversationHistory(ctx, conversationID, history)
}

// wsWriterInterceptor 是对 websocket.Conn 的封装，用于捕获写入的消息。
type wsWriterInterceptor struct {
	conn       *websocket.Conn
	writer     *strings.Builder
	shouldStop func() bool
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	if w.shouldStop != nil && w.shouldStop() {
		// 停止标志生效：跳过下发
		return nil
	}
	w.writer.Write(data)
	// 将原始分块包装成 {"chunk":"..."}
	payload := map[string]string{"chunk": string(data)}
	b, _ := json.Marshal(payload)
	return w.conn.WriteMessage(messageType, b)
}

// sendSources 在流式答案之后下发引用列表。
func sendSources(ws *websocket.Conn, sources []string) {
	payload := map[string]interface{}{
		"type":    "sources",
		"sources": sources,
	}
	b, _ := json.Marshal(payload)
	_ = ws.WriteMessage(websocket.TextMessage, b)
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(ws *websocket.Conn) {
	notif := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"message":   "响应已完成",
		"timestamp": time.Now().UnixMilli(),
		"date":      time.Now().Format("2006-01-02T15:04:05"),
	}
	b, _ := json.Marshal(notif)
	_ = ws.WriteMessage(websocket.TextMessage, b)
}

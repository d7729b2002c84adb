// Package model 包含了应用的数据模型定义。
package model

import "time"

// ChatMessage 代表存储在 Redis 中的单条对话消息。
type ChatMessage struct {
	Role      string    `json:"role"` // "user" 或 "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// AnswerResult 是一次引用问答的最终结果。
// Sources 由检索元数据确定性生成，与模型输出无关，因此即使模型
// 漏写引用，引用列表依然正确。本结构不做持久化。
type AnswerResult struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

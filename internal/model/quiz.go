// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// Quiz 对应于数据库中的 'quizzes' 表。
// Questions 以 JSON 文本存储结构化的题目与答案。
type Quiz struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	DocID     string    `gorm:"type:varchar(64);index;not null;column:doc_id" json:"docId"`
	UserID    uint      `gorm:"index;not null" json:"userId"`
	Questions string    `gorm:"type:json" json:"questions"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Quiz) TableName() string {
	return "quizzes"
}

// QuizAttempt 对应于数据库中的 'quiz_attempts' 表。
type QuizAttempt struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	QuizID      uint      `gorm:"index;not null" json:"quizId"`
	UserID      uint      `gorm:"index;not null" json:"userId"`
	Score       int       `gorm:"not null" json:"score"`
	Total       int       `gorm:"not null" json:"total"`
	Answers     string    `gorm:"type:json" json:"answers"`
	AttemptedAt time.Time `gorm:"autoCreateTime" json:"attemptedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}

// Progress 对应于数据库中的 'progress' 表，按用户与文档维度记录答题正确率。
type Progress struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      uint      `gorm:"index;not null" json:"userId"`
	Topic       string    `gorm:"type:varchar(128);not null" json:"topic"`
	Accuracy    float64   `gorm:"not null;default:0" json:"accuracy"`
	LastUpdated time.Time `gorm:"autoUpdateTime" json:"lastUpdated"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Progress) TableName() string {
	return "progress"
}

// QuizQuestions 是大模型生成的结构化题目集合。
type QuizQuestions struct {
	MCQs []MCQ  `json:"mcqs"`
	SAQs []SAQ  `json:"saqs"`
	LAQs []LAQ  `json:"laqs"`
	Raw  string `json:"raw,omitempty"` // 模型输出无法解析为 JSON 时的原文兜底
}

// MCQ 是一道单选题。
type MCQ struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	AnswerIndex int      `json:"answer_index"`
	Explanation string   `json:"explanation"`
}

// SAQ 是一道简答题。
type SAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// LAQ 是一道论述题。
type LAQ struct {
	Question string `json:"question"`
	Outline  string `json:"outline"`
}

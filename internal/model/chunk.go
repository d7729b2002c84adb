// Package model 包含了应用的数据模型定义。
package model

// PreviewLen 是引用展示用的分块前缀长度（按 rune 计）。
const PreviewLen = 300

// PageText 是 PDF 抽取出的单页文本，页码从 1 开始。
type PageText struct {
	PageNo int    `json:"page_no"`
	Text   string `json:"text"`
}

// Chunk 是文档抽取文本中的一个连续片段，检索的最小单元。
// 分块在索引构建时一次性生成，此后不可变，重建索引时整体替换。
type Chunk struct {
	Text  string `json:"text"`
	Pages []int  `json:"pages"` // 升序排列的 1 基页码，非空
}

// Preview 返回用于引用展示的定长前缀。派生字段，按需计算，不单独持久化。
func (c Chunk) Preview() string {
	runes := []rune(c.Text)
	if len(runes) <= PreviewLen {
		return c.Text
	}
	return string(runes[:PreviewLen])
}

// RetrievalResult 是单次查询返回的一个带相似度得分的分块，仅存在于请求期间。
type RetrievalResult struct {
	Text    string  `json:"text"`
	Pages   []int   `json:"pages"`
	Preview string  `json:"preview"`
	Score   float64 `json:"score"`
}

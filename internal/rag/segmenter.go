package rag

import (
	"strings"

	"revisely-go/internal/model"
)

// Segment 将按页组织的抽取文本切分为带页码标记的重叠分块。
//
// 切分逐页进行：页内文本按 chunkSize 个 rune 开窗，窗口起点每次前进
// chunkSize-overlap，相邻分块因此重叠 overlap 个 rune 以保持上下文连续。
// 分块绝不跨页，换取更简单的页级溯源。trim 后为空的页不产生分块。
// 纯函数：相同输入永远得到相同的分块序列。
func Segment(pages []model.PageText, chunkSize, overlap int) ([]model.Chunk, error) {
	if chunkSize <= 0 || overlap < 0 || overlap >= chunkSize {
		// 步长将变为非正数并导致死循环，必须作为配置错误拒绝
		return nil, ErrInvalidConfiguration
	}

	var chunks []model.Chunk
	for _, page := range pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		for _, text := range splitText(page.Text, chunkSize, overlap) {
			chunks = append(chunks, model.Chunk{
				Text:  text,
				Pages: []int{page.PageNo},
			})
		}
	}
	return chunks, nil
}

// splitText 将单页文本按指定大小和重叠进行切分。
func splitText(text string, chunkSize, overlap int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var parts []string
	step := chunkSize - overlap
	for i := 0; i < len(runes); i += step {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return parts
}

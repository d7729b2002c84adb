package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revisely-go/internal/model"
)

func TestSegmentChunkCount(t *testing.T) {
	// 25 个 rune，chunkSize=10，overlap=3 → 步长 7 → 4 个分块
	pages := []model.PageText{{PageNo: 1, Text: strings.Repeat("a", 25)}}

	chunks, err := Segment(pages, 10, 3)
	require.NoError(t, err)
	assert.Len(t, chunks, 4)

	// 最后一个分块覆盖到文本末尾
	last := chunks[len(chunks)-1].Text
	assert.True(t, strings.HasSuffix(strings.Repeat("a", 25), last))
}

func TestSegmentOverlapContinuity(t *testing.T) {
	text := "abcdefghijklmnopqrstuvwxy" // 25 runes
	pages := []model.PageText{{PageNo: 1, Text: text}}

	chunks, err := Segment(pages, 10, 3)
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	// 相邻分块重叠 3 个 rune
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1].Text)
		cur := []rune(chunks[i].Text)
		assert.Equal(t, string(prev[len(prev)-3:]), string(cur[:3]))
	}

	// 去掉每个后继分块的重叠前缀后应能还原原文
	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0].Text)
	for i := 1; i < len(chunks); i++ {
		cur := []rune(chunks[i].Text)
		rebuilt.WriteString(string(cur[3:]))
	}
	assert.Equal(t, text, rebuilt.String())
}

func TestSegmentPageProvenance(t *testing.T) {
	pages := []model.PageText{
		{PageNo: 1, Text: strings.Repeat("x", 15)},
		{PageNo: 2, Text: strings.Repeat("y", 5)},
	}

	chunks, err := Segment(pages, 10, 3)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		require.Len(t, c.Pages, 1)
		if strings.Contains(c.Text, "x") {
			assert.Equal(t, 1, c.Pages[0])
			assert.NotContains(t, c.Text, "y", "分块不得跨页")
		} else {
			assert.Equal(t, 2, c.Pages[0])
		}
	}
}

func TestSegmentSkipsEmptyPages(t *testing.T) {
	pages := []model.PageText{
		{PageNo: 1, Text: "   \n\t  "},
		{PageNo: 2, Text: "content"},
	}

	chunks, err := Segment(pages, 10, 3)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, []int{2}, chunks[0].Pages)
}

func TestSegmentShortTextSingleChunk(t *testing.T) {
	pages := []model.PageText{{PageNo: 3, Text: "mitochondria"}}

	chunks, err := Segment(pages, 1000, 100)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "mitochondria", chunks[0].Text)
	assert.Equal(t, []int{3}, chunks[0].Pages)
}

func TestSegmentInvalidConfiguration(t *testing.T) {
	pages := []model.PageText{{PageNo: 1, Text: "some text"}}

	cases := []struct {
		name      string
		chunkSize int
		overlap   int
	}{
		{"overlap equals chunk size", 10, 10},
		{"overlap exceeds chunk size", 10, 15},
		{"zero chunk size", 0, 0},
		{"negative overlap", 10, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chunks, err := Segment(pages, tc.chunkSize, tc.overlap)
			assert.ErrorIs(t, err, ErrInvalidConfiguration)
			assert.Nil(t, chunks)
		})
	}
}

func TestSegmentDeterministic(t *testing.T) {
	pages := []model.PageText{
		{PageNo: 1, Text: strings.Repeat("deterministic ", 40)},
		{PageNo: 2, Text: strings.Repeat("output ", 30)},
	}

	first, err := Segment(pages, 50, 10)
	require.NoError(t, err)
	second, err := Segment(pages, 50, 10)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

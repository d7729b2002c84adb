package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revisely-go/internal/config"
	"revisely-go/internal/model"
	"revisely-go/internal/rag"
	"revisely-go/internal/vectorstore"
	"revisely-go/pkg/llm"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func (f *fakeEmbedder) Dimensions() int { return len(f.vector) }

type fakeStore struct {
	hits []vectorstore.ScoredChunk
}

func (f *fakeStore) CreateOrReplace(ctx context.Context, docID string, vectors [][]float32, chunks []model.Chunk) error {
	return nil
}

func (f *fakeStore) Search(ctx context.Context, docID string, queryVector []float32, k int) ([]vectorstore.ScoredChunk, error) {
	if k < len(f.hits) {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

func (f *fakeStore) Delete(ctx context.Context, docID string) error { return nil }

type fakeLLM struct {
	answer     string
	err        error
	lastPrompt string
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	f.lastPrompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeLLM) StreamChatMessages(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams, writer llm.MessageWriter) error {
	return nil
}

func newTestChatService(store vectorstore.Store, llmClient llm.Client, cfg config.RetrievalConfig) ChatService {
	retriever := rag.NewRetriever(&fakeEmbedder{vector: []float32{1, 0}}, store, 0)
	return NewChatService(retriever, llmClient, nil, cfg)
}

func TestAnswerGroundedSourcesFromRetrievalMetadata(t *testing.T) {
	store := &fakeStore{hits: []vectorstore.ScoredChunk{
		{Chunk: model.Chunk{Text: "The mitochondrion is the powerhouse of the cell.", Pages: []int{3}}, Score: 0.9},
		{Chunk: model.Chunk{Text: "ATP synthesis happens across the inner membrane.", Pages: []int{7}}, Score: 0.5},
	}}
	// 模型答案完全没写引用，引用列表依然来自检索元数据
	llmClient := &fakeLLM{answer: "It produces energy."}
	svc := newTestChatService(store, llmClient, config.RetrievalConfig{TopK: 4})

	result, err := svc.Answer(context.Background(), "doc1", "What does the mitochondrion do?")
	require.NoError(t, err)

	assert.Equal(t, "It produces energy.", result.Answer)
	require.Len(t, result.Sources, 2)
	assert.Equal(t, "p3 — The mitochondrion is the powerhouse of the cell.", result.Sources[0])
	assert.Equal(t, "p7 — ATP synthesis happens across the inner membrane.", result.Sources[1])

	// prompt 携带页码标注的上下文
	assert.Contains(t, llmClient.lastPrompt, "[p3] The mitochondrion")
	assert.Contains(t, llmClient.lastPrompt, "[p7] ATP synthesis")
	assert.Contains(t, llmClient.lastPrompt, "What does the mitochondrion do?")
}

func TestAnswerUngroundedFallback(t *testing.T) {
	llmClient := &fakeLLM{answer: "General knowledge answer."}
	svc := newTestChatService(&fakeStore{}, llmClient, config.RetrievalConfig{})

	result, err := svc.Answer(context.Background(), "never-indexed", "What is photosynthesis?")
	require.NoError(t, err)

	assert.Equal(t, "General knowledge answer.", result.Answer)
	assert.Empty(t, result.Sources)
	assert.True(t, strings.HasPrefix(llmClient.lastPrompt, "Answer this question:\n"))
}

func TestAnswerBlockedCompletionYieldsApology(t *testing.T) {
	store := &fakeStore{hits: []vectorstore.ScoredChunk{
		{Chunk: model.Chunk{Text: "Some content.", Pages: []int{1}}, Score: 0.8},
	}}
	svc := newTestChatService(store, &fakeLLM{err: llm.ErrBlockedCompletion}, config.RetrievalConfig{})

	result, err := svc.Answer(context.Background(), "doc1", "question")
	require.NoError(t, err)

	assert.Equal(t, blockedAnswerText, result.Answer)
	// 引用与模型输出无关，仍然给出
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "p1 — Some content.", result.Sources[0])
}

func TestAnswerUngroundedBlockedCompletion(t *testing.T) {
	svc := newTestChatService(&fakeStore{}, &fakeLLM{err: llm.ErrBlockedCompletion}, config.RetrievalConfig{})

	result, err := svc.Answer(context.Background(), "doc1", "question")
	require.NoError(t, err)
	assert.Equal(t, blockedAnswerText, result.Answer)
	assert.Empty(t, result.Sources)
}

func TestAnswerGenerationUnavailablePropagates(t *testing.T) {
	store := &fakeStore{hits: []vectorstore.ScoredChunk{
		{Chunk: model.Chunk{Text: "Some content.", Pages: []int{1}}, Score: 0.8},
	}}
	svc := newTestChatService(store, &fakeLLM{err: llm.ErrUnavailable}, config.RetrievalConfig{})

	result, err := svc.Answer(context.Background(), "doc1", "question")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, llm.ErrUnavailable)
}

func TestAnswerContextBudgetDropsLowestScoreFirst(t *testing.T) {
	store := &fakeStore{hits: []vectorstore.ScoredChunk{
		{Chunk: model.Chunk{Text: strings.Repeat("a", 50), Pages: []int{1}}, Score: 0.9},
		{Chunk: model.Chunk{Text: strings.Repeat("b", 50), Pages: []int{2}}, Score: 0.4},
	}}
	llmClient := &fakeLLM{answer: "answer"}
	// 预算只够放下得分最高的分块
	svc := newTestChatService(store, llmClient, config.RetrievalConfig{MaxContextChars: 60})

	result, err := svc.Answer(context.Background(), "doc1", "question")
	require.NoError(t, err)

	assert.Contains(t, llmClient.lastPrompt, strings.Repeat("a", 50))
	assert.NotContains(t, llmClient.lastPrompt, strings.Repeat("b", 50))
	// 引用列表与实际送入上下文的分块一致
	require.Len(t, result.Sources, 1)
	assert.True(t, strings.HasPrefix(result.Sources[0], "p1 — "))
}

func TestPageLabelFormatting(t *testing.T) {
	assert.Equal(t, "p3", pageLabel([]int{3}))
	assert.Equal(t, "p3,p4", pageLabel([]int{3, 4}))
}

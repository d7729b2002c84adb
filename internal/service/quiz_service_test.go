package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"revisely-go/internal/model"
)

func TestParseQuizOutputCleanJSON(t *testing.T) {
	raw := `{"mcqs":[{"question":"Q1","options":["a","b","c","d"],"answer_index":2,"explanation":"because"}],"saqs":[{"question":"Q2","answer":"A2"}],"laqs":[{"question":"Q3","outline":"O3"}]}`

	questions := parseQuizOutput(raw)
	require.Len(t, questions.MCQs, 1)
	assert.Equal(t, 2, questions.MCQs[0].AnswerIndex)
	require.Len(t, questions.SAQs, 1)
	require.Len(t, questions.LAQs, 1)
	assert.Empty(t, questions.Raw)
}

func TestParseQuizOutputMarkdownFenced(t *testing.T) {
	raw := "```json\n{\"mcqs\":[{\"question\":\"Q\",\"options\":[\"a\",\"b\"],\"answer_index\":0,\"explanation\":\"\"}],\"saqs\":[],\"laqs\":[]}\n```"

	questions := parseQuizOutput(raw)
	require.Len(t, questions.MCQs, 1)
	assert.Equal(t, "Q", questions.MCQs[0].Question)
	assert.Empty(t, questions.Raw)
}

func TestParseQuizOutputGarbageFallsBackToRaw(t *testing.T) {
	raw := "Here are some questions:\n1. What is..."

	questions := parseQuizOutput(raw)
	assert.Empty(t, questions.MCQs)
	assert.Equal(t, raw, questions.Raw)
}

type fakeQuizRepo struct {
	quiz     *model.Quiz
	attempts []*model.QuizAttempt
	progress map[string]float64
}

func (f *fakeQuizRepo) CreateQuiz(quiz *model.Quiz) error { f.quiz = quiz; return nil }

func (f *fakeQuizRepo) FindQuizByID(quizID uint) (*model.Quiz, error) {
	if f.quiz == nil || f.quiz.ID != quizID {
		return nil, gorm.ErrRecordNotFound
	}
	return f.quiz, nil
}

func (f *fakeQuizRepo) FindQuizzesByUser(userID uint) ([]model.Quiz, error) { return nil, nil }

func (f *fakeQuizRepo) CreateAttempt(attempt *model.QuizAttempt) error {
	f.attempts = append(f.attempts, attempt)
	return nil
}

func (f *fakeQuizRepo) FindAttemptsByUser(userID uint) ([]model.QuizAttempt, error) {
	return nil, nil
}

func (f *fakeQuizRepo) UpsertProgress(userID uint, topic string, accuracy float64) error {
	if f.progress == nil {
		f.progress = make(map[string]float64)
	}
	f.progress[topic] = accuracy
	return nil
}

func (f *fakeQuizRepo) FindProgressByUser(userID uint) ([]model.Progress, error) { return nil, nil }

func storedQuiz(t *testing.T) *model.Quiz {
	t.Helper()
	questions := model.QuizQuestions{MCQs: []model.MCQ{
		{Question: "Q1", Options: []string{"a", "b", "c"}, AnswerIndex: 0},
		{Question: "Q2", Options: []string{"a", "b", "c"}, AnswerIndex: 2},
		{Question: "Q3", Options: []string{"a", "b", "c"}, AnswerIndex: 1},
	}}
	data, err := json.Marshal(questions)
	require.NoError(t, err)
	return &model.Quiz{ID: 42, DocID: "doc1", UserID: 7, Questions: string(data)}
}

func TestSubmitAttemptScoresMCQs(t *testing.T) {
	repo := &fakeQuizRepo{quiz: storedQuiz(t)}
	svc := &quizService{quizRepo: repo}

	// 两对一错
	attempt, err := svc.SubmitAttempt(context.Background(), 42, 7, []int{0, 2, 0})
	require.NoError(t, err)

	assert.Equal(t, 2, attempt.Score)
	assert.Equal(t, 3, attempt.Total)
	assert.InDelta(t, 2.0/3.0, repo.progress["doc1"], 1e-9)
}

func TestSubmitAttemptMissingAnswersCountWrong(t *testing.T) {
	repo := &fakeQuizRepo{quiz: storedQuiz(t)}
	svc := &quizService{quizRepo: repo}

	attempt, err := svc.SubmitAttempt(context.Background(), 42, 7, []int{0})
	require.NoError(t, err)
	assert.Equal(t, 1, attempt.Score)
	assert.Equal(t, 3, attempt.Total)
}

func TestSubmitAttemptWrongOwner(t *testing.T) {
	repo := &fakeQuizRepo{quiz: storedQuiz(t)}
	svc := &quizService{quizRepo: repo}

	_, err := svc.SubmitAttempt(context.Background(), 42, 99, []int{0, 2, 1})
	assert.ErrorIs(t, err, ErrQuizNotFound)
}

func TestSubmitAttemptUnknownQuiz(t *testing.T) {
	svc := &quizService{quizRepo: &fakeQuizRepo{}}

	_, err := svc.SubmitAttempt(context.Background(), 1, 7, []int{0})
	assert.ErrorIs(t, err, ErrQuizNotFound)
}

package repository

import (
	"errors"

	"gorm.io/gorm"

	"revisely-go/internal/model"
)

// QuizRepository 接口定义了测验、答题记录与学习进度的持久化操作。
type QuizRepository interface {
	CreateQuiz(quiz *model.Quiz) error
	FindQuizByID(quizID uint) (*model.Quiz, error)
	FindQuizzesByUser(userID uint) ([]model.Quiz, error)
	CreateAttempt(attempt *model.QuizAttempt) error
	FindAttemptsByUser(userID uint) ([]model.QuizAttempt, error)
	UpsertProgress(userID uint, topic string, accuracy float64) error
	FindProgressByUser(userID uint) ([]model.Progress, error)
}

// quizRepository 是 QuizRepository 接口的 GORM 实现。
type quizRepository struct {
	db *gorm.DB
}

// NewQuizRepository 创建一个新的 QuizRepository 实例。
func NewQuizRepository(db *gorm.DB) QuizRepository {
	return &quizRepository{db: db}
}

// CreateQuiz 在数据库中创建一条新的测验记录。
func (r *quizRepository) CreateQuiz(quiz *model.Quiz) error {
	return r.db.Create(quiz).Error
}

// FindQuizByID 根据主键查找一条测验记录。
func (r *quizRepository) FindQuizByID(quizID uint) (*model.Quiz, error) {
	var quiz model.Quiz
	err := r.db.First(&quiz, quizID).Error
	if err != nil {
		return nil, err
	}
	return &quiz, nil
}

// FindQuizzesByUser 返回某用户的全部测验，按创建时间倒序。
func (r *quizRepository) FindQuizzesByUser(userID uint) ([]model.Quiz, error) {
	var quizzes []model.Quiz
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&quizzes).Error
	return quizzes, err
}

// CreateAttempt 保存一次答题记录。
func (r *quizRepository) CreateAttempt(attempt *model.QuizAttempt) error {
	return r.db.Create(attempt).Error
}

// FindAttemptsByUser 返回某用户的全部答题记录，按时间倒序。
func (r *quizRepository) FindAttemptsByUser(userID uint) ([]model.QuizAttempt, error) {
	var attempts []model.QuizAttempt
	err := r.db.Where("user_id = ?", userID).Order("attempted_at DESC").Find(&attempts).Error
	return attempts, err
}

// UpsertProgress 以"用户+主题"为维度更新学习进度，不存在时创建。
func (r *quizRepository) UpsertProgress(userID uint, topic string, accuracy float64) error {
	var progress model.Progress
	err := r.db.Where("user_id = ? AND topic = ?", userID, topic).First(&progress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.Create(&model.Progress{
			UserID:   userID,
			Topic:    topic,
			Accuracy: accuracy,
		}).Error
	}
	if err != nil {
		return err
	}
	// 新旧正确率取均值，平滑单次波动
	progress.Accuracy = (progress.Accuracy + accuracy) / 2
	return r.db.Save(&progress).Error
}

// FindProgressByUser 返回某用户的全部学习进度记录。
func (r *quizRepository) FindProgressByUser(userID uint) ([]model.Progress, error) {
	var records []model.Progress
	err := r.db.Where("user_id = ?", userID).Order("last_updated DESC").Find(&records).Error
	return records, err
}

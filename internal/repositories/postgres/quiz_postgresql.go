package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/learning-progress-service/internal/cache"
	"github.com/SAP-F-2025/learning-progress-service/internal/models"
	"github.com/SAP-F-2025/learning-progress-service/internal/repositories"
)

type QuizPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewQuizPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.QuizRepository {
	return &QuizPostgreSQL{
		db:           db,
		cacheManager: cacheManager,
	}
}

func (q *QuizPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) {
	db := q.getDB(tx)
	cacheKey := fmt.Sprintf("id:%d", id)

	var quiz models.Quiz
	err := q.cacheManager.Quiz.CacheOrExecute(ctx, cacheKey, &quiz, cache.QuizCacheConfig.TTL, func() (interface{}, error) {
		var dbQuiz models.Quiz
		if err := db.WithContext(ctx).First(&dbQuiz, id).Error; err != nil {
			return nil, err
		}
		return &dbQuiz, nil
	})
	if err != nil {
		return nil, err
	}

	return &quiz, nil
}

func (q *QuizPostgreSQL) GetSettings(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) {
	db := q.getDB(tx)
	var quiz models.Quiz
	if err := db.WithContext(ctx).First(&quiz, id).Error; err != nil {
		return nil, err
	}
	return &quiz, nil
}

// GetQuestions returns the quiz questions in display order. Options are not
// loaded here; they go through the option resolver.
func (q *QuizPostgreSQL) GetQuestions(ctx context.Context, tx *gorm.DB, quizID uint) ([]*models.QuizQuestion, error) {
	db := q.getDB(tx)
	questions := make([]*models.QuizQuestion, 0)
	if err := db.WithContext(ctx).
		Where("quiz_id = ?", quizID).
		Order("order_index ASC, id ASC").
		Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to get quiz questions: %w", err)
	}
	return questions, nil
}

func (q *QuizPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return q.db
}

// ===== OPTION REPOSITORY IMPLEMENTATION =====

type OptionPostgreSQL struct {
	db *gorm.DB
}

func NewOptionPostgreSQL(db *gorm.DB) repositories.OptionRepository {
	return &OptionPostgreSQL{db: db}
}

func (o *OptionPostgreSQL) GetCurrent(ctx context.Context, tx *gorm.DB, questionID uint) ([]*models.QuizOption, error) {
	db := o.getDB(tx)
	options := make([]*models.QuizOption, 0)
	if err := db.WithContext(ctx).
		Where("question_id = ?", questionID).
		Order("order_index ASC, id ASC").
		Find(&options).Error; err != nil {
		return nil, fmt.Errorf("failed to get options: %w", err)
	}
	return options, nil
}

func (o *OptionPostgreSQL) GetLegacy(ctx context.Context, tx *gorm.DB, questionID uint) ([]*models.LegacyQuizOption, error) {
	db := o.getDB(tx)
	options := make([]*models.LegacyQuizOption, 0)
	if err := db.WithContext(ctx).
		Where("quiz_question_id = ?", questionID).
		Order("position ASC, id ASC").
		Find(&options).Error; err != nil {
		return nil, fmt.Errorf("failed to get legacy options: %w", err)
	}
	return options, nil
}

func (o *OptionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return o.db
}

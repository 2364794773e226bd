package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/learning-progress-service/internal/cache"
	"github.com/SAP-F-2025/learning-progress-service/internal/models"
	"github.com/SAP-F-2025/learning-progress-service/internal/repositories"
)

type AttemptPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewAttemptPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.AttemptRepository {
	return &AttemptPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cacheManager,
	}
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error {
	db := a.getDB(tx)
	// Answers are written separately in the same transaction
	return db.WithContext(ctx).Omit("Answers").Create(attempt).Error
}

func (a *AttemptPostgreSQL) CreateAnswers(ctx context.Context, tx *gorm.DB, answers []*models.QuizAnswer) error {
	if len(answers) == 0 {
		return nil
	}
	db := a.getDB(tx)
	return db.WithContext(ctx).CreateInBatches(answers, 100).Error
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error) {
	db := a.getDB(tx)
	var attempt models.QuizAttempt
	if err := db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetByIDWithAnswers(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error) {
	db := a.getDB(tx)
	var attempt models.QuizAttempt
	if err := db.WithContext(ctx).
		Preload("Answers", func(q *gorm.DB) *gorm.DB {
			return q.Order("id ASC")
		}).
		First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetBySubmissionKey(ctx context.Context, tx *gorm.DB, key string) (*models.QuizAttempt, error) {
	db := a.getDB(tx)
	var attempt models.QuizAttempt
	if err := db.WithContext(ctx).
		Preload("Answers", func(q *gorm.DB) *gorm.DB {
			return q.Order("id ASC")
		}).
		Where("submission_key = ?", key).
		First(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) CountByStudentAndQuiz(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) (int64, error) {
	return a.helpers.CountAttemptsByStudent(ctx, a.getDB(tx), quizID, studentID)
}

func (a *AttemptPostgreSQL) ListByStudentAndQuiz(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) ([]*models.QuizAttempt, error) {
	db := a.getDB(tx)
	attempts := make([]*models.QuizAttempt, 0)
	if err := db.WithContext(ctx).
		Preload("Answers", func(q *gorm.DB) *gorm.DB {
			return q.Order("id ASC")
		}).
		Where("student_id = ? AND quiz_id = ?", studentID, quizID).
		Order("attempt_number ASC").
		Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

func (a *AttemptPostgreSQL) ListByQuiz(ctx context.Context, tx *gorm.DB, quizID uint) ([]*models.QuizAttempt, error) {
	db := a.getDB(tx)
	attempts := make([]*models.QuizAttempt, 0)
	if err := db.WithContext(ctx).
		Where("quiz_id = ?", quizID).
		Order("student_id ASC, attempt_number ASC").
		Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

// GetStats aggregates attempt outcomes in a single query. Results are cached
// briefly and dropped whenever a new attempt for the quiz is committed.
func (a *AttemptPostgreSQL) GetStats(ctx context.Context, tx *gorm.DB, quizID uint) (*repositories.AttemptStats, error) {
	db := a.getDB(tx)
	cacheKey := fmt.Sprintf("quiz:%d:attempts", quizID)

	var stats repositories.AttemptStats
	err := a.cacheManager.Stats.CacheOrExecute(ctx, cacheKey, &stats, cache.StatsCacheConfig.TTL, func() (interface{}, error) {
		var (
			total, unique, passed sql.NullInt64
			avg                   sql.NullFloat64
			highest, lowest       sql.NullInt64
		)
		row := db.WithContext(ctx).
			Model(&models.QuizAttempt{}).
			Where("quiz_id = ?", quizID).
			Select("COUNT(*), COUNT(DISTINCT student_id), AVG(score), MAX(score), MIN(score), SUM(CASE WHEN passed THEN 1 ELSE 0 END)").
			Row()
		if err := row.Scan(&total, &unique, &avg, &highest, &lowest, &passed); err != nil {
			return nil, fmt.Errorf("failed to aggregate attempts: %w", err)
		}

		result := &repositories.AttemptStats{
			QuizID:         quizID,
			TotalAttempts:  total.Int64,
			UniqueStudents: unique.Int64,
			AverageScore:   avg.Float64,
			HighestScore:   int(highest.Int64),
			LowestScore:    int(lowest.Int64),
			PassedAttempts: passed.Int64,
		}
		if result.TotalAttempts > 0 {
			result.PassRate = float64(result.PassedAttempts) / float64(result.TotalAttempts)
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}

	return &stats, nil
}

func (a *AttemptPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

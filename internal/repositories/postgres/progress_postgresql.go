package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/learning-progress-service/internal/models"
	"github.com/SAP-F-2025/learning-progress-service/internal/repositories"
)

// ===== ENROLLMENT REPOSITORY IMPLEMENTATION =====

type EnrollmentPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewEnrollmentPostgreSQL(db *gorm.DB) repositories.EnrollmentRepository {
	return &EnrollmentPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
	}
}

func (e *EnrollmentPostgreSQL) Get(ctx context.Context, tx *gorm.DB, studentID string, courseID uint) (*models.Enrollment, error) {
	db := e.getDB(tx)
	var enrollment models.Enrollment
	if err := db.WithContext(ctx).
		Where("student_id = ? AND course_id = ?", studentID, courseID).
		First(&enrollment).Error; err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// GetForUpdate locks the enrollment row until the surrounding transaction
// ends, so concurrent recomputes for the same enrollment run one at a time.
func (e *EnrollmentPostgreSQL) GetForUpdate(ctx context.Context, tx *gorm.DB, studentID string, courseID uint) (*models.Enrollment, error) {
	db := e.helpers.ForUpdate(e.getDB(tx))
	var enrollment models.Enrollment
	if err := db.WithContext(ctx).
		Where("student_id = ? AND course_id = ?", studentID, courseID).
		First(&enrollment).Error; err != nil {
		return nil, err
	}
	return &enrollment, nil
}

func (e *EnrollmentPostgreSQL) Exists(ctx context.Context, tx *gorm.DB, studentID string, courseID uint) (bool, error) {
	db := e.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("student_id = ? AND course_id = ?", studentID, courseID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdateProgress writes the derived percentage and returns the number of
// rows matched.
func (e *EnrollmentPostgreSQL) UpdateProgress(ctx context.Context, tx *gorm.DB, studentID string, courseID uint, percentage int, completedAt *time.Time) (int64, error) {
	db := e.getDB(tx)
	updates := map[string]interface{}{
		"progress_percentage": percentage,
		"updated_at":          time.Now(),
	}
	if completedAt != nil {
		updates["completed_at"] = *completedAt
	}

	result := db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("student_id = ? AND course_id = ?", studentID, courseID).
		Updates(updates)
	return result.RowsAffected, result.Error
}

func (e *EnrollmentPostgreSQL) ListStudentIDsByCourse(ctx context.Context, tx *gorm.DB, courseID uint) ([]string, error) {
	db := e.getDB(tx)
	var ids []string
	err := db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("course_id = ?", courseID).
		Order("id ASC").
		Pluck("student_id", &ids).Error
	return ids, err
}

func (e *EnrollmentPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return e.db
}

// ===== COMPLETION REPOSITORY IMPLEMENTATION =====

type CompletionPostgreSQL struct {
	db *gorm.DB
}

func NewCompletionPostgreSQL(db *gorm.DB) repositories.CompletionRepository {
	return &CompletionPostgreSQL{db: db}
}

// Upsert marks the lesson completed. Repeated calls overwrite completed_at;
// first_completed_at keeps the first value ever written.
func (c *CompletionPostgreSQL) Upsert(ctx context.Context, tx *gorm.DB, studentID string, lessonID uint, at time.Time) error {
	db := c.getDB(tx)
	completion := models.LessonCompletion{
		StudentID:        studentID,
		LessonID:         lessonID,
		Completed:        true,
		CompletedAt:      &at,
		FirstCompletedAt: &at,
	}

	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "student_id"}, {Name: "lesson_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"completed":          true,
			"completed_at":       at,
			"updated_at":         at,
			"first_completed_at": gorm.Expr("COALESCE(lesson_completions.first_completed_at, excluded.first_completed_at)"),
		}),
	}).Create(&completion).Error
}

// MarkIncomplete clears completion. completed_at goes back to NULL together
// with the flag.
func (c *CompletionPostgreSQL) MarkIncomplete(ctx context.Context, tx *gorm.DB, studentID string, lessonID uint) (int64, error) {
	db := c.getDB(tx)
	result := db.WithContext(ctx).
		Model(&models.LessonCompletion{}).
		Where("student_id = ? AND lesson_id = ?", studentID, lessonID).
		Updates(map[string]interface{}{
			"completed":    false,
			"completed_at": nil,
			"updated_at":   time.Now(),
		})
	return result.RowsAffected, result.Error
}

func (c *CompletionPostgreSQL) Get(ctx context.Context, tx *gorm.DB, studentID string, lessonID uint) (*models.LessonCompletion, error) {
	db := c.getDB(tx)
	var completion models.LessonCompletion
	if err := db.WithContext(ctx).
		Where("student_id = ? AND lesson_id = ?", studentID, lessonID).
		First(&completion).Error; err != nil {
		return nil, err
	}
	return &completion, nil
}

func (c *CompletionPostgreSQL) CountCompleted(ctx context.Context, tx *gorm.DB, studentID string, lessonIDs []uint) (int64, error) {
	if len(lessonIDs) == 0 {
		return 0, nil
	}
	db := c.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.LessonCompletion{}).
		Where("student_id = ? AND lesson_id IN ? AND completed = ?", studentID, lessonIDs, true).
		Count(&count).Error
	return count, err
}

func (c *CompletionPostgreSQL) ListByStudent(ctx context.Context, tx *gorm.DB, studentID string, lessonIDs []uint) ([]*models.LessonCompletion, error) {
	completions := make([]*models.LessonCompletion, 0)
	if len(lessonIDs) == 0 {
		return completions, nil
	}
	db := c.getDB(tx)
	err := db.WithContext(ctx).
		Where("student_id = ? AND lesson_id IN ?", studentID, lessonIDs).
		Order("lesson_id ASC").
		Find(&completions).Error
	return completions, err
}

func (c *CompletionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return c.db
}

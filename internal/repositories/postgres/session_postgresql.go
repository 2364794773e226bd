package postgres

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/learning-progress-service/internal/models"
	"github.com/SAP-F-2025/learning-progress-service/internal/repositories"
)

type SessionPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewSessionPostgreSQL(db *gorm.DB) repositories.SessionRepository {
	return &SessionPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
	}
}

func (s *SessionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, session *models.QuizSession) error {
	db := s.getDB(tx)
	return db.WithContext(ctx).Create(session).Error
}

func (s *SessionPostgreSQL) GetByToken(ctx context.Context, tx *gorm.DB, token string) (*models.QuizSession, error) {
	db := s.getDB(tx)
	var session models.QuizSession
	if err := db.WithContext(ctx).Where("token = ?", token).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *SessionPostgreSQL) GetByTokenForUpdate(ctx context.Context, tx *gorm.DB, token string) (*models.QuizSession, error) {
	db := s.helpers.ForUpdate(s.getDB(tx))
	var session models.QuizSession
	if err := db.WithContext(ctx).Where("token = ?", token).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *SessionPostgreSQL) GetOpen(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) (*models.QuizSession, error) {
	db := s.getDB(tx)
	var session models.QuizSession
	if err := db.WithContext(ctx).
		Where("student_id = ? AND quiz_id = ? AND status = ?", studentID, quizID, models.SessionInProgress).
		Order("started_at DESC, id DESC").
		First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// SaveDraft only touches sessions that are still running.
func (s *SessionPostgreSQL) SaveDraft(ctx context.Context, tx *gorm.DB, id uint, draft datatypes.JSON) error {
	db := s.getDB(tx)
	result := db.WithContext(ctx).
		Model(&models.QuizSession{}).
		Where("id = ? AND status = ?", id, models.SessionInProgress).
		Updates(map[string]interface{}{
			"draft_answers": draft,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Close moves a running session to its final status. A session that is no
// longer running is reported as gorm.ErrRecordNotFound.
func (s *SessionPostgreSQL) Close(ctx context.Context, tx *gorm.DB, id uint, status models.SessionStatus, attemptID *uint) error {
	db := s.getDB(tx)
	result := db.WithContext(ctx).
		Model(&models.QuizSession{}).
		Where("id = ? AND status = ?", id, models.SessionInProgress).
		Updates(map[string]interface{}{
			"status":     status,
			"attempt_id": attemptID,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *SessionPostgreSQL) ListOverdue(ctx context.Context, tx *gorm.DB, now time.Time, limit, offset int) ([]*models.QuizSession, error) {
	db := s.getDB(tx)
	var sessions []*models.QuizSession
	query := db.WithContext(ctx).
		Where("status = ? AND deadline_at IS NOT NULL AND deadline_at < ?", models.SessionInProgress, now).
		Order("deadline_at ASC, id ASC")
	if err := s.helpers.ApplyPagination(query, limit, offset).Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *SessionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

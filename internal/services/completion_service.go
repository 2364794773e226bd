package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/learning-progress-service/internal/models"
	"github.com/SAP-F-2025/learning-progress-service/internal/repositories"
	"gorm.io/gorm"
)

type completionService struct {
	repo    repositories.Repository
	db      *gorm.DB
	logger  *slog.Logger
	handler CompletionHandler
	now     func() time.Time
}

// NewCompletionService wires the recorder to the handler that keeps
// enrollment progress in sync.
func NewCompletionService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, handler CompletionHandler) CompletionService {
	return &completionService{
		repo:    repo,
		db:      db,
		logger:  logger,
		handler: handler,
		now:     time.Now,
	}
}

func (s *completionService) RecordCompletion(ctx context.Context, studentID string, lessonID uint) (*CompletionResult, error) {
	s.logger.Info("Recording lesson completion",
		"student_id", studentID,
		"lesson_id", lessonID)

	location, err := s.authorize(ctx, studentID, lessonID)
	if err != nil {
		return nil, err
	}

	completedAt := s.now()
	if err := s.repo.Completion().Upsert(ctx, s.db, studentID, lessonID, completedAt); err != nil {
		return nil, newPersistenceError("upsert lesson completion", err)
	}

	return s.dispatch(ctx, CompletionRecorded{
		StudentID:   studentID,
		CourseID:    location.CourseID,
		LessonID:    lessonID,
		Completed:   true,
		CompletedAt: completedAt,
	})
}

// MarkIncomplete reverts a completion. Progress is recomputed the same way
// as after a completion, so the percentage can go down.
func (s *completionService) MarkIncomplete(ctx context.Context, studentID string, lessonID uint) (*CompletionResult, error) {
	s.logger.Info("Marking lesson incomplete",
		"student_id", studentID,
		"lesson_id", lessonID)

	location, err := s.authorize(ctx, studentID, lessonID)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.Completion().MarkIncomplete(ctx, s.db, studentID, lessonID); err != nil {
		return nil, newPersistenceError("mark lesson incomplete", err)
	}

	return s.dispatch(ctx, CompletionRecorded{
		StudentID:   studentID,
		CourseID:    location.CourseID,
		LessonID:    lessonID,
		Completed:   false,
		CompletedAt: s.now(),
	})
}

func (s *completionService) ListCompletions(ctx context.Context, studentID string, courseID uint) ([]*models.LessonCompletion, error) {
	if studentID == "" {
		return nil, ErrUnauthenticated
	}

	enrolled, err := s.repo.Enrollment().Exists(ctx, s.db, studentID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to check enrollment: %w", err)
	}
	if !enrolled {
		return nil, ErrNotEnrolled
	}

	structure, err := s.repo.Course().GetStructure(ctx, s.db, courseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to get course structure: %w", err)
	}

	completions, err := s.repo.Completion().ListByStudent(ctx, s.db, studentID, structure.LessonIDs())
	if err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}
	return completions, nil
}

// ===== HELPERS =====

// authorize resolves the lesson to its course and checks the enrollment
func (s *completionService) authorize(ctx context.Context, studentID string, lessonID uint) (*repositories.LessonLocation, error) {
	if studentID == "" {
		return nil, ErrUnauthenticated
	}

	location, err := s.repo.Course().LocateLesson(ctx, s.db, lessonID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrLessonNotFound
		}
		return nil, fmt.Errorf("failed to locate lesson: %w", err)
	}

	enrolled, err := s.repo.Enrollment().Exists(ctx, s.db, studentID, location.CourseID)
	if err != nil {
		return nil, fmt.Errorf("failed to check enrollment: %w", err)
	}
	if !enrolled {
		return nil, ErrNotEnrolled
	}

	return location, nil
}

// dispatch hands the command to the progress handler. The completion row is
// already written; a failed recompute is reported but a later recompute
// converges on the same value.
func (s *completionService) dispatch(ctx context.Context, cmd CompletionRecorded) (*CompletionResult, error) {
	percentage, err := s.handler.HandleCompletionRecorded(ctx, cmd)
	if err != nil {
		s.logger.Error("Progress recalculation failed after completion change",
			"error", err,
			"student_id", cmd.StudentID,
			"course_id", cmd.CourseID,
			"lesson_id", cmd.LessonID)
		return nil, fmt.Errorf("failed to recalculate progress: %w", err)
	}

	completion, err := s.repo.Completion().Get(ctx, s.db, cmd.StudentID, cmd.LessonID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to get lesson completion: %w", err)
	}

	s.logger.Info("Lesson completion updated",
		"student_id", cmd.StudentID,
		"course_id", cmd.CourseID,
		"lesson_id", cmd.LessonID,
		"completed", cmd.Completed,
		"progress_percentage", percentage)

	return &CompletionResult{
		Completion:         completion,
		CourseID:           cmd.CourseID,
		ProgressPercentage: percentage,
	}, nil
}

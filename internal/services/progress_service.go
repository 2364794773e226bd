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

type progressService struct {
	repo     repositories.Repository
	db       *gorm.DB
	logger   *slog.Logger
	notifier NotificationDispatcher
	now      func() time.Time
}

func NewProgressService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, notifier NotificationDispatcher) ProgressService {
	return &progressService{
		repo:     repo,
		db:       db,
		logger:   logger,
		notifier: notifier,
		now:      time.Now,
	}
}

// HandleCompletionRecorded recomputes the enrollment touched by a completion
// change. It never applies the change incrementally.
func (s *progressService) HandleCompletionRecorded(ctx context.Context, cmd CompletionRecorded) (int, error) {
	s.logger.Debug("Handling completion recorded",
		"student_id", cmd.StudentID,
		"course_id", cmd.CourseID,
		"lesson_id", cmd.LessonID,
		"completed", cmd.Completed)

	return s.Recalculate(ctx, cmd.StudentID, cmd.CourseID)
}

// Recalculate derives the percentage from the current completion set. The
// enrollment row stays locked from the count to the write, so the last
// writer always reflects every completion committed before it.
func (s *progressService) Recalculate(ctx context.Context, studentID string, courseID uint) (int, error) {
	if studentID == "" {
		return 0, ErrUnauthenticated
	}

	var (
		percentage       int
		completedLessons int64
		totalLessons     int
		courseCompleted  bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		enrollment, err := s.repo.Enrollment().GetForUpdate(ctx, tx, studentID, courseID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrEnrollmentNotFound
			}
			return newPersistenceError("lock enrollment", err)
		}

		// Counted from the store, never from the cached structure
		lessonIDs, err := s.repo.Course().LessonIDsByCourse(ctx, tx, courseID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrCourseNotFound
			}
			return newPersistenceError("list course lessons", err)
		}

		totalLessons = len(lessonIDs)

		completedLessons, err = s.repo.Completion().CountCompleted(ctx, tx, studentID, lessonIDs)
		if err != nil {
			return newPersistenceError("count completions", err)
		}

		percentage = percentageOf(int(completedLessons), totalLessons)

		var completedAt *time.Time
		if percentage == 100 && enrollment.CompletedAt == nil {
			now := s.now()
			completedAt = &now
			courseCompleted = true
		}

		rows, err := s.repo.Enrollment().UpdateProgress(ctx, tx, studentID, courseID, percentage, completedAt)
		if err != nil {
			return newPersistenceError("update progress", err)
		}
		if rows == 0 {
			return ErrEnrollmentNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("Progress recalculated",
		"student_id", studentID,
		"course_id", courseID,
		"completed_lessons", completedLessons,
		"total_lessons", totalLessons,
		"progress_percentage", percentage)

	if courseCompleted {
		notifyBestEffort(ctx, s.notifier, s.logger, &models.Notification{
			UserID:  studentID,
			Type:    models.NotificationCourseCompleted,
			Title:   "Course completed",
			Message: "You have completed every lesson in this course.",
			Link:    fmt.Sprintf("/courses/%d", courseID),
		})
	}

	return percentage, nil
}

// RecalculateCourse repairs every enrollment of a course, for example after
// lessons were added or removed. Failures are collected per student.
func (s *progressService) RecalculateCourse(ctx context.Context, courseID uint) (*BulkRecalculationResult, error) {
	exists, err := s.repo.Course().ExistsByID(ctx, s.db, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to check course: %w", err)
	}
	if !exists {
		return nil, ErrCourseNotFound
	}

	// The structure changed, so the cached copy cannot be trusted
	s.repo.Course().InvalidateStructure(ctx, courseID)

	studentIDs, err := s.repo.Enrollment().ListStudentIDsByCourse(ctx, s.db, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}

	result := &BulkRecalculationResult{CourseID: courseID}
	for _, studentID := range studentIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, err := s.Recalculate(ctx, studentID, courseID); err != nil {
			s.logger.Error("Failed to recalculate progress",
				"error", err,
				"student_id", studentID,
				"course_id", courseID)
			result.Failed = append(result.Failed, studentID)
			continue
		}
		result.Recalculated++
	}

	s.logger.Info("Course progress recalculated",
		"course_id", courseID,
		"recalculated", result.Recalculated,
		"failed", len(result.Failed))

	return result, nil
}

// GetProgress reports the stored percentage along with a per-module
// breakdown computed from the completion rows.
func (s *progressService) GetProgress(ctx context.Context, studentID string, courseID uint) (*ProgressResponse, error) {
	if studentID == "" {
		return nil, ErrUnauthenticated
	}

	enrollment, err := s.repo.Enrollment().Get(ctx, s.db, studentID, courseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
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

	done := make(map[uint]bool, len(completions))
	for _, c := range completions {
		if c.Completed {
			done[c.LessonID] = true
		}
	}

	response := &ProgressResponse{
		StudentID:          studentID,
		CourseID:           courseID,
		ProgressPercentage: enrollment.ProgressPercentage,
		CompletedAt:        enrollment.CompletedAt,
		Modules:            make([]ModuleProgress, 0, len(structure.Modules)),
	}

	for _, m := range structure.Modules {
		module := ModuleProgress{
			ModuleID:     m.ModuleID,
			Title:        m.Title,
			TotalLessons: len(m.LessonIDs),
		}
		for _, id := range m.LessonIDs {
			if done[id] {
				module.CompletedLessons++
			}
		}
		module.ProgressPercentage = percentageOf(module.CompletedLessons, module.TotalLessons)

		response.CompletedLessons += module.CompletedLessons
		response.TotalLessons += module.TotalLessons
		response.Modules = append(response.Modules, module)
	}

	return response, nil
}

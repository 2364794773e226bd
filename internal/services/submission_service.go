package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/learning-progress-service/internal/models"
	"github.com/SAP-F-2025/learning-progress-service/internal/repositories"
	"github.com/SAP-F-2025/learning-progress-service/internal/validator"
	"gorm.io/gorm"
)

type submissionService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	notifier  NotificationDispatcher
	now       func() time.Time
}

func NewSubmissionService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, notifier NotificationDispatcher) SubmissionService {
	return &submissionService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		notifier:  notifier,
		now:       time.Now,
	}
}

// Submit stores the latest content for (student, assignment). Once graded
// the row no longer accepts student writes.
func (s *submissionService) Submit(ctx context.Context, studentID string, assignmentID uint, req *SubmitAssignmentRequest) (*models.AssignmentSubmission, error) {
	s.logger.Info("Submitting assignment",
		"assignment_id", assignmentID,
		"student_id", studentID)

	if studentID == "" {
		return nil, ErrUnauthenticated
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, wrapValidation(err)
	}

	assignment, err := s.getAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	enrolled, err := s.repo.Enrollment().Exists(ctx, s.db, studentID, assignment.CourseID)
	if err != nil {
		return nil, fmt.Errorf("failed to check enrollment: %w", err)
	}
	if !enrolled {
		return nil, ErrNotEnrolled
	}

	now := s.now()
	submission := &models.AssignmentSubmission{
		StudentID:    studentID,
		AssignmentID: assignmentID,
		Status:       models.SubmissionSubmitted,
		Content:      req.Content,
		SubmittedAt:  &now,
	}

	written, err := s.repo.Assignment().UpsertSubmission(ctx, s.db, submission)
	if err != nil {
		return nil, newPersistenceError("upsert submission", err)
	}
	if !written {
		return nil, ErrSubmissionGraded
	}

	stored, err := s.repo.Assignment().GetSubmissionByStudent(ctx, s.db, studentID, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload submission: %w", err)
	}

	s.logger.Info("Assignment submitted",
		"submission_id", stored.ID,
		"assignment_id", assignmentID,
		"student_id", studentID)

	return stored, nil
}

// Grade records an instructor's grade. Grading is allowed at any time,
// including regrades.
func (s *submissionService) Grade(ctx context.Context, instructorID string, submissionID uint, req *GradeSubmissionRequest) (*models.AssignmentSubmission, error) {
	s.logger.Info("Grading submission",
		"submission_id", submissionID,
		"instructor_id", instructorID)

	if instructorID == "" {
		return nil, ErrUnauthenticated
	}

	isInstructor, err := s.repo.User().HasRole(ctx, instructorID, models.RoleTeacher)
	if err != nil {
		s.logger.Warn("Failed to resolve user role", "error", err, "user_id", instructorID)
	}
	if !isInstructor {
		return nil, NewPermissionError(instructorID, submissionID, "submission", "grade", "instructor role required")
	}

	if err := s.validator.Validate(req); err != nil {
		return nil, wrapValidation(err)
	}

	submission, err := s.repo.Assignment().GetSubmission(ctx, s.db, submissionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	maxScore := 100
	if submission.Assignment != nil {
		maxScore = submission.Assignment.MaxScore
	}
	if errs := s.validator.Business().ValidateGrade(*req.Score, maxScore); len(errs) > 0 {
		return nil, NewValidationErrors(errs...)
	}

	rows, err := s.repo.Assignment().Grade(ctx, s.db, submissionID, *req.Score, req.Feedback, instructorID, s.now())
	if err != nil {
		return nil, newPersistenceError("grade submission", err)
	}
	if rows == 0 {
		return nil, ErrSubmissionNotFound
	}

	graded, err := s.repo.Assignment().GetSubmission(ctx, s.db, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload submission: %w", err)
	}

	s.logger.Info("Submission graded",
		"submission_id", submissionID,
		"student_id", graded.StudentID,
		"score", *req.Score)

	title := "Assignment graded"
	if graded.Assignment != nil {
		title = fmt.Sprintf("%s graded", graded.Assignment.Title)
	}
	notifyBestEffort(ctx, s.notifier, s.logger, &models.Notification{
		UserID:  graded.StudentID,
		Type:    models.NotificationAssignmentGraded,
		Title:   title,
		Message: fmt.Sprintf("Your submission received %d of %d points.", *req.Score, maxScore),
		Link:    fmt.Sprintf("/assignments/%d/submission", graded.AssignmentID),
	})

	return graded, nil
}

// GetMySubmission returns the student's row, or an unsaved not_submitted
// placeholder when nothing was submitted yet.
func (s *submissionService) GetMySubmission(ctx context.Context, studentID string, assignmentID uint) (*models.AssignmentSubmission, error) {
	if studentID == "" {
		return nil, ErrUnauthenticated
	}

	assignment, err := s.getAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	submission, err := s.repo.Assignment().GetSubmissionByStudent(ctx, s.db, studentID, assignmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return &models.AssignmentSubmission{
				StudentID:    studentID,
				AssignmentID: assignmentID,
				Status:       models.SubmissionNotSubmitted,
				Assignment:   assignment,
			}, nil
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	submission.Assignment = assignment
	return submission, nil
}

func (s *submissionService) GetSubmission(ctx context.Context, userID string, submissionID uint) (*models.AssignmentSubmission, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	submission, err := s.repo.Assignment().GetSubmission(ctx, s.db, submissionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	if submission.StudentID != userID {
		ok, err := s.repo.User().HasRole(ctx, userID, models.RoleTeacher)
		if err != nil || !ok {
			return nil, NewPermissionError(userID, submissionID, "submission", "view", "not owned by user")
		}
	}

	return submission, nil
}

func (s *submissionService) ListForAssignment(ctx context.Context, assignmentID uint, filters repositories.SubmissionFilters) ([]*models.AssignmentSubmission, int64, error) {
	if _, err := s.getAssignment(ctx, assignmentID); err != nil {
		return nil, 0, err
	}

	submissions, total, err := s.repo.Assignment().ListSubmissions(ctx, s.db, assignmentID, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list submissions: %w", err)
	}
	return submissions, total, nil
}

func (s *submissionService) getAssignment(ctx context.Context, assignmentID uint) (*models.Assignment, error) {
	assignment, err := s.repo.Assignment().GetByID(ctx, s.db, assignmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return assignment, nil
}

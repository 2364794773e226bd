package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/learning-progress-service/internal/cache"
	"github.com/SAP-F-2025/learning-progress-service/internal/models"
	"github.com/SAP-F-2025/learning-progress-service/internal/repositories"
	"github.com/SAP-F-2025/learning-progress-service/internal/validator"
)

// maxAttemptNumberRetries bounds retries when two different submissions of
// the same student race for the same attempt number.
const maxAttemptNumberRetries = 3

type AttemptServiceConfig struct {
	SubmissionLockTTL time.Duration
	SweepBatchSize    int
}

type attemptService struct {
	repo         repositories.Repository
	db           *gorm.DB
	logger       *slog.Logger
	validator    *validator.Validator
	resolver     OptionResolver
	cacheManager *cache.CacheManager
	notifier     NotificationDispatcher
	config       AttemptServiceConfig
	now          func() time.Time
}

func NewAttemptService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator,
	resolver OptionResolver, cacheManager *cache.CacheManager, notifier NotificationDispatcher, config AttemptServiceConfig) AttemptService {
	if cacheManager == nil {
		cacheManager = cache.NewCacheManager(nil)
	}
	if config.SubmissionLockTTL <= 0 {
		config.SubmissionLockTTL = cache.LockCacheConfig.TTL
	}
	if config.SweepBatchSize <= 0 {
		config.SweepBatchSize = 100
	}
	return &attemptService{
		repo:         repo,
		db:           db,
		logger:       logger,
		validator:    validator,
		resolver:     resolver,
		cacheManager: cacheManager,
		notifier:     notifier,
		config:       config,
		now:          time.Now,
	}
}

// pendingSubmission carries everything needed to grade and persist one
// attempt, whether it came from the student or from an expired session.
type pendingSubmission struct {
	quiz      *models.Quiz
	studentID string
	session   *models.QuizSession
	answers   []AnswerRequest
	key       string
	endReason string
	lenient   bool
	startedAt time.Time
}

// ===== DISPLAY AND SESSIONS =====

func (s *attemptService) GetQuizForDisplay(ctx context.Context, userID string, quizID uint) (*QuizForAttempt, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	quiz, err := s.getQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}

	if err := s.ensureEnrolled(ctx, userID, quiz.CourseID); err != nil {
		if !errors.Is(err, ErrNotEnrolled) || !s.isInstructor(ctx, userID) {
			return nil, err
		}
	}

	return s.resolver.QuizForDisplay(ctx, quizID)
}

// StartAttempt opens a server-side session. Timed quizzes get a deadline
// that the submit path enforces. A student has at most one running session
// per quiz; starting again resumes it.
func (s *attemptService) StartAttempt(ctx context.Context, studentID string, quizID uint) (*StartAttemptResponse, error) {
	s.logger.Info("Starting quiz attempt",
		"quiz_id", quizID,
		"student_id", studentID)

	if studentID == "" {
		return nil, ErrUnauthenticated
	}

	quiz, err := s.getQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureEnrolled(ctx, studentID, quiz.CourseID); err != nil {
		return nil, err
	}

	open, err := s.openSession(ctx, studentID, quizID)
	if err != nil {
		return nil, err
	}

	used, err := s.repo.Attempt().CountByStudentAndQuiz(ctx, s.db, studentID, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}
	if quiz.MaxAttempts > 0 && int(used) >= quiz.MaxAttempts {
		return nil, ErrAttemptLimitExceeded
	}

	display, err := s.resolver.QuizForDisplay(ctx, quizID)
	if err != nil {
		return nil, err
	}

	if open != nil {
		s.logger.Info("Quiz session resumed",
			"session_id", open.ID,
			"quiz_id", quizID,
			"student_id", studentID)
		return &StartAttemptResponse{
			SessionToken: open.Token,
			StartedAt:    open.StartedAt,
			DeadlineAt:   open.DeadlineAt,
			AttemptsUsed: int(used),
			Resumed:      true,
			Quiz:         display,
		}, nil
	}

	drafts, err := encodeDrafts(nil)
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := &models.QuizSession{
		Token:        uuid.NewString(),
		StudentID:    studentID,
		QuizID:       quizID,
		Status:       models.SessionInProgress,
		StartedAt:    now,
		DraftAnswers: drafts,
	}
	if limit := quiz.TimeLimit(); limit > 0 {
		deadline := now.Add(limit)
		session.DeadlineAt = &deadline
	}

	if err := s.repo.Session().Create(ctx, s.db, session); err != nil {
		return nil, newPersistenceError("create quiz session", err)
	}

	s.logger.Info("Quiz session started",
		"session_id", session.ID,
		"quiz_id", quizID,
		"student_id", studentID,
		"deadline_at", session.DeadlineAt)

	return &StartAttemptResponse{
		SessionToken: session.Token,
		StartedAt:    session.StartedAt,
		DeadlineAt:   session.DeadlineAt,
		AttemptsUsed: int(used),
		Quiz:         display,
	}, nil
}

// SaveDraft replaces the stored draft. Drafts are validated like a real
// submission so that grading them at the deadline cannot fail.
func (s *attemptService) SaveDraft(ctx context.Context, studentID, token string, req *SaveDraftRequest) error {
	if studentID == "" {
		return ErrUnauthenticated
	}
	if err := s.validator.Validate(req); err != nil {
		return wrapValidation(err)
	}

	session, err := s.getSession(ctx, token)
	if err != nil {
		return err
	}
	if session.StudentID != studentID {
		return NewPermissionError(studentID, session.ID, "quiz session", "update", "not owned by student")
	}
	if session.Status != models.SessionInProgress {
		return ErrSessionClosed
	}
	if session.Expired(s.now()) {
		return ErrSessionExpired
	}

	questions, err := s.repo.Quiz().GetQuestions(ctx, s.db, session.QuizID)
	if err != nil {
		return fmt.Errorf("failed to get quiz questions: %w", err)
	}
	set, err := s.resolver.ResolveQuiz(ctx, s.db, questions)
	if err != nil {
		return err
	}
	if _, err := s.gradeAnswers(questions, set, req.Answers, false); err != nil {
		return err
	}

	drafts, err := encodeDrafts(req.Answers)
	if err != nil {
		return err
	}
	if err := s.repo.Session().SaveDraft(ctx, s.db, session.ID, drafts); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrSessionClosed
		}
		return newPersistenceError("save draft answers", err)
	}

	s.logger.Debug("Draft answers saved",
		"session_id", session.ID,
		"answers", len(req.Answers))
	return nil
}

// ExpireSession grades an overdue session with its saved drafts
func (s *attemptService) ExpireSession(ctx context.Context, userID, token string) (*AttemptResponse, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	session, err := s.getSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if session.StudentID != userID && !s.isInstructor(ctx, userID) {
		return nil, NewPermissionError(userID, session.ID, "quiz session", "expire", "not owned by user")
	}

	return s.expire(ctx, session)
}

// ExpireOverdueSessions is run periodically so that abandoned timed sessions
// still produce an attempt. Sessions that fail and stay running are paged
// past, so they cannot starve the rest of the backlog.
func (s *attemptService) ExpireOverdueSessions(ctx context.Context) (int, error) {
	now := s.now()
	expired, skipped := 0, 0

	for {
		sessions, err := s.repo.Session().ListOverdue(ctx, s.db, now, s.config.SweepBatchSize, skipped)
		if err != nil {
			return expired, fmt.Errorf("failed to list overdue sessions: %w", err)
		}

		for _, session := range sessions {
			if err := ctx.Err(); err != nil {
				return expired, err
			}
			_, err := s.expire(ctx, session)
			switch {
			case err == nil:
				expired++
			case errors.Is(err, ErrAttemptLimitExceeded), errors.Is(err, ErrQuizNotFound):
				// closed without an attempt
				expired++
			case errors.Is(err, ErrSessionClosed):
				// closed by a concurrent submit
			default:
				s.logger.Error("Failed to expire quiz session",
					"error", err,
					"session_id", session.ID,
					"student_id", session.StudentID)
				skipped++
			}
		}

		if len(sessions) < s.config.SweepBatchSize {
			break
		}
	}

	if expired > 0 {
		s.logger.Info("Overdue quiz sessions expired", "count", expired)
	}
	return expired, nil
}

func (s *attemptService) expire(ctx context.Context, session *models.QuizSession) (*AttemptResponse, error) {
	quiz, err := s.getQuiz(ctx, session.QuizID)
	if err != nil {
		if errors.Is(err, ErrQuizNotFound) && session.Status == models.SessionInProgress && session.Expired(s.now()) {
			if closeErr := s.abandonSession(ctx, session, "quiz no longer exists"); closeErr != nil {
				return nil, closeErr
			}
		}
		return nil, err
	}

	if session.Status != models.SessionInProgress {
		return s.closedSessionAttempt(ctx, session, quiz)
	}
	if !session.Expired(s.now()) {
		return nil, ErrSessionNotExpired
	}

	drafts, err := decodeDrafts(session.DraftAnswers)
	if err != nil {
		return nil, err
	}

	response, err := s.submit(ctx, &pendingSubmission{
		quiz:      quiz,
		studentID: session.StudentID,
		session:   session,
		answers:   drafts,
		key:       session.Token,
		endReason: models.AttemptEndReasonTimeout,
		lenient:   true,
		startedAt: session.StartedAt,
	})
	if errors.Is(err, ErrAttemptLimitExceeded) || errors.Is(err, ErrQuizNotFound) {
		// The session can never be graded
		if closeErr := s.abandonSession(ctx, session, err.Error()); closeErr != nil {
			return nil, closeErr
		}
	}
	return response, err
}

// ===== SUBMISSION =====

func (s *attemptService) SubmitAttempt(ctx context.Context, studentID string, quizID uint, req *SubmitAttemptRequest) (*AttemptResponse, error) {
	s.logger.Info("Submitting quiz attempt",
		"quiz_id", quizID,
		"student_id", studentID)

	if studentID == "" {
		return nil, ErrUnauthenticated
	}
	if req == nil {
		req = &SubmitAttemptRequest{}
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, wrapValidation(err)
	}

	quiz, err := s.getQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureEnrolled(ctx, studentID, quiz.CourseID); err != nil {
		return nil, err
	}

	now := s.now()
	pending := &pendingSubmission{
		quiz:      quiz,
		studentID: studentID,
		answers:   req.Answers,
		key:       req.SubmissionKey,
		endReason: models.AttemptEndReasonSubmitted,
		startedAt: now,
	}

	if req.SessionToken != "" {
		session, err := s.getSession(ctx, req.SessionToken)
		if err != nil {
			return nil, err
		}
		if session.StudentID != studentID {
			return nil, NewPermissionError(studentID, session.ID, "quiz session", "submit", "not owned by student")
		}
		if session.QuizID != quizID {
			return nil, NewValidationErrors(validator.ValidationError{
				Field:   "session_token",
				Message: "session belongs to another quiz",
				Rule:    "session_quiz",
			})
		}
		if session.Status != models.SessionInProgress {
			return s.closedSessionAttempt(ctx, session, quiz)
		}

		pending.session = session
		pending.startedAt = session.StartedAt
		if pending.key == "" {
			pending.key = session.Token
		}

		if session.Expired(now) {
			drafts, err := decodeDrafts(session.DraftAnswers)
			if err != nil {
				return nil, err
			}
			s.logger.Info("Late submission graded with saved drafts",
				"session_id", session.ID,
				"deadline_at", session.DeadlineAt)
			pending.answers = drafts
			pending.endReason = models.AttemptEndReasonTimeout
			pending.lenient = true
		}
	} else if quiz.TimeLimit() > 0 {
		return nil, ErrSessionRequired
	}

	if pending.key == "" {
		pending.key = uuid.NewString()
	}

	return s.submit(ctx, pending)
}

// submit runs the idempotency checks and persists the attempt. The same
// submission key always maps to one attempt row.
func (s *attemptService) submit(ctx context.Context, pending *pendingSubmission) (*AttemptResponse, error) {
	if existing, err := s.findBySubmissionKey(ctx, pending); existing != nil || err != nil {
		return existing, err
	}

	lockKey := "submission:" + pending.key
	locked, err := s.cacheManager.Lock.AcquireLock(ctx, lockKey, s.config.SubmissionLockTTL)
	switch {
	case err != nil:
		s.logger.Warn("Submission lock unavailable, relying on database constraints",
			"error", err,
			"quiz_id", pending.quiz.ID)
	case !locked:
		return nil, ErrSubmissionInFlight
	default:
		defer func() {
			if err := s.cacheManager.Lock.ReleaseLock(context.WithoutCancel(ctx), lockKey); err != nil {
				s.logger.Warn("Failed to release submission lock", "error", err)
			}
		}()
	}

	var (
		attempt *models.QuizAttempt
		outcome *gradingOutcome
	)
	for try := 1; ; try++ {
		attempt, outcome, err = s.persistAttempt(ctx, pending)
		if err == nil {
			break
		}

		if errors.Is(err, ErrSessionClosed) && pending.session != nil {
			// Another request closed the session first
			session, lookupErr := s.getSession(ctx, pending.session.Token)
			if lookupErr != nil {
				return nil, lookupErr
			}
			return s.closedSessionAttempt(ctx, session, pending.quiz)
		}

		if !repositories.IsDuplicateError(err) {
			return nil, err
		}
		if existing, lookupErr := s.findBySubmissionKey(ctx, pending); existing != nil || lookupErr != nil {
			return existing, lookupErr
		}
		if try >= maxAttemptNumberRetries {
			return nil, err
		}
		s.logger.Warn("Attempt number taken concurrently, retrying",
			"quiz_id", pending.quiz.ID,
			"student_id", pending.studentID,
			"try", try)
	}

	cache.InvalidateQuizStats(ctx, s.cacheManager, pending.quiz.ID)

	s.logger.Info("Quiz attempt graded",
		"attempt_id", attempt.ID,
		"quiz_id", attempt.QuizID,
		"student_id", attempt.StudentID,
		"attempt_number", attempt.AttemptNumber,
		"score", attempt.Score,
		"passed", attempt.Passed,
		"end_reason", attempt.EndReason)

	status := "not passed"
	if attempt.Passed {
		status = "passed"
	}
	notifyBestEffort(ctx, s.notifier, s.logger, &models.Notification{
		UserID:  attempt.StudentID,
		Type:    models.NotificationQuizGraded,
		Title:   fmt.Sprintf("%s graded", pending.quiz.Title),
		Message: fmt.Sprintf("You scored %d%% (%s).", attempt.Score, status),
		Link:    fmt.Sprintf("/attempts/%d", attempt.ID),
	})

	response := s.toResponse(attempt, pending.quiz, false)
	response.PendingReview = outcome.pendingReview
	return response, nil
}

// persistAttempt grades and writes the attempt with all of its answers in
// one transaction. Any failure leaves no rows behind.
func (s *attemptService) persistAttempt(ctx context.Context, pending *pendingSubmission) (*models.QuizAttempt, *gradingOutcome, error) {
	var (
		attempt *models.QuizAttempt
		outcome *gradingOutcome
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if pending.session != nil {
			session, err := s.repo.Session().GetByTokenForUpdate(ctx, tx, pending.session.Token)
			if err != nil {
				return newPersistenceError("lock quiz session", err)
			}
			if session.Status != models.SessionInProgress {
				return ErrSessionClosed
			}
		}

		// Passing score and attempt limit come from the store, not the cache
		quiz, err := s.repo.Quiz().GetSettings(ctx, tx, pending.quiz.ID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrQuizNotFound
			}
			return newPersistenceError("load quiz", err)
		}
		pending.quiz = quiz

		questions, err := s.repo.Quiz().GetQuestions(ctx, tx, quiz.ID)
		if err != nil {
			return newPersistenceError("load quiz questions", err)
		}

		set, err := s.resolver.ResolveQuiz(ctx, tx, questions)
		if err != nil {
			return newPersistenceError("resolve options", err)
		}

		outcome, err = s.gradeAnswers(questions, set, pending.answers, pending.lenient)
		if err != nil {
			return err
		}

		used, err := s.repo.Attempt().CountByStudentAndQuiz(ctx, tx, pending.studentID, pending.quiz.ID)
		if err != nil {
			return newPersistenceError("count attempts", err)
		}
		if pending.quiz.MaxAttempts > 0 && int(used) >= pending.quiz.MaxAttempts {
			return ErrAttemptLimitExceeded
		}

		score := percentageOf(outcome.correct, outcome.total)
		attempt = &models.QuizAttempt{
			StudentID:      pending.studentID,
			QuizID:         pending.quiz.ID,
			AttemptNumber:  int(used) + 1,
			SubmissionKey:  pending.key,
			Score:          score,
			Passed:         score >= pending.quiz.PassingScore,
			CorrectCount:   outcome.correct,
			TotalQuestions: outcome.total,
			EndReason:      pending.endReason,
			StartedAt:      pending.startedAt,
			SubmittedAt:    s.now(),
		}
		if err := s.repo.Attempt().Create(ctx, tx, attempt); err != nil {
			return newPersistenceError("create attempt", err)
		}

		for _, answer := range outcome.answers {
			answer.AttemptID = attempt.ID
		}
		if err := s.repo.Attempt().CreateAnswers(ctx, tx, outcome.answers); err != nil {
			return newPersistenceError("create answers", err)
		}

		if pending.session != nil {
			status := models.SessionSubmitted
			if pending.endReason == models.AttemptEndReasonTimeout {
				status = models.SessionExpired
			}
			if err := s.repo.Session().Close(ctx, tx, pending.session.ID, status, &attempt.ID); err != nil {
				if repositories.IsNotFoundError(err) {
					return ErrSessionClosed
				}
				return newPersistenceError("close quiz session", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	attempt.Answers = make([]models.QuizAnswer, 0, len(outcome.answers))
	for _, answer := range outcome.answers {
		attempt.Answers = append(attempt.Answers, *answer)
	}
	return attempt, outcome, nil
}

// findBySubmissionKey returns the committed attempt for the key, if any. A
// key reused by another student or for another quiz is a conflict.
func (s *attemptService) findBySubmissionKey(ctx context.Context, pending *pendingSubmission) (*AttemptResponse, error) {
	existing, err := s.repo.Attempt().GetBySubmissionKey(ctx, s.db, pending.key)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up submission key: %w", err)
	}

	if existing.StudentID != pending.studentID || existing.QuizID != pending.quiz.ID {
		return nil, fmt.Errorf("submission key already used: %w", ErrConflict)
	}

	s.logger.Info("Duplicate submission returned existing attempt",
		"attempt_id", existing.ID,
		"quiz_id", existing.QuizID,
		"student_id", existing.StudentID)
	return s.toResponse(existing, pending.quiz, true), nil
}

// ===== READ VIEWS =====

func (s *attemptService) GetAttempt(ctx context.Context, userID string, attemptID uint) (*AttemptResponse, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	attempt, err := s.repo.Attempt().GetByIDWithAnswers(ctx, s.db, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	if attempt.StudentID != userID && !s.isInstructor(ctx, userID) {
		return nil, NewPermissionError(userID, attemptID, "attempt", "view", "not owned by user")
	}

	quiz, err := s.getQuiz(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}
	return s.toResponse(attempt, quiz, false), nil
}

func (s *attemptService) ListAttempts(ctx context.Context, studentID string, quizID uint) ([]*AttemptResponse, error) {
	if studentID == "" {
		return nil, ErrUnauthenticated
	}

	quiz, err := s.getQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}

	attempts, err := s.repo.Attempt().ListByStudentAndQuiz(ctx, s.db, studentID, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	responses := make([]*AttemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		responses = append(responses, s.toResponse(attempt, quiz, false))
	}
	return responses, nil
}

func (s *attemptService) GetStats(ctx context.Context, quizID uint) (*repositories.AttemptStats, error) {
	if _, err := s.getQuiz(ctx, quizID); err != nil {
		return nil, err
	}

	stats, err := s.repo.Attempt().GetStats(ctx, s.db, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt stats: %w", err)
	}
	return stats, nil
}

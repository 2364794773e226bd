package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/SAP-F-2025/learning-progress-service/internal/models"
	"github.com/SAP-F-2025/learning-progress-service/internal/repositories"
	"github.com/SAP-F-2025/learning-progress-service/internal/validator"
	"gorm.io/datatypes"
)

// percentageOf rounds 100*part/whole half up using integer math. An empty
// whole yields 0.
func percentageOf(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return (200*part + whole) / (2 * whole)
}

// gradingOutcome is the scored, not yet persisted form of an attempt
type gradingOutcome struct {
	answers       []*models.QuizAnswer
	correct       int
	total         int
	pendingReview int
}

// gradeAnswers checks the submitted answers against the quiz and scores them
// with the options resolved for this operation. In lenient mode invalid
// answers are dropped instead of failing the call; saved drafts are graded
// that way because the student can no longer fix them.
func (s *attemptService) gradeAnswers(questions []*models.QuizQuestion, set OptionSet, submitted []AnswerRequest, lenient bool) (*gradingOutcome, error) {
	byID := make(map[uint]*models.QuizQuestion, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	accepted := make(map[uint]AnswerRequest, len(submitted))
	var errs validator.ValidationErrors

	for i, answer := range submitted {
		if verr := s.checkAnswer(i, answer, byID, set, accepted); verr != nil {
			if lenient {
				s.logger.Warn("Dropping invalid draft answer",
					"question_id", answer.QuestionID,
					"reason", verr.Message)
				continue
			}
			errs = append(errs, *verr)
			continue
		}
		accepted[answer.QuestionID] = answer
	}

	if len(errs) > 0 {
		return nil, NewValidationErrors(errs...)
	}

	outcome := &gradingOutcome{
		answers: make([]*models.QuizAnswer, 0, len(questions)),
		total:   len(questions),
	}

	for _, q := range questions {
		row := &models.QuizAnswer{QuestionID: q.ID}
		resolved := set[q.ID]
		answer, answered := accepted[q.ID]

		switch {
		case q.QuestionType.IsOptionBased():
			correct := false
			if answered {
				option, _ := resolved.Find(*answer.OptionID)
				id := option.ID
				row.OptionSource = resolved.Source
				if resolved.Source == models.OptionSourceCurrent {
					row.SelectedOptionID = &id
				} else {
					// Legacy ids mean nothing outside the legacy table, so the
					// label is kept alongside the id.
					row.LegacyOptionID = &id
					text := option.Text
					row.AnswerText = &text
				}
				correct = option.IsCorrect
			}
			row.IsCorrect = &correct
			if correct {
				outcome.correct++
			}

		case q.QuestionType.IsAutoGradable():
			correct := false
			if answered {
				text := *answer.Text
				row.AnswerText = &text
				if len(resolved.Options) > 0 {
					row.OptionSource = resolved.Source
				}
				correct = resolved.MatchesCorrectText(text)
			}
			row.IsCorrect = &correct
			if correct {
				outcome.correct++
			}

		default:
			// Essay and short answer wait for a human; they never count as correct
			if answered {
				text := *answer.Text
				row.AnswerText = &text
				outcome.pendingReview++
			}
		}

		outcome.answers = append(outcome.answers, row)
	}

	return outcome, nil
}

func (s *attemptService) checkAnswer(index int, answer AnswerRequest, byID map[uint]*models.QuizQuestion, set OptionSet, accepted map[uint]AnswerRequest) *validator.ValidationError {
	field := fmt.Sprintf("answers[%d]", index)

	question, ok := byID[answer.QuestionID]
	if !ok {
		return &validator.ValidationError{
			Field:   field + ".question_id",
			Message: "question does not belong to this quiz",
			Value:   answer.QuestionID,
			Rule:    "quiz_question",
		}
	}

	if _, dup := accepted[answer.QuestionID]; dup {
		return &validator.ValidationError{
			Field:   field + ".question_id",
			Message: "question answered more than once",
			Value:   answer.QuestionID,
			Rule:    "unique_answer",
		}
	}

	if verr := s.validator.Business().ValidateAnswerShape(question.QuestionType, answer); verr != nil {
		return verr
	}

	if question.QuestionType.IsOptionBased() {
		resolved, ok := set[question.ID]
		if !ok {
			return &validator.ValidationError{Field: field + ".option_id", Message: "question has no options", Rule: "resolved_option"}
		}
		if _, found := resolved.Find(*answer.OptionID); !found {
			return &validator.ValidationError{
				Field:   field + ".option_id",
				Message: "option does not belong to this question",
				Value:   *answer.OptionID,
				Rule:    "resolved_option",
			}
		}
	}

	return nil
}

func encodeDrafts(answers []AnswerRequest) (datatypes.JSON, error) {
	if answers == nil {
		answers = []AnswerRequest{}
	}
	payload, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode draft answers: %w", err)
	}
	return datatypes.JSON(payload), nil
}

func decodeDrafts(raw datatypes.JSON) ([]AnswerRequest, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var answers []AnswerRequest
	if err := json.Unmarshal(raw, &answers); err != nil {
		return nil, fmt.Errorf("failed to decode draft answers: %w", err)
	}
	return answers, nil
}

func countPendingReview(answers []models.QuizAnswer) int {
	pending := 0
	for _, a := range answers {
		if a.IsCorrect == nil && a.AnswerText != nil {
			pending++
		}
	}
	return pending
}

func (s *attemptService) toResponse(attempt *models.QuizAttempt, quiz *models.Quiz, duplicate bool) *AttemptResponse {
	response := &AttemptResponse{
		QuizAttempt:   attempt,
		PendingReview: countPendingReview(attempt.Answers),
		Duplicate:     duplicate,
	}
	if quiz != nil {
		response.PassingScore = quiz.PassingScore
	}
	return response
}

func (s *attemptService) getQuiz(ctx context.Context, quizID uint) (*models.Quiz, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, s.db, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	return quiz, nil
}

func (s *attemptService) ensureEnrolled(ctx context.Context, studentID string, courseID uint) error {
	enrolled, err := s.repo.Enrollment().Exists(ctx, s.db, studentID, courseID)
	if err != nil {
		return fmt.Errorf("failed to check enrollment: %w", err)
	}
	if !enrolled {
		return ErrNotEnrolled
	}
	return nil
}

// isInstructor asks the identity provider; lookup failures deny access
func (s *attemptService) isInstructor(ctx context.Context, userID string) bool {
	ok, err := s.repo.User().HasRole(ctx, userID, models.RoleTeacher)
	if err != nil {
		s.logger.Warn("Failed to resolve user role", "error", err, "user_id", userID)
		return false
	}
	return ok
}

func (s *attemptService) getSession(ctx context.Context, token string) (*models.QuizSession, error) {
	session, err := s.repo.Session().GetByToken(ctx, s.db, token)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get quiz session: %w", err)
	}
	return session, nil
}

// openSession returns the running session a new start should resume. A
// running session already past its deadline is graded first, so that it
// counts against the attempt limit.
func (s *attemptService) openSession(ctx context.Context, studentID string, quizID uint) (*models.QuizSession, error) {
	session, err := s.repo.Session().GetOpen(ctx, s.db, studentID, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get open quiz session: %w", err)
	}
	if !session.Expired(s.now()) {
		return session, nil
	}

	if _, err := s.expire(ctx, session); err != nil &&
		!errors.Is(err, ErrAttemptLimitExceeded) && !errors.Is(err, ErrSessionClosed) {
		return nil, err
	}
	return nil, nil
}

// abandonSession closes an overdue session that can never produce an
// attempt, so it drops out of the overdue listing.
func (s *attemptService) abandonSession(ctx context.Context, session *models.QuizSession, reason string) error {
	err := s.repo.Session().Close(ctx, s.db, session.ID, models.SessionExpired, nil)
	if err != nil && !repositories.IsNotFoundError(err) {
		return newPersistenceError("close abandoned quiz session", err)
	}

	s.logger.Warn("Quiz session closed without an attempt",
		"session_id", session.ID,
		"quiz_id", session.QuizID,
		"student_id", session.StudentID,
		"reason", reason)
	return nil
}

// closedSessionAttempt returns the attempt a finished session produced
func (s *attemptService) closedSessionAttempt(ctx context.Context, session *models.QuizSession, quiz *models.Quiz) (*AttemptResponse, error) {
	if session.AttemptID == nil {
		return nil, ErrSessionClosed
	}
	attempt, err := s.repo.Attempt().GetByIDWithAnswers(ctx, s.db, *session.AttemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return s.toResponse(attempt, quiz, true), nil
}

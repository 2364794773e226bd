package models

import (
	"time"

	"gorm.io/datatypes"
)

// OptionSource tags which option storage generation a question's options
// were read from.
type OptionSource string

const (
	OptionSourceCurrent OptionSource = "current"
	OptionSourceLegacy  OptionSource = "legacy"
)

const (
	AttemptEndReasonSubmitted = "submitted"
	AttemptEndReasonTimeout   = "time_out"
)

// QuizAttempt is immutable once created. Retakes produce new rows with an
// increasing AttemptNumber.
type QuizAttempt struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	StudentID      string    `json:"student_id" gorm:"not null;size:255;index;uniqueIndex:idx_attempt_student_quiz_number"`
	QuizID         uint      `json:"quiz_id" gorm:"not null;index;uniqueIndex:idx_attempt_student_quiz_number"`
	AttemptNumber  int       `json:"attempt_number" gorm:"not null;uniqueIndex:idx_attempt_student_quiz_number"`
	SubmissionKey  string    `json:"-" gorm:"not null;size:64;uniqueIndex"`
	Score          int       `json:"score" gorm:"not null"`
	Passed         bool      `json:"passed" gorm:"not null"`
	CorrectCount   int       `json:"correct_count" gorm:"not null"`
	TotalQuestions int       `json:"total_questions" gorm:"not null"`
	EndReason      string    `json:"end_reason" gorm:"size:20;not null;default:submitted"`
	StartedAt      time.Time `json:"started_at"`
	SubmittedAt    time.Time `json:"submitted_at"`
	CreatedAt      time.Time `json:"created_at"`

	Answers []QuizAnswer `json:"answers,omitempty" gorm:"foreignKey:AttemptID"`
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}

// QuizAnswer stores one answer per question of an attempt. Exactly one of
// SelectedOptionID / LegacyOptionID is set for option-based questions,
// matching OptionSource. IsCorrect is nil for answers that need manual review.
type QuizAnswer struct {
	ID               uint         `json:"id" gorm:"primaryKey"`
	AttemptID        uint         `json:"attempt_id" gorm:"not null;index"`
	QuestionID       uint         `json:"question_id" gorm:"not null;index"`
	OptionSource     OptionSource `json:"option_source" gorm:"size:10"`
	SelectedOptionID *uint        `json:"selected_option_id"`
	LegacyOptionID   *uint        `json:"legacy_option_id"`
	AnswerText       *string      `json:"answer_text" gorm:"type:text"`
	IsCorrect        *bool        `json:"is_correct"`
	CreatedAt        time.Time    `json:"created_at"`
}

func (QuizAnswer) TableName() string {
	return "quiz_answers"
}

type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionSubmitted  SessionStatus = "submitted"
	SessionExpired    SessionStatus = "expired"
)

// QuizSession is the server-side clock for a running attempt. Draft answers
// saved before the deadline are what gets graded when time runs out.
type QuizSession struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	Token        string         `json:"token" gorm:"not null;size:64;uniqueIndex"`
	StudentID    string         `json:"student_id" gorm:"not null;size:255;index"`
	QuizID       uint           `json:"quiz_id" gorm:"not null;index"`
	Status       SessionStatus  `json:"status" gorm:"size:20;not null;default:in_progress"`
	StartedAt    time.Time      `json:"started_at"`
	DeadlineAt   *time.Time     `json:"deadline_at"`
	DraftAnswers datatypes.JSON `json:"draft_answers" gorm:"type:jsonb"`
	AttemptID    *uint          `json:"attempt_id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (QuizSession) TableName() string {
	return "quiz_sessions"
}

// Expired reports whether the deadline has passed at the given instant.
func (s *QuizSession) Expired(now time.Time) bool {
	return s.DeadlineAt != nil && now.After(*s.DeadlineAt)
}

package models

import (
	"time"
)

type SubmissionStatus string

const (
	SubmissionNotSubmitted SubmissionStatus = "not_submitted"
	SubmissionSubmitted    SubmissionStatus = "submitted"
	SubmissionGraded       SubmissionStatus = "graded"
)

type Assignment struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	CourseID  uint       `json:"course_id" gorm:"not null;index"`
	Title     string     `json:"title" gorm:"not null;size:200"`
	MaxScore  int        `json:"max_score" gorm:"not null;default:100"`
	DueAt     *time.Time `json:"due_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (Assignment) TableName() string {
	return "assignments"
}

// AssignmentSubmission keeps the latest submission per (student, assignment).
type AssignmentSubmission struct {
	ID           uint             `json:"id" gorm:"primaryKey"`
	StudentID    string           `json:"student_id" gorm:"not null;size:255;uniqueIndex:idx_submission_student_assignment"`
	AssignmentID uint             `json:"assignment_id" gorm:"not null;uniqueIndex:idx_submission_student_assignment;index"`
	Status       SubmissionStatus `json:"status" gorm:"size:20;not null;default:not_submitted"`
	Content      string           `json:"content" gorm:"type:text"`
	Score        *int             `json:"score"`
	Feedback     *string          `json:"feedback" gorm:"type:text"`
	GradedBy     *string          `json:"graded_by" gorm:"size:255"`
	GradedAt     *time.Time       `json:"graded_at"`
	SubmittedAt  *time.Time       `json:"submitted_at"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`

	Assignment *Assignment `json:"assignment,omitempty" gorm:"foreignKey:AssignmentID"`
}

func (AssignmentSubmission) TableName() string {
	return "assignment_submissions"
}

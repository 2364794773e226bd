package models

import (
	"time"
)

type QuestionType string

const (
	SingleSelect QuestionType = "single_select"
	TrueFalse    QuestionType = "true_false"
	ShortAnswer  QuestionType = "short_answer"
	Essay        QuestionType = "essay"
	FillBlank    QuestionType = "fill_blank"
)

// IsOptionBased reports whether answers reference a stored option.
func (t QuestionType) IsOptionBased() bool {
	return t == SingleSelect || t == TrueFalse
}

// IsAutoGradable reports whether the scoring engine can decide correctness.
func (t QuestionType) IsAutoGradable() bool {
	return t == SingleSelect || t == TrueFalse || t == FillBlank
}

type Quiz struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	CourseID         uint      `json:"course_id" gorm:"not null;index"`
	ModuleID         *uint     `json:"module_id" gorm:"index"`
	LessonID         *uint     `json:"lesson_id" gorm:"index"`
	Title            string    `json:"title" gorm:"not null;size:200"`
	PassingScore     int       `json:"passing_score" gorm:"not null;default:60"`
	TimeLimitMinutes *int      `json:"time_limit_minutes"`
	MaxAttempts      int       `json:"max_attempts" gorm:"not null;default:0"` // 0 means unlimited
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	Questions []QuizQuestion `json:"questions,omitempty" gorm:"foreignKey:QuizID"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

// TimeLimit returns the configured limit, or zero when the quiz is untimed.
func (q *Quiz) TimeLimit() time.Duration {
	if q.TimeLimitMinutes == nil || *q.TimeLimitMinutes <= 0 {
		return 0
	}
	return time.Duration(*q.TimeLimitMinutes) * time.Minute
}

type QuizQuestion struct {
	ID           uint         `json:"id" gorm:"primaryKey"`
	QuizID       uint         `json:"quiz_id" gorm:"not null;index"`
	QuestionText string       `json:"question_text" gorm:"type:text;not null"`
	QuestionType QuestionType `json:"question_type" gorm:"size:20;not null"`
	Order        int          `json:"order" gorm:"column:order_index;not null;default:0"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (QuizQuestion) TableName() string {
	return "quiz_questions"
}

// QuizOption is the current option storage generation.
type QuizOption struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	QuestionID uint      `json:"question_id" gorm:"not null;index"`
	OptionText string    `json:"option_text" gorm:"type:text;not null"`
	IsCorrect  bool      `json:"is_correct" gorm:"not null;default:false"`
	OrderIndex int       `json:"order_index" gorm:"not null;default:0"`
	CreatedAt  time.Time `json:"created_at"`
}

func (QuizOption) TableName() string {
	return "quiz_options"
}

// LegacyQuizOption is the earlier option storage generation. Questions
// authored before the migration still keep their options here, under the
// old column names. IDs are not comparable with QuizOption IDs.
type LegacyQuizOption struct {
	ID             uint   `json:"id" gorm:"primaryKey"`
	QuizQuestionID uint   `json:"quiz_question_id" gorm:"not null;index"`
	ChoiceLabel    string `json:"choice_label" gorm:"type:text;not null"`
	Correct        bool   `json:"correct" gorm:"not null;default:false"`
	Position       int    `json:"position" gorm:"not null;default:0"`
}

func (LegacyQuizOption) TableName() string {
	return "question_choices"
}

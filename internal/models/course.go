package models

import (
	"time"
)

// Course, Module and Lesson are catalog data owned by the authoring side.
// This service only reads them.
type Course struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Title     string    `json:"title" gorm:"not null;size:200"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Modules []Module `json:"modules,omitempty" gorm:"foreignKey:CourseID"`
}

type Module struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CourseID  uint      `json:"course_id" gorm:"not null;index"`
	Title     string    `json:"title" gorm:"not null;size:200"`
	Order     int       `json:"order" gorm:"column:order_index;not null;default:0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Lessons []Lesson `json:"lessons,omitempty" gorm:"foreignKey:ModuleID"`
}

type Lesson struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	ModuleID  uint      `json:"module_id" gorm:"not null;index"`
	Title     string    `json:"title" gorm:"not null;size:200"`
	Order     int       `json:"order" gorm:"column:order_index;not null;default:0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Course) TableName() string {
	return "courses"
}

func (Module) TableName() string {
	return "modules"
}

func (Lesson) TableName() string {
	return "lessons"
}

// Enrollment links a student to a course. ProgressPercentage is a derived
// value written only by the progress recalculator.
type Enrollment struct {
	ID                 uint       `json:"id" gorm:"primaryKey"`
	StudentID          string     `json:"student_id" gorm:"not null;size:255;uniqueIndex:idx_enrollment_student_course"`
	CourseID           uint       `json:"course_id" gorm:"not null;uniqueIndex:idx_enrollment_student_course"`
	ProgressPercentage int        `json:"progress_percentage" gorm:"not null;default:0"`
	CompletedAt        *time.Time `json:"completed_at"`
	EnrolledAt         time.Time  `json:"enrolled_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}

// LessonCompletion is the source of truth for progress. One row per
// (student, lesson); CompletedAt is set if and only if Completed is true.
type LessonCompletion struct {
	ID               uint       `json:"id" gorm:"primaryKey"`
	StudentID        string     `json:"student_id" gorm:"not null;size:255;uniqueIndex:idx_completion_student_lesson"`
	LessonID         uint       `json:"lesson_id" gorm:"not null;uniqueIndex:idx_completion_student_lesson;index"`
	Completed        bool       `json:"completed" gorm:"not null;default:false"`
	CompletedAt      *time.Time `json:"completed_at"`
	FirstCompletedAt *time.Time `json:"first_completed_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (LessonCompletion) TableName() string {
	return "lesson_completions"
}

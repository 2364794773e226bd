package services

import (
	"context"
	"time"

	"github.com/SAP-F-2025/learning-progress-service/internal/models"
	"github.com/SAP-F-2025/learning-progress-service/internal/repositories"
	"github.com/SAP-F-2025/learning-progress-service/internal/validator"
	"gorm.io/gorm"
)

// ===== REQUEST/RESPONSE DTOs =====

// Use business validator types
type AnswerRequest = validator.AnswerRequest
type SubmitAttemptRequest = validator.SubmitAttemptRequest
type SaveDraftRequest = validator.SaveDraftRequest
type SubmitAssignmentRequest = validator.SubmitAssignmentRequest
type GradeSubmissionRequest = validator.GradeSubmissionRequest

// ===== PROGRESS RELATED DTOs =====

// CompletionRecorded is the command emitted after a completion row changes.
// The handler re-derives the enrollment's percentage from scratch.
type CompletionRecorded struct {
	StudentID   string
	CourseID    uint
	LessonID    uint
	Completed   bool
	CompletedAt time.Time
}

type CompletionResult struct {
	Completion         *models.LessonCompletion `json:"completion"`
	CourseID           uint                     `json:"course_id"`
	ProgressPercentage int                      `json:"progress_percentage"`
}

type ModuleProgress struct {
	ModuleID           uint   `json:"module_id"`
	Title              string `json:"title"`
	CompletedLessons   int    `json:"completed_lessons"`
	TotalLessons       int    `json:"total_lessons"`
	ProgressPercentage int    `json:"progress_percentage"`
}

type ProgressResponse struct {
	StudentID          string           `json:"student_id"`
	CourseID           uint             `json:"course_id"`
	ProgressPercentage int              `json:"progress_percentage"`
	CompletedLessons   int              `json:"completed_lessons"`
	TotalLessons       int              `json:"total_lessons"`
	CompletedAt        *time.Time       `json:"completed_at"`
	Modules            []ModuleProgress `json:"modules"`
}

type BulkRecalculationResult struct {
	CourseID     uint     `json:"course_id"`
	Recalculated int      `json:"recalculated"`
	Failed       []string `json:"failed,omitempty"`
}

// ===== OPTION RELATED DTOs =====

type ResolvedOption struct {
	ID        uint   `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
	Order     int    `json:"order"`
}

// ResolvedOptions holds the options of one question, all read from a single
// storage generation named by Source.
type ResolvedOptions struct {
	QuestionID uint                `json:"question_id"`
	Source     models.OptionSource `json:"source"`
	Options    []ResolvedOption    `json:"options"`
}

// OptionSet maps question id to its resolved options for one operation
type OptionSet map[uint]*ResolvedOptions

// ===== ATTEMPT RELATED DTOs =====

type DisplayOption struct {
	ID    uint   `json:"id"`
	Text  string `json:"text"`
	Order int    `json:"order"`
}

type QuestionForAttempt struct {
	ID           uint                `json:"id"`
	Text         string              `json:"text"`
	Type         models.QuestionType `json:"type"`
	Order        int                 `json:"order"`
	OptionSource models.OptionSource `json:"option_source,omitempty"`
	Options      []DisplayOption     `json:"options,omitempty"`
}

type QuizForAttempt struct {
	ID               uint                 `json:"id"`
	CourseID         uint                 `json:"course_id"`
	Title            string               `json:"title"`
	PassingScore     int                  `json:"passing_score"`
	TimeLimitMinutes *int                 `json:"time_limit_minutes"`
	MaxAttempts      int                  `json:"max_attempts"`
	Questions        []QuestionForAttempt `json:"questions"`
}

type StartAttemptResponse struct {
	SessionToken string          `json:"session_token"`
	StartedAt    time.Time       `json:"started_at"`
	DeadlineAt   *time.Time      `json:"deadline_at"`
	AttemptsUsed int             `json:"attempts_used"`
	Resumed      bool            `json:"resumed"`
	Quiz         *QuizForAttempt `json:"quiz"`
}

type AttemptResponse struct {
	*models.QuizAttempt
	PassingScore  int  `json:"passing_score"`
	PendingReview int  `json:"pending_review"`
	Duplicate     bool `json:"duplicate"`
}

// ===== EXPORT =====

type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ===== SERVICE INTERFACES =====

// CompletionHandler consumes CompletionRecorded commands
type CompletionHandler interface {
	HandleCompletionRecorded(ctx context.Context, cmd CompletionRecorded) (int, error)
}

type CompletionService interface {
	RecordCompletion(ctx context.Context, studentID string, lessonID uint) (*CompletionResult, error)
	MarkIncomplete(ctx context.Context, studentID string, lessonID uint) (*CompletionResult, error)
	ListCompletions(ctx context.Context, studentID string, courseID uint) ([]*models.LessonCompletion, error)
}

type ProgressService interface {
	CompletionHandler
	Recalculate(ctx context.Context, studentID string, courseID uint) (int, error)
	RecalculateCourse(ctx context.Context, courseID uint) (*BulkRecalculationResult, error)
	GetProgress(ctx context.Context, studentID string, courseID uint) (*ProgressResponse, error)
}

type OptionResolver interface {
	Resolve(ctx context.Context, tx *gorm.DB, questionID uint) (*ResolvedOptions, error)
	ResolveQuiz(ctx context.Context, tx *gorm.DB, questions []*models.QuizQuestion) (OptionSet, error)
	QuizForDisplay(ctx context.Context, quizID uint) (*QuizForAttempt, error)
}

type AttemptService interface {
	GetQuizForDisplay(ctx context.Context, userID string, quizID uint) (*QuizForAttempt, error)
	StartAttempt(ctx context.Context, studentID string, quizID uint) (*StartAttemptResponse, error)
	SaveDraft(ctx context.Context, studentID, token string, req *SaveDraftRequest) error
	SubmitAttempt(ctx context.Context, studentID string, quizID uint, req *SubmitAttemptRequest) (*AttemptResponse, error)
	ExpireSession(ctx context.Context, userID, token string) (*AttemptResponse, error)
	ExpireOverdueSessions(ctx context.Context) (int, error)

	GetAttempt(ctx context.Context, userID string, attemptID uint) (*AttemptResponse, error)
	ListAttempts(ctx context.Context, studentID string, quizID uint) ([]*AttemptResponse, error)
	GetStats(ctx context.Context, quizID uint) (*repositories.AttemptStats, error)
}

type SubmissionService interface {
	Submit(ctx context.Context, studentID string, assignmentID uint, req *SubmitAssignmentRequest) (*models.AssignmentSubmission, error)
	Grade(ctx context.Context, instructorID string, submissionID uint, req *GradeSubmissionRequest) (*models.AssignmentSubmission, error)
	GetMySubmission(ctx context.Context, studentID string, assignmentID uint) (*models.AssignmentSubmission, error)
	GetSubmission(ctx context.Context, userID string, submissionID uint) (*models.AssignmentSubmission, error)
	ListForAssignment(ctx context.Context, assignmentID uint, filters repositories.SubmissionFilters) ([]*models.AssignmentSubmission, int64, error)
}

type ExportService interface {
	ExportQuizAttempts(ctx context.Context, quizID uint) (*ExportFile, error)
}

// NotificationDispatcher hands notifications to the delivery side. Callers
// treat failures as non-fatal.
type NotificationDispatcher interface {
	Notify(ctx context.Context, notification *models.Notification) error
}

type ServiceManager interface {
	Completion() CompletionService
	Progress() ProgressService
	Options() OptionResolver
	Attempt() AttemptService
	Submission() SubmissionService
	Export() ExportService
	Notifications() NotificationDispatcher

	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

package repositories

import (
	"context"
	"time"

	"github.com/SAP-F-2025/learning-progress-service/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ===== SHARED STRUCTS =====

// LessonLocation is a lesson together with the course it belongs to,
// resolved through its module.
type LessonLocation struct {
	LessonID uint `json:"lesson_id"`
	ModuleID uint `json:"module_id"`
	CourseID uint `json:"course_id"`
}

// CourseStructure is the ordered lesson layout of a course. It is catalog
// data and safe to cache.
type CourseStructure struct {
	CourseID uint              `json:"course_id"`
	Modules  []ModuleStructure `json:"modules"`
}

type ModuleStructure struct {
	ModuleID  uint   `json:"module_id"`
	Title     string `json:"title"`
	LessonIDs []uint `json:"lesson_ids"`
}

// LessonIDs flattens the structure in module then lesson order.
func (cs *CourseStructure) LessonIDs() []uint {
	ids := make([]uint, 0)
	for _, m := range cs.Modules {
		ids = append(ids, m.LessonIDs...)
	}
	return ids
}

type AttemptStats struct {
	QuizID         uint    `json:"quiz_id"`
	TotalAttempts  int64   `json:"total_attempts"`
	UniqueStudents int64   `json:"unique_students"`
	AverageScore   float64 `json:"average_score"`
	HighestScore   int     `json:"highest_score"`
	LowestScore    int     `json:"lowest_score"`
	PassedAttempts int64   `json:"passed_attempts"`
	PassRate       float64 `json:"pass_rate"`
}

type SubmissionFilters struct {
	Status *models.SubmissionStatus `json:"status"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

// ===== REPOSITORY INTERFACES =====

type CourseRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Course, error)
	ExistsByID(ctx context.Context, tx *gorm.DB, id uint) (bool, error)
	LocateLesson(ctx context.Context, tx *gorm.DB, lessonID uint) (*LessonLocation, error)
	LessonIDsByCourse(ctx context.Context, tx *gorm.DB, courseID uint) ([]uint, error)
	GetStructure(ctx context.Context, tx *gorm.DB, courseID uint) (*CourseStructure, error)
	InvalidateStructure(ctx context.Context, courseID uint)
}

type EnrollmentRepository interface {
	Get(ctx context.Context, tx *gorm.DB, studentID string, courseID uint) (*models.Enrollment, error)
	GetForUpdate(ctx context.Context, tx *gorm.DB, studentID string, courseID uint) (*models.Enrollment, error)
	Exists(ctx context.Context, tx *gorm.DB, studentID string, courseID uint) (bool, error)
	UpdateProgress(ctx context.Context, tx *gorm.DB, studentID string, courseID uint, percentage int, completedAt *time.Time) (int64, error)
	ListStudentIDsByCourse(ctx context.Context, tx *gorm.DB, courseID uint) ([]string, error)
}

type CompletionRepository interface {
	Upsert(ctx context.Context, tx *gorm.DB, studentID string, lessonID uint, at time.Time) error
	MarkIncomplete(ctx context.Context, tx *gorm.DB, studentID string, lessonID uint) (int64, error)
	Get(ctx context.Context, tx *gorm.DB, studentID string, lessonID uint) (*models.LessonCompletion, error)
	CountCompleted(ctx context.Context, tx *gorm.DB, studentID string, lessonIDs []uint) (int64, error)
	ListByStudent(ctx context.Context, tx *gorm.DB, studentID string, lessonIDs []uint) ([]*models.LessonCompletion, error)
}

type QuizRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error)
	// GetSettings bypasses the cache; scoring reads it inside its transaction
	GetSettings(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error)
	GetQuestions(ctx context.Context, tx *gorm.DB, quizID uint) ([]*models.QuizQuestion, error)
}

// OptionRepository reads both option storage generations. It never merges
// them; choosing between them is the option resolver's job.
type OptionRepository interface {
	GetCurrent(ctx context.Context, tx *gorm.DB, questionID uint) ([]*models.QuizOption, error)
	GetLegacy(ctx context.Context, tx *gorm.DB, questionID uint) ([]*models.LegacyQuizOption, error)
}

type AttemptRepository interface {
	Create(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error
	CreateAnswers(ctx context.Context, tx *gorm.DB, answers []*models.QuizAnswer) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error)
	GetByIDWithAnswers(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error)
	GetBySubmissionKey(ctx context.Context, tx *gorm.DB, key string) (*models.QuizAttempt, error)
	CountByStudentAndQuiz(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) (int64, error)
	ListByStudentAndQuiz(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) ([]*models.QuizAttempt, error)
	ListByQuiz(ctx context.Context, tx *gorm.DB, quizID uint) ([]*models.QuizAttempt, error)
	GetStats(ctx context.Context, tx *gorm.DB, quizID uint) (*AttemptStats, error)
}

type SessionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, session *models.QuizSession) error
	GetByToken(ctx context.Context, tx *gorm.DB, token string) (*models.QuizSession, error)
	GetByTokenForUpdate(ctx context.Context, tx *gorm.DB, token string) (*models.QuizSession, error)
	// GetOpen returns the newest running session of a student for a quiz
	GetOpen(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) (*models.QuizSession, error)
	SaveDraft(ctx context.Context, tx *gorm.DB, id uint, draft datatypes.JSON) error
	Close(ctx context.Context, tx *gorm.DB, id uint, status models.SessionStatus, attemptID *uint) error
	// ListOverdue returns running sessions whose deadline is before now
	ListOverdue(ctx context.Context, tx *gorm.DB, now time.Time, limit, offset int) ([]*models.QuizSession, error)
}

type AssignmentRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Assignment, error)
	GetSubmission(ctx context.Context, tx *gorm.DB, id uint) (*models.AssignmentSubmission, error)
	GetSubmissionByStudent(ctx context.Context, tx *gorm.DB, studentID string, assignmentID uint) (*models.AssignmentSubmission, error)
	// UpsertSubmission writes the latest content unless the existing row is
	// graded. It returns false when the row was left untouched.
	UpsertSubmission(ctx context.Context, tx *gorm.DB, submission *models.AssignmentSubmission) (bool, error)
	Grade(ctx context.Context, tx *gorm.DB, id uint, score int, feedback *string, gradedBy string, at time.Time) (int64, error)
	ListSubmissions(ctx context.Context, tx *gorm.DB, assignmentID uint, filters SubmissionFilters) ([]*models.AssignmentSubmission, int64, error)
}

package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/SAP-F-2025/learning-progress-service/internal/cache"
	"github.com/SAP-F-2025/learning-progress-service/internal/events"
	"github.com/SAP-F-2025/learning-progress-service/internal/models"
	"github.com/SAP-F-2025/learning-progress-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/learning-progress-service/internal/validator"
	"github.com/SAP-F-2025/learning-progress-service/pkg"
)

func uintPtr(v uint) *uint { return &v }
func strPtr(v string) *string { return &v }
func intPtr(v int) *int { return &v }

var errUserNotFound = errors.New("user not found")

// fakeUserRepository stands in for the identity provider
type fakeUserRepository struct {
	roles map[string]models.UserRole
}

func (f *fakeUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	role, ok := f.roles[id]
	if !ok {
		return nil, errUserNotFound
	}
	return &models.User{ID: id, FullName: "User " + id, Role: role}, nil
}

func (f *fakeUserRepository) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	users := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		if u, err := f.GetByID(ctx, id); err == nil {
			users = append(users, u)
		}
	}
	return users, nil
}

func (f *fakeUserRepository) ExistsByID(ctx context.Context, id string) (bool, error) {
	_, ok := f.roles[id]
	return ok, nil
}

func (f *fakeUserRepository) HasRole(ctx context.Context, id string, role models.UserRole) (bool, error) {
	user, err := f.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return user.Role == role || user.Role == models.RoleAdmin, nil
}

type testEnv struct {
	db        *gorm.DB
	repo      *postgres.PostgreSQLRepository
	redis     *miniredis.Miniredis
	cache     *cache.CacheManager
	publisher *events.MockEventPublisher
	notifier  NotificationDispatcher
	validator *validator.Validator
	users     *fakeUserRepository
	logger    *slog.Logger
}

// newTestEnv opens a file backed sqlite database with a single connection,
// so transactions serialize the way row locks do on postgres.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "progress.db")), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := pkg.Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	t.Cleanup(func() {
		// Let asynchronous cache writes finish before the client goes away
		time.Sleep(10 * time.Millisecond)
		client.Close()
		sqlDB.Close()
	})

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := &fakeUserRepository{roles: map[string]models.UserRole{
		"student-1": models.RoleStudent,
		"student-2": models.RoleStudent,
		"teacher-1": models.RoleTeacher,
		"admin-1":   models.RoleAdmin,
	}}

	repo := postgres.NewPostgreSQLRepository(postgres.RepositoryConfig{
		DB:             db,
		RedisClient:    client,
		UserRepository: users,
	})

	publisher := events.NewMockEventPublisher(log)

	return &testEnv{
		db:        db,
		repo:      repo,
		redis:     mr,
		cache:     repo.CacheManager(),
		publisher: publisher,
		notifier:  NewEventNotificationDispatcher(publisher, NotificationTopic, log),
		validator: validator.New(),
		users:     users,
		logger:    log,
	}
}

func (e *testEnv) progressService() *progressService {
	return NewProgressService(e.repo, e.db, e.logger, e.notifier).(*progressService)
}

func (e *testEnv) completionService() *completionService {
	return NewCompletionService(e.repo, e.db, e.logger, e.progressService()).(*completionService)
}

func (e *testEnv) attemptService() *attemptService {
	resolver := NewOptionResolver(e.repo, e.db, e.logger)
	return NewAttemptService(e.repo, e.db, e.logger, e.validator, resolver, e.cache, e.notifier, AttemptServiceConfig{}).(*attemptService)
}

func (e *testEnv) submissionService() *submissionService {
	return NewSubmissionService(e.repo, e.db, e.logger, e.validator, e.notifier).(*submissionService)
}

func (e *testEnv) mustCreate(t *testing.T, value interface{}) {
	t.Helper()
	if err := e.db.Create(value).Error; err != nil {
		t.Fatalf("failed to create %T: %v", value, err)
	}
}

// seedCourse creates a course with one module per entry of lessonsPerModule
func (e *testEnv) seedCourse(t *testing.T, lessonsPerModule ...int) (*models.Course, []models.Lesson) {
	t.Helper()

	course := &models.Course{Title: "Go Fundamentals"}
	e.mustCreate(t, course)

	var lessons []models.Lesson
	for m, count := range lessonsPerModule {
		module := &models.Module{CourseID: course.ID, Title: "Module", Order: m}
		e.mustCreate(t, module)
		for l := 0; l < count; l++ {
			lesson := models.Lesson{ModuleID: module.ID, Title: "Lesson", Order: l}
			e.mustCreate(t, &lesson)
			lessons = append(lessons, lesson)
		}
	}
	return course, lessons
}

func (e *testEnv) enroll(t *testing.T, studentID string, courseID uint) {
	t.Helper()
	e.mustCreate(t, &models.Enrollment{StudentID: studentID, CourseID: courseID, EnrolledAt: time.Now()})
}

func (e *testEnv) enrollment(t *testing.T, studentID string, courseID uint) *models.Enrollment {
	t.Helper()
	enrollment, err := e.repo.Enrollment().Get(context.Background(), nil, studentID, courseID)
	if err != nil {
		t.Fatalf("failed to load enrollment: %v", err)
	}
	return enrollment
}

func (e *testEnv) seedQuiz(t *testing.T, courseID uint, configure func(q *models.Quiz)) *models.Quiz {
	t.Helper()
	quiz := &models.Quiz{CourseID: courseID, Title: "Checkpoint", PassingScore: 60}
	if configure != nil {
		configure(quiz)
	}
	e.mustCreate(t, quiz)
	return quiz
}

func (e *testEnv) addQuestion(t *testing.T, quizID uint, qType models.QuestionType, order int) *models.QuizQuestion {
	t.Helper()
	question := &models.QuizQuestion{QuizID: quizID, QuestionText: "Question", QuestionType: qType, Order: order}
	e.mustCreate(t, question)
	return question
}

// addOptions stores options in the current generation. The option at
// correct is marked correct; pass -1 for none.
func (e *testEnv) addOptions(t *testing.T, questionID uint, correct int, texts ...string) []models.QuizOption {
	t.Helper()
	options := make([]models.QuizOption, 0, len(texts))
	for i, text := range texts {
		option := models.QuizOption{QuestionID: questionID, OptionText: text, IsCorrect: i == correct, OrderIndex: i}
		e.mustCreate(t, &option)
		options = append(options, option)
	}
	return options
}

func (e *testEnv) addLegacyOptions(t *testing.T, questionID uint, correct int, labels ...string) []models.LegacyQuizOption {
	t.Helper()
	options := make([]models.LegacyQuizOption, 0, len(labels))
	for i, label := range labels {
		option := models.LegacyQuizOption{QuizQuestionID: questionID, ChoiceLabel: label, Correct: i == correct, Position: i}
		e.mustCreate(t, &option)
		options = append(options, option)
	}
	return options
}

func (e *testEnv) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("failed to count %T: %v", model, err)
	}
	return n
}

// waitForKey blocks until an asynchronous cache write has landed
func (e *testEnv) waitForKey(t *testing.T, key string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !e.redis.Exists(key) {
		if time.Now().After(deadline) {
			t.Fatalf("cache key %q was never written", key)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (e *testEnv) notifications(t *testing.T) []*models.Notification {
	t.Helper()
	var out []*models.Notification
	for _, event := range e.publisher.GetPublishedEvents() {
		n, ok := event.Data.(*models.Notification)
		if !ok {
			t.Fatalf("unexpected event payload %T", event.Data)
		}
		out = append(out, n)
	}
	return out
}

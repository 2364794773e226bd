package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/learning-progress-service/internal/models"
	"github.com/SAP-F-2025/learning-progress-service/internal/repositories"
	"github.com/SAP-F-2025/learning-progress-service/internal/repositories/casdoor"
	"github.com/SAP-F-2025/learning-progress-service/internal/services"
	"github.com/SAP-F-2025/learning-progress-service/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ===== FAKES =====

// fakeParser accepts tokens of the form "<user id>:<casdoor type>"
type fakeParser struct{}

func (fakeParser) ParseJwtToken(token string) (*casdoorsdk.Claims, error) {
	id, userType, ok := strings.Cut(token, ":")
	if !ok || id == "" {
		return nil, errors.New("malformed token")
	}
	return &casdoorsdk.Claims{
		User: casdoorsdk.User{
			Id:          id,
			Type:        userType,
			DisplayName: "User " + id,
			Email:       id + "@example.com",
		},
	}, nil
}

type fakeUserRepo struct {
	users map[string]*models.User
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := r.users[id]; ok {
		return user, nil
	}
	return nil, casdoor.ErrUserNotFound
}

func (r *fakeUserRepo) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	var users []*models.User
	for _, id := range ids {
		if user, ok := r.users[id]; ok {
			users = append(users, user)
		}
	}
	return users, nil
}

func (r *fakeUserRepo) ExistsByID(ctx context.Context, id string) (bool, error) {
	_, ok := r.users[id]
	return ok, nil
}

func (r *fakeUserRepo) HasRole(ctx context.Context, id string, role models.UserRole) (bool, error) {
	user, ok := r.users[id]
	return ok && user.Role == role, nil
}

type fakeCompletionService struct {
	record   func(studentID string, lessonID uint) (*services.CompletionResult, error)
	unmark   func(studentID string, lessonID uint) (*services.CompletionResult, error)
	listRows func(studentID string, courseID uint) ([]*models.LessonCompletion, error)
}

func (f *fakeCompletionService) RecordCompletion(ctx context.Context, studentID string, lessonID uint) (*services.CompletionResult, error) {
	return f.record(studentID, lessonID)
}

func (f *fakeCompletionService) MarkIncomplete(ctx context.Context, studentID string, lessonID uint) (*services.CompletionResult, error) {
	return f.unmark(studentID, lessonID)
}

func (f *fakeCompletionService) ListCompletions(ctx context.Context, studentID string, courseID uint) ([]*models.LessonCompletion, error) {
	return f.listRows(studentID, courseID)
}

type fakeProgressService struct {
	recalculate       func(studentID string, courseID uint) (int, error)
	recalculateCourse func(courseID uint) (*services.BulkRecalculationResult, error)
	getProgress       func(studentID string, courseID uint) (*services.ProgressResponse, error)
}

func (f *fakeProgressService) HandleCompletionRecorded(ctx context.Context, cmd services.CompletionRecorded) (int, error) {
	return 0, nil
}

func (f *fakeProgressService) Recalculate(ctx context.Context, studentID string, courseID uint) (int, error) {
	return f.recalculate(studentID, courseID)
}

func (f *fakeProgressService) RecalculateCourse(ctx context.Context, courseID uint) (*services.BulkRecalculationResult, error) {
	return f.recalculateCourse(courseID)
}

func (f *fakeProgressService) GetProgress(ctx context.Context, studentID string, courseID uint) (*services.ProgressResponse, error) {
	return f.getProgress(studentID, courseID)
}

type fakeAttemptService struct {
	display  func(userID string, quizID uint) (*services.QuizForAttempt, error)
	start    func(studentID string, quizID uint) (*services.StartAttemptResponse, error)
	draft    func(studentID, token string, req *services.SaveDraftRequest) error
	submit   func(studentID string, quizID uint, req *services.SubmitAttemptRequest) (*services.AttemptResponse, error)
	expire   func(userID, token string) (*services.AttemptResponse, error)
	get      func(userID string, attemptID uint) (*services.AttemptResponse, error)
	list     func(studentID string, quizID uint) ([]*services.AttemptResponse, error)
	getStats func(quizID uint) (*repositories.AttemptStats, error)
}

func (f *fakeAttemptService) GetQuizForDisplay(ctx context.Context, userID string, quizID uint) (*services.QuizForAttempt, error) {
	return f.display(userID, quizID)
}

func (f *fakeAttemptService) StartAttempt(ctx context.Context, studentID string, quizID uint) (*services.StartAttemptResponse, error) {
	return f.start(studentID, quizID)
}

func (f *fakeAttemptService) SaveDraft(ctx context.Context, studentID, token string, req *services.SaveDraftRequest) error {
	return f.draft(studentID, token, req)
}

func (f *fakeAttemptService) SubmitAttempt(ctx context.Context, studentID string, quizID uint, req *services.SubmitAttemptRequest) (*services.AttemptResponse, error) {
	return f.submit(studentID, quizID, req)
}

func (f *fakeAttemptService) ExpireSession(ctx context.Context, userID, token string) (*services.AttemptResponse, error) {
	return f.expire(userID, token)
}

func (f *fakeAttemptService) ExpireOverdueSessions(ctx context.Context) (int, error) {
	return 0, nil
}

func (f *fakeAttemptService) GetAttempt(ctx context.Context, userID string, attemptID uint) (*services.AttemptResponse, error) {
	return f.get(userID, attemptID)
}

func (f *fakeAttemptService) ListAttempts(ctx context.Context, studentID string, quizID uint) ([]*services.AttemptResponse, error) {
	return f.list(studentID, quizID)
}

func (f *fakeAttemptService) GetStats(ctx context.Context, quizID uint) (*repositories.AttemptStats, error) {
	return f.getStats(quizID)
}

type fakeSubmissionService struct {
	submit  func(studentID string, assignmentID uint, req *services.SubmitAssignmentRequest) (*models.AssignmentSubmission, error)
	grade   func(instructorID string, submissionID uint, req *services.GradeSubmissionRequest) (*models.AssignmentSubmission, error)
	getMine func(studentID string, assignmentID uint) (*models.AssignmentSubmission, error)
	get     func(userID string, submissionID uint) (*models.AssignmentSubmission, error)
	list    func(assignmentID uint, filters repositories.SubmissionFilters) ([]*models.AssignmentSubmission, int64, error)
}

func (f *fakeSubmissionService) Submit(ctx context.Context, studentID string, assignmentID uint, req *services.SubmitAssignmentRequest) (*models.AssignmentSubmission, error) {
	return f.submit(studentID, assignmentID, req)
}

func (f *fakeSubmissionService) Grade(ctx context.Context, instructorID string, submissionID uint, req *services.GradeSubmissionRequest) (*models.AssignmentSubmission, error) {
	return f.grade(instructorID, submissionID, req)
}

func (f *fakeSubmissionService) GetMySubmission(ctx context.Context, studentID string, assignmentID uint) (*models.AssignmentSubmission, error) {
	return f.getMine(studentID, assignmentID)
}

func (f *fakeSubmissionService) GetSubmission(ctx context.Context, userID string, submissionID uint) (*models.AssignmentSubmission, error) {
	return f.get(userID, submissionID)
}

func (f *fakeSubmissionService) ListForAssignment(ctx context.Context, assignmentID uint, filters repositories.SubmissionFilters) ([]*models.AssignmentSubmission, int64, error) {
	return f.list(assignmentID, filters)
}

type fakeExportService struct {
	export func(quizID uint) (*services.ExportFile, error)
}

func (f *fakeExportService) ExportQuizAttempts(ctx context.Context, quizID uint) (*services.ExportFile, error) {
	return f.export(quizID)
}

type fakeServiceManager struct {
	completion *fakeCompletionService
	progress   *fakeProgressService
	attempt    *fakeAttemptService
	submission *fakeSubmissionService
	export     *fakeExportService
	healthErr  error
}

func (m *fakeServiceManager) Completion() services.CompletionService { return m.completion }
func (m *fakeServiceManager) Progress() services.ProgressService     { return m.progress }
func (m *fakeServiceManager) Options() services.OptionResolver       { return nil }
func (m *fakeServiceManager) Attempt() services.AttemptService       { return m.attempt }
func (m *fakeServiceManager) Submission() services.SubmissionService { return m.submission }
func (m *fakeServiceManager) Export() services.ExportService         { return m.export }
func (m *fakeServiceManager) Notifications() services.NotificationDispatcher {
	return services.UnconfiguredDispatcher{}
}

func (m *fakeServiceManager) Initialize(ctx context.Context) error  { return nil }
func (m *fakeServiceManager) HealthCheck(ctx context.Context) error { return m.healthErr }
func (m *fakeServiceManager) Shutdown(ctx context.Context) error    { return nil }

// ===== HARNESS =====

type testServer struct {
	router *gin.Engine
	sm     *fakeServiceManager
	users  *fakeUserRepo
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := utils.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	sm := &fakeServiceManager{
		completion: &fakeCompletionService{},
		progress:   &fakeProgressService{},
		attempt:    &fakeAttemptService{},
		submission: &fakeSubmissionService{},
		export:     &fakeExportService{},
	}
	users := &fakeUserRepo{users: map[string]*models.User{}}
	auth := &CasdoorAuthMiddleware{parser: fakeParser{}, userRepo: users, logger: logger}

	router := gin.New()
	SetupMiddleware(router, logger)
	NewHandlerManager(sm, auth, logger).SetupRoutes(router)

	return &testServer{router: router, sm: sm, users: users}
}

// do sends a request as the given token. An empty token sends no
// Authorization header.
func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return serve(s.router, newJSONRequest(t, method, path, token, body))
}

// newJSONRequest builds a request authenticated with the given
// "<id>:<type>" token. A nil body sends no payload.
func newJSONRequest(t *testing.T, method, path, token string, body interface{}) *http.Request {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func newRequest(t *testing.T, method, path, authorization string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	return req
}

func serve(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}

const (
	studentToken = "student-1:student"
	teacherToken = "teacher-1:teacher"
	adminToken   = "admin-1:admin"
)

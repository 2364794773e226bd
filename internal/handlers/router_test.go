package handlers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/SAP-F-2025/learning-progress-service/internal/models"
	"github.com/SAP-F-2025/learning-progress-service/internal/repositories"
	"github.com/SAP-F-2025/learning-progress-service/internal/services"
)

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t)
	s.sm.attempt.getStats = func(quizID uint) (*repositories.AttemptStats, error) {
		return &repositories.AttemptStats{QuizID: quizID}, nil
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nocolon", http.StatusUnauthorized},
		{"valid teacher", "Bearer " + teacherToken, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest(t, http.MethodGet, "/api/v1/quizzes/1/stats", tt.header)
			rec := serve(s.router, req)
			expectStatus(t, rec, tt.want)
		})
	}
}

func TestAuthMiddleware_PrefersIdentityProviderRecord(t *testing.T) {
	s := newTestServer(t)
	// The token claims student, the provider says teacher
	s.users.users["student-1"] = &models.User{ID: "student-1", FullName: "Promoted", Role: models.RoleTeacher}
	s.sm.attempt.getStats = func(quizID uint) (*repositories.AttemptStats, error) {
		return &repositories.AttemptStats{QuizID: quizID}, nil
	}

	rec := s.do(t, http.MethodGet, "/api/v1/quizzes/1/stats", studentToken, nil)
	expectStatus(t, rec, http.StatusOK)

	rec = s.do(t, http.MethodGet, "/api/v1/users/me", studentToken, nil)
	expectStatus(t, rec, http.StatusOK)
	var user models.User
	decodeBody(t, rec, &user)
	if user.FullName != "Promoted" || user.Role != models.RoleTeacher {
		t.Errorf("user = %+v, want the provider record", user)
	}
}

func TestRequireRoleMiddleware(t *testing.T) {
	s := newTestServer(t)
	s.sm.progress.recalculateCourse = func(courseID uint) (*services.BulkRecalculationResult, error) {
		return &services.BulkRecalculationResult{CourseID: courseID, Recalculated: 3}, nil
	}

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"student rejected", studentToken, http.StatusForbidden},
		{"unknown casdoor type defaults to student", "guest-1:guest", http.StatusForbidden},
		{"teacher allowed", teacherToken, http.StatusOK},
		{"instructor type maps to teacher", "t-2:instructor", http.StatusOK},
		{"admin allowed", adminToken, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/v1/courses/7/progress/recalculate-all", tt.token, nil)
			expectStatus(t, rec, tt.want)
		})
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", "", nil)
	expectStatus(t, rec, http.StatusOK)
	var body map[string]interface{}
	decodeBody(t, rec, &body)
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}

	s.sm.healthErr = errors.New("database unreachable")
	rec = s.do(t, http.MethodGet, "/health", "", nil)
	expectStatus(t, rec, http.StatusServiceUnavailable)
	decodeBody(t, rec, &body)
	if body["status"] != "unhealthy" {
		t.Errorf("status = %v, want unhealthy", body["status"])
	}
}

func TestSetupMiddleware_Headers(t *testing.T) {
	s := newTestServer(t)

	req := newRequest(t, http.MethodGet, "/health", "")
	req.Header.Set("X-Request-ID", "req-42")
	rec := serve(s.router, req)

	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("X-Request-ID = %q, want req-42", got)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}

	rec = serve(s.router, newRequest(t, http.MethodOptions, "/api/v1/quizzes/1", ""))
	expectStatus(t, rec, http.StatusNoContent)
}

func TestUserHandler(t *testing.T) {
	s := newTestServer(t)
	s.users.users["teacher-9"] = &models.User{ID: "teacher-9", FullName: "Ada", Role: models.RoleTeacher}

	rec := s.do(t, http.MethodGet, "/api/v1/users/teacher-9", studentToken, nil)
	expectStatus(t, rec, http.StatusOK)
	var user models.User
	decodeBody(t, rec, &user)
	if user.FullName != "Ada" {
		t.Errorf("FullName = %q, want Ada", user.FullName)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/users/nobody", studentToken, nil)
	expectStatus(t, rec, http.StatusNotFound)

	// Not in the provider, so built from the token
	rec = s.do(t, http.MethodGet, "/api/v1/users/me", studentToken, nil)
	expectStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &user)
	if user.ID != "student-1" || user.Role != models.RoleStudent || user.Email != "student-1@example.com" {
		t.Errorf("me = %+v", user)
	}
}

package handlers

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/SAP-F-2025/learning-progress-service/internal/models"
	"github.com/SAP-F-2025/learning-progress-service/internal/repositories"
	"github.com/SAP-F-2025/learning-progress-service/internal/services"
	"github.com/SAP-F-2025/learning-progress-service/internal/validator"
)

func TestQuizHandler_GetQuiz(t *testing.T) {
	s := newTestServer(t)
	s.sm.attempt.display = func(userID string, quizID uint) (*services.QuizForAttempt, error) {
		return &services.QuizForAttempt{
			ID:    quizID,
			Title: "Basics",
			Questions: []services.QuestionForAttempt{
				{ID: 1, Type: models.SingleSelect, OptionSource: models.OptionSourceLegacy, Options: []services.DisplayOption{{ID: 4, Text: "True"}}},
			},
		}, nil
	}

	rec := s.do(t, http.MethodGet, "/api/v1/quizzes/2", studentToken, nil)
	expectStatus(t, rec, http.StatusOK)

	if strings.Contains(rec.Body.String(), "is_correct") {
		t.Errorf("display payload leaks correctness: %s", rec.Body.String())
	}

	var quiz services.QuizForAttempt
	decodeBody(t, rec, &quiz)
	if quiz.ID != 2 || len(quiz.Questions) != 1 || quiz.Questions[0].OptionSource != models.OptionSourceLegacy {
		t.Errorf("quiz = %+v", quiz)
	}
}

func TestQuizHandler_SubmitAttempt(t *testing.T) {
	s := newTestServer(t)

	var gotReq *services.SubmitAttemptRequest
	s.sm.attempt.submit = func(studentID string, quizID uint, req *services.SubmitAttemptRequest) (*services.AttemptResponse, error) {
		gotReq = req
		return &services.AttemptResponse{
			QuizAttempt:  &models.QuizAttempt{ID: 10, StudentID: studentID, QuizID: quizID, Score: 60, Passed: true},
			PassingScore: 60,
			Duplicate:    req.SubmissionKey == "repeat-key-1",
		}, nil
	}

	optionID := uint(4)
	body := services.SubmitAttemptRequest{
		SubmissionKey: "first-key-1",
		Answers:       []services.AnswerRequest{{QuestionID: 1, OptionID: &optionID}},
	}

	rec := s.do(t, http.MethodPost, "/api/v1/quizzes/2/submit", studentToken, body)
	expectStatus(t, rec, http.StatusCreated)

	var attempt services.AttemptResponse
	decodeBody(t, rec, &attempt)
	if attempt.Score != 60 || !attempt.Passed {
		t.Errorf("attempt = %+v", attempt)
	}
	if gotReq == nil || len(gotReq.Answers) != 1 || *gotReq.Answers[0].OptionID != 4 {
		t.Errorf("request = %+v", gotReq)
	}

	t.Run("duplicate answers 200", func(t *testing.T) {
		body.SubmissionKey = "repeat-key-1"
		rec := s.do(t, http.MethodPost, "/api/v1/quizzes/2/submit", studentToken, body)
		expectStatus(t, rec, http.StatusOK)
	})

	t.Run("key falls back to header", func(t *testing.T) {
		body.SubmissionKey = ""
		req := newJSONRequest(t, http.MethodPost, "/api/v1/quizzes/2/submit", studentToken, body)
		req.Header.Set("Idempotency-Key", "header-key-1")
		rec := serve(s.router, req)
		expectStatus(t, rec, http.StatusCreated)
		if gotReq.SubmissionKey != "header-key-1" {
			t.Errorf("SubmissionKey = %q, want header-key-1", gotReq.SubmissionKey)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		req := newRequest(t, http.MethodPost, "/api/v1/quizzes/2/submit", "Bearer "+studentToken)
		req.Body = http.NoBody
		rec := serve(s.router, req)
		expectStatus(t, rec, http.StatusBadRequest)
	})
}

func TestQuizHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"quiz not found", services.ErrQuizNotFound, http.StatusNotFound},
		{"attempt limit", services.ErrAttemptLimitExceeded, http.StatusConflict},
		{"in flight", services.ErrSubmissionInFlight, http.StatusConflict},
		{"session required", services.ErrSessionRequired, http.StatusConflict},
		{"session expired", services.ErrSessionExpired, http.StatusGone},
		{"not enrolled", services.ErrNotEnrolled, http.StatusForbidden},
		{"validation", services.NewValidationErrors(validator.ValidationError{Field: "answers", Message: "duplicate question"}), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.sm.attempt.submit = func(string, uint, *services.SubmitAttemptRequest) (*services.AttemptResponse, error) {
				return nil, tt.err
			}

			rec := s.do(t, http.MethodPost, "/api/v1/quizzes/2/submit", studentToken, services.SubmitAttemptRequest{})
			expectStatus(t, rec, tt.want)
		})
	}

	t.Run("in flight sets Retry-After", func(t *testing.T) {
		s := newTestServer(t)
		s.sm.attempt.submit = func(string, uint, *services.SubmitAttemptRequest) (*services.AttemptResponse, error) {
			return nil, services.ErrSubmissionInFlight
		}
		rec := s.do(t, http.MethodPost, "/api/v1/quizzes/2/submit", studentToken, services.SubmitAttemptRequest{})
		if rec.Header().Get("Retry-After") == "" {
			t.Error("expected Retry-After header")
		}
	})
}

func TestQuizHandler_Sessions(t *testing.T) {
	s := newTestServer(t)
	deadline := time.Now().Add(10 * time.Minute)

	s.sm.attempt.start = func(studentID string, quizID uint) (*services.StartAttemptResponse, error) {
		return &services.StartAttemptResponse{SessionToken: "tok-1", StartedAt: time.Now(), DeadlineAt: &deadline, AttemptsUsed: 1, Resumed: quizID == 3}, nil
	}
	var draftToken string
	s.sm.attempt.draft = func(studentID, token string, req *services.SaveDraftRequest) error {
		draftToken = token
		if token == "late" {
			return services.ErrSessionExpired
		}
		return nil
	}
	s.sm.attempt.expire = func(userID, token string) (*services.AttemptResponse, error) {
		if token == "running" {
			return nil, services.ErrSessionNotExpired
		}
		return &services.AttemptResponse{QuizAttempt: &models.QuizAttempt{ID: 3, EndReason: "time_out"}}, nil
	}

	rec := s.do(t, http.MethodPost, "/api/v1/quizzes/2/start", studentToken, nil)
	expectStatus(t, rec, http.StatusCreated)
	var started services.StartAttemptResponse
	decodeBody(t, rec, &started)
	if started.SessionToken != "tok-1" || started.DeadlineAt == nil {
		t.Errorf("started = %+v", started)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/quizzes/3/start", studentToken, nil)
	expectStatus(t, rec, http.StatusOK)

	rec = s.do(t, http.MethodPut, "/api/v1/quizzes/sessions/tok-1/draft", studentToken, services.SaveDraftRequest{})
	expectStatus(t, rec, http.StatusOK)
	if draftToken != "tok-1" {
		t.Errorf("draft token = %q, want tok-1", draftToken)
	}

	rec = s.do(t, http.MethodPut, "/api/v1/quizzes/sessions/late/draft", studentToken, services.SaveDraftRequest{})
	expectStatus(t, rec, http.StatusGone)

	rec = s.do(t, http.MethodPost, "/api/v1/quizzes/sessions/tok-1/expire", studentToken, nil)
	expectStatus(t, rec, http.StatusOK)

	rec = s.do(t, http.MethodPost, "/api/v1/quizzes/sessions/running/expire", studentToken, nil)
	expectStatus(t, rec, http.StatusConflict)
}

func TestQuizHandler_Reads(t *testing.T) {
	s := newTestServer(t)
	s.sm.attempt.list = func(studentID string, quizID uint) ([]*services.AttemptResponse, error) {
		return []*services.AttemptResponse{
			{QuizAttempt: &models.QuizAttempt{ID: 1, AttemptNumber: 1}},
			{QuizAttempt: &models.QuizAttempt{ID: 2, AttemptNumber: 2}},
		}, nil
	}
	s.sm.attempt.get = func(userID string, attemptID uint) (*services.AttemptResponse, error) {
		if userID != "student-1" {
			return nil, services.NewPermissionError(userID, attemptID, "attempt", "read", "not the owner")
		}
		return &services.AttemptResponse{QuizAttempt: &models.QuizAttempt{ID: attemptID, StudentID: userID}}, nil
	}

	rec := s.do(t, http.MethodGet, "/api/v1/quizzes/2/attempts", studentToken, nil)
	expectStatus(t, rec, http.StatusOK)
	var attempts []services.AttemptResponse
	decodeBody(t, rec, &attempts)
	if len(attempts) != 2 {
		t.Errorf("len(attempts) = %d, want 2", len(attempts))
	}

	rec = s.do(t, http.MethodGet, "/api/v1/attempts/5", studentToken, nil)
	expectStatus(t, rec, http.StatusOK)

	rec = s.do(t, http.MethodGet, "/api/v1/attempts/5", "student-2:student", nil)
	expectStatus(t, rec, http.StatusForbidden)
	var errBody ErrorResponse
	decodeBody(t, rec, &errBody)
	details, _ := errBody.Details.(map[string]interface{})
	if details["action"] != "read" {
		t.Errorf("details = %v, want action read", errBody.Details)
	}
}

func TestQuizHandler_StatsAndExport(t *testing.T) {
	s := newTestServer(t)
	s.sm.attempt.getStats = func(quizID uint) (*repositories.AttemptStats, error) {
		return &repositories.AttemptStats{QuizID: quizID, TotalAttempts: 4, PassRate: 50}, nil
	}
	s.sm.export.export = func(quizID uint) (*services.ExportFile, error) {
		if quizID == 404 {
			return nil, services.ErrQuizNotFound
		}
		return &services.ExportFile{
			Filename:    "quiz-2-attempts.xlsx",
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Data:        []byte("PK-fake"),
		}, nil
	}

	rec := s.do(t, http.MethodGet, "/api/v1/quizzes/2/stats", studentToken, nil)
	expectStatus(t, rec, http.StatusForbidden)

	rec = s.do(t, http.MethodGet, "/api/v1/quizzes/2/stats", teacherToken, nil)
	expectStatus(t, rec, http.StatusOK)
	var body struct {
		Data repositories.AttemptStats `json:"data"`
	}
	decodeBody(t, rec, &body)
	if body.Data.TotalAttempts != 4 {
		t.Errorf("TotalAttempts = %d, want 4", body.Data.TotalAttempts)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/quizzes/2/export", teacherToken, nil)
	expectStatus(t, rec, http.StatusOK)
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "quiz-2-attempts.xlsx") {
		t.Errorf("Content-Disposition = %q", got)
	}
	if rec.Body.String() != "PK-fake" {
		t.Errorf("body = %q", rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/v1/quizzes/404/export", adminToken, nil)
	expectStatus(t, rec, http.StatusNotFound)
}

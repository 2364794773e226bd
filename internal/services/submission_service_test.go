package services

import (
	"context"
	"errors"
	"testing"

	"github.com/SAP-F-2025/learning-progress-service/internal/models"
	"github.com/SAP-F-2025/learning-progress-service/internal/repositories"
)

func seedAssignment(t *testing.T, env *testEnv, maxScore int) *models.Assignment {
	t.Helper()
	course, _ := env.seedCourse(t, 1)
	env.enroll(t, "student-1", course.ID)
	assignment := &models.Assignment{CourseID: course.ID, Title: "Build a worker pool", MaxScore: maxScore}
	env.mustCreate(t, assignment)
	return assignment
}

func TestSubmissionService_Submit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assignment := seedAssignment(t, env, 100)
	svc := env.submissionService()

	first, err := svc.Submit(ctx, "student-1", assignment.ID, &SubmitAssignmentRequest{Content: "draft one"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if first.Status != models.SubmissionSubmitted || first.SubmittedAt == nil {
		t.Errorf("Submit() = %+v", first)
	}

	second, err := svc.Submit(ctx, "student-1", assignment.ID, &SubmitAssignmentRequest{Content: "final version"})
	if err != nil {
		t.Fatalf("resubmit error = %v", err)
	}
	if second.ID != first.ID || second.Content != "final version" {
		t.Errorf("resubmit = id %d content %q, want id %d final version", second.ID, second.Content, first.ID)
	}
	if got := env.count(t, &models.AssignmentSubmission{}); got != 1 {
		t.Errorf("submission rows = %d, want 1", got)
	}
}

func TestSubmissionService_Submit_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assignment := seedAssignment(t, env, 100)
	svc := env.submissionService()

	tests := []struct {
		name         string
		studentID    string
		assignmentID uint
		content      string
		wantErr      error
	}{
		{name: "no identity", studentID: "", assignmentID: assignment.ID, content: "x", wantErr: ErrUnauthenticated},
		{name: "blank content", studentID: "student-1", assignmentID: assignment.ID, content: "   ", wantErr: ErrValidationFailed},
		{name: "unknown assignment", studentID: "student-1", assignmentID: 9999, content: "x", wantErr: ErrAssignmentNotFound},
		{name: "not enrolled", studentID: "student-2", assignmentID: assignment.ID, content: "x", wantErr: ErrNotEnrolled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, tt.studentID, tt.assignmentID, &SubmitAssignmentRequest{Content: tt.content})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Submit() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubmissionService_Grade(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assignment := seedAssignment(t, env, 20)
	svc := env.submissionService()

	submitted, err := svc.Submit(ctx, "student-1", assignment.ID, &SubmitAssignmentRequest{Content: "solution"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	t.Run("students cannot grade", func(t *testing.T) {
		_, err := svc.Grade(ctx, "student-2", submitted.ID, &GradeSubmissionRequest{Score: intPtr(10)})
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("Grade() error = %v, want ErrForbidden", err)
		}
		var perr *PermissionError
		if !errors.As(err, &perr) || perr.Action != "grade" {
			t.Errorf("expected a grade permission error, got %v", err)
		}
	})

	t.Run("score above the assignment maximum", func(t *testing.T) {
		_, err := svc.Grade(ctx, "teacher-1", submitted.ID, &GradeSubmissionRequest{Score: intPtr(21)})
		if !errors.Is(err, ErrValidationFailed) {
			t.Fatalf("Grade() error = %v, want ErrValidationFailed", err)
		}
	})

	t.Run("negative score", func(t *testing.T) {
		_, err := svc.Grade(ctx, "teacher-1", submitted.ID, &GradeSubmissionRequest{Score: intPtr(-1)})
		if !errors.Is(err, ErrValidationFailed) {
			t.Fatalf("Grade() error = %v, want ErrValidationFailed", err)
		}
	})

	t.Run("unknown submission", func(t *testing.T) {
		_, err := svc.Grade(ctx, "teacher-1", 9999, &GradeSubmissionRequest{Score: intPtr(1)})
		if !errors.Is(err, ErrSubmissionNotFound) {
			t.Fatalf("Grade() error = %v, want ErrSubmissionNotFound", err)
		}
	})

	t.Run("instructor grades", func(t *testing.T) {
		graded, err := svc.Grade(ctx, "teacher-1", submitted.ID, &GradeSubmissionRequest{Score: intPtr(18), Feedback: strPtr("Nice work")})
		if err != nil {
			t.Fatalf("Grade() error = %v", err)
		}
		if graded.Status != models.SubmissionGraded || graded.Score == nil || *graded.Score != 18 {
			t.Errorf("Grade() = %+v", graded)
		}
		if graded.GradedBy == nil || *graded.GradedBy != "teacher-1" || graded.GradedAt == nil {
			t.Errorf("grader not recorded: %+v", graded)
		}

		notifications := env.notifications(t)
		if len(notifications) != 1 || notifications[0].Type != models.NotificationAssignmentGraded || notifications[0].UserID != "student-1" {
			t.Errorf("expected an assignment_graded notification for student-1, got %+v", notifications)
		}
	})

	t.Run("graded submissions reject new content", func(t *testing.T) {
		_, err := svc.Submit(ctx, "student-1", assignment.ID, &SubmitAssignmentRequest{Content: "late edit"})
		if !errors.Is(err, ErrSubmissionGraded) {
			t.Fatalf("Submit() error = %v, want ErrSubmissionGraded", err)
		}
		stored, err := svc.GetMySubmission(ctx, "student-1", assignment.ID)
		if err != nil {
			t.Fatalf("GetMySubmission() error = %v", err)
		}
		if stored.Content != "solution" || stored.Status != models.SubmissionGraded {
			t.Errorf("graded submission changed: %+v", stored)
		}
	})

	t.Run("regrade", func(t *testing.T) {
		graded, err := svc.Grade(ctx, "admin-1", submitted.ID, &GradeSubmissionRequest{Score: intPtr(20)})
		if err != nil {
			t.Fatalf("Grade() error = %v", err)
		}
		if *graded.Score != 20 {
			t.Errorf("score = %d, want 20", *graded.Score)
		}
	})
}

func TestSubmissionService_Reads(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assignment := seedAssignment(t, env, 100)
	svc := env.submissionService()

	placeholder, err := svc.GetMySubmission(ctx, "student-1", assignment.ID)
	if err != nil {
		t.Fatalf("GetMySubmission() error = %v", err)
	}
	if placeholder.ID != 0 || placeholder.Status != models.SubmissionNotSubmitted {
		t.Errorf("placeholder = %+v", placeholder)
	}

	submitted, err := svc.Submit(ctx, "student-1", assignment.ID, &SubmitAssignmentRequest{Content: "answer"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if _, err := svc.GetSubmission(ctx, "student-1", submitted.ID); err != nil {
		t.Errorf("owner GetSubmission() error = %v", err)
	}
	if _, err := svc.GetSubmission(ctx, "teacher-1", submitted.ID); err != nil {
		t.Errorf("instructor GetSubmission() error = %v", err)
	}
	if _, err := svc.GetSubmission(ctx, "student-2", submitted.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("other student GetSubmission() error = %v, want ErrForbidden", err)
	}

	status := models.SubmissionSubmitted
	list, total, err := svc.ListForAssignment(ctx, assignment.ID, repositories.SubmissionFilters{Status: &status, Limit: 10})
	if err != nil {
		t.Fatalf("ListForAssignment() error = %v", err)
	}
	if total != 1 || len(list) != 1 || list[0].ID != submitted.ID {
		t.Errorf("ListForAssignment() = %d rows, total %d", len(list), total)
	}

	graded := models.SubmissionGraded
	if _, total, err := svc.ListForAssignment(ctx, assignment.ID, repositories.SubmissionFilters{Status: &graded}); err != nil || total != 0 {
		t.Errorf("graded filter = %d, %v, want 0", total, err)
	}

	if _, _, err := svc.ListForAssignment(ctx, 9999, repositories.SubmissionFilters{}); !errors.Is(err, ErrAssignmentNotFound) {
		t.Errorf("unknown assignment error = %v", err)
	}
}

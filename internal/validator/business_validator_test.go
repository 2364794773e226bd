package validator

import (
	"errors"
	"testing"

	"github.com/SAP-F-2025/learning-progress-service/internal/models"
)

func uintPtr(v uint) *uint { return &v }
func strPtr(v string) *string { return &v }
func intPtr(v int) *int { return &v }

func TestValidator_SubmitAttemptRequest(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		req     SubmitAttemptRequest
		wantErr bool
	}{
		{
			name: "option answer",
			req:  SubmitAttemptRequest{Answers: []AnswerRequest{{QuestionID: 1, OptionID: uintPtr(3)}}},
		},
		{
			name: "text answer",
			req:  SubmitAttemptRequest{Answers: []AnswerRequest{{QuestionID: 1, Text: strPtr("paris")}}},
		},
		{
			name: "empty submission is allowed",
			req:  SubmitAttemptRequest{},
		},
		{
			name:    "missing question id",
			req:     SubmitAttemptRequest{Answers: []AnswerRequest{{OptionID: uintPtr(3)}}},
			wantErr: true,
		},
		{
			name:    "neither option nor text",
			req:     SubmitAttemptRequest{Answers: []AnswerRequest{{QuestionID: 1}}},
			wantErr: true,
		},
		{
			name:    "both option and text",
			req:     SubmitAttemptRequest{Answers: []AnswerRequest{{QuestionID: 1, OptionID: uintPtr(3), Text: strPtr("x")}}},
			wantErr: true,
		},
		{
			name:    "bad session token",
			req:     SubmitAttemptRequest{SessionToken: "not-a-uuid"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(&tt.req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var ve ValidationErrors
				if !errors.As(err, &ve) {
					t.Fatalf("expected ValidationErrors, got %T", err)
				}
			}
		})
	}
}

func TestValidator_AssignmentRequests(t *testing.T) {
	v := New()

	if err := v.Validate(&SubmitAssignmentRequest{Content: "   "}); err == nil {
		t.Error("blank content should be rejected")
	}
	if err := v.Validate(&SubmitAssignmentRequest{Content: "my essay"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := v.Validate(&GradeSubmissionRequest{}); err == nil {
		t.Error("missing score should be rejected")
	}
	if err := v.Validate(&GradeSubmissionRequest{Score: intPtr(-1)}); err == nil {
		t.Error("negative score should be rejected")
	}
	if err := v.Validate(&GradeSubmissionRequest{Score: intPtr(0)}); err != nil {
		t.Errorf("zero score is valid: %v", err)
	}
}

func TestBusinessValidator_ValidateAnswerShape(t *testing.T) {
	bv := NewBusinessValidator()

	if err := bv.ValidateAnswerShape(models.SingleSelect, AnswerRequest{QuestionID: 1, Text: strPtr("a")}); err == nil {
		t.Error("single_select needs an option")
	}
	if err := bv.ValidateAnswerShape(models.TrueFalse, AnswerRequest{QuestionID: 1, OptionID: uintPtr(2)}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := bv.ValidateAnswerShape(models.FillBlank, AnswerRequest{QuestionID: 1, OptionID: uintPtr(2)}); err == nil {
		t.Error("fill_blank does not take an option")
	}
	if err := bv.ValidateAnswerShape(models.Essay, AnswerRequest{QuestionID: 1, Text: strPtr("long answer")}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBusinessValidator_ValidateGrade(t *testing.T) {
	bv := NewBusinessValidator()

	if errs := bv.ValidateGrade(101, 100); len(errs) != 1 {
		t.Errorf("expected 1 error, got %d", len(errs))
	}
	if errs := bv.ValidateGrade(100, 100); len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
}

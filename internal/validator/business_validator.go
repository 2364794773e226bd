package validator

import (
	"fmt"
	"strings"

	"github.com/SAP-F-2025/learning-progress-service/internal/models"
	"github.com/go-playground/validator/v10"
)

const maxSubmissionContent = 100000

// BusinessValidator handles business rule validation
type BusinessValidator struct {
	validate *validator.Validate
}

// NewBusinessValidator creates a new business validator
func NewBusinessValidator() *BusinessValidator {
	validate := validator.New()

	bv := &BusinessValidator{validate: validate}
	bv.registerBusinessRules()

	return bv
}

// Validate validates business rules for any struct
func (bv *BusinessValidator) Validate(s interface{}) ValidationErrors {
	err := bv.validate.Struct(s)
	if err != nil {
		return ToValidationErrors(err)
	}
	return nil
}

// ValidateAnswerShape checks that an answer carries the payload its question
// type expects.
func (bv *BusinessValidator) ValidateAnswerShape(questionType models.QuestionType, answer AnswerRequest) *ValidationError {
	field := fmt.Sprintf("answers[question_id=%d]", answer.QuestionID)

	if questionType.IsOptionBased() {
		if answer.OptionID == nil {
			return &ValidationError{Field: field, Message: "option_id is required for this question type", Rule: "answer_payload"}
		}
		return nil
	}

	if answer.OptionID != nil {
		return &ValidationError{Field: field, Message: "option_id is not accepted for this question type", Rule: "answer_payload"}
	}
	if answer.Text == nil {
		return &ValidationError{Field: field, Message: "text is required for this question type", Rule: "answer_payload"}
	}
	return nil
}

// ValidateGrade checks a manual grade against the assignment's scale
func (bv *BusinessValidator) ValidateGrade(score, maxScore int) ValidationErrors {
	var errors ValidationErrors
	if score < 0 || score > maxScore {
		errors = append(errors, ValidationError{
			Field:   "score",
			Message: fmt.Sprintf("must be between 0 and %d", maxScore),
			Value:   score,
			Rule:    "grade_range",
		})
	}
	return errors
}

// registerBusinessRules registers custom business rule validators
func (bv *BusinessValidator) registerBusinessRules() {
	bv.validate.RegisterValidation("submission_content", func(fl validator.FieldLevel) bool {
		content := fl.Field().String()
		return strings.TrimSpace(content) != "" && len(content) <= maxSubmissionContent
	})

	// An answer names an option or carries text, never both and never neither
	bv.validate.RegisterStructValidation(func(sl validator.StructLevel) {
		answer := sl.Current().Interface().(AnswerRequest)
		if (answer.OptionID == nil) == (answer.Text == nil) {
			sl.ReportError(answer.OptionID, "answer", "OptionID", "answer_payload", "")
		}
	}, AnswerRequest{})
}

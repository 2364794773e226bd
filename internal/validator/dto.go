package validator

// AnswerRequest is one answer inside a quiz submission or draft. Option
// based questions carry OptionID, free text questions carry Text.
type AnswerRequest struct {
	QuestionID uint    `json:"question_id" validate:"required"`
	OptionID   *uint   `json:"option_id"`
	Text       *string `json:"text" validate:"omitempty,max=10000"`
}

// SubmitAttemptRequest represents a quiz submission
type SubmitAttemptRequest struct {
	SessionToken  string          `json:"session_token" validate:"omitempty,uuid"`
	SubmissionKey string          `json:"submission_key" validate:"omitempty,min=8,max=64"`
	Answers       []AnswerRequest `json:"answers" validate:"omitempty,max=500,dive"`
}

// SaveDraftRequest stores in-progress answers against a running session
type SaveDraftRequest struct {
	Answers []AnswerRequest `json:"answers" validate:"omitempty,max=500,dive"`
}

// SubmitAssignmentRequest represents a free-form assignment submission
type SubmitAssignmentRequest struct {
	Content string `json:"content" validate:"required,submission_content"`
}

// GradeSubmissionRequest represents an instructor grading a submission
type GradeSubmissionRequest struct {
	Score    *int    `json:"score" validate:"required,min=0"`
	Feedback *string `json:"feedback" validate:"omitempty,max=5000"`
}

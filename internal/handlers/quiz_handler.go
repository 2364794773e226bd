package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/learning-progress-service/internal/services"
	"github.com/SAP-F-2025/learning-progress-service/internal/utils"
)

type QuizHandler struct {
	BaseHandler
	attemptService services.AttemptService
	exportService  services.ExportService
}

func NewQuizHandler(
	attemptService services.AttemptService,
	exportService services.ExportService,
	logger utils.Logger,
) *QuizHandler {
	return &QuizHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
		exportService:  exportService,
	}
}

// GetQuiz returns the quiz as students see it
// @Summary Get quiz
// @Description Returns the quiz with resolved options and no correctness data
// @Tags quizzes
// @Produce json
// @Param id path uint true "Quiz ID"
// @Success 200 {object} services.QuizForAttempt
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /quizzes/{id} [get]
func (h *QuizHandler) GetQuiz(c *gin.Context) {
	quizID := h.parseIDParam(c, "id")
	if quizID == 0 {
		return
	}

	userID := h.requireUser(c)
	if userID == "" {
		return
	}

	quiz, err := h.attemptService.GetQuizForDisplay(c.Request.Context(), userID, quizID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, quiz)
}

// StartAttempt opens a server-side session for the quiz
// @Summary Start quiz attempt
// @Tags quizzes
// @Produce json
// @Param id path uint true "Quiz ID"
// @Success 201 {object} services.StartAttemptResponse
// @Failure 409 {object} ErrorResponse
// @Router /quizzes/{id}/start [post]
func (h *QuizHandler) StartAttempt(c *gin.Context) {
	quizID := h.parseIDParam(c, "id")
	if quizID == 0 {
		return
	}

	h.LogRequest(c, "Starting quiz attempt", "quiz_id", quizID)

	userID := h.requireUser(c)
	if userID == "" {
		return
	}

	started, err := h.attemptService.StartAttempt(c.Request.Context(), userID, quizID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	status := http.StatusCreated
	if started.Resumed {
		status = http.StatusOK
	}
	c.JSON(status, started)
}

// SaveDraft stores the answers given so far in a running session
// @Summary Save draft answers
// @Tags quizzes
// @Accept json
// @Produce json
// @Param token path string true "Session token"
// @Param draft body services.SaveDraftRequest true "Draft answers"
// @Success 200 {object} SuccessResponse
// @Router /quizzes/sessions/{token}/draft [put]
func (h *QuizHandler) SaveDraft(c *gin.Context) {
	token := c.Param("token")

	userID := h.requireUser(c)
	if userID == "" {
		return
	}

	var req services.SaveDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	if err := h.attemptService.SaveDraft(c.Request.Context(), userID, token, &req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Draft saved successfully",
	})
}

// ExpireSession grades a session whose deadline passed
// @Summary Expire quiz session
// @Tags quizzes
// @Produce json
// @Param token path string true "Session token"
// @Success 200 {object} services.AttemptResponse
// @Router /quizzes/sessions/{token}/expire [post]
func (h *QuizHandler) ExpireSession(c *gin.Context) {
	token := c.Param("token")

	h.LogRequest(c, "Expiring quiz session")

	userID := h.requireUser(c)
	if userID == "" {
		return
	}

	attempt, err := h.attemptService.ExpireSession(c.Request.Context(), userID, token)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// SubmitAttempt grades and stores a quiz attempt
// @Summary Submit quiz attempt
// @Description Grades the answers and stores the attempt. Repeating a submission with the same key returns the stored attempt.
// @Tags quizzes
// @Accept json
// @Produce json
// @Param id path uint true "Quiz ID"
// @Param attempt body services.SubmitAttemptRequest true "Answers"
// @Success 201 {object} services.AttemptResponse
// @Success 200 {object} services.AttemptResponse "Duplicate submission"
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /quizzes/{id}/submit [post]
func (h *QuizHandler) SubmitAttempt(c *gin.Context) {
	quizID := h.parseIDParam(c, "id")
	if quizID == 0 {
		return
	}

	h.LogRequest(c, "Submitting quiz attempt", "quiz_id", quizID)

	userID := h.requireUser(c)
	if userID == "" {
		return
	}

	var req services.SubmitAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	if req.SubmissionKey == "" {
		req.SubmissionKey = c.GetHeader("Idempotency-Key")
	}

	attempt, err := h.attemptService.SubmitAttempt(c.Request.Context(), userID, quizID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	status := http.StatusCreated
	if attempt.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, attempt)
}

// ListAttempts lists the caller's attempts at a quiz
// @Summary List own attempts
// @Tags quizzes
// @Produce json
// @Param id path uint true "Quiz ID"
// @Success 200 {array} services.AttemptResponse
// @Router /quizzes/{id}/attempts [get]
func (h *QuizHandler) ListAttempts(c *gin.Context) {
	quizID := h.parseIDParam(c, "id")
	if quizID == 0 {
		return
	}

	userID := h.requireUser(c)
	if userID == "" {
		return
	}

	attempts, err := h.attemptService.ListAttempts(c.Request.Context(), userID, quizID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempts)
}

// GetAttempt returns one attempt with its answers
// @Summary Get attempt
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.AttemptResponse
// @Router /attempts/{id} [get]
func (h *QuizHandler) GetAttempt(c *gin.Context) {
	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}

	userID := h.requireUser(c)
	if userID == "" {
		return
	}

	attempt, err := h.attemptService.GetAttempt(c.Request.Context(), userID, attemptID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// GetStats returns aggregate attempt statistics
// @Summary Get quiz stats
// @Tags quizzes
// @Produce json
// @Param id path uint true "Quiz ID"
// @Success 200 {object} SuccessResponse{data=repositories.AttemptStats}
// @Router /quizzes/{id}/stats [get]
func (h *QuizHandler) GetStats(c *gin.Context) {
	quizID := h.parseIDParam(c, "id")
	if quizID == 0 {
		return
	}

	stats, err := h.attemptService.GetStats(c.Request.Context(), quizID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Quiz stats retrieved successfully",
		Data:    stats,
	})
}

// ExportAttempts downloads all attempts of a quiz as an xlsx workbook
// @Summary Export quiz attempts
// @Tags quizzes
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path uint true "Quiz ID"
// @Success 200 {file} file
// @Router /quizzes/{id}/export [get]
func (h *QuizHandler) ExportAttempts(c *gin.Context) {
	quizID := h.parseIDParam(c, "id")
	if quizID == 0 {
		return
	}

	h.LogRequest(c, "Exporting quiz attempts", "quiz_id", quizID)

	file, err := h.exportService.ExportQuizAttempts(c.Request.Context(), quizID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

func (h *QuizHandler) handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrQuizNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Quiz not found",
		})
	case errors.Is(err, services.ErrAttemptNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Attempt not found",
		})
	case errors.Is(err, services.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Quiz session not found",
		})
	case errors.Is(err, services.ErrAttemptLimitExceeded):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Maximum attempts exceeded",
		})
	case errors.Is(err, services.ErrSubmissionInFlight):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Submission is already being processed",
		})
	case errors.Is(err, services.ErrSessionExpired):
		c.JSON(http.StatusGone, ErrorResponse{
			Message: "Quiz session time has expired",
		})
	case errors.Is(err, services.ErrSessionRequired):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Timed quiz must be started before submitting",
		})
	case errors.Is(err, services.ErrSessionClosed):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Quiz session is closed",
		})
	case errors.Is(err, services.ErrSessionNotExpired):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Quiz session is still running",
		})
	default:
		h.handleCommonError(c, err)
	}
}

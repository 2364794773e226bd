package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/learning-progress-service/internal/models"
	"github.com/SAP-F-2025/learning-progress-service/internal/repositories"
	"github.com/SAP-F-2025/learning-progress-service/internal/services"
	"github.com/SAP-F-2025/learning-progress-service/internal/utils"
)

type SubmissionHandler struct {
	BaseHandler
	submissionService services.SubmissionService
}

func NewSubmissionHandler(submissionService services.SubmissionService, logger utils.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		BaseHandler:       NewBaseHandler(logger),
		submissionService: submissionService,
	}
}

// SubmitAssignment stores the caller's latest submission
// @Summary Submit assignment
// @Tags assignments
// @Accept json
// @Produce json
// @Param id path uint true "Assignment ID"
// @Param submission body services.SubmitAssignmentRequest true "Submission content"
// @Success 200 {object} models.AssignmentSubmission
// @Failure 409 {object} ErrorResponse "Already graded"
// @Router /assignments/{id}/submission [put]
func (h *SubmissionHandler) SubmitAssignment(c *gin.Context) {
	assignmentID := h.parseIDParam(c, "id")
	if assignmentID == 0 {
		return
	}

	h.LogRequest(c, "Submitting assignment", "assignment_id", assignmentID)

	userID := h.requireUser(c)
	if userID == "" {
		return
	}

	var req services.SubmitAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	submission, err := h.submissionService.Submit(c.Request.Context(), userID, assignmentID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, submission)
}

// GetMySubmission returns the caller's submission, or a not_submitted
// placeholder.
// @Summary Get own submission
// @Tags assignments
// @Produce json
// @Param id path uint true "Assignment ID"
// @Success 200 {object} models.AssignmentSubmission
// @Router /assignments/{id}/submission [get]
func (h *SubmissionHandler) GetMySubmission(c *gin.Context) {
	assignmentID := h.parseIDParam(c, "id")
	if assignmentID == 0 {
		return
	}

	userID := h.requireUser(c)
	if userID == "" {
		return
	}

	submission, err := h.submissionService.GetMySubmission(c.Request.Context(), userID, assignmentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, submission)
}

// ListSubmissions lists submissions of an assignment
// @Summary List assignment submissions
// @Tags assignments
// @Produce json
// @Param id path uint true "Assignment ID"
// @Param status query string false "Filter by status (submitted, graded)"
// @Param page query int false "Page number (default: 1)"
// @Param size query int false "Page size (default: 20)"
// @Success 200 {object} ListResponse
// @Router /assignments/{id}/submissions [get]
func (h *SubmissionHandler) ListSubmissions(c *gin.Context) {
	assignmentID := h.parseIDParam(c, "id")
	if assignmentID == 0 {
		return
	}

	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 20)
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	filters := repositories.SubmissionFilters{
		Limit:  size,
		Offset: (page - 1) * size,
	}
	if status := c.Query("status"); status != "" {
		submissionStatus := models.SubmissionStatus(status)
		filters.Status = &submissionStatus
	}

	submissions, total, err := h.submissionService.ListForAssignment(c.Request.Context(), assignmentID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListResponse{
		Data:  submissions,
		Total: total,
		Page:  page,
		Size:  size,
	})
}

// GetSubmission returns a submission to its owner or an instructor
// @Summary Get submission
// @Tags submissions
// @Produce json
// @Param id path uint true "Submission ID"
// @Success 200 {object} models.AssignmentSubmission
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) GetSubmission(c *gin.Context) {
	submissionID := h.parseIDParam(c, "id")
	if submissionID == 0 {
		return
	}

	userID := h.requireUser(c)
	if userID == "" {
		return
	}

	submission, err := h.submissionService.GetSubmission(c.Request.Context(), userID, submissionID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, submission)
}

// GradeSubmission records an instructor's grade
// @Summary Grade submission
// @Tags submissions
// @Accept json
// @Produce json
// @Param id path uint true "Submission ID"
// @Param grade body services.GradeSubmissionRequest true "Score and feedback"
// @Success 200 {object} models.AssignmentSubmission
// @Router /submissions/{id}/grade [post]
func (h *SubmissionHandler) GradeSubmission(c *gin.Context) {
	submissionID := h.parseIDParam(c, "id")
	if submissionID == 0 {
		return
	}

	h.LogRequest(c, "Grading submission", "submission_id", submissionID)

	userID := h.requireUser(c)
	if userID == "" {
		return
	}

	var req services.GradeSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	submission, err := h.submissionService.Grade(c.Request.Context(), userID, submissionID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, submission)
}

func (h *SubmissionHandler) handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrAssignmentNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Assignment not found",
		})
	case errors.Is(err, services.ErrSubmissionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Submission not found",
		})
	case errors.Is(err, services.ErrSubmissionGraded):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Submission has already been graded",
		})
	default:
		h.handleCommonError(c, err)
	}
}

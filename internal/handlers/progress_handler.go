package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/learning-progress-service/internal/services"
	"github.com/SAP-F-2025/learning-progress-service/internal/utils"
)

type ProgressHandler struct {
	BaseHandler
	completionService services.CompletionService
	progressService   services.ProgressService
}

func NewProgressHandler(
	completionService services.CompletionService,
	progressService services.ProgressService,
	logger utils.Logger,
) *ProgressHandler {
	return &ProgressHandler{
		BaseHandler:       NewBaseHandler(logger),
		completionService: completionService,
		progressService:   progressService,
	}
}

// CompleteLesson marks a lesson completed for the caller
// @Summary Complete lesson
// @Description Records a lesson completion and returns the recalculated course progress
// @Tags progress
// @Produce json
// @Param id path uint true "Lesson ID"
// @Success 200 {object} services.CompletionResult
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /lessons/{id}/complete [post]
func (h *ProgressHandler) CompleteLesson(c *gin.Context) {
	lessonID := h.parseIDParam(c, "id")
	if lessonID == 0 {
		return
	}

	h.LogRequest(c, "Recording lesson completion", "lesson_id", lessonID)

	userID := h.requireUser(c)
	if userID == "" {
		return
	}

	result, err := h.completionService.RecordCompletion(c.Request.Context(), userID, lessonID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// UncompleteLesson clears the caller's completion of a lesson
// @Summary Mark lesson incomplete
// @Tags progress
// @Produce json
// @Param id path uint true "Lesson ID"
// @Success 200 {object} services.CompletionResult
// @Router /lessons/{id}/complete [delete]
func (h *ProgressHandler) UncompleteLesson(c *gin.Context) {
	lessonID := h.parseIDParam(c, "id")
	if lessonID == 0 {
		return
	}

	h.LogRequest(c, "Marking lesson incomplete", "lesson_id", lessonID)

	userID := h.requireUser(c)
	if userID == "" {
		return
	}

	result, err := h.completionService.MarkIncomplete(c.Request.Context(), userID, lessonID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetProgress returns the caller's progress with a per-module breakdown
// @Summary Get course progress
// @Tags progress
// @Produce json
// @Param id path uint true "Course ID"
// @Success 200 {object} services.ProgressResponse
// @Router /courses/{id}/progress [get]
func (h *ProgressHandler) GetProgress(c *gin.Context) {
	courseID := h.parseIDParam(c, "id")
	if courseID == 0 {
		return
	}

	userID := h.requireUser(c)
	if userID == "" {
		return
	}

	progress, err := h.progressService.GetProgress(c.Request.Context(), userID, courseID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, progress)
}

// RecalculateProgress recomputes the caller's stored percentage from the
// completion rows.
// @Summary Recalculate own progress
// @Tags progress
// @Produce json
// @Param id path uint true "Course ID"
// @Success 200 {object} SuccessResponse
// @Router /courses/{id}/progress/recalculate [post]
func (h *ProgressHandler) RecalculateProgress(c *gin.Context) {
	courseID := h.parseIDParam(c, "id")
	if courseID == 0 {
		return
	}

	h.LogRequest(c, "Recalculating progress", "course_id", courseID)

	userID := h.requireUser(c)
	if userID == "" {
		return
	}

	percentage, err := h.progressService.Recalculate(c.Request.Context(), userID, courseID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Progress recalculated successfully",
		Data: gin.H{
			"course_id":           courseID,
			"progress_percentage": percentage,
		},
	})
}

// RecalculateCourse recomputes progress for every enrolled student
// @Summary Recalculate course progress
// @Tags progress
// @Produce json
// @Param id path uint true "Course ID"
// @Success 200 {object} services.BulkRecalculationResult
// @Router /courses/{id}/progress/recalculate-all [post]
func (h *ProgressHandler) RecalculateCourse(c *gin.Context) {
	courseID := h.parseIDParam(c, "id")
	if courseID == 0 {
		return
	}

	h.LogRequest(c, "Recalculating progress for course", "course_id", courseID)

	result, err := h.progressService.RecalculateCourse(c.Request.Context(), courseID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListCompletions lists the caller's completion rows in a course
// @Summary List lesson completions
// @Tags progress
// @Produce json
// @Param id path uint true "Course ID"
// @Success 200 {array} models.LessonCompletion
// @Router /courses/{id}/completions [get]
func (h *ProgressHandler) ListCompletions(c *gin.Context) {
	courseID := h.parseIDParam(c, "id")
	if courseID == 0 {
		return
	}

	userID := h.requireUser(c)
	if userID == "" {
		return
	}

	completions, err := h.completionService.ListCompletions(c.Request.Context(), userID, courseID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, completions)
}

func (h *ProgressHandler) handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrLessonNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Lesson not found",
		})
	case errors.Is(err, services.ErrCourseNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Course not found",
		})
	case errors.Is(err, services.ErrEnrollmentNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Enrollment not found",
		})
	default:
		h.handleCommonError(c, err)
	}
}

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/learning-progress-service/internal/models"
	"github.com/SAP-F-2025/learning-progress-service/internal/services"
	"github.com/SAP-F-2025/learning-progress-service/internal/utils"
)

type HandlerManager struct {
	progressHandler   *ProgressHandler
	quizHandler       *QuizHandler
	submissionHandler *SubmissionHandler
	userHandler       *UserHandler
	authMiddleware    *CasdoorAuthMiddleware
	healthCheck       func(*gin.Context) error
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	authMiddleware *CasdoorAuthMiddleware,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		progressHandler:   NewProgressHandler(serviceManager.Completion(), serviceManager.Progress(), logger),
		quizHandler:       NewQuizHandler(serviceManager.Attempt(), serviceManager.Export(), logger),
		submissionHandler: NewSubmissionHandler(serviceManager.Submission(), logger),
		userHandler:       NewUserHandler(authMiddleware.userRepo, logger),
		authMiddleware:    authMiddleware,
		healthCheck: func(c *gin.Context) error {
			return serviceManager.HealthCheck(c.Request.Context())
		},
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	instructorOnly := hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleAdmin)

	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		lessons := v1.Group("/lessons")
		{
			lessons.POST("/:id/complete", hm.progressHandler.CompleteLesson)
			lessons.DELETE("/:id/complete", hm.progressHandler.UncompleteLesson)
		}

		courses := v1.Group("/courses")
		{
			courses.GET("/:id/progress", hm.progressHandler.GetProgress)
			courses.GET("/:id/completions", hm.progressHandler.ListCompletions)
			courses.POST("/:id/progress/recalculate", hm.progressHandler.RecalculateProgress)

			// Course-wide repair - Teachers and Admins only
			courses.POST("/:id/progress/recalculate-all", instructorOnly, hm.progressHandler.RecalculateCourse)
		}

		quizzes := v1.Group("/quizzes")
		{
			quizzes.GET("/:id", hm.quizHandler.GetQuiz)
			quizzes.POST("/:id/start", hm.quizHandler.StartAttempt)
			quizzes.POST("/:id/submit", hm.quizHandler.SubmitAttempt)
			quizzes.GET("/:id/attempts", hm.quizHandler.ListAttempts)

			quizzes.PUT("/sessions/:token/draft", hm.quizHandler.SaveDraft)
			quizzes.POST("/sessions/:token/expire", hm.quizHandler.ExpireSession)

			// Reporting - Teachers and Admins only
			quizzes.GET("/:id/stats", instructorOnly, hm.quizHandler.GetStats)
			quizzes.GET("/:id/export", instructorOnly, hm.quizHandler.ExportAttempts)
		}

		v1.GET("/attempts/:id", hm.quizHandler.GetAttempt)

		assignments := v1.Group("/assignments")
		{
			assignments.PUT("/:id/submission", hm.submissionHandler.SubmitAssignment)
			assignments.GET("/:id/submission", hm.submissionHandler.GetMySubmission)
			assignments.GET("/:id/submissions", instructorOnly, hm.submissionHandler.ListSubmissions)
		}

		submissions := v1.Group("/submissions")
		{
			submissions.GET("/:id", hm.submissionHandler.GetSubmission)
			submissions.POST("/:id/grade", instructorOnly, hm.submissionHandler.GradeSubmission)
		}

		users := v1.Group("/users")
		{
			users.GET("/me", hm.userHandler.GetCurrentUser)
			users.GET("/:id", hm.userHandler.GetUser)
		}
	}

	router.GET("/health", hm.Health)
}

// Health reports whether the database is reachable
func (hm *HandlerManager) Health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":    "healthy",
		"service":   "learning-progress-service",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := hm.healthCheck(c); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["error"] = err.Error()
	}

	c.JSON(status, body)
}

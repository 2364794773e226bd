package models

import "time"

type NotificationType string

const (
	NotificationQuizGraded       NotificationType = "quiz_graded"
	NotificationAssignmentGraded NotificationType = "assignment_graded"
	NotificationCourseCompleted  NotificationType = "course_completed"
)

// Notification is what gets handed to the notification dispatcher. Delivery
// (email, push, in-app) happens in another service.
type Notification struct {
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Link      string           `json:"link,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

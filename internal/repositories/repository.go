package repositories

import "context"

// Repository groups every repository used by the services.
type Repository interface {
	// Catalog (read-only)
	Course() CourseRepository
	Quiz() QuizRepository
	Option() OptionRepository

	// Progress domain
	Enrollment() EnrollmentRepository
	Completion() CompletionRepository

	// Assessment domain
	Attempt() AttemptRepository
	Session() SessionRepository
	Assignment() AssignmentRepository

	// Users come from the identity provider
	User() UserRepository

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager interface for managing repository lifecycle
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

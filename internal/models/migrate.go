package models

// All lists every table owned or read by this service, in dependency order.
func All() []interface{} {
	return []interface{}{
		&Course{},
		&Module{},
		&Lesson{},
		&Enrollment{},
		&LessonCompletion{},
		&Quiz{},
		&QuizQuestion{},
		&QuizOption{},
		&LegacyQuizOption{},
		&QuizAttempt{},
		&QuizAnswer{},
		&QuizSession{},
		&Assignment{},
		&AssignmentSubmission{},
	}
}

package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/SAP-F-2025/learning-progress-service/internal/models"
	"github.com/SAP-F-2025/learning-progress-service/internal/repositories"
	"gorm.io/gorm"
)

type optionResolver struct {
	repo   repositories.Repository
	db     *gorm.DB
	logger *slog.Logger
}

func NewOptionResolver(repo repositories.Repository, db *gorm.DB, logger *slog.Logger) OptionResolver {
	return &optionResolver{
		repo:   repo,
		db:     db,
		logger: logger,
	}
}

// Resolve reads the current store first and falls back to the legacy store
// only when the current one has no rows for the question.
func (r *optionResolver) Resolve(ctx context.Context, tx *gorm.DB, questionID uint) (*ResolvedOptions, error) {
	current, err := r.repo.Option().GetCurrent(ctx, tx, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load options for question %d: %w", questionID, err)
	}

	if len(current) > 0 {
		resolved := &ResolvedOptions{
			QuestionID: questionID,
			Source:     models.OptionSourceCurrent,
			Options:    make([]ResolvedOption, 0, len(current)),
		}
		for _, o := range current {
			resolved.Options = append(resolved.Options, ResolvedOption{
				ID:        o.ID,
				Text:      o.OptionText,
				IsCorrect: o.IsCorrect,
				Order:     o.OrderIndex,
			})
		}
		return resolved, nil
	}

	legacy, err := r.repo.Option().GetLegacy(ctx, tx, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load legacy options for question %d: %w", questionID, err)
	}

	resolved := &ResolvedOptions{
		QuestionID: questionID,
		Source:     models.OptionSourceLegacy,
		Options:    make([]ResolvedOption, 0, len(legacy)),
	}
	for _, o := range legacy {
		resolved.Options = append(resolved.Options, ResolvedOption{
			ID:        o.ID,
			Text:      o.ChoiceLabel,
			IsCorrect: o.Correct,
			Order:     o.Position,
		})
	}

	if len(legacy) > 0 {
		r.logger.Debug("Question options resolved from legacy store",
			"question_id", questionID,
			"options", len(legacy))
	}

	return resolved, nil
}

// ResolveQuiz resolves every question on its own. Questions of one quiz may
// end up on different generations.
func (r *optionResolver) ResolveQuiz(ctx context.Context, tx *gorm.DB, questions []*models.QuizQuestion) (OptionSet, error) {
	set := make(OptionSet, len(questions))
	for _, q := range questions {
		if _, done := set[q.ID]; done {
			continue
		}
		resolved, err := r.Resolve(ctx, tx, q.ID)
		if err != nil {
			return nil, err
		}
		set[q.ID] = resolved
	}
	return set, nil
}

// QuizForDisplay returns the quiz with resolved options and without any
// correctness information.
func (r *optionResolver) QuizForDisplay(ctx context.Context, quizID uint) (*QuizForAttempt, error) {
	quiz, err := r.repo.Quiz().GetByID(ctx, r.db, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	questions, err := r.repo.Quiz().GetQuestions(ctx, r.db, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to get quiz questions: %w", err)
	}

	set, err := r.ResolveQuiz(ctx, r.db, questions)
	if err != nil {
		return nil, err
	}

	return buildQuizForAttempt(quiz, questions, set), nil
}

func buildQuizForAttempt(quiz *models.Quiz, questions []*models.QuizQuestion, set OptionSet) *QuizForAttempt {
	view := &QuizForAttempt{
		ID:               quiz.ID,
		CourseID:         quiz.CourseID,
		Title:            quiz.Title,
		PassingScore:     quiz.PassingScore,
		TimeLimitMinutes: quiz.TimeLimitMinutes,
		MaxAttempts:      quiz.MaxAttempts,
		Questions:        make([]QuestionForAttempt, 0, len(questions)),
	}

	for _, q := range questions {
		item := QuestionForAttempt{
			ID:    q.ID,
			Text:  q.QuestionText,
			Type:  q.QuestionType,
			Order: q.Order,
		}
		// Fill-blank options are the accepted answers, so they stay hidden.
		if resolved, ok := set[q.ID]; ok && q.QuestionType.IsOptionBased() {
			item.OptionSource = resolved.Source
			item.Options = make([]DisplayOption, 0, len(resolved.Options))
			for _, o := range resolved.Options {
				item.Options = append(item.Options, DisplayOption{ID: o.ID, Text: o.Text, Order: o.Order})
			}
		}
		view.Questions = append(view.Questions, item)
	}

	return view
}

// Find looks an option up inside this generation only
func (ro *ResolvedOptions) Find(optionID uint) (*ResolvedOption, bool) {
	for i := range ro.Options {
		if ro.Options[i].ID == optionID {
			return &ro.Options[i], true
		}
	}
	return nil, false
}

// MatchesCorrectText compares free text against the correct options,
// ignoring surrounding whitespace and case.
func (ro *ResolvedOptions) MatchesCorrectText(text string) bool {
	answer := strings.TrimSpace(text)
	for _, o := range ro.Options {
		if o.IsCorrect && strings.EqualFold(strings.TrimSpace(o.Text), answer) {
			return true
		}
	}
	return false
}

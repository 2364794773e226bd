package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/learning-progress-service/internal/models"
	"github.com/SAP-F-2025/learning-progress-service/internal/repositories"
)

const (
	xlsxContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	attemptsSheetName = "Attempts"
	summarySheetName  = "Summary"
)

var attemptColumns = []interface{}{
	"Student ID", "Student Name", "Attempt", "Score", "Passed",
	"Correct", "Questions", "End Reason", "Started At", "Submitted At",
}

type exportService struct {
	repo   repositories.Repository
	db     *gorm.DB
	logger *slog.Logger
}

func NewExportService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger) ExportService {
	return &exportService{
		repo:   repo,
		db:     db,
		logger: logger,
	}
}

// ExportQuizAttempts builds an xlsx gradebook with one row per attempt and a
// summary sheet.
func (s *exportService) ExportQuizAttempts(ctx context.Context, quizID uint) (*ExportFile, error) {
	s.logger.Info("Exporting quiz attempts", "quiz_id", quizID)

	quiz, err := s.repo.Quiz().GetByID(ctx, s.db, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	attempts, err := s.repo.Attempt().ListByQuiz(ctx, s.db, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	stats, err := s.repo.Attempt().GetStats(ctx, s.db, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt stats: %w", err)
	}

	names := s.studentNames(ctx, attempts)

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("Failed to close workbook", "error", err)
		}
	}()

	if err := f.SetSheetName("Sheet1", attemptsSheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create style: %w", err)
	}

	if err := f.SetSheetRow(attemptsSheetName, "A1", &attemptColumns); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(attemptColumns), 1)
	if err := f.SetCellStyle(attemptsSheetName, "A1", lastHeader, header); err != nil {
		return nil, fmt.Errorf("failed to style header: %w", err)
	}

	for i, a := range attempts {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []interface{}{
			a.StudentID,
			names[a.StudentID],
			a.AttemptNumber,
			a.Score,
			a.Passed,
			a.CorrectCount,
			a.TotalQuestions,
			a.EndReason,
			a.StartedAt.UTC().Format(time.RFC3339),
			a.SubmittedAt.UTC().Format(time.RFC3339),
		}
		if err := f.SetSheetRow(attemptsSheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write attempt row: %w", err)
		}
	}

	if err := s.writeSummary(f, quiz, stats, header); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}

	s.logger.Info("Quiz attempts exported",
		"quiz_id", quizID,
		"attempts", len(attempts),
		"bytes", buf.Len())

	return &ExportFile{
		Filename:    fmt.Sprintf("quiz-%d-attempts.xlsx", quizID),
		ContentType: xlsxContentType,
		Data:        buf.Bytes(),
	}, nil
}

func (s *exportService) writeSummary(f *excelize.File, quiz *models.Quiz, stats *repositories.AttemptStats, header int) error {
	if _, err := f.NewSheet(summarySheetName); err != nil {
		return fmt.Errorf("failed to add summary sheet: %w", err)
	}

	rows := [][]interface{}{
		{"Quiz", quiz.Title},
		{"Passing Score", quiz.PassingScore},
		{"Total Attempts", stats.TotalAttempts},
		{"Unique Students", stats.UniqueStudents},
		{"Average Score", stats.AverageScore},
		{"Highest Score", stats.HighestScore},
		{"Lowest Score", stats.LowestScore},
		{"Pass Rate", stats.PassRate},
	}
	for i := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheetName, cell, &rows[i]); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
	}

	last, _ := excelize.CoordinatesToCellName(1, len(rows))
	return f.SetCellStyle(summarySheetName, "A1", last, header)
}

// studentNames is best effort; a missing identity provider leaves the
// column empty.
func (s *exportService) studentNames(ctx context.Context, attempts []*models.QuizAttempt) map[string]string {
	names := make(map[string]string)
	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, a := range attempts {
		if !seen[a.StudentID] {
			seen[a.StudentID] = true
			ids = append(ids, a.StudentID)
		}
	}
	if len(ids) == 0 {
		return names
	}

	users, err := s.repo.User().GetByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("Failed to resolve student names for export", "error", err)
		return names
	}
	for _, u := range users {
		names[u.ID] = u.FullName
	}
	return names
}

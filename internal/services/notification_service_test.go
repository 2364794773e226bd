package services

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/SAP-F-2025/learning-progress-service/internal/events"
	"github.com/SAP-F-2025/learning-progress-service/internal/models"
)

func TestEventNotificationDispatcher_Notify(t *testing.T) {
	// Setup
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	mockPublisher := events.NewMockEventPublisher(logger)
	dispatcher := NewEventNotificationDispatcher(mockPublisher, "", logger)

	ctx := context.Background()

	t.Run("PublishesNotificationEvent", func(t *testing.T) {
		notification := &models.Notification{
			UserID:  "student-1",
			Type:    models.NotificationQuizGraded,
			Title:   "Checkpoint graded",
			Message: "You scored 80% (passed).",
			Link:    "/attempts/1",
		}

		if err := dispatcher.Notify(ctx, notification); err != nil {
			t.Fatalf("Failed to send notification: %v", err)
		}

		// Verify event was published
		published := mockPublisher.GetPublishedEvents()
		if len(published) != 1 {
			t.Fatalf("Expected 1 event, got %d", len(published))
		}

		event := published[0]
		if event.Type != events.TypeNotificationRequested {
			t.Errorf("Expected event type %s, got %s", events.TypeNotificationRequested, event.Type)
		}
		if event.Source != events.EventSource || event.ID == "" {
			t.Errorf("Unexpected envelope: %+v", event)
		}

		topics := mockPublisher.GetTopics()
		if len(topics) != 1 || topics[0] != NotificationTopic {
			t.Errorf("Expected topic %s, got %v", NotificationTopic, topics)
		}

		data, ok := event.Data.(*models.Notification)
		if !ok {
			t.Fatalf("Expected *models.Notification payload, got %T", event.Data)
		}
		if data.UserID != "student-1" || data.CreatedAt.IsZero() {
			t.Errorf("Unexpected payload: %+v", data)
		}
	})

	t.Run("KeepsExplicitTimestamp", func(t *testing.T) {
		mockPublisher.ClearEvents()
		at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

		err := dispatcher.Notify(ctx, &models.Notification{
			UserID:    "student-2",
			Type:      models.NotificationCourseCompleted,
			CreatedAt: at,
		})
		if err != nil {
			t.Fatalf("Failed to send notification: %v", err)
		}

		data := mockPublisher.GetPublishedEvents()[0].Data.(*models.Notification)
		if !data.CreatedAt.Equal(at) {
			t.Errorf("CreatedAt = %v, want %v", data.CreatedAt, at)
		}
	})

	t.Run("PublisherFailure", func(t *testing.T) {
		failing := events.NewMockEventPublisher(logger)
		failing.FailWith(errors.New("broker unavailable"))

		err := NewEventNotificationDispatcher(failing, "custom", logger).Notify(ctx, &models.Notification{
			UserID: "student-1",
			Type:   models.NotificationAssignmentGraded,
		})
		if err == nil {
			t.Fatal("Expected an error from a failing publisher")
		}
	})
}

func TestUnconfiguredDispatcher(t *testing.T) {
	err := UnconfiguredDispatcher{}.Notify(context.Background(), &models.Notification{UserID: "student-1"})
	if !errors.Is(err, ErrNotifierUnconfigured) {
		t.Fatalf("Expected ErrNotifierUnconfigured, got %v", err)
	}

	// Best effort sends swallow the error
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	notifyBestEffort(context.Background(), UnconfiguredDispatcher{}, logger, &models.Notification{UserID: "student-1"})
	notifyBestEffort(context.Background(), nil, logger, &models.Notification{UserID: "student-1"})
}

func BenchmarkEventNotificationDispatcher_Notify(b *testing.B) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	mockPublisher := events.NewMockEventPublisher(logger)
	dispatcher := NewEventNotificationDispatcher(mockPublisher, NotificationTopic, logger)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = dispatcher.Notify(ctx, &models.Notification{
			UserID: "student-1",
			Type:   models.NotificationQuizGraded,
			Title:  "Benchmark",
		})
	}
}

package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/learning-progress-service/internal/events"
	"github.com/SAP-F-2025/learning-progress-service/internal/models"
)

const NotificationTopic = "notifications"

// eventNotificationDispatcher publishes notification requests for the
// delivery service to pick up.
type eventNotificationDispatcher struct {
	publisher events.EventPublisher
	topic     string
	logger    *slog.Logger
}

func NewEventNotificationDispatcher(publisher events.EventPublisher, topic string, logger *slog.Logger) NotificationDispatcher {
	if topic == "" {
		topic = NotificationTopic
	}
	return &eventNotificationDispatcher{
		publisher: publisher,
		topic:     topic,
		logger:    logger,
	}
}

func (d *eventNotificationDispatcher) Notify(ctx context.Context, notification *models.Notification) error {
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now()
	}

	event := events.NewEvent(events.TypeNotificationRequested, notification)
	if err := d.publisher.Publish(ctx, d.topic, event); err != nil {
		return fmt.Errorf("failed to dispatch %s notification: %w", notification.Type, err)
	}

	d.logger.Debug("Notification dispatched",
		"user_id", notification.UserID,
		"type", notification.Type,
		"event_id", event.ID)
	return nil
}

// UnconfiguredDispatcher is used when no broker is configured
type UnconfiguredDispatcher struct{}

func (UnconfiguredDispatcher) Notify(ctx context.Context, notification *models.Notification) error {
	return ErrNotifierUnconfigured
}

// notifyBestEffort sends a notification and only logs failures. The caller's
// primary write has already committed at this point.
func notifyBestEffort(ctx context.Context, dispatcher NotificationDispatcher, logger *slog.Logger, notification *models.Notification) {
	if dispatcher == nil {
		return
	}
	if err := dispatcher.Notify(ctx, notification); err != nil {
		logger.Warn("Failed to send notification",
			"error", err,
			"user_id", notification.UserID,
			"type", notification.Type)
	}
}

package services

import (
	"context"
	"testing"
	"time"

	"github.com/SAP-F-2025/learning-progress-service/internal/models"
)

func TestServiceManager_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sm := NewServiceManager(env.db, env.repo, env.logger, env.validator, env.cache, nil, ServiceManagerConfig{
		SessionSweepInterval: 20 * time.Millisecond,
	})

	t.Run("getters panic before Initialize", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("expected panic from uninitialized manager")
			}
		}()
		sm.Attempt()
	})

	if err := sm.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() before Initialize should fail")
	}

	if err := sm.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := sm.Initialize(ctx); err != nil {
		t.Fatalf("second Initialize() error = %v", err)
	}

	if sm.Completion() == nil || sm.Progress() == nil || sm.Options() == nil ||
		sm.Attempt() == nil || sm.Submission() == nil || sm.Export() == nil {
		t.Fatal("expected every service to be initialized")
	}
	if _, ok := sm.Notifications().(UnconfiguredDispatcher); !ok {
		t.Errorf("nil notifier should fall back to UnconfiguredDispatcher, got %T", sm.Notifications())
	}

	if err := sm.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	// Let the sweeper tick at least once against an empty database
	time.Sleep(50 * time.Millisecond)

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := sm.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := sm.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() after Shutdown should fail")
	}
}

func TestServiceManager_SweeperExpiresSessions(t *testing.T) {
	f := newQuizFixture(t, func(q *models.Quiz) { q.TimeLimitMinutes = intPtr(1) })
	ctx := context.Background()

	// A session whose deadline already passed
	attempts := f.env.attemptService()
	attempts.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	if _, err := attempts.StartAttempt(ctx, "student-1", f.quiz.ID); err != nil {
		t.Fatalf("StartAttempt() error = %v", err)
	}

	sm := NewServiceManager(f.env.db, f.env.repo, f.env.logger, f.env.validator, f.env.cache, f.env.notifier, ServiceManagerConfig{
		SessionSweepInterval: 10 * time.Millisecond,
	})
	if err := sm.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && f.env.count(t, &models.QuizAttempt{}) == 0 {
		time.Sleep(10 * time.Millisecond)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := sm.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	if got := f.env.count(t, &models.QuizAttempt{}); got != 1 {
		t.Errorf("attempts after sweep = %d, want 1", got)
	}
}

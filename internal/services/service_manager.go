package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SAP-F-2025/learning-progress-service/internal/cache"
	"github.com/SAP-F-2025/learning-progress-service/internal/repositories"
	"github.com/SAP-F-2025/learning-progress-service/internal/validator"
	"gorm.io/gorm"
)

// ServiceManagerConfig holds configuration for the service manager
type ServiceManagerConfig struct {
	Attempt AttemptServiceConfig

	// SessionSweepInterval controls how often overdue timed sessions are
	// auto-submitted. Zero disables the sweeper.
	SessionSweepInterval time.Duration
}

// serviceManager implements ServiceManager interface
type serviceManager struct {
	// Dependencies
	db           *gorm.DB
	repo         repositories.Repository
	logger       *slog.Logger
	validator    *validator.Validator
	cacheManager *cache.CacheManager
	notifier     NotificationDispatcher
	config       ServiceManagerConfig

	// Service instances
	optionResolver    OptionResolver
	progressService   ProgressService
	completionService CompletionService
	attemptService    AttemptService
	submissionService SubmissionService
	exportService     ExportService

	// Background session sweeper
	stopSweeper context.CancelFunc
	sweeperDone chan struct{}

	// Lifecycle management
	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

// NewServiceManager creates a new service manager with all dependencies. A
// nil notifier is replaced by UnconfiguredDispatcher.
func NewServiceManager(db *gorm.DB, repo repositories.Repository, logger *slog.Logger, validator *validator.Validator,
	cacheManager *cache.CacheManager, notifier NotificationDispatcher, config ServiceManagerConfig) ServiceManager {
	if notifier == nil {
		notifier = UnconfiguredDispatcher{}
	}
	return &serviceManager{
		db:           db,
		repo:         repo,
		logger:       logger,
		validator:    validator,
		cacheManager: cacheManager,
		notifier:     notifier,
		config:       config,
	}
}

// Initialize sets up all services and their dependencies
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	sm.logger.Info("Initializing service manager")

	sm.optionResolver = NewOptionResolver(sm.repo, sm.db, sm.logger)
	sm.logger.Info("Option resolver initialized")

	sm.progressService = NewProgressService(sm.repo, sm.db, sm.logger, sm.notifier)
	sm.logger.Info("Progress service initialized")

	// Completion changes are handed to the progress service as commands
	sm.completionService = NewCompletionService(sm.repo, sm.db, sm.logger, sm.progressService)
	sm.logger.Info("Completion service initialized")

	sm.attemptService = NewAttemptService(sm.repo, sm.db, sm.logger, sm.validator, sm.optionResolver, sm.cacheManager, sm.notifier, sm.config.Attempt)
	sm.logger.Info("Attempt service initialized")

	sm.submissionService = NewSubmissionService(sm.repo, sm.db, sm.logger, sm.validator, sm.notifier)
	sm.logger.Info("Submission service initialized")

	sm.exportService = NewExportService(sm.repo, sm.db, sm.logger)
	sm.logger.Info("Export service initialized")

	if sm.config.SessionSweepInterval > 0 {
		sm.startSweeper(sm.config.SessionSweepInterval)
	}

	sm.initialized = true
	sm.logger.Info("Service manager initialized successfully")

	return nil
}

func (sm *serviceManager) startSweeper(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	sm.stopSweeper = cancel
	sm.sweeperDone = make(chan struct{})

	go func() {
		defer close(sm.sweeperDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := sm.attemptService.ExpireOverdueSessions(ctx); err != nil && ctx.Err() == nil {
					sm.logger.Error("Session sweep failed", "error", err)
				}
			}
		}
	}()

	sm.logger.Info("Session sweeper started", "interval", interval)
}

// Service getters
func (sm *serviceManager) Completion() CompletionService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.completionService
}

func (sm *serviceManager) Progress() ProgressService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.progressService
}

func (sm *serviceManager) Options() OptionResolver {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.optionResolver
}

func (sm *serviceManager) Attempt() AttemptService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.attemptService
}

func (sm *serviceManager) Submission() SubmissionService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.submissionService
}

func (sm *serviceManager) Export() ExportService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.exportService
}

func (sm *serviceManager) Notifications() NotificationDispatcher {
	return sm.notifier
}

// Health and lifecycle
func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}

	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	if err := sm.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}

	// Redis only backs caches and submission markers, so it is reported
	// but does not fail the check.
	if sm.cacheManager != nil {
		if err := sm.cacheManager.HealthCheck(ctx); err != nil {
			sm.logger.Warn("Cache health check failed", "error", err)
		}
	}

	return nil
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.logger.Info("Shutting down service manager")

	if sm.stopSweeper != nil {
		sm.stopSweeper()
		select {
		case <-sm.sweeperDone:
		case <-ctx.Done():
			sm.logger.Warn("Session sweeper did not stop before shutdown deadline")
		}
	}

	// Shutdown repository manager
	if repoManager, ok := sm.repo.(repositories.RepositoryManager); ok {
		if err := repoManager.Shutdown(ctx); err != nil {
			sm.logger.Error("Failed to shutdown repository manager", "error", err)
		}
	}

	sm.shutdown = true
	sm.logger.Info("Service manager shut down completed")

	return nil
}

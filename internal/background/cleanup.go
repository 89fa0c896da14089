package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// TokenSweeper clears one-time tokens whose expiry has passed
type TokenSweeper interface {
	ClearExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// CleanupManager periodically nulls expired verification and reset tokens
type CleanupManager struct {
	sweeper  TokenSweeper
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(sweeper TokenSweeper, logger *slog.Logger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		sweeper:  sweeper,
		logger:   logger,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task and blocks until Stop or ctx is done
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cleared, err := cm.sweeper.ClearExpiredTokens(cleanupCtx, cm.now())
	if err != nil {
		cm.logger.Error("failed to clear expired tokens", slog.Any("error", err))
		return
	}

	if cleared > 0 {
		cm.logger.Info("expired token cleanup completed", slog.Int64("accounts_cleared", cleared))
	}
}

// Stop signals the cleanup manager to stop. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}

// Package worker runs background jobs alongside the HTTP server.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/casetrack/casetrack/internal/service"
)

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}

// ExpiredTokenPurger removes refresh tokens past their expiry.
type ExpiredTokenPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// TokenSweeper periodically purges expired refresh tokens.
type TokenSweeper struct {
	repo     ExpiredTokenPurger
	interval time.Duration
	logger   *zap.Logger
}

// NewTokenSweeper builds a sweeper. A non-positive interval disables it.
func NewTokenSweeper(repo ExpiredTokenPurger, interval time.Duration, logger *zap.Logger) *TokenSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenSweeper{repo: repo, interval: interval, logger: logger.Named("token_sweeper")}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *TokenSweeper) Run(ctx context.Context) {
	if s.repo == nil || s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.Sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep runs a single purge and returns how many tokens were removed.
func (s *TokenSweeper) Sweep(ctx context.Context) int64 {
	n, err := s.repo.DeleteExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("purge expired refresh tokens", zap.Error(err))
		}
		return 0
	}
	if n > 0 {
		s.logger.Info("purged expired refresh tokens", zap.Int64("count", n))
	}
	return n
}

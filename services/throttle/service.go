package throttle

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/auth-control-plane/backend/config"
	"github.com/upb/auth-control-plane/backend/services"
)

// Scopes for the throttled credential endpoints.
const (
	ScopeLogin   = "login"
	ScopeRefresh = "refresh"
)

// Service enforces sliding-window request limits using PostgreSQL, so the
// limits hold across replicas without shared in-process state.
type Service struct {
	db     *sql.DB
	cfg    config.ThrottleConfig
	logger *zap.Logger
}

// NewService creates a new throttle Service instance
func NewService(db *sql.DB, cfg config.ThrottleConfig, logger *zap.Logger) *Service {
	return &Service{
		db:     db,
		cfg:    cfg,
		logger: logger,
	}
}

// Allow checks the per-minute and per-hour windows for the given scope and
// key, records the attempt when within limits, and returns a rate limit
// error on breach. The breached attempt itself is not recorded.
func (s *Service) Allow(ctx context.Context, scope, key string) error {
	if !s.cfg.Enabled {
		return nil
	}

	scopeKey := buildScopeKey(scope, key)
	now := time.Now().UTC()

	if s.cfg.PerMinute > 0 {
		count, err := s.countSince(ctx, scopeKey, now.Add(-time.Minute), now)
		if err != nil {
			return fmt.Errorf("failed to check minute window: %w", err)
		}
		if count >= s.cfg.PerMinute {
			s.logger.Warn("request throttled",
				zap.String("scope_key", scopeKey),
				zap.String("window", "minute"),
				zap.Int("limit", s.cfg.PerMinute))
			return services.ErrRequestsPerMinuteExceeded
		}
	}

	if s.cfg.PerHour > 0 {
		count, err := s.countSince(ctx, scopeKey, now.Add(-time.Hour), now)
		if err != nil {
			return fmt.Errorf("failed to check hour window: %w", err)
		}
		if count >= s.cfg.PerHour {
			s.logger.Warn("request throttled",
				zap.String("scope_key", scopeKey),
				zap.String("window", "hour"),
				zap.Int("limit", s.cfg.PerHour))
			return services.ErrRequestsPerHourExceeded
		}
	}

	if err := s.recordEvent(ctx, scopeKey, now); err != nil {
		return fmt.Errorf("failed to record throttle event: %w", err)
	}

	return nil
}

// countSince counts events for the scope key in the sliding window
func (s *Service) countSince(ctx context.Context, scopeKey string, windowStart, now time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM throttle_events
		WHERE scope_key = $1
		  AND timestamp >= $2
		  AND timestamp < $3
	`

	var count int
	if err := s.db.QueryRowContext(ctx, query, scopeKey, windowStart, now).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to query throttle events: %w", err)
	}

	return count, nil
}

// recordEvent records a throttle event
func (s *Service) recordEvent(ctx context.Context, scopeKey string, timestamp time.Time) error {
	query := `
		INSERT INTO throttle_events (scope_key, timestamp)
		VALUES ($1, $2)
	`

	if _, err := s.db.ExecContext(ctx, query, scopeKey, timestamp); err != nil {
		return fmt.Errorf("failed to insert throttle event: %w", err)
	}

	return nil
}

// CleanupOldEvents removes events older than the retention period to keep
// the table size manageable.
func (s *Service) CleanupOldEvents(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	result, err := s.db.ExecContext(ctx, `DELETE FROM throttle_events WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup throttle events: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Info("cleaned up old throttle events",
		zap.Int64("rows_deleted", deleted),
		zap.Time("cutoff", cutoff))

	return deleted, nil
}

// StartCleanupWorker starts a background worker that periodically prunes
// old events. It blocks until the context is cancelled.
func (s *Service) StartCleanupWorker(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("started throttle cleanup worker",
		zap.Duration("interval", interval),
		zap.Duration("retention", retention))

	for {
		select {
		case <-ticker.C:
			if _, err := s.CleanupOldEvents(ctx, retention); err != nil {
				s.logger.Error("failed to cleanup throttle events", zap.Error(err))
			}
		case <-ctx.Done():
			s.logger.Info("stopping throttle cleanup worker")
			return
		}
	}
}

// buildScopeKey builds a unique key for the throttle scope
func buildScopeKey(scope, key string) string {
	return fmt.Sprintf("%s:%s", scope, key)
}

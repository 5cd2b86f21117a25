package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/auth-control-plane/backend/models"
	"github.com/upb/auth-control-plane/backend/repositories"
)

// RequestMeta carries the request attribution stored with every audit entry.
type RequestMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
}

// Service persists audit events asynchronously. Events are queued on a
// buffered channel and written by a small worker pool, so the request path
// never waits on the audit store. When the queue is full events are dropped
// with a warning rather than blocking.
type Service struct {
	repo      repositories.AuditRepository
	logger    *zap.Logger
	events    chan *models.AuditLog
	workers   int
	queueSize int
	wg        sync.WaitGroup
	started   bool
	mu        sync.Mutex
}

// Config holds configuration for the audit Service
type Config struct {
	Workers   int
	QueueSize int
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Workers:   2,
		QueueSize: 256,
	}
}

// NewService creates a new audit Service instance
func NewService(repo repositories.AuditRepository, logger *zap.Logger, cfg Config) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}

	return &Service{
		repo:      repo,
		logger:    logger,
		events:    make(chan *models.AuditLog, cfg.QueueSize),
		workers:   cfg.Workers,
		queueSize: cfg.QueueSize,
	}
}

// Start launches the background workers
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("workers", s.workers),
		zap.Int("queue_size", s.queueSize))

	return nil
}

// Stop drains the queue and stops the workers, waiting up to timeout.
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("audit service not started")
	}
	s.started = false
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.events)))

	close(s.events)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// Record queues an audit entry without blocking. Entries recorded before
// Start or after Stop are dropped, as are entries that find the queue full.
func (s *Service) Record(entry *models.AuditLog) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	if !started {
		s.logger.Debug("audit service not running, dropping event",
			zap.String("action", string(entry.Action)))
		return
	}

	select {
	case s.events <- entry:
	default:
		s.logger.Warn("audit queue full, dropping event",
			zap.String("action", string(entry.Action)),
			zap.String("email", entry.Email))
	}
}

func (s *Service) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for entry := range s.events {
		if err := s.persist(entry); err != nil {
			s.logger.Error("failed to persist audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(entry.Action)))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

func (s *Service) persist(entry *models.AuditLog) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.repo.Insert(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// Stats reports queue state for the health endpoints.
type Stats struct {
	QueueSize     int
	PendingEvents int
	Workers       int
	Started       bool
}

// GetStats returns statistics about the audit service
func (s *Service) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		QueueSize:     s.queueSize,
		PendingEvents: len(s.events),
		Workers:       s.workers,
		Started:       s.started,
	}
}

// Convenience emitters for the auth flows.

// RegistrationSucceeded records a completed signup
func (s *Service) RegistrationSucceeded(user *models.User, meta RequestMeta) {
	s.Record(models.NewAuditLog(models.AuditActionUserRegistered, "success").
		WithUser(user.ID).
		WithEmail(user.Email).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent))
}

// LoginSucceeded records a successful credential login
func (s *Service) LoginSucceeded(user *models.User, meta RequestMeta) {
	s.Record(models.NewAuditLog(models.AuditActionLoginSucceeded, "success").
		WithUser(user.ID).
		WithEmail(user.Email).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent))
}

// LoginFailed records a rejected login. Only the attempted email is known.
func (s *Service) LoginFailed(email string, meta RequestMeta) {
	s.Record(models.NewAuditLog(models.AuditActionLoginFailed, "failure").
		WithEmail(email).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent))
}

// RefreshRotated records a successful refresh token rotation
func (s *Service) RefreshRotated(user *models.User, meta RequestMeta) {
	s.Record(models.NewAuditLog(models.AuditActionTokenRefreshed, "success").
		WithUser(user.ID).
		WithEmail(user.Email).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent))
}

// ReuseDetected records a refresh token reuse event with the rotation ID
// that was replayed.
func (s *Service) ReuseDetected(userID uuid.UUID, rotationID string, meta RequestMeta) {
	s.Record(models.NewAuditLog(models.AuditActionReuseDetected, "failure").
		WithUser(userID).
		WithDetails(map[string]string{"rotation_id": rotationID}).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent))
}

// LogoutCompleted records a logout
func (s *Service) LogoutCompleted(user *models.User, meta RequestMeta) {
	s.Record(models.NewAuditLog(models.AuditActionLogout, "success").
		WithUser(user.ID).
		WithEmail(user.Email).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent))
}

// AdminAction records a role-gated administrative operation
func (s *Service) AdminAction(actor *models.User, operation string, details interface{}, meta RequestMeta) {
	s.Record(models.NewAuditLog(models.AuditActionAdminAction, "success").
		WithUser(actor.ID).
		WithEmail(actor.Email).
		WithDetails(map[string]interface{}{"operation": operation, "args": details}).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent))
}

package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tachyonlabs/modelgate/models"
	"github.com/tachyonlabs/modelgate/repositories"
	"go.uber.org/zap"
)

// Sink receives structured events from the access layer. Implementations
// are fire-and-forget: Event must never block the caller on I/O and must
// never panic into caller code.
type Sink interface {
	Event(kind models.AuditKind, detail string)
}

// Config holds configuration for the audit Service
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  10000,
		WorkerCount: 5,
	}
}

// Service handles asynchronous audit logging. Events are queued on a
// buffered channel and drained by background workers; when a repository
// is configured they are persisted, otherwise they go to the logger only.
// The channel send is non-blocking: a full buffer drops the event with a
// warning rather than stalling a generation request.
type Service struct {
	repo        repositories.AuditRepository // nil: log-only mode
	logger      *zap.Logger
	eventChan   chan *models.AuditEvent
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	started     bool
	mu          sync.Mutex
}

// NewService creates a new audit Service. repo may be nil, in which case
// events are only written to the structured log.
func NewService(repo repositories.AuditRepository, logger *zap.Logger, config Config) *Service {
	return &Service{
		repo:        repo,
		logger:      logger,
		eventChan:   make(chan *models.AuditEvent, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
	}
}

// Start starts the background workers
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize),
		zap.Bool("persistence", s.repo != nil))

	return nil
}

// Stop gracefully stops the audit service, waiting for pending events
// to be processed up to the given timeout.
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("audit service not started")
	}
	s.started = false
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.eventChan)))

	close(s.eventChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// Event implements Sink. It records the event asynchronously and returns
// immediately; a stopped service or full buffer drops the event.
func (s *Service) Event(kind models.AuditKind, detail string) {
	s.logger.Info("audit event",
		zap.String("kind", string(kind)),
		zap.String("detail", detail))

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	event := models.NewAuditEvent(kind, detail)

	select {
	case s.eventChan <- event:
	default:
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("kind", string(kind)))
	}
}

// worker processes events from the channel
func (s *Service) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		if err := s.processEvent(event); err != nil {
			s.logger.Error("failed to process audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("kind", string(event.Kind)))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

// processEvent persists a single audit event
func (s *Service) processEvent(event *models.AuditEvent) error {
	if s.repo == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.repo.Insert(ctx, event); err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	return nil
}

// GetStats returns statistics about the audit service
func (s *Service) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started,
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Started       bool
}

// NopSink discards all events. Useful in tests.
type NopSink struct{}

// Event implements Sink
func (NopSink) Event(models.AuditKind, string) {}

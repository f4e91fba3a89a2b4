package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sanazindustrial/PROFGINE-sub004/internal/requestid"
	"github.com/sanazindustrial/PROFGINE-sub004/models"
	"github.com/sanazindustrial/PROFGINE-sub004/repositories"
	"github.com/sanazindustrial/PROFGINE-sub004/services/orchestrator"
	"go.uber.org/zap"
)

// ErrBufferFull is returned when the record buffer cannot accept more entries
var ErrBufferFull = errors.New("dispatch log buffer full")

// DispatchLogService persists dispatch outcomes asynchronously.
// It implements orchestrator.Recorder.
type DispatchLogService struct {
	repo        repositories.DispatchLogRepository
	logger      *zap.Logger
	records     chan *models.DispatchRecord
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	started     bool
	stopped     bool
	mu          sync.Mutex
}

// Config holds configuration for the DispatchLogService
type Config struct {
	BufferSize  int // Size of the record buffer channel
	WorkerCount int // Number of concurrent writers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1000,
		WorkerCount: 2,
	}
}

// NewDispatchLogService creates a new DispatchLogService instance
func NewDispatchLogService(repo repositories.DispatchLogRepository, logger *zap.Logger, config Config) *DispatchLogService {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}

	return &DispatchLogService{
		repo:        repo,
		logger:      logger,
		records:     make(chan *models.DispatchRecord, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
	}
}

// Start starts the background writers
func (s *DispatchLogService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("dispatch log service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started dispatch log service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop stops accepting records and waits for pending ones to be written
func (s *DispatchLogService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("dispatch log service not running")
	}
	s.stopped = true
	close(s.records)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("dispatch log service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("dispatch log service stop timeout after %v", timeout)
	}
}

// Enqueue queues a record without blocking
func (s *DispatchLogService) Enqueue(record *models.DispatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return fmt.Errorf("dispatch log service not running")
	}

	select {
	case s.records <- record:
		return nil
	default:
		s.logger.Warn("dispatch log buffer full, dropping record",
			zap.String("dispatch_id", record.DispatchID))
		return ErrBufferFull
	}
}

// RecordDispatch converts an orchestrator event into a record and queues it
func (s *DispatchLogService) RecordDispatch(ctx context.Context, event orchestrator.Event) {
	record := NewRecord(event).WithRequestID(requestid.FromContext(ctx))
	if err := s.Enqueue(record); err != nil {
		s.logger.Debug("dispatch record not queued", zap.Error(err))
	}
}

// NewRecord builds the stored form of an orchestrator event
func NewRecord(event orchestrator.Event) *models.DispatchRecord {
	mode := models.DispatchModeFallback
	if event.Directed {
		mode = models.DispatchModeDirected
	}

	record := models.NewDispatchRecord(event.DispatchID, mode, outcomeOf(event)).
		WithLatency(event.Latency)
	if event.Provider != "" {
		record.WithProvider(event.Provider)
	}
	if event.Skipped != nil {
		record.Skipped = append([]string(nil), event.Skipped...)
	}

	attempts := make([]attemptEntry, 0, len(event.Attempts))
	for _, a := range event.Attempts {
		attempts = append(attempts, attemptEntry{Provider: a.Provider, Error: a.Err.Error()})
	}
	if data, err := json.Marshal(attempts); err == nil {
		record.Attempts = data
	}

	return record
}

type attemptEntry struct {
	Provider string `json:"provider"`
	Error    string `json:"error"`
}

func outcomeOf(event orchestrator.Event) models.DispatchOutcome {
	switch {
	case event.Err == nil:
		return models.DispatchSucceeded
	case event.Directed:
		return models.DispatchDirectedErr
	case errors.Is(event.Err, orchestrator.ErrNoProviderAvailable):
		return models.DispatchNoProvider
	case errors.Is(event.Err, context.Canceled), errors.Is(event.Err, context.DeadlineExceeded):
		return models.DispatchCancelled
	default:
		return models.DispatchAllFailed
	}
}

// worker writes records from the channel
func (s *DispatchLogService) worker(id int) {
	defer s.wg.Done()

	for record := range s.records {
		if err := s.write(record); err != nil {
			s.logger.Error("failed to write dispatch record",
				zap.Int("worker_id", id),
				zap.String("dispatch_id", record.DispatchID),
				zap.Error(err))
		}
	}
}

func (s *DispatchLogService) write(record *models.DispatchRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.repo.Insert(ctx, record)
}

// GetStats returns statistics about the service
func (s *DispatchLogService) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:     s.bufferSize,
		PendingRecords: len(s.records),
		WorkerCount:    s.workerCount,
		Started:        s.started && !s.stopped,
	}
}

// Stats represents dispatch log service statistics
type Stats struct {
	BufferSize     int  `json:"buffer_size"`
	PendingRecords int  `json:"pending_records"`
	WorkerCount    int  `json:"worker_count"`
	Started        bool `json:"started"`
}

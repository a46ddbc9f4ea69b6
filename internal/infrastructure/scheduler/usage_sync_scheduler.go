package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// UsageSyncer pushes pending usage events to the platform. Implemented by the
// billing application service.
type UsageSyncer interface {
	SyncPending(ctx context.Context) (synced int, failed int, err error)
}

// UsageSyncSchedulerConfig holds settings for the usage sync scheduler
type UsageSyncSchedulerConfig struct {
	Interval   time.Duration
	RunTimeout time.Duration
}

// DefaultUsageSyncSchedulerConfig returns sensible defaults
func DefaultUsageSyncSchedulerConfig() UsageSyncSchedulerConfig {
	return UsageSyncSchedulerConfig{
		Interval:   5 * time.Minute,
		RunTimeout: 2 * time.Minute,
	}
}

// UsageSyncScheduler periodically drains the unsynced usage event backlog.
type UsageSyncScheduler struct {
	config UsageSyncSchedulerConfig
	syncer UsageSyncer
	logger *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewUsageSyncScheduler creates a new usage sync scheduler
func NewUsageSyncScheduler(config UsageSyncSchedulerConfig, syncer UsageSyncer, logger *zap.Logger) *UsageSyncScheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultUsageSyncSchedulerConfig().Interval
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = DefaultUsageSyncSchedulerConfig().RunTimeout
	}
	return &UsageSyncScheduler{
		config: config,
		syncer: syncer,
		logger: logger,
	}
}

// Start starts the background sync loop
func (s *UsageSyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("Usage sync scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("run_timeout", s.config.RunTimeout),
	)

	return nil
}

// Stop stops the sync loop, waiting for an in-flight run to finish
func (s *UsageSyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Usage sync scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *UsageSyncScheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Run immediately on start
	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *UsageSyncScheduler) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	defer cancel()

	start := time.Now()
	synced, failed, err := s.syncer.SyncPending(runCtx)
	if err != nil {
		s.logger.Error("Usage sync run failed",
			zap.Int("synced", synced),
			zap.Int("failed", failed),
			zap.Error(err),
		)
		return
	}
	if synced > 0 || failed > 0 {
		s.logger.Info("Usage sync run completed",
			zap.Int("synced", synced),
			zap.Int("failed", failed),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

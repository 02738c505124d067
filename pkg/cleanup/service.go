// Package cleanup enforces retention on the durable tier.
package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// Store is the pruning surface of the durable tier. Satisfied by
// *memory.DurableStore.
type Store interface {
	PruneTasks(ctx context.Context, cutoff time.Time) (int, error)
	PruneEntries(ctx context.Context, cutoff time.Time) (int, error)
}

// Service periodically enforces retention policies:
//   - Deletes terminal tasks past the task retention window
//   - Deletes task- and agent-scoped memory entries past the memory
//     retention window (global entries are kept)
//
// All operations are idempotent and safe to run from multiple replicas.
type Service struct {
	store           Store
	taskRetention   time.Duration
	memoryRetention time.Duration
	interval        time.Duration

	cancel context.CancelFunc
	done   chan struct{}
	logger *slog.Logger
}

// NewService creates a retention service over the durable store.
func NewService(store Store, taskRetention, memoryRetention, interval time.Duration) *Service {
	return &Service{
		store:           store,
		taskRetention:   taskRetention,
		memoryRetention: memoryRetention,
		interval:        interval,
		logger:          slog.Default().With("component", "cleanup"),
	}
}

// Start launches the background cleanup loop. A first pass runs
// immediately.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("cleanup service started",
		"task_retention", s.taskRetention,
		"memory_retention", s.memoryRetention,
		"interval", s.interval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce applies both retention policies a single time.
func (s *Service) RunOnce(ctx context.Context) {
	now := time.Now().UTC()

	if s.taskRetention > 0 {
		count, err := s.store.PruneTasks(ctx, now.Add(-s.taskRetention))
		if err != nil {
			s.logger.Error("retention: task prune failed", "error", err)
		} else if count > 0 {
			s.logger.Info("retention: pruned terminal tasks", "count", count)
		}
	}

	if s.memoryRetention > 0 {
		count, err := s.store.PruneEntries(ctx, now.Add(-s.memoryRetention))
		if err != nil {
			s.logger.Error("retention: memory prune failed", "error", err)
		} else if count > 0 {
			s.logger.Info("retention: pruned memory entries", "count", count)
		}
	}
}

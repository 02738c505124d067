// Package services contains business logic service layer implementations.
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/swarmos-ai/swarmos/pkg/memory"
	"github.com/swarmos-ai/swarmos/pkg/models"
)

const defaultListLimit = 20

// TaskCache is the in-memory view of tasks. Satisfied by
// *orchestrator.Orchestrator.
type TaskCache interface {
	Task(id string) (*models.Task, bool)
	Tasks() []*models.Task
	Cancel(id string) bool
	Delete(id string) bool
}

// TaskStore is the durable view of tasks. Satisfied by
// *memory.DurableStore.
type TaskStore interface {
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, filters models.TaskFilters) ([]*models.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// TaskService merges the in-memory and durable task views. The in-memory
// copy is fresher while a task is running, so it wins on id collisions.
type TaskService struct {
	cache TaskCache
	store TaskStore
}

// NewTaskService creates a new TaskService. store may be nil when the
// engine runs without a database.
func NewTaskService(cache TaskCache, store TaskStore) *TaskService {
	return &TaskService{cache: cache, store: store}
}

// GetTask returns one task, preferring the in-memory copy.
func (s *TaskService) GetTask(ctx context.Context, id string) (*models.Task, error) {
	if id == "" {
		return nil, NewValidationError("task_id", "required")
	}
	if task, ok := s.cache.Task(id); ok {
		return task, nil
	}
	if s.store == nil {
		return nil, ErrTaskNotFound
	}
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		if errors.Is(err, memory.ErrTaskNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	return task, nil
}

// ListTasks returns tasks newest first, filtered by status and paginated.
func (s *TaskService) ListTasks(ctx context.Context, filters models.TaskFilters) ([]*models.Task, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}

	merged := make(map[string]*models.Task)
	if s.store != nil {
		// Over-fetch so pagination stays correct after the merge drops
		// durable rows shadowed by fresher in-memory copies.
		stored, err := s.store.ListTasks(ctx, models.TaskFilters{
			Status: filters.Status,
			Limit:  offset + limit,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list stored tasks: %w", err)
		}
		for _, t := range stored {
			merged[t.ID] = t
		}
	}
	for _, t := range s.cache.Tasks() {
		if filters.Status != "" && string(t.Status) != filters.Status {
			delete(merged, t.ID)
			continue
		}
		merged[t.ID] = t
	}

	tasks := make([]*models.Task, 0, len(merged))
	for _, t := range merged {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})

	if offset >= len(tasks) {
		return []*models.Task{}, nil
	}
	tasks = tasks[offset:]
	if len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

// Subtasks returns a task's subtasks in plan order.
func (s *TaskService) Subtasks(ctx context.Context, id string) ([]*models.SubTask, error) {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	return task.Subtasks, nil
}

// Validation returns the supervisor's validation record for a task. The
// record is nil until the task reaches the validating stage.
func (s *TaskService) Validation(ctx context.Context, id string) (map[string]any, error) {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	return task.ValidationResults, nil
}

// Debate returns the task's debate state, nil when the task did not run
// the debate strategy.
func (s *TaskService) Debate(ctx context.Context, id string) (*models.DebateState, error) {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	return task.DebateState, nil
}

// CancelTask cancels a running task. Reports false for unknown or already
// terminal tasks.
func (s *TaskService) CancelTask(_ context.Context, id string) bool {
	return s.cache.Cancel(id)
}

// DeleteTask removes a task from both views, cancelling it first when
// still running.
func (s *TaskService) DeleteTask(ctx context.Context, id string) error {
	if id == "" {
		return NewValidationError("task_id", "required")
	}
	cached := s.cache.Delete(id)

	if s.store != nil {
		err := s.store.DeleteTask(ctx, id)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, memory.ErrTaskNotFound):
			// Fall through to the cache verdict.
		default:
			return fmt.Errorf("failed to delete stored task: %w", err)
		}
	}

	if !cached {
		return ErrTaskNotFound
	}
	return nil
}

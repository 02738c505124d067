package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/swarmos-ai/swarmos/pkg/models"
)

// ErrTaskNotFound is returned when a task id has no durable record.
var ErrTaskNotFound = errors.New("task not found")

// DurableStore is the authoritative tier: tasks, subtasks, and memory
// entries in PostgreSQL. All writes are idempotent on id.
type DurableStore struct {
	pool *pgxpool.Pool
}

// NewDurableStore wraps an existing connection pool.
func NewDurableStore(pool *pgxpool.Pool) *DurableStore {
	return &DurableStore{pool: pool}
}

// SaveTask upserts the task row and replaces its subtasks in one
// transaction.
func (s *DurableStore) SaveTask(ctx context.Context, task *models.Task) error {
	contextJSON, err := marshalJSONB(task.Context)
	if err != nil {
		return fmt.Errorf("failed to encode task context: %w", err)
	}
	resultJSON, err := marshalJSONB(task.Result)
	if err != nil {
		return fmt.Errorf("failed to encode task result: %w", err)
	}
	debateJSON, err := marshalJSONB(task.DebateState)
	if err != nil {
		return fmt.Errorf("failed to encode debate state: %w", err)
	}
	validationJSON, err := marshalJSONB(task.ValidationResults)
	if err != nil {
		return fmt.Errorf("failed to encode validation results: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO tasks (id, description, status, provider, context, result, error,
			created_at, updated_at, completed_at, tokens_used, agents_count, progress,
			debate_state, validation_results)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			provider = EXCLUDED.provider,
			context = EXCLUDED.context,
			result = EXCLUDED.result,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at,
			tokens_used = EXCLUDED.tokens_used,
			agents_count = EXCLUDED.agents_count,
			progress = EXCLUDED.progress,
			debate_state = EXCLUDED.debate_state,
			validation_results = EXCLUDED.validation_results`,
		task.ID, task.Description, string(task.Status), task.Provider, contextJSON, resultJSON,
		task.Error, task.CreatedAt, task.UpdatedAt, task.CompletedAt, task.TokensUsed,
		task.AgentsCount, task.Progress, debateJSON, validationJSON)
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM subtasks WHERE parent_task_id = $1`, task.ID); err != nil {
		return fmt.Errorf("failed to clear subtasks: %w", err)
	}
	for i, st := range task.Subtasks {
		_, err := tx.Exec(ctx, `
			INSERT INTO subtasks (id, parent_task_id, description, agent_id, agent_type,
				status, result, error, rework_count, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			st.ID, task.ID, st.Description, st.AgentID, st.AgentType,
			string(st.Status), st.Result, st.Error, st.ReworkCount, i)
		if err != nil {
			return fmt.Errorf("failed to insert subtask %s: %w", st.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit task save: %w", err)
	}
	return nil
}

// GetTask loads one task with its subtasks.
func (s *DurableStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, description, status, provider, context, result, error,
			created_at, updated_at, completed_at, tokens_used, agents_count, progress,
			debate_state, validation_results
		FROM tasks WHERE id = $1`, id)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to load task: %w", err)
	}

	subtasks, err := s.ListSubtasks(ctx, id)
	if err != nil {
		return nil, err
	}
	task.Subtasks = subtasks
	return task, nil
}

// ListTasks returns task summaries (without subtasks), newest first.
func (s *DurableStore) ListTasks(ctx context.Context, filters models.TaskFilters) ([]*models.Task, error) {
	query := `
		SELECT id, description, status, provider, context, result, error,
			created_at, updated_at, completed_at, tokens_used, agents_count, progress,
			debate_state, validation_results
		FROM tasks`
	args := []any{}
	if filters.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, filters.Status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	limit := filters.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, filters.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// DeleteTask removes the task; subtasks go with it via FK cascade.
func (s *DurableStore) DeleteTask(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// PruneTasks deletes terminal tasks last updated before the cutoff.
// Subtasks cascade. Returns the number of tasks removed.
func (s *DurableStore) PruneTasks(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM tasks
		WHERE status IN ('completed', 'failed', 'cancelled') AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune tasks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// PruneEntries deletes memory entries created before the cutoff. Global
// entries are kept: they carry cross-task knowledge.
func (s *DurableStore) PruneEntries(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM memory_entries WHERE scope <> 'global' AND created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune memory entries: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ListSubtasks returns a task's subtasks in plan order.
func (s *DurableStore) ListSubtasks(ctx context.Context, taskID string) ([]*models.SubTask, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, parent_task_id, description, agent_id, agent_type, status, result, error, rework_count
		FROM subtasks WHERE parent_task_id = $1 ORDER BY position`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subtasks: %w", err)
	}
	defer rows.Close()

	var subtasks []*models.SubTask
	for rows.Next() {
		st := &models.SubTask{}
		var status string
		if err := rows.Scan(&st.ID, &st.ParentTaskID, &st.Description, &st.AgentID,
			&st.AgentType, &status, &st.Result, &st.Error, &st.ReworkCount); err != nil {
			return nil, fmt.Errorf("failed to scan subtask: %w", err)
		}
		st.Status = models.SubTaskStatus(status)
		subtasks = append(subtasks, st)
	}
	return subtasks, rows.Err()
}

// SaveEntry upserts one memory entry.
func (s *DurableStore) SaveEntry(ctx context.Context, entry *models.MemoryEntry) error {
	metaJSON, err := marshalJSONB(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode entry metadata: %w", err)
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO memory_entries (id, scope, namespace, content, entry_metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			scope = EXCLUDED.scope,
			namespace = EXCLUDED.namespace,
			content = EXCLUDED.content,
			entry_metadata = EXCLUDED.entry_metadata`,
		entry.ID, string(entry.Scope), entry.Namespace, entry.Content, metaJSON, createdAt)
	if err != nil {
		return fmt.Errorf("failed to save memory entry: %w", err)
	}
	return nil
}

// QueryEntries returns the newest entries in a namespace, optionally
// restricted to one scope. scope == "" matches all scopes.
func (s *DurableStore) QueryEntries(ctx context.Context, namespace string, scope models.MemoryScope, limit int) ([]*models.MemoryEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT id, scope, namespace, content, entry_metadata, created_at
		FROM memory_entries WHERE namespace = $1`
	args := []any{namespace}
	if scope != "" {
		query += ` AND scope = $2`
		args = append(args, string(scope))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memory entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.MemoryEntry
	for rows.Next() {
		e := &models.MemoryEntry{}
		var scopeStr string
		var metaJSON []byte
		if err := rows.Scan(&e.ID, &scopeStr, &e.Namespace, &e.Content, &metaJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan memory entry: %w", err)
		}
		e.Scope = models.MemoryScope(scopeStr)
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode entry metadata: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// scanTask reads one tasks row into a model.
func scanTask(row pgx.Row) (*models.Task, error) {
	task := &models.Task{}
	var status string
	var contextJSON, resultJSON, debateJSON, validationJSON []byte

	err := row.Scan(&task.ID, &task.Description, &status, &task.Provider, &contextJSON,
		&resultJSON, &task.Error, &task.CreatedAt, &task.UpdatedAt, &task.CompletedAt,
		&task.TokensUsed, &task.AgentsCount, &task.Progress, &debateJSON, &validationJSON)
	if err != nil {
		return nil, err
	}

	task.Status = models.TaskStatus(status)
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &task.Context); err != nil {
			return nil, fmt.Errorf("failed to decode task context: %w", err)
		}
	}
	if len(resultJSON) > 0 {
		if err := json.Unmarshal(resultJSON, &task.Result); err != nil {
			return nil, fmt.Errorf("failed to decode task result: %w", err)
		}
	}
	if len(debateJSON) > 0 {
		if err := json.Unmarshal(debateJSON, &task.DebateState); err != nil {
			return nil, fmt.Errorf("failed to decode debate state: %w", err)
		}
	}
	if len(validationJSON) > 0 {
		if err := json.Unmarshal(validationJSON, &task.ValidationResults); err != nil {
			return nil, fmt.Errorf("failed to decode validation results: %w", err)
		}
	}
	return task, nil
}

// marshalJSONB encodes v for a jsonb column, mapping nil to SQL NULL.
func marshalJSONB(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		if val == nil {
			return nil, nil
		}
	case *models.DebateState:
		if val == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

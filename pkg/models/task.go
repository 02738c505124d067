// Package models defines the shared data types flowing between the
// delegator, orchestrator, agents, and the HTTP API.
package models

import "time"

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusValidating TaskStatus = "validating"
	TaskStatusDebating   TaskStatus = "debating"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// IsValid checks if the task status is valid
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusValidating,
		TaskStatusDebating, TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status is one of the terminal states.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// SubTaskStatus is the lifecycle state of a subtask.
type SubTaskStatus string

const (
	SubTaskStatusPending    SubTaskStatus = "pending"
	SubTaskStatusInProgress SubTaskStatus = "in_progress"
	SubTaskStatusCompleted  SubTaskStatus = "completed"
	SubTaskStatusFailed     SubTaskStatus = "failed"
)

// IsValid checks if the subtask status is valid
func (s SubTaskStatus) IsValid() bool {
	switch s {
	case SubTaskStatusPending, SubTaskStatusInProgress, SubTaskStatusCompleted, SubTaskStatusFailed:
		return true
	default:
		return false
	}
}

// Task is the unit of work submitted through the API and driven through
// the orchestration pipeline.
type Task struct {
	ID                string            `json:"id"`
	Description       string            `json:"description"`
	Status            TaskStatus        `json:"status"`
	Provider          string            `json:"provider"`
	Context           map[string]any    `json:"context,omitempty"`
	Result            map[string]any    `json:"result,omitempty"`
	Error             string            `json:"error,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
	TokensUsed        int               `json:"tokens_used"`
	AgentsCount       int               `json:"agents_count"`
	Progress          float64           `json:"progress"`
	DebateState       *DebateState      `json:"debate_state,omitempty"`
	Subtasks          []*SubTask        `json:"subtasks,omitempty"`
	ValidationResults map[string]any    `json:"validation_results,omitempty"`
}

// SubTask is one agent's unit of work under a task.
type SubTask struct {
	ID           string        `json:"id"`
	ParentTaskID string        `json:"parent_task_id"`
	Description  string        `json:"description"`
	AgentID      string        `json:"agent_id"`
	AgentType    string        `json:"agent_type"`
	Status       SubTaskStatus `json:"status"`
	Result       string        `json:"result,omitempty"`
	Error        string        `json:"error,omitempty"`
	ReworkCount  int           `json:"rework_count"`
}

// TaskFilters contains filtering options for listing tasks
type TaskFilters struct {
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// TaskListResponse contains a paginated task list
type TaskListResponse struct {
	Tasks      []*Task `json:"tasks"`
	TotalCount int     `json:"total_count"`
	Limit      int     `json:"limit"`
	Offset     int     `json:"offset"`
}

package models

import (
	"strings"
	"time"
)

// MemoryScope partitions memory entries by visibility.
type MemoryScope string

const (
	ScopeGlobal MemoryScope = "global"
	ScopeTask   MemoryScope = "task"
	ScopeAgent  MemoryScope = "agent"
)

// IsValid checks if the memory scope is valid
func (s MemoryScope) IsValid() bool {
	return s == ScopeGlobal || s == ScopeTask || s == ScopeAgent
}

// MemoryEntry is one record in the federated memory store. TTL-bound
// entries live in the ephemeral tier, entries carrying an embedding are
// indexed in the vector tier, and everything lands in the durable tier.
type MemoryEntry struct {
	ID         string         `json:"id"`
	Scope      MemoryScope    `json:"scope"`
	Namespace  string         `json:"namespace"`
	Content    string         `json:"content"`
	Embedding  []float32      `json:"embedding,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	TTLSeconds int            `json:"ttl_seconds,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// TaskID returns the owning task id, from metadata or a task-scoped
// namespace. Empty when the entry is not task-bound.
func (e *MemoryEntry) TaskID() string {
	if e.Metadata != nil {
		if id, ok := e.Metadata["task_id"].(string); ok && id != "" {
			return id
		}
	}
	if rest, ok := strings.CutPrefix(e.Namespace, "task:"); ok {
		if id, _, _ := strings.Cut(rest, ":"); id != "" {
			return id
		}
	}
	return ""
}

// ValidationIssue is one problem found by the quality validator.
type ValidationIssue struct {
	Kind     string `json:"kind"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// ValidationResult is the quality validator's verdict on one content blob.
type ValidationResult struct {
	Passed bool               `json:"passed"`
	Score  int                `json:"score"`
	Issues []*ValidationIssue `json:"issues,omitempty"`
}

package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/swarmos-ai/swarmos/pkg/models"
)

// Per-scope retrieval caps for Read: agent 3, task 5, global 3.
const (
	readAgentLimit  = 3
	readTaskLimit   = 5
	readGlobalLimit = 3
)

// StreamName returns the ephemeral stream carrying a task's live updates.
func StreamName(taskID string) string {
	return "memory:stream:" + taskID
}

// EntryStore is the durable tier's memory-entry surface.
type EntryStore interface {
	SaveEntry(ctx context.Context, entry *models.MemoryEntry) error
	QueryEntries(ctx context.Context, namespace string, scope models.MemoryScope, limit int) ([]*models.MemoryEntry, error)
}

// VectorTier is the semantic tier's surface.
type VectorTier interface {
	Upsert(ctx context.Context, collection, id string, vector []float32, payload map[string]any) error
	Search(ctx context.Context, collection string, query []float32, k int, filter map[string]string) ([]SearchResult, error)
}

// Manager federates the three tiers. Writes fan out to every applicable
// tier; reads union the scopes and compress to the provider's window.
// Each tier failure is isolated: a write succeeds if the durable tier
// succeeds, and a missing vector tier never blocks anything.
type Manager struct {
	ephemeral *EphemeralStore
	vector    VectorTier
	durable   EntryStore
	logger    *slog.Logger
}

// NewManager builds the facade. vector and durable may be nil.
func NewManager(ephemeral *EphemeralStore, vector VectorTier, durable EntryStore) *Manager {
	return &Manager{
		ephemeral: ephemeral,
		vector:    vector,
		durable:   durable,
		logger:    slog.Default().With("component", "memory_manager"),
	}
}

// Ephemeral exposes the ephemeral tier for stream subscription.
func (m *Manager) Ephemeral() *EphemeralStore { return m.ephemeral }

// Write stores an entry in every tier that applies and publishes a write
// event on the owning task's stream. The write succeeds when the durable
// tier succeeds; the other tiers are best-effort.
func (m *Manager) Write(ctx context.Context, entry *models.MemoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if entry.TTLSeconds > 0 {
		m.ephemeral.Set(entry.Namespace+":"+entry.ID, entry, time.Duration(entry.TTLSeconds)*time.Second)
	}

	if len(entry.Embedding) > 0 && m.vector != nil {
		payload := map[string]any{"content": entry.Content, "namespace": entry.Namespace}
		if err := m.vector.Upsert(ctx, string(entry.Scope), entry.ID, entry.Embedding, payload); err != nil {
			m.logger.Warn("vector tier write failed", "entry_id", entry.ID, "error", err)
		}
	}

	var writeErr error
	if m.durable != nil {
		if err := m.durable.SaveEntry(ctx, entry); err != nil {
			m.logger.Error("durable tier write failed", "entry_id", entry.ID, "error", err)
			writeErr = fmt.Errorf("memory write failed: %w", err)
		}
	}

	if taskID := entry.TaskID(); taskID != "" {
		m.ephemeral.Publish(StreamName(taskID), map[string]any{
			"action":    "write",
			"entry_id":  entry.ID,
			"namespace": entry.Namespace,
			"scope":     string(entry.Scope),
		})
	}

	return writeErr
}

// Read unions the agent, task, and global scopes, deduplicates, and
// compresses the result to the target provider's context window. With a
// query embedding it searches the vector tier; otherwise it falls back to
// recency from the ephemeral and durable tiers.
func (m *Manager) Read(ctx context.Context, taskID, agentID string, queryEmbedding []float32, provider string, limit int) (*Context, error) {
	type scopeQuery struct {
		scope     models.MemoryScope
		namespace string
		n         int
	}
	queries := []scopeQuery{
		{models.ScopeAgent, "agent:" + agentID, readAgentLimit},
		{models.ScopeTask, "task:" + taskID, readTaskLimit},
		{models.ScopeGlobal, "global", readGlobalLimit},
	}

	seen := make(map[string]bool)
	var memories []string
	add := func(id, content string) {
		if content == "" {
			return
		}
		ck := dedupeKey(content)
		if (id != "" && seen[id]) || seen[ck] {
			return
		}
		if id != "" {
			seen[id] = true
		}
		seen[ck] = true
		memories = append(memories, content)
	}

	for _, q := range queries {
		if len(queryEmbedding) > 0 && m.vector != nil {
			hits, err := m.vector.Search(ctx, string(q.scope), queryEmbedding, q.n, map[string]string{"namespace": q.namespace})
			if err != nil {
				m.logger.Warn("vector tier read failed", "scope", q.scope, "error", err)
			}
			for _, h := range hits {
				add(h.ID, h.Content)
			}
			continue
		}

		for _, v := range m.ephemeral.Recent(q.namespace, q.n) {
			if e, ok := v.(*models.MemoryEntry); ok {
				add(e.ID, e.Content)
			}
		}
		if m.durable == nil {
			continue
		}
		entries, err := m.durable.QueryEntries(ctx, q.namespace, q.scope, q.n)
		if err != nil {
			m.logger.Warn("durable tier read failed", "scope", q.scope, "error", err)
			continue
		}
		for _, e := range entries {
			add(e.ID, e.Content)
		}
	}

	if limit > 0 && len(memories) > limit {
		memories = memories[:limit]
	}

	return Compress(&Context{Memories: memories}, provider), nil
}

// Entries returns the newest durable entries in a namespace, for the
// agent and task detail views.
func (m *Manager) Entries(ctx context.Context, namespace string, scope models.MemoryScope, limit int) ([]*models.MemoryEntry, error) {
	if m.durable == nil {
		return nil, nil
	}
	return m.durable.QueryEntries(ctx, namespace, scope, limit)
}

// dedupeKey identifies an entry without an id by its first 100 chars.
func dedupeKey(content string) string {
	if len(content) > 100 {
		return content[:100]
	}
	return content
}

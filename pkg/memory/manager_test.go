package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmos-ai/swarmos/pkg/models"
)

type fakeEntryStore struct {
	mu      sync.Mutex
	saved   []*models.MemoryEntry
	saveErr error
	entries map[string][]*models.MemoryEntry // namespace → entries
}

func (f *fakeEntryStore) SaveEntry(_ context.Context, e *models.MemoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, e)
	return nil
}

func (f *fakeEntryStore) QueryEntries(_ context.Context, namespace string, _ models.MemoryScope, limit int) ([]*models.MemoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.entries[namespace]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeVector struct {
	mu       sync.Mutex
	upserts  []string
	upsertErr error
	hits     map[string][]SearchResult // collection → hits
}

func (f *fakeVector) Upsert(_ context.Context, collection, id string, _ []float32, _ map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, collection+"/"+id)
	return nil
}

func (f *fakeVector) Search(_ context.Context, collection string, _ []float32, k int, _ map[string]string) ([]SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hits := f.hits[collection]
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func newTestManager(t *testing.T, durable *fakeEntryStore, vector VectorTier) *Manager {
	t.Helper()
	eph := NewEphemeralStore()
	t.Cleanup(eph.Close)
	if durable.entries == nil {
		durable.entries = make(map[string][]*models.MemoryEntry)
	}
	return NewManager(eph, vector, durable)
}

func TestManager_WriteFansOut(t *testing.T) {
	durable := &fakeEntryStore{}
	vector := &fakeVector{}
	m := newTestManager(t, durable, vector)

	ch, cancel := m.Ephemeral().Subscribe(StreamName("t1"))
	defer cancel()

	entry := &models.MemoryEntry{
		Scope:      models.ScopeTask,
		Namespace:  "task:t1",
		Content:    "agent output",
		Embedding:  []float32{0.1, 0.2},
		TTLSeconds: 60,
	}
	require.NoError(t, m.Write(context.Background(), entry))

	assert.NotEmpty(t, entry.ID, "id assigned on write")
	require.Len(t, durable.saved, 1)
	assert.Equal(t, []string{"task/" + entry.ID}, vector.upserts)

	// TTL entry landed in the ephemeral tier.
	_, ok := m.Ephemeral().Get("task:t1:" + entry.ID)
	assert.True(t, ok)

	// Stream event announces the write.
	select {
	case ev := <-ch:
		assert.Equal(t, "write", ev["action"])
		assert.Equal(t, entry.ID, ev["entry_id"])
	case <-time.After(time.Second):
		t.Fatal("expected a write event on the task stream")
	}
}

func TestManager_DurableFailureReportsButPublishes(t *testing.T) {
	durable := &fakeEntryStore{saveErr: errors.New("db down")}
	m := newTestManager(t, durable, nil)

	ch, cancel := m.Ephemeral().Subscribe(StreamName("t1"))
	defer cancel()

	err := m.Write(context.Background(), &models.MemoryEntry{
		Scope: models.ScopeTask, Namespace: "task:t1", Content: "x",
	})
	assert.ErrorContains(t, err, "memory write failed")

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("write event expected even when the durable tier fails")
	}
}

func TestManager_VectorFailureIsTolerated(t *testing.T) {
	durable := &fakeEntryStore{}
	vector := &fakeVector{upsertErr: errors.New("index corrupt")}
	m := newTestManager(t, durable, vector)

	err := m.Write(context.Background(), &models.MemoryEntry{
		Scope: models.ScopeGlobal, Namespace: "global", Content: "x", Embedding: []float32{1},
	})
	assert.NoError(t, err, "vector tier is best-effort")
	assert.Len(t, durable.saved, 1)
}

func TestManager_ReadUnionsScopesAndDedupes(t *testing.T) {
	durable := &fakeEntryStore{entries: map[string][]*models.MemoryEntry{
		"agent:a1": {
			{ID: "e1", Content: "agent fact"},
			{ID: "e2", Content: "shared fact"},
		},
		"task:t1": {
			{ID: "e2", Content: "shared fact"}, // duplicate by id
			{ID: "e3", Content: "task fact"},
		},
		"global": {
			{ID: "", Content: "agent fact"}, // duplicate by content
			{ID: "e4", Content: "global fact"},
		},
	}}
	m := newTestManager(t, durable, nil)

	ctx, err := m.Read(context.Background(), "t1", "a1", nil, "anthropic", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"agent fact", "shared fact", "task fact", "global fact"}, ctx.Memories)
}

func TestManager_ReadUsesVectorTierWithEmbedding(t *testing.T) {
	durable := &fakeEntryStore{}
	vector := &fakeVector{hits: map[string][]SearchResult{
		"agent": {{ID: "v1", Content: "semantic agent hit"}},
		"task":  {{ID: "v2", Content: "semantic task hit"}},
	}}
	m := newTestManager(t, durable, vector)

	ctx, err := m.Read(context.Background(), "t1", "a1", []float32{0.5}, "google", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"semantic agent hit", "semantic task hit"}, ctx.Memories)
}

func TestManager_ReadRespectsLimit(t *testing.T) {
	durable := &fakeEntryStore{entries: map[string][]*models.MemoryEntry{
		"task:t1": {
			{ID: "e1", Content: "one"},
			{ID: "e2", Content: "two"},
			{ID: "e3", Content: "three"},
		},
	}}
	m := newTestManager(t, durable, nil)

	ctx, err := m.Read(context.Background(), "t1", "a1", nil, "auto", 2)
	require.NoError(t, err)
	assert.Len(t, ctx.Memories, 2)
}

func TestMemoryEntry_TaskID(t *testing.T) {
	e := &models.MemoryEntry{Namespace: "task:abc:notes"}
	assert.Equal(t, "abc", e.TaskID())

	e = &models.MemoryEntry{Namespace: "global", Metadata: map[string]any{"task_id": "xyz"}}
	assert.Equal(t, "xyz", e.TaskID())

	e = &models.MemoryEntry{Namespace: "agent:a1"}
	assert.Empty(t, e.TaskID())
}

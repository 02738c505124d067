package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEphemeral_SetGet(t *testing.T) {
	s := NewEphemeralStore()
	defer s.Close()

	s.Set("task:1:note", "hello", 0)
	v, ok := s.Get("task:1:note")
	require.True(t, ok)
	assert.Equal(t, "hello", v)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestEphemeral_TTLExpiry(t *testing.T) {
	s := NewEphemeralStore()
	defer s.Close()

	s.Set("short", "gone soon", 10*time.Millisecond)
	_, ok := s.Get("short")
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)
	_, ok = s.Get("short")
	assert.False(t, ok, "expired entries must not be readable even before the janitor runs")
}

func TestEphemeral_RecentByNamespace(t *testing.T) {
	s := NewEphemeralStore()
	defer s.Close()

	s.Set("task:a:1", "one", 0)
	s.Set("task:b:1", "other", 0)
	s.Set("task:a:2", "two", 0)
	s.Set("task:a:3", "three", 0)

	got := s.Recent("task:a", 2)
	assert.Equal(t, []any{"two", "three"}, got, "cap keeps the most recent, returned oldest first")

	all := s.Recent("task:a", 10)
	assert.Equal(t, []any{"one", "two", "three"}, all)
}

func TestEphemeral_PublishSubscribe(t *testing.T) {
	s := NewEphemeralStore()
	defer s.Close()

	ch, cancel := s.Subscribe("memory:stream:t1")
	defer cancel()

	s.Publish("memory:stream:t1", map[string]any{"action": "write", "entry_id": "e1"})
	s.Publish("memory:stream:other", map[string]any{"action": "write", "entry_id": "e2"})

	select {
	case ev := <-ch:
		assert.Equal(t, "e1", ev["entry_id"])
	case <-time.After(time.Second):
		t.Fatal("expected event on subscribed stream")
	}

	select {
	case ev := <-ch:
		t.Fatalf("unexpected cross-stream event: %v", ev)
	default:
	}
}

func TestEphemeral_CancelClosesChannel(t *testing.T) {
	s := NewEphemeralStore()
	defer s.Close()

	ch, cancel := s.Subscribe("stream")
	cancel()
	cancel() // idempotent

	_, open := <-ch
	assert.False(t, open)

	// Publishing to a stream with no subscribers is a no-op.
	s.Publish("stream", map[string]any{"action": "write"})
}

func TestEphemeral_SlowSubscriberDropsNotBlocks(t *testing.T) {
	s := NewEphemeralStore()
	defer s.Close()

	ch, cancel := s.Subscribe("busy")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < streamBuffer+10; i++ {
			s.Publish("busy", map[string]any{"i": i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber buffer")
	}
	assert.Len(t, ch, streamBuffer)
}

func TestEphemeral_CloseTerminatesSubscribers(t *testing.T) {
	s := NewEphemeralStore()
	ch, _ := s.Subscribe("stream")

	s.Close()
	_, open := <-ch
	assert.False(t, open)

	s.Close() // idempotent
}

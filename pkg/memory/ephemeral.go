// Package memory federates three storage tiers — ephemeral TTL key/value
// with streams, embedded vector search, and a durable PostgreSQL record —
// behind a single manager with context compression on read.
package memory

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// streamBuffer is the per-subscriber channel capacity. Slow subscribers
// drop events rather than blocking publishers.
const streamBuffer = 64

type ephemeralItem struct {
	key       string
	value     any
	expiresAt time.Time // zero means no expiry
}

// EphemeralStore is the in-process tier: TTL-bound key/value state plus
// named streams with fan-out subscribers. All operations are safe for
// concurrent use.
type EphemeralStore struct {
	mu      sync.RWMutex
	items   map[string]*ephemeralItem
	order   []string // insertion order, for Recent
	streams map[string]map[int]chan map[string]any
	nextSub int
	closed  bool

	stop chan struct{}
	wg   sync.WaitGroup

	logger *slog.Logger
}

// NewEphemeralStore creates the store and starts its TTL janitor.
func NewEphemeralStore() *EphemeralStore {
	s := &EphemeralStore{
		items:   make(map[string]*ephemeralItem),
		streams: make(map[string]map[int]chan map[string]any),
		stop:    make(chan struct{}),
		logger:  slog.Default().With("component", "ephemeral_store"),
	}
	s.wg.Add(1)
	go s.janitor()
	return s
}

// Set stores a value under key. ttl <= 0 means no expiry.
func (s *EphemeralStore) Set(key string, value any, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := &ephemeralItem{key: key, value: value}
	if ttl > 0 {
		item.expiresAt = time.Now().Add(ttl)
	}
	if _, exists := s.items[key]; !exists {
		s.order = append(s.order, key)
	}
	s.items[key] = item
}

// Get returns the live value for key.
func (s *EphemeralStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[key]
	if !ok || item.expired(time.Now()) {
		return nil, false
	}
	return item.value, true
}

// Recent returns up to n live values whose key starts with namespace,
// oldest first.
func (s *EphemeralStore) Recent(namespace string, n int) []any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	matched := make([]any, 0, n)
	// Walk newest-first so the cap keeps the most recent entries.
	for i := len(s.order) - 1; i >= 0 && len(matched) < n; i-- {
		item, ok := s.items[s.order[i]]
		if !ok || item.expired(now) {
			continue
		}
		if strings.HasPrefix(item.key, namespace) {
			matched = append(matched, item.value)
		}
	}
	// Restore oldest-first order.
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	return matched
}

// Publish sends an event to every subscriber of stream. Subscribers whose
// buffers are full miss the event; publishers never block.
func (s *EphemeralStore) Publish(stream string, event map[string]any) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.streams[stream] {
		select {
		case ch <- event:
		default:
			s.logger.Warn("dropping stream event for slow subscriber", "stream", stream)
		}
	}
}

// Subscribe registers a new subscriber on stream. The returned cancel func
// removes the subscription and closes the channel; it is safe to call more
// than once.
func (s *EphemeralStore) Subscribe(stream string) (<-chan map[string]any, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan map[string]any, streamBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	if s.streams[stream] == nil {
		s.streams[stream] = make(map[int]chan map[string]any)
	}
	id := s.nextSub
	s.nextSub++
	s.streams[stream][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if subs, ok := s.streams[stream]; ok {
				if _, live := subs[id]; live {
					delete(subs, id)
					close(ch)
				}
				if len(subs) == 0 {
					delete(s.streams, stream)
				}
			}
		})
	}
	return ch, cancel
}

// Close stops the janitor and closes every subscriber channel.
func (s *EphemeralStore) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for stream, subs := range s.streams {
		for _, ch := range subs {
			close(ch)
		}
		delete(s.streams, stream)
	}
	s.mu.Unlock()

	close(s.stop)
	s.wg.Wait()
}

func (s *EphemeralStore) janitor() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.purge(now)
		}
	}
}

func (s *EphemeralStore) purge(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.order[:0]
	for _, key := range s.order {
		item, ok := s.items[key]
		if !ok {
			continue
		}
		if item.expired(now) {
			delete(s.items, key)
			continue
		}
		live = append(live, key)
	}
	s.order = live
}

func (it *ephemeralItem) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && now.After(it.expiresAt)
}

package repo

import (
	"context"
	"sync"
	"time"

	"github.com/Chative-reservations/server/internal/agent/model"
	errx "github.com/Chative-reservations/server/internal/core/error"
)

// MemoryStateStore keeps states in process. Expiry is lazy: an idle entry is dropped
// when it is next read, or by Sweep.
type MemoryStateStore struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
	ttl   time.Duration
	now   func() time.Time
}

type memoryEntry struct {
	state   *model.ConversationState
	savedAt time.Time
}

func NewMemoryStateStore(ttl time.Duration) *MemoryStateStore {
	return &MemoryStateStore{
		items: make(map[string]memoryEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

// WithClock replaces the time source; used by tests.
func (m *MemoryStateStore) WithClock(now func() time.Time) *MemoryStateStore {
	m.now = now
	return m
}

func (m *MemoryStateStore) expired(e memoryEntry, now time.Time) bool {
	return m.ttl > 0 && now.Sub(e.savedAt) > m.ttl
}

func (m *MemoryStateStore) Get(_ context.Context, id string) (*model.ConversationState, error) {
	m.mu.RLock()
	e, ok := m.items[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if m.expired(e, m.now()) {
		m.mu.Lock()
		if cur, ok := m.items[id]; ok && cur.state == e.state {
			delete(m.items, id)
		}
		m.mu.Unlock()
		return nil, nil
	}
	return e.state.Clone(), nil
}

func (m *MemoryStateStore) Save(_ context.Context, st *model.ConversationState) error {
	if st == nil || st.ID == "" {
		return errx.InvalidInput("conversation state without id")
	}
	e := memoryEntry{state: st.Clone(), savedAt: m.now()}
	m.mu.Lock()
	m.items[st.ID] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryStateStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.items, id)
	m.mu.Unlock()
	return nil
}

// Sweep removes every expired entry and returns how many were dropped.
func (m *MemoryStateStore) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.items {
		if m.expired(e, now) {
			delete(m.items, id)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired or not.
func (m *MemoryStateStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

var _ model.StateStore = (*MemoryStateStore)(nil)

package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	raw     string
	expires time.Time
}

// MemoryStore keeps sessions in process memory. Sessions are lost on
// restart and are not shared between instances.
type MemoryStore struct {
	mu         sync.Mutex
	sessions   map[string]memoryEntry
	defaultTTL time.Duration
	now        func() time.Time
}

func NewMemoryStore(defaultTTL time.Duration) *MemoryStore {
	return &MemoryStore{sessions: map[string]memoryEntry{}, defaultTTL: defaultTTL, now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, sid string) (*Data, error) {
	m.mu.Lock()
	e, ok := m.sessions[sid]
	if ok && e.expires.Before(m.now()) {
		delete(m.sessions, sid)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return decodeData(e.raw)
}

func (m *MemoryStore) Set(_ context.Context, sid string, data *Data) error {
	raw, err := encodeData(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sid] = memoryEntry{raw: raw, expires: data.expiresAt(m.now(), m.defaultTTL)}
	return nil
}

func (m *MemoryStore) Destroy(_ context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sid)
	return nil
}

func (m *MemoryStore) Touch(_ context.Context, sid string, data *Data) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[sid]; ok {
		e.expires = data.expiresAt(m.now(), m.defaultTTL)
		m.sessions[sid] = e
	}
	return nil
}

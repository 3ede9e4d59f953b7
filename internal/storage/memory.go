package storage

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/Pairwise/internal/domain"
)

type memoryRoom struct {
	kv    map[string][]byte
	alarm time.Time
	armed bool
}

// MemoryStore keeps everything in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*memoryRoom
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[domain.RoomID]*memoryRoom)}
}

func (m *MemoryStore) room(id domain.RoomID) *memoryRoom {
	r, ok := m.rooms[id]
	if !ok {
		r = &memoryRoom{kv: make(map[string][]byte)}
		m.rooms[id] = r
	}
	return r
}

func (m *MemoryStore) Get(_ context.Context, room domain.RoomID, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[room]
	if !ok {
		return nil, ErrNotFound
	}
	v, ok := r.kv[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) Put(_ context.Context, room domain.RoomID, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.room(room).kv[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) List(_ context.Context, room domain.RoomID, prefix string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte)
	r, ok := m.rooms[room]
	if !ok {
		return out, nil
	}
	for k, v := range r.kv {
		if strings.HasPrefix(k, prefix) {
			out[k] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteAll(_ context.Context, room domain.RoomID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, room)
	return nil
}

func (m *MemoryStore) GetAlarm(_ context.Context, room domain.RoomID) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[room]
	if !ok || !r.armed {
		return time.Time{}, ErrNotFound
	}
	return r.alarm, nil
}

func (m *MemoryStore) SetAlarm(_ context.Context, room domain.RoomID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.room(room)
	r.alarm = at
	r.armed = true
	return nil
}

func (m *MemoryStore) Rooms(_ context.Context) ([]RoomAlarm, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RoomAlarm
	for _, id := range slices.Sorted(maps.Keys(m.rooms)) {
		if r := m.rooms[id]; r.armed {
			out = append(out, RoomAlarm{Room: id, FireAt: r.alarm})
		}
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

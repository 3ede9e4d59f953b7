package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/dkeye/Pairwise/internal/core"
	"github.com/dkeye/Pairwise/internal/domain"
	"github.com/dkeye/Pairwise/internal/events"
	"github.com/dkeye/Pairwise/internal/storage"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

// RoomManager owns one actor per live room id and routes the four entry
// points (connect, message, disconnect, wakeup) to it. Rooms are created
// implicitly by the first connect and forgotten once destroyed.
type RoomManager struct {
	mu     sync.RWMutex
	rooms  map[domain.RoomID]*roomActor
	closed bool

	store    storage.Store
	clock    clockwork.Clock
	settings Settings
	events   events.Publisher

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup
}

func NewRoomManager(store storage.Store, clock clockwork.Clock, settings Settings, pub events.Publisher) *RoomManager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if pub == nil {
		pub = events.Noop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RoomManager{
		rooms:    make(map[domain.RoomID]*roomActor),
		store:    store,
		clock:    clock,
		settings: settings,
		events:   pub,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// getOrCreateLocked must be called with m.mu held for writing.
func (m *RoomManager) getOrCreateLocked(id domain.RoomID) *roomActor {
	if a, ok := m.rooms[id]; ok {
		return a
	}
	a := newRoomActor(func() *Room {
		return NewRoom(RoomOptions{
			ID:       id,
			Store:    m.store,
			Clock:    m.clock,
			Settings: m.settings,
			Events:   m.events,
			Wake:     func(gen uint64) { m.wakeup(id, gen) },
		})
	})
	m.rooms[id] = a
	m.wg.Go(func() { a.run(m.ctx, func(a *roomActor) bool { return m.release(id, a) }) })
	log.Debug().Str("module", "app.room_manager").Str("room", string(id)).Msg("room actor started")
	return a
}

func (m *RoomManager) release(id domain.RoomID, a *roomActor) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !a.tryStop() {
		return false
	}
	if m.rooms[id] == a {
		delete(m.rooms, id)
	}
	return true
}

// Connect hands ms to the room and waits for the admission decision.
// A rejected session has already received room_full and been closed
// when core.ErrRoomFull is returned.
func (m *RoomManager) Connect(id domain.RoomID, ms core.MemberSession) error {
	reply := make(chan error, 1)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrRoomStopped
	}
	a := m.getOrCreateLocked(id)
	ok := a.enqueue(roomEvent{kind: evConnect, session: ms, reply: reply})
	m.mu.Unlock()
	if !ok {
		return ErrRoomStopped
	}
	return <-reply
}

func (m *RoomManager) Message(id domain.RoomID, sid core.SessionID, data core.Frame) {
	m.route(id, roomEvent{kind: evMessage, sid: sid, data: data})
}

func (m *RoomManager) Disconnect(id domain.RoomID, sid core.SessionID) {
	m.route(id, roomEvent{kind: evDisconnect, sid: sid})
}

func (m *RoomManager) wakeup(id domain.RoomID, gen uint64) {
	m.route(id, roomEvent{kind: evWakeup, gen: gen})
}

// route delivers to an existing actor only. Events for rooms without an
// actor belong to an earlier incarnation and are dropped.
func (m *RoomManager) route(id domain.RoomID, ev roomEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.rooms[id]
	if !ok || !a.enqueue(ev) {
		log.Debug().Str("module", "app.room_manager").Str("room", string(id)).Int("kind", int(ev.kind)).Msg("event for inactive room dropped")
	}
}

// Bootstrap spawns an actor for every room with a persisted wakeup so its
// timer runs again after a restart. Overdue wakeups fire immediately.
func (m *RoomManager) Bootstrap(ctx context.Context) (int, error) {
	armed, err := m.store.Rooms(ctx)
	if err != nil {
		return 0, fmt.Errorf("app: bootstrap rooms: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ra := range armed {
		a := m.getOrCreateLocked(ra.Room)
		a.enqueue(roomEvent{kind: evRestore})
	}
	log.Info().Str("module", "app.room_manager").Int("rooms", len(armed)).Msg("rooms bootstrapped")
	return len(armed), nil
}

func (m *RoomManager) List() []core.RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(m.rooms))
	for id, a := range m.rooms {
		out = append(out, core.RoomInfo{ID: id, Participants: a.participants()})
	}
	slices.SortFunc(out, func(x, y core.RoomInfo) int { return strings.Compare(string(x.ID), string(y.ID)) })
	return out
}

// Shutdown stops every actor and waits for them. Persisted state and
// wakeups are left for the next Bootstrap.
func (m *RoomManager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	actors := make([]*roomActor, 0, len(m.rooms))
	for _, a := range m.rooms {
		actors = append(actors, a)
	}
	clear(m.rooms)
	m.mu.Unlock()

	for _, a := range actors {
		a.stop()
	}
	m.wg.Wait()
	m.cancel()
	log.Info().Str("module", "app.room_manager").Int("rooms", len(actors)).Msg("room manager stopped")
}

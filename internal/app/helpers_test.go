package app_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dkeye/Pairwise/internal/app"
	"github.com/dkeye/Pairwise/internal/core"
	"github.com/dkeye/Pairwise/internal/core/coretest"
	"github.com/dkeye/Pairwise/internal/domain"
	"github.com/dkeye/Pairwise/internal/events"
	"github.com/dkeye/Pairwise/internal/storage"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var t0 = time.UnixMilli(1_700_000_000_000)

const testRoom domain.RoomID = "abc123"

// harness drives a Room directly. Fired wakeups are collected and
// delivered explicitly with fire, standing in for the room's actor.
type harness struct {
	t      *testing.T
	ctx    context.Context
	clock  *clockwork.FakeClock
	store  storage.Store
	strk   *storage.StrokeStore
	room   *app.Room
	wakes  chan uint64
	events *events.Recorder
}

func newHarness(t *testing.T, store storage.Store, settings app.Settings) *harness {
	t.Helper()
	if store == nil {
		store = storage.NewMemoryStore()
	}
	h := &harness{
		t:      t,
		ctx:    context.Background(),
		clock:  clockwork.NewFakeClockAt(t0),
		store:  store,
		strk:   storage.NewStrokeStore(testRoom, store),
		wakes:  make(chan uint64, 16),
		events: &events.Recorder{},
	}
	h.room = app.NewRoom(app.RoomOptions{
		ID:       testRoom,
		Store:    store,
		Clock:    h.clock,
		Settings: settings,
		Events:   h.events,
		Wake:     func(gen uint64) { h.wakes <- gen },
	})
	t.Cleanup(h.room.Stop)
	return h
}

func (h *harness) connect(id string) *coretest.Conn {
	h.t.Helper()
	conn := coretest.NewConn()
	err := h.room.Connect(h.ctx, newSession(id, conn))
	require.NoError(h.t, err)
	return conn
}

func (h *harness) send(id string, v any) {
	h.t.Helper()
	b, err := json.Marshal(v)
	require.NoError(h.t, err)
	h.room.Message(h.ctx, core.SessionID(id), b)
}

// advanceTo moves the fake clock to at.
func (h *harness) advanceTo(at time.Time) {
	h.clock.Advance(at.Sub(h.clock.Now()))
}

// fire waits for the next timer fire and runs the wakeup on the room.
func (h *harness) fire() {
	h.t.Helper()
	select {
	case gen := <-h.wakes:
		h.room.Wakeup(h.ctx, gen)
	case <-time.After(2 * time.Second):
		h.t.Fatal("wakeup did not fire")
	}
}

// noFire asserts no timer fired.
func (h *harness) noFire() {
	h.t.Helper()
	select {
	case gen := <-h.wakes:
		h.t.Fatalf("unexpected wakeup gen %d", gen)
	case <-time.After(50 * time.Millisecond):
	}
}

func (h *harness) deadline() time.Time {
	h.t.Helper()
	at, ok := h.room.Deadline()
	require.True(h.t, ok, "no wakeup armed")
	return at
}

func (h *harness) metadata() domain.DeadlineMetadata {
	h.t.Helper()
	md, err := h.strk.DeadlineMetadata(h.ctx)
	require.NoError(h.t, err)
	return md
}

func newSession(id string, conn *coretest.Conn) core.MemberSession {
	return core.NewMemberSession(core.SessionID(id), domain.NewMember(id), conn)
}

func lastMessage(t *testing.T, conn *coretest.Conn) map[string]any {
	t.Helper()
	msgs := conn.Messages()
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

func start(id string, x, y float64) map[string]any {
	return map[string]any{"type": "stroke_start", "strokeId": id, "tool": "pen", "color": "#ff0000", "x": x, "y": y}
}

func move(id string, x, y float64) map[string]any {
	return map[string]any{"type": "stroke_move", "strokeId": id, "x": x, "y": y}
}

func end(id string) map[string]any {
	return map[string]any{"type": "stroke_end", "strokeId": id}
}

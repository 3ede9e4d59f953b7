package app_test

import (
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Pairwise/internal/app"
	"github.com/dkeye/Pairwise/internal/core/coretest"
	"github.com/dkeye/Pairwise/internal/domain"
	"github.com/dkeye/Pairwise/internal/events"
	"github.com/dkeye/Pairwise/internal/storage"
	"github.com/dkeye/Pairwise/internal/storage/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func assertExpired(t *testing.T, h *harness, conns ...*coretest.Conn) {
	t.Helper()
	assert.True(t, h.room.Destroyed())
	for _, c := range conns {
		closed, code, reason := c.Closed()
		assert.True(t, closed)
		assert.Equal(t, 1000, code)
		assert.Equal(t, "Room expired", reason)
	}
	persisted, err := h.strk.LoadAll(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, persisted)
	_, err = h.strk.DeadlineMetadata(h.ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = h.strk.ArmedWakeup(h.ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, 0, h.room.Count())
	_, armed := h.room.Deadline()
	assert.False(t, armed)
}

func TestActivationArmsTTL(t *testing.T) {
	h := newHarness(t, nil, app.DefaultSettings())
	h.connect("a")

	md := h.metadata()
	assert.Equal(t, domain.DeadlineTTL, md.Kind)
	assert.Equal(t, t0.UnixMilli(), md.CreatedAt)
	assert.Equal(t, t0.Add(time.Hour).UnixMilli(), md.TTLExpiresAt)
	assert.Equal(t, t0.Add(time.Hour).UnixMilli(), h.deadline().UnixMilli())

	armed, err := h.strk.ArmedWakeup(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Hour).UnixMilli(), armed.UnixMilli())
}

// A ttl wakeup destroys the room even while participants are connected;
// only idle_cleanup wakeups are reconsidered against occupancy.
func TestTTLWakeupDestroysOccupiedRoom(t *testing.T) {
	h := newHarness(t, nil, app.DefaultSettings())
	a := h.connect("a")
	b := h.connect("b")
	h.send("a", start("s1", 1, 1))
	h.send("a", end("s1"))
	h.send("b", start("s2", 1, 1))

	h.advanceTo(t0.Add(3599 * time.Second))
	h.noFire()
	h.advanceTo(t0.Add(3600 * time.Second))
	h.fire()

	assertExpired(t, h, a, b)
	assert.Equal(t, events.Destroyed, h.events.Types()[len(h.events.Types())-1])

	// Destroyed is terminal.
	err := h.room.Connect(h.ctx, newSession("c", coretest.NewConn()))
	assert.ErrorIs(t, err, app.ErrRoomStopped)
}

func TestLeaveNearTTLKeepsTTLWakeup(t *testing.T) {
	h := newHarness(t, nil, app.DefaultSettings())
	h.connect("a")

	h.advanceTo(t0.Add(3500 * time.Second))
	h.room.Disconnect(h.ctx, "a")

	assert.Equal(t, t0.Add(3600*time.Second).UnixMilli(), h.deadline().UnixMilli())
	assert.Equal(t, domain.DeadlineTTL, h.metadata().Kind)

	h.advanceTo(t0.Add(3600 * time.Second))
	h.fire()
	assertExpired(t, h)
}

func TestRejoinRestoresTTLOverIdleCleanup(t *testing.T) {
	h := newHarness(t, nil, app.DefaultSettings())
	h.connect("a")

	h.advanceTo(t0.Add(100 * time.Second))
	h.room.Disconnect(h.ctx, "a")
	assert.Equal(t, t0.Add(400*time.Second).UnixMilli(), h.deadline().UnixMilli())
	md := h.metadata()
	assert.Equal(t, domain.DeadlineIdleCleanup, md.Kind)
	assert.Equal(t, t0.Add(3600*time.Second).UnixMilli(), md.TTLExpiresAt, "ttl is remembered")

	h.advanceTo(t0.Add(200 * time.Second))
	b := h.connect("b")
	assert.Equal(t, t0.Add(3600*time.Second).UnixMilli(), h.deadline().UnixMilli())
	assert.Equal(t, domain.DeadlineTTL, h.metadata().Kind)

	h.advanceTo(t0.Add(500 * time.Second))
	h.noFire()
	assert.False(t, h.room.Destroyed())
	closed, _, _ := b.Closed()
	assert.False(t, closed)

	// Still serving past the original idle deadline.
	c := h.connect("c")
	b.Reset()
	h.send("c", start("s1", 1, 1))
	assert.Equal(t, []string{"stroke_update"}, b.Types())
	assert.Equal(t, "responder", c.Messages()[0]["yourRole"])
}

func TestIdleCleanupDestroysEmptyRoom(t *testing.T) {
	h := newHarness(t, nil, app.DefaultSettings())
	h.connect("a")
	h.send("a", start("s1", 1, 1))
	h.send("a", end("s1"))

	h.advanceTo(t0.Add(100 * time.Second))
	h.room.Disconnect(h.ctx, "a")
	h.advanceTo(t0.Add(400 * time.Second))
	h.fire()

	assertExpired(t, h)
}

func TestStaleWakeupIsIgnored(t *testing.T) {
	h := newHarness(t, nil, app.DefaultSettings())
	h.connect("a")
	h.advanceTo(t0.Add(100 * time.Second))
	h.room.Disconnect(h.ctx, "a")

	// The idle wakeup fires, but a rejoin is processed before it.
	h.advanceTo(t0.Add(400 * time.Second))
	var stale uint64
	select {
	case stale = <-h.wakes:
	case <-time.After(2 * time.Second):
		t.Fatal("wakeup did not fire")
	}
	b := h.connect("b")
	h.room.Wakeup(h.ctx, stale)

	assert.False(t, h.room.Destroyed())
	closed, _, _ := b.Closed()
	assert.False(t, closed)
	assert.Equal(t, t0.Add(3600*time.Second).UnixMilli(), h.deadline().UnixMilli())
}

// An idle_cleanup wakeup that fires on an empty room destroys it even if
// the remembered ttl already passed; it does not restore the ttl first.
func TestIdleCleanupWithPastTTLDestroys(t *testing.T) {
	h := newHarness(t, nil, app.DefaultSettings())
	require.NoError(t, h.strk.SetDeadlineMetadata(h.ctx, domain.DeadlineMetadata{
		Kind:         domain.DeadlineIdleCleanup,
		CreatedAt:    t0.Add(-2 * time.Hour).UnixMilli(),
		TTLExpiresAt: t0.Add(-time.Hour).UnixMilli(),
	}))
	require.NoError(t, h.strk.ArmWakeup(h.ctx, t0.Add(-time.Minute)))

	require.NoError(t, h.room.Restore(h.ctx))
	h.fire()
	assertExpired(t, h)
}

func TestFalseAlarmWithPastTTLLeavesRoomOpen(t *testing.T) {
	h := newHarness(t, nil, app.DefaultSettings())
	require.NoError(t, h.strk.SetDeadlineMetadata(h.ctx, domain.DeadlineMetadata{
		Kind:         domain.DeadlineIdleCleanup,
		CreatedAt:    t0.Add(-2 * time.Hour).UnixMilli(),
		TTLExpiresAt: t0.Add(-time.Hour).UnixMilli(),
	}))
	require.NoError(t, h.strk.ArmWakeup(h.ctx, t0))
	require.NoError(t, h.room.Restore(h.ctx))

	// Rejoining cannot restore a ttl that already passed, so the idle
	// wakeup stays in place and fires while the room is occupied.
	a := h.connect("a")
	h.fire()

	assert.False(t, h.room.Destroyed())
	closed, _, _ := a.Closed()
	assert.False(t, closed)
	_, armed := h.room.Deadline()
	assert.False(t, armed)

	// Once empty again the room is reclaimed immediately.
	h.room.Disconnect(h.ctx, "a")
	assert.Equal(t, t0.UnixMilli(), h.deadline().UnixMilli())
	h.fire()
	assertExpired(t, h)
}

func TestFalseAlarmKeepsPersistedWakeupForRestart(t *testing.T) {
	h := newHarness(t, nil, app.DefaultSettings())
	require.NoError(t, h.strk.SetDeadlineMetadata(h.ctx, domain.DeadlineMetadata{
		Kind:         domain.DeadlineIdleCleanup,
		CreatedAt:    t0.Add(-2 * time.Hour).UnixMilli(),
		TTLExpiresAt: t0.Add(-time.Hour).UnixMilli(),
	}))
	require.NoError(t, h.strk.ArmWakeup(h.ctx, t0))
	require.NoError(t, h.room.Restore(h.ctx))
	h.connect("a")
	h.send("a", start("s1", 1, 1))
	h.send("a", end("s1"))
	h.fire()
	require.False(t, h.room.Destroyed())

	// The process dies here. The room must still be discoverable.
	at, err := h.strk.ArmedWakeup(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, t0.UnixMilli(), at.UnixMilli())
	rooms, err := h.store.Rooms(h.ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, testRoom, rooms[0].Room)

	restarted := newHarness(t, h.store, app.DefaultSettings())
	require.NoError(t, restarted.room.Restore(restarted.ctx))
	restarted.fire()
	assert.True(t, restarted.room.Destroyed())
	persisted, err := restarted.strk.LoadAll(restarted.ctx)
	require.NoError(t, err)
	assert.Empty(t, persisted)
	rooms, err = h.store.Rooms(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func seedTTL(t *testing.T, h *harness, expires time.Time) {
	t.Helper()
	require.NoError(t, h.strk.SetDeadlineMetadata(h.ctx, domain.DeadlineMetadata{
		Kind:         domain.DeadlineTTL,
		CreatedAt:    expires.Add(-time.Hour).UnixMilli(),
		TTLExpiresAt: expires.UnixMilli(),
	}))
	require.NoError(t, h.strk.ArmWakeup(h.ctx, expires))
}

// A restart drops every connection, so a restored ttl room is empty and
// falls back to idle cleanup.
func TestRestoreEmptyRoomArmsIdleCleanup(t *testing.T) {
	h := newHarness(t, nil, app.DefaultSettings())
	seedTTL(t, h, t0.Add(40*time.Minute))

	require.NoError(t, h.room.Restore(h.ctx))

	assert.Equal(t, t0.Add(5*time.Minute).UnixMilli(), h.deadline().UnixMilli())
	md := h.metadata()
	assert.Equal(t, domain.DeadlineIdleCleanup, md.Kind)
	assert.Equal(t, t0.Add(40*time.Minute).UnixMilli(), md.TTLExpiresAt)
	at, err := h.strk.ArmedWakeup(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(5*time.Minute).UnixMilli(), at.UnixMilli())

	h.advanceTo(t0.Add(5 * time.Minute))
	h.fire()
	assertExpired(t, h)
}

func TestRestoreEmptyRoomNearTTLKeepsTTL(t *testing.T) {
	h := newHarness(t, nil, app.DefaultSettings())
	seedTTL(t, h, t0.Add(3*time.Minute))

	require.NoError(t, h.room.Restore(h.ctx))

	assert.Equal(t, t0.Add(3*time.Minute).UnixMilli(), h.deadline().UnixMilli())
	assert.Equal(t, domain.DeadlineTTL, h.metadata().Kind)
}

func TestRejoinAfterRestoreGetsTTLBack(t *testing.T) {
	h := newHarness(t, nil, app.DefaultSettings())
	seedTTL(t, h, t0.Add(40*time.Minute))
	require.NoError(t, h.room.Restore(h.ctx))

	h.advanceTo(t0.Add(time.Minute))
	h.connect("a")
	assert.Equal(t, t0.Add(40*time.Minute).UnixMilli(), h.deadline().UnixMilli())
	assert.Equal(t, domain.DeadlineTTL, h.metadata().Kind)

	h.advanceTo(t0.Add(5 * time.Minute))
	h.noFire()
}

func TestWipeFailureKeepsRoomAndRetries(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	mem := storage.NewMemoryStore()
	store.EXPECT().DeleteAll(gomock.Any(), testRoom).Return(errors.New("unavailable")).Times(1)
	passthrough(store, mem)

	h := newHarness(t, store, app.DefaultSettings())
	a := h.connect("a")
	h.send("a", start("s1", 1, 1))
	h.send("a", end("s1"))

	h.advanceTo(t0.Add(time.Hour))
	h.fire()

	assert.False(t, h.room.Destroyed())
	closed, _, _ := a.Closed()
	assert.False(t, closed, "no session is closed when the wipe failed")
	persisted, err := h.strk.LoadAll(h.ctx)
	require.NoError(t, err)
	assert.Len(t, persisted, 1)
	assert.Equal(t, t0.Add(time.Hour+5*time.Minute).UnixMilli(), h.deadline().UnixMilli())

	h.advanceTo(t0.Add(time.Hour + 5*time.Minute))
	h.fire()
	assertExpired(t, h, a)
}

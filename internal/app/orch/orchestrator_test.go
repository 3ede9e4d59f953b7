package orch_test

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/Pairwise/internal/app"
	"github.com/dkeye/Pairwise/internal/app/orch"
	"github.com/dkeye/Pairwise/internal/core"
	"github.com/dkeye/Pairwise/internal/core/coretest"
	"github.com/dkeye/Pairwise/internal/domain"
	"github.com/dkeye/Pairwise/internal/storage"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const room domain.RoomID = "abc123"

func newOrchestrator(t *testing.T) *orch.Orchestrator {
	t.Helper()
	rooms := app.NewRoomManager(storage.NewMemoryStore(), clockwork.NewFakeClock(), app.DefaultSettings(), nil)
	o := orch.New(rooms)
	t.Cleanup(o.Shutdown)
	return o
}

func join(t *testing.T, o *orch.Orchestrator, id string) (*coretest.Conn, context.Context) {
	t.Helper()
	conn := coretest.NewConn()
	ctx, cancel := context.WithCancel(context.Background())
	sess := core.NewMemberSession(core.SessionID(id), domain.NewMember(id), conn)
	require.NoError(t, o.Join(room, sess, cancel))
	return conn, ctx
}

func TestJoinBindsAndRoutesFrames(t *testing.T) {
	o := newOrchestrator(t)
	join(t, o, "a")
	b, _ := join(t, o, "b")
	b.Reset()

	o.OnFrame("a", []byte(`{"type":"webrtc_offer","offer":{}}`))
	require.Eventually(t, func() bool { return len(b.Frames()) == 1 }, time.Second, 5*time.Millisecond)

	// Frames from a connection that never joined go nowhere.
	o.OnFrame("ghost", []byte(`{"type":"webrtc_offer","offer":{}}`))
	assert.Never(t, func() bool { return len(b.Frames()) > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestRejectedJoinIsNotBound(t *testing.T) {
	o := newOrchestrator(t)
	join(t, o, "a")
	join(t, o, "b")

	c := coretest.NewConn()
	err := o.Join(room, core.NewMemberSession("c", domain.NewMember("c"), c), func() {})
	assert.ErrorIs(t, err, core.ErrRoomFull)
	_, ok := o.Registry.RoomOf("c")
	assert.False(t, ok)
}

func TestLeaveIsIdempotent(t *testing.T) {
	o := newOrchestrator(t)
	a, _ := join(t, o, "a")
	join(t, o, "b")
	a.Reset()

	o.Leave("b")
	o.Leave("b")
	require.Eventually(t, func() bool { return len(a.Frames()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return len(a.Frames()) > 1 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, []string{"user_left"}, a.Types())
}

func TestShutdownCancelsConnections(t *testing.T) {
	o := newOrchestrator(t)
	_, ctx := join(t, o, "a")

	o.Shutdown()
	assert.Error(t, ctx.Err())
}

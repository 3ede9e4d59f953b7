package core_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/Pairwise/internal/core"
	"github.com/dkeye/Pairwise/internal/core/coretest"
	"github.com/dkeye/Pairwise/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(id string) (core.MemberSession, *coretest.Conn) {
	conn := coretest.NewConn()
	return core.NewMemberSession(core.SessionID(id), domain.NewMember(id), conn), conn
}

func TestRegistryAssignsRolesAndCaps(t *testing.T) {
	reg := core.NewSessionRegistry("abc123", 2)

	a, _ := newSession("a")
	b, _ := newSession("b")
	c, _ := newSession("c")

	role, err := reg.Admit(a)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleInitiator, role)

	role, err = reg.Admit(b)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleResponder, role)
	assert.Equal(t, domain.RoleResponder, b.Meta().Role)

	_, err = reg.Admit(c)
	assert.ErrorIs(t, err, core.ErrRoomFull)
	assert.Equal(t, 2, reg.Count())

	_, ok := reg.Remove("a")
	require.True(t, ok)
	role, err = reg.Admit(c)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleResponder, role)

	_, ok = reg.Remove("missing")
	assert.False(t, ok)
}

func TestRegistryConcurrentAdmitNeverExceedsCap(t *testing.T) {
	reg := core.NewSessionRegistry("abc123", 2)

	var wg sync.WaitGroup
	var mu sync.Mutex
	rejected := 0
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ms, _ := newSession(fmt.Sprintf("s%d", i))
			if _, err := reg.Admit(ms); err != nil {
				mu.Lock()
				rejected++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, reg.Count())
	assert.Equal(t, 18, rejected)
}

func TestBroadcastSkipsSenderAndSurvivesFailures(t *testing.T) {
	reg := core.NewSessionRegistry("abc123", 3)
	a, connA := newSession("a")
	b, connB := newSession("b")
	c, connC := newSession("c")
	for _, ms := range []core.MemberSession{a, b, c} {
		_, err := reg.Admit(ms)
		require.NoError(t, err)
	}
	connB.FailSends()

	res := reg.Broadcast("a", core.Frame(`{"type":"x"}`))

	assert.Equal(t, 1, res.SendTo)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, core.SessionID("b"), res.Failed[0].ID())
	assert.Empty(t, connA.Frames())
	assert.Len(t, connC.Frames(), 1)
	assert.Equal(t, 3, reg.Count(), "failing session must stay registered")
}

func TestAllKeepsAdmissionOrder(t *testing.T) {
	reg := core.NewSessionRegistry("abc123", 2)
	a, _ := newSession("a")
	b, _ := newSession("b")
	_, _ = reg.Admit(a)
	_, _ = reg.Admit(b)

	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, core.SessionID("a"), all[0].ID())
	assert.Equal(t, core.SessionID("b"), all[1].ID())
}

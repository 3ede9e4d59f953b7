package domain_test

import (
	"testing"

	"github.com/dkeye/Pairwise/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoomID(t *testing.T) {
	seen := make(map[domain.RoomID]bool)
	for range 50 {
		id, err := domain.NewRoomID()
		require.NoError(t, err)
		parsed, err := domain.ParseRoomID(string(id))
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestParseRoomID(t *testing.T) {
	id, err := domain.ParseRoomID("AbC123")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomID("abc123"), id)

	for _, raw := range []string{"", "abc12", "abc1234", "abc-12", "../../x"} {
		_, err := domain.ParseRoomID(raw)
		assert.ErrorIs(t, err, domain.ErrInvalidRoomID, raw)
	}
}

func TestParseTool(t *testing.T) {
	tool, err := domain.ParseTool("eraser")
	require.NoError(t, err)
	assert.Equal(t, domain.ToolEraser, tool)

	_, err = domain.ParseTool("brush")
	assert.ErrorIs(t, err, domain.ErrInvalidTool)
}

func TestRoleFor(t *testing.T) {
	assert.Equal(t, domain.RoleInitiator, domain.RoleFor(1))
	assert.Equal(t, domain.RoleResponder, domain.RoleFor(2))
}

func TestStrokeCloneDoesNotShareStorage(t *testing.T) {
	s := domain.Stroke{ID: "s1", Points: []domain.Point{{X: 1, Y: 2}}}
	c := s.Clone()
	c.Points[0].X = 9
	assert.Equal(t, 1.0, s.Points[0].X)
}

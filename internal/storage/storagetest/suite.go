// Package storagetest is a conformance suite shared by every Store backend.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/Pairwise/internal/domain"
	"github.com/dkeye/Pairwise/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises newStore against the Store contract. Each subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "room01", "nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, "room01", "k", []byte("one")))
		require.NoError(t, s.Put(ctx, "room01", "k", []byte("two")))
		v, err := s.Get(ctx, "room01", "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), v)
	})

	t.Run("ListByPrefixIsRoomScoped", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, "room01", "stroke:a", []byte("a")))
		require.NoError(t, s.Put(ctx, "room01", "stroke:b", []byte("b")))
		require.NoError(t, s.Put(ctx, "room01", "deadline_metadata", []byte("m")))
		require.NoError(t, s.Put(ctx, "room02", "stroke:c", []byte("c")))

		got, err := s.List(ctx, "room01", "stroke:")
		require.NoError(t, err)
		assert.Equal(t, map[string][]byte{"stroke:a": []byte("a"), "stroke:b": []byte("b")}, got)

		empty, err := s.List(ctx, "room03", "stroke:")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("AlarmSlotOverwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.GetAlarm(ctx, "room01")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		first := time.UnixMilli(1_700_000_000_000)
		second := first.Add(5 * time.Minute)
		require.NoError(t, s.SetAlarm(ctx, "room01", first))
		require.NoError(t, s.SetAlarm(ctx, "room01", second))
		at, err := s.GetAlarm(ctx, "room01")
		require.NoError(t, err)
		assert.Equal(t, second.UnixMilli(), at.UnixMilli())
	})

	t.Run("RoomsListsArmedAlarms", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		at := time.UnixMilli(1_700_000_000_000)
		require.NoError(t, s.SetAlarm(ctx, "room01", at))
		require.NoError(t, s.SetAlarm(ctx, "room02", at.Add(time.Hour)))
		require.NoError(t, s.Put(ctx, "room03", "k", []byte("v")))

		rooms, err := s.Rooms(ctx)
		require.NoError(t, err)
		got := make(map[domain.RoomID]int64)
		for _, r := range rooms {
			got[r.Room] = r.FireAt.UnixMilli()
		}
		assert.Equal(t, map[domain.RoomID]int64{
			"room01": at.UnixMilli(),
			"room02": at.Add(time.Hour).UnixMilli(),
		}, got)
	})

	t.Run("DeleteAllWipesKeysAndAlarm", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, "room01", "stroke:a", []byte("a")))
		require.NoError(t, s.Put(ctx, "room01", "deadline_metadata", []byte("m")))
		require.NoError(t, s.SetAlarm(ctx, "room01", time.UnixMilli(1_700_000_000_000)))
		require.NoError(t, s.Put(ctx, "room02", "stroke:b", []byte("b")))

		require.NoError(t, s.DeleteAll(ctx, "room01"))

		left, err := s.List(ctx, "room01", "")
		require.NoError(t, err)
		assert.Empty(t, left)
		_, err = s.GetAlarm(ctx, "room01")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		other, err := s.Get(ctx, "room02", "stroke:b")
		require.NoError(t, err)
		assert.Equal(t, []byte("b"), other)
	})
}

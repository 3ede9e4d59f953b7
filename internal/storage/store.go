// Package storage is the keyed durable storage used by rooms.
//
// Each room owns an isolated key space plus one wakeup slot. Backends
// live in subpackages (sqlitestore, redisstore); MemoryStore is the
// in-process default.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Pairwise/internal/domain"
)

var ErrNotFound = errors.New("storage: not found")

// RoomAlarm is an armed wakeup as reported by Store.Rooms.
type RoomAlarm struct {
	Room   domain.RoomID
	FireAt time.Time
}

//go:generate mockgen -destination=mocks/store.go -package=mocks github.com/dkeye/Pairwise/internal/storage Store

// Store is the keyed storage boundary consumed by rooms.
type Store interface {
	Get(ctx context.Context, room domain.RoomID, key string) ([]byte, error)
	Put(ctx context.Context, room domain.RoomID, key string, value []byte) error
	List(ctx context.Context, room domain.RoomID, prefix string) (map[string][]byte, error)
	// DeleteAll removes every key and the wakeup slot of room in one step.
	DeleteAll(ctx context.Context, room domain.RoomID) error

	GetAlarm(ctx context.Context, room domain.RoomID) (time.Time, error)
	// SetAlarm overwrites any wakeup previously armed for room.
	SetAlarm(ctx context.Context, room domain.RoomID, at time.Time) error
	// Rooms lists every room with an armed wakeup.
	Rooms(ctx context.Context) ([]RoomAlarm, error)

	Close() error
}

package core

import (
	"errors"

	"github.com/dkeye/Pairwise/internal/domain"
)

var ErrRoomFull = errors.New("room is full")

// PublishResult reports delivery stats of a broadcast.
type PublishResult struct {
	SendTo int
	Failed []MemberSession
}

// SessionRegistry tracks the sessions connected to one room.
// It owns the membership set but never touches transport resources.
type SessionRegistry interface {
	// Admit registers ms and assigns its role, or returns ErrRoomFull.
	Admit(ms MemberSession) (domain.Role, error)
	Remove(sid SessionID) (MemberSession, bool)
	Get(sid SessionID) (MemberSession, bool)
	Count() int
	All() []MemberSession
	// Broadcast sends data to every session except the one with id from.
	Broadcast(from SessionID, data Frame) PublishResult
}

type RoomInfo struct {
	ID           domain.RoomID `json:"roomId"`
	Participants int           `json:"participants"`
}

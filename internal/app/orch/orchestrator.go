// Package orch glues the transport to the room coordinator. It exposes the
// entry points a connection handler needs and keeps connection bookkeeping
// in the registry.
package orch

import (
	"github.com/dkeye/Pairwise/internal/app"
	"github.com/dkeye/Pairwise/internal/core"
	"github.com/rs/zerolog/log"
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomManager
}

func New(rooms *app.RoomManager) *Orchestrator {
	return &Orchestrator{Registry: app.NewRegistry(), Rooms: rooms}
}

// OnFrame routes an inbound frame to the sender's room.
func (o *Orchestrator) OnFrame(sid core.SessionID, data core.Frame) {
	room, ok := o.Registry.RoomOf(sid)
	if !ok {
		log.Debug().Str("module", "orch").Str("sid", string(sid)).Msg("frame from unbound session")
		return
	}
	o.Rooms.Message(room, sid, data)
}

package orch

import (
	"context"

	"github.com/dkeye/Pairwise/internal/core"
	"github.com/dkeye/Pairwise/internal/domain"
	"github.com/rs/zerolog/log"
)

// Join asks the room to admit sess. On success the connection is bound so
// that its frames and its close reach the room.
func (o *Orchestrator) Join(room domain.RoomID, sess core.MemberSession, cancel context.CancelFunc) error {
	if err := o.Rooms.Connect(room, sess); err != nil {
		log.Info().Err(err).Str("module", "orch").Str("sid", string(sess.ID())).Str("room", string(room)).Msg("join refused")
		return err
	}
	o.Registry.BindSession(sess.ID(), room, sess, cancel)
	return nil
}

// Leave reports a closed connection to its room. Safe to call more than once.
func (o *Orchestrator) Leave(sid core.SessionID) {
	room, ok := o.Registry.RoomOf(sid)
	if !ok {
		return
	}
	if o.Registry.Unbind(sid) {
		o.Rooms.Disconnect(room, sid)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(room)).Msg("left room")
	}
}

// Shutdown stops all rooms first so that the closes that follow leave
// persisted wakeups untouched for the next Bootstrap.
func (o *Orchestrator) Shutdown() {
	o.Rooms.Shutdown()
	o.Registry.CancelAll()
}

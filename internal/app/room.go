package app

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/Pairwise/internal/core"
	"github.com/dkeye/Pairwise/internal/domain"
	"github.com/dkeye/Pairwise/internal/events"
	"github.com/dkeye/Pairwise/internal/storage"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrRoomStopped = errors.New("room stopped")

const (
	closeNormal    = 1000
	reasonRoomFull = "Room is full"
	reasonExpired  = "Room expired"
)

type Settings struct {
	TTL             time.Duration
	CleanupWindow   time.Duration
	MaxParticipants int
	AssignRoles     bool
	RelaySignaling  bool
}

func DefaultSettings() Settings {
	return Settings{
		TTL:             time.Hour,
		CleanupWindow:   5 * time.Minute,
		MaxParticipants: 2,
		AssignRoles:     true,
		RelaySignaling:  true,
	}
}

type RoomOptions struct {
	ID       domain.RoomID
	Store    storage.Store
	Clock    clockwork.Clock
	Settings Settings
	Events   events.Publisher
	// Wake is invoked from a timer goroutine when the armed wakeup fires.
	// The owner must route gen back into Room.Wakeup on the room's own
	// goroutine.
	Wake func(gen uint64)
}

// Room is the coordinator state machine of one drawing room. It is not
// safe for concurrent use: every method must be called from the single
// goroutine that owns the room.
type Room struct {
	id        domain.RoomID
	settings  Settings
	clock     clockwork.Clock
	store     *storage.StrokeStore
	sessions  core.SessionRegistry
	active    *activeStrokes
	alarm     *alarmSlot
	events    events.Publisher
	destroyed bool
	log       zerolog.Logger
}

func NewRoom(opts RoomOptions) *Room {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Events == nil {
		opts.Events = events.Noop{}
	}
	if opts.Wake == nil {
		opts.Wake = func(uint64) {}
	}
	return &Room{
		id:       opts.ID,
		settings: opts.Settings,
		clock:    opts.Clock,
		store:    storage.NewStrokeStore(opts.ID, opts.Store),
		sessions: core.NewSessionRegistry(opts.ID, opts.Settings.MaxParticipants),
		active:   newActiveStrokes(),
		alarm:    newAlarmSlot(opts.Clock, opts.Wake),
		events:   opts.Events,
		log:      log.With().Str("module", "app.room").Str("room", string(opts.ID)).Logger(),
	}
}

func (r *Room) ID() domain.RoomID { return r.id }

// Count is safe to call from any goroutine.
func (r *Room) Count() int { return r.sessions.Count() }

func (r *Room) Destroyed() bool { return r.destroyed }

// Dormant reports a room holding no sessions and no pending wakeup.
func (r *Room) Dormant() bool {
	return !r.destroyed && r.sessions.Count() == 0 && !r.alarm.armed()
}

// Deadline returns the instant the pending wakeup fires.
func (r *Room) Deadline() (time.Time, bool) { return r.alarm.deadline() }

// Connect admits ms or rejects it with a room_full notice followed by a
// close. A rejection returns core.ErrRoomFull.
func (r *Room) Connect(ctx context.Context, ms core.MemberSession) error {
	if r.destroyed {
		return ErrRoomStopped
	}
	role, err := r.sessions.Admit(ms)
	if err != nil {
		r.log.Info().Str("sid", string(ms.ID())).Str("participant", ms.Meta().Participant).Msg("room full, rejected")
		r.send(ms, typeOnlyMsg{Type: msgRoomFull})
		ms.Signal().CloseWith(closeNormal, reasonRoomFull)
		return err
	}
	count := r.sessions.Count()
	if count == 1 {
		r.onOccupied(ctx)
	}

	joined := joinedMsg{Type: msgJoined, UserCount: count}
	if r.settings.AssignRoles {
		joined.YourRole = role
	}
	r.send(ms, joined)

	strokes, err := r.store.LoadAll(ctx)
	if err != nil {
		r.log.Error().Err(err).Str("sid", string(ms.ID())).Msg("load strokes for catch-up")
	}
	if strokes == nil {
		strokes = []domain.Stroke{}
	}
	r.send(ms, fullStateMsg{Type: msgFullState, Strokes: strokes})
	r.broadcast(ms.ID(), userCountMsg{Type: msgUserJoined, UserCount: count})

	r.log.Info().Str("sid", string(ms.ID())).Str("participant", ms.Meta().Participant).Str("role", string(role)).Int("count", count).Int("strokes", len(strokes)).Msg("participant joined")
	r.publish(ctx, events.Joined)
	return nil
}

// Message runs one inbound frame from sid through the stroke protocol
// or the opaque relay. Frames from unknown sessions are dropped.
func (r *Room) Message(ctx context.Context, sid core.SessionID, data core.Frame) {
	ms, ok := r.sessions.Get(sid)
	if !ok {
		r.log.Debug().Str("sid", string(sid)).Msg("frame from unknown session")
		return
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.log.Warn().Err(err).Str("sid", string(sid)).Msg("malformed message")
		return
	}

	switch {
	case env.Type == msgStrokeStart:
		r.strokeStart(ctx, sid, data)
	case env.Type == msgStrokeMove:
		r.strokeMove(sid, data)
	case env.Type == msgStrokeEnd:
		r.strokeEnd(ctx, sid, data)
	case isRelayKind(env.Type):
		if !r.settings.RelaySignaling {
			r.log.Debug().Str("sid", string(sid)).Str("type", env.Type).Msg("relay disabled, dropped")
			return
		}
		r.sessions.Broadcast(sid, data)
	case env.Type == msgPing:
		r.send(ms, typeOnlyMsg{Type: msgPong})
	case env.Type == msgJoin:
		// admission already happened on connect
	default:
		r.log.Warn().Str("sid", string(sid)).Str("type", env.Type).Msg("unknown message type")
	}
}

func (r *Room) strokeStart(ctx context.Context, sid core.SessionID, data []byte) {
	var msg strokeStartMsg
	if err := decodeInto(data, &msg); err != nil {
		r.log.Warn().Err(err).Str("sid", string(sid)).Msg("malformed stroke_start")
		return
	}
	tool, err := domain.ParseTool(msg.Tool)
	if err != nil {
		r.log.Warn().Err(err).Str("sid", string(sid)).Msg("malformed stroke_start")
		return
	}
	done, err := r.store.Completed(ctx, msg.StrokeID)
	if err != nil {
		r.log.Error().Err(err).Str("stroke", msg.StrokeID).Msg("check completed stroke")
		return
	}
	if done {
		r.log.Debug().Str("sid", string(sid)).Str("stroke", msg.StrokeID).Msg("stroke_start for completed stroke ignored")
		return
	}
	st := domain.Stroke{
		ID:        msg.StrokeID,
		Tool:      tool,
		Color:     msg.Color,
		Points:    []domain.Point{{X: *msg.X, Y: *msg.Y}},
		Timestamp: r.clock.Now().UnixMilli(),
	}
	if !r.active.start(st) {
		r.log.Debug().Str("sid", string(sid)).Str("stroke", msg.StrokeID).Msg("stroke already active")
		return
	}
	r.broadcastUpdate(sid, &st)
}

func (r *Room) strokeMove(sid core.SessionID, data []byte) {
	var msg strokeMoveMsg
	if err := decodeInto(data, &msg); err != nil {
		r.log.Warn().Err(err).Str("sid", string(sid)).Msg("malformed stroke_move")
		return
	}
	st, ok := r.active.appendPoint(msg.StrokeID, domain.Point{X: *msg.X, Y: *msg.Y})
	if !ok {
		r.log.Debug().Str("sid", string(sid)).Str("stroke", msg.StrokeID).Msg("stroke_move for inactive stroke")
		return
	}
	r.broadcastUpdate(sid, st)
}

func (r *Room) strokeEnd(ctx context.Context, sid core.SessionID, data []byte) {
	var msg strokeEndMsg
	if err := decodeInto(data, &msg); err != nil {
		r.log.Warn().Err(err).Str("sid", string(sid)).Msg("malformed stroke_end")
		return
	}
	st, ok := r.active.get(msg.StrokeID)
	if !ok {
		r.log.Debug().Str("sid", string(sid)).Str("stroke", msg.StrokeID).Msg("stroke_end for inactive stroke")
		return
	}
	completed := st.Clone()
	if err := r.store.Persist(ctx, completed); err != nil {
		// The stroke stays active so a repeated stroke_end can retry.
		r.log.Error().Err(err).Str("stroke", completed.ID).Msg("persist stroke, broadcast suppressed")
		return
	}
	r.active.remove(completed.ID)
	r.broadcast(sid, strokeBroadcastMsg{Type: msgStrokeBroadcast, Stroke: completed})
}

func (r *Room) broadcastUpdate(from core.SessionID, st *domain.Stroke) {
	r.broadcast(from, strokeUpdateMsg{
		Type:     msgStrokeUpdate,
		StrokeID: st.ID,
		Tool:     st.Tool,
		Color:    st.Color,
		Points:   st.Points,
	})
}

// Disconnect removes sid and announces the departure. No-op for unknown sessions.
func (r *Room) Disconnect(ctx context.Context, sid core.SessionID) {
	ms, ok := r.sessions.Remove(sid)
	if !ok {
		return
	}
	count := r.sessions.Count()
	r.broadcast("", userCountMsg{Type: msgUserLeft, UserCount: count})
	r.log.Info().Str("sid", string(sid)).Str("participant", ms.Meta().Participant).Int("count", count).Msg("participant left")
	r.publish(ctx, events.Left)
	if count == 0 {
		r.onEmpty(ctx)
	}
}

// Restore re-arms the in-process timer from the persisted wakeup slot.
func (r *Room) Restore(ctx context.Context) error {
	at, err := r.store.ArmedWakeup(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	r.alarm.arm(at)
	r.log.Info().Time("fire_at", at).Msg("wakeup restored")
	if r.sessions.Count() == 0 {
		r.reclaimIdle(ctx, at)
	}
	return nil
}

// Stop releases the timer without touching persisted state.
func (r *Room) Stop() { r.alarm.stop() }

package app

import (
	"context"
	"sync"

	"github.com/dkeye/Pairwise/internal/core"
	"github.com/rs/zerolog/log"
)

type eventKind int

const (
	evConnect eventKind = iota
	evMessage
	evDisconnect
	evWakeup
	evRestore
)

type roomEvent struct {
	kind    eventKind
	session core.MemberSession
	sid     core.SessionID
	data    core.Frame
	gen     uint64
	reply   chan error
}

// roomActor serializes every event of one room id through a single
// goroutine. The queue is unbounded so producers never block.
type roomActor struct {
	// room is replaced only by the run goroutine, under mu.
	room    *Room
	newRoom func() *Room

	mu      sync.Mutex
	queue   []roomEvent
	stopped bool

	wake chan struct{}
	quit chan struct{}
}

func newRoomActor(newRoom func() *Room) *roomActor {
	return &roomActor{
		room:    newRoom(),
		newRoom: newRoom,
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
	}
}

// participants may be called from any goroutine.
func (a *roomActor) participants() int {
	a.mu.Lock()
	r := a.room
	a.mu.Unlock()
	return r.Count()
}

// enqueue returns false once the actor has stopped accepting events.
func (a *roomActor) enqueue(ev roomEvent) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return false
	}
	a.queue = append(a.queue, ev)
	select {
	case a.wake <- struct{}{}:
	default:
	}
	return true
}

func (a *roomActor) next() (roomEvent, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.queue) == 0 {
		return roomEvent{}, false
	}
	ev := a.queue[0]
	a.queue[0] = roomEvent{}
	a.queue = a.queue[1:]
	return ev, true
}

// tryStop marks the actor stopped if nothing is queued. Callers hold the
// manager lock so no new event can slip in between.
func (a *roomActor) tryStop() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.queue) > 0 {
		return false
	}
	a.stopped = true
	return true
}

// stop rejects pending connects and ends run.
func (a *roomActor) stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	pending := a.queue
	a.queue = nil
	a.mu.Unlock()

	for _, ev := range pending {
		if ev.reply != nil {
			ev.reply <- ErrRoomStopped
		}
	}
	close(a.quit)
}

// run processes events until the room is released or the actor stopped.
// release is asked to unregister the actor whenever the room has nothing
// left to do; it returns false if events arrived meanwhile.
func (a *roomActor) run(ctx context.Context, release func(*roomActor) bool) {
	defer func() { a.room.Stop() }()
	for {
		select {
		case <-a.quit:
			return
		case <-a.wake:
		}
		for {
			ev, ok := a.next()
			if !ok {
				break
			}
			a.handle(ctx, ev)
			if !a.room.Destroyed() && !a.room.Dormant() {
				continue
			}
			if release(a) {
				log.Debug().Str("module", "app.actor").Str("room", string(a.room.ID())).Msg("actor released")
				return
			}
			if a.room.Destroyed() {
				a.mu.Lock()
				a.room = a.newRoom()
				a.mu.Unlock()
			}
		}
	}
}

func (a *roomActor) handle(ctx context.Context, ev roomEvent) {
	switch ev.kind {
	case evConnect:
		ev.reply <- a.room.Connect(ctx, ev.session)
	case evMessage:
		a.room.Message(ctx, ev.sid, ev.data)
	case evDisconnect:
		a.room.Disconnect(ctx, ev.sid)
	case evWakeup:
		a.room.Wakeup(ctx, ev.gen)
	case evRestore:
		if err := a.room.Restore(ctx); err != nil {
			log.Error().Err(err).Str("module", "app.actor").Str("room", string(a.room.ID())).Msg("restore wakeup")
		}
	}
}

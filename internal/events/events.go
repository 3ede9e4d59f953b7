// Package events publishes room lifecycle notifications for external observers.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Pairwise/internal/domain"
)

type Type string

const (
	Activated Type = "activated"
	Joined    Type = "joined"
	Left      Type = "left"
	Destroyed Type = "destroyed"
)

type Event struct {
	Type         Type          `json:"type"`
	Room         domain.RoomID `json:"room"`
	Participants int           `json:"participants"`
	At           time.Time     `json:"at"`
}

// Publisher never reports failures to the caller; rooms must not depend on delivery.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) {}

// Recorder keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types lists recorded event types in publication order.
func (r *Recorder) Types() []Type {
	var out []Type
	for _, ev := range r.Events() {
		out = append(out, ev.Type)
	}
	return out
}

package app

import (
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// alarmGeneration is shared by every slot so that a generation never
// matches a slot it was not issued by, even across room incarnations.
var alarmGeneration atomic.Uint64

// alarmSlot is the in-process half of a room's single wakeup. Arming
// supersedes the previous timer; a fire carrying an older generation is
// stale and must be ignored by the owner.
type alarmSlot struct {
	clock clockwork.Clock
	fire  func(gen uint64)
	timer clockwork.Timer
	gen   uint64
	at    time.Time
}

func newAlarmSlot(clock clockwork.Clock, fire func(gen uint64)) *alarmSlot {
	return &alarmSlot{clock: clock, fire: fire}
}

func (a *alarmSlot) arm(at time.Time) {
	a.stop()
	gen := alarmGeneration.Add(1)
	d := at.Sub(a.clock.Now())
	if d < 0 {
		d = 0
	}
	a.gen, a.at = gen, at
	a.timer = a.clock.AfterFunc(d, func() { a.fire(gen) })
}

func (a *alarmSlot) stop() {
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer, a.gen, a.at = nil, 0, time.Time{}
}

func (a *alarmSlot) armed() bool { return a.timer != nil }

func (a *alarmSlot) deadline() (time.Time, bool) { return a.at, a.timer != nil }

// take consumes the pending wakeup if gen is the current one.
func (a *alarmSlot) take(gen uint64) bool {
	if a.timer == nil || gen != a.gen {
		return false
	}
	a.timer, a.gen, a.at = nil, 0, time.Time{}
	return true
}

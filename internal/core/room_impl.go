package core

import (
	"sync"

	"github.com/dkeye/Pairwise/internal/domain"
	"github.com/rs/zerolog/log"
)

// registryImpl is a threadsafe in-memory session set with a fixed capacity.
// It never closes adapter-owned resources.
type registryImpl struct {
	room     domain.RoomID
	capacity int
	mu       sync.RWMutex
	bySID    map[SessionID]MemberSession
	order    []SessionID
}

func NewSessionRegistry(room domain.RoomID, capacity int) SessionRegistry {
	return &registryImpl{
		room:     room,
		capacity: capacity,
		bySID:    make(map[SessionID]MemberSession),
	}
}

func (r *registryImpl) Admit(ms MemberSession) (domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.bySID) >= r.capacity {
		log.Info().Str("module", "core.registry").Str("room", string(r.room)).Str("sid", string(ms.ID())).Msg("admission rejected, room full")
		return "", ErrRoomFull
	}
	r.bySID[ms.ID()] = ms
	r.order = append(r.order, ms.ID())
	role := domain.RoleFor(len(r.bySID))
	ms.Meta().Role = role
	log.Info().Str("module", "core.registry").Str("room", string(r.room)).Str("sid", string(ms.ID())).Str("role", string(role)).Int("count", len(r.bySID)).Msg("session admitted")
	return role, nil
}

func (r *registryImpl) Remove(sid SessionID) (MemberSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.bySID[sid]
	if !ok {
		return nil, false
	}
	delete(r.bySID, sid)
	for i, id := range r.order {
		if id == sid {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	log.Info().Str("module", "core.registry").Str("room", string(r.room)).Str("sid", string(sid)).Int("count", len(r.bySID)).Msg("session removed")
	return ms, true
}

func (r *registryImpl) Get(sid SessionID) (MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ms, ok := r.bySID[sid]
	return ms, ok
}

func (r *registryImpl) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

// All returns sessions in admission order.
func (r *registryImpl) All() []MemberSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberSession, 0, len(r.order))
	for _, sid := range r.order {
		out = append(out, r.bySID[sid])
	}
	return out
}

func (r *registryImpl) Broadcast(from SessionID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for _, sid := range r.order {
		if sid == from {
			continue
		}
		m := r.bySID[sid]
		if err := m.Signal().TrySend(data); err != nil {
			log.Warn().Err(err).Str("module", "core.registry").Str("room", string(r.room)).Str("sid", string(sid)).Msg("send failed")
			res.Failed = append(res.Failed, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.registry").Str("room", string(r.room)).Str("from", string(from)).Int("sent_to", res.SendTo).Int("failed", len(res.Failed)).Msg("broadcast result")
	return res
}

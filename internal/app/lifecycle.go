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
)

// onOccupied runs when occupancy goes from 0 to 1. A room without
// deadline metadata is activated; otherwise the remembered TTL deadline
// takes the wakeup slot back from any idle cleanup.
func (r *Room) onOccupied(ctx context.Context) {
	md, err := r.store.DeadlineMetadata(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		r.activate(ctx)
		return
	}
	if err != nil {
		r.log.Error().Err(err).Msg("read deadline metadata on join")
		return
	}
	deadline := md.TTLDeadline()
	if !deadline.After(r.clock.Now()) {
		return
	}
	md.Kind = domain.DeadlineTTL
	r.arm(ctx, deadline, md)
	r.log.Info().Time("fire_at", deadline).Msg("ttl wakeup restored")
}

func (r *Room) activate(ctx context.Context) {
	now := r.clock.Now()
	deadline := now.Add(r.settings.TTL)
	r.arm(ctx, deadline, domain.DeadlineMetadata{
		Kind:         domain.DeadlineTTL,
		CreatedAt:    now.UnixMilli(),
		TTLExpiresAt: deadline.UnixMilli(),
	})
	r.log.Info().Time("ttl_expires_at", deadline).Msg("room activated")
	r.publish(ctx, events.Activated)
}

// onEmpty runs when the last session leaves.
func (r *Room) onEmpty(ctx context.Context) {
	md, err := r.store.DeadlineMetadata(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("read deadline metadata on empty")
		return
	}
	now := r.clock.Now()
	deadline := md.TTLDeadline()
	if deadline.Sub(now) < r.settings.CleanupWindow {
		// The TTL wakeup is sooner than a cleanup would be. It can only be
		// missing after a false alarm fired past the TTL.
		if !r.alarm.armed() {
			md.Kind = domain.DeadlineTTL
			r.arm(ctx, maxTime(deadline, now), md)
		}
		return
	}
	at := now.Add(r.settings.CleanupWindow)
	md.Kind = domain.DeadlineIdleCleanup
	r.arm(ctx, at, md)
	r.log.Info().Time("fire_at", at).Msg("idle cleanup armed")
}

// reclaimIdle moves a restored, empty room from its ttl wakeup at to an
// idle cleanup when the cleanup would come first. Connections do not
// survive a restart, so the room is treated as just emptied.
func (r *Room) reclaimIdle(ctx context.Context, at time.Time) {
	md, err := r.store.DeadlineMetadata(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("read deadline metadata on restore")
		return
	}
	if md.Kind != domain.DeadlineTTL {
		return
	}
	idle := r.clock.Now().Add(r.settings.CleanupWindow)
	if !at.After(idle) {
		return
	}
	md.Kind = domain.DeadlineIdleCleanup
	r.arm(ctx, idle, md)
	r.log.Info().Time("fire_at", idle).Msg("restored empty room, idle cleanup armed")
}

// Wakeup reconciles a fired wakeup. Stale generations are ignored.
func (r *Room) Wakeup(ctx context.Context, gen uint64) {
	if r.destroyed || !r.alarm.take(gen) {
		r.log.Debug().Uint64("gen", gen).Msg("stale wakeup ignored")
		return
	}
	md, err := r.store.DeadlineMetadata(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		md.Kind = domain.DeadlineTTL
	case err != nil:
		r.log.Error().Err(err).Msg("read deadline metadata on wakeup, retrying later")
		r.armWakeup(ctx, r.clock.Now().Add(r.settings.CleanupWindow))
		return
	}

	now := r.clock.Now()
	count := r.sessions.Count()
	if md.Kind == domain.DeadlineIdleCleanup && count > 0 {
		deadline := md.TTLDeadline()
		if deadline.After(now) {
			md.Kind = domain.DeadlineTTL
			r.arm(ctx, deadline, md)
		}
		r.log.Info().Int("count", count).Msg("idle cleanup false alarm")
		return
	}
	r.destroy(ctx, md.Kind)
}

// destroy wipes storage, then closes every session. A failed wipe leaves
// everything in place and retries one cleanup window later.
func (r *Room) destroy(ctx context.Context, kind domain.DeadlineKind) {
	if err := r.store.Wipe(ctx); err != nil {
		at := r.clock.Now().Add(r.settings.CleanupWindow)
		r.log.Error().Err(err).Time("retry_at", at).Msg("wipe failed, room kept")
		r.armWakeup(ctx, at)
		return
	}
	sessions := r.sessions.All()
	for _, ms := range sessions {
		r.sessions.Remove(ms.ID())
		ms.Signal().CloseWith(closeNormal, reasonExpired)
	}
	discarded := r.active.len()
	r.active.clear()
	r.alarm.stop()
	r.destroyed = true
	r.log.Info().Str("kind", string(kind)).Int("closed", len(sessions)).Int("active_strokes", discarded).Msg("room destroyed")
	r.publish(ctx, events.Destroyed)
}

// arm overwrites the wakeup slot and the deadline metadata together.
func (r *Room) arm(ctx context.Context, at time.Time, md domain.DeadlineMetadata) {
	r.armWakeup(ctx, at)
	if err := r.store.SetDeadlineMetadata(ctx, md); err != nil {
		r.log.Error().Err(err).Str("kind", string(md.Kind)).Msg("write deadline metadata")
	}
}

// armWakeup keeps the timer armed even when persisting the slot fails.
func (r *Room) armWakeup(ctx context.Context, at time.Time) {
	if err := r.store.ArmWakeup(ctx, at); err != nil {
		r.log.Error().Err(err).Time("fire_at", at).Msg("persist wakeup")
	}
	r.alarm.arm(at)
}

func (r *Room) send(ms core.MemberSession, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		r.log.Error().Err(err).Msg("marshal outbound message")
		return
	}
	if err := ms.Signal().TrySend(b); err != nil {
		r.log.Warn().Err(err).Str("sid", string(ms.ID())).Msg("send failed")
	}
}

func (r *Room) broadcast(from core.SessionID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		r.log.Error().Err(err).Msg("marshal broadcast")
		return
	}
	r.sessions.Broadcast(from, b)
}

func (r *Room) publish(ctx context.Context, t events.Type) {
	r.events.Publish(ctx, events.Event{
		Type:         t,
		Room:         r.id,
		Participants: r.sessions.Count(),
		At:           r.clock.Now(),
	})
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

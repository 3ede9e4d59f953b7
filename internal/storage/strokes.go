package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Pairwise/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	strokePrefix = "stroke:"
	deadlineKey  = "deadline_metadata"
)

// StrokeStore is the typed view of one room's storage: completed strokes,
// the deadline metadata record and the wakeup slot.
type StrokeStore struct {
	room  domain.RoomID
	store Store
}

func NewStrokeStore(room domain.RoomID, store Store) *StrokeStore {
	return &StrokeStore{room: room, store: store}
}

// Persist writes a completed stroke keyed by its id, overwriting any earlier copy.
func (s *StrokeStore) Persist(ctx context.Context, stroke domain.Stroke) error {
	data, err := encode(stroke)
	if err != nil {
		return fmt.Errorf("storage: encode stroke %s: %w", stroke.ID, err)
	}
	if err := s.store.Put(ctx, s.room, strokePrefix+stroke.ID, data); err != nil {
		return fmt.Errorf("storage: persist stroke %s: %w", stroke.ID, err)
	}
	return nil
}

// Completed reports whether a stroke with id was already persisted.
func (s *StrokeStore) Completed(ctx context.Context, id string) (bool, error) {
	_, err := s.store.Get(ctx, s.room, strokePrefix+id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("storage: lookup stroke %s: %w", id, err)
	}
}

// LoadAll returns every persisted stroke. Order is not significant.
// Undecodable records are logged and skipped.
func (s *StrokeStore) LoadAll(ctx context.Context) ([]domain.Stroke, error) {
	raw, err := s.store.List(ctx, s.room, strokePrefix)
	if err != nil {
		return nil, fmt.Errorf("storage: load strokes: %w", err)
	}
	out := make([]domain.Stroke, 0, len(raw))
	for key, data := range raw {
		var st domain.Stroke
		if err := decode(data, &st); err != nil {
			log.Error().Err(err).Str("module", "storage.strokes").Str("room", string(s.room)).Str("key", key).Msg("skip undecodable stroke")
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

// Wipe deletes all strokes, the deadline metadata and the wakeup slot.
func (s *StrokeStore) Wipe(ctx context.Context) error {
	if err := s.store.DeleteAll(ctx, s.room); err != nil {
		return fmt.Errorf("storage: wipe: %w", err)
	}
	return nil
}

// DeadlineMetadata returns ErrNotFound when the room was never activated.
func (s *StrokeStore) DeadlineMetadata(ctx context.Context) (domain.DeadlineMetadata, error) {
	var md domain.DeadlineMetadata
	data, err := s.store.Get(ctx, s.room, deadlineKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return md, ErrNotFound
		}
		return md, fmt.Errorf("storage: get deadline metadata: %w", err)
	}
	if err := decode(data, &md); err != nil {
		return md, fmt.Errorf("storage: decode deadline metadata: %w", err)
	}
	return md, nil
}

func (s *StrokeStore) SetDeadlineMetadata(ctx context.Context, md domain.DeadlineMetadata) error {
	data, err := encode(md)
	if err != nil {
		return fmt.Errorf("storage: encode deadline metadata: %w", err)
	}
	if err := s.store.Put(ctx, s.room, deadlineKey, data); err != nil {
		return fmt.Errorf("storage: set deadline metadata: %w", err)
	}
	return nil
}

// ArmWakeup overwrites the room's single wakeup slot.
func (s *StrokeStore) ArmWakeup(ctx context.Context, at time.Time) error {
	if err := s.store.SetAlarm(ctx, s.room, at); err != nil {
		return fmt.Errorf("storage: arm wakeup: %w", err)
	}
	return nil
}

// ArmedWakeup returns ErrNotFound when nothing is armed.
func (s *StrokeStore) ArmedWakeup(ctx context.Context) (time.Time, error) {
	at, err := s.store.GetAlarm(ctx, s.room)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("storage: get wakeup: %w", err)
	}
	return at, nil
}


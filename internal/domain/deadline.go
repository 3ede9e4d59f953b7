package domain

import "time"

// DeadlineKind records why the room's single wakeup was armed.
type DeadlineKind string

const (
	DeadlineTTL         DeadlineKind = "ttl"
	DeadlineIdleCleanup DeadlineKind = "idle_cleanup"
)

// DeadlineMetadata pairs with the one armed wakeup of a room.
// Timestamps are unix milliseconds.
type DeadlineMetadata struct {
	Kind         DeadlineKind `json:"kind"`
	CreatedAt    int64        `json:"createdAt"`
	TTLExpiresAt int64        `json:"ttlExpiresAt"`
}

func (m DeadlineMetadata) TTLDeadline() time.Time {
	return time.UnixMilli(m.TTLExpiresAt)
}

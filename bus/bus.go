// Package bus carries best-effort stage-completion notifications. Delivery is
// at-least-once and unordered across subjects; nothing is persisted. The
// artifact store is the durable source of truth; consumers that need
// guaranteed visibility poll the store, and subscribers must tolerate
// duplicate delivery.
package bus

import (
	"context"
	"time"
)

// Event is one stage completion or failure notification.
type Event struct {
	SessionID string    `json:"session_id"`
	Type      string    `json:"type"` // e.g. "asr_completed", "scoring_failed"
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DoneSubject is the subject a stage publishes on: "<stage>.done". Completion
// and failure events share the subject and differ by Type.
func DoneSubject(stage string) string { return stage + ".done" }

func CompletedType(stage string) string { return stage + "_completed" }
func FailedType(stage string) string    { return stage + "_failed" }

// Bus publishes and subscribes to stage events. Publish errors never roll
// back the publishing stage; callers log and continue.
type Bus interface {
	Publish(ctx context.Context, subject string, ev Event) error
	// Subscribe returns a buffered event channel for subject and a cancel
	// func that stops delivery and closes the channel. Events are dropped,
	// not queued, when a subscriber falls behind.
	Subscribe(subject string) (<-chan Event, func(), error)
	// Connected reports bus liveness for health checks.
	Connected() bool
}

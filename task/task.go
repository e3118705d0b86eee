// Package task tracks the lifecycle of one background stage invocation,
// independent of the session artifacts the stage produces. Records are owned
// exclusively by the worker that created them and are never deleted by this
// core; eviction is a store TTL policy.
package task

import (
	"context"
	"errors"
	"time"
)

// State is a task lifecycle state. Allowed transitions:
// accepted -> processing -> completed | failed. Completed and failed are
// terminal.
type State string

const (
	StateAccepted   State = "accepted"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Ordinal orders states for the stale-write guard. Both terminal states share
// the top ordinal.
func (s State) Ordinal() int {
	switch s {
	case StateAccepted:
		return 0
	case StateProcessing:
		return 1
	case StateCompleted, StateFailed:
		return 2
	default:
		return -1
	}
}

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Record is the full lifecycle record for one task. Every transition replaces
// the record wholesale: a field not set on the update is erased for readers.
type Record struct {
	TaskID    string    `json:"task_id"`
	SessionID string    `json:"session_id"`
	Stage     string    `json:"stage"`
	State     State     `json:"status"`
	Message   string    `json:"message"`
	Result    any       `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrNotFound is returned when no record exists for a task ID.
var ErrNotFound = errors.New("task not found")

// Registry stores task records. Implementations enforce the monotonic-state
// policy: a transition whose ordinal is below the stored one, or any
// transition out of a terminal state, is dropped silently (logged by the
// implementation) so the recorded sequence for a task is always a prefix of
// accepted, processing, completed|failed. There is no other concurrency
// guard; the record belongs to a single worker.
type Registry interface {
	// Create writes the initial accepted record. It runs synchronously before
	// any background work is dispatched so an immediate status poll finds it.
	Create(ctx context.Context, rec Record) error
	// Transition replaces the record with the given state, message and
	// optional result. On StateFailed the message is also recorded as the
	// error. Stale transitions are dropped per the monotonic policy.
	Transition(ctx context.Context, taskID string, next State, message string, result any) error
	// Get returns the last recorded state, or ErrNotFound.
	Get(ctx context.Context, taskID string) (Record, error)
	// Ping reports registry reachability for health checks.
	Ping(ctx context.Context) error
}

// advance builds the replacement record for a transition, carrying over only
// task identity. A nil result erases any previous result.
func advance(cur Record, next State, message string, result any, now time.Time) Record {
	rec := Record{
		TaskID:    cur.TaskID,
		SessionID: cur.SessionID,
		Stage:     cur.Stage,
		State:     next,
		Message:   message,
		Result:    result,
		CreatedAt: cur.CreatedAt,
		UpdatedAt: now,
	}
	if next == StateFailed {
		rec.Error = message
	}
	return rec
}

// stale reports whether applying next on top of cur would violate the
// monotonic policy. Equal-ordinal overwrites are allowed so a worker can
// refresh the processing message.
func stale(cur Record, next State) bool {
	if cur.State.Terminal() {
		return true
	}
	return next.Ordinal() < cur.State.Ordinal()
}

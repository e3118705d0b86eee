// Package artifact defines the per-session analysis outputs and the keyed
// store every stage writes them through. Keys are (session, stage); a put is
// an unconditional single-key overwrite and there are no cross-key
// transactions, so consumers that need several artifacts must check presence
// of all of them before computing.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Key identifies which stage produced an artifact.
type Key string

const (
	KeyTranscript Key = "transcript"
	KeyProsody    Key = "prosody"
	KeyFluency    Key = "fluency"
	KeyScoring    Key = "scoring"
	KeyDrills     Key = "drills"
	KeyClip       Key = "clip"
	KeyReport     Key = "report"
	KeyEmbedding  Key = "embedding"
)

// payloadTypes maps each stage key to the record type accepted at the store
// boundary. Put rejects anything else.
var payloadTypes = map[Key]reflect.Type{
	KeyTranscript: reflect.TypeOf(Transcript{}),
	KeyProsody:    reflect.TypeOf(Prosody{}),
	KeyFluency:    reflect.TypeOf(Fluency{}),
	KeyScoring:    reflect.TypeOf(ScoringResult{}),
	KeyDrills:     reflect.TypeOf(DrillSet{}),
	KeyClip:       reflect.TypeOf(ClipResult{}),
	KeyReport:     reflect.TypeOf(ReportResult{}),
	KeyEmbedding:  reflect.TypeOf(Embedding{}),
}

// ParseKey validates a stage key name, typically from a request path.
func ParseKey(name string) (Key, bool) {
	k := Key(name)
	_, ok := payloadTypes[k]
	return k, ok
}

// NewPayload returns a pointer to a zero value of the record type registered
// for key, suitable as a Get target when the caller only has the key name.
func NewPayload(key Key) (any, bool) {
	t, ok := payloadTypes[key]
	if !ok {
		return nil, false
	}
	return reflect.New(t).Interface(), true
}

// ErrNotFound is returned when no artifact exists for a (session, key) pair.
var ErrNotFound = errors.New("artifact not found")

// MissingDependencyError reports upstream artifacts that a stage needs but
// which are not present in the store.
type MissingDependencyError struct {
	SessionID string
	Missing   []Key
}

func (e *MissingDependencyError) Error() string {
	names := make([]string, len(e.Missing))
	for i, k := range e.Missing {
		names[i] = string(k)
	}
	return fmt.Sprintf("session %s: missing required analysis data: %s",
		e.SessionID, strings.Join(names, ", "))
}

// Envelope wraps a payload with its storage metadata.
type Envelope struct {
	SessionID string    `json:"session_id"`
	Stage     Key       `json:"stage_key"`
	StoredAt  time.Time `json:"stored_at"`
}

// Store is the session artifact store. Implementations guarantee single-key
// atomic writes only; last write wins on concurrent puts to the same key.
type Store interface {
	// Put overwrites the artifact for (sessionID, key). The payload must be
	// the record type registered for key (value or pointer).
	Put(ctx context.Context, sessionID string, key Key, payload any) error
	// Get unmarshals the artifact for (sessionID, key) into out, which must
	// be a pointer to the registered record type. Returns ErrNotFound when
	// the artifact does not exist.
	Get(ctx context.Context, sessionID string, key Key, out any) error
	// Exists reports whether an artifact is present without decoding it.
	Exists(ctx context.Context, sessionID string, key Key) (bool, error)
	// Sessions lists the session IDs that have an artifact under key.
	Sessions(ctx context.Context, key Key) ([]string, error)
	// Ping reports store reachability for health checks.
	Ping(ctx context.Context) error
}

// RequireAll returns a MissingDependencyError naming every absent key, or nil
// when all are present. Stages that fuse upstream artifacts call this before
// computing; proceeding on a partial snapshot is never allowed.
func RequireAll(ctx context.Context, s Store, sessionID string, keys ...Key) error {
	var missing []Key
	for _, k := range keys {
		ok, err := s.Exists(ctx, sessionID, k)
		if err != nil {
			return fmt.Errorf("check %s:%s: %w", k, sessionID, err)
		}
		if !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return &MissingDependencyError{SessionID: sessionID, Missing: missing}
	}
	return nil
}

// checkPayload validates a payload against the registered type for key.
func checkPayload(key Key, payload any) error {
	want, ok := payloadTypes[key]
	if !ok {
		return fmt.Errorf("unknown stage key %q", key)
	}
	got := reflect.TypeOf(payload)
	for got != nil && got.Kind() == reflect.Ptr {
		got = got.Elem()
	}
	if got != want {
		return fmt.Errorf("stage %s expects %s payload, got %T", key, want.Name(), payload)
	}
	return nil
}

// checkOut validates an output target against the registered type for key.
func checkOut(key Key, out any) error {
	want, ok := payloadTypes[key]
	if !ok {
		return fmt.Errorf("unknown stage key %q", key)
	}
	got := reflect.TypeOf(out)
	if got == nil || got.Kind() != reflect.Ptr || got.Elem() != want {
		return fmt.Errorf("stage %s requires *%s target, got %T", key, want.Name(), out)
	}
	return nil
}

// storageKey is the flat key layout shared by backends: "<stage>:<session>",
// e.g. "transcript:sess-42".
func storageKey(sessionID string, key Key) string {
	return string(key) + ":" + sessionID
}

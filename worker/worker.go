// Package worker implements the lifecycle protocol shared by every pipeline
// stage: synchronous accept, detached bounded execution, task transitions,
// artifact write and best-effort event publish.
package worker

import (
	"context"

	"github.com/speechcoach/pipeline/artifact"
)

// Request is a stage submission. Each stage defines its own request type;
// Validate runs synchronously before a task record is created so malformed
// requests never reach background execution.
type Request interface {
	Session() string
	Validate() error
}

// Stage is one pipeline step. Run performs (or delegates) the computation and
// returns the artifact payload to persist under ArtifactKey.
type Stage interface {
	Name() string
	ArtifactKey() artifact.Key
	Run(ctx context.Context, req Request) (any, error)
}

// ValidationError marks a request rejected before background work started.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Ack is the synchronous accept response.
type Ack struct {
	SessionID string `json:"session_id"`
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/speechcoach/pipeline/artifact"
	"github.com/speechcoach/pipeline/bus"
	"github.com/speechcoach/pipeline/task"
)

// Coordinator owns the submit/execute split. Submit validates, records the
// accepted task and returns immediately; the computation runs detached on a
// semaphore-bounded pool. There is no cancellation once a stage starts and no
// retry on failure; re-submission is the caller's job.
//
// The task transition and the artifact write are deliberately not
// transactional: an artifact can exist while its task still reads processing,
// and a failed task can coexist with a stale artifact from an earlier run.
type Coordinator struct {
	tasks task.Registry
	store artifact.Store
	bus   bus.Bus
	sem   *semaphore.Weighted
	wg    sync.WaitGroup
	now   func() time.Time
}

func NewCoordinator(tasks task.Registry, store artifact.Store, b bus.Bus, maxConcurrent int64) *Coordinator {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Coordinator{
		tasks: tasks,
		store: store,
		bus:   b,
		sem:   semaphore.NewWeighted(maxConcurrent),
		now:   time.Now,
	}
}

// Submit accepts a stage request. The accepted record is written before the
// background goroutine is spawned, so a status poll immediately after submit
// always finds it. A validation failure or an unreachable registry fails the
// accept synchronously; nothing else does.
func (c *Coordinator) Submit(ctx context.Context, stage Stage, req Request) (Ack, error) {
	if err := req.Validate(); err != nil {
		return Ack{}, &ValidationError{Reason: err.Error()}
	}

	taskID := uuid.NewString()
	rec := task.Record{
		TaskID:    taskID,
		SessionID: req.Session(),
		Stage:     stage.Name(),
		State:     task.StateAccepted,
		Message:   fmt.Sprintf("%s analysis accepted", stage.Name()),
	}
	if err := c.tasks.Create(ctx, rec); err != nil {
		return Ack{}, fmt.Errorf("accept %s task: %w", stage.Name(), err)
	}

	c.wg.Add(1)
	go c.execute(stage, req, taskID)

	return Ack{
		SessionID: req.Session(),
		TaskID:    taskID,
		Status:    "accepted",
		Message:   fmt.Sprintf("%s analysis started", stage.Name()),
	}, nil
}

// Wait blocks until all in-flight executions finish. Used on shutdown and by
// tests to join detached work.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) execute(stage Stage, req Request, taskID string) {
	defer c.wg.Done()

	// Detached from the accept request: once started, a stage runs to
	// completion or failure (engine clients own their timeouts).
	ctx := context.Background()
	logger := log.WithFields(log.Fields{
		"stage":      stage.Name(),
		"session_id": req.Session(),
		"task_id":    taskID,
	})

	if err := c.sem.Acquire(ctx, 1); err != nil {
		c.transition(ctx, logger, taskID, task.StateFailed, err.Error(), nil)
		return
	}
	defer c.sem.Release(1)

	c.transition(ctx, logger, taskID, task.StateProcessing,
		fmt.Sprintf("Running %s analysis...", stage.Name()), nil)

	payload, err := runStage(ctx, stage, req)
	if err != nil {
		logger.WithError(err).Error("stage computation failed")
		c.transition(ctx, logger, taskID, task.StateFailed, err.Error(), nil)
		c.publish(ctx, logger, stage.Name(), bus.Event{
			SessionID: req.Session(),
			Type:      bus.FailedType(stage.Name()),
			Data:      map[string]any{"error": err.Error()},
			Timestamp: c.now(),
		})
		return
	}

	if err := c.store.Put(ctx, req.Session(), stage.ArtifactKey(), payload); err != nil {
		logger.WithError(err).Error("artifact write failed")
		c.transition(ctx, logger, taskID, task.StateFailed, err.Error(), nil)
		c.publish(ctx, logger, stage.Name(), bus.Event{
			SessionID: req.Session(),
			Type:      bus.FailedType(stage.Name()),
			Data:      map[string]any{"error": err.Error()},
			Timestamp: c.now(),
		})
		return
	}

	c.transition(ctx, logger, taskID, task.StateCompleted,
		fmt.Sprintf("%s analysis completed", stage.Name()), payload)
	c.publish(ctx, logger, stage.Name(), bus.Event{
		SessionID: req.Session(),
		Type:      bus.CompletedType(stage.Name()),
		Data:      payload,
		Timestamp: c.now(),
	})
	logger.Info("stage completed")
}

// runStage recovers panics from stage code so a domain failure can never
// crash the process; it surfaces as a failed task like any other error.
func runStage(ctx context.Context, stage Stage, req Request) (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s stage panicked: %v", stage.Name(), r)
		}
	}()
	return stage.Run(ctx, req)
}

// transition applies a lifecycle update. On the async path a registry error
// can only be logged; the stage outcome stands.
func (c *Coordinator) transition(ctx context.Context, logger *log.Entry, taskID string, next task.State, message string, result any) {
	if err := c.tasks.Transition(ctx, taskID, next, message, result); err != nil {
		logger.WithError(err).WithField("to", next).Error("task transition failed")
	}
}

// publish is best-effort relative to the stage's own success: a publish
// failure is logged and swallowed, never rolled back into the task state.
// Consumers needing guaranteed visibility poll the artifact store.
func (c *Coordinator) publish(ctx context.Context, logger *log.Entry, stage string, ev bus.Event) {
	if err := c.bus.Publish(ctx, bus.DoneSubject(stage), ev); err != nil {
		logger.WithError(err).Warn("event publish failed")
	}
}

package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/speechcoach/pipeline/artifact"
	"github.com/speechcoach/pipeline/bus"
	"github.com/speechcoach/pipeline/task"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubRequest struct {
	sessionID string
	invalid   bool
}

func (r *stubRequest) Session() string { return r.sessionID }

func (r *stubRequest) Validate() error {
	if r.invalid {
		return errors.New("session_id is required")
	}
	return nil
}

type stubStage struct {
	name string
	run  func(ctx context.Context, req Request) (any, error)
}

func (s *stubStage) Name() string              { return s.name }
func (s *stubStage) ArtifactKey() artifact.Key { return artifact.KeyTranscript }
func (s *stubStage) Run(ctx context.Context, req Request) (any, error) {
	return s.run(ctx, req)
}

type failingBus struct{}

func (failingBus) Publish(ctx context.Context, subject string, ev bus.Event) error {
	return errors.New("broker unreachable")
}
func (failingBus) Subscribe(subject string) (<-chan bus.Event, func(), error) {
	return nil, nil, errors.New("broker unreachable")
}
func (failingBus) Connected() bool { return false }

type fixture struct {
	tasks *task.MemoryRegistry
	store *artifact.MemoryStore
	bus   *bus.MemoryBus
	coord *Coordinator
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		tasks: task.NewMemoryRegistry(),
		store: artifact.NewMemoryStore(),
		bus:   bus.NewMemoryBus(),
	}
	f.coord = NewCoordinator(f.tasks, f.store, f.bus, 2)
	t.Cleanup(f.bus.Close)
	return f
}

func TestSubmitAcceptsImmediately(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	started := make(chan struct{})
	release := make(chan struct{})
	stage := &stubStage{name: "asr", run: func(ctx context.Context, req Request) (any, error) {
		close(started)
		<-release
		return &artifact.Transcript{Text: "hello"}, nil
	}}

	ack, err := f.coord.Submit(ctx, stage, &stubRequest{sessionID: "sess-1"})
	require.NoError(t, err)
	assert.Equal(t, "accepted", ack.Status)
	assert.Equal(t, "sess-1", ack.SessionID)
	assert.NotEmpty(t, ack.TaskID)

	// The task record is visible before the stage finishes.
	rec, err := f.tasks.Get(ctx, ack.TaskID)
	require.NoError(t, err)
	assert.Contains(t, []task.State{task.StateAccepted, task.StateProcessing}, rec.State)

	<-started
	close(release)
	f.coord.Wait()
}

func TestSuccessPath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	events, cancel, err := f.bus.Subscribe(bus.DoneSubject("asr"))
	require.NoError(t, err)
	defer cancel()

	stage := &stubStage{name: "asr", run: func(ctx context.Context, req Request) (any, error) {
		return &artifact.Transcript{Text: "hello", Confidence: 0.9}, nil
	}}
	ack, err := f.coord.Submit(ctx, stage, &stubRequest{sessionID: "sess-1"})
	require.NoError(t, err)
	f.coord.Wait()

	rec, err := f.tasks.Get(ctx, ack.TaskID)
	require.NoError(t, err)
	assert.Equal(t, task.StateCompleted, rec.State)
	assert.Equal(t, "asr analysis completed", rec.Message)
	assert.NotNil(t, rec.Result)

	var out artifact.Transcript
	require.NoError(t, f.store.Get(ctx, "sess-1", artifact.KeyTranscript, &out))
	assert.Equal(t, "hello", out.Text)

	select {
	case ev := <-events:
		assert.Equal(t, bus.CompletedType("asr"), ev.Type)
		assert.Equal(t, "sess-1", ev.SessionID)
	case <-time.After(time.Second):
		t.Fatal("no completion event")
	}
}

func TestValidationFailureIsSynchronous(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	stage := &stubStage{name: "asr", run: func(ctx context.Context, req Request) (any, error) {
		t.Error("stage ran for an invalid request")
		return nil, nil
	}}
	_, err := f.coord.Submit(ctx, stage, &stubRequest{invalid: true})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "session_id is required", verr.Reason)
	f.coord.Wait()
}

func TestFailurePath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	events, cancel, err := f.bus.Subscribe(bus.DoneSubject("asr"))
	require.NoError(t, err)
	defer cancel()

	stage := &stubStage{name: "asr", run: func(ctx context.Context, req Request) (any, error) {
		return nil, errors.New("engine unreachable")
	}}
	ack, err := f.coord.Submit(ctx, stage, &stubRequest{sessionID: "sess-1"})
	require.NoError(t, err)
	f.coord.Wait()

	rec, err := f.tasks.Get(ctx, ack.TaskID)
	require.NoError(t, err)
	assert.Equal(t, task.StateFailed, rec.State)
	assert.Equal(t, "engine unreachable", rec.Error)

	ok, err := f.store.Exists(ctx, "sess-1", artifact.KeyTranscript)
	require.NoError(t, err)
	assert.False(t, ok)

	select {
	case ev := <-events:
		assert.Equal(t, bus.FailedType("asr"), ev.Type)
	case <-time.After(time.Second):
		t.Fatal("no failure event")
	}
}

func TestPanicBecomesFailedTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	stage := &stubStage{name: "prosody", run: func(ctx context.Context, req Request) (any, error) {
		panic("nil deref in feature code")
	}}
	ack, err := f.coord.Submit(ctx, stage, &stubRequest{sessionID: "sess-1"})
	require.NoError(t, err)
	f.coord.Wait()

	rec, err := f.tasks.Get(ctx, ack.TaskID)
	require.NoError(t, err)
	assert.Equal(t, task.StateFailed, rec.State)
	assert.Contains(t, rec.Error, "prosody stage panicked")
}

func TestBusFailureDoesNotFailStage(t *testing.T) {
	ctx := context.Background()
	tasks := task.NewMemoryRegistry()
	store := artifact.NewMemoryStore()
	coord := NewCoordinator(tasks, store, failingBus{}, 2)

	stage := &stubStage{name: "asr", run: func(ctx context.Context, req Request) (any, error) {
		return &artifact.Transcript{Text: "hello"}, nil
	}}
	ack, err := coord.Submit(ctx, stage, &stubRequest{sessionID: "sess-1"})
	require.NoError(t, err)
	coord.Wait()

	// The task completes and the artifact is readable even though every
	// publish failed; events are best-effort.
	rec, err := tasks.Get(ctx, ack.TaskID)
	require.NoError(t, err)
	assert.Equal(t, task.StateCompleted, rec.State)

	var out artifact.Transcript
	require.NoError(t, store.Get(ctx, "sess-1", artifact.KeyTranscript, &out))
	assert.Equal(t, "hello", out.Text)
}

func TestConcurrencyBound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	release := make(chan struct{})
	running := make(chan struct{}, 8)
	stage := &stubStage{name: "asr", run: func(ctx context.Context, req Request) (any, error) {
		running <- struct{}{}
		<-release
		return &artifact.Transcript{Text: "ok"}, nil
	}}

	for i := 0; i < 5; i++ {
		_, err := f.coord.Submit(ctx, stage, &stubRequest{sessionID: "sess-1"})
		require.NoError(t, err)
	}

	// Pool size is 2; no third execution may start while two are blocked.
	<-running
	<-running
	select {
	case <-running:
		t.Fatal("more stages running than the pool allows")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	f.coord.Wait()
}

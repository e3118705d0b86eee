package bus

import (
	"context"
	"testing"
	"time"
)

func recvEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishSubscribe(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	ch, cancel, err := b.Subscribe(DoneSubject("asr"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	want := Event{
		SessionID: "sess-1",
		Type:      CompletedType("asr"),
		Data:      map[string]any{"text": "hello"},
		Timestamp: time.Now(),
	}
	if err := b.Publish(context.Background(), DoneSubject("asr"), want); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got := recvEvent(t, ch)
	if got.SessionID != want.SessionID || got.Type != want.Type {
		t.Errorf("got event %+v, want session %q type %q", got, want.SessionID, want.Type)
	}
}

func TestSubjectIsolation(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	asrCh, cancelASR, _ := b.Subscribe(DoneSubject("asr"))
	defer cancelASR()
	prosodyCh, cancelProsody, _ := b.Subscribe(DoneSubject("prosody"))
	defer cancelProsody()

	b.Publish(context.Background(), DoneSubject("asr"), Event{SessionID: "sess-1", Type: CompletedType("asr")})

	recvEvent(t, asrCh)
	select {
	case ev := <-prosodyCh:
		t.Errorf("prosody subscriber got unrelated event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFanout(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	subject := DoneSubject("scoring")
	ch1, cancel1, _ := b.Subscribe(subject)
	defer cancel1()
	ch2, cancel2, _ := b.Subscribe(subject)
	defer cancel2()

	b.Publish(context.Background(), subject, Event{SessionID: "sess-1", Type: CompletedType("scoring")})

	for _, ch := range []<-chan Event{ch1, ch2} {
		if ev := recvEvent(t, ch); ev.SessionID != "sess-1" {
			t.Errorf("got session %q, want sess-1", ev.SessionID)
		}
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	subject := DoneSubject("asr")
	ch, cancel, _ := b.Subscribe(subject)
	defer cancel()

	// Overfill the buffer; extra events drop instead of blocking.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*2; i++ {
			b.Publish(context.Background(), subject, Event{SessionID: "sess-1"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			if received == 0 || received > subscriberBuffer {
				t.Errorf("received %d events, want 1..%d", received, subscriberBuffer)
			}
			return
		}
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	subject := DoneSubject("asr")
	ch, cancel, _ := b.Subscribe(subject)
	cancel()

	if _, open := <-ch; open {
		t.Error("channel still open after cancel")
	}

	// Publishing after cancel must not panic on the closed channel.
	if err := b.Publish(context.Background(), subject, Event{SessionID: "sess-1"}); err != nil {
		t.Fatalf("publish after cancel: %v", err)
	}
}

func TestSubjectAndTypeNames(t *testing.T) {
	if got := DoneSubject("asr"); got != "asr.done" {
		t.Errorf("DoneSubject = %q, want asr.done", got)
	}
	if got := CompletedType("asr"); got != "asr_completed" {
		t.Errorf("CompletedType = %q, want asr_completed", got)
	}
	if got := FailedType("prosody"); got != "prosody_failed" {
		t.Errorf("FailedType = %q, want prosody_failed", got)
	}
}

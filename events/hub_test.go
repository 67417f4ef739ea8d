package events

import (
	"testing"
	"time"

	"github.com/GoCodeAlone/webpilot/task"
	"github.com/GoCodeAlone/webpilot/tool"
)

func testSnapshot() SnapshotFunc {
	return func() Snapshot {
		return Snapshot{
			Tasks: []*task.Task{{ID: "t1", Status: task.StatusSucceeded}},
			Tools: tool.NewRegistry().List(),
		}
	}
}

func receive(t *testing.T, sub *Subscriber) Event {
	t.Helper()
	select {
	case e, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscriber channel closed")
		}
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestHub_SnapshotFirst(t *testing.T) {
	h := NewHub(testSnapshot(), nil)

	sub, unsubscribe := h.Subscribe()
	defer unsubscribe()

	h.Emit(Event{Type: TypeTaskCreated, Payload: TaskPayload{TaskID: "t2"}})

	first := receive(t, sub)
	if first.Type != TypeSnapshot {
		t.Fatalf("first event = %q, want snapshot", first.Type)
	}
	snap, ok := first.Payload.(Snapshot)
	if !ok {
		t.Fatalf("snapshot payload type %T", first.Payload)
	}
	if len(snap.Tasks) != 1 || snap.Tasks[0].ID != "t1" {
		t.Errorf("snapshot tasks = %+v", snap.Tasks)
	}
	if len(snap.Tools) == 0 {
		t.Error("snapshot has no tools")
	}

	second := receive(t, sub)
	if second.Type != TypeTaskCreated {
		t.Errorf("second event = %q, want task-created", second.Type)
	}
}

func TestHub_PerSubscriberOrder(t *testing.T) {
	h := NewHub(testSnapshot(), nil)
	sub, unsubscribe := h.Subscribe()
	defer unsubscribe()

	receive(t, sub) // snapshot

	kinds := []string{TypeTaskStarted, TypePlanningStarted, TypePlanningFinished, TypeTaskCompleted}
	for _, k := range kinds {
		h.Emit(Event{Type: k})
	}
	for _, want := range kinds {
		if got := receive(t, sub).Type; got != want {
			t.Errorf("event = %q, want %q", got, want)
		}
	}
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	h := NewHub(testSnapshot(), nil)
	sub, unsubscribe := h.Subscribe()
	receive(t, sub)

	unsubscribe()
	if h.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount = %d after unsubscribe", h.SubscriberCount())
	}

	// Emitting after unsubscribe neither panics nor delivers.
	h.Emit(Event{Type: TypeTaskCreated})
	if _, ok := <-sub.Events(); ok {
		t.Error("received an event after unsubscribe")
	}

	// Unsubscribing twice is safe.
	unsubscribe()
}

func TestHub_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub(testSnapshot(), nil)

	slow, unsubscribe := h.Subscribe()
	defer unsubscribe()

	// Overfill the never-reading subscriber's buffer. Emit must not block.
	emitted := make(chan struct{})
	go func() {
		defer close(emitted)
		for i := 0; i < subscriberBuffer+16; i++ {
			h.Emit(Event{Type: TypeStepUpdated})
		}
	}()
	select {
	case <-emitted:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a slow subscriber")
	}

	// The subscriber holds exactly its buffer: the snapshot plus the first
	// events that fit; the overflow was dropped.
	if got := len(slow.Events()); got != subscriberBuffer {
		t.Errorf("buffered events = %d, want %d", got, subscriberBuffer)
	}

	// A subscriber that joins afterwards is unaffected.
	fast, unsubFast := h.Subscribe()
	defer unsubFast()
	if e := receive(t, fast); e.Type != TypeSnapshot {
		t.Fatalf("first event = %q, want snapshot", e.Type)
	}
	h.Emit(Event{Type: TypeTaskCompleted})
	if e := receive(t, fast); e.Type != TypeTaskCompleted {
		t.Errorf("event = %q, want task-completed", e.Type)
	}
}

func TestHub_ConcurrentEmitAndSubscribe(t *testing.T) {
	h := NewHub(testSnapshot(), nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			h.Emit(Event{Type: TypeStepUpdated})
		}
	}()
	for i := 0; i < 20; i++ {
		sub, unsubscribe := h.Subscribe()
		if e := receive(t, sub); e.Type != TypeSnapshot {
			t.Fatalf("first event = %q, want snapshot", e.Type)
		}
		unsubscribe()
	}
	<-done
}

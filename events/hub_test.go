package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/canvasflow/workflow"
)

func TestHub_RoutesByRunID(t *testing.T) {
	h := NewHub(nil)

	chA, cancelA := h.Subscribe("run-a")
	defer cancelA()
	chB, cancelB := h.Subscribe("run-b")
	defer cancelB()

	h.Publish(workflow.Event{Type: workflow.EventWorkflowStatus, RunID: "run-a", Status: workflow.StatusRunning})

	select {
	case event := <-chA:
		assert.Equal(t, "run-a", event.RunID)
	case <-time.After(time.Second):
		t.Fatal("subscriber for run-a got nothing")
	}

	select {
	case event := <-chB:
		t.Fatalf("subscriber for run-b received foreign event %+v", event)
	default:
	}
}

func TestHub_WildcardSubscription(t *testing.T) {
	h := NewHub(nil)

	all, cancel := h.Subscribe("")
	defer cancel()

	h.Publish(workflow.Event{RunID: "run-a", Type: workflow.EventWorkflowStatus})
	h.Publish(workflow.Event{RunID: "run-b", Type: workflow.EventWorkflowResult})

	got := make([]workflow.Event, 0, 2)
	for i := 0; i < 2; i++ {
		select {
		case event := <-all:
			got = append(got, event)
		case <-time.After(time.Second):
			t.Fatal("wildcard subscriber missed an event")
		}
	}
	assert.Equal(t, "run-a", got[0].RunID)
	assert.Equal(t, "run-b", got[1].RunID)
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	h := NewHub(nil)

	_, cancel := h.Subscribe("run-a")
	defer cancel()

	// Overflow the buffer without draining; publish must return regardless.
	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultSubscriberBuffer*3; i++ {
			h.Publish(workflow.Event{RunID: "run-a", Type: workflow.EventWorkflowStatus})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestHub_CancelReleasesSubscription(t *testing.T) {
	h := NewHub(nil)

	ch, cancel := h.Subscribe("run-a")
	require.Equal(t, 1, h.Subscribers())

	cancel()
	assert.Equal(t, 0, h.Subscribers())

	_, open := <-ch
	assert.False(t, open, "channel closes on cancel")

	cancel() // second cancel is a no-op
}

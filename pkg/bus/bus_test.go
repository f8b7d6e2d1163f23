package bus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailtriage/sentryd/pkg/verdict"
)

func TestBus_PublishDeliversToAllSubscribers(t *testing.T) {
	b := New(4)
	_, ch1, _ := b.Subscribe()
	_, ch2, _ := b.Subscribe()

	b.Publish(NewExpandedResultCount(3))

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			require.Equal(t, EventExpandedResultCount, ev.Type())
			assert.Equal(t, int64(3), ev.Delta())
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	b := New(4)
	_, ch, unsubscribe := b.Subscribe()
	unsubscribe()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBus_ClosingEventClosesBus(t *testing.T) {
	b := New(4)
	_, ch, _ := b.Subscribe()

	b.Publish(NewJobComplete())

	ev, open := <-ch
	require.True(t, open)
	assert.Equal(t, EventJobComplete, ev.Type())

	_, open = <-ch
	assert.False(t, open, "channel should be closed after the terminal event")

	assert.True(t, b.Closed())
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBus_PublishAfterCloseIsNoop(t *testing.T) {
	b := New(4)
	b.Publish(NewError("boom"))
	assert.NotPanics(t, func() { b.Publish(NewJobComplete()) })
}

func TestBus_SubscribeAfterCloseYieldsClosedChannel(t *testing.T) {
	b := New(4)
	b.Publish(NewJobComplete())

	_, ch, unsubscribe := b.Subscribe()
	_, open := <-ch
	assert.False(t, open)
	unsubscribe() // must not panic on a handle the Bus never tracked
}

func TestBus_LaggingSubscriberSeesLaggedMarker(t *testing.T) {
	b := New(1)
	_, ch, _ := b.Subscribe()

	// Fill the one-slot buffer, then publish two more without draining —
	// both must be dropped from this subscriber's perspective.
	b.Publish(NewAnalysisDone("a"))
	b.Publish(NewAnalysisDone("b"))
	b.Publish(NewAnalysisDone("c"))

	first := <-ch
	require.Equal(t, EventAnalysisDone, first.Type())
	assert.Equal(t, "a", first.Analyzer())

	// Draining freed a slot, but the gap is only flushed on the next
	// Publish — that call fills the freed slot with the Lagged marker
	// itself and drops its own event in turn.
	b.Publish(NewAnalysisDone("d"))

	second := <-ch
	require.Equal(t, eventLagged, second.Type())
	assert.Equal(t, int64(2), second.Lagged())
}

func TestBus_SlowSubscriberDoesNotBlockFastOne(t *testing.T) {
	b := New(1)
	_, slow, _ := b.Subscribe()
	_, fast, _ := b.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(NewAnalysisDone("x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	// Fast subscriber must have at least its first event and not be starved.
	select {
	case <-fast:
	case <-time.After(time.Second):
		t.Fatal("fast subscriber received nothing")
	}

	// Drain slow subscriber so the goroutine leak checker (if any) is happy.
	for {
		select {
		case <-slow:
		default:
			return
		}
	}
}

func TestEvent_MarshalJSON_BitExactShapes(t *testing.T) {
	cases := []struct {
		name string
		ev   Event
		want string
	}{
		{"ExpandedResultCount", NewExpandedResultCount(5), `{"type":"ExpandedResultCount","value":5}`},
		{"AnalysisDone", NewAnalysisDone("headers"), `{"type":"AnalysisDone","value":"headers"}`},
		{"Error", NewError("boom"), `{"type":"Error","value":"boom"}`},
		{"JobComplete", NewJobComplete(), `{"type":"JobComplete"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := json.Marshal(tc.ev)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(got))
		})
	}
}

func TestEvent_MarshalJSON_Progress(t *testing.T) {
	r := verdict.Result{ID: 42, Analyzer: "headers", Verdict: verdict.Verdict{Kind: "spf", Value: "pass"}}
	got, err := json.Marshal(NewProgress(r))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"Progress","value":{"id":42,"analysisName":"headers","verdict":{"kind":"spf","value":"pass"}}}`, string(got))
}

package dispatcher

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mithilesh5957/nidar/internal/model"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func event(topic, vehicle string) model.Event {
	return model.Event{Topic: topic, VehicleID: vehicle, Ts: time.Now().UnixMilli()}
}

func TestDispatchRoutesByTopic(t *testing.T) {
	d, err := New(nopLogger{})
	require.NoError(t, err)

	var got []string
	d.Register("recorder", model.TopicTelemetry, func(e model.Event) error {
		got = append(got, e.VehicleID)
		return nil
	})

	require.NoError(t, d.Dispatch(event(model.TopicTelemetry, "scout")))
	require.NoError(t, d.Dispatch(event(model.TopicHeartbeat, "scout")))

	assert.Equal(t, []string{"scout"}, got)
}

func TestDispatchWildcardSeesEverything(t *testing.T) {
	d, err := New(nopLogger{})
	require.NoError(t, err)

	var topics []string
	d.Register("ws", TopicAll, func(e model.Event) error {
		topics = append(topics, e.Topic)
		return nil
	})

	require.NoError(t, d.Dispatch(event(model.TopicTelemetry, "scout")))
	require.NoError(t, d.Dispatch(event(model.TopicBattery, "delivery")))

	assert.Equal(t, []string{model.TopicTelemetry, model.TopicBattery}, topics)
}

func TestDispatchUnknownTopicIsNoop(t *testing.T) {
	d, err := New(nopLogger{})
	require.NoError(t, err)

	assert.NoError(t, d.Dispatch(event("nobody_home", "scout")))
	assert.False(t, d.HasSink("nobody_home"))
}

func TestDispatchReturnsFirstSinkError(t *testing.T) {
	d, err := New(nopLogger{})
	require.NoError(t, err)

	boom := errors.New("boom")
	calls := 0
	d.Register("bad", model.TopicDetection, func(model.Event) error { return boom })
	d.Register("good", model.TopicDetection, func(model.Event) error {
		calls++
		return nil
	})

	err = d.Dispatch(event(model.TopicDetection, "scout"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "sink bad")
	assert.Equal(t, 1, calls, "later sinks still run after an error")
}

func TestBufferedSinkProcessesAsync(t *testing.T) {
	d, err := New(nopLogger{})
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []string
	done := make(chan struct{}, 2)

	d.Register("influx", model.TopicTelemetry, func(e model.Event) error {
		mu.Lock()
		seen = append(seen, e.VehicleID)
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, Buffered(8))

	require.NoError(t, d.Dispatch(event(model.TopicTelemetry, "scout")))
	require.NoError(t, d.Dispatch(event(model.TopicTelemetry, "delivery")))

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("buffered sink did not drain")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"scout", "delivery"}, seen)
}

func TestBufferedSinkDropsWhenFull(t *testing.T) {
	d, err := New(nopLogger{})
	require.NoError(t, err)

	release := make(chan struct{})
	d.Register("slow", model.TopicTelemetry, func(model.Event) error {
		<-release
		return nil
	}, Buffered(1))

	// First fills the worker, second fills the queue, third must drop.
	require.NoError(t, d.Dispatch(event(model.TopicTelemetry, "a")))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, d.Dispatch(event(model.TopicTelemetry, "b")))
	err = d.Dispatch(event(model.TopicTelemetry, "c"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue full")

	close(release)
}

func TestBufferedSinkHungHandlerNeverBlocksDispatch(t *testing.T) {
	d, err := New(nopLogger{})
	require.NoError(t, err)

	hung := make(chan struct{})
	defer close(hung)
	d.Register("store", model.TopicTelemetry, func(model.Event) error {
		<-hung
		return nil
	}, Buffered(4))

	// A stalled handler fills the queue; overflow is dropped instead of
	// stalling the caller.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			_ = d.Dispatch(event(model.TopicTelemetry, "scout"))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch blocked behind a hung sink")
	}
}

func TestBlockingSinkNeverDrops(t *testing.T) {
	d, err := New(nopLogger{})
	require.NoError(t, err)

	var count int
	var mu sync.Mutex
	done := make(chan struct{}, 3)
	d.Register("store", model.TopicTelemetry, func(model.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, Buffered(1), Blocking())

	for i := 0; i < 3; i++ {
		require.NoError(t, d.Dispatch(event(model.TopicTelemetry, "scout")))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("blocking sink did not drain")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, count)
}

func TestLoggedOptionWrapsHandler(t *testing.T) {
	d, err := New(nopLogger{})
	require.NoError(t, err)

	called := false
	d.Register("logged", model.TopicStatusText, func(model.Event) error {
		called = true
		return nil
	}, Logged())

	require.NoError(t, d.Dispatch(event(model.TopicStatusText, "scout")))
	assert.True(t, called)
}

// Package dispatcher routes broadcast events from the vehicle links to the
// registered outward sinks (websocket fanout, persistence, MQTT, InfluxDB).
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Mithilesh5957/nidar/internal/model"
)

// TopicAll subscribes a sink to every topic.
const TopicAll = "*"

// HandlerFunc consumes one broadcast event.
type HandlerFunc func(model.Event) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures sink registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered makes the sink async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered sink block when the queue is full instead of
// dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging around the sink.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

type sink struct {
	name    string
	handler HandlerFunc
}

// Dispatcher fans events out to registered sinks by topic.
type Dispatcher struct {
	logger Logger

	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter

	mu      sync.RWMutex
	sinks   map[string][]sink // topic -> sinks
	buffers map[string]chan model.Event
}

// New creates a Dispatcher with the given logger. Uses the global OTel
// meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		logger:  logger,
		sinks:   make(map[string][]sink),
		buffers: make(map[string]chan model.Event),
	}

	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of events queued per sink"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for name, buf := range d.buffers {
				o.ObserveInt64(d.queueSize, int64(len(buf)),
					metric.WithAttributes(attribute.String("sink", name)))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total events processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Total events dropped due to full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return d, nil
}

// Register subscribes a named sink to a topic (or TopicAll) with optional
// configuration.
func (d *Dispatcher) Register(name, topic string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h

	if cfg.bufferSize > 0 {
		handler = d.withBuffer(name, cfg.bufferSize, cfg.blocking, handler)
	}

	if cfg.logged {
		handler = d.withLogging(name, handler)
	}

	d.mu.Lock()
	d.sinks[topic] = append(d.sinks[topic], sink{name: name, handler: handler})
	d.mu.Unlock()
}

// Dispatch delivers an event to every sink subscribed to its topic or to
// TopicAll. The first sink error is returned after all sinks have run.
func (d *Dispatcher) Dispatch(e model.Event) error {
	d.mu.RLock()
	targets := make([]sink, 0, len(d.sinks[e.Topic])+len(d.sinks[TopicAll]))
	targets = append(targets, d.sinks[e.Topic]...)
	targets = append(targets, d.sinks[TopicAll]...)
	d.mu.RUnlock()

	var firstErr error
	for _, s := range targets {
		if err := s.handler(e); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("sink %s: %w", s.name, err)
		}
	}
	return firstErr
}

// HasSink returns true if any sink is subscribed to the topic.
func (d *Dispatcher) HasSink(topic string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sinks[topic]) > 0
}

func (d *Dispatcher) withBuffer(name string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buffer := make(chan model.Event, size)

	d.mu.Lock()
	d.buffers[name] = buffer
	d.mu.Unlock()

	sinkAttr := attribute.String("sink", name)

	go func() {
		for e := range buffer {
			if err := h(e); err != nil {
				d.logger.Error("sink failed", "sink", name, "topic", e.Topic, "error", err)
			}
			d.processed.Add(context.Background(), 1, metric.WithAttributes(sinkAttr))
		}
	}()

	if blocking {
		return func(e model.Event) error {
			buffer <- e
			return nil
		}
	}

	return func(e model.Event) error {
		select {
		case buffer <- e:
			return nil
		default:
			d.dropped.Add(context.Background(), 1, metric.WithAttributes(sinkAttr))
			return fmt.Errorf("queue full: %s", name)
		}
	}
}

func (d *Dispatcher) withLogging(name string, h HandlerFunc) HandlerFunc {
	return func(e model.Event) error {
		start := time.Now()
		d.logger.Debug("handling event", "sink", name, "topic", e.Topic, "vehicle", e.VehicleID)

		err := h(e)

		if err != nil {
			d.logger.Error("event failed", "sink", name, "topic", e.Topic, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "sink", name, "topic", e.Topic, "duration", time.Since(start))
		}

		return err
	}
}

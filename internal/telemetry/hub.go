// Package telemetry keeps a bounded per-vehicle history of position samples
// and fans broadcast events out to live subscribers.
package telemetry

import (
	"log/slog"
	"sync"

	"github.com/Mithilesh5957/nidar/internal/model"
)

const (
	// DefaultCapacity bounds the per-vehicle sample history.
	DefaultCapacity = 500

	// DefaultSubscriberBuffer is the per-subscriber channel capacity. A
	// subscriber that falls this far behind is pruned.
	DefaultSubscriberBuffer = 64
)

// Subscription is one live event stream. The hub owns the channel and
// closes it on Unsubscribe, on pruning, and on hub Close.
type Subscription struct {
	ID        int
	VehicleID string
	events    chan model.Event
}

// Events returns the subscriber's receive channel.
func (s *Subscription) Events() <-chan model.Event {
	return s.events
}

// Hub is the telemetry cache and broadcast fanout. All methods are safe for
// concurrent use.
type Hub struct {
	capacity int
	subBuf   int
	logger   *slog.Logger

	mu      sync.Mutex
	samples map[string][]model.TelemetrySample
	subs    map[string]map[int]*Subscription
	nextID  int
	closed  bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithCapacity overrides the per-vehicle sample history bound.
func WithCapacity(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.capacity = n
		}
	}
}

// WithSubscriberBuffer overrides the per-subscriber channel capacity.
func WithSubscriberBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.subBuf = n
		}
	}
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger, opts ...Option) *Hub {
	h := &Hub{
		capacity: DefaultCapacity,
		subBuf:   DefaultSubscriberBuffer,
		logger:   logger,
		samples:  make(map[string][]model.TelemetrySample),
		subs:     make(map[string]map[int]*Subscription),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Record appends a sample to the vehicle's history, evicting the oldest
// sample once the history is full.
func (h *Hub) Record(vehicleID string, sample model.TelemetrySample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	buf := h.samples[vehicleID]
	if len(buf) >= h.capacity {
		copy(buf, buf[1:])
		buf = buf[:len(buf)-1]
	}
	h.samples[vehicleID] = append(buf, sample)
}

// RecentSamples returns a copy of the vehicle's sample history, oldest
// first. A positive limit returns only the newest limit samples.
func (h *Hub) RecentSamples(vehicleID string, limit int) []model.TelemetrySample {
	h.mu.Lock()
	defer h.mu.Unlock()

	buf := h.samples[vehicleID]
	if limit > 0 && limit < len(buf) {
		buf = buf[len(buf)-limit:]
	}
	out := make([]model.TelemetrySample, len(buf))
	copy(out, buf)
	return out
}

// Latest returns the most recent sample for the vehicle, if any.
func (h *Hub) Latest(vehicleID string) (model.TelemetrySample, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	buf := h.samples[vehicleID]
	if len(buf) == 0 {
		return model.TelemetrySample{}, false
	}
	return buf[len(buf)-1], true
}

// Subscribe opens a live event stream for one vehicle.
func (h *Hub) Subscribe(vehicleID string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscription{
		ID:        h.nextID,
		VehicleID: vehicleID,
		events:    make(chan model.Event, h.subBuf),
	}
	h.nextID++

	if h.closed {
		close(sub.events)
		return sub
	}

	if h.subs[vehicleID] == nil {
		h.subs[vehicleID] = make(map[int]*Subscription)
	}
	h.subs[vehicleID][sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// after the subscriber was already pruned.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *Subscription) {
	vehicleSubs, ok := h.subs[sub.VehicleID]
	if !ok {
		return
	}
	if _, ok := vehicleSubs[sub.ID]; !ok {
		return
	}
	delete(vehicleSubs, sub.ID)
	close(sub.events)
	if len(vehicleSubs) == 0 {
		delete(h.subs, sub.VehicleID)
	}
}

// Publish delivers an event to every subscriber of its vehicle without
// blocking. A subscriber whose buffer is full is pruned so one stalled
// consumer cannot hold up the rest.
func (h *Hub) Publish(e model.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	for _, sub := range h.subs[e.VehicleID] {
		select {
		case sub.events <- e:
		default:
			h.logger.Warn("pruning slow subscriber", "vehicle", e.VehicleID, "subscriber", sub.ID)
			h.removeLocked(sub)
		}
	}
}

// SubscriberCount reports the live subscriber count for a vehicle.
func (h *Hub) SubscriberCount(vehicleID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[vehicleID])
}

// Close shuts the hub down, closing every subscriber channel. Subsequent
// Record and Publish calls are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true

	for _, vehicleSubs := range h.subs {
		for _, sub := range vehicleSubs {
			close(sub.events)
		}
	}
	h.subs = make(map[string]map[int]*Subscription)
}

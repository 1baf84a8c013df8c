package link

import (
	"fmt"
	"log/slog"

	"github.com/Mithilesh5957/nidar/internal/config"
	"github.com/Mithilesh5957/nidar/internal/model"
)

// Manager owns one Link per configured vehicle slot.
type Manager struct {
	links  map[string]*Link
	order  []string
	logger *slog.Logger
}

// NewManager builds the link slots. Duplicate vehicle ids are rejected.
func NewManager(vehicles []config.VehicleConfig, lc config.LinkConfig, logger *slog.Logger, publish PublishFunc) (*Manager, error) {
	m := &Manager{
		links:  make(map[string]*Link, len(vehicles)),
		logger: logger,
	}
	for _, vc := range vehicles {
		if vc.ID == "" || vc.Listen == "" {
			return nil, fmt.Errorf("vehicle slot needs id and listen address: %+v", vc)
		}
		if _, dup := m.links[vc.ID]; dup {
			return nil, fmt.Errorf("duplicate vehicle id %q", vc.ID)
		}
		m.links[vc.ID] = NewLink(vc, lc, logger, publish)
		m.order = append(m.order, vc.ID)
	}
	return m, nil
}

// Start opens every slot's listener. On failure the slots already started
// are torn down again.
func (m *Manager) Start() error {
	for i, id := range m.order {
		if err := m.links[id].Start(); err != nil {
			for _, started := range m.order[:i] {
				m.links[started].Stop()
			}
			return err
		}
	}
	m.logger.Info("link manager started", "slots", len(m.order))
	return nil
}

// Stop tears all links down and waits for their goroutines.
func (m *Manager) Stop() {
	for _, id := range m.order {
		m.links[id].Stop()
	}
	m.logger.Info("link manager stopped")
}

// Link returns the slot for a vehicle id.
func (m *Manager) Link(vehicleID string) (*Link, error) {
	l, ok := m.links[vehicleID]
	if !ok {
		return nil, fmt.Errorf("%s: %w: no such vehicle", vehicleID, ErrLinkUnavailable)
	}
	return l, nil
}

// States reports every slot's connection state.
func (m *Manager) States() map[string]model.LinkState {
	out := make(map[string]model.LinkState, len(m.links))
	for id, l := range m.links {
		out[id] = l.State()
	}
	return out
}

// ConnectedCount reports how many slots have a discovered vehicle.
func (m *Manager) ConnectedCount() int {
	n := 0
	for _, l := range m.links {
		if l.State() == model.LinkConnected {
			n++
		}
	}
	return n
}

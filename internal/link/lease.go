package link

import (
	"fmt"
	"time"

	"github.com/Mithilesh5957/nidar/internal/mavlink"
)

// leaseBuffer sizes the routed-frame channel. The read loop drops leased
// frames when the holder falls this far behind rather than stalling
// telemetry for every other consumer.
const leaseBuffer = 32

// Lease grants its holder exclusive receipt of a set of message ids on one
// link. While held, the link's read loop routes matching frames to the
// lease instead of the classifier; everything else flows normally. One
// lease per link at a time.
type Lease struct {
	link *Link
	ids  map[uint8]bool

	frames chan mavlink.Frame
	lost   chan struct{} // closed by the read loop on connection loss
}

func newLease(l *Link, ids []uint8) *Lease {
	set := make(map[uint8]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return &Lease{
		link:   l,
		ids:    set,
		frames: make(chan mavlink.Frame, leaseBuffer),
		lost:   make(chan struct{}),
	}
}

func (le *Lease) wants(id uint8) bool {
	return le.ids[id]
}

// Send writes a message on the leased link.
func (le *Lease) Send(msg mavlink.Message) error {
	conn := le.link.currentConn()
	if conn == nil {
		return fmt.Errorf("%s: %w", le.link.id, ErrLinkUnavailable)
	}
	if err := conn.WriteMessage(msg); err != nil {
		return fmt.Errorf("%s: %w: %v", le.link.id, ErrTransportFailure, err)
	}
	return nil
}

// Recv blocks until a leased frame arrives, the deadline passes, or the
// link drops.
func (le *Lease) Recv(deadline time.Time) (mavlink.Frame, error) {
	wait := time.Until(deadline)
	if wait <= 0 {
		return mavlink.Frame{}, fmt.Errorf("%s: %w", le.link.id, ErrTimeout)
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case frame := <-le.frames:
		return frame, nil
	case <-le.lost:
		return mavlink.Frame{}, fmt.Errorf("%s: %w: connection lost", le.link.id, ErrTransportFailure)
	case <-timer.C:
		return mavlink.Frame{}, fmt.Errorf("%s: %w", le.link.id, ErrTimeout)
	}
}

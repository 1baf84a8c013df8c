package link

import "errors"

// Error kinds surfaced to callers of link and mission operations. Callers
// branch with errors.Is; wrapping adds operation context.
var (
	// ErrTimeout means the vehicle did not produce an expected message
	// within the allotted window.
	ErrTimeout = errors.New("timed out waiting for vehicle")

	// ErrProtocolViolation means the vehicle responded with something a
	// conforming peer would never send at that point in a handshake.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrLinkUnavailable means the vehicle has no usable connection, or
	// the link is busy with another exclusive transfer.
	ErrLinkUnavailable = errors.New("link unavailable")

	// ErrTransportFailure means the underlying connection failed mid
	// operation.
	ErrTransportFailure = errors.New("transport failure")
)

package network

import (
	"github.com/relaynet/approvaldist/model/approval"
)

// Conduit is the handle an engine holds for sending messages on its
// channel. Sends are fire-and-forget: delivery is not acknowledged and
// the engine must not block on it. Duplicate suppression against
// future delivery attempts is the engine's own responsibility.
type Conduit interface {
	// Unicast sends the event to a single target peer.
	Unicast(event interface{}, targetID approval.Identifier) error
}

// Engine is the interface the networking layer uses to hand inbound
// messages to a registered engine.
type Engine interface {
	// Process processes an event from the given origin in a blocking
	// fashion, returning any processing error.
	Process(channel Channel, originID approval.Identifier, event interface{}) error
}

// Network lets an engine register on a channel and obtain a conduit
// for sending on it.
type Network interface {
	Register(channel Channel, engine Engine) (Conduit, error)
}

// Package topology maintains the per-session grid placement of
// validators used to pick a bounded, structured broadcast tree for
// vote gossip instead of full flooding.
package topology

import (
	"math"

	"github.com/relaynet/approvaldist/model/approval"
)

// RequiredRouting is the topology-derived category describing which
// peers a message must reach via the structured pass.
type RequiredRouting uint8

const (
	// RoutePendingTopology defers the routing decision until the
	// session's topology is known.
	RoutePendingTopology RequiredRouting = iota
	// RouteNone requires no structured propagation.
	RouteNone
	// RouteGridX routes to row neighbors.
	RouteGridX
	// RouteGridY routes to column neighbors.
	RouteGridY
	// RouteGridXY routes to both row and column neighbors.
	RouteGridXY
	// RouteAll routes to every known peer of the block.
	RouteAll
)

func (r RequiredRouting) String() string {
	switch r {
	case RoutePendingTopology:
		return "pending-topology"
	case RouteNone:
		return "none"
	case RouteGridX:
		return "grid-x"
	case RouteGridY:
		return "grid-y"
	case RouteGridXY:
		return "grid-xy"
	case RouteAll:
		return "all"
	default:
		return "invalid"
	}
}

// Combine joins two routing requirements into the narrowest category
// satisfying both. Commutative; used when an approval matches several
// assignment entries with different routing.
func (r RequiredRouting) Combine(other RequiredRouting) RequiredRouting {
	if r == other {
		return r
	}
	if r == RouteAll || other == RouteAll {
		return RouteAll
	}
	if r == RoutePendingTopology {
		return other
	}
	if other == RoutePendingTopology {
		return r
	}
	if r == RouteNone {
		return other
	}
	if other == RouteNone {
		return r
	}
	// both are grid categories and differ
	return RouteGridXY
}

// Covers reports whether routing requirement r is at least as wide as
// other. Used to check monotonicity under aggression escalation.
func (r RequiredRouting) Covers(other RequiredRouting) bool {
	return r.Combine(other) == r
}

// Entry associates a session validator with the peer identity it is
// reachable at.
type Entry struct {
	PeerID    approval.Identifier
	Validator approval.ValidatorIndex
}

// SessionGridTopology is the session-scoped grid arrangement of
// validators. Validators are laid out row-major in a square-ish grid;
// a node's structured audience is its row and column neighbors.
type SessionGridTopology struct {
	session  approval.SessionIndex
	ourIndex approval.ValidatorIndex
	isLocal  bool // whether we are a validator in this session
	width    uint32

	// peersX and peersY hold the peer identities of our row and
	// column neighbors respectively.
	peersX map[approval.Identifier]struct{}
	peersY map[approval.Identifier]struct{}

	// validatorPeers maps every known session validator peer to its
	// validator index.
	validatorPeers map[approval.Identifier]approval.ValidatorIndex
}

// NewSessionGridTopology arranges the given validators into a grid.
// ourIndex is our own validator index in the session; pass local=false
// for non-validator observers, in which case the structured pass
// degenerates to RouteNone for every originator.
func NewSessionGridTopology(
	session approval.SessionIndex,
	ourIndex approval.ValidatorIndex,
	local bool,
	entries []Entry,
) *SessionGridTopology {
	n := len(entries)
	width := uint32(math.Ceil(math.Sqrt(float64(n))))
	if width == 0 {
		width = 1
	}

	t := &SessionGridTopology{
		session:        session,
		ourIndex:       ourIndex,
		isLocal:        local,
		width:          width,
		peersX:         make(map[approval.Identifier]struct{}),
		peersY:         make(map[approval.Identifier]struct{}),
		validatorPeers: make(map[approval.Identifier]approval.ValidatorIndex, n),
	}

	ourRow := uint32(ourIndex) / width
	ourCol := uint32(ourIndex) % width
	for _, entry := range entries {
		t.validatorPeers[entry.PeerID] = entry.Validator
		if !local || entry.Validator == ourIndex {
			continue
		}
		if uint32(entry.Validator)/width == ourRow {
			t.peersX[entry.PeerID] = struct{}{}
		}
		if uint32(entry.Validator)%width == ourCol {
			t.peersY[entry.PeerID] = struct{}{}
		}
	}
	return t
}

// Session returns the session this topology belongs to.
func (t *SessionGridTopology) Session() approval.SessionIndex {
	return t.session
}

// RequiredRoutingByIndex resolves the structured-pass requirement for
// a message originated by the given validator. Our own messages route
// to both dimensions; messages from our row propagate along our
// column and vice versa, so every vote crosses the grid in at most
// two hops.
func (t *SessionGridTopology) RequiredRoutingByIndex(originator approval.ValidatorIndex, local bool) RequiredRouting {
	if local {
		return RouteGridXY
	}
	if !t.isLocal {
		return RouteNone
	}
	origRow := uint32(originator) / t.width
	origCol := uint32(originator) % t.width
	sameRow := origRow == uint32(t.ourIndex)/t.width
	sameCol := origCol == uint32(t.ourIndex)%t.width
	switch {
	case sameRow && sameCol:
		// the originator is ourselves, handled by the local branch
		return RouteGridXY
	case sameRow:
		return RouteGridY
	case sameCol:
		return RouteGridX
	default:
		return RouteNone
	}
}

// RouteToPeer reports whether the given routing requirement reaches
// the given peer through the grid.
func (t *SessionGridTopology) RouteToPeer(required RequiredRouting, peerID approval.Identifier) bool {
	switch required {
	case RouteAll:
		return true
	case RouteGridX:
		_, ok := t.peersX[peerID]
		return ok
	case RouteGridY:
		_, ok := t.peersY[peerID]
		return ok
	case RouteGridXY:
		if _, ok := t.peersX[peerID]; ok {
			return true
		}
		_, ok := t.peersY[peerID]
		return ok
	default:
		return false
	}
}

// IsValidatorPeer reports whether the peer is a validator of this
// session.
func (t *SessionGridTopology) IsValidatorPeer(peerID approval.Identifier) bool {
	_, ok := t.validatorPeers[peerID]
	return ok
}

// ValidatorCount returns the number of validators placed in the grid.
func (t *SessionGridTopology) ValidatorCount() int {
	return len(t.validatorPeers)
}

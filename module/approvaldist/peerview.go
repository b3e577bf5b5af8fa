package approvaldist

import (
	"github.com/relaynet/approvaldist/model/approval"
)

// HandlePeerConnected starts tracking the peer with an empty view.
// Nothing is sent until the peer declares interest in blocks; nothing
// is ever sent to a peer on a protocol version we do not speak.
func (c *Core) HandlePeerConnected(peer approval.Identifier, version approval.ProtocolVersion) {
	if state, ok := c.peers[peer]; ok {
		state.version = version
		return
	}
	c.peers[peer] = &peerState{version: version}
	c.log.Debug().
		Str("peer", peer.String()).
		Uint32("protocol_version", uint32(version)).
		Msg("peer connected")
}

// peerSendable reports whether the peer may be sent protocol messages:
// it must be connected on a version we speak.
func (c *Core) peerSendable(peer approval.Identifier) bool {
	state, ok := c.peers[peer]
	return ok && state.version == approval.ValidationProtocolV1
}

// HandlePeerDisconnected forgets the peer everywhere: its view, and
// its knowledge record on every tracked block.
func (c *Core) HandlePeerDisconnected(peer approval.Identifier) {
	delete(c.peers, peer)
	for _, entry := range c.blocks {
		delete(entry.knownBy, peer)
	}
	c.log.Debug().Str("peer", peer.String()).Msg("peer disconnected")
}

// HandlePeerViewChange records the peer's new view and reconciles
// knowledge for every freshly-declared chain. Blocks the peer's
// advancing finality makes irrelevant lose their per-peer record.
func (c *Core) HandlePeerViewChange(peer approval.Identifier, view approval.View) {
	state, ok := c.peers[peer]
	if !ok {
		// view before connect; tolerate and start tracking
		state = &peerState{}
		c.peers[peer] = state
	}
	oldFinalized := state.view.Finalized
	state.view = view

	if view.Finalized > oldFinalized {
		for number, hashes := range c.blocksByNumber {
			if number > view.Finalized {
				continue
			}
			for hash := range hashes {
				if entry, ok := c.blocks[hash]; ok {
					delete(entry.knownBy, peer)
				}
			}
		}
	}

	c.unifyWithPeer(peer, view, false)
}

// HandleUpdatedAuthorityMapping re-runs knowledge reconciliation for a
// peer whose authority identity just resolved, retrying even chains we
// already walked: the peer may have become grid-reachable.
func (c *Core) HandleUpdatedAuthorityMapping(peer approval.Identifier) {
	state, ok := c.peers[peer]
	if !ok {
		return
	}
	c.unifyWithPeer(peer, state.view, true)
}

// HandleOurViewChange updates the local view: fresh heads we have not
// materialized yet get a pending buffer, buffers for heads no longer
// in view are dropped.
func (c *Core) HandleOurViewChange(view approval.View) {
	c.ourView = view

	live := make(map[approval.Identifier]struct{}, len(view.Heads))
	for _, head := range view.Heads {
		live[head] = struct{}{}
		if _, tracked := c.blocks[head]; tracked {
			continue
		}
		if _, buffered := c.pending[head]; buffered {
			continue
		}
		c.pending[head] = nil
	}
	for head := range c.pending {
		if _, ok := live[head]; !ok {
			delete(c.pending, head)
		}
	}
	c.updateGauges()
}

// unifyWithPeer walks every chain the peer's view declares, from each
// head back toward the peer's finalized number, and sends it whatever
// routable knowledge it is missing. The walk normally stops at the
// first block the peer already knew about, since everything below was
// reconciled before; retryKnown forces the full walk, used when the
// peer's routing position changed.
func (c *Core) unifyWithPeer(peer approval.Identifier, view approval.View, retryKnown bool) {
	sends := newPeerSendQueue()

	for _, head := range view.Heads {
		blockHash := head
		for {
			entry, ok := c.blocks[blockHash]
			if !ok || entry.number <= view.Finalized {
				break
			}
			pk, knew := entry.knownBy[peer]
			if !knew {
				pk = NewPeerKnowledge()
				entry.knownBy[peer] = pk
			} else if !retryKnown {
				break
			}

			topo := c.topologies.Get(entry.session)
			nPeers := len(c.peers)
			for _, ae := range entry.orderedApprovalEntries() {
				// the random audience keeps filling across peers
				// joining late, until the sampler hits its target
				if topo != nil && !topo.RouteToPeer(ae.routing.required, peer) &&
					!ae.routing.randomlySentTo(peer) &&
					topo.IsValidatorPeer(peer) && !ae.routing.random.Complete() {
					if ae.routing.random.Sample(nPeers, c.rng) {
						ae.routing.markRandomlySent(peer)
					}
				}
				c.queueMissingKnowledge(sends, entry, ae, topo, peer, pk)
			}

			blockHash = entry.parentHash
		}
	}

	sends.flush(c.sender)
}

package approvaldist

import (
	"math"

	"github.com/onflow/flow-go/crypto/random"

	"github.com/relaynet/approvaldist/model/approval"
	"github.com/relaynet/approvaldist/topology"
)

// DefaultRandomCirculation is the number of peers each message is
// additionally circulated to outside the grid, as insurance against
// sparse or stale topology placement.
const DefaultRandomCirculation = 4

// RandomRouting is the sampler state supplementing the structured
// grid pass with a capped random audience. Peers are sampled
// independently with probability on the order of 1/sqrt(peer count)
// until the target audience size is reached.
type RandomRouting struct {
	target uint
	sent   uint
}

func NewRandomRouting() RandomRouting {
	return RandomRouting{target: DefaultRandomCirculation}
}

// Complete reports whether the sampler has selected its full audience.
func (r *RandomRouting) Complete() bool {
	return r.sent >= r.target
}

// Sample draws whether the next eligible peer joins the random
// audience, given the total number of candidate peers. The generator
// is passed explicitly so sampling decisions replay deterministically
// for a fixed seed and event order.
func (r *RandomRouting) Sample(nPeersTotal int, rng random.Rand) bool {
	if r.Complete() || nPeersTotal <= 0 {
		return false
	}
	root := uint64(math.Sqrt(float64(nPeersTotal)))
	if root < 1 {
		root = 1
	}
	return rng.UintN(root) == 0
}

// NoteSent records one selected peer.
func (r *RandomRouting) NoteSent() {
	r.sent++
}

// MessageSender is the outbound half of the protocol: batched,
// fire-and-forget delivery of grouped assignments and approvals to a
// set of peers. Implemented by the engine on top of the network
// conduit.
type MessageSender interface {
	SendAssignments(peers []approval.Identifier, assignments []approval.Assignment)
	SendApprovals(peers []approval.Identifier, approvals []approval.ApprovalVote)
}

// messageSource distinguishes votes originated locally from votes
// relayed by a peer. Local-origin messages skip reputation and
// validation.
type messageSource struct {
	peer     approval.Identifier
	fromPeer bool
}

func peerSource(peer approval.Identifier) messageSource {
	return messageSource{peer: peer, fromPeer: true}
}

func localSource() messageSource {
	return messageSource{}
}

// peerSendQueue accumulates outbound messages per destination peer
// during one protocol step, so everything a peer is owed leaves in
// grouped batches.
type peerSendQueue struct {
	assignments map[approval.Identifier][]approval.Assignment
	approvals   map[approval.Identifier][]approval.ApprovalVote
}

func newPeerSendQueue() *peerSendQueue {
	return &peerSendQueue{
		assignments: make(map[approval.Identifier][]approval.Assignment),
		approvals:   make(map[approval.Identifier][]approval.ApprovalVote),
	}
}

func (q *peerSendQueue) queueAssignment(peer approval.Identifier, assignment approval.Assignment) {
	q.assignments[peer] = append(q.assignments[peer], assignment)
}

func (q *peerSendQueue) queueApproval(peer approval.Identifier, vote approval.ApprovalVote) {
	q.approvals[peer] = append(q.approvals[peer], vote)
}

// flush hands the accumulated batches to the sender, one call per
// destination peer and kind.
func (q *peerSendQueue) flush(sender MessageSender) {
	for peer, assignments := range q.assignments {
		sender.SendAssignments([]approval.Identifier{peer}, assignments)
	}
	for peer, votes := range q.approvals {
		sender.SendApprovals([]approval.Identifier{peer}, votes)
	}
}

// adjustRequiredRoutingAndPropagate re-walks every block accepted by
// the filter, lets the modifier rewrite each approval entry's
// required routing, and then pushes any message now reachable to any
// peer that does not yet know it. Triggered when a session topology
// arrives late and when aggression changes routing; it is the only
// path that re-sends without a fresh import.
func (c *Core) adjustRequiredRoutingAndPropagate(
	blockFilter func(*blockEntry) bool,
	routingModifier func(routing *approvalRouting),
) {
	sends := newPeerSendQueue()

	for _, entry := range c.blocks {
		if !blockFilter(entry) {
			continue
		}
		for _, ae := range entry.orderedApprovalEntries() {
			routingModifier(&ae.routing)
		}
		topo := c.topologies.Get(entry.session)
		for peer, pk := range entry.knownBy {
			for _, ae := range entry.orderedApprovalEntries() {
				c.queueMissingKnowledge(sends, entry, ae, topo, peer, pk)
			}
		}
	}

	sends.flush(c.sender)
}

// queueMissingKnowledge queues for the peer every message of the
// approval entry the routing state says it must have and our sent
// knowledge says it does not.
func (c *Core) queueMissingKnowledge(
	sends *peerSendQueue,
	entry *blockEntry,
	ae *approvalEntry,
	topo *topology.SessionGridTopology,
	peer approval.Identifier,
	pk *PeerKnowledge,
) {
	if !c.peerSendable(peer) {
		return
	}
	inTopology := topo != nil && topo.RouteToPeer(ae.routing.required, peer)
	if !inTopology && !ae.routing.randomlySentTo(peer) {
		return
	}

	assignmentSubject := approval.MessageSubject{
		Block:      entry.hash,
		Candidates: ae.claimed,
		Validator:  ae.validator,
	}
	if !pk.Contains(assignmentSubject, approval.KindAssignment) {
		pk.Sent.Insert(assignmentSubject, approval.KindAssignment)
		sends.queueAssignment(peer, ae.assignment)
	}
	for _, vote := range ae.approvals {
		voteSubject := approval.MessageSubject{
			Block:      entry.hash,
			Candidates: vote.CandidateBitfield,
			Validator:  ae.validator,
		}
		if !pk.Contains(voteSubject, approval.KindApproval) {
			pk.Sent.Insert(voteSubject, approval.KindApproval)
			sends.queueApproval(peer, vote)
		}
	}
}

// Package approvaldist implements the core logic of approval-vote
// gossip: per-block knowledge tracking, topology-aware routing with
// bounded random supplement, adaptive redundancy under finality lag,
// and reputation-based defense against misbehaving peers.
//
// The Core is not safe for concurrent use. It is owned by a single
// protocol-driver loop which processes events strictly one at a time;
// see engine/approvals.
package approvaldist

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/onflow/flow-go/crypto/random"
	"github.com/rs/zerolog"

	"github.com/relaynet/approvaldist/model/approval"
	"github.com/relaynet/approvaldist/module"
	"github.com/relaynet/approvaldist/network"
	"github.com/relaynet/approvaldist/topology"
)

// Import outcome labels, used for metrics and logging.
const (
	OutcomeAccepted           = "accepted"
	OutcomeKnown              = "known"
	OutcomeDuplicate          = "duplicate"
	OutcomeDuplicateTolerated = "duplicate-tolerated"
	OutcomeUnexpected         = "unexpected"
	OutcomeOutdated           = "outdated"
	OutcomeBuffered           = "buffered"
	OutcomeInvalid            = "invalid"
	OutcomeTooFarInFuture     = "too-far-in-future"
	OutcomeLocalNoop          = "local-noop"
)

// errTooFarInFuture marks an assignment whose tranche exceeds the
// clock's current tranche plus the configured grace.
var errTooFarInFuture = errors.New("assignment tranche too far in the future")

// ReputationSink receives per-event reputation deltas. The engine
// implements it with an interval-flushed aggregator.
type ReputationSink interface {
	Charge(peer approval.Identifier, change network.ReputationChange)
}

// pendingMessage is one buffered vote for a block declared in view but
// not yet materialized. Exactly one of assignment/vote is set.
type pendingMessage struct {
	peer       approval.Identifier
	assignment *approval.Assignment
	vote       *approval.ApprovalVote
}

// peerState is everything tracked per connected peer.
type peerState struct {
	view    approval.View
	version approval.ProtocolVersion
}

// Core holds the entire protocol state and implements every state
// transition of the gossip protocol. All methods must be called from
// the single driver loop.
type Core struct {
	log      zerolog.Logger
	cfg      Config
	metrics  module.ApprovalDistributionMetrics
	criteria module.AssignmentCriteria
	verifier module.ApprovalVerifier
	sessions module.SessionInfoProvider
	clock    module.Clock
	consumer module.ApprovalVotingConsumer
	sender   MessageSender
	rep      ReputationSink
	rng      random.Rand

	blocks         map[approval.Identifier]*blockEntry
	blocksByNumber map[approval.BlockNumber]map[approval.Identifier]struct{}
	pending        map[approval.Identifier][]pendingMessage
	peers          map[approval.Identifier]*peerState
	topologies     *topology.SessionTopologies
	recentOutdated *lru.Cache[approval.Identifier, struct{}]

	ourView         approval.View
	finalizedNumber approval.BlockNumber
}

// New constructs an empty Core with the given capabilities. The
// generator seeds all random routing decisions; a fixed seed plus a
// fixed event order replays deterministically.
func New(
	log zerolog.Logger,
	cfg Config,
	metrics module.ApprovalDistributionMetrics,
	criteria module.AssignmentCriteria,
	verifier module.ApprovalVerifier,
	sessions module.SessionInfoProvider,
	clock module.Clock,
	consumer module.ApprovalVotingConsumer,
	sender MessageSender,
	rep ReputationSink,
	rng random.Rand,
) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	recentOutdated, err := lru.New[approval.Identifier, struct{}](cfg.RecentlyOutdatedCapacity)
	if err != nil {
		return nil, fmt.Errorf("could not create recently-outdated ring: %w", err)
	}
	log = log.With().Str("core", "approval_distribution").Logger()
	return &Core{
		log:            log,
		cfg:            cfg,
		metrics:        metrics,
		criteria:       criteria,
		verifier:       verifier,
		sessions:       sessions,
		clock:          clock,
		consumer:       consumer,
		sender:         sender,
		rep:            rep,
		rng:            rng,
		blocks:         make(map[approval.Identifier]*blockEntry),
		blocksByNumber: make(map[approval.BlockNumber]map[approval.Identifier]struct{}),
		pending:        make(map[approval.Identifier][]pendingMessage),
		peers:          make(map[approval.Identifier]*peerState),
		topologies:     topology.NewSessionTopologies(log),
		recentOutdated: recentOutdated,
	}, nil
}

// HandleNewBlocks materializes the given blocks, replays any messages
// buffered for them in arrival order, backfills connected peers that
// already declared them, and re-evaluates aggression.
func (c *Core) HandleNewBlocks(metas []approval.BlockApprovalMeta) {
	added := 0
	for _, meta := range metas {
		if _, ok := c.blocks[meta.Hash]; ok {
			continue
		}
		if meta.Number <= c.finalizedNumber && c.finalizedNumber != 0 {
			continue
		}
		entry := newBlockEntry(meta)
		c.blocks[meta.Hash] = entry
		byNumber, ok := c.blocksByNumber[meta.Number]
		if !ok {
			byNumber = make(map[approval.Identifier]struct{})
			c.blocksByNumber[meta.Number] = byNumber
		}
		byNumber[meta.Hash] = struct{}{}
		c.topologies.IncRef(meta.Session)
		added++

		c.log.Debug().
			Str("block", meta.Hash.String()).
			Uint64("number", uint64(meta.Number)).
			Int("candidates", len(meta.Candidates)).
			Msg("tracking new block")
	}

	// every peer whose view already includes these blocks gets its
	// knowledge reconciled before buffered traffic replays
	for peerID, peer := range c.peers {
		c.unifyWithPeer(peerID, peer.view, false)
	}

	for _, meta := range metas {
		buffered, ok := c.pending[meta.Hash]
		if !ok {
			continue
		}
		delete(c.pending, meta.Hash)
		for _, msg := range buffered {
			source := peerSource(msg.peer)
			if msg.assignment != nil {
				c.importAndCirculateAssignment(source, msg.assignment)
			} else if msg.vote != nil {
				c.importAndCirculateApproval(source, msg.vote)
			}
		}
	}

	if added > 0 {
		c.enableAggression(true)
	}
	c.updateGauges()
}

// HandleBlockFinalized prunes every block at or below the finalized
// number, remembers the pruned hashes as recently outdated, and
// releases their sessions' topology references.
func (c *Core) HandleBlockFinalized(number approval.BlockNumber) {
	if number <= c.finalizedNumber {
		return
	}
	c.finalizedNumber = number

	for n, hashes := range c.blocksByNumber {
		if n > number {
			continue
		}
		for hash := range hashes {
			entry, ok := c.blocks[hash]
			if !ok {
				continue
			}
			delete(c.blocks, hash)
			c.recentOutdated.Add(hash, struct{}{})
			c.topologies.DecRef(entry.session)
		}
		delete(c.blocksByNumber, n)
	}

	c.enableAggression(false)
	c.updateGauges()
}

// HandleNewSessionTopology stores the session's topology and resolves
// the routing of every message that was waiting on it, propagating to
// any peer now reachable.
func (c *Core) HandleNewSessionTopology(topo *topology.SessionGridTopology) {
	session := topo.Session()
	c.topologies.Insert(topo)

	c.adjustRequiredRoutingAndPropagate(
		func(entry *blockEntry) bool { return entry.session == session },
		func(routing *approvalRouting) {
			if routing.required == topology.RoutePendingTopology {
				routing.required = topo.RequiredRoutingByIndex(routing.validator, routing.local)
			}
		},
	)
}

// HandlePeerMessage runs the import pipeline for a sanitized batch
// from one peer. Items for pending blocks are buffered in arrival
// order; everything else imports immediately.
func (c *Core) HandlePeerMessage(peer approval.Identifier, assignments []approval.Assignment, votes []approval.ApprovalVote) {
	for i := range assignments {
		assignment := assignments[i]
		if c.bufferIfPending(assignment.Cert.BlockHash, pendingMessage{peer: peer, assignment: &assignment}) {
			c.metrics.OnAssignmentImported(OutcomeBuffered)
			continue
		}
		c.importAndCirculateAssignment(peerSource(peer), &assignment)
	}
	for i := range votes {
		vote := votes[i]
		if c.bufferIfPending(vote.BlockHash, pendingMessage{peer: peer, vote: &vote}) {
			c.metrics.OnApprovalImported(OutcomeBuffered)
			continue
		}
		c.importAndCirculateApproval(peerSource(peer), &vote)
	}
	c.updateGauges()
}

// bufferIfPending queues the message if its block is declared in view
// but not yet materialized.
func (c *Core) bufferIfPending(blockHash approval.Identifier, msg pendingMessage) bool {
	buffered, ok := c.pending[blockHash]
	if !ok {
		return false
	}
	c.pending[blockHash] = append(buffered, msg)
	return true
}

// DistributeAssignment imports and circulates a locally-originated
// assignment. Reputation and validation do not apply to ourselves.
func (c *Core) DistributeAssignment(assignment *approval.Assignment) {
	c.importAndCirculateAssignment(localSource(), assignment)
}

// DistributeApproval imports and circulates a locally-originated
// approval vote.
func (c *Core) DistributeApproval(vote *approval.ApprovalVote) {
	c.importAndCirculateApproval(localSource(), vote)
}

// importAndCirculateAssignment is the assignment import pipeline of
// one message: classify against block and peer knowledge, validate,
// record, forward downstream, and propagate.
func (c *Core) importAndCirculateAssignment(source messageSource, assignment *approval.Assignment) {
	blockHash := assignment.Cert.BlockHash
	entry, ok := c.blocks[blockHash]
	if !ok {
		c.handleUnknownBlock(source, blockHash, approval.KindAssignment)
		return
	}

	subject := approval.MessageSubject{
		Block:      blockHash,
		Candidates: assignment.CandidateBitfield,
		Validator:  assignment.Cert.Validator,
	}

	if source.fromPeer {
		peer := source.peer
		pk, known := entry.knownBy[peer]
		if known {
			if pk.Contains(subject, approval.KindAssignment) {
				if !pk.Received.Insert(subject, approval.KindAssignment) {
					// repeated receive from the same peer
					if c.resendExpected(entry, peer) {
						c.metrics.OnAssignmentImported(OutcomeDuplicateTolerated)
					} else {
						c.rep.Charge(peer, network.CostDuplicateMessage)
						c.metrics.OnAssignmentImported(OutcomeDuplicate)
					}
				} else if entry.knowledge.Contains(subject, approval.KindAssignment) {
					// the natural race: we sent it to them while they
					// sent it to us
					c.rep.Charge(peer, network.BenefitValidMessage)
					c.metrics.OnAssignmentImported(OutcomeKnown)
				}
				return
			}
		} else {
			// peer has not declared this block; still worth validating
			c.rep.Charge(peer, network.CostUnexpectedMessage)
		}

		if entry.knowledge.Contains(subject, approval.KindAssignment) {
			c.rep.Charge(peer, network.BenefitValidMessage)
			if pk != nil {
				pk.Received.Insert(subject, approval.KindAssignment)
				pk.Sent.Insert(subject, approval.KindAssignment)
			}
			c.metrics.OnAssignmentImported(OutcomeKnown)
			return
		}

		if err := c.checkAssignment(entry, assignment); err != nil {
			if errors.Is(err, errTooFarInFuture) {
				c.rep.Charge(peer, network.CostAssignmentTooFar)
				c.metrics.OnAssignmentImported(OutcomeTooFarInFuture)
			} else {
				c.rep.Charge(peer, network.CostInvalidMessage)
				c.metrics.OnAssignmentImported(OutcomeInvalid)
			}
			c.log.Debug().Err(err).
				Str("peer", peer.String()).
				Str("block", blockHash.String()).
				Msg("rejected assignment")
			return
		}

		c.rep.Charge(peer, network.BenefitValidMessageFirst)
		entry.knowledge.Insert(subject, approval.KindAssignment)
		if pk != nil {
			pk.Received.Insert(subject, approval.KindAssignment)
		}
		c.consumer.ImportAssignment(assignment)
		c.metrics.OnAssignmentImported(OutcomeAccepted)
	} else {
		if !entry.knowledge.Insert(subject, approval.KindAssignment) {
			c.log.Debug().
				Str("block", blockHash.String()).
				Uint32("validator", uint32(assignment.Cert.Validator)).
				Msg("importing locally known assignment is a no-op")
			c.metrics.OnAssignmentImported(OutcomeLocalNoop)
			return
		}
	}

	// register the approval entry and run the two-pass propagation
	local := !source.fromPeer
	required := topology.RoutePendingTopology
	topo := c.topologies.Get(entry.session)
	if topo != nil {
		required = topo.RequiredRoutingByIndex(assignment.Cert.Validator, local)
	}
	ae := entry.insertApprovalEntry(newApprovalEntry(*assignment, approvalRouting{
		required:  required,
		local:     local,
		validator: assignment.Cert.Validator,
		random:    NewRandomRouting(),
	}))

	c.circulateFreshAssignment(entry, ae, source, subject)
}

// circulateFreshAssignment runs the structured pass plus the random
// supplement over every peer already aware of the block.
func (c *Core) circulateFreshAssignment(
	entry *blockEntry,
	ae *approvalEntry,
	source messageSource,
	subject approval.MessageSubject,
) {
	topo := c.topologies.Get(entry.session)
	sends := newPeerSendQueue()
	nPeers := len(c.peers)

	for peer, pk := range entry.knownBy {
		if source.fromPeer && peer == source.peer {
			continue
		}
		if !c.peerSendable(peer) {
			continue
		}
		route := topo != nil && topo.RouteToPeer(ae.routing.required, peer)
		if !route && topo != nil && topo.IsValidatorPeer(peer) && !ae.routing.random.Complete() {
			if ae.routing.random.Sample(nPeers, c.rng) {
				ae.routing.markRandomlySent(peer)
				route = true
			}
		}
		if !route {
			continue
		}
		if pk.Sent.Contains(subject, approval.KindAssignment) {
			continue
		}
		pk.Sent.Insert(subject, approval.KindAssignment)
		sends.queueAssignment(peer, ae.assignment)
		c.metrics.OnAssignmentsSent(1)
	}

	sends.flush(c.sender)
}

// importAndCirculateApproval is the approval import pipeline of one
// vote.
func (c *Core) importAndCirculateApproval(source messageSource, vote *approval.ApprovalVote) {
	entry, ok := c.blocks[vote.BlockHash]
	if !ok {
		c.handleUnknownBlock(source, vote.BlockHash, approval.KindApproval)
		return
	}

	subject := approval.MessageSubject{
		Block:      vote.BlockHash,
		Candidates: vote.CandidateBitfield,
		Validator:  vote.Validator,
	}

	if source.fromPeer {
		peer := source.peer
		pk, known := entry.knownBy[peer]
		if known {
			if pk.Contains(subject, approval.KindApproval) {
				if !pk.Received.Insert(subject, approval.KindApproval) {
					if c.resendExpected(entry, peer) {
						c.metrics.OnApprovalImported(OutcomeDuplicateTolerated)
					} else {
						c.rep.Charge(peer, network.CostDuplicateMessage)
						c.metrics.OnApprovalImported(OutcomeDuplicate)
					}
				} else if entry.knowledge.Contains(subject, approval.KindApproval) {
					c.rep.Charge(peer, network.BenefitValidMessage)
					c.metrics.OnApprovalImported(OutcomeKnown)
				}
				return
			}
		} else {
			c.rep.Charge(peer, network.CostUnexpectedMessage)
		}

		if entry.knowledge.Contains(subject, approval.KindApproval) {
			c.rep.Charge(peer, network.BenefitValidMessage)
			if pk != nil {
				pk.Received.Insert(subject, approval.KindApproval)
				pk.Sent.Insert(subject, approval.KindApproval)
			}
			c.metrics.OnApprovalImported(OutcomeKnown)
			return
		}

		// every per-candidate assignment must already be known
		if !c.assignmentsKnownFor(entry, subject) {
			c.rep.Charge(peer, network.CostUnexpectedMessage)
			c.metrics.OnApprovalImported(OutcomeUnexpected)
			c.log.Debug().
				Str("peer", peer.String()).
				Str("block", vote.BlockHash.String()).
				Msg("approval for unknown assignment")
			return
		}

		if err := c.checkApproval(entry, vote); err != nil {
			c.rep.Charge(peer, network.CostInvalidMessage)
			c.metrics.OnApprovalImported(OutcomeInvalid)
			c.log.Debug().Err(err).
				Str("peer", peer.String()).
				Str("block", vote.BlockHash.String()).
				Msg("rejected approval")
			return
		}

		c.rep.Charge(peer, network.BenefitValidMessageFirst)
		entry.knowledge.Insert(subject, approval.KindApproval)
		if pk != nil {
			pk.Received.Insert(subject, approval.KindApproval)
		}
		c.consumer.ImportApproval(vote)
		c.metrics.OnApprovalImported(OutcomeAccepted)
	} else {
		if !c.assignmentsKnownFor(entry, subject) {
			c.log.Warn().
				Str("block", vote.BlockHash.String()).
				Uint32("validator", uint32(vote.Validator)).
				Msg("local approval without known assignment, dropping")
			return
		}
		if !entry.knowledge.Insert(subject, approval.KindApproval) {
			c.log.Debug().
				Str("block", vote.BlockHash.String()).
				Uint32("validator", uint32(vote.Validator)).
				Msg("importing locally known approval is a no-op")
			c.metrics.OnApprovalImported(OutcomeLocalNoop)
			return
		}
	}

	required, randomPeers, err := entry.noteApproval(*vote)
	if err != nil {
		// the assignment knowledge check above makes this an
		// internal inconsistency, not a peer fault
		c.log.Warn().Err(err).
			Str("block", vote.BlockHash.String()).
			Uint32("validator", uint32(vote.Validator)).
			Msg("could not note approval against its assignment entries")
		return
	}

	c.circulateApproval(entry, *vote, subject, required, randomPeers, source)
}

// circulateApproval sends the vote to every block-aware peer reachable
// via the combined required routing or covered by the assignments'
// random audience.
func (c *Core) circulateApproval(
	entry *blockEntry,
	vote approval.ApprovalVote,
	subject approval.MessageSubject,
	required topology.RequiredRouting,
	randomPeers map[approval.Identifier]struct{},
	source messageSource,
) {
	topo := c.topologies.Get(entry.session)
	sends := newPeerSendQueue()

	for peer, pk := range entry.knownBy {
		if source.fromPeer && peer == source.peer {
			continue
		}
		if !c.peerSendable(peer) {
			continue
		}
		route := topo != nil && topo.RouteToPeer(required, peer)
		if !route {
			_, route = randomPeers[peer]
		}
		if !route {
			continue
		}
		if pk.Sent.Contains(subject, approval.KindApproval) {
			continue
		}
		pk.Sent.Insert(subject, approval.KindApproval)
		sends.queueApproval(peer, vote)
		c.metrics.OnApprovalsSent(1)
	}

	sends.flush(c.sender)
}

// handleUnknownBlock resolves a message for a block we do not track:
// recently-finalized traffic is merely late, anything else is
// unexpected.
func (c *Core) handleUnknownBlock(source messageSource, blockHash approval.Identifier, kind approval.MessageKind) {
	outcome := OutcomeOutdated
	if source.fromPeer && !c.recentOutdated.Contains(blockHash) {
		c.rep.Charge(source.peer, network.CostUnexpectedMessage)
		outcome = OutcomeUnexpected
	}
	switch kind {
	case approval.KindAssignment:
		c.metrics.OnAssignmentImported(outcome)
	case approval.KindApproval:
		c.metrics.OnApprovalImported(outcome)
	}
}

// assignmentsKnownFor reports whether, for every candidate the subject
// claims, the per-candidate assignment subject is locally known.
func (c *Core) assignmentsKnownFor(entry *blockEntry, subject approval.MessageSubject) bool {
	for _, sub := range subject.Decompose() {
		if !entry.knowledge.Contains(sub, approval.KindAssignment) {
			return false
		}
	}
	return true
}

// checkAssignment validates structure, certificate and tranche of an
// assignment against this block.
func (c *Core) checkAssignment(entry *blockEntry, assignment *approval.Assignment) error {
	claimed := assignment.CandidateBitfield
	if claimed.Len() > uint(len(entry.candidates)) {
		return fmt.Errorf("claimed bitfield length %d exceeds %d candidates", claimed.Len(), len(entry.candidates))
	}

	info, err := c.sessions.SessionInfo(entry.hash, entry.session)
	if err != nil {
		return fmt.Errorf("session info for session %d: %w", entry.session, err)
	}
	if uint32(assignment.Cert.Validator) >= info.ValidatorCount {
		return fmt.Errorf("validator index %d out of range", assignment.Cert.Validator)
	}

	tranche, err := c.criteria.CheckAssignmentCert(
		assignment.Cert.Cert.Cores,
		assignment.Cert.Validator,
		info,
		entry.vrfStory,
		&assignment.Cert.Cert,
		c.backingGroups(entry, assignment.Cert.Cert.Cores),
	)
	if err != nil {
		return fmt.Errorf("invalid assignment certificate: %w", err)
	}

	now := c.clock.TrancheNow(info.SlotDurationMillis, entry.slot)
	if tranche > now+c.cfg.TrancheGrace {
		return fmt.Errorf("tranche %d, now %d: %w", tranche, now, errTooFarInFuture)
	}
	return nil
}

// checkApproval verifies the vote's aggregate signature over the
// candidate hashes it claims.
func (c *Core) checkApproval(entry *blockEntry, vote *approval.ApprovalVote) error {
	candidates := make([]approval.Identifier, 0, vote.CandidateBitfield.Count())
	for _, i := range vote.CandidateBitfield.Indices() {
		if int(i) >= len(entry.candidatesMeta) {
			return fmt.Errorf("candidate index %d out of range", i)
		}
		candidates = append(candidates, entry.candidatesMeta[i].Hash)
	}
	if err := c.verifier.VerifyApproval(vote, entry.session, candidates); err != nil {
		return fmt.Errorf("invalid approval signature: %w", err)
	}
	return nil
}

// backingGroups collects the backing group of every candidate whose
// core the certificate claims.
func (c *Core) backingGroups(entry *blockEntry, cores approval.CoreBitfield) []approval.GroupIndex {
	groups := make([]approval.GroupIndex, 0, cores.Count())
	for _, meta := range entry.candidatesMeta {
		if cores.Test(uint(meta.Core)) {
			groups = append(groups, meta.Group)
		}
	}
	return groups
}

// ApprovalSignatureItem is one validator's approval evidence over
// candidates of a block.
type ApprovalSignatureItem struct {
	BlockHash  approval.Identifier
	Candidates []approval.CandidateIndex
	Signature  approval.ValidatorSignature
}

// CandidateRef addresses one candidate of one block.
type CandidateRef struct {
	BlockHash approval.Identifier
	Candidate approval.CandidateIndex
}

// ApprovalSignatures returns, for the queried candidates, every known
// approval vote's signature keyed by its validator.
func (c *Core) ApprovalSignatures(targets []CandidateRef) map[approval.ValidatorIndex]ApprovalSignatureItem {
	wanted := make(map[approval.Identifier]map[approval.CandidateIndex]struct{})
	for _, target := range targets {
		byBlock, ok := wanted[target.BlockHash]
		if !ok {
			byBlock = make(map[approval.CandidateIndex]struct{})
			wanted[target.BlockHash] = byBlock
		}
		byBlock[target.Candidate] = struct{}{}
	}

	out := make(map[approval.ValidatorIndex]ApprovalSignatureItem)
	for blockHash, candidates := range wanted {
		entry, ok := c.blocks[blockHash]
		if !ok {
			continue
		}
		for _, ae := range entry.orderedApprovalEntries() {
			for _, vote := range ae.approvals {
				matches := false
				indices := make([]approval.CandidateIndex, 0, vote.CandidateBitfield.Count())
				for _, i := range vote.CandidateBitfield.Indices() {
					index := approval.CandidateIndex(i)
					indices = append(indices, index)
					if _, ok := candidates[index]; ok {
						matches = true
					}
				}
				if matches {
					out[ae.validator] = ApprovalSignatureItem{
						BlockHash:  blockHash,
						Candidates: indices,
						Signature:  vote.Signature,
					}
				}
			}
		}
	}
	return out
}

// viewSpan returns the lowest and highest tracked block numbers.
func (c *Core) viewSpan() (min, max approval.BlockNumber, ok bool) {
	for n := range c.blocksByNumber {
		if !ok {
			min, max = n, n
			ok = true
			continue
		}
		if n < min {
			min = n
		}
		if n > max {
			max = n
		}
	}
	return min, max, ok
}

// resendExpected reports whether duplicates from this validator peer
// for this block are currently tolerated because aggression is
// forcing retransmission. Deliberately keyed off the age span of the
// whole view rather than this block alone, mirroring the upstream
// protocol; see DESIGN.md.
func (c *Core) resendExpected(entry *blockEntry, peer approval.Identifier) bool {
	period := c.cfg.Aggression.ResendUnfinalizedPeriod
	if period == 0 {
		return false
	}
	min, max, ok := c.viewSpan()
	if !ok || max-min < period {
		return false
	}
	topo := c.topologies.Get(entry.session)
	return topo != nil && topo.IsValidatorPeer(peer)
}

// updateGauges refreshes the block and pending-buffer gauges.
func (c *Core) updateGauges() {
	c.metrics.SetActiveBlocks(len(c.blocks))
	pending := 0
	for _, buffered := range c.pending {
		pending += len(buffered)
	}
	c.metrics.SetPendingMessages(pending)
}

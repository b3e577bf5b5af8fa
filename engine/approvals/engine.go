// Package approvals hosts the protocol driver of approval-vote
// distribution: the network-facing engine that serializes every
// external event through one processing loop owned by the core state
// machine.
package approvals

import (
	"context"
	"fmt"
	"time"

	"github.com/onflow/flow-go/crypto/random"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/relaynet/approvaldist/engine"
	"github.com/relaynet/approvaldist/model/approval"
	"github.com/relaynet/approvaldist/module"
	"github.com/relaynet/approvaldist/module/approvaldist"
	"github.com/relaynet/approvaldist/network"
	"github.com/relaynet/approvaldist/topology"
)

const (
	// defaultPeerMessageQueueCapacity bounds buffered peer traffic;
	// overflow drops the newest message.
	defaultPeerMessageQueueCapacity = 10_000

	// defaultCommandQueueCapacity bounds buffered local events.
	defaultCommandQueueCapacity = 1_000

	// defaultReputationFlushInterval is how often aggregated reputation
	// deltas are reported.
	defaultReputationFlushInterval = 30 * time.Second
)

// Local events, queued through the same handler as peer traffic so the
// core sees one serialized stream.
type (
	peerConnectedCmd struct {
		peer    approval.Identifier
		version approval.ProtocolVersion
	}
	peerDisconnectedCmd struct{ peer approval.Identifier }
	peerViewCmd         struct {
		peer approval.Identifier
		view approval.View
	}
	ourViewCmd          struct{ view approval.View }
	authorityUpdateCmd  struct{ peer approval.Identifier }
	newTopologyCmd      struct{ topo *topology.SessionGridTopology }
	newBlocksCmd        struct{ metas []approval.BlockApprovalMeta }
	blockFinalizedCmd   struct{ number approval.BlockNumber }
	distributeAssignmentCmd struct{ assignment *approval.Assignment }
	distributeApprovalCmd   struct{ vote *approval.ApprovalVote }
	approvalSignaturesCmd   struct {
		targets []approvaldist.CandidateRef
		resp    chan map[approval.ValidatorIndex]approvaldist.ApprovalSignatureItem
	}
)

// Engine is the approval-distribution protocol driver. It owns the
// single loop that applies peer messages and local commands to the
// core, implements the core's outbound sender on top of the network
// conduit, and runs the periodic reputation flush.
type Engine struct {
	unit    *engine.Unit
	log     zerolog.Logger
	metrics module.ApprovalDistributionMetrics

	core *approvaldist.Core
	rep  *ReputationAggregator
	con  network.Conduit

	messageHandler      *engine.MessageHandler
	pendingPeerMessages *engine.FifoMessageStore
	pendingCommands     *engine.FifoMessageStore

	flushInterval time.Duration
	lag           *atomic.Uint64
}

var _ network.Engine = (*Engine)(nil)
var _ approvaldist.MessageSender = (*Engine)(nil)

// New constructs the engine, wires the core against it, and registers
// it on the approval-distribution channel.
func New(
	log zerolog.Logger,
	metrics module.ApprovalDistributionMetrics,
	net network.Network,
	reporter network.ReputationReporter,
	cfg approvaldist.Config,
	criteria module.AssignmentCriteria,
	verifier module.ApprovalVerifier,
	sessions module.SessionInfoProvider,
	clock module.Clock,
	consumer module.ApprovalVotingConsumer,
	rng random.Rand,
) (*Engine, error) {

	log = log.With().Str("engine", "approval_distribution").Logger()

	pendingPeerMessages, err := engine.NewFifoMessageStore(defaultPeerMessageQueueCapacity)
	if err != nil {
		return nil, fmt.Errorf("could not create peer message queue: %w", err)
	}
	pendingCommands, err := engine.NewFifoMessageStore(defaultCommandQueueCapacity)
	if err != nil {
		return nil, fmt.Errorf("could not create command queue: %w", err)
	}

	notifier := module.NewNotifier()
	messageHandler := engine.NewMessageHandler(
		log,
		notifier,
		engine.Pattern{
			Match: func(msg *engine.Message) bool {
				switch msg.Payload.(type) {
				case *approval.AssignmentsV1, *approval.ApprovalsV1:
					return true
				}
				return false
			},
			Store: pendingPeerMessages,
		},
		engine.Pattern{
			Match: func(msg *engine.Message) bool {
				switch msg.Payload.(type) {
				case peerConnectedCmd, peerDisconnectedCmd, peerViewCmd, ourViewCmd,
					authorityUpdateCmd, newTopologyCmd, newBlocksCmd, blockFinalizedCmd,
					distributeAssignmentCmd, distributeApprovalCmd, approvalSignaturesCmd:
					return true
				}
				return false
			},
			Store: pendingCommands,
		},
	)

	e := &Engine{
		unit:                engine.NewUnit(),
		log:                 log,
		metrics:             metrics,
		rep:                 NewReputationAggregator(log, reporter),
		messageHandler:      messageHandler,
		pendingPeerMessages: pendingPeerMessages,
		pendingCommands:     pendingCommands,
		flushInterval:       defaultReputationFlushInterval,
		lag:                 atomic.NewUint64(0),
	}

	core, err := approvaldist.New(log, cfg, metrics, criteria, verifier, sessions, clock, consumer, e, e.rep, rng)
	if err != nil {
		return nil, fmt.Errorf("could not create approval-distribution core: %w", err)
	}
	e.core = core

	con, err := net.Register(network.ChannelApprovalDistribution, e)
	if err != nil {
		return nil, fmt.Errorf("could not register engine on approval channel: %w", err)
	}
	e.con = con

	return e, nil
}

// Ready launches the processing loop and the reputation flusher and
// returns a channel closed once the engine accepts work.
func (e *Engine) Ready() <-chan struct{} {
	e.unit.Launch(e.loop)
	e.unit.Launch(e.reputationFlushLoop)
	return e.unit.Ready()
}

// Done shuts the engine down and returns a channel closed once both
// workers have exited. The flusher reports any residual deltas on the
// way out.
func (e *Engine) Done() <-chan struct{} {
	return e.unit.Done()
}

// Process accepts a batch from a peer on the given channel. It only
// queues; all real work happens on the loop.
func (e *Engine) Process(channel network.Channel, originID approval.Identifier, event interface{}) error {
	err := e.messageHandler.Process(originID, event)
	if engine.IsIncompatibleInputTypeError(err) {
		e.log.Warn().
			Str("channel", string(channel)).
			Str("origin_id", originID.String()).
			Msgf("discarding message of unknown type %T", event)
		return nil
	}
	return err
}

// submit queues a local command, logging if the command queue is
// saturated.
func (e *Engine) submit(cmd interface{}) {
	err := e.messageHandler.Process(approval.ZeroID, cmd)
	if err != nil {
		e.log.Error().Err(err).Msgf("could not queue %T", cmd)
	}
}

// PeerConnected informs the engine of a new peer on the channel and
// the protocol version it negotiated.
func (e *Engine) PeerConnected(peer approval.Identifier, version approval.ProtocolVersion) {
	e.submit(peerConnectedCmd{peer: peer, version: version})
}

// PeerDisconnected informs the engine a peer left the channel.
func (e *Engine) PeerDisconnected(peer approval.Identifier) {
	e.submit(peerDisconnectedCmd{peer: peer})
}

// PeerViewChange informs the engine of a peer's updated view.
func (e *Engine) PeerViewChange(peer approval.Identifier, view approval.View) {
	e.submit(peerViewCmd{peer: peer, view: view})
}

// OurViewChange informs the engine of the local node's updated view.
func (e *Engine) OurViewChange(view approval.View) {
	e.submit(ourViewCmd{view: view})
}

// UpdatedAuthorityMapping informs the engine that the peer's validator
// identity resolved or changed.
func (e *Engine) UpdatedAuthorityMapping(peer approval.Identifier) {
	e.submit(authorityUpdateCmd{peer: peer})
}

// NewGossipTopology installs the grid topology of a session.
func (e *Engine) NewGossipTopology(topo *topology.SessionGridTopology) {
	e.submit(newTopologyCmd{topo: topo})
}

// NewBlocks starts tracking freshly-imported blocks.
func (e *Engine) NewBlocks(metas []approval.BlockApprovalMeta) {
	e.submit(newBlocksCmd{metas: metas})
}

// BlockFinalized prunes state at and below the finalized number.
func (e *Engine) BlockFinalized(number approval.BlockNumber) {
	e.submit(blockFinalizedCmd{number: number})
}

// DistributeAssignment circulates a locally-originated assignment.
func (e *Engine) DistributeAssignment(assignment *approval.Assignment) {
	e.submit(distributeAssignmentCmd{assignment: assignment})
}

// DistributeApproval circulates a locally-originated approval vote.
func (e *Engine) DistributeApproval(vote *approval.ApprovalVote) {
	e.submit(distributeApprovalCmd{vote: vote})
}

// GetApprovalSignatures returns every known approval signature over
// the queried candidates, keyed by validator. Blocks until the loop
// serves the request or the context ends.
func (e *Engine) GetApprovalSignatures(ctx context.Context, targets []approvaldist.CandidateRef) (map[approval.ValidatorIndex]approvaldist.ApprovalSignatureItem, error) {
	resp := make(chan map[approval.ValidatorIndex]approvaldist.ApprovalSignatureItem, 1)
	e.submit(approvalSignaturesCmd{targets: targets, resp: resp})
	select {
	case sigs := <-resp:
		return sigs, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.unit.Quit():
		return nil, fmt.Errorf("engine shutting down")
	}
}

// ApprovalCheckingLagUpdate records the current approval-checking lag
// in blocks.
func (e *Engine) ApprovalCheckingLagUpdate(lag uint64) {
	e.lag.Store(lag)
	e.metrics.SetApprovalCheckingLag(lag)
}

// Lag returns the last reported approval-checking lag.
func (e *Engine) Lag() uint64 {
	return e.lag.Load()
}

// loop is the single processing loop: it drains commands first, then
// peer traffic, strictly one event at a time.
func (e *Engine) loop() {
	notifier := e.messageHandler.GetNotifier()
	for {
		select {
		case <-e.unit.Quit():
			return
		case <-notifier:
			e.processAvailableMessages()
		}
	}
}

func (e *Engine) processAvailableMessages() {
	for {
		select {
		case <-e.unit.Quit():
			return
		default:
		}

		if msg, ok := e.pendingCommands.Get(); ok {
			e.processCommand(msg.Payload)
			continue
		}
		if msg, ok := e.pendingPeerMessages.Get(); ok {
			e.processPeerMessage(msg.OriginID, msg.Payload)
			continue
		}
		return
	}
}

func (e *Engine) processCommand(payload interface{}) {
	switch cmd := payload.(type) {
	case peerConnectedCmd:
		e.core.HandlePeerConnected(cmd.peer, cmd.version)
	case peerDisconnectedCmd:
		e.core.HandlePeerDisconnected(cmd.peer)
	case peerViewCmd:
		e.core.HandlePeerViewChange(cmd.peer, cmd.view)
	case ourViewCmd:
		e.core.HandleOurViewChange(cmd.view)
	case authorityUpdateCmd:
		e.core.HandleUpdatedAuthorityMapping(cmd.peer)
	case newTopologyCmd:
		e.core.HandleNewSessionTopology(cmd.topo)
	case newBlocksCmd:
		e.core.HandleNewBlocks(cmd.metas)
	case blockFinalizedCmd:
		e.core.HandleBlockFinalized(cmd.number)
	case distributeAssignmentCmd:
		e.core.DistributeAssignment(cmd.assignment)
	case distributeApprovalCmd:
		e.core.DistributeApproval(cmd.vote)
	case approvalSignaturesCmd:
		cmd.resp <- e.core.ApprovalSignatures(cmd.targets)
	default:
		e.log.Error().Msgf("unexpected command type %T", payload)
	}
}

func (e *Engine) processPeerMessage(originID approval.Identifier, payload interface{}) {
	switch batch := payload.(type) {
	case *approval.AssignmentsV1:
		accepted, violations, err := sanitizeAssignments(batch)
		if violations > 0 {
			e.log.Warn().Err(err).
				Str("origin_id", originID.String()).
				Int("dropped", len(batch.Assignments)-len(accepted)).
				Msg("dropping malformed assignments from batch")
			for i := 0; i < violations; i++ {
				e.rep.Charge(originID, network.CostOversizedBitfield)
			}
		}
		if len(accepted) > 0 {
			e.core.HandlePeerMessage(originID, accepted, nil)
		}
	case *approval.ApprovalsV1:
		accepted, violations, err := sanitizeApprovals(batch)
		if violations > 0 {
			e.log.Warn().Err(err).
				Str("origin_id", originID.String()).
				Int("dropped", len(batch.Approvals)-len(accepted)).
				Msg("dropping malformed approvals from batch")
			for i := 0; i < violations; i++ {
				e.rep.Charge(originID, network.CostOversizedBitfield)
			}
		}
		if len(accepted) > 0 {
			e.core.HandlePeerMessage(originID, nil, accepted)
		}
	default:
		e.log.Error().Msgf("unexpected peer message type %T", payload)
	}
}

// reputationFlushLoop periodically reports aggregated reputation
// deltas, with a final flush at shutdown.
func (e *Engine) reputationFlushLoop() {
	ticker := time.NewTicker(e.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.unit.Quit():
			e.metrics.OnReputationFlush(e.rep.Flush())
			return
		case <-ticker.C:
			e.metrics.OnReputationFlush(e.rep.Flush())
		}
	}
}

// SendAssignments delivers assignments to the peers in batches capped
// at the wire limit. Batches are peer-specific (each peer is owed a
// different backlog), so delivery is one unicast per peer and batch.
func (e *Engine) SendAssignments(peers []approval.Identifier, assignments []approval.Assignment) {
	for len(assignments) > 0 {
		n := approval.MaxAssignmentBatch
		if n > len(assignments) {
			n = len(assignments)
		}
		batch := &approval.AssignmentsV1{Assignments: assignments[:n]}
		assignments = assignments[n:]
		for _, peer := range peers {
			if err := e.con.Unicast(batch, peer); err != nil {
				e.log.Warn().Err(err).
					Str("peer", peer.String()).
					Int("count", n).
					Msg("could not send assignment batch")
			}
		}
	}
}

// SendApprovals delivers approval votes to the peers in batches capped
// at the wire limit.
func (e *Engine) SendApprovals(peers []approval.Identifier, votes []approval.ApprovalVote) {
	for len(votes) > 0 {
		n := approval.MaxApprovalBatch
		if n > len(votes) {
			n = len(votes)
		}
		batch := &approval.ApprovalsV1{Approvals: votes[:n]}
		votes = votes[n:]
		for _, peer := range peers {
			if err := e.con.Unicast(batch, peer); err != nil {
				e.log.Warn().Err(err).
					Str("peer", peer.String()).
					Int("count", n).
					Msg("could not send approval batch")
			}
		}
	}
}

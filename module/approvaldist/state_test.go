package approvaldist

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaynet/approvaldist/model/approval"
	"github.com/relaynet/approvaldist/network"
	"github.com/relaynet/approvaldist/utils/unittest"
)

// The grid in these tests is 9 validators wide 3. We are validator 0,
// so our row is {1, 2} and our column is {3, 6}. A message originated
// by validator 1 (our row) must route along our column.

func peerID(validator approval.ValidatorIndex) approval.Identifier {
	return unittest.PeerIDForValidator(validator)
}

func TestAssignmentImportForwardsAndCirculates(t *testing.T) {
	f := newCoreFixture(t, DefaultConfig())
	meta := unittest.BlockMetaFixture(unittest.WithCandidates(2), unittest.WithSession(1))
	f.connectGrid(9, unittest.ViewFixture(0, meta.Hash))
	f.core.HandleNewBlocks([]approval.BlockApprovalMeta{meta})

	assignment := unittest.AssignmentFixture(meta.Hash, 1, 0)
	f.core.HandlePeerMessage(peerID(1), []approval.Assignment{assignment}, nil)

	// forwarded downstream exactly once, origin credited as first
	require.Len(t, f.consumer.assignments, 1)
	require.Equal(t, network.BenefitValidMessageFirst.Delta, f.rep.total(peerID(1)))

	// structured pass reaches our column, never the origin
	assert.NotEmpty(t, f.sender.assignments[peerID(3)])
	assert.NotEmpty(t, f.sender.assignments[peerID(6)])
	assert.Empty(t, f.sender.assignments[peerID(1)])

	// a straight resend from the origin is a punishable duplicate
	f.core.HandlePeerMessage(peerID(1), []approval.Assignment{assignment}, nil)
	require.Len(t, f.consumer.assignments, 1)
	assert.Equal(t,
		network.BenefitValidMessageFirst.Delta+network.CostDuplicateMessage.Delta,
		f.rep.total(peerID(1)))

	// an echo from a peer we sent to is the benign race, credited
	f.core.HandlePeerMessage(peerID(3), []approval.Assignment{assignment}, nil)
	require.Len(t, f.consumer.assignments, 1)
	assert.Equal(t, network.BenefitValidMessage.Delta, f.rep.total(peerID(3)))
}

func TestAssignmentInvalidCertificate(t *testing.T) {
	f := newCoreFixture(t, DefaultConfig())
	f.criteria.err = errors.New("bad vrf")
	meta := unittest.BlockMetaFixture(unittest.WithCandidates(1), unittest.WithSession(1))
	f.connectGrid(9, unittest.ViewFixture(0, meta.Hash))
	f.core.HandleNewBlocks([]approval.BlockApprovalMeta{meta})

	assignment := unittest.AssignmentFixture(meta.Hash, 1, 0)
	f.core.HandlePeerMessage(peerID(1), []approval.Assignment{assignment}, nil)

	require.Empty(t, f.consumer.assignments)
	assert.Equal(t, network.CostInvalidMessage.Delta, f.rep.total(peerID(1)))
	assert.Empty(t, f.sender.assignments)
}

func TestAssignmentTooFarInFuture(t *testing.T) {
	f := newCoreFixture(t, DefaultConfig())
	f.criteria.tranche = DefaultConfig().TrancheGrace + 50
	f.clock.tranche = 0
	meta := unittest.BlockMetaFixture(unittest.WithCandidates(1), unittest.WithSession(1))
	f.connectGrid(9, unittest.ViewFixture(0, meta.Hash))
	f.core.HandleNewBlocks([]approval.BlockApprovalMeta{meta})

	assignment := unittest.AssignmentFixture(meta.Hash, 1, 0)
	f.core.HandlePeerMessage(peerID(1), []approval.Assignment{assignment}, nil)

	require.Empty(t, f.consumer.assignments)
	assert.Equal(t, network.CostAssignmentTooFar.Delta, f.rep.total(peerID(1)))
}

func TestApprovalRequiresKnownAssignment(t *testing.T) {
	f := newCoreFixture(t, DefaultConfig())
	meta := unittest.BlockMetaFixture(unittest.WithCandidates(1), unittest.WithSession(1))
	f.connectGrid(9, unittest.ViewFixture(0, meta.Hash))
	f.core.HandleNewBlocks([]approval.BlockApprovalMeta{meta})

	vote := unittest.ApprovalVoteFixture(meta.Hash, 1, 0)
	f.core.HandlePeerMessage(peerID(1), nil, []approval.ApprovalVote{vote})

	require.Empty(t, f.consumer.approvals)
	assert.Equal(t, 0, f.verifier.calls)
	assert.Equal(t, network.CostUnexpectedMessage.Delta, f.rep.total(peerID(1)))
}

func TestApprovalImportAndCirculate(t *testing.T) {
	f := newCoreFixture(t, DefaultConfig())
	meta := unittest.BlockMetaFixture(unittest.WithCandidates(1), unittest.WithSession(1))
	f.connectGrid(9, unittest.ViewFixture(0, meta.Hash))
	f.core.HandleNewBlocks([]approval.BlockApprovalMeta{meta})

	assignment := unittest.AssignmentFixture(meta.Hash, 1, 0)
	f.core.HandlePeerMessage(peerID(1), []approval.Assignment{assignment}, nil)
	f.sender.reset()

	vote := unittest.ApprovalVoteFixture(meta.Hash, 1, 0)
	f.core.HandlePeerMessage(peerID(1), nil, []approval.ApprovalVote{vote})

	require.Len(t, f.consumer.approvals, 1)
	assert.Equal(t, 1, f.verifier.calls)

	// the approval follows the assignment's routing
	assert.NotEmpty(t, f.sender.approvals[peerID(3)])
	assert.NotEmpty(t, f.sender.approvals[peerID(6)])
	assert.Empty(t, f.sender.approvals[peerID(1)])
}

func TestApprovalDuplicateRace(t *testing.T) {
	f := newCoreFixture(t, DefaultConfig())
	meta := unittest.BlockMetaFixture(unittest.WithCandidates(1), unittest.WithSession(1))
	f.connectGrid(9, unittest.ViewFixture(0, meta.Hash))
	f.core.HandleNewBlocks([]approval.BlockApprovalMeta{meta})

	assignment := unittest.AssignmentFixture(meta.Hash, 1, 0)
	f.core.HandlePeerMessage(peerID(1), []approval.Assignment{assignment}, nil)
	f.sender.reset()

	// the local node circulates the approval first
	vote := unittest.ApprovalVoteFixture(meta.Hash, 1, 0)
	f.core.DistributeApproval(&vote)
	require.NotEmpty(t, f.sender.approvals[peerID(3)])

	// then peer 3 sends us the same vote it got independently
	f.core.HandlePeerMessage(peerID(3), nil, []approval.ApprovalVote{vote})

	// benign race: credited, never re-imported downstream
	assert.Equal(t, network.BenefitValidMessage.Delta, f.rep.total(peerID(3)))
	require.Empty(t, f.consumer.approvals)

	subject := approval.MessageSubject{
		Block:      meta.Hash,
		Candidates: vote.CandidateBitfield,
		Validator:  1,
	}
	pk := f.core.blocks[meta.Hash].knownBy[peerID(3)]
	require.NotNil(t, pk)
	assert.True(t, pk.Sent.Contains(subject, approval.KindApproval))
	assert.True(t, pk.Received.Contains(subject, approval.KindApproval))
}

func TestLocalImportIsIdempotent(t *testing.T) {
	f := newCoreFixture(t, DefaultConfig())
	meta := unittest.BlockMetaFixture(unittest.WithCandidates(1), unittest.WithSession(1))
	f.connectGrid(9, unittest.ViewFixture(0, meta.Hash))
	f.core.HandleNewBlocks([]approval.BlockApprovalMeta{meta})

	assignment := unittest.AssignmentFixture(meta.Hash, 0, 0)
	f.core.DistributeAssignment(&assignment)
	sent := len(f.sender.assignments)
	require.NotZero(t, sent)

	f.sender.reset()
	f.core.DistributeAssignment(&assignment)
	assert.Empty(t, f.sender.assignments)
}

func TestPendingBufferReplay(t *testing.T) {
	f := newCoreFixture(t, DefaultConfig())
	meta := unittest.BlockMetaFixture(unittest.WithCandidates(1), unittest.WithSession(1))
	view := unittest.ViewFixture(0, meta.Hash)
	f.connectGrid(9, view)

	// the block is in our view but not yet materialized
	f.core.HandleOurViewChange(view)

	assignment := unittest.AssignmentFixture(meta.Hash, 1, 0)
	f.core.HandlePeerMessage(peerID(1), []approval.Assignment{assignment}, nil)

	require.Empty(t, f.consumer.assignments)
	assert.Equal(t, 0, f.criteria.calls)
	assert.Zero(t, f.rep.total(peerID(1)))

	// materializing the block replays the buffer
	f.core.HandleNewBlocks([]approval.BlockApprovalMeta{meta})
	require.Len(t, f.consumer.assignments, 1)
	assert.Equal(t, network.BenefitValidMessageFirst.Delta, f.rep.total(peerID(1)))
}

func TestOurViewChangeDropsStaleBuffers(t *testing.T) {
	f := newCoreFixture(t, DefaultConfig())
	headA := unittest.IdentifierFixture()
	headB := unittest.IdentifierFixture()

	f.core.HandleOurViewChange(unittest.ViewFixture(0, headA))
	require.Contains(t, f.core.pending, headA)

	f.core.HandleOurViewChange(unittest.ViewFixture(0, headB))
	assert.NotContains(t, f.core.pending, headA)
	assert.Contains(t, f.core.pending, headB)
}

func TestFinalizationPrunesAndExcusesLateTraffic(t *testing.T) {
	f := newCoreFixture(t, DefaultConfig())
	chain := unittest.ChainFixture(3, 1, unittest.WithCandidates(1), unittest.WithSession(1))
	heads := []approval.Identifier{chain[0].Hash, chain[2].Hash}
	f.connectGrid(9, unittest.ViewFixture(0, heads...))
	f.core.HandleNewBlocks(chain)

	f.core.HandleBlockFinalized(2)

	assert.NotContains(t, f.core.blocks, chain[0].Hash)
	assert.NotContains(t, f.core.blocks, chain[1].Hash)
	assert.Contains(t, f.core.blocks, chain[2].Hash)

	// traffic for a just-pruned block is late, not hostile
	late := unittest.AssignmentFixture(chain[0].Hash, 1, 0)
	f.core.HandlePeerMessage(peerID(1), []approval.Assignment{late}, nil)
	assert.Zero(t, f.rep.total(peerID(1)))

	// traffic for a block we never saw is unexpected
	bogus := unittest.AssignmentFixture(unittest.IdentifierFixture(), 2, 0)
	f.core.HandlePeerMessage(peerID(2), []approval.Assignment{bogus}, nil)
	assert.Equal(t, network.CostUnexpectedMessage.Delta, f.rep.total(peerID(2)))
}

func TestPeerDisconnectForgetsKnowledge(t *testing.T) {
	f := newCoreFixture(t, DefaultConfig())
	meta := unittest.BlockMetaFixture(unittest.WithCandidates(1), unittest.WithSession(1))
	f.connectGrid(9, unittest.ViewFixture(0, meta.Hash))
	f.core.HandleNewBlocks([]approval.BlockApprovalMeta{meta})

	require.Contains(t, f.core.blocks[meta.Hash].knownBy, peerID(3))
	f.core.HandlePeerDisconnected(peerID(3))
	assert.NotContains(t, f.core.blocks[meta.Hash].knownBy, peerID(3))
}

func TestLateTopologyResolvesPendingRouting(t *testing.T) {
	f := newCoreFixture(t, DefaultConfig())
	meta := unittest.BlockMetaFixture(unittest.WithCandidates(1), unittest.WithSession(1))

	// peers and block, but no topology yet
	view := unittest.ViewFixture(0, meta.Hash)
	for i := 1; i < 9; i++ {
		peer := peerID(approval.ValidatorIndex(i))
		f.core.HandlePeerConnected(peer, approval.ValidationProtocolV1)
		f.core.HandlePeerViewChange(peer, view)
	}
	f.core.HandleNewBlocks([]approval.BlockApprovalMeta{meta})

	assignment := unittest.AssignmentFixture(meta.Hash, 0, 0)
	f.core.DistributeAssignment(&assignment)
	require.Empty(t, f.sender.assignments, "nothing routable before the topology is known")

	f.core.HandleNewSessionTopology(unittest.TopologyFixture(1, 9, 0))

	// local origin resolves to the full grid: row {1,2}, column {3,6}
	for _, v := range []approval.ValidatorIndex{1, 2, 3, 6} {
		assert.NotEmpty(t, f.sender.assignments[peerID(v)], "validator %d", v)
	}
}

func TestUnsupportedProtocolPeerNeverSent(t *testing.T) {
	f := newCoreFixture(t, DefaultConfig())
	meta := unittest.BlockMetaFixture(unittest.WithCandidates(1), unittest.WithSession(1))
	f.connectGrid(9, unittest.ViewFixture(0, meta.Hash))

	// validator 6 reconnects on a version we do not speak
	f.core.HandlePeerConnected(peerID(6), approval.ProtocolVersion(99))
	f.core.HandleNewBlocks([]approval.BlockApprovalMeta{meta})

	assignment := unittest.AssignmentFixture(meta.Hash, 0, 0)
	f.core.DistributeAssignment(&assignment)

	assert.NotEmpty(t, f.sender.assignments[peerID(3)])
	assert.Empty(t, f.sender.assignments[peerID(6)])
}

func TestApprovalSignatures(t *testing.T) {
	f := newCoreFixture(t, DefaultConfig())
	meta := unittest.BlockMetaFixture(unittest.WithCandidates(2), unittest.WithSession(1))
	f.connectGrid(9, unittest.ViewFixture(0, meta.Hash))
	f.core.HandleNewBlocks([]approval.BlockApprovalMeta{meta})

	assignment := unittest.AssignmentFixture(meta.Hash, 1, 0, 1)
	f.core.HandlePeerMessage(peerID(1), []approval.Assignment{assignment}, nil)
	vote := unittest.ApprovalVoteFixture(meta.Hash, 1, 0, 1)
	f.core.HandlePeerMessage(peerID(1), nil, []approval.ApprovalVote{vote})
	require.Len(t, f.consumer.approvals, 1)

	sigs := f.core.ApprovalSignatures([]CandidateRef{{BlockHash: meta.Hash, Candidate: 1}})
	require.Len(t, sigs, 1)
	item, ok := sigs[1]
	require.True(t, ok)
	assert.Equal(t, meta.Hash, item.BlockHash)
	assert.ElementsMatch(t, []approval.CandidateIndex{0, 1}, item.Candidates)
	assert.Equal(t, vote.Signature, item.Signature)

	// querying a candidate nobody approved returns nothing
	empty := f.core.ApprovalSignatures([]CandidateRef{{BlockHash: unittest.IdentifierFixture(), Candidate: 0}})
	assert.Empty(t, empty)
}

func TestMultiCandidateAssignmentCoversSingles(t *testing.T) {
	f := newCoreFixture(t, DefaultConfig())
	meta := unittest.BlockMetaFixture(unittest.WithCandidates(2), unittest.WithSession(1))
	f.connectGrid(9, unittest.ViewFixture(0, meta.Hash))
	f.core.HandleNewBlocks([]approval.BlockApprovalMeta{meta})

	// one assignment claiming both candidates
	wide := unittest.AssignmentFixture(meta.Hash, 1, 0, 1)
	f.core.HandlePeerMessage(peerID(1), []approval.Assignment{wide}, nil)
	require.Len(t, f.consumer.assignments, 1)

	// an approval over just one claimed candidate is importable
	vote := unittest.ApprovalVoteFixture(meta.Hash, 1, 0)
	f.core.HandlePeerMessage(peerID(1), nil, []approval.ApprovalVote{vote})
	require.Len(t, f.consumer.approvals, 1)
}

func TestMultiCandidateApprovalDoesNotSuppressSingles(t *testing.T) {
	f := newCoreFixture(t, DefaultConfig())
	meta := unittest.BlockMetaFixture(unittest.WithCandidates(2), unittest.WithSession(1))
	f.connectGrid(9, unittest.ViewFixture(0, meta.Hash))
	f.core.HandleNewBlocks([]approval.BlockApprovalMeta{meta})

	wide := unittest.AssignmentFixture(meta.Hash, 1, 0, 1)
	f.core.HandlePeerMessage(peerID(1), []approval.Assignment{wide}, nil)
	wideVote := unittest.ApprovalVoteFixture(meta.Hash, 1, 0, 1)
	f.core.HandlePeerMessage(peerID(1), nil, []approval.ApprovalVote{wideVote})
	require.Len(t, f.consumer.approvals, 1)

	// a vote over one of the candidates is a distinct, fresh vote: it
	// reaches the consumer and the sender is credited, not charged
	chargesBefore := f.rep.total(peerID(1))
	single := unittest.ApprovalVoteFixture(meta.Hash, 1, 0)
	f.core.HandlePeerMessage(peerID(1), nil, []approval.ApprovalVote{single})
	require.Len(t, f.consumer.approvals, 2)
	assert.False(t, f.rep.has(peerID(1), network.CostDuplicateMessage.Reason))
	assert.Equal(t, chargesBefore+network.BenefitValidMessageFirst.Delta, f.rep.total(peerID(1)))
}

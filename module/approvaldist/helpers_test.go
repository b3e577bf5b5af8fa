package approvaldist

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/relaynet/approvaldist/model/approval"
	"github.com/relaynet/approvaldist/module"
	"github.com/relaynet/approvaldist/module/metrics"
	"github.com/relaynet/approvaldist/network"
	"github.com/relaynet/approvaldist/utils/unittest"
)

// senderMock records every outbound batch per destination peer.
type senderMock struct {
	assignments map[approval.Identifier][]approval.Assignment
	approvals   map[approval.Identifier][]approval.ApprovalVote
}

func newSenderMock() *senderMock {
	return &senderMock{
		assignments: make(map[approval.Identifier][]approval.Assignment),
		approvals:   make(map[approval.Identifier][]approval.ApprovalVote),
	}
}

func (s *senderMock) SendAssignments(peers []approval.Identifier, assignments []approval.Assignment) {
	for _, peer := range peers {
		s.assignments[peer] = append(s.assignments[peer], assignments...)
	}
}

func (s *senderMock) SendApprovals(peers []approval.Identifier, votes []approval.ApprovalVote) {
	for _, peer := range peers {
		s.approvals[peer] = append(s.approvals[peer], votes...)
	}
}

func (s *senderMock) reset() {
	s.assignments = make(map[approval.Identifier][]approval.Assignment)
	s.approvals = make(map[approval.Identifier][]approval.ApprovalVote)
}

// repMock records every reputation change per peer.
type repMock struct {
	charges map[approval.Identifier][]network.ReputationChange
}

func newRepMock() *repMock {
	return &repMock{charges: make(map[approval.Identifier][]network.ReputationChange)}
}

func (r *repMock) Charge(peer approval.Identifier, change network.ReputationChange) {
	r.charges[peer] = append(r.charges[peer], change)
}

func (r *repMock) total(peer approval.Identifier) int32 {
	var sum int32
	for _, change := range r.charges[peer] {
		sum += change.Delta
	}
	return sum
}

func (r *repMock) has(peer approval.Identifier, reason string) bool {
	for _, change := range r.charges[peer] {
		if change.Reason == reason {
			return true
		}
	}
	return false
}

// criteriaMock accepts every certificate at a fixed tranche unless an
// error is set.
type criteriaMock struct {
	tranche approval.Tranche
	err     error
	calls   int
}

func (c *criteriaMock) CheckAssignmentCert(
	_ approval.CoreBitfield,
	_ approval.ValidatorIndex,
	_ *approval.SessionInfo,
	_ approval.VRFStory,
	_ *approval.AssignmentCert,
	_ []approval.GroupIndex,
) (approval.Tranche, error) {
	c.calls++
	return c.tranche, c.err
}

// verifierMock accepts every signature unless an error is set.
type verifierMock struct {
	err   error
	calls int
}

func (v *verifierMock) VerifyApproval(_ *approval.ApprovalVote, _ approval.SessionIndex, _ []approval.Identifier) error {
	v.calls++
	return v.err
}

type sessionsMock struct {
	info *approval.SessionInfo
	err  error
}

func (s *sessionsMock) SessionInfo(_ approval.Identifier, _ approval.SessionIndex) (*approval.SessionInfo, error) {
	return s.info, s.err
}

type clockMock struct {
	tranche approval.Tranche
}

func (c *clockMock) TrancheNow(_ uint64, _ approval.Slot) approval.Tranche {
	return c.tranche
}

// consumerMock records the votes forwarded downstream.
type consumerMock struct {
	assignments []*approval.Assignment
	approvals   []*approval.ApprovalVote
}

func (c *consumerMock) ImportAssignment(assignment *approval.Assignment) {
	c.assignments = append(c.assignments, assignment)
}

func (c *consumerMock) ImportApproval(vote *approval.ApprovalVote) {
	c.approvals = append(c.approvals, vote)
}

// coreFixture bundles a core with all its mocked capabilities.
type coreFixture struct {
	core     *Core
	sender   *senderMock
	rep      *repMock
	criteria *criteriaMock
	verifier *verifierMock
	sessions *sessionsMock
	clock    *clockMock
	consumer *consumerMock
}

func newCoreFixture(t *testing.T, cfg Config) *coreFixture {
	f := &coreFixture{
		sender:   newSenderMock(),
		rep:      newRepMock(),
		criteria: &criteriaMock{},
		verifier: &verifierMock{},
		sessions: &sessionsMock{info: unittest.SessionInfoFixture(9)},
		clock:    &clockMock{},
		consumer: &consumerMock{},
	}
	var m module.ApprovalDistributionMetrics = metrics.NewNoopCollector()
	core, err := New(
		zerolog.Nop(),
		cfg,
		m,
		f.criteria,
		f.verifier,
		f.sessions,
		f.clock,
		f.consumer,
		f.sender,
		f.rep,
		unittest.PRGFixture(),
	)
	require.NoError(t, err)
	f.core = core
	return f
}

// connectGrid connects the peers of validators 1..n-1 (we are 0),
// declares the given view for each, and installs the session-1 grid
// topology over all n validators.
func (f *coreFixture) connectGrid(n int, view approval.View) {
	f.core.HandleNewSessionTopology(unittest.TopologyFixture(1, n, 0))
	for i := 1; i < n; i++ {
		peer := unittest.PeerIDForValidator(approval.ValidatorIndex(i))
		f.core.HandlePeerConnected(peer, approval.ValidationProtocolV1)
		f.core.HandlePeerViewChange(peer, view)
	}
}

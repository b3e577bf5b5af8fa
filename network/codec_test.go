package network_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaynet/approvaldist/model/approval"
	"github.com/relaynet/approvaldist/network"
	"github.com/relaynet/approvaldist/utils/unittest"
)

func TestCodecRoundtrip(t *testing.T) {
	codec, err := network.NewCodec()
	require.NoError(t, err)

	blockHash := unittest.IdentifierFixture()
	assignments := &approval.AssignmentsV1{Assignments: []approval.Assignment{
		unittest.AssignmentFixture(blockHash, 3, 0, 2),
	}}

	data, err := codec.Encode(assignments)
	require.NoError(t, err)
	require.Equal(t, network.CodeAssignmentsV1, data[0])

	decoded, err := codec.Decode(data)
	require.NoError(t, err)
	got, ok := decoded.(*approval.AssignmentsV1)
	require.True(t, ok)
	require.Len(t, got.Assignments, 1)
	assert.Equal(t, blockHash, got.Assignments[0].Cert.BlockHash)
	assert.True(t, got.Assignments[0].CandidateBitfield.Equal(assignments.Assignments[0].CandidateBitfield))

	votes := &approval.ApprovalsV1{Approvals: []approval.ApprovalVote{
		unittest.ApprovalVoteFixture(blockHash, 3, 0),
	}}
	data, err = codec.Encode(votes)
	require.NoError(t, err)
	decoded, err = codec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, votes, decoded)
}

func TestCodecRejectsMalformed(t *testing.T) {
	codec, err := network.NewCodec()
	require.NoError(t, err)

	_, err = codec.Encode("not a channel event")
	assert.Error(t, err)

	_, err = codec.Decode(nil)
	assert.Error(t, err)

	_, err = codec.Decode([]byte{99, 0x01})
	assert.Error(t, err)

	_, err = codec.Decode([]byte{network.CodeApprovalsV1, 0xff, 0xff})
	assert.Error(t, err)
}

package approval_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaynet/approvaldist/model/approval"
	"github.com/relaynet/approvaldist/utils/unittest"
)

func TestMessageKindSubsumes(t *testing.T) {
	assert.True(t, approval.KindApproval.Subsumes(approval.KindAssignment))
	assert.True(t, approval.KindApproval.Subsumes(approval.KindApproval))
	assert.True(t, approval.KindAssignment.Subsumes(approval.KindAssignment))
	assert.False(t, approval.KindAssignment.Subsumes(approval.KindApproval))
}

func TestSubjectKeyEquality(t *testing.T) {
	block := unittest.IdentifierFixture()
	a := approval.MessageSubject{
		Block:      block,
		Candidates: approval.BitfieldFromIndices(1, 2),
		Validator:  7,
	}
	same := approval.MessageSubject{
		Block:      block,
		Candidates: approval.BitfieldFromIndices(1, 2),
		Validator:  7,
	}
	otherValidator := a
	otherValidator.Validator = 8

	assert.Equal(t, a.Key(), same.Key())
	assert.NotEqual(t, a.Key(), otherValidator.Key())
}

func TestSubjectDecompose(t *testing.T) {
	block := unittest.IdentifierFixture()

	single := approval.MessageSubject{
		Block:      block,
		Candidates: approval.BitfieldFromIndices(3),
		Validator:  1,
	}
	require.Equal(t, []approval.MessageSubject{single}, single.Decompose())

	multi := approval.MessageSubject{
		Block:      block,
		Candidates: approval.BitfieldFromIndices(1, 4),
		Validator:  1,
	}
	parts := multi.Decompose()
	require.Len(t, parts, 2)
	for _, part := range parts {
		assert.Equal(t, block, part.Block)
		assert.Equal(t, approval.ValidatorIndex(1), part.Validator)
		assert.Equal(t, uint(1), part.Candidates.Count())
	}
	assert.True(t, parts[0].Candidates.Test(1))
	assert.True(t, parts[1].Candidates.Test(4))
}

// Package unittest provides test fixtures for approval-distribution
// entities. Fixtures are random by default; pass options to pin the
// fields a test asserts on.
package unittest

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/onflow/flow-go/crypto/random"

	"github.com/relaynet/approvaldist/model/approval"
	"github.com/relaynet/approvaldist/topology"
)

// IdentifierFixture returns a random identifier.
func IdentifierFixture() approval.Identifier {
	var id approval.Identifier
	_, _ = rand.Read(id[:])
	return id
}

// IdentifierListFixture returns n distinct random identifiers.
func IdentifierListFixture(n int) []approval.Identifier {
	out := make([]approval.Identifier, n)
	for i := range out {
		out[i] = IdentifierFixture()
	}
	return out
}

// SignatureFixture returns a random validator signature.
func SignatureFixture() approval.ValidatorSignature {
	var sig approval.ValidatorSignature
	_, _ = rand.Read(sig[:])
	return sig
}

// VRFStoryFixture returns a random per-block randomness story.
func VRFStoryFixture() approval.VRFStory {
	var story approval.VRFStory
	_, _ = rand.Read(story[:])
	return story
}

// PRGFixture returns a deterministic pseudo-random generator. Tests
// that depend on sampling decisions replay identically across runs.
func PRGFixture() random.Rand {
	seed := make([]byte, random.Chacha20SeedLen)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	prg, err := random.NewChacha20PRG(seed, []byte("approvaltest"))
	if err != nil {
		panic(fmt.Sprintf("could not create test PRG: %v", err))
	}
	return prg
}

// BlockMetaOption mutates a block fixture.
type BlockMetaOption func(*approval.BlockApprovalMeta)

func WithBlockNumber(number approval.BlockNumber) BlockMetaOption {
	return func(meta *approval.BlockApprovalMeta) {
		meta.Number = number
	}
}

func WithSession(session approval.SessionIndex) BlockMetaOption {
	return func(meta *approval.BlockApprovalMeta) {
		meta.Session = session
	}
}

func WithParent(parent approval.Identifier) BlockMetaOption {
	return func(meta *approval.BlockApprovalMeta) {
		meta.ParentHash = parent
	}
}

func WithCandidates(count int) BlockMetaOption {
	return func(meta *approval.BlockApprovalMeta) {
		meta.Candidates = CandidateMetasFixture(count)
	}
}

// CandidateMetasFixture returns count candidates occupying cores
// 0..count-1 backed by groups 0..count-1.
func CandidateMetasFixture(count int) []approval.CandidateMeta {
	metas := make([]approval.CandidateMeta, count)
	for i := range metas {
		metas[i] = approval.CandidateMeta{
			Hash:  IdentifierFixture(),
			Core:  approval.CoreIndex(i),
			Group: approval.GroupIndex(i),
		}
	}
	return metas
}

// BlockMetaFixture returns a block with one candidate at number 1,
// session 1, slot equal to its number.
func BlockMetaFixture(opts ...BlockMetaOption) approval.BlockApprovalMeta {
	meta := approval.BlockApprovalMeta{
		Hash:       IdentifierFixture(),
		Number:     1,
		ParentHash: IdentifierFixture(),
		Candidates: CandidateMetasFixture(1),
		Slot:       1,
		Session:    1,
		VRFStory:   VRFStoryFixture(),
	}
	for _, opt := range opts {
		opt(&meta)
	}
	meta.Slot = approval.Slot(meta.Number)
	return meta
}

// ChainFixture returns count parent-linked blocks with ascending
// numbers starting at from.
func ChainFixture(count int, from approval.BlockNumber, opts ...BlockMetaOption) []approval.BlockApprovalMeta {
	chain := make([]approval.BlockApprovalMeta, 0, count)
	parent := IdentifierFixture()
	for i := 0; i < count; i++ {
		meta := BlockMetaFixture(opts...)
		meta.Number = from + approval.BlockNumber(i)
		meta.Slot = approval.Slot(meta.Number)
		meta.ParentHash = parent
		chain = append(chain, meta)
		parent = meta.Hash
	}
	return chain
}

// AssignmentFixture returns an assignment by the validator claiming
// the given candidate indices of the block, with the certificate's
// core bitfield mirroring the candidate indices.
func AssignmentFixture(blockHash approval.Identifier, validator approval.ValidatorIndex, candidates ...uint) approval.Assignment {
	if len(candidates) == 0 {
		candidates = []uint{0}
	}
	proof := make([]byte, 64)
	_, _ = rand.Read(proof)
	return approval.Assignment{
		Cert: approval.IndirectAssignmentCert{
			BlockHash: blockHash,
			Validator: validator,
			Cert: approval.AssignmentCert{
				Cores:    approval.BitfieldFromIndices(candidates...),
				VRFProof: proof,
			},
		},
		CandidateBitfield: approval.BitfieldFromIndices(candidates...),
	}
}

// ApprovalVoteFixture returns a vote by the validator over the given
// candidate indices of the block.
func ApprovalVoteFixture(blockHash approval.Identifier, validator approval.ValidatorIndex, candidates ...uint) approval.ApprovalVote {
	if len(candidates) == 0 {
		candidates = []uint{0}
	}
	return approval.ApprovalVote{
		BlockHash:         blockHash,
		CandidateBitfield: approval.BitfieldFromIndices(candidates...),
		Validator:         validator,
		Signature:         SignatureFixture(),
	}
}

// ViewFixture returns a view over the given heads.
func ViewFixture(finalized approval.BlockNumber, heads ...approval.Identifier) approval.View {
	return approval.View{
		Heads:     heads,
		Finalized: finalized,
	}
}

// SessionInfoFixture returns session info for validatorCount
// validators, each in its own backing group, with 6-second slots.
func SessionInfoFixture(validatorCount uint32) *approval.SessionInfo {
	groups := make([][]approval.ValidatorIndex, validatorCount)
	for i := range groups {
		groups[i] = []approval.ValidatorIndex{approval.ValidatorIndex(i)}
	}
	return &approval.SessionInfo{
		ValidatorCount:     validatorCount,
		SlotDurationMillis: 6000,
		Groups:             groups,
	}
}

// TopologyEntriesFixture returns n entries mapping validator index i
// to a deterministic peer identifier, so tests can translate between
// the two.
func TopologyEntriesFixture(n int) []topology.Entry {
	entries := make([]topology.Entry, n)
	for i := range entries {
		entries[i] = topology.Entry{
			PeerID:    PeerIDForValidator(approval.ValidatorIndex(i)),
			Validator: approval.ValidatorIndex(i),
		}
	}
	return entries
}

// PeerIDForValidator derives the deterministic peer identifier used by
// TopologyEntriesFixture for the given validator index.
func PeerIDForValidator(validator approval.ValidatorIndex) approval.Identifier {
	var id approval.Identifier
	binary.BigEndian.PutUint32(id[:4], uint32(validator)+1)
	return id
}

// TopologyFixture returns a session grid topology over n validators
// with ourIndex as the local node.
func TopologyFixture(session approval.SessionIndex, n int, ourIndex approval.ValidatorIndex) *topology.SessionGridTopology {
	return topology.NewSessionGridTopology(session, ourIndex, true, TopologyEntriesFixture(n))
}

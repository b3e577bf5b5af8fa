package approvaldist

import (
	"errors"
	"fmt"

	"github.com/relaynet/approvaldist/model/approval"
	"github.com/relaynet/approvaldist/topology"
)

// Sentinel errors returned by noteApproval. All of them are
// protocol-violation-shaped: resolved by a reputation charge on the
// sending peer, never fatal.
var (
	ErrUnknownAssignment     = errors.New("no assignment covers the approved candidates")
	ErrDuplicateApproval     = errors.New("approval already noted for this assignment")
	ErrInvalidCandidateIndex = errors.New("approval claims a candidate outside the assignment")
	ErrInvalidValidatorIndex = errors.New("approval signer does not match the assignment")
)

// approvalEntryKey identifies an assignment within a block: who made
// it and what candidates it claims.
type approvalEntryKey struct {
	validator approval.ValidatorIndex
	claimed   string // bitfield key
}

// approvalRouting is the routing state attached one-to-one to an
// approval entry. The random sampler and its chosen peers are recorded
// here so that approvals for the assignment reuse exactly the
// assignment's random audience instead of opening new gaps.
type approvalRouting struct {
	required topology.RequiredRouting
	local    bool

	// validator is the originator index, kept here so routing can be
	// re-derived when a topology arrives after the assignment did.
	validator approval.ValidatorIndex

	random      RandomRouting
	randomPeers map[approval.Identifier]struct{}
}

func (r *approvalRouting) markRandomlySent(peer approval.Identifier) {
	if r.randomPeers == nil {
		r.randomPeers = make(map[approval.Identifier]struct{})
	}
	r.randomPeers[peer] = struct{}{}
	r.random.NoteSent()
}

func (r *approvalRouting) randomlySentTo(peer approval.Identifier) bool {
	_, ok := r.randomPeers[peer]
	return ok
}

// approvalEntry owns one assignment certificate, the candidate
// bitfield it claims, and every approval vote merged into it. Created
// exactly once per (validator, claimed bitfield) when the assignment
// is first imported; never deleted except with the whole block.
type approvalEntry struct {
	assignment approval.Assignment
	claimed    approval.CandidateBitfield
	validator  approval.ValidatorIndex

	// approvals maps the approved-candidate bitfield (by key) to the
	// vote received for it.
	approvals map[string]approval.ApprovalVote

	routing approvalRouting
}

func newApprovalEntry(assignment approval.Assignment, routing approvalRouting) *approvalEntry {
	return &approvalEntry{
		assignment: assignment,
		claimed:    assignment.CandidateBitfield,
		validator:  assignment.Cert.Validator,
		approvals:  make(map[string]approval.ApprovalVote),
		routing:    routing,
	}
}

// noteApproval merges the vote into this entry.
func (e *approvalEntry) noteApproval(vote approval.ApprovalVote) error {
	if vote.Validator != e.validator {
		return fmt.Errorf("validator %d vs assignment %d: %w", vote.Validator, e.validator, ErrInvalidValidatorIndex)
	}
	if !e.claimed.Contains(vote.CandidateBitfield) {
		return fmt.Errorf("approved %v, assigned %v: %w", vote.CandidateBitfield, e.claimed, ErrInvalidCandidateIndex)
	}
	key := vote.CandidateBitfield.Key()
	if _, ok := e.approvals[key]; ok {
		return ErrDuplicateApproval
	}
	e.approvals[key] = vote
	return nil
}

// candidateEntry maps, for one candidate of a block, each assigned
// validator to the claimed-candidate bitfield of the assignment that
// covers it. The indirection makes a multi-candidate assignment
// reachable from each of its candidates.
type candidateEntry struct {
	assignments map[approval.ValidatorIndex]approval.CandidateBitfield
}

// blockEntry is the full per-relay-block state.
type blockEntry struct {
	hash       approval.Identifier
	number     approval.BlockNumber
	parentHash approval.Identifier
	session    approval.SessionIndex
	slot       approval.Slot
	vrfStory   approval.VRFStory

	// knownBy tracks, per peer aware of this block, the two-sided
	// knowledge record.
	knownBy map[approval.Identifier]*PeerKnowledge

	// knowledge is what the local node knows for this block.
	knowledge Knowledge

	candidates     []candidateEntry
	candidatesMeta []approval.CandidateMeta

	// approvalEntries is keyed by (validator, claimed bitfield);
	// entryKeys preserves insertion order for deterministic walks.
	approvalEntries map[approvalEntryKey]*approvalEntry
	entryKeys       []approvalEntryKey

	// lastResent is the view's max block number at the time aggression
	// last forced a full resend of this block, zero if never.
	lastResent approval.BlockNumber
}

func newBlockEntry(meta approval.BlockApprovalMeta) *blockEntry {
	candidates := make([]candidateEntry, len(meta.Candidates))
	for i := range candidates {
		candidates[i].assignments = make(map[approval.ValidatorIndex]approval.CandidateBitfield)
	}
	return &blockEntry{
		hash:            meta.Hash,
		number:          meta.Number,
		parentHash:      meta.ParentHash,
		session:         meta.Session,
		slot:            meta.Slot,
		vrfStory:        meta.VRFStory,
		knownBy:         make(map[approval.Identifier]*PeerKnowledge),
		knowledge:       NewKnowledge(),
		candidates:      candidates,
		candidatesMeta:  meta.Candidates,
		approvalEntries: make(map[approvalEntryKey]*approvalEntry),
	}
}

// insertApprovalEntry registers the entry under its key if absent and
// wires every claimed candidate to point back at it. Returns the
// entry stored under the key, whether it was freshly inserted or
// already present.
func (b *blockEntry) insertApprovalEntry(entry *approvalEntry) *approvalEntry {
	key := approvalEntryKey{validator: entry.validator, claimed: entry.claimed.Key()}
	if existing, ok := b.approvalEntries[key]; ok {
		return existing
	}
	b.approvalEntries[key] = entry
	b.entryKeys = append(b.entryKeys, key)

	for _, i := range entry.claimed.Indices() {
		if int(i) >= len(b.candidates) {
			continue
		}
		b.candidates[i].assignments[entry.validator] = entry.claimed
	}
	return entry
}

// orderedApprovalEntries walks the block's approval entries in
// insertion order.
func (b *blockEntry) orderedApprovalEntries() []*approvalEntry {
	out := make([]*approvalEntry, 0, len(b.entryKeys))
	for _, key := range b.entryKeys {
		out = append(out, b.approvalEntries[key])
	}
	return out
}

// noteApproval finds every approval entry of the vote's validator
// whose claimed bitfield intersects the approved candidates and
// merges the vote into each. Returns the union of the matched
// entries' required routing plus the union of their randomly-routed
// peer sets, which is the audience the approval propagates through.
func (b *blockEntry) noteApproval(vote approval.ApprovalVote) (topology.RequiredRouting, map[approval.Identifier]struct{}, error) {
	required := topology.RoutePendingTopology
	randomPeers := make(map[approval.Identifier]struct{})

	matched := false
	for _, key := range b.entryKeys {
		entry := b.approvalEntries[key]
		if entry.validator != vote.Validator {
			continue
		}
		if !entry.claimed.Intersects(vote.CandidateBitfield) {
			continue
		}
		matched = true
		if err := entry.noteApproval(vote); err != nil {
			return required, nil, err
		}
		required = required.Combine(entry.routing.required)
		for peer := range entry.routing.randomPeers {
			randomPeers[peer] = struct{}{}
		}
	}
	if !matched {
		return required, nil, ErrUnknownAssignment
	}
	return required, randomPeers, nil
}

package module

import (
	"github.com/relaynet/approvaldist/model/approval"
)

// AssignmentCriteria checks an assignment certificate against the
// session's assignment criteria: tranche computation plus the VRF
// certificate check. Implementations are injected at construction;
// production uses the cryptographic checker, tests a fixture.
type AssignmentCriteria interface {
	// CheckAssignmentCert validates the certificate of an assignment
	// claiming the given cores and returns the tranche it becomes
	// valid at. The returned error means the certificate is invalid
	// for this session/story, not an internal failure.
	CheckAssignmentCert(
		claimedCores approval.CoreBitfield,
		validator approval.ValidatorIndex,
		session *approval.SessionInfo,
		story approval.VRFStory,
		cert *approval.AssignmentCert,
		backingGroups []approval.GroupIndex,
	) (approval.Tranche, error)
}

// ApprovalVerifier checks the aggregate signature of an approval vote
// over the candidate hashes it claims.
type ApprovalVerifier interface {
	VerifyApproval(
		vote *approval.ApprovalVote,
		session approval.SessionIndex,
		candidates []approval.Identifier,
	) error
}

// SessionInfoProvider resolves session information as of a given
// block. Callers cache results; lookups may hit the runtime.
type SessionInfoProvider interface {
	SessionInfo(blockHash approval.Identifier, session approval.SessionIndex) (*approval.SessionInfo, error)
}

// Clock converts wall time into the tranche index current for a slot.
type Clock interface {
	TrancheNow(slotDurationMillis uint64, slot approval.Slot) approval.Tranche
}

// ApprovalVotingConsumer receives votes that passed import. It is the
// downstream subsystem deciding candidate approval; this subsystem
// only feeds it deduplicated, validated votes.
type ApprovalVotingConsumer interface {
	ImportAssignment(assignment *approval.Assignment)
	ImportApproval(vote *approval.ApprovalVote)
}

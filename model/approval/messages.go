package approval

// Wire messages for the approval-distribution channel. Both kinds are
// version-tagged batches; the batch budget below keeps any single
// notification within the transport's payload limit.

const (
	// maxNotificationSize is the transport's maximum notification
	// payload, shared between the message kinds on this channel.
	maxNotificationSize = 100 * 1024

	// Conservative per-item wire-size estimates. Certificates dominate
	// assignments; approvals are a hash, a bitfield and a signature.
	approxAssignmentSize = 300
	approxApprovalSize   = 120

	// Three batch kinds (two here plus the view handshake) share the
	// notification budget.
	batchKindsSharingLimit = 3

	// MaxAssignmentBatch is the maximum number of assignments sent in
	// one notification.
	MaxAssignmentBatch = maxNotificationSize / approxAssignmentSize / batchKindsSharingLimit

	// MaxApprovalBatch is the maximum number of approvals sent in one
	// notification.
	MaxApprovalBatch = maxNotificationSize / approxApprovalSize / batchKindsSharingLimit
)

// AssignmentsV1 is a batch of assignments gossiped to a peer.
type AssignmentsV1 struct {
	Assignments []Assignment `cbor:"1,keyasint"`
}

// ApprovalsV1 is a batch of approval votes gossiped to a peer.
type ApprovalsV1 struct {
	Approvals []ApprovalVote `cbor:"1,keyasint"`
}

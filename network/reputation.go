package network

import (
	"github.com/relaynet/approvaldist/model/approval"
)

// ReputationChange is a signed reputation delta attributed to a peer,
// with a human-readable reason for logs. Magnitudes are policy: minor
// costs cover late, duplicated or unsolicited-but-harmless traffic,
// major costs cover structurally invalid or cryptographically bad
// messages.
type ReputationChange struct {
	Delta  int32
	Reason string
}

var (
	CostUnexpectedMessage = ReputationChange{-150, "message for unexpected block"}
	CostDuplicateMessage  = ReputationChange{-100, "duplicate message"}
	CostAssignmentTooFar  = ReputationChange{-100, "assignment too far in the future"}
	CostInvalidMessage    = ReputationChange{-1000, "invalid message"}
	CostOversizedBitfield = ReputationChange{-1000, "oversized bitfield"}

	BenefitValidMessage      = ReputationChange{20, "valid message"}
	BenefitValidMessageFirst = ReputationChange{30, "valid message, first of kind"}
)

// ReputationReporter receives accumulated reputation deltas. The
// production implementation forwards them to the networking layer's
// peer-set manager; tests record them.
type ReputationReporter interface {
	ReportPeer(peerID approval.Identifier, change ReputationChange)
}

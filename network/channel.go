package network

// Channel specifies a virtual unique communication link between nodes.
type Channel string

func (c Channel) String() string {
	return string(c)
}

const (
	// ChannelApprovalDistribution carries assignment and approval-vote
	// gossip between validators.
	ChannelApprovalDistribution = Channel("approval-distribution")
)

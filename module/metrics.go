package module

// ApprovalDistributionMetrics exposes the observability surface of the
// approval-distribution engine.
type ApprovalDistributionMetrics interface {
	// OnAssignmentImported records the outcome of one inbound
	// assignment: accepted, duplicate, unexpected, invalid, ...
	OnAssignmentImported(outcome string)

	// OnApprovalImported records the outcome of one inbound approval.
	OnApprovalImported(outcome string)

	// OnAssignmentsSent records a sent assignment batch size.
	OnAssignmentsSent(count int)

	// OnApprovalsSent records a sent approval batch size.
	OnApprovalsSent(count int)

	// SetActiveBlocks records the number of blocks currently tracked.
	SetActiveBlocks(count int)

	// SetPendingMessages records the number of buffered messages
	// waiting for their block to materialize.
	SetPendingMessages(count int)

	// SetAggressionLevel records the current aggression escalation
	// level (0, 1 or 2).
	SetAggressionLevel(level int)

	// SetApprovalCheckingLag records the advisory finality lag signal.
	SetApprovalCheckingLag(lag uint64)

	// OnReputationFlush records the number of peers charged or
	// credited in one reputation flush.
	OnReputationFlush(peers int)
}

package metrics

// NoopCollector implements all metrics interfaces of this repository
// as no-ops. It is used in tests and wherever metrics are not wired.
type NoopCollector struct{}

func NewNoopCollector() *NoopCollector { return &NoopCollector{} }

func (nc *NoopCollector) OnAssignmentImported(outcome string) {}
func (nc *NoopCollector) OnApprovalImported(outcome string)   {}
func (nc *NoopCollector) OnAssignmentsSent(count int)         {}
func (nc *NoopCollector) OnApprovalsSent(count int)           {}
func (nc *NoopCollector) SetActiveBlocks(count int)           {}
func (nc *NoopCollector) SetPendingMessages(count int)        {}
func (nc *NoopCollector) SetAggressionLevel(level int)        {}
func (nc *NoopCollector) SetApprovalCheckingLag(lag uint64)   {}
func (nc *NoopCollector) OnReputationFlush(peers int)         {}

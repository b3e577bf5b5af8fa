package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespaceApprovaldist = "approvaldist"
	subsystemDistribution = "distribution"
)

// ApprovalDistributionCollector is the prometheus implementation of the
// approval-distribution metrics.
type ApprovalDistributionCollector struct {
	assignmentsImported *prometheus.CounterVec
	approvalsImported   *prometheus.CounterVec
	assignmentsSent     prometheus.Counter
	approvalsSent       prometheus.Counter
	sentBatchSize       prometheus.Histogram
	activeBlocks        prometheus.Gauge
	pendingMessages     prometheus.Gauge
	aggressionLevel     prometheus.Gauge
	approvalCheckingLag prometheus.Gauge
	reputationFlushes   prometheus.Counter
}

func NewApprovalDistributionCollector(registerer prometheus.Registerer) *ApprovalDistributionCollector {
	c := &ApprovalDistributionCollector{
		assignmentsImported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceApprovaldist,
			Subsystem: subsystemDistribution,
			Name:      "assignments_imported_total",
			Help:      "inbound assignments by import outcome",
		}, []string{"outcome"}),
		approvalsImported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceApprovaldist,
			Subsystem: subsystemDistribution,
			Name:      "approvals_imported_total",
			Help:      "inbound approvals by import outcome",
		}, []string{"outcome"}),
		assignmentsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceApprovaldist,
			Subsystem: subsystemDistribution,
			Name:      "assignments_sent_total",
			Help:      "assignments sent to peers",
		}),
		approvalsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceApprovaldist,
			Subsystem: subsystemDistribution,
			Name:      "approvals_sent_total",
			Help:      "approvals sent to peers",
		}),
		sentBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespaceApprovaldist,
			Subsystem: subsystemDistribution,
			Name:      "sent_batch_size",
			Help:      "size of outbound gossip batches",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128},
		}),
		activeBlocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceApprovaldist,
			Subsystem: subsystemDistribution,
			Name:      "active_blocks",
			Help:      "relay blocks currently tracked for vote gossip",
		}),
		pendingMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceApprovaldist,
			Subsystem: subsystemDistribution,
			Name:      "pending_messages",
			Help:      "messages buffered for blocks not yet known locally",
		}),
		aggressionLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceApprovaldist,
			Subsystem: subsystemDistribution,
			Name:      "aggression_level",
			Help:      "current aggression escalation level",
		}),
		approvalCheckingLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceApprovaldist,
			Subsystem: subsystemDistribution,
			Name:      "approval_checking_lag",
			Help:      "advisory approval-checking finality lag in blocks",
		}),
		reputationFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceApprovaldist,
			Subsystem: subsystemDistribution,
			Name:      "reputation_flushes_total",
			Help:      "reputation batches flushed to the network layer",
		}),
	}
	registerer.MustRegister(
		c.assignmentsImported,
		c.approvalsImported,
		c.assignmentsSent,
		c.approvalsSent,
		c.sentBatchSize,
		c.activeBlocks,
		c.pendingMessages,
		c.aggressionLevel,
		c.approvalCheckingLag,
		c.reputationFlushes,
	)
	return c
}

func (c *ApprovalDistributionCollector) OnAssignmentImported(outcome string) {
	c.assignmentsImported.WithLabelValues(outcome).Inc()
}

func (c *ApprovalDistributionCollector) OnApprovalImported(outcome string) {
	c.approvalsImported.WithLabelValues(outcome).Inc()
}

func (c *ApprovalDistributionCollector) OnAssignmentsSent(count int) {
	c.assignmentsSent.Add(float64(count))
	c.sentBatchSize.Observe(float64(count))
}

func (c *ApprovalDistributionCollector) OnApprovalsSent(count int) {
	c.approvalsSent.Add(float64(count))
	c.sentBatchSize.Observe(float64(count))
}

func (c *ApprovalDistributionCollector) SetActiveBlocks(count int) {
	c.activeBlocks.Set(float64(count))
}

func (c *ApprovalDistributionCollector) SetPendingMessages(count int) {
	c.pendingMessages.Set(float64(count))
}

func (c *ApprovalDistributionCollector) SetAggressionLevel(level int) {
	c.aggressionLevel.Set(float64(level))
}

func (c *ApprovalDistributionCollector) SetApprovalCheckingLag(lag uint64) {
	c.approvalCheckingLag.Set(float64(lag))
}

func (c *ApprovalDistributionCollector) OnReputationFlush(peers int) {
	if peers > 0 {
		c.reputationFlushes.Inc()
	}
}

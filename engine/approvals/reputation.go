package approvals

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/relaynet/approvaldist/model/approval"
	"github.com/relaynet/approvaldist/network"
)

// immediateReportThreshold is the delta at or below which a change is
// reported right away instead of batched. Malicious-grade penalties
// should not wait for a flush tick.
const immediateReportThreshold = -1000

// ReputationAggregator batches small per-event reputation deltas and
// flushes them per peer on an interval, so one noisy peer does not
// translate into a stream of reputation calls. Safe for concurrent
// use.
type ReputationAggregator struct {
	log      zerolog.Logger
	reporter network.ReputationReporter

	mu     sync.Mutex
	deltas map[approval.Identifier]int32
	events map[approval.Identifier]int
}

func NewReputationAggregator(log zerolog.Logger, reporter network.ReputationReporter) *ReputationAggregator {
	return &ReputationAggregator{
		log:      log.With().Str("component", "reputation_aggregator").Logger(),
		reporter: reporter,
		deltas:   make(map[approval.Identifier]int32),
		events:   make(map[approval.Identifier]int),
	}
}

// Charge records one reputation change against the peer. Changes at or
// below the immediate threshold bypass batching.
func (a *ReputationAggregator) Charge(peer approval.Identifier, change network.ReputationChange) {
	if change.Delta <= immediateReportThreshold {
		a.log.Debug().
			Str("peer", peer.String()).
			Int32("delta", change.Delta).
			Str("reason", change.Reason).
			Msg("reporting peer immediately")
		a.reporter.ReportPeer(peer, change)
		return
	}

	a.mu.Lock()
	a.deltas[peer] += change.Delta
	a.events[peer]++
	a.mu.Unlock()
}

// Flush reports every accumulated non-zero delta as a single change
// per peer and resets the aggregator. Returns the number of peers
// reported.
func (a *ReputationAggregator) Flush() int {
	a.mu.Lock()
	deltas := a.deltas
	events := a.events
	a.deltas = make(map[approval.Identifier]int32)
	a.events = make(map[approval.Identifier]int)
	a.mu.Unlock()

	reported := 0
	for peer, delta := range deltas {
		if delta == 0 {
			continue
		}
		a.log.Debug().
			Str("peer", peer.String()).
			Int32("delta", delta).
			Int("events", events[peer]).
			Msg("flushing aggregated reputation change")
		a.reporter.ReportPeer(peer, network.ReputationChange{
			Delta:  delta,
			Reason: "aggregated approval-distribution events",
		})
		reported++
	}
	return reported
}

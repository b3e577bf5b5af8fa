package approvaldist

import (
	"github.com/relaynet/approvaldist/model/approval"
	"github.com/relaynet/approvaldist/topology"
)

// enableAggression re-evaluates the adaptive-redundancy machinery
// against the current view span. Called on every new block and on
// finalization. When resend is set (new blocks arrived), the periodic
// full resend of the oldest unfinalized blocks may additionally fire.
//
// The age that drives every decision is the span of the whole view,
// newest minus oldest tracked number, not the age of any single block.
func (c *Core) enableAggression(resend bool) {
	min, max, ok := c.viewSpan()
	if !ok {
		c.metrics.SetAggressionLevel(0)
		return
	}
	span := max - min
	cfg := c.cfg.Aggression

	level := 0
	if cfg.L1Threshold != 0 && span >= cfg.L1Threshold {
		level = 1
	}
	if cfg.L2Threshold != 0 && span >= cfg.L2Threshold {
		level = 2
	}
	c.metrics.SetAggressionLevel(level)

	if resend && cfg.ResendUnfinalizedPeriod != 0 &&
		span >= cfg.ResendUnfinalizedPeriod && span%cfg.ResendUnfinalizedPeriod == 0 {
		c.resendOldestUnfinalized(min, max)
	}

	if level == 0 {
		return
	}

	// the re-walk cut-off is the smallest configured threshold, so the
	// modifier sees every block either threshold applies to
	cutoff := cfg.L1Threshold
	if cutoff == 0 || (cfg.L2Threshold != 0 && cfg.L2Threshold < cutoff) {
		cutoff = cfg.L2Threshold
	}

	c.adjustRequiredRoutingAndPropagate(
		func(entry *blockEntry) bool {
			return max-entry.number >= cutoff
		},
		func(routing *approvalRouting) {
			if routing.local && cfg.L1Threshold != 0 && span >= cfg.L1Threshold {
				routing.required = topology.RouteAll
			}
			if !routing.local && cfg.L2Threshold != 0 && span >= cfg.L2Threshold {
				routing.required = routing.required.Combine(topology.RouteGridXY)
			}
		},
	)
}

// resendOldestUnfinalized forgets the sent half of every peer's
// knowledge for the oldest tracked block(s), those at the minimum
// number, so the next reconciliation retransmits everything for them.
// Rate-limited per block to once every two periods of view growth.
func (c *Core) resendOldestUnfinalized(min, max approval.BlockNumber) {
	period := c.cfg.Aggression.ResendUnfinalizedPeriod
	resent := 0
	for _, entry := range c.blocks {
		if entry.number != min {
			continue
		}
		if entry.lastResent != 0 && entry.lastResent+2*period > max {
			continue
		}
		entry.lastResent = max
		for _, pk := range entry.knownBy {
			pk.Sent = NewKnowledge()
		}
		resent++
	}
	if resent > 0 {
		c.log.Info().
			Int("blocks", resent).
			Uint64("view_max", uint64(max)).
			Msg("finality lag forcing full resend of oldest blocks")
	}
}

package approvaldist

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"

	"github.com/relaynet/approvaldist/model/approval"
)

// AggressionConfig holds the three independent thresholds of the
// aggression controller. A zero value disables the corresponding
// behavior. All thresholds are measured in block-number age of the
// oldest unfinalized block relative to the newest.
type AggressionConfig struct {
	// L1Threshold is the age at which the local originator of a
	// message escalates its routing to all peers.
	L1Threshold approval.BlockNumber `validate:"omitempty" mapstructure:"l1-threshold"`

	// L2Threshold is the age at which relayed messages escalate to
	// full grid routing (row and column). Must not be below L1.
	L2Threshold approval.BlockNumber `validate:"omitempty,gtefield=L1Threshold" mapstructure:"l2-threshold"`

	// ResendUnfinalizedPeriod forces, every period blocks of age, a
	// full resend of the oldest block, rate-limited to once per
	// 2*period per block.
	ResendUnfinalizedPeriod approval.BlockNumber `validate:"omitempty" mapstructure:"resend-unfinalized-period"`
}

// Config holds the tunable knobs of the approval-distribution core.
type Config struct {
	Aggression AggressionConfig `validate:"required" mapstructure:"aggression"`

	// TrancheGrace is how many tranches past "now" an assignment may
	// claim before it is rejected as too far in the future.
	TrancheGrace approval.Tranche `validate:"gt=0" mapstructure:"tranche-grace"`

	// RecentlyOutdatedCapacity bounds the ring of recently-pruned
	// block hashes kept to recognize late-but-harmless traffic.
	RecentlyOutdatedCapacity int `validate:"gt=0" mapstructure:"recently-outdated-capacity"`
}

func DefaultConfig() Config {
	return Config{
		Aggression: AggressionConfig{
			L1Threshold:             16,
			L2Threshold:             28,
			ResendUnfinalizedPeriod: 8,
		},
		TrancheGrace:             20,
		RecentlyOutdatedCapacity: 20,
	}
}

// Validate checks the config for internal consistency.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid approval-distribution config: %w", err)
	}
	return nil
}

// RegisterFlags exposes the config on a flag set, netconf-style, so a
// node binary can override the defaults.
func (c *Config) RegisterFlags(flags *pflag.FlagSet) {
	flags.Uint64Var((*uint64)(&c.Aggression.L1Threshold), "approval-aggression-l1", uint64(c.Aggression.L1Threshold),
		"finality lag (blocks) at which locally-originated votes route to all peers, 0 disables")
	flags.Uint64Var((*uint64)(&c.Aggression.L2Threshold), "approval-aggression-l2", uint64(c.Aggression.L2Threshold),
		"finality lag (blocks) at which relayed votes route to the full grid, 0 disables")
	flags.Uint64Var((*uint64)(&c.Aggression.ResendUnfinalizedPeriod), "approval-resend-period", uint64(c.Aggression.ResendUnfinalizedPeriod),
		"force a full resend of the oldest unfinalized block every this many blocks of lag, 0 disables")
	flags.Uint32Var((*uint32)(&c.TrancheGrace), "approval-tranche-grace", uint32(c.TrancheGrace),
		"tranches past now an assignment may claim before rejection")
	flags.IntVar(&c.RecentlyOutdatedCapacity, "approval-recently-outdated-capacity", c.RecentlyOutdatedCapacity,
		"recently-finalized block hashes remembered to excuse late messages")
}

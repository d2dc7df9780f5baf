package reputation

import (
	"github.com/holiman/uint256"

	"github.com/t402-io/aa-mempool/uop"
)

// CheckStake validates a StakeInfo against the minimum stake and
// unstake-delay thresholds, reporting the specific reason for failure
// rather than a single generic error (spec.md §4.2).
func CheckStake(info uop.StakeInfo, minStake, minUnstakeDelaySec *uint256.Int) error {
	if info.Stake == nil || info.Stake.IsZero() {
		return errNotStaked()
	}
	if info.Stake.Cmp(minStake) < 0 {
		return errStakeTooLow()
	}
	if info.UnstakeDelaySec == nil || info.UnstakeDelaySec.Cmp(minUnstakeDelaySec) < 0 {
		return errUnstakeDelayTooLow()
	}
	return nil
}

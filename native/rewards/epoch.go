package rewards

import (
	"fmt"
	"math/big"
)

// NewEpochGroup constructs an epoch group with the supplied split table. The
// first settlement window opens one epoch after now.
func NewEpochGroup(id string, epochDuration int64, splits []Split, now int64) (*EpochGroup, error) {
	group := &EpochGroup{
		ID:                 id,
		EpochDuration:      epochDuration,
		LastDistributionAt: now,
		Splits:             append([]Split(nil), splits...),
	}
	if err := group.Validate(); err != nil {
		return nil, err
	}
	return group, nil
}

// Validate ensures the group timing and split table are self-consistent.
func (g *EpochGroup) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("rewards: epoch group id required")
	}
	if g.EpochDuration <= 0 {
		return fmt.Errorf("rewards: epoch duration must be positive")
	}
	seen := make(map[string]struct{}, len(g.Splits))
	total := uint64(0)
	for _, split := range g.Splits {
		if split.PoolID == "" {
			return ErrInvalidPoolID
		}
		if _, ok := seen[split.PoolID]; ok {
			return fmt.Errorf("rewards: duplicate split for pool %s", split.PoolID)
		}
		seen[split.PoolID] = struct{}{}
		if split.Bps == 0 {
			return fmt.Errorf("rewards: zero bps split for pool %s", split.PoolID)
		}
		total += uint64(split.Bps)
	}
	if total > BpsDenominator {
		return ErrSplitOverflow
	}
	return nil
}

// Elapsed reports whether at least one full epoch has passed since the last
// distribution. The transition is only ever observed lazily by engine calls;
// nothing drives it.
func (g *EpochGroup) Elapsed(now int64) bool {
	if g == nil || g.EpochDuration <= 0 {
		return false
	}
	return now >= g.LastDistributionAt+g.EpochDuration
}

// SplitBps returns the basis-point cut assigned to the pool, or zero when the
// pool is not fed by this group.
func (g *EpochGroup) SplitBps(poolID string) uint32 {
	if g == nil {
		return 0
	}
	for _, split := range g.Splits {
		if split.PoolID == poolID {
			return split.Bps
		}
	}
	return 0
}

// splitCut computes amount*bps/10000 with floor division, matching the
// conservative rounding used everywhere else in the ledger.
func splitCut(amount *big.Int, bps uint32) *big.Int {
	if amount == nil || amount.Sign() <= 0 || bps == 0 {
		return big.NewInt(0)
	}
	cut := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(bps)))
	return cut.Quo(cut, big.NewInt(BpsDenominator))
}

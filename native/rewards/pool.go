package rewards

import (
	"errors"
	"math/big"
)

// Accrue folds amount into the reward-per-share accumulator. It returns
// ErrNoDistributableWeight when the pool holds no weight; the caller decides
// where the value goes in that case.
func (p *Pool) Accrue(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	p.normalize()
	if p.TotalWeight.Sign() == 0 {
		return ErrNoDistributableWeight
	}
	p.RewardPerShare = new(big.Int).Add(p.RewardPerShare, accruePerShare(amount, p.TotalWeight))
	return nil
}

// Deposit credits amount to the pool and folds it, together with any value
// retained from weightless deposits, into the accumulator. When the pool still
// has no weight the amount is retained undistributed rather than rejected; this
// is the documented retention policy, not an error. The returned value is the
// amount actually folded.
func (p *Pool) Deposit(amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	p.normalize()
	p.TotalDeposited = new(big.Int).Add(p.TotalDeposited, amount)
	folded := new(big.Int).Add(amount, p.Undistributed)
	if err := p.Accrue(folded); err != nil {
		if errors.Is(err, ErrNoDistributableWeight) {
			p.Undistributed = folded
			return big.NewInt(0), nil
		}
		return nil, err
	}
	p.Undistributed = big.NewInt(0)
	return folded, nil
}

// Pending returns the claimable value for the share against the current
// accumulator.
func (p *Pool) Pending(share *Share) *big.Int {
	if p == nil || share == nil {
		return big.NewInt(0)
	}
	return pendingAmount(share.Weight, share.Debt, p.RewardPerShare)
}

// Unclaimed reports the deposited value not yet claimed out of the pool.
func (p *Pool) Unclaimed() *big.Int {
	p.normalize()
	return new(big.Int).Sub(p.TotalDeposited, p.TotalClaimed)
}

// Claim computes the share's pending value, resets its debt to the current
// accumulator level and books the amount as claimed. The caller is responsible
// for moving the returned amount out of the vault within the same transaction.
func (p *Pool) Claim(share *Share, now int64) (*big.Int, error) {
	if p == nil || share == nil {
		return nil, ErrStaleWeightChange
	}
	p.normalize()
	share.normalize()
	amount := p.Pending(share)
	if amount.Sign() > 0 && amount.Cmp(p.Unclaimed()) > 0 {
		return nil, ErrInsufficientPoolBalance
	}
	share.Debt = shareDebt(share.Weight, p.RewardPerShare)
	share.LastClaimAt = now
	if amount.Sign() > 0 {
		p.TotalClaimed = new(big.Int).Add(p.TotalClaimed, amount)
	}
	return amount, nil
}

// AddWeight grows the share and the pool total by delta. The debt is bumped by
// delta*rewardPerShare so the new weight earns nothing from past accrual.
func (p *Pool) AddWeight(share *Share, delta *big.Int) error {
	if delta == nil || delta.Sign() <= 0 {
		return ErrInvalidWeight
	}
	p.normalize()
	share.normalize()
	p.TotalWeight = new(big.Int).Add(p.TotalWeight, delta)
	share.Weight = new(big.Int).Add(share.Weight, delta)
	share.Debt = new(big.Int).Add(share.Debt, shareDebt(delta, p.RewardPerShare))
	return nil
}

// RemoveWeight shrinks the share and the pool total by delta, reducing the debt
// by delta*rewardPerShare at removal time. Pending value attributable to the
// removed weight must be claimed or forfeited before this call; afterwards it
// is no longer reachable through the share.
func (p *Pool) RemoveWeight(share *Share, delta *big.Int) error {
	if delta == nil || delta.Sign() <= 0 {
		return ErrInvalidWeight
	}
	p.normalize()
	share.normalize()
	if share.Weight.Cmp(delta) < 0 || p.TotalWeight.Cmp(delta) < 0 {
		return ErrInvalidWeight
	}
	p.TotalWeight = new(big.Int).Sub(p.TotalWeight, delta)
	share.Weight = new(big.Int).Sub(share.Weight, delta)
	removedDebt := shareDebt(delta, p.RewardPerShare)
	if share.Debt.Cmp(removedDebt) < 0 {
		share.Debt = big.NewInt(0)
	} else {
		share.Debt = new(big.Int).Sub(share.Debt, removedDebt)
	}
	return nil
}

// virtualPerShare projects the accumulator as if extra value were folded right
// now, without mutating the pool. The arithmetic matches Deposit exactly,
// including the floor division and the retained-value fold, so previews agree
// with a subsequent real settlement.
func (p *Pool) virtualPerShare(extra *big.Int) *big.Int {
	p.normalize()
	projected := new(big.Int).Set(p.RewardPerShare)
	if extra == nil || extra.Sign() <= 0 {
		return projected
	}
	if p.TotalWeight.Sign() == 0 {
		return projected
	}
	folded := new(big.Int).Add(extra, p.Undistributed)
	return projected.Add(projected, accruePerShare(folded, p.TotalWeight))
}

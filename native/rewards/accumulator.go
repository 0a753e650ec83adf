package rewards

import "math/big"

const (
	// PrecisionExp is the decimal exponent of the fixed point scale applied to
	// reward-per-share values.
	PrecisionExp = 12
	// BpsDenominator defines the fixed denominator used for treasury split math.
	BpsDenominator = 10_000
)

var precision = new(big.Int).Exp(big.NewInt(10), big.NewInt(PrecisionExp), nil)

// Precision returns the reward-per-share fixed point scale (10^12).
func Precision() *big.Int { return new(big.Int).Set(precision) }

// accruePerShare returns the reward-per-share increment produced by folding
// amount across totalWeight units of weight. Division floors, so up to one
// precision unit per accrual stays with the pool instead of being over-paid.
func accruePerShare(amount, totalWeight *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 || totalWeight == nil || totalWeight.Sign() <= 0 {
		return big.NewInt(0)
	}
	inc := new(big.Int).Mul(amount, precision)
	return inc.Quo(inc, totalWeight)
}

// pendingAmount computes the claimable value for the supplied weight and debt
// against a reward-per-share accumulator. The subtraction is clamped at zero to
// guard against a stale debt read; under correct sequencing debt never exceeds
// weight*rewardPerShare.
func pendingAmount(weight, debt, rewardPerShare *big.Int) *big.Int {
	if weight == nil || weight.Sign() <= 0 || rewardPerShare == nil {
		return big.NewInt(0)
	}
	accrued := new(big.Int).Mul(weight, rewardPerShare)
	if debt != nil {
		accrued.Sub(accrued, debt)
	}
	if accrued.Sign() <= 0 {
		return big.NewInt(0)
	}
	return accrued.Quo(accrued, precision)
}

// shareDebt returns weight*rewardPerShare, the debt recorded for a share after
// a claim or a weight change.
func shareDebt(weight, rewardPerShare *big.Int) *big.Int {
	if weight == nil || weight.Sign() <= 0 || rewardPerShare == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(weight, rewardPerShare)
}

func copyBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func normalizeBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

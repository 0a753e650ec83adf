package rewards

import "errors"

var (
	// ErrNilState indicates the engine was used before a state backend was
	// configured.
	ErrNilState = errors.New("rewards: state not configured")
	// ErrInvalidPoolID rejects empty or whitespace-only pool identifiers.
	ErrInvalidPoolID = errors.New("rewards: pool id required")
	// ErrPoolNotFound indicates the referenced pool does not exist.
	ErrPoolNotFound = errors.New("rewards: pool not found")
	// ErrGroupNotFound indicates the referenced epoch group does not exist.
	ErrGroupNotFound = errors.New("rewards: epoch group not found")
	// ErrInvalidAmount rejects nil, zero or negative value amounts.
	ErrInvalidAmount = errors.New("rewards: amount must be positive")
	// ErrInvalidWeight rejects weight deltas that are nil, non-positive or
	// larger than the weight they would be removed from.
	ErrInvalidWeight = errors.New("rewards: invalid weight delta")
	// ErrNoDistributableWeight is returned by the accumulator when a deposit
	// arrives while the pool holds no weight. Deposit intercepts it and retains
	// the amount undistributed; the value becomes distributable with the next
	// accrual once weight exists. Callers of Deposit never observe it.
	ErrNoDistributableWeight = errors.New("rewards: no distributable weight")
	// ErrInsufficientPoolBalance signals a claim exceeding the unclaimed pool
	// balance. The pool invariants make this unreachable; it is checked anyway
	// because a claim moves real value, and a hit must abort the enclosing
	// transaction.
	ErrInsufficientPoolBalance = errors.New("rewards: claim exceeds unclaimed pool balance")
	// ErrStaleWeightChange indicates a weight removal referenced a pool the
	// participant holds no share record in.
	ErrStaleWeightChange = errors.New("rewards: no share record for weight change")
	// ErrPartialReconciliation wraps a failure inside a multi-pool weight
	// change. The enclosing state transaction discards all sibling updates, so
	// no partial reconciliation can ever commit.
	ErrPartialReconciliation = errors.New("rewards: multi-pool weight change failed")
	// ErrPayoutVaultNotSet indicates the vault holding deposited value was not
	// configured on the engine.
	ErrPayoutVaultNotSet = errors.New("rewards: payout vault not configured")
	// ErrInsufficientFunds indicates the funding account balance does not cover
	// the requested transfer.
	ErrInsufficientFunds = errors.New("rewards: insufficient balance")
	// ErrSplitOverflow rejects split tables exceeding 10000 basis points.
	ErrSplitOverflow = errors.New("rewards: split table exceeds 10000 bps")
)

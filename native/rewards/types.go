package rewards

import (
	"math/big"
	"strings"
)

// Pool is a named pot of value shared pro rata by weight among participants.
// RewardPerShare is scaled by Precision and never decreases; TotalDeposited and
// TotalClaimed are cumulative, with TotalClaimed <= TotalDeposited at all times.
// Undistributed holds value deposited while the pool had no weight; it folds
// into the accumulator on the next accrual that finds weight.
type Pool struct {
	ID             string   `json:"id"`
	TotalWeight    *big.Int `json:"totalWeight"`
	TotalDeposited *big.Int `json:"totalDeposited"`
	TotalClaimed   *big.Int `json:"totalClaimed"`
	RewardPerShare *big.Int `json:"rewardPerShare"`
	Undistributed  *big.Int `json:"undistributed"`
	CreatedAt      int64    `json:"createdAt"`
}

// NewPool constructs an empty pool with all counters at zero.
func NewPool(id string, now int64) *Pool {
	return &Pool{
		ID:             id,
		TotalWeight:    big.NewInt(0),
		TotalDeposited: big.NewInt(0),
		TotalClaimed:   big.NewInt(0),
		RewardPerShare: big.NewInt(0),
		Undistributed:  big.NewInt(0),
		CreatedAt:      now,
	}
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.TotalWeight = copyBigInt(p.TotalWeight)
	clone.TotalDeposited = copyBigInt(p.TotalDeposited)
	clone.TotalClaimed = copyBigInt(p.TotalClaimed)
	clone.RewardPerShare = copyBigInt(p.RewardPerShare)
	clone.Undistributed = copyBigInt(p.Undistributed)
	return &clone
}

func (p *Pool) normalize() {
	p.TotalWeight = normalizeBig(p.TotalWeight)
	p.TotalDeposited = normalizeBig(p.TotalDeposited)
	p.TotalClaimed = normalizeBig(p.TotalClaimed)
	p.RewardPerShare = normalizeBig(p.RewardPerShare)
	p.Undistributed = normalizeBig(p.Undistributed)
}

// Share records one participant's stake in one pool. Debt is the
// Precision-scaled value already credited: weight*rewardPerShare at the last
// settlement. One participant holds an independent Share per pool; debts are
// never shared across pools because each pool runs its own accumulator scale.
type Share struct {
	PoolID      string   `json:"poolId"`
	Participant [20]byte `json:"participant"`
	Weight      *big.Int `json:"weight"`
	Debt        *big.Int `json:"debt"`
	JoinedAt    int64    `json:"joinedAt"`
	LastClaimAt int64    `json:"lastClaimAt"`
}

// Clone returns a deep copy of the share.
func (s *Share) Clone() *Share {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Weight = copyBigInt(s.Weight)
	clone.Debt = copyBigInt(s.Debt)
	return &clone
}

func (s *Share) normalize() {
	s.Weight = normalizeBig(s.Weight)
	s.Debt = normalizeBig(s.Debt)
}

// Split assigns a basis-point cut of every settled treasury amount to a pool.
type Split struct {
	PoolID string `json:"poolId"`
	Bps    uint32 `json:"bps"`
}

// EpochGroup carries the shared timing state for the pools funded by one
// treasury. LastDistributionAt only moves forward and only when at least one
// full epoch has elapsed.
type EpochGroup struct {
	ID                 string  `json:"id"`
	EpochDuration      int64   `json:"epochDuration"`
	LastDistributionAt int64   `json:"lastDistributionAt"`
	EpochsSettled      uint64  `json:"epochsSettled"`
	Splits             []Split `json:"splits"`
}

// Clone returns a deep copy of the epoch group.
func (g *EpochGroup) Clone() *EpochGroup {
	if g == nil {
		return nil
	}
	clone := *g
	clone.Splits = append([]Split(nil), g.Splits...)
	return &clone
}

// SettlementFold records the amount folded into one pool during a settlement.
type SettlementFold struct {
	PoolID string   `json:"poolId"`
	Amount *big.Int `json:"amount"`
}

// Settlement is the per-epoch ledger entry appended by every real settlement.
// Retained is the withdrawn slack left in the vault when the split table sums
// below 10000 bps.
type Settlement struct {
	ID        string           `json:"id"`
	GroupID   string           `json:"groupId"`
	Epoch     uint64           `json:"epoch"`
	SettledAt int64            `json:"settledAt"`
	Withdrawn *big.Int         `json:"withdrawn"`
	Retained  *big.Int         `json:"retained"`
	Folds     []SettlementFold `json:"folds"`
}

// Clone returns a deep copy of the settlement record.
func (s *Settlement) Clone() *Settlement {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Withdrawn = copyBigInt(s.Withdrawn)
	clone.Retained = copyBigInt(s.Retained)
	clone.Folds = make([]SettlementFold, len(s.Folds))
	for i, fold := range s.Folds {
		clone.Folds[i] = SettlementFold{PoolID: fold.PoolID, Amount: copyBigInt(fold.Amount)}
	}
	return &clone
}

func sanitizePoolID(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return "", ErrInvalidPoolID
	}
	return trimmed, nil
}

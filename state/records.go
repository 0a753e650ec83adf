package state

import (
	"math/big"

	"patronledger/core/types"
	"patronledger/native/rewards"
)

// Persisted record shapes. RLP handles unsigned integers only, so timestamps
// are stored as uint64 and converted at the codec boundary; big.Int fields are
// normalised to non-nil before encoding.

type poolRecord struct {
	ID             string
	TotalWeight    *big.Int
	TotalDeposited *big.Int
	TotalClaimed   *big.Int
	RewardPerShare *big.Int
	Undistributed  *big.Int
	CreatedAt      uint64
}

type shareRecord struct {
	PoolID      string
	Participant [20]byte
	Weight      *big.Int
	Debt        *big.Int
	JoinedAt    uint64
	LastClaimAt uint64
}

type splitRecord struct {
	PoolID string
	Bps    uint32
}

type groupRecord struct {
	ID                 string
	EpochDuration      uint64
	LastDistributionAt uint64
	EpochsSettled      uint64
	Splits             []splitRecord
}

type streamRecord struct {
	Total           *big.Int
	StartAt         uint64
	DurationSeconds uint64
}

type treasuryRecord struct {
	ID             string
	DepositedTotal *big.Int
	WithdrawnTotal *big.Int
	Streams        []streamRecord
}

type foldRecord struct {
	PoolID string
	Amount *big.Int
}

type settlementRecord struct {
	ID        string
	GroupID   string
	Epoch     uint64
	SettledAt uint64
	Withdrawn *big.Int
	Retained  *big.Int
	Folds     []foldRecord
}

type accountRecord struct {
	Balance *big.Int
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func toPoolRecord(p *rewards.Pool) poolRecord {
	return poolRecord{
		ID:             p.ID,
		TotalWeight:    nonNil(p.TotalWeight),
		TotalDeposited: nonNil(p.TotalDeposited),
		TotalClaimed:   nonNil(p.TotalClaimed),
		RewardPerShare: nonNil(p.RewardPerShare),
		Undistributed:  nonNil(p.Undistributed),
		CreatedAt:      uint64(p.CreatedAt),
	}
}

func (r poolRecord) toPool() *rewards.Pool {
	return &rewards.Pool{
		ID:             r.ID,
		TotalWeight:    nonNil(r.TotalWeight),
		TotalDeposited: nonNil(r.TotalDeposited),
		TotalClaimed:   nonNil(r.TotalClaimed),
		RewardPerShare: nonNil(r.RewardPerShare),
		Undistributed:  nonNil(r.Undistributed),
		CreatedAt:      int64(r.CreatedAt),
	}
}

func toShareRecord(s *rewards.Share) shareRecord {
	return shareRecord{
		PoolID:      s.PoolID,
		Participant: s.Participant,
		Weight:      nonNil(s.Weight),
		Debt:        nonNil(s.Debt),
		JoinedAt:    uint64(s.JoinedAt),
		LastClaimAt: uint64(s.LastClaimAt),
	}
}

func (r shareRecord) toShare() *rewards.Share {
	return &rewards.Share{
		PoolID:      r.PoolID,
		Participant: r.Participant,
		Weight:      nonNil(r.Weight),
		Debt:        nonNil(r.Debt),
		JoinedAt:    int64(r.JoinedAt),
		LastClaimAt: int64(r.LastClaimAt),
	}
}

func toGroupRecord(g *rewards.EpochGroup) groupRecord {
	splits := make([]splitRecord, len(g.Splits))
	for i, split := range g.Splits {
		splits[i] = splitRecord{PoolID: split.PoolID, Bps: split.Bps}
	}
	return groupRecord{
		ID:                 g.ID,
		EpochDuration:      uint64(g.EpochDuration),
		LastDistributionAt: uint64(g.LastDistributionAt),
		EpochsSettled:      g.EpochsSettled,
		Splits:             splits,
	}
}

func (r groupRecord) toGroup() *rewards.EpochGroup {
	splits := make([]rewards.Split, len(r.Splits))
	for i, split := range r.Splits {
		splits[i] = rewards.Split{PoolID: split.PoolID, Bps: split.Bps}
	}
	return &rewards.EpochGroup{
		ID:                 r.ID,
		EpochDuration:      int64(r.EpochDuration),
		LastDistributionAt: int64(r.LastDistributionAt),
		EpochsSettled:      r.EpochsSettled,
		Splits:             splits,
	}
}

func toTreasuryRecord(t *rewards.Treasury) treasuryRecord {
	streams := make([]streamRecord, len(t.Streams))
	for i, stream := range t.Streams {
		streams[i] = streamRecord{
			Total:           nonNil(stream.Total),
			StartAt:         uint64(stream.StartAt),
			DurationSeconds: uint64(stream.DurationSeconds),
		}
	}
	return treasuryRecord{
		ID:             t.ID,
		DepositedTotal: nonNil(t.DepositedTotal),
		WithdrawnTotal: nonNil(t.WithdrawnTotal),
		Streams:        streams,
	}
}

func (r treasuryRecord) toTreasury() *rewards.Treasury {
	streams := make([]rewards.Stream, len(r.Streams))
	for i, stream := range r.Streams {
		streams[i] = rewards.Stream{
			Total:           nonNil(stream.Total),
			StartAt:         int64(stream.StartAt),
			DurationSeconds: int64(stream.DurationSeconds),
		}
	}
	return &rewards.Treasury{
		ID:             r.ID,
		DepositedTotal: nonNil(r.DepositedTotal),
		WithdrawnTotal: nonNil(r.WithdrawnTotal),
		Streams:        streams,
	}
}

func toSettlementRecord(s *rewards.Settlement) settlementRecord {
	folds := make([]foldRecord, len(s.Folds))
	for i, fold := range s.Folds {
		folds[i] = foldRecord{PoolID: fold.PoolID, Amount: nonNil(fold.Amount)}
	}
	return settlementRecord{
		ID:        s.ID,
		GroupID:   s.GroupID,
		Epoch:     s.Epoch,
		SettledAt: uint64(s.SettledAt),
		Withdrawn: nonNil(s.Withdrawn),
		Retained:  nonNil(s.Retained),
		Folds:     folds,
	}
}

func (r settlementRecord) toSettlement() *rewards.Settlement {
	folds := make([]rewards.SettlementFold, len(r.Folds))
	for i, fold := range r.Folds {
		folds[i] = rewards.SettlementFold{PoolID: fold.PoolID, Amount: nonNil(fold.Amount)}
	}
	return &rewards.Settlement{
		ID:        r.ID,
		GroupID:   r.GroupID,
		Epoch:     r.Epoch,
		SettledAt: int64(r.SettledAt),
		Withdrawn: nonNil(r.Withdrawn),
		Retained:  nonNil(r.Retained),
		Folds:     folds,
	}
}

func toAccountRecord(a *types.Account) accountRecord {
	if a == nil {
		return accountRecord{Balance: big.NewInt(0)}
	}
	return accountRecord{Balance: nonNil(a.Balance)}
}

func (r accountRecord) toAccount() *types.Account {
	return &types.Account{Balance: nonNil(r.Balance)}
}

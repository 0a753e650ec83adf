package rewards

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"patronledger/core/events"
	"patronledger/core/types"
)

// settlementHistoryLimit bounds the per-group settlement records retained in
// state. Older entries are pruned oldest-first.
const settlementHistoryLimit = 64

type engineState interface {
	RewardPoolGet(id string) (*Pool, bool, error)
	RewardPoolPut(pool *Pool) error
	RewardShareGet(poolID string, participant [20]byte) (*Share, bool, error)
	RewardSharePut(share *Share) error
	RewardShareDelete(poolID string, participant [20]byte) error
	RewardEpochGroupGet(id string) (*EpochGroup, bool, error)
	RewardEpochGroupPut(group *EpochGroup) error
	RewardSettlementsGet(groupID string) ([]*Settlement, error)
	RewardSettlementsPut(groupID string, settlements []*Settlement) error
	RewardTreasuryGet(id string) (*Treasury, bool, error)
	RewardTreasuryPut(treasury *Treasury) error
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// Engine orchestrates the reward ledger: pro-rata pools, lazy epoch
// settlement and multi-pool weight reconciliation. All reads and writes go
// through the configured state backend; the backend's transaction guarantees
// make every engine entry point all-or-nothing.
type Engine struct {
	state       engineState
	emitter     events.Emitter
	nowFn       func() int64
	idFn        func() string
	payoutVault [20]byte
	groupID     string
	treasury    TreasuryBridge
}

// NewEngine constructs a reward engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn: func() int64 {
			return time.Now().Unix()
		},
		idFn: func() string {
			return uuid.NewString()
		},
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetIDFunc overrides the settlement identifier source.
func (e *Engine) SetIDFunc(id func() string) {
	if id == nil {
		e.idFn = func() string { return uuid.NewString() }
		return
	}
	e.idFn = id
}

// SetPayoutVault configures the holding account for deposited value.
func (e *Engine) SetPayoutVault(addr [20]byte) { e.payoutVault = addr }

// SetEpochGroup configures the epoch group settled lazily by mutating calls.
func (e *Engine) SetEpochGroup(id string) { e.groupID = id }

// SetTreasury configures the bridge to the time-released treasury feeding the
// epoch group.
func (e *Engine) SetTreasury(bridge TreasuryBridge) { e.treasury = bridge }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func isZeroAddress(addr [20]byte) bool {
	var zero [20]byte
	return addr == zero
}

// InitEpochGroup creates the epoch group and the pools named by its split
// table if they do not exist yet. Calling it again for an existing group is a
// no-op returning the stored group.
func (e *Engine) InitEpochGroup(id string, epochDuration int64, splits []Split) (*EpochGroup, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if existing, ok, err := e.state.RewardEpochGroupGet(id); err != nil {
		return nil, err
	} else if ok && existing != nil {
		return existing.Clone(), nil
	}
	now := e.now()
	group, err := NewEpochGroup(id, epochDuration, splits, now)
	if err != nil {
		return nil, err
	}
	if err := e.state.RewardEpochGroupPut(group); err != nil {
		return nil, err
	}
	for _, split := range group.Splits {
		if _, err := e.ensurePool(split.PoolID, now); err != nil {
			return nil, err
		}
	}
	return group.Clone(), nil
}

func (e *Engine) ensurePool(id string, now int64) (*Pool, error) {
	sanitized, err := sanitizePoolID(id)
	if err != nil {
		return nil, err
	}
	pool, ok, err := e.state.RewardPoolGet(sanitized)
	if err != nil {
		return nil, err
	}
	if ok && pool != nil {
		return pool, nil
	}
	pool = NewPool(sanitized, now)
	if err := e.state.RewardPoolPut(pool); err != nil {
		return nil, err
	}
	return pool, nil
}

// Pool returns a copy of the stored pool.
func (e *Engine) Pool(id string) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	pool, ok, err := e.state.RewardPoolGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || pool == nil {
		return nil, ErrPoolNotFound
	}
	return pool.Clone(), nil
}

// Share returns a copy of the participant's share in the pool, or false when
// no share record exists.
func (e *Engine) Share(poolID string, participant [20]byte) (*Share, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, ErrNilState
	}
	share, ok, err := e.state.RewardShareGet(poolID, participant)
	if err != nil {
		return nil, false, err
	}
	if !ok || share == nil {
		return nil, false, nil
	}
	return share.Clone(), true, nil
}

// BalanceOf returns the settlement-ready balance of the address.
func (e *Engine) BalanceOf(addr [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	account, err := e.state.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	return copyBigInt(ensureAccount(account).Balance), nil
}

func (e *Engine) transfer(from, to [20]byte, amount *big.Int) error {
	fromAccount, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	fromAccount = ensureAccount(fromAccount)
	if fromAccount.Balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	fromAccount.Balance = new(big.Int).Sub(fromAccount.Balance, amount)
	if err := e.state.PutAccount(from[:], fromAccount); err != nil {
		return err
	}
	toAccount, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	toAccount = ensureAccount(toAccount)
	toAccount.Balance = new(big.Int).Add(toAccount.Balance, amount)
	return e.state.PutAccount(to[:], toAccount)
}

// Deposit moves amount from the payer into the vault and credits it to the
// pool, creating the pool on first use. Like every mutating entry point it
// first folds any elapsed treasury epoch.
func (e *Engine) Deposit(from [20]byte, poolID string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if isZeroAddress(e.payoutVault) {
		return ErrPayoutVaultNotSet
	}
	if _, err := e.Settle(); err != nil {
		return err
	}
	pool, err := e.ensurePool(poolID, e.now())
	if err != nil {
		return err
	}
	if err := e.transfer(from, e.payoutVault, amount); err != nil {
		return err
	}
	folded, err := pool.Deposit(amount)
	if err != nil {
		return err
	}
	if err := e.state.RewardPoolPut(pool); err != nil {
		return err
	}
	if folded.Sign() == 0 {
		e.emit(PoolRetainedEvent(pool.ID, amount.String(), pool.Undistributed.String()))
		return nil
	}
	e.emit(PoolDepositedEvent(pool.ID, amount.String(), folded.String(), pool.RewardPerShare.String()))
	return nil
}

// Pending returns the participant's claimable value without mutating anything.
// A missing pool or share record yields zero.
func (e *Engine) Pending(poolID string, participant [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	pool, ok, err := e.state.RewardPoolGet(poolID)
	if err != nil {
		return nil, err
	}
	if !ok || pool == nil {
		return big.NewInt(0), nil
	}
	share, ok, err := e.state.RewardShareGet(poolID, participant)
	if err != nil {
		return nil, err
	}
	if !ok || share == nil {
		return big.NewInt(0), nil
	}
	return pool.Pending(share), nil
}

// PreviewPending projects what Pending would return immediately after a real
// settlement of the currently available treasury balance, without withdrawing
// funds or advancing the epoch marker. The projection uses the same formula
// and rounding as Settle, so a settlement with an unchanged treasury balance
// lands on exactly the previewed figure.
func (e *Engine) PreviewPending(poolID string, participant [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	pool, ok, err := e.state.RewardPoolGet(poolID)
	if err != nil {
		return nil, err
	}
	if !ok || pool == nil {
		return big.NewInt(0), nil
	}
	share, ok, err := e.state.RewardShareGet(poolID, participant)
	if err != nil {
		return nil, err
	}
	if !ok || share == nil {
		return big.NewInt(0), nil
	}
	extra := big.NewInt(0)
	if e.treasury != nil && e.groupID != "" {
		group, ok, err := e.state.RewardEpochGroupGet(e.groupID)
		if err != nil {
			return nil, err
		}
		if ok && group != nil {
			if bps := group.SplitBps(pool.ID); bps > 0 {
				available, err := e.treasury.Available(e.now())
				if err != nil {
					return nil, err
				}
				extra = splitCut(available, bps)
			}
		}
	}
	virtual := pool.virtualPerShare(extra)
	return pendingAmount(share.Weight, share.Debt, virtual), nil
}

// Claim pays out the participant's pending value from the vault and resets the
// share debt. Claiming twice without an intervening deposit pays zero.
func (e *Engine) Claim(poolID string, participant [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if isZeroAddress(e.payoutVault) {
		return nil, ErrPayoutVaultNotSet
	}
	if _, err := e.Settle(); err != nil {
		return nil, err
	}
	pool, ok, err := e.state.RewardPoolGet(poolID)
	if err != nil {
		return nil, err
	}
	if !ok || pool == nil {
		return nil, ErrPoolNotFound
	}
	share, ok, err := e.state.RewardShareGet(poolID, participant)
	if err != nil {
		return nil, err
	}
	if !ok || share == nil {
		return nil, ErrStaleWeightChange
	}
	amount, err := e.claimShare(pool, share, participant)
	if err != nil {
		return nil, err
	}
	if err := e.state.RewardPoolPut(pool); err != nil {
		return nil, err
	}
	if err := e.state.RewardSharePut(share); err != nil {
		return nil, err
	}
	return amount, nil
}

// claimShare settles the share against the pool and moves the claimed value
// from the vault to the participant. The caller persists pool and share.
func (e *Engine) claimShare(pool *Pool, share *Share, participant [20]byte) (*big.Int, error) {
	amount, err := pool.Claim(share, e.now())
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return amount, nil
	}
	vaultAccount, err := e.state.GetAccount(e.payoutVault[:])
	if err != nil {
		return nil, err
	}
	if ensureAccount(vaultAccount).Balance.Cmp(amount) < 0 {
		return nil, ErrInsufficientPoolBalance
	}
	if err := e.transfer(e.payoutVault, participant, amount); err != nil {
		return nil, err
	}
	e.emit(ClaimedEvent(pool.ID, hexAddr(participant), amount.String(), pool.TotalClaimed.String()))
	return amount, nil
}

// WeightChange applies one weight delta to every named pool as a single
// atomic command. A positive delta joins the participant to each pool,
// creating share records debt-initialised so past accrual stays out of reach.
// A negative delta removes weight; pending value is claimed first, or
// irreversibly forfeited to the pool when forfeit is true, and shares that
// reach zero weight are deleted. Any failure aborts the whole reconciliation.
func (e *Engine) WeightChange(participant [20]byte, poolIDs []string, delta *big.Int, forfeit bool) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if delta == nil || delta.Sign() == 0 {
		return ErrInvalidWeight
	}
	if len(poolIDs) == 0 {
		return ErrInvalidPoolID
	}
	if _, err := e.Settle(); err != nil {
		return err
	}
	now := e.now()
	if delta.Sign() > 0 {
		for _, poolID := range poolIDs {
			if err := e.addWeight(participant, poolID, delta, now); err != nil {
				return fmt.Errorf("%w: pool %s: %w", ErrPartialReconciliation, poolID, err)
			}
		}
		return nil
	}
	abs := new(big.Int).Neg(delta)
	for _, poolID := range poolIDs {
		if err := e.removeWeight(participant, poolID, abs, forfeit); err != nil {
			return fmt.Errorf("%w: pool %s: %w", ErrPartialReconciliation, poolID, err)
		}
	}
	return nil
}

func (e *Engine) addWeight(participant [20]byte, poolID string, delta *big.Int, now int64) error {
	pool, err := e.ensurePool(poolID, now)
	if err != nil {
		return err
	}
	share, ok, err := e.state.RewardShareGet(pool.ID, participant)
	if err != nil {
		return err
	}
	if !ok || share == nil {
		share = &Share{
			PoolID:      pool.ID,
			Participant: participant,
			Weight:      big.NewInt(0),
			Debt:        big.NewInt(0),
			JoinedAt:    now,
		}
	}
	if err := pool.AddWeight(share, delta); err != nil {
		return err
	}
	if err := e.state.RewardPoolPut(pool); err != nil {
		return err
	}
	if err := e.state.RewardSharePut(share); err != nil {
		return err
	}
	e.emit(WeightAddedEvent(pool.ID, hexAddr(participant), delta.String(), pool.TotalWeight.String()))
	return nil
}

func (e *Engine) removeWeight(participant [20]byte, poolID string, delta *big.Int, forfeit bool) error {
	pool, ok, err := e.state.RewardPoolGet(poolID)
	if err != nil {
		return err
	}
	if !ok || pool == nil {
		return ErrPoolNotFound
	}
	share, ok, err := e.state.RewardShareGet(pool.ID, participant)
	if err != nil {
		return err
	}
	if !ok || share == nil {
		return ErrStaleWeightChange
	}
	pending := pool.Pending(share)
	if pending.Sign() > 0 {
		if forfeit {
			// The forfeited value stays on TotalDeposited with no debt holder,
			// so it accrues to the remaining weight through future folds.
			share.Debt = shareDebt(share.Weight, pool.RewardPerShare)
			e.emit(PendingForfeitedEvent(pool.ID, hexAddr(participant), pending.String()))
		} else {
			if isZeroAddress(e.payoutVault) {
				return ErrPayoutVaultNotSet
			}
			if _, err := e.claimShare(pool, share, participant); err != nil {
				return err
			}
		}
	}
	if err := pool.RemoveWeight(share, delta); err != nil {
		return err
	}
	if err := e.state.RewardPoolPut(pool); err != nil {
		return err
	}
	if share.Weight.Sign() == 0 {
		if err := e.state.RewardShareDelete(pool.ID, participant); err != nil {
			return err
		}
	} else {
		if err := e.state.RewardSharePut(share); err != nil {
			return err
		}
	}
	e.emit(WeightRemovedEvent(pool.ID, hexAddr(participant), delta.String(), pool.TotalWeight.String()))
	return nil
}

// FundTreasury moves amount from the funder into the vault and registers a
// release stream unlocking linearly over durationSeconds (zero releases
// immediately).
func (e *Engine) FundTreasury(from [20]byte, amount *big.Int, durationSeconds int64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.groupID == "" {
		return ErrGroupNotFound
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if isZeroAddress(e.payoutVault) {
		return ErrPayoutVaultNotSet
	}
	if _, err := e.Settle(); err != nil {
		return err
	}
	if err := e.transfer(from, e.payoutVault, amount); err != nil {
		return err
	}
	treasury, ok, err := e.state.RewardTreasuryGet(e.groupID)
	if err != nil {
		return err
	}
	if !ok || treasury == nil {
		treasury = NewTreasury(e.groupID)
	}
	now := e.now()
	if err := treasury.AddStream(amount, now, durationSeconds); err != nil {
		return err
	}
	if err := e.state.RewardTreasuryPut(treasury); err != nil {
		return err
	}
	e.emit(TreasuryFundedEvent(e.groupID, hexAddr(from), amount.String(), fmt.Sprintf("%d", durationSeconds)))
	return nil
}

// Settle folds the available treasury balance into the group's pools if a full
// epoch has elapsed, advancing the distribution marker to now and appending a
// per-epoch settlement record. It re-checks the epoch boundary against current
// state, so a second caller inside the same window is a no-op and can never
// re-fold the same withdrawal. The boolean reports whether a settlement ran.
func (e *Engine) Settle() (bool, error) {
	if e == nil || e.state == nil {
		return false, ErrNilState
	}
	if e.groupID == "" {
		return false, nil
	}
	group, ok, err := e.state.RewardEpochGroupGet(e.groupID)
	if err != nil {
		return false, err
	}
	if !ok || group == nil {
		return false, nil
	}
	now := e.now()
	if !group.Elapsed(now) {
		return false, nil
	}
	withdrawn := big.NewInt(0)
	if e.treasury != nil {
		withdrawn, err = e.treasury.Withdraw(now)
		if err != nil {
			return false, err
		}
	}
	foldedTotal := big.NewInt(0)
	folds := make([]SettlementFold, 0, len(group.Splits))
	if withdrawn.Sign() > 0 {
		for _, split := range group.Splits {
			cut := splitCut(withdrawn, split.Bps)
			if cut.Sign() == 0 {
				continue
			}
			pool, err := e.ensurePool(split.PoolID, now)
			if err != nil {
				return false, err
			}
			folded, err := pool.Deposit(cut)
			if err != nil {
				return false, err
			}
			if err := e.state.RewardPoolPut(pool); err != nil {
				return false, err
			}
			folds = append(folds, SettlementFold{PoolID: pool.ID, Amount: cut})
			foldedTotal.Add(foldedTotal, cut)
			if folded.Sign() == 0 {
				e.emit(PoolRetainedEvent(pool.ID, cut.String(), pool.Undistributed.String()))
			} else {
				e.emit(PoolDepositedEvent(pool.ID, cut.String(), folded.String(), pool.RewardPerShare.String()))
			}
		}
	}
	// Deliberately jump to now rather than the epoch boundary: amounts are
	// attributed cumulatively, not per discrete boundary.
	group.LastDistributionAt = now
	group.EpochsSettled++
	if err := e.state.RewardEpochGroupPut(group); err != nil {
		return false, err
	}
	retained := new(big.Int).Sub(withdrawn, foldedTotal)
	settlement := &Settlement{
		ID:        e.idFn(),
		GroupID:   group.ID,
		Epoch:     group.EpochsSettled,
		SettledAt: now,
		Withdrawn: withdrawn,
		Retained:  retained,
		Folds:     folds,
	}
	if err := e.appendSettlement(settlement); err != nil {
		return false, err
	}
	e.emit(EpochSettledEvent(group.ID, fmt.Sprintf("%d", settlement.Epoch), withdrawn.String(), retained.String(), fmt.Sprintf("%d", now)))
	return true, nil
}

func (e *Engine) appendSettlement(settlement *Settlement) error {
	history, err := e.state.RewardSettlementsGet(settlement.GroupID)
	if err != nil {
		return err
	}
	history = append(history, settlement)
	if len(history) > settlementHistoryLimit {
		history = history[len(history)-settlementHistoryLimit:]
	}
	return e.state.RewardSettlementsPut(settlement.GroupID, history)
}

// Settlements returns up to limit of the most recent settlement records for
// the configured group, oldest first. A non-positive limit returns the full
// retained history.
func (e *Engine) Settlements(limit int) ([]*Settlement, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if e.groupID == "" {
		return nil, ErrGroupNotFound
	}
	history, err := e.state.RewardSettlementsGet(e.groupID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	out := make([]*Settlement, len(history))
	for i, settlement := range history {
		out[i] = settlement.Clone()
	}
	return out, nil
}

// EpochGroup returns a copy of the configured group's timing state.
func (e *Engine) EpochGroup() (*EpochGroup, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	group, ok, err := e.state.RewardEpochGroupGet(e.groupID)
	if err != nil {
		return nil, err
	}
	if !ok || group == nil {
		return nil, ErrGroupNotFound
	}
	return group.Clone(), nil
}

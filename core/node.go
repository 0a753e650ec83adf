package core

import (
	"log/slog"
	"math/big"
	"time"

	"patronledger/config"
	"patronledger/core/events"
	"patronledger/core/types"
	"patronledger/native/rewards"
	"patronledger/observability/metrics"
	"patronledger/state"
)

// Node ties the reward engine to the transaction manager and the daemon's
// configuration. Every public method runs as one atomic state transaction.
type Node struct {
	mgr     *state.Manager
	emitter events.Emitter
	nowFn   func() int64

	groupID  string
	duration int64
	splits   []rewards.Split
	vault    types.Address
	genesis  []config.Allocation
}

// NewNode constructs a node over the supplied transaction manager.
func NewNode(mgr *state.Manager, cfg *config.Config) *Node {
	return &Node{
		mgr:      mgr,
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
		groupID:  cfg.Epoch.GroupID,
		duration: cfg.Epoch.DurationSeconds,
		splits:   cfg.SplitTable(),
		vault:    cfg.Vault(),
		genesis:  cfg.Genesis,
	}
}

// SetEmitter configures the event emitter attached to every engine.
func (n *Node) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		n.emitter = events.NoopEmitter{}
		return
	}
	n.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (n *Node) SetNowFunc(now func() int64) {
	if now == nil {
		n.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	n.nowFn = now
}

// meteredEmitter feeds ledger events into the prometheus registry before
// handing them to the configured downstream emitter.
type meteredEmitter struct {
	next events.Emitter
}

func (m meteredEmitter) Emit(evt events.Event) {
	if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
		observeEvent(carrier.Event())
	}
	if m.next != nil {
		m.next.Emit(evt)
	}
}

func observeEvent(evt *types.Event) {
	if evt == nil {
		return
	}
	reg := metrics.Rewards()
	attrs := evt.Attributes
	switch evt.Type {
	case rewards.EventTypePoolDeposited:
		reg.ObserveDeposit(attrs["pool"], parseBig(attrs["amount"]))
	case rewards.EventTypePoolRetained:
		reg.ObserveRetained(attrs["pool"], parseBig(attrs["amount"]))
	case rewards.EventTypeClaimed:
		reg.ObserveClaim(attrs["pool"], parseBig(attrs["amount"]))
	case rewards.EventTypeEpochSettled:
		reg.ObserveSettlement(parseBig(attrs["withdrawn"]))
	case rewards.EventTypePendingForfeited:
		reg.ObserveForfeit(parseBig(attrs["amount"]))
	case rewards.EventTypeWeightAdded:
		reg.ObserveWeightChange("add")
	case rewards.EventTypeWeightRemoved:
		reg.ObserveWeightChange("remove")
	}
}

func parseBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}

func (n *Node) engine(tx *state.Tx) *rewards.Engine {
	eng := rewards.NewEngine()
	eng.SetState(tx)
	eng.SetEmitter(meteredEmitter{next: n.emitter})
	eng.SetNowFunc(n.nowFn)
	eng.SetPayoutVault(n.vault)
	eng.SetEpochGroup(n.groupID)
	eng.SetTreasury(rewards.NewStreamTreasury(tx, n.groupID))
	return eng
}

// Bootstrap creates the platform epoch group and applies genesis allocations
// on first boot. It is idempotent across restarts.
func (n *Node) Bootstrap() error {
	return n.mgr.Update(func(tx *state.Tx) error {
		eng := n.engine(tx)
		existing, ok, err := tx.RewardEpochGroupGet(n.groupID)
		if err != nil {
			return err
		}
		if ok && existing != nil {
			return nil
		}
		if _, err := eng.InitEpochGroup(n.groupID, n.duration, n.splits); err != nil {
			return err
		}
		for _, alloc := range n.genesis {
			addr, err := types.ParseAddress(alloc.Address)
			if err != nil {
				return err
			}
			balance, ok := new(big.Int).SetString(alloc.Balance, 10)
			if !ok || balance.Sign() < 0 {
				return rewards.ErrInvalidAmount
			}
			if err := tx.PutAccount(addr[:], &types.Account{Balance: balance}); err != nil {
				return err
			}
		}
		slog.Info("ledger bootstrapped", "group", n.groupID, "epochDuration", n.duration, "allocations", len(n.genesis))
		return nil
	})
}

// Deposit credits direct revenue to the pool, settling any elapsed epoch
// first.
func (n *Node) Deposit(from types.Address, poolID string, amount *big.Int) error {
	return n.mgr.Update(func(tx *state.Tx) error {
		return n.engine(tx).Deposit(from, poolID, amount)
	})
}

// Pending returns the participant's claimable value in the pool.
func (n *Node) Pending(poolID string, participant types.Address) (*big.Int, error) {
	var pending *big.Int
	err := n.mgr.View(func(tx *state.Tx) error {
		var err error
		pending, err = n.engine(tx).Pending(poolID, participant)
		return err
	})
	return pending, err
}

// PreviewPending projects the participant's pending value as if the available
// treasury balance settled right now, without mutating anything.
func (n *Node) PreviewPending(poolID string, participant types.Address) (*big.Int, error) {
	var pending *big.Int
	err := n.mgr.View(func(tx *state.Tx) error {
		var err error
		pending, err = n.engine(tx).PreviewPending(poolID, participant)
		return err
	})
	return pending, err
}

// Claim pays out the participant's pending value.
func (n *Node) Claim(poolID string, participant types.Address) (*big.Int, error) {
	var amount *big.Int
	err := n.mgr.Update(func(tx *state.Tx) error {
		var err error
		amount, err = n.engine(tx).Claim(poolID, participant)
		return err
	})
	return amount, err
}

// WeightChange applies one weight delta across the named pools atomically.
func (n *Node) WeightChange(participant types.Address, poolIDs []string, delta *big.Int, forfeit bool) error {
	return n.mgr.Update(func(tx *state.Tx) error {
		return n.engine(tx).WeightChange(participant, poolIDs, delta, forfeit)
	})
}

// FundTreasury registers a new release stream feeding the platform group.
func (n *Node) FundTreasury(from types.Address, amount *big.Int, durationSeconds int64) error {
	return n.mgr.Update(func(tx *state.Tx) error {
		return n.engine(tx).FundTreasury(from, amount, durationSeconds)
	})
}

// Settle folds the available treasury balance if an epoch elapsed. Exposed for
// operators; normal traffic settles lazily through the mutating entry points.
func (n *Node) Settle() (bool, error) {
	var ran bool
	err := n.mgr.Update(func(tx *state.Tx) error {
		var err error
		ran, err = n.engine(tx).Settle()
		return err
	})
	return ran, err
}

// Pool returns a copy of the stored pool.
func (n *Node) Pool(id string) (*rewards.Pool, error) {
	var pool *rewards.Pool
	err := n.mgr.View(func(tx *state.Tx) error {
		var err error
		pool, err = n.engine(tx).Pool(id)
		return err
	})
	return pool, err
}

// Share returns the participant's share record in the pool, when present.
func (n *Node) Share(poolID string, participant types.Address) (*rewards.Share, bool, error) {
	var (
		share *rewards.Share
		ok    bool
	)
	err := n.mgr.View(func(tx *state.Tx) error {
		var err error
		share, ok, err = n.engine(tx).Share(poolID, participant)
		return err
	})
	return share, ok, err
}

// Balance returns the settlement-ready balance of the address.
func (n *Node) Balance(addr types.Address) (*big.Int, error) {
	var balance *big.Int
	err := n.mgr.View(func(tx *state.Tx) error {
		var err error
		balance, err = n.engine(tx).BalanceOf(addr)
		return err
	})
	return balance, err
}

// Settlements returns up to limit recent settlement records, oldest first.
func (n *Node) Settlements(limit int) ([]*rewards.Settlement, error) {
	var settlements []*rewards.Settlement
	err := n.mgr.View(func(tx *state.Tx) error {
		var err error
		settlements, err = n.engine(tx).Settlements(limit)
		return err
	})
	return settlements, err
}

// EpochGroup returns the platform group's timing state.
func (n *Node) EpochGroup() (*rewards.EpochGroup, error) {
	var group *rewards.EpochGroup
	err := n.mgr.View(func(tx *state.Tx) error {
		var err error
		group, err = n.engine(tx).EpochGroup()
		return err
	})
	return group, err
}

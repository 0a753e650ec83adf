package rewards

import (
	"errors"
	"math/big"
	"testing"

	"patronledger/core/events"
	"patronledger/core/types"
)

type mockState struct {
	pools       map[string]*Pool
	shares      map[string]*Share
	groups      map[string]*EpochGroup
	treasuries  map[string]*Treasury
	settlements map[string][]*Settlement
	accounts    map[string]*types.Account
}

func newMockState() *mockState {
	return &mockState{
		pools:       make(map[string]*Pool),
		shares:      make(map[string]*Share),
		groups:      make(map[string]*EpochGroup),
		treasuries:  make(map[string]*Treasury),
		settlements: make(map[string][]*Settlement),
		accounts:    make(map[string]*types.Account),
	}
}

func shareMapKey(poolID string, participant [20]byte) string {
	return poolID + "/" + string(participant[:])
}

func (m *mockState) RewardPoolGet(id string) (*Pool, bool, error) {
	pool, ok := m.pools[id]
	if !ok {
		return nil, false, nil
	}
	return pool.Clone(), true, nil
}

func (m *mockState) RewardPoolPut(pool *Pool) error {
	m.pools[pool.ID] = pool.Clone()
	return nil
}

func (m *mockState) RewardShareGet(poolID string, participant [20]byte) (*Share, bool, error) {
	share, ok := m.shares[shareMapKey(poolID, participant)]
	if !ok {
		return nil, false, nil
	}
	return share.Clone(), true, nil
}

func (m *mockState) RewardSharePut(share *Share) error {
	m.shares[shareMapKey(share.PoolID, share.Participant)] = share.Clone()
	return nil
}

func (m *mockState) RewardShareDelete(poolID string, participant [20]byte) error {
	delete(m.shares, shareMapKey(poolID, participant))
	return nil
}

func (m *mockState) RewardEpochGroupGet(id string) (*EpochGroup, bool, error) {
	group, ok := m.groups[id]
	if !ok {
		return nil, false, nil
	}
	return group.Clone(), true, nil
}

func (m *mockState) RewardEpochGroupPut(group *EpochGroup) error {
	m.groups[group.ID] = group.Clone()
	return nil
}

func (m *mockState) RewardSettlementsGet(groupID string) ([]*Settlement, error) {
	history := m.settlements[groupID]
	out := make([]*Settlement, len(history))
	for i, settlement := range history {
		out[i] = settlement.Clone()
	}
	return out, nil
}

func (m *mockState) RewardSettlementsPut(groupID string, settlements []*Settlement) error {
	history := make([]*Settlement, len(settlements))
	for i, settlement := range settlements {
		history[i] = settlement.Clone()
	}
	m.settlements[groupID] = history
	return nil
}

func (m *mockState) RewardTreasuryGet(id string) (*Treasury, bool, error) {
	treasury, ok := m.treasuries[id]
	if !ok {
		return nil, false, nil
	}
	return treasury.Clone(), true, nil
}

func (m *mockState) RewardTreasuryPut(treasury *Treasury) error {
	m.treasuries[treasury.ID] = treasury.Clone()
	return nil
}

func (m *mockState) GetAccount(addr []byte) (*types.Account, error) {
	account, ok := m.accounts[string(addr)]
	if !ok {
		return nil, nil
	}
	return account.Clone(), nil
}

func (m *mockState) PutAccount(addr []byte, account *types.Account) error {
	m.accounts[string(addr)] = account.Clone()
	return nil
}

func (m *mockState) setBalance(addr [20]byte, balance int64) {
	m.accounts[string(addr[:])] = &types.Account{Balance: big.NewInt(balance)}
}

func (m *mockState) balance(addr [20]byte) *big.Int {
	account, ok := m.accounts[string(addr[:])]
	if !ok || account.Balance == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(account.Balance)
}

var (
	vaultAddr  = [20]byte{0xfe}
	funderAddr = [20]byte{0x01}
	aliceAddr  = [20]byte{0xaa}
	bobAddr    = [20]byte{0xbb}
)

const (
	holdersPool  = "platform/holders"
	creatorsPool = "platform/creators"
	groupID      = "platform"
	epochSeconds = 100
)

func newTestEngine(t *testing.T, state *mockState, now *int64) (*Engine, *events.Recorder) {
	t.Helper()
	recorder := &events.Recorder{}
	eng := NewEngine()
	eng.SetState(state)
	eng.SetEmitter(recorder)
	eng.SetNowFunc(func() int64 { return *now })
	eng.SetIDFunc(func() string { return "settlement-test" })
	eng.SetPayoutVault(vaultAddr)
	eng.SetEpochGroup(groupID)
	eng.SetTreasury(NewStreamTreasury(state, groupID))
	if _, err := eng.InitEpochGroup(groupID, epochSeconds, []Split{
		{PoolID: holdersPool, Bps: 7000},
		{PoolID: creatorsPool, Bps: 3000},
	}); err != nil {
		t.Fatalf("init epoch group: %v", err)
	}
	return eng, recorder
}

func eventTypes(recorder *events.Recorder) []string {
	out := make([]string, len(recorder.Events))
	for i, evt := range recorder.Events {
		out[i] = evt.EventType()
	}
	return out
}

func hasEvent(recorder *events.Recorder, eventType string) bool {
	for _, evt := range recorder.Events {
		if evt.EventType() == eventType {
			return true
		}
	}
	return false
}

func TestEngineDepositAndClaim(t *testing.T) {
	state := newMockState()
	now := int64(1000)
	eng, recorder := newTestEngine(t, state, &now)
	state.setBalance(funderAddr, 2_000_000)

	if err := eng.WeightChange(aliceAddr, []string{holdersPool}, big.NewInt(100), false); err != nil {
		t.Fatalf("weight change: %v", err)
	}
	if err := eng.Deposit(funderAddr, holdersPool, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := state.balance(vaultAddr); got.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("vault should hold the deposit, got %s", got)
	}

	pending, err := eng.Pending(holdersPool, aliceAddr)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("expected 1000000 pending, got %s", pending)
	}

	amount, err := eng.Claim(holdersPool, aliceAddr)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if amount.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("expected 1000000 claimed, got %s", amount)
	}
	if got := state.balance(aliceAddr); got.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("claim should land on the participant, got %s", got)
	}
	if got := state.balance(vaultAddr); got.Sign() != 0 {
		t.Fatalf("vault should be drained, got %s", got)
	}
	if !hasEvent(recorder, EventTypeClaimed) {
		t.Fatalf("expected a claim event, got %v", eventTypes(recorder))
	}

	// A second claim without a new deposit pays zero and moves nothing.
	amount, err = eng.Claim(holdersPool, aliceAddr)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if amount.Sign() != 0 {
		t.Fatalf("double claim must pay zero, got %s", amount)
	}
}

func TestEngineDepositWithoutWeightRetains(t *testing.T) {
	state := newMockState()
	now := int64(1000)
	eng, recorder := newTestEngine(t, state, &now)
	state.setBalance(funderAddr, 1_000_000)

	if err := eng.Deposit(funderAddr, "patron/carol", big.NewInt(400_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	pool, err := eng.Pool("patron/carol")
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if pool.Undistributed.Cmp(big.NewInt(400_000)) != 0 {
		t.Fatalf("expected retention, got %s", pool.Undistributed)
	}
	if !hasEvent(recorder, EventTypePoolRetained) {
		t.Fatalf("expected a retained event, got %v", eventTypes(recorder))
	}

	if err := eng.WeightChange(aliceAddr, []string{"patron/carol"}, big.NewInt(10), false); err != nil {
		t.Fatalf("weight change: %v", err)
	}
	if err := eng.Deposit(funderAddr, "patron/carol", big.NewInt(100_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	pending, err := eng.Pending("patron/carol", aliceAddr)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending.Cmp(big.NewInt(500_000)) != 0 {
		t.Fatalf("retained value should fold on the next accrual, got %s", pending)
	}
}

func TestEngineLazySettlement(t *testing.T) {
	state := newMockState()
	now := int64(1000)
	eng, recorder := newTestEngine(t, state, &now)
	state.setBalance(funderAddr, 1_000_000)

	if err := eng.WeightChange(aliceAddr, []string{holdersPool}, big.NewInt(100), false); err != nil {
		t.Fatalf("weight change: %v", err)
	}
	if err := eng.FundTreasury(funderAddr, big.NewInt(1_000_000), 0); err != nil {
		t.Fatalf("fund treasury: %v", err)
	}

	// Inside the epoch window nothing settles.
	settled, err := eng.Settle()
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if settled {
		t.Fatalf("settlement before the epoch boundary")
	}

	now += epochSeconds
	settled, err = eng.Settle()
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !settled {
		t.Fatalf("expected settlement at the epoch boundary")
	}
	if !hasEvent(recorder, EventTypeEpochSettled) {
		t.Fatalf("expected a settle event, got %v", eventTypes(recorder))
	}

	// 70% reaches the weighted holders pool; the weightless creators pool
	// retains its 30% undistributed.
	pending, err := eng.Pending(holdersPool, aliceAddr)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending.Cmp(big.NewInt(700_000)) != 0 {
		t.Fatalf("expected 700000 pending, got %s", pending)
	}
	creators, err := eng.Pool(creatorsPool)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if creators.Undistributed.Cmp(big.NewInt(300_000)) != 0 {
		t.Fatalf("expected 300000 retained, got %s", creators.Undistributed)
	}

	// A second settle inside the same window is a no-op: the boundary moved to
	// now and the treasury is drained.
	settled, err = eng.Settle()
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if settled {
		t.Fatalf("duplicate settlement inside one window")
	}

	group, err := eng.EpochGroup()
	if err != nil {
		t.Fatalf("epoch group: %v", err)
	}
	if group.EpochsSettled != 1 {
		t.Fatalf("expected one settled epoch, got %d", group.EpochsSettled)
	}
	if group.LastDistributionAt != now {
		t.Fatalf("distribution marker should jump to now, got %d", group.LastDistributionAt)
	}

	settlements, err := eng.Settlements(0)
	if err != nil {
		t.Fatalf("settlements: %v", err)
	}
	if len(settlements) != 1 {
		t.Fatalf("expected one settlement record, got %d", len(settlements))
	}
	record := settlements[0]
	if record.Withdrawn.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("expected withdrawn 1000000, got %s", record.Withdrawn)
	}
	if record.Retained.Sign() != 0 {
		t.Fatalf("full split table should retain nothing, got %s", record.Retained)
	}
	if len(record.Folds) != 2 {
		t.Fatalf("expected two folds, got %d", len(record.Folds))
	}
}

func TestEnginePreviewMatchesSettlement(t *testing.T) {
	state := newMockState()
	now := int64(1000)
	eng, _ := newTestEngine(t, state, &now)
	state.setBalance(funderAddr, 10_000_000)

	if err := eng.WeightChange(aliceAddr, []string{holdersPool}, big.NewInt(33), false); err != nil {
		t.Fatalf("weight change: %v", err)
	}
	if err := eng.WeightChange(bobAddr, []string{holdersPool}, big.NewInt(67), false); err != nil {
		t.Fatalf("weight change: %v", err)
	}
	// A stream releasing over 400 seconds is only partially available at the
	// first boundary; the preview must track the released fraction.
	if err := eng.FundTreasury(funderAddr, big.NewInt(9_999_937), 400); err != nil {
		t.Fatalf("fund treasury: %v", err)
	}

	now += epochSeconds
	previewA, err := eng.PreviewPending(holdersPool, aliceAddr)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	previewB, err := eng.PreviewPending(holdersPool, bobAddr)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}

	if settled, err := eng.Settle(); err != nil || !settled {
		t.Fatalf("settle: settled=%v err=%v", settled, err)
	}

	pendingA, err := eng.Pending(holdersPool, aliceAddr)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	pendingB, err := eng.Pending(holdersPool, bobAddr)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if previewA.Cmp(pendingA) != 0 {
		t.Fatalf("preview %s diverged from settlement %s", previewA, pendingA)
	}
	if previewB.Cmp(pendingB) != 0 {
		t.Fatalf("preview %s diverged from settlement %s", previewB, pendingB)
	}
}

func TestEngineWeightChangeMultiPool(t *testing.T) {
	state := newMockState()
	now := int64(1000)
	eng, _ := newTestEngine(t, state, &now)

	pools := []string{"content/a", "content/b", "content/c"}
	if err := eng.WeightChange(aliceAddr, pools, big.NewInt(50), false); err != nil {
		t.Fatalf("weight change: %v", err)
	}
	for _, poolID := range pools {
		share, ok, err := eng.Share(poolID, aliceAddr)
		if err != nil || !ok {
			t.Fatalf("share %s: ok=%v err=%v", poolID, ok, err)
		}
		if share.Weight.Cmp(big.NewInt(50)) != 0 {
			t.Fatalf("expected weight 50 in %s, got %s", poolID, share.Weight)
		}
	}

	// Removing more weight than held fails and is tagged as a partial
	// reconciliation so the enclosing transaction rolls everything back.
	err := eng.WeightChange(aliceAddr, pools, big.NewInt(-80), false)
	if !errors.Is(err, ErrPartialReconciliation) {
		t.Fatalf("expected ErrPartialReconciliation, got %v", err)
	}
	if !errors.Is(err, ErrInvalidWeight) {
		t.Fatalf("expected the cause to be ErrInvalidWeight, got %v", err)
	}

	// Removing from a pool with no share record reports a stale change.
	err = eng.WeightChange(bobAddr, []string{"content/a"}, big.NewInt(-10), false)
	if !errors.Is(err, ErrStaleWeightChange) {
		t.Fatalf("expected ErrStaleWeightChange, got %v", err)
	}

	// A full removal deletes the share records.
	if err := eng.WeightChange(aliceAddr, pools, big.NewInt(-50), false); err != nil {
		t.Fatalf("weight change: %v", err)
	}
	for _, poolID := range pools {
		if _, ok, err := eng.Share(poolID, aliceAddr); err != nil || ok {
			t.Fatalf("share %s should be deleted: ok=%v err=%v", poolID, ok, err)
		}
	}
}

func TestEngineWeightRemovalClaimsPending(t *testing.T) {
	state := newMockState()
	now := int64(1000)
	eng, _ := newTestEngine(t, state, &now)
	state.setBalance(funderAddr, 1_000_000)

	if err := eng.WeightChange(aliceAddr, []string{"content/a"}, big.NewInt(100), false); err != nil {
		t.Fatalf("weight change: %v", err)
	}
	if err := eng.Deposit(funderAddr, "content/a", big.NewInt(1_000_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := eng.WeightChange(aliceAddr, []string{"content/a"}, big.NewInt(-100), false); err != nil {
		t.Fatalf("weight change: %v", err)
	}
	if got := state.balance(aliceAddr); got.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("leaving should auto-claim pending, got %s", got)
	}
}

func TestEngineWeightRemovalForfeits(t *testing.T) {
	state := newMockState()
	now := int64(1000)
	eng, recorder := newTestEngine(t, state, &now)
	state.setBalance(funderAddr, 1_000_000)

	if err := eng.WeightChange(aliceAddr, []string{"content/a"}, big.NewInt(100), false); err != nil {
		t.Fatalf("weight change: %v", err)
	}
	if err := eng.WeightChange(bobAddr, []string{"content/a"}, big.NewInt(100), false); err != nil {
		t.Fatalf("weight change: %v", err)
	}
	if err := eng.Deposit(funderAddr, "content/a", big.NewInt(1_000_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := eng.WeightChange(bobAddr, []string{"content/a"}, big.NewInt(-100), true); err != nil {
		t.Fatalf("weight change: %v", err)
	}
	if got := state.balance(bobAddr); got.Sign() != 0 {
		t.Fatalf("forfeiting must not pay out, got %s", got)
	}
	if !hasEvent(recorder, EventTypePendingForfeited) {
		t.Fatalf("expected a forfeit event, got %v", eventTypes(recorder))
	}

	// Alice's half is untouched and the forfeited half stays in the pool's
	// unclaimed balance.
	pending, err := eng.Pending("content/a", aliceAddr)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending.Cmp(big.NewInt(500_000)) != 0 {
		t.Fatalf("expected 500000 pending for alice, got %s", pending)
	}
	pool, err := eng.Pool("content/a")
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if pool.Unclaimed().Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("forfeited value must stay unclaimed in the pool, got %s", pool.Unclaimed())
	}
}

func TestEngineMutationsSettleFirst(t *testing.T) {
	state := newMockState()
	now := int64(1000)
	eng, _ := newTestEngine(t, state, &now)
	state.setBalance(funderAddr, 2_000_000)

	if err := eng.WeightChange(aliceAddr, []string{holdersPool}, big.NewInt(100), false); err != nil {
		t.Fatalf("weight change: %v", err)
	}
	if err := eng.FundTreasury(funderAddr, big.NewInt(1_000_000), 0); err != nil {
		t.Fatalf("fund treasury: %v", err)
	}

	// Crossing the boundary, a plain deposit triggers the elapsed settlement
	// before the deposit itself is credited.
	now += epochSeconds
	if err := eng.Deposit(funderAddr, "content/x", big.NewInt(1)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	pending, err := eng.Pending(holdersPool, aliceAddr)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending.Cmp(big.NewInt(700_000)) != 0 {
		t.Fatalf("deposit should have settled the epoch lazily, got %s", pending)
	}
	group, err := eng.EpochGroup()
	if err != nil {
		t.Fatalf("epoch group: %v", err)
	}
	if group.EpochsSettled != 1 {
		t.Fatalf("expected one settled epoch, got %d", group.EpochsSettled)
	}
}

func TestEngineInsufficientFunds(t *testing.T) {
	state := newMockState()
	now := int64(1000)
	eng, _ := newTestEngine(t, state, &now)
	state.setBalance(funderAddr, 10)

	err := eng.Deposit(funderAddr, "content/a", big.NewInt(100))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	err = eng.FundTreasury(funderAddr, big.NewInt(100), 0)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestEngineValidation(t *testing.T) {
	state := newMockState()
	now := int64(1000)
	eng, _ := newTestEngine(t, state, &now)

	if err := eng.Deposit(funderAddr, "content/a", big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := eng.WeightChange(aliceAddr, []string{"content/a"}, big.NewInt(0), false); !errors.Is(err, ErrInvalidWeight) {
		t.Fatalf("expected ErrInvalidWeight, got %v", err)
	}
	if err := eng.WeightChange(aliceAddr, nil, big.NewInt(1), false); !errors.Is(err, ErrInvalidPoolID) {
		t.Fatalf("expected ErrInvalidPoolID, got %v", err)
	}
	if _, err := eng.Claim("missing", aliceAddr); !errors.Is(err, ErrPoolNotFound) {
		t.Fatalf("expected ErrPoolNotFound, got %v", err)
	}

	bare := NewEngine()
	if _, err := bare.Pending("content/a", aliceAddr); !errors.Is(err, ErrNilState) {
		t.Fatalf("expected ErrNilState, got %v", err)
	}
}

func TestEngineSettlementHistoryPrunes(t *testing.T) {
	state := newMockState()
	now := int64(1000)
	eng, _ := newTestEngine(t, state, &now)
	state.setBalance(funderAddr, 1_000_000_000)

	if err := eng.WeightChange(aliceAddr, []string{holdersPool}, big.NewInt(1), false); err != nil {
		t.Fatalf("weight change: %v", err)
	}
	for i := 0; i < settlementHistoryLimit+5; i++ {
		if err := eng.FundTreasury(funderAddr, big.NewInt(1000), 0); err != nil {
			t.Fatalf("fund treasury: %v", err)
		}
		now += epochSeconds
		if settled, err := eng.Settle(); err != nil || !settled {
			t.Fatalf("settle %d: settled=%v err=%v", i, settled, err)
		}
	}

	settlements, err := eng.Settlements(0)
	if err != nil {
		t.Fatalf("settlements: %v", err)
	}
	if len(settlements) != settlementHistoryLimit {
		t.Fatalf("expected history capped at %d, got %d", settlementHistoryLimit, len(settlements))
	}
	limited, err := eng.Settlements(5)
	if err != nil {
		t.Fatalf("settlements: %v", err)
	}
	if len(limited) != 5 {
		t.Fatalf("expected 5 records, got %d", len(limited))
	}
	last := settlements[len(settlements)-1]
	if limited[len(limited)-1].Epoch != last.Epoch {
		t.Fatalf("limit should keep the most recent records")
	}
}

package core

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"patronledger/config"
	"patronledger/core/events"
	"patronledger/core/types"
	"patronledger/native/rewards"
	"patronledger/state"
	"patronledger/storage"
)

const (
	funderHex = "0x00000000000000000000000000000000000000aa"
	aliceHex  = "0x00000000000000000000000000000000000000ab"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Epoch.DurationSeconds = 100
	cfg.Genesis = []config.Allocation{
		{Address: funderHex, Balance: "10000000"},
	}
	return cfg
}

func newTestNode(t *testing.T, db storage.Database, now *int64) *Node {
	t.Helper()
	node := NewNode(state.NewManager(db), testConfig())
	node.SetNowFunc(func() int64 { return *now })
	require.NoError(t, node.Bootstrap())
	return node
}

func mustAddr(t *testing.T, s string) types.Address {
	t.Helper()
	addr, err := types.ParseAddress(s)
	require.NoError(t, err)
	return addr
}

func TestNodeBootstrapIdempotent(t *testing.T) {
	db := storage.NewMemDB()
	now := int64(1000)
	node := newTestNode(t, db, &now)

	funder := mustAddr(t, funderHex)
	balance, err := node.Balance(funder)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(10_000_000), balance)

	// Spend some, then bootstrap again: genesis must not re-apply.
	require.NoError(t, node.Deposit(funder, "content/a", big.NewInt(1_000_000)))
	require.NoError(t, node.Bootstrap())
	balance, err = node.Balance(funder)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(9_000_000), balance)
}

func TestNodeEndToEndFlow(t *testing.T) {
	db := storage.NewMemDB()
	now := int64(1000)
	node := newTestNode(t, db, &now)
	recorder := &events.Recorder{}
	node.SetEmitter(recorder)

	funder := mustAddr(t, funderHex)
	alice := mustAddr(t, aliceHex)

	require.NoError(t, node.WeightChange(alice, []string{"platform/holders"}, big.NewInt(100), false))
	require.NoError(t, node.FundTreasury(funder, big.NewInt(1_000_000), 0))

	now += 100
	settled, err := node.Settle()
	require.NoError(t, err)
	require.True(t, settled)

	pending, err := node.Pending("platform/holders", alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(700_000), pending)

	claimed, err := node.Claim("platform/holders", alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(700_000), claimed)

	balance, err := node.Balance(alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(700_000), balance)

	settlements, err := node.Settlements(0)
	require.NoError(t, err)
	require.Len(t, settlements, 1)
	require.Equal(t, big.NewInt(1_000_000), settlements[0].Withdrawn)
	require.NotEmpty(t, recorder.Events)
}

func TestNodeWeightChangeIsAtomic(t *testing.T) {
	db := storage.NewMemDB()
	now := int64(1000)
	node := newTestNode(t, db, &now)

	alice := mustAddr(t, aliceHex)
	require.NoError(t, node.WeightChange(alice, []string{"content/a"}, big.NewInt(50), false))

	// The second pool has no share for alice, so the whole removal must fail
	// and leave the first pool untouched.
	err := node.WeightChange(alice, []string{"content/a", "content/b"}, big.NewInt(-50), false)
	require.ErrorIs(t, err, rewards.ErrPartialReconciliation)
	require.ErrorIs(t, err, rewards.ErrStaleWeightChange)

	share, ok, err := node.Share("content/a", alice)
	require.NoError(t, err)
	require.True(t, ok, "failed reconciliation must not commit sibling removals")
	require.Equal(t, big.NewInt(50), share.Weight)

	pool, err := node.Pool("content/a")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(50), pool.TotalWeight)
}

func TestNodeStateSurvivesReopen(t *testing.T) {
	db := storage.NewMemDB()
	now := int64(1000)
	node := newTestNode(t, db, &now)

	funder := mustAddr(t, funderHex)
	alice := mustAddr(t, aliceHex)
	require.NoError(t, node.WeightChange(alice, []string{"content/a"}, big.NewInt(100), false))
	require.NoError(t, node.Deposit(funder, "content/a", big.NewInt(500_000)))

	// A new node over the same database picks up where the old one stopped.
	reopened := newTestNode(t, db, &now)
	pending, err := reopened.Pending("content/a", alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(500_000), pending)

	group, err := reopened.EpochGroup()
	require.NoError(t, err)
	require.Equal(t, "platform", group.ID)
}

func TestNodePreviewDoesNotMutate(t *testing.T) {
	db := storage.NewMemDB()
	now := int64(1000)
	node := newTestNode(t, db, &now)

	funder := mustAddr(t, funderHex)
	alice := mustAddr(t, aliceHex)
	require.NoError(t, node.WeightChange(alice, []string{"platform/holders"}, big.NewInt(10), false))
	require.NoError(t, node.FundTreasury(funder, big.NewInt(1_000_000), 0))

	now += 100
	preview, err := node.PreviewPending("platform/holders", alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(700_000), preview)

	// The preview changed nothing: the epoch is still unsettled.
	group, err := node.EpochGroup()
	require.NoError(t, err)
	require.Equal(t, uint64(0), group.EpochsSettled)
	pending, err := node.Pending("platform/holders", alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(0), pending)

	settled, err := node.Settle()
	require.NoError(t, err)
	require.True(t, settled)
	pending, err = node.Pending("platform/holders", alice)
	require.NoError(t, err)
	require.Equal(t, preview, pending)
}

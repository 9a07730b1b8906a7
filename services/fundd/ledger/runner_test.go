package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"fundchain/core/events"
	"fundchain/core/state"
	"fundchain/native/bank"
	nativecommon "fundchain/native/common"
	"fundchain/native/fund"
	"fundchain/storage"
)

var (
	owner     = common.HexToAddress("0x01")
	shareMint = common.HexToAddress("0x10")
	tokenA    = common.HexToAddress("0xa1")
	tokenB    = common.HexToAddress("0xb2")
)

const thousand = 1_000 * 1_000_000_000

func newTestRunner(t *testing.T, policy Policy, sink events.Emitter) *Runner {
	t.Helper()
	now := time.Unix(1_700_006_400, 0)
	r, err := New(state.NewManager(storage.NewMemDB()), Collaborators{}, policy,
		WithSink(sink),
		WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return r
}

func seed(t *testing.T, r *Runner) common.Address {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, r.Execute(ctx, Command{Name: "credit"}, func(tx *Tx) error {
		return tx.Bank.Mint(tokenA, owner, thousand)
	}))
	var addr common.Address
	require.NoError(t, r.Execute(ctx, Command{Name: "init_fund", Caller: owner}, func(tx *Tx) error {
		f, err := tx.Engine.InitFund(owner, fund.InitParams{ShareMint: shareMint, AuctionLength: 3600})
		if err != nil {
			return err
		}
		addr = f.Address
		return tx.RegisterFund(f.Address)
	}))
	require.NoError(t, r.Execute(ctx, Command{Name: "add_to_basket", Caller: owner, Fund: addr}, func(tx *Tx) error {
		_, err := tx.Engine.AddToBasket(owner, addr, []fund.TokenAmount{{Token: tokenA, Amount: thousand}}, thousand)
		return err
	}))
	return addr
}

func TestExecuteCommitsAndFlushesEvents(t *testing.T) {
	sink := &events.Buffer{}
	r := newTestRunner(t, Policy{}, sink)
	addr := seed(t, r)

	require.Equal(t, fund.DeriveFundAddress(shareMint), addr)
	funds, err := r.Funds()
	require.NoError(t, err)
	require.Equal(t, []common.Address{addr}, funds)

	require.NoError(t, r.View(context.Background(), func(eng *fund.Engine, ledger *bank.Ledger) error {
		bal, err := ledger.Balance(tokenA, addr)
		require.NoError(t, err)
		require.Equal(t, uint64(thousand), bal)
		supply, err := ledger.TotalSupply(shareMint)
		require.NoError(t, err)
		require.Equal(t, uint64(thousand), supply)
		return nil
	}))

	var types []string
	for _, evt := range sink.Events() {
		types = append(types, evt.EventType())
	}
	require.Contains(t, types, fund.EventTypeFundInitialized)
	require.Contains(t, types, fund.EventTypeBasketAdded)
}

func TestFailedCommandLeavesStateUntouched(t *testing.T) {
	sink := &events.Buffer{}
	r := newTestRunner(t, Policy{}, sink)
	addr := seed(t, r)
	before := len(sink.Events())

	boom := errors.New("boom")
	err := r.Execute(context.Background(), Command{Name: "poke", Fund: addr}, func(tx *Tx) error {
		if err := tx.Bank.Mint(tokenB, owner, 5); err != nil {
			return err
		}
		if _, err := tx.Engine.Poke(addr); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Len(t, sink.Events(), before)

	err = r.View(context.Background(), func(eng *fund.Engine, ledger *bank.Ledger) error {
		bal, err := ledger.Balance(tokenB, owner)
		require.NoError(t, err)
		require.Zero(t, bal)
		basket, err := eng.Basket(addr)
		require.NoError(t, err)
		require.Equal(t, uint64(thousand), basket.AmountOrZero(tokenA))
		return nil
	})
	require.NoError(t, err)
}

func TestEngineErrorsAreClassified(t *testing.T) {
	r := newTestRunner(t, Policy{}, nil)
	addr := seed(t, r)

	stranger := common.HexToAddress("0x66")
	err := r.Execute(context.Background(), Command{Name: "kill_fund", Caller: stranger, Fund: addr}, func(tx *Tx) error {
		_, err := tx.Engine.KillFund(stranger, addr)
		return err
	})
	require.Error(t, err)
	require.Equal(t, "authorization", KindLabel(err))
}

func TestQuotaLimitsCallerRequests(t *testing.T) {
	r := newTestRunner(t, Policy{Quota: nativecommon.Quota{MaxRequestsPerEpoch: 2, MaxVolumePerEpoch: 10, EpochSeconds: 3600}}, nil)
	ctx := context.Background()
	noop := func(*Tx) error { return nil }
	caller := common.HexToAddress("0x77")

	require.NoError(t, r.Execute(ctx, Command{Name: "bid", Caller: caller, Volume: 6}, noop))
	err := r.Execute(ctx, Command{Name: "bid", Caller: caller, Volume: 6}, noop)
	require.ErrorIs(t, err, nativecommon.ErrQuotaVolumeExceeded)
	require.Equal(t, "quota", KindLabel(err))

	require.NoError(t, r.Execute(ctx, Command{Name: "bid", Caller: caller, Volume: 4}, noop))
	err = r.Execute(ctx, Command{Name: "bid", Caller: caller}, noop)
	require.ErrorIs(t, err, nativecommon.ErrQuotaRequestsExceeded)

	require.NoError(t, r.Execute(ctx, Command{Name: "mint", Caller: caller}, noop), "quotas are per command")
	require.NoError(t, r.Execute(ctx, Command{Name: "bid"}, noop), "system commands are not charged")
}

func TestPausedModuleRejectsCommands(t *testing.T) {
	pauses := nativecommon.NewPauseSet()
	r, err := New(state.NewManager(storage.NewMemDB()), Collaborators{Pauses: pauses}, Policy{})
	require.NoError(t, err)
	addr := seed(t, r)

	pauses.Set(fund.ModuleName, true)
	err = r.Execute(context.Background(), Command{Name: "poke", Fund: addr}, func(tx *Tx) error {
		_, err := tx.Engine.Poke(addr)
		return err
	})
	require.ErrorIs(t, err, fund.ErrModulePaused)
}

func TestExecuteHonoursCanceledContext(t *testing.T) {
	r := newTestRunner(t, Policy{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := r.Execute(ctx, Command{Name: "poke"}, func(*Tx) error { called = true; return nil })
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}

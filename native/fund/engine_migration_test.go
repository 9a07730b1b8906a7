package fund

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func startMigration(t *testing.T, env *testEnv) {
	t.Helper()
	if _, err := env.engine.StartMigration(ownerAddr, env.fund); err != nil {
		t.Fatalf("start migration: %v", err)
	}
}

func TestMigrationMovesBasketToSuccessor(t *testing.T) {
	env := newTestEnv(t)
	env.seedFund(nil, nil)
	env.credit(tokenB, ownerAddr, 500*wholeUnit)
	if _, err := env.engine.AddToBasket(ownerAddr, env.fund, []TokenAmount{{Token: tokenB, Amount: 500 * wholeUnit}}, 0); err != nil {
		t.Fatalf("add TokenB: %v", err)
	}
	startMigration(t, env)

	want := DeriveSuccessorAddress(env.fund)
	if _, err := env.engine.MigrateTokens(strangerAdr, env.fund, want, []common.Address{tokenA}); !errors.Is(err, ErrInvalidSuccessor) {
		t.Fatalf("migration without successor must fail, got %v", err)
	}
	if _, err := env.engine.InitSuccessor(strangerAdr, env.fund, InitParams{AuctionLength: 3600}); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("only the owner may create the successor, got %v", err)
	}
	successor, err := env.engine.InitSuccessor(ownerAddr, env.fund, InitParams{AuctionLength: 3600, Mandate: "v2"})
	if err != nil {
		t.Fatalf("init successor: %v", err)
	}
	if successor.Address != want || successor.ShareMint != shareMint || successor.Status != StatusReceiving {
		t.Fatalf("unexpected successor %+v", successor)
	}
	if _, err := env.engine.InitSuccessor(ownerAddr, env.fund, InitParams{AuctionLength: 3600}); !errors.Is(err, ErrFundExists) {
		t.Fatalf("second successor must fail, got %v", err)
	}
	if _, err := env.engine.BurnShares(ownerAddr, successor.Address, wholeUnit, nil); !errors.Is(err, ErrInvalidFundStatus) {
		t.Fatalf("receiving successor must not redeem, got %v", err)
	}

	basket, err := env.engine.MigrateTokens(strangerAdr, env.fund, successor.Address, []common.Address{tokenA})
	if err != nil {
		t.Fatalf("migrate TokenA: %v", err)
	}
	if got := basket.AmountOrZero(tokenA); got != thousandRaw {
		t.Fatalf("successor TokenA = %d", got)
	}
	if got := env.balance(tokenA, successor.Address); got != thousandRaw {
		t.Fatalf("successor TokenA balance = %d", got)
	}
	if got := env.balance(tokenA, env.fund); got != 0 {
		t.Fatalf("old fund kept %d TokenA", got)
	}
	if f, _ := env.engine.Fund(successor.Address); f.Status != StatusReceiving {
		t.Fatalf("successor must keep receiving until the old basket is empty, got %s", f.Status)
	}
	if _, err := env.engine.MigrateTokens(strangerAdr, env.fund, successor.Address, []common.Address{tokenA}); !errors.Is(err, ErrTokenMintNotInBasket) {
		t.Fatalf("token already moved must fail, got %v", err)
	}

	if _, err := env.engine.MigrateTokens(strangerAdr, env.fund, successor.Address, []common.Address{tokenB}); err != nil {
		t.Fatalf("migrate TokenB: %v", err)
	}
	f, err := env.engine.Fund(successor.Address)
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if f.Status != StatusInitialized {
		t.Fatalf("expected successor initialized, got %s", f.Status)
	}
	if !containsType(env.eventTypes(), EventTypeTokensMigrated) {
		t.Fatalf("expected migration event, got %v", env.eventTypes())
	}

	// Holders of the shared share mint redeem against the successor.
	if _, err := env.engine.BurnShares(ownerAddr, successor.Address, 100*wholeUnit, nil); err != nil {
		t.Fatalf("redeem at successor: %v", err)
	}
	pending, err := env.engine.PendingBasket(successor.Address, ownerAddr)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if got := pending.Pending(tokenA).ForRedeeming; got != 100*wholeUnit {
		t.Fatalf("expected 100 TokenA redeemable, got %d", got)
	}
	if got := pending.Pending(tokenB).ForRedeeming; got != 50*wholeUnit {
		t.Fatalf("expected 50 TokenB redeemable, got %d", got)
	}
}

func TestSuccessorInheritsPendingFees(t *testing.T) {
	env := newTestEnv(t)
	env.engine.SetFeeSchedule(staticFees{details: FeeDetails{
		Recipient:   daoAddr,
		Numerator:   uint256.NewInt(2e17),
		Denominator: uint256.NewInt(ScaledOne),
		Floor:       new(uint256.Int),
	}})
	env.seedFund(uint256.NewInt(2e16), nil)
	env.advance(30 * Day)
	startMigration(t, env)

	old, err := env.engine.Fund(env.fund)
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	dao := new(uint256.Int).Set(old.DAOPendingFeeShares)
	recipients := new(uint256.Int).Set(old.RecipientsPendingFeeShares)
	if dao.IsZero() {
		t.Fatalf("expected fees accrued before migration")
	}

	successor, err := env.engine.InitSuccessor(ownerAddr, env.fund, InitParams{AuctionLength: 3600})
	if err != nil {
		t.Fatalf("init successor: %v", err)
	}
	if !successor.DAOPendingFeeShares.Eq(dao) || !successor.RecipientsPendingFeeShares.Eq(recipients) {
		t.Fatalf("successor must inherit pending fees")
	}
	if successor.LastPoke != old.LastPoke {
		t.Fatalf("successor accrual must resume at %d, got %d", old.LastPoke, successor.LastPoke)
	}
	after, _ := env.engine.Fund(env.fund)
	if !after.DAOPendingFeeShares.IsZero() || !after.RecipientsPendingFeeShares.IsZero() || after.Successor != successor.Address {
		t.Fatalf("predecessor must hand over its fees, got %+v", after)
	}
	if _, err := env.engine.InitSuccessor(ownerAddr, env.fund, InitParams{ShareMint: tokenC, AuctionLength: 3600}); !errors.Is(err, ErrFundExists) {
		t.Fatalf("expected existing successor error, got %v", err)
	}
}

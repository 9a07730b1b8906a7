package fund

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func startHalvingRebalance(t *testing.T, env *testEnv, window uint64) *Rebalance {
	t.Helper()
	env.grant(managerAddr, RoleRebalanceManager|RoleAuctionLauncher)
	r, err := env.engine.StartRebalance(managerAddr, env.fund, StartParams{
		LauncherWindow: window,
		TTL:            3600,
		Pairs:          []RebalancePair{sellAForB(halvingPrices())},
		Seal:           true,
	})
	if err != nil {
		t.Fatalf("start rebalance: %v", err)
	}
	return r
}

func TestAuctionBidSettlesAtDecayedPrice(t *testing.T) {
	env := newTestEnv(t)
	env.seedFund(nil, nil)
	r := startHalvingRebalance(t, env, 600)
	if r.Nonce != 1 || !r.Sealed {
		t.Fatalf("expected sealed nonce 1, got nonce=%d sealed=%v", r.Nonce, r.Sealed)
	}

	auction, err := env.engine.OpenAuction(managerAddr, env.fund, Pair{Sell: tokenA, Buy: tokenB}, nil)
	if err != nil {
		t.Fatalf("open auction: %v", err)
	}
	if auction.ID != 1 || auction.End != auction.Start+3600 {
		t.Fatalf("unexpected auction window: %+v", auction)
	}

	env.credit(tokenB, bidderAddr, thousandRaw)
	env.advance(1800)
	quote, err := env.engine.Bid(bidderAddr, env.fund, auction.ID, 100*wholeUnit, 200*wholeUnit)
	if err != nil {
		t.Fatalf("bid: %v", err)
	}
	// 100 * 2 * e^(-ln2/2) = 100 * sqrt(2)
	if quote.BuyAmount < 141_421_356_000 || quote.BuyAmount > 141_421_357_000 {
		t.Fatalf("unexpected required buy amount %d", quote.BuyAmount)
	}

	basket := env.basket()
	if got := basket.AmountOrZero(tokenA); got != 900*wholeUnit {
		t.Fatalf("expected 900 TokenA in basket, got %d", got)
	}
	if got := basket.AmountOrZero(tokenB); got != quote.BuyAmount {
		t.Fatalf("expected %d TokenB in basket, got %d", quote.BuyAmount, got)
	}
	if got := env.balance(tokenA, bidderAddr); got != 100*wholeUnit {
		t.Fatalf("bidder TokenA = %d", got)
	}
	if got := env.balance(tokenB, bidderAddr); got != thousandRaw-quote.BuyAmount {
		t.Fatalf("bidder TokenB = %d", got)
	}
	if got := env.balance(tokenB, env.fund); got != quote.BuyAmount {
		t.Fatalf("fund TokenB = %d", got)
	}
	if !containsType(env.eventTypes(), EventTypeAuctionBid) {
		t.Fatalf("expected bid event, got %v", env.eventTypes())
	}
}

func TestBidSlippageBoundary(t *testing.T) {
	env := newTestEnv(t)
	env.seedFund(nil, nil)
	startHalvingRebalance(t, env, 600)
	auction, err := env.engine.OpenAuction(managerAddr, env.fund, Pair{Sell: tokenA, Buy: tokenB}, nil)
	if err != nil {
		t.Fatalf("open auction: %v", err)
	}
	env.credit(tokenB, bidderAddr, thousandRaw)

	// At the opening instant the price is exactly the start price.
	_, err = env.engine.Bid(bidderAddr, env.fund, auction.ID, 10*wholeUnit, 20*wholeUnit-1)
	if !errors.Is(err, ErrSlippageExceeded) {
		t.Fatalf("expected slippage error, got %v", err)
	}
	quote, err := env.engine.Bid(bidderAddr, env.fund, auction.ID, 10*wholeUnit, 20*wholeUnit)
	if err != nil {
		t.Fatalf("bid at exact max: %v", err)
	}
	if quote.BuyAmount != 20*wholeUnit {
		t.Fatalf("expected 20 TokenB, got %d", quote.BuyAmount)
	}
}

func TestBidAfterEndRejected(t *testing.T) {
	env := newTestEnv(t)
	env.seedFund(nil, nil)
	startHalvingRebalance(t, env, 600)
	auction, err := env.engine.OpenAuction(managerAddr, env.fund, Pair{Sell: tokenA, Buy: tokenB}, nil)
	if err != nil {
		t.Fatalf("open auction: %v", err)
	}
	env.credit(tokenB, bidderAddr, thousandRaw)
	env.advance(3600)
	price, status, err := env.engine.AuctionPrice(env.fund, auction.ID)
	if err != nil {
		t.Fatalf("auction price: %v", err)
	}
	if status != AuctionClosed || !price.Eq(d18(1)) {
		t.Fatalf("expected closed at end price, got %s %s", status, price)
	}
	if _, err := env.engine.Bid(bidderAddr, env.fund, auction.ID, wholeUnit, 10*wholeUnit); !errors.Is(err, ErrAuctionNotOngoing) {
		t.Fatalf("expected auction not ongoing, got %v", err)
	}
}

func TestAuctionCollisionAndReopen(t *testing.T) {
	env := newTestEnv(t)
	env.seedFund(nil, nil)
	startHalvingRebalance(t, env, 600)
	pair := Pair{Sell: tokenA, Buy: tokenB}
	first, err := env.engine.OpenAuction(managerAddr, env.fund, pair, nil)
	if err != nil {
		t.Fatalf("open auction: %v", err)
	}
	if _, err := env.engine.OpenAuction(managerAddr, env.fund, pair, nil); !errors.Is(err, ErrAuctionCollision) {
		t.Fatalf("expected collision, got %v", err)
	}

	env.advance(10)
	closed, err := env.engine.CloseAuction(managerAddr, env.fund, first.ID)
	if err != nil {
		t.Fatalf("close auction: %v", err)
	}
	if closed.End != uint64(env.now) || closed.Status(uint64(env.now)) != AuctionClosed {
		t.Fatalf("expected auction closed at %d, got end %d", env.now, closed.End)
	}
	if _, err := env.engine.OpenAuction(managerAddr, env.fund, pair, nil); !errors.Is(err, ErrAuctionCollision) {
		t.Fatalf("expected collision at the closing instant, got %v", err)
	}
	env.advance(1)
	second, err := env.engine.OpenAuction(managerAddr, env.fund, pair, nil)
	if err != nil {
		t.Fatalf("reopen auction: %v", err)
	}
	if second.ID != first.ID+1 {
		t.Fatalf("expected monotonic auction id, got %d after %d", second.ID, first.ID)
	}
}

func TestPermissionlessOpenWaitsForLauncherWindow(t *testing.T) {
	env := newTestEnv(t)
	env.seedFund(nil, nil)
	startHalvingRebalance(t, env, 600)
	pair := Pair{Sell: tokenA, Buy: tokenB}

	if _, err := env.engine.OpenAuctionPermissionless(strangerAdr, env.fund, pair); !errors.Is(err, ErrAuctionCannotBeOpenedPermissionless) {
		t.Fatalf("expected restricted window error, got %v", err)
	}
	if _, err := env.engine.OpenAuction(strangerAdr, env.fund, pair, nil); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected role error, got %v", err)
	}
	env.advance(600)
	auction, err := env.engine.OpenAuctionPermissionless(strangerAdr, env.fund, pair)
	if err != nil {
		t.Fatalf("permissionless open: %v", err)
	}
	if !auction.Prices.Start.Eq(d18(2)) {
		t.Fatalf("permissionless open must keep declared prices")
	}
	env.advance(3600 + 1)
	if _, err := env.engine.OpenAuctionPermissionless(strangerAdr, env.fund, pair); !errors.Is(err, ErrAuctionTimeout) {
		t.Fatalf("expected timeout after ttl, got %v", err)
	}
}

func TestLauncherTighteningBounds(t *testing.T) {
	env := newTestEnv(t)
	env.seedFund(nil, nil)
	startHalvingRebalance(t, env, 600)
	pair := Pair{Sell: tokenA, Buy: tokenB}

	tooLow := &OpenParams{Prices: PriceRange{Start: d18(1), End: d18(1)}}
	if _, err := env.engine.OpenAuction(managerAddr, env.fund, pair, tooLow); !errors.Is(err, ErrInvalidPrices) {
		t.Fatalf("expected invalid prices, got %v", err)
	}
	outside := &OpenParams{BuySpot: d18(2)}
	if _, err := env.engine.OpenAuction(managerAddr, env.fund, pair, outside); !errors.Is(err, ErrInvalidBuyLimit) {
		t.Fatalf("expected invalid buy limit, got %v", err)
	}
	narrowed := &OpenParams{Prices: PriceRange{Start: d18(3), End: new(uint256.Int).Add(d18(1), uint256.NewInt(5e17))}}
	auction, err := env.engine.OpenAuction(managerAddr, env.fund, pair, narrowed)
	if err != nil {
		t.Fatalf("open with narrowed prices: %v", err)
	}
	if !auction.Prices.Start.Eq(d18(3)) {
		t.Fatalf("expected launcher start price, got %s", auction.Prices.Start)
	}
	r, err := env.engine.Rebalance(env.fund)
	if err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	detail := r.Pairs[r.Find(pair)]
	if !detail.BuyLimit.Low.Eq(d18(1)) || !detail.SellLimit.High.IsZero() {
		t.Fatalf("expected limits tightened to the opened spots: %+v", detail)
	}
}

func TestDeferredPricesUseOracle(t *testing.T) {
	env := newTestEnv(t)
	env.seedFund(nil, nil)
	env.grant(managerAddr, RoleRebalanceManager|RoleAuctionLauncher)
	if _, err := env.engine.StartRebalance(managerAddr, env.fund, StartParams{
		LauncherWindow: 0,
		TTL:            3600,
		Pairs:          []RebalancePair{sellAForB(PriceRange{})},
		Seal:           true,
	}); err != nil {
		t.Fatalf("start rebalance: %v", err)
	}
	pair := Pair{Sell: tokenA, Buy: tokenB}

	if _, err := env.engine.OpenAuction(managerAddr, env.fund, pair, nil); !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("expected price unavailable without oracle, got %v", err)
	}
	if _, err := env.engine.OpenAuctionPermissionless(strangerAdr, env.fund, pair); !errors.Is(err, ErrAuctionCannotBeOpenedPermissionless) {
		t.Fatalf("deferred prices must block permissionless open, got %v", err)
	}

	oracle := &staticOracle{quote: PriceQuote{Price: d18(2), Timestamp: uint64(env.now) - 301}}
	env.engine.SetPriceOracle(oracle)
	if _, err := env.engine.OpenAuction(managerAddr, env.fund, pair, nil); !errors.Is(err, ErrStalePrice) {
		t.Fatalf("expected stale price, got %v", err)
	}
	oracle.quote.Timestamp = uint64(env.now)
	auction, err := env.engine.OpenAuction(managerAddr, env.fund, pair, nil)
	if err != nil {
		t.Fatalf("open with oracle: %v", err)
	}
	wantStart := new(uint256.Int).Mul(uint256.NewInt(21), uint256.NewInt(1e17))
	wantEnd := new(uint256.Int).Mul(uint256.NewInt(19), uint256.NewInt(1e17))
	if !auction.Prices.Start.Eq(wantStart) || !auction.Prices.End.Eq(wantEnd) {
		t.Fatalf("unexpected oracle band %s..%s", auction.Prices.Start, auction.Prices.End)
	}
}

func TestStartRebalanceRequiresManager(t *testing.T) {
	env := newTestEnv(t)
	env.seedFund(nil, nil)
	_, err := env.engine.StartRebalance(strangerAdr, env.fund, StartParams{TTL: 10, Seal: true})
	if !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected invalid role, got %v", err)
	}
	if KindOf(err) != KindAuthorization || CodeOf(err) != "invalid_role" {
		t.Fatalf("unexpected classification %s/%s", KindOf(err), CodeOf(err))
	}
}

func TestRebalanceDraftAndNonce(t *testing.T) {
	env := newTestEnv(t)
	env.seedFund(nil, nil)
	env.grant(managerAddr, RoleRebalanceManager)
	r, err := env.engine.StartRebalance(managerAddr, env.fund, StartParams{
		TTL:   100,
		Pairs: []RebalancePair{sellAForB(halvingPrices())},
	})
	if err != nil {
		t.Fatalf("start draft: %v", err)
	}
	if r.Nonce != 0 || r.Sealed {
		t.Fatalf("draft must not advance the nonce")
	}
	more := sellAForB(halvingPrices())
	more.Sell, more.Buy = tokenB, tokenC
	r, err = env.engine.AddRebalanceDetails(managerAddr, env.fund, []RebalancePair{more}, true)
	if err != nil {
		t.Fatalf("add details: %v", err)
	}
	if r.Nonce != 1 || len(r.IncludedPairs()) != 2 {
		t.Fatalf("expected sealed nonce 1 with two pairs, got nonce=%d pairs=%d", r.Nonce, len(r.IncludedPairs()))
	}
	if _, err := env.engine.AddRebalanceDetails(managerAddr, env.fund, nil, false); !errors.Is(err, ErrRebalanceNotOpenForDetailUpdates) {
		t.Fatalf("sealed epoch must reject details, got %v", err)
	}
	r, err = env.engine.StartRebalance(managerAddr, env.fund, StartParams{TTL: 100, Seal: true})
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if r.Nonce != 2 || len(r.IncludedPairs()) != 0 {
		t.Fatalf("restart must clear pairs and advance nonce, got nonce=%d pairs=%d", r.Nonce, len(r.IncludedPairs()))
	}
}

func TestSupersededAuctionRejectsBids(t *testing.T) {
	env := newTestEnv(t)
	env.seedFund(nil, nil)
	startHalvingRebalance(t, env, 0)
	auction, err := env.engine.OpenAuction(managerAddr, env.fund, Pair{Sell: tokenA, Buy: tokenB}, nil)
	if err != nil {
		t.Fatalf("open auction: %v", err)
	}
	if _, err := env.engine.StartRebalance(managerAddr, env.fund, StartParams{
		TTL:   3600,
		Pairs: []RebalancePair{sellAForB(halvingPrices())},
		Seal:  true,
	}); err != nil {
		t.Fatalf("restart: %v", err)
	}
	env.credit(tokenB, bidderAddr, thousandRaw)
	if _, err := env.engine.Bid(bidderAddr, env.fund, auction.ID, wholeUnit, 10*wholeUnit); !errors.Is(err, ErrRebalanceMismatch) {
		t.Fatalf("expected rebalance mismatch, got %v", err)
	}
}

func TestMintAndRedeemThroughPendingBasket(t *testing.T) {
	env := newTestEnv(t)
	env.seedFund(nil, nil)
	env.credit(tokenA, userAddr, thousandRaw)

	if _, err := env.engine.AddToPendingBasket(userAddr, env.fund, []TokenAmount{{Token: tokenA, Amount: thousandRaw}}); err != nil {
		t.Fatalf("stage: %v", err)
	}
	minted, err := env.engine.MintShares(userAddr, env.fund, 500*wholeUnit, 500*wholeUnit)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if minted != 500*wholeUnit {
		t.Fatalf("expected 500 shares, got %d", minted)
	}
	pending, err := env.engine.PendingBasket(env.fund, userAddr)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if got := pending.Pending(tokenA).ForMinting; got != 500*wholeUnit {
		t.Fatalf("expected 500 TokenA left pending, got %d", got)
	}
	if got := env.basket().AmountOrZero(tokenA); got != 1_500*wholeUnit {
		t.Fatalf("expected 1500 TokenA in basket, got %d", got)
	}

	_, err = env.engine.BurnShares(userAddr, env.fund, 500*wholeUnit, []TokenAmount{{Token: tokenA, Amount: 501 * wholeUnit}})
	if !errors.Is(err, ErrMinimumAmountOutNotMet) {
		t.Fatalf("expected minimum out error, got %v", err)
	}
	moved, err := env.engine.BurnShares(userAddr, env.fund, 500*wholeUnit, []TokenAmount{{Token: tokenA, Amount: 500 * wholeUnit}})
	if err != nil {
		t.Fatalf("burn: %v", err)
	}
	if len(moved) != 1 || moved[0].Amount != 500*wholeUnit {
		t.Fatalf("unexpected redeemed amounts %+v", moved)
	}
	if _, err := env.engine.RemoveFromPendingBasket(userAddr, env.fund, []TokenAmount{{Token: tokenA, Amount: 500 * wholeUnit}}, false); err != nil {
		t.Fatalf("withdraw redeemed: %v", err)
	}
	if _, err := env.engine.RemoveFromPendingBasket(userAddr, env.fund, []TokenAmount{{Token: tokenA, Amount: 500 * wholeUnit}}, true); err != nil {
		t.Fatalf("withdraw staged: %v", err)
	}
	if got := env.balance(tokenA, userAddr); got != thousandRaw {
		t.Fatalf("expected user made whole, got %d", got)
	}
	if got := env.balance(shareMint, userAddr); got != 0 {
		t.Fatalf("expected no shares left, got %d", got)
	}
}

func TestMintRequiresEveryBasketToken(t *testing.T) {
	env := newTestEnv(t)
	env.seedFund(nil, nil)
	env.credit(tokenB, ownerAddr, thousandRaw)
	if _, err := env.engine.AddToBasket(ownerAddr, env.fund, []TokenAmount{{Token: tokenB, Amount: thousandRaw}}, 0); err != nil {
		t.Fatalf("add TokenB: %v", err)
	}
	env.credit(tokenA, userAddr, thousandRaw)
	if _, err := env.engine.AddToPendingBasket(userAddr, env.fund, []TokenAmount{{Token: tokenA, Amount: thousandRaw}}); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if _, err := env.engine.MintShares(userAddr, env.fund, wholeUnit, 0); !errors.Is(err, ErrMintMismatch) {
		t.Fatalf("expected mint mismatch, got %v", err)
	}
}

func TestAddToBasketBootstrapRules(t *testing.T) {
	env := newTestEnv(t)
	f, err := env.engine.InitFund(ownerAddr, InitParams{ShareMint: shareMint, AuctionLength: 3600})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	env.credit(tokenA, ownerAddr, thousandRaw)
	deposit := []TokenAmount{{Token: tokenA, Amount: 10 * wholeUnit}}
	if _, err := env.engine.AddToBasket(ownerAddr, f.Address, deposit, 0); !errors.Is(err, ErrInvalidShareAmountProvided) {
		t.Fatalf("first deposit must mint, got %v", err)
	}
	if _, err := env.engine.AddToBasket(ownerAddr, f.Address, deposit, 10*wholeUnit); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if _, err := env.engine.AddToBasket(ownerAddr, f.Address, deposit, wholeUnit); !errors.Is(err, ErrInvalidShareAmountProvided) {
		t.Fatalf("later deposit must not mint, got %v", err)
	}
	if _, err := env.engine.InitFund(ownerAddr, InitParams{ShareMint: shareMint, AuctionLength: 3600}); !errors.Is(err, ErrFundExists) {
		t.Fatalf("expected duplicate fund error, got %v", err)
	}
}

func TestActorRolesGrantAndRevoke(t *testing.T) {
	env := newTestEnv(t)
	env.seedFund(nil, nil)
	if _, err := env.engine.InitOrUpdateActor(strangerAdr, env.fund, managerAddr, RoleRebalanceManager); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("only the owner may grant roles, got %v", err)
	}
	env.grant(managerAddr, RoleRebalanceManager|RoleAuctionLauncher)

	if err := env.engine.RemoveActor(ownerAddr, env.fund, managerAddr, RoleAuctionLauncher); err != nil {
		t.Fatalf("revoke launcher: %v", err)
	}
	roles, err := env.engine.Actor(env.fund, managerAddr)
	if err != nil {
		t.Fatalf("actor: %v", err)
	}
	if roles != RoleRebalanceManager {
		t.Fatalf("expected manager role only, got %d", roles)
	}

	if err := env.engine.RemoveActor(ownerAddr, env.fund, managerAddr, RoleRebalanceManager); err != nil {
		t.Fatalf("revoke manager: %v", err)
	}
	if roles, _ := env.engine.Actor(env.fund, managerAddr); roles != 0 {
		t.Fatalf("expected no roles left, got %d", roles)
	}
	if !containsType(env.eventTypes(), EventTypeActorRemoved) {
		t.Fatalf("expected actor removal event, got %v", env.eventTypes())
	}
	if err := env.engine.RemoveActor(ownerAddr, env.fund, managerAddr, RoleRebalanceManager); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("removing a missing actor must fail, got %v", err)
	}
}

func TestMigrationTransitions(t *testing.T) {
	env := newTestEnv(t)
	env.seedFund(nil, nil)
	f, err := env.engine.StartMigration(ownerAddr, env.fund)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if f.Status != StatusMigrating {
		t.Fatalf("expected migrating status, got %s", f.Status)
	}
	if _, err := env.engine.StartMigration(ownerAddr, env.fund); !errors.Is(err, ErrInvalidFundStatus) {
		t.Fatalf("second migration must fail, got %v", err)
	}
	if !containsType(env.eventTypes(), EventTypeFundStatusChanged) {
		t.Fatalf("expected status event, got %v", env.eventTypes())
	}
}

func TestKilledFundStillRedeems(t *testing.T) {
	env := newTestEnv(t)
	env.seedFund(nil, nil)
	if _, err := env.engine.KillFund(strangerAdr, env.fund); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected role error, got %v", err)
	}
	f, err := env.engine.KillFund(ownerAddr, env.fund)
	if err != nil {
		t.Fatalf("kill: %v", err)
	}
	if f.Status != StatusKilled {
		t.Fatalf("expected killed status, got %s", f.Status)
	}
	env.credit(tokenA, userAddr, wholeUnit)
	if _, err := env.engine.AddToPendingBasket(userAddr, env.fund, []TokenAmount{{Token: tokenA, Amount: wholeUnit}}); !errors.Is(err, ErrInvalidFundStatus) {
		t.Fatalf("killed fund must reject staging, got %v", err)
	}
	if _, err := env.engine.BurnShares(ownerAddr, env.fund, 100*wholeUnit, nil); err != nil {
		t.Fatalf("killed fund must redeem: %v", err)
	}
}

func TestPokeIsDayGranular(t *testing.T) {
	env := newTestEnv(t)
	env.engine.SetFeeSchedule(staticFees{details: FeeDetails{
		Recipient:   daoAddr,
		Numerator:   uint256.NewInt(2e17),
		Denominator: uint256.NewInt(ScaledOne),
		Floor:       new(uint256.Int),
	}})
	env.seedFund(uint256.NewInt(2e16), nil)

	env.advance(Day - 1)
	f, err := env.engine.Poke(env.fund)
	if err != nil {
		t.Fatalf("poke: %v", err)
	}
	if !f.DAOPendingFeeShares.IsZero() || f.LastPoke != uint64(testEpoch) {
		t.Fatalf("poke inside the first day must not accrue")
	}

	env.advance(1)
	first, err := env.engine.Poke(env.fund)
	if err != nil {
		t.Fatalf("poke: %v", err)
	}
	if first.DAOPendingFeeShares.IsZero() || first.RecipientsPendingFeeShares.IsZero() {
		t.Fatalf("expected fees after a full day")
	}
	second, err := env.engine.Poke(env.fund)
	if err != nil {
		t.Fatalf("second poke: %v", err)
	}
	if !second.DAOPendingFeeShares.Eq(first.DAOPendingFeeShares) || !second.RecipientsPendingFeeShares.Eq(first.RecipientsPendingFeeShares) {
		t.Fatalf("second poke must not double accrue")
	}
}

func TestDistributeAndCrankFees(t *testing.T) {
	env := newTestEnv(t)
	env.engine.SetFeeSchedule(staticFees{details: FeeDetails{
		Recipient:   daoAddr,
		Numerator:   uint256.NewInt(2e17),
		Denominator: uint256.NewInt(ScaledOne),
		Floor:       new(uint256.Int),
	}})
	env.seedFund(uint256.NewInt(2e16), nil)
	r1, r2 := newTestAddress(0x21), newTestAddress(0x22)
	if _, err := env.engine.UpdateFund(ownerAddr, env.fund, FundUpdate{AddRecipients: []FeeRecipient{
		{Recipient: r1, Portion: 6e17},
		{Recipient: r2, Portion: 4e17},
	}}); err != nil {
		t.Fatalf("set recipients: %v", err)
	}

	env.advance(365 * Day)
	f, err := env.engine.Poke(env.fund)
	if err != nil {
		t.Fatalf("poke: %v", err)
	}
	daoPending := new(uint256.Int).Set(f.DAOPendingFeeShares)
	recipientsPending := new(uint256.Int).Set(f.RecipientsPendingFeeShares)
	wantDAO := new(uint256.Int).Div(daoPending, uint256.NewInt(wholeUnit)).Uint64()
	wantAmount := new(uint256.Int).Div(recipientsPending, uint256.NewInt(wholeUnit)).Uint64()
	// about 20.4 shares accrue on 1,000 at 2% a year; a fifth goes to the DAO.
	if wantDAO < 4*wholeUnit || wantDAO > 5*wholeUnit {
		t.Fatalf("unexpected dao accrual %d", wantDAO)
	}

	dist, err := env.engine.DistributeFees(managerAddr, env.fund)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if dist == nil || dist.Index != 1 {
		t.Fatalf("expected distribution 1, got %+v", dist)
	}
	if got := env.balance(shareMint, daoAddr); got != wantDAO {
		t.Fatalf("expected dao minted %d, got %d", wantDAO, got)
	}
	if !dist.Amount.Eq(fromTokenAmount(wantAmount)) {
		t.Fatalf("expected distribution of %d whole units, got %s", wantAmount, dist.Amount)
	}

	if _, err := env.engine.CrankFeeDistribution(strangerAdr, env.fund, dist.Index, []common.Address{r1}); !errors.Is(err, ErrInvalidCranker) {
		t.Fatalf("expected cranker exclusivity, got %v", err)
	}
	paid1, err := env.engine.CrankFeeDistribution(managerAddr, env.fund, dist.Index, []common.Address{r1})
	if err != nil {
		t.Fatalf("crank r1: %v", err)
	}
	if want := wantAmount * 6 / 10; paid1 != want {
		t.Fatalf("expected r1 paid %d, got %d", want, paid1)
	}

	env.advance(Day)
	paid2, err := env.engine.CrankFeeDistribution(strangerAdr, env.fund, dist.Index, []common.Address{r2, r1})
	if err != nil {
		t.Fatalf("crank r2: %v", err)
	}
	if want := wantAmount * 4 / 10; paid2 != want {
		t.Fatalf("expected r2 paid %d, got %d", want, paid2)
	}
	if env.balance(shareMint, r1) != paid1 || env.balance(shareMint, r2) != paid2 {
		t.Fatalf("recipient balances do not match payouts")
	}
	if _, err := env.engine.FeeDistribution(env.fund, dist.Index); !errors.Is(err, ErrInvalidFeeDistribution) {
		t.Fatalf("completed distribution must be deleted, got %v", err)
	}
	final, err := env.engine.Fund(env.fund)
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if !final.RecipientsToBeMinted.IsZero() {
		t.Fatalf("expected nothing left to mint, got %s", final.RecipientsToBeMinted)
	}
	if final.RecipientsPendingFeeShares.IsZero() {
		t.Fatalf("expected rounding remainder returned to pending")
	}
	types := env.eventTypes()
	for _, want := range []string{EventTypeFeesDistributed, EventTypeFeeDistributionCranked, EventTypeFeeDistributionComplete} {
		if !containsType(types, want) {
			t.Fatalf("missing %s in %v", want, types)
		}
	}
}

func TestDistributeWithoutRecipientsPaysDAO(t *testing.T) {
	env := newTestEnv(t)
	env.engine.SetFeeSchedule(staticFees{details: FeeDetails{
		Recipient:   daoAddr,
		Numerator:   uint256.NewInt(2e17),
		Denominator: uint256.NewInt(ScaledOne),
		Floor:       new(uint256.Int),
	}})
	env.seedFund(uint256.NewInt(2e16), nil)
	env.advance(365 * Day)
	dist, err := env.engine.DistributeFees(strangerAdr, env.fund)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if dist != nil {
		t.Fatalf("expected no distribution without recipients")
	}
	// roughly 20.4 shares accrue in total
	if got := env.balance(shareMint, daoAddr); got < 20*wholeUnit || got > 21*wholeUnit {
		t.Fatalf("expected dao to receive all fees, got %d", got)
	}
}

func TestPausedEngineRejectsCommands(t *testing.T) {
	env := newTestEnv(t)
	env.engine.SetPauses(pausedView{})
	_, err := env.engine.InitFund(ownerAddr, InitParams{ShareMint: shareMint, AuctionLength: 3600})
	if !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused error, got %v", err)
	}
}

func TestPausedModuleStillReleasesPendingTokens(t *testing.T) {
	env := newTestEnv(t)
	env.seedFund(nil, nil)
	env.credit(tokenA, userAddr, thousandRaw)
	if _, err := env.engine.AddToPendingBasket(userAddr, env.fund, []TokenAmount{{Token: tokenA, Amount: thousandRaw}}); err != nil {
		t.Fatalf("stage: %v", err)
	}

	env.engine.SetPauses(pausedView{})
	if _, err := env.engine.AddToPendingBasket(userAddr, env.fund, []TokenAmount{{Token: tokenA, Amount: 1}}); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("staging must stop while paused, got %v", err)
	}
	pending, err := env.engine.RemoveFromPendingBasket(userAddr, env.fund, []TokenAmount{{Token: tokenA, Amount: thousandRaw}}, true)
	if err != nil {
		t.Fatalf("remove while paused: %v", err)
	}
	if got := pending.Pending(tokenA).ForMinting; got != 0 {
		t.Fatalf("expected nothing staged, got %d", got)
	}
	if got := env.balance(tokenA, userAddr); got != thousandRaw {
		t.Fatalf("expected user refunded %d, got %d", thousandRaw, got)
	}
}

func TestPendingBasketAccumulatesAcrossCalls(t *testing.T) {
	env := newTestEnv(t)
	env.seedFund(nil, nil)
	env.credit(tokenA, userAddr, thousandRaw)
	env.credit(tokenB, userAddr, thousandRaw)

	if _, err := env.engine.AddToPendingBasket(userAddr, env.fund, []TokenAmount{{Token: tokenA, Amount: 300 * wholeUnit}}); err != nil {
		t.Fatalf("first stage: %v", err)
	}
	if _, err := env.engine.AddToPendingBasket(userAddr, env.fund, []TokenAmount{
		{Token: tokenA, Amount: 200 * wholeUnit},
		{Token: tokenB, Amount: 50 * wholeUnit},
	}); err != nil {
		t.Fatalf("second stage: %v", err)
	}

	pending, err := env.engine.PendingBasket(env.fund, userAddr)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if got := pending.Pending(tokenA).ForMinting; got != 500*wholeUnit {
		t.Fatalf("expected 500 TokenA staged, got %d", got)
	}
	if got := pending.Pending(tokenB).ForMinting; got != 50*wholeUnit {
		t.Fatalf("expected 50 TokenB staged, got %d", got)
	}
	if got := len(pending.Entries()); got != 2 {
		t.Fatalf("expected one ledger with two tokens, got %d entries", got)
	}
	if got := env.balance(tokenA, env.fund); got != thousandRaw+500*wholeUnit {
		t.Fatalf("fund TokenA escrow = %d", got)
	}
}

type pausedView struct{}

func (pausedView) IsPaused(module string) bool { return module == ModuleName }

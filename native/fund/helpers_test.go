package fund

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"fundchain/core/events"
	"fundchain/core/state"
	"fundchain/native/bank"
	"fundchain/storage"
)

const (
	testEpoch   int64  = 1_700_006_400 // day aligned
	wholeUnit   uint64 = 1_000_000_000
	thousandRaw uint64 = 1_000 * wholeUnit
)

func newTestAddress(fill byte) common.Address {
	return common.BytesToAddress(bytes.Repeat([]byte{fill}, common.AddressLength))
}

func d18(v uint64) *uint256.Int { return new(uint256.Int).Mul(uint256.NewInt(v), uint256.NewInt(ScaledOne)) }

var (
	ownerAddr   = newTestAddress(0x01)
	managerAddr = newTestAddress(0x02)
	userAddr    = newTestAddress(0x03)
	bidderAddr  = newTestAddress(0x04)
	daoAddr     = newTestAddress(0x05)
	strangerAdr = newTestAddress(0x06)
	shareMint   = newTestAddress(0x10)
	tokenA      = newTestAddress(0xA1)
	tokenB      = newTestAddress(0xB2)
	tokenC      = newTestAddress(0xC3)
)

type staticFees struct {
	details FeeDetails
}

func (s staticFees) FeeDetails(common.Address) (FeeDetails, error) { return s.details, nil }

type staticOracle struct {
	quote PriceQuote
	err   error
}

func (o *staticOracle) Quote(common.Address, common.Address) (PriceQuote, error) {
	return o.quote, o.err
}

type testEnv struct {
	t      *testing.T
	engine *Engine
	mgr    *state.Manager
	ledger *bank.Ledger
	events *events.Buffer
	now    int64
	fund   common.Address
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	env := &testEnv{
		t:      t,
		mgr:    mgr,
		ledger: bank.NewLedger(mgr),
		events: &events.Buffer{},
		now:    testEpoch,
	}
	engine := NewEngine()
	engine.SetState(NewStateStore(mgr))
	engine.SetTokenRail(env.ledger)
	engine.SetShareLedger(env.ledger)
	engine.SetEmitter(env.events)
	engine.SetNowFunc(func() int64 { return env.now })
	env.engine = engine
	return env
}

func (env *testEnv) advance(seconds int64) { env.now += seconds }

func (env *testEnv) credit(token, account common.Address, amount uint64) {
	env.t.Helper()
	if err := env.ledger.Mint(token, account, amount); err != nil {
		env.t.Fatalf("credit %s: %v", token.Hex(), err)
	}
}

func (env *testEnv) balance(token, account common.Address) uint64 {
	env.t.Helper()
	bal, err := env.ledger.Balance(token, account)
	if err != nil {
		env.t.Fatalf("balance: %v", err)
	}
	return bal
}

// seedFund creates a fund whose basket holds 1,000 TokenA backing 1,000
// shares owned by ownerAddr.
func (env *testEnv) seedFund(annualTVLFee, mintFee *uint256.Int) *Fund {
	env.t.Helper()
	f, err := env.engine.InitFund(ownerAddr, InitParams{
		ShareMint:     shareMint,
		AnnualTVLFee:  annualTVLFee,
		MintFee:       mintFee,
		AuctionLength: 3600,
		Mandate:       "broad market",
	})
	if err != nil {
		env.t.Fatalf("init fund: %v", err)
	}
	env.fund = f.Address
	env.credit(tokenA, ownerAddr, thousandRaw)
	if _, err := env.engine.AddToBasket(ownerAddr, f.Address, []TokenAmount{{Token: tokenA, Amount: thousandRaw}}, thousandRaw); err != nil {
		env.t.Fatalf("add to basket: %v", err)
	}
	return f
}

func (env *testEnv) basket() *Basket {
	env.t.Helper()
	b, err := env.engine.Basket(env.fund)
	if err != nil {
		env.t.Fatalf("basket: %v", err)
	}
	return b
}

func (env *testEnv) grant(authority common.Address, roles Role) {
	env.t.Helper()
	if _, err := env.engine.InitOrUpdateActor(ownerAddr, env.fund, authority, roles); err != nil {
		env.t.Fatalf("grant roles: %v", err)
	}
}

// sellAForB declares TokenA -> TokenB with TokenA fully sellable and a target
// of one TokenB per share.
func sellAForB(prices PriceRange) RebalancePair {
	return RebalancePair{
		Sell:      tokenA,
		Buy:       tokenB,
		SellLimit: BasketRange{Low: new(uint256.Int), Spot: new(uint256.Int), High: new(uint256.Int)},
		BuyLimit:  BasketRange{Low: new(uint256.Int), Spot: d18(1), High: d18(1)},
		Prices:    prices,
	}
}

func halvingPrices() PriceRange { return PriceRange{Start: d18(2), End: d18(1)} }

func (env *testEnv) eventTypes() []string {
	var out []string
	for _, evt := range env.events.Events() {
		out = append(out, evt.EventType())
	}
	return out
}

func containsType(types []string, want string) bool {
	for _, typ := range types {
		if typ == want {
			return true
		}
	}
	return false
}

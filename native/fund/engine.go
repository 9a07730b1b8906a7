package fund

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"fundchain/core/events"
	nativecommon "fundchain/native/common"
)

type engineState interface {
	GetFund(addr common.Address) (*Fund, bool, error)
	PutFund(f *Fund) error
	GetActor(fund, authority common.Address) (*Actor, bool, error)
	PutActor(a *Actor) error
	DeleteActor(fund, authority common.Address) error
	GetBasket(fund common.Address) (*Basket, bool, error)
	PutBasket(b *Basket) error
	GetPendingBasket(fund, owner common.Address) (*PendingBasket, bool, error)
	PutPendingBasket(p *PendingBasket) error
	GetRebalance(fund common.Address) (*Rebalance, bool, error)
	PutRebalance(r *Rebalance) error
	GetAuction(fund common.Address, id uint64) (*Auction, bool, error)
	PutAuction(a *Auction) error
	GetAuctionEnds(fund common.Address, nonce uint64, pair Pair) (*AuctionEnds, bool, error)
	PutAuctionEnds(e *AuctionEnds) error
	GetFeeRecipients(fund common.Address) (*FeeRecipients, bool, error)
	PutFeeRecipients(r *FeeRecipients) error
	GetFeeDistribution(fund common.Address, index uint64) (*FeeDistribution, bool, error)
	PutFeeDistribution(d *FeeDistribution) error
	DeleteFeeDistribution(fund common.Address, index uint64) error
}

// TokenRail moves fungible balances between accounts.
type TokenRail interface {
	Transfer(token, from, to common.Address, amount uint64) error
}

// ShareLedger issues and retires fund share tokens.
type ShareLedger interface {
	TotalSupply(mint common.Address) (uint64, error)
	Mint(mint, to common.Address, amount uint64) error
	Burn(mint, from common.Address, amount uint64) error
}

// PriceOracle quotes buy tokens per sell token.
type PriceOracle interface {
	Quote(sell, buy common.Address) (PriceQuote, error)
}

// RoleLookup grants roles held outside the fund's own actor records.
type RoleLookup interface {
	Roles(fund, identity common.Address) (Role, error)
}

// FeeSchedule resolves the DAO fee configuration for a fund.
type FeeSchedule interface {
	FeeDetails(fund common.Address) (FeeDetails, error)
}

// TokenWhitelist reports which token mints may enter a fund.
type TokenWhitelist interface {
	Supported(token common.Address) bool
}

// Engine is the Fund Controller. Each exported command validates before it
// mutates, but writes go straight to the configured state; callers run a
// command against a state overlay and discard it when an error is returned.
type Engine struct {
	state        engineState
	rail         TokenRail
	shares       ShareLedger
	oracle       PriceOracle
	roles        RoleLookup
	fees         FeeSchedule
	tokens       TokenWhitelist
	emitter      events.Emitter
	pauses       nativecommon.PauseView
	nowFn        func() int64
	maxPriceAge  uint64
	deferredBand *uint256.Int
}

// NewEngine creates a fund engine with a no-op emitter and wall clock.
func NewEngine() *Engine {
	return &Engine{
		emitter:      events.NoopEmitter{},
		nowFn:        func() int64 { return time.Now().Unix() },
		maxPriceAge:  300,
		deferredBand: u64(50_000_000_000_000_000),
	}
}

func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetTokenRail(rail TokenRail) { e.rail = rail }

func (e *Engine) SetShareLedger(shares ShareLedger) { e.shares = shares }

func (e *Engine) SetPriceOracle(oracle PriceOracle) { e.oracle = oracle }

func (e *Engine) SetRoleLookup(roles RoleLookup) { e.roles = roles }

func (e *Engine) SetFeeSchedule(fees FeeSchedule) { e.fees = fees }

func (e *Engine) SetTokenWhitelist(tokens TokenWhitelist) { e.tokens = tokens }

func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the clock used for time-gated checks.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetPricePolicy configures the oracle staleness bound (seconds) and the D18
// band applied around an oracle quote when pricing deferred pairs.
func (e *Engine) SetPricePolicy(maxAge uint64, band *uint256.Int) error {
	if band != nil && !band.Lt(one) {
		return fmt.Errorf("fund engine: price band must be below one")
	}
	e.maxPriceAge = maxAge
	if band != nil {
		e.deferredBand = clone(band)
	}
	return nil
}

func (e *Engine) now() uint64 {
	if e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) emit(rec *events.Record) {
	if e == nil || e.emitter == nil || rec == nil {
		return
	}
	e.emitter.Emit(rec)
}

func (e *Engine) ready() error {
	if err := e.hasState(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return fmt.Errorf("%w: %w", ErrModulePaused, err)
	}
	return nil
}

// hasState checks wiring only. Commands that must survive a module pause
// call it instead of ready.
func (e *Engine) hasState() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nil
}

func (e *Engine) requireShares() error {
	if e.shares == nil {
		return fmt.Errorf("%w: share ledger", ErrCollaboratorMissing)
	}
	return nil
}

func (e *Engine) requireRail() error {
	if e.rail == nil {
		return fmt.Errorf("%w: token rail", ErrCollaboratorMissing)
	}
	return nil
}

func (e *Engine) loadFund(addr common.Address) (*Fund, error) {
	f, ok, err := e.state.GetFund(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrFundNotFound
	}
	return f, nil
}

func (e *Engine) loadBasket(fund common.Address) (*Basket, error) {
	b, ok, err := e.state.GetBasket(fund)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Basket{Fund: fund}, nil
	}
	if b.Fund != fund {
		return nil, ErrAddressMismatch
	}
	return b, nil
}

func (e *Engine) rolesOf(fund, identity common.Address) (Role, error) {
	var roles Role
	actor, ok, err := e.state.GetActor(fund, identity)
	if err != nil {
		return 0, err
	}
	if ok {
		roles = actor.Roles
	}
	if e.roles != nil {
		external, err := e.roles.Roles(fund, identity)
		if err != nil {
			return 0, err
		}
		roles |= external
	}
	return roles, nil
}

func (e *Engine) requireRole(fund, identity common.Address, required Role) error {
	roles, err := e.rolesOf(fund, identity)
	if err != nil {
		return err
	}
	if !roles.HasAny(required) {
		return ErrInvalidRole
	}
	return nil
}

func requireStatus(f *Fund, allowed ...Status) error {
	for _, s := range allowed {
		if f.Status == s {
			return nil
		}
	}
	return ErrInvalidFundStatus
}

func (e *Engine) supported(token common.Address) bool {
	if e.tokens == nil {
		return true
	}
	return e.tokens.Supported(token)
}

func (e *Engine) feeDetails(fund common.Address) (FeeDetails, error) {
	if e.fees == nil {
		return FeeDetails{Numerator: new(uint256.Int), Denominator: clone(one), Floor: new(uint256.Int)}, nil
	}
	details, err := e.fees.FeeDetails(fund)
	if err != nil {
		return FeeDetails{}, err
	}
	details.Numerator = orZero(details.Numerator)
	details.Floor = orZero(details.Floor)
	if err := ValidateFeeDetails(details); err != nil {
		return FeeDetails{}, err
	}
	return details, nil
}

func (e *Engine) rawSupply(f *Fund) (uint64, error) {
	if err := e.requireShares(); err != nil {
		return 0, err
	}
	return e.shares.TotalSupply(f.ShareMint)
}

// pokeFund accrues fees on f in memory and returns the resulting total
// supply including pending fee shares.
func (e *Engine) pokeFund(f *Fund, now uint64) (*uint256.Int, FeeDetails, error) {
	fees, err := e.feeDetails(f.Address)
	if err != nil {
		return nil, FeeDetails{}, err
	}
	raw, err := e.rawSupply(f)
	if err != nil {
		return nil, FeeDetails{}, err
	}
	if _, err := f.Poke(raw, now, fees); err != nil {
		return nil, FeeDetails{}, err
	}
	supply, err := f.TotalSupply(raw)
	if err != nil {
		return nil, FeeDetails{}, err
	}
	return supply, fees, nil
}

// Poke accrues TVL fees for the fund. A poke within the same day as the
// previous one leaves the fund untouched.
func (e *Engine) Poke(fundAddr common.Address) (*Fund, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	f, err := e.loadFund(fundAddr)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(f, StatusInitialized, StatusKilled); err != nil {
		return nil, err
	}
	fees, err := e.feeDetails(f.Address)
	if err != nil {
		return nil, err
	}
	raw, err := e.rawSupply(f)
	if err != nil {
		return nil, err
	}
	changed, err := f.Poke(raw, e.now(), fees)
	if err != nil {
		return nil, err
	}
	if !changed {
		return f, nil
	}
	if err := e.state.PutFund(f); err != nil {
		return nil, err
	}
	e.emit(newPokedEvent(f))
	return f, nil
}

// Fund returns the stored fund record.
func (e *Engine) Fund(addr common.Address) (*Fund, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadFund(addr)
}

// Basket returns the fund's Basket Ledger.
func (e *Engine) Basket(fund common.Address) (*Basket, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, err := e.loadFund(fund); err != nil {
		return nil, err
	}
	return e.loadBasket(fund)
}

// PendingBasket returns a user's Pending Order Ledger, or an empty one.
func (e *Engine) PendingBasket(fund, owner common.Address) (*PendingBasket, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	p, ok, err := e.state.GetPendingBasket(fund, owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		return newPendingBasket(fund, owner), nil
	}
	return p, nil
}

// Actor returns the roles recorded for identity on fund.
func (e *Engine) Actor(fund, identity common.Address) (Role, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.rolesOf(fund, identity)
}

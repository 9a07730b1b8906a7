package fund

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// InitParams configures a new fund. AnnualTVLFee is converted to its
// per-second form.
type InitParams struct {
	ShareMint     common.Address
	AnnualTVLFee  *uint256.Int
	MintFee       *uint256.Int
	AuctionLength uint64
	Mandate       string
}

// FundUpdate carries optional owner changes to a fund.
type FundUpdate struct {
	AnnualTVLFee     *uint256.Int
	MintFee          *uint256.Int
	AuctionLength    *uint64
	Mandate          *string
	AddRecipients    []FeeRecipient
	RemoveRecipients []common.Address
}

func validateMintFee(fee *uint256.Int) error {
	if orZero(fee).Gt(u64(MaxMintFee)) {
		return ErrInvalidMintFee
	}
	return nil
}

func validateAuctionLength(length uint64) error {
	if length < MinAuctionLen || length > MaxAuctionLen {
		return ErrInvalidAuctionLength
	}
	return nil
}

func validateMandate(mandate string) error {
	if len(mandate) > MaxMandateSize {
		return ErrInvalidMandate
	}
	return nil
}

// InitFund creates a fund bound to params.ShareMint and grants owner the
// Owner role.
func (e *Engine) InitFund(owner common.Address, params InitParams) (*Fund, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if owner == (common.Address{}) || params.ShareMint == (common.Address{}) {
		return nil, ErrInvalidAddedTokenMints
	}
	addr := DeriveFundAddress(params.ShareMint)
	if _, exists, err := e.state.GetFund(addr); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrFundExists
	}
	tvlFee, err := TVLFeeFromAnnual(params.AnnualTVLFee)
	if err != nil {
		return nil, err
	}
	if err := validateMintFee(params.MintFee); err != nil {
		return nil, err
	}
	if err := validateAuctionLength(params.AuctionLength); err != nil {
		return nil, err
	}
	if err := validateMandate(params.Mandate); err != nil {
		return nil, err
	}
	now := e.now()
	f := &Fund{
		Address:       addr,
		ShareMint:     params.ShareMint,
		Status:        StatusInitialized,
		TVLFee:        tvlFee,
		MintFee:       clone(params.MintFee),
		LastPoke:      AccountedUntil(now),
		AuctionLength: params.AuctionLength,
		Mandate:       params.Mandate,
		CreatedAt:     now,
	}
	f.normalize()
	actor := &Actor{Authority: owner, Fund: addr, Roles: RoleOwner}

	if err := e.state.PutFund(f); err != nil {
		return nil, err
	}
	if err := e.state.PutActor(actor); err != nil {
		return nil, err
	}
	if err := e.state.PutBasket(&Basket{Fund: addr}); err != nil {
		return nil, err
	}
	if err := e.state.PutFeeRecipients(&FeeRecipients{Fund: addr}); err != nil {
		return nil, err
	}
	e.emit(newFundInitializedEvent(f, owner))
	e.emit(newActorEvent(EventTypeActorUpdated, actor))
	return f, nil
}

// AddToBasket moves owner tokens into the fund and the Basket Ledger. The
// first deposit into a fund without shares must mint initialShares to the
// owner; later deposits must not mint.
func (e *Engine) AddToBasket(caller, fundAddr common.Address, amounts []TokenAmount, initialShares uint64) (*Basket, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.requireRail(); err != nil {
		return nil, err
	}
	f, err := e.loadFund(fundAddr)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(f, StatusInitialized); err != nil {
		return nil, err
	}
	if err := e.requireRole(fundAddr, caller, RoleOwner); err != nil {
		return nil, err
	}
	if len(amounts) == 0 {
		return nil, ErrInvalidAddedTokenMints
	}
	for _, ta := range amounts {
		if ta.Amount == 0 || ta.Token == (common.Address{}) {
			return nil, ErrInvalidAddedTokenMints
		}
		if !e.supported(ta.Token) {
			return nil, ErrUnsupportedToken
		}
	}
	raw, err := e.rawSupply(f)
	if err != nil {
		return nil, err
	}
	if (raw == 0) != (initialShares > 0) {
		return nil, ErrInvalidShareAmountProvided
	}
	basket, err := e.loadBasket(fundAddr)
	if err != nil {
		return nil, err
	}
	if err := basket.AddAll(amounts); err != nil {
		return nil, err
	}
	for _, ta := range amounts {
		if err := e.rail.Transfer(ta.Token, caller, fundAddr, ta.Amount); err != nil {
			return nil, err
		}
	}
	if initialShares > 0 {
		if err := e.shares.Mint(f.ShareMint, caller, initialShares); err != nil {
			return nil, err
		}
	}
	if err := e.state.PutBasket(basket); err != nil {
		return nil, err
	}
	e.emit(newBasketAddedEvent(fundAddr, amounts, basket))
	return basket, nil
}

// RemoveFromBasket stops tracking token in the Basket Ledger. Any balance the
// fund still holds stays in its account.
func (e *Engine) RemoveFromBasket(caller, fundAddr, token common.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	f, err := e.loadFund(fundAddr)
	if err != nil {
		return err
	}
	if err := requireStatus(f, StatusInitialized); err != nil {
		return err
	}
	if err := e.requireRole(fundAddr, caller, RoleOwner); err != nil {
		return err
	}
	basket, err := e.loadBasket(fundAddr)
	if err != nil {
		return err
	}
	if err := basket.RemoveMint(token); err != nil {
		return err
	}
	if err := e.state.PutBasket(basket); err != nil {
		return err
	}
	e.emit(newBasketTokenRemovedEvent(fundAddr, token))
	return nil
}

// InitOrUpdateActor grants roles to authority, creating the actor record on
// first grant.
func (e *Engine) InitOrUpdateActor(caller, fundAddr, authority common.Address, roles Role) (*Actor, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if _, err := e.loadFund(fundAddr); err != nil {
		return nil, err
	}
	if err := e.requireRole(fundAddr, caller, RoleOwner); err != nil {
		return nil, err
	}
	if authority == (common.Address{}) || roles == 0 {
		return nil, ErrInvalidRole
	}
	actor, ok, err := e.state.GetActor(fundAddr, authority)
	if err != nil {
		return nil, err
	}
	if !ok {
		actor = &Actor{Authority: authority, Fund: fundAddr}
	}
	actor.Roles |= roles
	if err := e.state.PutActor(actor); err != nil {
		return nil, err
	}
	e.emit(newActorEvent(EventTypeActorUpdated, actor))
	return actor, nil
}

// RemoveActor revokes roles from authority, deleting the record once no role
// remains.
func (e *Engine) RemoveActor(caller, fundAddr, authority common.Address, roles Role) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.loadFund(fundAddr); err != nil {
		return err
	}
	if err := e.requireRole(fundAddr, caller, RoleOwner); err != nil {
		return err
	}
	actor, ok, err := e.state.GetActor(fundAddr, authority)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidRole
	}
	actor.Roles &^= roles
	if actor.Roles == 0 {
		if err := e.state.DeleteActor(fundAddr, authority); err != nil {
			return err
		}
		e.emit(newActorEvent(EventTypeActorRemoved, actor))
		return nil
	}
	if err := e.state.PutActor(actor); err != nil {
		return err
	}
	e.emit(newActorEvent(EventTypeActorUpdated, actor))
	return nil
}

// UpdateFund pokes with the current configuration and then applies update.
func (e *Engine) UpdateFund(caller, fundAddr common.Address, update FundUpdate) (*Fund, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	f, err := e.loadFund(fundAddr)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(f, StatusInitialized); err != nil {
		return nil, err
	}
	if err := e.requireRole(fundAddr, caller, RoleOwner); err != nil {
		return nil, err
	}
	if _, _, err := e.pokeFund(f, e.now()); err != nil {
		return nil, err
	}

	if update.AnnualTVLFee != nil {
		perSecond, err := TVLFeeFromAnnual(update.AnnualTVLFee)
		if err != nil {
			return nil, err
		}
		f.TVLFee = perSecond
	}
	if update.MintFee != nil {
		if err := validateMintFee(update.MintFee); err != nil {
			return nil, err
		}
		f.MintFee = clone(update.MintFee)
	}
	if update.AuctionLength != nil {
		if err := validateAuctionLength(*update.AuctionLength); err != nil {
			return nil, err
		}
		f.AuctionLength = *update.AuctionLength
	}
	if update.Mandate != nil {
		if err := validateMandate(*update.Mandate); err != nil {
			return nil, err
		}
		f.Mandate = *update.Mandate
	}

	var recipients *FeeRecipients
	if len(update.AddRecipients) > 0 || len(update.RemoveRecipients) > 0 {
		stored, ok, err := e.state.GetFeeRecipients(fundAddr)
		if err != nil {
			return nil, err
		}
		if !ok {
			stored = &FeeRecipients{Fund: fundAddr}
		}
		if err := stored.Update(update.AddRecipients, update.RemoveRecipients); err != nil {
			return nil, err
		}
		recipients = stored
	}

	if err := e.state.PutFund(f); err != nil {
		return nil, err
	}
	if recipients != nil {
		if err := e.state.PutFeeRecipients(recipients); err != nil {
			return nil, err
		}
		for _, r := range update.AddRecipients {
			e.emit(newFeeRecipientSetEvent(fundAddr, r))
		}
	}
	e.emit(newFundUpdatedEvent(f))
	return f, nil
}

// KillFund stops minting, rebalancing and auctions; redemptions and fee
// accrual continue.
func (e *Engine) KillFund(caller, fundAddr common.Address) (*Fund, error) {
	return e.transition(caller, fundAddr, StatusKilled, StatusInitialized)
}

// StartMigration freezes the fund ahead of a migration.
func (e *Engine) StartMigration(caller, fundAddr common.Address) (*Fund, error) {
	return e.transition(caller, fundAddr, StatusMigrating, StatusInitialized, StatusKilled)
}

func (e *Engine) transition(caller, fundAddr common.Address, to Status, from ...Status) (*Fund, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	f, err := e.loadFund(fundAddr)
	if err != nil {
		return nil, err
	}
	if err := e.requireRole(fundAddr, caller, RoleOwner); err != nil {
		return nil, err
	}
	if err := requireStatus(f, from...); err != nil {
		return nil, err
	}
	if _, _, err := e.pokeFund(f, e.now()); err != nil {
		return nil, err
	}
	previous := f.Status
	f.Status = to
	if err := e.state.PutFund(f); err != nil {
		return nil, err
	}
	e.emit(newStatusChangedEvent(f, previous))
	return f, nil
}

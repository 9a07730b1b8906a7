package fund

import "github.com/ethereum/go-ethereum/common"

// AddToPendingBasket escrows user tokens in the fund and stages them for
// minting. The user's ledger is created on first use and never reset.
func (e *Engine) AddToPendingBasket(user, fundAddr common.Address, amounts []TokenAmount) (*PendingBasket, error) {
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
	if len(amounts) == 0 {
		return nil, ErrInvalidAddedTokenMints
	}
	for _, ta := range amounts {
		if !e.supported(ta.Token) {
			return nil, ErrUnsupportedToken
		}
	}
	pending, err := e.PendingBasket(fundAddr, user)
	if err != nil {
		return nil, err
	}
	if err := pending.AddForMinting(amounts); err != nil {
		return nil, err
	}
	for _, ta := range amounts {
		if err := e.rail.Transfer(ta.Token, user, fundAddr, ta.Amount); err != nil {
			return nil, err
		}
	}
	if err := e.state.PutPendingBasket(pending); err != nil {
		return nil, err
	}
	e.emit(newPendingEvent(EventTypePendingAdded, fundAddr, user, amounts, true))
	return pending, nil
}

// RemoveFromPendingBasket returns staged tokens to the user. It is allowed in
// every fund status and while the module is paused.
func (e *Engine) RemoveFromPendingBasket(user, fundAddr common.Address, amounts []TokenAmount, forMinting bool) (*PendingBasket, error) {
	if err := e.hasState(); err != nil {
		return nil, err
	}
	if err := e.requireRail(); err != nil {
		return nil, err
	}
	if _, err := e.loadFund(fundAddr); err != nil {
		return nil, err
	}
	if len(amounts) == 0 {
		return nil, ErrInvalidRemovedTokenMints
	}
	pending, ok, err := e.state.GetPendingBasket(fundAddr, user)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidRemovedTokenMints
	}
	if err := pending.Remove(amounts, forMinting); err != nil {
		return nil, err
	}
	for _, ta := range amounts {
		if ta.Amount == 0 {
			continue
		}
		if err := e.rail.Transfer(ta.Token, fundAddr, user, ta.Amount); err != nil {
			return nil, err
		}
	}
	if err := e.state.PutPendingBasket(pending); err != nil {
		return nil, err
	}
	e.emit(newPendingEvent(EventTypePendingRemoved, fundAddr, user, amounts, forMinting))
	return pending, nil
}

// MintShares converts staged tokens backing rawShares into the basket and
// mints the shares net of the mint fee. minShares bounds the net amount.
func (e *Engine) MintShares(user, fundAddr common.Address, rawShares, minShares uint64) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	f, err := e.loadFund(fundAddr)
	if err != nil {
		return 0, err
	}
	if err := requireStatus(f, StatusInitialized); err != nil {
		return 0, err
	}
	pending, ok, err := e.state.GetPendingBasket(fundAddr, user)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrMintMismatch
	}
	supply, fees, err := e.pokeFund(f, e.now())
	if err != nil {
		return 0, err
	}
	basket, err := e.loadBasket(fundAddr)
	if err != nil {
		return 0, err
	}
	moved, err := pending.ToAssets(basket, rawShares, supply, DirectionMint, nil)
	if err != nil {
		return 0, err
	}
	fee, err := f.BookMintFee(rawShares, fees)
	if err != nil {
		return 0, err
	}
	if fee > rawShares {
		return 0, ErrInvalidShareAmountProvided
	}
	minted := rawShares - fee
	if minted < minShares {
		return 0, ErrSlippageExceeded
	}
	if minted > 0 {
		if err := e.shares.Mint(f.ShareMint, user, minted); err != nil {
			return 0, err
		}
	}
	if err := e.state.PutFund(f); err != nil {
		return 0, err
	}
	if err := e.state.PutBasket(basket); err != nil {
		return 0, err
	}
	if err := e.state.PutPendingBasket(pending); err != nil {
		return 0, err
	}
	e.emit(newSharesEvent(EventTypeSharesMinted, fundAddr, user, minted, fee, moved))
	return minted, nil
}

// BurnShares burns rawShares and moves the pro-rata basket into the user's
// pending-for-redeem side. minOut sets per-token minimums.
func (e *Engine) BurnShares(user, fundAddr common.Address, rawShares uint64, minOut []TokenAmount) ([]TokenAmount, error) {
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
	supply, _, err := e.pokeFund(f, e.now())
	if err != nil {
		return nil, err
	}
	pending, err := e.PendingBasket(fundAddr, user)
	if err != nil {
		return nil, err
	}
	basket, err := e.loadBasket(fundAddr)
	if err != nil {
		return nil, err
	}
	moved, err := pending.ToAssets(basket, rawShares, supply, DirectionRedeem, minOut)
	if err != nil {
		return nil, err
	}
	if err := e.shares.Burn(f.ShareMint, user, rawShares); err != nil {
		return nil, err
	}
	if err := e.state.PutFund(f); err != nil {
		return nil, err
	}
	if err := e.state.PutBasket(basket); err != nil {
		return nil, err
	}
	if err := e.state.PutPendingBasket(pending); err != nil {
		return nil, err
	}
	e.emit(newSharesEvent(EventTypeSharesBurned, fundAddr, user, rawShares, 0, moved))
	return moved, nil
}

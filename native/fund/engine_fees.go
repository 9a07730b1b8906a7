package fund

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// DistributeFees pokes the fund, mints the DAO's whole pending shares to the
// DAO recipient and snapshots the recipients' whole pending shares into a new
// FeeDistribution. Without configured recipients the DAO receives
// everything and no distribution is created.
func (e *Engine) DistributeFees(cranker, fundAddr common.Address) (*FeeDistribution, error) {
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
	now := e.now()
	_, fees, err := e.pokeFund(f, now)
	if err != nil {
		return nil, err
	}
	recipients, ok, err := e.state.GetFeeRecipients(fundAddr)
	if err != nil {
		return nil, err
	}
	if !ok {
		recipients = &FeeRecipients{Fund: fundAddr}
	}

	var dist *FeeDistribution
	if recipients.Empty() {
		combined, err := checkedAdd(f.DAOPendingFeeShares, f.RecipientsPendingFeeShares)
		if err != nil {
			return nil, err
		}
		f.DAOPendingFeeShares = combined
		f.RecipientsPendingFeeShares = new(uint256.Int)
	} else {
		rawRecipients, err := toTokenAmount(f.RecipientsPendingFeeShares, Floor)
		if err != nil {
			return nil, err
		}
		amount := fromTokenAmount(rawRecipients)
		if f.RecipientsPendingFeeShares, err = checkedSub(f.RecipientsPendingFeeShares, amount); err != nil {
			return nil, err
		}
		if f.RecipientsToBeMinted, err = checkedAdd(f.RecipientsToBeMinted, amount); err != nil {
			return nil, err
		}
		recipients.DistributionIndex++
		dist = &FeeDistribution{
			Fund:       fundAddr,
			Index:      recipients.DistributionIndex,
			Cranker:    cranker,
			CreatedAt:  now,
			Amount:     amount,
			Remaining:  clone(amount),
			Recipients: recipients.Recipients,
		}
	}

	rawDAO, err := toTokenAmount(f.DAOPendingFeeShares, Floor)
	if err != nil {
		return nil, err
	}
	if f.DAOPendingFeeShares, err = checkedSub(f.DAOPendingFeeShares, fromTokenAmount(rawDAO)); err != nil {
		return nil, err
	}
	if rawDAO > 0 {
		if fees.Recipient == (common.Address{}) {
			return nil, ErrInvalidFeeConfig
		}
		if err := e.requireShares(); err != nil {
			return nil, err
		}
		if err := e.shares.Mint(f.ShareMint, fees.Recipient, rawDAO); err != nil {
			return nil, err
		}
	}

	if err := e.state.PutFund(f); err != nil {
		return nil, err
	}
	var recipientAmount *uint256.Int
	if dist != nil {
		if err := e.state.PutFeeRecipients(recipients); err != nil {
			return nil, err
		}
		if err := e.state.PutFeeDistribution(dist); err != nil {
			return nil, err
		}
		recipientAmount = dist.Amount
	}
	index := uint64(0)
	if dist != nil {
		index = dist.Index
	}
	e.emit(newFeesDistributedEvent(fundAddr, index, rawDAO, recipientAmount, cranker))
	return dist, nil
}

// CrankFeeDistribution mints each listed recipient's portion of a
// distribution. Recipients already paid or not part of the snapshot are
// skipped. Only the recorded cranker may crank during the exclusivity
// window. Once every recipient is paid the distribution is deleted and any
// rounding remainder returns to the recipients' pending shares.
func (e *Engine) CrankFeeDistribution(caller, fundAddr common.Address, index uint64, recipients []common.Address) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if err := e.requireShares(); err != nil {
		return 0, err
	}
	f, err := e.loadFund(fundAddr)
	if err != nil {
		return 0, err
	}
	dist, ok, err := e.state.GetFeeDistribution(fundAddr, index)
	if err != nil {
		return 0, err
	}
	if !ok || dist.Fund != fundAddr {
		return 0, ErrInvalidFeeDistribution
	}
	now := e.now()
	if caller != dist.Cranker && now < dist.CreatedAt+CrankerExclusivity {
		return 0, ErrInvalidCranker
	}

	var paid uint64
	for _, target := range recipients {
		if target == (common.Address{}) {
			continue
		}
		for i := range dist.Recipients {
			entry := &dist.Recipients[i]
			if entry.Recipient != target {
				continue
			}
			share, err := mulDiv(dist.Amount, u64(entry.Portion), one, Floor)
			if err != nil {
				return 0, err
			}
			raw, err := toTokenAmount(share, Floor)
			if err != nil {
				return 0, err
			}
			if raw > 0 {
				if err := e.shares.Mint(f.ShareMint, target, raw); err != nil {
					return 0, err
				}
			}
			scaled := fromTokenAmount(raw)
			if dist.Remaining, err = checkedSub(dist.Remaining, scaled); err != nil {
				return 0, err
			}
			if f.RecipientsToBeMinted, err = checkedSub(f.RecipientsToBeMinted, scaled); err != nil {
				return 0, err
			}
			sum := paid + raw
			if sum < paid {
				return 0, ErrMathOverflow
			}
			paid = sum
			*entry = FeeRecipient{}
			break
		}
	}

	complete := !dist.Outstanding()
	if complete {
		if f.RecipientsToBeMinted, err = checkedSub(f.RecipientsToBeMinted, dist.Remaining); err != nil {
			return 0, err
		}
		if f.RecipientsPendingFeeShares, err = checkedAdd(f.RecipientsPendingFeeShares, dist.Remaining); err != nil {
			return 0, err
		}
		dist.Remaining = new(uint256.Int)
		if err := e.state.DeleteFeeDistribution(fundAddr, index); err != nil {
			return 0, err
		}
	} else if err := e.state.PutFeeDistribution(dist); err != nil {
		return 0, err
	}
	if err := e.state.PutFund(f); err != nil {
		return 0, err
	}
	e.emit(newDistributionCrankedEvent(EventTypeFeeDistributionCranked, dist, paid))
	if complete {
		e.emit(newDistributionCrankedEvent(EventTypeFeeDistributionComplete, dist, paid))
	}
	return paid, nil
}

// FeeRecipients returns the configured recipient list.
func (e *Engine) FeeRecipients(fundAddr common.Address) (*FeeRecipients, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	r, ok, err := e.state.GetFeeRecipients(fundAddr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &FeeRecipients{Fund: fundAddr}, nil
	}
	return r, nil
}

// FeeDistribution returns an outstanding distribution.
func (e *Engine) FeeDistribution(fundAddr common.Address, index uint64) (*FeeDistribution, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	d, ok, err := e.state.GetFeeDistribution(fundAddr, index)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidFeeDistribution
	}
	return d, nil
}

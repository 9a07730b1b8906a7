package fund

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Storage is the RLP key/value surface the fund state is persisted through.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// StateStore maps fund records onto deterministic keys.
type StateStore struct {
	store Storage
}

// NewStateStore wraps a KV storage backend.
func NewStateStore(store Storage) *StateStore { return &StateStore{store: store} }

func (s *StateStore) get(key []byte, out interface{}) (bool, error) {
	if s == nil || s.store == nil {
		return false, errNilState
	}
	return s.store.KVGet(key, out)
}

func (s *StateStore) put(key []byte, value interface{}) error {
	if s == nil || s.store == nil {
		return errNilState
	}
	return s.store.KVPut(key, value)
}

func (s *StateStore) GetFund(addr common.Address) (*Fund, bool, error) {
	var f Fund
	ok, err := s.get(fundKey(addr), &f)
	if err != nil || !ok {
		return nil, ok, err
	}
	f.normalize()
	return &f, true, nil
}

func (s *StateStore) PutFund(f *Fund) error {
	if f == nil {
		return fmt.Errorf("fund state: nil fund")
	}
	f.normalize()
	return s.put(fundKey(f.Address), f)
}

func (s *StateStore) GetActor(fund, authority common.Address) (*Actor, bool, error) {
	var a Actor
	ok, err := s.get(actorKey(fund, authority), &a)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &a, true, nil
}

func (s *StateStore) PutActor(a *Actor) error {
	if a == nil {
		return fmt.Errorf("fund state: nil actor")
	}
	return s.put(actorKey(a.Fund, a.Authority), a)
}

func (s *StateStore) DeleteActor(fund, authority common.Address) error {
	if s == nil || s.store == nil {
		return errNilState
	}
	return s.store.KVDelete(actorKey(fund, authority))
}

func (s *StateStore) GetBasket(fund common.Address) (*Basket, bool, error) {
	var b Basket
	ok, err := s.get(basketKey(fund), &b)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &b, true, nil
}

func (s *StateStore) PutBasket(b *Basket) error {
	if b == nil {
		return fmt.Errorf("fund state: nil basket")
	}
	return s.put(basketKey(b.Fund), b)
}

func (s *StateStore) GetPendingBasket(fund, owner common.Address) (*PendingBasket, bool, error) {
	var p PendingBasket
	ok, err := s.get(pendingKey(fund, owner), &p)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &p, true, nil
}

func (s *StateStore) PutPendingBasket(p *PendingBasket) error {
	if p == nil {
		return fmt.Errorf("fund state: nil pending basket")
	}
	return s.put(pendingKey(p.Fund, p.Owner), p)
}

func (s *StateStore) GetRebalance(fund common.Address) (*Rebalance, bool, error) {
	var r Rebalance
	ok, err := s.get(rebalanceKey(fund), &r)
	if err != nil || !ok {
		return nil, ok, err
	}
	r.normalize()
	return &r, true, nil
}

func (s *StateStore) PutRebalance(r *Rebalance) error {
	if r == nil {
		return fmt.Errorf("fund state: nil rebalance")
	}
	r.normalize()
	return s.put(rebalanceKey(r.Fund), r)
}

func (s *StateStore) GetAuction(fund common.Address, id uint64) (*Auction, bool, error) {
	var a Auction
	ok, err := s.get(auctionKey(fund, id), &a)
	if err != nil || !ok {
		return nil, ok, err
	}
	a.normalize()
	return &a, true, nil
}

func (s *StateStore) PutAuction(a *Auction) error {
	if a == nil {
		return fmt.Errorf("fund state: nil auction")
	}
	a.normalize()
	return s.put(auctionKey(a.Fund, a.ID), a)
}

func (s *StateStore) GetAuctionEnds(fund common.Address, nonce uint64, pair Pair) (*AuctionEnds, bool, error) {
	var e AuctionEnds
	ok, err := s.get(auctionEndsKey(fund, nonce, pair), &e)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &e, true, nil
}

func (s *StateStore) PutAuctionEnds(e *AuctionEnds) error {
	if e == nil {
		return fmt.Errorf("fund state: nil auction ends")
	}
	return s.put(auctionEndsKey(e.Fund, e.Nonce, Pair{Sell: e.Token1, Buy: e.Token2}), e)
}

func (s *StateStore) GetFeeRecipients(fund common.Address) (*FeeRecipients, bool, error) {
	var r FeeRecipients
	ok, err := s.get(feeRecipientsKey(fund), &r)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &r, true, nil
}

func (s *StateStore) PutFeeRecipients(r *FeeRecipients) error {
	if r == nil {
		return fmt.Errorf("fund state: nil fee recipients")
	}
	return s.put(feeRecipientsKey(r.Fund), r)
}

func (s *StateStore) GetFeeDistribution(fund common.Address, index uint64) (*FeeDistribution, bool, error) {
	var d FeeDistribution
	ok, err := s.get(feeDistributionKey(fund, index), &d)
	if err != nil || !ok {
		return nil, ok, err
	}
	d.Amount = orZero(d.Amount)
	d.Remaining = orZero(d.Remaining)
	return &d, true, nil
}

func (s *StateStore) PutFeeDistribution(d *FeeDistribution) error {
	if d == nil {
		return fmt.Errorf("fund state: nil fee distribution")
	}
	d.Amount = orZero(d.Amount)
	d.Remaining = orZero(d.Remaining)
	return s.put(feeDistributionKey(d.Fund, d.Index), d)
}

func (s *StateStore) DeleteFeeDistribution(fund common.Address, index uint64) error {
	if s == nil || s.store == nil {
		return errNilState
	}
	return s.store.KVDelete(feeDistributionKey(fund, index))
}

// Package registry loads the governance settings fundd hands to the fund
// engine: DAO fee terms, the token whitelist and externally granted roles.
package registry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"fundchain/crypto"
	"fundchain/native/fund"
)

// File mirrors the TOML document.
type File struct {
	DAO    FeeTerms   `toml:"dao"`
	Funds  []FundFees `toml:"funds"`
	Tokens TokenList  `toml:"tokens"`
	Roles  []RoleRule `toml:"roles"`
}

// FeeTerms is the DAO share of fees. Floor is an annual decimal rate.
type FeeTerms struct {
	Recipient   string `toml:"recipient"`
	Numerator   uint64 `toml:"numerator"`
	Denominator uint64 `toml:"denominator"`
	Floor       string `toml:"floor"`
}

// FundFees overrides the DAO terms for a single fund.
type FundFees struct {
	Address string `toml:"address"`
	FeeTerms
}

// TokenList names the mints allowed into baskets. An empty list allows all.
type TokenList struct {
	Supported []string `toml:"supported"`
}

// RoleRule grants roles to an identity on one fund, or on every fund when
// Fund is empty.
type RoleRule struct {
	Fund     string   `toml:"fund"`
	Identity string   `toml:"identity"`
	Roles    []string `toml:"roles"`
}

type roleKey struct {
	fund     common.Address
	identity common.Address
}

type snapshot struct {
	dao       fund.FeeDetails
	overrides map[common.Address]fund.FeeDetails
	tokens    map[common.Address]struct{}
	roles     map[roleKey]fund.Role
}

// Registry serves fee, whitelist and role lookups from the loaded file. It is
// safe for concurrent use and may be reloaded in place.
type Registry struct {
	mu   sync.RWMutex
	snap snapshot
}

// Load parses the TOML file at path.
func Load(path string) (*Registry, error) {
	var file File
	meta, err := toml.DecodeFile(path, &file)
	if err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("registry: unknown key %q", undecoded[0].String())
	}
	return New(file)
}

// New builds a registry from an already decoded file.
func New(file File) (*Registry, error) {
	snap, err := compile(file)
	if err != nil {
		return nil, err
	}
	return &Registry{snap: snap}, nil
}

// Reload replaces the registry contents with the file at path. The previous
// contents stay in place when the file is invalid.
func (r *Registry) Reload(path string) error {
	next, err := Load(path)
	if err != nil {
		return err
	}
	next.mu.RLock()
	snap := next.snap
	next.mu.RUnlock()
	r.mu.Lock()
	r.snap = snap
	r.mu.Unlock()
	return nil
}

// FeeDetails implements fund.FeeSchedule.
func (r *Registry) FeeDetails(addr common.Address) (fund.FeeDetails, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if details, ok := r.snap.overrides[addr]; ok {
		return copyDetails(details), nil
	}
	return copyDetails(r.snap.dao), nil
}

// Supported implements fund.TokenWhitelist.
func (r *Registry) Supported(token common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.snap.tokens) == 0 {
		return true
	}
	_, ok := r.snap.tokens[token]
	return ok
}

// Roles implements fund.RoleLookup.
func (r *Registry) Roles(addr, identity common.Address) (fund.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roles := r.snap.roles[roleKey{fund: addr, identity: identity}]
	roles |= r.snap.roles[roleKey{identity: identity}]
	return roles, nil
}

// DAORecipient returns the default DAO fee recipient.
func (r *Registry) DAORecipient() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap.dao.Recipient
}

func compile(file File) (snapshot, error) {
	snap := snapshot{
		overrides: make(map[common.Address]fund.FeeDetails),
		tokens:    make(map[common.Address]struct{}),
		roles:     make(map[roleKey]fund.Role),
	}
	dao, err := file.DAO.details()
	if err != nil {
		return snap, fmt.Errorf("registry: dao: %w", err)
	}
	snap.dao = dao
	for i, entry := range file.Funds {
		addr, err := crypto.ParseAddress(entry.Address)
		if err != nil {
			return snap, fmt.Errorf("registry: funds[%d].address: %w", i, err)
		}
		terms := entry.FeeTerms
		if strings.TrimSpace(terms.Recipient) == "" {
			terms.Recipient = file.DAO.Recipient
		}
		details, err := terms.details()
		if err != nil {
			return snap, fmt.Errorf("registry: funds[%d]: %w", i, err)
		}
		if _, dup := snap.overrides[addr]; dup {
			return snap, fmt.Errorf("registry: funds[%d]: duplicate fund %s", i, entry.Address)
		}
		snap.overrides[addr] = details
	}
	for i, raw := range file.Tokens.Supported {
		token, err := crypto.ParseAddress(raw)
		if err != nil {
			return snap, fmt.Errorf("registry: tokens.supported[%d]: %w", i, err)
		}
		snap.tokens[token] = struct{}{}
	}
	for i, rule := range file.Roles {
		var key roleKey
		if strings.TrimSpace(rule.Fund) != "" {
			if key.fund, err = crypto.ParseAddress(rule.Fund); err != nil {
				return snap, fmt.Errorf("registry: roles[%d].fund: %w", i, err)
			}
		}
		if key.identity, err = crypto.ParseAddress(rule.Identity); err != nil {
			return snap, fmt.Errorf("registry: roles[%d].identity: %w", i, err)
		}
		for _, name := range rule.Roles {
			role, err := ParseRole(name)
			if err != nil {
				return snap, fmt.Errorf("registry: roles[%d]: %w", i, err)
			}
			snap.roles[key] |= role
		}
	}
	return snap, nil
}

func (t FeeTerms) details() (fund.FeeDetails, error) {
	var details fund.FeeDetails
	if strings.TrimSpace(t.Recipient) != "" {
		recipient, err := crypto.ParseAddress(t.Recipient)
		if err != nil {
			return details, fmt.Errorf("recipient: %w", err)
		}
		details.Recipient = recipient
	}
	denominator := t.Denominator
	if denominator == 0 {
		denominator = 1
	}
	details.Numerator = uint256.NewInt(t.Numerator)
	details.Denominator = uint256.NewInt(denominator)
	details.Floor = new(uint256.Int)
	if strings.TrimSpace(t.Floor) != "" {
		floor, err := fund.ParseD18(t.Floor)
		if err != nil {
			return details, fmt.Errorf("floor: %w", err)
		}
		details.Floor = floor
	}
	if err := fund.ValidateFeeDetails(details); err != nil {
		return details, err
	}
	if details.Recipient == (common.Address{}) && t.Numerator > 0 {
		return details, fmt.Errorf("recipient required when numerator is set")
	}
	return details, nil
}

// ParseRole maps a role name such as "auction_launcher" to its bit.
func ParseRole(name string) (fund.Role, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "owner":
		return fund.RoleOwner, nil
	case "rebalance_manager":
		return fund.RoleRebalanceManager, nil
	case "auction_launcher":
		return fund.RoleAuctionLauncher, nil
	case "brand_manager":
		return fund.RoleBrandManager, nil
	default:
		return 0, fmt.Errorf("unknown role %q", name)
	}
}

func copyDetails(d fund.FeeDetails) fund.FeeDetails {
	out := fund.FeeDetails{Recipient: d.Recipient}
	if d.Numerator != nil {
		out.Numerator = new(uint256.Int).Set(d.Numerator)
	}
	if d.Denominator != nil {
		out.Denominator = new(uint256.Int).Set(d.Denominator)
	}
	if d.Floor != nil {
		out.Floor = new(uint256.Int).Set(d.Floor)
	}
	return out
}

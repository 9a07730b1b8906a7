package fund

import "github.com/ethereum/go-ethereum/common"

// Update rebuilds the recipient list: existing entries not named in remove are
// kept in order, then add entries not named in remove are appended. The
// result must hold no duplicate recipient and its portions must sum to one.
func (r *FeeRecipients) Update(add []FeeRecipient, remove []common.Address) error {
	removed := make(map[common.Address]struct{}, len(remove))
	for _, addr := range remove {
		removed[addr] = struct{}{}
	}
	var next [MaxFeeRecipients]FeeRecipient
	n := 0
	for _, existing := range r.Recipients {
		if existing.Recipient == (common.Address{}) {
			continue
		}
		if _, ok := removed[existing.Recipient]; ok {
			continue
		}
		next[n] = existing
		n++
	}
	for _, candidate := range add {
		if _, ok := removed[candidate.Recipient]; ok {
			continue
		}
		if n >= MaxFeeRecipients {
			return ErrInvalidFeeRecipientCount
		}
		next[n] = candidate
		n++
	}
	updated := *r
	updated.Recipients = next
	if err := updated.Validate(); err != nil {
		return err
	}
	*r = updated
	return nil
}

// Validate checks that portions sum to exactly one and that no non-empty
// recipient appears twice. Empty slots must carry no portion. An empty list
// is valid and routes every fee share to the DAO.
func (r *FeeRecipients) Validate() error {
	for _, entry := range r.Recipients {
		if entry.Recipient == (common.Address{}) && entry.Portion != 0 {
			return ErrInvalidFeeRecipientPortion
		}
	}
	if r.Empty() {
		return nil
	}
	var total uint64
	seen := make(map[common.Address]struct{}, MaxFeeRecipients)
	for _, entry := range r.Recipients {
		sum := total + entry.Portion
		if sum < total {
			return ErrInvalidFeeRecipientPortion
		}
		total = sum
		if entry.Recipient == (common.Address{}) {
			continue
		}
		if _, dup := seen[entry.Recipient]; dup {
			return ErrInvalidFeeRecipientContainsDuplicate
		}
		seen[entry.Recipient] = struct{}{}
	}
	if total != ScaledOne {
		return ErrInvalidFeeRecipientPortion
	}
	return nil
}

// Empty reports whether no recipient is configured.
func (r *FeeRecipients) Empty() bool {
	for _, entry := range r.Recipients {
		if entry.Recipient != (common.Address{}) {
			return false
		}
	}
	return true
}

// Active returns the configured recipients in list order.
func (r *FeeRecipients) Active() []FeeRecipient {
	var out []FeeRecipient
	for _, entry := range r.Recipients {
		if entry.Recipient != (common.Address{}) {
			out = append(out, entry)
		}
	}
	return out
}

// Outstanding reports whether any recipient of the distribution is unpaid.
func (d *FeeDistribution) Outstanding() bool {
	for _, entry := range d.Recipients {
		if entry.Recipient != (common.Address{}) {
			return true
		}
	}
	return false
}

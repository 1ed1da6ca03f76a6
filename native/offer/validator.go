package offer

import (
	"fmt"
	"math/big"
)

// Pre-condition checks. Everything here is read-only against the store and
// ledger; any failure aborts the operation before the first mutation.

func validateDeadline(expiresAt, now int64) error {
	if expiresAt == 0 {
		return nil
	}
	if expiresAt <= now {
		return fmt.Errorf("offer: expiry %d not after %d", expiresAt, now)
	}
	return nil
}

func (e *Engine) ensureBalance(addr [20]byte, asset string, amount *big.Int) error {
	balance, err := e.balanceOf(addr, asset)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// authorizeAccept resolves the kind-specific acceptance predicate. A maker can
// never settle its own top; direct and bound chains admit only the designated
// counterparty, open public tops admit anyone else.
func authorizeAccept(top *Offer, caller [20]byte) error {
	if caller == top.Maker {
		return ErrUnauthorized
	}
	switch top.Kind {
	case KindDirect:
		if caller != top.Counterparty {
			return ErrUnauthorized
		}
	case KindPublicSell, KindPublicBuy:
		if !top.Open() && caller != top.Counterparty {
			return ErrUnauthorized
		}
	default:
		return ErrUnauthorized
	}
	return nil
}

// authorizeCounter admits the top's counterparty (or, for an open public top,
// any party except the maker, which binds the chain to that party).
func authorizeCounter(top *Offer, caller [20]byte) error {
	if caller == top.Maker {
		return ErrUnauthorized
	}
	if top.Open() {
		return nil
	}
	if caller != top.Counterparty {
		return ErrUnauthorized
	}
	return nil
}

// authorizeDecline admits only a designated counterparty; an open public top
// has nobody entitled to decline it.
func authorizeDecline(top *Offer, caller [20]byte) error {
	if top.Open() {
		return ErrUnauthorized
	}
	if caller != top.Counterparty {
		return ErrUnauthorized
	}
	return nil
}

func authorizeCancel(top *Offer, caller [20]byte) error {
	if caller != top.Maker {
		return ErrUnauthorized
	}
	return nil
}

package types

import "math/big"

// Account tracks the ledger balances for a single party. Balances are stored
// in integral base units per asset.
type Account struct {
	Nonce        uint64
	BalanceToken *big.Int
	BalanceCoin  *big.Int
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{BalanceToken: big.NewInt(0), BalanceCoin: big.NewInt(0)}
	}
	clone := &Account{Nonce: a.Nonce, BalanceToken: big.NewInt(0), BalanceCoin: big.NewInt(0)}
	if a.BalanceToken != nil {
		clone.BalanceToken = new(big.Int).Set(a.BalanceToken)
	}
	if a.BalanceCoin != nil {
		clone.BalanceCoin = new(big.Int).Set(a.BalanceCoin)
	}
	return clone
}

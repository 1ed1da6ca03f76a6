// Package state provides the authoritative offer store, escrow bookkeeping
// and ledger accounts behind an explicit handle. Every engine instance is
// bound to one State; multiple isolated instances can coexist, which keeps
// the core testable without ambient singletons.
package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"math/big"
	"sort"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"otcswap/core/types"
	"otcswap/native/offer"
	"otcswap/observability/metrics"
	"otcswap/storage"
)

var (
	keyPrefixOffer   = []byte("o/")
	keyPrefixAccount = []byte("a/")
	keyPrefixEscrow  = []byte("e/")
	keyPrefixTop     = []byte("t/")
	keySeq           = []byte("meta/seq")
)

// vaultAddress is the engine-owned account holding every escrowed leg. It is
// derived deterministically and is never a party address.
var vaultAddress = func() [20]byte {
	var addr [20]byte
	hash := ethcrypto.Keccak256([]byte("otcswap/escrow-vault"))
	copy(addr[:], hash[12:])
	return addr
}()

// State is an in-memory view of offers, chain tops, escrow records and
// accounts with optional write-through persistence to a key-value database.
type State struct {
	mu       sync.RWMutex
	db       storage.Database
	seq      uint64
	offers   map[[32]byte]*offer.Offer
	order    [][32]byte
	tops     map[[32]byte][32]byte
	escrows  map[[32]byte]*offer.EscrowRecord
	accounts map[[20]byte]*types.Account
}

// New returns an empty, ephemeral state.
func New() *State {
	return &State{
		offers:   make(map[[32]byte]*offer.Offer),
		tops:     make(map[[32]byte][32]byte),
		escrows:  make(map[[32]byte]*offer.EscrowRecord),
		accounts: make(map[[20]byte]*types.Account),
	}
}

// Open loads the persisted state from the supplied database and keeps writing
// every mutation through to it.
func Open(db storage.Database) (*State, error) {
	s := New()
	s.db = db
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("state: load: %w", err)
	}
	return s, nil
}

func (s *State) load() error {
	if raw, err := s.db.Get(keySeq); err == nil {
		if len(raw) != 8 {
			return fmt.Errorf("malformed sequence record")
		}
		s.seq = binary.BigEndian.Uint64(raw)
	} else if !errors.Is(err, storage.ErrKeyNotFound) {
		return err
	}
	if err := s.db.Iterate(keyPrefixOffer, func(_, value []byte) error {
		o, err := decodeOffer(value)
		if err != nil {
			return err
		}
		s.offers[o.ID] = o
		return nil
	}); err != nil {
		return err
	}
	s.order = make([][32]byte, 0, len(s.offers))
	for id := range s.offers {
		s.order = append(s.order, id)
	}
	sort.Slice(s.order, func(i, j int) bool {
		return s.offers[s.order[i]].Seq < s.offers[s.order[j]].Seq
	})
	if err := s.db.Iterate(keyPrefixEscrow, func(_, value []byte) error {
		rec, err := decodeEscrow(value)
		if err != nil {
			return err
		}
		s.escrows[rec.Root] = rec
		metrics.Offers().AdjustEscrowLocked(rec.Asset, rec.Amount)
		return nil
	}); err != nil {
		return err
	}
	if err := s.db.Iterate(keyPrefixTop, func(key, value []byte) error {
		if len(key) != len(keyPrefixTop)+32 || len(value) != 32 {
			return fmt.Errorf("malformed chain top record")
		}
		var root, top [32]byte
		copy(root[:], key[len(keyPrefixTop):])
		copy(top[:], value)
		s.tops[root] = top
		return nil
	}); err != nil {
		return err
	}
	return s.db.Iterate(keyPrefixAccount, func(key, value []byte) error {
		if len(key) != len(keyPrefixAccount)+20 {
			return fmt.Errorf("malformed account record")
		}
		var addr [20]byte
		copy(addr[:], key[len(keyPrefixAccount):])
		acc, err := decodeAccount(value)
		if err != nil {
			return err
		}
		s.accounts[addr] = acc
		return nil
	})
}

// NextSeq issues the next creation sequence number.
func (s *State) NextSeq() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if s.db != nil {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], s.seq)
		if err := s.db.Put(keySeq, buf[:]); err != nil {
			s.seq--
			return 0, err
		}
	}
	return s.seq, nil
}

// OfferGet returns a clone of the stored offer.
func (s *State) OfferGet(id [32]byte) (*offer.Offer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.offers[id]
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

// OfferPut is the sole offer mutation path. It compares the stored version
// against expectedVersion (0 creates) and commits the clone with the version
// bumped; a mismatch fails with offer.ErrVersionConflict and writes nothing.
func (s *State) OfferPut(o *offer.Offer, expectedVersion uint64) error {
	if o == nil {
		return fmt.Errorf("state: nil offer")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.offers[o.ID]
	if expectedVersion == 0 {
		if ok {
			return offer.ErrVersionConflict
		}
	} else {
		if !ok {
			return offer.ErrNotFound
		}
		if existing.Version != expectedVersion {
			return offer.ErrVersionConflict
		}
	}
	stored := o.Clone()
	stored.Version = expectedVersion + 1
	if s.db != nil {
		encoded, err := encodeOffer(stored)
		if err != nil {
			return err
		}
		if err := s.db.Put(offerKey(stored.ID), encoded); err != nil {
			return err
		}
	}
	s.offers[stored.ID] = stored
	if !ok {
		s.order = append(s.order, stored.ID)
	}
	return nil
}

// Offers iterates stored offers in creation-sequence order, yielding clones.
func (s *State) Offers() iter.Seq[*offer.Offer] {
	return func(yield func(*offer.Offer) bool) {
		s.mu.RLock()
		ids := make([][32]byte, len(s.order))
		copy(ids, s.order)
		s.mu.RUnlock()
		for _, id := range ids {
			o, ok := s.OfferGet(id)
			if !ok {
				continue
			}
			if !yield(o) {
				return
			}
		}
	}
}

// ChainTopGet returns the cached actionable top for a chain root.
func (s *State) ChainTopGet(root [32]byte) ([32]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	top, ok := s.tops[root]
	return top, ok
}

// ChainTopSet records the actionable top for a chain root.
func (s *State) ChainTopSet(root, top [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		if err := s.db.Put(topKey(root), append([]byte(nil), top[:]...)); err != nil {
			return err
		}
	}
	s.tops[root] = top
	return nil
}

// EscrowGet returns a clone of the chain's escrow record.
func (s *State) EscrowGet(root [32]byte) (*offer.EscrowRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.escrows[root]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// EscrowPut stores the chain's escrow record.
func (s *State) EscrowPut(rec *offer.EscrowRecord) error {
	if rec == nil {
		return fmt.Errorf("state: nil escrow record")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := rec.Clone()
	if s.db != nil {
		encoded, err := encodeEscrow(stored)
		if err != nil {
			return err
		}
		if err := s.db.Put(escrowKey(stored.Root), encoded); err != nil {
			return err
		}
	}
	delta := new(big.Int).Set(stored.Amount)
	if previous, ok := s.escrows[stored.Root]; ok {
		delta.Sub(delta, previous.Amount)
	}
	s.escrows[stored.Root] = stored
	metrics.Offers().AdjustEscrowLocked(stored.Asset, delta)
	return nil
}

// EscrowDelete destroys the chain's escrow record.
func (s *State) EscrowDelete(root [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		if err := s.db.Delete(escrowKey(root)); err != nil {
			return err
		}
	}
	if previous, ok := s.escrows[root]; ok {
		metrics.Offers().AdjustEscrowLocked(previous.Asset, new(big.Int).Neg(previous.Amount))
	}
	delete(s.escrows, root)
	return nil
}

// VaultAddress returns the engine-owned escrow vault account.
func (s *State) VaultAddress() [20]byte { return vaultAddress }

// GetAccount returns a clone of the ledger account, zero-valued when absent.
func (s *State) GetAccount(addr [20]byte) (*types.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[addr].Clone(), nil
}

// PutAccount stores the ledger account.
func (s *State) PutAccount(addr [20]byte, acc *types.Account) error {
	if acc == nil {
		return fmt.Errorf("state: nil account")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := acc.Clone()
	if s.db != nil {
		encoded, err := encodeAccount(stored)
		if err != nil {
			return err
		}
		if err := s.db.Put(accountKey(addr), encoded); err != nil {
			return err
		}
	}
	s.accounts[addr] = stored
	return nil
}

// Credit adds funds to an account. It backs faucet/deposit flows and tests;
// the engine itself only ever moves existing balances.
func (s *State) Credit(addr [20]byte, asset string, amount *big.Int) error {
	normalized, err := offer.NormalizeAsset(asset)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: credit amount must be non-negative")
	}
	acc, err := s.GetAccount(addr)
	if err != nil {
		return err
	}
	switch normalized {
	case offer.AssetToken:
		acc.BalanceToken = new(big.Int).Add(acc.BalanceToken, amount)
	case offer.AssetCoin:
		acc.BalanceCoin = new(big.Int).Add(acc.BalanceCoin, amount)
	}
	return s.PutAccount(addr, acc)
}

// Balance returns the account balance for an asset.
func (s *State) Balance(addr [20]byte, asset string) (*big.Int, error) {
	normalized, err := offer.NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	acc, err := s.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	switch normalized {
	case offer.AssetToken:
		return acc.BalanceToken, nil
	default:
		return acc.BalanceCoin, nil
	}
}

func offerKey(id [32]byte) []byte   { return append(append([]byte(nil), keyPrefixOffer...), id[:]...) }
func escrowKey(id [32]byte) []byte  { return append(append([]byte(nil), keyPrefixEscrow...), id[:]...) }
func topKey(id [32]byte) []byte     { return append(append([]byte(nil), keyPrefixTop...), id[:]...) }
func accountKey(a [20]byte) []byte  { return append(append([]byte(nil), keyPrefixAccount...), a[:]...) }

package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"otcswap/core/types"
	"otcswap/native/offer"
)

// RLP wire forms. RLP has no signed integers, so unix timestamps are stored
// as uint64; the engine rejects negative expiries before they reach here.

type storedOffer struct {
	ID           [32]byte
	Kind         uint8
	Maker        [20]byte
	Counterparty [20]byte
	LegAAsset    string
	LegAAmount   *big.Int
	LegBAsset    string
	LegBAmount   *big.Int
	Status       uint8
	ExpiresAt    uint64
	Parent       [32]byte
	Root         [32]byte
	Depth        uint32
	CreatedAt    uint64
	Seq          uint64
	Version      uint64
}

type storedEscrow struct {
	Root   [32]byte
	Funder [20]byte
	Asset  string
	Amount *big.Int
}

type storedAccount struct {
	Nonce        uint64
	BalanceToken *big.Int
	BalanceCoin  *big.Int
}

func encodeOffer(o *offer.Offer) ([]byte, error) {
	if o == nil {
		return nil, fmt.Errorf("nil offer")
	}
	if o.ExpiresAt < 0 || o.CreatedAt < 0 {
		return nil, fmt.Errorf("negative timestamp on offer %x", o.ID)
	}
	record := storedOffer{
		ID:           o.ID,
		Kind:         uint8(o.Kind),
		Maker:        o.Maker,
		Counterparty: o.Counterparty,
		LegAAsset:    o.LegA.Asset,
		LegAAmount:   nonNil(o.LegA.Amount),
		LegBAsset:    o.LegB.Asset,
		LegBAmount:   nonNil(o.LegB.Amount),
		Status:       uint8(o.Status),
		ExpiresAt:    uint64(o.ExpiresAt),
		Parent:       o.Parent,
		Root:         o.Root,
		Depth:        o.Depth,
		CreatedAt:    uint64(o.CreatedAt),
		Seq:          o.Seq,
		Version:      o.Version,
	}
	return rlp.EncodeToBytes(&record)
}

func decodeOffer(raw []byte) (*offer.Offer, error) {
	var record storedOffer
	if err := rlp.DecodeBytes(raw, &record); err != nil {
		return nil, err
	}
	o := &offer.Offer{
		ID:           record.ID,
		Kind:         offer.Kind(record.Kind),
		Maker:        record.Maker,
		Counterparty: record.Counterparty,
		LegA:         offer.Leg{Asset: record.LegAAsset, Amount: nonNil(record.LegAAmount)},
		LegB:         offer.Leg{Asset: record.LegBAsset, Amount: nonNil(record.LegBAmount)},
		Status:       offer.Status(record.Status),
		ExpiresAt:    int64(record.ExpiresAt),
		Parent:       record.Parent,
		Root:         record.Root,
		Depth:        record.Depth,
		CreatedAt:    int64(record.CreatedAt),
		Seq:          record.Seq,
		Version:      record.Version,
	}
	if !o.Kind.Valid() {
		return nil, fmt.Errorf("invalid offer kind %d", record.Kind)
	}
	if !o.Status.Valid() {
		return nil, fmt.Errorf("invalid offer status %d", record.Status)
	}
	return o, nil
}

func encodeEscrow(rec *offer.EscrowRecord) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("nil escrow record")
	}
	record := storedEscrow{
		Root:   rec.Root,
		Funder: rec.Funder,
		Asset:  rec.Asset,
		Amount: nonNil(rec.Amount),
	}
	return rlp.EncodeToBytes(&record)
}

func decodeEscrow(raw []byte) (*offer.EscrowRecord, error) {
	var record storedEscrow
	if err := rlp.DecodeBytes(raw, &record); err != nil {
		return nil, err
	}
	return &offer.EscrowRecord{
		Root:   record.Root,
		Funder: record.Funder,
		Asset:  record.Asset,
		Amount: nonNil(record.Amount),
	}, nil
}

func encodeAccount(acc *types.Account) ([]byte, error) {
	if acc == nil {
		return nil, fmt.Errorf("nil account")
	}
	record := storedAccount{
		Nonce:        acc.Nonce,
		BalanceToken: nonNil(acc.BalanceToken),
		BalanceCoin:  nonNil(acc.BalanceCoin),
	}
	return rlp.EncodeToBytes(&record)
}

func decodeAccount(raw []byte) (*types.Account, error) {
	var record storedAccount
	if err := rlp.DecodeBytes(raw, &record); err != nil {
		return nil, err
	}
	return &types.Account{
		Nonce:        record.Nonce,
		BalanceToken: nonNil(record.BalanceToken),
		BalanceCoin:  nonNil(record.BalanceCoin),
	}, nil
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

package offer

import (
	"fmt"
	"math"
	"math/big"
	"strings"
)

// Supported asset symbols. AssetToken denotes the fungible token leg, AssetCoin
// the base currency leg.
const (
	AssetToken = "TOKEN"
	AssetCoin  = "COIN"
)

// maxLegAmount bounds every leg and escrow amount to the u64 range.
var maxLegAmount = new(big.Int).SetUint64(math.MaxUint64)

// NormalizeAsset ensures the provided asset symbol matches a supported value
// ("TOKEN" or "COIN") and returns the canonical uppercase form.
func NormalizeAsset(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	switch trimmed {
	case AssetToken, AssetCoin:
		return trimmed, nil
	default:
		return "", fmt.Errorf("unsupported asset: %s", symbol)
	}
}

// Kind distinguishes the offer variants.
type Kind uint8

const (
	KindDirect Kind = iota
	KindPublicSell
	KindPublicBuy
)

// Valid reports whether the kind value is within the supported range.
func (k Kind) Valid() bool {
	switch k {
	case KindDirect, KindPublicSell, KindPublicBuy:
		return true
	default:
		return false
	}
}

func (k Kind) String() string {
	switch k {
	case KindDirect:
		return "direct"
	case KindPublicSell:
		return "public_sell"
	case KindPublicBuy:
		return "public_buy"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Status represents the lifecycle states of an offer record.
type Status uint8

const (
	StatusActive Status = iota
	StatusCountered
	StatusAccepted
	StatusDeclined
	StatusCancelled
	StatusExpired
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCountered, StatusAccepted, StatusDeclined, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusAccepted, StatusDeclined, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCountered:
		return "countered"
	case StatusAccepted:
		return "accepted"
	case StatusDeclined:
		return "declined"
	case StatusCancelled:
		return "cancelled"
	case StatusExpired:
		return "expired"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Leg is one side of a swap: an asset symbol and an amount in base units.
type Leg struct {
	Asset  string
	Amount *big.Int
}

// Clone returns a deep copy of the leg.
func (l Leg) Clone() Leg {
	clone := Leg{Asset: l.Asset, Amount: big.NewInt(0)}
	if l.Amount != nil {
		clone.Amount = new(big.Int).Set(l.Amount)
	}
	return clone
}

func sanitizeLeg(l Leg) (Leg, error) {
	asset, err := NormalizeAsset(l.Asset)
	if err != nil {
		return Leg{}, err
	}
	if l.Amount == nil || l.Amount.Sign() <= 0 {
		return Leg{}, fmt.Errorf("leg amount must be positive")
	}
	if l.Amount.Cmp(maxLegAmount) > 0 {
		return Leg{}, ErrAmountOverflow
	}
	return Leg{Asset: asset, Amount: new(big.Int).Set(l.Amount)}, nil
}

// Offer captures a single record in a negotiation chain. LegA is always the
// chain-root maker's committed leg and is mirrored by the chain's escrow
// record; LegB is the amount requested from whoever settles. Version increases
// on every mutation and gates compare-and-set writes.
type Offer struct {
	ID           [32]byte
	Kind         Kind
	Maker        [20]byte
	Counterparty [20]byte
	LegA         Leg
	LegB         Leg
	Status       Status
	ExpiresAt    int64
	Parent       [32]byte
	Root         [32]byte
	Depth        uint32
	CreatedAt    int64
	Seq          uint64
	Version      uint64
}

// Clone returns a deep copy of the offer so callers can safely mutate the copy
// without affecting the stored instance.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	clone := *o
	clone.LegA = o.LegA.Clone()
	clone.LegB = o.LegB.Clone()
	return &clone
}

// Open reports whether the offer has no designated counterparty.
func (o *Offer) Open() bool { return o.Counterparty == ([20]byte{}) }

// IsRoot reports whether the offer is the root of its chain.
func (o *Offer) IsRoot() bool { return o.Parent == ([32]byte{}) }

// ExpiredAt reports whether the offer's deadline has elapsed at the supplied
// timestamp. Offers without a deadline never expire.
func (o *Offer) ExpiredAt(now int64) bool {
	return o.ExpiresAt > 0 && now >= o.ExpiresAt
}

// EffectiveStatus returns the status the offer would hold once the supplied
// timestamp is taken into account, without persisting anything.
func (o *Offer) EffectiveStatus(now int64) Status {
	if !o.Status.Terminal() && o.ExpiredAt(now) {
		return StatusExpired
	}
	return o.Status
}

// Sanitize validates and normalises the supplied offer, returning a cloned
// instance with canonical asset casing and non-nil amounts. The function does
// not mutate the original value.
func Sanitize(o *Offer) (*Offer, error) {
	if o == nil {
		return nil, fmt.Errorf("nil offer")
	}
	clone := o.Clone()
	legA, err := sanitizeLeg(clone.LegA)
	if err != nil {
		return nil, fmt.Errorf("leg A: %w", err)
	}
	legB, err := sanitizeLeg(clone.LegB)
	if err != nil {
		return nil, fmt.Errorf("leg B: %w", err)
	}
	if legA.Asset == legB.Asset {
		return nil, fmt.Errorf("legs must use distinct assets")
	}
	clone.LegA = legA
	clone.LegB = legB
	if !clone.Kind.Valid() {
		return nil, fmt.Errorf("invalid offer kind: %d", clone.Kind)
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid offer status: %d", clone.Status)
	}
	switch clone.Kind {
	case KindPublicSell:
		if legA.Asset != AssetToken {
			return nil, fmt.Errorf("public sell must commit %s", AssetToken)
		}
	case KindPublicBuy:
		if legA.Asset != AssetCoin {
			return nil, fmt.Errorf("public buy must commit %s", AssetCoin)
		}
	}
	if clone.Kind == KindDirect && clone.IsRoot() && clone.Open() {
		return nil, fmt.Errorf("direct offer requires a counterparty")
	}
	if clone.Maker == clone.Counterparty && !clone.Open() {
		return nil, fmt.Errorf("maker cannot be its own counterparty")
	}
	if clone.ExpiresAt < 0 {
		return nil, fmt.Errorf("invalid expiry %d", clone.ExpiresAt)
	}
	return clone, nil
}

// EscrowRecord tracks the locked maker leg for one offer chain. Funder is the
// chain-root maker whose assets back the record; Amount always equals the
// current top's LegA amount.
type EscrowRecord struct {
	Root   [32]byte
	Funder [20]byte
	Asset  string
	Amount *big.Int
}

// Clone returns a deep copy of the escrow record.
func (r *EscrowRecord) Clone() *EscrowRecord {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Amount = big.NewInt(0)
	if r.Amount != nil {
		clone.Amount = new(big.Int).Set(r.Amount)
	}
	return &clone
}

// Settlement reports the amounts exchanged when an offer is accepted.
type Settlement struct {
	OfferID [32]byte
	Maker   [20]byte
	Taker   [20]byte
	LegA    Leg
	LegB    Leg
}

package offer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"otcswap/core/events"
	"otcswap/core/types"
)

var (
	errNilState      = errors.New("offer engine: state not configured")
	errEscrowMissing = errors.New("offer engine: escrow record missing for active chain")
)

// DefaultMaxChainDepth bounds counter-offer chains unless overridden.
const DefaultMaxChainDepth uint32 = 16

// EngineState is the narrow view of the store and ledger the engine mutates.
// OfferPut is the sole offer mutation path: it must compare-and-set on the
// stored version (expectedVersion 0 creates) and appear indivisible to all
// concurrent callers.
type EngineState interface {
	NextSeq() (uint64, error)
	OfferGet(id [32]byte) (*Offer, bool)
	OfferPut(o *Offer, expectedVersion uint64) error
	ChainTopGet(root [32]byte) ([32]byte, bool)
	ChainTopSet(root, top [32]byte) error
	EscrowGet(root [32]byte) (*EscrowRecord, bool)
	EscrowPut(rec *EscrowRecord) error
	EscrowDelete(root [32]byte) error
	VaultAddress() [20]byte
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, acc *types.Account) error
}

type offerEvent struct {
	evt *types.Event
}

func (e offerEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e offerEvent) Event() *types.Event { return e.evt }

// Engine owns every offer/escrow transition. Each public operation is a
// single bounded unit of work: all checks run read-only before the first
// mutation, the first write is the version-gated offer put, and the supplied
// timestamp is the only time source. Expiry is discovered lazily when an
// operation touches a stale offer; there is no background sweep.
type Engine struct {
	mu            sync.Mutex
	state         EngineState
	emitter       events.Emitter
	maxChainDepth uint32
}

// NewEngine creates an engine with a no-op emitter and the default chain
// depth limit.
func NewEngine() *Engine {
	return &Engine{
		emitter:       events.NoopEmitter{},
		maxChainDepth: DefaultMaxChainDepth,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state EngineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetMaxChainDepth overrides the counter-offer chain depth limit. Zero resets
// the default.
func (e *Engine) SetMaxChainDepth(depth uint32) {
	if depth == 0 {
		e.maxChainDepth = DefaultMaxChainDepth
		return
	}
	e.maxChainDepth = depth
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(offerEvent{evt: event})
}

func newOfferID(maker [20]byte, seq uint64) [32]byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return ethcrypto.Keccak256Hash(maker[:], buf[:])
}

func (e *Engine) balanceOf(addr [20]byte, asset string) (*big.Int, error) {
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	acc = acc.Clone()
	switch asset {
	case AssetToken:
		return acc.BalanceToken, nil
	case AssetCoin:
		return acc.BalanceCoin, nil
	default:
		return nil, fmt.Errorf("offer: unsupported asset %s", asset)
	}
}

func (e *Engine) transfer(from, to [20]byte, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("offer: negative transfer amount")
	}
	fromAcc, err := e.state.GetAccount(from)
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to)
	if err != nil {
		return err
	}
	fromAcc = fromAcc.Clone()
	toAcc = toAcc.Clone()
	switch asset {
	case AssetToken:
		if fromAcc.BalanceToken.Cmp(amount) < 0 {
			return ErrInsufficientBalance
		}
		fromAcc.BalanceToken = new(big.Int).Sub(fromAcc.BalanceToken, amount)
		toAcc.BalanceToken = new(big.Int).Add(toAcc.BalanceToken, amount)
	case AssetCoin:
		if fromAcc.BalanceCoin.Cmp(amount) < 0 {
			return ErrInsufficientBalance
		}
		fromAcc.BalanceCoin = new(big.Int).Sub(fromAcc.BalanceCoin, amount)
		toAcc.BalanceCoin = new(big.Int).Add(toAcc.BalanceCoin, amount)
	default:
		return fmt.Errorf("offer: unsupported asset %s", asset)
	}
	if err := e.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to, toAcc)
}

// CreateDirectOffer escrows the maker leg and activates a new offer addressed
// to a specific counterparty.
func (e *Engine) CreateDirectOffer(maker, counterparty [20]byte, legA, legB Leg, expiresAt, now int64) (*Offer, error) {
	return e.create(KindDirect, maker, counterparty, legA, legB, expiresAt, now)
}

// CreatePublicOffer escrows the maker leg and activates a new open offer any
// party except the maker may settle. Kind must be KindPublicSell or
// KindPublicBuy.
func (e *Engine) CreatePublicOffer(maker [20]byte, kind Kind, legA, legB Leg, expiresAt, now int64) (*Offer, error) {
	if kind != KindPublicSell && kind != KindPublicBuy {
		return nil, fmt.Errorf("offer: kind %s is not public", kind)
	}
	return e.create(kind, maker, [20]byte{}, legA, legB, expiresAt, now)
}

func (e *Engine) create(kind Kind, maker, counterparty [20]byte, legA, legB Leg, expiresAt, now int64) (*Offer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	draft := &Offer{
		Kind:         kind,
		Maker:        maker,
		Counterparty: counterparty,
		LegA:         legA,
		LegB:         legB,
		Status:       StatusActive,
		ExpiresAt:    expiresAt,
	}
	sanitized, err := Sanitize(draft)
	if err != nil {
		return nil, fmt.Errorf("offer: %w", err)
	}
	if err := validateDeadline(sanitized.ExpiresAt, now); err != nil {
		return nil, err
	}
	if err := e.ensureBalance(maker, sanitized.LegA.Asset, sanitized.LegA.Amount); err != nil {
		return nil, err
	}

	seq, err := e.state.NextSeq()
	if err != nil {
		return nil, err
	}
	sanitized.ID = newOfferID(maker, seq)
	sanitized.Root = sanitized.ID
	sanitized.Seq = seq
	sanitized.CreatedAt = now

	if err := e.state.OfferPut(sanitized, 0); err != nil {
		return nil, err
	}
	if err := e.transfer(maker, e.state.VaultAddress(), sanitized.LegA.Asset, sanitized.LegA.Amount); err != nil {
		return nil, err
	}
	rec := &EscrowRecord{
		Root:   sanitized.ID,
		Funder: maker,
		Asset:  sanitized.LegA.Asset,
		Amount: new(big.Int).Set(sanitized.LegA.Amount),
	}
	if err := e.state.EscrowPut(rec); err != nil {
		return nil, err
	}
	if err := e.state.ChainTopSet(sanitized.ID, sanitized.ID); err != nil {
		return nil, err
	}
	stored, _ := e.state.OfferGet(sanitized.ID)
	e.emit(NewCreatedEvent(stored))
	return stored.Clone(), nil
}

// CreateCounterOffer supersedes the current top of a chain with new terms.
// Nil legs and expiry inherit the parent's values. Amending the escrowed leg
// amount is only lawful from the chain's funder and adjusts the escrow record
// by the signed delta before the counter becomes visible.
func (e *Engine) CreateCounterOffer(caller [20]byte, parentID [32]byte, newLegA, newLegB *Leg, expiresAt *int64, now int64) (*Offer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	parent, rec, err := e.loadTop(parentID)
	if err != nil {
		return nil, err
	}
	if parent.ExpiredAt(now) {
		if err := e.expireLocked(parent, rec); err != nil {
			return nil, err
		}
		return nil, ErrOfferExpired
	}
	if err := authorizeCounter(parent, caller); err != nil {
		return nil, err
	}
	depth := parent.Depth + 1
	if depth > e.maxChainDepth {
		return nil, ErrChainDepthExceeded
	}

	legA := parent.LegA.Clone()
	if newLegA != nil {
		legA = newLegA.Clone()
	}
	legB := parent.LegB.Clone()
	if newLegB != nil {
		legB = newLegB.Clone()
	}
	expiry := parent.ExpiresAt
	if expiresAt != nil {
		expiry = *expiresAt
		if err := validateDeadline(expiry, now); err != nil {
			return nil, err
		}
	}

	draft := &Offer{
		Kind:         parent.Kind,
		Maker:        caller,
		Counterparty: parent.Maker,
		LegA:         legA,
		LegB:         legB,
		Status:       StatusActive,
		ExpiresAt:    expiry,
		Parent:       parent.ID,
		Root:         parent.Root,
		Depth:        depth,
	}
	sanitized, err := Sanitize(draft)
	if err != nil {
		return nil, fmt.Errorf("offer: %w", err)
	}
	if sanitized.LegA.Asset != parent.LegA.Asset || sanitized.LegB.Asset != parent.LegB.Asset {
		return nil, fmt.Errorf("offer: counter cannot change leg assets")
	}

	delta := new(big.Int).Sub(sanitized.LegA.Amount, rec.Amount)
	if delta.Sign() != 0 {
		if caller != rec.Funder {
			return nil, ErrInvalidOwnership
		}
		if delta.Sign() > 0 {
			if err := e.ensureBalance(rec.Funder, rec.Asset, delta); err != nil {
				return nil, err
			}
		}
	}

	seq, err := e.state.NextSeq()
	if err != nil {
		return nil, err
	}
	sanitized.ID = newOfferID(caller, seq)
	sanitized.Seq = seq
	sanitized.CreatedAt = now

	superseded := parent.Clone()
	superseded.Status = StatusCountered
	if err := e.state.OfferPut(superseded, parent.Version); err != nil {
		return nil, err
	}
	if delta.Sign() > 0 {
		if err := e.transfer(rec.Funder, e.state.VaultAddress(), rec.Asset, delta); err != nil {
			return nil, err
		}
	} else if delta.Sign() < 0 {
		if err := e.transfer(e.state.VaultAddress(), rec.Funder, rec.Asset, new(big.Int).Neg(delta)); err != nil {
			return nil, err
		}
	}
	if delta.Sign() != 0 {
		amended := rec.Clone()
		amended.Amount = new(big.Int).Set(sanitized.LegA.Amount)
		if err := e.state.EscrowPut(amended); err != nil {
			return nil, err
		}
	}
	if err := e.state.OfferPut(sanitized, 0); err != nil {
		return nil, err
	}
	if err := e.state.ChainTopSet(parent.Root, sanitized.ID); err != nil {
		return nil, err
	}
	stored, _ := e.state.OfferGet(sanitized.ID)
	e.emit(NewCounteredEvent(superseded, stored))
	return stored.Clone(), nil
}

// Accept settles the chain on the current top's terms: the requested leg B
// moves from the non-funding party to the chain funder, the escrowed leg A is
// released to the non-funding party, and the escrow record is destroyed. The
// transition commits through a single version-gated put, so racing accepters
// observe ErrOfferNotActive or ErrVersionConflict and never a partial
// transfer.
func (e *Engine) Accept(caller [20]byte, id [32]byte, now int64) (*Settlement, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	top, rec, err := e.loadTop(id)
	if err != nil {
		return nil, err
	}
	if top.ExpiredAt(now) {
		if err := e.expireLocked(top, rec); err != nil {
			return nil, err
		}
		return nil, ErrOfferExpired
	}
	if err := authorizeAccept(top, caller); err != nil {
		return nil, err
	}
	taker := e.chainTaker(top, rec, caller)
	if err := e.ensureBalance(taker, top.LegB.Asset, top.LegB.Amount); err != nil {
		return nil, err
	}
	if rec.Amount.Cmp(top.LegA.Amount) != 0 {
		return nil, fmt.Errorf("offer engine: escrow amount diverged from top leg")
	}

	accepted := top.Clone()
	accepted.Status = StatusAccepted
	if err := e.state.OfferPut(accepted, top.Version); err != nil {
		return nil, err
	}
	if err := e.transfer(taker, rec.Funder, top.LegB.Asset, top.LegB.Amount); err != nil {
		return nil, err
	}
	if err := e.transfer(e.state.VaultAddress(), taker, rec.Asset, rec.Amount); err != nil {
		return nil, err
	}
	if err := e.state.EscrowDelete(top.Root); err != nil {
		return nil, err
	}
	stored, _ := e.state.OfferGet(top.ID)
	e.emit(NewAcceptedEvent(stored, taker))
	return &Settlement{
		OfferID: top.ID,
		Maker:   top.Maker,
		Taker:   taker,
		LegA:    top.LegA.Clone(),
		LegB:    top.LegB.Clone(),
	}, nil
}

// Decline rejects the current top from the counterparty side and refunds the
// escrow to the funder.
func (e *Engine) Decline(caller [20]byte, id [32]byte, now int64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	top, rec, err := e.loadTop(id)
	if err != nil {
		return err
	}
	if top.ExpiredAt(now) {
		if err := e.expireLocked(top, rec); err != nil {
			return err
		}
		return ErrOfferExpired
	}
	if err := authorizeDecline(top, caller); err != nil {
		return err
	}
	return e.closeChain(top, rec, StatusDeclined, NewDeclinedEvent)
}

// Cancel withdraws the current top. Only the top's maker may cancel; the
// escrow is refunded in full to the funder.
func (e *Engine) Cancel(caller [20]byte, id [32]byte, now int64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	top, rec, err := e.loadTop(id)
	if err != nil {
		return err
	}
	if top.ExpiredAt(now) {
		if err := e.expireLocked(top, rec); err != nil {
			return err
		}
		return ErrOfferExpired
	}
	if err := authorizeCancel(top, caller); err != nil {
		return err
	}
	return e.closeChain(top, rec, StatusCancelled, NewCancelledEvent)
}

// Expire reclassifies a stale chain as Expired and refunds the escrow to the
// funder. Any party may invoke it. Re-invoking on an already-terminal chain is
// a no-op, not an error; the returned bool reports whether this call performed
// the transition.
func (e *Engine) Expire(id [32]byte, now int64) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.state.OfferGet(id)
	if !ok {
		return false, ErrNotFound
	}
	topID, ok := e.state.ChainTopGet(o.Root)
	if !ok {
		return false, fmt.Errorf("offer engine: chain top missing for %x", o.Root)
	}
	top, ok := e.state.OfferGet(topID)
	if !ok {
		return false, ErrNotFound
	}
	if top.Status.Terminal() {
		return false, nil
	}
	if !top.ExpiredAt(now) {
		return false, ErrNotExpired
	}
	rec, ok := e.state.EscrowGet(top.Root)
	if !ok {
		return false, errEscrowMissing
	}
	if err := e.expireLocked(top, rec); err != nil {
		return false, err
	}
	return true, nil
}

// loadTop resolves the offer, requires it to be the actionable top of its
// chain, and returns it together with the chain's escrow record.
func (e *Engine) loadTop(id [32]byte) (*Offer, *EscrowRecord, error) {
	o, ok := e.state.OfferGet(id)
	if !ok {
		return nil, nil, ErrNotFound
	}
	topID, ok := e.state.ChainTopGet(o.Root)
	if !ok || topID != id {
		return nil, nil, ErrOfferNotActive
	}
	if o.Status != StatusActive {
		return nil, nil, ErrOfferNotActive
	}
	rec, ok := e.state.EscrowGet(o.Root)
	if !ok {
		return nil, nil, errEscrowMissing
	}
	return o, rec, nil
}

// chainTaker returns the party on the non-funding side of the chain: the
// caller when the top belongs to the funder, otherwise the top's maker.
func (e *Engine) chainTaker(top *Offer, rec *EscrowRecord, caller [20]byte) [20]byte {
	if top.Maker == rec.Funder {
		return caller
	}
	return top.Maker
}

func (e *Engine) closeChain(top *Offer, rec *EscrowRecord, status Status, eventFn func(*Offer) *types.Event) error {
	closed := top.Clone()
	closed.Status = status
	if err := e.state.OfferPut(closed, top.Version); err != nil {
		return err
	}
	if err := e.transfer(e.state.VaultAddress(), rec.Funder, rec.Asset, rec.Amount); err != nil {
		return err
	}
	if err := e.state.EscrowDelete(top.Root); err != nil {
		return err
	}
	stored, _ := e.state.OfferGet(top.ID)
	e.emit(eventFn(stored))
	return nil
}

func (e *Engine) expireLocked(top *Offer, rec *EscrowRecord) error {
	return e.closeChain(top, rec, StatusExpired, NewExpiredEvent)
}

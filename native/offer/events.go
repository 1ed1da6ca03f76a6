package offer

import (
	"encoding/hex"
	"strconv"

	"otcswap/core/types"
)

const (
	EventTypeOfferCreated   = "offer.created"
	EventTypeOfferCountered = "offer.countered"
	EventTypeOfferAccepted  = "offer.accepted"
	EventTypeOfferDeclined  = "offer.declined"
	EventTypeOfferCancelled = "offer.cancelled"
	EventTypeOfferExpired   = "offer.expired"
)

// NewCreatedEvent returns the canonical event payload for a newly created
// offer.
func NewCreatedEvent(o *Offer) *types.Event { return newOfferEventPayload(EventTypeOfferCreated, o) }

// NewCounteredEvent returns the canonical event payload emitted when a counter
// supersedes the previous top of a chain.
func NewCounteredEvent(superseded, top *Offer) *types.Event {
	evt := newOfferEventPayload(EventTypeOfferCountered, top)
	if superseded != nil {
		evt.Attributes["supersedes"] = hex.EncodeToString(superseded.ID[:])
	}
	return evt
}

// NewAcceptedEvent returns the canonical event payload for a settled offer.
func NewAcceptedEvent(o *Offer, taker [20]byte) *types.Event {
	evt := newOfferEventPayload(EventTypeOfferAccepted, o)
	evt.Attributes["taker"] = hex.EncodeToString(taker[:])
	return evt
}

// NewDeclinedEvent returns the canonical event payload for a declined offer.
func NewDeclinedEvent(o *Offer) *types.Event { return newOfferEventPayload(EventTypeOfferDeclined, o) }

// NewCancelledEvent returns the canonical event payload for a cancelled offer.
func NewCancelledEvent(o *Offer) *types.Event {
	return newOfferEventPayload(EventTypeOfferCancelled, o)
}

// NewExpiredEvent returns the canonical event payload emitted when a chain
// expires prior to settlement.
func NewExpiredEvent(o *Offer) *types.Event { return newOfferEventPayload(EventTypeOfferExpired, o) }

func newOfferEventPayload(eventType string, o *Offer) *types.Event {
	attrs := make(map[string]string)
	if o == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = hex.EncodeToString(o.ID[:])
	attrs["root"] = hex.EncodeToString(o.Root[:])
	attrs["kind"] = o.Kind.String()
	attrs["status"] = o.Status.String()
	attrs["maker"] = hex.EncodeToString(o.Maker[:])
	if !o.Open() {
		attrs["counterparty"] = hex.EncodeToString(o.Counterparty[:])
	}
	attrs["legAAsset"] = o.LegA.Asset
	attrs["legAAmount"] = o.LegA.Amount.String()
	attrs["legBAsset"] = o.LegB.Asset
	attrs["legBAmount"] = o.LegB.Amount.String()
	attrs["createdAt"] = strconv.FormatInt(o.CreatedAt, 10)
	if o.ExpiresAt > 0 {
		attrs["expiresAt"] = strconv.FormatInt(o.ExpiresAt, 10)
	}
	if !o.IsRoot() {
		attrs["parent"] = hex.EncodeToString(o.Parent[:])
		attrs["depth"] = strconv.FormatUint(uint64(o.Depth), 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

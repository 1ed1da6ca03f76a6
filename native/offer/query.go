package offer

import "iter"

// QueryState is the read-only view of the store consumed by projections.
// Offers iterates stored records in creation-sequence order; implementations
// must yield clones so callers can never reach the stored instances.
type QueryState interface {
	OfferGet(id [32]byte) (*Offer, bool)
	Offers() iter.Seq[*Offer]
}

// Filter narrows a listing. Nil fields match everything. Status matches the
// effective status at the supplied timestamp, so stale-but-unswept offers are
// found under StatusExpired.
type Filter struct {
	Status       *Status
	Maker        *[20]byte
	Counterparty *[20]byte
	Kind         *Kind
}

func (f Filter) matches(o *Offer, now int64) bool {
	if f.Status != nil && o.EffectiveStatus(now) != *f.Status {
		return false
	}
	if f.Maker != nil && o.Maker != *f.Maker {
		return false
	}
	if f.Counterparty != nil && o.Counterparty != *f.Counterparty {
		return false
	}
	if f.Kind != nil && o.Kind != *f.Kind {
		return false
	}
	return true
}

// QueryService serves pure projections over the offer store. It never mutates
// and never triggers the expiry sweep: stale offers are reported with a
// computed Expired status while the stored record stays untouched.
type QueryService struct {
	state QueryState
}

// NewQueryService binds a query service to the supplied state handle.
func NewQueryService(state QueryState) *QueryService {
	return &QueryService{state: state}
}

// GetOffer returns the offer with its effective status at the supplied
// timestamp.
func (q *QueryService) GetOffer(id [32]byte, now int64) (*Offer, error) {
	if q == nil || q.state == nil {
		return nil, errNilState
	}
	o, ok := q.state.OfferGet(id)
	if !ok {
		return nil, ErrNotFound
	}
	clone := o.Clone()
	clone.Status = clone.EffectiveStatus(now)
	return clone, nil
}

// ListOffers returns a lazy, restartable sequence of offers matching the
// filter, ordered by creation sequence.
func (q *QueryService) ListOffers(f Filter, now int64) iter.Seq[*Offer] {
	return func(yield func(*Offer) bool) {
		if q == nil || q.state == nil {
			return
		}
		for o := range q.state.Offers() {
			if !f.matches(o, now) {
				continue
			}
			clone := o.Clone()
			clone.Status = clone.EffectiveStatus(now)
			if !yield(clone) {
				return
			}
		}
	}
}

package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"otcswap/native/offer"
	"otcswap/observability/metrics"
)

const (
	codeOfferInvalidParams       = -32070
	codeOfferNotFound            = -32071
	codeOfferUnauthorized        = -32072
	codeOfferConflict            = -32073
	codeOfferNotActive           = -32074
	codeOfferExpired             = -32075
	codeOfferInsufficientBalance = -32076
	codeOfferAmountOverflow      = -32077
	codeOfferDepthExceeded       = -32078
	codeOfferInternal            = -32079
)

type legParams struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type offerCreateParams struct {
	Maker        string    `json:"maker"`
	Counterparty string    `json:"counterparty,omitempty"`
	Kind         string    `json:"kind"`
	LegA         legParams `json:"legA"`
	LegB         legParams `json:"legB"`
	ExpiresAt    int64     `json:"expiresAt,omitempty"`
	Now          *int64    `json:"now,omitempty"`
}

type offerCounterParams struct {
	Caller    string     `json:"caller"`
	Parent    string     `json:"parent"`
	LegA      *legParams `json:"legA,omitempty"`
	LegB      *legParams `json:"legB,omitempty"`
	ExpiresAt *int64     `json:"expiresAt,omitempty"`
	Now       *int64     `json:"now,omitempty"`
}

type offerActorParams struct {
	Caller string `json:"caller"`
	ID     string `json:"id"`
	Now    *int64 `json:"now,omitempty"`
}

type offerIDParams struct {
	ID  string `json:"id"`
	Now *int64 `json:"now,omitempty"`
}

type offerListParams struct {
	Status       string `json:"status,omitempty"`
	Kind         string `json:"kind,omitempty"`
	Maker        string `json:"maker,omitempty"`
	Counterparty string `json:"counterparty,omitempty"`
	Now          *int64 `json:"now,omitempty"`
}

type offerJSON struct {
	ID           string  `json:"id"`
	Kind         string  `json:"kind"`
	Status       string  `json:"status"`
	Maker        string  `json:"maker"`
	Counterparty *string `json:"counterparty,omitempty"`
	LegAAsset    string  `json:"legAAsset"`
	LegAAmount   string  `json:"legAAmount"`
	LegBAsset    string  `json:"legBAsset"`
	LegBAmount   string  `json:"legBAmount"`
	ExpiresAt    int64   `json:"expiresAt,omitempty"`
	Parent       *string `json:"parent,omitempty"`
	Root         string  `json:"root"`
	Depth        uint32  `json:"depth"`
	CreatedAt    int64   `json:"createdAt"`
	Seq          uint64  `json:"seq"`
	Version      uint64  `json:"version"`
}

type settlementJSON struct {
	OfferID    string `json:"offerId"`
	Maker      string `json:"maker"`
	Taker      string `json:"taker"`
	LegAAsset  string `json:"legAAsset"`
	LegAAmount string `json:"legAAmount"`
	LegBAsset  string `json:"legBAsset"`
	LegBAmount string `json:"legBAmount"`
}

func (s *Server) handleCreateOffer(req *RPCRequest) (interface{}, *RPCError) {
	var params offerCreateParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	maker, err := parseAddress(params.Maker)
	if err != nil {
		return nil, invalidParams("maker: %v", err)
	}
	legA, err := parseLeg(params.LegA)
	if err != nil {
		return nil, invalidParams("legA: %v", err)
	}
	legB, err := parseLeg(params.LegB)
	if err != nil {
		return nil, invalidParams("legB: %v", err)
	}
	now, rpcErr := s.mutationNow(params.Now)
	if rpcErr != nil {
		return nil, rpcErr
	}

	var created *offer.Offer
	switch strings.ToLower(strings.TrimSpace(params.Kind)) {
	case "direct":
		counterparty, err := parseAddress(params.Counterparty)
		if err != nil {
			return nil, invalidParams("counterparty: %v", err)
		}
		created, err = s.engine.CreateDirectOffer(maker, counterparty, legA, legB, params.ExpiresAt, now)
		if err != nil {
			return nil, offerError(err)
		}
	case "public_sell":
		created, err = s.engine.CreatePublicOffer(maker, offer.KindPublicSell, legA, legB, params.ExpiresAt, now)
		if err != nil {
			return nil, offerError(err)
		}
	case "public_buy":
		created, err = s.engine.CreatePublicOffer(maker, offer.KindPublicBuy, legA, legB, params.ExpiresAt, now)
		if err != nil {
			return nil, offerError(err)
		}
	default:
		return nil, invalidParams("unknown offer kind %q", params.Kind)
	}
	metrics.Offers().ObserveCreated(created.Kind.String())
	return marshalOffer(created), nil
}

func (s *Server) handleCounterOffer(req *RPCRequest) (interface{}, *RPCError) {
	var params offerCounterParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		return nil, invalidParams("caller: %v", err)
	}
	parent, err := parseID(params.Parent)
	if err != nil {
		return nil, invalidParams("parent: %v", err)
	}
	var legA, legB *offer.Leg
	if params.LegA != nil {
		leg, err := parseLeg(*params.LegA)
		if err != nil {
			return nil, invalidParams("legA: %v", err)
		}
		legA = &leg
	}
	if params.LegB != nil {
		leg, err := parseLeg(*params.LegB)
		if err != nil {
			return nil, invalidParams("legB: %v", err)
		}
		legB = &leg
	}
	now, rpcErr := s.mutationNow(params.Now)
	if rpcErr != nil {
		return nil, rpcErr
	}
	created, err := s.engine.CreateCounterOffer(caller, parent, legA, legB, params.ExpiresAt, now)
	if err != nil {
		return nil, offerError(err)
	}
	metrics.Offers().ObserveCountered()
	return marshalOffer(created), nil
}

func (s *Server) handleAcceptOffer(req *RPCRequest) (interface{}, *RPCError) {
	caller, id, now, rpcErr := s.actorParams(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	settlement, err := s.engine.Accept(caller, id, now)
	if err != nil {
		return nil, offerError(err)
	}
	metrics.Offers().ObserveSettled()
	return settlementJSON{
		OfferID:    format32(settlement.OfferID),
		Maker:      formatAddress(settlement.Maker),
		Taker:      formatAddress(settlement.Taker),
		LegAAsset:  settlement.LegA.Asset,
		LegAAmount: settlement.LegA.Amount.String(),
		LegBAsset:  settlement.LegB.Asset,
		LegBAmount: settlement.LegB.Amount.String(),
	}, nil
}

func (s *Server) handleDeclineOffer(req *RPCRequest) (interface{}, *RPCError) {
	caller, id, now, rpcErr := s.actorParams(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Decline(caller, id, now); err != nil {
		return nil, offerError(err)
	}
	metrics.Offers().ObserveRefunded("declined")
	return map[string]bool{"declined": true}, nil
}

func (s *Server) handleCancelOffer(req *RPCRequest) (interface{}, *RPCError) {
	caller, id, now, rpcErr := s.actorParams(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Cancel(caller, id, now); err != nil {
		return nil, offerError(err)
	}
	metrics.Offers().ObserveRefunded("cancelled")
	return map[string]bool{"cancelled": true}, nil
}

func (s *Server) handleExpireOffer(req *RPCRequest) (interface{}, *RPCError) {
	var params offerIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	id, err := parseID(params.ID)
	if err != nil {
		return nil, invalidParams("id: %v", err)
	}
	now, rpcErr := s.mutationNow(params.Now)
	if rpcErr != nil {
		return nil, rpcErr
	}
	swept, err := s.engine.Expire(id, now)
	if err != nil {
		return nil, offerError(err)
	}
	if swept {
		metrics.Offers().ObserveRefunded("expired")
	}
	return map[string]bool{"expired": swept}, nil
}

func (s *Server) handleGetOffer(req *RPCRequest) (interface{}, *RPCError) {
	var params offerIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	id, err := parseID(params.ID)
	if err != nil {
		return nil, invalidParams("id: %v", err)
	}
	o, err := s.query.GetOffer(id, s.resolveNow(params.Now))
	if err != nil {
		return nil, offerError(err)
	}
	return marshalOffer(o), nil
}

func (s *Server) handleListOffers(req *RPCRequest) (interface{}, *RPCError) {
	var params offerListParams
	if len(req.Params) > 0 {
		if rpcErr := decodeParams(req, &params); rpcErr != nil {
			return nil, rpcErr
		}
	}
	var filter offer.Filter
	if trimmed := strings.TrimSpace(params.Status); trimmed != "" {
		status, err := parseStatus(trimmed)
		if err != nil {
			return nil, invalidParams("status: %v", err)
		}
		filter.Status = &status
	}
	if trimmed := strings.TrimSpace(params.Kind); trimmed != "" {
		kind, err := parseKind(trimmed)
		if err != nil {
			return nil, invalidParams("kind: %v", err)
		}
		filter.Kind = &kind
	}
	if trimmed := strings.TrimSpace(params.Maker); trimmed != "" {
		maker, err := parseAddress(trimmed)
		if err != nil {
			return nil, invalidParams("maker: %v", err)
		}
		filter.Maker = &maker
	}
	if trimmed := strings.TrimSpace(params.Counterparty); trimmed != "" {
		counterparty, err := parseAddress(trimmed)
		if err != nil {
			return nil, invalidParams("counterparty: %v", err)
		}
		filter.Counterparty = &counterparty
	}
	result := make([]offerJSON, 0)
	for o := range s.query.ListOffers(filter, s.resolveNow(params.Now)) {
		result = append(result, marshalOffer(o))
	}
	return result, nil
}

func (s *Server) actorParams(req *RPCRequest) ([20]byte, [32]byte, int64, *RPCError) {
	var params offerActorParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return [20]byte{}, [32]byte{}, 0, rpcErr
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		return [20]byte{}, [32]byte{}, 0, invalidParams("caller: %v", err)
	}
	id, err := parseID(params.ID)
	if err != nil {
		return [20]byte{}, [32]byte{}, 0, invalidParams("id: %v", err)
	}
	now, rpcErr := s.mutationNow(params.Now)
	if rpcErr != nil {
		return [20]byte{}, [32]byte{}, 0, rpcErr
	}
	return caller, id, now, nil
}

// resolveNow stamps read-only projections, where a caller-chosen timestamp can
// only change the caller's own view.
func (s *Server) resolveNow(explicit *int64) int64 {
	if explicit != nil {
		return *explicit
	}
	return s.nowFn()
}

// mutationNow stamps state transitions. Client-supplied timestamps can move an
// offer across its deadline, so they are rejected unless explicitly enabled.
func (s *Server) mutationNow(explicit *int64) (int64, *RPCError) {
	if explicit != nil {
		if !s.allowClientNow {
			return 0, invalidParams("client timestamps are disabled")
		}
		return *explicit, nil
	}
	return s.nowFn(), nil
}

func decodeParams(req *RPCRequest, target interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "expected a single params object"}
	}
	if err := json.Unmarshal(req.Params[0], target); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "malformed params object"}
	}
	return nil
}

func invalidParams(format string, args ...interface{}) *RPCError {
	return &RPCError{Code: codeOfferInvalidParams, Message: fmt.Sprintf(format, args...)}
}

// offerError maps the engine taxonomy onto the module's JSON-RPC code block.
func offerError(err error) *RPCError {
	switch {
	case errors.Is(err, offer.ErrNotFound):
		return &RPCError{Code: codeOfferNotFound, Message: err.Error()}
	case errors.Is(err, offer.ErrUnauthorized), errors.Is(err, offer.ErrInvalidOwnership):
		return &RPCError{Code: codeOfferUnauthorized, Message: err.Error()}
	case errors.Is(err, offer.ErrVersionConflict):
		metrics.Offers().ObserveConflict()
		return &RPCError{Code: codeOfferConflict, Message: err.Error(), Data: map[string]bool{"retryable": true}}
	case errors.Is(err, offer.ErrOfferNotActive):
		return &RPCError{Code: codeOfferNotActive, Message: err.Error()}
	case errors.Is(err, offer.ErrOfferExpired):
		return &RPCError{Code: codeOfferExpired, Message: err.Error()}
	case errors.Is(err, offer.ErrNotExpired):
		return &RPCError{Code: codeOfferInvalidParams, Message: err.Error()}
	case errors.Is(err, offer.ErrInsufficientBalance):
		return &RPCError{Code: codeOfferInsufficientBalance, Message: err.Error()}
	case errors.Is(err, offer.ErrAmountOverflow):
		return &RPCError{Code: codeOfferAmountOverflow, Message: err.Error()}
	case errors.Is(err, offer.ErrChainDepthExceeded):
		return &RPCError{Code: codeOfferDepthExceeded, Message: err.Error()}
	default:
		return &RPCError{Code: codeOfferInternal, Message: err.Error()}
	}
}

func parseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if len(trimmed) != 40 {
		return addr, fmt.Errorf("expected 20-byte hex address")
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid hex: %v", err)
	}
	copy(addr[:], raw)
	return addr, nil
}

func parseID(value string) ([32]byte, error) {
	var id [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if len(trimmed) != 64 {
		return id, fmt.Errorf("expected 32-byte hex identifier")
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return id, fmt.Errorf("invalid hex: %v", err)
	}
	copy(id[:], raw)
	return id, nil
}

func parseLeg(params legParams) (offer.Leg, error) {
	asset, err := offer.NormalizeAsset(params.Asset)
	if err != nil {
		return offer.Leg{}, err
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(params.Amount), 10)
	if !ok || amount.Sign() <= 0 {
		return offer.Leg{}, fmt.Errorf("amount must be a positive decimal string")
	}
	return offer.Leg{Asset: asset, Amount: amount}, nil
}

func parseKind(value string) (offer.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "direct":
		return offer.KindDirect, nil
	case "public_sell":
		return offer.KindPublicSell, nil
	case "public_buy":
		return offer.KindPublicBuy, nil
	default:
		return 0, fmt.Errorf("unknown kind %q", value)
	}
}

func parseStatus(value string) (offer.Status, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "active":
		return offer.StatusActive, nil
	case "countered":
		return offer.StatusCountered, nil
	case "accepted":
		return offer.StatusAccepted, nil
	case "declined":
		return offer.StatusDeclined, nil
	case "cancelled":
		return offer.StatusCancelled, nil
	case "expired":
		return offer.StatusExpired, nil
	default:
		return 0, fmt.Errorf("unknown status %q", value)
	}
}

func marshalOffer(o *offer.Offer) offerJSON {
	out := offerJSON{
		ID:         format32(o.ID),
		Kind:       o.Kind.String(),
		Status:     o.Status.String(),
		Maker:      formatAddress(o.Maker),
		LegAAsset:  o.LegA.Asset,
		LegAAmount: o.LegA.Amount.String(),
		LegBAsset:  o.LegB.Asset,
		LegBAmount: o.LegB.Amount.String(),
		ExpiresAt:  o.ExpiresAt,
		Root:       format32(o.Root),
		Depth:      o.Depth,
		CreatedAt:  o.CreatedAt,
		Seq:        o.Seq,
		Version:    o.Version,
	}
	if !o.Open() {
		counterparty := formatAddress(o.Counterparty)
		out.Counterparty = &counterparty
	}
	if !o.IsRoot() {
		parent := format32(o.Parent)
		out.Parent = &parent
	}
	return out
}

func formatAddress(addr [20]byte) string { return "0x" + hex.EncodeToString(addr[:]) }

func format32(id [32]byte) string { return "0x" + hex.EncodeToString(id[:]) }

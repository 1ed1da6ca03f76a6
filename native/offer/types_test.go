package offer

import (
	"math/big"
	"testing"
)

func TestNormalizeAsset(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"TOKEN", AssetToken, true},
		{"token", AssetToken, true},
		{" coin ", AssetCoin, true},
		{"COIN", AssetCoin, true},
		{"", "", false},
		{"GOLD", "", false},
	}
	for _, tc := range cases {
		got, err := NormalizeAsset(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("NormalizeAsset(%q): got %q, %v", tc.in, got, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("NormalizeAsset(%q): expected error", tc.in)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusAccepted, StatusDeclined, StatusCancelled, StatusExpired}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusActive, StatusCountered} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
	if Status(42).Valid() {
		t.Fatalf("out-of-range status should be invalid")
	}
	if Kind(42).Valid() {
		t.Fatalf("out-of-range kind should be invalid")
	}
}

func validDraft() *Offer {
	var maker, counterparty [20]byte
	maker[19] = 1
	counterparty[19] = 2
	return &Offer{
		Kind:         KindDirect,
		Maker:        maker,
		Counterparty: counterparty,
		LegA:         Leg{Asset: AssetToken, Amount: big.NewInt(100)},
		LegB:         Leg{Asset: AssetCoin, Amount: big.NewInt(50)},
		Status:       StatusActive,
	}
}

func TestSanitize(t *testing.T) {
	if _, err := Sanitize(validDraft()); err != nil {
		t.Fatalf("valid draft rejected: %v", err)
	}

	mutations := []struct {
		name   string
		mutate func(*Offer)
	}{
		{"same asset both legs", func(o *Offer) { o.LegB.Asset = AssetToken }},
		{"zero amount", func(o *Offer) { o.LegA.Amount = big.NewInt(0) }},
		{"negative amount", func(o *Offer) { o.LegB.Amount = big.NewInt(-5) }},
		{"nil amount", func(o *Offer) { o.LegA.Amount = nil }},
		{"unknown asset", func(o *Offer) { o.LegA.Asset = "GOLD" }},
		{"direct root without counterparty", func(o *Offer) { o.Counterparty = [20]byte{} }},
		{"self counterparty", func(o *Offer) { o.Counterparty = o.Maker }},
		{"negative expiry", func(o *Offer) { o.ExpiresAt = -1 }},
		{"invalid kind", func(o *Offer) { o.Kind = Kind(9) }},
		{"public sell committing coin", func(o *Offer) {
			o.Kind = KindPublicSell
			o.Counterparty = [20]byte{}
			o.LegA.Asset = AssetCoin
			o.LegB.Asset = AssetToken
		}},
		{"public buy committing token", func(o *Offer) {
			o.Kind = KindPublicBuy
			o.Counterparty = [20]byte{}
		}},
	}
	for _, tc := range mutations {
		draft := validDraft()
		tc.mutate(draft)
		if _, err := Sanitize(draft); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestSanitizeDoesNotMutateInput(t *testing.T) {
	draft := validDraft()
	draft.LegA.Asset = "token"
	sanitized, err := Sanitize(draft)
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if draft.LegA.Asset != "token" {
		t.Fatalf("input mutated")
	}
	if sanitized.LegA.Asset != AssetToken {
		t.Fatalf("asset not normalised: %s", sanitized.LegA.Asset)
	}
	sanitized.LegA.Amount.SetInt64(7)
	if draft.LegA.Amount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("amounts share backing storage")
	}
}

func TestEffectiveStatus(t *testing.T) {
	o := validDraft()
	o.ExpiresAt = 100
	if o.ExpiredAt(99) {
		t.Fatalf("not yet expired at 99")
	}
	if !o.ExpiredAt(100) {
		t.Fatalf("deadline timestamp itself counts as expired")
	}
	if got := o.EffectiveStatus(150); got != StatusExpired {
		t.Fatalf("effective status: got %s want expired", got)
	}
	o.Status = StatusAccepted
	if got := o.EffectiveStatus(150); got != StatusAccepted {
		t.Fatalf("terminal status must not be reclassified: got %s", got)
	}

	unbounded := validDraft()
	if unbounded.ExpiredAt(1 << 40) {
		t.Fatalf("offer without deadline never expires")
	}
}

func TestOfferClone(t *testing.T) {
	o := validDraft()
	o.ExpiresAt = 55
	clone := o.Clone()
	clone.LegA.Amount.SetInt64(1)
	clone.Status = StatusDeclined
	if o.LegA.Amount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("clone shares leg amount storage")
	}
	if o.Status != StatusActive {
		t.Fatalf("clone shares status")
	}
	if (*Offer)(nil).Clone() != nil {
		t.Fatalf("nil clone should be nil")
	}
}

func TestEscrowRecordClone(t *testing.T) {
	rec := &EscrowRecord{Asset: AssetToken, Amount: big.NewInt(40)}
	clone := rec.Clone()
	clone.Amount.SetInt64(7)
	if rec.Amount.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("clone shares amount storage")
	}
	if (*EscrowRecord)(nil).Clone() != nil {
		t.Fatalf("nil clone should be nil")
	}
}

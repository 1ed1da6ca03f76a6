package state

import (
	"math/big"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"otcswap/native/offer"
	"otcswap/observability/metrics"
	"otcswap/storage"
)

func testOffer(seq uint64) *offer.Offer {
	var id [32]byte
	id[0] = byte(seq)
	var maker, counterparty [20]byte
	maker[19] = 1
	counterparty[19] = 2
	return &offer.Offer{
		ID:           id,
		Kind:         offer.KindDirect,
		Maker:        maker,
		Counterparty: counterparty,
		LegA:         offer.Leg{Asset: offer.AssetToken, Amount: big.NewInt(100)},
		LegB:         offer.Leg{Asset: offer.AssetCoin, Amount: big.NewInt(10)},
		Status:       offer.StatusActive,
		Root:         id,
		Seq:          seq,
		CreatedAt:    10,
	}
}

func TestOfferPutCreateAndUpdate(t *testing.T) {
	st := New()
	o := testOffer(1)

	require.NoError(t, st.OfferPut(o, 0))
	stored, ok := st.OfferGet(o.ID)
	require.True(t, ok)
	require.Equal(t, uint64(1), stored.Version)

	// Creating again must conflict.
	require.ErrorIs(t, st.OfferPut(o, 0), offer.ErrVersionConflict)

	stored.Status = offer.StatusAccepted
	require.NoError(t, st.OfferPut(stored, 1))
	updated, _ := st.OfferGet(o.ID)
	require.Equal(t, offer.StatusAccepted, updated.Status)
	require.Equal(t, uint64(2), updated.Version)

	// A stale version loses.
	stale := stored.Clone()
	stale.Status = offer.StatusDeclined
	require.ErrorIs(t, st.OfferPut(stale, 1), offer.ErrVersionConflict)
	unchanged, _ := st.OfferGet(o.ID)
	require.Equal(t, offer.StatusAccepted, unchanged.Status)

	var missing [32]byte
	missing[0] = 0xee
	ghost := testOffer(9)
	ghost.ID = missing
	require.ErrorIs(t, st.OfferPut(ghost, 3), offer.ErrNotFound)
}

func TestOfferPutConcurrentWritersSingleWinner(t *testing.T) {
	st := New()
	o := testOffer(1)
	require.NoError(t, st.OfferPut(o, 0))

	const writers = 16
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			update := testOffer(1)
			update.Status = offer.StatusCancelled
			errs[i] = st.OfferPut(update, 1)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			require.ErrorIs(t, err, offer.ErrVersionConflict)
		}
	}
	require.Equal(t, 1, winners)
	stored, _ := st.OfferGet(o.ID)
	require.Equal(t, uint64(2), stored.Version)
}

func TestOfferGetReturnsClone(t *testing.T) {
	st := New()
	o := testOffer(1)
	require.NoError(t, st.OfferPut(o, 0))

	first, _ := st.OfferGet(o.ID)
	first.LegA.Amount.SetInt64(7)
	first.Status = offer.StatusExpired

	second, _ := st.OfferGet(o.ID)
	require.Equal(t, offer.StatusActive, second.Status)
	require.Zero(t, second.LegA.Amount.Cmp(big.NewInt(100)))
}

func TestNextSeqMonotonic(t *testing.T) {
	st := New()
	prev := uint64(0)
	for i := 0; i < 10; i++ {
		seq, err := st.NextSeq()
		require.NoError(t, err)
		require.Greater(t, seq, prev)
		prev = seq
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	db := storage.NewMemDB()

	st, err := Open(db)
	require.NoError(t, err)

	seq, err := st.NextSeq()
	require.NoError(t, err)
	o := testOffer(seq)
	require.NoError(t, st.OfferPut(o, 0))
	require.NoError(t, st.ChainTopSet(o.Root, o.ID))
	require.NoError(t, st.EscrowPut(&offer.EscrowRecord{
		Root:   o.Root,
		Funder: o.Maker,
		Asset:  offer.AssetToken,
		Amount: big.NewInt(100),
	}))
	require.NoError(t, st.Credit(o.Maker, offer.AssetCoin, big.NewInt(55)))

	reopened, err := Open(db)
	require.NoError(t, err)

	stored, ok := reopened.OfferGet(o.ID)
	require.True(t, ok)
	require.Equal(t, o.ID, stored.ID)
	require.Equal(t, uint64(1), stored.Version)
	require.Zero(t, stored.LegA.Amount.Cmp(big.NewInt(100)))

	top, ok := reopened.ChainTopGet(o.Root)
	require.True(t, ok)
	require.Equal(t, o.ID, top)

	rec, ok := reopened.EscrowGet(o.Root)
	require.True(t, ok)
	require.Equal(t, o.Maker, rec.Funder)
	require.Zero(t, rec.Amount.Cmp(big.NewInt(100)))

	balance, err := reopened.Balance(o.Maker, offer.AssetCoin)
	require.NoError(t, err)
	require.Zero(t, balance.Cmp(big.NewInt(55)))

	// The sequence counter continues past the persisted value.
	next, err := reopened.NextSeq()
	require.NoError(t, err)
	require.Equal(t, seq+1, next)
}

func TestPersistedOrderFollowsSeq(t *testing.T) {
	db := storage.NewMemDB()
	st, err := Open(db)
	require.NoError(t, err)

	var ids [][32]byte
	for i := 0; i < 5; i++ {
		seq, err := st.NextSeq()
		require.NoError(t, err)
		o := testOffer(seq)
		require.NoError(t, st.OfferPut(o, 0))
		ids = append(ids, o.ID)
	}

	reopened, err := Open(db)
	require.NoError(t, err)
	i := 0
	for o := range reopened.Offers() {
		require.Equal(t, ids[i], o.ID)
		i++
	}
	require.Equal(t, len(ids), i)
}

func TestEscrowDelete(t *testing.T) {
	st := New()
	rec := &offer.EscrowRecord{Root: [32]byte{1}, Funder: [20]byte{2}, Asset: offer.AssetToken, Amount: big.NewInt(5)}
	require.NoError(t, st.EscrowPut(rec))
	_, ok := st.EscrowGet(rec.Root)
	require.True(t, ok)
	require.NoError(t, st.EscrowDelete(rec.Root))
	_, ok = st.EscrowGet(rec.Root)
	require.False(t, ok)
}

func TestEscrowGaugeTracksLockedAmount(t *testing.T) {
	st := New()
	gauge := metrics.Offers().EscrowLocked(offer.AssetToken)
	base := testutil.ToFloat64(gauge)

	rec := &offer.EscrowRecord{Root: [32]byte{9}, Funder: [20]byte{3}, Asset: offer.AssetToken, Amount: big.NewInt(100)}
	require.NoError(t, st.EscrowPut(rec))
	require.Equal(t, base+100, testutil.ToFloat64(gauge))

	// Amendments move the gauge by the delta, both directions.
	amended := rec.Clone()
	amended.Amount = big.NewInt(150)
	require.NoError(t, st.EscrowPut(amended))
	require.Equal(t, base+150, testutil.ToFloat64(gauge))

	amended.Amount = big.NewInt(120)
	require.NoError(t, st.EscrowPut(amended))
	require.Equal(t, base+120, testutil.ToFloat64(gauge))

	require.NoError(t, st.EscrowDelete(rec.Root))
	require.Equal(t, base, testutil.ToFloat64(gauge))

	// Reopening persisted state seeds the gauge with the surviving records.
	db := storage.NewMemDB()
	persisted, err := Open(db)
	require.NoError(t, err)
	require.NoError(t, persisted.EscrowPut(rec))
	_, err = Open(db)
	require.NoError(t, err)
	require.Equal(t, base+200, testutil.ToFloat64(gauge))
}

func TestCreditValidation(t *testing.T) {
	st := New()
	var account [20]byte
	require.Error(t, st.Credit(account, "GOLD", big.NewInt(1)))
	require.Error(t, st.Credit(account, offer.AssetToken, big.NewInt(-1)))
	require.NoError(t, st.Credit(account, offer.AssetToken, big.NewInt(3)))
	balance, err := st.Balance(account, offer.AssetToken)
	require.NoError(t, err)
	require.Zero(t, balance.Cmp(big.NewInt(3)))
}

func TestGetAccountZeroValued(t *testing.T) {
	st := New()
	var account [20]byte
	account[19] = 0x7f
	acc, err := st.GetAccount(account)
	require.NoError(t, err)
	require.NotNil(t, acc)
	require.Zero(t, acc.BalanceToken.Sign())
	require.Zero(t, acc.BalanceCoin.Sign())
}

package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bonfida/agnostic-orderbook/internal/engineerr"
	"github.com/Bonfida/agnostic-orderbook/internal/eventqueue"
	"github.com/Bonfida/agnostic-orderbook/internal/fp"
	"github.com/Bonfida/agnostic-orderbook/internal/slab"
)

const testCbLen = 4

func one() uint64 { return uint64(1) << fp.Q32Shift }

type book struct {
	q          *eventqueue.Queue
	bids, asks *slab.Slab
}

func newBook(t *testing.T, slabCap, qCap uint32) *book {
	t.Helper()
	bidsBuf := make([]byte, slab.RegionLen(slabCap, testCbLen))
	asksBuf := make([]byte, slab.RegionLen(slabCap, testCbLen))
	qBuf := make([]byte, eventqueue.RegionLen(qCap, testCbLen))

	bids, err := slab.Init(bidsBuf, slab.TagBids, testCbLen)
	require.NoError(t, err)
	asks, err := slab.Init(asksBuf, slab.TagAsks, testCbLen)
	require.NoError(t, err)
	q, err := eventqueue.Init(qBuf, testCbLen)
	require.NoError(t, err)
	return &book{q: q, bids: bids, asks: asks}
}

func restAsk(t *testing.T, b *book, price, qty uint64, cb string) {
	t.Helper()
	_, _, _, _, err := b.asks.Insert(fp.NewAskKey(price, b.q.NextSeq()), qty, []byte(cb))
	require.NoError(t, err)
}

func restBid(t *testing.T, b *book, price, qty uint64, cb string) {
	t.Helper()
	_, _, _, _, err := b.bids.Insert(fp.NewBidKey(price, b.q.NextSeq()), qty, []byte(cb))
	require.NoError(t, err)
}

func TestNewOrderFullyFillsAgainstBestAsk(t *testing.T) {
	b := newBook(t, 8, 32)
	restAsk(t, b, one(), 10, "mkr1")

	res, err := NewOrder(b.q, b.asks, b.bids, Params{
		Side:              eventqueue.SideBid,
		LimitPrice:        one(),
		MaxBaseQty:        10,
		MaxQuoteQty:       1_000_000,
		MatchLimit:        10,
		CallbackInfo:      []byte("tkr1"),
		CallbackIDLen:     4,
		PostAllowed:       true,
		SelfTradeBehavior: DecrementTake,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(10), res.TotalBaseConsumed)
	assert.False(t, res.Posted, "fully filled order must not post a residual")
	assert.Equal(t, uint64(2), b.q.Count(), "a fully exhausted maker emits both a Fill and an Out")
	ev := b.q.At(0)
	require.NotNil(t, ev.Fill)
	assert.Equal(t, uint64(10), ev.Fill.BaseSize)
	assert.True(t, b.asks.Empty(), "exhausted maker must be removed from the book")
}

func TestNewOrderPartialFillPostsResidual(t *testing.T) {
	b := newBook(t, 8, 32)
	restAsk(t, b, one(), 5, "mkr1")

	res, err := NewOrder(b.q, b.asks, b.bids, Params{
		Side:              eventqueue.SideBid,
		LimitPrice:        one(),
		MaxBaseQty:        10,
		MaxQuoteQty:       1_000_000,
		MatchLimit:        10,
		CallbackInfo:      []byte("tkr1"),
		CallbackIDLen:     4,
		PostAllowed:       true,
		SelfTradeBehavior: DecrementTake,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), res.TotalBaseConsumed)
	assert.True(t, res.Posted)
	assert.Equal(t, uint64(5), res.TotalBasePosted)

	h, ok := b.bids.FindMin()
	require.True(t, ok)
	assert.Equal(t, uint64(5), b.bids.Leaf(h).BaseQty)
}

func TestNewOrderRespectsLimitPriceNoCross(t *testing.T) {
	b := newBook(t, 8, 32)
	restAsk(t, b, 2*one(), 5, "mkr1")

	res, err := NewOrder(b.q, b.asks, b.bids, Params{
		Side:              eventqueue.SideBid,
		LimitPrice:        one(),
		MaxBaseQty:        10,
		MaxQuoteQty:       1_000_000,
		MatchLimit:        10,
		CallbackInfo:      []byte("tkr1"),
		CallbackIDLen:     4,
		PostAllowed:       true,
		SelfTradeBehavior: DecrementTake,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res.TotalBaseConsumed)
	assert.True(t, res.Posted)
	assert.Equal(t, uint64(0), b.q.Count(), "no event should be produced when nothing crosses")
}

func TestNewOrderPostOnlyRejectsWhenCrossing(t *testing.T) {
	b := newBook(t, 8, 32)
	restAsk(t, b, one(), 5, "mkr1")

	_, err := NewOrder(b.q, b.asks, b.bids, Params{
		Side:         eventqueue.SideBid,
		LimitPrice:   one(),
		MaxBaseQty:   10,
		MaxQuoteQty:  1_000_000,
		MatchLimit:   10,
		CallbackInfo: []byte("tkr1"),
		PostOnly:     true,
		PostAllowed:  true,
	})
	assert.ErrorIs(t, err, engineerr.ErrPostOnlyCrosses)
	assert.Equal(t, uint64(5), b.asks.Leaf(mustFindMin(t, b.asks)).BaseQty, "post-only reject must leave the book untouched")
}

func TestSelfTradeDecrementTakeSkipsOwnOrderWithoutFill(t *testing.T) {
	// DecrementTake reduces max_base_qty/max_quote_qty by the self-trading
	// maker's size, emits no Fill, leaves the maker untouched, and moves on
	// to the next best maker.
	b := newBook(t, 8, 32)
	restAsk(t, b, one(), 5, "same")
	restAsk(t, b, 2*one(), 5, "other")

	res, err := NewOrder(b.q, b.asks, b.bids, Params{
		Side:              eventqueue.SideBid,
		LimitPrice:        2 * one(),
		MaxBaseQty:        10,
		MaxQuoteQty:       1_000_000,
		MatchLimit:        10,
		CallbackInfo:      []byte("same"),
		CallbackIDLen:     4,
		PostAllowed:       true,
		SelfTradeBehavior: DecrementTake,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), res.TotalBaseConsumed, "only the non-self-trading maker is actually filled")
	assert.Equal(t, uint64(1), b.asks.LeafCount(), "the self-trading maker is skipped, not removed")
	h, ok := b.asks.FindMin()
	require.True(t, ok)
	assert.Equal(t, uint64(5), b.asks.Leaf(h).BaseQty, "the skipped maker's quantity is untouched")
	assert.Equal(t, uint64(2), b.q.Count(), "one Fill and one Out, both from the non-self-trading maker")
}

func TestSelfTradeCancelProvideRemovesMaker(t *testing.T) {
	b := newBook(t, 8, 32)
	restAsk(t, b, one(), 5, "same")

	res, err := NewOrder(b.q, b.asks, b.bids, Params{
		Side:              eventqueue.SideBid,
		LimitPrice:        one(),
		MaxBaseQty:        10,
		MaxQuoteQty:       1_000_000,
		MatchLimit:        10,
		CallbackInfo:      []byte("same"),
		CallbackIDLen:     4,
		PostAllowed:       true,
		SelfTradeBehavior: CancelProvide,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res.TotalBaseConsumed)
	assert.True(t, b.asks.Empty(), "CancelProvide must remove the self-trading maker")
	ev := b.q.At(0)
	require.NotNil(t, ev.Out)
	assert.True(t, ev.Out.Delete)
}

func TestSelfTradeAbortTransactionLeavesStateUntouched(t *testing.T) {
	b := newBook(t, 8, 32)
	restAsk(t, b, one(), 5, "same")

	_, err := NewOrder(b.q, b.asks, b.bids, Params{
		Side:              eventqueue.SideBid,
		LimitPrice:        one(),
		MaxBaseQty:        10,
		MaxQuoteQty:       1_000_000,
		MatchLimit:        10,
		CallbackInfo:      []byte("same"),
		CallbackIDLen:     4,
		PostAllowed:       true,
		SelfTradeBehavior: AbortTransaction,
	})
	assert.ErrorIs(t, err, engineerr.ErrWouldSelfTrade)
	assert.Equal(t, uint64(0), b.q.Count(), "an aborted match must not emit any event")
	h, ok := b.asks.FindMin()
	require.True(t, ok)
	assert.Equal(t, uint64(5), b.asks.Leaf(h).BaseQty, "an aborted match must not mutate the maker")
}

func TestPostAllowedFalseDropsUnfilledRemainder(t *testing.T) {
	b := newBook(t, 8, 32)
	res, err := NewOrder(b.q, b.asks, b.bids, Params{
		Side:         eventqueue.SideBid,
		LimitPrice:   one(),
		MaxBaseQty:   10,
		MaxQuoteQty:  1_000_000,
		MatchLimit:   10,
		CallbackInfo: []byte("tkr1"),
		PostAllowed:  false,
	})
	require.NoError(t, err)
	assert.False(t, res.Posted)
	assert.True(t, b.bids.Empty())
}

func TestEventQueueFullRejectsBeforeMutation(t *testing.T) {
	b := newBook(t, 8, 1)
	restAsk(t, b, one(), 5, "mkr1")
	restAsk(t, b, 2*one(), 5, "mkr2")

	_, err := NewOrder(b.q, b.asks, b.bids, Params{
		Side:              eventqueue.SideBid,
		LimitPrice:        2 * one(),
		MaxBaseQty:        10,
		MaxQuoteQty:       1_000_000,
		MatchLimit:        2,
		CallbackInfo:      []byte("tkr1"),
		PostAllowed:       true,
		SelfTradeBehavior: DecrementTake,
	})
	assert.ErrorIs(t, err, engineerr.ErrEventQueueFull)
	assert.Equal(t, uint64(5), b.asks.Leaf(mustFindMin(t, b.asks)).BaseQty, "a rejected match must leave the book untouched")
}

func mustFindMin(t *testing.T, s *slab.Slab) slab.Handle {
	t.Helper()
	h, ok := s.FindMin()
	require.True(t, ok)
	return h
}

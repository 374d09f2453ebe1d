package slab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bonfida/agnostic-orderbook/internal/fp"
)

const testCbLen = 4

func newTestSlab(t *testing.T, capacity uint32) *Slab {
	t.Helper()
	buf := make([]byte, RegionLen(capacity, testCbLen))
	s, err := Init(buf, TagBids, testCbLen)
	require.NoError(t, err)
	return s
}

func TestInsertFindRemove(t *testing.T) {
	s := newTestSlab(t, 8)
	key := fp.NewAskKey(100, 1)
	h, replaced, _, _, err := s.Insert(key, 50, []byte("cbcb"))
	require.NoError(t, err)
	assert.False(t, replaced)

	got, ok := s.Find(key)
	require.True(t, ok)
	assert.Equal(t, h, got)
	assert.Equal(t, uint64(50), s.Leaf(got).BaseQty)

	leaf, cb, ok := s.Remove(key)
	require.True(t, ok)
	assert.Equal(t, uint64(50), leaf.BaseQty)
	assert.Equal(t, []byte("cbcb"), cb)
	assert.True(t, s.Empty())
}

func TestInsertReplaceSameKey(t *testing.T) {
	s := newTestSlab(t, 8)
	key := fp.NewAskKey(100, 1)
	_, _, _, _, err := s.Insert(key, 50, []byte("aaaa"))
	require.NoError(t, err)

	_, replaced, prev, prevCb, err := s.Insert(key, 75, []byte("bbbb"))
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.Equal(t, uint64(50), prev.BaseQty)
	assert.Equal(t, []byte("aaaa"), prevCb)
	assert.Equal(t, uint32(1), s.LeafCount(), "replacing an existing key must not grow the tree")
}

func TestFindMinMaxAsksAscending(t *testing.T) {
	s := newTestSlab(t, 8)
	prices := []uint64{300, 100, 200}
	for i, p := range prices {
		_, _, _, _, err := s.Insert(fp.NewAskKey(p, uint64(i)), 10, []byte("xxxx"))
		require.NoError(t, err)
	}
	minH, ok := s.FindMin()
	require.True(t, ok)
	assert.Equal(t, uint64(100), s.Leaf(minH).Key.PriceOf(false))

	maxH, ok := s.FindMax()
	require.True(t, ok)
	assert.Equal(t, uint64(300), s.Leaf(maxH).Key.PriceOf(false))
}

func TestFindMinMaxBidsDescending(t *testing.T) {
	s := newTestSlab(t, 8)
	prices := []uint64{300, 100, 200}
	for i, p := range prices {
		_, _, _, _, err := s.Insert(fp.NewBidKey(p, uint64(i)), 10, []byte("xxxx"))
		require.NoError(t, err)
	}
	// best bid is the highest real price, and FindMin must surface it
	// regardless of which side this Slab indexes.
	bestH, ok := s.FindMin()
	require.True(t, ok)
	assert.Equal(t, uint64(300), s.Leaf(bestH).Key.PriceOf(true))

	worstH, ok := s.FindMax()
	require.True(t, ok)
	assert.Equal(t, uint64(100), s.Leaf(worstH).Key.PriceOf(true))
}

func TestWalkOrder(t *testing.T) {
	s := newTestSlab(t, 8)
	prices := []uint64{300, 100, 200, 250}
	for i, p := range prices {
		_, _, _, _, err := s.Insert(fp.NewAskKey(p, uint64(i)), 10, []byte("xxxx"))
		require.NoError(t, err)
	}
	var seen []uint64
	s.Walk(true, func(h Handle) bool {
		seen = append(seen, s.Leaf(h).Key.PriceOf(false))
		return true
	})
	assert.Equal(t, []uint64{100, 200, 250, 300}, seen)
}

func TestWalkStopsEarly(t *testing.T) {
	s := newTestSlab(t, 8)
	for i, p := range []uint64{100, 200, 300} {
		_, _, _, _, err := s.Insert(fp.NewAskKey(p, uint64(i)), 10, []byte("xxxx"))
		require.NoError(t, err)
	}
	count := 0
	s.Walk(true, func(h Handle) bool {
		count++
		return count < 2
	})
	assert.Equal(t, 2, count)
}

func TestEvictWorstOnEitherSide(t *testing.T) {
	asks := newTestSlab(t, 8)
	for i, p := range []uint64{100, 200, 300} {
		_, _, _, _, err := asks.Insert(fp.NewAskKey(p, uint64(i)), 10, []byte("xxxx"))
		require.NoError(t, err)
	}
	worst, _, ok := asks.EvictWorst()
	require.True(t, ok)
	assert.Equal(t, uint64(300), worst.Key.PriceOf(false), "worst ask is the highest price")

	bids := newTestSlab(t, 8)
	for i, p := range []uint64{100, 200, 300} {
		_, _, _, _, err := bids.Insert(fp.NewBidKey(p, uint64(i)), 10, []byte("xxxx"))
		require.NoError(t, err)
	}
	worstBid, _, ok := bids.EvictWorst()
	require.True(t, ok)
	assert.Equal(t, uint64(100), worstBid.Key.PriceOf(true), "worst bid is the lowest price")
}

func TestSlabFullReturnsErrSlabFull(t *testing.T) {
	s := newTestSlab(t, 2)
	for i := uint64(0); i < 2; i++ {
		_, _, _, _, err := s.Insert(fp.NewAskKey(100+i, i), 10, []byte("xxxx"))
		require.NoError(t, err)
	}
	_, _, _, _, err := s.Insert(fp.NewAskKey(500, 9), 10, []byte("xxxx"))
	assert.Error(t, err)
}

func TestSetQuantityInPlace(t *testing.T) {
	s := newTestSlab(t, 8)
	key := fp.NewAskKey(100, 1)
	h, _, _, _, err := s.Insert(key, 50, []byte("xxxx"))
	require.NoError(t, err)
	s.SetQuantity(h, 10)
	assert.Equal(t, uint64(10), s.Leaf(h).BaseQty)
}

func TestOpenValidatesTagAndSize(t *testing.T) {
	s := newTestSlab(t, 4)
	_, err := Open(s.buf, TagAsks, testCbLen)
	assert.Error(t, err, "wrong tag must be rejected")

	_, err = Open(s.buf, TagBids, testCbLen)
	assert.NoError(t, err)
}

package eventqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bonfida/agnostic-orderbook/internal/fp"
)

const testCbLen = 4

func newTestQueue(t *testing.T, capacity uint32) *Queue {
	t.Helper()
	buf := make([]byte, RegionLen(capacity, testCbLen))
	q, err := Init(buf, testCbLen)
	require.NoError(t, err)
	return q
}

func TestPushFillAndPopRoundTrip(t *testing.T) {
	q := newTestQueue(t, 4)
	f := Fill{
		TakerSide:     SideBid,
		QuoteSize:     500,
		MakerOrderID:  fp.NewAskKey(100, 1),
		BaseSize:      5,
		MakerCallback: []byte("mkr1"),
		TakerCallback: []byte("tkr1"),
	}
	require.NoError(t, q.PushFill(f))
	assert.Equal(t, uint64(1), q.Count())

	ev := q.At(0)
	require.NotNil(t, ev.Fill)
	assert.Equal(t, f.QuoteSize, ev.Fill.QuoteSize)
	assert.Equal(t, f.BaseSize, ev.Fill.BaseSize)
	assert.True(t, f.MakerOrderID.Equal(ev.Fill.MakerOrderID))
	assert.Equal(t, []byte("mkr1"), ev.Fill.MakerCallback)
	assert.Equal(t, []byte("tkr1"), ev.Fill.TakerCallback)

	popped := q.Pop(1)
	assert.Equal(t, uint64(1), popped)
	assert.Equal(t, uint64(0), q.Count())
}

func TestPushOutRoundTrip(t *testing.T) {
	q := newTestQueue(t, 4)
	o := Out{Side: SideAsk, OrderID: fp.NewAskKey(200, 2), BaseSize: 9, Delete: true, CallbackInfo: []byte("ownr")}
	require.NoError(t, q.PushOut(o))

	ev := q.At(0)
	require.NotNil(t, ev.Out)
	assert.True(t, ev.Out.Delete)
	assert.Equal(t, uint64(9), ev.Out.BaseSize)
	assert.Equal(t, []byte("ownr"), ev.Out.CallbackInfo)
}

func TestQueueFullRejectsPush(t *testing.T) {
	q := newTestQueue(t, 2)
	require.NoError(t, q.PushOut(Out{CallbackInfo: []byte("aaaa")}))
	require.NoError(t, q.PushOut(Out{CallbackInfo: []byte("bbbb")}))
	err := q.PushOut(Out{CallbackInfo: []byte("cccc")})
	assert.Error(t, err)
}

func TestHasCapacityPreflight(t *testing.T) {
	q := newTestQueue(t, 4)
	assert.True(t, q.HasCapacity(4))
	assert.False(t, q.HasCapacity(5))
	require.NoError(t, q.PushOut(Out{CallbackInfo: []byte("aaaa")}))
	assert.True(t, q.HasCapacity(3))
	assert.False(t, q.HasCapacity(4))
}

func TestCircularWraparound(t *testing.T) {
	q := newTestQueue(t, 2)
	require.NoError(t, q.PushOut(Out{CallbackInfo: []byte("aaaa")}))
	require.NoError(t, q.PushOut(Out{CallbackInfo: []byte("bbbb")}))
	q.Pop(1)
	require.NoError(t, q.PushOut(Out{CallbackInfo: []byte("cccc")}))
	assert.Equal(t, uint64(2), q.Count())
	first := q.At(0)
	second := q.At(1)
	assert.Equal(t, []byte("bbbb"), first.Out.CallbackInfo)
	assert.Equal(t, []byte("cccc"), second.Out.CallbackInfo)
}

func TestNextSeqIncrementsMonotonically(t *testing.T) {
	q := newTestQueue(t, 4)
	s0 := q.NextSeq()
	require.NoError(t, q.PushOut(Out{CallbackInfo: []byte("aaaa")}))
	s1 := q.NextSeq()
	assert.Equal(t, s0+1, s1)
}

func TestRegisterRoundTrip(t *testing.T) {
	q := newTestQueue(t, 4)
	r := Register{Posted: true, PostedOrderID: fp.NewBidKey(77, 3), TotalBaseConsumed: 11, TotalQuoteConsumed: 22, TotalBasePosted: 33}
	q.SetRegister(r)
	got := q.GetRegister()
	assert.Equal(t, r.Posted, got.Posted)
	assert.True(t, r.PostedOrderID.Equal(got.PostedOrderID))
	assert.Equal(t, r.TotalBaseConsumed, got.TotalBaseConsumed)
	assert.Equal(t, r.TotalQuoteConsumed, got.TotalQuoteConsumed)
	assert.Equal(t, r.TotalBasePosted, got.TotalBasePosted)
}

func TestRegisterNotPostedClearsOrderID(t *testing.T) {
	q := newTestQueue(t, 4)
	q.SetRegister(Register{Posted: true, PostedOrderID: fp.NewBidKey(1, 1)})
	q.SetRegister(Register{Posted: false})
	got := q.GetRegister()
	assert.False(t, got.Posted)
	assert.True(t, got.PostedOrderID.Equal(fp.Key{}))
}

func TestOpenRejectsWrongSize(t *testing.T) {
	q := newTestQueue(t, 4)
	_, err := Open(q.buf[:len(q.buf)-1], testCbLen)
	assert.Error(t, err)
}

package eventqueue

import (
	"encoding/binary"

	"github.com/Bonfida/agnostic-orderbook/internal/fp"
)

// Side mirrors spec's taker/maker side tag.
type Side uint8

const (
	SideBid Side = iota
	SideAsk
)

const (
	tagFill byte = 0
	tagOut  byte = 1
)

// Fill is a single maker/taker match, spec §3.3/§6.1.
type Fill struct {
	TakerSide        Side
	QuoteSize        uint64
	MakerOrderID     fp.Key
	BaseSize         uint64
	MakerCallback    []byte
	TakerCallback    []byte
}

// Out reports a leaf leaving the book: matched to exhaustion, cancelled,
// self-trade-cancelled, or evicted.
type Out struct {
	Side         Side
	OrderID      fp.Key
	BaseSize     uint64
	Delete       bool
	CallbackInfo []byte
}

// Event is the tagged union spec §3.3 describes. Exactly one of Fill/Out
// is non-nil.
type Event struct {
	Fill *Fill
	Out  *Out
}

func (q *Queue) encodeFill(b []byte, f Fill) {
	b[0] = tagFill
	b[1] = byte(f.TakerSide)
	// bytes 2-7 padding, left zero
	binary.LittleEndian.PutUint64(b[8:16], f.QuoteSize)
	f.MakerOrderID.PutBytes(b[16:32])
	binary.LittleEndian.PutUint64(b[32:40], f.BaseSize)
	cb := b[eventHeaderSize:]
	copy(cb[0:q.cbLen], f.TakerCallback)
	copy(cb[q.cbLen:2*q.cbLen], f.MakerCallback)
}

func (q *Queue) encodeOut(b []byte, o Out) {
	b[0] = tagOut
	b[1] = byte(o.Side)
	if o.Delete {
		b[2] = 1
	}
	// bytes 3-15 padding, left zero
	o.OrderID.PutBytes(b[16:32])
	binary.LittleEndian.PutUint64(b[32:40], o.BaseSize)
	cb := b[eventHeaderSize:]
	copy(cb[0:q.cbLen], o.CallbackInfo)
}

func (q *Queue) decode(b []byte) Event {
	switch b[0] {
	case tagFill:
		cb := b[eventHeaderSize:]
		taker := make([]byte, q.cbLen)
		maker := make([]byte, q.cbLen)
		copy(taker, cb[0:q.cbLen])
		copy(maker, cb[q.cbLen:2*q.cbLen])
		return Event{Fill: &Fill{
			TakerSide:     Side(b[1]),
			QuoteSize:     binary.LittleEndian.Uint64(b[8:16]),
			MakerOrderID:  fp.KeyFromBytes(b[16:32]),
			BaseSize:      binary.LittleEndian.Uint64(b[32:40]),
			TakerCallback: taker,
			MakerCallback: maker,
		}}
	case tagOut:
		cb := b[eventHeaderSize:]
		info := make([]byte, q.cbLen)
		copy(info, cb[0:q.cbLen])
		return Event{Out: &Out{
			Side:         Side(b[1]),
			Delete:       b[2] != 0,
			OrderID:      fp.KeyFromBytes(b[16:32]),
			BaseSize:     binary.LittleEndian.Uint64(b[32:40]),
			CallbackInfo: info,
		}}
	default:
		return Event{}
	}
}

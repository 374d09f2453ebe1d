// Package eventqueue implements the fixed-capacity circular Fill/Out log
// and single-slot register described in spec §3.3/§4.2. Like slab, it is a
// pure view over a caller-provided []byte region: no allocation on the
// append/pop hot path.
package eventqueue

import (
	"encoding/binary"

	"github.com/Bonfida/agnostic-orderbook/internal/engineerr"
	"github.com/Bonfida/agnostic-orderbook/internal/fp"
	"github.com/Bonfida/agnostic-orderbook/internal/slab"
)

// Queue wraps an event-queue byte region.
type Queue struct {
	buf      []byte
	capacity uint32
	cbLen    int
}

const (
	offTag     = 0
	offHead    = 8
	offCount   = 16
	offSeqNum  = 24
)

// Open wraps an existing, already-initialized region.
func Open(buf []byte, callbackInfoLen int) (*Queue, error) {
	capacity := Capacity(len(buf), callbackInfoLen)
	if RegionLen(capacity, callbackInfoLen) != len(buf) {
		return nil, engineerr.ErrAccountSizeMismatch
	}
	q := &Queue{buf: buf, capacity: capacity, cbLen: callbackInfoLen}
	if slab.AccountTag(q.tag()) != slab.TagEventQueue {
		return nil, engineerr.ErrInvalidAccountTag
	}
	return q, nil
}

// Init zeroes and tags a freshly provided region.
func Init(buf []byte, callbackInfoLen int) (*Queue, error) {
	capacity := Capacity(len(buf), callbackInfoLen)
	if capacity == 0 || RegionLen(capacity, callbackInfoLen) != len(buf) {
		return nil, engineerr.ErrAccountSizeMismatch
	}
	for i := range buf {
		buf[i] = 0
	}
	q := &Queue{buf: buf, capacity: capacity, cbLen: callbackInfoLen}
	q.setTag(uint64(slab.TagEventQueue))
	return q, nil
}

func (q *Queue) tag() uint64       { return binary.LittleEndian.Uint64(q.buf[offTag:]) }
func (q *Queue) setTag(v uint64)   { binary.LittleEndian.PutUint64(q.buf[offTag:], v) }
func (q *Queue) Head() uint64      { return binary.LittleEndian.Uint64(q.buf[offHead:]) }
func (q *Queue) setHead(v uint64)  { binary.LittleEndian.PutUint64(q.buf[offHead:], v) }
func (q *Queue) Count() uint64     { return binary.LittleEndian.Uint64(q.buf[offCount:]) }
func (q *Queue) setCount(v uint64) { binary.LittleEndian.PutUint64(q.buf[offCount:], v) }
func (q *Queue) SeqNum() uint64    { return binary.LittleEndian.Uint64(q.buf[offSeqNum:]) }
func (q *Queue) setSeqNum(v uint64) { binary.LittleEndian.PutUint64(q.buf[offSeqNum:], v) }

// Capacity returns the queue's event capacity.
func (q *Queue) Capacity() uint32 { return q.capacity }

// HasCapacity reports whether n more events can be appended before the
// queue is full. Used by the matching engine to preflight a planned match
// before mutating any state (spec §5, §7, §9 — the "queue-full during
// match" open question, resolved here in favor of preflighting).
func (q *Queue) HasCapacity(n uint64) bool {
	return q.Count()+n <= uint64(q.capacity)
}

// NextSeq returns the sequence number that will be assigned to the next
// appended event — used by the matching engine as the tiebreaker for a
// newly posted order's key (spec §4.3 step 3: "the queue's sequence
// doubles as the slab's uniqueness source").
func (q *Queue) NextSeq() uint64 { return q.SeqNum() }

func (q *Queue) appendRaw(encode func([]byte)) error {
	if q.Count() == uint64(q.capacity) {
		return engineerr.ErrEventQueueFull
	}
	writeIdx := (q.Head() + q.Count()) % uint64(q.capacity)
	encode(q.slot(writeIdx))
	q.setCount(q.Count() + 1)
	q.setSeqNum(q.SeqNum() + 1)
	return nil
}

// PushFill appends a Fill event.
func (q *Queue) PushFill(f Fill) error {
	return q.appendRaw(func(b []byte) { q.encodeFill(b, f) })
}

// PushOut appends an Out event.
func (q *Queue) PushOut(o Out) error {
	return q.appendRaw(func(b []byte) { q.encodeOut(b, o) })
}

// Pop pops up to n events from the head, returning how many were
// actually popped. Popped slot bytes are left physically present but
// logically invalid (spec §3.5) — nothing overwrites them until the slot
// is reused by a future append.
func (q *Queue) Pop(n uint64) uint64 {
	k := n
	if count := q.Count(); k > count {
		k = count
	}
	q.setHead((q.Head() + k) % uint64(q.capacity))
	q.setCount(q.Count() - k)
	return k
}

// At decodes the event at logical position i (0 = oldest undrained
// event), for consumers that want to inspect events before popping them.
// i must be < Count().
func (q *Queue) At(i uint64) Event {
	return q.decode(q.slot(q.Head() + i))
}

// Register is the decoded view of NewOrder's single-slot output mailbox
// (spec §3.3/§4.2).
type Register struct {
	Posted             bool
	PostedOrderID      fp.Key
	TotalBaseConsumed  uint64
	TotalQuoteConsumed uint64
	TotalBasePosted    uint64
}

const (
	regOffPosted   = 0
	regOffOrderID  = 8
	regOffBaseCons = 24
	regOffQuoteCons = 32
	regOffBasePost = 40
)

// SetRegister overwrites the register mailbox entirely, per spec §4.2.
func (q *Queue) SetRegister(r Register) {
	b := q.buf[q.registerOffset() : q.registerOffset()+registerSize]
	for i := range b {
		b[i] = 0
	}
	if r.Posted {
		b[regOffPosted] = 1
		r.PostedOrderID.PutBytes(b[regOffOrderID : regOffOrderID+16])
	}
	binary.LittleEndian.PutUint64(b[regOffBaseCons:regOffBaseCons+8], r.TotalBaseConsumed)
	binary.LittleEndian.PutUint64(b[regOffQuoteCons:regOffQuoteCons+8], r.TotalQuoteConsumed)
	binary.LittleEndian.PutUint64(b[regOffBasePost:regOffBasePost+8], r.TotalBasePosted)
}

// GetRegister reads the current content of the register mailbox.
func (q *Queue) GetRegister() Register {
	b := q.buf[q.registerOffset() : q.registerOffset()+registerSize]
	r := Register{
		Posted:             b[regOffPosted] != 0,
		TotalBaseConsumed:  binary.LittleEndian.Uint64(b[regOffBaseCons : regOffBaseCons+8]),
		TotalQuoteConsumed: binary.LittleEndian.Uint64(b[regOffQuoteCons : regOffQuoteCons+8]),
		TotalBasePosted:    binary.LittleEndian.Uint64(b[regOffBasePost : regOffBasePost+8]),
	}
	if r.Posted {
		r.PostedOrderID = fp.KeyFromBytes(b[regOffOrderID : regOffOrderID+16])
	}
	return r
}

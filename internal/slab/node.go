package slab

import (
	"encoding/binary"

	"github.com/Bonfida/agnostic-orderbook/internal/fp"
)

// Handle is the 32-bit tagged node reference from spec §3.2: high bit 0
// means leaf index, high bit 1 means bit-complemented inner index.
// NilHandle (0) means "no node" — index 0 of both arrays is never
// allocated to real content (see layout.go).
type Handle uint32

const NilHandle Handle = 0

// IsLeaf reports whether h refers to a leaf slot.
func (h Handle) IsLeaf() bool { return uint32(h)>>31 == 0 }

func (h Handle) leafIndex() uint32  { return uint32(h) }
func (h Handle) innerIndex() uint32 { return ^uint32(h) }

func leafHandle(idx uint32) Handle  { return Handle(idx) }
func innerHandle(idx uint32) Handle { return Handle(^idx) }

// LeafNode is the decoded, in-hand view of a resting order: its 128-bit
// key and remaining base quantity.
type LeafNode struct {
	Key     fp.Key
	BaseQty uint64
}

func (s *Slab) readLeafKey(idx uint32) fp.Key {
	return fp.KeyFromBytes(s.leafSlot(idx)[0:16])
}

func (s *Slab) readLeaf(idx uint32) LeafNode {
	b := s.leafSlot(idx)
	return LeafNode{
		Key:     fp.KeyFromBytes(b[0:16]),
		BaseQty: binary.LittleEndian.Uint64(b[16:24]),
	}
}

func (s *Slab) writeLeaf(idx uint32, key fp.Key, baseQty uint64) {
	b := s.leafSlot(idx)
	key.PutBytes(b[0:16])
	binary.LittleEndian.PutUint64(b[16:24], baseQty)
}

func (s *Slab) leafBaseQty(idx uint32) uint64 {
	return binary.LittleEndian.Uint64(s.leafSlot(idx)[16:24])
}

func (s *Slab) setLeafBaseQty(idx uint32, v uint64) {
	binary.LittleEndian.PutUint64(s.leafSlot(idx)[16:24], v)
}

// leafFreeNext/setLeafFreeNext repurpose a freed leaf slot's BaseQty field
// to chain the free list — the key/quantity of a free slot is meaningless,
// so reusing the storage costs nothing extra.
func (s *Slab) leafFreeNext(idx uint32) uint32    { return uint32(s.leafBaseQty(idx)) }
func (s *Slab) setLeafFreeNext(idx, next uint32) { s.setLeafBaseQty(idx, uint64(next)) }

// CallbackInfo returns a zero-copy view of the callback info attached to
// the leaf at handle h. The slice aliases the slab's backing buffer and is
// only valid until the slot is reused.
func (s *Slab) CallbackInfo(h Handle) []byte {
	return s.cbSlot(h.leafIndex())
}

func (s *Slab) setCallbackInfo(idx uint32, cb []byte) {
	copy(s.cbSlot(idx), cb)
}

type innerNode struct {
	Prefix    fp.Key
	PrefixLen uint64
	Children  [2]Handle
}

func (s *Slab) readInner(idx uint32) innerNode {
	b := s.innerSlot(idx)
	return innerNode{
		Prefix:    fp.KeyFromBytes(b[0:16]),
		PrefixLen: binary.LittleEndian.Uint64(b[16:24]),
		Children: [2]Handle{
			Handle(binary.LittleEndian.Uint32(b[24:28])),
			Handle(binary.LittleEndian.Uint32(b[28:32])),
		},
	}
}

func (s *Slab) writeInner(idx uint32, prefix fp.Key, prefixLen int, children [2]Handle) {
	b := s.innerSlot(idx)
	prefix.PutBytes(b[0:16])
	binary.LittleEndian.PutUint64(b[16:24], uint64(prefixLen))
	binary.LittleEndian.PutUint32(b[24:28], uint32(children[0]))
	binary.LittleEndian.PutUint32(b[28:32], uint32(children[1]))
}

func (s *Slab) setInnerChild(idx uint32, side int, h Handle) {
	b := s.innerSlot(idx)
	binary.LittleEndian.PutUint32(b[24+side*4:28+side*4], uint32(h))
}

// innerFreeNext/setInnerFreeNext repurpose a freed inner slot's first
// child field to chain the free list.
func (s *Slab) innerFreeNext(idx uint32) uint32 {
	return binary.LittleEndian.Uint32(s.innerSlot(idx)[24:28])
}
func (s *Slab) setInnerFreeNext(idx, next uint32) {
	binary.LittleEndian.PutUint32(s.innerSlot(idx)[24:28], next)
}

package slab

import "encoding/binary"

// AccountTag mirrors spec §6.4 — every region a handler touches carries one
// of these in its first 8 bytes.
type AccountTag uint64

const (
	TagUninitialized AccountTag = 0
	TagMarket        AccountTag = 1
	TagEventQueue    AccountTag = 2
	TagBids          AccountTag = 3
	TagAsks          AccountTag = 4
	TagDisabled      AccountTag = 5
)

// header field byte offsets within the first 40 bytes (spec §6.1).
const (
	offTag              = 0
	offLeafFreeListLen  = 8
	offLeafFreeListHead = 12
	offLeafBumpIndex    = 16
	offInnerFreeListLen = 20
	offInnerFreeListHead = 24
	offInnerBumpIndex   = 28
	offRootNode         = 32
	offLeafCount        = 36
)

func (s *Slab) tag() AccountTag {
	return AccountTag(binary.LittleEndian.Uint64(s.buf[offTag:]))
}

func (s *Slab) setTag(t AccountTag) {
	binary.LittleEndian.PutUint64(s.buf[offTag:], uint64(t))
}

func (s *Slab) leafFreeListLen() uint32 { return binary.LittleEndian.Uint32(s.buf[offLeafFreeListLen:]) }
func (s *Slab) setLeafFreeListLen(v uint32) {
	binary.LittleEndian.PutUint32(s.buf[offLeafFreeListLen:], v)
}

func (s *Slab) leafFreeListHead() uint32 {
	return binary.LittleEndian.Uint32(s.buf[offLeafFreeListHead:])
}
func (s *Slab) setLeafFreeListHead(v uint32) {
	binary.LittleEndian.PutUint32(s.buf[offLeafFreeListHead:], v)
}

func (s *Slab) leafBumpIndex() uint32 { return binary.LittleEndian.Uint32(s.buf[offLeafBumpIndex:]) }
func (s *Slab) setLeafBumpIndex(v uint32) {
	binary.LittleEndian.PutUint32(s.buf[offLeafBumpIndex:], v)
}

func (s *Slab) innerFreeListLen() uint32 {
	return binary.LittleEndian.Uint32(s.buf[offInnerFreeListLen:])
}
func (s *Slab) setInnerFreeListLen(v uint32) {
	binary.LittleEndian.PutUint32(s.buf[offInnerFreeListLen:], v)
}

func (s *Slab) innerFreeListHead() uint32 {
	return binary.LittleEndian.Uint32(s.buf[offInnerFreeListHead:])
}
func (s *Slab) setInnerFreeListHead(v uint32) {
	binary.LittleEndian.PutUint32(s.buf[offInnerFreeListHead:], v)
}

func (s *Slab) innerBumpIndex() uint32 { return binary.LittleEndian.Uint32(s.buf[offInnerBumpIndex:]) }
func (s *Slab) setInnerBumpIndex(v uint32) {
	binary.LittleEndian.PutUint32(s.buf[offInnerBumpIndex:], v)
}

func (s *Slab) root() Handle { return Handle(binary.LittleEndian.Uint32(s.buf[offRootNode:])) }
func (s *Slab) setRoot(h Handle) {
	binary.LittleEndian.PutUint32(s.buf[offRootNode:], uint32(h))
}

// LeafCount returns the number of leaves currently reachable from the
// root (spec invariant §3.2).
func (s *Slab) LeafCount() uint32 { return binary.LittleEndian.Uint32(s.buf[offLeafCount:]) }
func (s *Slab) setLeafCount(v uint32) {
	binary.LittleEndian.PutUint32(s.buf[offLeafCount:], v)
}

// Tag returns the account tag stored in the region's header.
func (s *Slab) Tag() AccountTag { return s.tag() }

// Empty reports whether the tree holds no leaves.
func (s *Slab) Empty() bool { return s.root() == NilHandle }

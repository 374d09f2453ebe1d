// Package slab implements the crit-bit tree arena that indexes one side of
// the book (spec §4.1). The tree lives entirely inside a caller-provided
// []byte region sized at market-creation time: every operation here reads
// and writes fixed offsets in that buffer. The tree walks themselves do not
// allocate; Remove and an Insert that replaces an existing key return
// heap-allocated copies of callback info, and Iter allocates its result.
package slab

import (
	"github.com/Bonfida/agnostic-orderbook/internal/engineerr"
	"github.com/Bonfida/agnostic-orderbook/internal/fp"
)

// Slab wraps a byte region as a crit-bit tree arena. It holds no state of
// its own beyond the region length and callback-info size — every other
// field (root, free lists, counts) lives in buf's header, per spec §3.2.
type Slab struct {
	buf      []byte
	capacity uint32
	cbLen    int
}

// Open wraps an existing region (already tagged and initialized by
// CreateMarket) for use. It validates the tag and that buf is exactly the
// length implied by capacity/callbackInfoLen.
func Open(buf []byte, wantTag AccountTag, callbackInfoLen int) (*Slab, error) {
	capacity := Capacity(len(buf), callbackInfoLen)
	if RegionLen(capacity, callbackInfoLen) != len(buf) {
		return nil, engineerr.ErrAccountSizeMismatch
	}
	s := &Slab{buf: buf, capacity: capacity, cbLen: callbackInfoLen}
	if s.tag() != wantTag {
		return nil, engineerr.ErrInvalidAccountTag
	}
	return s, nil
}

// Init zeroes and tags a freshly provided region, sizing the tree for the
// region's length, and returns the wrapped Slab. Used by CreateMarket.
func Init(buf []byte, tag AccountTag, callbackInfoLen int) (*Slab, error) {
	capacity := Capacity(len(buf), callbackInfoLen)
	if capacity == 0 || RegionLen(capacity, callbackInfoLen) != len(buf) {
		return nil, engineerr.ErrAccountSizeMismatch
	}
	for i := range buf {
		buf[i] = 0
	}
	s := &Slab{buf: buf, capacity: capacity, cbLen: callbackInfoLen}
	s.setTag(tag)
	return s, nil
}

// Capacity returns the maximum number of resting orders this slab can hold.
func (s *Slab) Capacity() uint32 { return s.capacity }

func (s *Slab) allocateLeaf() (uint32, error) {
	if head := s.leafFreeListHead(); head != NilHandleIdx {
		next := s.leafFreeNext(head)
		s.setLeafFreeListHead(next)
		s.setLeafFreeListLen(s.leafFreeListLen() - 1)
		return head, nil
	}
	idx := s.leafBumpIndex()
	if idx == 0 {
		idx = 1
	}
	if idx > s.capacity {
		return 0, engineerr.ErrSlabFull
	}
	s.setLeafBumpIndex(idx + 1)
	return idx, nil
}

func (s *Slab) freeLeaf(idx uint32) {
	s.setLeafFreeNext(idx, s.leafFreeListHead())
	s.setLeafFreeListHead(idx)
	s.setLeafFreeListLen(s.leafFreeListLen() + 1)
}

func (s *Slab) allocateInner() (uint32, error) {
	if head := s.innerFreeListHead(); head != NilHandleIdx {
		next := s.innerFreeNext(head)
		s.setInnerFreeListHead(next)
		s.setInnerFreeListLen(s.innerFreeListLen() - 1)
		return head, nil
	}
	idx := s.innerBumpIndex()
	if idx == 0 {
		idx = 1
	}
	// usable inner slots are 1..capacity-1 (see layout.go)
	if s.capacity == 0 || idx > s.capacity-1 {
		return 0, engineerr.ErrSlabFull
	}
	s.setInnerBumpIndex(idx + 1)
	return idx, nil
}

func (s *Slab) freeInner(idx uint32) {
	s.setInnerFreeNext(idx, s.innerFreeListHead())
	s.setInnerFreeListHead(idx)
	s.setInnerFreeListLen(s.innerFreeListLen() + 1)
}

// NilHandleIdx names the reserved index that is never allocated.
const NilHandleIdx uint32 = 0

// Find returns the handle of the leaf with the given key, if present.
func (s *Slab) Find(key fp.Key) (Handle, bool) {
	cur := s.root()
	for cur != NilHandle && !cur.IsLeaf() {
		in := s.readInner(cur.innerIndex())
		if key.CommonPrefixLen(in.Prefix) < int(in.PrefixLen) {
			return NilHandle, false
		}
		cur = in.Children[key.Bit(int(in.PrefixLen))]
	}
	if cur == NilHandle {
		return NilHandle, false
	}
	if s.readLeafKey(cur.leafIndex()).Equal(key) {
		return cur, true
	}
	return NilHandle, false
}

// FindMin returns the handle of the lowest-keyed leaf (descend left at
// every inner node).
func (s *Slab) FindMin() (Handle, bool) { return s.findExtreme(0) }

// FindMax returns the handle of the highest-keyed leaf (descend right at
// every inner node).
func (s *Slab) FindMax() (Handle, bool) { return s.findExtreme(1) }

func (s *Slab) findExtreme(side int) (Handle, bool) {
	cur := s.root()
	if cur == NilHandle {
		return NilHandle, false
	}
	for !cur.IsLeaf() {
		in := s.readInner(cur.innerIndex())
		cur = in.Children[side]
	}
	return cur, true
}

// Leaf returns the decoded leaf value at handle h. h must be a valid leaf
// handle previously returned by Find/FindMin/FindMax/Insert/Walk.
func (s *Slab) Leaf(h Handle) LeafNode { return s.readLeaf(h.leafIndex()) }

// SetQuantity updates the remaining base quantity of the leaf at h
// in place — used by the matching engine to decrement a maker after a
// partial fill, without touching the tree's shape.
func (s *Slab) SetQuantity(h Handle, qty uint64) { s.setLeafBaseQty(h.leafIndex(), qty) }

// Insert places key/qty/cb into the tree. If key already exists, its
// quantity and callback info are replaced in place (no tree mutation) and
// replaced reports true along with the prior leaf value and a caller-owned
// copy of the prior callback info. Otherwise a new leaf is allocated and
// linked in, per the algorithm in spec §4.1.
func (s *Slab) Insert(key fp.Key, qty uint64, cb []byte) (h Handle, replaced bool, prev LeafNode, prevCb []byte, err error) {
	if s.root() == NilHandle {
		idx, aerr := s.allocateLeaf()
		if aerr != nil {
			return NilHandle, false, LeafNode{}, nil, aerr
		}
		s.writeLeaf(idx, key, qty)
		s.setCallbackInfo(idx, cb)
		s.setRoot(leafHandle(idx))
		s.setLeafCount(1)
		return leafHandle(idx), false, LeafNode{}, nil, nil
	}

	var parentIdx uint32
	var parentSide int
	hasParent := false
	cur := s.root()
	splitAt := -1

	for {
		if cur.IsLeaf() {
			leafIdx := cur.leafIndex()
			existing := s.readLeafKey(leafIdx)
			if existing.Equal(key) {
				prevLeaf := s.readLeaf(leafIdx)
				prevCopy := make([]byte, s.cbLen)
				copy(prevCopy, s.cbSlot(leafIdx))
				s.setLeafBaseQty(leafIdx, qty)
				s.setCallbackInfo(leafIdx, cb)
				return leafHandle(leafIdx), true, prevLeaf, prevCopy, nil
			}
			splitAt = existing.CommonPrefixLen(key)
			break
		}
		innerIdx := cur.innerIndex()
		in := s.readInner(innerIdx)
		cpl := key.CommonPrefixLen(in.Prefix)
		if cpl < int(in.PrefixLen) {
			splitAt = cpl
			break
		}
		bit := key.Bit(int(in.PrefixLen))
		parentIdx, parentSide, hasParent = innerIdx, bit, true
		cur = in.Children[bit]
	}

	newLeafIdx, aerr := s.allocateLeaf()
	if aerr != nil {
		return NilHandle, false, LeafNode{}, nil, aerr
	}
	newInnerIdx, aerr := s.allocateInner()
	if aerr != nil {
		s.freeLeaf(newLeafIdx)
		return NilHandle, false, LeafNode{}, nil, aerr
	}
	s.writeLeaf(newLeafIdx, key, qty)
	s.setCallbackInfo(newLeafIdx, cb)

	bit := key.Bit(splitAt)
	var children [2]Handle
	if bit == 0 {
		children[0], children[1] = leafHandle(newLeafIdx), cur
	} else {
		children[0], children[1] = cur, leafHandle(newLeafIdx)
	}
	s.writeInner(newInnerIdx, key.MaskPrefix(splitAt), splitAt, children)
	newHandle := innerHandle(newInnerIdx)
	if !hasParent {
		s.setRoot(newHandle)
	} else {
		s.setInnerChild(parentIdx, parentSide, newHandle)
	}
	s.setLeafCount(s.LeafCount() + 1)
	return leafHandle(newLeafIdx), false, LeafNode{}, nil, nil
}

// Remove detaches the leaf keyed by key, promoting its sibling into the
// parent's slot and freeing both the leaf and its former parent inner
// node (spec §4.1). ok is false if key was not present.
func (s *Slab) Remove(key fp.Key) (leaf LeafNode, cb []byte, ok bool) {
	cur := s.root()
	if cur == NilHandle {
		return LeafNode{}, nil, false
	}

	var parentIdx, grandIdx uint32
	var parentSide, grandSide int
	hasParent, hasGrand := false, false

	for !cur.IsLeaf() {
		innerIdx := cur.innerIndex()
		in := s.readInner(innerIdx)
		bit := key.Bit(int(in.PrefixLen))
		grandIdx, grandSide, hasGrand = parentIdx, parentSide, hasParent
		parentIdx, parentSide, hasParent = innerIdx, bit, true
		cur = in.Children[bit]
	}

	leafIdx := cur.leafIndex()
	if !s.readLeafKey(leafIdx).Equal(key) {
		return LeafNode{}, nil, false
	}

	if !hasParent {
		s.setRoot(NilHandle)
	} else {
		in := s.readInner(parentIdx)
		sibling := in.Children[1-parentSide]
		if !hasGrand {
			s.setRoot(sibling)
		} else {
			s.setInnerChild(grandIdx, grandSide, sibling)
		}
		s.freeInner(parentIdx)
	}

	leaf = s.readLeaf(leafIdx)
	cb = make([]byte, s.cbLen)
	copy(cb, s.cbSlot(leafIdx))
	s.freeLeaf(leafIdx)
	s.setLeafCount(s.LeafCount() - 1)
	return leaf, cb, true
}

// RemoveHandle removes a leaf already located via Find/Walk. It
// re-derives the parent chain from the leaf's own
// key, which is cheap (one more O(128) walk) and keeps the arena free of
// stored back-pointers (spec design note §9).
func (s *Slab) RemoveHandle(h Handle) (LeafNode, []byte, bool) {
	key := s.readLeafKey(h.leafIndex())
	return s.Remove(key)
}

// Walk visits leaves in key order without allocating: ascending visits
// lowest-to-highest, descending visits highest-to-lowest. visit returning
// false stops the walk early. The explicit stack is bounded by the crit-bit
// depth bound of 128 (spec P2): one root entry plus one extra slot per
// inner node descended (pop one, push two), so 129 slots cover the deepest
// possible path without overflow.
func (s *Slab) Walk(ascending bool, visit func(Handle) bool) {
	root := s.root()
	if root == NilHandle {
		return
	}
	var stack [129]Handle
	sp := 0
	stack[sp] = root
	sp++

	near, far := 0, 1
	if !ascending {
		near, far = 1, 0
	}

	for sp > 0 {
		sp--
		h := stack[sp]
		if h.IsLeaf() {
			if !visit(h) {
				return
			}
			continue
		}
		in := s.readInner(h.innerIndex())
		stack[sp] = in.Children[far]
		sp++
		stack[sp] = in.Children[near]
		sp++
	}
}

// Iter collects leaves in key order into a slice. It allocates and is
// meant for tests/diagnostics/host-side instructions (Prune), never for
// the per-order matching hot path, which uses Walk directly.
func (s *Slab) Iter(ascending bool) []Handle {
	out := make([]Handle, 0, s.LeafCount())
	s.Walk(ascending, func(h Handle) bool {
		out = append(out, h)
		return true
	})
	return out
}

// EvictWorst removes the single worst-priced resting leaf on this side, to
// make room for a strictly-better-priced incoming order under capacity
// pressure (spec §4.3 step 3, §9). Because the key encoding folds book
// orientation into the key itself (fp.NewBidKey/NewAskKey), ascending
// order is always best-first regardless of which side this Slab indexes —
// so "worst" is always FindMax, on both a bids slab and an asks slab.
func (s *Slab) EvictWorst() (LeafNode, []byte, bool) {
	h, ok := s.FindMax()
	if !ok {
		return LeafNode{}, nil, false
	}
	return s.RemoveHandle(h)
}

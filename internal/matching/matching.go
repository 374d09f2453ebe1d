// Package matching implements the algorithm that drives a new order against
// the opposing side's slab: it walks best-to-worst, applies self-trade
// policy, emits Fill/Out events, and posts whatever remains (spec §4.3).
// All book and queue state lives in caller-owned byte regions. The matcher
// still makes small heap allocations: a copy of the maker's and taker's
// callback info for each emitted event, and a set of skipped handles once
// a DecrementTake self-trade has occurred.
package matching

import (
	"github.com/Bonfida/agnostic-orderbook/internal/engineerr"
	"github.com/Bonfida/agnostic-orderbook/internal/eventqueue"
	"github.com/Bonfida/agnostic-orderbook/internal/fp"
	"github.com/Bonfida/agnostic-orderbook/internal/slab"
)

// SelfTradeBehavior selects how a crossing maker owned by the taker is
// handled, spec §4.3.
type SelfTradeBehavior uint8

const (
	DecrementTake SelfTradeBehavior = iota
	CancelProvide
	AbortTransaction
)

// Params is a NewOrder request, spec §4.3 "Inputs".
type Params struct {
	Side              eventqueue.Side
	LimitPrice        uint64
	MaxBaseQty        uint64
	MaxQuoteQty       uint64
	MatchLimit        uint64
	CallbackInfo      []byte
	CallbackIDLen     int
	PostOnly          bool
	PostAllowed       bool
	SelfTradeBehavior SelfTradeBehavior
	MinBaseOrderSize  uint64
}

// Result is what the register reports back to the caller, spec §4.3
// "Outputs".
type Result struct {
	Posted             bool
	PostedOrderID      fp.Key
	TotalBaseConsumed  uint64
	TotalQuoteConsumed uint64
	TotalBasePosted    uint64
}

// crosses reports whether a maker at price m crosses a taker's limit price
// on the given side (spec §4.3 step 1).
func crosses(side eventqueue.Side, limitPrice, makerPrice uint64) bool {
	if side == eventqueue.SideBid {
		return makerPrice <= limitPrice
	}
	return makerPrice >= limitPrice
}

func sameCallbackID(a, b []byte, n int) bool {
	if len(a) < n || len(b) < n {
		return false
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// maxEventsForPlan bounds how many events a match under p could possibly
// emit: one Fill and, in the worst case, one Out per maker visited, plus
// one more Out if the residual is posted and eviction is triggered.
func maxEventsForPlan(p Params) uint64 {
	return 2*p.MatchLimit + 1
}

// NewOrder runs the full algorithm from spec §4.3 against opp (the
// opposite side's slab) and own (the taker's own side, for posting the
// residual), appending every Fill/Out it produces to q and leaving the
// final Result in q's register. own may be nil if the taker never intends
// to post (PostAllowed is false) and PostOnly is false.
//
// On any error the four regions are left byte-identical to their state on
// entry — see the two-pass abort handling below for AbortTransaction.
func NewOrder(q *eventqueue.Queue, opp, own *slab.Slab, p Params) (Result, error) {
	if !q.HasCapacity(maxEventsForPlan(p)) {
		return Result{}, engineerr.ErrEventQueueFull
	}

	if p.SelfTradeBehavior == AbortTransaction {
		if wouldSelfTrade(opp, p) {
			return Result{}, engineerr.ErrWouldSelfTrade
		}
	}

	if p.PostOnly && bestCrosses(opp, p) {
		return Result{}, engineerr.ErrPostOnlyCrosses
	}

	var res Result
	baseRemaining := p.MaxBaseQty
	quoteRemaining := p.MaxQuoteQty
	matchesLeft := p.MatchLimit
	var skipped map[slab.Handle]bool

	for matchesLeft > 0 && baseRemaining > 0 && quoteRemaining > 0 {
		h, ok := findBestExcluding(opp, skipped)
		if !ok {
			break
		}
		maker := opp.Leaf(h)
		makerPrice := maker.Key.PriceOf(p.Side == eventqueue.SideAsk)
		if !crosses(p.Side, p.LimitPrice, makerPrice) {
			break
		}
		makerCb := opp.CallbackInfo(h)

		if sameCallbackID(makerCb, p.CallbackInfo, p.CallbackIDLen) {
			switch p.SelfTradeBehavior {
			case DecrementTake:
				// reduce max_base_qty (and max_quote_qty) by
				// min(max_base_qty, maker.base), without emitting a Fill
				// and without modifying the maker; skip it and keep
				// looking for the next best maker.
				dec := maker.BaseQty
				if dec > baseRemaining {
					dec = baseRemaining
				}
				baseRemaining -= dec
				if dec > quoteRemaining {
					quoteRemaining = 0
				} else {
					quoteRemaining -= dec
				}
				matchesLeft--
				if skipped == nil {
					skipped = make(map[slab.Handle]bool, 1)
				}
				skipped[h] = true
				continue
			case CancelProvide:
				cb := make([]byte, len(makerCb))
				copy(cb, makerCb)
				leaf, _, _ := opp.RemoveHandle(h)
				if err := q.PushOut(eventqueue.Out{
					Side:         oppSide(p.Side),
					OrderID:      leaf.Key,
					BaseSize:     leaf.BaseQty,
					Delete:       true,
					CallbackInfo: cb,
				}); err != nil {
					return Result{}, err
				}
				matchesLeft--
				continue
			}
		}

		b := maker.BaseQty
		if baseRemaining < b {
			b = baseRemaining
		}
		if affordable := fp.DivFloor(quoteRemaining, makerPrice); affordable < b {
			b = affordable
		}
		if b == 0 {
			break
		}
		qCost := fp.MulCeil(b, makerPrice)

		takerCb := make([]byte, len(p.CallbackInfo))
		copy(takerCb, p.CallbackInfo)
		makerCbCopy := make([]byte, len(makerCb))
		copy(makerCbCopy, makerCb)

		if err := q.PushFill(eventqueue.Fill{
			TakerSide:     p.Side,
			QuoteSize:     qCost,
			MakerOrderID:  maker.Key,
			BaseSize:      b,
			MakerCallback: makerCbCopy,
			TakerCallback: takerCb,
		}); err != nil {
			return Result{}, err
		}

		makerRemaining := maker.BaseQty - b
		if makerRemaining == 0 || makerRemaining < p.MinBaseOrderSize {
			leaf, cb, _ := opp.RemoveHandle(h)
			if err := q.PushOut(eventqueue.Out{
				Side:         oppSide(p.Side),
				OrderID:      leaf.Key,
				BaseSize:     0,
				Delete:       true,
				CallbackInfo: cb,
			}); err != nil {
				return Result{}, err
			}
		} else {
			opp.SetQuantity(h, makerRemaining)
		}

		res.TotalBaseConsumed += b
		res.TotalQuoteConsumed += qCost
		baseRemaining -= b
		quoteRemaining -= qCost
		matchesLeft--
	}

	if p.PostAllowed && baseRemaining > 0 && baseRemaining >= p.MinBaseOrderSize {
		seq := q.NextSeq()
		var key fp.Key
		if p.Side == eventqueue.SideBid {
			key = fp.NewBidKey(p.LimitPrice, seq)
		} else {
			key = fp.NewAskKey(p.LimitPrice, seq)
		}
		_, replaced, _, _, err := own.Insert(key, baseRemaining, p.CallbackInfo)
		if err == engineerr.ErrSlabFull {
			wh, hasWorst := own.FindMax()
			if !hasWorst || !key.Less(own.Leaf(wh).Key) {
				return Result{}, engineerr.ErrSlabFull
			}
			worst, worstCb, _ := own.EvictWorst()
			if err := q.PushOut(eventqueue.Out{
				Side:         p.Side,
				OrderID:      worst.Key,
				BaseSize:     worst.BaseQty,
				Delete:       true,
				CallbackInfo: worstCb,
			}); err != nil {
				return Result{}, err
			}
			_, replaced, _, _, err = own.Insert(key, baseRemaining, p.CallbackInfo)
			if err != nil {
				return Result{}, err
			}
		} else if err != nil {
			return Result{}, err
		}
		_ = replaced
		res.Posted = true
		res.PostedOrderID = key
		res.TotalBasePosted = baseRemaining
	}

	q.SetRegister(eventqueue.Register{
		Posted:             res.Posted,
		PostedOrderID:      res.PostedOrderID,
		TotalBaseConsumed:  res.TotalBaseConsumed,
		TotalQuoteConsumed: res.TotalQuoteConsumed,
		TotalBasePosted:    res.TotalBasePosted,
	})
	return res, nil
}

// findBestExcluding returns opp's best (min) leaf that is not in skipped —
// the lookup a DecrementTake self-trade needs, since the skipped maker is
// never removed from the tree and FindMin alone would return it forever.
// With no skips yet, this is the ordinary O(depth) FindMin; only once a
// DecrementTake skip has happened does it fall back to a bounded walk.
func findBestExcluding(opp *slab.Slab, skipped map[slab.Handle]bool) (slab.Handle, bool) {
	if len(skipped) == 0 {
		return opp.FindMin()
	}
	var found slab.Handle
	var ok bool
	opp.Walk(true, func(h slab.Handle) bool {
		if !skipped[h] {
			found, ok = h, true
			return false
		}
		return true
	})
	return found, ok
}

func oppSide(taker eventqueue.Side) eventqueue.Side {
	if taker == eventqueue.SideBid {
		return eventqueue.SideAsk
	}
	return eventqueue.SideBid
}

// bestCrosses reports whether the current best of opp would cross p's
// limit — used by the post-only check, which must not mutate opp even to
// find out (spec §4.3 step 4).
func bestCrosses(opp *slab.Slab, p Params) bool {
	h, ok := opp.FindMin()
	if !ok {
		return false
	}
	leaf := opp.Leaf(h)
	makerPrice := leaf.Key.PriceOf(p.Side == eventqueue.SideAsk)
	return crosses(p.Side, p.LimitPrice, makerPrice)
}

// wouldSelfTrade is the read-only prescan required by AbortTransaction
// (spec P9): it walks opp exactly as the real match would, up to the same
// stopping conditions, and reports whether any visited maker shares a
// callback id with the taker — without mutating opp, q, or own. Only once
// this returns false does NewOrder proceed to the real, mutating pass.
func wouldSelfTrade(opp *slab.Slab, p Params) bool {
	baseRemaining := p.MaxBaseQty
	quoteRemaining := p.MaxQuoteQty
	matchesLeft := p.MatchLimit
	found := false

	opp.Walk(true, func(h slab.Handle) bool {
		if matchesLeft == 0 || baseRemaining == 0 || quoteRemaining == 0 {
			return false
		}
		leaf := opp.Leaf(h)
		makerPrice := leaf.Key.PriceOf(p.Side == eventqueue.SideAsk)
		if !crosses(p.Side, p.LimitPrice, makerPrice) {
			return false
		}
		cb := opp.CallbackInfo(h)
		if sameCallbackID(cb, p.CallbackInfo, p.CallbackIDLen) {
			found = true
			return false
		}
		b := leaf.BaseQty
		if baseRemaining < b {
			b = baseRemaining
		}
		if affordable := fp.DivFloor(quoteRemaining, makerPrice); affordable < b {
			b = affordable
		}
		if b == 0 {
			return false
		}
		qCost := fp.MulCeil(b, makerPrice)
		baseRemaining -= b
		if qCost > quoteRemaining {
			quoteRemaining = 0
		} else {
			quoteRemaining -= qCost
		}
		matchesLeft--
		return true
	})
	return found
}

package matching

import (
	"github.com/Bonfida/agnostic-orderbook/internal/engineerr"
	"github.com/Bonfida/agnostic-orderbook/internal/eventqueue"
	"github.com/Bonfida/agnostic-orderbook/internal/fp"
	"github.com/Bonfida/agnostic-orderbook/internal/slab"
)

// ResumeMatching clears a crossed book left behind by a paused market, one
// bounded batch per call (original_source/program/src/processor/
// resume_matching.rs): it repeatedly fills the best bid against the best
// ask while they still cross, up to matchLimit pairs, and reports whether
// the book is now fully uncrossed. A caller should keep invoking it (the
// market stays paused) until it returns true.
func ResumeMatching(q *eventqueue.Queue, bids, asks *slab.Slab, minBaseOrderSize, matchLimit uint64) (bool, error) {
	if !q.HasCapacity(3 * matchLimit) {
		return false, engineerr.ErrEventQueueFull
	}

	for matched := uint64(0); matched < matchLimit; matched++ {
		bh, bok := bids.FindMin()
		ah, aok := asks.FindMin()
		if !bok || !aok {
			return true, nil
		}
		bid := bids.Leaf(bh)
		ask := asks.Leaf(ah)
		bidPrice := bid.Key.PriceOf(true)
		askPrice := ask.Key.PriceOf(false)
		if bidPrice < askPrice {
			return true, nil
		}

		b := bid.BaseQty
		if ask.BaseQty < b {
			b = ask.BaseQty
		}
		qCost := fp.MulCeil(b, askPrice)

		bidCb := append([]byte(nil), bids.CallbackInfo(bh)...)
		askCb := append([]byte(nil), asks.CallbackInfo(ah)...)
		if err := q.PushFill(eventqueue.Fill{
			TakerSide:     eventqueue.SideBid,
			QuoteSize:     qCost,
			MakerOrderID:  ask.Key,
			BaseSize:      b,
			MakerCallback: askCb,
			TakerCallback: bidCb,
		}); err != nil {
			return false, err
		}

		if err := settleLeg(q, bids, bh, bid.BaseQty-b, minBaseOrderSize, eventqueue.SideBid); err != nil {
			return false, err
		}
		if err := settleLeg(q, asks, ah, ask.BaseQty-b, minBaseOrderSize, eventqueue.SideAsk); err != nil {
			return false, err
		}
	}

	bh, bok := bids.FindMin()
	ah, aok := asks.FindMin()
	if !bok || !aok {
		return true, nil
	}
	return bids.Leaf(bh).Key.PriceOf(true) < asks.Leaf(ah).Key.PriceOf(false), nil
}

// settleLeg shrinks or removes the leaf at h depending on its post-fill
// remaining quantity, mirroring the per-maker bookkeeping NewOrder does.
func settleLeg(q *eventqueue.Queue, s *slab.Slab, h slab.Handle, remaining, minBaseOrderSize uint64, side eventqueue.Side) error {
	if remaining == 0 || remaining < minBaseOrderSize {
		leaf, cb, _ := s.RemoveHandle(h)
		return q.PushOut(eventqueue.Out{
			Side:         side,
			OrderID:      leaf.Key,
			BaseSize:     0,
			Delete:       true,
			CallbackInfo: cb,
		})
	}
	s.SetQuantity(h, remaining)
	return nil
}

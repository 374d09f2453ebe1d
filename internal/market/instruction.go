package market

import (
	"encoding/binary"

	"github.com/Bonfida/agnostic-orderbook/internal/engineerr"
	"github.com/Bonfida/agnostic-orderbook/internal/eventqueue"
	"github.com/Bonfida/agnostic-orderbook/internal/fp"
	"github.com/Bonfida/agnostic-orderbook/internal/matching"
	"github.com/Bonfida/agnostic-orderbook/internal/slab"
)

// Tag is the instruction's first wire byte (spec §6.3, extended by
// SPEC_FULL.md §5 with Prune, CancelOrderByClientId, MassCancelOrders,
// PauseMatching, and ResumeMatching).
type Tag uint8

const (
	TagCreateMarket Tag = iota
	TagNewOrder
	TagConsumeEvents
	TagCancelOrder
	TagCloseMarket
	TagPrune
	TagCancelOrderByClientID
	TagMassCancelOrders
	TagPauseMatching
	TagResumeMatching
)

// Regions bundles the four byte-region views an instruction handler needs.
// The host is responsible for slicing these out of whatever account
// representation it uses (spec §1: "out of scope — host-specific account
// deserialization").
type Regions struct {
	Market     []byte
	EventQueue *eventqueue.Queue
	Bids       *slab.Slab
	Asks       *slab.Slab
}

// CreateMarketParams is the wire body for tag 0.
type CreateMarketParams struct {
	CallerAuthority    [32]byte
	MarketAuthority    [32]byte
	HasMarketAuthority bool
	CallbackIDLen      uint64
	CallbackInfoLen    uint64
	MinBaseOrderSize   uint64
	TickSize           uint64
	CrankerReward      uint64
	FeeBudget          uint64
}

// CreateMarket initializes a fresh MarketState plus empty bids/asks/event
// queue regions (spec §4.4). eqBuf/bidsBuf/asksBuf must already be sized
// by the host for the capacities it wants (internal/slab.RegionLen,
// internal/eventqueue.RegionLen).
func CreateMarket(marketBuf, eqBuf, bidsBuf, asksBuf []byte, p CreateMarketParams) (*eventqueue.Queue, *slab.Slab, *slab.Slab, error) {
	eq, err := eventqueue.Init(eqBuf, int(p.CallbackInfoLen))
	if err != nil {
		return nil, nil, nil, err
	}
	bids, err := slab.Init(bidsBuf, slab.TagBids, int(p.CallbackInfoLen))
	if err != nil {
		return nil, nil, nil, err
	}
	asks, err := slab.Init(asksBuf, slab.TagAsks, int(p.CallbackInfoLen))
	if err != nil {
		return nil, nil, nil, err
	}
	state := State{
		CallerAuthority:    p.CallerAuthority,
		MarketAuthority:    p.MarketAuthority,
		HasMarketAuthority: p.HasMarketAuthority,
		CallbackIDLen:      p.CallbackIDLen,
		CallbackInfoLen:    p.CallbackInfoLen,
		MinBaseOrderSize:   p.MinBaseOrderSize,
		TickSize:           p.TickSize,
		CrankerReward:      p.CrankerReward,
		FeeBudget:          p.FeeBudget,
	}
	if err := Encode(marketBuf, state); err != nil {
		return nil, nil, nil, err
	}
	return eq, bids, asks, nil
}

// NewOrderParams is the wire body for tag 1, mirroring matching.Params
// minus the two fields (CallbackIDLen, MinBaseOrderSize) supplied by the
// market state rather than the caller.
type NewOrderParams struct {
	Side              eventqueue.Side
	LimitPrice        uint64
	MaxBaseQty        uint64
	MaxQuoteQty       uint64
	MatchLimit        uint64
	CallbackInfo      []byte
	PostOnly          bool
	PostAllowed       bool
	SelfTradeBehavior matching.SelfTradeBehavior
}

// NewOrder validates the market state and dispatches to internal/matching
// (spec §4.3/§4.4). own/opp are resolved from r.Bids/r.Asks by p.Side.
// callerAuthority must match st.CallerAuthority (spec §4.4: "Requires
// authority signer = callerAuthority").
func NewOrder(r Regions, st State, callerAuthority [32]byte, p NewOrderParams) (matching.Result, error) {
	if callerAuthority != st.CallerAuthority {
		return matching.Result{}, engineerr.ErrWrongAuthority
	}
	if st.Disabled() {
		return matching.Result{}, engineerr.ErrMarketDisabled
	}
	if st.Paused() {
		return matching.Result{}, engineerr.ErrMarketPaused
	}
	if err := ValidatePrice(p.LimitPrice, st.TickSize); err != nil {
		return matching.Result{}, err
	}
	own, opp := r.Bids, r.Asks
	if p.Side == eventqueue.SideAsk {
		own, opp = r.Asks, r.Bids
	}
	mp := matching.Params{
		Side:              p.Side,
		LimitPrice:        p.LimitPrice,
		MaxBaseQty:        p.MaxBaseQty,
		MaxQuoteQty:       p.MaxQuoteQty,
		MatchLimit:        p.MatchLimit,
		CallbackInfo:      p.CallbackInfo,
		CallbackIDLen:     int(st.CallbackIDLen),
		PostOnly:          p.PostOnly,
		PostAllowed:       p.PostAllowed,
		SelfTradeBehavior: p.SelfTradeBehavior,
		MinBaseOrderSize:  st.MinBaseOrderSize,
	}
	return matching.NewOrder(r.EventQueue, opp, own, mp)
}

// ConsumeEvents pops up to n events and pays the cranker reward out of the
// market's fee budget, debiting it by CrankerReward per popped event (spec
// §4.4). It does not interpret event contents beyond counting them.
func ConsumeEvents(marketBuf []byte, q *eventqueue.Queue, n uint64) (uint64, error) {
	st, err := Decode(marketBuf)
	if err != nil {
		return 0, err
	}
	popped := q.Pop(n)
	st.FeeBudget -= st.CrankerReward * popped
	if err := Encode(marketBuf, st); err != nil {
		return 0, err
	}
	return popped, nil
}

// CancelOrder removes a resting leaf from whichever slab actually holds
// it, per spec §4.4 ("the caller names the side implicitly by key").
func CancelOrder(r Regions, key fp.Key) (eventqueue.Out, error) {
	for _, side := range []struct {
		s *slab.Slab
		t eventqueue.Side
	}{{r.Bids, eventqueue.SideBid}, {r.Asks, eventqueue.SideAsk}} {
		leaf, cb, ok := side.s.Remove(key)
		if ok {
			out := eventqueue.Out{Side: side.t, OrderID: leaf.Key, BaseSize: leaf.BaseQty, Delete: true, CallbackInfo: cb}
			if err := r.EventQueue.PushOut(out); err != nil {
				return eventqueue.Out{}, err
			}
			return out, nil
		}
	}
	return eventqueue.Out{}, engineerr.ErrNoOperations
}

// CancelOrderByClientID cancels by a caller-supplied client id rather than
// the order's 128-bit key (SPEC_FULL.md §4): it linear-scans one side,
// comparing the leading callbackIDLen bytes of each leaf's callback info,
// and removes the first match. O(n) in the side's leaf count, same as the
// original program's equivalent path.
func CancelOrderByClientID(r Regions, side eventqueue.Side, clientID []byte, callbackIDLen int) (eventqueue.Out, error) {
	s := r.Bids
	if side == eventqueue.SideAsk {
		s = r.Asks
	}
	var found slab.Handle
	var ok bool
	s.Walk(true, func(h slab.Handle) bool {
		if sameCallbackID(s.CallbackInfo(h), clientID, callbackIDLen) {
			found, ok = h, true
			return false
		}
		return true
	})
	if !ok {
		return eventqueue.Out{}, engineerr.ErrNoOperations
	}
	leaf, cb, _ := s.RemoveHandle(found)
	out := eventqueue.Out{Side: side, OrderID: leaf.Key, BaseSize: leaf.BaseQty, Delete: true, CallbackInfo: cb}
	if err := r.EventQueue.PushOut(out); err != nil {
		return eventqueue.Out{}, err
	}
	return out, nil
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

// Prune removes up to limit resting orders owned by ownerClientID (matched
// against each leaf's leading callbackIDLen bytes, the same identity test
// self-trade detection uses) from one side of the book, emitting an Out
// per pruned leaf (SPEC_FULL.md §4, grounded on
// original_source/program/src/processor/prune_orders.rs).
func Prune(r Regions, side eventqueue.Side, ownerClientID []byte, callbackIDLen int, limit uint16) (int, error) {
	s := r.Bids
	if side == eventqueue.SideAsk {
		s = r.Asks
	}
	pruned := 0
	for pruned < int(limit) {
		var found slab.Handle
		var ok bool
		s.Walk(true, func(h slab.Handle) bool {
			if sameCallbackID(s.CallbackInfo(h), ownerClientID, callbackIDLen) {
				found, ok = h, true
				return false
			}
			return true
		})
		if !ok {
			break
		}
		leaf, cb, _ := s.RemoveHandle(found)
		if err := r.EventQueue.PushOut(eventqueue.Out{Side: side, OrderID: leaf.Key, BaseSize: leaf.BaseQty, Delete: true, CallbackInfo: cb}); err != nil {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}

// CloseMarket requires both slabs and the event queue to be empty, then
// zeroes the whole market region and reports the accumulated fee budget
// (spec §4.4). The bids, asks, and event-queue regions are not modified;
// their tags stay as they were. The host is responsible for actually
// returning rent.
func CloseMarket(marketBuf []byte, eq *eventqueue.Queue, bids, asks *slab.Slab) (uint64, error) {
	if !bids.Empty() || !asks.Empty() || eq.Count() != 0 {
		return 0, engineerr.ErrMarketNotEmpty
	}
	st, err := Decode(marketBuf)
	if err != nil {
		return 0, err
	}
	for i := range marketBuf {
		marketBuf[i] = 0
	}
	return st.FeeBudget, nil
}

// DisableMarket sets the Disabled flag without requiring the book to be
// empty (SPEC_FULL.md §4), gated on marketAuthority matching st's
// configured MarketAuthority when HasMarketAuthority is set.
func DisableMarket(marketBuf []byte, marketAuthority [32]byte) error {
	st, err := Decode(marketBuf)
	if err != nil {
		return err
	}
	if !st.HasMarketAuthority || st.MarketAuthority != marketAuthority {
		return engineerr.ErrWrongAuthority
	}
	st.Flags |= FlagDisabled
	return Encode(marketBuf, st)
}

// PauseMatching halts NewOrder matching (SPEC_FULL.md §4, grounded on
// original_source/program/src/processor/pause_matching.rs), gated the same
// way DisableMarket is: marketAuthority must match when one is configured.
func PauseMatching(marketBuf []byte, marketAuthority [32]byte) error {
	st, err := Decode(marketBuf)
	if err != nil {
		return err
	}
	if !st.HasMarketAuthority || st.MarketAuthority != marketAuthority {
		return engineerr.ErrWrongAuthority
	}
	st.Flags |= FlagPaused
	return Encode(marketBuf, st)
}

// ResumeMatching drains one bounded batch of any pre-existing cross between
// bids and asks (SPEC_FULL.md §4, grounded on original_source/program/src/
// processor/resume_matching.rs) and clears FlagPaused once the book is
// fully uncrossed. The caller must keep invoking it (the market stays
// paused) until the returned bool is true.
func ResumeMatching(r Regions, marketAuthority [32]byte, matchLimit uint64) (bool, error) {
	st, err := Decode(r.Market)
	if err != nil {
		return false, err
	}
	if !st.HasMarketAuthority || st.MarketAuthority != marketAuthority {
		return false, engineerr.ErrWrongAuthority
	}
	completed, err := matching.ResumeMatching(r.EventQueue, r.Bids, r.Asks, st.MinBaseOrderSize, matchLimit)
	if err != nil {
		return false, err
	}
	if completed {
		st.Flags &^= FlagPaused
		if err := Encode(r.Market, st); err != nil {
			return false, err
		}
	}
	return completed, nil
}

// MassCancelOrders removes every leaf named by orderIDs from whichever side
// actually holds it, aggregating totals the way a single CancelOrder call
// reports them (SPEC_FULL.md §4, grounded on original_source/program/src/
// processor/mass_cancel_orders.rs). The first order id not found aborts the
// whole batch with ErrOrderNotFound, matching the original's all-or-nothing
// behavior.
func MassCancelOrders(r Regions, orderIDs []fp.Key) (totalBaseQty, totalQuoteQty uint64, err error) {
	for _, key := range orderIDs {
		if _, ok := r.Bids.Find(key); ok {
			continue
		}
		if _, ok := r.Asks.Find(key); ok {
			continue
		}
		return 0, 0, engineerr.ErrOrderNotFound
	}
	for _, key := range orderIDs {
		var removed bool
		for _, side := range []struct {
			s *slab.Slab
			t eventqueue.Side
		}{{r.Bids, eventqueue.SideBid}, {r.Asks, eventqueue.SideAsk}} {
			leaf, cb, ok := side.s.Remove(key)
			if !ok {
				continue
			}
			removed = true
			price := leaf.Key.PriceOf(side.t == eventqueue.SideBid)
			totalBaseQty += leaf.BaseQty
			totalQuoteQty += fp.MulFloor(leaf.BaseQty, price)
			if err := r.EventQueue.PushOut(eventqueue.Out{
				Side:         side.t,
				OrderID:      leaf.Key,
				BaseSize:     leaf.BaseQty,
				Delete:       true,
				CallbackInfo: cb,
			}); err != nil {
				return totalBaseQty, totalQuoteQty, err
			}
			break
		}
		if !removed {
			return totalBaseQty, totalQuoteQty, engineerr.ErrOrderNotFound
		}
	}
	return totalBaseQty, totalQuoteQty, nil
}

// DecodeTag reads the instruction tag byte (spec §6.3).
func DecodeTag(b []byte) (Tag, []byte, error) {
	if len(b) < 1 {
		return 0, nil, engineerr.ErrAccountSizeMismatch
	}
	return Tag(b[0]), b[1:], nil
}

// DecodeNewOrderParams decodes the LE-packed body of a NewOrder
// instruction. Layout: side(u8) | padding(7) | limit_price(u64) |
// max_base_qty(u64) | max_quote_qty(u64) | match_limit(u64) |
// self_trade_behavior(u8) | post_only(u8) | post_allowed(u8) | padding(5)
// | callback_info(remainder).
func DecodeNewOrderParams(body []byte) (NewOrderParams, error) {
	const fixed = 8 + 8 + 8 + 8 + 8 + 8
	if len(body) < fixed {
		return NewOrderParams{}, engineerr.ErrAccountSizeMismatch
	}
	p := NewOrderParams{
		Side:              eventqueue.Side(body[0]),
		LimitPrice:        binary.LittleEndian.Uint64(body[8:16]),
		MaxBaseQty:        binary.LittleEndian.Uint64(body[16:24]),
		MaxQuoteQty:       binary.LittleEndian.Uint64(body[24:32]),
		MatchLimit:        binary.LittleEndian.Uint64(body[32:40]),
		SelfTradeBehavior: matching.SelfTradeBehavior(body[40]),
		PostOnly:          body[41] != 0,
		PostAllowed:       body[42] != 0,
	}
	p.CallbackInfo = append([]byte(nil), body[fixed:]...)
	return p, nil
}

// Package market implements MarketState — the header binding the four byte
// regions of one market together — and the instruction dispatcher that
// decodes a wire-format instruction and drives internal/slab,
// internal/eventqueue, and internal/matching against it (spec §4.4, §6.1,
// §6.3).
package market

import (
	"encoding/binary"

	"github.com/Bonfida/agnostic-orderbook/internal/engineerr"
)

// AccountTag is the raw uint64 form of a region's account tag. The tag
// values themselves are defined in internal/slab.
type AccountTag = uint64

// Flag bits carried in MarketState.Flags, generalizing AccountTag into a
// bitset the way the original program's AccountFlag does (spec.md is
// silent on this; see SPEC_FULL.md §4's supplemented-feature note).
const (
	FlagInitialized  uint64 = 1 << 0
	FlagMarket       uint64 = 1 << 1
	FlagDisabled     uint64 = 1 << 5
	FlagPermissioned uint64 = 1 << 6
	FlagPaused       uint64 = 1 << 7
)

// State is the decoded, in-hand view of a MarketState region (spec §3.4,
// §6.1). CallerAuthority/MarketAuthority are opaque 32-byte identities;
// this package never interprets them beyond equality comparison — that is
// the host's job (spec §1 "out of scope": key-pair management).
type State struct {
	Flags              uint64
	CallerAuthority    [32]byte
	EventQueue         [32]byte
	Bids               [32]byte
	Asks               [32]byte
	MarketAuthority    [32]byte
	HasMarketAuthority bool
	CallbackIDLen      uint64
	CallbackInfoLen    uint64
	FeeBudget          uint64
	InitialLamports    uint64
	MinBaseOrderSize   uint64
	TickSize           uint64
	CrankerReward      uint64
}

// byte layout per spec §6.1, extended with the optional market_authority
// field from SPEC_FULL.md §4 (zero pubkey + HasMarketAuthority=false when
// absent, matching the original program's "authority, requires open
// orders market authority" optionality).
const (
	offFlags           = 0
	offCallerAuthority = 8
	offEventQueue      = 40
	offBids            = 72
	offAsks            = 104
	offMarketAuthority = 136
	offCallbackIDLen   = 168
	offCallbackInfoLen = 176
	offFeeBudget       = 184
	offInitialLamports = 192
	offMinBaseOrderSize = 200
	offTickSize        = 208
	offCrankerReward   = 216
	StateLen           = 224
)

// Decode reads a MarketState from a region previously written by Encode
// (as CreateMarket does).
func Decode(buf []byte) (State, error) {
	if len(buf) < StateLen {
		return State{}, engineerr.ErrAccountSizeMismatch
	}
	var s State
	s.Flags = binary.LittleEndian.Uint64(buf[offFlags:])
	copy(s.CallerAuthority[:], buf[offCallerAuthority:offCallerAuthority+32])
	copy(s.EventQueue[:], buf[offEventQueue:offEventQueue+32])
	copy(s.Bids[:], buf[offBids:offBids+32])
	copy(s.Asks[:], buf[offAsks:offAsks+32])
	copy(s.MarketAuthority[:], buf[offMarketAuthority:offMarketAuthority+32])
	s.HasMarketAuthority = s.Flags&FlagPermissioned != 0
	s.CallbackIDLen = binary.LittleEndian.Uint64(buf[offCallbackIDLen:])
	s.CallbackInfoLen = binary.LittleEndian.Uint64(buf[offCallbackInfoLen:])
	s.FeeBudget = binary.LittleEndian.Uint64(buf[offFeeBudget:])
	s.InitialLamports = binary.LittleEndian.Uint64(buf[offInitialLamports:])
	s.MinBaseOrderSize = binary.LittleEndian.Uint64(buf[offMinBaseOrderSize:])
	s.TickSize = binary.LittleEndian.Uint64(buf[offTickSize:])
	s.CrankerReward = binary.LittleEndian.Uint64(buf[offCrankerReward:])
	if s.Flags&FlagMarket == 0 {
		return s, engineerr.ErrInvalidAccountTag
	}
	return s, nil
}

// Encode writes s into buf, which must be at least StateLen bytes.
func Encode(buf []byte, s State) error {
	if len(buf) < StateLen {
		return engineerr.ErrAccountSizeMismatch
	}
	flags := s.Flags | FlagInitialized | FlagMarket
	if s.HasMarketAuthority {
		flags |= FlagPermissioned
	}
	binary.LittleEndian.PutUint64(buf[offFlags:], flags)
	copy(buf[offCallerAuthority:offCallerAuthority+32], s.CallerAuthority[:])
	copy(buf[offEventQueue:offEventQueue+32], s.EventQueue[:])
	copy(buf[offBids:offBids+32], s.Bids[:])
	copy(buf[offAsks:offAsks+32], s.Asks[:])
	copy(buf[offMarketAuthority:offMarketAuthority+32], s.MarketAuthority[:])
	binary.LittleEndian.PutUint64(buf[offCallbackIDLen:], s.CallbackIDLen)
	binary.LittleEndian.PutUint64(buf[offCallbackInfoLen:], s.CallbackInfoLen)
	binary.LittleEndian.PutUint64(buf[offFeeBudget:], s.FeeBudget)
	binary.LittleEndian.PutUint64(buf[offInitialLamports:], s.InitialLamports)
	binary.LittleEndian.PutUint64(buf[offMinBaseOrderSize:], s.MinBaseOrderSize)
	binary.LittleEndian.PutUint64(buf[offTickSize:], s.TickSize)
	binary.LittleEndian.PutUint64(buf[offCrankerReward:], s.CrankerReward)
	return nil
}

// Disabled reports whether the market has been administratively disabled
// (DisableMarket, SPEC_FULL.md §4) independent of
// whether it has also been fully closed.
func (s State) Disabled() bool { return s.Flags&FlagDisabled != 0 }

// Paused reports whether matching has been administratively paused
// (PauseMatching/ResumeMatching, SPEC_FULL.md §4, grounded on
// original_source/program/src/processor/pause_matching.rs).
func (s State) Paused() bool { return s.Flags&FlagPaused != 0 }

// ValidatePrice checks the tick-size precondition from spec §4.3/§6.2.
func ValidatePrice(price, tickSize uint64) error {
	if tickSize == 0 || price%tickSize != 0 {
		return engineerr.ErrInvalidPrice
	}
	return nil
}

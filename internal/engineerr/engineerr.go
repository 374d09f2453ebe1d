// Package engineerr defines the sentinel error taxonomy from spec §7.
// Every value here is a package-level sentinel: comparing against them with
// errors.Is costs nothing on the hot path, and none of them carry
// allocated state. Context (which account, which instruction) is added by
// wrapping with github.com/pkg/errors at the host boundary, never inside
// the core packages.
package engineerr

import "errors"

// Validation errors.
var (
	ErrInvalidAccountTag    = errors.New("invalid account tag")
	ErrWrongAuthority       = errors.New("wrong authority")
	ErrAccountSizeMismatch  = errors.New("account size mismatch")
	ErrInvalidPrice         = errors.New("price violates tick size")
	ErrOrderBelowMinimum    = errors.New("order size below minimum")
)

// Capacity errors.
var (
	ErrSlabFull       = errors.New("slab full")
	ErrEventQueueFull = errors.New("event queue full")
)

// Policy errors.
var (
	ErrWouldSelfTrade      = errors.New("order would self trade")
	ErrPostOnlyCrosses     = errors.New("post-only order crosses the book")
	ErrNoOperations        = errors.New("no match and nothing posted")
)

// Corruption errors — should be unreachable; surfaced rather than panicking
// so a host can log and abort cleanly instead of crashing the process.
var ErrBrokenInvariant = errors.New("broken invariant")

// Market lifecycle errors outside the five core instructions' taxonomy but
// part of the same closed set the host dispatch returns.
var (
	ErrMarketNotEmpty = errors.New("market books or queue not empty")
	ErrMarketDisabled = errors.New("market disabled")
	ErrMarketPaused   = errors.New("market matching is paused")
	ErrOrderNotFound  = errors.New("order not found")
)

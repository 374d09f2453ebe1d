// Package hostio holds small helpers for the pubkey-shaped identities
// MarketState carries. None of this is part of the core: it exists
// because a real host (cmd/clobd) needs caller/market authority
// identities to put in front of internal/market in the first place (spec
// §1, "out of scope: host-specific account deserialization").
package hostio

import (
	"crypto/rand"
)

// PubkeyLen is the width of every identity field in MarketState (spec
// §6.1): caller authority, market authority, and the three region
// identities are all 32 bytes, mirroring a Solana Pubkey without
// depending on solana-go for a single fixed-width array.
const PubkeyLen = 32

// NewIdentity returns a random 32-byte identity, used by cmd/clobd to
// stand in for account pubkeys it never actually looks up on a chain.
func NewIdentity() ([32]byte, error) {
	var id [32]byte
	if _, err := rand.Read(id[:]); err != nil {
		return id, err
	}
	return id, nil
}

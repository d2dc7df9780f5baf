// Package reputation tracks opsSeen/opsIncluded per entity address
// and classifies entities as OK, Throttled, or Banned. Status is
// always derived from the counters on read (spec.md §4.2/§4.6); the
// storage contract only ever persists counters, a whitelist, and a
// blacklist.
package reputation

import "github.com/ethereum/go-ethereum/common"

// Entry is the persisted per-address record. Status is intentionally
// absent: spec.md's invariant 4 (ops_seen >= ops_included) is on the
// counters, and Status is computed by StatusOf on every read.
type Entry struct {
	Address     common.Address
	OpsSeen     uint64
	OpsIncluded uint64
}

// Storage is the reputation storage contract.
type Storage interface {
	IncrementSeen(addr common.Address)
	IncrementIncluded(addr common.Address)

	// StatusOf derives the current status for addr, honoring the
	// whitelist/blacklist set by SetEntities ahead of the counter-based
	// derivation.
	StatusOf(addr common.Address) Status

	// Get returns the raw counters for addr, if any entry exists.
	Get(addr common.Address) (Entry, bool)

	// GetAll / Set are debug surfaces for bulk inspection/seeding.
	GetAll() []Entry
	Set(entries []Entry)

	// SetEntities pins status for whitelisted (always OK) and
	// blacklisted (always Banned) addresses, bypassing derivation.
	SetEntities(whitelist, blacklist []common.Address)

	// DecayOnce applies one hourly decay step: ops_seen *= 23/24,
	// ops_included *= 23/24 (integer division), dropping entries whose
	// counters both reach zero.
	DecayOnce()

	// Clear truncates everything. Debug-only.
	Clear()
}

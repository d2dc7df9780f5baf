// Package mempool stores pending UserOperations, enforces per-sender
// replacement and limits, and tracks the code-hash set captured for
// each admitted operation. Storage is an abstract contract (spec.md
// §4.1/§6) so an in-memory implementation and a KV-backed one (see
// storageredis) can share every caller above them.
package mempool

import (
	"github.com/t402-io/aa-mempool/uop"
)

// Storage is the mempool's storage contract. Implementations own
// MempoolEntries exclusively; the per-sender and per-entity indices
// they maintain hold only UserOperationHash references resolved
// through GetByHash — a dangling hash in an index is a bug.
type Storage interface {
	// Add inserts a new entry, or replaces the existing entry for the
	// same (sender, nonce) if the replacement fee-bump rule is
	// satisfied. isStaked controls whether MaxUOsPerSender is enforced.
	Add(entry *uop.MempoolEntry, isStaked bool) (uop.Hash, error)

	// Remove deletes the entry and prunes all indices.
	Remove(hash uop.Hash) error

	// GetByHash resolves a single entry.
	GetByHash(hash uop.Hash) (*uop.MempoolEntry, bool)

	// GetPrevBySender returns the existing entry sharing (sender,
	// nonce) with uo, if any — used by the validator to detect
	// replacements before running full simulation.
	GetPrevBySender(uo *uop.UserOperation) (*uop.MempoolEntry, bool)

	// GetAllBySender returns every hash currently stored for sender.
	GetAllBySender(sender [20]byte) []uop.Hash

	// GetAllByEntity returns every hash currently stored whose
	// UserOperation names addr in the given role.
	GetAllByEntity(role uop.Entity, addr [20]byte) []uop.Hash

	// GetAll returns every stored UserOperation in unspecified order;
	// callers (the bundler) re-sort by gas price.
	GetAll() []*uop.UserOperation

	// SetCodeHashes / GetCodeHashes associate a trace-derived
	// code-hash set with an already-admitted entry.
	SetCodeHashes(hash uop.Hash, hashes []uop.CodeHash) error
	GetCodeHashes(hash uop.Hash) ([]uop.CodeHash, bool)

	// Clear truncates everything. Debug-only; callers gate this on a
	// runtime flag, not a build-time switch (spec.md §9 Open Questions).
	Clear()

	// Size reports the number of stored entries (used by metrics).
	Size() int
}

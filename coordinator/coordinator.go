// Package coordinator wraps the validator, mempool, and reputation
// layers in the public add/remove/get operations (spec.md §4.5),
// owning the per-mempool_id locking and concurrent-admission
// deduplication the rest of the core doesn't need to know about.
package coordinator

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"golang.org/x/sync/singleflight"

	"github.com/t402-io/aa-mempool/check"
	"github.com/t402-io/aa-mempool/mempool"
	"github.com/t402-io/aa-mempool/metrics"
	"github.com/t402-io/aa-mempool/reputation"
	"github.com/t402-io/aa-mempool/uop"
	"github.com/t402-io/aa-mempool/validator"
)

// pair is one mempool_id's (Mempool, Reputation) tuple with its own
// single-writer/multi-reader guard (spec.md §5).
type pair struct {
	mu         sync.RWMutex
	mempool    mempool.Storage
	reputation reputation.Storage
}

// EstimateResult is estimate_gas's response shape (spec.md §4.5/§6).
type EstimateResult struct {
	PreVerificationGas   *uint256.Int
	VerificationGasLimit *uint256.Int
	CallGasLimit         *uint256.Int
}

// Coordinator is the admission coordinator, component G.
type Coordinator struct {
	validator *validator.Validator
	chainID   *uint256.Int

	entryPoints []common.Address
	pairs       map[[32]byte]*pair

	sf singleflight.Group

	// DebugEnabled gates clear/get_all/set_reputation/get_all_reputation
	// on a runtime flag rather than a build-time switch, per spec.md §9
	// Open Questions — flip it at runtime (e.g. from a config reload)
	// without a rebuild.
	DebugEnabled func() bool

	// Metrics records admission outcomes, if set. Left nil by tests
	// that don't care about instrumentation.
	Metrics *metrics.Metrics
}

// New builds a Coordinator with one (Mempool, Reputation) pair
// pre-provisioned per supported EntryPoint. newMempool/newReputation
// are handed each pair's mempoolID so a storage backend that
// partitions by key (storageredis) can keep every EntryPoint's data
// isolated instead of colliding under a shared key.
func New(v *validator.Validator, chainID *uint256.Int, entryPoints []common.Address, newMempool func(mempoolID [32]byte) mempool.Storage, newReputation func(mempoolID [32]byte) reputation.Storage) *Coordinator {
	c := &Coordinator{
		validator:    v,
		chainID:      chainID,
		entryPoints:  append([]common.Address(nil), entryPoints...),
		pairs:        make(map[[32]byte]*pair, len(entryPoints)),
		DebugEnabled: func() bool { return false },
	}
	for _, ep := range entryPoints {
		id := MempoolID(ep, chainID)
		c.pairs[id] = &pair{mempool: newMempool(id), reputation: newReputation(id)}
	}
	return c
}

// MempoolID computes H(entrypoint, chain_id), the 32-byte key
// selecting a (Mempool, Reputation) pair.
func MempoolID(entryPoint common.Address, chainID *uint256.Int) [32]byte {
	id := uint256.NewInt(0)
	if chainID != nil {
		id = chainID
	}
	b := id.Bytes32()
	return crypto.Keccak256Hash(entryPoint.Bytes(), b[:])
}

func (c *Coordinator) isSupported(entryPoint common.Address) bool {
	for _, ep := range c.entryPoints {
		if ep == entryPoint {
			return true
		}
	}
	return false
}

func (c *Coordinator) pairFor(entryPoint common.Address) (*pair, bool) {
	p, ok := c.pairs[MempoolID(entryPoint, c.chainID)]
	return p, ok
}

// Add validates uo against entryPoint and, on success, inserts it and
// bumps ops_seen for every participating entity.
func (c *Coordinator) Add(ctx context.Context, uo *uop.UserOperation, entryPoint common.Address) (uop.Hash, error) {
	if !c.isSupported(entryPoint) {
		return uop.Hash{}, errInvalidEntryPoint()
	}
	p, _ := c.pairFor(entryPoint)

	sfKey := fmt.Sprintf("%x:%s:%s", MempoolID(entryPoint, c.chainID), uo.Sender.Hex(), uo256String(uo.Nonce))

	result, err, _ := c.sf.Do(sfKey, func() (interface{}, error) {
		p.mu.RLock()
		outcome, verr := c.validator.Validate(ctx, uo, entryPoint, p.mempool, p.reputation, validator.CanonicalMode)
		p.mu.RUnlock()
		if verr != nil {
			return nil, verr
		}

		p.mu.Lock()
		defer p.mu.Unlock()

		if outcome.PrevHash != nil {
			_ = p.mempool.Remove(*outcome.PrevHash)
		}

		entry := &uop.MempoolEntry{
			UserOp:               uo,
			Hash:                 uo.Hash(entryPoint, c.chainID),
			PreFund:              outcome.PreFund,
			VerificationGasLimit: outcome.VerificationGasLimit,
			CodeHashes:           outcome.CodeHashes,
		}

		hash, err := p.mempool.Add(entry, outcome.SenderStaked)
		if err != nil {
			return nil, err
		}
		if len(outcome.CodeHashes) > 0 {
			_ = p.mempool.SetCodeHashes(hash, outcome.CodeHashes)
		}

		p.reputation.IncrementSeen(uo.Sender)
		if factory, ok := uo.Factory(); ok {
			p.reputation.IncrementSeen(factory)
		}
		if paymaster, ok := uo.Paymaster(); ok {
			p.reputation.IncrementSeen(paymaster)
		}
		if outcome.Aggregator != nil {
			p.reputation.IncrementSeen(*outcome.Aggregator)
		}

		return hash, nil
	})
	if c.Metrics != nil {
		c.Metrics.RecordAdmission(entryPoint.Hex(), err == nil)
	}
	if err != nil {
		return uop.Hash{}, err
	}
	return result.(uop.Hash), nil
}

func uo256String(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// Remove deletes hash from whichever supported EntryPoint's mempool
// holds it — the public API (spec.md §6) takes only the hash, so every
// managed pair is probed; the entrypoint set is small and fixed.
func (c *Coordinator) Remove(hash uop.Hash) error {
	for _, p := range c.pairs {
		p.mu.Lock()
		err := p.mempool.Remove(hash)
		p.mu.Unlock()
		if err == nil {
			return nil
		}
	}
	return &mempool.Error{Reason: mempool.ReasonNotFound}
}

// GetChainID is introspection; it takes no lock.
func (c *Coordinator) GetChainID() *uint256.Int { return c.chainID }

// GetSupportedEntryPoints is introspection; it takes no lock.
func (c *Coordinator) GetSupportedEntryPoints() []common.Address {
	return append([]common.Address(nil), c.entryPoints...)
}

// EstimateGas runs sanity+simulation only (no trace) and derives the
// three gas figures a caller needs before submitting (spec.md §4.5).
func (c *Coordinator) EstimateGas(ctx context.Context, uo *uop.UserOperation, entryPoint common.Address) (*EstimateResult, error) {
	if !c.isSupported(entryPoint) {
		return nil, errInvalidEntryPoint()
	}
	p, _ := c.pairFor(entryPoint)

	p.mu.RLock()
	outcome, err := c.validator.Validate(ctx, uo, entryPoint, p.mempool, p.reputation, validator.UnsafeMode)
	p.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	callGasLimit, err := c.validator.Chain.EstimateGas(ctx, uo, entryPoint)
	if err != nil {
		return nil, err
	}

	return &EstimateResult{
		PreVerificationGas:   check.CalculateOverhead(uo),
		VerificationGasLimit: outcome.VerificationGasLimit,
		CallGasLimit:         callGasLimit,
	}, nil
}

// Clear truncates the mempool for entryPoint. Debug-only.
func (c *Coordinator) Clear(entryPoint common.Address) error {
	if !c.DebugEnabled() {
		return errDebugDisabled()
	}
	p, ok := c.pairFor(entryPoint)
	if !ok {
		return errInvalidEntryPoint()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mempool.Clear()
	return nil
}

// GetAll returns every pending UserOperation for entryPoint. Debug-only.
func (c *Coordinator) GetAll(entryPoint common.Address) ([]*uop.UserOperation, error) {
	if !c.DebugEnabled() {
		return nil, errDebugDisabled()
	}
	p, ok := c.pairFor(entryPoint)
	if !ok {
		return nil, errInvalidEntryPoint()
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.mempool.GetAll(), nil
}

// SetReputation overwrites the reputation table for entryPoint. Debug-only.
func (c *Coordinator) SetReputation(entryPoint common.Address, entries []reputation.Entry) error {
	if !c.DebugEnabled() {
		return errDebugDisabled()
	}
	p, ok := c.pairFor(entryPoint)
	if !ok {
		return errInvalidEntryPoint()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reputation.Set(entries)
	return nil
}

// PoolSize reports the number of pending UserOperations for
// entryPoint, independent of DebugEnabled — metrics export always
// needs this, unlike the raw contents GetAll exposes.
func (c *Coordinator) PoolSize(entryPoint common.Address) int {
	p, ok := c.pairFor(entryPoint)
	if !ok {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.mempool.Size()
}

// ReputationStores returns every managed mempool_id's reputation
// store, for the hourly decay loop — decay is routine maintenance,
// not a debug surface, so it bypasses DebugEnabled.
func (c *Coordinator) ReputationStores() []reputation.Storage {
	stores := make([]reputation.Storage, 0, len(c.pairs))
	for _, p := range c.pairs {
		stores = append(stores, p.reputation)
	}
	return stores
}

// ReputationStatusCounts buckets entryPoint's known entities by their
// derived reputation status, for the periodic metrics reporter —
// independent of DebugEnabled, like PoolSize.
func (c *Coordinator) ReputationStatusCounts(entryPoint common.Address) map[reputation.Status]int {
	p, ok := c.pairFor(entryPoint)
	if !ok {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	counts := make(map[reputation.Status]int)
	for _, e := range p.reputation.GetAll() {
		counts[p.reputation.StatusOf(e.Address)]++
	}
	return counts
}

// GetAllReputation returns the reputation table for entryPoint. Debug-only.
func (c *Coordinator) GetAllReputation(entryPoint common.Address) ([]reputation.Entry, error) {
	if !c.DebugEnabled() {
		return nil, errDebugDisabled()
	}
	p, ok := c.pairFor(entryPoint)
	if !ok {
		return nil, errInvalidEntryPoint()
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reputation.GetAll(), nil
}

package mempool

import (
	"sync"

	"github.com/holiman/uint256"

	"github.com/t402-io/aa-mempool/uop"
)

const (
	// DefaultGasIncreasePercent is the minimum percentage bump both
	// fee fields must clear for a replacement to be accepted.
	DefaultGasIncreasePercent = 10
	// DefaultMaxUOsPerSender caps how many distinct (sender, nonce)
	// entries an unstaked sender may have pending at once.
	DefaultMaxUOsPerSender = 4
)

type senderNonceKey struct {
	sender [20]byte
	nonce  string
}

// Memory is an in-memory Storage implementation guarded by a single
// read-write mutex, matching the "single writer lock per mempool_id"
// policy of spec.md §5 — the critical section here is a fixed set of
// index updates, so finer-grained locking would only risk primary
// store/index drift.
type Memory struct {
	mu sync.RWMutex

	byHash        map[uop.Hash]*uop.MempoolEntry
	bySenderNonce map[senderNonceKey]uop.Hash
	bySender      map[[20]byte]map[uop.Hash]struct{}
	byEntity      [uop.NumEntities]map[[20]byte]map[uop.Hash]struct{}

	gasIncreasePercent int64
	maxUOsPerSender    int
}

// NewMemory constructs an empty in-memory mempool store.
func NewMemory(gasIncreasePercent int64, maxUOsPerSender int) *Memory {
	m := &Memory{
		byHash:             make(map[uop.Hash]*uop.MempoolEntry),
		bySenderNonce:      make(map[senderNonceKey]uop.Hash),
		bySender:           make(map[[20]byte]map[uop.Hash]struct{}),
		gasIncreasePercent: gasIncreasePercent,
		maxUOsPerSender:    maxUOsPerSender,
	}
	for i := range m.byEntity {
		m.byEntity[i] = make(map[[20]byte]map[uop.Hash]struct{})
	}
	return m
}

func key(sender [20]byte, nonce *uint256.Int) senderNonceKey {
	n := uint256.NewInt(0)
	if nonce != nil {
		n = nonce
	}
	return senderNonceKey{sender: sender, nonce: n.String()}
}

func (m *Memory) Add(entry *uop.MempoolEntry, isStaked bool) (uop.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sender := entry.UserOp.Sender
	k := key(sender, entry.UserOp.Nonce)

	if prevHash, ok := m.bySenderNonce[k]; ok {
		prev := m.byHash[prevHash]
		if prev == nil {
			// An index without a resolvable primary-store entry is a
			// bug; self-heal by treating this as a fresh insert.
			delete(m.bySenderNonce, k)
		} else {
			if err := CheckReplacementFees(prev.UserOp, entry.UserOp, m.gasIncreasePercent); err != nil {
				return uop.Hash{}, err
			}
			m.removeLocked(prevHash)
		}
	} else if !isStaked && m.maxUOsPerSender > 0 {
		if len(m.bySender[sender]) >= m.maxUOsPerSender {
			return uop.Hash{}, errSenderOverLimit()
		}
	}

	m.insertLocked(entry)
	return entry.Hash, nil
}

func (m *Memory) insertLocked(entry *uop.MempoolEntry) {
	sender := entry.UserOp.Sender
	m.byHash[entry.Hash] = entry
	m.bySenderNonce[key(sender, entry.UserOp.Nonce)] = entry.Hash

	if m.bySender[sender] == nil {
		m.bySender[sender] = make(map[uop.Hash]struct{})
	}
	m.bySender[sender][entry.Hash] = struct{}{}

	for role, addr := range entityAddresses(entry.UserOp) {
		if m.byEntity[role][addr] == nil {
			m.byEntity[role][addr] = make(map[uop.Hash]struct{})
		}
		m.byEntity[role][addr][entry.Hash] = struct{}{}
	}
}

func entityAddresses(u *uop.UserOperation) map[uop.Entity][20]byte {
	out := map[uop.Entity][20]byte{uop.EntitySender: u.Sender}
	if f, ok := u.Factory(); ok {
		out[uop.EntityFactory] = f
	}
	if p, ok := u.Paymaster(); ok {
		out[uop.EntityPaymaster] = p
	}
	return out
}

// CheckReplacementFees enforces that both fee fields of the new
// UserOperation exceed the old ones by at least pct percent. Equal
// values to the computed floor satisfy the predicate (spec.md §4.3:
// "equal values satisfy ≥/≤ predicates"). Exported so alternative
// Storage implementations (storageredis) enforce the identical rule.
func CheckReplacementFees(oldUO, newUO *uop.UserOperation, pct int64) error {
	neededFee := bump(oldUO.MaxFeePerGas, pct)
	neededPriority := bump(oldUO.MaxPriorityFeePerGas, pct)

	if newUO.MaxFeePerGas.Cmp(neededFee) < 0 || newUO.MaxPriorityFeePerGas.Cmp(neededPriority) < 0 {
		needed := neededFee
		if neededPriority.Cmp(needed) > 0 {
			needed = neededPriority
		}
		return errReplacementUnderpriced(needed)
	}
	return nil
}

func bump(v *uint256.Int, pct int64) *uint256.Int {
	if v == nil {
		v = uint256.NewInt(0)
	}
	increase := new(uint256.Int).Mul(v, uint256.NewInt(uint64(pct)))
	increase.Div(increase, uint256.NewInt(100))
	return new(uint256.Int).Add(v, increase)
}

func (m *Memory) Remove(hash uop.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byHash[hash]; !ok {
		return errNotFound()
	}
	m.removeLocked(hash)
	return nil
}

func (m *Memory) removeLocked(hash uop.Hash) {
	entry, ok := m.byHash[hash]
	if !ok {
		return
	}
	delete(m.byHash, hash)
	delete(m.bySenderNonce, key(entry.UserOp.Sender, entry.UserOp.Nonce))

	if set := m.bySender[entry.UserOp.Sender]; set != nil {
		delete(set, hash)
		if len(set) == 0 {
			delete(m.bySender, entry.UserOp.Sender)
		}
	}
	for role, addr := range entityAddresses(entry.UserOp) {
		if set := m.byEntity[role][addr]; set != nil {
			delete(set, hash)
			if len(set) == 0 {
				delete(m.byEntity[role], addr)
			}
		}
	}
}

func (m *Memory) GetByHash(hash uop.Hash) (*uop.MempoolEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byHash[hash]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

func (m *Memory) GetPrevBySender(uo *uop.UserOperation) (*uop.MempoolEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hash, ok := m.bySenderNonce[key(uo.Sender, uo.Nonce)]
	if !ok {
		return nil, false
	}
	e := m.byHash[hash]
	if e == nil {
		return nil, false
	}
	return e.Clone(), true
}

func (m *Memory) GetAllBySender(sender [20]byte) []uop.Hash {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.bySender[sender]
	out := make([]uop.Hash, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	return out
}

func (m *Memory) GetAllByEntity(role uop.Entity, addr [20]byte) []uop.Hash {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.byEntity[role][addr]
	out := make([]uop.Hash, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	return out
}

func (m *Memory) GetAll() []*uop.UserOperation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*uop.UserOperation, 0, len(m.byHash))
	for _, e := range m.byHash {
		uoCp := *e.UserOp
		out = append(out, &uoCp)
	}
	return out
}

func (m *Memory) SetCodeHashes(hash uop.Hash, hashes []uop.CodeHash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byHash[hash]
	if !ok {
		return errNotFound()
	}
	e.CodeHashes = append([]uop.CodeHash(nil), hashes...)
	return nil
}

func (m *Memory) GetCodeHashes(hash uop.Hash) ([]uop.CodeHash, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byHash[hash]
	if !ok {
		return nil, false
	}
	return append([]uop.CodeHash(nil), e.CodeHashes...), true
}

func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byHash = make(map[uop.Hash]*uop.MempoolEntry)
	m.bySenderNonce = make(map[senderNonceKey]uop.Hash)
	m.bySender = make(map[[20]byte]map[uop.Hash]struct{})
	for i := range m.byEntity {
		m.byEntity[i] = make(map[[20]byte]map[uop.Hash]struct{})
	}
}

func (m *Memory) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byHash)
}

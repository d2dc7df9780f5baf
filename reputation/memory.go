package reputation

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Memory is an in-memory Storage implementation. Like mempool.Memory,
// it uses one read-write mutex per instance — a reputation instance is
// scoped to a single mempool_id, so this is the same "single writer
// lock per pair" granularity spec.md §5 calls for.
type Memory struct {
	mu sync.RWMutex

	entries   map[common.Address]*Entry
	whitelist map[common.Address]struct{}
	blacklist map[common.Address]struct{}

	minInclusionRateDenominator uint64
	throttlingSlack             uint64
	banSlack                    uint64
}

// NewMemory constructs an empty reputation store with the given
// derivation tuning (spec.md §4.2 defaults: 10 / 10 / 50).
func NewMemory(minInclusionRateDenominator, throttlingSlack, banSlack uint64) *Memory {
	return &Memory{
		entries:                     make(map[common.Address]*Entry),
		whitelist:                   make(map[common.Address]struct{}),
		blacklist:                   make(map[common.Address]struct{}),
		minInclusionRateDenominator: minInclusionRateDenominator,
		throttlingSlack:             throttlingSlack,
		banSlack:                    banSlack,
	}
}

func (m *Memory) getOrCreateLocked(addr common.Address) *Entry {
	e, ok := m.entries[addr]
	if !ok {
		e = &Entry{Address: addr}
		m.entries[addr] = e
	}
	return e
}

func (m *Memory) IncrementSeen(addr common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getOrCreateLocked(addr).OpsSeen++
}

func (m *Memory) IncrementIncluded(addr common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getOrCreateLocked(addr).OpsIncluded++
}

func (m *Memory) StatusOf(addr common.Address) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, banned := m.blacklist[addr]; banned {
		return Banned
	}
	if _, white := m.whitelist[addr]; white {
		return OK
	}
	e, ok := m.entries[addr]
	if !ok {
		return OK
	}
	return DeriveStatus(e.OpsSeen, e.OpsIncluded, m.minInclusionRateDenominator, m.throttlingSlack, m.banSlack)
}

func (m *Memory) Get(addr common.Address) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[addr]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (m *Memory) GetAll() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, *e)
	}
	return out
}

func (m *Memory) Set(entries []Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[common.Address]*Entry, len(entries))
	for _, e := range entries {
		cp := e
		m.entries[e.Address] = &cp
	}
}

func (m *Memory) SetEntities(whitelist, blacklist []common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.whitelist = make(map[common.Address]struct{}, len(whitelist))
	for _, a := range whitelist {
		m.whitelist[a] = struct{}{}
	}
	m.blacklist = make(map[common.Address]struct{}, len(blacklist))
	for _, a := range blacklist {
		m.blacklist[a] = struct{}{}
	}
}

// DecayOnce implements spec.md §4.2's hourly decay: both counters are
// multiplied by 23/24 (integer division), and any entry whose counters
// both reach zero is dropped.
func (m *Memory) DecayOnce() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for addr, e := range m.entries {
		e.OpsSeen = e.OpsSeen * 23 / 24
		e.OpsIncluded = e.OpsIncluded * 23 / 24
		if e.OpsSeen == 0 && e.OpsIncluded == 0 {
			delete(m.entries, addr)
		}
	}
}

func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[common.Address]*Entry)
}

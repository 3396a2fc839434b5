package storage

import (
	"sync"

	"github.com/senutpal/synod/internal/paxos"
)

// MemoryStorage keeps node state in memory. It stands in for a disk in tests
// and demos: a node rebuilt on the same MemoryStorage sees what it saved
// before its "crash". Nothing survives the process.
type MemoryStorage struct {
	mu      sync.RWMutex
	records map[paxos.NodeID]record
	closed  bool
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{records: make(map[paxos.NodeID]record)}
}

func (m *MemoryStorage) SaveAcceptorState(id paxos.NodeID, state paxos.AcceptorState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	r := m.records[id]
	r.Acceptor = &state
	m.records[id] = r.clone()
	return nil
}

func (m *MemoryStorage) LoadAcceptorState(id paxos.NodeID) (paxos.AcceptorState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return paxos.AcceptorState{}, false, ErrClosed
	}
	r, ok := m.records[id]
	if !ok || r.Acceptor == nil {
		return paxos.AcceptorState{}, false, nil
	}
	return *r.clone().Acceptor, true, nil
}

func (m *MemoryStorage) SaveRound(id paxos.NodeID, round int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	r := m.records[id]
	r.ProposerRnd = round
	m.records[id] = r
	return nil
}

func (m *MemoryStorage) LoadRound(id paxos.NodeID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	return m.records[id].ProposerRnd, nil
}

func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Reset forgets everything, as if the disk had been wiped.
func (m *MemoryStorage) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[paxos.NodeID]record)
}

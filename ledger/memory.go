package ledger

import (
	"context"
	"sync"

	"github.com/catena-chat/catena/channel"
)

// MemoryRepository is a minimal in-process Repository used by unit tests
// across the stream/multiplex/messenger packages in place of a hand
// mock, so tests exercise the same Get/Put contract LocalRepository and
// rpcclient implement. It is not exported for production use — see
// LocalRepository for the bbolt-backed offline store.
type MemoryRepository struct {
	mu          sync.Mutex
	slots       map[channel.SlotAddress]StoredMessage
	clock       uint64
	FailNextPut bool
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{slots: make(map[channel.SlotAddress]StoredMessage)}
}

func (m *MemoryRepository) Get(_ context.Context, slot channel.SlotAddress) (*StoredMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.slots[slot]
	if !ok {
		return nil, nil
	}
	out := msg
	return &out, nil
}

func (m *MemoryRepository) Put(_ context.Context, slot channel.SlotAddress, ciphertext []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNextPut {
		m.FailNextPut = false
		return WrapRepositoryError("put", errInjectedFailure)
	}
	if _, ok := m.slots[slot]; ok {
		return ErrSlotOccupied
	}
	m.clock++
	m.slots[slot] = StoredMessage{Ciphertext: ciphertext, BlockTimestampMs: m.clock}
	return nil
}

// PutAt is a test helper that assigns an explicit timestamp, used to build
// the out-of-order multiplexer scenarios of spec.md S3/invariant 8.
func (m *MemoryRepository) PutAt(slot channel.SlotAddress, ciphertext []byte, timestampMs uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[slot] = StoredMessage{Ciphertext: ciphertext, BlockTimestampMs: timestampMs}
}

// Tamper flips a bit in the ciphertext at slot, for forgery-rejection tests.
func (m *MemoryRepository) Tamper(slot channel.SlotAddress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := m.slots[slot]
	if len(msg.Ciphertext) == 0 {
		return
	}
	cp := append([]byte(nil), msg.Ciphertext...)
	cp[0] ^= 0x01
	msg.Ciphertext = cp
	m.slots[slot] = msg
}

// Untamper undoes a prior Tamper call by flipping the same bit back; no copy
// of the original ciphertext is kept.
func (m *MemoryRepository) Untamper(slot channel.SlotAddress) {
	m.Tamper(slot)
}

type injectedFailure string

func (e injectedFailure) Error() string { return string(e) }

const errInjectedFailure = injectedFailure("injected test failure")

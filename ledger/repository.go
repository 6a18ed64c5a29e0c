package ledger

import (
	"context"

	"github.com/catena-chat/catena/channel"
)

// StoredMessage is a slot's ciphertext plus the repository's publication
// timestamp. The timestamp sits outside the AEAD and is untrusted; it is
// used only as a sort key by the multiplexer (spec.md §3).
type StoredMessage struct {
	Ciphertext      []byte
	BlockTimestampMs uint64
}

// Repository is the abstract append-only, write-once-per-key store of
// spec.md §4.7 / §6. Concrete implementations: rpcclient (the real external
// collaborator), LocalRepository (bbolt-backed, for local use) and
// MemoryRepository (in-process, for tests).
type Repository interface {
	// Get returns the stored message at slot, or nil if no value has been
	// published there yet.
	Get(ctx context.Context, slot channel.SlotAddress) (*StoredMessage, error)
	// Put publishes ciphertext at slot. It returns ErrSlotOccupied if the
	// slot is already occupied — the store is write-once per slot.
	Put(ctx context.Context, slot channel.SlotAddress, ciphertext []byte) error
}

// KeyRegistry is the abstract mapping from account identifier to public key
// of spec.md §4.6 / §6.
type KeyRegistry interface {
	// GetPublicKey returns the registered public key for account, or
	// ErrPeerUnregistered if none is registered.
	GetPublicKey(ctx context.Context, account string) (channel.CorrespondentId, error)
	// SetPublicKey registers publicKey under the caller's own account.
	SetPublicKey(ctx context.Context, publicKey channel.CorrespondentId) error
}

// Package ledger implements the external collaborators spec.md §6 and §1
// describe only at the interface level: the key registry and message
// repository contracts, plus the concrete adapters that reach them (an
// RPC-backed client and a local embedded fallback).
package ledger

import (
	"errors"
	"fmt"
)

// The error kinds of spec.md §7.
var (
	// ErrPeerUnregistered is raised when the key registry returns null for a peer.
	ErrPeerUnregistered = errors.New("ledger: peer is not registered")

	// ErrMalformedKey is raised when the registry value is not 32 bytes.
	ErrMalformedKey = errors.New("ledger: registry value is not a valid public key")

	// ErrRepositoryError wraps a transport/RPC failure on Get or Put.
	ErrRepositoryError = errors.New("ledger: repository transport error")

	// ErrSlotOccupied is raised when Put collides on an existing slot.
	ErrSlotOccupied = errors.New("ledger: slot already occupied")
)

// WrapRepositoryError annotates a transport failure with the ErrRepositoryError
// sentinel so callers can errors.Is it regardless of the underlying transport.
func WrapRepositoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %v", op, ErrRepositoryError, err)
}

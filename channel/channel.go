// Package channel derives symmetric messaging contexts from a Diffie-Hellman
// exchange and provides deterministic content-addressed slot derivation plus
// AEAD sealing/opening over them.
package channel

import (
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// SequenceNumber is the monotonic per-direction counter that drives both the
// slot address and the AEAD nonce.
type SequenceNumber = uint32

// CorrespondentId is a participant's long-lived X25519 public key, used as an
// opaque identity and a canonical sort key for group membership.
type CorrespondentId [32]byte

// Less implements the total byte-lexicographic ordering spec.md §3 requires
// for canonicalising group membership.
func (c CorrespondentId) Less(other CorrespondentId) bool {
	for i := range c {
		if c[i] != other[i] {
			return c[i] < other[i]
		}
	}
	return false
}

// SlotAddress is the 32-byte content-derived key under which a ciphertext is
// stored in the repository.
type SlotAddress [32]byte

// Identifier is the 256-byte opaque domain-separation buffer described in
// spec.md §3. Its layout is fixed and never transmitted.
type Identifier [256]byte

// ErrForgery is returned by Open when the AEAD tag fails to verify.
type ErrForgery struct {
	Seq SequenceNumber
}

func (e *ErrForgery) Error() string {
	return fmt.Sprintf("channel: forgery detected at sequence %d", e.Seq)
}

// Channel is the three-operation capability set of spec.md §4.1. Pair and
// Group are the two concrete variants; both share this implementation via
// embedding rather than duplicating the AEAD/hash plumbing.
type Channel interface {
	// SlotAddress deterministically derives the repository key for seq.
	SlotAddress(seq SequenceNumber) SlotAddress
	// Seal encrypts plaintext under the per-(channel, seq) nonce.
	Seal(seq SequenceNumber, plaintext []byte) ([]byte, error)
	// Open decrypts ciphertext, returning ErrForgery if the tag does not verify.
	Open(seq SequenceNumber, ciphertext []byte) ([]byte, error)
}

// core is embedded by Pair and Group: it owns the shared secret and the
// 256-byte identifier, and implements SlotAddress/Seal/Open identically for
// both, exactly as spec.md §4.1 specifies one AEAD keyed on the shared
// secret with a nonce derived entirely from seq.
type core struct {
	secret     [32]byte
	identifier Identifier
}

func (c *core) SlotAddress(seq SequenceNumber) SlotAddress {
	h := sha256.New()
	var seqBytes [4]byte
	binary.LittleEndian.PutUint32(seqBytes[:], seq)
	h.Write(seqBytes[:])
	h.Write(c.identifier[:])
	var out SlotAddress
	copy(out[:], h.Sum(nil))
	return out
}

func nonceFor(seq SequenceNumber) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.LittleEndian.PutUint32(nonce[:4], seq)
	return nonce
}

func (c *core) aead() (cipher.AEAD, error) {
	return chacha20poly1305.New(c.secret[:])
}

func (c *core) Seal(seq SequenceNumber, plaintext []byte) ([]byte, error) {
	aead, err := c.aead()
	if err != nil {
		return nil, fmt.Errorf("channel: init cipher: %w", err)
	}
	return aead.Seal(nil, nonceFor(seq), plaintext, nil), nil
}

func (c *core) Open(seq SequenceNumber, ciphertext []byte) ([]byte, error) {
	aead, err := c.aead()
	if err != nil {
		return nil, fmt.Errorf("channel: init cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, nonceFor(seq), ciphertext, nil)
	if err != nil {
		return nil, &ErrForgery{Seq: seq}
	}
	return plaintext, nil
}

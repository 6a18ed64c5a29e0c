// Package keystore loads catena's two independent long-term secrets
// (spec.md §6): messenger_secret_key, the X25519 DH scalar Channel math runs
// on, from a base64 env var; and key_file_path, the ledger transaction
// signing key, from an OpenPGP-armored, passphrase-protected key file. The
// two are unrelated key material for unrelated purposes and are always
// loaded independently — neither is an alternate source for the other.
// Either way the raw bytes are held in a locked, non-swappable memguard
// buffer for as long as the process needs them.
package keystore

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/awnumar/memguard"
	"golang.org/x/term"
)

// SecretKey holds a 32-byte X25519 scalar in locked memory. Callers read it
// once via Bytes to build a channel.Pair or channel.Group and should not
// retain the returned slice past that call.
type SecretKey struct {
	buf *memguard.LockedBuffer
}

// Bytes returns the 32-byte secret. The returned slice aliases locked
// memory; copy it if it must outlive the SecretKey.
func (k *SecretKey) Bytes() []byte {
	return k.buf.Bytes()
}

// Destroy wipes the secret from memory. Safe to call multiple times.
func (k *SecretKey) Destroy() {
	k.buf.Destroy()
}

// FromBase64 decodes a base64-encoded 32-byte secret, as carried directly
// in the messenger_secret_key environment variable.
func FromBase64(encoded string) (*SecretKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("keystore: decode secret key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("keystore: secret key must be 32 bytes, got %d", len(raw))
	}
	buf := memguard.NewBufferFromBytes(raw)
	return &SecretKey{buf: buf}, nil
}

// SigningKey holds a NEAR-style ed25519 account key in locked memory: the
// key_file_path signer used to authenticate state-changing ledger calls
// (spec.md §6, "path to signing key for ledger transactions"). It is
// unrelated to SecretKey's X25519 scalar — loading one never substitutes
// for the other.
type SigningKey struct {
	buf       *memguard.LockedBuffer // 64-byte ed25519.PrivateKey (seed||public)
	accountID string
}

// Sign signs payload, implementing ledger.Signer structurally.
func (k *SigningKey) Sign(payload []byte) []byte {
	return ed25519.Sign(ed25519.PrivateKey(k.buf.Bytes()), payload)
}

// PublicKey returns the signer's ed25519 public key.
func (k *SigningKey) PublicKey() ed25519.PublicKey {
	priv := ed25519.PrivateKey(k.buf.Bytes())
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		panic("keystore: ed25519 private key produced a non-ed25519 public key")
	}
	return pub
}

// AccountID returns the NEAR account id this key signs as.
func (k *SigningKey) AccountID() string {
	return k.accountID
}

// Destroy wipes the key from memory. Safe to call multiple times.
func (k *SigningKey) Destroy() {
	k.buf.Destroy()
}

// LoadSigningKey loads an OpenPGP-armored private key from path and adapts
// it into a NEAR-style ed25519 account signer (key_file_path, spec.md §6).
// If the key is passphrase-protected, the passphrase is read from the
// controlling terminal without echo; promptPassphrase may be nil to skip
// this (for an unprotected key). The signing account id is taken from a
// non-empty User ID string among the key's OpenPGP identities (which one is
// not defined when there are several) — spec.md names no
// separate "own account" variable, and NEAR account ids are free-form
// strings, so the armored key's identity doubles as the signer's account.
func LoadSigningKey(path string, promptPassphrase func() ([]byte, error)) (*SigningKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("keystore: open key file: %w", err)
	}
	defer f.Close()

	block, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		return nil, fmt.Errorf("keystore: parse armored key: %w", err)
	}
	if len(block) == 0 {
		return nil, fmt.Errorf("keystore: no keys found in %s", path)
	}
	entity := block[0]

	if entity.PrivateKey != nil && entity.PrivateKey.Encrypted {
		if promptPassphrase == nil {
			return nil, fmt.Errorf("keystore: key in %s is encrypted, no passphrase source configured", path)
		}
		passphrase, err := promptPassphrase()
		if err != nil {
			return nil, fmt.Errorf("keystore: read passphrase: %w", err)
		}
		defer memguard.WipeBytes(passphrase)
		if err := entity.PrivateKey.Decrypt(passphrase); err != nil {
			return nil, fmt.Errorf("keystore: decrypt key: %w", err)
		}
	}

	seed, err := privateScalarBytes(entity)
	if err != nil {
		return nil, err
	}
	priv := ed25519.NewKeyFromSeed(seed)
	buf := memguard.NewBufferFromBytes(priv)
	return &SigningKey{buf: buf, accountID: signerAccountID(entity)}, nil
}

func signerAccountID(entity *openpgp.Entity) string {
	for _, identity := range entity.Identities {
		if identity.UserId != nil && identity.UserId.Id != "" {
			return identity.UserId.Id
		}
	}
	return ""
}

// privateScalarBytes extracts the raw 32-byte private scalar the OpenPGP
// key wraps, used as the seed for the derived ed25519 signing key.
func privateScalarBytes(entity *openpgp.Entity) ([]byte, error) {
	priv := entity.PrivateKey
	if priv == nil {
		return nil, fmt.Errorf("keystore: entity has no private key")
	}
	marshaled := bytes.NewBuffer(nil)
	if err := priv.Serialize(marshaled); err != nil {
		return nil, fmt.Errorf("keystore: serialize private key: %w", err)
	}
	raw := marshaled.Bytes()
	if len(raw) < 32 {
		return nil, fmt.Errorf("keystore: unexpected key encoding, got %d bytes", len(raw))
	}
	scalar := make([]byte, 32)
	copy(scalar, raw[len(raw)-32:])
	return scalar, nil
}

// PromptPassphrase reads a passphrase from the controlling terminal with
// echo disabled, for use as LoadSigningKey's promptPassphrase argument.
func PromptPassphrase(prompt string) func() ([]byte, error) {
	return func() ([]byte, error) {
		fmt.Fprint(os.Stderr, prompt)
		passphrase, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, err
		}
		return passphrase, nil
	}
}

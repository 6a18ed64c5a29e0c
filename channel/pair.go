package channel

import (
	crypto_rand "crypto/rand"

	"golang.org/x/crypto/curve25519"
)

// Pair is a two-party, directed channel: one role (sender or receiver) of
// one direction of a Conversation. It is the Go analogue of
// original_source/client/src/channel/one_way_pair.rs::OneWayPair.
type Pair struct {
	core
	SenderId   CorrespondentId
	ReceiverId CorrespondentId
}

var _ Channel = (*Pair)(nil)

// GenerateSecret produces a fresh X25519 static secret suitable for use as a
// long-lived messenger key (spec.md §6, `messenger_secret_key`).
func GenerateSecret() (secret [32]byte, err error) {
	if _, err = crypto_rand.Read(secret[:]); err != nil {
		return secret, err
	}
	// Clamp per RFC 7748 so the scalar is a valid X25519 private key.
	secret[0] &= 248
	secret[31] &= 127
	secret[31] |= 64
	return secret, nil
}

// PublicFromSecret derives the X25519 public key for a secret generated by
// GenerateSecret or supplied via messenger_secret_key.
func PublicFromSecret(secret [32]byte) (CorrespondentId, error) {
	pub, err := curve25519.X25519(secret[:], curve25519.Basepoint)
	if err != nil {
		return CorrespondentId{}, err
	}
	var out CorrespondentId
	copy(out[:], pub)
	return out, nil
}

func diffieHellman(localSecret [32]byte, remotePublic CorrespondentId) ([32]byte, error) {
	shared, err := curve25519.X25519(localSecret[:], remotePublic[:])
	if err != nil {
		return [32]byte{}, err
	}
	var out [32]byte
	copy(out[:], shared)
	return out, nil
}

func newPair(sender, receiver CorrespondentId, secret [32]byte) *Pair {
	return &Pair{
		core: core{
			secret:     secret,
			identifier: buildPairIdentifier(sender, receiver, secret),
		},
		SenderId:   sender,
		ReceiverId: receiver,
	}
}

// NewPair performs the DH exchange and returns the (send, recv) channel pair
// for one Conversation, per spec.md §4.2:
//
//  1. s = DH(localSecret, remotePublic)
//  2. L = public(localSecret), R = remotePublic
//  3. send = Channel{sender: L, receiver: R, secret: s}
//  4. recv = Channel{sender: R, receiver: L, secret: s}
//
// Send and receive channels share the secret but differ in identifier, so
// their slot address streams never collide (spec.md invariant 4).
func NewPair(localSecret [32]byte, remotePublic CorrespondentId) (send, recv *Pair, err error) {
	secret, err := diffieHellman(localSecret, remotePublic)
	if err != nil {
		return nil, nil, err
	}
	localPublic, err := PublicFromSecret(localSecret)
	if err != nil {
		return nil, nil, err
	}

	send = newPair(localPublic, remotePublic, secret)
	recv = newPair(remotePublic, localPublic, secret)
	return send, recv, nil
}

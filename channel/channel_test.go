package channel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustSecret(t *testing.T) [32]byte {
	t.Helper()
	s, err := GenerateSecret()
	require.NoError(t, err)
	return s
}

// Invariant 1: address agreement. Alice's send channel and Bob's recv
// channel for the same conversation must agree on every slot address.
func TestAddressAgreement(t *testing.T) {
	alice := mustSecret(t)
	bob := mustSecret(t)
	alicePub, err := PublicFromSecret(alice)
	require.NoError(t, err)
	bobPub, err := PublicFromSecret(bob)
	require.NoError(t, err)

	aliceSend, _, err := NewPair(alice, bobPub)
	require.NoError(t, err)
	_, bobRecv, err := NewPair(bob, alicePub)
	require.NoError(t, err)

	for seq := SequenceNumber(0); seq < 10; seq++ {
		require.Equal(t, aliceSend.SlotAddress(seq), bobRecv.SlotAddress(seq))
	}
}

// Invariant 2: round trip.
func TestRoundTrip(t *testing.T) {
	alice := mustSecret(t)
	bob := mustSecret(t)
	bobPub, err := PublicFromSecret(bob)
	require.NoError(t, err)

	send, _, err := NewPair(alice, bobPub)
	require.NoError(t, err)

	msgs := [][]byte{[]byte(""), []byte("hello"), []byte("a longer message with spaces and punctuation!")}
	for seq, m := range msgs {
		ct, err := send.Seal(SequenceNumber(seq), m)
		require.NoError(t, err)
		pt, err := send.Open(SequenceNumber(seq), ct)
		require.NoError(t, err)
		require.Equal(t, m, pt)
	}
}

// Invariant 3: forgery rejection.
func TestForgeryRejection(t *testing.T) {
	alice := mustSecret(t)
	bob := mustSecret(t)
	bobPub, err := PublicFromSecret(bob)
	require.NoError(t, err)

	send, _, err := NewPair(alice, bobPub)
	require.NoError(t, err)

	ct, err := send.Seal(0, []byte("dm 1"))
	require.NoError(t, err)

	tampered := append([]byte(nil), ct...)
	tampered[0] ^= 0x01

	_, err = send.Open(0, tampered)
	require.Error(t, err)
	var forgery *ErrForgery
	require.ErrorAs(t, err, &forgery)
}

// Invariant 4: directional disjointness.
func TestDirectionalDisjointness(t *testing.T) {
	alice := mustSecret(t)
	bob := mustSecret(t)
	bobPub, err := PublicFromSecret(bob)
	require.NoError(t, err)

	send, recv, err := NewPair(alice, bobPub)
	require.NoError(t, err)

	for seq := SequenceNumber(0); seq < 10; seq++ {
		require.NotEqual(t, send.SlotAddress(seq), recv.SlotAddress(seq))
	}
}

// Invariant 5: group lane exclusivity.
func TestGroupLaneExclusivity(t *testing.T) {
	var secret [32]byte
	copy(secret[:], []byte("0123456789abcdef0123456789abcdef"))

	members := make([]CorrespondentId, 4)
	for i := range members {
		s := mustSecret(t)
		pub, err := PublicFromSecret(s)
		require.NoError(t, err)
		members[i] = pub
	}

	g, err := NewGroup(members, secret, nil)
	require.NoError(t, err)

	seen := map[SequenceNumber]bool{}
	for lane := 0; lane < g.Size(); lane++ {
		for j := uint32(0); j < 20; j++ {
			seq := g.SequenceFor(lane, j)
			require.False(t, seen[seq], "duplicate seq %d", seq)
			seen[seq] = true
		}
	}
}

func TestGroupRequiresAtLeastTwoMembers(t *testing.T) {
	var secret [32]byte
	s := mustSecret(t)
	pub, err := PublicFromSecret(s)
	require.NoError(t, err)

	_, err = NewGroup([]CorrespondentId{pub}, secret, nil)
	require.Error(t, err)
}

// S6: three-party group, specific nonces.
func TestThreePartyGroupScenario(t *testing.T) {
	var secret [32]byte
	copy(secret[:], []byte("shared-secret-for-three-parties"))

	var m1, m2, m3 CorrespondentId
	m1[0], m2[0], m3[0] = 1, 2, 3

	g, err := NewGroup([]CorrespondentId{m1, m2, m3}, secret, nil)
	require.NoError(t, err)

	laneM2, ok := g.Lane(m2)
	require.True(t, ok)
	require.Equal(t, SequenceNumber(1), g.SequenceFor(laneM2, 0))

	laneM1, ok := g.Lane(m1)
	require.True(t, ok)
	require.Equal(t, SequenceNumber(3), g.SequenceFor(laneM1, 1))

	// All three see the same identifier, hence the same slot addresses.
	g2, err := NewGroup([]CorrespondentId{m3, m1, m2}, secret, nil)
	require.NoError(t, err)
	require.Equal(t, g.SlotAddress(3), g2.SlotAddress(3))
}

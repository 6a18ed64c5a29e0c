package stream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/catena-chat/catena/channel"
	"github.com/catena-chat/catena/ledger"
)

func newTestPair(t *testing.T) (send, recv channel.Channel) {
	t.Helper()
	alice, err := channel.GenerateSecret()
	require.NoError(t, err)
	bob, err := channel.GenerateSecret()
	require.NoError(t, err)
	bobPub, err := channel.PublicFromSecret(bob)
	require.NoError(t, err)
	alicePub, err := channel.PublicFromSecret(alice)
	require.NoError(t, err)

	aliceSend, _, err := channel.NewPair(alice, bobPub)
	require.NoError(t, err)
	_, bobRecv, err := channel.NewPair(bob, alicePub)
	require.NoError(t, err)
	return aliceSend, bobRecv
}

func TestSendReceiveRoundTrip(t *testing.T) {
	send, recv := newTestPair(t)
	repo := ledger.NewMemoryRepository()

	sendStream := New(send, repo)
	recvStream := New(recv, repo)

	ctx := context.Background()
	require.NoError(t, sendStream.Send(ctx, []byte("dm 1")))
	require.Equal(t, channel.SequenceNumber(1), sendStream.Seq())

	msg, err := recvStream.ReceiveNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, "dm 1", string(msg.Plaintext))
	require.Equal(t, channel.SequenceNumber(1), recvStream.Seq())
}

// Invariant 7: receive idempotence on miss.
func TestReceiveIdempotentOnMiss(t *testing.T) {
	_, recv := newTestPair(t)
	repo := ledger.NewMemoryRepository()
	recvStream := New(recv, repo)

	ctx := context.Background()
	msg, err := recvStream.ReceiveNext(ctx)
	require.NoError(t, err)
	require.Nil(t, msg)
	require.Equal(t, channel.SequenceNumber(0), recvStream.Seq())
}

// Invariant 6: counter monotonicity; a failed send leaves the counter unchanged.
func TestSendFailureLeavesCounterUnchanged(t *testing.T) {
	send, _ := newTestPair(t)
	repo := ledger.NewMemoryRepository()
	repo.FailNextPut = true
	sendStream := New(send, repo)

	ctx := context.Background()
	err := sendStream.Send(ctx, []byte("won't land"))
	require.Error(t, err)
	require.Equal(t, channel.SequenceNumber(0), sendStream.Seq())
}

// S5: forgery leaves the counter unchanged; restoring the byte succeeds.
func TestForgeryThenRecovery(t *testing.T) {
	send, recv := newTestPair(t)
	repo := ledger.NewMemoryRepository()
	sendStream := New(send, repo)
	recvStream := New(recv, repo)

	ctx := context.Background()
	require.NoError(t, sendStream.Send(ctx, []byte("dm 1")))

	slot := send.SlotAddress(0)
	repo.Tamper(slot)

	_, err := recvStream.ReceiveNext(ctx)
	require.Error(t, err)
	require.Equal(t, channel.SequenceNumber(0), recvStream.Seq())

	repo.Untamper(slot)
	msg, err := recvStream.ReceiveNext(ctx)
	require.NoError(t, err)
	require.Equal(t, "dm 1", string(msg.Plaintext))
}

func TestBootstrapFindsFirstUnusedSequence(t *testing.T) {
	send, recv := newTestPair(t)
	repo := ledger.NewMemoryRepository()
	sendStream := New(send, repo)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, sendStream.Send(ctx, []byte("x")))
	}

	fresh := New(send, repo)
	require.NoError(t, fresh.Bootstrap(ctx))
	require.Equal(t, channel.SequenceNumber(5), fresh.Seq())

	_ = recv
}

package multiplex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/catena-chat/catena/channel"
	"github.com/catena-chat/catena/ledger"
	"github.com/catena-chat/catena/stream"
)

func genPair(t *testing.T) (aSecret, bSecret [32]byte, aPub, bPub channel.CorrespondentId) {
	t.Helper()
	var err error
	aSecret, err = channel.GenerateSecret()
	require.NoError(t, err)
	bSecret, err = channel.GenerateSecret()
	require.NoError(t, err)
	aPub, err = channel.PublicFromSecret(aSecret)
	require.NoError(t, err)
	bPub, err = channel.PublicFromSecret(bSecret)
	require.NoError(t, err)
	return
}

// S2/S3-style: self-sent echo and cross-stream ordering.
func TestMultiplexerOrdersByTimestamp(t *testing.T) {
	aliceSecret, bobSecret, alicePub, bobPub := genPair(t)
	repo := ledger.NewMemoryRepository()

	aliceSend, aliceRecv, err := channel.NewPair(aliceSecret, bobPub)
	require.NoError(t, err)
	bobSend, _, err := channel.NewPair(bobSecret, alicePub)
	require.NoError(t, err)

	aliceSendStream := stream.New(aliceSend, repo)
	aliceRecvStream := stream.New(aliceRecv, repo)

	ctx := context.Background()

	// Alice sends "A" which the repo timestamps first (clock=1); then we
	// hand-place Bob's "B" at a later explicit timestamp so ordering is
	// deterministic regardless of wall-clock speed.
	require.NoError(t, aliceSendStream.Send(ctx, []byte("A")))

	bobCiphertext, err := bobSend.Seal(0, []byte("B"))
	require.NoError(t, err)
	repo.PutAt(bobSend.SlotAddress(0), bobCiphertext, 200)

	// Sending advanced aliceSendStream's counter past "A", so Alice reads her
	// own direction through a separate stream over the same send channel.
	aliceEchoStream := stream.New(aliceSend, repo)

	mux := New(
		Source{CorrespondentId: alicePub, Stream: aliceEchoStream},
		Source{CorrespondentId: bobPub, Stream: aliceRecvStream},
	)

	_, first, err := mux.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	require.Equal(t, "A", string(first.Plaintext))

	_, second, err := mux.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, second)
	require.Equal(t, "B", string(second.Plaintext))

	_, third, err := mux.Next(ctx)
	require.NoError(t, err)
	require.Nil(t, third)
}

func TestMultiplexerSkipsEmptyStream(t *testing.T) {
	aliceSecret, bobSecret, _, bobPub := genPair(t)
	repo := ledger.NewMemoryRepository()

	aliceSend, _, err := channel.NewPair(aliceSecret, bobPub)
	require.NoError(t, err)
	bobSend, _, err := channel.NewPair(bobSecret, bobPub)
	require.NoError(t, err)
	_ = bobSend

	ctx := context.Background()
	aliceSendStream := stream.New(aliceSend, repo)
	require.NoError(t, aliceSendStream.Send(ctx, []byte("only message")))

	emptyChannelStream := stream.New(bobSend, repo)

	// A separate stream over aliceSend reads from sequence 0; aliceSendStream
	// itself has already advanced past the message it sent.
	mux := New(
		Source{Stream: stream.New(aliceSend, repo)},
		Source{Stream: emptyChannelStream},
	)

	_, msg, err := mux.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, "only message", string(msg.Plaintext))
}

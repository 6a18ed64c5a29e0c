package messenger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/catena-chat/catena/channel"
	"github.com/catena-chat/catena/ledger"
)

// fakeRegistry is a minimal in-memory KeyRegistry for tests, standing in for
// the external ledger collaborator (spec.md §1 says the core's only
// dependency on the ledger is the two abstract operations of §6).
type fakeRegistry struct {
	keys map[string]channel.CorrespondentId
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{keys: make(map[string]channel.CorrespondentId)}
}

func (f *fakeRegistry) GetPublicKey(_ context.Context, account string) (channel.CorrespondentId, error) {
	id, ok := f.keys[account]
	if !ok {
		return channel.CorrespondentId{}, ledger.ErrPeerUnregistered
	}
	return id, nil
}

func (f *fakeRegistry) SetPublicKey(_ context.Context, publicKey channel.CorrespondentId) error {
	f.keys["self"] = publicKey
	return nil
}

// S1: two-party echo.
func TestTwoPartyEcho(t *testing.T) {
	ctx := context.Background()
	repo := ledger.NewMemoryRepository()
	registry := newFakeRegistry()

	var aliceSecret, bobSecret [32]byte
	for i := range aliceSecret {
		aliceSecret[i] = 1
		bobSecret[i] = 2
	}
	aliceSecret[0] &= 248
	aliceSecret[31] &= 127
	aliceSecret[31] |= 64
	bobSecret[0] &= 248
	bobSecret[31] &= 127
	bobSecret[31] |= 64

	alice, err := New(aliceSecret, registry, repo)
	require.NoError(t, err)
	bob, err := New(bobSecret, registry, repo)
	require.NoError(t, err)

	registry.keys["alice"] = alice.PublicKey()
	registry.keys["bob"] = bob.PublicKey()

	_, err = alice.OpenConversation(ctx, "bob")
	require.NoError(t, err)
	_, err = bob.OpenConversation(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, alice.Send(ctx, "bob", []byte("dm 1")))

	msg, err := bob.ReceiveOneFrom(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, "dm 1", string(msg.Plaintext))

	account, ok := bob.Resolve(alice.PublicKey())
	require.True(t, ok)
	require.Equal(t, "alice", account)
}

func TestUnregisteredPeerFails(t *testing.T) {
	ctx := context.Background()
	repo := ledger.NewMemoryRepository()
	registry := newFakeRegistry()

	secret, err := channel.GenerateSecret()
	require.NoError(t, err)
	m, err := New(secret, registry, repo)
	require.NoError(t, err)

	_, err = m.OpenConversation(ctx, "nobody")
	require.ErrorIs(t, err, ledger.ErrPeerUnregistered)
}

func TestSendWithoutConversationFails(t *testing.T) {
	repo := ledger.NewMemoryRepository()
	registry := newFakeRegistry()
	secret, err := channel.GenerateSecret()
	require.NoError(t, err)
	m, err := New(secret, registry, repo)
	require.NoError(t, err)

	err = m.Send(context.Background(), "nobody", []byte("x"))
	require.ErrorIs(t, err, ErrNoSuchConversation)
}

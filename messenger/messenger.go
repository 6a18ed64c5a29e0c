// Package messenger is the top-level facade described in spec.md §4.6: it
// resolves peer identity to a public key via the key registry, constructs
// per-peer channels and streams, and keeps a correspondent directory.
//
// Grounded on original_source/client/src/messenger.rs (Messenger::new,
// sync_key, register_correspondent, send, receive_one_from), restructured so
// Thread's responsibilities live in the stream package and the per-stream
// poll fan-out lives in multiplex, leaving Messenger to do only peer
// resolution, channel construction, and directory bookkeeping.
package messenger

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/catena-chat/catena/channel"
	"github.com/catena-chat/catena/directory"
	"github.com/catena-chat/catena/ledger"
	"github.com/catena-chat/catena/stream"
)

// ErrNoSuchConversation is returned when an operation names a peer with no
// open conversation — spec.md §7.
var ErrNoSuchConversation = fmt.Errorf("messenger: no open conversation for that peer")

// Messenger is the single authority for turning an external account
// identifier into a channel; individual streams never call the registry
// themselves (spec.md §4.6).
type Messenger struct {
	secretKey   [32]byte
	publicKey   channel.CorrespondentId
	keyRegistry ledger.KeyRegistry
	repository  ledger.Repository
	directory   *directory.Directory
	aliasCache  *directory.AliasCache
	logger      *log.Logger

	mu            sync.RWMutex
	conversations map[string]*Conversation
}

// New constructs a Messenger. secretKey is the long-lived X25519 DH secret
// (spec.md §6, messenger_secret_key); it is the caller's responsibility to
// hold it in locked memory (see the keystore package) — Messenger only keeps
// a working copy for the life of the process.
func New(secretKey [32]byte, keyRegistry ledger.KeyRegistry, repository ledger.Repository) (*Messenger, error) {
	publicKey, err := channel.PublicFromSecret(secretKey)
	if err != nil {
		return nil, fmt.Errorf("messenger: derive public key: %w", err)
	}
	return &Messenger{
		secretKey:     secretKey,
		publicKey:     publicKey,
		keyRegistry:   keyRegistry,
		repository:    repository,
		directory:     directory.New(),
		logger:        log.Default().With("component", "messenger"),
		conversations: make(map[string]*Conversation),
	}, nil
}

// PublicKey returns this Messenger's own CorrespondentId.
func (m *Messenger) PublicKey() channel.CorrespondentId {
	return m.publicKey
}

// SetAliasCache attaches a durable nickname↔account cache (SPEC_FULL
// §6.4). When set, RememberNickname/Nickname become backed by Postgres
// instead of being no-ops. Messenger owns the cache's lifetime;
// Close releases it.
func (m *Messenger) SetAliasCache(cache *directory.AliasCache) {
	m.aliasCache = cache
}

// Nickname returns the durably remembered display name for account, if the
// alias cache is configured and has one.
func (m *Messenger) Nickname(account string) (string, bool) {
	if m.aliasCache == nil {
		return "", false
	}
	nickname, ok, err := m.aliasCache.Nickname(account)
	if err != nil {
		m.logger.Warn("alias cache lookup failed", "account", account, "err", err)
		return "", false
	}
	return nickname, ok
}

// RememberNickname durably records nickname as account's display name, a
// no-op if no alias cache is configured.
func (m *Messenger) RememberNickname(account, nickname string) error {
	if m.aliasCache == nil {
		return nil
	}
	return m.aliasCache.Remember(account, nickname)
}

// Close releases resources held for the life of the process, currently
// just the alias cache's database connection, if one was attached.
func (m *Messenger) Close() error {
	if m.aliasCache == nil {
		return nil
	}
	return m.aliasCache.Close()
}

// PublishSelfKey stores our public key in the key registry under our
// account identifier. Must be called once per session before peers can
// reach us (spec.md §4.6).
func (m *Messenger) PublishSelfKey(ctx context.Context) error {
	return m.keyRegistry.SetPublicKey(ctx, m.publicKey)
}

// ResolveAccount looks up peerAccount's public key via the key registry,
// the same resolution OpenConversation performs internally, and registers
// it in the directory. Exposed for callers that need a CorrespondentId
// before they have a Pair channel to build, such as assembling the member
// set of a group conversation.
func (m *Messenger) ResolveAccount(ctx context.Context, account string) (channel.CorrespondentId, error) {
	if id, ok := m.directory.Lookup(account); ok {
		return id, nil
	}
	id, err := m.keyRegistry.GetPublicKey(ctx, account)
	if err != nil {
		return channel.CorrespondentId{}, err
	}
	m.directory.Register(id, account)
	return id, nil
}

// OpenConversation resolves peerAccount to a public key via the key
// registry, performs the DH exchange, constructs a Pair channel, bootstraps
// both directions against the repository, registers the peer in the
// directory, and returns the resulting Conversation.
func (m *Messenger) OpenConversation(ctx context.Context, peerAccount string) (*Conversation, error) {
	m.mu.RLock()
	if existing, ok := m.conversations[peerAccount]; ok {
		m.mu.RUnlock()
		return existing, nil
	}
	m.mu.RUnlock()

	peerPublicKey, err := m.keyRegistry.GetPublicKey(ctx, peerAccount)
	if err != nil {
		return nil, err
	}

	sendChannel, recvChannel, err := channel.NewPair(m.secretKey, peerPublicKey)
	if err != nil {
		return nil, fmt.Errorf("messenger: derive channel pair: %w", err)
	}

	sendStream := stream.New(sendChannel, m.repository)
	recvStream := stream.New(recvChannel, m.repository)

	// Bootstrap both directions concurrently, mirroring the original's
	// try_join!(send.sync(...), recv.sync(...)) in register_correspondent.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sendStream.Bootstrap(gctx) })
	g.Go(func() error { return recvStream.Bootstrap(gctx) })
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("messenger: bootstrap conversation: %w", err)
	}

	conv := &Conversation{Send: sendStream, Recv: recvStream}

	m.mu.Lock()
	m.conversations[peerAccount] = conv
	m.mu.Unlock()

	m.directory.Register(peerPublicKey, peerAccount)
	m.logger.Debug("opened conversation", "peer", peerAccount)
	return conv, nil
}

// Send encrypts and publishes cleartext on the send stream of the
// conversation with recipientAccount.
func (m *Messenger) Send(ctx context.Context, recipientAccount string, cleartext []byte) error {
	conv, err := m.conversationFor(recipientAccount)
	if err != nil {
		return err
	}
	return conv.Send.Send(ctx, cleartext)
}

// ReceiveOneFrom polls the next message on the receive stream of the
// conversation with senderAccount.
func (m *Messenger) ReceiveOneFrom(ctx context.Context, senderAccount string) (*stream.DecryptedMessage, error) {
	conv, err := m.conversationFor(senderAccount)
	if err != nil {
		return nil, err
	}
	return conv.Recv.ReceiveNext(ctx)
}

func (m *Messenger) conversationFor(account string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.conversations[account]
	if !ok {
		return nil, ErrNoSuchConversation
	}
	return conv, nil
}

// Resolve is the reverse lookup, CorrespondentId -> account, populated as a
// side effect of OpenConversation (spec.md §4.6).
func (m *Messenger) Resolve(id channel.CorrespondentId) (string, bool) {
	return m.directory.Resolve(id)
}

// Lookup is the forward lookup, account -> CorrespondentId, populated as a
// side effect of OpenConversation.
func (m *Messenger) Lookup(account string) (channel.CorrespondentId, bool) {
	return m.directory.Lookup(account)
}

// Conversations returns the accounts with a currently open conversation, for
// driving a Multiplexer over all of them.
func (m *Messenger) Conversations() map[string]*Conversation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*Conversation, len(m.conversations))
	for k, v := range m.conversations {
		out[k] = v
	}
	return out
}

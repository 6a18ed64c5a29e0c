// Package directory is the Messenger's session-local correspondent
// directory: a mapping CorrespondentId ↔ external account identifier,
// populated opportunistically as peers are resolved (spec.md §3/§4.6).
package directory

import (
	"sync"

	"github.com/catena-chat/catena/channel"
)

// Directory is a readers-writer-guarded map, matching spec.md §5's explicit
// "many concurrent reads, rare writes on first resolution" shared-mutability
// requirement.
type Directory struct {
	mu      sync.RWMutex
	byId    map[channel.CorrespondentId]string
	byAlias map[string]channel.CorrespondentId
}

// New returns an empty, session-local Directory.
func New() *Directory {
	return &Directory{
		byId:    make(map[channel.CorrespondentId]string),
		byAlias: make(map[string]channel.CorrespondentId),
	}
}

// Register records that account resolves to id. Called as a side effect of
// Messenger.OpenConversation, ResolveAccount and OpenGroupConversation — never by individual
// streams directly (spec.md §4.6: "the Messenger is the single authority").
func (d *Directory) Register(id channel.CorrespondentId, account string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byId[id] = account
	d.byAlias[account] = id
}

// Resolve is the reverse lookup: CorrespondentId -> account, used only to
// render human-readable names.
func (d *Directory) Resolve(id channel.CorrespondentId) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	account, ok := d.byId[id]
	return account, ok
}

// Lookup is the forward lookup: account -> CorrespondentId, for callers that
// already resolved an account and want to avoid a second registry round trip.
func (d *Directory) Lookup(account string) (channel.CorrespondentId, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byAlias[account]
	return id, ok
}

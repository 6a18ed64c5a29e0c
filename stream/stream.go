// Package stream implements one logical direction of a conversation: a
// channel, a monotonic sequence counter, and a handle to the repository.
//
// Grounded on map/client/stream.go's Stream (write/read pointer held in the
// struct, Get/Put against a pluggable client) and
// original_source/client/src/messenger.rs's Thread (next_nonce/advance_nonce/
// sync), generalised to spec.md §4.4's direction-agnostic contract.
package stream

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/catena-chat/catena/channel"
	"github.com/catena-chat/catena/ledger"
)

// DecryptedMessage is what ReceiveNext returns on a hit.
type DecryptedMessage struct {
	Plaintext        []byte
	BlockTimestampMs uint64
}

// Stream binds one Channel role to a monotonic counter and a Repository
// handle. A Stream has no back-pointer to its owning Messenger (spec.md §9):
// it only knows its Channel and its Repository.
type Stream struct {
	channel channel.Channel
	repo    ledger.Repository
	logger  *log.Logger

	mu  sync.Mutex
	seq channel.SequenceNumber
}

// New constructs a Stream starting at sequence 0. Callers that want to
// resume a prior session should follow New with Bootstrap.
func New(ch channel.Channel, repo ledger.Repository) *Stream {
	return &Stream{
		channel: ch,
		repo:    repo,
		logger:  log.Default().With("component", "stream"),
	}
}

// Seq returns the current sequence number. Exposed for tests, not for
// external mutation.
func (s *Stream) Seq() channel.SequenceNumber {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Send encrypts plaintext under the current seq, publishes it, and advances
// the counter only on success (spec.md invariant 6). The counter mutex is
// never held across the repository call (spec.md §9, "avoid suspend in
// lock"): the seq is snapshotted, the lock released, the I/O issued, and the
// lock reacquired only to advance.
func (s *Stream) Send(ctx context.Context, plaintext []byte) error {
	s.mu.Lock()
	seq := s.seq
	s.mu.Unlock()

	slot := s.channel.SlotAddress(seq)
	ciphertext, err := s.channel.Seal(seq, plaintext)
	if err != nil {
		return err
	}

	err = s.repo.Put(ctx, slot, ciphertext)
	if err != nil {
		if errors.Is(err, ledger.ErrSlotOccupied) {
			// Replaying our own first send after a partial failure retries
			// the same content-addressed key: treat it as success
			// (spec.md §4.7 / S4). A retry seals the same plaintext under the
			// same key and nonce, so the slot then holds exactly our
			// ciphertext. Any other occupied slot at our current seq means
			// our counter is desynchronised, or worse, so it is not
			// swallowed.
			stored, getErr := s.repo.Get(ctx, slot)
			if getErr != nil {
				return getErr
			}
			if stored == nil || !bytes.Equal(stored.Ciphertext, ciphertext) {
				return err
			}
			s.logger.Debug("slot occupied on retry, treating as success", "seq", seq)
		} else {
			return err
		}
	}

	s.mu.Lock()
	if s.seq == seq {
		s.seq++
	}
	next := s.seq
	s.mu.Unlock()

	// Best-effort restart hint (spec.md §9); absent on a plain
	// ledger.Client, since only LocalRepository implements it.
	if hinter, ok := s.repo.(ledger.BootstrapHinter); ok {
		if err := hinter.SaveBootstrapHint(s.channel.SlotAddress(0), next); err != nil {
			s.logger.Debug("save bootstrap hint failed", "err", err)
		}
	}
	return nil
}

// ReceiveNext polls the next slot. If it is empty it returns (nil, nil)
// without advancing the counter — this is what makes polling safe: a caller
// loops over ReceiveNext until it returns a nil message, then waits and
// retries (spec.md invariant 7). If the slot is occupied but the AEAD tag
// does not verify, the error is a *channel.ErrForgery and the counter is
// likewise left unchanged.
func (s *Stream) ReceiveNext(ctx context.Context) (*DecryptedMessage, error) {
	s.mu.Lock()
	seq := s.seq
	s.mu.Unlock()

	slot := s.channel.SlotAddress(seq)
	stored, err := s.repo.Get(ctx, slot)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, nil
	}

	plaintext, err := s.channel.Open(seq, stored.Ciphertext)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.seq == seq {
		s.seq++
	}
	s.mu.Unlock()

	return &DecryptedMessage{
		Plaintext:        plaintext,
		BlockTimestampMs: stored.BlockTimestampMs,
	}, nil
}

// setSeq is used only by Bootstrap (same package) to install a discovered
// starting sequence number before the stream is used.
func (s *Stream) setSeq(seq channel.SequenceNumber) {
	s.mu.Lock()
	s.seq = seq
	s.mu.Unlock()
}

// Package multiplex merges several streams into one globally
// timestamp-ordered iterator, per spec.md §4.5.
//
// Grounded on original_source/client/src/multiplex_threads.rs
// (MultiplexedThreads::next), translated structurally: one lookahead slot
// per stream, lowest-timestamp-wins selection with a stable index tie-break.
package multiplex

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/catena-chat/catena/channel"
	"github.com/catena-chat/catena/stream"
)

// Source pairs a Stream with the correspondent identity the Multiplexer
// should report it under.
type Source struct {
	CorrespondentId channel.CorrespondentId
	Stream          *stream.Stream
}

// Multiplexer merges k streams' messages in ascending BlockTimestampMs order
// (spec.md invariant 8), buffering one lookahead per stream so a slow
// stream's already-fetched message is never discarded while waiting for its
// turn.
type Multiplexer struct {
	sources    []Source
	lookaheads []*stream.DecryptedMessage
	errs       []error
}

// New constructs a Multiplexer over sources. The order of sources is the
// tie-break order: when two lookaheads share a timestamp, the
// lower-indexed source wins, matching spec.md §4.5 step 2's "stable" rule.
func New(sources ...Source) *Multiplexer {
	return &Multiplexer{
		sources:    sources,
		lookaheads: make([]*stream.DecryptedMessage, len(sources)),
		errs:       make([]error, len(sources)),
	}
}

// Next implements spec.md §4.5's algorithm:
//
//  1. For every stream with an empty lookahead, poll ReceiveNext once.
//  2. Among populated lookaheads, pick the lowest timestamp (ties: lowest index).
//  3. If none are populated, return (CorrespondentId{}, nil, nil).
//  4. Otherwise take that lookahead, leaving the slot empty, and return it.
//
// If a stream's ReceiveNext errors, the error is returned immediately and
// that stream's lookahead remains empty, so the next call retries it; other
// streams' already-populated lookaheads are preserved across the call.
func (m *Multiplexer) Next(ctx context.Context) (channel.CorrespondentId, *stream.DecryptedMessage, error) {
	g, gctx := errgroup.WithContext(ctx)
	for i := range m.sources {
		if m.lookaheads[i] != nil {
			continue
		}
		i := i
		g.Go(func() error {
			msg, err := m.sources[i].Stream.ReceiveNext(gctx)
			m.errs[i] = err
			m.lookaheads[i] = msg
			return nil // errors are surfaced per-stream below, not via errgroup
		})
	}
	// errgroup.Group.Wait only ever returns an error if one of the Go
	// functions itself returned non-nil, which never happens above; its
	// only purpose here is to fan the polls out concurrently (mirroring the
	// original's try_join!) and block until they all land.
	_ = g.Wait()

	for i := range m.sources {
		if m.errs[i] != nil {
			err := m.errs[i]
			m.errs[i] = nil
			return channel.CorrespondentId{}, nil, err
		}
	}

	best := -1
	for i, la := range m.lookaheads {
		if la == nil {
			continue
		}
		if best == -1 || la.BlockTimestampMs < m.lookaheads[best].BlockTimestampMs {
			best = i
		}
	}
	if best == -1 {
		return channel.CorrespondentId{}, nil, nil
	}

	msg := m.lookaheads[best]
	m.lookaheads[best] = nil
	return m.sources[best].CorrespondentId, msg, nil
}

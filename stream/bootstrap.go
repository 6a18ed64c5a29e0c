package stream

import (
	"context"
	"fmt"

	"github.com/catena-chat/catena/channel"
	"github.com/catena-chat/catena/ledger"
)

// maxBootstrapProbe bounds the exponential-search phase; beyond this the
// channel has sent more messages than a u32 counter can ever address.
const maxBootstrapProbe = 1 << 32

// Bootstrap probes the repository for the first unoccupied sequence number
// and installs it as the stream's starting counter, letting a restarted
// session resume cleanly without a persisted counter (spec.md §9).
//
// Grounded on original_source/client/src/message_repository.rs::
// discover_first_unused_nonce, which does a linear scan and explicitly notes
// it should really do "exponential bounds discovery and then binary search".
// This implements that suggested improvement: first double a probe index
// until an empty slot is found (or the u32 space is exhausted), then binary
// search the resulting occupied/empty boundary.
func (s *Stream) Bootstrap(ctx context.Context) error {
	occupied := func(seq channel.SequenceNumber) (bool, error) {
		stored, err := s.repo.Get(ctx, s.channel.SlotAddress(seq))
		if err != nil {
			return false, err
		}
		return stored != nil, nil
	}

	// Start from a previously saved restart hint, if one exists
	// (spec.md §9): this lets a resumed session start near the true value
	// instead of at zero. The hint is only ever an optimization — it is
	// still verified below, and a hint below the true value only costs
	// extra probes.
	var start channel.SequenceNumber
	if hinter, ok := s.repo.(ledger.BootstrapHinter); ok {
		if hint, found, err := hinter.BootstrapHint(s.channel.SlotAddress(0)); err == nil && found {
			start = hint
		}
	}

	isOccupied, err := occupied(start)
	if err != nil {
		return err
	}
	if !isOccupied {
		s.setSeq(start)
		return nil
	}

	// Exponential search for an upper bound known to be empty.
	var lo, hi uint64 = uint64(start), uint64(start) + 1
	for {
		if hi >= maxBootstrapProbe {
			return fmt.Errorf("stream: bootstrap: no empty slot found below 2^32")
		}
		isOccupied, err = occupied(channel.SequenceNumber(hi))
		if err != nil {
			return err
		}
		if !isOccupied {
			break
		}
		lo = hi
		hi *= 2
	}

	// Binary search the occupied/empty boundary in (lo, hi]: lo is known
	// occupied, hi is known empty.
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		isOccupied, err = occupied(channel.SequenceNumber(mid))
		if err != nil {
			return err
		}
		if isOccupied {
			lo = mid
		} else {
			hi = mid
		}
	}

	s.setSeq(channel.SequenceNumber(hi))
	return nil
}

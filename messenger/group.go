package messenger

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/catena-chat/catena/channel"
	"github.com/catena-chat/catena/stream"
)

// GroupConversation is the n-member generalisation of Conversation: one
// Group channel, one Stream for the caller's own lane (for sending), and one
// receive Stream per other member's lane (spec.md §4.3).
type GroupConversation struct {
	Channel *channel.Group
	own     int
	Send    *stream.Stream
	Recv    map[int]*stream.Stream // lane -> stream, excludes own lane
}

// laneChannel wraps a Group channel so that a Stream's counter walks logical
// indices within one member's lane instead of the raw global sequence space:
// seq = n*logical+lane. Group lanes are partitioned subsets of the same u32
// space a Pair channel uses unpartitioned, so the underlying Stream type is
// reused unmodified — only slot-address/seal/open inputs differ, which
// channel.Group's Channel implementation already accounts for via its own
// identifier. The lane's logical-index bookkeeping is therefore delegated
// entirely to channel.Group.SequenceFor in the methods below, and Stream's
// own counter is used as "next logical index for this lane" rather than
// "next seq" — see OpenGroupConversation.
type laneChannel struct {
	group *channel.Group
	lane  int
}

func (l *laneChannel) SlotAddress(logicalIndex channel.SequenceNumber) channel.SlotAddress {
	return l.group.SlotAddress(l.group.SequenceFor(l.lane, logicalIndex))
}

func (l *laneChannel) Seal(logicalIndex channel.SequenceNumber, plaintext []byte) ([]byte, error) {
	return l.group.Seal(l.group.SequenceFor(l.lane, logicalIndex), plaintext)
}

func (l *laneChannel) Open(logicalIndex channel.SequenceNumber, ciphertext []byte) ([]byte, error) {
	return l.group.Open(l.group.SequenceFor(l.lane, logicalIndex), ciphertext)
}

var _ channel.Channel = (*laneChannel)(nil)

// OpenGroupConversation constructs an n-member group channel (secret agreed
// externally, per spec.md §4.3) and one Stream per member's lane: one for
// sending (the caller's own lane) and one receive Stream for every other
// lane, each bootstrapped against the repository concurrently.
func (m *Messenger) OpenGroupConversation(ctx context.Context, memberAccounts map[string]channel.CorrespondentId, secret [32]byte, groupContext []byte) (*GroupConversation, error) {
	members := make([]channel.CorrespondentId, 0, len(memberAccounts)+1)
	members = append(members, m.publicKey)
	accountByMember := map[channel.CorrespondentId]string{m.publicKey: "self"}
	for account, id := range memberAccounts {
		members = append(members, id)
		accountByMember[id] = account
	}

	group, err := channel.NewGroup(members, secret, groupContext)
	if err != nil {
		return nil, fmt.Errorf("messenger: construct group channel: %w", err)
	}

	own, ok := group.Lane(m.publicKey)
	if !ok {
		return nil, fmt.Errorf("messenger: self not a canonical member of group")
	}

	gc := &GroupConversation{
		Channel: group,
		own:     own,
		Send:    stream.New(&laneChannel{group: group, lane: own}, m.repository),
		Recv:    make(map[int]*stream.Stream, group.Size()-1),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return gc.Send.Bootstrap(gctx) })
	for lane := 0; lane < group.Size(); lane++ {
		if lane == own {
			continue
		}
		lane := lane
		s := stream.New(&laneChannel{group: group, lane: lane}, m.repository)
		gc.Recv[lane] = s
		g.Go(func() error { return s.Bootstrap(gctx) })
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("messenger: bootstrap group conversation: %w", err)
	}

	for _, id := range members {
		if account, ok := accountByMember[id]; ok {
			m.directory.Register(id, account)
		}
	}

	return gc, nil
}

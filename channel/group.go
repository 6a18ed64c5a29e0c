package channel

import "fmt"

// Group generalises Pair to n≥2 ordered members sharing one externally
// agreed secret, carving per-member nonce lanes out of the u32 sequence
// space (spec.md §4.3). Membership is immutable for the channel's lifetime;
// a membership change requires constructing a brand-new Group (new
// identifier) — see spec.md §9's rekeying open question.
type Group struct {
	core
	// Members is the canonical (sorted) member list; Lane(id) is that
	// member's index into it.
	Members []CorrespondentId
	n       uint32
}

var _ Channel = (*Group)(nil)

// NewGroup canonicalises members by sorting them lexicographically and
// derives the group identifier from them plus the externally agreed secret
// and an optional context (empty for a plain group DM).
func NewGroup(members []CorrespondentId, secret [32]byte, context []byte) (*Group, error) {
	if len(members) < 2 {
		return nil, fmt.Errorf("channel: group requires at least 2 members, got %d", len(members))
	}
	sorted := sortMembers(members)
	return &Group{
		core: core{
			secret:     secret,
			identifier: buildGroupIdentifier(sorted, secret, context),
		},
		Members: sorted,
		n:       uint32(len(sorted)),
	}, nil
}

// Lane returns the canonical index of member within the group, and whether
// it is actually a member.
func (g *Group) Lane(member CorrespondentId) (int, bool) {
	for i, m := range g.Members {
		if m == member {
			return i, true
		}
	}
	return 0, false
}

// SequenceFor returns the seq a member at lane i uses for its j-th logical
// message: seq = n*j + i. Every seq value is claimed by exactly one member,
// so AEAD nonces never collide across lanes (spec.md invariant 5).
func (g *Group) SequenceFor(lane int, logicalIndex uint32) SequenceNumber {
	return g.n*logicalIndex + uint32(lane)
}

// LogicalIndex is the inverse of SequenceFor: given a seq known to belong to
// lane, returns its logical index within that lane.
func (g *Group) LogicalIndex(lane int, seq SequenceNumber) uint32 {
	return (seq - uint32(lane)) / g.n
}

// Size returns the number of canonical members, n.
func (g *Group) Size() int {
	return int(g.n)
}

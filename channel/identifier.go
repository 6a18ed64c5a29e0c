package channel

import (
	"crypto/sha256"
	"sort"
)

// buildPairIdentifier lays out the 256-byte pair identifier exactly as
// spec.md §3 specifies: [0..32)=sender, [32..64)=receiver, [64..96)=secret,
// remainder zero. Two parties that compute the same buffer compute the same
// slot addresses at every sequence number; any divergence permanently
// desynchronises them.
func buildPairIdentifier(sender, receiver CorrespondentId, secret [32]byte) Identifier {
	var id Identifier
	copy(id[0:32], sender[:])
	copy(id[32:64], receiver[:])
	copy(id[64:96], secret[:])
	return id
}

// buildGroupIdentifier lays out the 256-byte group identifier: [0..32)=SHA-256
// of the concatenated, sorted member ids, [64..96)=shared secret, [96..128)=
// SHA-256 of the caller-supplied context (empty for DMs), remainder zero.
func buildGroupIdentifier(sortedMembers []CorrespondentId, secret [32]byte, context []byte) Identifier {
	var id Identifier

	h := sha256.New()
	for _, m := range sortedMembers {
		h.Write(m[:])
	}
	membersHash := h.Sum(nil)
	copy(id[0:32], membersHash)

	copy(id[64:96], secret[:])

	ctxHash := sha256.Sum256(context)
	copy(id[96:128], ctxHash[:])

	return id
}

// sortMembers returns a new, ascending-order copy of members by byte
// lexicographic order (spec.md §3's total ordering for CorrespondentId).
func sortMembers(members []CorrespondentId) []CorrespondentId {
	sorted := make([]CorrespondentId, len(members))
	copy(sorted, members)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Less(sorted[j])
	})
	return sorted
}

package messenger

import "github.com/catena-chat/catena/stream"

// Conversation is the pair (send_stream, recv_stream) derived from one DH
// exchange (spec.md §3). The send stream uses the local key as sender; the
// receive stream swaps roles. Both streams share a shared secret but have
// different channel identifiers, hence different slot addresses at every
// sequence number.
type Conversation struct {
	Send *stream.Stream
	Recv *stream.Stream
}

package hyparview

import "github.com/treecast/treecast/src/peers"

// Message is implemented by all HyParView protocol messages. Every message
// carries its sender because the transport is one-way; there is no
// request/response pairing at the wire level.
type Message interface {
	Sender() peers.Peer
}

// Join is the first message sent by a node entering the cluster, addressed to
// a known bootstrap contact.
type Join struct {
	From peers.Peer
}

// ForwardJoin propagates a join outward as a random walk of bounded length.
// Origin is the joining node; TTL is decremented at each hop.
type ForwardJoin struct {
	From   peers.Peer
	Origin peers.Peer
	TTL    int
}

// NeighborRequest asks the receiver to add the sender to its active view.
// HighPriority is set when the sender's active view is empty, in which case
// the receiver must accept even if it has to evict.
type NeighborRequest struct {
	From         peers.Peer
	HighPriority bool
}

// NeighborReply carries the receiver's accept/reject decision for a
// NeighborRequest.
type NeighborReply struct {
	From   peers.Peer
	Accept bool
}

// ShuffleRequest carries a bounded random sample of the sender's views, to be
// merged into the receiver's passive view.
type ShuffleRequest struct {
	From   peers.Peer
	Sample []peers.Peer
}

// ShuffleReply returns the receiver's own sample in exchange.
type ShuffleReply struct {
	From   peers.Peer
	Sample []peers.Peer
}

// Disconnect notifies the receiver that the sender is removing it from its
// active view, either because of an eviction or because the sender is leaving
// the cluster.
type Disconnect struct {
	From peers.Peer
}

func (m Join) Sender() peers.Peer            { return m.From }
func (m ForwardJoin) Sender() peers.Peer     { return m.From }
func (m NeighborRequest) Sender() peers.Peer { return m.From }
func (m NeighborReply) Sender() peers.Peer   { return m.From }
func (m ShuffleRequest) Sender() peers.Peer  { return m.From }
func (m ShuffleReply) Sender() peers.Peer    { return m.From }
func (m Disconnect) Sender() peers.Peer      { return m.From }

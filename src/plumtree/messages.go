package plumtree

import (
	"fmt"

	"github.com/treecast/treecast/src/peers"
)

// MessageID uniquely identifies a broadcast message. It combines the origin
// peer with a sequence number assigned by the origin, so ids never collide
// across the cluster and are never reused.
type MessageID struct {
	Origin peers.Peer `json:"origin"`
	Seq    uint64     `json:"seq"`
}

func (id MessageID) String() string {
	return fmt.Sprintf("%s/%d", id.Origin, id.Seq)
}

// Message is implemented by all Plumtree protocol messages.
type Message interface {
	Sender() peers.Peer
}

// Gossip carries a full message payload along an eager link. Round is the
// hop count from the origin.
type Gossip struct {
	From    peers.Peer
	ID      MessageID
	Round   int
	Payload []byte
}

// Announcement names one message in an IHave batch.
type Announcement struct {
	ID    MessageID
	Round int
}

// IHave announces message ids to a lazy peer without the payloads.
// Announcements are batched to amortize the per-message overhead of lazy
// links.
type IHave struct {
	From peers.Peer
	Anns []Announcement
}

// Graft asks an announcing peer for a missing payload and promotes the link
// to eager on both ends.
type Graft struct {
	From  peers.Peer
	ID    MessageID
	Round int
}

// Prune tells a peer to stop eager-pushing to us; the link becomes lazy.
type Prune struct {
	From peers.Peer
}

func (m Gossip) Sender() peers.Peer { return m.From }
func (m IHave) Sender() peers.Peer  { return m.From }
func (m Graft) Sender() peers.Peer  { return m.From }
func (m Prune) Sender() peers.Peer  { return m.From }

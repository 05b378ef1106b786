package plumtree

import "github.com/treecast/treecast/src/peers"

// ActionKind discriminates the instructions emitted by the Engine.
type ActionKind int

const (
	// SendAction instructs the node to transmit Msg to Peer.
	SendAction ActionKind = iota

	// DeliverAction instructs the node to hand Delivery to the application.
	// The engine emits exactly one DeliverAction per message id.
	DeliverAction
)

// Delivery is a message handed to the local application.
type Delivery struct {
	ID      MessageID
	Payload []byte
}

// Action is an instruction queued by the Engine for the owning node.
type Action struct {
	Kind    ActionKind
	Peer    peers.Peer
	Msg     Message
	Deliver Delivery
}

package hyparview

import "github.com/treecast/treecast/src/peers"

// ActionKind discriminates the instructions emitted by the View.
type ActionKind int

const (
	// SendAction instructs the node to transmit Msg to Peer.
	SendAction ActionKind = iota

	// NeighborUpAction notifies that Peer entered the active view.
	NeighborUpAction

	// NeighborDownAction notifies that Peer left the active view.
	NeighborDownAction
)

// Action is an instruction queued by the View for the owning node to execute.
// Sends are fire-and-forget; a transport failure is reported back to the View
// through PeerDown rather than by retrying.
type Action struct {
	Kind ActionKind
	Peer peers.Peer
	Msg  Message
}

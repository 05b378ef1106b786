package net

import "github.com/treecast/treecast/src/peers"

// ProtocolMessage is any message that can travel between nodes. Both the
// hyparview and plumtree message types satisfy it; the sender identity is
// carried in the message itself because connections are not authenticated
// channels.
type ProtocolMessage interface {
	Sender() peers.Peer
}

// RX is an inbound message together with the peer that sent it.
type RX struct {
	From    peers.Peer
	Message ProtocolMessage
}

// Transport provides an interface for network transports to allow a node to
// communicate with other nodes.
type Transport interface {

	// Listen starts the transport listening.
	Listen()

	// Consumer returns the channel on which inbound messages are delivered.
	Consumer() <-chan RX

	// Send transmits a message to the peer listening at target. An error
	// means the peer is unreachable; the caller treats it as peer-down.
	Send(target string, msg ProtocolMessage) error

	// LocalAddr is used to return our local address.
	LocalAddr() string

	// AdvertiseAddr is used to return our advertise address where other
	// peers can reach us.
	AdvertiseAddr() string

	// Close permanently closes a transport, stopping any associated
	// goroutines and freeing other resources.
	Close() error
}

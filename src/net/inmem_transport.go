package net

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"
)

// NewInmemAddr returns a new in-memory addr with
// a randomly generate UUID as the ID.
func NewInmemAddr() string {
	return generateUUID()
}

// generateUUID is used to generate a random UUID.
func generateUUID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Errorf("failed to read random bytes: %v", err))
	}

	return fmt.Sprintf("%08x-%04x-%04x-%04x-%12x",
		buf[0:4],
		buf[4:6],
		buf[6:8],
		buf[8:10],
		buf[10:16])
}

// InmemNetwork routes messages between InmemTransports in the same process.
// It supports severing individual links and isolating whole nodes, and it
// counts sends per wire kind, which the cluster tests use to check the
// near-optimal transmission-count property.
type InmemNetwork struct {
	sync.RWMutex
	transports map[string]*InmemTransport
	severed    map[string]struct{} // "from|to" links that drop traffic
	counts     map[uint8]int
}

// NewInmemNetwork creates an empty network.
func NewInmemNetwork() *InmemNetwork {
	return &InmemNetwork{
		transports: make(map[string]*InmemTransport),
		severed:    make(map[string]struct{}),
		counts:     make(map[uint8]int),
	}
}

// NewTransport creates a transport attached to this network. A random
// in-memory address is generated when addr is empty.
func (n *InmemNetwork) NewTransport(addr string) *InmemTransport {
	if addr == "" {
		addr = NewInmemAddr()
	}
	trans := &InmemTransport{
		network:    n,
		consumerCh: make(chan RX, 256),
		localAddr:  addr,
		timeout:    50 * time.Millisecond,
	}

	n.Lock()
	n.transports[addr] = trans
	n.Unlock()

	return trans
}

// Sever drops all traffic between the two addresses, in both directions,
// simulating a network partition.
func (n *InmemNetwork) Sever(a, b string) {
	n.Lock()
	n.severed[a+"|"+b] = struct{}{}
	n.severed[b+"|"+a] = struct{}{}
	n.Unlock()
}

// Restore re-establishes a severed link.
func (n *InmemNetwork) Restore(a, b string) {
	n.Lock()
	delete(n.severed, a+"|"+b)
	delete(n.severed, b+"|"+a)
	n.Unlock()
}

// Remove detaches the transport at addr, making it unreachable. Used to
// simulate a crash.
func (n *InmemNetwork) Remove(addr string) {
	n.Lock()
	delete(n.transports, addr)
	n.Unlock()
}

// SendCount returns the number of messages of the given kind routed so far.
func (n *InmemNetwork) SendCount(kind uint8) int {
	n.RLock()
	defer n.RUnlock()
	return n.counts[kind]
}

// GossipCount returns the number of Gossip payload transmissions routed so
// far.
func (n *InmemNetwork) GossipCount() int {
	return n.SendCount(kindGossip)
}

func (n *InmemNetwork) route(from, target string, msg ProtocolMessage, timeout time.Duration) error {
	n.RLock()
	_, cut := n.severed[from+"|"+target]
	peer, ok := n.transports[target]
	n.RUnlock()

	if cut || !ok {
		return fmt.Errorf("failed to connect to peer: %v", target)
	}

	kind, err := kindOf(msg)
	if err != nil {
		return err
	}

	n.Lock()
	n.counts[kind]++
	n.Unlock()

	select {
	case peer.consumerCh <- RX{From: msg.Sender(), Message: msg}:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("send to %v timed out", target)
	}
}

// InmemTransport implements the Transport interface, to allow treecast to be
// tested in-memory without going over a network.
type InmemTransport struct {
	network    *InmemNetwork
	consumerCh chan RX
	localAddr  string
	timeout    time.Duration
}

// Consumer implements the Transport interface.
func (i *InmemTransport) Consumer() <-chan RX {
	return i.consumerCh
}

// LocalAddr implements the Transport interface.
func (i *InmemTransport) LocalAddr() string {
	return i.localAddr
}

// AdvertiseAddr implements the Transport interface.
func (i *InmemTransport) AdvertiseAddr() string {
	return i.localAddr
}

// Send implements the Transport interface.
func (i *InmemTransport) Send(target string, msg ProtocolMessage) error {
	return i.network.route(i.localAddr, target, msg, i.timeout)
}

// Close is used to permanently disable the transport.
func (i *InmemTransport) Close() error {
	i.network.Remove(i.localAddr)
	return nil
}

// Listen is an empty function as there is no need to defer initialisation of
// the InMem transport.
func (i *InmemTransport) Listen() {
}

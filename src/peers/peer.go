package peers

import (
	"fmt"

	"github.com/treecast/treecast/src/common"
)

// Peer identifies a node in the overlay. It is a small comparable value that
// is copied into protocol messages and used directly as a map key. The
// NetAddr is the address where the peer's transport is listening; it is
// unique in the cluster and never mutated.
type Peer struct {
	NetAddr string `json:"net_addr"`
}

// NewPeer returns a Peer for the given transport address.
func NewPeer(netAddr string) Peer {
	return Peer{NetAddr: netAddr}
}

// ID returns a 32-bit hash of the peer's address, used as a short handle in
// logs and stats.
func (p Peer) ID() uint32 {
	return common.Hash32([]byte(p.NetAddr))
}

// IsZero reports whether the Peer is the zero value.
func (p Peer) IsZero() bool {
	return p.NetAddr == ""
}

func (p Peer) String() string {
	return fmt.Sprintf("%08x@%s", p.ID(), p.NetAddr)
}

// ExcludePeer returns a copy of the list without the given peer.
func ExcludePeer(list []Peer, peer Peer) []Peer {
	others := make([]Peer, 0, len(list))
	for _, p := range list {
		if p != peer {
			others = append(others, p)
		}
	}
	return others
}

// ByNetAddr implements sort.Interface for peers based on the NetAddr field.
// Sorting before sampling keeps randomized selection deterministic for a
// seeded source.
type ByNetAddr []Peer

func (a ByNetAddr) Len() int           { return len(a) }
func (a ByNetAddr) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a ByNetAddr) Less(i, j int) bool { return a[i].NetAddr < a[j].NetAddr }

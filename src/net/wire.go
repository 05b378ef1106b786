package net

import (
	"fmt"

	"github.com/treecast/treecast/src/hyparview"
	"github.com/treecast/treecast/src/plumtree"
	"github.com/ugorji/go/codec"
)

// Wire kinds. Each frame starts with one of these bytes, followed by the
// msgpack-encoded message body.
const (
	kindJoin uint8 = iota
	kindForwardJoin
	kindNeighborRequest
	kindNeighborReply
	kindShuffleRequest
	kindShuffleReply
	kindDisconnect
	kindGossip
	kindIHave
	kindGraft
	kindPrune
)

// msgpackHandle is shared by all encoders and decoders. The handle is
// stateless and safe for concurrent use.
var msgpackHandle = &codec.MsgpackHandle{}

// kindOf maps a protocol message to its wire kind.
func kindOf(msg ProtocolMessage) (uint8, error) {
	switch msg.(type) {
	case hyparview.Join:
		return kindJoin, nil
	case hyparview.ForwardJoin:
		return kindForwardJoin, nil
	case hyparview.NeighborRequest:
		return kindNeighborRequest, nil
	case hyparview.NeighborReply:
		return kindNeighborReply, nil
	case hyparview.ShuffleRequest:
		return kindShuffleRequest, nil
	case hyparview.ShuffleReply:
		return kindShuffleReply, nil
	case hyparview.Disconnect:
		return kindDisconnect, nil
	case plumtree.Gossip:
		return kindGossip, nil
	case plumtree.IHave:
		return kindIHave, nil
	case plumtree.Graft:
		return kindGraft, nil
	case plumtree.Prune:
		return kindPrune, nil
	default:
		return 0, fmt.Errorf("unknown protocol message type %T", msg)
	}
}

// decodeMessage decodes one message body of the given kind.
func decodeMessage(kind uint8, dec *codec.Decoder) (ProtocolMessage, error) {
	var msg ProtocolMessage
	var err error

	switch kind {
	case kindJoin:
		var m hyparview.Join
		err = dec.Decode(&m)
		msg = m
	case kindForwardJoin:
		var m hyparview.ForwardJoin
		err = dec.Decode(&m)
		msg = m
	case kindNeighborRequest:
		var m hyparview.NeighborRequest
		err = dec.Decode(&m)
		msg = m
	case kindNeighborReply:
		var m hyparview.NeighborReply
		err = dec.Decode(&m)
		msg = m
	case kindShuffleRequest:
		var m hyparview.ShuffleRequest
		err = dec.Decode(&m)
		msg = m
	case kindShuffleReply:
		var m hyparview.ShuffleReply
		err = dec.Decode(&m)
		msg = m
	case kindDisconnect:
		var m hyparview.Disconnect
		err = dec.Decode(&m)
		msg = m
	case kindGossip:
		var m plumtree.Gossip
		err = dec.Decode(&m)
		msg = m
	case kindIHave:
		var m plumtree.IHave
		err = dec.Decode(&m)
		msg = m
	case kindGraft:
		var m plumtree.Graft
		err = dec.Decode(&m)
		msg = m
	case kindPrune:
		var m plumtree.Prune
		err = dec.Decode(&m)
		msg = m
	default:
		return nil, fmt.Errorf("unknown wire kind %d", kind)
	}

	if err != nil {
		return nil, err
	}
	return msg, nil
}

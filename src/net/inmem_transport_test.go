package net

import (
	"testing"
	"time"

	"github.com/treecast/treecast/src/hyparview"
	"github.com/treecast/treecast/src/peers"
	"github.com/treecast/treecast/src/plumtree"
)

func receiveOne(t *testing.T, trans Transport) RX {
	t.Helper()
	select {
	case rx := <-trans.Consumer():
		return rx
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return RX{}
	}
}

func TestInmemRouting(t *testing.T) {
	network := NewInmemNetwork()
	t1 := network.NewTransport("a")
	t2 := network.NewTransport("b")

	sender := peers.NewPeer(t1.AdvertiseAddr())
	msg := hyparview.Join{From: sender}

	if err := t1.Send(t2.AdvertiseAddr(), msg); err != nil {
		t.Fatal(err)
	}

	rx := receiveOne(t, t2)
	if rx.From != sender {
		t.Fatalf("wrong sender: %s", rx.From)
	}
	if _, ok := rx.Message.(hyparview.Join); !ok {
		t.Fatalf("wrong message type: %T", rx.Message)
	}
}

func TestInmemSendToUnknown(t *testing.T) {
	network := NewInmemNetwork()
	t1 := network.NewTransport("a")

	err := t1.Send("nowhere", hyparview.Join{From: peers.NewPeer("a")})
	if err == nil {
		t.Fatal("send to unknown address should fail")
	}
}

func TestInmemSever(t *testing.T) {
	network := NewInmemNetwork()
	t1 := network.NewTransport("a")
	t2 := network.NewTransport("b")

	msg := hyparview.Join{From: peers.NewPeer("a")}

	network.Sever("a", "b")
	if err := t1.Send("b", msg); err == nil {
		t.Fatal("send over severed link should fail")
	}
	if err := t2.Send("a", msg); err == nil {
		t.Fatal("severing cuts both directions")
	}

	network.Restore("a", "b")
	if err := t1.Send("b", msg); err != nil {
		t.Fatal(err)
	}
}

func TestInmemClose(t *testing.T) {
	network := NewInmemNetwork()
	t1 := network.NewTransport("a")
	t2 := network.NewTransport("b")

	t2.Close()

	if err := t1.Send("b", hyparview.Join{From: peers.NewPeer("a")}); err == nil {
		t.Fatal("send to closed transport should fail")
	}
}

func TestInmemGossipCount(t *testing.T) {
	network := NewInmemNetwork()
	t1 := network.NewTransport("a")
	network.NewTransport("b")

	sender := peers.NewPeer("a")
	gossip := plumtree.Gossip{
		From:    sender,
		ID:      plumtree.MessageID{Origin: sender, Seq: 1},
		Payload: []byte("x"),
	}

	if count := network.GossipCount(); count != 0 {
		t.Fatalf("expected 0 gossips, got %d", count)
	}

	t1.Send("b", gossip)
	t1.Send("b", gossip)
	t1.Send("b", hyparview.Join{From: sender})

	if count := network.GossipCount(); count != 2 {
		t.Fatalf("expected 2 gossips, got %d", count)
	}
	if count := network.SendCount(kindJoin); count != 1 {
		t.Fatalf("expected 1 join, got %d", count)
	}
}

package plumtree

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"github.com/treecast/treecast/src/cache"
	"github.com/treecast/treecast/src/common"
	"github.com/treecast/treecast/src/peers"
)

var (
	peerB = peers.NewPeer("127.0.0.1:9001")
	peerC = peers.NewPeer("127.0.0.1:9002")
	peerD = peers.NewPeer("127.0.0.1:9003")
)

func newTestEngine(t *testing.T) (*Engine, *clock.Mock) {
	self := peers.NewPeer("127.0.0.1:9000")
	opts := DefaultOptions()

	clk := clock.NewMock()
	clk.Add(time.Hour)

	msgCache, err := cache.New[MessageID](100, time.Minute, 2*opts.GraftTimeout, clk)
	require.NoError(t, err)

	e := NewEngine(self, opts, msgCache, clk, common.NewTestEntry(t, self.ID()))
	e.NeighborUp(peerB)
	e.NeighborUp(peerC)

	return e, clk
}

func testID(seq uint64) MessageID {
	return MessageID{Origin: peers.NewPeer("127.0.0.1:9100"), Seq: seq}
}

func sends(actions []Action) map[peers.Peer][]Message {
	res := make(map[peers.Peer][]Message)
	for _, a := range actions {
		if a.Kind == SendAction {
			res[a.Peer] = append(res[a.Peer], a.Msg)
		}
	}
	return res
}

func deliveries(actions []Action) []Delivery {
	var res []Delivery
	for _, a := range actions {
		if a.Kind == DeliverAction {
			res = append(res, a.Deliver)
		}
	}
	return res
}

func TestBroadcast(t *testing.T) {
	e, _ := newTestEngine(t)

	id := MessageID{Origin: e.self, Seq: 1}
	e.Broadcast(id, []byte("hello"))

	actions := e.TakeActions()

	delivered := deliveries(actions)
	require.Len(t, delivered, 1, "a published message is delivered locally")
	require.Equal(t, id, delivered[0].ID)
	require.Equal(t, []byte("hello"), delivered[0].Payload)

	for _, p := range []peers.Peer{peerB, peerC} {
		msgs := sends(actions)[p]
		require.Len(t, msgs, 1)
		g, ok := msgs[0].(Gossip)
		require.True(t, ok)
		require.Equal(t, id, g.ID)
		require.Equal(t, 0, g.Round)
	}
}

func TestBroadcastIgnoresDuplicateID(t *testing.T) {
	e, _ := newTestEngine(t)

	id := MessageID{Origin: e.self, Seq: 1}
	e.Broadcast(id, []byte("hello"))
	e.TakeActions()

	e.Broadcast(id, []byte("hello"))
	require.Empty(t, e.TakeActions())
}

func TestGossipForwarded(t *testing.T) {
	e, _ := newTestEngine(t)

	id := testID(1)
	e.HandleGossip(Gossip{From: peerB, ID: id, Round: 2, Payload: []byte("x")})

	actions := e.TakeActions()
	require.Len(t, deliveries(actions), 1)

	// Forwarded to every other eager peer with the round bumped, never back
	// to the sender.
	s := sends(actions)
	require.Empty(t, s[peerB])
	require.Len(t, s[peerC], 1)
	g := s[peerC][0].(Gossip)
	require.Equal(t, 3, g.Round)
}

func TestDuplicateGossipPrunes(t *testing.T) {
	e, _ := newTestEngine(t)

	id := testID(1)
	e.HandleGossip(Gossip{From: peerB, ID: id, Round: 0, Payload: []byte("x")})
	e.TakeActions()

	e.HandleGossip(Gossip{From: peerC, ID: id, Round: 1, Payload: []byte("x")})
	actions := e.TakeActions()

	require.Empty(t, deliveries(actions), "a message is delivered exactly once")

	msgs := sends(actions)[peerC]
	require.Len(t, msgs, 1)
	_, ok := msgs[0].(Prune)
	require.True(t, ok, "redundant sender is asked to prune")
	require.Contains(t, e.LazyPeers(), peerC, "redundant sender is demoted")
	require.NotContains(t, e.EagerPeers(), peerC)
}

func TestPruneDemotes(t *testing.T) {
	e, _ := newTestEngine(t)

	e.HandlePrune(Prune{From: peerB})
	require.Contains(t, e.LazyPeers(), peerB)

	// Prune from a non-neighbor is ignored.
	e.HandlePrune(Prune{From: peerD})
	require.NotContains(t, e.LazyPeers(), peerD)
}

func TestLazyAnnouncementsBatched(t *testing.T) {
	e, clk := newTestEngine(t)
	e.HandlePrune(Prune{From: peerC}) // C becomes lazy

	e.Broadcast(MessageID{Origin: e.self, Seq: 1}, []byte("a"))
	e.Broadcast(MessageID{Origin: e.self, Seq: 2}, []byte("b"))
	e.TakeActions()

	// Not flushed before the batching delay.
	e.Tick(clk.Now())
	require.Empty(t, sends(e.TakeActions())[peerC])

	clk.Add(e.opts.IHaveDelay)
	e.Tick(clk.Now())

	msgs := sends(e.TakeActions())[peerC]
	require.Len(t, msgs, 1, "announcements are batched into one IHave")
	ihave, ok := msgs[0].(IHave)
	require.True(t, ok)
	require.Len(t, ihave.Anns, 2)
}

func TestIHaveArmsGraftTimer(t *testing.T) {
	e, clk := newTestEngine(t)

	id := testID(1)
	e.HandleIHave(IHave{From: peerB, Anns: []Announcement{{ID: id, Round: 1}}})
	e.HandleIHave(IHave{From: peerC, Anns: []Announcement{{ID: id, Round: 2}}})
	require.Empty(t, e.TakeActions(), "IHave alone sends nothing")

	// Before the timeout nothing fires.
	e.Tick(clk.Now())
	require.Empty(t, e.TakeActions())

	// First announcer owns the timer.
	clk.Add(e.opts.GraftTimeout)
	e.Tick(clk.Now())

	msgs := sends(e.TakeActions())[peerB]
	require.Len(t, msgs, 1)
	g, ok := msgs[0].(Graft)
	require.True(t, ok)
	require.Equal(t, id, g.ID)
	require.Equal(t, 1, g.Round)
	require.Contains(t, e.EagerPeers(), peerB)

	// No response: fall back to the second announcer.
	clk.Add(e.opts.GraftRetry)
	e.Tick(clk.Now())

	msgs = sends(e.TakeActions())[peerC]
	require.Len(t, msgs, 1)
	g = msgs[0].(Graft)
	require.Equal(t, id, g.ID)
	require.Equal(t, 2, g.Round)

	// Candidates exhausted: the entry is dropped, nothing more fires.
	clk.Add(e.opts.GraftRetry)
	e.Tick(clk.Now())
	require.Empty(t, e.TakeActions())
}

func TestGossipCancelsGraftTimer(t *testing.T) {
	e, clk := newTestEngine(t)

	id := testID(1)
	e.HandleIHave(IHave{From: peerB, Anns: []Announcement{{ID: id, Round: 1}}})

	e.HandleGossip(Gossip{From: peerC, ID: id, Round: 1, Payload: []byte("x")})
	e.TakeActions()

	clk.Add(e.opts.GraftTimeout)
	e.Tick(clk.Now())

	require.Empty(t, sends(e.TakeActions())[peerB], "payload arrived, no graft needed")
}

func TestIHaveForCachedMessageIgnored(t *testing.T) {
	e, clk := newTestEngine(t)

	id := testID(1)
	e.HandleGossip(Gossip{From: peerB, ID: id, Round: 0, Payload: []byte("x")})
	e.TakeActions()

	e.HandleIHave(IHave{From: peerC, Anns: []Announcement{{ID: id, Round: 1}}})

	clk.Add(e.opts.GraftTimeout)
	e.Tick(clk.Now())
	require.Empty(t, sends(e.TakeActions())[peerC])
}

func TestHandleGraft(t *testing.T) {
	e, _ := newTestEngine(t)
	e.HandlePrune(Prune{From: peerB}) // B is lazy

	id := testID(1)
	e.HandleGossip(Gossip{From: peerC, ID: id, Round: 0, Payload: []byte("x")})
	e.TakeActions()

	e.HandleGraft(Graft{From: peerB, ID: id, Round: 3})

	require.Contains(t, e.EagerPeers(), peerB, "graft promotes the link on both ends")

	msgs := sends(e.TakeActions())[peerB]
	require.Len(t, msgs, 1)
	g, ok := msgs[0].(Gossip)
	require.True(t, ok)
	require.Equal(t, []byte("x"), g.Payload)
	require.Equal(t, 3, g.Round)
}

func TestHandleGraftUnknownID(t *testing.T) {
	e, _ := newTestEngine(t)

	e.HandleGraft(Graft{From: peerB, ID: testID(99), Round: 0})

	require.Empty(t, sends(e.TakeActions())[peerB], "graft for an evicted id is silently ignored")
}

func TestHandleGraftNonNeighbor(t *testing.T) {
	e, _ := newTestEngine(t)

	id := testID(1)
	e.HandleGossip(Gossip{From: peerB, ID: id, Round: 0, Payload: []byte("x")})
	e.TakeActions()

	e.HandleGraft(Graft{From: peerD, ID: id, Round: 0})

	require.Empty(t, e.TakeActions())
	require.NotContains(t, e.EagerPeers(), peerD)
}

func TestNeighborDownRetargetsTimers(t *testing.T) {
	e, clk := newTestEngine(t)

	id := testID(1)
	e.HandleIHave(IHave{From: peerB, Anns: []Announcement{{ID: id, Round: 1}}})
	e.HandleIHave(IHave{From: peerC, Anns: []Announcement{{ID: id, Round: 2}}})

	e.NeighborDown(peerB)

	// The timer was waiting on B; it must now fire for C without waiting out
	// the full timeout.
	e.Tick(clk.Now())

	msgs := sends(e.TakeActions())[peerC]
	require.Len(t, msgs, 1)
	g, ok := msgs[0].(Graft)
	require.True(t, ok)
	require.Equal(t, id, g.ID)
}

func TestNeighborDownDropsSoleCandidate(t *testing.T) {
	e, clk := newTestEngine(t)

	id := testID(1)
	e.HandleIHave(IHave{From: peerB, Anns: []Announcement{{ID: id, Round: 1}}})

	e.NeighborDown(peerB)

	clk.Add(e.opts.GraftTimeout)
	e.Tick(clk.Now())
	require.Empty(t, e.TakeActions())
}

func TestNeighborDownPurgesLazyQueue(t *testing.T) {
	e, clk := newTestEngine(t)
	e.HandlePrune(Prune{From: peerC})

	e.Broadcast(MessageID{Origin: e.self, Seq: 1}, []byte("a"))
	e.TakeActions()

	e.NeighborDown(peerC)

	clk.Add(e.opts.IHaveDelay)
	e.Tick(clk.Now())
	require.Empty(t, sends(e.TakeActions())[peerC], "no announcements for a departed peer")
}

func TestNeighborUpDefaultsEager(t *testing.T) {
	e, _ := newTestEngine(t)

	e.NeighborUp(peerD)
	require.Contains(t, e.EagerPeers(), peerD)

	// A known lazy peer that reconnects comes back eager.
	e.HandlePrune(Prune{From: peerD})
	e.NeighborUp(peerD)
	require.Contains(t, e.EagerPeers(), peerD)
	require.NotContains(t, e.LazyPeers(), peerD)
}

package node

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/treecast/treecast/src/cache"
	"github.com/treecast/treecast/src/hyparview"
	"github.com/treecast/treecast/src/metrics"
	hnet "github.com/treecast/treecast/src/net"
	"github.com/treecast/treecast/src/peers"
	"github.com/treecast/treecast/src/plumtree"
)

// Message is a broadcast payload delivered to the local application.
type Message struct {
	ID      plumtree.MessageID
	Payload []byte
}

// publishRequest carries an application payload into the event loop.
type publishRequest struct {
	payload []byte
	reply   chan plumtree.MessageID
}

// Stats is a point-in-time snapshot of the node's protocol state.
type Stats struct {
	State        string   `json:"state"`
	ActivePeers  []string `json:"active_peers"`
	PassivePeers []string `json:"passive_peers"`
	EagerPeers   []string `json:"eager_peers"`
	LazyPeers    []string `json:"lazy_peers"`
	CachedMsgs   int      `json:"cached_messages"`
	LastSeq      uint64   `json:"last_seq"`
}

// Node is the core object of a treecast process. It runs the HyParView and
// Plumtree state machines inside a single event loop and connects them to the
// transport and to the local application.
type Node struct {
	state

	conf   *Config
	logger *logrus.Entry

	self     peers.Peer
	view     *hyparview.View
	tree     *plumtree.Engine
	msgCache *cache.MessageCache[plumtree.MessageID]

	trans hnet.Transport
	netCh <-chan hnet.RX

	clock   clock.Clock
	rng     *rand.Rand
	metrics *metrics.NodeMetrics

	// seq numbers locally published messages; MessageIDs are (self, seq).
	seq uint64

	submitCh   chan publishRequest
	controlCh  chan func()
	deliveryCh chan Message
	shutdownCh chan struct{}
	doneCh     chan struct{}

	shutdownOnce sync.Once

	shuffleTimer *intervalTimer
	fillTimer    *intervalTimer
	syncTimer    *intervalTimer
	sweepTimer   *intervalTimer
}

// NewNode instantiates a node around a transport. The node does not process
// anything until Run is called.
func NewNode(conf *Config, trans hnet.Transport, nodeMetrics *metrics.NodeMetrics) (*Node, error) {
	self := peers.Peer{NetAddr: trans.AdvertiseAddr()}

	logger := conf.Logger.WithField("this_id", self.String())

	clk := conf.Clock
	if clk == nil {
		clk = clock.New()
	}

	seed := conf.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	if nodeMetrics == nil {
		nodeMetrics = metrics.NewNodeMetrics(nil)
	}

	retention := 2 * conf.GraftTimeout
	msgCache, err := cache.New[plumtree.MessageID](conf.CacheSize, conf.CacheTTL, retention, clk)
	if err != nil {
		return nil, err
	}

	node := &Node{
		conf:       conf,
		logger:     logger,
		self:       self,
		view:       hyparview.NewView(self, conf.hyparviewOptions(), rng, logger),
		tree:       plumtree.NewEngine(self, conf.plumtreeOptions(), msgCache, clk, logger),
		msgCache:   msgCache,
		trans:      trans,
		netCh:      trans.Consumer(),
		clock:      clk,
		rng:        rng,
		metrics:    nodeMetrics,
		submitCh:   make(chan publishRequest),
		controlCh:  make(chan func()),
		deliveryCh: make(chan Message, conf.DeliveryBufferSize),
		shutdownCh: make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	node.setState(Running)

	now := clk.Now()
	node.shuffleTimer = newIntervalTimer(conf.ShuffleInterval, now, rng)
	node.fillTimer = newIntervalTimer(conf.FillInterval, now, rng)
	node.syncTimer = newIntervalTimer(conf.SyncInterval, now, rng)
	node.sweepTimer = newIntervalTimer(conf.SweepInterval, now, rng)

	return node, nil
}

// Addr returns the advertised network address of this node.
func (n *Node) Addr() string {
	return n.self.NetAddr
}

// Self returns the local peer identity.
func (n *Node) Self() peers.Peer {
	return n.self
}

// GetState returns the node's lifecycle state.
func (n *Node) GetState() State {
	return n.getState()
}

/*******************************************************************************
Run loop
*******************************************************************************/

// Run processes events until Shutdown is called. It is the only goroutine
// that touches the protocol state machines.
func (n *Node) Run() {
	n.logger.WithField("addr", n.self.NetAddr).Debug("Node running")

	ticker := n.clock.Ticker(n.conf.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case rx := <-n.netCh:
			n.dispatch(rx)
			n.processActions()

		case req := <-n.submitCh:
			n.seq++
			id := plumtree.MessageID{Origin: n.self, Seq: n.seq}
			n.tree.Broadcast(id, req.payload)
			n.metrics.BroadcastedMessages.Inc()
			n.processActions()
			req.reply <- id

		case f := <-n.controlCh:
			f()
			n.processActions()

		case <-ticker.C:
			n.handleTick(n.clock.Now())
			n.processActions()

		case <-n.shutdownCh:
			n.setState(Shutdown)
			close(n.deliveryCh)
			close(n.doneCh)
			return
		}
	}
}

// RunAsync runs the event loop in a background goroutine.
func (n *Node) RunAsync() {
	go n.Run()
}

// dispatch routes an inbound protocol message to its state machine handler.
func (n *Node) dispatch(rx hnet.RX) {
	switch m := rx.Message.(type) {
	case hyparview.Join:
		n.view.HandleJoin(m)
	case hyparview.ForwardJoin:
		n.view.HandleForwardJoin(m)
	case hyparview.NeighborRequest:
		n.view.HandleNeighborRequest(m)
	case hyparview.NeighborReply:
		n.view.HandleNeighborReply(m)
	case hyparview.ShuffleRequest:
		n.view.HandleShuffleRequest(m)
	case hyparview.ShuffleReply:
		n.view.HandleShuffleReply(m)
	case hyparview.Disconnect:
		n.view.HandleDisconnect(m)
	case plumtree.Gossip:
		if n.msgCache.Contains(m.ID) {
			n.metrics.DuplicateGossip.Inc()
		}
		n.tree.HandleGossip(m)
	case plumtree.IHave:
		n.tree.HandleIHave(m)
	case plumtree.Graft:
		n.tree.HandleGraft(m)
	case plumtree.Prune:
		n.tree.HandlePrune(m)
	default:
		n.logger.WithFields(logrus.Fields{
			"from": rx.From.String(),
			"type": fmt.Sprintf("%T", rx.Message),
		}).Error("Unknown protocol message")
	}
}

// handleTick advances the broadcast-tree timers and fires due periodic
// cycles.
func (n *Node) handleTick(now time.Time) {
	n.tree.Tick(now)

	if n.shuffleTimer.due(now) {
		if len(n.view.ActivePeers()) == 0 && len(n.view.PassivePeers()) > 0 {
			n.metrics.IsolatedTimes.Inc()
		}
		n.view.Shuffle()
	}
	if n.fillTimer.due(now) {
		n.view.FillActiveView()
	}
	if n.syncTimer.due(now) {
		n.view.SyncActiveView()
	}
	if n.sweepTimer.due(now) {
		swept := n.msgCache.Sweep()
		if len(swept) > 0 {
			n.logger.WithField("count", len(swept)).Debug("Swept expired messages")
		}
	}

	n.metrics.ActivePeers.Set(float64(len(n.view.ActivePeers())))
	n.metrics.PassivePeers.Set(float64(len(n.view.PassivePeers())))
	n.metrics.CachedMsgs.Set(float64(n.msgCache.Len()))
}

// processActions drains both state machines' action queues. Handling an
// action may queue further actions (a failed send reports PeerDown, a
// membership change notifies the tree), so the loop runs until both queues
// come up empty.
func (n *Node) processActions() {
	for {
		viewActions := n.view.TakeActions()
		treeActions := n.tree.TakeActions()
		if len(viewActions) == 0 && len(treeActions) == 0 {
			return
		}

		for _, a := range viewActions {
			switch a.Kind {
			case hyparview.SendAction:
				n.send(a.Peer, a.Msg)
			case hyparview.NeighborUpAction:
				n.metrics.NeighborsUp.Inc()
				n.tree.NeighborUp(a.Peer)
			case hyparview.NeighborDownAction:
				n.metrics.NeighborsDown.Inc()
				n.tree.NeighborDown(a.Peer)
			}
		}

		for _, a := range treeActions {
			switch a.Kind {
			case plumtree.SendAction:
				n.countTreeSend(a.Msg)
				n.send(a.Peer, a.Msg)
			case plumtree.DeliverAction:
				n.deliver(a.Deliver)
			}
		}
	}
}

// send pushes a message to a peer. A transport failure is the node's only
// failure detector: the peer is reported down to the membership view, which
// reacts by promoting a replacement.
func (n *Node) send(to peers.Peer, msg hnet.ProtocolMessage) {
	if err := n.trans.Send(to.NetAddr, msg); err != nil {
		n.logger.WithFields(logrus.Fields{
			"peer": to.String(),
			"err":  err.Error(),
		}).Debug("Send failed, reporting peer down")
		n.metrics.SendFailures.Inc()
		n.view.PeerDown(to)
		n.tree.NeighborDown(to)
	}
}

func (n *Node) countTreeSend(msg hnet.ProtocolMessage) {
	switch msg.(type) {
	case plumtree.Graft:
		n.metrics.GraftsSent.Inc()
	case plumtree.Prune:
		n.metrics.PrunesSent.Inc()
	case plumtree.IHave:
		n.metrics.IHavesSent.Inc()
	}
}

// deliver hands a message to the application channel. If the subscriber has
// fallen DeliveryBufferSize messages behind, the event loop blocks rather
// than dropping deliveries.
func (n *Node) deliver(d plumtree.Delivery) {
	n.metrics.DeliveredMessages.Inc()
	select {
	case n.deliveryCh <- Message{ID: d.ID, Payload: d.Payload}:
	case <-n.shutdownCh:
	}
}

/*******************************************************************************
Application API
*******************************************************************************/

// Publish broadcasts a payload to the cluster and returns its assigned id.
// The message is delivered locally as well.
func (n *Node) Publish(payload []byte) (plumtree.MessageID, error) {
	req := publishRequest{payload: payload, reply: make(chan plumtree.MessageID, 1)}
	select {
	case n.submitCh <- req:
		return <-req.reply, nil
	case <-n.shutdownCh:
		return plumtree.MessageID{}, fmt.Errorf("node is shut down")
	}
}

// Messages returns the channel of broadcast messages delivered to this node.
// The channel is closed on shutdown.
func (n *Node) Messages() <-chan Message {
	return n.deliveryCh
}

// JoinCluster contacts an existing cluster member to join the overlay. The
// error reports only whether the Join message could be handed to the
// transport; admission itself is asynchronous.
func (n *Node) JoinCluster(contact peers.Peer) error {
	var joinErr error
	err := n.control(func() {
		if contact == n.self {
			return
		}
		n.logger.WithField("contact", contact.String()).Debug("Joining cluster")
		joinErr = n.trans.Send(contact.NetAddr, hyparview.Join{From: n.self})
	})
	if err != nil {
		return err
	}
	return joinErr
}

// Leave notifies active peers of a graceful exit and shuts the node down.
func (n *Node) Leave() error {
	err := n.control(func() {
		n.setState(Leaving)
		n.view.Leave()
	})
	if err != nil {
		return err
	}
	n.Shutdown()
	return nil
}

// ActivePeers returns a snapshot of the membership active view.
func (n *Node) ActivePeers() []peers.Peer {
	var res []peers.Peer
	n.control(func() { res = n.view.ActivePeers() })
	return res
}

// PassivePeers returns a snapshot of the membership passive view.
func (n *Node) PassivePeers() []peers.Peer {
	var res []peers.Peer
	n.control(func() { res = n.view.PassivePeers() })
	return res
}

// GetStats returns a snapshot of the node's protocol state.
func (n *Node) GetStats() Stats {
	res := Stats{State: n.getState().String()}
	n.control(func() {
		res.ActivePeers = addrsOf(n.view.ActivePeers())
		res.PassivePeers = addrsOf(n.view.PassivePeers())
		res.EagerPeers = addrsOf(n.tree.EagerPeers())
		res.LazyPeers = addrsOf(n.tree.LazyPeers())
		res.CachedMsgs = n.msgCache.Len()
		res.LastSeq = n.seq
	})
	return res
}

// control runs f inside the event loop and waits for it to complete.
func (n *Node) control(f func()) error {
	done := make(chan struct{})
	select {
	case n.controlCh <- func() { f(); close(done) }:
	case <-n.shutdownCh:
		return fmt.Errorf("node is shut down")
	}
	select {
	case <-done:
		return nil
	case <-n.doneCh:
		return fmt.Errorf("node is shut down")
	}
}

// Wait blocks until the event loop has stopped.
func (n *Node) Wait() {
	<-n.doneCh
}

// Shutdown stops the event loop and closes the transport. It is safe to call
// more than once and from any goroutine.
func (n *Node) Shutdown() {
	n.shutdownOnce.Do(func() {
		n.logger.Debug("Shutdown")
		close(n.shutdownCh)
		<-n.doneCh
		n.trans.Close()
	})
}

func addrsOf(ps []peers.Peer) []string {
	res := make([]string, len(ps))
	for i, p := range ps {
		res[i] = p.NetAddr
	}
	return res
}

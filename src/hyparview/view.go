package hyparview

import (
	"math/rand"

	"github.com/sirupsen/logrus"
	"github.com/treecast/treecast/src/peers"
)

// Options groups the tunable parameters of the membership protocol. The
// defaults suit clusters of a few hundred nodes; larger deployments should
// scale the view sizes with sqrt(n) and log(n) respectively.
type Options struct {
	// ActiveViewSize is the capacity of the active view.
	ActiveViewSize int

	// PassiveViewSize is the capacity of the passive view.
	PassiveViewSize int

	// ActiveRandomWalkLength is the initial TTL of ForwardJoin walks.
	ActiveRandomWalkLength int

	// PassiveRandomWalkLength is the TTL value at which a walked node also
	// inserts the joining node into its passive view.
	PassiveRandomWalkLength int

	// ShuffleActiveSize and ShufflePassiveSize bound the number of active and
	// passive entries included in a shuffle sample.
	ShuffleActiveSize  int
	ShufflePassiveSize int
}

// DefaultOptions returns the default protocol parameters.
func DefaultOptions() Options {
	return Options{
		ActiveViewSize:          5,
		PassiveViewSize:         30,
		ActiveRandomWalkLength:  6,
		PassiveRandomWalkLength: 3,
		ShuffleActiveSize:       3,
		ShufflePassiveSize:      4,
	}
}

// View is the HyParView membership state machine for one node.
type View struct {
	self    peers.Peer
	opts    Options
	active  map[peers.Peer]struct{}
	passive map[peers.Peer]struct{}
	rng     *rand.Rand
	logger  *logrus.Entry
	actions []Action
}

// NewView returns an empty View for the given node. The randomness source is
// injected so tests can control peer selection deterministically.
func NewView(self peers.Peer, opts Options, rng *rand.Rand, logger *logrus.Entry) *View {
	return &View{
		self:    self,
		opts:    opts,
		active:  make(map[peers.Peer]struct{}),
		passive: make(map[peers.Peer]struct{}),
		rng:     rng,
		logger:  logger.WithField("proto", "hyparview"),
	}
}

// TakeActions returns the queued actions and clears the queue.
func (v *View) TakeActions() []Action {
	acts := v.actions
	v.actions = nil
	return acts
}

// Self returns the local peer.
func (v *View) Self() peers.Peer {
	return v.self
}

// ActivePeers returns a sorted snapshot of the active view.
func (v *View) ActivePeers() []peers.Peer {
	return peers.SetToSlice(v.active)
}

// PassivePeers returns a sorted snapshot of the passive view.
func (v *View) PassivePeers() []peers.Peer {
	return peers.SetToSlice(v.passive)
}

// IsActive reports whether the peer is in the active view.
func (v *View) IsActive(p peers.Peer) bool {
	_, ok := v.active[p]
	return ok
}

// IsPassive reports whether the peer is in the passive view.
func (v *View) IsPassive(p peers.Peer) bool {
	_, ok := v.passive[p]
	return ok
}

/*******************************************************************************
Outbound operations
*******************************************************************************/

// Join initiates entry into the cluster through the given contact peer. The
// contact reacts by adding us to its active view and propagating a
// ForwardJoin walk.
func (v *View) Join(contact peers.Peer) {
	if contact == v.self {
		return
	}
	v.logger.WithField("contact", contact.String()).Debug("Join")
	v.send(contact, Join{From: v.self})
}

// Shuffle runs one cycle of the periodic shuffle: a bounded random sample of
// both views is sent to one random active peer. An isolated node falls back
// to re-joining through a random passive contact; a node with no peers at all
// is a no-op, retried next cycle.
func (v *View) Shuffle() {
	if len(v.active) == 0 {
		if contact := peers.SampleOne(v.rng, v.passive); !contact.IsZero() {
			v.logger.WithField("contact", contact.String()).Debug("Isolated, re-joining via passive contact")
			v.Join(contact)
		}
		return
	}

	target := peers.SampleOne(v.rng, v.active)
	v.send(target, ShuffleRequest{From: v.self, Sample: v.shuffleSample(target)})
}

// FillActiveView attempts to promote a passive candidate when the active view
// is under capacity. Rejections are absorbed; the next timer cycle tries
// another candidate.
func (v *View) FillActiveView() {
	if len(v.active) >= v.opts.ActiveViewSize {
		return
	}
	cand := peers.SampleOne(v.rng, v.passive)
	if cand.IsZero() {
		return
	}
	v.logger.WithField("candidate", cand.String()).Debug("Promoting passive candidate")
	v.send(cand, NeighborRequest{From: v.self, HighPriority: len(v.active) == 0})
}

// SyncActiveView re-sends a NeighborRequest to every active peer. This
// repairs asymmetric views left behind by lost messages: a peer that no
// longer has us replies with a rejection, which demotes it locally.
func (v *View) SyncActiveView() {
	for _, p := range v.ActivePeers() {
		v.send(p, NeighborRequest{From: v.self, HighPriority: false})
	}
}

// Leave notifies all active peers that this node is leaving the cluster. The
// local views are left untouched; the node is expected to shut down next.
func (v *View) Leave() {
	for _, p := range v.ActivePeers() {
		v.send(p, Disconnect{From: v.self})
	}
}

// PeerDown handles a transport-level failure: the peer is dropped from both
// views and a replacement promotion is attempted.
func (v *View) PeerDown(p peers.Peer) {
	delete(v.passive, p)
	if v.removeActive(p, false) {
		v.logger.WithField("peer", p.String()).Debug("Active peer down")
		v.FillActiveView()
	}
}

/*******************************************************************************
Protocol message handlers
*******************************************************************************/

// HandleJoin admits a joining node into the active view and propagates a
// ForwardJoin walk to one random active peer.
func (v *View) HandleJoin(m Join) {
	from := m.From
	if from == v.self {
		return
	}
	if v.IsActive(from) {
		// Duplicate join from an already-active peer.
		return
	}

	v.addActive(from)
	v.send(from, NeighborRequest{From: v.self, HighPriority: true})

	walkers := v.othersThan(from)
	if next := peers.SampleOne(v.rng, walkers); !next.IsZero() {
		v.send(next, ForwardJoin{From: v.self, Origin: from, TTL: v.opts.ActiveRandomWalkLength})
	}
}

// HandleForwardJoin continues or terminates a join walk. The walk terminates
// by admitting the origin when the TTL expires or the active view has room;
// otherwise it is forwarded to a random active peer with a decremented TTL.
func (v *View) HandleForwardJoin(m ForwardJoin) {
	origin := m.Origin
	if origin == v.self || v.IsActive(origin) {
		return
	}

	if m.TTL <= 0 || len(v.active) < v.opts.ActiveViewSize {
		v.addActive(origin)
		v.send(origin, NeighborRequest{From: v.self, HighPriority: true})
		return
	}

	if m.TTL == v.opts.PassiveRandomWalkLength {
		v.addPassive(origin)
	}

	next := peers.SampleOne(v.rng, v.othersThan(m.From, origin))
	if next.IsZero() {
		v.addActive(origin)
		v.send(origin, NeighborRequest{From: v.self, HighPriority: true})
		return
	}
	v.send(next, ForwardJoin{From: v.self, Origin: origin, TTL: m.TTL - 1})
}

// HandleNeighborRequest accepts the sender into the active view when it is
// already there, when the request is high priority, or when there is room.
// Otherwise the sender is kept as a passive candidate and rejected.
func (v *View) HandleNeighborRequest(m NeighborRequest) {
	from := m.From
	if from == v.self {
		return
	}

	if v.IsActive(from) {
		v.send(from, NeighborReply{From: v.self, Accept: true})
		return
	}

	if m.HighPriority || len(v.active) < v.opts.ActiveViewSize {
		v.addActive(from)
		v.send(from, NeighborReply{From: v.self, Accept: true})
		return
	}

	v.addPassive(from)
	v.send(from, NeighborReply{From: v.self, Accept: false})
}

// HandleNeighborReply completes a neighbor negotiation. An acceptance makes
// the relationship symmetric; a rejection demotes the peer to the passive
// view.
func (v *View) HandleNeighborReply(m NeighborReply) {
	if m.Accept {
		v.addActive(m.From)
		return
	}
	if v.removeActive(m.From, true) {
		v.FillActiveView()
	}
}

// HandleShuffleRequest merges the received sample into the passive view and
// returns a sample of equal size.
func (v *View) HandleShuffleRequest(m ShuffleRequest) {
	reply := peers.Sample(v.rng, v.passive, len(m.Sample))
	v.send(m.From, ShuffleReply{From: v.self, Sample: reply})
	v.mergeIntoPassive(m.Sample)
}

// HandleShuffleReply merges the returned sample into the passive view.
func (v *View) HandleShuffleReply(m ShuffleReply) {
	v.mergeIntoPassive(m.Sample)
}

// HandleDisconnect demotes the sender to the passive view and attempts to
// promote a replacement.
func (v *View) HandleDisconnect(m Disconnect) {
	if v.removeActive(m.From, true) {
		v.FillActiveView()
	}
}

/*******************************************************************************
Internals
*******************************************************************************/

func (v *View) send(to peers.Peer, msg Message) {
	v.actions = append(v.actions, Action{Kind: SendAction, Peer: to, Msg: msg})
}

// addActive inserts a peer into the active view, evicting a random member to
// the passive view when full. The evicted peer is notified with a Disconnect
// so it can drop the dead symmetric edge.
func (v *View) addActive(p peers.Peer) bool {
	if p == v.self || v.IsActive(p) {
		return false
	}

	if len(v.active) >= v.opts.ActiveViewSize {
		evict := peers.SampleOne(v.rng, v.active)
		v.send(evict, Disconnect{From: v.self})
		v.removeActive(evict, true)
	}

	delete(v.passive, p)
	v.active[p] = struct{}{}
	v.logger.WithFields(logrus.Fields{
		"peer":        p.String(),
		"active_size": len(v.active),
	}).Debug("Neighbor up")
	v.actions = append(v.actions, Action{Kind: NeighborUpAction, Peer: p})
	return true
}

// removeActive removes a peer from the active view, optionally keeping it as
// a passive candidate.
func (v *View) removeActive(p peers.Peer, demote bool) bool {
	if !v.IsActive(p) {
		return false
	}
	delete(v.active, p)
	v.actions = append(v.actions, Action{Kind: NeighborDownAction, Peer: p})
	if demote {
		v.addPassive(p)
	}
	v.logger.WithFields(logrus.Fields{
		"peer":        p.String(),
		"active_size": len(v.active),
	}).Debug("Neighbor down")
	return true
}

// addPassive inserts a peer into the passive view, evicting a random entry
// when full. Peers already in the active view are never added; the two views
// are disjoint by construction.
func (v *View) addPassive(p peers.Peer) {
	if p == v.self || v.IsActive(p) || v.IsPassive(p) {
		return
	}
	if len(v.passive) >= v.opts.PassiveViewSize {
		evict := peers.SampleOne(v.rng, v.passive)
		delete(v.passive, evict)
	}
	v.passive[p] = struct{}{}
}

func (v *View) mergeIntoPassive(sample []peers.Peer) {
	for _, p := range sample {
		v.addPassive(p)
	}
}

// shuffleSample builds the sample sent in a ShuffleRequest: the local peer
// plus bounded samples of both views, excluding the shuffle target itself.
func (v *View) shuffleSample(target peers.Peer) []peers.Peer {
	sample := []peers.Peer{v.self}
	sample = append(sample, peers.Sample(v.rng, v.othersThan(target), v.opts.ShuffleActiveSize)...)
	sample = append(sample, peers.Sample(v.rng, v.passive, v.opts.ShufflePassiveSize)...)
	return sample
}

// othersThan returns the active view minus the given peers.
func (v *View) othersThan(exclude ...peers.Peer) map[peers.Peer]struct{} {
	res := make(map[peers.Peer]struct{}, len(v.active))
	for p := range v.active {
		res[p] = struct{}{}
	}
	for _, p := range exclude {
		delete(res, p)
	}
	return res
}

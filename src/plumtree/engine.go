package plumtree

import (
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/treecast/treecast/src/cache"
	"github.com/treecast/treecast/src/peers"
)

// Options groups the tunable parameters of the broadcast tree.
type Options struct {
	// IHaveDelay is how long announcements are held back for batching before
	// the lazy queue is flushed.
	IHaveDelay time.Duration

	// GraftTimeout is how long to wait for a message to arrive over an eager
	// link after an IHave revealed that we lack it. One round-trip-time
	// estimate is a good value.
	GraftTimeout time.Duration

	// GraftRetry is how long to wait for a Graft response before falling
	// back to the next announcer.
	GraftRetry time.Duration
}

// DefaultOptions returns the default tree parameters.
func DefaultOptions() Options {
	return Options{
		IHaveDelay:   100 * time.Millisecond,
		GraftTimeout: 500 * time.Millisecond,
		GraftRetry:   500 * time.Millisecond,
	}
}

// graftCandidate is a peer that announced a message we lack.
type graftCandidate struct {
	peer  peers.Peer
	round int
}

// missingEntry tracks one message known only through IHave announcements.
// The first announcer owns the timer; later announcers queue as fallbacks.
type missingEntry struct {
	candidates []graftCandidate
	deadline   time.Time
}

// queuedAnn is a lazy announcement waiting in the batching queue.
type queuedAnn struct {
	peer     peers.Peer
	ann      Announcement
	queuedAt time.Time
}

// Engine is the Plumtree broadcast-tree state machine for one node. The
// eager and lazy sets partition the current active view; both start empty
// and are maintained through NeighborUp/NeighborDown notifications from the
// membership layer.
type Engine struct {
	self  peers.Peer
	opts  Options
	cache *cache.MessageCache[MessageID]
	clock clock.Clock

	eager map[peers.Peer]struct{}
	lazy  map[peers.Peer]struct{}

	missing   map[MessageID]*missingEntry
	lazyQueue []queuedAnn

	logger  *logrus.Entry
	actions []Action
}

// NewEngine returns an Engine backed by the given message cache. The clock
// is injected so tests can drive timers deterministically.
func NewEngine(self peers.Peer, opts Options, msgCache *cache.MessageCache[MessageID], clk clock.Clock, logger *logrus.Entry) *Engine {
	return &Engine{
		self:    self,
		opts:    opts,
		cache:   msgCache,
		clock:   clk,
		eager:   make(map[peers.Peer]struct{}),
		lazy:    make(map[peers.Peer]struct{}),
		missing: make(map[MessageID]*missingEntry),
		logger:  logger.WithField("proto", "plumtree"),
	}
}

// TakeActions returns the queued actions and clears the queue.
func (e *Engine) TakeActions() []Action {
	acts := e.actions
	e.actions = nil
	return acts
}

// EagerPeers returns a sorted snapshot of the eager set.
func (e *Engine) EagerPeers() []peers.Peer {
	return peers.SetToSlice(e.eager)
}

// LazyPeers returns a sorted snapshot of the lazy set.
func (e *Engine) LazyPeers() []peers.Peer {
	return peers.SetToSlice(e.lazy)
}

/*******************************************************************************
Membership notifications
*******************************************************************************/

// NeighborUp registers a new active-view peer. New peers default to eager;
// redundant edges are demoted lazily by Prune as duplicates are detected.
func (e *Engine) NeighborUp(p peers.Peer) {
	if p == e.self {
		return
	}
	delete(e.lazy, p)
	e.eager[p] = struct{}{}
}

// NeighborDown removes a departed peer from both sets and from all pending
// graft timers. Entries waiting on the departed peer are re-targeted at
// their next fallback candidate.
func (e *Engine) NeighborDown(p peers.Peer) {
	delete(e.eager, p)
	delete(e.lazy, p)

	for id, entry := range e.missing {
		retarget := len(entry.candidates) > 0 && entry.candidates[0].peer == p

		kept := entry.candidates[:0]
		for _, c := range entry.candidates {
			if c.peer != p {
				kept = append(kept, c)
			}
		}
		entry.candidates = kept

		if len(entry.candidates) == 0 {
			delete(e.missing, id)
			continue
		}
		if retarget {
			entry.deadline = time.Time{} // fire on next tick
		}
	}

	// Announcements queued for a dead peer will never be sent.
	kept := e.lazyQueue[:0]
	for _, q := range e.lazyQueue {
		if q.peer != p {
			kept = append(kept, q)
		}
	}
	e.lazyQueue = kept
}

/*******************************************************************************
Broadcast and protocol message handlers
*******************************************************************************/

// Broadcast starts propagation of a locally published message: it is
// delivered to the local application, eager-pushed to all eager peers, and
// announced to all lazy peers.
func (e *Engine) Broadcast(id MessageID, payload []byte) {
	if !e.cache.Insert(id, payload, 0) {
		return
	}
	e.deliver(id, payload)
	e.eagerPush(id, 0, payload, e.self)
	e.lazyPush(id, 0, e.self)
}

// HandleGossip processes a full payload received over an eager link. The
// first copy is delivered and re-propagated; a duplicate demotes the
// redundant sender to lazy and asks it to prune the edge.
func (e *Engine) HandleGossip(m Gossip) {
	if !e.cache.Insert(m.ID, m.Payload, m.Round) {
		e.logger.WithFields(logrus.Fields{
			"id":   m.ID.String(),
			"from": m.From.String(),
		}).Debug("Duplicate gossip, pruning")
		e.demote(m.From)
		e.send(m.From, Prune{From: e.self})
		return
	}

	delete(e.missing, m.ID)

	e.deliver(m.ID, m.Payload)
	e.eagerPush(m.ID, m.Round+1, m.Payload, m.From)
	e.lazyPush(m.ID, m.Round+1, m.From)
}

// HandleIHave records announcements for messages we lack and arms the
// pending-graft timer for each newly missing id. The first announcer owns
// the timer; subsequent announcers queue as fallback candidates.
func (e *Engine) HandleIHave(m IHave) {
	for _, ann := range m.Anns {
		if e.cache.Contains(ann.ID) {
			continue
		}

		entry, ok := e.missing[ann.ID]
		if !ok {
			e.missing[ann.ID] = &missingEntry{
				candidates: []graftCandidate{{peer: m.From, round: ann.Round}},
				deadline:   e.now().Add(e.opts.GraftTimeout),
			}
			continue
		}

		known := false
		for _, c := range entry.candidates {
			if c.peer == m.From {
				known = true
				break
			}
		}
		if !known {
			entry.candidates = append(entry.candidates, graftCandidate{peer: m.From, round: ann.Round})
		}
	}
}

// HandleGraft promotes the sender to eager and resends the requested payload
// if it is still cached. A Graft naming an evicted id is ignored; the
// requester falls back to its next candidate.
func (e *Engine) HandleGraft(m Graft) {
	if !e.isNeighbor(m.From) {
		e.logger.WithField("from", m.From.String()).Debug("Graft from non-neighbor, ignoring")
		return
	}

	e.promote(m.From)

	rec, ok := e.cache.Get(m.ID)
	if !ok {
		e.logger.WithFields(logrus.Fields{
			"id":   m.ID.String(),
			"from": m.From.String(),
		}).Debug("Graft for unknown message, ignoring")
		return
	}
	e.send(m.From, Gossip{From: e.self, ID: m.ID, Round: m.Round, Payload: rec.Payload})
}

// HandlePrune demotes the sender to the lazy set.
func (e *Engine) HandlePrune(m Prune) {
	if !e.isNeighbor(m.From) {
		return
	}
	e.demote(m.From)
}

/*******************************************************************************
Timer processing
*******************************************************************************/

// Tick flushes due lazy announcements and fires expired graft timers. It is
// called by the node on every clock tick with the current node time.
func (e *Engine) Tick(now time.Time) {
	e.flushLazyQueue(now)
	e.fireGraftTimers(now)
}

// flushLazyQueue sends batched IHave messages for announcements that have
// been held back for at least IHaveDelay. Flushed entries are marked in the
// cache so they survive eviction while a Graft may still name them.
func (e *Engine) flushLazyQueue(now time.Time) {
	if len(e.lazyQueue) == 0 {
		return
	}

	batches := make(map[peers.Peer][]Announcement)
	kept := e.lazyQueue[:0]
	for _, q := range e.lazyQueue {
		if now.Sub(q.queuedAt) >= e.opts.IHaveDelay {
			batches[q.peer] = append(batches[q.peer], q.ann)
		} else {
			kept = append(kept, q)
		}
	}
	e.lazyQueue = kept

	for _, p := range sortedBatchPeers(batches) {
		anns := batches[p]
		for _, ann := range anns {
			e.cache.MarkAnnounced(ann.ID)
		}
		e.send(p, IHave{From: e.self, Anns: anns})
	}
}

// fireGraftTimers promotes the current candidate of each expired entry to
// eager and sends it a Graft, then re-arms against the next fallback. An
// entry whose candidates are exhausted is dropped; the message can still
// arrive through a later announcement.
func (e *Engine) fireGraftTimers(now time.Time) {
	for id, entry := range e.missing {
		if entry.deadline.After(now) {
			continue
		}
		if len(entry.candidates) == 0 {
			delete(e.missing, id)
			continue
		}

		target := entry.candidates[0]
		entry.candidates = entry.candidates[1:]
		entry.deadline = now.Add(e.opts.GraftRetry)

		e.logger.WithFields(logrus.Fields{
			"id":   id.String(),
			"peer": target.peer.String(),
		}).Debug("Graft timer fired")

		e.promote(target.peer)
		e.send(target.peer, Graft{From: e.self, ID: id, Round: target.round})
	}
}

/*******************************************************************************
Internals
*******************************************************************************/

func (e *Engine) send(to peers.Peer, msg Message) {
	e.actions = append(e.actions, Action{Kind: SendAction, Peer: to, Msg: msg})
}

func (e *Engine) deliver(id MessageID, payload []byte) {
	e.actions = append(e.actions, Action{Kind: DeliverAction, Deliver: Delivery{ID: id, Payload: payload}})
}

func (e *Engine) eagerPush(id MessageID, round int, payload []byte, except peers.Peer) {
	for _, p := range e.EagerPeers() {
		if p == except {
			continue
		}
		e.send(p, Gossip{From: e.self, ID: id, Round: round, Payload: payload})
	}
}

func (e *Engine) lazyPush(id MessageID, round int, except peers.Peer) {
	now := e.now()
	for _, p := range e.LazyPeers() {
		if p == except {
			continue
		}
		e.lazyQueue = append(e.lazyQueue, queuedAnn{
			peer:     p,
			ann:      Announcement{ID: id, Round: round},
			queuedAt: now,
		})
	}
}

func (e *Engine) now() time.Time {
	return e.clock.Now()
}

// sortedBatchPeers returns the batch keys in address order so that flushes
// are deterministic for tests.
func sortedBatchPeers(batches map[peers.Peer][]Announcement) []peers.Peer {
	res := make([]peers.Peer, 0, len(batches))
	for p := range batches {
		res = append(res, p)
	}
	sort.Sort(peers.ByNetAddr(res))
	return res
}

func (e *Engine) isNeighbor(p peers.Peer) bool {
	if _, ok := e.eager[p]; ok {
		return true
	}
	_, ok := e.lazy[p]
	return ok
}

func (e *Engine) promote(p peers.Peer) {
	if !e.isNeighbor(p) {
		return
	}
	delete(e.lazy, p)
	e.eager[p] = struct{}{}
}

func (e *Engine) demote(p peers.Peer) {
	if !e.isNeighbor(p) {
		return
	}
	delete(e.eager, p)
	e.lazy[p] = struct{}{}
}

// Package node implements the reactive component of a treecast node.
//
// A Node owns one hyparview.View and one plumtree.Engine and is the only
// goroutine that ever touches them. Everything the node does is funneled
// through a single event loop: inbound protocol messages from the transport,
// Publish calls from the application, control requests (join, leave,
// snapshots), and clock ticks. Because all protocol state is confined to the
// loop, the state machines need no locking and no event for the same node is
// ever processed concurrently.
//
// Event processing
//
// Each event is dispatched to the appropriate state machine handler, which
// mutates local state and queues actions. The loop then drains the action
// queues: membership actions first (outbound sends plus neighbor up/down
// notifications, which are fed into the broadcast tree), then tree actions
// (outbound sends plus local deliveries). A failed send is converted into a
// PeerDown notification on the membership view, which may queue further
// actions; the loop drains until both queues are empty.
//
// Timers
//
// A single clock ticker drives all periodic work. On every tick the
// broadcast tree flushes batched IHave announcements and fires expired graft
// timers, and the node checks the jittered deadlines for the shuffle,
// fill-active-view, sync-active-view, and cache-sweep cycles. The clock is
// injected (benbjohnson/clock) so tests can step time deterministically.
package node

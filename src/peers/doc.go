// Package peers defines the concept of a treecast peer and implements
// functions to manage collections of peers.
//
// A peer is an entity that operates a treecast node. It is identified by the
// network address where its transport is listening, which is unique within a
// cluster. The Peer type is a small comparable value; it is copied into
// protocol messages and used directly as a map key by the membership and
// broadcast-tree state machines.
//
// Unlike the active and passive views maintained by the hyparview package,
// which evolve constantly as the overlay reshapes itself, the contacts.json
// file managed by JSONContacts is a static list of bootstrap contacts. Upon
// starting up, a node uses these contacts to send its initial Join request;
// once joined, membership is maintained entirely by the protocol and the
// contact file is no longer consulted.
package peers

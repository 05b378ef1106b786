// Package plumtree implements the Plumtree epidemic broadcast tree.
//
// Every active-view neighbor is classified as either eager or lazy. Eager
// peers receive full Gossip payloads immediately; lazy peers receive only
// batched IHave announcements. A node that receives a duplicate Gossip prunes
// the redundant edge, converging the eager links toward a spanning tree. A
// node that learns of a message through an IHave but never receives it over
// an eager link grafts the announcing peer back into its eager set and
// requests the payload, repairing tree breaks within a bounded time.
//
// Like hyparview.View, the Engine is a pure state machine driven from a
// single goroutine: handlers queue Actions (sends and local deliveries) that
// the owning node executes.
package plumtree

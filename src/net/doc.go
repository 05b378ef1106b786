// Package net implements the transport layer of treecast.
//
// The overlay protocols exchange one-way messages: a send either reaches the
// peer's consumer channel or fails, and a failure is the protocol's signal
// that the peer is down. There is no request/response pairing and no
// transport-level retry; the periodic protocol timers provide self-healing
// instead.
//
// Two implementations are provided. NetworkTransport frames each message as
// a kind byte followed by a msgpack-encoded body over pooled connections of
// an underlying StreamLayer (plain TCP in this package). InmemTransport
// routes messages through an in-process InmemNetwork, which additionally
// supports partitions and per-kind send counters for multi-node tests.
package net

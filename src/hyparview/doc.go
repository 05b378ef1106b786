// Package hyparview implements the HyParView membership protocol.
//
// Each node maintains two views of the cluster: a small active view of peers
// it gossips with directly, and a larger passive view of backup candidates
// used to replace failed active peers. Joins propagate through the overlay as
// bounded random walks (ForwardJoin), periodic shuffles exchange view samples
// to keep the passive view populated, and neighbor requests promote passive
// candidates when the active view shrinks. Together these mechanisms keep the
// overlay connected under churn without any node holding global knowledge.
//
// The View type is a pure state machine. Handlers mutate local state and
// queue Actions (outbound messages and neighbor up/down notifications) which
// the owning node drains and executes. The View never touches the network
// itself and is only ever driven from a single goroutine.
package hyparview

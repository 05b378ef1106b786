// Package config defines the configuration for a treecast node.
//
// Regardless of how treecast is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// configuration options, treecast relies on a data directory, defined by
// Config.DataDir, where it expects to find one additional configuration file:
//
//	contacts.json // a JSON file listing known cluster members to join through.
//
// A missing contacts file is not an error; the node then starts a new cluster
// of its own and waits for others to join it.
package config

// Package config defines the configuration for a meshcast node.
//
// Regardless of how the node is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// options, a node may rely on a data directory, defined by Config.DataDir,
// where it expects to find a few additional files:
//
//  meshcast.toml // (optional) configuration file read by the CLI.
//  peers.yaml // (tcp transport only) the peer book, cf peers package.
//  badger_db/ // (store only) the database, wiped on every start.
package config

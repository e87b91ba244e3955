// Package cmd implements the djournal command line interface.
//
// The package is organized into several subpackages:
//
//   - serve: starts a primary (replication stream, HTTP control surface, optional RAFT)
//   - replicate: follows a primary and mirrors its keyspace in memory
//   - dump: prints the entries of a journal file
//   - bench: measures encode and decode throughput of the codec
//   - util: shared flag, configuration and transport helpers (internal use)
//
// Every flag can also be set as an environment variable DJOURNAL_<FLAG>, with dashes
// replaced by underscores. .env and .env.local files are loaded on start.
//
// See djournal -help for a list of all commands.
package cmd

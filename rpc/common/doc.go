// Package common provides data structures and utilities shared by the primary and
// replica side of journal replication.
//
// The package focuses on:
//   - Configuration structures for the primary (serve) and the replica (replicate)
//   - The replication handshake frame
//   - Custom logging implementation integrated with Dragonboat
//   - Utilities for Dragonboat (RAFT) integration
//
// Key Components:
//
//   - Hello: The 12 byte frame a replica sends after connecting. It carries the
//     replica ID and the journal protocol version; the primary closes connections
//     with a different version.
//
//   - PrimaryConfig: Configuration of the primary, including the replication
//     endpoint, HTTP control surface, journal file and optional RAFT parameters.
//     Provides utilities for converting to Dragonboat-specific configurations.
//
//   - ReplicaConfig: Configuration of a replica, controlling poll interval,
//     idle timeout and reconnect behavior.
//
//   - Logger: Custom logging implementation that integrates with Dragonboat's
//     logging system while providing consistent formatting across the application.
package common

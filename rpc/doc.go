// Package rpc contains everything that moves journal entries between processes.
//
// The package is organized into several subpackages:
//
//   - common: configuration structures, the replication handshake frame, socket
//     options and the logger setup shared by all processes.
//
//   - transport: the replication stream between a primary and its replicas with
//     pluggable connectors (TCP, Unix sockets), and the HTTP control surface.
package rpc

// Package unix carries the replication stream over Unix domain sockets, for
// replicas running on the same machine as the primary. It provides the Unix
// connectors for the base package.
//
// The listener removes a stale socket file before binding. Only the buffer sizes
// of the socket options apply to Unix connections.
package unix

// Package tcp carries the replication stream over TCP. It provides the TCP
// connectors for the base package, which implements the stream itself.
//
// Both ends apply the configured socket options (no delay, keep-alive, linger and
// buffer sizes) to every connection. TCPNoDelay is on by default since journal
// entries are small and latency matters more than packet count.
package tcp

// Package base implements the replication stream independent of the network
// protocol (TCP, Unix sockets). Protocol packages only provide a connector that
// dials, listens and tunes sockets.
//
// A replica opens a connection and sends a fixed size hello frame carrying its id
// and protocol version. From then on bytes only flow from the primary to the
// replica, as a plain journal stream:
//
//   - Full sync: the primary dumps its state as SET entries.
//   - Live entries: every entry passed to Publish, in publish order.
//   - Heartbeats: PING entries whenever the connection has been idle for the
//     configured interval.
//
// The dump and the registration of the replica happen under the same lock as
// Publish, so a replica sees each published entry either in the dump or live,
// never both and never neither.
//
// Each replica has its own bounded queue. A replica whose queue overflows is
// disconnected instead of blocking Publish; it reconnects and gets a new full sync.
// Every connection uses its own journal writer, so the database index of the
// stream is tracked per replica.
package base

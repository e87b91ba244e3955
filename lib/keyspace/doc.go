// Package keyspace provides the in-memory state a journal is applied to: a fixed number
// of numbered databases, each a concurrent map from key to value.
//
// The package covers three roles around the journal codec:
//
//   - Apply: executes decoded entries (SET, DEL, APPEND, FLUSHDB, FLUSHALL and expiry
//     deletions). Replicas use it to mirror the primary.
//
//   - Dump / Save / Load: turns the keyspace back into journal entries, either for the
//     full sync of a new replica or as a snapshot stream terminated by OpFin.
//
//   - ParseLine / ParseScript: converts text command lines (as sent to the HTTP surface
//     of the primary) into journal entries.
//
// Values are copied on write and never modified in place, so slices returned by Get
// stay valid after later writes.
package keyspace

// Package replica applies journal streams on the receiving side of replication.
//
// Two ways of transporting the journal are supported:
//
//   - Streaming: A Replica owns one journal.Reader over a connection to the primary and
//     applies every decoded entry to a keyspace. Step returns as soon as the connection
//     has no more bytes, a partially received entry stays buffered until the rest
//     arrives. After a lost connection Reconnect binds the reader to the new
//     connection and clears the keyspace for the full sync that follows.
//
//   - Raft: RaftJournal proposes journal batches to a Dragonboat shard, StateMachine
//     applies them on every node. Each batch is encoded with a fresh writer
//     (EncodeBatch), so it is self-contained even though several nodes may propose.
//
// Raft Flow:
//
//  1. Entries are encoded into one batch with EncodeBatch
//  2. The batch is proposed via SyncPropose (retried while the system is busy)
//  3. Once committed, StateMachine.Update decodes the whole batch and applies it
//  4. The ResultCode is returned to the proposer
//
// Snapshots:
//
//	SaveSnapshot writes the running database index as an OpSelect entry followed by
//	the keyspace as written by keyspace.Save. RecoverFromSnapshot reads both back and
//	seeds a new reader with the stored index.
package replica

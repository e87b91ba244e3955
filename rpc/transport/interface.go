package transport

import (
	"github.com/ValentinKolb/dJournal/lib/journal"
	"github.com/ValentinKolb/dJournal/rpc/common"
)

// --------------------------------------------------------------------------
// Primary Side
// --------------------------------------------------------------------------

// IState is the data the replication stream mirrors. The publisher applies every
// entry before it is sent and dumps the state for the full sync of new replicas.
// *keyspace.Keyspace implements it.
type IState interface {
	ApplyEntry(e journal.Entry) error
	Dump(fn func(journal.Entry) error) error
}

// IPublisher is the interface for the primary side of the replication stream
type IPublisher interface {
	// Listen accepts replica connections until Close is called. It blocks.
	Listen(config common.PrimaryConfig) error
	// Publish applies the entries to the state and sends them to every replica.
	// Entries are applied in order, the first entry that fails to apply and all
	// entries after it are neither applied nor sent.
	Publish(entries ...journal.Entry) error
	// Subscribers returns the number of connected replicas
	Subscribers() int
	// Close stops accepting replicas and disconnects all of them
	Close() error
}

// --------------------------------------------------------------------------
// Replica Side
// --------------------------------------------------------------------------

// ISubscriber is the interface for the replica side of the replication stream
type ISubscriber interface {
	// Connect dials the primary, performs the handshake and returns the stream
	Connect(config common.ReplicaConfig) (journal.Source, error)
	// Reconnect closes the current connection and dials again with exponential
	// backoff, up to config.RetryCount attempts
	Reconnect() (journal.Source, error)
	// Close closes the current connection
	Close() error
}

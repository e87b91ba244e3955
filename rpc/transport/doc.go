// Package transport defines the interfaces of the replication stream between a
// journal primary and its replicas. It provides a common contract that all transport
// implementations must fulfill, enabling protocol-agnostic replication.
//
// The package focuses on:
//   - Defining clear interfaces for the publishing (primary) and subscribing (replica) side
//   - Keeping the journal codec independent of sockets and connection handling
//   - Enabling multiple transport implementations (TCP, Unix sockets)
//
// Key Components:
//
//   - IPublisher: Accepts replicas, sends each one a full sync followed by the live
//     journal stream.
//
//   - ISubscriber: Connects to a primary and hands out the stream as a journal.Source.
//
//   - IState: The replicated data, applied and dumped by the publisher.
package transport

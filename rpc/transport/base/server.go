package base

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dJournal/lib/journal"
	"github.com/ValentinKolb/dJournal/rpc/common"
	"github.com/ValentinKolb/dJournal/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
)

const (
	defaultHeartbeat       = time.Second
	defaultSubscriberQueue = 4096
	handshakeTimeout       = 5 * time.Second
	writeTimeout           = 10 * time.Second
	connBufferSize         = 64 * 1024
)

var (
	connectedSubscribers atomic.Int64

	_ = metrics.NewGauge("djournal_subscribers", func() float64 {
		return float64(connectedSubscribers.Load())
	})
	subscribersDropped = metrics.NewCounter("djournal_subscribers_dropped_total")
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(endpoint string) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.SocketConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// subscription is a connected replica. The publisher fans entries out into queue,
// the connection goroutine drains it into the connection's own journal writer.
type subscription struct {
	id        uint64 // connection sequence number
	hello     common.Hello
	queue     chan journal.Entry
	dropped   chan struct{}
	closeOnce sync.Once
}

func (s *subscription) drop() {
	s.closeOnce.Do(func() { close(s.dropped) })
}

// publisher implements transport.IPublisher independent of the transport medium
type publisher struct {
	connector IServerConnector
	state     transport.IState
	config    common.PrimaryConfig

	mu       sync.Mutex // serializes apply+fan-out against subscription setup
	subs     *xsync.MapOf[uint64, *subscription]
	nextID   atomic.Uint64
	journal  *journal.Writer // optional append-only journal file
	listener net.Listener
	closing  atomic.Bool
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// PublisherOption configures a publisher
type PublisherOption func(*publisher)

// WithJournalFile appends every published entry to w as well. Writes to w are
// serialized with Publish.
func WithJournalFile(w io.Writer) PublisherOption {
	return func(p *publisher) {
		p.journal = journal.NewWriter(w)
	}
}

// NewBasePublisher creates a new publisher with the specified connector
func NewBasePublisher(connector IServerConnector, state transport.IState, opts ...PublisherOption) transport.IPublisher {
	p := &publisher{
		connector: connector,
		state:     state,
		subs:      xsync.NewMapOf[uint64, *subscription](),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IPublisher)
// --------------------------------------------------------------------------

func (p *publisher) Listen(config common.PrimaryConfig) error {
	if config.Heartbeat <= 0 {
		config.Heartbeat = defaultHeartbeat
	}
	if config.SubscriberQueue <= 0 {
		config.SubscriberQueue = defaultSubscriberQueue
	}
	p.config = config

	// Create listener using the connector
	listener, err := p.connector.Listen(config.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to create listener: %v", err)
	}
	p.mu.Lock()
	if p.closing.Load() {
		p.mu.Unlock()
		return listener.Close()
	}
	p.listener = listener
	p.mu.Unlock()

	Logger.Infof("Starting %s publisher on %s", p.connector.GetName(), config.Endpoint)

	// Accept connections
	for {
		conn, err := listener.Accept()
		if err != nil {
			if p.closing.Load() {
				return nil
			}
			Logger.Errorf("Accept error: %v", err)
			continue
		}

		// Handle the connection in a goroutine
		go p.handleConnection(conn)
	}
}

func (p *publisher) Publish(entries ...journal.Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range entries {
		if err := p.state.ApplyEntry(e); err != nil {
			return err
		}

		if p.journal != nil {
			if err := p.journal.Write(e); err != nil {
				return fmt.Errorf("journal file: %w", err)
			}
		}

		p.subs.Range(func(_ uint64, sub *subscription) bool {
			select {
			case sub.queue <- e:
			default:
				// The replica does not keep up, it reconnects and resyncs
				p.dropLocked(sub, "queue full")
			}
			return true
		})
	}
	return nil
}

func (p *publisher) Subscribers() int {
	return p.subs.Size()
}

func (p *publisher) Close() error {
	if p.closing.Swap(true) {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.subs.Range(func(_ uint64, sub *subscription) bool {
		p.dropLocked(sub, "publisher closed")
		return true
	})

	if p.listener != nil {
		return p.listener.Close()
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleConnection serves one replica: handshake, full sync, then live entries
func (p *publisher) handleConnection(conn net.Conn) {
	defer conn.Close()

	if err := p.connector.UpgradeConnection(conn, p.config.Socket); err != nil {
		Logger.Errorf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
		return
	}

	hello, err := readHello(conn, handshakeTimeout)
	if err != nil {
		Logger.Errorf("Handshake with %s failed: %v", conn.RemoteAddr(), err)
		return
	}

	sub, snapshot, err := p.subscribe(hello)
	if err != nil {
		Logger.Errorf("Full sync for replica %d failed: %v", hello.ReplicaID, err)
		return
	}
	defer p.unsubscribe(sub)

	Logger.Infof("Replica %d connected from %s, full sync of %d bytes", hello.ReplicaID, conn.RemoteAddr(), snapshot.Len())

	bw := bufio.NewWriterSize(conn, connBufferSize)
	flush := func() error {
		if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return err
		}
		return bw.Flush()
	}

	// Full sync
	if _, err := snapshot.WriteTo(bw); err != nil {
		Logger.Warningf("Replica %d: %v", hello.ReplicaID, err)
		return
	}
	if err := flush(); err != nil {
		Logger.Warningf("Replica %d: %v", hello.ReplicaID, err)
		return
	}

	// Live entries, the writer is owned by this goroutine only
	w := journal.NewWriter(bw)
	heartbeat := time.NewTicker(p.config.Heartbeat)
	defer heartbeat.Stop()

	for {
		var err error
		select {
		case e := <-sub.queue:
			err = p.writeBatch(w, sub, e)
			heartbeat.Reset(p.config.Heartbeat)
		case <-heartbeat.C:
			db, _ := w.DbIndex()
			err = w.Write(journal.Entry{Op: journal.OpPing, DbIndex: db})
		case <-sub.dropped:
			Logger.Infof("Replica %d disconnected", hello.ReplicaID)
			return
		}
		if err == nil {
			err = flush()
		}
		if err != nil {
			Logger.Warningf("Replica %d: %v", hello.ReplicaID, err)
			return
		}
	}
}

// writeBatch writes first and every entry already queued behind it
func (p *publisher) writeBatch(w *journal.Writer, sub *subscription, first journal.Entry) error {
	if err := w.Write(first); err != nil {
		return err
	}
	for {
		select {
		case e := <-sub.queue:
			if err := w.Write(e); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// subscribe dumps the state and registers the subscription in one critical section,
// so the replica receives every entry published after the dump exactly once
func (p *publisher) subscribe(hello common.Hello) (*subscription, *bytes.Buffer, error) {
	sub := &subscription{
		id:      p.nextID.Add(1),
		hello:   hello,
		queue:   make(chan journal.Entry, p.config.SubscriberQueue),
		dropped: make(chan struct{}),
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closing.Load() {
		return nil, nil, errors.New("publisher closed")
	}

	snapshot := &bytes.Buffer{}
	if err := p.state.Dump(journal.NewWriter(snapshot).Write); err != nil {
		return nil, nil, err
	}

	p.subs.Store(sub.id, sub)
	connectedSubscribers.Add(1)
	return sub, snapshot, nil
}

func (p *publisher) unsubscribe(sub *subscription) {
	if _, ok := p.subs.LoadAndDelete(sub.id); ok {
		connectedSubscribers.Add(-1)
	}
	sub.drop()
}

// dropLocked removes a subscription, the caller must hold p.mu
func (p *publisher) dropLocked(sub *subscription, reason string) {
	if _, ok := p.subs.LoadAndDelete(sub.id); ok {
		connectedSubscribers.Add(-1)
		subscribersDropped.Inc()
		Logger.Warningf("Dropping replica %d: %s", sub.hello.ReplicaID, reason)
	}
	sub.drop()
}

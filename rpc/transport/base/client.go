package base

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/ValentinKolb/dJournal/lib/journal"
	"github.com/ValentinKolb/dJournal/rpc/common"
	"github.com/ValentinKolb/dJournal/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/stream")

const defaultPoll = 100 * time.Millisecond

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to the endpoint
	Connect(endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.SocketConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// subscriber implements transport.ISubscriber independent of the transport medium
type subscriber struct {
	connector IClientConnector
	config    common.ReplicaConfig

	mu     sync.Mutex // protects source
	source *journal.ConnSource
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseSubscriber creates a new subscriber with the specified connector
func NewBaseSubscriber(connector IClientConnector) transport.ISubscriber {
	return &subscriber{connector: connector}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.ISubscriber)
// --------------------------------------------------------------------------

func (s *subscriber) Connect(config common.ReplicaConfig) (journal.Source, error) {
	if config.Endpoint == "" {
		return nil, errors.New("no endpoint provided")
	}
	if config.Poll <= 0 {
		config.Poll = defaultPoll
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.config = config
	s.closeLocked()
	if err := s.dialLocked(); err != nil {
		return nil, err
	}

	Logger.Infof("Replica %d subscribed to %s using %s transport", config.ReplicaID, config.Endpoint, s.connector.GetName())
	return s.source, nil
}

func (s *subscriber) Reconnect() (journal.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeLocked()

	// We always try at least once, and up to maxRetries times
	maxRetries := s.config.RetryCount
	if maxRetries < 1 {
		maxRetries = 1
	}

	// Initial backoff duration in milliseconds
	backoffMs := 50

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if lastErr = s.dialLocked(); lastErr == nil {
			Logger.Infof("Replica %d reconnected to %s after %d attempt(s)", s.config.ReplicaID, s.config.Endpoint, i+1)
			return s.source, nil
		}
		Logger.Debugf("Reconnect attempt %d/%d failed: %v", i+1, maxRetries, lastErr)

		if i < maxRetries-1 {
			// Exponential backoff with a small random jitter (+-10%)
			jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
			time.Sleep(time.Duration(jitter) * time.Millisecond)
			backoffMs *= 2
		}
	}
	return nil, fmt.Errorf("failed to reconnect after %d attempts: %w", maxRetries, lastErr)
}

func (s *subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// dialLocked connects, upgrades and greets the primary, the caller must hold s.mu
func (s *subscriber) dialLocked() error {
	conn, err := s.connector.Connect(s.config.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %v", s.config.Endpoint, err)
	}

	if err := s.connector.UpgradeConnection(conn, s.config.Socket); err != nil {
		conn.Close()
		return fmt.Errorf("failed to upgrade connection to %s: %v", s.config.Endpoint, err)
	}

	if err := writeHello(conn, common.NewHello(s.config.ReplicaID), handshakeTimeout); err != nil {
		conn.Close()
		return fmt.Errorf("handshake with %s failed: %v", s.config.Endpoint, err)
	}

	s.source = journal.NewConnSource(conn, s.config.Poll)
	return nil
}

func (s *subscriber) closeLocked() error {
	if s.source == nil {
		return nil
	}
	err := s.source.Close()
	s.source = nil
	return err
}

package common

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ValentinKolb/dJournal/lib/journal"
)

// --------------------------------------------------------------------------
// Replication Handshake
// --------------------------------------------------------------------------

// HelloSize is the encoded size of a Hello frame
const HelloSize = 12

var ErrVersionMismatch = errors.New("protocol version mismatch")

// Hello is the only frame a replica sends. It precedes the journal stream, which
// flows from the primary to the replica afterwards.
//
// Layout: replicaID uint64 | version uint32, both big endian.
type Hello struct {
	ReplicaID uint64
	Version   uint32
}

// NewHello creates a hello frame for the protocol version of this build
func NewHello(replicaID uint64) Hello {
	return Hello{ReplicaID: replicaID, Version: journal.ProtocolVersion}
}

// Encode returns the wire representation of the frame
func (h Hello) Encode() []byte {
	b := make([]byte, HelloSize)
	binary.BigEndian.PutUint64(b[:8], h.ReplicaID)
	binary.BigEndian.PutUint32(b[8:12], h.Version)
	return b
}

// DecodeHello parses a hello frame and checks the protocol version
func DecodeHello(b []byte) (Hello, error) {
	if len(b) != HelloSize {
		return Hello{}, fmt.Errorf("invalid hello frame size %d", len(b))
	}
	h := Hello{
		ReplicaID: binary.BigEndian.Uint64(b[:8]),
		Version:   binary.BigEndian.Uint32(b[8:12]),
	}
	if h.Version != journal.ProtocolVersion {
		return h, fmt.Errorf("%w: replica speaks %d, primary %d", ErrVersionMismatch, h.Version, journal.ProtocolVersion)
	}
	return h, nil
}

func (h Hello) String() string {
	return fmt.Sprintf("Hello{ReplicaID: %d, Version: %d}", h.ReplicaID, h.Version)
}

// --------------------------------------------------------------------------
// Socket Settings
// --------------------------------------------------------------------------

// SocketConfig holds the socket options applied to every replication connection
type SocketConfig struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int // < 0 keeps the system default
	WriteBufferSize int // 0 keeps the system default
	ReadBufferSize  int // 0 keeps the system default
}

// DefaultSocketConfig returns the socket options used when nothing is configured
func DefaultSocketConfig() SocketConfig {
	return SocketConfig{
		TCPNoDelay:      true,
		TCPKeepAliveSec: 30,
		TCPLingerSec:    -1,
	}
}

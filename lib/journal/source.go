package journal

import (
	"errors"
	"io"
	"net"
	"os"
	"time"
)

// Source delivers the encoded stream to a Reader. Read may return fewer bytes than
// requested. (0, nil) or an error matching ErrNoData means nothing is available right
// now. io.EOF ends the stream, any other error is fatal.
type Source = io.Reader

// --------------------------------------------------------------------------
// Tailing Source
// --------------------------------------------------------------------------

// tailSource turns io.EOF into "no data yet", for files that are still being appended to
type tailSource struct {
	r io.Reader
}

// NewTailSource wraps r so that reaching its end reports ErrNoData instead of io.EOF.
// Use it to follow a journal file that another process appends to.
func NewTailSource(r io.Reader) Source {
	return &tailSource{r: r}
}

func (s *tailSource) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if errors.Is(err, io.EOF) {
		return n, ErrNoData
	}
	return n, err
}

// --------------------------------------------------------------------------
// Connection Source
// --------------------------------------------------------------------------

// ConnSource reads from a network connection with a short read deadline, a deadline
// that passes without data is reported as ErrNoData. This lets a single goroutine
// poll the connection and still notice shutdowns or idle peers in between.
type ConnSource struct {
	conn net.Conn
	poll time.Duration
}

// NewConnSource creates a source that waits at most poll for data on each Read.
// A poll of zero blocks until data arrives.
func NewConnSource(conn net.Conn, poll time.Duration) *ConnSource {
	return &ConnSource{conn: conn, poll: poll}
}

func (s *ConnSource) Read(p []byte) (int, error) {
	if s.poll > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.poll)); err != nil {
			return 0, err
		}
	}

	n, err := s.conn.Read(p)
	if err != nil && isTimeout(err) {
		return n, ErrNoData
	}
	return n, err
}

// Conn returns the wrapped connection
func (s *ConnSource) Conn() net.Conn {
	return s.conn
}

// Close closes the wrapped connection
func (s *ConnSource) Close() error {
	return s.conn.Close()
}

// isTimeout reports whether err is a deadline expiry
func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

package journal

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Sources
// --------------------------------------------------------------------------

// pipeSource is fed by the test, an empty pipe reports (0, nil)
type pipeSource struct {
	buf bytes.Buffer
}

func (s *pipeSource) feed(b []byte) {
	s.buf.Write(b)
}

func (s *pipeSource) Read(p []byte) (int, error) {
	if s.buf.Len() == 0 {
		return 0, nil
	}
	return s.buf.Read(p)
}

// trickleSource hands out at most chunk bytes per Read and reports ErrNoData
// before every chunk, so every field boundary gets split
type trickleSource struct {
	data    []byte
	chunk   int
	starved bool
}

func (s *trickleSource) Read(p []byte) (int, error) {
	if len(s.data) == 0 || !s.starved {
		s.starved = true
		return 0, ErrNoData
	}
	s.starved = false

	n := min(s.chunk, len(p), len(s.data))
	copy(p, s.data[:n])
	s.data = s.data[n:]
	return n, nil
}

// errSource fails every read
type errSource struct {
	err error
}

func (s errSource) Read([]byte) (int, error) {
	return 0, s.err
}

// --------------------------------------------------------------------------
// Sinks
// --------------------------------------------------------------------------

// countingSink records every Write call separately
type countingSink struct {
	writes [][]byte
}

func (s *countingSink) Write(p []byte) (int, error) {
	s.writes = append(s.writes, append([]byte{}, p...))
	return len(p), nil
}

var errSinkBroken = errors.New("sink broken")

// failingSink accepts ok writes and fails afterwards, optionally with a short write
type failingSink struct {
	ok    int
	short bool
}

func (s *failingSink) Write(p []byte) (int, error) {
	if s.ok > 0 {
		s.ok--
		return len(p), nil
	}
	if s.short {
		return len(p) - 1, nil
	}
	return 0, errSinkBroken
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// encodeAll writes entries with a fresh writer and returns the stream
func encodeAll(t *testing.T, entries ...Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, e := range entries {
		require.NoError(t, w.Write(e))
	}
	return buf.Bytes()
}

// readAll reads entries until the reader reports anything but success
func readAll(t *testing.T, r *Reader) ([]Entry, error) {
	t.Helper()
	var out []Entry
	for {
		pe, err := r.ReadEntry()
		if err != nil {
			return out, err
		}
		out = append(out, pe.Entry())
	}
}

// drain reads n entries, retrying on ErrNeedMoreData, and fails on anything else
func drain(t *testing.T, r *Reader, n int) []Entry {
	t.Helper()
	var out []Entry
	for retries := 0; len(out) < n; retries++ {
		require.Less(t, retries, 1_000_000, "reader does not make progress")
		pe, err := r.ReadEntry()
		if errors.Is(err, ErrNeedMoreData) {
			continue
		}
		require.NoError(t, err)
		out = append(out, pe.Entry())
	}
	return out
}

func args(values ...string) [][]byte {
	out := make([][]byte, len(values))
	for i, v := range values {
		out[i] = []byte(v)
	}
	return out
}

package replica

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/ValentinKolb/dJournal/lib/journal"
	"github.com/ValentinKolb/dJournal/lib/keyspace"
	"github.com/stretchr/testify/require"
)

// feedSource is fed by the test and reports ErrNoData while empty
type feedSource struct {
	buf bytes.Buffer
	eof bool
}

func (s *feedSource) Read(p []byte) (int, error) {
	if s.buf.Len() == 0 {
		if s.eof {
			return 0, io.EOF
		}
		return 0, journal.ErrNoData
	}
	return s.buf.Read(p)
}

func set(db journal.DbIndex, key, value string) journal.Entry {
	return journal.NewCommandEntry(db, "SET", []byte(key), []byte(value))
}

func encode(t *testing.T, w *journal.Writer, entries ...journal.Entry) {
	t.Helper()
	for _, e := range entries {
		require.NoError(t, w.Write(e))
	}
}

func TestStep(t *testing.T) {
	src := &feedSource{}
	w := journal.NewWriter(&src.buf)
	ks := keyspace.New(4)
	r := New(src, ks, 0)

	// nothing there yet
	n, err := r.Step()
	require.NoError(t, err)
	require.Zero(t, n)

	encode(t, w, set(0, "a", "1"), set(2, "b", "2"), journal.Entry{Op: journal.OpPing, DbIndex: 2})
	n, err = r.Step()
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, journal.DbIndex(2), r.DbIndex())

	v, ok := ks.Get(2, "b")
	require.True(t, ok)
	require.Equal(t, "2", string(v))

	src.eof = true
	n, err = r.Step()
	require.ErrorIs(t, err, io.EOF)
	require.Zero(t, n)
	require.Equal(t, uint64(3), r.Applied())
}

func TestStepPartialEntry(t *testing.T) {
	var stream bytes.Buffer
	encode(t, journal.NewWriter(&stream), set(1, "key", "a value that spans two reads"))
	data := stream.Bytes()

	src := &feedSource{}
	ks := keyspace.New(4)
	r := New(src, ks, 0)

	src.buf.Write(data[:10])
	n, err := r.Step()
	require.NoError(t, err)
	require.Zero(t, n)
	require.Zero(t, ks.Len(1))

	src.buf.Write(data[10:])
	n, err = r.Step()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, ks.Len(1))
}

func TestStepSkipsUnknownCommands(t *testing.T) {
	src := &feedSource{}
	encode(t, journal.NewWriter(&src.buf),
		journal.NewCommandEntry(0, "INCR", []byte("counter")),
		set(0, "a", "1"),
	)

	ks := keyspace.New(1)
	r := New(src, ks, 0)
	n, err := r.Step()
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, uint64(1), r.Applied())
}

func TestStepFatalErrors(t *testing.T) {
	t.Run("Decode", func(t *testing.T) {
		src := &feedSource{}
		src.buf.Write([]byte{0x3f})

		r := New(src, keyspace.New(1), 0)
		_, err := r.Step()
		var de *journal.DecodeError
		require.True(t, errors.As(err, &de))
	})

	t.Run("Apply", func(t *testing.T) {
		src := &feedSource{}
		encode(t, journal.NewWriter(&src.buf), set(7, "a", "1"))

		r := New(src, keyspace.New(1), 0)
		_, err := r.Step()
		require.ErrorIs(t, err, keyspace.ErrInvalidDb)
	})
}

func TestReconnect(t *testing.T) {
	old := &feedSource{}
	w := journal.NewWriter(&old.buf)
	encode(t, w, set(0, "a", "1"), set(0, "b", "2"))

	ks := keyspace.New(2)
	r := New(old, ks, 0)
	_, err := r.Step()
	require.NoError(t, err)

	// the old connection dies in the middle of an entry
	var partial bytes.Buffer
	encode(t, journal.NewWriter(&partial), set(1, "lost", "value"))
	old.buf.Write(partial.Bytes()[:5])
	_, err = r.Step()
	require.NoError(t, err)

	// the new connection starts with a full sync
	fresh := &feedSource{}
	encode(t, journal.NewWriter(&fresh.buf), set(1, "c", "3"))
	r.Reconnect(fresh)

	_, err = r.Step()
	require.NoError(t, err)
	require.Zero(t, ks.Len(0), "keyspace is cleared on reconnect")
	v, ok := ks.Get(1, "c")
	require.True(t, ok)
	require.Equal(t, "3", string(v))
	_, ok = ks.Get(1, "lost")
	require.False(t, ok)
}

func TestRun(t *testing.T) {
	t.Run("EndOfStream", func(t *testing.T) {
		src := &feedSource{eof: true}
		encode(t, journal.NewWriter(&src.buf), set(0, "a", "1"))

		ks := keyspace.New(1)
		err := New(src, ks, 0).Run(context.Background(), time.Millisecond)
		require.ErrorIs(t, err, io.EOF)
		require.Equal(t, 1, ks.Len(0))
	})

	t.Run("Canceled", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := New(&feedSource{}, keyspace.New(1), 0).Run(ctx, time.Millisecond)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestEncodeBatch(t *testing.T) {
	batch, err := EncodeBatch(set(3, "k", "v"), journal.NewCommandEntry(3, "GET", []byte("k")))
	require.NoError(t, err)
	require.Equal(t, []byte{
		0xca, 0x03, 0x02, 0x03, 'S', 'E', 'T', 0x01, 'k', 0x01, 'v',
		0x8a, 0x01, 0x03, 'G', 'E', 'T', 0x01, 'k',
	}, batch)

	// a reader holding a different index still decodes the batch correctly
	r := journal.NewReader(nil, 9)
	entries, err := decodeBatch(r, batch)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, journal.DbIndex(3), entries[1].DbIndex)

	_, err = EncodeBatch(journal.Entry{Op: journal.Op(2)})
	require.ErrorIs(t, err, journal.ErrInvalidOp)
}

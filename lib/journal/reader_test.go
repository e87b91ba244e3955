package journal

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// testStreams returns entry sequences covering the interesting shapes
func testStreams() map[string][]Entry {
	return map[string][]Entry{
		"SingleCommand": {
			NewCommandEntry(0, "SET", args("key", "value")...),
		},
		"SameDb": {
			NewCommandEntry(3, "SET", args("k", "v")...),
			NewCommandEntry(3, "GET", args("k")...),
			NewCommandEntry(3, "DEL", args("k")...),
		},
		"SwitchingDbs": {
			NewCommandEntry(0, "SET", args("a", "1")...),
			NewCommandEntry(15, "SET", args("b", "2")...),
			{Op: OpPing, DbIndex: 15},
			NewCommandEntry(300, "SET", args("c", "3")...),
			NewCommandEntry(0, "SET", args("d", "4")...),
		},
		"NoPayloads": {
			{Op: OpNoop, DbIndex: 2},
			{Op: OpSelect, DbIndex: 4},
			{Op: OpPing, DbIndex: 4},
			{Op: OpFin, DbIndex: 4},
		},
		"ZeroArgCommand": {
			{Op: OpCommand, DbIndex: 1, Payload: &Payload{Command: "FLUSHDB"}},
			{Op: OpCommand, DbIndex: 1},
		},
		"Transaction": {
			{Op: OpMultiCommand, DbIndex: 9, Payload: &Payload{Command: "SET", Args: args("a", "1")}},
			{Op: OpMultiCommand, DbIndex: 9, Payload: &Payload{Command: "SET", Args: args("b", "2")}},
			{Op: OpExec, DbIndex: 9},
		},
		"Expired": {
			{Op: OpExpired, DbIndex: 2, Payload: &Payload{Command: "DEL", Args: args("session:1")}},
		},
		"BinaryAndEmpty": {
			NewCommandEntry(7, "SET", []byte{0x00, 0xff, 0x80}, []byte{}),
			NewCommandEntry(7, "", []byte("nameless")),
		},
		"LargeValue": {
			NewCommandEntry(1, "SET", []byte("big"), bytes.Repeat([]byte{0xab}, 70_000)),
			NewCommandEntry(1, "GET", []byte("big")),
		},
		"MaxDbIndex": {
			NewCommandEntry(math.MaxUint32, "SET", args("k", "v")...),
		},
	}
}

func TestReaderRoundTrip(t *testing.T) {
	for name, entries := range testStreams() {
		t.Run(name, func(t *testing.T) {
			stream := encodeAll(t, entries...)

			r := NewReader(bytes.NewReader(stream), 0)
			got, err := readAll(t, r)
			require.ErrorIs(t, err, io.EOF)
			require.Equal(t, entries, got)
			require.Equal(t, uint64(len(stream)), r.Offset())
			require.Zero(t, r.Buffered())
		})
	}
}

func TestReaderExample(t *testing.T) {
	set := NewCommandEntry(3, "SET", args("k", "v")...)
	get := NewCommandEntry(3, "GET", args("k")...)
	stream := encodeAll(t, set, get)

	r := NewReader(bytes.NewReader(stream), 3)

	first, err := r.ReadEntry()
	require.NoError(t, err)
	require.Equal(t, OpCommand, first.Op)
	require.Equal(t, DbIndex(3), first.DbIndex)
	require.Equal(t, "SET", first.Cmd.Name())
	require.Equal(t, args("k", "v"), first.Cmd.Args)

	second, err := r.ReadEntry()
	require.NoError(t, err)
	require.Equal(t, get, second.Entry())
	require.Equal(t, `COMMAND db=3 GET "k"`, second.String())
}

func TestReaderSeededIndex(t *testing.T) {
	// an entry without index field continues from the seeded index
	stream := []byte{byte(OpCommand) | hasPayload, 0x01, 0x03, 'D', 'E', 'L', 0x01, 'k'}

	r := NewReader(bytes.NewReader(stream), 12)
	pe, err := r.ReadEntry()
	require.NoError(t, err)
	require.Equal(t, DbIndex(12), pe.DbIndex)
	require.Equal(t, DbIndex(12), r.DbIndex())
}

func TestReaderIndexAppliesToEveryOp(t *testing.T) {
	stream := encodeAll(t,
		Entry{Op: OpPing, DbIndex: 6},
		NewCommandEntry(6, "SET", args("k", "v")...),
	)

	r := NewReader(bytes.NewReader(stream), 0)
	got, err := readAll(t, r)
	require.ErrorIs(t, err, io.EOF)
	require.Len(t, got, 2)
	require.Equal(t, DbIndex(6), got[1].DbIndex)
}

func TestReaderPartialStream(t *testing.T) {
	for name, entries := range testStreams() {
		t.Run(name, func(t *testing.T) {
			stream := encodeAll(t, entries...)

			for _, chunk := range []int{1, 2, 3, 7, 64} {
				src := &trickleSource{data: append([]byte{}, stream...), chunk: chunk}
				r := NewReader(src, 0, WithReadSize(1))

				got := drain(t, r, len(entries))
				require.Equal(t, entries, got, "chunk size %d", chunk)

				_, err := r.ReadEntry()
				require.ErrorIs(t, err, ErrNeedMoreData)
				require.Zero(t, r.Buffered())
			}
		})
	}
}

func TestReaderResumesInsideVarint(t *testing.T) {
	// db index 300 is two bytes, split them across two reads
	stream := encodeAll(t, NewCommandEntry(300, "SET", args("k", "v")...))
	require.Equal(t, byte(0xac), stream[1])

	src := &pipeSource{}
	r := NewReader(src, 0)

	src.feed(stream[:2])
	_, err := r.ReadEntry()
	require.ErrorIs(t, err, ErrNeedMoreData)
	require.Equal(t, 2, r.Buffered())
	require.Equal(t, DbIndex(0), r.DbIndex(), "index must not move before the entry is complete")

	src.feed(stream[2:])
	pe, err := r.ReadEntry()
	require.NoError(t, err)
	require.Equal(t, DbIndex(300), pe.DbIndex)
}

func TestReaderResumesInsideString(t *testing.T) {
	stream := encodeAll(t, NewCommandEntry(1, "SET", []byte("key"), []byte("a longer value")))

	src := &pipeSource{}
	r := NewReader(src, 0)

	// everything up to and including the value length, but no value bytes
	cut := len(stream) - len("a longer value")
	src.feed(stream[:cut])
	_, err := r.ReadEntry()
	require.ErrorIs(t, err, ErrNeedMoreData)

	// retrying without new data changes nothing
	_, err = r.ReadEntry()
	require.ErrorIs(t, err, ErrNeedMoreData)
	require.Equal(t, cut, r.Buffered())

	src.feed(stream[cut:])
	pe, err := r.ReadEntry()
	require.NoError(t, err)
	require.Equal(t, []byte("a longer value"), pe.Cmd.Args[1])
}

func TestReaderSentinelDisambiguation(t *testing.T) {
	stream := encodeAll(t,
		Entry{Op: OpCommand, DbIndex: 0},
		Entry{Op: OpCommand, DbIndex: 0, Payload: &Payload{Command: "PING"}},
	)

	r := NewReader(bytes.NewReader(stream), 0)

	none, err := r.ReadEntry()
	require.NoError(t, err)
	require.Nil(t, none.Cmd)

	empty, err := r.ReadEntry()
	require.NoError(t, err)
	require.NotNil(t, empty.Cmd)
	require.Equal(t, "PING", empty.Cmd.Name())
	require.Empty(t, empty.Cmd.Args)
}

func TestReaderStringBound(t *testing.T) {
	t.Run("CommandLength", func(t *testing.T) {
		// payload declaring a 1 TiB command name, followed by nothing
		stream := []byte{byte(OpCommand) | hasPayload, 0x00}
		stream = AppendUint(stream, 1<<40)

		r := NewReader(bytes.NewReader(stream), 0)
		_, err := r.ReadEntry()

		var de *DecodeError
		require.True(t, errors.As(err, &de))
		require.Equal(t, StageCommand, de.Stage)
		require.ErrorIs(t, err, ErrStringTooLong)
		require.Less(t, r.buf.Cap(), 1<<20, "no allocation for the declared length")
	})

	t.Run("ArgumentLength", func(t *testing.T) {
		stream := encodeAll(t, NewCommandEntry(0, "SET", []byte("k"), []byte("too long")))

		r := NewReader(bytes.NewReader(stream), 0, WithMaxStringLen(4))
		_, err := r.ReadEntry()

		var de *DecodeError
		require.True(t, errors.As(err, &de))
		require.Equal(t, StageString, de.Stage)
		require.ErrorIs(t, err, ErrStringTooLong)
	})

	t.Run("UnboundedLimit", func(t *testing.T) {
		// a length beyond the int range must not wrap around
		stream := AppendUint([]byte{byte(OpCommand) | hasPayload, 0x00}, 1<<63+5)

		r := NewReader(bytes.NewReader(stream), 0, WithMaxStringLen(math.MaxUint64))
		_, err := r.ReadEntry()

		var de *DecodeError
		require.True(t, errors.As(err, &de), "got %v", err)
		require.Equal(t, StageCommand, de.Stage)
		require.ErrorIs(t, err, ErrStringTooLong)
	})

	t.Run("AtLimit", func(t *testing.T) {
		stream := encodeAll(t, NewCommandEntry(0, "SET", []byte("k"), []byte("four")))

		r := NewReader(bytes.NewReader(stream), 0, WithMaxStringLen(4))
		_, err := r.ReadEntry()
		require.NoError(t, err)
	})
}

func TestReaderArgCountBound(t *testing.T) {
	stream := []byte{byte(OpCommand) | hasPayload}
	stream = AppendUint(stream, 1_000_000)

	r := NewReader(bytes.NewReader(stream), 0, WithMaxArgs(16))
	_, err := r.ReadEntry()

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	require.Equal(t, StageCount, de.Stage)
	require.ErrorIs(t, err, ErrTooManyArgs)
}

func TestReaderFatalErrors(t *testing.T) {
	tests := []struct {
		name      string
		stream    []byte
		wantStage Stage
		wantErr   error
	}{
		{
			name:      "UnknownOp",
			stream:    []byte{0x01},
			wantStage: StageTag,
			wantErr:   ErrUnknownOp,
		},
		{
			name:      "MalformedIndex",
			stream:    append([]byte{byte(OpPing) | hasDbIndex}, bytes.Repeat([]byte{0xff}, 10)...),
			wantStage: StageIndex,
			wantErr:   ErrMalformedUint,
		},
		{
			name:      "IndexOverflow",
			stream:    AppendUint([]byte{byte(OpPing) | hasDbIndex}, 1<<32),
			wantStage: StageIndex,
			wantErr:   ErrIndexOverflow,
		},
		{
			name:      "MalformedCount",
			stream:    append([]byte{byte(OpCommand) | hasPayload}, bytes.Repeat([]byte{0x80}, 11)...),
			wantStage: StageCount,
			wantErr:   ErrMalformedUint,
		},
		{
			name:      "TruncatedArgument",
			stream:    []byte{byte(OpCommand) | hasPayload, 0x01, 0x03, 'S', 'E', 'T', 0x05, 'a', 'b'},
			wantStage: StageString,
			wantErr:   io.ErrUnexpectedEOF,
		},
		{
			name:      "TruncatedIndex",
			stream:    []byte{byte(OpCommand) | hasDbIndex},
			wantStage: StageIndex,
			wantErr:   io.ErrUnexpectedEOF,
		},
		{
			name:      "TruncatedAfterTag",
			stream:    []byte{byte(OpCommand) | hasPayload},
			wantStage: StageCount,
			wantErr:   io.ErrUnexpectedEOF,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(bytes.NewReader(tt.stream), 0)
			_, err := r.ReadEntry()

			var de *DecodeError
			require.True(t, errors.As(err, &de), "got %v", err)
			require.Equal(t, tt.wantStage, de.Stage)
			require.ErrorIs(t, err, tt.wantErr)
			require.True(t, IsFatal(err))

			// poisoned until a new source is set
			_, err = r.ReadEntry()
			require.ErrorIs(t, err, ErrReaderFailed)

			good := encodeAll(t, NewCommandEntry(2, "SET", args("k", "v")...))
			r.SetSource(bytes.NewReader(good))
			pe, err := r.ReadEntry()
			require.NoError(t, err)
			require.Equal(t, "SET", pe.Cmd.Name())
		})
	}
}

func TestReaderSourceError(t *testing.T) {
	boom := errors.New("connection reset")
	r := NewReader(errSource{err: boom}, 0)

	_, err := r.ReadEntry()
	var de *DecodeError
	require.True(t, errors.As(err, &de))
	require.Equal(t, StageSource, de.Stage)
	require.ErrorIs(t, err, boom)
}

func TestReaderCleanEOF(t *testing.T) {
	stream := encodeAll(t, Entry{Op: OpPing})
	r := NewReader(bytes.NewReader(stream), 0)

	_, err := r.ReadEntry()
	require.NoError(t, err)

	// clean end is not fatal and repeats
	_, err = r.ReadEntry()
	require.ErrorIs(t, err, io.EOF)
	require.False(t, errors.Is(err, ErrReaderFailed))
	_, err = r.ReadEntry()
	require.ErrorIs(t, err, io.EOF)
}

func TestReaderSetSourceDropsPartialEntry(t *testing.T) {
	abandoned := encodeAll(t, NewCommandEntry(4, "SET", []byte("old"), []byte("never finished")))
	fresh := encodeAll(t, NewCommandEntry(5, "SET", args("new", "value")...))

	old := &pipeSource{}
	r := NewReader(old, 1)
	old.feed(abandoned[:len(abandoned)/2])

	_, err := r.ReadEntry()
	require.ErrorIs(t, err, ErrNeedMoreData)
	require.NotZero(t, r.Buffered())

	r.SetSource(bytes.NewReader(fresh))
	require.Zero(t, r.Buffered())
	require.Equal(t, DbIndex(1), r.DbIndex(), "running index survives the swap")

	got, err := readAll(t, r)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, []Entry{NewCommandEntry(5, "SET", args("new", "value")...)}, got)
}

func TestReaderOwnedBuffers(t *testing.T) {
	src := &pipeSource{}
	r := NewReader(src, 0, WithReadSize(8))

	src.feed(encodeAll(t, NewCommandEntry(0, "SET", args("first", "value")...)))
	first, err := r.ReadEntry()
	require.NoError(t, err)

	// more traffic through the staging buffer must not touch the first entry
	for i := 0; i < 10; i++ {
		src.feed(encodeAll(t, NewCommandEntry(0, "SET", args("xxxxxxxx", "yyyyyyyy")...)))
		_, err := r.ReadEntry()
		require.NoError(t, err)
	}

	require.Equal(t, "SET", first.Cmd.Name())
	require.Equal(t, args("first", "value"), first.Cmd.Args)
}

func TestReaderReusesCallerBuffer(t *testing.T) {
	stream := encodeAll(t,
		NewCommandEntry(0, "SET", args("a", "1")...),
		NewCommandEntry(0, "SET", args("bb", "22")...),
	)
	r := NewReader(bytes.NewReader(stream), 0)

	cmd := &CmdData{}
	cmd.Reserve(64)
	pe := ParsedEntry{Cmd: cmd}

	for _, want := range [][][]byte{args("a", "1"), args("bb", "22")} {
		require.NoError(t, r.ReadEntryInto(&pe))
		require.Same(t, cmd, pe.Cmd)
		require.Equal(t, 64, cap(pe.Cmd.buf))
		require.Equal(t, want, pe.Cmd.Args)
	}
}

func TestReaderExactSizing(t *testing.T) {
	stream := encodeAll(t, NewCommandEntry(0, "SET", args("key", "value")...))
	r := NewReader(bytes.NewReader(stream), 0)

	pe, err := r.ReadEntry()
	require.NoError(t, err)
	require.Equal(t, len("SET")+len("key")+len("value"), pe.Cmd.Size())
	require.Equal(t, pe.Cmd.Size(), cap(pe.Cmd.buf))
}

func TestReaderNoDataWithoutBytes(t *testing.T) {
	r := NewReader(&pipeSource{}, 0)
	for i := 0; i < 3; i++ {
		_, err := r.ReadEntry()
		require.ErrorIs(t, err, ErrNeedMoreData)
		require.False(t, IsFatal(err))
	}
}

func TestTailSource(t *testing.T) {
	stream := encodeAll(t, Entry{Op: OpPing}, Entry{Op: OpPing})
	r := NewReader(NewTailSource(bytes.NewReader(stream[:len(stream)-1])), 0)

	_, err := r.ReadEntry()
	require.NoError(t, err)
	_, err = r.ReadEntry()
	require.ErrorIs(t, err, ErrNeedMoreData)
}

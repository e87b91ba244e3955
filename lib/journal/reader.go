package journal

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/ValentinKolb/dJournal/lib/journal/internal"
)

const (
	// DefaultMaxStringLen bounds a single command name or argument
	DefaultMaxStringLen uint64 = 256 << 20 // 256 MiB
	// DefaultMaxArgs bounds the argument count of a single command
	DefaultMaxArgs uint64 = 1 << 20
	// defaultReadSize is the minimum number of bytes requested from the source per pull
	defaultReadSize = 4 * 1024
)

// ReaderOption configures a Reader
type ReaderOption func(r *Reader)

// WithMaxStringLen sets the largest string length the reader accepts. Larger lengths
// are rejected with ErrStringTooLong before any memory is allocated for them.
func WithMaxStringLen(n uint64) ReaderOption {
	return func(r *Reader) {
		r.maxStringLen = n
	}
}

// WithMaxArgs sets the largest argument count the reader accepts
func WithMaxArgs(n uint64) ReaderOption {
	return func(r *Reader) {
		r.maxArgs = n
	}
}

// WithReadSize sets how many bytes are requested from the source at least per pull
func WithReadSize(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.readSize = n
		}
	}
}

// Reader decodes entries from a source that may deliver the stream in arbitrary chunks.
// Like the Writer it keeps track of the current database index.
//
// A Reader is bound to exactly one stream at a time and must not be used concurrently.
// After a fatal error it refuses to continue until SetSource is called.
type Reader struct {
	source       Source
	buf          *internal.IoBuf
	dbid         DbIndex
	offset       uint64 // stream offset of the next entry
	err          error  // sticky fatal error
	maxStringLen uint64
	maxArgs      uint64
	readSize     int
	hdr          header
}

// span locates a string inside the staging buffer
type span struct {
	off int
	len int
}

// header is the result of scanning one entry without consuming it
type header struct {
	op     Op
	dbid   DbIndex
	hasDb  bool
	hasCmd bool
	name   span
	args   []span
	size   int // command name plus argument bytes
	end    int // encoded length of the entry
}

// NewReader creates a reader over source. dbid seeds the running database index,
// it is the index the stream continues from (e.g. where replication resumed).
func NewReader(source Source, dbid DbIndex, opts ...ReaderOption) *Reader {
	r := &Reader{
		source:       source,
		dbid:         dbid,
		maxStringLen: DefaultMaxStringLen,
		maxArgs:      DefaultMaxArgs,
		readSize:     defaultReadSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.buf = internal.NewIoBuf(r.readSize)
	return r
}

// --------------------------------------------------------------------------
// Public Methods
// --------------------------------------------------------------------------

// ReadEntry reads the next entry. The returned command data is owned by the caller.
//
// Results:
//   - nil: a complete entry was decoded and consumed
//   - ErrNeedMoreData: the source ran dry mid entry (or before it), call again later
//   - io.EOF: the source ended cleanly between two entries
//   - *DecodeError: the stream is corrupt or the source failed, the reader is poisoned
//   - ErrReaderFailed: a previous call failed fatally and SetSource was not called
func (r *Reader) ReadEntry() (ParsedEntry, error) {
	var pe ParsedEntry
	err := r.ReadEntryInto(&pe)
	return pe, err
}

// ReadEntryInto works like ReadEntry but decodes into pe. If pe.Cmd is set, its backing
// buffer and argument slice are reused when large enough (see CmdData.Reserve). Slices
// from the previous content of pe.Cmd are overwritten. For entries without command data
// pe.Cmd is set to nil.
func (r *Reader) ReadEntryInto(pe *ParsedEntry) error {
	if r.err != nil {
		return ErrReaderFailed
	}

	stage, err := r.scan(&r.hdr)
	if err != nil {
		return r.handleScanError(stage, err)
	}

	r.commit(&r.hdr, pe)
	return nil
}

// SetSource rebinds the reader to a new source. All buffered bytes of the old source are
// dropped, a partially read entry is abandoned. The running database index is kept.
func (r *Reader) SetSource(source Source) {
	r.source = source
	r.buf.Clear()
	r.offset = 0
	r.err = nil
}

// DbIndex returns the running database index
func (r *Reader) DbIndex() DbIndex {
	return r.dbid
}

// Buffered returns the number of bytes that were pulled from the source but not yet
// consumed, i.e. the part of an incomplete entry.
func (r *Reader) Buffered() int {
	return r.buf.Len()
}

// Offset returns the number of bytes consumed from the current source
func (r *Reader) Offset() uint64 {
	return r.offset
}

// --------------------------------------------------------------------------
// Scanning (never consumes)
// --------------------------------------------------------------------------

// scan walks one entry from the front of the staging buffer, pulling from the source
// as needed. On success h describes the entry, nothing has been consumed yet.
func (r *Reader) scan(h *header) (Stage, error) {
	h.hasDb, h.hasCmd = false, false
	h.args = h.args[:0]
	h.size = 0

	// Tag
	if err := r.ensure(1); err != nil {
		return StageTag, err
	}
	tag := r.buf.Bytes()[0]
	off := 1

	h.op = Op(tag & opMask)
	if !h.op.Valid() {
		return StageTag, fmt.Errorf("%w: %d", ErrUnknownOp, tag&opMask)
	}

	// Database index
	if tag&hasDbIndex != 0 {
		v, err := r.readUint(&off)
		if err != nil {
			return StageIndex, err
		}
		if v > math.MaxUint32 {
			return StageIndex, fmt.Errorf("%w: %d", ErrIndexOverflow, v)
		}
		h.dbid = DbIndex(v)
		h.hasDb = true
	}

	if tag&hasPayload == 0 {
		h.end = off
		return 0, nil
	}
	h.hasCmd = true

	// Argument count
	count, err := r.readUint(&off)
	if err != nil {
		return StageCount, err
	}
	if count > r.maxArgs {
		return StageCount, fmt.Errorf("%w: %d > %d", ErrTooManyArgs, count, r.maxArgs)
	}

	// Command name
	if h.name, err = r.readString(&off); err != nil {
		return StageCommand, err
	}
	h.size = h.name.len

	// Arguments
	for i := uint64(0); i < count; i++ {
		s, err := r.readString(&off)
		if err != nil {
			return StageString, err
		}
		h.args = append(h.args, s)
		h.size += s.len
	}

	h.end = off
	return 0, nil
}

// readUint decodes a packed integer at *off and advances it
func (r *Reader) readUint(off *int) (uint64, error) {
	for {
		v, n, err := ParseUint(r.buf.Bytes()[*off:])
		if err != nil {
			return 0, err
		}
		if n > 0 {
			*off += n
			return v, nil
		}

		// Incomplete, at least one more byte is needed
		if err := r.ensure(r.buf.Len() + 1); err != nil {
			return 0, err
		}
	}
}

// readString decodes a length prefixed string at *off and advances past it.
// The length is checked before the payload is pulled.
func (r *Reader) readString(off *int) (span, error) {
	l, err := r.readUint(off)
	if err != nil {
		return span{}, err
	}
	if l > r.maxStringLen {
		return span{}, fmt.Errorf("%w: %d > %d", ErrStringTooLong, l, r.maxStringLen)
	}
	// the limit may exceed what fits into an int
	if l > uint64(math.MaxInt-*off) {
		return span{}, fmt.Errorf("%w: %d", ErrStringTooLong, l)
	}

	if err := r.ensure(*off + int(l)); err != nil {
		return span{}, err
	}

	s := span{off: *off, len: int(l)}
	*off += int(l)
	return s, nil
}

// ensure pulls from the source until at least n bytes are buffered
func (r *Reader) ensure(n int) error {
	for r.buf.Len() < n {
		want := n - r.buf.Len()
		if want < r.readSize {
			want = r.readSize
		}
		tail := r.buf.AppendBuffer(want)

		got, err := r.source.Read(tail)
		if got < 0 || got > len(tail) {
			return fmt.Errorf("source returned invalid count %d", got)
		}
		r.buf.CommitWrite(got)

		if r.buf.Len() >= n {
			return nil
		}
		if err != nil {
			if errors.Is(err, ErrNoData) {
				return ErrNeedMoreData
			}
			return err
		}
		if got == 0 {
			return ErrNeedMoreData
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Committing
// --------------------------------------------------------------------------

// commit copies the scanned entry into pe, applies the database index and
// consumes the entry from the staging buffer
func (r *Reader) commit(h *header, pe *ParsedEntry) {
	if h.hasDb {
		r.dbid = h.dbid
	}

	pe.Op = h.op
	pe.DbIndex = r.dbid

	if h.hasCmd {
		cmd := pe.Cmd
		if cmd == nil {
			cmd = &CmdData{}
		}
		cmd.fill(r.buf.Bytes(), h.name, h.args, h.size)
		pe.Cmd = cmd
	} else {
		pe.Cmd = nil
	}

	r.buf.ConsumeInput(h.end)
	r.offset += uint64(h.end)

	entriesRead.Inc()
	bytesRead.Add(h.end)
	log.Debugf("read %s (%d bytes)", pe, h.end)
}

// fill copies the command name and arguments out of data into the backing buffer.
// The buffer is reused if it can hold size bytes, otherwise it is allocated to fit exactly.
func (c *CmdData) fill(data []byte, name span, args []span, size int) {
	if cap(c.buf) < size {
		c.buf = make([]byte, 0, size)
	}
	buf := append(c.buf[:0], data[name.off:name.off+name.len]...)
	c.Command = buf[:name.len:name.len]

	if cap(c.Args) < len(args) {
		c.Args = make([][]byte, len(args))
	} else {
		c.Args = c.Args[:len(args)]
	}
	for i, a := range args {
		start := len(buf)
		buf = append(buf, data[a.off:a.off+a.len]...)
		c.Args[i] = buf[start:len(buf):len(buf)]
	}

	c.buf = buf
}

// --------------------------------------------------------------------------
// Error Handling
// --------------------------------------------------------------------------

// handleScanError sorts a scan error into control signal, clean end or fatal error
func (r *Reader) handleScanError(stage Stage, err error) error {
	if errors.Is(err, ErrNeedMoreData) {
		readerNeedMore.Inc()
		return ErrNeedMoreData
	}

	// Source ended exactly between two entries
	if errors.Is(err, io.EOF) && r.buf.Len() == 0 {
		return io.EOF
	}
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}

	// A source error before any byte of the entry arrived is not a field error
	if r.buf.Len() == 0 && !isStreamError(err) {
		stage = StageSource
	}

	r.err = &DecodeError{Stage: stage, Offset: r.offset, Err: err}
	decodeErrors(stage).Inc()
	log.Errorf("%v", r.err)
	return r.err
}

// isStreamError reports whether err was raised by the decoder itself
func isStreamError(err error) bool {
	return errors.Is(err, ErrUnknownOp) ||
		errors.Is(err, ErrMalformedUint) ||
		errors.Is(err, ErrStringTooLong) ||
		errors.Is(err, ErrTooManyArgs) ||
		errors.Is(err, ErrIndexOverflow)
}

package journal

import (
	"fmt"
	"io"

	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("journal")

// Sink receives the encoded stream. A Write either takes all bytes or fails,
// a failed or short write leaves the stream corrupt.
type Sink = io.Writer

// Writer encodes entries to a sink and keeps track of the current database index,
// so the index is only written when it changes.
//
// A Writer is bound to exactly one stream and must not be used concurrently.
type Writer struct {
	sink    Sink
	dbid    DbIndex
	hasDbid bool // false until the first entry forces the index onto the wire
	scratch []byte
	written uint64
	err     error
}

// NewWriter creates a writer whose running database index is unset,
// the first entry always carries its index.
func NewWriter(sink Sink) *Writer {
	return &Writer{
		sink:    sink,
		scratch: make([]byte, 0, 256),
	}
}

// Write encodes e and hands it to the sink in a single call.
//
// Errors:
//   - ErrInvalidOp if e.Op does not fit the tag byte (nothing is written)
//   - *WriteError if the sink failed, the writer is unusable afterwards
//   - ErrWriterFailed for every call after a sink failure
func (w *Writer) Write(e Entry) error {
	if w.err != nil {
		return ErrWriterFailed
	}
	if !e.Op.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidOp, e.Op)
	}

	buf := w.encode(e)

	n, err := w.sink.Write(buf)
	if err == nil && n < len(buf) {
		err = io.ErrShortWrite
	}
	if err != nil {
		w.err = err
		writeErrors.Inc()
		log.Errorf("writer failed after %d bytes: %v", w.written, err)
		return &WriteError{Err: err}
	}

	w.written += uint64(n)
	entriesWritten.Inc()
	bytesWritten.Add(n)
	entrySize.Update(float64(n))
	log.Debugf("wrote %s (%d bytes)", e, n)

	return nil
}

// DbIndex returns the running database index and whether it was set yet
func (w *Writer) DbIndex() (DbIndex, bool) {
	return w.dbid, w.hasDbid
}

// Written returns the number of bytes handed to the sink
func (w *Writer) Written() uint64 {
	return w.written
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// encode builds the wire form of e in the scratch buffer and updates the running index
func (w *Writer) encode(e Entry) []byte {
	if need := EntryLen(e); cap(w.scratch) < need {
		w.scratch = make([]byte, 0, need)
	}
	buf := w.scratch[:1]

	tag := byte(e.Op) & opMask

	// Database index, only if it changed
	if !w.hasDbid || e.DbIndex != w.dbid {
		tag |= hasDbIndex
		buf = AppendUint(buf, uint64(e.DbIndex))
	}

	// Every entry moves the running index, no matter its op
	w.dbid = e.DbIndex
	w.hasDbid = true

	// Command payload
	if e.Payload != nil {
		tag |= hasPayload
		buf = AppendPayload(buf, e.Payload)
	}

	buf[0] = tag
	w.scratch = buf[:0]
	return buf
}

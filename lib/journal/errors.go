package journal

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Control Signals
// --------------------------------------------------------------------------

var (
	// ErrNeedMoreData is returned by the Reader when the source has no more bytes
	// right now. It is not a failure: nothing was consumed and the next call resumes
	// at the same byte.
	ErrNeedMoreData = errors.New("journal: need more data")

	// ErrNoData can be returned (or wrapped) by a Source to signal that no bytes are
	// available at the moment. Returning (0, nil) has the same meaning.
	ErrNoData = errors.New("journal: no data available")
)

// --------------------------------------------------------------------------
// Stream Errors
// --------------------------------------------------------------------------

var (
	ErrUnknownOp     = errors.New("unknown operation tag")
	ErrMalformedUint = errors.New("malformed packed integer")
	ErrStringTooLong = errors.New("string length exceeds limit")
	ErrTooManyArgs   = errors.New("argument count exceeds limit")
	ErrIndexOverflow = errors.New("database index out of range")
)

// --------------------------------------------------------------------------
// Contract Errors
// --------------------------------------------------------------------------

var (
	// ErrReaderFailed is returned by every ReadEntry after a fatal decode error
	// until SetSource binds a new source.
	ErrReaderFailed = errors.New("journal: reader failed, call SetSource before reading again")

	// ErrWriterFailed is returned by every Write after the sink failed once.
	// The stream is corrupt, a new writer over a new sink is needed.
	ErrWriterFailed = errors.New("journal: writer failed, stream is corrupt")

	// ErrInvalidOp is returned by Write for ops that do not fit the tag byte
	ErrInvalidOp = errors.New("journal: invalid operation")
)

// --------------------------------------------------------------------------
// Typed Errors
// --------------------------------------------------------------------------

// Stage names the part of an entry a decode error occurred in
type Stage uint8

const (
	StageTag     Stage = iota // The tag byte
	StageIndex                // The database index
	StageCount                // The argument count
	StageCommand              // The command name
	StageString               // An argument
	StageSource               // The source failed outside of any field
)

func (s Stage) String() string {
	switch s {
	case StageTag:
		return "tag"
	case StageIndex:
		return "index"
	case StageCount:
		return "count"
	case StageCommand:
		return "command"
	case StageString:
		return "string"
	case StageSource:
		return "source"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(s))
	}
}

// DecodeError is a fatal error of the Reader. The stream can not be decoded any
// further, the connection should be dropped.
type DecodeError struct {
	Stage  Stage  // Field that failed
	Offset uint64 // Stream offset of the entry that failed
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("journal: decode %s at offset %d: %v", e.Stage, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// WriteError wraps a sink failure
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("journal: sink write failed: %v", e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err ends the stream. ErrNeedMoreData and nil are not fatal.
func IsFatal(err error) bool {
	return err != nil && !errors.Is(err, ErrNeedMoreData)
}

package journal

import (
	"fmt"
	"strconv"
	"strings"
)

// ProtocolVersion identifies the wire layout implemented by this package.
// Primary and replica must agree on it bit for bit, it is exchanged by the
// replication handshake and never written into the journal stream itself.
const ProtocolVersion uint32 = 1

// DbIndex selects the logical keyspace an entry applies to
type DbIndex uint32

// --------------------------------------------------------------------------
// Operation Kinds
// --------------------------------------------------------------------------

// Op is the operation kind of a journal entry. Only the lower 6 bits are available
// on the wire, the upper two bits of the tag byte are flags.
type Op uint8

const (
	OpNoop         Op = 0  // Placeholder, carries nothing
	OpSelect       Op = 6  // Explicit database switch
	OpExpired      Op = 9  // A key expired on the primary
	OpCommand      Op = 10 // A write command
	OpMultiCommand Op = 11 // A write command that is part of a transaction
	OpExec         Op = 12 // End of a transaction
	OpPing         Op = 13 // Heartbeat
	OpFin          Op = 14 // End of a finite stream (snapshots)
)

// Valid reports whether the op belongs to the known set
func (op Op) Valid() bool {
	switch op {
	case OpNoop, OpSelect, OpExpired, OpCommand, OpMultiCommand, OpExec, OpPing, OpFin:
		return true
	default:
		return false
	}
}

func (op Op) String() string {
	switch op {
	case OpNoop:
		return "NOOP"
	case OpSelect:
		return "SELECT"
	case OpExpired:
		return "EXPIRED"
	case OpCommand:
		return "COMMAND"
	case OpMultiCommand:
		return "MULTI_COMMAND"
	case OpExec:
		return "EXEC"
	case OpPing:
		return "PING"
	case OpFin:
		return "FIN"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(op))
	}
}

// --------------------------------------------------------------------------
// Write Side
// --------------------------------------------------------------------------

// Payload is the command data of an entry: a command name and its arguments
type Payload struct {
	Command string
	Args    [][]byte
}

// Entry is a single mutation event handed to the Writer.
// A nil Payload means "no command data", which is encoded differently from a
// command with zero arguments.
type Entry struct {
	Op      Op
	DbIndex DbIndex
	Payload *Payload
}

// NewCommandEntry creates an OpCommand entry with the given command and arguments
func NewCommandEntry(db DbIndex, command string, args ...[]byte) Entry {
	return Entry{
		Op:      OpCommand,
		DbIndex: db,
		Payload: &Payload{Command: command, Args: args},
	}
}

func (e Entry) String() string {
	return formatEntry(e.Op, e.DbIndex, e.Payload != nil, e.commandName(), e.args())
}

func (e Entry) commandName() string {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Command
}

func (e Entry) args() [][]byte {
	if e.Payload == nil {
		return nil
	}
	return e.Payload.Args
}

// --------------------------------------------------------------------------
// Read Side
// --------------------------------------------------------------------------

// CmdData holds a decoded command. Command and every element of Args point into a
// single backing buffer owned by the CmdData, which stays valid until the CmdData is
// handed to the Reader again for reuse.
type CmdData struct {
	Command []byte
	Args    [][]byte
	buf     []byte
}

// Name returns the command name as a string
func (c *CmdData) Name() string {
	return string(c.Command)
}

// Size returns the number of bytes the command name and arguments occupy
func (c *CmdData) Size() int {
	size := len(c.Command)
	for _, a := range c.Args {
		size += len(a)
	}
	return size
}

// Reserve makes sure the backing buffer can hold at least n bytes of command data
// without reallocating. The current content is dropped.
func (c *CmdData) Reserve(n int) {
	if cap(c.buf) < n {
		c.buf = make([]byte, 0, n)
	}
	c.Command = nil
	c.Args = c.Args[:0]
}

// Payload returns a deep copy of the command as a write side payload
func (c *CmdData) Payload() *Payload {
	p := &Payload{Command: string(c.Command)}
	if len(c.Args) > 0 {
		p.Args = make([][]byte, len(c.Args))
		for i, a := range c.Args {
			p.Args[i] = append([]byte{}, a...)
		}
	}
	return p
}

// ParsedEntry is the decoded counterpart of Entry. A nil Cmd means the entry
// carried no command data.
type ParsedEntry struct {
	Op      Op
	DbIndex DbIndex
	Cmd     *CmdData
}

// Entry converts the parsed entry back into an Entry, copying the command data
func (pe ParsedEntry) Entry() Entry {
	e := Entry{Op: pe.Op, DbIndex: pe.DbIndex}
	if pe.Cmd != nil {
		e.Payload = pe.Cmd.Payload()
	}
	return e
}

func (pe ParsedEntry) String() string {
	if pe.Cmd == nil {
		return formatEntry(pe.Op, pe.DbIndex, false, "", nil)
	}
	return formatEntry(pe.Op, pe.DbIndex, true, pe.Cmd.Name(), pe.Cmd.Args)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// formatEntry renders an entry as "OP db=N CMD arg arg ...". Arguments are quoted
// so binary content stays on one line.
func formatEntry(op Op, db DbIndex, hasCmd bool, name string, args [][]byte) string {
	var sb strings.Builder
	sb.WriteString(op.String())
	sb.WriteString(" db=")
	sb.WriteString(strconv.FormatUint(uint64(db), 10))
	if !hasCmd {
		return sb.String()
	}
	sb.WriteString(" ")
	sb.WriteString(name)
	for _, a := range args {
		sb.WriteString(" ")
		sb.WriteString(strconv.Quote(string(a)))
	}
	return sb.String()
}

package keyspace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ValentinKolb/dJournal/lib/journal"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultDatabases is the number of logical databases used when New is called with n <= 0
const DefaultDatabases = 16

var log = logger.GetLogger("keyspace")

var (
	ErrUnknownCommand = errors.New("keyspace: unknown command")
	ErrWrongArgs      = errors.New("keyspace: wrong number of arguments")
	ErrInvalidDb      = errors.New("keyspace: database index out of range")
	ErrBadSnapshot    = errors.New("keyspace: snapshot is not terminated")
)

// Keyspace is an in-memory set of numbered databases. It gives the command payloads of a
// journal a meaning: entries applied in stream order leave it in the same state as the
// database that produced the stream.
//
// Thread-safety: All methods are safe for concurrent use. Reset and Load are not atomic
// with respect to concurrent writers.
type Keyspace struct {
	dbs []*xsync.MapOf[string, []byte]
}

// New creates a keyspace with n databases (DefaultDatabases if n <= 0)
func New(n int) *Keyspace {
	if n <= 0 {
		n = DefaultDatabases
	}
	ks := &Keyspace{dbs: make([]*xsync.MapOf[string, []byte], n)}
	for i := range ks.dbs {
		ks.dbs[i] = xsync.NewMapOf[string, []byte]()
	}
	return ks
}

// --------------------------------------------------------------------------
// Apply
// --------------------------------------------------------------------------

// Apply executes a decoded entry. Entries without command data and ops that do not
// modify data are accepted and ignored. The arguments are copied, pe may be reused
// by the caller afterwards.
func (ks *Keyspace) Apply(pe journal.ParsedEntry) error {
	if pe.Cmd == nil {
		return ks.apply(pe.Op, pe.DbIndex, false, "", nil)
	}
	return ks.apply(pe.Op, pe.DbIndex, true, pe.Cmd.Name(), pe.Cmd.Args)
}

// ApplyEntry executes a write side entry, see Apply
func (ks *Keyspace) ApplyEntry(e journal.Entry) error {
	if e.Payload == nil {
		return ks.apply(e.Op, e.DbIndex, false, "", nil)
	}
	return ks.apply(e.Op, e.DbIndex, true, e.Payload.Command, e.Payload.Args)
}

func (ks *Keyspace) apply(op journal.Op, db journal.DbIndex, hasCmd bool, name string, args [][]byte) error {
	switch op {
	case journal.OpCommand, journal.OpMultiCommand, journal.OpExpired:
	default:
		// Noop, Select, Ping, Exec and Fin carry no data changes
		return nil
	}
	if !hasCmd {
		return nil
	}

	m, err := ks.db(db)
	if err != nil {
		return err
	}

	cmd := strings.ToUpper(name)
	if op == journal.OpExpired && cmd != "DEL" {
		return fmt.Errorf("%w: %q in expiry entry", ErrUnknownCommand, name)
	}

	switch cmd {
	case "SET":
		if len(args) != 2 {
			return fmt.Errorf("%w: SET takes 2, got %d", ErrWrongArgs, len(args))
		}
		m.Store(string(args[0]), clone(args[1]))
	case "DEL":
		if len(args) == 0 {
			return fmt.Errorf("%w: DEL takes at least 1", ErrWrongArgs)
		}
		for _, key := range args {
			m.Delete(string(key))
		}
	case "APPEND":
		if len(args) != 2 {
			return fmt.Errorf("%w: APPEND takes 2, got %d", ErrWrongArgs, len(args))
		}
		suffix := args[1]
		m.Compute(string(args[0]), func(old []byte, _ bool) ([]byte, bool) {
			// stored values are never modified in place
			value := make([]byte, 0, len(old)+len(suffix))
			value = append(value, old...)
			return append(value, suffix...), false
		})
	case "FLUSHDB":
		if len(args) != 0 {
			return fmt.Errorf("%w: FLUSHDB takes 0, got %d", ErrWrongArgs, len(args))
		}
		m.Clear()
	case "FLUSHALL":
		if len(args) != 0 {
			return fmt.Errorf("%w: FLUSHALL takes 0, got %d", ErrWrongArgs, len(args))
		}
		ks.Reset()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return nil
}

// --------------------------------------------------------------------------
// Read Access
// --------------------------------------------------------------------------

// Get returns the value of key in database db. The returned slice must not be modified.
func (ks *Keyspace) Get(db journal.DbIndex, key string) ([]byte, bool) {
	m, err := ks.db(db)
	if err != nil {
		return nil, false
	}
	return m.Load(key)
}

// Len returns the number of keys in database db (0 for unknown databases)
func (ks *Keyspace) Len(db journal.DbIndex) int {
	m, err := ks.db(db)
	if err != nil {
		return 0
	}
	return m.Size()
}

// Databases returns the number of databases
func (ks *Keyspace) Databases() int {
	return len(ks.dbs)
}

// Reset removes all keys from all databases
func (ks *Keyspace) Reset() {
	for _, m := range ks.dbs {
		m.Clear()
	}
}

// --------------------------------------------------------------------------
// Full Sync and Snapshots
// --------------------------------------------------------------------------

// Dump calls fn with one SET entry per key, database by database. Dump stops at the
// first error returned by fn and returns it. Keys written concurrently may or may not
// be included.
func (ks *Keyspace) Dump(fn func(journal.Entry) error) error {
	var err error
	for i, m := range ks.dbs {
		db := journal.DbIndex(i)
		m.Range(func(key string, value []byte) bool {
			err = fn(journal.NewCommandEntry(db, "SET", []byte(key), value))
			return err == nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Save writes the keyspace to w as a journal stream of SET entries terminated by OpFin
func (ks *Keyspace) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	jw := journal.NewWriter(bw)

	if err := ks.Dump(jw.Write); err != nil {
		return err
	}
	if err := jw.Write(journal.Entry{Op: journal.OpFin}); err != nil {
		return err
	}
	return bw.Flush()
}

// Load replaces the content of the keyspace with a stream written by Save
func (ks *Keyspace) Load(r io.Reader) error {
	return ks.LoadFrom(journal.NewReader(r, 0))
}

// LoadFrom replaces the content of the keyspace with the entries read from jr up to
// and including the next OpFin entry. Bytes after OpFin stay unread. A source that runs
// dry before OpFin yields ErrBadSnapshot, so jr needs a blocking source.
func (ks *Keyspace) LoadFrom(jr *journal.Reader) error {
	ks.Reset()

	var (
		pe    journal.ParsedEntry
		cmd   journal.CmdData
		count int
	)
	for {
		pe.Cmd = &cmd
		err := jr.ReadEntryInto(&pe)
		if errors.Is(err, journal.ErrNeedMoreData) || errors.Is(err, io.EOF) {
			return fmt.Errorf("%w after %d entries", ErrBadSnapshot, count)
		}
		if err != nil {
			return err
		}

		if pe.Op == journal.OpFin {
			log.Debugf("loaded %d entries", count)
			return nil
		}
		if err := ks.Apply(pe); err != nil {
			return fmt.Errorf("apply snapshot entry %d: %w", count, err)
		}
		count++
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func (ks *Keyspace) db(db journal.DbIndex) (*xsync.MapOf[string, []byte], error) {
	if int64(db) >= int64(len(ks.dbs)) {
		return nil, fmt.Errorf("%w: %d >= %d", ErrInvalidDb, db, len(ks.dbs))
	}
	return ks.dbs[db], nil
}

func clone(b []byte) []byte {
	return append(make([]byte, 0, len(b)), b...)
}

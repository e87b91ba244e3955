package replica

import (
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/dJournal/lib/journal"
	"github.com/ValentinKolb/dJournal/lib/keyspace"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// ResultCode is the Value of the sm.Result returned for each Raft log entry
type ResultCode uint64

const (
	ResultSuccess     ResultCode = iota // Batch decoded and applied
	ResultEmpty                         // Log entry carried no bytes
	ResultDecodeError                   // Batch could not be decoded, nothing was applied
	ResultApplyError                    // Batch was applied up to the failing entry
)

func (c ResultCode) String() string {
	switch c {
	case ResultSuccess:
		return "Success"
	case ResultEmpty:
		return "Empty"
	case ResultDecodeError:
		return "DecodeError"
	case ResultApplyError:
		return "ApplyError"
	default:
		return "Unknown"
	}
}

// QueryType defines the possible queries for the state machine
type QueryType uint8

const (
	QueryTGet     QueryType = iota // Retrieve the value of a key
	QueryTLen                      // Number of keys in a database
	QueryTDbIndex                  // Running database index of the journal
)

// Query defines the structure for lookup requests sent via SyncRead or StaleRead
type Query struct {
	Type QueryType
	Db   journal.DbIndex
	Key  string
}

// QueryResult is the result of a QueryTGet lookup. QueryTLen returns an int and
// QueryTDbIndex a journal.DbIndex.
type QueryResult struct {
	Ok    bool
	Value []byte
}

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// StateMachine is a Dragonboat state machine whose log entries are journal batches
// (see EncodeBatch). A single Reader is kept for the whole lifetime, every log entry
// becomes its new source, so the running database index carries over between entries.
type StateMachine struct {
	shardID   uint64
	replicaID uint64
	ks        *keyspace.Keyspace
	reader    *journal.Reader
}

// CreateStateMachineFactory returns a function that can be used by Dragonboat to create
// a state machine with the given number of databases for a node host
func CreateStateMachineFactory(databases int) sm.CreateStateMachineFunc {
	return func(shardID uint64, replicaID uint64) sm.IStateMachine {
		return NewStateMachine(shardID, replicaID, databases)
	}
}

// NewStateMachine creates a state machine with an empty keyspace
func NewStateMachine(shardID, replicaID uint64, databases int) *StateMachine {
	return &StateMachine{
		shardID:   shardID,
		replicaID: replicaID,
		ks:        keyspace.New(databases),
		reader:    journal.NewReader(nil, 0),
	}
}

// Update decodes the batch carried by the log entry and applies it to the keyspace.
// Failures are reported through the result, returning an error would stop the node.
func (fsm *StateMachine) Update(e sm.Entry) (sm.Result, error) {
	if len(e.Cmd) == 0 {
		return result(ResultEmpty, "empty batch ignored"), nil
	}

	start := time.Now()

	entries, err := decodeBatch(fsm.reader, e.Cmd)
	if err != nil {
		log.Errorf("[%d:%d] failed to decode log entry %d: %v", fsm.shardID, fsm.replicaID, e.Index, err)
		return result(ResultDecodeError, fmt.Sprintf("failed to decode batch: %v", err)), nil
	}

	for i, pe := range entries {
		if err := fsm.ks.Apply(pe); err != nil {
			return result(ResultApplyError, fmt.Sprintf("entry %d (%s): %v", i, pe, err)), nil
		}
	}

	// Log if the update took long
	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("Statemachine took long to update. Batch of %d entries took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return result(ResultSuccess, fmt.Sprintf("applied %d entries", len(entries))), nil
}

// Lookup handles read-only queries
func (fsm *StateMachine) Lookup(itf interface{}) (interface{}, error) {
	q, ok := itf.(Query)
	if !ok {
		return nil, fmt.Errorf("invalid query type: %T", itf)
	}

	switch q.Type {
	case QueryTGet:
		v, ok := fsm.ks.Get(q.Db, q.Key)
		return QueryResult{Ok: ok, Value: v}, nil
	case QueryTLen:
		return fsm.ks.Len(q.Db), nil
	case QueryTDbIndex:
		return fsm.reader.DbIndex(), nil
	default:
		return nil, fmt.Errorf("unknown query type: %d", q.Type)
	}
}

// SaveSnapshot writes the running database index as an OpSelect entry followed by the
// keyspace (see keyspace.Save)
func (fsm *StateMachine) SaveSnapshot(w io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	header := journal.Entry{Op: journal.OpSelect, DbIndex: fsm.reader.DbIndex()}
	if err := journal.NewWriter(w).Write(header); err != nil {
		return err
	}
	return fsm.ks.Save(w)
}

// RecoverFromSnapshot restores the keyspace and seeds a fresh reader with the stored
// database index
func (fsm *StateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	jr := journal.NewReader(r, 0)

	header, err := jr.ReadEntry()
	if err != nil {
		return fmt.Errorf("read snapshot header: %w", err)
	}
	if header.Op != journal.OpSelect {
		return fmt.Errorf("read snapshot header: expected %s, got %s", journal.OpSelect, header.Op)
	}

	if err := fsm.ks.LoadFrom(jr); err != nil {
		return err
	}
	fsm.reader = journal.NewReader(nil, header.DbIndex)
	log.Infof("[%d:%d] recovered from snapshot, database index %d", fsm.shardID, fsm.replicaID, header.DbIndex)
	return nil
}

// Close performs any necessary cleanup
func (fsm *StateMachine) Close() error {
	return nil
}

func result(code ResultCode, msg string) sm.Result {
	return sm.Result{Value: uint64(code), Data: []byte(msg)}
}

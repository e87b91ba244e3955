package replica

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dJournal/lib/journal"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
)

const retries = 5

// ErrTimeout is returned when a proposal or read stayed busy for all retries
var ErrTimeout = errors.New("replica: raft timeout")

// RaftJournal replicates journal batches through a Dragonboat shard running a
// StateMachine. Each Append becomes one Raft log entry.
type RaftJournal struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
}

// NewRaftJournal creates a journal proposer for the given shard. timeout bounds every
// single proposal or read attempt.
func NewRaftJournal(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration) *RaftJournal {
	return &RaftJournal{
		nh:      nh,
		shardID: shardID,
		cs:      nh.GetNoOPSession(shardID),
		timeout: timeout,
	}
}

// Append encodes entries as one self-contained batch and proposes it. It returns once
// the batch was committed and applied, retrying while the system is busy.
func (j *RaftJournal) Append(ctx context.Context, entries ...journal.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch, err := EncodeBatch(entries...)
	if err != nil {
		return err
	}

	for i := 0; i < retries; i++ {
		proposeCtx, cancel := context.WithTimeout(ctx, j.timeout)
		res, err := j.nh.SyncPropose(proposeCtx, j.cs, batch)
		cancel()

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			if err := sleep(ctx, j.timeout/10); err != nil {
				return err
			}
			continue
		}

		if err != nil {
			return fmt.Errorf("propose batch: %w", err)
		}
		if code := ResultCode(res.Value); code != ResultSuccess {
			return fmt.Errorf("apply batch: %s: %s", code, res.Data)
		}
		return nil
	}
	return ErrTimeout
}

// Get returns the value of key in database db with a linearizable read
func (j *RaftJournal) Get(ctx context.Context, db journal.DbIndex, key string) ([]byte, bool, error) {
	res, err := read[QueryResult](ctx, j, Query{Type: QueryTGet, Db: db, Key: key})
	if err != nil {
		return nil, false, err
	}
	return res.Value, res.Ok, nil
}

// Len returns the number of keys in database db with a linearizable read
func (j *RaftJournal) Len(ctx context.Context, db journal.DbIndex) (int, error) {
	return read[int](ctx, j, Query{Type: QueryTLen, Db: db})
}

// read queries the state machine and converts the response into the expected type R.
// Reads that fail because the system is busy are retried.
func read[R any](ctx context.Context, j *RaftJournal, q Query) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {
		readCtx, cancel := context.WithTimeout(ctx, j.timeout)
		res, err := j.nh.SyncRead(readCtx, j.shardID, q)
		cancel()

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			if err := sleep(ctx, j.timeout/10); err != nil {
				return zero, err
			}
			continue
		}
		if err != nil {
			return zero, fmt.Errorf("read: %w", err)
		}

		casted, ok := res.(R)
		if !ok {
			return zero, fmt.Errorf("unexpected type: received %T, expected %T", res, zero)
		}
		return casted, nil
	}
	return zero, ErrTimeout
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

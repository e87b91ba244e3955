package replica

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/dJournal/lib/journal"
	"github.com/ValentinKolb/dJournal/lib/keyspace"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	log = logger.GetLogger("replica")

	entriesApplied = metrics.NewCounter("djournal_replica_entries_applied_total")
	entriesSkipped = metrics.NewCounter("djournal_replica_entries_skipped_total")
)

// Replica applies a journal stream to a keyspace. It owns exactly one Reader, the
// stream position (including a partially received entry) survives between calls.
//
// A Replica is not safe for concurrent use.
type Replica struct {
	reader  *journal.Reader
	ks      *keyspace.Keyspace
	pe      journal.ParsedEntry
	cmd     journal.CmdData // reused for every entry
	applied uint64
}

// New creates a replica reading from source. dbid is the database index the stream
// continues from, 0 for a stream that starts with a full sync.
func New(source journal.Source, ks *keyspace.Keyspace, dbid journal.DbIndex, opts ...journal.ReaderOption) *Replica {
	return &Replica{
		reader: journal.NewReader(source, dbid, opts...),
		ks:     ks,
	}
}

// Step reads and applies entries until the source has no more bytes right now.
//
// Results:
//   - (n, nil): n entries were applied, the source ran dry
//   - (n, io.EOF): the stream ended cleanly after n entries
//   - (n, err): a fatal decode or apply error, call Reconnect before stepping again
func (r *Replica) Step() (int, error) {
	n := 0
	for {
		r.pe.Cmd = &r.cmd
		err := r.reader.ReadEntryInto(&r.pe)
		if errors.Is(err, journal.ErrNeedMoreData) {
			return n, nil
		}
		if err != nil {
			return n, err
		}

		if err := r.apply(); err != nil {
			return n, err
		}
		n++
	}
}

// Run steps until ctx is canceled, the stream ends or a fatal error occurs. When a step
// applied nothing it waits for poll before trying again.
func (r *Replica) Run(ctx context.Context, poll time.Duration) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.Step()
		if err != nil {
			return err
		}
		if n > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}

// Reconnect continues on a new source. Buffered bytes of the old source are dropped and
// the keyspace is cleared, the new source must start with a full sync.
func (r *Replica) Reconnect(source journal.Source) {
	r.reader.SetSource(source)
	r.ks.Reset()
	log.Infof("reconnected, keyspace cleared (%d entries applied so far)", r.applied)
}

// Applied returns the number of entries applied over the lifetime of the replica
func (r *Replica) Applied() uint64 {
	return r.applied
}

// DbIndex returns the running database index of the stream
func (r *Replica) DbIndex() journal.DbIndex {
	return r.reader.DbIndex()
}

// apply hands the current entry to the keyspace. Commands the keyspace does not know
// are skipped, the primary may journal commands without effect on the data.
func (r *Replica) apply() error {
	err := r.ks.Apply(r.pe)
	if errors.Is(err, keyspace.ErrUnknownCommand) {
		entriesSkipped.Inc()
		log.Warningf("skipping %s: %v", r.pe, err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply %s: %w", r.pe, err)
	}

	r.applied++
	entriesApplied.Inc()
	return nil
}

// --------------------------------------------------------------------------
// Batches
// --------------------------------------------------------------------------

// EncodeBatch encodes entries with a fresh writer. The result is self-contained: its
// first entry always carries the database index, so it decodes correctly no matter
// which index the reader currently holds.
func EncodeBatch(entries ...journal.Entry) ([]byte, error) {
	size := 0
	for _, e := range entries {
		size += journal.EntryLen(e)
	}

	buf := bytes.NewBuffer(make([]byte, 0, size))
	w := journal.NewWriter(buf)
	for _, e := range entries {
		if err := w.Write(e); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// decodeBatch decodes a complete batch. Nothing is returned unless every entry decodes.
func decodeBatch(r *journal.Reader, batch []byte) ([]journal.ParsedEntry, error) {
	r.SetSource(bytes.NewReader(batch))

	var entries []journal.ParsedEntry
	for {
		pe, err := r.ReadEntry()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, pe)
	}
}

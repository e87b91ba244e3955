// Package journal implements the wire codec of the replication journal. Every write the
// database accepts passes through a Writer on the primary and a Reader on each replica.
//
// The package focuses on:
//   - A compact encoding that omits the database index while it does not change
//   - Decoding from sources that deliver the stream in arbitrary chunks
//   - Typed, diagnosable errors instead of panics on corrupt input
//   - Bounded allocations no matter what a corrupt stream claims
//
// Key Components:
//
//   - Entry / ParsedEntry: The logical mutation on the write side and its decoded
//     counterpart on the read side. A nil Payload (nil Cmd) means "no command data",
//     which is distinct from a command with zero arguments.
//
//   - Writer: Encodes one entry per Write call into a single sink write and tracks the
//     running database index. The first entry always carries its index.
//
//   - Reader: Pulls bytes into a staging buffer, scans one entry without consuming
//     anything and commits only when the entry is complete. Short reads yield
//     ErrNeedMoreData and the next call resumes at the same byte.
//
//   - Primitives: AppendUint / ParseUint (packed integers), AppendString and
//     AppendPayload, composed explicitly by the Writer.
//
// Wire Format (ProtocolVersion 1):
//
//	entry   := tag [dbindex] [payload]
//	tag     := 1 byte, bits 0-5 op, bit 6 dbindex present, bit 7 payload present
//	dbindex := packed uint
//	payload := count:packed name:string arg:string ... (count arguments)
//	string  := len:packed bytes
//
//	Packed integers store 7 bits per byte, least significant group first, with the
//	high bit set on all but the last byte. There is no checksum, magic or version
//	inside the stream; integrity is left to the transport or storage below it.
//
// Example:
//
//	SET k v on db 3, written by a fresh writer:  CA 03 02 03 'SET' 01 'k' 01 'v'
//	GET k on db 3 right after:                   8A 01 03 'GET' 01 'k'
//
// Error Handling:
//
//	ErrNeedMoreData is a control signal, not a failure. A *DecodeError names the stage
//	(tag, index, count, command, string, source) and the stream offset; afterwards the
//	Reader returns ErrReaderFailed until SetSource is called. A Writer whose sink failed
//	returns ErrWriterFailed forever; create a new one over a new sink.
//
// Thread Safety:
//
//	Writers and Readers carry per-stream state and are not safe for concurrent use.
//	Use one instance per stream.
//
// Usage:
//
//	w := journal.NewWriter(conn)
//	_ = w.Write(journal.NewCommandEntry(3, "SET", []byte("k"), []byte("v")))
//
//	r := journal.NewReader(journal.NewConnSource(conn, 100*time.Millisecond), 0)
//	for {
//	    pe, err := r.ReadEntry()
//	    if errors.Is(err, journal.ErrNeedMoreData) {
//	        continue // wait for more bytes
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    apply(pe)
//	}
package journal

package journal

import (
	"github.com/VictoriaMetrics/metrics"
)

// Process wide codec counters. They are shared by all writers and readers and
// exported through metrics.WritePrometheus by the http transport.
var (
	entriesWritten = metrics.NewCounter("djournal_entries_written_total")
	bytesWritten   = metrics.NewCounter("djournal_bytes_written_total")
	writeErrors    = metrics.NewCounter("djournal_write_errors_total")
	entriesRead    = metrics.NewCounter("djournal_entries_read_total")
	bytesRead      = metrics.NewCounter("djournal_bytes_read_total")
	readerNeedMore = metrics.NewCounter("djournal_reader_need_more_total")
	entrySize      = metrics.NewHistogram("djournal_entry_size_bytes")
)

// decodeErrors counts fatal decode errors per stage
func decodeErrors(stage Stage) *metrics.Counter {
	return metrics.GetOrCreateCounter(`djournal_decode_errors_total{stage="` + stage.String() + `"}`)
}

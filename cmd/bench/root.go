package bench

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/ValentinKolb/dJournal/cmd/util"
	"github.com/ValentinKolb/dJournal/lib/journal"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	BenchCmd = &cobra.Command{
		Use:     "bench",
		Short:   "Measure encode and decode throughput of the journal codec",
		PreRunE: processBenchConfig,
		RunE:    run,
	}
	benchEntries   = 100_000
	benchArgs      = 2
	benchValueSize = 64
	benchDatabases = 4
)

func init() {
	key := "entries"
	BenchCmd.Flags().Int(key, benchEntries, util.WrapString("Number of entries to encode and decode"))
	key = "args"
	BenchCmd.Flags().Int(key, benchArgs, util.WrapString("Arguments per command, the first one is the key"))
	key = "value-size"
	BenchCmd.Flags().Int(key, benchValueSize, util.WrapString("Size of every argument after the key in bytes"))
	key = "databases"
	BenchCmd.Flags().Int(key, benchDatabases, util.WrapString("Entries rotate through this many databases, 1 means the index is never repeated"))
	key = "csv"
	BenchCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processBenchConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	benchEntries = viper.GetInt("entries")
	benchArgs = viper.GetInt("args")
	benchValueSize = viper.GetInt("value-size")
	benchDatabases = viper.GetInt("databases")

	if benchEntries < 1 || benchArgs < 1 || benchValueSize < 0 || benchDatabases < 1 {
		return errors.New("entries, args and databases must be positive")
	}
	return nil
}

// Result holds the statistics of one benchmark phase
type Result struct {
	Name    string
	Latency metrics.Timer
	Bytes   metrics.Meter
	Elapsed time.Duration
}

func run(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Benchmarking %d entries, %d args, %d byte values, %d databases\n\n",
		benchEntries, benchArgs, benchValueSize, benchDatabases)

	registry := metrics.NewRegistry()
	entries := GenerateEntries(benchEntries, benchArgs, benchValueSize, benchDatabases)

	sizes := metrics.NewHistogram(metrics.NewUniformSample(4096))
	_ = registry.Register("entry-size", sizes)

	encoded, enc, err := Encode(entries, sizes)
	if err != nil {
		return err
	}
	_ = registry.Register("encode", enc.Latency)
	printResult(out, enc)

	dec, err := Decode(encoded, len(entries))
	if err != nil {
		return err
	}
	_ = registry.Register("decode", dec.Latency)
	printResult(out, dec)

	fmt.Fprintf(out, "\n%-20s%d bytes (mean %.1f, p99 %.0f, max %d)\n", "stream size",
		len(encoded), sizes.Mean(), sizes.Percentile(0.99), sizes.Max())

	enc.Bytes.Stop()
	dec.Bytes.Stop()

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Fprintf(out, "\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, []Result{enc, dec}); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Phases
// --------------------------------------------------------------------------

// GenerateEntries creates n SET style commands rotating through databases
func GenerateEntries(n, args, valueSize, databases int) []journal.Entry {
	value := bytes.Repeat([]byte{'x'}, valueSize)
	entries := make([]journal.Entry, n)
	for i := range entries {
		a := make([][]byte, args)
		a[0] = []byte("key-" + strconv.Itoa(i))
		for j := 1; j < args; j++ {
			a[j] = value
		}
		entries[i] = journal.NewCommandEntry(journal.DbIndex(i%databases), "SET", a...)
	}
	return entries
}

// Encode writes all entries into one stream, timing every write
func Encode(entries []journal.Entry, sizes metrics.Histogram) ([]byte, Result, error) {
	res := Result{Name: "encode", Latency: metrics.NewTimer(), Bytes: metrics.NewMeter()}

	var stream bytes.Buffer
	w := journal.NewWriter(&stream)

	start := time.Now()
	for _, e := range entries {
		before := stream.Len()
		t := time.Now()
		if err := w.Write(e); err != nil {
			return nil, res, err
		}
		res.Latency.UpdateSince(t)
		n := stream.Len() - before
		res.Bytes.Mark(int64(n))
		if sizes != nil {
			sizes.Update(int64(n))
		}
	}
	res.Elapsed = time.Since(start)
	return stream.Bytes(), res, nil
}

// Decode reads want entries back from stream, reusing one command buffer
func Decode(stream []byte, want int) (Result, error) {
	res := Result{Name: "decode", Latency: metrics.NewTimer(), Bytes: metrics.NewMeter()}

	r := journal.NewReader(bytes.NewReader(stream), 0)
	var (
		pe  journal.ParsedEntry
		cmd journal.CmdData
		got int
	)

	start := time.Now()
	for {
		before := r.Offset()
		t := time.Now()
		pe.Cmd = &cmd
		err := r.ReadEntryInto(&pe)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, err
		}
		res.Latency.UpdateSince(t)
		res.Bytes.Mark(int64(r.Offset() - before))
		got++
	}
	res.Elapsed = time.Since(start)

	if got != want {
		return res, fmt.Errorf("decoded %d entries, expected %d", got, want)
	}
	return res, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// printResult prints the result of a benchmark phase in a formatted way
func printResult(out io.Writer, res Result) {
	l := res.Latency.Snapshot()
	b := res.Bytes.Snapshot()

	opsPerSec := float64(l.Count()) / res.Elapsed.Seconds()
	mbPerSec := float64(b.Count()) / res.Elapsed.Seconds() / (1 << 20)

	fmt.Fprintf(out, "%-20s%.0fns/op (p99 %s)\t%.0f ops/sec\t%.1f MB/s\n",
		res.Name, l.Mean(), time.Duration(l.Percentile(0.99)), opsPerSec, mbPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results []Result) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Phase", "Entries", "NsPerOp", "P99Ns", "OpsPerSec", "Bytes",
		"Args", "ValueSize", "Databases",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, res := range results {
		l := res.Latency.Snapshot()
		row := []string{
			res.Name,
			strconv.FormatInt(l.Count(), 10),
			fmt.Sprintf("%.0f", l.Mean()),
			fmt.Sprintf("%.0f", l.Percentile(0.99)),
			fmt.Sprintf("%.0f", float64(l.Count())/res.Elapsed.Seconds()),
			strconv.FormatInt(res.Bytes.Snapshot().Count(), 10),
			strconv.Itoa(benchArgs),
			strconv.Itoa(benchValueSize),
			strconv.Itoa(benchDatabases),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for phase %s: %v", res.Name, err)
		}
	}
	return nil
}

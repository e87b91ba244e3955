package dump

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	cmdUtil "github.com/ValentinKolb/dJournal/cmd/util"
	"github.com/ValentinKolb/dJournal/lib/journal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// tailPoll is the wait between reads at the end of a followed file
const tailPoll = 200 * time.Millisecond

var DumpCmd = &cobra.Command{
	Use:   "dump FILE",
	Short: "Print the entries of a journal file",
	Long: `Decode a journal file (e.g. written by 'djournal serve --journal-file') and print one entry per line.
Use - to read from stdin.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, _ []string) error { return cmdUtil.BindCommandFlags(cmd) },
	RunE:    run,
}

func init() {
	key := "start-db"
	DumpCmd.Flags().Uint32(key, 0, cmdUtil.WrapString("The database index the journal starts in"))

	key = "max-string-len"
	DumpCmd.Flags().Uint64(key, journal.DefaultMaxStringLen, cmdUtil.WrapString("Largest command name or argument accepted in bytes"))

	key = "follow"
	DumpCmd.Flags().Bool(key, false, cmdUtil.WrapString("Keep waiting for entries appended to the file"))
}

func run(cmd *cobra.Command, args []string) error {
	var in io.Reader = os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	out := bufio.NewWriter(cmd.OutOrStdout())
	defer out.Flush()

	n, err := Dump(in, out, journal.DbIndex(viper.GetUint32("start-db")), viper.GetBool("follow"),
		journal.WithMaxStringLen(viper.GetUint64("max-string-len")))
	if err != nil {
		out.Flush()
		return fmt.Errorf("after %d entries: %w", n, err)
	}
	return nil
}

// Dump writes one line per entry read from in to out. It returns at the end of the
// stream, or with follow set only on errors, waiting for more data at the end.
func Dump(in io.Reader, out io.Writer, db journal.DbIndex, follow bool, opts ...journal.ReaderOption) (int, error) {
	var source journal.Source = in
	if follow {
		source = journal.NewTailSource(in)
	}
	r := journal.NewReader(source, db, opts...)

	var (
		pe  journal.ParsedEntry
		cmd journal.CmdData
		n   int
	)
	for {
		offset := r.Offset()
		pe.Cmd = &cmd
		err := r.ReadEntryInto(&pe)
		switch {
		case errors.Is(err, io.EOF):
			return n, nil
		case errors.Is(err, journal.ErrNeedMoreData):
			if f, ok := out.(interface{ Flush() error }); ok {
				if err := f.Flush(); err != nil {
					return n, err
				}
			}
			time.Sleep(tailPoll)
			continue
		case err != nil:
			return n, err
		}

		if _, err := fmt.Fprintf(out, "%8d  %s\n", offset, pe); err != nil {
			return n, err
		}
		n++
	}
}

package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dJournal/cmd/bench"
	"github.com/ValentinKolb/dJournal/cmd/dump"
	"github.com/ValentinKolb/dJournal/cmd/replicate"
	"github.com/ValentinKolb/dJournal/cmd/serve"
	"github.com/ValentinKolb/dJournal/cmd/util"
	"github.com/ValentinKolb/dJournal/lib/journal"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "djournal",
		Short: "replication journal for multi-database key-value stores",
		Long: fmt.Sprintf(`dJournal (v%s)

A compact binary journal of key-value mutations. A primary streams the journal to
replicas that keep a live copy of every logical database, or replicates it through
RAFT for fault tolerance.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dJournal",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dJournal v%s (wire format v%d)\n", Version, journal.ProtocolVersion)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(replicate.ReplicateCmd)
	RootCmd.AddCommand(dump.DumpCmd)
	RootCmd.AddCommand(bench.BenchCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "log-level"
	RootCmd.PersistentFlags().String(key, "info", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package replicate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	cmdUtil "github.com/ValentinKolb/dJournal/cmd/util"
	"github.com/ValentinKolb/dJournal/lib/journal"
	"github.com/ValentinKolb/dJournal/lib/keyspace"
	"github.com/ValentinKolb/dJournal/lib/replica"
	"github.com/ValentinKolb/dJournal/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	log = logger.GetLogger("cmd")

	replicaCmdConfig = &common.ReplicaConfig{}
	ReplicateCmd     = &cobra.Command{
		Use:   "replicate",
		Short: "Follow a journal primary",
		Long: `Connect to a journal primary and apply its replication stream to an in-memory keyspace.
The replica reconnects and resyncs whenever the stream breaks or stays silent for longer than the idle timeout.`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cmdUtil.SetupStreamFlags(ReplicateCmd)

	key := "endpoint"
	ReplicateCmd.Flags().String(key, "localhost:7000", cmdUtil.WrapString("The replication stream endpoint of the primary"))

	key = "replica-id"
	ReplicateCmd.Flags().String(key, "", cmdUtil.WrapString("Name of this replica (e.g. 'replica-1'), defaults to the host name"))

	key = "start-db"
	ReplicateCmd.Flags().Uint32(key, 0, cmdUtil.WrapString("The database index the stream starts in"))

	key = "databases"
	ReplicateCmd.Flags().Int(key, keyspace.DefaultDatabases, cmdUtil.WrapString("Number of logical databases, must match the primary"))

	key = "poll-ms"
	ReplicateCmd.Flags().Int(key, 100, cmdUtil.WrapString("How long a single read waits for data in milliseconds"))

	key = "idle-timeout"
	ReplicateCmd.Flags().Duration(key, 10*time.Second, cmdUtil.WrapString("Reconnect when nothing, not even a heartbeat, arrived for this long (0 disables)"))

	key = "retries"
	ReplicateCmd.Flags().Int(key, 10, cmdUtil.WrapString("Reconnect attempts before giving up"))

	key = "max-string-len"
	ReplicateCmd.Flags().Uint64(key, journal.DefaultMaxStringLen, cmdUtil.WrapString("Largest command name or argument accepted from the stream in bytes"))
}

func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	replicaCmdConfig.Endpoint = viper.GetString("endpoint")
	replicaCmdConfig.StartDb = viper.GetUint32("start-db")
	replicaCmdConfig.Databases = viper.GetInt("databases")
	replicaCmdConfig.Poll = time.Duration(viper.GetInt("poll-ms")) * time.Millisecond
	replicaCmdConfig.IdleTimeout = viper.GetDuration("idle-timeout")
	replicaCmdConfig.RetryCount = viper.GetInt("retries")
	replicaCmdConfig.MaxStringLen = viper.GetUint64("max-string-len")
	replicaCmdConfig.Socket = cmdUtil.GetSocketConfig()
	replicaCmdConfig.LogLevel = viper.GetString("log-level")

	name := viper.GetString("replica-id")
	if name == "" {
		name = hostname()
	}
	replicaCmdConfig.ReplicaID = cmdUtil.HashString(name)

	if replicaCmdConfig.Poll <= 0 {
		return fmt.Errorf("poll-ms must be positive")
	}
	return nil
}

func run(_ *cobra.Command, _ []string) error {
	if err := common.InitLoggers(replicaCmdConfig.LogLevel); err != nil {
		return err
	}
	fmt.Println(replicaCmdConfig.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sub, err := cmdUtil.GetSubscriber()
	if err != nil {
		return err
	}
	defer sub.Close()

	src, err := sub.Connect(*replicaCmdConfig)
	if err != nil {
		return err
	}

	ks := keyspace.New(replicaCmdConfig.Databases)
	r := replica.New(src, ks, journal.DbIndex(replicaCmdConfig.StartDb),
		journal.WithMaxStringLen(replicaCmdConfig.MaxStringLen))

	for {
		err := follow(ctx, r)
		if ctx.Err() != nil {
			log.Infof("Stopped after %d applied entries", r.Applied())
			return nil
		}
		log.Warningf("Replication stream broken: %v", err)

		src, err := sub.Reconnect()
		if err != nil {
			return err
		}
		r.Reconnect(src)
	}
}

var errIdle = errors.New("stream idle")

// follow applies the stream until it ends, fails or stays silent for the idle timeout
func follow(ctx context.Context, r *replica.Replica) error {
	lastData := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.Step()
		if errors.Is(err, io.EOF) {
			return io.ErrUnexpectedEOF // the primary closed the connection
		}
		if err != nil {
			return err
		}

		if n > 0 {
			lastData = time.Now()
			log.Debugf("Applied %d entries (total %d, db %d)", n, r.Applied(), r.DbIndex())
			continue
		}

		idle := replicaCmdConfig.IdleTimeout
		if idle > 0 && time.Since(lastData) > idle {
			return errIdle
		}
	}
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "replica"
	}
	return name
}

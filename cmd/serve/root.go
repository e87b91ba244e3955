package serve

import (
	"fmt"
	"os"
	"time"

	cmdUtil "github.com/ValentinKolb/dJournal/cmd/util"
	"github.com/ValentinKolb/dJournal/lib/keyspace"
	"github.com/ValentinKolb/dJournal/lib/replica"
	"github.com/ValentinKolb/dJournal/rpc/common"
	"github.com/ValentinKolb/dJournal/rpc/transport/base"
	"github.com/ValentinKolb/dJournal/rpc/transport/http"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	log = logger.GetLogger("cmd")

	serveCmdConfig = &common.PrimaryConfig{}
	ServeCmd       = &cobra.Command{
		Use:   "serve",
		Short: "Start a journal primary",
		Long: `Start a journal primary. Replicas connect to the replication stream endpoint, writes arrive as command scripts on the HTTP endpoint.
The configuration can be set via command line flags or environment variables. The format of the environment variables is DJOURNAL_<flag> (e.g. DJOURNAL_HTTP_ENDPOINT=:8080)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cmdUtil.SetupStreamFlags(ServeCmd)

	key := "endpoint"
	ServeCmd.Flags().String(key, "0.0.0.0:7000", cmdUtil.WrapString("The address replicas connect to (e.g. localhost:7000, /tmp/djournal.sock)"))

	key = "http-endpoint"
	ServeCmd.Flags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address of the HTTP control surface, empty disables it"))

	key = "heartbeat-ms"
	ServeCmd.Flags().Int(key, 1000, cmdUtil.WrapString("Interval in milliseconds of PING entries on idle replica connections"))

	key = "subscriber-queue"
	ServeCmd.Flags().Int(key, 4096, cmdUtil.WrapString("Entries buffered per replica. A replica that falls further behind is disconnected and resyncs"))

	key = "databases"
	ServeCmd.Flags().Int(key, keyspace.DefaultDatabases, cmdUtil.WrapString("Number of logical databases"))

	key = "journal-file"
	ServeCmd.Flags().String(key, "", cmdUtil.WrapString("Append every published entry to this file, it can be read with 'djournal dump'"))

	key = "raft"
	ServeCmd.Flags().Bool(key, false, cmdUtil.WrapString("Replicate writes through a RAFT shard instead of the replication stream"))

	key = "shard"
	ServeCmd.Flags().Uint64(key, 100, cmdUtil.WrapString("(RAFT Mode) The shard id of the journal"))

	key = "rtt-millisecond"
	ServeCmd.Flags().Int(key, 100, cmdUtil.WrapString("(RAFT Mode) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances"))

	key = "snapshot-entries"
	ServeCmd.Flags().Int(key, 1000, cmdUtil.WrapString("(RAFT Mode) Snapshot the keyspace every N applied log entries, 0 disables automatic snapshots (not recommended)"))

	key = "compaction-overhead"
	ServeCmd.Flags().Int(key, 500, cmdUtil.WrapString("(RAFT Mode) Log entries kept after a snapshot. Recommended value is about 1/2 of snapshot-entries"))

	key = "data-dir"
	ServeCmd.Flags().String(key, "data", cmdUtil.WrapString("(RAFT Mode) Directory of the RAFT log and snapshots"))

	key = "replica-id"
	ServeCmd.Flags().String(key, "", cmdUtil.WrapString("(RAFT Mode) Unique name of this node (e.g. 'node-1')"))

	key = "cluster-members"
	ServeCmd.Flags().String(key, "", cmdUtil.WrapString("(RAFT Mode) Comma-separated list of nodes in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	key = "timeout"
	ServeCmd.Flags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds of a single write or read"))
}

// processConfig reads the flags and environment variables into the primary configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.Heartbeat = time.Duration(viper.GetInt("heartbeat-ms")) * time.Millisecond
	serveCmdConfig.SubscriberQueue = viper.GetInt("subscriber-queue")
	serveCmdConfig.Socket = cmdUtil.GetSocketConfig()
	serveCmdConfig.HTTPEndpoint = viper.GetString("http-endpoint")
	serveCmdConfig.Databases = viper.GetInt("databases")
	serveCmdConfig.JournalFile = viper.GetString("journal-file")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if serveCmdConfig.Databases < 1 {
		return fmt.Errorf("at least one database is required")
	}

	serveCmdConfig.Raft = viper.GetBool("raft")
	if !serveCmdConfig.Raft {
		return nil
	}

	serveCmdConfig.ShardID = viper.GetUint64("shard")
	serveCmdConfig.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	serveCmdConfig.SnapshotEntries = viper.GetUint64("snapshot-entries")
	serveCmdConfig.CompactionOverhead = viper.GetUint64("compaction-overhead")
	serveCmdConfig.DataDir = viper.GetString("data-dir")

	id := viper.GetString("replica-id")
	if id == "" {
		return fmt.Errorf("replica-id is required in raft mode")
	}
	serveCmdConfig.ReplicaID = cmdUtil.HashString(id)

	members, err := cmdUtil.ParseMembers(viper.GetString("cluster-members"))
	if err != nil {
		return err
	}
	serveCmdConfig.ClusterMembers = members

	if _, ok := members[serveCmdConfig.ReplicaID]; !ok {
		return fmt.Errorf("no address found for replica ID %s in cluster members", id)
	}
	return nil
}

// run starts the primary and blocks until one of its servers fails
func run(_ *cobra.Command, _ []string) error {
	if err := common.InitLoggers(serveCmdConfig.LogLevel); err != nil {
		return err
	}
	fmt.Println(serveCmdConfig.String())

	timeout := time.Duration(serveCmdConfig.TimeoutSecond) * time.Second
	debug := serveCmdConfig.LogLevel == "debug"

	if serveCmdConfig.Raft {
		return runRaft(timeout, debug)
	}

	ks := keyspace.New(serveCmdConfig.Databases)

	var opts []base.PublisherOption
	if serveCmdConfig.JournalFile != "" {
		f, err := os.OpenFile(serveCmdConfig.JournalFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open journal file: %w", err)
		}
		defer f.Close()
		opts = append(opts, base.WithJournalFile(f))
	}

	publisher, err := cmdUtil.GetPublisher(ks, opts...)
	if err != nil {
		return err
	}
	defer publisher.Close()

	errCh := make(chan error, 2)
	go func() {
		errCh <- publisher.Listen(*serveCmdConfig)
	}()

	if serveCmdConfig.HTTPEndpoint != "" {
		srv := http.NewServer(http.NewLocalBackend(publisher, ks), timeout, debug)
		go func() {
			errCh <- srv.ListenAndServe(serveCmdConfig.HTTPEndpoint)
		}()
	}

	return <-errCh
}

// runRaft starts a NodeHost with the journal state machine and serves the HTTP
// control surface on top of it
func runRaft(timeout time.Duration, debug bool) error {
	nh, err := dragonboat.NewNodeHost(serveCmdConfig.ToNodeHostConfig())
	if err != nil {
		return fmt.Errorf("failed to create NodeHost: %w", err)
	}
	defer nh.Close()

	if err := nh.StartReplica(
		serveCmdConfig.ClusterMembers,
		false,
		replica.CreateStateMachineFactory(serveCmdConfig.Databases),
		serveCmdConfig.ToDragonboatConfig(),
	); err != nil {
		return fmt.Errorf("failed to start replica for shard %d: %w", serveCmdConfig.ShardID, err)
	}
	log.Infof("Started raft replica %d of shard %d", serveCmdConfig.ReplicaID, serveCmdConfig.ShardID)

	if serveCmdConfig.HTTPEndpoint == "" {
		select {} // the node only takes part in consensus
	}

	rj := replica.NewRaftJournal(nh, serveCmdConfig.ShardID, timeout)
	return http.NewServer(rj, timeout, debug).ListenAndServe(serveCmdConfig.HTTPEndpoint)
}

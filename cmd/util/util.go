package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/dJournal/rpc/common"
	"github.com/ValentinKolb/dJournal/rpc/transport"
	"github.com/ValentinKolb/dJournal/rpc/transport/base"
	"github.com/ValentinKolb/dJournal/rpc/transport/tcp"
	"github.com/ValentinKolb/dJournal/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and makes viper read DJOURNAL_* environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("djournal")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Stream transport
// --------------------------------------------------------------------------

// SetupStreamFlags adds the flags of the replication stream connection to a command
func SetupStreamFlags(cmd *cobra.Command) {
	defaults := common.DefaultSocketConfig()

	key := "transport"
	cmd.Flags().String(key, "tcp", WrapString("Transport of the replication stream (tcp, unix)"))

	key = "transport-write-buffer"
	cmd.Flags().Int(key, 0, WrapString("Socket write buffer size in KB (0 keeps the system default)"))

	key = "transport-read-buffer"
	cmd.Flags().Int(key, 0, WrapString("Socket read buffer size in KB (0 keeps the system default)"))

	key = "transport-tcp-nodelay"
	cmd.Flags().Bool(key, defaults.TCPNoDelay, WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "transport-tcp-keepalive"
	cmd.Flags().Int(key, defaults.TCPKeepAliveSec, WrapString("The keepalive interval in seconds, 0 disables keepalive (only for tcp)"))

	key = "transport-tcp-linger"
	cmd.Flags().Int(key, defaults.TCPLingerSec, WrapString("The linger time in seconds, -1 keeps the system default (only for tcp)"))
}

// GetSocketConfig reads the socket options set up by SetupStreamFlags
func GetSocketConfig() common.SocketConfig {
	return common.SocketConfig{
		TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
		TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
		TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
		WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
		ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
	}
}

// GetPublisher creates the publisher of the configured transport
func GetPublisher(state transport.IState, opts ...base.PublisherOption) (transport.IPublisher, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewTCPPublisher(state, opts...), nil
	case "unix":
		return unix.NewUnixPublisher(state, opts...), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetSubscriber creates the subscriber of the configured transport
func GetSubscriber() (transport.ISubscriber, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewTCPSubscriber(), nil
	case "unix":
		return unix.NewUnixSubscriber(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// --------------------------------------------------------------------------
// Identity
// --------------------------------------------------------------------------

// HashString maps a node name (e.g. 'node-1') to a stable numeric id using FNV-1a
func HashString(s string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	hash := uint64(offset64)
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}
	return hash
}

// ParseMembers parses 'name=address' pairs separated by commas into a map keyed by
// the hashed name
func ParseMembers(s string) (map[uint64]string, error) {
	members := make(map[uint64]string)
	for _, member := range strings.Split(s, ",") {
		parts := strings.Split(member, "=")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid cluster member format: %s (expected ID=address)", member)
		}
		members[HashString(strings.TrimSpace(parts[0]))] = strings.TrimSpace(parts[1])
	}
	return members, nil
}

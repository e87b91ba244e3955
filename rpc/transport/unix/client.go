package unix

import (
	"net"

	"github.com/ValentinKolb/dJournal/rpc/common"
	"github.com/ValentinKolb/dJournal/rpc/transport"
	"github.com/ValentinKolb/dJournal/rpc/transport/base"
)

// clientConnector implements the IClientConnector interface for Unix sockets
type clientConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "unix"
}

func (c *clientConnector) Connect(endpoint string) (net.Conn, error) {
	return net.Dial("unix", endpoint)
}

func (c *clientConnector) UpgradeConnection(conn net.Conn, config common.SocketConfig) error {
	return upgradeConnection(conn, config)
}

// --------------------------------------------------------------------------
// Subscriber Factory Method
// --------------------------------------------------------------------------

// NewUnixSubscriber creates a subscriber that follows a primary on a Unix socket
func NewUnixSubscriber() transport.ISubscriber {
	return base.NewBaseSubscriber(&clientConnector{})
}

package tcp

import (
	"net"

	"github.com/ValentinKolb/dJournal/rpc/common"
	"github.com/ValentinKolb/dJournal/rpc/transport"
	"github.com/ValentinKolb/dJournal/rpc/transport/base"
)

// clientConnector implements the IClientConnector interface for TCP sockets
type clientConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "tcp"
}

func (c *clientConnector) Connect(endpoint string) (net.Conn, error) {
	return net.Dial("tcp", endpoint)
}

func (c *clientConnector) UpgradeConnection(conn net.Conn, config common.SocketConfig) error {
	return upgradeConnection(conn, config)
}

// --------------------------------------------------------------------------
// Subscriber Factory Method
// --------------------------------------------------------------------------

// NewTCPSubscriber creates a subscriber that follows a primary over TCP
func NewTCPSubscriber() transport.ISubscriber {
	return base.NewBaseSubscriber(&clientConnector{})
}

package base

import (
	"io"
	"net"
	"time"

	"github.com/ValentinKolb/dJournal/rpc/common"
)

// writeHello sends the handshake frame within timeout
func writeHello(conn net.Conn, hello common.Hello, timeout time.Duration) error {
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	defer conn.SetWriteDeadline(time.Time{})

	_, err := conn.Write(hello.Encode())
	return err
}

// readHello reads and validates the handshake frame within timeout
func readHello(conn net.Conn, timeout time.Duration) (common.Hello, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return common.Hello{}, err
	}
	defer conn.SetReadDeadline(time.Time{})

	buf := make([]byte, common.HelloSize)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return common.Hello{}, err
	}
	return common.DecodeHello(buf)
}

package transport

import (
	"net"
	"time"
)

// Conn is the transport's view of one bidirectional byte stream. TCP
// sockets and WebSocket-backed net.Conns both satisfy it through NewConn.
type Conn interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	SetWriteDeadline(t time.Time) error
	Close() error
	RemoteAddr() string
}

type netConn struct {
	net.Conn
}

func (c netConn) RemoteAddr() string {
	return c.Conn.RemoteAddr().String()
}

// NewConn wraps a net.Conn for Attach.
func NewConn(c net.Conn) Conn {
	return netConn{c}
}

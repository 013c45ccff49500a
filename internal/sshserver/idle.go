package sshserver

import (
	"net"
	"sync/atomic"
	"time"
)

// idleConn pushes the connection deadline forward on every read and write,
// so a connection dies after timeout without traffic in either direction.
type idleConn struct {
	net.Conn
	timeout atomic.Int64 // nanoseconds; zero disables
}

func newIdleConn(c net.Conn, timeout time.Duration) *idleConn {
	ic := &idleConn{Conn: c}
	ic.setTimeout(timeout)
	return ic
}

func (c *idleConn) setTimeout(d time.Duration) {
	c.timeout.Store(int64(d))
	c.extend()
}

func (c *idleConn) extend() {
	if d := time.Duration(c.timeout.Load()); d > 0 {
		c.Conn.SetDeadline(time.Now().Add(d))
	} else {
		c.Conn.SetDeadline(time.Time{})
	}
}

func (c *idleConn) Read(p []byte) (int, error) {
	c.extend()
	return c.Conn.Read(p)
}

func (c *idleConn) Write(p []byte) (int, error) {
	c.extend()
	return c.Conn.Write(p)
}

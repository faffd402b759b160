package transport

import (
	"bufio"
	"net"
	"sync"
	"time"
)

// tcpConn frames a raw TCP stream with a length prefix so consecutive
// messages never suffer boundary ambiguity.
type tcpConn struct {
	conn net.Conn
	r    *bufio.Reader
	opts Options
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

// NewTCP wraps an accepted TCP connection. The write pump starts
// immediately.
func NewTCP(conn net.Conn, opts Options) Conn {
	c := &tcpConn{
		conn: conn,
		r:    bufio.NewReader(conn),
		opts: opts,
		send: make(chan []byte, opts.SendBuffer),
		done: make(chan struct{}),
	}
	go c.writePump()
	return c
}

func (c *tcpConn) ReadFrame() ([]byte, error) {
	return ReadLengthPrefixed(c.r, c.opts.MaxFrameSize)
}

func (c *tcpConn) WriteFrame(p []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- p:
		return nil
	default:
		return ErrSlowConsumer
	}
}

func (c *tcpConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
	return nil
}

func (c *tcpConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *tcpConn) writePump() {
	defer c.Close()

	for {
		select {
		case <-c.done:
			return
		case p := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := WriteLengthPrefixed(c.conn, p); err != nil {
				return
			}
		}
	}
}

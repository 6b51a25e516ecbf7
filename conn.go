package main

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

var errTimeout = errors.New("timed out waiting for peer")

// requestConn is one end of a transfer: a socket and the peer's address.
type requestConn struct {
	conn   net.PacketConn
	addr   net.Addr
	buffer []byte
	log    *logrus.Entry

	// follow lets the first reply choose the peer address. The client uses it
	// to pick up the server's transfer ID after the request.
	follow bool
}

func newRequestConn(conn net.PacketConn, addr net.Addr) *requestConn {
	return &requestConn{
		conn:   conn,
		addr:   addr,
		buffer: make([]byte, maxDatagramSize),
		log:    logrus.NewEntry(logrus.StandardLogger()),
	}
}

func (c *requestConn) send(p packet) error {
	_, err := c.conn.WriteTo(encodePacket(p), c.addr)
	return err
}

func (c *requestConn) sendError(code tftpError, msg string) {
	if msg == "" {
		msg = code.String()
	}
	if err := c.send(&errorPacket{code: code, message: msg}); err != nil {
		c.log.WithFields(logrus.Fields{
			"client": c.addr.String(),
			"code":   code,
			"error":  err.Error(),
		}).Warn("Failed to send error packet")
	}
}

// next waits for the next packet from the peer. Datagrams from any other
// address are answered with an unknown transfer ID error and dropped.
func (c *requestConn) next(timeout time.Duration) (packet, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}

	for {
		n, addr, err := c.conn.ReadFrom(c.buffer)
		if err != nil {
			if isTimeout(err) {
				return nil, errTimeout
			}
			return nil, err
		}

		if c.follow {
			c.addr = addr
			c.follow = false
		} else if !sameAddr(addr, c.addr) {
			c.log.WithFields(logrus.Fields{
				"expected": c.addr.String(),
				"got":      addr.String(),
			}).Warn("Datagram from unknown transfer ID")
			stray := &requestConn{conn: c.conn, addr: addr, log: c.log}
			stray.sendError(errUnknownTID, "")
			continue
		}

		p, err := decodePacket(c.buffer[:n])
		if err != nil {
			return nil, fmt.Errorf("from %s: %w", addr, err)
		}
		return p, nil
	}
}

func (c *requestConn) Close() error {
	return c.conn.Close()
}

package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// client downloads one file from a server.
type client struct {
	conn             *requestConn
	data             io.Writer
	options          tftpOptions
	requestedOptions tftpOptions
	remotePath       string
	timeout          time.Duration
	retries          int
	blockCounter     uint16
	received         int64
}

func newClient(conn *requestConn, remotePath string, data io.Writer, requested tftpOptions) *client {
	conn.follow = true
	return &client{
		conn:             conn,
		data:             data,
		options:          defaultOptions,
		requestedOptions: requested,
		remotePath:       remotePath,
		timeout:          defaultTimeout,
		retries:          maxRetransmits,
	}
}

// get runs the read request to completion and returns the number of bytes
// written to data.
func (c *client) get() (int64, error) {
	start := time.Now()
	log := logrus.WithField("file", c.remotePath)
	c.conn.log = log

	var last packet = &readRequest{
		filename: c.remotePath,
		mode:     modeOctet,
		options:  c.requestedOptions.toOptions(),
	}
	log.Debug("Sending read request")
	if err := c.conn.send(last); err != nil {
		return 0, err
	}

	retransmits := 0
	for {
		resp, err := c.conn.next(c.timeout)
		if errors.Is(err, errTimeout) {
			if retransmits >= c.retries {
				return c.received, errMaxRetransmits
			}
			retransmits++
			log.WithField("op", last.opCode()).Debug("Retransmitting")
			if err := c.conn.send(last); err != nil {
				return c.received, err
			}
			continue
		} else if err != nil {
			return c.received, err
		}
		retransmits = 0

		switch resp := resp.(type) {
		case *oackPacket:
			if c.blockCounter != 0 {
				continue
			}
			log.WithField("options", resp.options).Debug("Received OACK")
			c.options = negotiate(log, resp.options)
			last = &ackPacket{block: 0}
			if err := c.conn.send(last); err != nil {
				return c.received, err
			}
		case *dataPacket:
			if resp.block != c.blockCounter+1 {
				log.WithFields(logrus.Fields{
					"expected": c.blockCounter + 1,
					"received": resp.block,
				}).Debug("Out of order block")
				if err := c.conn.send(last); err != nil {
					return c.received, err
				}
				continue
			}

			n, err := c.data.Write(resp.payload)
			c.received += int64(n)
			if err != nil {
				c.conn.sendError(errDiskFull, "Failed to write block")
				return c.received, err
			}

			c.blockCounter = resp.block
			last = &ackPacket{block: c.blockCounter}
			if err := c.conn.send(last); err != nil {
				return c.received, err
			}

			if len(resp.payload) < c.options.blockSize {
				log.WithFields(logrus.Fields{
					"bytes":    c.received,
					"duration": time.Since(start).String(),
				}).Info("Transfer completed")
				return c.received, nil
			}
		case *errorPacket:
			return c.received, resp
		default:
			c.conn.sendError(errIllegalOperation, "")
			return c.received, fmt.Errorf("%w: %s", errUnexpectedPacket, resp.opCode())
		}
	}
}

func (c *client) close() {
	c.conn.Close()
}

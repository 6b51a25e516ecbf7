package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	errUnexpectedBlock     = errors.New("acknowledged block does not match block sent")
	errUnexpectedPacket    = errors.New("unexpected packet")
	errMaxRetransmits      = errors.New("max retransmits exceeded")
	errOptionsNotConfirmed = errors.New("client refused options")
)

type sessionState uint8

const (
	stateNegotiating sessionState = iota
	stateTransferring
	stateComplete
	stateFailed
)

func (s sessionState) String() string {
	switch s {
	case stateNegotiating:
		return "Negotiating"
	case stateTransferring:
		return "Transferring"
	case stateComplete:
		return "Complete"
	case stateFailed:
		return "Failed"
	}
	return ""
}

// connection sends one file to one client. data is owned by the connection
// and never modified.
type connection struct {
	client   *requestConn
	data     []byte
	options  tftpOptions
	timeout  time.Duration
	retries  int
	state    sessionState
	blockNum uint16
	log      *logrus.Entry
}

func newConnection(client *requestConn, data []byte, options tftpOptions) *connection {
	return &connection{
		client:  client,
		data:    data,
		options: options.withTransferSize(int64(len(data))),
		timeout: defaultTimeout,
		retries: maxRetransmits,
		log:     logrus.WithField("client", client.addr.String()),
	}
}

// start drives the transfer to Complete or Failed.
func (c *connection) start() error {
	started := time.Now()
	c.log.WithFields(logrus.Fields{
		"size":       len(c.data),
		"block_size": c.options.blockSize,
	}).Info("Starting transfer")

	err := c.run()
	if err != nil {
		c.state = stateFailed
		c.log.WithFields(logrus.Fields{
			"state": c.state,
			"block": c.blockNum,
			"error": err.Error(),
		}).Warn("Transfer failed")
		return err
	}

	c.state = stateComplete
	c.log.WithFields(logrus.Fields{
		"state":    c.state,
		"blocks":   c.blockNum,
		"duration": time.Since(started).String(),
	}).Info("Transfer completed")
	return nil
}

func (c *connection) run() error {
	if c.options.requested() {
		c.state = stateNegotiating
		if err := c.negotiate(); err != nil {
			return err
		}
	}

	c.state = stateTransferring
	return c.sendFile()
}

// negotiate sends the OACK and consumes the client's reply. Any reply other
// than an error is taken as acceptance, including one that does not parse.
func (c *connection) negotiate() error {
	oack := c.options.oack()
	c.log.WithField("options", oack.options).Debug("ACKing requested options")

	resp, err := c.exchange(oack)
	if isParseError(err) {
		c.log.WithField("error", err.Error()).Debug("OACK answered with unparseable datagram")
		return nil
	}
	if err != nil {
		return err
	}

	switch resp := resp.(type) {
	case *errorPacket:
		return fmt.Errorf("%w: %v", errOptionsNotConfirmed, resp)
	case *ackPacket:
		if resp.block != 0 {
			c.log.WithField("block", resp.block).Debug("OACK acknowledged with non-zero block")
		}
	default:
		c.log.WithField("op", resp.opCode()).Debug("OACK answered with non-ACK packet")
	}
	return nil
}

func (c *connection) sendFile() error {
	blockSize := c.options.blockSize

	for i := 0; ; i++ {
		start, end := blockBounds(i, blockSize, len(c.data))
		c.blockNum = uint16(i + 1) // wraps 65535 -> 0

		if err := c.sendBlock(c.blockNum, c.data[start:end]); err != nil {
			return err
		}

		// A short block, possibly empty, marks the end of the file.
		if end-start < blockSize {
			return nil
		}
	}
}

func (c *connection) sendBlock(block uint16, payload []byte) error {
	c.log.WithField("block", block).Debug("Sending DATA block")

	resp, err := c.exchange(&dataPacket{block: block, payload: payload})
	if isParseError(err) {
		c.client.sendError(errNotDefined, "Malformatted message")
		return err
	}
	if err != nil {
		return err
	}

	switch resp := resp.(type) {
	case *ackPacket:
		if resp.block != block {
			c.client.sendError(errNotDefined, "Unexpected block number")
			return fmt.Errorf("%w: got %d, want %d", errUnexpectedBlock, resp.block, block)
		}
		return nil
	case *errorPacket:
		return resp
	default:
		c.client.sendError(errIllegalOperation, "Invalid operation for read request")
		return fmt.Errorf("%w: %s", errUnexpectedPacket, resp.opCode())
	}
}

// exchange sends p and waits for the reply, resending p on every timeout.
// Datagrams that do not decode are returned as errors for the caller to judge.
func (c *connection) exchange(p packet) (packet, error) {
	if err := c.client.send(p); err != nil {
		return nil, err
	}

	retransmits := 0
	for {
		resp, err := c.client.next(c.timeout)
		if err == nil {
			return resp, nil
		}

		switch {
		case errors.Is(err, errTimeout):
			if retransmits >= c.retries {
				c.client.sendError(errNotDefined, "Timed out")
				return nil, errMaxRetransmits
			}
			retransmits++
			c.log.WithField("retransmit", retransmits).Debug("Retransmitting last packet")
			if err := c.client.send(p); err != nil {
				return nil, err
			}
		default:
			return nil, err
		}
	}
}

func (c *connection) close() {
	if err := c.client.Close(); err != nil {
		c.log.WithField("error", err.Error()).Debug("Closing transfer socket")
	}
	c.data = nil
}

// blockBounds returns the slice of a file of the given length carried by
// block index i.
func blockBounds(i, blockSize, length int) (start, end int) {
	start = i * blockSize
	if start > length {
		start = length
	}
	end = start + blockSize
	if end > length {
		end = length
	}
	return start, end
}

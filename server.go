package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type serverOption func(*server)

type server struct {
	conn     net.PacketConn
	files    fileProvider
	timeout  time.Duration
	retries  int
	rfc1350  bool
	log      *logrus.Logger
	sessions sync.WaitGroup
}

func newServer(options ...serverOption) *server {
	s := &server{
		files:   dirProvider{root: "."},
		timeout: defaultTimeout,
		retries: maxRetransmits,
		log:     logrus.StandardLogger(),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func withRootDir(dir string) serverOption {
	return func(s *server) {
		s.files = dirProvider{root: dir}
	}
}

func withPayload(payload []byte) serverOption {
	return func(s *server) {
		s.files = payloadProvider{payload: payload}
	}
}

func withTimeout(timeout time.Duration) serverOption {
	return func(s *server) {
		s.timeout = timeout
	}
}

func withRetries(retries int) serverOption {
	return func(s *server) {
		s.retries = retries
	}
}

func withProvider(files fileProvider) serverOption {
	return func(s *server) {
		s.files = files
	}
}

func withLogger(log *logrus.Logger) serverOption {
	return func(s *server) {
		s.log = log
	}
}

// withRFC1350 disables option negotiation.
func withRFC1350(s *server) {
	s.rfc1350 = true
}

func (s *server) listenAndServe(ctx context.Context, address string) error {
	if dir, ok := s.files.(dirProvider); ok {
		fullpath, _ := filepath.Abs(dir.root)
		s.log.WithField("root", fullpath).Info("Starting TFTP server")
	} else {
		s.log.Info("Starting TFTP server with a fixed payload")
	}

	conn, err := net.ListenPacket("udp", address)
	if err != nil {
		return fmt.Errorf("binding %s: %w", address, err)
	}

	return s.serve(ctx, conn)
}

// serve reads requests from conn until ctx is cancelled or conn fails, then
// waits for running transfers.
func (s *server) serve(ctx context.Context, conn net.PacketConn) error {
	s.conn = conn
	s.log.WithField("address", conn.LocalAddr().String()).Info("Listening")

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	defer s.sessions.Wait()

	buffer := make([]byte, maxDatagramSize)
	for {
		n, addr, err := conn.ReadFrom(buffer)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		// Replies from the listening port only send, so no read buffer.
		reply := &requestConn{conn: conn, addr: addr, log: s.log.WithField("client", addr.String())}
		s.handle(reply, buffer[:n])
	}
}

func (s *server) handle(conn *requestConn, datagram []byte) {
	p, err := decodePacket(datagram)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"client": conn.addr.String(),
			"error":  err.Error(),
		}).Debug("Discarding unparseable datagram")
		return
	}

	switch p := p.(type) {
	case *readRequest:
		s.processRequest(conn, p)
	case *writeRequest:
		s.log.WithFields(logrus.Fields{
			"client": conn.addr.String(),
			"file":   p.filename,
		}).Info("Refusing write request")
		conn.sendError(errIllegalOperation, "Write requests are not supported")
	default:
		s.log.WithFields(logrus.Fields{
			"client": conn.addr.String(),
			"op":     p.opCode(),
		}).Debug("Ignoring packet on listening port")
	}
}

// processRequest hands a read request to its own goroutine, so reading a
// large file does not hold up the listening loop.
func (s *server) processRequest(conn *requestConn, req *readRequest) {
	log := s.log.WithFields(logrus.Fields{
		"client": conn.addr.String(),
		"file":   req.filename,
	})
	log.WithField("mode", req.mode).Info("Read request")

	s.sessions.Add(1)
	go func() {
		defer s.sessions.Done()
		s.startTransfer(conn, req, log)
	}()
}

func (s *server) startTransfer(conn *requestConn, req *readRequest, log *logrus.Entry) {
	data, err := s.files.readFile(req.filename)
	if err != nil {
		log.WithField("error", err.Error()).Warn("Cannot read requested file")
		conn.sendError(fileErrorCode(err), "")
		return
	}

	options := defaultOptions
	if !s.rfc1350 {
		options = negotiate(log, req.options)
	}

	// Each transfer gets its own socket, which is its transfer ID.
	newConn, err := net.ListenPacket("udp", transferAddress(s.conn.LocalAddr()))
	if err != nil {
		log.WithField("error", err.Error()).Error("Cannot open transfer socket")
		conn.sendError(errNotDefined, "")
		return
	}

	client := newRequestConn(newConn, conn.addr)
	client.log = log

	c := newConnection(client, data, options)
	c.timeout = s.timeout
	c.retries = s.retries
	c.log = log

	defer c.close()
	_ = c.start()
}

// transferAddress is the listening IP with an ephemeral port.
func transferAddress(listen net.Addr) string {
	if udp, ok := listen.(*net.UDPAddr); ok && udp.IP != nil && !udp.IP.IsUnspecified() {
		return net.JoinHostPort(udp.IP.String(), "0")
	}
	return ":0"
}

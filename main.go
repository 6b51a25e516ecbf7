package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	flgRootDir   string
	flgPayload   string
	flgAddress   string
	flgPort      int
	flgBlockSize int
	flgTimeout   time.Duration
	flgRetries   int
	flgServer    bool
	flgDebug     bool
	flgRFC1350   bool
)

func init() {
	flag.StringVar(&flgRootDir, "root", ".", "Server root")
	flag.StringVar(&flgPayload, "payload", "", "Serve this file for every read request instead of -root")
	flag.StringVar(&flgAddress, "addr", fmt.Sprintf(":%d", tftpPort), "Server listen address")
	flag.IntVar(&flgPort, "port", tftpPort, "Remote server port for client commands")
	flag.IntVar(&flgBlockSize, "blksize", 1428, "Block size requested by client commands")
	flag.DurationVar(&flgTimeout, "timeout", defaultTimeout, "Time to wait for the peer before retransmitting")
	flag.IntVar(&flgRetries, "retries", maxRetransmits, "Retransmits before a transfer is abandoned")
	flag.BoolVar(&flgServer, "server", false, "Run a TFTP server")
	flag.BoolVar(&flgDebug, "debug", false, "Enable debug output")
	flag.BoolVar(&flgRFC1350, "rfc1350", false, "Disable TFTP options")
}

func main() {
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if flgDebug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if flgServer && flag.NArg() > 0 {
		logrus.Fatal("-server cannot be used with a command")
	}

	if flgServer {
		startServer()
	} else {
		runCommand(flag.Args())
	}
}

func startServer() {
	serverOptions := []serverOption{
		withRootDir(flgRootDir),
		withTimeout(flgTimeout),
		withRetries(flgRetries),
	}
	if flgPayload != "" {
		payload, err := os.ReadFile(flgPayload)
		if err != nil {
			logrus.WithField("error", err.Error()).Fatal("Cannot read payload")
		}
		serverOptions = append(serverOptions, withPayload(payload))
	} else {
		stat, err := os.Stat(flgRootDir)
		if err != nil {
			logrus.WithField("error", err.Error()).Fatal("Cannot open server root")
		}
		if !stat.IsDir() {
			logrus.Fatal("Server root is not a directory")
		}
	}
	if flgRFC1350 {
		serverOptions = append(serverOptions, withRFC1350)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := newServer(serverOptions...)
	if err := s.listenAndServe(ctx, flgAddress); err != nil {
		logrus.WithField("error", err.Error()).Fatal("Server stopped")
	}
}

func runCommand(args []string) {
	if len(args) != 3 || args[0] != "get" {
		printClientUsage()
	}

	remote := strings.SplitN(args[1], ":", 2)
	if len(remote) != 2 {
		printClientUsage()
	}

	newConn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		logrus.Fatal(err)
	}

	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(remote[0], fmt.Sprint(flgPort)))
	if err != nil {
		logrus.Fatal(err)
	}

	if err := getFile(newRequestConn(newConn, addr), remote[1], args[2]); err != nil {
		logrus.WithField("error", err.Error()).Fatal("Transfer failed")
	}
}

func getFile(conn *requestConn, source, dest string) error {
	file, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	opts := defaultOptions
	if !flgRFC1350 {
		opts = negotiate(logrus.WithField("file", source), []option{{optionBlockSize, fmt.Sprint(flgBlockSize)}})
	}

	remote := newClient(conn, source, file, opts)
	remote.timeout = flgTimeout
	remote.retries = flgRetries
	defer remote.close()

	_, err = remote.get()
	return err
}

func printClientUsage() {
	logrus.Fatal("Usage: tftp-ro [-port PORT] [-blksize N] get HOST:PATH LOCAL")
}

package main

import (
	"time"
)

const (
	tftpPort       = 69
	maxRetransmits = 5
	defaultTimeout = 5 * time.Second

	// Largest block size RFC 2348 allows plus the DATA header.
	maxDatagramSize = 65464 + 4
)

type opCode uint16

// TFTP op codes
const (
	opRead  opCode = 1
	opWrite opCode = 2
	opData  opCode = 3
	opAck   opCode = 4
	opError opCode = 5
	opOAck  opCode = 6
)

func (op opCode) String() string {
	switch op {
	case opRead:
		return "Read"
	case opWrite:
		return "Write"
	case opData:
		return "Data"
	case opAck:
		return "Ack"
	case opError:
		return "Error"
	case opOAck:
		return "OAck"
	}
	return ""
}

type tftpError uint16

// TFTP error codes
const (
	errNotDefined       tftpError = 0
	errFileNotFound     tftpError = 1
	errAccessViolation  tftpError = 2
	errDiskFull         tftpError = 3
	errIllegalOperation tftpError = 4
	errUnknownTID       tftpError = 5
	errFileExists       tftpError = 6
	errNoSuchUser       tftpError = 7
	errOptionsDenied    tftpError = 8
)

func (e tftpError) String() string {
	switch e {
	case errNotDefined:
		return "Not defined"
	case errFileNotFound:
		return "File not found"
	case errAccessViolation:
		return "Access violation"
	case errDiskFull:
		return "Disk full or allocation exceeded"
	case errIllegalOperation:
		return "Illegal TFTP operation"
	case errUnknownTID:
		return "Unknown transfer ID"
	case errFileExists:
		return "File already exists"
	case errNoSuchUser:
		return "No such user"
	case errOptionsDenied:
		return "Options denied"
	}
	return "Unknown error"
}

// Only octet mode is served. Requests naming any other mode do not parse.
const modeOctet = "octet"

// TFTP options
const (
	optionBlockSize    = "blksize"
	optionTransferSize = "tsize"
)

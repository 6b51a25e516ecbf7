package main

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	errMalformedPacket = errors.New("malformed packet")
	errUnknownOpcode   = errors.New("unknown opcode")
	errUnsupportedMode = errors.New("unsupported transfer mode")
)

// packet is a decoded TFTP datagram.
type packet interface {
	opCode() opCode
}

// option is a single key/value pair from a request or OACK. Order on the
// wire is preserved.
type option struct {
	key   string
	value string
}

//	 2 bytes   string   1 byte  string  1 byte  string  1 byte  string  1 byte
//	---------------------------------------------------------------------------
//	| 01/02 | Filename |  0  |  Mode  |  0  |  opt1  |  0  | value1 |  0  | ...
//	---------------------------------------------------------------------------
type readRequest struct {
	filename string
	mode     string
	options  []option
}

type writeRequest struct {
	filename string
	mode     string
	options  []option
}

//	 2 bytes  2 bytes   n bytes
//	-----------------------------
//	|  03   | Block # |  Data   |
//	-----------------------------
type dataPacket struct {
	block   uint16
	payload []byte
}

type ackPacket struct {
	block uint16
}

type errorPacket struct {
	code    tftpError
	message string
}

type oackPacket struct {
	options []option
}

func (*readRequest) opCode() opCode  { return opRead }
func (*writeRequest) opCode() opCode { return opWrite }
func (*dataPacket) opCode() opCode   { return opData }
func (*ackPacket) opCode() opCode    { return opAck }
func (*errorPacket) opCode() opCode  { return opError }
func (*oackPacket) opCode() opCode   { return opOAck }

func (e *errorPacket) Error() string {
	if e.message == "" {
		return fmt.Sprintf("tftp error %d: %s", e.code, e.code)
	}
	return fmt.Sprintf("tftp error %d: %s", e.code, e.message)
}

func isParseError(err error) bool {
	return errors.Is(err, errMalformedPacket) || errors.Is(err, errUnknownOpcode) || errors.Is(err, errUnsupportedMode)
}

func decodePacket(b []byte) (packet, error) {
	if len(b) < 2 {
		return nil, fmt.Errorf("%w: %d byte datagram", errMalformedPacket, len(b))
	}

	op := opCode(decodeUInt16(b[:2]))
	switch op {
	case opRead:
		filename, mode, options, err := decodeRequest(b[2:])
		if err != nil {
			return nil, err
		}
		return &readRequest{filename: filename, mode: mode, options: options}, nil
	case opWrite:
		filename, mode, options, err := decodeRequest(b[2:])
		if err != nil {
			return nil, err
		}
		return &writeRequest{filename: filename, mode: mode, options: options}, nil
	case opData:
		if len(b) < 4 {
			return nil, fmt.Errorf("%w: short data packet", errMalformedPacket)
		}
		return &dataPacket{
			block:   decodeUInt16(b[2:4]),
			payload: append([]byte{}, b[4:]...),
		}, nil
	case opAck:
		if len(b) < 4 {
			return nil, fmt.Errorf("%w: short ack packet", errMalformedPacket)
		}
		return &ackPacket{block: decodeUInt16(b[2:4])}, nil
	case opError:
		if len(b) < 4 {
			return nil, fmt.Errorf("%w: short error packet", errMalformedPacket)
		}
		msg := b[4:]
		if i := bytes.IndexByte(msg, 0); i >= 0 {
			msg = msg[:i]
		}
		return &errorPacket{
			code:    tftpError(decodeUInt16(b[2:4])),
			message: string(msg),
		}, nil
	case opOAck:
		return &oackPacket{options: decodeOptions(b[2:])}, nil
	}

	return nil, fmt.Errorf("%w: %d", errUnknownOpcode, op)
}

func decodeRequest(b []byte) (filename, mode string, options []option, err error) {
	filename, rest, ok := cutString(b)
	if !ok || !utf8.ValidString(filename) {
		return "", "", nil, fmt.Errorf("%w: bad filename", errMalformedPacket)
	}

	mode, rest, ok = cutString(rest)
	if !ok || !utf8.ValidString(mode) {
		return "", "", nil, fmt.Errorf("%w: bad mode", errMalformedPacket)
	}
	if !strings.EqualFold(mode, modeOctet) {
		return "", "", nil, fmt.Errorf("%w: %q", errUnsupportedMode, mode)
	}

	return filename, modeOctet, decodeOptions(rest), nil
}

// decodeOptions reads alternating key/value strings. The final NUL of the
// region terminates the last value, it is not an empty key. A key without a
// value ends parsing.
func decodeOptions(b []byte) []option {
	if len(b) == 0 {
		return nil
	}
	if b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}

	fields := bytes.Split(b, []byte{0})

	var options []option
	for i := 0; i+1 < len(fields); i += 2 {
		options = append(options, option{
			key:   string(fields[i]),
			value: string(fields[i+1]),
		})
	}
	return options
}

func encodePacket(p packet) []byte {
	switch p := p.(type) {
	case *readRequest:
		return encodeRequest(opRead, p.filename, p.mode, p.options)
	case *writeRequest:
		return encodeRequest(opWrite, p.filename, p.mode, p.options)
	case *dataPacket:
		// Op code, block #, then the data verbatim
		resp := header(opData, 2+len(p.payload))
		resp = append(resp, encodeUInt16(p.block)...)
		return append(resp, p.payload...)
	case *ackPacket:
		resp := header(opAck, 2)
		return append(resp, encodeUInt16(p.block)...)
	case *errorPacket:
		// Op code, error code, human-readable message, null terminator
		resp := header(opError, 3+len(p.message))
		resp = append(resp, encodeUInt16(uint16(p.code))...)
		resp = append(resp, p.message...)
		return append(resp, 0)
	case *oackPacket:
		resp := header(opOAck, totalOptionLen(p.options))
		return appendOptions(resp, p.options)
	}

	panic(fmt.Sprintf("tftp: cannot encode %T", p))
}

// header starts a datagram with its op code, leaving room for size more bytes.
func header(op opCode, size int) []byte {
	resp := make([]byte, 0, 2+size)
	return append(resp, encodeUInt16(uint16(op))...)
}

func encodeRequest(op opCode, filename, mode string, options []option) []byte {
	resp := header(op, 2+len(filename)+len(mode)+totalOptionLen(options))
	resp = append(resp, filename...)
	resp = append(resp, 0)
	resp = append(resp, mode...)
	resp = append(resp, 0)
	return appendOptions(resp, options)
}

func appendOptions(b []byte, options []option) []byte {
	for _, o := range options {
		b = append(b, o.key...)
		b = append(b, 0)
		b = append(b, o.value...)
		b = append(b, 0)
	}
	return b
}

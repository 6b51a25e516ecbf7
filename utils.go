package main

import (
	"bytes"
	"errors"
	"net"
)

func decodeUInt16(op []byte) uint16 {
	var code uint16

	switch len(op) {
	case 1:
		code = uint16(op[0])
	case 2:
		code = uint16(op[0]) << 8
		code = code + uint16(op[1])
	}

	return code
}

func encodeUInt16(in uint16) []byte {
	out := make([]byte, 2)
	out[0] = byte(in >> 8)
	out[1] = byte(in)
	return out
}

func totalOptionLen(options []option) int {
	size := 0

	for _, o := range options {
		size += len(o.key)
		size += len(o.value)
		size += 2 // NULL separators
	}

	return size
}

// cutString returns the text before the first NUL in b and the bytes after
// it. ok is false when b holds no NUL.
func cutString(b []byte) (s string, rest []byte, ok bool) {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return "", nil, false
	}
	return string(b[:i]), b[i+1:], true
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func sameAddr(a, b net.Addr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Network() == b.Network() && a.String() == b.String()
}

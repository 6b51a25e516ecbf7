package main

import (
	"strconv"

	"github.com/sirupsen/logrus"
)

// defaultOptions should never be changed at runtime. These settings comply
// with RFC 1350 and will act as if no options were given if used as is.
var defaultOptions = tftpOptions{
	blockSize: 512,
	tsize:     -1,
}

// tftpOptions holds the outcome of option negotiation. Only blksize and
// tsize are recognised.
type tftpOptions struct {
	blockSize    int
	tsize        int64
	blockSizeSet bool
	tsizeSet     bool
}

// negotiate picks the recognised options out of a request. Keys are matched
// case-sensitively. Anything unrecognised or unparseable is logged to log and
// skipped.
func negotiate(log *logrus.Entry, options []option) tftpOptions {
	base := defaultOptions

	for _, o := range options {
		switch o.key {
		case optionBlockSize:
			val, err := strconv.ParseUint(o.value, 10, 31)
			if err != nil || val == 0 {
				log.WithFields(logrus.Fields{
					"option": o.key,
					"value":  o.value,
				}).Debug("Ignoring invalid block size")
				continue
			}
			base.blockSize = int(val)
			base.blockSizeSet = true
		case optionTransferSize:
			val, err := strconv.ParseUint(o.value, 10, 63)
			if err != nil {
				log.WithFields(logrus.Fields{
					"option": o.key,
					"value":  o.value,
				}).Debug("Ignoring invalid transfer size")
				continue
			}
			base.tsize = int64(val)
			base.tsizeSet = true
		default:
			log.WithFields(logrus.Fields{
				"option": o.key,
				"value":  o.value,
			}).Debug("Ignoring unknown option")
		}
	}

	return base
}

func (o tftpOptions) requested() bool {
	return o.blockSizeSet || o.tsizeSet
}

// withTransferSize answers a tsize request with the real size of the file.
func (o tftpOptions) withTransferSize(size int64) tftpOptions {
	if o.tsizeSet {
		o.tsize = size
	}
	return o
}

// oack lists the negotiated options, blksize first.
func (o tftpOptions) oack() *oackPacket {
	p := &oackPacket{}
	if o.blockSizeSet {
		p.options = append(p.options, option{optionBlockSize, strconv.Itoa(o.blockSize)})
	}
	if o.tsizeSet {
		p.options = append(p.options, option{optionTransferSize, strconv.FormatInt(o.tsize, 10)})
	}
	return p
}

// toOptions is used by the client to build a read request.
func (o tftpOptions) toOptions() []option {
	return o.oack().options
}

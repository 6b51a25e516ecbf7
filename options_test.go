package main

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNegotiateBlockSize(t *testing.T) {
	opts := negotiate(testLog, []option{{"blksize", "1024"}})

	assert.True(t, opts.requested())
	assert.Equal(t, 1024, opts.blockSize)
	assert.Equal(t, &oackPacket{options: []option{{"blksize", "1024"}}}, opts.oack())
}

func TestNegotiateUnknownOption(t *testing.T) {
	opts := negotiate(testLog, []option{{"foo", "bar"}})

	assert.False(t, opts.requested())
	assert.Equal(t, 512, opts.blockSize)
	assert.Empty(t, opts.oack().options)
}

func TestNegotiateInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		options []option
	}{
		{"not a number", []option{{"blksize", "big"}}},
		{"negative", []option{{"blksize", "-8"}}},
		{"zero block size", []option{{"blksize", "0"}}},
		{"empty", []option{{"blksize", ""}}},
		{"bad tsize", []option{{"tsize", "x"}}},
		{"keys are case sensitive", []option{{"BLKSIZE", "1024"}, {"TSize", "0"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := negotiate(testLog, tt.options)
			assert.False(t, opts.requested())
			assert.Equal(t, defaultOptions, opts)
		})
	}
}

func TestNegotiateNoBoundsCheck(t *testing.T) {
	assert.Equal(t, 1, negotiate(testLog, []option{{"blksize", "1"}}).blockSize)
	assert.Equal(t, 100000, negotiate(testLog, []option{{"blksize", "100000"}}).blockSize)
}

func TestNegotiateTransferSize(t *testing.T) {
	opts := negotiate(testLog, []option{{"tsize", "0"}, {"foo", "bar"}, {"blksize", "1428"}})

	assert.True(t, opts.requested())
	assert.Equal(t, int64(0), opts.tsize)

	opts = opts.withTransferSize(3000)
	assert.Equal(t, []option{{"blksize", "1428"}, {"tsize", "3000"}}, opts.oack().options)
}

func TestWithTransferSizeNotRequested(t *testing.T) {
	opts := negotiate(testLog, []option{{"blksize", "1024"}}).withTransferSize(3000)
	assert.Equal(t, int64(-1), opts.tsize)
	assert.Equal(t, []option{{"blksize", "1024"}}, opts.oack().options)
}

func TestNegotiateLastValueWins(t *testing.T) {
	opts := negotiate(testLog, []option{{"blksize", "1024"}, {"blksize", "2048"}})
	assert.Equal(t, 2048, opts.blockSize)
}

func TestNegotiateLogsToGivenEntry(t *testing.T) {
	var logBuffer bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&logBuffer)
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{DisableColors: true})

	negotiate(logger.WithField("client", "10.0.0.9:1069"), []option{{"foo", "bar"}})

	assert.Contains(t, logBuffer.String(), "Ignoring unknown option")
	assert.Contains(t, logBuffer.String(), "client=\"10.0.0.9:1069\"")
}

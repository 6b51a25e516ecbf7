package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

var errNotRegularFile = errors.New("not a regular file")

// fileProvider supplies the content served for a requested filename. Each
// call returns a slice the caller owns.
type fileProvider interface {
	readFile(name string) ([]byte, error)
}

// dirProvider serves files found below root.
type dirProvider struct {
	root string
}

func (p dirProvider) resolve(name string) string {
	// Rooting the name before cleaning keeps ".." from escaping root.
	clean := path.Clean("/" + filepath.ToSlash(name))
	return filepath.Join(p.root, filepath.FromSlash(clean))
}

func (p dirProvider) readFile(name string) ([]byte, error) {
	full := p.resolve(name)

	stat, err := os.Stat(full)
	if err != nil {
		return nil, err
	}
	if !stat.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: %w", full, errNotRegularFile)
	}

	return os.ReadFile(full)
}

// payloadProvider serves the same content whatever file is asked for.
type payloadProvider struct {
	payload []byte
}

func (p payloadProvider) readFile(string) ([]byte, error) {
	out := make([]byte, len(p.payload))
	copy(out, p.payload)
	return out, nil
}

// fileErrorCode maps a provider failure onto the error sent to the client.
func fileErrorCode(err error) tftpError {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return errFileNotFound
	case errors.Is(err, fs.ErrPermission), errors.Is(err, errNotRegularFile):
		return errAccessViolation
	}
	return errNotDefined
}

package storage

import (
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrTransient marks backend errors that are worth retrying.
	ErrTransient = errors.New("transient storage failure")

	// ErrNotFound is returned when a read handle is opened on a missing path.
	ErrNotFound = errors.New("path not found")

	// ErrFatal matches every *FatalIOError.
	ErrFatal = errors.New("fatal storage failure")

	// ErrInvalidPath is returned for empty paths or paths leaving the backend root.
	ErrInvalidPath = errors.New("invalid path")

	// ErrClosed is returned when a closed handle or backend is used.
	ErrClosed = errors.New("closed")
)

// WriteFile is an append-only stream. An Append either lands completely or
// not at all, so retrying a failed Append never duplicates bytes.
type WriteFile interface {
	Append(data []byte) error
	Size() uint64
	Close() error
}

// RandomReadFile reads at arbitrary offsets. ReadAt returns n < len(buf)
// only together with io.EOF.
type RandomReadFile interface {
	ReadAt(offset uint64, buf []byte) (int, error)
	Size() (uint64, error)
	Close() error
}

// Backend opens files by path.
type Backend interface {
	OpenForAppend(path string) (WriteFile, error)
	OpenForRandomRead(path string) (RandomReadFile, error)
	Close() error
}

// MarkTransient flags err as retryable.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrTransient)
}

// IsTransient reports whether err was flagged as retryable.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// cleanPath validates a backend path and strips leading slashes.
func cleanPath(path string) (string, error) {
	p := strings.TrimLeft(path, "/")
	if p == "" {
		return "", errors.Wrapf(ErrInvalidPath, "%q", path)
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return "", errors.Wrapf(ErrInvalidPath, "%q", path)
		}
	}
	return p, nil
}

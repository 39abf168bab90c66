package storage

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
)

const (
	opOpenAppend = "open_append"
	opOpenRead   = "open_read"
	opAppend     = "append"
	opRead       = "read"
	opSize       = "size"
)

// RetryPolicy is the exponential backoff applied to transient failures.
type RetryPolicy struct {
	InitialInterval time.Duration // Delay before the first retry
	MaxInterval     time.Duration // Cap on a single delay
	Multiplier      float64       // Growth factor between delays
	MaxElapsedTime  time.Duration // Give up after this long (0 = no limit)
	MaxAttempts     int           // Give up after this many calls (0 = no limit)
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2,
		MaxElapsedTime:  time.Minute,
		MaxAttempts:     8,
	}
}

func (p RetryPolicy) newBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	if p.Multiplier >= 1 {
		eb.Multiplier = p.Multiplier
	}
	eb.MaxElapsedTime = p.MaxElapsedTime
	eb.Reset()

	var b backoff.BackOff = eb
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}
	return b
}

// FatalIOError is returned when a backend call fails permanently or the
// retry policy is exhausted.
type FatalIOError struct {
	Op       string // Operation that failed
	Path     string // Backend path
	Offset   uint64 // Byte offset for reads and appends
	Attempts int    // Backend calls made
	Err      error  // Last backend error
}

func (e *FatalIOError) Error() string {
	return fmt.Sprintf("fatal storage failure: %s %s at offset %d after %d attempt(s): %v",
		e.Op, e.Path, e.Offset, e.Attempts, e.Err)
}

// Unwrap returns the last backend error.
func (e *FatalIOError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrFatal.
func (e *FatalIOError) Is(target error) bool {
	return target == ErrFatal
}

// Options configures a Durable.
type Options struct {
	Retry   RetryPolicy
	Logger  *slog.Logger
	Metrics *Metrics
}

// Durable wraps a Backend with retries, logging and metrics.
type Durable struct {
	backend Backend
	policy  RetryPolicy
	logger  *slog.Logger
	metrics *Metrics
}

// NewDurable returns an adapter over backend.
func NewDurable(backend Backend, opts Options) *Durable {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Durable{
		backend: backend,
		policy:  opts.Retry,
		logger:  logger.With("component", "storage"),
		metrics: opts.Metrics,
	}
}

// Backend returns the wrapped backend.
func (d *Durable) Backend() Backend {
	return d.backend
}

// Close closes the backend.
func (d *Durable) Close() error {
	return d.backend.Close()
}

// do runs fn until it succeeds, fails permanently or the policy gives up.
// fn returning io.EOF is not treated as a failure by callers; do itself
// treats any error that is not transient as permanent.
func (d *Durable) do(op, path string, offset uint64, fn func() error) error {
	start := time.Now()
	attempts := 0

	err := backoff.RetryNotify(func() error {
		attempts++
		d.metrics.RecordAttempt(op)
		err := fn()
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, d.policy.newBackOff(), func(err error, wait time.Duration) {
		d.metrics.RecordRetry(op)
		d.logger.Warn("transient storage failure, retrying",
			"op", op, "path", path, "offset", offset,
			"attempt", attempts, "wait", wait, "error", err)
	})

	d.metrics.RecordOperation(op, err == nil, time.Since(start))
	if err != nil && errors.Is(err, ErrNotFound) {
		d.logger.Debug("storage path not found", "op", op, "path", path)
		return &FatalIOError{Op: op, Path: path, Offset: offset, Attempts: attempts, Err: err}
	}
	if err != nil {
		d.logger.Error("storage operation failed",
			"op", op, "path", path, "offset", offset,
			"attempts", attempts, "error", err)
		return &FatalIOError{Op: op, Path: path, Offset: offset, Attempts: attempts, Err: err}
	}
	return nil
}

// OpenForAppend opens an append-only handle on path.
func (d *Durable) OpenForAppend(path string) (*WriteHandle, error) {
	var file WriteFile
	err := d.do(opOpenAppend, path, 0, func() error {
		var err error
		file, err = d.backend.OpenForAppend(path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &WriteHandle{durable: d, file: file, path: path}, nil
}

// OpenForRandomRead opens a random-access handle on path. A missing path
// yields an error matching ErrNotFound.
func (d *Durable) OpenForRandomRead(path string) (*ReadHandle, error) {
	var file RandomReadFile
	err := d.do(opOpenRead, path, 0, func() error {
		var err error
		file, err = d.backend.OpenForRandomRead(path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &ReadHandle{durable: d, file: file, path: path}, nil
}

// WriteHandle appends to one path.
type WriteHandle struct {
	durable *Durable
	file    WriteFile
	path    string
}

// Append writes data at the end of the file. It returns only after the data
// is durable or the operation has failed for good.
func (h *WriteHandle) Append(data []byte) error {
	offset := h.file.Size()
	err := h.durable.do(opAppend, h.path, offset, func() error {
		return h.file.Append(data)
	})
	if err != nil {
		return err
	}
	h.durable.metrics.RecordBytes(opAppend, len(data))
	return nil
}

// Size returns the number of bytes in the file.
func (h *WriteHandle) Size() uint64 {
	return h.file.Size()
}

// Path returns the backend path.
func (h *WriteHandle) Path() string {
	return h.path
}

// Close releases the handle.
func (h *WriteHandle) Close() error {
	return h.file.Close()
}

// ReadHandle reads one path at arbitrary offsets.
type ReadHandle struct {
	durable *Durable
	file    RandomReadFile
	path    string
}

// Read returns up to length bytes starting at offset. The result is shorter
// than length only when the file ends first.
func (h *ReadHandle) Read(offset uint64, length int) ([]byte, error) {
	size, err := h.Size()
	if err != nil {
		return nil, err
	}
	if offset >= size {
		length = 0
	} else if uint64(length) > size-offset {
		length = int(size - offset)
	}
	buf := make([]byte, length)
	filled := 0

	err = h.durable.do(opRead, h.path, offset, func() error {
		for filled < length {
			n, err := h.file.ReadAt(offset+uint64(filled), buf[filled:])
			filled += n
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			if n == 0 {
				return errors.Newf("backend returned no data and no error at offset %d", offset+uint64(filled))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	h.durable.metrics.RecordBytes(opRead, filled)
	return buf[:filled], nil
}

// ReadAt implements codec.Source.
func (h *ReadHandle) ReadAt(offset uint64, n int) ([]byte, error) {
	return h.Read(offset, n)
}

// Size returns the current size of the file.
func (h *ReadHandle) Size() (uint64, error) {
	var size uint64
	err := h.durable.do(opSize, h.path, 0, func() error {
		var err error
		size, err = h.file.Size()
		return err
	})
	return size, err
}

// ReadAll returns everything from offset to the end of the file.
func (h *ReadHandle) ReadAll(offset uint64) ([]byte, error) {
	size, err := h.Size()
	if err != nil {
		return nil, err
	}
	if offset >= size {
		return []byte{}, nil
	}
	return h.Read(offset, int(size-offset))
}

// Path returns the backend path.
func (h *ReadHandle) Path() string {
	return h.path
}

// Close releases the handle.
func (h *ReadHandle) Close() error {
	return h.file.Close()
}

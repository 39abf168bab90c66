package storage

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/cockroachdb/errors"
)

// FileBackend stores each path as a file below Root.
type FileBackend struct {
	Root string
}

// NewFileBackend creates root if needed and returns a backend over it.
func NewFileBackend(root string) (*FileBackend, error) {
	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, errors.Wrapf(err, "create storage root %s", root)
	}
	return &FileBackend{Root: root}, nil
}

func (b *FileBackend) resolve(path string) (string, error) {
	p, err := cleanPath(path)
	if err != nil {
		return "", err
	}
	return filepath.Join(b.Root, filepath.FromSlash(p)), nil
}

// OpenForAppend opens path for appending, creating it and its directories.
func (b *FileBackend) OpenForAppend(path string) (WriteFile, error) {
	full, err := b.resolve(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0750); err != nil {
		return nil, classifyFileError(err)
	}

	file, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, classifyFileError(err)
	}

	// Get current file size for offset tracking
	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, classifyFileError(err)
	}

	return &fileWriter{file: file, path: full, offset: stat.Size()}, nil
}

// OpenForRandomRead opens path for reading.
func (b *FileBackend) OpenForRandomRead(path string) (RandomReadFile, error) {
	full, err := b.resolve(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrapf(ErrNotFound, "%s", path)
		}
		return nil, classifyFileError(err)
	}
	return &fileReader{file: file}, nil
}

// Close is a no-op; files are closed through their handles.
func (b *FileBackend) Close() error {
	return nil
}

// fileWriter appends with positional writes so a failed Append can be
// retried over the same range.
type fileWriter struct {
	file   *os.File
	path   string
	mutex  sync.Mutex
	offset int64
}

func (w *fileWriter) Append(data []byte) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.file == nil {
		return ErrClosed
	}
	if _, err := w.file.WriteAt(data, w.offset); err != nil {
		return classifyFileError(err)
	}
	if err := w.file.Sync(); err != nil {
		return classifyFileError(err)
	}
	w.offset += int64(len(data))
	return nil
}

func (w *fileWriter) Size() uint64 {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return uint64(w.offset)
}

func (w *fileWriter) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

type fileReader struct {
	file *os.File
}

func (r *fileReader) ReadAt(offset uint64, buf []byte) (int, error) {
	n, err := r.file.ReadAt(buf, int64(offset))
	if err == io.EOF {
		return n, io.EOF
	}
	if err != nil {
		return n, classifyFileError(err)
	}
	return n, nil
}

func (r *fileReader) Size() (uint64, error) {
	stat, err := r.file.Stat()
	if err != nil {
		return 0, classifyFileError(err)
	}
	return uint64(stat.Size()), nil
}

func (r *fileReader) Close() error {
	return r.file.Close()
}

// classifyFileError marks interrupted and busy syscalls as transient.
func classifyFileError(err error) error {
	switch {
	case errors.Is(err, syscall.EINTR),
		errors.Is(err, syscall.EAGAIN),
		errors.Is(err, syscall.EBUSY):
		return MarkTransient(err)
	default:
		return err
	}
}

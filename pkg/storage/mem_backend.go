package storage

import (
	"io"
	"sync"

	"github.com/cockroachdb/errors"
)

// Faults configures failures injected by a MemBackend. Counters are
// consumed one failure per operation.
type Faults struct {
	TransientOpens   int   // next N opens fail transiently
	TransientAppends int   // next N appends fail transiently
	TransientReads   int   // next N reads fail transiently
	FatalAppend      error // when set, every append fails with it
	FatalRead        error // when set, every read fails with it
}

// MemBackend keeps files in memory.
type MemBackend struct {
	mutex  sync.Mutex
	files  map[string][]byte
	faults Faults
	stats  MemStats
}

// MemStats counts the operations a MemBackend has served.
type MemStats struct {
	Opens   int
	Appends int
	Reads   int
}

// NewMemBackend returns an empty in-memory backend.
func NewMemBackend() *MemBackend {
	return &MemBackend{files: make(map[string][]byte)}
}

// SetFaults replaces the injected faults.
func (b *MemBackend) SetFaults(f Faults) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.faults = f
}

// Stats returns operation counts.
func (b *MemBackend) Stats() MemStats {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.stats
}

// Bytes returns a copy of the file at path.
func (b *MemBackend) Bytes(path string) ([]byte, bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	p, err := cleanPath(path)
	if err != nil {
		return nil, false
	}
	data, ok := b.files[p]
	return append([]byte{}, data...), ok
}

// Truncate cuts the file at path to n bytes, simulating a torn write.
func (b *MemBackend) Truncate(path string, n int) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	p, err := cleanPath(path)
	if err != nil {
		return
	}
	if data, ok := b.files[p]; ok && n < len(data) {
		b.files[p] = data[:n]
	}
}

func (b *MemBackend) openFault() error {
	b.stats.Opens++
	if b.faults.TransientOpens > 0 {
		b.faults.TransientOpens--
		return MarkTransient(errors.New("injected open failure"))
	}
	return nil
}

// OpenForAppend opens path for appending, creating it when missing.
func (b *MemBackend) OpenForAppend(path string) (WriteFile, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if err := b.openFault(); err != nil {
		return nil, err
	}
	if _, ok := b.files[p]; !ok {
		b.files[p] = []byte{}
	}
	return &memWriter{backend: b, path: p}, nil
}

// OpenForRandomRead opens an existing path for reading.
func (b *MemBackend) OpenForRandomRead(path string) (RandomReadFile, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if err := b.openFault(); err != nil {
		return nil, err
	}
	if _, ok := b.files[p]; !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s", path)
	}
	return &memReader{backend: b, path: p}, nil
}

// Close drops nothing; the files stay readable for inspection.
func (b *MemBackend) Close() error {
	return nil
}

type memWriter struct {
	backend *MemBackend
	path    string
}

func (w *memWriter) Append(data []byte) error {
	b := w.backend
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.stats.Appends++
	if b.faults.FatalAppend != nil {
		return b.faults.FatalAppend
	}
	if b.faults.TransientAppends > 0 {
		b.faults.TransientAppends--
		return MarkTransient(errors.New("injected append failure"))
	}
	b.files[w.path] = append(b.files[w.path], data...)
	return nil
}

func (w *memWriter) Size() uint64 {
	w.backend.mutex.Lock()
	defer w.backend.mutex.Unlock()
	return uint64(len(w.backend.files[w.path]))
}

func (w *memWriter) Close() error {
	return nil
}

type memReader struct {
	backend *MemBackend
	path    string
}

func (r *memReader) ReadAt(offset uint64, buf []byte) (int, error) {
	b := r.backend
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.stats.Reads++
	if b.faults.FatalRead != nil {
		return 0, b.faults.FatalRead
	}
	if b.faults.TransientReads > 0 {
		b.faults.TransientReads--
		return 0, MarkTransient(errors.New("injected read failure"))
	}
	data := b.files[r.path]
	if offset >= uint64(len(data)) {
		if len(buf) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(buf, data[offset:])
	if n < len(buf) {
		return n, io.EOF
	}
	return n, nil
}

func (r *memReader) Size() (uint64, error) {
	r.backend.mutex.Lock()
	defer r.backend.mutex.Unlock()
	return uint64(len(r.backend.files[r.path])), nil
}

func (r *memReader) Close() error {
	return nil
}

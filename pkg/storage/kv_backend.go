package storage

import (
	"encoding/binary"
	"io"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

// errKeyNotFound is what kvStore implementations return for missing keys.
var errKeyNotFound = errors.New("key not found")

// kvStore is the slice of an embedded key-value database the chunked file
// layout needs. setBatch must apply all pairs atomically.
type kvStore interface {
	get(key []byte) ([]byte, error)
	setBatch(pairs [][2][]byte) error
	close() error
}

// kvBackend lays files out as chunks in a key-value store:
//
//	t\x00<path>               chunk table: [count(8)][end_0(8)]...[end_n-1(8)]
//	c\x00<path>\x00<index(8)> chunk data, one chunk per Append
//
// end_i is the file size after chunk i. Each Append writes its chunk and
// the extended table in one batch.
type kvBackend struct {
	kv kvStore
}

func tableKey(path string) []byte {
	return append([]byte("t\x00"), path...)
}

func chunkKey(path string, index int) []byte {
	key := make([]byte, 0, len(path)+11)
	key = append(key, "c\x00"...)
	key = append(key, path...)
	key = append(key, 0)
	return binary.BigEndian.AppendUint64(key, uint64(index))
}

func encodeTable(ends []uint64) []byte {
	buf := make([]byte, 0, 8+8*len(ends))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(ends)))
	for _, end := range ends {
		buf = binary.LittleEndian.AppendUint64(buf, end)
	}
	return buf
}

func decodeTable(path string, buf []byte) ([]uint64, error) {
	if len(buf) < 8 {
		return nil, errors.Newf("chunk table for %s: truncated header", path)
	}
	n := binary.LittleEndian.Uint64(buf)
	if uint64(len(buf)-8) != n*8 {
		return nil, errors.Newf("chunk table for %s: %d entries in %d bytes", path, n, len(buf)-8)
	}
	ends := make([]uint64, n)
	for i := range ends {
		ends[i] = binary.LittleEndian.Uint64(buf[8+i*8:])
	}
	return ends, nil
}

func (b *kvBackend) loadTable(path string) ([]uint64, error) {
	raw, err := b.kv.get(tableKey(path))
	if err != nil {
		return nil, err
	}
	return decodeTable(path, raw)
}

func (b *kvBackend) OpenForAppend(path string) (WriteFile, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	ends, err := b.loadTable(p)
	if errors.Is(err, errKeyNotFound) {
		ends = nil
		if err := b.kv.setBatch([][2][]byte{{tableKey(p), encodeTable(nil)}}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	return &kvWriter{backend: b, path: p, ends: ends}, nil
}

func (b *kvBackend) OpenForRandomRead(path string) (RandomReadFile, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	ends, err := b.loadTable(p)
	if errors.Is(err, errKeyNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "%s", path)
	}
	if err != nil {
		return nil, err
	}
	return &kvReader{backend: b, path: p, ends: ends}, nil
}

func (b *kvBackend) Close() error {
	return b.kv.close()
}

type kvWriter struct {
	backend *kvBackend
	path    string
	mutex   sync.Mutex
	ends    []uint64
	closed  bool
}

func (w *kvWriter) size() uint64 {
	if len(w.ends) == 0 {
		return 0
	}
	return w.ends[len(w.ends)-1]
}

func (w *kvWriter) Append(data []byte) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.closed {
		return ErrClosed
	}
	if len(data) == 0 {
		return nil
	}
	ends := append(append([]uint64{}, w.ends...), w.size()+uint64(len(data)))
	chunk := append([]byte{}, data...)
	err := w.backend.kv.setBatch([][2][]byte{
		{chunkKey(w.path, len(w.ends)), chunk},
		{tableKey(w.path), encodeTable(ends)},
	})
	if err != nil {
		return err
	}
	w.ends = ends
	return nil
}

func (w *kvWriter) Size() uint64 {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.size()
}

func (w *kvWriter) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.closed = true
	return nil
}

type kvReader struct {
	backend *kvBackend
	path    string
	mutex   sync.Mutex
	ends    []uint64
}

func (r *kvReader) size() uint64 {
	if len(r.ends) == 0 {
		return 0
	}
	return r.ends[len(r.ends)-1]
}

// refresh reloads the chunk table when a read goes past the known size,
// so readers observe appends made after they were opened.
func (r *kvReader) refresh(offset uint64, n int) error {
	if offset+uint64(n) <= r.size() {
		return nil
	}
	ends, err := r.backend.loadTable(r.path)
	if err != nil {
		return err
	}
	r.ends = ends
	return nil
}

func (r *kvReader) ReadAt(offset uint64, buf []byte) (int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if err := r.refresh(offset, len(buf)); err != nil {
		return 0, err
	}

	read := 0
	idx := sort.Search(len(r.ends), func(i int) bool { return r.ends[i] > offset })
	for read < len(buf) && idx < len(r.ends) {
		var start uint64
		if idx > 0 {
			start = r.ends[idx-1]
		}
		chunk, err := r.backend.kv.get(chunkKey(r.path, idx))
		if err != nil {
			return read, errors.Wrapf(err, "chunk %d of %s", idx, r.path)
		}
		if uint64(len(chunk)) != r.ends[idx]-start {
			return read, errors.Newf("chunk %d of %s: size %d, table says %d", idx, r.path, len(chunk), r.ends[idx]-start)
		}
		pos := offset + uint64(read) - start
		read += copy(buf[read:], chunk[pos:])
		idx++
	}
	if read < len(buf) {
		return read, io.EOF
	}
	return read, nil
}

func (r *kvReader) Size() (uint64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ends, err := r.backend.loadTable(r.path)
	if err != nil {
		return 0, err
	}
	r.ends = ends
	return r.size(), nil
}

func (r *kvReader) Close() error {
	return nil
}

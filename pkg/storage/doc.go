// Package storage implements FrameDB's durable I/O adapter.
//
// A Backend exposes append-only write files and random-access read files
// named by slash-separated paths. Durable wraps a Backend and retries every
// operation with exponential backoff while the backend reports transient
// failures:
//
//	┌──────────────┐  Append / Read   ┌─────────┐  retry + backoff  ┌─────────┐
//	│ record/catalog│ ───────────────▶ │ Durable │ ────────────────▶ │ Backend │
//	└──────────────┘                  └─────────┘                   └─────────┘
//
// Backend errors are classified:
//   - io.EOF from a read: end of stream, the read returns short
//   - errors marked with ErrTransient: retried until the policy gives up
//   - everything else: fatal, returned at once as *FatalIOError
//
// Writes are append-only. Nothing in this package rewrites bytes that were
// acknowledged by a previous Append.
//
// Backends:
//   - FileBackend: a directory on the local filesystem
//   - PebbleBackend: chunked files inside a pebble database
//   - BadgerBackend: chunked files inside a badger database
//   - MemBackend: in-memory, with fault injection for tests
package storage

package blockstore

import (
	"sync"

	"github.com/colinmarc/cdb"
)

// Archive is a read-only KV backend over a constant database file,
// suitable for shipping immutable snapshots of a tree.
type Archive struct {
	db *cdb.CDB
}

// OpenArchive opens an archive file written by an ArchiveWriter.
func OpenArchive(path string) (*Archive, error) {
	db, err := cdb.Open(path)
	if err != nil {
		return nil, err
	}
	return &Archive{db: db}, nil
}

// Get implements KV.
func (a *Archive) Get(key []byte) ([]byte, error) {
	val, err := a.db.Get(key)
	if err != nil {
		return nil, err
	}
	if val == nil {
		return nil, ErrNotFound
	}
	return val, nil
}

// Set implements KV and always fails with ErrReadOnly.
func (a *Archive) Set(_, _ []byte) error { return ErrReadOnly }

// Close implements KV.
func (a *Archive) Close() error {
	return a.db.Close()
}

// --------------------------------------------------------------------

// ArchiveWriter is a write-once KV backend producing an archive file.
// Reads are only served after the file is reopened with OpenArchive.
type ArchiveWriter struct {
	mu   sync.Mutex
	w    *cdb.Writer
	seen map[string]struct{}
}

// CreateArchive creates a new archive file at path.
func CreateArchive(path string) (*ArchiveWriter, error) {
	w, err := cdb.Create(path)
	if err != nil {
		return nil, err
	}
	return &ArchiveWriter{w: w, seen: make(map[string]struct{})}, nil
}

// Len returns the number of distinct keys written.
func (a *ArchiveWriter) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.seen)
}

// Get implements KV. Archives under construction cannot be read.
func (a *ArchiveWriter) Get(_ []byte) ([]byte, error) { return nil, ErrNotFound }

// Set implements KV. Duplicate keys are skipped.
func (a *ArchiveWriter) Set(key, value []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.w == nil {
		return ErrClosed
	}
	if _, ok := a.seen[string(key)]; ok {
		return nil
	}
	if err := a.w.Put(key, value); err != nil {
		return err
	}
	a.seen[string(key)] = struct{}{}
	return nil
}

// Close finalises the archive file.
func (a *ArchiveWriter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.w == nil {
		return nil
	}
	err := a.w.Close()
	a.w = nil
	return err
}

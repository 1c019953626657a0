package blockstore

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// LevelDB is a KV backend on top of goleveldb.
type LevelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) a LevelDB database at path. Blocks
// carry their own compression, so LevelDB compression is disabled unless
// explicitly configured in o.
func OpenLevelDB(path string, o *opt.Options) (*LevelDB, error) {
	if o == nil {
		o = &opt.Options{Compression: opt.NoCompression}
	}

	db, err := leveldb.OpenFile(path, o)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Get implements KV.
func (l *LevelDB) Get(key []byte) ([]byte, error) {
	val, err := l.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	} else if err == leveldb.ErrClosed {
		return nil, ErrClosed
	}
	return val, err
}

// Set implements KV.
func (l *LevelDB) Set(key, value []byte) error {
	err := l.db.Put(key, value, nil)
	if err == leveldb.ErrClosed {
		return ErrClosed
	}
	return err
}

// Close implements KV.
func (l *LevelDB) Close() error {
	return l.db.Close()
}

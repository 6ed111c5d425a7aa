// Package badger implements engine.Engine on top of BadgerDB.
package badger

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/sealkv/sealkv/engine"
)

// Engine wraps a BadgerDB instance.
type Engine struct {
	db     *badgerdb.DB
	logger *slog.Logger
}

var _ engine.Engine = (*Engine)(nil)

// loggerAdapter adapts slog.Logger to badger.Logger.
type loggerAdapter struct {
	logger *slog.Logger
}

var _ badgerdb.Logger = (*loggerAdapter)(nil)

func (l *loggerAdapter) Errorf(msg string, items ...any) {
	l.logger.Error(fmt.Sprintf(msg, items...))
}

func (l *loggerAdapter) Warningf(msg string, items ...any) {
	l.logger.Warn(fmt.Sprintf(msg, items...))
}

func (l *loggerAdapter) Infof(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

func (l *loggerAdapter) Debugf(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

// New opens the store at path, creating the directory if it does not
// exist yet.
func New(path string, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	info, err := os.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %w", engine.ErrOpenFailed, err)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("%w: %w", engine.ErrOpenFailed, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", engine.ErrOpenFailed, path)
	}

	return open(badgerdb.DefaultOptions(path), logger)
}

// Open attaches to an existing store at path. Unlike New it fails when
// nothing has been created there before.
func Open(path string, logger *slog.Logger) (*Engine, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrOpenFailed, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", engine.ErrOpenFailed, path)
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrOpenFailed, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no store at %s", engine.ErrOpenFailed, path)
	}
	return New(path, logger)
}

// NewInMemory opens an ephemeral in-memory store, mainly for tests.
func NewInMemory(logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return open(badgerdb.DefaultOptions("").WithInMemory(true), logger)
}

func open(opts badgerdb.Options, logger *slog.Logger) (*Engine, error) {
	opts.Logger = &loggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrOpenFailed, err)
	}

	return &Engine{db: db, logger: logger}, nil
}

// Destroy removes all on-disk artifacts of the store at path. The store
// must be closed first.
func Destroy(path string) error {
	return os.RemoveAll(path)
}

// Close closes the underlying BadgerDB.
func (e *Engine) Close() error {
	return e.db.Close()
}

// IsClosed reports whether the database has been closed.
func (e *Engine) IsClosed() bool {
	return e.db.IsClosed()
}

// Get returns the value stored at key.
func (e *Engine) Get(key string) ([]byte, error) {
	var value []byte
	err := e.db.View(func(tx *badgerdb.Txn) error {
		item, err := tx.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, engine.ErrKeyNotFound
	}
	if err != nil {
		return nil, wrap(err)
	}
	return value, nil
}

// Put stores value at key.
func (e *Engine) Put(key string, value []byte) error {
	return wrap(e.db.Update(func(tx *badgerdb.Txn) error {
		return tx.Set([]byte(key), value)
	}))
}

// Delete removes key. Absent keys are a no-op.
func (e *Engine) Delete(key string) error {
	return wrap(e.db.Update(func(tx *badgerdb.Txn) error {
		return tx.Delete([]byte(key))
	}))
}

// Scan visits every non-meta entry whose key starts with prefix, in
// key order, within a single read transaction.
func (e *Engine) Scan(prefix string, fn func(engine.Entry) error) error {
	return wrap(e.db.View(func(tx *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			key := string(item.KeyCopy(nil))
			if engine.IsMetaKey(key) {
				continue
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(engine.Entry{Key: key, Value: value}); err != nil {
				return err
			}
		}
		return nil
	}))
}

// ScanKeys visits every non-meta key starting with prefix, in key
// order, without reading values.
func (e *Engine) ScanKeys(prefix string, fn func(string) error) error {
	return wrap(e.db.View(func(tx *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			key := string(iter.Item().KeyCopy(nil))
			if engine.IsMetaKey(key) {
				continue
			}
			if err := fn(key); err != nil {
				return err
			}
		}
		return nil
	}))
}

// ApplyBatch applies ops in a single BadgerDB transaction. On error
// nothing is committed.
func (e *Engine) ApplyBatch(ops []engine.Op) error {
	return wrap(e.db.Update(func(tx *badgerdb.Txn) error {
		for _, op := range ops {
			var err error
			if op.Delete {
				err = tx.Delete([]byte(op.Key))
			} else {
				err = tx.Set([]byte(op.Key), op.Value)
			}
			if err != nil {
				return err
			}
		}
		return nil
	}))
}

// IsEmpty reports whether the store holds no non-meta keys.
func (e *Engine) IsEmpty() (bool, error) {
	empty := true
	err := e.db.View(func(tx *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if engine.IsMetaKey(string(iter.Item().Key())) {
				continue
			}
			empty = false
			return nil
		}
		return nil
	})
	if err != nil {
		return false, wrap(err)
	}
	return empty, nil
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, badgerdb.ErrDBClosed) {
		return fmt.Errorf("%w: %w", engine.ErrEngineClosed, err)
	}
	return err
}
